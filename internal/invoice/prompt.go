package invoice

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultExtractionPrompt instructs the model to return the nine invoice fields as bare JSON
const DefaultExtractionPrompt = `You are reading a photo of a Taiwanese invoice (統一發票) or receipt (收據).
Return ONLY one JSON object. No prose, no explanation, no markdown code fences.

The object must contain exactly these keys:
{
  "date": "YYYY/MM/DD",
  "invoice_number": "string",
  "seller_name": "string",
  "seller_tax_id": "string",
  "subtotal": number,
  "tax": number,
  "total": number,
  "invoice_type": "string, e.g. 電子發票, 二聯式發票, 三聯式發票, 收據",
  "category_suggestion": "string, an expense category such as 餐飲, 交通, 辦公用品, 雜項"
}

Rules:
- Dates printed in the ROC calendar (民國) must be converted to the Gregorian calendar by adding 1911 to the year (113/05/01 -> 2024/05/01).
- Amounts are plain numbers without currency symbols or thousands separators.
- If a text field cannot be read use null. If an amount cannot be read use 0.`

// PromptConfig holds the model instructions and sampling parameters for extraction
type PromptConfig struct {
	InvoiceExtraction struct {
		Temperature     float32 `yaml:"temperature"`
		MaxOutputTokens int     `yaml:"max_output_tokens"`
		Prompt          string  `yaml:"prompt"`
	} `yaml:"invoice_extraction"`
}

// DefaultPrompts returns the built-in prompt configuration
func DefaultPrompts() *PromptConfig {
	var p PromptConfig
	p.InvoiceExtraction.Temperature = 0.1
	p.InvoiceExtraction.MaxOutputTokens = 1024
	p.InvoiceExtraction.Prompt = DefaultExtractionPrompt
	return &p
}

// LoadPrompts loads prompt overrides from a YAML file. Missing values keep their defaults.
func LoadPrompts(promptsPath string) (*PromptConfig, error) {
	prompts := DefaultPrompts()
	if promptsPath == "" {
		return prompts, nil
	}

	data, err := os.ReadFile(promptsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}

	if err := yaml.Unmarshal(data, prompts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prompts: %w", err)
	}

	if prompts.InvoiceExtraction.Prompt == "" {
		prompts.InvoiceExtraction.Prompt = DefaultExtractionPrompt
	}
	return prompts, nil
}
