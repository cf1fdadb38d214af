package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/garyjia/invoice-vision/internal/application/port"
	"github.com/garyjia/invoice-vision/internal/domain/entity"
	"github.com/garyjia/invoice-vision/internal/infrastructure/document"
	"github.com/garyjia/invoice-vision/internal/invoice"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const DefaultModel = openai.GPT4o

// Config holds OpenAI recognizer configuration
type Config struct {
	APIKey string
	// BaseURL overrides the public endpoint, e.g. for a compatible gateway
	BaseURL     string
	Model       string
	Temperature float32
	MaxTokens   int
	Prompt      string
}

// Recognizer implements port.VisionRecognizer with chat completions and an image part
type Recognizer struct {
	cfg    Config
	logger *zap.Logger
}

// NewRecognizer creates an OpenAI-backed recognizer
func NewRecognizer(cfg Config, logger *zap.Logger) *Recognizer {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	if cfg.Prompt == "" {
		cfg.Prompt = invoice.DefaultExtractionPrompt
	}
	return &Recognizer{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Recognizer) client(apiKey string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if r.cfg.BaseURL != "" {
		config.BaseURL = r.cfg.BaseURL
	}
	return openai.NewClientWithConfig(config)
}

// Recognize sends one image and maps the recovered JSON to canonical fields
func (r *Recognizer) Recognize(ctx context.Context, req port.VisionRequest) (*port.Recognition, error) {
	apiKey := req.APIKey
	if apiKey == "" {
		apiKey = r.cfg.APIKey
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, entity.ErrMissingAPIKey
	}

	model := req.Model
	if model == "" {
		model = r.cfg.Model
	}

	image, err := document.Preprocess(req.Image)
	if err != nil {
		return nil, err
	}

	resp, err := r.client(apiKey).CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: r.cfg.Prompt,
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) &&
			(apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden) {
			return nil, fmt.Errorf("%w: %s", entity.ErrUnauthorized, apiErr.Message)
		}
		r.logger.Error("OpenAI vision call failed", zap.String("file_name", req.FileName), zap.Error(err))
		return nil, fmt.Errorf("openai vision call failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai vision call failed: no choices in response")
	}

	content := resp.Choices[0].Message.Content
	obj, ok := invoice.ExtractJSON(content)
	if !ok {
		r.logger.Warn("Failed to recover JSON from OpenAI response",
			zap.String("file_name", req.FileName),
			zap.Int("content_length", len(content)))
		return nil, fmt.Errorf("openai vision call failed: response contains no JSON object")
	}

	r.logger.Info("Invoice recognized",
		zap.String("file_name", req.FileName),
		zap.String("model", model))

	return &port.Recognition{
		Fields:  invoice.MapFields(obj),
		Version: "chat/completions",
		Model:   model,
	}, nil
}

var _ port.VisionRecognizer = (*Recognizer)(nil)
