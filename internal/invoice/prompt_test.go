package invoice

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadPrompts(t *testing.T) {
	t.Run("empty path keeps defaults", func(t *testing.T) {
		p, err := LoadPrompts("")
		require.NoError(t, err)
		assert.Equal(t, DefaultExtractionPrompt, p.InvoiceExtraction.Prompt)
		assert.Equal(t, 1024, p.InvoiceExtraction.MaxOutputTokens)
	})

	t.Run("partial override", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompts.yaml")
		require.NoError(t, os.WriteFile(path, []byte("invoice_extraction:\n  temperature: 0.4\n"), 0o600))

		p, err := LoadPrompts(path)
		require.NoError(t, err)
		assert.InDelta(t, 0.4, p.InvoiceExtraction.Temperature, 1e-6)
		assert.Equal(t, 1024, p.InvoiceExtraction.MaxOutputTokens)
		assert.Equal(t, DefaultExtractionPrompt, p.InvoiceExtraction.Prompt)
	})

	t.Run("custom prompt", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "prompts.yaml")
		require.NoError(t, os.WriteFile(path, []byte("invoice_extraction:\n  prompt: |\n    Read the receipt.\n"), 0o600))

		p, err := LoadPrompts(path)
		require.NoError(t, err)
		assert.Equal(t, "Read the receipt.\n", p.InvoiceExtraction.Prompt)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := LoadPrompts(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.Error(t, err)

		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("invoice_extraction: [unterminated"), 0o600))
		_, err = LoadPrompts(path)
		assert.Error(t, err)
	})
}
