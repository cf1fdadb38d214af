package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/garyjia/invoice-vision/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, dir string) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for x := 0; x < 20; x++ {
		img.Set(x, x, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(dir, "receipt.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
	return path
}

func writeConfig(t *testing.T, dir, baseURL string) string {
	t.Helper()
	yaml := fmt.Sprintf(`
vision:
  base_url: %q
  max_retries: 0
database:
  path: %q
`, baseURL, filepath.Join(dir, "invoices.db"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	return path
}

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{"-owner", "alice", "-debug", "doc.pdf", "out.xlsx"})
	require.NoError(t, err)
	assert.Equal(t, "alice", opts.owner)
	assert.True(t, opts.debug)
	assert.Equal(t, "doc.pdf", opts.input)
	assert.Equal(t, "out.xlsx", opts.output)

	_, err = parseFlags(nil)
	assert.Error(t, err)
	_, err = parseFlags([]string{"a", "b", "c"})
	assert.Error(t, err)
}

func TestRun_FatalErrors(t *testing.T) {
	dir := t.TempDir()
	input := writePNG(t, dir)
	cfgPath := writeConfig(t, dir, "http://127.0.0.1:0")
	noEnv := filepath.Join(dir, "absent.env")

	t.Run("missing input", func(t *testing.T) {
		err := run(context.Background(), &options{input: filepath.Join(dir, "nope.png"), configPath: cfgPath, envFile: noEnv}, &bytes.Buffer{})
		assert.Error(t, err)
	})

	t.Run("unsupported output", func(t *testing.T) {
		err := run(context.Background(), &options{input: input, output: "out.docx", configPath: cfgPath, envFile: noEnv}, &bytes.Buffer{})
		assert.ErrorContains(t, err, "unsupported output")
	})

	t.Run("missing api key", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		err := run(context.Background(), &options{input: input, configPath: cfgPath, envFile: noEnv}, &bytes.Buffer{})
		assert.ErrorIs(t, err, entity.ErrMissingAPIKey)
	})
}

func TestRun_ProcessesAndExports(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		text := "```json\n{\"date\":\"113/06/06\",\"invoice_number\":\"ZP12345678\",\"seller_name\":\"全家\",\"total\":\"1,050\"}\n```"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []any{map[string]any{"content": map[string]any{"parts": []any{map[string]any{"text": text}}}}},
		})
	}))
	defer srv.Close()

	dir := t.TempDir()
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("INVOICE_DB_PATH", filepath.Join(dir, "invoices.db"))
	output := filepath.Join(dir, "out", "invoices.csv")

	var stdout bytes.Buffer
	err := run(context.Background(), &options{
		input:      writePNG(t, dir),
		output:     output,
		owner:      "cli",
		configPath: writeConfig(t, dir, srv.URL),
		envFile:    filepath.Join(dir, "absent.env"),
	}, &stdout)
	require.NoError(t, err)

	assert.Contains(t, stdout.String(), "ZP12345678")
	assert.Contains(t, stdout.String(), "1 succeeded, 0 failed")

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	assert.Contains(t, string(data), "2024/06/06")

	// the same document again is a duplicate and nothing succeeds
	stdout.Reset()
	err = run(context.Background(), &options{
		input:      filepath.Join(dir, "receipt.png"),
		owner:      "cli",
		configPath: writeConfig(t, dir, srv.URL),
		envFile:    filepath.Join(dir, "absent.env"),
	}, &stdout)
	assert.Error(t, err)
	assert.Contains(t, stdout.String(), "duplicate")
}
