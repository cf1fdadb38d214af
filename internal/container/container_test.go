package container

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/garyjia/invoice-vision/internal/config"
	"github.com/garyjia/invoice-vision/internal/infrastructure/external/gemini"
	"github.com/garyjia/invoice-vision/internal/infrastructure/external/openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "invoices.db"), MaxOpenConns: 1},
		Vision: config.VisionConfig{
			Provider:    config.ProviderGemini,
			APIKey:      "test-key",
			APIVersions: []string{"v1beta", "v1"},
			Timeout:     time.Second,
		},
		Auth:     config.AuthConfig{JWTSecret: "0123456789abcdef", TokenTTL: time.Hour, BcryptCost: 4},
		Document: config.DocumentConfig{DPI: 100, MaxPages: 2},
	}
}

func TestContainer_Lifecycle(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	require.NoError(t, c.Start(ctx))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(ctx))

	assert.IsType(t, &gemini.Client{}, c.Recognizer())
	require.NotNil(t, c.Services())
	assert.NotNil(t, c.Services().Ingest)
	assert.NotNil(t, c.Services().Records)
	assert.NotNil(t, c.Services().Auth)
	assert.NotNil(t, c.Renderer())

	health := c.Health(ctx)
	assert.True(t, health.Overall)
	assert.True(t, health.Components["database"].Healthy)

	// accounts round-trip through the migrated database
	_, err = c.Services().Auth.Register(ctx, "alice", "long password")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
}

func TestNewContainer_Rejects(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Vision.Provider = "azure"
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestProvideRecognizer_OpenAI(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vision.Provider = config.ProviderOpenAI
	cfg.OpenAI = config.OpenAIConfig{APIKey: "sk-test", Model: "gpt-4o", MaxTokens: 512}

	rec, err := ProvideRecognizer(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &openai.Recognizer{}, rec)
}

func TestProvideRecognizer_MissingPromptFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.Vision.PromptsPath = filepath.Join(t.TempDir(), "absent.yaml")
	_, err := ProvideRecognizer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestZapLoggerAdapter(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	adapter := &zapLoggerAdapter{logger: zap.New(core)}

	adapter.Warn("Recognition failed", "file_name", "a.jpg", "error", errors.New("boom"), 42, "dropped", "dangling")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	fields := entry.ContextMap()
	assert.Equal(t, "a.jpg", fields["file_name"])
	assert.Equal(t, "boom", fields["error"])
	assert.Len(t, fields, 2)
}
