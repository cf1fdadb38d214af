// Package container wires the invoice pipeline's components from configuration
// and owns their lifecycle.
package container

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/invoice-vision/internal/application/port"
	"github.com/garyjia/invoice-vision/internal/application/service"
	"github.com/garyjia/invoice-vision/internal/application/session"
	"github.com/garyjia/invoice-vision/internal/config"
	"github.com/garyjia/invoice-vision/internal/infrastructure/document"
	"github.com/garyjia/invoice-vision/internal/infrastructure/export"
	"github.com/garyjia/invoice-vision/internal/infrastructure/external/gemini"
	"github.com/garyjia/invoice-vision/internal/infrastructure/external/openai"
	"github.com/garyjia/invoice-vision/internal/infrastructure/persistence/repository"
	"github.com/garyjia/invoice-vision/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/invoice-vision/internal/invoice"
	"github.com/garyjia/invoice-vision/pkg/auth"
	"github.com/garyjia/invoice-vision/pkg/database"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB        *database.DB
	TxManager *sqlite.TxManager
}

// RepositoryBundle groups all repositories.
type RepositoryBundle struct {
	Invoice port.InvoiceRepository
	User    port.UserRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Ingest  *service.IngestService
	Records *service.RecordService
	Auth    *service.AuthService
}

// ServiceDeps holds the dependencies for ProvideServices.
type ServiceDeps struct {
	Config     *config.Config
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Recognizer port.VisionRecognizer
	Sessions   *session.Manager
	Logger     *zap.Logger
}

// ProvideDatabase opens the database and applies pending migrations.
func ProvideDatabase(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).RunMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:        db,
		TxManager: sqlite.NewTxManager(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories on top of db.
func ProvideRepositories(db *database.DB, logger *zap.Logger) *RepositoryBundle {
	return &RepositoryBundle{
		Invoice: repository.NewInvoiceRepository(db.DB, logger),
		User:    repository.NewUserRepository(db.DB, logger),
	}
}

// ProvideRecognizer builds the vision backend selected by vision.provider.
// A prompt file, when configured, replaces the built-in extraction prompt.
func ProvideRecognizer(cfg *config.Config, logger *zap.Logger) (port.VisionRecognizer, error) {
	prompts, err := invoice.LoadPrompts(cfg.Vision.PromptsPath)
	if err != nil {
		return nil, err
	}
	extraction := prompts.InvoiceExtraction

	switch cfg.Vision.Provider {
	case config.ProviderOpenAI:
		maxTokens := cfg.OpenAI.MaxTokens
		if extraction.MaxOutputTokens > 0 {
			maxTokens = extraction.MaxOutputTokens
		}
		return openai.NewRecognizer(openai.Config{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			Temperature: extraction.Temperature,
			MaxTokens:   maxTokens,
			Prompt:      extraction.Prompt,
		}, logger), nil
	case config.ProviderGemini:
		return gemini.NewClient(gemini.Config{
			BaseURL:         cfg.Vision.BaseURL,
			APIKey:          cfg.Vision.APIKey,
			Model:           cfg.Vision.Model,
			APIVersions:     cfg.Vision.APIVersions,
			Timeout:         cfg.Vision.Timeout,
			MaxRetries:      cfg.Vision.MaxRetries,
			RetryBackoff:    cfg.Vision.RetryBackoff,
			Temperature:     extraction.Temperature,
			MaxOutputTokens: extraction.MaxOutputTokens,
			Prompt:          extraction.Prompt,
		}, logger), nil
	default:
		return nil, fmt.Errorf("unknown vision provider %q", cfg.Vision.Provider)
	}
}

// ProvideRenderer creates the document page renderer used by batch imports.
func ProvideRenderer(cfg *config.DocumentConfig, logger *zap.Logger) *document.PDFRenderer {
	return document.NewPDFRenderer(cfg.DPI, cfg.MaxPages, logger)
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Config == nil || deps.Repos == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}

	serviceLogger := &zapLoggerAdapter{logger: deps.Logger}
	normalizer := invoice.NewNormalizer(time.Now)
	cfg := deps.Config

	tokenTTL := cfg.Auth.TokenTTL
	if tokenTTL <= 0 {
		tokenTTL = 12 * time.Hour
	}

	return &ServiceBundle{
		Ingest: service.NewIngestService(
			deps.Recognizer,
			deps.Repos.Invoice,
			normalizer,
			service.IngestConfig{
				APIKey:            cfg.VisionAPIKey(),
				MaxReportedErrors: cfg.Ingest.MaxReportedErrors,
			},
			serviceLogger,
		),
		Records: service.NewRecordService(
			deps.Repos.Invoice,
			deps.TxManager,
			normalizer,
			deps.Sessions,
			export.Formats(),
			serviceLogger,
		),
		Auth: service.NewAuthService(
			deps.Repos.User,
			auth.NewTokenManager(cfg.Auth.JWTSecret, tokenTTL),
			cfg.Auth.BcryptCost,
			serviceLogger,
		),
	}, nil
}
