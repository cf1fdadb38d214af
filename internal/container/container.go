package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/invoice-vision/internal/application/port"
	"github.com/garyjia/invoice-vision/internal/application/service"
	"github.com/garyjia/invoice-vision/internal/application/session"
	"github.com/garyjia/invoice-vision/internal/config"
	"github.com/garyjia/invoice-vision/internal/infrastructure/document"
	"github.com/garyjia/invoice-vision/pkg/database"
	"go.uber.org/zap"
)

// Container owns the store, the vision recognizer and the services built on them.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	db           *DatabaseBundle
	repositories *RepositoryBundle
	recognizer   port.VisionRecognizer
	renderer     *document.PDFRenderer
	sessions     *session.Manager
	services     *ServiceBundle

	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus is reported by /health.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth is one entry of HealthStatus.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer validates cfg. Nothing is opened until Start.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config:   cfg,
		logger:   logger,
		sessions: session.NewManager(),
	}, nil
}

// Start initializes the database, the vision backend and the services.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	db, err := ProvideDatabase(ctx, &c.config.Database, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.db = db
	c.repositories = ProvideRepositories(db.DB, c.logger)
	c.logger.Info("Database initialized", zap.String("path", c.config.Database.Path))

	recognizer, err := ProvideRecognizer(c.config, c.logger)
	if err != nil {
		c.db.DB.Close()
		return fmt.Errorf("failed to initialize vision client: %w", err)
	}
	c.recognizer = recognizer
	c.renderer = ProvideRenderer(&c.config.Document, c.logger)
	c.logger.Info("Vision client initialized", zap.String("provider", c.config.Vision.Provider))

	services, err := ProvideServices(&ServiceDeps{
		Config:     c.config,
		Repos:      c.repositories,
		TxManager:  db.TxManager,
		Recognizer: c.recognizer,
		Sessions:   c.sessions,
		Logger:     c.logger,
	})
	if err != nil {
		c.db.DB.Close()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.services = services

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close releases the database.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Swap(true) {
		return fmt.Errorf("container already closed")
	}
	c.ready.Store(false)

	if c.db != nil {
		if err := c.db.DB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			return fmt.Errorf("close database: %w", err)
		}
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready reports whether Start completed.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health pings the store and reports the vision provider.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	switch {
	case c.db == nil:
		status.Components["database"] = ComponentHealth{Message: "not initialized"}
		status.Overall = false
	default:
		if err := c.db.DB.Ping(ctx); err != nil {
			status.Components["database"] = ComponentHealth{Message: err.Error()}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	}

	if c.recognizer == nil {
		status.Components["vision"] = ComponentHealth{Message: "not initialized"}
		status.Overall = false
	} else {
		vision := ComponentHealth{Healthy: true, Message: c.config.Vision.Provider}
		if c.config.VisionAPIKey() == "" {
			vision.Message += ": no configured API key, requests must supply one"
		}
		status.Components["vision"] = vision
	}

	return status
}

// DB returns the underlying database handle.
func (c *Container) DB() *database.DB {
	if c.db == nil {
		return nil
	}
	return c.db.DB
}

// Repositories returns the tenant-scoped repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Recognizer returns the configured vision backend.
func (c *Container) Recognizer() port.VisionRecognizer {
	return c.recognizer
}

// Renderer returns the document page renderer.
func (c *Container) Renderer() *document.PDFRenderer {
	return c.renderer
}

// Sessions returns the per-user session manager.
func (c *Container) Sessions() *session.Manager {
	return c.sessions
}

// Services returns the ingest, record and auth services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Logger returns the root zap logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// ServiceLogger returns the logger in the key/value form services and
// handlers expect.
func (c *Container) ServiceLogger() service.Logger {
	return &zapLoggerAdapter{logger: c.logger}
}

// Config returns the loaded configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// zapLoggerAdapter feeds key/value service logs into zap.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Warn(msg string, keysAndValues ...interface{}) {
	a.logger.Warn(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields pairs up keysAndValues, dropping non-string keys.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		if err, isErr := keysAndValues[i+1].(error); isErr {
			fields = append(fields, zap.NamedError(key, err))
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
