// Package http exposes the invoice services over a gin router.
// Handlers translate requests to service calls and never see other owners' data:
// the owner identity always comes from the bearer token.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/garyjia/invoice-vision/internal/application/session"
)

// Logger is the key/value logger handlers write to
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig configures the invoice API listener
type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxUploadBytes int64
}

// DefaultServerConfig listens on :8080 with a 64 MiB upload limit
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   10 * time.Minute,
		MaxUploadBytes: 64 << 20,
	}
}

// Dependencies are the services the handlers call
type Dependencies struct {
	Ingest   Ingestor
	Records  RecordManager
	Accounts AccountService
	Sessions *session.Manager
	Health   HealthReporter
}

// Server serves the invoice API
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Dependencies
	logger     Logger
}

// NewServer builds the router around deps
func NewServer(config ServerConfig, deps Dependencies, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = DefaultServerConfig().MaxUploadBytes
	}

	server := &Server{
		config: config,
		router: gin.New(),
		deps:   deps,
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
	s.router.Use(corsMiddleware())
}

// loggingMiddleware logs one line per request
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"request_id", c.GetString(requestIDKey),
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"owner", c.GetString(ownerKey),
		)
	}
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-Id", id)
		c.Next()
	}
}

// corsMiddleware adds CORS headers for browser front ends
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Vision-Api-Key, X-Request-Id")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func (s *Server) setupRoutes() {
	handlers := NewHandlers(s.deps, s.config.MaxUploadBytes, s.logger)

	s.router.GET("/health", handlers.HealthCheck)

	api := s.router.Group("/api/v1")

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", handlers.Register)
		authGroup.POST("/login", handlers.Login)
		authGroup.POST("/logout", authMiddleware(s.deps.Accounts), handlers.Logout)
	}

	invoices := api.Group("/invoices", authMiddleware(s.deps.Accounts))
	{
		invoices.POST("/uploads", handlers.QueueUploads)
		invoices.POST("/scan", handlers.Scan)
		invoices.GET("", handlers.ListInvoices)
		invoices.PATCH("/:id", handlers.UpdateInvoice)
		invoices.DELETE("", handlers.DeleteInvoices)
		invoices.GET("/export", handlers.ExportInvoices)
		invoices.GET("/summary", handlers.Summary)
		invoices.GET("/held", handlers.HeldInvoices)
	}

	api.PUT("/session/debug", authMiddleware(s.deps.Accounts), handlers.SetDebug)
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop drains in-flight requests for up to 10s
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router exposes the gin engine to tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address is the host:port the server binds
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
