package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/garyjia/invoice-vision/internal/config"
	"github.com/garyjia/invoice-vision/internal/container"
	httpapi "github.com/garyjia/invoice-vision/internal/interfaces/http"
	"github.com/garyjia/invoice-vision/pkg/utils"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env", ".env", "optional secrets file")
	flag.Parse()

	if err := config.LoadEnvFile(*envFile); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load env file: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid server configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting invoice service",
		zap.Int("port", cfg.Server.Port),
		zap.String("vision_provider", cfg.Vision.Provider))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := container.NewContainer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}
	if err := app.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}
	defer app.Close()

	services := app.Services()
	server := httpapi.NewServer(httpapi.ServerConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}, httpapi.Dependencies{
		Ingest:   services.Ingest,
		Records:  services.Records,
		Accounts: services.Auth,
		Sessions: app.Sessions(),
		Health: func(ctx context.Context) (bool, any) {
			status := app.Health(ctx)
			return status.Overall, status.Components
		},
	}, app.ServiceLogger())

	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server stopped with error", zap.Error(err))
		return
	}

	logger.Info("Server exited successfully")
}
