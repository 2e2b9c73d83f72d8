package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/config"
	"github.com/garyjia/invoice-financing/internal/container"
	httpserver "github.com/garyjia/invoice-financing/internal/interfaces/http"
	"github.com/garyjia/invoice-financing/internal/webhook"
	"github.com/garyjia/invoice-financing/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.ValidateServer(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "api",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting invoice financing backend",
		zap.String("version", "1.0.0"),
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Driver),
		zap.String("queue", cfg.Queue.Driver),
		zap.Bool("embedded_ocr", cfg.OCR.Embedded))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize container
	c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
	if err != nil {
		logger.Fatal("Failed to create container", zap.Error(err))
	}
	if err := c.Start(ctx); err != nil {
		logger.Fatal("Failed to start container", zap.Error(err))
	}
	defer func() {
		if err := c.Close(); err != nil {
			logger.Error("Container shutdown error", zap.Error(err))
		}
	}()

	services := c.Services()

	// Initialize webhook handler
	verifier := webhook.NewVerifier(cfg.Webhook.OCRSecret, cfg.Webhook.PandaDocKey, logger)
	webhooks := webhook.NewHandler(verifier, services.Invoices, services.Invoices, logger)

	serverCfg := httpserver.DefaultServerConfig()
	serverCfg.Host = cfg.Server.Host
	serverCfg.Port = cfg.Server.Port
	serverCfg.ReadTimeout = cfg.Server.ReadTimeout
	serverCfg.WriteTimeout = cfg.Server.WriteTimeout
	serverCfg.MaxBodyBytes = cfg.Server.MaxBodyBytes
	if len(cfg.CORS.AllowedOrigins) > 0 {
		serverCfg.AllowedOrigins = cfg.CORS.AllowedOrigins
	}
	serverCfg.Auth = httpserver.AuthConfig{
		Secret:   cfg.Auth.JWTSecret,
		Audience: cfg.Auth.Audience,
	}

	server := httpserver.NewServer(serverCfg, services.Invoices, services.Users, webhooks, container.ServiceLogger(logger))

	// Blocks until SIGINT/SIGTERM
	if err := server.Start(ctx); err != nil {
		logger.Error("HTTP server stopped with error", zap.Error(err))
	}

	logger.Info("Server exited")
}
