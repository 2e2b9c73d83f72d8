// Command ocr-worker runs the OCR worker pool outside the API process. It
// pulls jobs from the Redis queue, reads documents from the shared document
// directory and posts every outcome to the API's OCR result webhook.
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
	"github.com/garyjia/invoice-financing/internal/webhook"
	"github.com/garyjia/invoice-financing/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	workers := flag.Int("workers", 0, "Override ocr.workers")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *workers > 0 {
		cfg.OCR.Workers = *workers
	}
	if err := cfg.ValidateWorker(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
		Service:    "ocr-worker",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg.ToContainerConfig(), logger); err != nil {
		logger.Fatal("OCR worker failed", zap.Error(err))
	}
	logger.Info("OCR worker exited")
}

func run(ctx context.Context, cfg *container.Config, logger *zap.Logger) error {
	jobs, err := container.ProvideQueue(ctx, &cfg.Queue, logger)
	if err != nil {
		return err
	}
	defer jobs.Close()

	documents, err := container.ProvideDocumentStorage(&cfg.Storage, logger)
	if err != nil {
		return err
	}

	ocr, err := container.ProvideOCR(&cfg.OpenAI, &cfg.OCR, logger)
	if err != nil {
		return err
	}

	notifier := webhook.NewNotifier(cfg.Webhook.CallbackURL, cfg.Webhook.OCRSecret, cfg.OpenAI.Timeout, logger)

	// No expirer: the sweeper runs next to the invoice store
	manager, err := container.ProvideWorkers(&container.WorkerDeps{
		Jobs:      jobs,
		Documents: documents,
		Runner:    ocr.Pipeline,
		Outcomes:  notifier,
		Config:    &cfg.OCR,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	if err := manager.StartAll(ctx); err != nil {
		return fmt.Errorf("failed to start workers: %w", err)
	}
	logger.Info("OCR worker started",
		zap.Int("workers", cfg.OCR.Workers),
		zap.String("callback_url", cfg.Webhook.CallbackURL))

	<-ctx.Done()
	logger.Info("Shutdown requested, draining workers")
	return manager.StopAll()
}
