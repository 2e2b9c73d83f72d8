package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/config"
	"github.com/garyjia/invoice-financing/internal/container"
	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
)

// Runs the OCR pipeline on a local PDF, without database or queue, and prints
// the outcome the worker pool would deliver.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	pdfPath := flag.String("pdf", "", "Path to the PDF to analyse")
	apiKey := flag.String("key", "", "OpenAI API key (or set OPENAI_API_KEY env var)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall timeout")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	var logger *zap.Logger
	var err error
	if *verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger = zap.NewNop()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if *pdfPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: ocr-check --pdf invoice.pdf [--config <path>] [--key sk-...] [--timeout 5m]\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *apiKey != "" {
		cfg.OpenAI.APIKey = *apiKey
	}
	if cfg.OpenAI.APIKey == "" {
		fmt.Fprintf(os.Stderr, "ERROR: OPENAI_API_KEY not set and no --key flag provided\n")
		os.Exit(1)
	}

	document, err := os.ReadFile(*pdfPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to read %s: %v\n", *pdfPath, err)
		os.Exit(1)
	}

	fmt.Println("=== OCR Pipeline Check ===")
	fmt.Printf("  Document: %s (%d bytes)\n", *pdfPath, len(document))
	fmt.Printf("  Model: %s\n", cfg.OpenAI.Model)
	fmt.Printf("  Tesseract: %s (%s)\n", cfg.OCR.Tesseract, cfg.OCR.Lang)
	fmt.Println()

	containerCfg := cfg.ToContainerConfig()
	bundle, err := container.ProvideOCR(&containerCfg.OpenAI, &containerCfg.OCR, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: Failed to build OCR pipeline: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	start := time.Now()
	outcome := bundle.Pipeline.Run(ctx, "local-check", document)
	fmt.Printf("Finished in %v\n\n", time.Since(start).Round(time.Millisecond))

	out, _ := json.MarshalIndent(outcome, "", "  ")
	fmt.Println(string(out))

	if outcome.Status != lifecycle.StatusOCRCompleted {
		fmt.Fprintf(os.Stderr, "\n❌ OCR failed: %s\n", outcome.Error)
		os.Exit(1)
	}
	fmt.Println("\n✅ OCR completed")
}
