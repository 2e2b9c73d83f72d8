// Package container provides dependency injection and lifecycle management
// for the invoice financing backend following Clean Architecture principles.
package container

import (
	"fmt"
	"time"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	Database  DatabaseConfig
	Queue     QueueConfig
	OpenAI    OpenAIConfig
	OCR       OCRConfig
	Webhook   WebhookConfig
	PandaDoc  PandaDocConfig
	Pennylane PennylaneConfig
	Storage   StorageConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is sqlite, bolt or postgres
	Driver string

	// Path to the SQLite or Bolt database file
	Path string

	// DSN is the Postgres connection string
	DSN string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// QueueConfig holds OCR job queue settings.
type QueueConfig struct {
	// Driver is memory or redis
	Driver   string
	RedisURL string
	Key      string
	// Size bounds the in-memory queue
	Size int
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration

	// PromptsPath overrides the built-in prompts when set
	PromptsPath string
}

// OCRConfig holds OCR pipeline and worker settings.
type OCRConfig struct {
	Tesseract   string
	Lang        string
	TessdataDir string
	DPI         float64
	MaxPages    int

	Workers       int
	JobTimeout    time.Duration
	RetryAttempts int
	RetryBackoff  time.Duration

	PendingDeadline time.Duration
	SweepInterval   time.Duration

	AutoScore bool

	// Embedded starts the worker pool inside this process
	Embedded bool
}

// WebhookConfig holds webhook settings.
type WebhookConfig struct {
	OCRSecret   string
	PandaDocKey string
	CallbackURL string
}

// PandaDocConfig holds PandaDoc API settings.
type PandaDocConfig struct {
	APIKey       string
	BaseURL      string
	Timeout      time.Duration
	PollAttempts int
	PollInterval time.Duration
}

// PennylaneConfig holds Pennylane API settings.
type PennylaneConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// StorageConfig holds document storage settings.
type StorageConfig struct {
	// DocumentDir is the base directory for uploaded PDFs
	DocumentDir string
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          "sqlite",
			Path:            "data/invoices.db",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Queue: QueueConfig{
			Driver: "memory",
			Size:   100,
		},
		OpenAI: OpenAIConfig{
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		OCR: OCRConfig{
			Tesseract:       "tesseract",
			Lang:            "fra+eng",
			DPI:             300,
			MaxPages:        10,
			Workers:         2,
			JobTimeout:      5 * time.Minute,
			RetryAttempts:   2,
			RetryBackoff:    2 * time.Second,
			PendingDeadline: 30 * time.Minute,
			SweepInterval:   time.Minute,
			Embedded:        true,
		},
		PandaDoc: PandaDocConfig{
			Timeout:      30 * time.Second,
			PollAttempts: 10,
			PollInterval: time.Second,
		},
		Pennylane: PennylaneConfig{
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			DocumentDir: "data/documents",
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "bolt":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required")
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	switch c.Queue.Driver {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown queue driver %q", c.Queue.Driver)
	}

	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}

	if c.Storage.DocumentDir == "" {
		return fmt.Errorf("storage.document_dir is required")
	}

	return nil
}
