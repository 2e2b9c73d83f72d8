package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	OCR       OCRConfig       `mapstructure:"ocr"`
	Webhook   WebhookConfig   `mapstructure:"webhook"`
	Auth      AuthConfig      `mapstructure:"auth"`
	CORS      CORSConfig      `mapstructure:"cors"`
	PandaDoc  PandaDocConfig  `mapstructure:"pandadoc"`
	Pennylane PennylaneConfig `mapstructure:"pennylane"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Logger    LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite, bolt or postgres
	Path            string        `mapstructure:"path"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Timeout     time.Duration `mapstructure:"timeout"`
	PromptsPath string        `mapstructure:"prompts_path"`
}

// OCRConfig holds the OCR pipeline and worker configuration
type OCRConfig struct {
	Tesseract       string        `mapstructure:"tesseract"`
	Lang            string        `mapstructure:"lang"`
	TessdataDir     string        `mapstructure:"tessdata_dir"`
	DPI             float64       `mapstructure:"dpi"`
	MaxPages        int           `mapstructure:"max_pages"`
	JobTimeout      time.Duration `mapstructure:"job_timeout"`
	Workers         int           `mapstructure:"workers"`
	QueueSize       int           `mapstructure:"queue_size"`
	PendingDeadline time.Duration `mapstructure:"pending_deadline"`
	SweepInterval   time.Duration `mapstructure:"sweep_interval"`
	RetryAttempts   int           `mapstructure:"retry_attempts"`
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	AutoScore       bool          `mapstructure:"auto_score"`
	// Embedded runs the worker pool inside the API process
	Embedded bool `mapstructure:"embedded"`
}

// WebhookConfig holds webhook secrets
type WebhookConfig struct {
	OCRSecret   string `mapstructure:"ocr_secret"`
	PandaDocKey string `mapstructure:"pandadoc_key"`
	// CallbackURL is where standalone OCR workers post results
	CallbackURL string `mapstructure:"callback_url"`
}

// AuthConfig holds bearer token settings
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Audience  string `mapstructure:"audience"`
}

// CORSConfig holds CORS settings
type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// PandaDocConfig holds PandaDoc API configuration
type PandaDocConfig struct {
	APIKey       string        `mapstructure:"api_key"`
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PollAttempts int           `mapstructure:"poll_attempts"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// PennylaneConfig holds Pennylane API configuration
type PennylaneConfig struct {
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// QueueConfig selects the OCR job queue
type QueueConfig struct {
	Driver   string `mapstructure:"driver"` // memory or redis
	RedisURL string `mapstructure:"redis_url"`
	Key      string `mapstructure:"key"`
}

// StorageConfig holds document storage configuration
type StorageConfig struct {
	DocumentDir string `mapstructure:"document_dir"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load loads configuration from .env, the config file and environment
// variables, in increasing priority. A missing config file is not an error.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)
	v.SetDefault("server.max_body_bytes", 10<<20)

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "data/invoices.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout", 60*time.Second)

	v.SetDefault("ocr.tesseract", "tesseract")
	v.SetDefault("ocr.lang", "fra+eng")
	v.SetDefault("ocr.dpi", 300)
	v.SetDefault("ocr.max_pages", 10)
	v.SetDefault("ocr.job_timeout", 5*time.Minute)
	v.SetDefault("ocr.workers", 2)
	v.SetDefault("ocr.queue_size", 100)
	v.SetDefault("ocr.pending_deadline", 30*time.Minute)
	v.SetDefault("ocr.sweep_interval", time.Minute)
	v.SetDefault("ocr.retry_attempts", 2)
	v.SetDefault("ocr.retry_backoff", 2*time.Second)
	v.SetDefault("ocr.auto_score", false)
	v.SetDefault("ocr.embedded", true)

	v.SetDefault("webhook.callback_url", "http://localhost:8080/webhooks/ocr/result")

	v.SetDefault("auth.audience", "authenticated")

	v.SetDefault("cors.allowed_origins", []string{})

	v.SetDefault("pandadoc.timeout", 30*time.Second)
	v.SetDefault("pandadoc.poll_attempts", 10)
	v.SetDefault("pandadoc.poll_interval", time.Second)

	v.SetDefault("pennylane.timeout", 30*time.Second)

	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.key", "invoice-financing:ocr:jobs")

	v.SetDefault("storage.document_dir", "data/documents")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("webhook.ocr_secret", "OCR_WEBHOOK_SECRET")
	_ = v.BindEnv("webhook.pandadoc_key", "PANDADOC_WEBHOOK_KEY")
	_ = v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	_ = v.BindEnv("pandadoc.api_key", "PANDADOC_API_KEY")
	_ = v.BindEnv("pennylane.api_key", "PENNYLANE_API_KEY")
	_ = v.BindEnv("database.dsn", "DATABASE_URL")
	_ = v.BindEnv("queue.redis_url", "REDIS_URL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "bolt":
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for driver %s", c.Database.Driver)
		}
	case "postgres":
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver postgres")
		}
	default:
		return fmt.Errorf("database.driver must be sqlite, bolt or postgres, got %q", c.Database.Driver)
	}

	switch c.Queue.Driver {
	case "memory":
		if !c.OCR.Embedded {
			return fmt.Errorf("queue.driver memory requires ocr.embedded")
		}
	case "redis":
		if c.Queue.RedisURL == "" {
			return fmt.Errorf("queue.redis_url is required for driver redis")
		}
	default:
		return fmt.Errorf("queue.driver must be memory or redis, got %q", c.Queue.Driver)
	}

	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if c.Webhook.OCRSecret == "" {
		return fmt.Errorf("webhook.ocr_secret is required")
	}
	if c.OCR.Workers < 1 {
		return fmt.Errorf("ocr.workers must be at least 1")
	}
	if c.OCR.PendingDeadline <= c.OCR.JobTimeout {
		return fmt.Errorf("ocr.pending_deadline must exceed ocr.job_timeout")
	}
	if c.Storage.DocumentDir == "" {
		return fmt.Errorf("storage.document_dir is required")
	}

	return nil
}

// ValidateServer adds the checks only the API process needs
func (c *Config) ValidateServer() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Server.MaxBodyBytes <= 0 {
		return fmt.Errorf("server.max_body_bytes must be positive")
	}
	return nil
}

// ValidateWorker adds the checks a standalone OCR worker needs
func (c *Config) ValidateWorker() error {
	if c.Queue.Driver != "redis" {
		return fmt.Errorf("standalone OCR workers require queue.driver redis")
	}
	if c.Webhook.CallbackURL == "" {
		return fmt.Errorf("webhook.callback_url is required")
	}
	return nil
}
