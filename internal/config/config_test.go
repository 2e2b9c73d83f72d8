package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func setSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("OCR_WEBHOOK_SECRET", "hook")
	t.Setenv("JWT_SECRET", "jwt")
}

func TestLoad_DefaultsAndEnv(t *testing.T) {
	setSecrets(t)
	path := writeConfig(t, `
server:
  port: 9090
ocr:
  workers: 4
  auto_score: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxBodyBytes)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "memory", cfg.Queue.Driver)
	assert.Equal(t, 4, cfg.OCR.Workers)
	assert.True(t, cfg.OCR.AutoScore)
	assert.Equal(t, 30*time.Minute, cfg.OCR.PendingDeadline)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, "hook", cfg.Webhook.OCRSecret)
	assert.Equal(t, "jwt", cfg.Auth.JWTSecret)
	assert.Empty(t, cfg.CORS.AllowedOrigins)
	assert.NoError(t, cfg.ValidateServer())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	setSecrets(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	setSecrets(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/db")
	path := writeConfig(t, `
database:
  driver: postgres
  dsn: postgres://file/db
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost/db", cfg.Database.DSN)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{Driver: "sqlite", Path: "x.db"},
			Queue:    QueueConfig{Driver: "memory"},
			OpenAI:   OpenAIConfig{APIKey: "k"},
			Webhook:  WebhookConfig{OCRSecret: "s", CallbackURL: "http://localhost/webhooks/ocr/result"},
			Auth:     AuthConfig{JWTSecret: "j"},
			Server:   ServerConfig{MaxBodyBytes: 1},
			OCR:      OCRConfig{Workers: 1, Embedded: true, JobTimeout: time.Minute, PendingDeadline: time.Hour},
			Storage:  StorageConfig{DocumentDir: "docs"},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"valid", func(*Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mongo" }, "database.driver"},
		{"postgres without dsn", func(c *Config) { c.Database.Driver = "postgres" }, "database.dsn"},
		{"redis without url", func(c *Config) { c.Queue.Driver = "redis" }, "queue.redis_url"},
		{"memory queue without embedded pool", func(c *Config) { c.OCR.Embedded = false }, "ocr.embedded"},
		{"missing openai key", func(c *Config) { c.OpenAI.APIKey = "" }, "openai.api_key"},
		{"missing webhook secret", func(c *Config) { c.Webhook.OCRSecret = "" }, "webhook.ocr_secret"},
		{"deadline shorter than job", func(c *Config) { c.OCR.PendingDeadline = time.Second }, "pending_deadline"},
		{"no workers", func(c *Config) { c.OCR.Workers = 0 }, "ocr.workers"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	cfg := valid()
	cfg.Auth.JWTSecret = ""
	assert.ErrorContains(t, cfg.ValidateServer(), "auth.jwt_secret")

	cfg = valid()
	assert.ErrorContains(t, cfg.ValidateWorker(), "redis")
	cfg.Queue = QueueConfig{Driver: "redis", RedisURL: "redis://localhost:6379/0"}
	assert.NoError(t, cfg.ValidateWorker())
}
