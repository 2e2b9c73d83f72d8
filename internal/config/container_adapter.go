package config

import (
	"github.com/garyjia/invoice-financing/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			DSN:             c.Database.DSN,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
		},
		Queue: container.QueueConfig{
			Driver:   c.Queue.Driver,
			RedisURL: c.Queue.RedisURL,
			Key:      c.Queue.Key,
			Size:     c.OCR.QueueSize,
		},
		OpenAI: container.OpenAIConfig{
			APIKey:      c.OpenAI.APIKey,
			BaseURL:     c.OpenAI.BaseURL,
			Model:       c.OpenAI.Model,
			Timeout:     c.OpenAI.Timeout,
			PromptsPath: c.OpenAI.PromptsPath,
		},
		OCR: container.OCRConfig{
			Tesseract:       c.OCR.Tesseract,
			Lang:            c.OCR.Lang,
			TessdataDir:     c.OCR.TessdataDir,
			DPI:             c.OCR.DPI,
			MaxPages:        c.OCR.MaxPages,
			Workers:         c.OCR.Workers,
			JobTimeout:      c.OCR.JobTimeout,
			RetryAttempts:   c.OCR.RetryAttempts,
			RetryBackoff:    c.OCR.RetryBackoff,
			PendingDeadline: c.OCR.PendingDeadline,
			SweepInterval:   c.OCR.SweepInterval,
			AutoScore:       c.OCR.AutoScore,
			Embedded:        c.OCR.Embedded,
		},
		Webhook: container.WebhookConfig{
			OCRSecret:   c.Webhook.OCRSecret,
			PandaDocKey: c.Webhook.PandaDocKey,
			CallbackURL: c.Webhook.CallbackURL,
		},
		PandaDoc: container.PandaDocConfig{
			APIKey:       c.PandaDoc.APIKey,
			BaseURL:      c.PandaDoc.BaseURL,
			Timeout:      c.PandaDoc.Timeout,
			PollAttempts: c.PandaDoc.PollAttempts,
			PollInterval: c.PandaDoc.PollInterval,
		},
		Pennylane: container.PennylaneConfig{
			APIKey:  c.Pennylane.APIKey,
			BaseURL: c.Pennylane.BaseURL,
			Timeout: c.Pennylane.Timeout,
		},
		Storage: container.StorageConfig{
			DocumentDir: c.Storage.DocumentDir,
		},
	}
}
