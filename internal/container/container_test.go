package container

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/infrastructure/queue"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()

	cfg := DefaultConfig()
	cfg.Database.Driver = "bolt"
	cfg.Database.Path = filepath.Join(dir, "invoices.bolt")
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.BaseURL = "http://127.0.0.1:1"
	cfg.Storage.DocumentDir = filepath.Join(dir, "documents")
	cfg.OCR.Workers = 1
	return cfg
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(DefaultConfig(), nil)
	assert.Error(t, err)

	// default config has no API key
	_, err = NewContainer(DefaultConfig(), zap.NewNop())
	assert.ErrorContains(t, err, "openai.api_key")
}

func TestContainer_StartHealthClose(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)
	assert.False(t, c.Ready())

	require.NoError(t, c.Start(context.Background()))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(context.Background()), "second start")

	require.NotNil(t, c.Services())
	require.NotNil(t, c.Stores())
	require.NotNil(t, c.Jobs())
	require.NotNil(t, c.Documents())
	require.NotNil(t, c.OCR())

	// pool and sweeper
	assert.Equal(t, 2, c.Workers().GetWorkerCount())

	health := c.Health(context.Background())
	assert.True(t, health.Overall)
	assert.True(t, health.Components["database"].Healthy)
	assert.True(t, health.Components["workers"].Healthy)

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(context.Background()))
}

func TestContainer_HealthBeforeStart(t *testing.T) {
	c, err := NewContainer(testConfig(t), zap.NewNop())
	require.NoError(t, err)

	health := c.Health(context.Background())
	assert.False(t, health.Overall)
	assert.Equal(t, "not initialized", health.Components["database"].Message)
}

type nopRunner struct{}

func (nopRunner) Run(_ context.Context, id string, _ []byte) entity.OCROutcome {
	return entity.OCROutcome{InvoiceID: id}
}

type nopOutcomes struct{}

func (nopOutcomes) CompleteOCR(context.Context, entity.OCROutcome) error { return nil }

type nopExpirer struct{}

func (nopExpirer) ExpirePending(context.Context, time.Time) (int, error) { return 0, nil }

func TestProvideWorkers(t *testing.T) {
	cfg := DefaultConfig().OCR
	jobs := queue.NewMemoryQueue(1)

	tests := []struct {
		name    string
		runner  port.OCRRunner
		expirer bool
		want    int
	}{
		{"nothing to run", nil, false, 0},
		{"sweeper only", nil, true, 1},
		{"pool only", nopRunner{}, false, 1},
		{"pool and sweeper", nopRunner{}, true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := &WorkerDeps{
				Jobs:     jobs,
				Runner:   tt.runner,
				Outcomes: nopOutcomes{},
				Config:   &cfg,
				Logger:   zap.NewNop(),
			}
			if tt.expirer {
				deps.Expirer = nopExpirer{}
			}
			manager, err := ProvideWorkers(deps)
			require.NoError(t, err)
			assert.Equal(t, tt.want, manager.GetWorkerCount())
		})
	}

	_, err := ProvideWorkers(&WorkerDeps{})
	assert.Error(t, err)
}

func TestProvideStores_UnknownDriver(t *testing.T) {
	_, err := ProvideStores(context.Background(), &DatabaseConfig{Driver: "mongo"}, zap.NewNop())
	assert.ErrorContains(t, err, "mongo")
}

func TestServiceLogger_Fields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := ServiceLogger(zap.New(core))

	logger.Warn("ocr failed", "invoice_id", "inv-1", "error", errors.New("boom"), 42, "ignored", "dangling")

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)

	fields := entries[0].ContextMap()
	assert.Equal(t, "inv-1", fields["invoice_id"])
	assert.Equal(t, "boom", fields["error"])
	assert.Len(t, fields, 2)
}
