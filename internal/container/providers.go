package container

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/application/service"
	"github.com/garyjia/invoice-financing/internal/infrastructure/export"
	"github.com/garyjia/invoice-financing/internal/infrastructure/external/openai"
	"github.com/garyjia/invoice-financing/internal/infrastructure/external/pandadoc"
	"github.com/garyjia/invoice-financing/internal/infrastructure/external/pennylane"
	"github.com/garyjia/invoice-financing/internal/infrastructure/persistence/boltstore"
	"github.com/garyjia/invoice-financing/internal/infrastructure/persistence/postgres"
	"github.com/garyjia/invoice-financing/internal/infrastructure/persistence/repository"
	"github.com/garyjia/invoice-financing/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/invoice-financing/internal/infrastructure/queue"
	"github.com/garyjia/invoice-financing/internal/infrastructure/storage"
	"github.com/garyjia/invoice-financing/internal/infrastructure/worker"
	"github.com/garyjia/invoice-financing/internal/ocr"
	"github.com/garyjia/invoice-financing/migrations"
	"github.com/garyjia/invoice-financing/pkg/database"
)

// StoreBundle holds the invoice and user stores of the configured driver.
type StoreBundle struct {
	Invoices port.InvoiceRepository
	Users    port.UserRepository

	ping  func(ctx context.Context) error
	close func() error
}

// Ping checks the underlying database
func (b *StoreBundle) Ping(ctx context.Context) error {
	if b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

// Close releases the underlying database
func (b *StoreBundle) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// OCRBundle holds the oracle-backed components.
type OCRBundle struct {
	Oracle   port.Oracle
	Pipeline *ocr.Pipeline
	Scorer   port.Scorer
}

// IntegrationBundle holds the outbound business integrations.
type IntegrationBundle struct {
	Accounting port.AccountingClient
	Signature  port.SignatureClient
	Exporter   port.InvoiceExporter
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Reconciler service.Reconciler
	Invoices   service.InvoiceService
	Users      service.UserService
}

// ProvideStores opens the configured database and returns its stores.
// SQLite and Postgres schemas are migrated on open.
func ProvideStores(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*StoreBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	switch cfg.Driver {
	case "sqlite":
		db, err := database.New(database.Config{
			Path:            cfg.Path,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := database.NewMigrator(db, logger).Run(migrations.SQLite()); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		tx := sqlite.NewDB(db.DB, logger)
		return &StoreBundle{
			Invoices: repository.NewInvoiceRepository(tx, logger),
			Users:    repository.NewUserRepository(tx, logger),
			ping:     db.PingContext,
			close:    db.Close,
		}, nil

	case "bolt":
		db, err := boltstore.Open(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return &StoreBundle{
			Invoices: boltstore.NewInvoiceStore(db),
			Users:    boltstore.NewUserStore(db),
			close:    db.Close,
		}, nil

	case "postgres":
		pool, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.DSN,
			MaxConns:        int32(cfg.MaxOpenConns),
			MinConns:        int32(cfg.MaxIdleConns),
			MaxConnLifetime: cfg.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
		return &StoreBundle{
			Invoices: postgres.NewInvoiceStore(pool, logger),
			Users:    postgres.NewUserStore(pool),
			ping:     pool.Ping,
			close: func() error {
				pool.Close()
				return nil
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// ProvideQueue creates the OCR job queue.
func ProvideQueue(ctx context.Context, cfg *QueueConfig, logger *zap.Logger) (port.JobQueue, error) {
	switch cfg.Driver {
	case "memory":
		return queue.NewMemoryQueue(cfg.Size), nil
	case "redis":
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse redis url: %w", err)
		}
		rdb := redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		logger.Info("Redis queue connected", zap.String("addr", opts.Addr), zap.String("key", cfg.Key))
		return queue.NewRedisQueue(rdb, cfg.Key, logger), nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Driver)
	}
}

// ProvideDocumentStorage creates the local document store.
func ProvideDocumentStorage(cfg *StorageConfig, logger *zap.Logger) (port.DocumentStorage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("storage config is required")
	}
	return storage.NewDocumentStore(cfg.DocumentDir, logger)
}

// ProvideOCR creates the oracle, the OCR pipeline and the scorer.
func ProvideOCR(openaiCfg *OpenAIConfig, ocrCfg *OCRConfig, logger *zap.Logger) (*OCRBundle, error) {
	if openaiCfg == nil || ocrCfg == nil {
		return nil, fmt.Errorf("openai and ocr config are required")
	}

	prompts := openai.DefaultPrompts()
	if openaiCfg.PromptsPath != "" {
		loaded, err := openai.LoadPrompts(openaiCfg.PromptsPath)
		if err != nil {
			return nil, err
		}
		prompts = loaded
	}

	oracle := openai.NewOracle(openaiCfg.APIKey, openaiCfg.BaseURL, openaiCfg.Model, logger)

	text := ocr.NewPDFTextExtractor(ocr.TextConfig{
		Tesseract:   ocrCfg.Tesseract,
		Lang:        ocrCfg.Lang,
		TessdataDir: ocrCfg.TessdataDir,
		DPI:         ocrCfg.DPI,
		MaxPages:    ocrCfg.MaxPages,
	}, ocr.NewExecRunner(logger), logger)
	classifier := ocr.NewOracleClassifier(oracle, prompts.Classification, openaiCfg.Timeout, logger)
	fields := ocr.NewOracleFieldExtractor(oracle, prompts.Extraction, openaiCfg.Timeout, logger)

	pipeline := ocr.NewPipeline(text, classifier, fields, ocr.RetryPolicy{
		MaxAttempts: ocrCfg.RetryAttempts,
		Backoff:     ocrCfg.RetryBackoff,
	}, logger)

	return &OCRBundle{
		Oracle:   oracle,
		Pipeline: pipeline,
		Scorer:   openai.NewScorer(oracle, prompts.Scoring, logger),
	}, nil
}

// ProvideIntegrations creates the Pennylane, PandaDoc and export adapters.
func ProvideIntegrations(cfg *Config, logger *zap.Logger) *IntegrationBundle {
	return &IntegrationBundle{
		Accounting: pennylane.NewClient(cfg.Pennylane.BaseURL, cfg.Pennylane.APIKey, cfg.Pennylane.Timeout, logger),
		Signature: pandadoc.NewClient(pandadoc.Config{
			BaseURL:      cfg.PandaDoc.BaseURL,
			APIKey:       cfg.PandaDoc.APIKey,
			Timeout:      cfg.PandaDoc.Timeout,
			PollAttempts: cfg.PandaDoc.PollAttempts,
			PollInterval: cfg.PandaDoc.PollInterval,
		}, logger),
		Exporter: export.NewExcelExporter(logger),
	}
}

// ServiceDeps holds dependencies for creating services.
type ServiceDeps struct {
	Stores       *StoreBundle
	Documents    port.DocumentStorage
	Jobs         port.JobQueue
	OCR          *OCRBundle
	Integrations *IntegrationBundle
	AutoScore    bool
	Logger       *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Stores == nil || deps.OCR == nil || deps.Integrations == nil {
		return nil, fmt.Errorf("service dependencies are incomplete")
	}

	logger := &zapLoggerAdapter{logger: deps.Logger}
	reconciler := service.NewReconciler(deps.Stores.Invoices, deps.Stores.Users, logger)

	invoices := service.NewInvoiceService(service.InvoiceServiceDeps{
		Invoices:   deps.Stores.Invoices,
		Users:      deps.Stores.Users,
		Reconciler: reconciler,
		Documents:  deps.Documents,
		Jobs:       deps.Jobs,
		OCR:        deps.OCR.Pipeline,
		Scorer:     deps.OCR.Scorer,
		Accounting: deps.Integrations.Accounting,
		Signature:  deps.Integrations.Signature,
		Exporter:   deps.Integrations.Exporter,
		Logger:     logger,
	}, service.InvoiceServiceOptions{AutoScore: deps.AutoScore})

	return &ServiceBundle{
		Reconciler: reconciler,
		Invoices:   invoices,
		Users:      service.NewUserService(deps.Stores.Users, logger),
	}, nil
}

// WorkerDeps holds dependencies for creating workers.
type WorkerDeps struct {
	Jobs      port.JobQueue
	Documents port.DocumentStorage
	// Runner is nil when OCR runs in separate worker processes
	Runner   port.OCRRunner
	Outcomes port.OutcomeHandler

	// Expirer is nil in processes that do not own the invoice store
	Expirer worker.PendingExpirer
	Config  *OCRConfig
	Logger  *zap.Logger
}

// ProvideWorkers creates the OCR worker pool when a runner is given and the
// pending sweeper when an expirer is given.
func ProvideWorkers(deps *WorkerDeps) (*worker.WorkerManager, error) {
	if deps == nil || deps.Config == nil {
		return nil, fmt.Errorf("worker dependencies are incomplete")
	}

	manager := worker.NewWorkerManager(deps.Logger)
	if deps.Runner != nil {
		manager.Register(worker.NewOCRWorkerPool(worker.OCRPoolConfig{
			Workers:    deps.Config.Workers,
			JobTimeout: deps.Config.JobTimeout,
		}, deps.Jobs, deps.Documents, deps.Runner, deps.Outcomes, deps.Logger))
	}

	if deps.Expirer != nil && deps.Config.PendingDeadline > 0 {
		manager.Register(worker.NewPendingSweeper(worker.SweeperConfig{
			Interval: deps.Config.SweepInterval,
			Deadline: deps.Config.PendingDeadline,
		}, deps.Expirer, deps.Logger))
	}

	return manager, nil
}
