package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/garyjia/invoice-financing/internal/application/port"
	"github.com/garyjia/invoice-financing/internal/domain/entity"
	"github.com/garyjia/invoice-financing/internal/domain/lifecycle"
	"github.com/garyjia/invoice-financing/internal/infrastructure/queue"
)

// OCRPoolConfig holds configuration for the OCR worker pool
type OCRPoolConfig struct {
	Workers        int
	JobTimeout     time.Duration
	DeliverTimeout time.Duration
}

// DefaultOCRPoolConfig returns default configuration
func DefaultOCRPoolConfig() OCRPoolConfig {
	return OCRPoolConfig{
		Workers:        2,
		JobTimeout:     5 * time.Minute,
		DeliverTimeout: 30 * time.Second,
	}
}

// OCRWorkerPool takes jobs off the queue, runs the OCR pipeline and hands
// every outcome to the handler exactly once
type OCRWorkerPool struct {
	config  OCRPoolConfig
	jobs    port.JobQueue
	storage port.DocumentStorage
	runner  port.OCRRunner
	handler port.OutcomeHandler
	logger  *zap.Logger

	mu        sync.Mutex
	cancel    context.CancelFunc
	group     *errgroup.Group
	isRunning bool

	processed atomic.Int64
	failed    atomic.Int64
}

// NewOCRWorkerPool creates a new OCR worker pool
func NewOCRWorkerPool(
	config OCRPoolConfig,
	jobs port.JobQueue,
	storage port.DocumentStorage,
	runner port.OCRRunner,
	handler port.OutcomeHandler,
	logger *zap.Logger,
) *OCRWorkerPool {
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.DeliverTimeout <= 0 {
		config.DeliverTimeout = DefaultOCRPoolConfig().DeliverTimeout
	}
	return &OCRWorkerPool{
		config:  config,
		jobs:    jobs,
		storage: storage,
		runner:  runner,
		handler: handler,
		logger:  logger,
	}
}

// Name returns the worker name for identification
func (p *OCRWorkerPool) Name() string {
	return "OCRWorkerPool"
}

// Start launches the worker goroutines
func (p *OCRWorkerPool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("ocr worker pool already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	for i := 0; i < p.config.Workers; i++ {
		id := i
		g.Go(func() error {
			return p.loop(gctx, id)
		})
	}

	p.cancel = cancel
	p.group = g
	p.isRunning = true

	p.logger.Info("OCRWorkerPool started", zap.Int("workers", p.config.Workers))
	return nil
}

// Stop cancels the workers and waits for in-flight jobs to be delivered
func (p *OCRWorkerPool) Stop() error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	cancel, g := p.cancel, p.group
	p.mu.Unlock()

	cancel()
	err := g.Wait()

	p.logger.Info("OCRWorkerPool stopped",
		zap.Int64("processed_count", p.processed.Load()),
		zap.Int64("failed_count", p.failed.Load()))

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Stats returns the number of delivered and undeliverable jobs
func (p *OCRWorkerPool) Stats() (processed, failed int64) {
	return p.processed.Load(), p.failed.Load()
}

func (p *OCRWorkerPool) loop(ctx context.Context, id int) error {
	for {
		job, err := p.jobs.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, queue.ErrQueueClosed) {
				p.logger.Info("OCR queue closed, worker exiting", zap.Int("worker", id))
				return nil
			}
			p.logger.Error("Failed to dequeue OCR job", zap.Int("worker", id), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		p.process(ctx, job)
	}
}

// process never returns an error: every job ends in a delivered outcome.
// A job already taken off the queue runs to completion even during Stop.
func (p *OCRWorkerPool) process(ctx context.Context, job port.OCRJob) {
	base := context.WithoutCancel(ctx)
	jobCtx := base
	if p.config.JobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(base, p.config.JobTimeout)
		defer cancel()
	}

	p.logger.Info("Processing OCR job",
		zap.String("invoice_id", job.InvoiceID),
		zap.String("document_key", job.DocumentKey))

	var outcome entity.OCROutcome
	document, err := p.storage.Read(jobCtx, job.DocumentKey)
	if err != nil {
		p.logger.Error("Failed to load document",
			zap.String("invoice_id", job.InvoiceID),
			zap.Error(err))
		outcome = entity.OCROutcome{
			InvoiceID: job.InvoiceID,
			Status:    lifecycle.StatusOCRFailed,
			Error:     entity.ErrorMessageUnreadable,
		}
	} else {
		outcome = p.runner.Run(jobCtx, job.InvoiceID, document)
	}

	deliverCtx, cancel := context.WithTimeout(base, p.config.DeliverTimeout)
	defer cancel()

	if err := p.handler.CompleteOCR(deliverCtx, outcome); err != nil {
		p.failed.Add(1)
		p.logger.Error("Failed to deliver OCR outcome",
			zap.String("invoice_id", job.InvoiceID),
			zap.String("status", outcome.Status.String()),
			zap.Error(err))
		return
	}

	p.processed.Add(1)
}
