package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PendingExpirer fails OCR jobs that stayed pending since before the cutoff
type PendingExpirer interface {
	ExpirePending(ctx context.Context, before time.Time) (int, error)
}

// SweeperConfig holds configuration for the pending sweeper
type SweeperConfig struct {
	Interval time.Duration
	// Deadline is how long an invoice may stay OCR_PENDING
	Deadline time.Duration
}

// PendingSweeper periodically fails invoices whose OCR job was lost, e.g.
// because the process running it crashed
type PendingSweeper struct {
	config  SweeperConfig
	expirer PendingExpirer
	logger  *zap.Logger
	now     func() time.Time

	mu        sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
	isRunning bool
}

// NewPendingSweeper creates a new sweeper
func NewPendingSweeper(config SweeperConfig, expirer PendingExpirer, logger *zap.Logger) *PendingSweeper {
	return &PendingSweeper{
		config:  config,
		expirer: expirer,
		logger:  logger,
		now:     time.Now,
	}
}

// Name returns the worker name for identification
func (s *PendingSweeper) Name() string {
	return "PendingSweeper"
}

// Start begins the sweep loop
func (s *PendingSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("pending sweeper already running")
	}
	if s.config.Interval <= 0 || s.config.Deadline <= 0 {
		return fmt.Errorf("pending sweeper needs a positive interval and deadline")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.isRunning = true

	go s.loop(runCtx, s.done)

	s.logger.Info("PendingSweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("deadline", s.config.Deadline))
	return nil
}

// Stop terminates the loop and waits for a sweep in progress
func (s *PendingSweeper) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done
	return nil
}

func (s *PendingSweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass and returns how many invoices were failed
func (s *PendingSweeper) Sweep(ctx context.Context) int {
	cutoff := s.now().Add(-s.config.Deadline)
	n, err := s.expirer.ExpirePending(ctx, cutoff)
	if err != nil {
		s.logger.Error("Pending sweep failed", zap.Error(err))
	}
	if n > 0 {
		s.logger.Warn("Expired stale OCR jobs",
			zap.Int("count", n),
			zap.Time("cutoff", cutoff))
	}
	return n
}
