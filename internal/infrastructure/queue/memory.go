// Package queue hands OCR jobs from the upload path to background workers.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/garyjia/invoice-financing/internal/application/port"
)

var (
	// ErrQueueFull is returned when a job cannot be queued without blocking
	ErrQueueFull = errors.New("ocr queue is full")

	// ErrQueueClosed is returned once the queue is closed and drained
	ErrQueueClosed = errors.New("ocr queue is closed")
)

// MemoryQueue is an in-process bounded queue
type MemoryQueue struct {
	jobs      chan port.OCRJob
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewMemoryQueue creates a queue holding up to size jobs
func NewMemoryQueue(size int) *MemoryQueue {
	if size < 1 {
		size = 1
	}
	return &MemoryQueue{jobs: make(chan port.OCRJob, size)}
}

// Enqueue never blocks; a full queue returns ErrQueueFull
func (q *MemoryQueue) Enqueue(ctx context.Context, job port.OCRJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}

	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Dequeue blocks until a job is available, ctx is done or the queue is
// closed and drained
func (q *MemoryQueue) Dequeue(ctx context.Context) (port.OCRJob, error) {
	select {
	case job, ok := <-q.jobs:
		if !ok {
			return port.OCRJob{}, ErrQueueClosed
		}
		return job, nil
	case <-ctx.Done():
		return port.OCRJob{}, ctx.Err()
	}
}

// Len reports the number of queued jobs
func (q *MemoryQueue) Len() int {
	return len(q.jobs)
}

// Close stops accepting jobs; queued jobs can still be dequeued
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.jobs)
		q.mu.Unlock()
	})
	return nil
}

var _ port.JobQueue = (*MemoryQueue)(nil)
