package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/invoice-financing/internal/application/port"
)

// DefaultRedisKey is the list holding queued OCR jobs
const DefaultRedisKey = "invoice-financing:ocr:jobs"

// RedisQueue is a queue shared between the API server and ocr-worker processes
type RedisQueue struct {
	rdb         *redis.Client
	key         string
	pollTimeout time.Duration
	logger      *zap.Logger
}

// NewRedisQueue creates a queue on the list named key
func NewRedisQueue(rdb *redis.Client, key string, logger *zap.Logger) *RedisQueue {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisQueue{
		rdb:         rdb,
		key:         key,
		pollTimeout: time.Second,
		logger:      logger,
	}
}

// Enqueue pushes the job on the head of the list
func (q *RedisQueue) Enqueue(ctx context.Context, job port.OCRJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}
	if err := q.rdb.LPush(ctx, q.key, data).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// Dequeue pops from the tail of the list, polling so ctx cancellation is
// noticed within pollTimeout
func (q *RedisQueue) Dequeue(ctx context.Context) (port.OCRJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return port.OCRJob{}, err
		}

		res, err := q.rdb.BRPop(ctx, q.pollTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return port.OCRJob{}, ctx.Err()
			}
			if errors.Is(err, redis.ErrClosed) {
				return port.OCRJob{}, ErrQueueClosed
			}
			return port.OCRJob{}, fmt.Errorf("failed to dequeue job: %w", err)
		}

		// res is [key, value]
		var job port.OCRJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			q.logger.Error("Dropping malformed OCR job",
				zap.String("payload", res[1]),
				zap.Error(err))
			continue
		}
		return job, nil
	}
}

// Len reports the number of queued jobs
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.key).Result()
}

// Close closes the underlying client
func (q *RedisQueue) Close() error {
	return q.rdb.Close()
}

var _ port.JobQueue = (*RedisQueue)(nil)
