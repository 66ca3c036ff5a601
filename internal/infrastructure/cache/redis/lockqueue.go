package redis

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/media-upload-router/internal/core/domain"
	"github.com/kirillkom/media-upload-router/internal/infrastructure/resilience"
)

const defaultQueueTTL = 30 * time.Minute

type sortedSets interface {
	ZAddNX(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRank(ctx context.Context, key, member string) *redis.IntCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// WriteLockQueue keeps one sorted set per locked storage resource. Members
// are upload ids scored by arrival time, so ZRANK is the queue position.
type WriteLockQueue struct {
	rdb      sortedSets
	closer   io.Closer
	ttl      time.Duration
	now      func() time.Time
	executor *resilience.Executor
}

type Options struct {
	TTL                time.Duration
	ResilienceExecutor *resilience.Executor
}

func NewWriteLockQueue(ctx context.Context, url string, options Options) (*WriteLockQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	q := newWriteLockQueue(client, options)
	q.closer = client
	return q, nil
}

func newWriteLockQueue(rdb sortedSets, options Options) *WriteLockQueue {
	ttl := options.TTL
	if ttl <= 0 {
		ttl = defaultQueueTTL
	}
	return &WriteLockQueue{
		rdb:      rdb,
		ttl:      ttl,
		now:      time.Now,
		executor: options.ResilienceExecutor,
	}
}

func (q *WriteLockQueue) Close() error {
	if q.closer == nil {
		return nil
	}
	return q.closer.Close()
}

func queueKey(resource string) string {
	return "write_lock_queue:" + resource
}

// Enqueue is idempotent per uploadID: a repeated call keeps the original
// arrival score and returns the current 1-based position.
func (q *WriteLockQueue) Enqueue(ctx context.Context, resource, uploadID string) (int, error) {
	if resource == "" || uploadID == "" {
		return 0, domain.WrapError(domain.ErrInvalidInput, "enqueue write lock", errors.New("resource and upload id are required"))
	}
	key := queueKey(resource)

	var rank int64
	err := q.run(ctx, "redis.write_lock.enqueue", func(ctx context.Context) error {
		member := redis.Z{Score: float64(q.now().UnixNano()), Member: uploadID}
		if err := q.rdb.ZAddNX(ctx, key, member).Err(); err != nil {
			return fmt.Errorf("zadd %s: %w", key, err)
		}
		if err := q.rdb.Expire(ctx, key, q.ttl).Err(); err != nil {
			return fmt.Errorf("expire %s: %w", key, err)
		}
		got, err := q.rdb.ZRank(ctx, key, uploadID).Result()
		if err != nil {
			return fmt.Errorf("zrank %s: %w", key, err)
		}
		rank = got
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(rank) + 1, nil
}

func (q *WriteLockQueue) Release(ctx context.Context, resource, uploadID string) error {
	key := queueKey(resource)
	return q.run(ctx, "redis.write_lock.release", func(ctx context.Context) error {
		if err := q.rdb.ZRem(ctx, key, uploadID).Err(); err != nil {
			return fmt.Errorf("zrem %s: %w", key, err)
		}
		return nil
	})
}

func (q *WriteLockQueue) run(ctx context.Context, operation string, call func(context.Context) error) error {
	var err error
	if q.executor != nil {
		err = q.executor.Execute(ctx, operation, call, classifyRedisError)
	} else {
		err = call(ctx)
	}
	if err == nil {
		return nil
	}
	if classifyRedisError(err).Retryable || resilience.IsCircuitOpen(err) {
		return domain.WrapError(domain.ErrTemporary, operation, err)
	}
	return err
}

func classifyRedisError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.EOF) || errors.Is(err, redis.ErrClosed) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.ErrorClassification{Retryable: false, RecordFailure: true}
}
