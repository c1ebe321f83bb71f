package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"github.com/josh-kwaku/points-ledger/internal/domain"
	"github.com/josh-kwaku/points-ledger/internal/logging"
)

const keyPrefix = "points-ledger:lock:"

// RedisLocker serializes work on one key across API replicas.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl}
}

// Acquire takes the lock for key without retrying. A lock already held elsewhere
// yields domain.ErrNotificationInProgress. The returned func releases the lock.
func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lk, err := l.client.Obtain(ctx, keyPrefix+key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("Acquire: %s: %w", key, domain.ErrNotificationInProgress)
	}
	if err != nil {
		return nil, fmt.Errorf("Acquire: %s: %w", key, err)
	}

	return func() {
		// Release with a fresh context; the request context may already be done.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := lk.Release(releaseCtx); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logging.FromContext(ctx).Warn("failed to release lock", "key", key, "error", err)
		}
	}, nil
}

func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("NewRedisClient: ping %s: %w", addr, err)
	}
	return rdb, nil
}
