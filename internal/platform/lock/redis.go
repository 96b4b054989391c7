// Package lock provides best-effort distributed locks backed by Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrNotObtained is returned when another holder owns the key.
var ErrNotObtained = errors.New("platform/lock: lock not obtained")

// Releaser releases a held lock.
type Releaser interface {
	Release(ctx context.Context) error
}

// RedisLocker hands out short-lived locks on string keys.
type RedisLocker struct {
	client *redislock.Client
	ttl    time.Duration
}

// NewRedisLocker constructs a locker whose locks expire after ttl.
func NewRedisLocker(rdb redis.UniversalClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisLocker{client: redislock.New(rdb), ttl: ttl}
}

// Obtain tries once to take the lock for key.
func (l *RedisLocker) Obtain(ctx context.Context, key string) (Releaser, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("platform/lock: locker not initialised")
	}
	lk, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("platform/lock: obtain %s: %w", key, err)
	}
	return lk, nil
}
