package auth

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
)

// LoginThrottle counts failed logins per key and locks the key once the
// failure threshold is reached.
type LoginThrottle interface {
	Locked(ctx context.Context, key string) (bool, error)
	RecordFailure(ctx context.Context, key string) error
	Reset(ctx context.Context, key string) error
}

// RedisThrottle keeps failure counters in Redis. Keys are digests of the
// submitted email so no address is stored in Redis.
type RedisThrottle struct {
	client      redis.Cmdable
	prefix      string
	maxFailures int64
	lockout     time.Duration
}

// NewRedisThrottle returns a throttle locking after maxFailures failures for
// lockout. The counter window is the lockout duration.
func NewRedisThrottle(client redis.Cmdable, maxFailures int, lockout time.Duration) *RedisThrottle {
	if maxFailures <= 0 {
		maxFailures = 7
	}
	if lockout <= 0 {
		lockout = 15 * time.Minute
	}
	return &RedisThrottle{
		client:      client,
		prefix:      "pawhub:auth:login_failures:",
		maxFailures: int64(maxFailures),
		lockout:     lockout,
	}
}

func (t *RedisThrottle) key(key string) string {
	return t.prefix + digestToken(key)
}

// Locked reports whether key has reached the failure threshold.
func (t *RedisThrottle) Locked(ctx context.Context, key string) (bool, error) {
	raw, err := t.client.Get(ctx, t.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("AUTH_THROTTLE_FAILED").With("operation", "get").Wrap(err)
	}
	count, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, oops.Code("AUTH_THROTTLE_FAILED").With("operation", "parse").Wrap(err)
	}
	return count >= t.maxFailures, nil
}

// RecordFailure increments the counter, starting the window on the first
// failure.
func (t *RedisThrottle) RecordFailure(ctx context.Context, key string) error {
	k := t.key(key)
	count, err := t.client.Incr(ctx, k).Result()
	if err != nil {
		return oops.Code("AUTH_THROTTLE_FAILED").With("operation", "incr").Wrap(err)
	}
	if count == 1 {
		if err := t.client.Expire(ctx, k, t.lockout).Err(); err != nil {
			return oops.Code("AUTH_THROTTLE_FAILED").With("operation", "expire").Wrap(err)
		}
	}
	return nil
}

// Reset clears the counter after a successful login.
func (t *RedisThrottle) Reset(ctx context.Context, key string) error {
	if err := t.client.Del(ctx, t.key(key)).Err(); err != nil {
		return oops.Code("AUTH_THROTTLE_FAILED").With("operation", "del").Wrap(err)
	}
	return nil
}

type noopThrottle struct{}

func (noopThrottle) Locked(context.Context, string) (bool, error) { return false, nil }
func (noopThrottle) RecordFailure(context.Context, string) error  { return nil }
func (noopThrottle) Reset(context.Context, string) error          { return nil }
