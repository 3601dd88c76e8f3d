package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawhub/pawhub/internal/auth"
	"github.com/pawhub/pawhub/internal/platform/errutil"
)

func newRedisThrottle(t *testing.T, maxFailures int, lockout time.Duration) (*auth.RedisThrottle, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return auth.NewRedisThrottle(client, maxFailures, lockout), mr
}

func TestRedisThrottleLocksAtThreshold(t *testing.T) {
	throttle, _ := newRedisThrottle(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, throttle.RecordFailure(ctx, "a@x.com"))
	}
	locked, err := throttle.Locked(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, locked)

	require.NoError(t, throttle.RecordFailure(ctx, "a@x.com"))
	locked, err = throttle.Locked(ctx, "a@x.com")
	require.NoError(t, err)
	assert.True(t, locked)

	locked, err = throttle.Locked(ctx, "b@x.com")
	require.NoError(t, err)
	assert.False(t, locked, "counters are per key")
}

func TestRedisThrottleWindowExpires(t *testing.T) {
	throttle, mr := newRedisThrottle(t, 1, time.Minute)
	ctx := context.Background()

	require.NoError(t, throttle.RecordFailure(ctx, "a@x.com"))
	locked, err := throttle.Locked(ctx, "a@x.com")
	require.NoError(t, err)
	require.True(t, locked)

	mr.FastForward(time.Minute + time.Second)
	locked, err = throttle.Locked(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestRedisThrottleResetAndKeyPrivacy(t *testing.T) {
	throttle, mr := newRedisThrottle(t, 1, time.Minute)
	ctx := context.Background()

	require.NoError(t, throttle.RecordFailure(ctx, "a@x.com"))
	for _, key := range mr.Keys() {
		assert.NotContains(t, key, "a@x.com")
		assert.Contains(t, key, "pawhub:auth:login_failures:")
	}

	require.NoError(t, throttle.Reset(ctx, "a@x.com"))
	locked, err := throttle.Locked(ctx, "a@x.com")
	require.NoError(t, err)
	assert.False(t, locked)
}

func TestRedisThrottleReportsOutage(t *testing.T) {
	throttle, mr := newRedisThrottle(t, 1, time.Minute)
	mr.Close()

	_, err := throttle.Locked(context.Background(), "a@x.com")
	errutil.AssertErrorCode(t, err, "AUTH_THROTTLE_FAILED")
}
