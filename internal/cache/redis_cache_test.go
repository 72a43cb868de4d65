package cache

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisIncrSetsWindow(t *testing.T) {
	addr := os.Getenv("LEDGER_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set LEDGER_TEST_REDIS_ADDR to run redis integration test")
	}

	ctx := context.Background()
	kv := NewRedis(addr, os.Getenv("LEDGER_TEST_REDIS_PASSWORD"), 0)
	t.Cleanup(func() { _ = kv.Close() })
	require.NoError(t, kv.Ping(ctx))

	key := fmt.Sprintf("ledger-test:%d", time.Now().UnixNano())
	t.Cleanup(func() { _ = kv.Delete(ctx, key) })

	for want := int64(1); want <= 3; want++ {
		n, err := kv.Incr(ctx, key, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}

	ttl, err := kv.Client().TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))
	assert.LessOrEqual(t, ttl, time.Minute)

	val, ok, err := kv.Get(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "3", val)
}
