package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisKV) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisKV(client)
}

func TestRedisKV_GetSetDel(t *testing.T) {
	mr, kv := setupTestRedis(t)
	ctx := context.Background()

	_, err := kv.Get(ctx, "payment:creds:t-1:paytr")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "payment:creds:t-1:paytr", `{"id":"1"}`, time.Minute))
	v, err := kv.Get(ctx, "payment:creds:t-1:paytr")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"1"}`, v)

	mr.FastForward(2 * time.Minute)
	_, err = kv.Get(ctx, "payment:creds:t-1:paytr")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "k", "v", 0))
	require.NoError(t, kv.Del(ctx, "k"))
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryKV_Expiry(t *testing.T) {
	kv := NewMemoryKV()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	kv.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	v, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	now = now.Add(time.Minute)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}
