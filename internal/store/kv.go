package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrMiss = errors.New("cache miss")

// KV 短期缓存（进程内渠道凭据、订单状态）
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

type RedisKV struct {
	c *redis.Client
}

func NewRedisKV(c *redis.Client) *RedisKV { return &RedisKV{c: c} }

func (r *RedisKV) Get(ctx context.Context, key string) (string, error) {
	val, err := r.c.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", ErrMiss
		}
		return "", err
	}
	return val, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	return r.c.Set(ctx, key, value, ttl).Err()
}

func (r *RedisKV) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.c.Del(ctx, keys...).Err()
}

// MemoryKV used when Redis is not configured (dev).
type MemoryKV struct {
	mu  sync.Mutex
	m   map[string]memEntry
	now func() time.Time
}

type memEntry struct {
	val string
	exp time.Time
}

func NewMemoryKV() *MemoryKV {
	return NewMemoryKVWithClock(time.Now)
}

// NewMemoryKVWithClock 测试中控制过期时间
func NewMemoryKVWithClock(now func() time.Time) *MemoryKV {
	return &MemoryKV{m: map[string]memEntry{}, now: now}
}

func (k *MemoryKV) Get(_ context.Context, key string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	e, ok := k.m[key]
	if !ok {
		return "", ErrMiss
	}
	if !e.exp.IsZero() && !k.now().Before(e.exp) {
		delete(k.m, key)
		return "", ErrMiss
	}
	return e.val, nil
}

func (k *MemoryKV) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	e := memEntry{val: value}
	if ttl > 0 {
		e.exp = k.now().Add(ttl)
	}
	k.m[key] = e
	return nil
}

func (k *MemoryKV) Del(_ context.Context, keys ...string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, key := range keys {
		delete(k.m, key)
	}
	return nil
}
