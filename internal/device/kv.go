package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// KV is the device key-value store. Values are opaque strings (JSON blobs).
type KV interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	MultiRemove(ctx context.Context, keys ...string) error
	// MultiGet returns only the keys that are present.
	MultiGet(ctx context.Context, keys ...string) (map[string]string, error)
}

type MemoryKV struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemoryKV() *MemoryKV { return &MemoryKV{m: map[string]string{}} }

func (kv *MemoryKV) Get(_ context.Context, key string) (string, bool, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	v, ok := kv.m[key]
	return v, ok, nil
}

func (kv *MemoryKV) Set(_ context.Context, key, value string) error {
	kv.mu.Lock()
	kv.m[key] = value
	kv.mu.Unlock()
	return nil
}

func (kv *MemoryKV) Remove(ctx context.Context, key string) error {
	return kv.MultiRemove(ctx, key)
}

func (kv *MemoryKV) MultiRemove(_ context.Context, keys ...string) error {
	kv.mu.Lock()
	for _, k := range keys {
		delete(kv.m, k)
	}
	kv.mu.Unlock()
	return nil
}

func (kv *MemoryKV) MultiGet(_ context.Context, keys ...string) (map[string]string, error) {
	kv.mu.RLock()
	defer kv.mu.RUnlock()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := kv.m[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// RedisKV keeps the device state in Redis, namespaced by Prefix so several
// devices can share one server.
type RedisKV struct {
	Client redis.UniversalClient
	Prefix string
}

func NewRedisKV(client redis.UniversalClient, prefix string) *RedisKV {
	return &RedisKV{Client: client, Prefix: prefix}
}

func (kv *RedisKV) k(key string) string { return kv.Prefix + key }

func (kv *RedisKV) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := kv.Client.Get(ctx, kv.k(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return v, true, nil
}

func (kv *RedisKV) Set(ctx context.Context, key, value string) error {
	if err := kv.Client.Set(ctx, kv.k(key), value, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (kv *RedisKV) Remove(ctx context.Context, key string) error {
	return kv.MultiRemove(ctx, key)
}

func (kv *RedisKV) MultiRemove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = kv.k(k)
	}
	if err := kv.Client.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (kv *RedisKV) MultiGet(ctx context.Context, keys ...string) (map[string]string, error) {
	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = kv.k(k)
	}
	vals, err := kv.Client.MGet(ctx, full...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[keys[i]] = s
		}
	}
	return out, nil
}
