package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces mirrored keys.
const DefaultRedisPrefix = "sonicmirror:cache:"

// RedisMirror stores entries as JSON strings whose Redis TTL matches the
// entry expiry.
type RedisMirror struct {
	rdb    redis.UniversalClient
	prefix string
}

// NewRedisMirror wraps an existing client.
func NewRedisMirror(rdb redis.UniversalClient, prefix string) *RedisMirror {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisMirror{rdb: rdb, prefix: prefix}
}

// DialRedis parses redisURL, connects and pings the server.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return rdb, nil
}

// Put implements Mirror.
func (m *RedisMirror) Put(ctx context.Context, key string, e Entry) error {
	ttl := time.Until(e.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return m.rdb.Set(ctx, m.prefix+key, b, ttl).Err()
}

// Delete implements Mirror.
func (m *RedisMirror) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = m.prefix + k
	}
	return m.rdb.Del(ctx, full...).Err()
}

// Load implements Mirror by scanning the prefix.
func (m *RedisMirror) Load(ctx context.Context) (map[string]Entry, error) {
	out := make(map[string]Entry)
	iter := m.rdb.Scan(ctx, 0, m.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		full := iter.Val()
		b, err := m.rdb.Get(ctx, full).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var e Entry
		if err := json.Unmarshal(b, &e); err != nil {
			continue
		}
		out[full[len(m.prefix):]] = e
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
