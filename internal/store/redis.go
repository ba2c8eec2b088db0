package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "totalrecall"

// RedisTable keeps each item as a plain string key <prefix>:<table>:<key>
type RedisTable struct {
	client redis.Cmdable
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisTable
type RedisOption func(*RedisTable)

// WithRedisPrefix sets the key prefix. Default is "totalrecall".
func WithRedisPrefix(prefix string) RedisOption {
	return func(r *RedisTable) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithRedisTTL expires items after ttl. Zero keeps them forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(r *RedisTable) {
		r.ttl = ttl
	}
}

// NewRedisTable creates a table named table on client
func NewRedisTable(client redis.Cmdable, table string, opts ...RedisOption) *RedisTable {
	r := &RedisTable{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(r)
	}
	r.prefix = r.prefix + ":" + table + ":"
	return r
}

func (r *RedisTable) Get(ctx context.Context, key string) ([]byte, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return b, nil
}

func (r *RedisTable) Put(ctx context.Context, key string, value []byte) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, value, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisTable) Delete(ctx context.Context, key string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	n, err := r.client.Del(ctx, r.prefix+key).Result()
	if err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisTable) Scan(ctx context.Context, limit int) ([]Item, error) {
	if err := checkLimit(limit); err != nil {
		return nil, err
	}

	var keys []string
	var cursor uint64
	for {
		batch, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", int64(limit)).Result()
		if err != nil {
			return nil, fmt.Errorf("redis scan failed: %w", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 || len(keys) >= limit {
			break
		}
	}
	if len(keys) > limit {
		keys = keys[:limit]
	}
	if len(keys) == 0 {
		return []Item{}, nil
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}

	items := make([]Item, 0, len(keys))
	for i, v := range values {
		// keys can expire or be deleted between SCAN and MGET
		s, ok := v.(string)
		if !ok {
			continue
		}
		items = append(items, Item{Key: strings.TrimPrefix(keys[i], r.prefix), Value: []byte(s)})
	}
	return items, nil
}
