package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces every key written by RedisStore.
const DefaultRedisPrefix = "posts_query:"

// RedisOptions configures the Redis connection opened by DialRedis.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL            string
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
}

// DialRedis opens a client and pings it.
func DialRedis(ctx context.Context, opts RedisOptions) (*redis.Client, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 3 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 3 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("state: parse redis url: %w", err)
	}
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("state: connect to redis: %w", err)
	}
	return client, nil
}

// RedisOption configures a RedisStore.
type RedisOption func(*redisConfig)

type redisConfig struct {
	prefix string
	ttl    time.Duration
}

// WithRedisPrefix replaces DefaultRedisPrefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(cfg *redisConfig) {
		cfg.prefix = prefix
	}
}

// WithRedisTTL expires records after ttl. Zero keeps records forever.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(cfg *redisConfig) {
		cfg.ttl = ttl
	}
}

// RedisStore is a Store keeping JSON encoded records in Redis strings.
type RedisStore[T any] struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type redisRecord[T any] struct {
	Record T    `json:"record"`
	Meta   Meta `json:"meta"`
}

// NewRedisStore wraps client. The client is owned by the caller.
func NewRedisStore[T any](client redis.UniversalClient, opts ...RedisOption) *RedisStore[T] {
	cfg := redisConfig{prefix: DefaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return &RedisStore[T]{
		client: client,
		prefix: cfg.prefix,
		ttl:    cfg.ttl,
	}
}

func (s *RedisStore[T]) Load(ctx context.Context, key string) (T, Meta, bool, error) {
	var zero T
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, Meta{}, false, nil
	}
	if err != nil {
		return zero, Meta{}, false, fmt.Errorf("state: redis get %q: %w", key, err)
	}

	var stored redisRecord[T]
	if err := json.Unmarshal(data, &stored); err != nil {
		return zero, Meta{}, false, fmt.Errorf("state: decode %q: %w", key, err)
	}
	return stored.Record, stored.Meta, true, nil
}

func (s *RedisStore[T]) Save(ctx context.Context, key string, record T, meta Meta) (Meta, error) {
	data, err := json.Marshal(redisRecord[T]{Record: record, Meta: meta})
	if err != nil {
		return Meta{}, fmt.Errorf("state: encode %q: %w", key, err)
	}
	if err := s.client.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
		return Meta{}, fmt.Errorf("state: redis set %q: %w", key, err)
	}
	return cloneMeta(meta), nil
}

func (s *RedisStore[T]) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("state: redis del %q: %w", key, err)
	}
	return nil
}
