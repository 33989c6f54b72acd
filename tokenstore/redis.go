package tokenstore

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/apiharness/sdk/auth"
)

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// KeyPrefix namespaces the cache keys ("harness:token:" by default) so
	// several harness deployments can share one Redis instance.
	KeyPrefix string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration
}

// Redis is a token cache backed by go-redis/v9. Entries carry the token's
// remaining lifetime as their Redis TTL, so the server evicts them exactly
// when they stop being usable.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed token cache and verifies connectivity
// with a ping.
func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}

	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "harness:token:"
	}

	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}

	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Redis{client: client, prefix: opts.KeyPrefix}, nil
}

// NewRedisWithClient wraps an existing go-redis client. The caller keeps
// ownership of the client's lifecycle.
func NewRedisWithClient(client *redis.Client, keyPrefix string) *Redis {
	if keyPrefix == "" {
		keyPrefix = "harness:token:"
	}
	return &Redis{client: client, prefix: keyPrefix}
}

// Get returns the cached token for key, or (nil, nil) when absent.
func (r *Redis) Get(ctx context.Context, key string) (*auth.Token, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get token %s: %w", key, err)
	}

	var token auth.Token
	if err := sonic.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token %s: %w", key, err)
	}

	return &token, nil
}

// Put stores the token under key with the given TTL.
func (r *Redis) Put(ctx context.Context, key string, token *auth.Token, ttl time.Duration) error {
	if ttl <= 0 {
		return r.Delete(ctx, key)
	}

	data, err := sonic.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token %s: %w", key, err)
	}

	if err := r.client.Set(ctx, r.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store token %s: %w", key, err)
	}

	return nil
}

// Delete removes the entry for key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete token %s: %w", key, err)
	}
	return nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}
