// Package cache owns the Redis connection shared by the change-stream and
// presence transports. Every key and channel is namespaced.
package cache

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/thoughtforge/thoughtsync/pkg/config"
	"github.com/thoughtforge/thoughtsync/pkg/logging"
)

const defaultNamespace = "thoughts"

// ErrCacheDisabled is returned when cache operations are attempted but cache is disabled
var ErrCacheDisabled = errors.New("cache is disabled")

// Cache wraps Redis client
type Cache struct {
	client    *redis.Client
	namespace string
	logger    *zap.Logger
}

// New creates a new Redis client. A disabled config yields (nil, nil); every
// method on a nil *Cache returns ErrCacheDisabled.
func New(cfg *config.RedisConfig, logger *zap.Logger) (*Cache, error) {
	logger = logging.OrNop(logger)
	if !cfg.Enabled {
		logger.Info("Redis disabled, realtime uses the in-process hub")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established")

	return NewWithClient(client, cfg.Namespace, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, namespace string, logger *zap.Logger) *Cache {
	if namespace == "" {
		namespace = defaultNamespace
	}
	return &Cache{client: client, namespace: namespace, logger: logging.OrNop(logger)}
}

// HashKey returns a stable MD5 hex digest of parts for use in long keys.
func HashKey(parts ...string) string {
	sum := md5.Sum([]byte(strings.Join(parts, ":")))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) namespaceKey(key string) string {
	ns := defaultNamespace
	if c != nil && c.namespace != "" {
		ns = c.namespace
	}
	return ns + ":" + key
}

// Key returns key within the cache namespace.
func (c *Cache) Key(key string) string {
	return c.namespaceKey(key)
}

// Publish sends payload on the namespaced channel.
func (c *Cache) Publish(ctx context.Context, channel string, payload []byte) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	return c.client.Publish(ctx, c.namespaceKey(channel), payload).Err()
}

// Subscribe opens a subscription to the namespaced channels and waits for
// the server's confirmation.
func (c *Cache) Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error) {
	if c == nil || c.client == nil {
		return nil, ErrCacheDisabled
	}
	names := make([]string, len(channels))
	for i, ch := range channels {
		names[i] = c.namespaceKey(ch)
	}
	ps := c.client.Subscribe(ctx, names...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %v: %w", channels, err)
	}
	return ps, nil
}

// HSet stores field in the namespaced hash.
func (c *Cache) HSet(ctx context.Context, key, field string, value []byte) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	return c.client.HSet(ctx, c.namespaceKey(key), field, value).Err()
}

// HDel removes field from the namespaced hash.
func (c *Cache) HDel(ctx context.Context, key, field string) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	return c.client.HDel(ctx, c.namespaceKey(key), field).Err()
}

// HGetAll returns every field of the namespaced hash.
func (c *Cache) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if c == nil || c.client == nil {
		return nil, ErrCacheDisabled
	}
	return c.client.HGetAll(ctx, c.namespaceKey(key)).Result()
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Health checks Redis health
func (c *Cache) Health(ctx context.Context) error {
	if c == nil || c.client == nil {
		return ErrCacheDisabled
	}
	return c.client.Ping(ctx).Err()
}
