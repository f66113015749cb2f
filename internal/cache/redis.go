package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/thevtm/baker-news/pkg/config"
	"github.com/thevtm/baker-news/pkg/logging"
)

const keyPrefix = "baker-news:"

// Cache wraps Redis client
type Cache struct {
	client *redis.Client
	logger *zap.Logger
}

// New creates a new Redis client. It returns nil when Redis is disabled.
func New(cfg *config.RedisConfig) (*Cache, error) {
	if !cfg.Enabled {
		logging.GetLogger().Info("Redis disabled")
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
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.GetLogger().Info("Redis connection established")

	return &Cache{
		client: client,
		logger: logging.WithComponent("redis"),
	}, nil
}

// namespaceKey prefixes a key or channel with the application namespace
func (c *Cache) namespaceKey(key string) string {
	return keyPrefix + key
}

// Publish sends payload to every subscriber of channel and returns how
// many subscribers received it
func (c *Cache) Publish(ctx context.Context, channel string, payload []byte) (int64, error) {
	if c == nil || c.client == nil {
		return 0, ErrCacheDisabled
	}
	return c.client.Publish(ctx, c.namespaceKey(channel), payload).Result()
}

// Subscribe listens on channel. Messages are delivered on the returned
// channel until ctx ends or the returned close function is called.
func (c *Cache) Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error) {
	if c == nil || c.client == nil {
		return nil, nil, ErrCacheDisabled
	}

	name := c.namespaceKey(channel)
	ps := c.client.Subscribe(ctx, name)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, nil, fmt.Errorf("failed to subscribe to %s: %w", name, err)
	}

	out := make(chan []byte)
	go func() {
		defer close(out)
		for msg := range ps.Channel() {
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()

	c.logger.Info("Subscribed to channel", zap.String("channel", name))
	return out, ps.Close, nil
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

var (
	// ErrCacheDisabled is returned when Redis operations are attempted but Redis is disabled
	ErrCacheDisabled = fmt.Errorf("cache is disabled")
)
