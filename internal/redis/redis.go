package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultTimeout = 5 * time.Second

// Client wraps a go-redis client with per-call timeouts
type Client struct {
	rdb     *redis.Client
	timeout time.Duration
	logger  *slog.Logger
}

// Init parses redisURL, connects and pings the server
func Init(redisURL string, logger *slog.Logger) (*Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	c := newClient(redis.NewClient(opts), logger)

	ctx, cancel := c.withTimeout(context.Background())
	defer cancel()
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		_ = c.rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.logger.Info("connected to Redis", "addr", opts.Addr, "db", opts.DB)
	return c, nil
}

func newClient(rdb *redis.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{rdb: rdb, timeout: defaultTimeout, logger: logger.With("component", "redis")}
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// Close closes the Redis client connection
func (c *Client) Close() error {
	c.logger.Info("closing Redis connection")
	return c.rdb.Close()
}

// ScanKeys collects every key matching pattern
func (c *Client) ScanKeys(ctx context.Context, pattern string) ([]string, error) {
	var cursor uint64
	var keys []string

	for {
		batch, next, err := c.rdb.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// Subscribe opens a Pub/Sub subscription and waits for the confirmation
func (c *Client) Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error) {
	ps := c.rdb.Subscribe(ctx, channels...)

	rctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if _, err := ps.Receive(rctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %v: %w", channels, err)
	}
	return ps, nil
}
