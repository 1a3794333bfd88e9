package redisclient

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct {
	redisdb *redis.Client
}

type Config struct {
	Addr     string
	Password string
	DB       int
}

func New(cfg Config) *Client {
	redisdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})

	return &Client{redisdb: redisdb}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.redisdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.redisdb.Close()
}

// Raw exposes the underlying client for callers that need pipelines.
func (c *Client) Raw() *redis.Client {
	return c.redisdb
}

// IncrWindow counts one hit against a fixed window stored at key. The first
// hit of a window sets its expiry; later hits only read the remaining TTL.
func (c *Client) IncrWindow(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error) {
	pipe := c.redisdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pttl := pipe.PTTL(ctx, key)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return 0, 0, err
	}

	count = incr.Val()
	ttl = pttl.Val()

	// -1 means the key exists without expiry: first hit, or a crash between INCR and PEXPIRE
	if count == 1 || ttl < 0 {
		err = c.redisdb.PExpire(ctx, key, window).Err()
		if err != nil {
			return 0, 0, err
		}
		ttl = window
	}

	return count, ttl, nil
}
