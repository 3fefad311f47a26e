package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps the Redis operations backing the run lock. The lock
// serializes pipeline runs against the same target: the schedule may
// fire while a slow run is still going.
type Client struct {
	rdb *redis.Client
	cfg Config
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	LockKey  string        `yaml:"lock_key"`
	LockTTL  time.Duration `yaml:"lock_ttl"`
}

func (c Config) normalized() Config {
	if c.LockKey == "" {
		c.LockKey = "sigitm_etl:run_lock"
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Hour
	}
	return c
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	cfg = cfg.normalized()

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb, cfg: cfg}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// AcquireRunLock claims the single-run lock for this run. A false
// return means another run still holds it.
func (c *Client) AcquireRunLock(ctx context.Context, runID string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, c.cfg.LockKey, runID, c.cfg.LockTTL).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// releaseScript checks ownership and deletes as one server-side step.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// ReleaseRunLock releases the lock if this run still owns it. A lock
// that expired and was re-acquired by a newer run is left alone.
func (c *Client) ReleaseRunLock(ctx context.Context, runID string) error {
	if err := releaseScript.Run(ctx, c.rdb, []string{c.cfg.LockKey}, runID).Err(); err != nil {
		return fmt.Errorf("release failed: %w", err)
	}
	return nil
}

// Holder reports which run currently holds the lock, if any.
func (c *Client) Holder(ctx context.Context) (string, error) {
	val, err := c.rdb.Get(ctx, c.cfg.LockKey).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get failed: %w", err)
	}
	return val, nil
}
