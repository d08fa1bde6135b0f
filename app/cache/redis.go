package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/redis/go-redis/v9"
)

// deleteIfEquals removes KEYS[1] only while it still holds ARGV[1].
var deleteIfEquals = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// compareAndSwap sets KEYS[1] to ARGV[2] only while it holds ARGV[1]; an
// empty ARGV[1] matches a missing key. ARGV[3] is the TTL in milliseconds.
var compareAndSwap = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if current == ARGV[1] or (current == false and ARGV[1] == "") then
	if tonumber(ARGV[3]) > 0 then
		redis.call("SET", KEYS[1], ARGV[2], "PX", ARGV[3])
	else
		redis.call("SET", KEYS[1], ARGV[2])
	end
	return 1
end
return 0
`)

// Redis wraps a Redis client for the shared cache and the task broker.
type Redis struct {
	client *redis.Client
	addr   string
}

// NewRedis connects to Redis, retrying with exponential backoff while the
// server is not reachable yet.
func NewRedis(addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second

	err := backoff.RetryNotify(func() error {
		return client.Ping(context.Background()).Err()
	}, bo, func(err error, next time.Duration) {
		slog.Warn("Redis not reachable, retrying", "addr", addr, "retry_in", next.String(), "error", err)
	})
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", addr)

	return &Redis{client: client, addr: addr}, nil
}

func (c *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, nil
}

func (c *Redis) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (c *Redis) SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return ok, nil
}

func (c *Redis) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return nil
}

func (c *Redis) DeleteIfEquals(ctx context.Context, key string, value string) (bool, error) {
	n, err := deleteIfEquals.Run(ctx, c.client, []string{key}, value).Int()
	if err != nil {
		return false, fmt.Errorf("failed to delete key %s: %w", key, err)
	}
	return n > 0, nil
}

func (c *Redis) CompareAndSwap(ctx context.Context, key string, old string, value string, ttl time.Duration) (bool, error) {
	n, err := compareAndSwap.Run(ctx, c.client, []string{key}, old, value, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to swap key %s: %w", key, err)
	}
	return n > 0, nil
}

func (c *Redis) Exists(ctx context.Context, key string) (bool, error) {
	count, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check existence of key %s: %w", key, err)
	}
	return count > 0, nil
}

func (c *Redis) GetTTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := c.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get TTL for key %s: %w", key, err)
	}
	return ttl, nil
}

func (c *Redis) Push(ctx context.Context, key string, value string) error {
	if err := c.client.LPush(ctx, key, value).Err(); err != nil {
		return fmt.Errorf("failed to push to %s: %w", key, err)
	}
	return nil
}

func (c *Redis) Pop(ctx context.Context, key string, timeout time.Duration) (string, error) {
	result, err := c.client.BRPop(ctx, timeout, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to pop from %s: %w", key, err)
	}
	// BRPOP replies with [key, value]
	if len(result) != 2 {
		return "", fmt.Errorf("unexpected BRPOP reply for %s: %v", key, result)
	}
	return result[1], nil
}

func (c *Redis) Health(ctx context.Context) map[string]interface{} {
	health := map[string]interface{}{
		"status": "healthy",
		"type":   "redis",
		"addr":   c.addr,
	}

	if err := c.client.Ping(ctx).Err(); err != nil {
		health["status"] = "unhealthy"
		health["error"] = err.Error()
		return health
	}

	if dbSize, err := c.client.DBSize(ctx).Result(); err == nil {
		health["key_count"] = dbSize
	}

	return health
}

func (c *Redis) Close() error {
	return c.client.Close()
}
