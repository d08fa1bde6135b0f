package cache

import (
	"context"
	"encoding/json"
	"time"
)

// Cache is the key-value store shared by every worker process. It holds the
// upstream token, the run-locks and the task progress snapshots.
//
// Get returns an empty string and no error when the key does not exist.
// CompareAndSwap stores value only while key still holds old; an empty old
// matches a missing key.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, key string) error
	DeleteIfEquals(ctx context.Context, key string, value string) (bool, error)
	CompareAndSwap(ctx context.Context, key string, old string, value string, ttl time.Duration) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	GetTTL(ctx context.Context, key string) (time.Duration, error)
	Health(ctx context.Context) map[string]interface{}
	Close() error
}

// Queue is a FIFO list used as the task broker between processes.
//
// Pop blocks up to timeout and returns an empty string when nothing arrived.
type Queue interface {
	Push(ctx context.Context, key string, value string) error
	Pop(ctx context.Context, key string, timeout time.Duration) (string, error)
}

// Store combines both capabilities; Redis and Memory implement it.
type Store interface {
	Cache
	Queue
}

var (
	_ Store = (*Redis)(nil)
	_ Store = (*Memory)(nil)
)

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	default:
		return json.Marshal(value)
	}
}
