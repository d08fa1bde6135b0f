package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/productdb/eoxsync/app/cache"
)

const (
	SyncLockKey = "CISCO_EOX_API_SYN_IN_PROGRESS"
	SyncLockTTL = 3 * time.Hour

	InitialImportLockKey    = "CISCO_EOX_INITIAL_SYN_IN_PROGRESS"
	InitialImportLockTTL    = 48 * time.Hour
	InitialImportLastRunKey = "CISCO_EOX_INITIAL_SYN_LAST_RUN"
)

// RunLock is a cache entry holding the ID of the active run. The TTL frees
// the lock when a run dies without releasing it.
type RunLock struct {
	cache cache.Cache
	key   string
	ttl   time.Duration
}

func NewSyncLock(c cache.Cache) *RunLock {
	return &RunLock{cache: c, key: SyncLockKey, ttl: SyncLockTTL}
}

func NewInitialImportLock(c cache.Cache) *RunLock {
	return &RunLock{cache: c, key: InitialImportLockKey, ttl: InitialImportLockTTL}
}

// Acquire takes the lock for taskID. A held lock yields *RunInProgressError.
func (l *RunLock) Acquire(ctx context.Context, taskID string) error {
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := l.cache.SetNX(ctx, l.key, taskID, l.ttl)
		if err != nil {
			return fmt.Errorf("failed to acquire %s: %w", l.key, err)
		}
		if ok {
			return nil
		}

		holder, err := l.cache.Get(ctx, l.key)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", l.key, err)
		}
		if holder == taskID {
			return nil
		}
		// The lock expired between both calls.
		if holder != "" {
			return &RunInProgressError{Lock: l.key, TaskID: holder}
		}
	}
	return fmt.Errorf("failed to acquire %s: lock changed concurrently", l.key)
}

// Release drops the lock if taskID still holds it.
func (l *RunLock) Release(ctx context.Context, taskID string) error {
	if _, err := l.cache.DeleteIfEquals(ctx, l.key, taskID); err != nil {
		return fmt.Errorf("failed to release %s: %w", l.key, err)
	}
	return nil
}

// Holder returns the active task ID or an empty string.
func (l *RunLock) Holder(ctx context.Context) (string, error) {
	holder, err := l.cache.Get(ctx, l.key)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", l.key, err)
	}
	return holder, nil
}
