package cache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

// Memory is an in-process Cache and Queue. It is used when no Redis address
// is configured (single process deployments) and in tests.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	lists   map[string][]string
	signal  chan struct{}
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		lists:   make(map[string][]string),
		signal:  make(chan struct{}),
		now:     time.Now,
	}
}

// lookup returns the live entry for key, dropping it when expired.
func (m *Memory) lookup(key string) (memoryEntry, bool) {
	entry, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.IsZero() && !m.now().Before(entry.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}

func (m *Memory) store(key, value string, ttl time.Duration) {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.now().Add(ttl)
	}
	m.entries[key] = entry
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, _ := m.lookup(key)
	return entry.value, nil
}

func (m *Memory) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := encodeValue(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.store(key, string(data), ttl)
	return nil
}

func (m *Memory) SetNX(_ context.Context, key string, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookup(key); ok {
		return false, nil
	}
	m.store(key, value, ttl)
	return true, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

func (m *Memory) DeleteIfEquals(_ context.Context, key string, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lookup(key)
	if !ok || entry.value != value {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

func (m *Memory) CompareAndSwap(_ context.Context, key string, old string, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lookup(key)
	if (ok && entry.value != old) || (!ok && old != "") {
		return false, nil
	}
	m.store(key, value, ttl)
	return true, nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.lookup(key)
	return ok, nil
}

// GetTTL mirrors Redis: -2s for a missing key, -1s for a key without expiry.
func (m *Memory) GetTTL(_ context.Context, key string) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lookup(key)
	if !ok {
		return -2 * time.Second, nil
	}
	if entry.expiresAt.IsZero() {
		return -1 * time.Second, nil
	}
	return entry.expiresAt.Sub(m.now()), nil
}

func (m *Memory) Push(_ context.Context, key string, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lists[key] = append(m.lists[key], value)
	close(m.signal)
	m.signal = make(chan struct{})
	return nil
}

func (m *Memory) Pop(ctx context.Context, key string, timeout time.Duration) (string, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		m.mu.Lock()
		if list := m.lists[key]; len(list) > 0 {
			value := list[0]
			m.lists[key] = list[1:]
			m.mu.Unlock()
			return value, nil
		}
		signal := m.signal
		m.mu.Unlock()

		select {
		case <-signal:
		case <-timer.C:
			return "", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

func (m *Memory) Health(_ context.Context) map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]interface{}{
		"status":    "healthy",
		"type":      "memory",
		"key_count": len(m.entries),
	}
}

func (m *Memory) Close() error {
	return nil
}
