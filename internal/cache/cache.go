package cache

import (
	"context"
	"strconv"
	"sync"
	"time"
)

// KV is a key-value store whose entries expire. Incr starts a fresh
// counter with the given ttl when the key is missing or expired; later
// increments keep the original expiry.
type KV interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type entry struct {
	value     string
	expiresAt time.Time
}

// Memory is the single-process KV. Expired entries are dropped lazily on
// access and by Sweep.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemory() *Memory {
	return NewMemoryWithClock(time.Now)
}

func NewMemoryWithClock(now func() time.Time) *Memory {
	return &Memory{entries: make(map[string]entry), now: now}
}

func (m *Memory) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	current, ok := m.live(key, now)
	if !ok {
		m.entries[key] = entry{value: "1", expiresAt: expiry(now, ttl)}
		return 1, nil
	}

	n, err := strconv.ParseInt(current.value, 10, 64)
	if err != nil {
		return 0, err
	}
	n++
	current.value = strconv.FormatInt(n, 10)
	m.entries[key] = current
	return n, nil
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.live(key, m.now())
	if !ok {
		return "", false, nil
	}
	return current.value, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[key] = entry{value: value, expiresAt: expiry(m.now(), ttl)}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.entries, key)
	return nil
}

// Sweep drops every expired entry and returns how many went.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for key, e := range m.entries {
		if expired(e, now) {
			delete(m.entries, key)
			removed++
		}
	}
	return removed
}

// live must be called with mu held.
func (m *Memory) live(key string, now time.Time) (entry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return entry{}, false
	}
	if expired(e, now) {
		delete(m.entries, key)
		return entry{}, false
	}
	return e, true
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

func expired(e entry, now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}
