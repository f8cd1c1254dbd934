package cache

import (
	"path"
	"sync"
	"time"
)

type entry struct {
	value     []byte
	createdAt time.Time
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is the in-process tier. A single mutex guards the key table and its
// expiry metadata. Expired entries are dropped lazily on read or by Purge;
// no background goroutine runs.
type Memory struct {
	mu         sync.Mutex
	entries    map[string]entry
	maxEntries int
	now        func() time.Time
}

// NewMemory creates an in-process tier. maxEntries <= 0 means unbounded;
// otherwise the oldest entry is evicted when a new key would exceed it.
func NewMemory(maxEntries int, now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}
	return &Memory{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
		now:        now,
	}
}

// Get returns the value and its remaining TTL. A zero TTL means the entry
// never expires.
func (m *Memory) Get(key string) ([]byte, time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, 0, false
	}
	now := m.now()
	if e.expired(now) {
		delete(m.entries, key)
		return nil, 0, false
	}

	var remaining time.Duration
	if !e.expiresAt.IsZero() {
		remaining = e.expiresAt.Sub(now)
	}
	return e.value, remaining, true
}

// Set stores value under key. A non-positive ttl stores without expiry.
func (m *Memory) Set(key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e := entry{value: value, createdAt: now}
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	}

	if _, exists := m.entries[key]; !exists && m.maxEntries > 0 && len(m.entries) >= m.maxEntries {
		m.evictLocked(now)
	}
	m.entries[key] = e
}

// evictLocked drops expired entries, or the oldest one if none expired.
func (m *Memory) evictLocked(now time.Time) {
	if m.purgeLocked(now) > 0 {
		return
	}

	var oldestKey string
	var oldest time.Time
	for k, e := range m.entries {
		if oldestKey == "" || e.createdAt.Before(oldest) {
			oldestKey, oldest = k, e.createdAt
		}
	}
	delete(m.entries, oldestKey)
}

// Delete removes a key.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// DeletePattern removes every key matching a glob pattern ("*", "?",
// "[...]") and returns how many were removed.
func (m *Memory) DeletePattern(pattern string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k := range m.entries {
		if ok, _ := path.Match(pattern, k); ok {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Purge drops expired entries and returns how many were removed.
func (m *Memory) Purge() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.purgeLocked(m.now())
}

func (m *Memory) purgeLocked(now time.Time) int {
	removed := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included until
// they are purged.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Clear removes every entry.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.entries)
}
