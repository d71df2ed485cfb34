package cache

import (
	"context"
	"sync"
	"time"

	"github.com/Sternrassler/learnia-guard/pkg/clock"
)

// DefaultMaxSize is the MemoryCache capacity used when none is given.
const DefaultMaxSize = 1000

// MemoryCache is the in-process fallback backend. A single mutex guards
// the entry map; no I/O happens while it is held.
//
// Capacity is managed by sweeping expired entries whenever the map has
// reached maxSize before an insert. Unexpired entries are never evicted,
// so the map may grow past maxSize when nothing has expired.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	maxSize    int
	defaultTTL time.Duration
	clock      clock.Clock
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithMemoryClock sets the clock used for expiration.
func WithMemoryClock(c clock.Clock) MemoryOption {
	return func(m *MemoryCache) { m.clock = clock.OrReal(c) }
}

// WithMemoryDefaultTTL overrides DefaultTTL.
func WithMemoryDefaultTTL(ttl time.Duration) MemoryOption {
	return func(m *MemoryCache) {
		if ttl > 0 {
			m.defaultTTL = ttl
		}
	}
}

// NewMemoryCache creates a memory cache holding about maxSize entries.
func NewMemoryCache(maxSize int, opts ...MemoryOption) *MemoryCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	m := &MemoryCache{
		entries:    make(map[string]*Entry),
		maxSize:    maxSize,
		defaultTTL: DefaultTTL,
		clock:      clock.Real{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Name implements Backend.
func (m *MemoryCache) Name() string { return "memory" }

// Get returns the value stored under key. An expired entry is removed and
// reported as ErrCacheMiss.
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.liveLocked(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return entry.Value, nil
}

// Set stores value under key. A ttl of 0 applies the default TTL.
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = m.defaultTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	if len(m.entries) >= m.maxSize {
		m.sweepLocked(now)
	}

	m.entries[key] = &Entry{
		Key:       key,
		Value:     value,
		ExpiresAt: now.Add(ttl),
	}
	return nil
}

// Delete removes key and reports whether it held an unexpired entry.
func (m *MemoryCache) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.liveLocked(key); !ok {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

// Exists reports whether key holds an unexpired entry, removing it if it
// has expired.
func (m *MemoryCache) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.liveLocked(key)
	return ok, nil
}

// ClearPattern deletes every key matching the glob and returns how many
// unexpired entries were removed.
func (m *MemoryCache) ClearPattern(_ context.Context, pattern string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	count := 0
	for key, entry := range m.entries {
		if !MatchPattern(pattern, key) {
			continue
		}
		delete(m.entries, key)
		if !entry.ExpiredAt(now) {
			count++
		}
	}
	return count, nil
}

// Clear removes all entries and returns how many there were.
func (m *MemoryCache) Clear() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := len(m.entries)
	m.entries = make(map[string]*Entry)
	return count
}

// Len returns the number of stored entries, expired or not.
func (m *MemoryCache) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sweep removes all expired entries and returns how many were removed.
func (m *MemoryCache) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sweepLocked(m.clock.Now())
}

// Stats implements Backend.
func (m *MemoryCache) Stats(_ context.Context) Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	stats := Stats{
		Status:       StatusAvailable,
		Backend:      m.Name(),
		TotalEntries: len(m.entries),
		MaxSize:      m.maxSize,
	}
	for key, entry := range m.entries {
		if entry.ExpiredAt(now) {
			stats.ExpiredEntries++
		} else {
			stats.ActiveEntries++
		}
		stats.MemoryBytes += int64(len(key) + len(entry.Value))
	}
	return stats
}

// liveLocked returns the unexpired entry for key, deleting it if expired.
func (m *MemoryCache) liveLocked(key string) (*Entry, bool) {
	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if entry.ExpiredAt(m.clock.Now()) {
		delete(m.entries, key)
		return nil, false
	}
	return entry, true
}

func (m *MemoryCache) sweepLocked(now time.Time) int {
	removed := 0
	for key, entry := range m.entries {
		if entry.ExpiredAt(now) {
			delete(m.entries, key)
			removed++
		}
	}
	CacheSweeps.Inc()
	CacheSweptEntries.Add(float64(removed))
	return removed
}
