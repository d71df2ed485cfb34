package cache

import (
	"time"
)

// DefaultTTL is applied by MemoryCache when Set is called without a TTL.
const DefaultTTL = time.Hour

// Entry is a single stored value and the instant it stops being visible.
type Entry struct {
	// Key is the cache key the entry was stored under
	Key string

	// Value is the encoded payload
	Value []byte

	// ExpiresAt is the first instant at which the entry is no longer visible
	ExpiresAt time.Time
}

// ExpiredAt reports whether the entry is logically deleted at now.
// An entry is visible only while now < ExpiresAt.
func (e *Entry) ExpiredAt(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// TTLAt returns the time left before expiration at now.
// Returns 0 if already expired.
func (e *Entry) TTLAt(now time.Time) time.Duration {
	ttl := e.ExpiresAt.Sub(now)
	if ttl < 0 {
		return 0
	}
	return ttl
}
