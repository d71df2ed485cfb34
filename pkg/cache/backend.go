package cache

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrCacheMiss indicates the requested key was not found or has expired
	ErrCacheMiss = errors.New("cache miss")

	// ErrSerialization indicates a value could not be encoded or decoded
	ErrSerialization = errors.New("cache serialization failed")

	// ErrBackendUnavailable indicates the primary backend failed its probe
	ErrBackendUnavailable = errors.New("cache backend unavailable")
)

// Backend is a byte-oriented key-value store with per-key expiration.
// A ttl of 0 means "use the backend's default".
type Backend interface {
	Name() string
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	ClearPattern(ctx context.Context, pattern string) (int, error)
	Stats(ctx context.Context) Stats
}

// Pinger is implemented by backends that can be probed for connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Backend status values reported in Stats.
const (
	StatusAvailable   = "available"
	StatusUnavailable = "unavailable"
	StatusError       = "error"
)

// Stats is a point-in-time view of a backend. Fields that do not apply to
// a backend are left zero and omitted from JSON.
type Stats struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
	Error   string `json:"error,omitempty"`

	// Fallback is set by Cache when the memory fallback serves calls
	Fallback bool `json:"fallback"`

	TotalEntries   int   `json:"total_entries"`
	ActiveEntries  int   `json:"active_entries,omitempty"`
	ExpiredEntries int   `json:"expired_entries,omitempty"`
	MaxSize        int   `json:"max_size,omitempty"`
	MemoryBytes    int64 `json:"memory_bytes,omitempty"`

	UsedMemory             string `json:"used_memory,omitempty"`
	ConnectedClients       int64  `json:"connected_clients,omitempty"`
	TotalCommandsProcessed int64  `json:"total_commands_processed,omitempty"`
	KeyspaceHits           int64  `json:"keyspace_hits,omitempty"`
	KeyspaceMisses         int64  `json:"keyspace_misses,omitempty"`
}
