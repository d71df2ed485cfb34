package cache

import (
	"context"
	"errors"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultProbeTimeout bounds the connectivity probe run by New.
const DefaultProbeTimeout = 2 * time.Second

// Cache routes every operation to the primary backend when its probe
// succeeded and to the memory fallback otherwise. Each call picks exactly
// one backend. Backend and serialization failures are logged, counted and
// reported as a miss / false / 0; they are never returned to the caller.
type Cache struct {
	primary      Backend
	fallback     *MemoryCache
	codec        Codec
	logger       zerolog.Logger
	probeTimeout time.Duration
	available    atomic.Bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithCodec replaces the default JSONCodec.
func WithCodec(codec Codec) Option {
	return func(c *Cache) {
		if codec != nil {
			c.codec = codec
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Cache) { c.logger = logger }
}

// WithProbeTimeout overrides DefaultProbeTimeout.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.probeTimeout = d
		}
	}
}

// New creates a cache and probes primary once. A nil primary, or one whose
// probe fails, leaves the cache on the fallback for its whole lifetime
// unless StartReprobe is used. A nil fallback gets a default MemoryCache.
func New(ctx context.Context, primary Backend, fallback *MemoryCache, opts ...Option) *Cache {
	if fallback == nil {
		fallback = NewMemoryCache(DefaultMaxSize)
	}
	c := &Cache{
		primary:      primary,
		fallback:     fallback,
		codec:        JSONCodec{},
		logger:       log.With().Str("component", "cache").Logger(),
		probeTimeout: DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if primary == nil {
		c.logger.Info().Msg("No primary cache backend configured, using memory cache")
		c.setAvailable(false)
		return c
	}

	if err := c.probe(ctx); err != nil {
		c.logger.Warn().Err(err).
			Str("backend", primary.Name()).
			Msg("Primary cache backend unavailable, falling back to memory cache")
		c.setAvailable(false)
		return c
	}

	c.logger.Info().Str("backend", primary.Name()).Msg("Primary cache backend connected")
	c.setAvailable(true)
	return c
}

// PrimaryAvailable reports whether calls are routed to the primary backend.
func (c *Cache) PrimaryAvailable() bool {
	return c.available.Load()
}

// Backend returns the name of the backend currently serving calls.
func (c *Cache) Backend() string {
	return c.active().Name()
}

// Get decodes the value stored under key into dst. It returns false on a
// miss, on any backend error and when the payload cannot be decoded.
func (c *Cache) Get(ctx context.Context, key string, dst any) bool {
	data, ok := c.GetBytes(ctx, key)
	if !ok {
		return false
	}
	if err := c.codec.Unmarshal(data, dst); err != nil {
		CacheErrors.WithLabelValues("decode").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Cached payload could not be decoded, treating as miss")
		return false
	}
	return true
}

// GetBytes returns the raw encoded payload stored under key.
func (c *Cache) GetBytes(ctx context.Context, key string) ([]byte, bool) {
	backend := c.active()

	data, err := backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.backendError(backend, "get", key, err)
		}
		CacheMisses.WithLabelValues(backend.Name()).Inc()
		c.logger.Debug().Str("key", key).Str("backend", backend.Name()).Msg("Cache miss")
		return nil, false
	}

	CacheHits.WithLabelValues(backend.Name()).Inc()
	c.logger.Debug().Str("key", key).Str("backend", backend.Name()).Msg("Cache hit")
	return data, true
}

// Set encodes value and stores it under key for ttl. A ttl of 0 means the
// backend default (one hour for the memory cache); a negative ttl is
// rejected.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	if ttl < 0 {
		c.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("Refusing to cache with negative TTL")
		return false
	}

	data, err := c.codec.Marshal(value)
	if err != nil {
		CacheErrors.WithLabelValues("encode").Inc()
		c.logger.Warn().Err(err).Str("key", key).Msg("Value could not be encoded, not cached")
		return false
	}

	return c.SetBytes(ctx, key, data, ttl)
}

// SetBytes stores an already encoded payload.
func (c *Cache) SetBytes(ctx context.Context, key string, data []byte, ttl time.Duration) bool {
	if ttl < 0 {
		return false
	}

	backend := c.active()
	if err := backend.Set(ctx, key, data, ttl); err != nil {
		c.backendError(backend, "set", key, err)
		return false
	}

	c.logger.Debug().Str("key", key).Str("backend", backend.Name()).Dur("ttl", ttl).Msg("Cached value")
	return true
}

// Delete removes key and reports whether it existed.
func (c *Cache) Delete(ctx context.Context, key string) bool {
	backend := c.active()
	existed, err := backend.Delete(ctx, key)
	if err != nil {
		c.backendError(backend, "delete", key, err)
		return false
	}
	return existed
}

// Exists reports whether key holds an unexpired value.
func (c *Cache) Exists(ctx context.Context, key string) bool {
	backend := c.active()
	ok, err := backend.Exists(ctx, key)
	if err != nil {
		c.backendError(backend, "exists", key, err)
		return false
	}
	return ok
}

// ClearPattern deletes every key fully matching the glob, where '*' is the
// only wildcard, and returns the number of keys removed.
func (c *Cache) ClearPattern(ctx context.Context, pattern string) int {
	backend := c.active()
	n, err := backend.ClearPattern(ctx, pattern)
	if err != nil {
		c.backendError(backend, "clear_pattern", pattern, err)
		return n
	}

	c.logger.Info().
		Str("pattern", pattern).
		Str("backend", backend.Name()).
		Int("deleted", n).
		Msg("Cleared cache keys by pattern")
	return n
}

// Stats reports the active backend's statistics.
func (c *Cache) Stats(ctx context.Context) Stats {
	stats := c.active().Stats(ctx)
	stats.Fallback = !c.PrimaryAvailable()
	return stats
}

// Reprobe pings the primary once and, on success, routes subsequent calls
// to it. It returns whether the primary is available afterwards.
func (c *Cache) Reprobe(ctx context.Context) bool {
	if c.primary == nil {
		return false
	}
	if c.PrimaryAvailable() {
		return true
	}
	if err := c.probe(ctx); err != nil {
		c.logger.Debug().Err(err).Msg("Primary cache backend still unavailable")
		return false
	}
	c.logger.Info().Str("backend", c.primary.Name()).Msg("Primary cache backend recovered")
	c.setAvailable(true)
	return true
}

// ReprobeConfig controls StartReprobe.
type ReprobeConfig struct {
	// Interval is the wait before the first re-probe.
	Interval time.Duration

	// MaxBackoff caps the wait between failed probes.
	MaxBackoff time.Duration

	// BackoffMultiplier grows the wait after each failed probe.
	BackoffMultiplier float64
}

// DefaultReprobeConfig returns the default re-probe configuration.
func DefaultReprobeConfig(interval time.Duration) ReprobeConfig {
	return ReprobeConfig{
		Interval:          interval,
		MaxBackoff:        5 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// StartReprobe re-probes an unavailable primary in the background with
// exponential backoff until it answers or ctx is done. Without it the
// fallback decision made by New is permanent.
func (c *Cache) StartReprobe(ctx context.Context, cfg ReprobeConfig) {
	if c.primary == nil || cfg.Interval <= 0 {
		return
	}
	if cfg.MaxBackoff < cfg.Interval {
		cfg.MaxBackoff = cfg.Interval
	}
	if cfg.BackoffMultiplier < 1 {
		cfg.BackoffMultiplier = 1
	}

	go func() {
		backoff := cfg.Interval
		for !c.PrimaryAvailable() {
			// ±20% jitter
			wait := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))

			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}

			if c.Reprobe(ctx) {
				return
			}

			backoff = time.Duration(float64(backoff) * cfg.BackoffMultiplier)
			if backoff > cfg.MaxBackoff {
				backoff = cfg.MaxBackoff
			}
		}
	}()
}

func (c *Cache) active() Backend {
	if c.available.Load() {
		return c.primary
	}
	return c.fallback
}

func (c *Cache) probe(ctx context.Context) error {
	pinger, ok := c.primary.(Pinger)
	if !ok {
		return nil
	}
	probeCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()
	return pinger.Ping(probeCtx)
}

func (c *Cache) setAvailable(v bool) {
	c.available.Store(v)
	if v {
		PrimaryAvailable.Set(1)
	} else {
		PrimaryAvailable.Set(0)
	}
}

func (c *Cache) backendError(backend Backend, operation, key string, err error) {
	CacheErrors.WithLabelValues(operation).Inc()
	c.logger.Warn().Err(err).
		Str("backend", backend.Name()).
		Str("operation", operation).
		Str("key", key).
		Msg("Cache operation failed")
}
