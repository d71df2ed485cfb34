package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Event is one admission decision as seen by a Recorder.
type Event struct {
	Identifier string
	Allowed    bool
	Method     string
	Path       string
	At         time.Time
}

// Recorder persists decision statistics. Implementations are best-effort:
// Middleware logs a Record error and carries on.
type Recorder interface {
	Record(ctx context.Context, ev Event) error
}

// Counters is an allowed/denied pair.
type Counters struct {
	Allowed int64 `json:"allowed" redis:"allowed"`
	Denied  int64 `json:"denied" redis:"denied"`
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
}

// MemoryRecorder keeps counters in process memory. Nothing expires.
type MemoryRecorder struct {
	mu      sync.Mutex
	total   Counters
	byRoute map[string]Counters
}

// NewMemoryRecorder creates an empty MemoryRecorder.
func NewMemoryRecorder() *MemoryRecorder {
	return &MemoryRecorder{byRoute: make(map[string]Counters)}
}

// Record implements Recorder.
func (m *MemoryRecorder) Record(_ context.Context, ev Event) error {
	route := routeName(ev)

	m.mu.Lock()
	defer m.mu.Unlock()

	m.total.add(ev.Allowed)
	if route != "" {
		c := m.byRoute[route]
		c.add(ev.Allowed)
		m.byRoute[route] = c
	}
	return nil
}

// Total returns the counters across all routes.
func (m *MemoryRecorder) Total() Counters {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// ByRoute returns a copy of the per-route counters keyed by "METHOD /path".
func (m *MemoryRecorder) ByRoute() map[string]Counters {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Counters, len(m.byRoute))
	for k, v := range m.byRoute {
		out[k] = v
	}
	return out
}

// Default RedisRecorder settings.
const (
	DefaultRecorderPrefix = "learnia:ratelimit:stats"
	DefaultRecorderTTL    = 24 * time.Hour
)

// RedisRecorder aggregates decisions in Redis hashes:
//
//	<prefix>:total               allowed/denied since start
//	<prefix>:minute:YYYYMMDDhhmm per-minute buckets, expiring after ttl
//	<prefix>:route               "<METHOD> <path>:allowed|denied"
//
// The hashes are shared by every process using the same prefix; they are
// reporting data only.
type RedisRecorder struct {
	redis  *redis.Client
	prefix string
	ttl    time.Duration
}

// RecorderOption configures a RedisRecorder.
type RecorderOption func(*RedisRecorder)

// WithRecorderPrefix overrides DefaultRecorderPrefix.
func WithRecorderPrefix(prefix string) RecorderOption {
	return func(r *RedisRecorder) {
		if p := strings.Trim(prefix, ":"); p != "" {
			r.prefix = p
		}
	}
}

// WithRecorderTTL overrides DefaultRecorderTTL for minute buckets.
// 0 keeps buckets forever.
func WithRecorderTTL(ttl time.Duration) RecorderOption {
	return func(r *RedisRecorder) { r.ttl = ttl }
}

// NewRedisRecorder creates a recorder writing through client.
func NewRedisRecorder(client *redis.Client, opts ...RecorderOption) *RedisRecorder {
	r := &RedisRecorder{
		redis:  client,
		prefix: DefaultRecorderPrefix,
		ttl:    DefaultRecorderTTL,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record implements Recorder with a single pipelined round trip.
func (r *RedisRecorder) Record(ctx context.Context, ev Event) error {
	if r == nil || r.redis == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	field := counterField(ev.Allowed)

	pipe := r.redis.Pipeline()
	pipe.HIncrBy(ctx, r.totalKey(), field, 1)

	bucket := r.minuteKey(at)
	pipe.HIncrBy(ctx, bucket, field, 1)
	if r.ttl > 0 {
		pipe.Expire(ctx, bucket, r.ttl)
	}

	if route := routeName(ev); route != "" {
		pipe.HIncrBy(ctx, r.routeKey(), route+":"+field, 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record rate limit decision: %w", err)
	}
	return nil
}

// Total reads the cumulative counters.
func (r *RedisRecorder) Total(ctx context.Context) (Counters, error) {
	return r.counters(ctx, r.totalKey())
}

// Minute reads the counters of the minute bucket containing at.
func (r *RedisRecorder) Minute(ctx context.Context, at time.Time) (Counters, error) {
	return r.counters(ctx, r.minuteKey(at))
}

// ByRoute reads the per-route counters keyed by "METHOD /path".
func (r *RedisRecorder) ByRoute(ctx context.Context) (map[string]Counters, error) {
	fields, err := r.redis.HGetAll(ctx, r.routeKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("get route counters: %w", err)
	}

	out := make(map[string]Counters)
	for field, raw := range fields {
		i := strings.LastIndexByte(field, ':')
		if i < 0 {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse route counter %q: %w", field, err)
		}

		route, kind := field[:i], field[i+1:]
		c := out[route]
		switch kind {
		case "allowed":
			c.Allowed = n
		case "denied":
			c.Denied = n
		}
		out[route] = c
	}
	return out, nil
}

func (r *RedisRecorder) counters(ctx context.Context, key string) (Counters, error) {
	var c Counters
	if err := r.redis.HGetAll(ctx, key).Scan(&c); err != nil {
		return Counters{}, fmt.Errorf("get counters %s: %w", key, err)
	}
	return c, nil
}

func (r *RedisRecorder) totalKey() string { return r.prefix + ":total" }
func (r *RedisRecorder) routeKey() string { return r.prefix + ":route" }

func (r *RedisRecorder) minuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
}

func counterField(allowed bool) string {
	if allowed {
		return "allowed"
	}
	return "denied"
}

func routeName(ev Event) string {
	return strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))
}
