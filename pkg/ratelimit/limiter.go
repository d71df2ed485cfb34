package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/learnia-guard/pkg/clock"
)

// DefaultRetention is how long an idle window is kept by Cleanup.
const DefaultRetention = time.Hour

// Decision is the result of one admission check.
type Decision struct {
	Allowed bool

	// Limit is the policy's MaxRequests
	Limit int

	// Remaining is the quota left after this decision (0 when denied)
	Remaining int

	// RetryAfter is the lockout time left (0 when allowed)
	RetryAfter time.Duration

	// ResetAt is when the oldest request leaves the window, or when the
	// lockout ends for a denial
	ResetAt time.Time
}

// Limiter tracks a sliding window and an optional lockout per identifier.
// It is safe for concurrent use; one mutex serializes all identifiers.
type Limiter struct {
	mu        sync.Mutex
	windows   map[string]*slidingWindow
	lockouts  lockoutTable
	clock     clock.Clock
	retention time.Duration
	logger    zerolog.Logger
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithClock sets the time source.
func WithClock(c clock.Clock) LimiterOption {
	return func(l *Limiter) { l.clock = clock.OrReal(c) }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) LimiterOption {
	return func(l *Limiter) { l.logger = logger }
}

// WithRetention sets how long Cleanup keeps windows whose newest request
// is older than d. A window evaluated under a longer policy window is kept
// for that longer duration instead.
func WithRetention(d time.Duration) LimiterOption {
	return func(l *Limiter) {
		if d > 0 {
			l.retention = d
		}
	}
}

// NewLimiter creates an empty limiter.
func NewLimiter(opts ...LimiterOption) *Limiter {
	l := &Limiter{
		windows:   make(map[string]*slidingWindow),
		lockouts:  make(lockoutTable),
		clock:     clock.Real{},
		retention: DefaultRetention,
		logger:    log.With().Str("component", "ratelimit").Logger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// IsAllowed admits or denies one request for id. blockDuration 0 means
// DefaultBlockDuration.
func (l *Limiter) IsAllowed(id string, maxRequests int, window, blockDuration time.Duration) bool {
	return l.Allow(id, Policy{MaxRequests: maxRequests, Window: window, BlockDuration: blockDuration}).Allowed
}

// Allow admits or denies one request for id under p.
func (l *Limiter) Allow(id string, p Policy) Decision {
	now := l.clock.Now()

	l.mu.Lock()
	d, result := l.admitLocked(id, p, now)
	tracked := len(l.windows)
	l.mu.Unlock()

	Decisions.WithLabelValues(result).Inc()
	TrackedIdentifiers.Set(float64(tracked))

	switch result {
	case resultDenied:
		Lockouts.Inc()
		l.logger.Warn().
			Str("identifier", id).
			Int("max_requests", p.MaxRequests).
			Dur("window", p.Window).
			Time("unblock_at", d.ResetAt).
			Msg("Rate limit exceeded, identifier locked")
	case resultLocked:
		l.logger.Debug().
			Str("identifier", id).
			Dur("retry_after", d.RetryAfter).
			Msg("Request denied by active lockout")
	default:
		l.logger.Debug().
			Str("identifier", id).
			Int("remaining", d.Remaining).
			Msg("Request allowed")
	}

	return d
}

func (l *Limiter) admitLocked(id string, p Policy, now time.Time) (Decision, string) {
	if until, locked := l.lockouts.active(id, now); locked {
		return Decision{
			Limit:      p.MaxRequests,
			RetryAfter: until.Sub(now),
			ResetAt:    until,
		}, resultLocked
	} else if !until.IsZero() {
		// Lockout over: forget the identifier's history entirely.
		delete(l.lockouts, id)
		delete(l.windows, id)
	}

	w, ok := l.windows[id]
	if !ok {
		w = &slidingWindow{}
		l.windows[id] = w
	}
	w.observe(p.Window)
	w.prune(now.Add(-p.Window))

	if w.len() >= p.MaxRequests {
		until := now.Add(p.block())
		l.lockouts[id] = until
		return Decision{
			Limit:      p.MaxRequests,
			RetryAfter: until.Sub(now),
			ResetAt:    until,
		}, resultDenied
	}

	w.add(now)
	oldest, _ := w.oldest()
	return Decision{
		Allowed:   true,
		Limit:     p.MaxRequests,
		Remaining: p.MaxRequests - w.len(),
		ResetAt:   oldest.Add(p.Window),
	}, resultAllowed
}

// Check is Allow returning an *ExceededError on denial.
func (l *Limiter) Check(id string, p Policy) error {
	d := l.Allow(id, p)
	if d.Allowed {
		return nil
	}
	return &ExceededError{
		Identifier: id,
		Policy:     p,
		RetryAfter: d.RetryAfter,
		Remaining:  d.Remaining,
	}
}

// Remaining prunes id's window and returns max(0, maxRequests - size).
// It ignores lockouts and never creates state for unknown identifiers.
func (l *Limiter) Remaining(id string, maxRequests int, window time.Duration) int {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[id]
	if !ok {
		return max(0, maxRequests)
	}
	w.prune(now.Add(-window))
	return max(0, maxRequests-w.len())
}

// Reset forgets id's window and lockout.
func (l *Limiter) Reset(id string) {
	l.mu.Lock()
	delete(l.windows, id)
	delete(l.lockouts, id)
	tracked := len(l.windows)
	l.mu.Unlock()

	TrackedIdentifiers.Set(float64(tracked))
	l.logger.Info().Str("identifier", id).Msg("Rate limit reset")
}

// State returns a snapshot of id under p without modifying the limiter.
// An expired lockout is reported as StatusClear, which is what the next
// Allow would observe.
func (l *Limiter) State(id string, p Policy) State {
	now := l.clock.Now()
	s := State{Identifier: id, Limit: p.MaxRequests, At: now}

	l.mu.Lock()
	defer l.mu.Unlock()

	until, locked := l.lockouts.active(id, now)
	switch {
	case locked:
		s.Status = StatusLocked
		s.UnblockAt = until
		if w, ok := l.windows[id]; ok {
			s.Requests = w.countSince(now.Add(-p.Window))
		}
		return s
	case !until.IsZero():
		s.Status = StatusClear
		return s
	}

	if w, ok := l.windows[id]; ok {
		s.Requests = w.countSince(now.Add(-p.Window))
	}
	s.Status = statusFor(s.Requests, p.MaxRequests)
	return s
}

// Cleanup drops expired lockouts together with their windows, and windows
// whose newest request is older than both the retention period and the
// longest policy window they were evaluated under. It never changes the
// outcome of a later Allow.
func (l *Limiter) Cleanup() int {
	now := l.clock.Now()

	l.mu.Lock()
	removed := 0
	for id, until := range l.lockouts {
		if !now.Before(until) {
			delete(l.lockouts, id)
			if _, ok := l.windows[id]; ok {
				delete(l.windows, id)
				removed++
			}
		}
	}
	for id, w := range l.windows {
		if _, locked := l.lockouts[id]; locked {
			continue
		}
		newest, ok := w.newest()
		if !ok || newest.Before(now.Add(-max(l.retention, w.span))) {
			delete(l.windows, id)
			removed++
		}
	}
	tracked := len(l.windows)
	l.mu.Unlock()

	TrackedIdentifiers.Set(float64(tracked))
	if removed > 0 {
		l.logger.Debug().Int("removed", removed).Int("tracked", tracked).Msg("Rate limit cleanup")
	}
	return removed
}

// StartJanitor runs Cleanup every interval until ctx is cancelled.
func (l *Limiter) StartJanitor(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}
