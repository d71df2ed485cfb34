package ratelimit

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/Sternrassler/learnia-guard/internal/testutil"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestLimiter(t *testing.T) (*Limiter, *testutil.FakeClock) {
	t.Helper()
	clk := testutil.NewFakeClock(epoch)
	return NewLimiter(WithClock(clk), WithLogger(zerolog.Nop())), clk
}

func TestLimiter_AllowsUpToMaxThenLocks(t *testing.T) {
	l, clk := newTestLimiter(t)

	for i := 1; i <= 5; i++ {
		if !l.IsAllowed("ip_1", 5, time.Minute, time.Hour) {
			t.Fatalf("request %d denied, want allowed", i)
		}
		clk.Advance(time.Second)
	}

	if l.IsAllowed("ip_1", 5, time.Minute, time.Hour) {
		t.Fatal("6th request allowed, want denied")
	}

	s := l.State("ip_1", Policy{MaxRequests: 5, Window: time.Minute})
	if s.Status != StatusLocked {
		t.Errorf("status after 6th request = %v, want %v", s.Status, StatusLocked)
	}
	if want := clk.Now().Add(time.Hour); !s.UnblockAt.Equal(want) {
		t.Errorf("UnblockAt = %v, want %v", s.UnblockAt, want)
	}
}

func TestLimiter_LockoutIgnoresWindowRoom(t *testing.T) {
	l, clk := newTestLimiter(t)

	for i := 0; i < 6; i++ {
		l.IsAllowed("ip_1", 5, time.Minute, time.Hour)
	}

	// Every request has aged out of the window, the lockout has not.
	clk.Advance(10 * time.Minute)
	if got := l.Remaining("ip_1", 5, time.Minute); got != 5 {
		t.Fatalf("Remaining() = %d, want 5 after window aged out", got)
	}
	if l.IsAllowed("ip_1", 5, time.Minute, time.Hour) {
		t.Error("request allowed during active lockout")
	}
}

func TestLimiter_ReleaseStartsFreshWindow(t *testing.T) {
	l, clk := newTestLimiter(t)
	p := Policy{MaxRequests: 5, Window: 2 * time.Hour, BlockDuration: time.Hour}

	for i := 0; i < 6; i++ {
		l.Allow("ip_1", p)
	}

	// The five admitted requests are still inside the 2h window here,
	// but the expired lockout forgives them.
	clk.Advance(time.Hour)
	d := l.Allow("ip_1", p)
	if !d.Allowed {
		t.Fatal("first request after unblock denied")
	}

	s := l.State("ip_1", p)
	if s.Requests != 1 {
		t.Errorf("window size after release = %d, want 1", s.Requests)
	}
	if d.Remaining != 4 {
		t.Errorf("Remaining = %d, want 4", d.Remaining)
	}
}

func TestLimiter_UnblockBoundary(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		allowed bool
	}{
		{name: "just before unblock", advance: time.Hour - time.Nanosecond, allowed: false},
		{name: "exactly at unblock", advance: time.Hour, allowed: true},
		{name: "after unblock", advance: time.Hour + time.Second, allowed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, clk := newTestLimiter(t)
			for i := 0; i < 3; i++ {
				l.IsAllowed("ip_1", 2, time.Minute, time.Hour)
			}

			clk.Advance(tt.advance)
			if got := l.IsAllowed("ip_1", 2, time.Minute, time.Hour); got != tt.allowed {
				t.Errorf("IsAllowed() = %v, want %v", got, tt.allowed)
			}
		})
	}
}

func TestLimiter_Remaining(t *testing.T) {
	l, clk := newTestLimiter(t)

	for i := 0; i < 3; i++ {
		l.IsAllowed("ip_1", 5, time.Minute, time.Hour)
	}
	if got := l.Remaining("ip_1", 5, time.Minute); got != 2 {
		t.Errorf("Remaining() after 3 of 5 = %d, want 2", got)
	}

	clk.Advance(time.Minute + time.Second)
	if got := l.Remaining("ip_1", 5, time.Minute); got != 5 {
		t.Errorf("Remaining() after window aged out = %d, want 5", got)
	}

	if got := l.Remaining("unknown", 5, time.Minute); got != 5 {
		t.Errorf("Remaining() for unknown identifier = %d, want 5", got)
	}
}

func TestLimiter_WindowSlides(t *testing.T) {
	l, clk := newTestLimiter(t)
	p := Policy{MaxRequests: 2, Window: time.Minute}

	l.Allow("ip_1", p)
	clk.Advance(30 * time.Second)
	l.Allow("ip_1", p)

	// At exactly +60s the first request still counts.
	clk.Advance(30 * time.Second)
	if d := l.Allow("ip_1", p); d.Allowed {
		t.Error("request allowed while the oldest timestamp was on the window edge")
	}
}

func TestLimiter_WindowSlidesPastEdge(t *testing.T) {
	l, clk := newTestLimiter(t)
	p := Policy{MaxRequests: 2, Window: time.Minute}

	l.Allow("ip_1", p)
	clk.Advance(30 * time.Second)
	l.Allow("ip_1", p)

	clk.Advance(30*time.Second + time.Nanosecond)
	if d := l.Allow("ip_1", p); !d.Allowed {
		t.Error("request denied after the oldest timestamp left the window")
	}
}

func TestLimiter_IdentifiersAreIndependent(t *testing.T) {
	l, _ := newTestLimiter(t)
	p := Policy{MaxRequests: 1, Window: time.Minute}

	l.Allow("ip_1", p)
	l.Allow("ip_1", p)

	if d := l.Allow("ip_2", p); !d.Allowed {
		t.Error("lockout of ip_1 affected ip_2")
	}
}

func TestLimiter_Decision(t *testing.T) {
	l, clk := newTestLimiter(t)
	p := Policy{MaxRequests: 2, Window: time.Minute, BlockDuration: 10 * time.Minute}

	d := l.Allow("ip_1", p)
	if !d.Allowed || d.Limit != 2 || d.Remaining != 1 {
		t.Errorf("first decision = %+v", d)
	}
	if want := epoch.Add(time.Minute); !d.ResetAt.Equal(want) {
		t.Errorf("ResetAt = %v, want %v", d.ResetAt, want)
	}

	l.Allow("ip_1", p)
	d = l.Allow("ip_1", p)
	if d.Allowed || d.Remaining != 0 || d.RetryAfter != 10*time.Minute {
		t.Errorf("lockout decision = %+v", d)
	}

	clk.Advance(4 * time.Minute)
	d = l.Allow("ip_1", p)
	if d.RetryAfter != 6*time.Minute {
		t.Errorf("RetryAfter during lockout = %v, want 6m", d.RetryAfter)
	}
}

func TestLimiter_DefaultBlockDuration(t *testing.T) {
	l, clk := newTestLimiter(t)
	p := Policy{MaxRequests: 1, Window: time.Minute}

	l.Allow("ip_1", p)
	d := l.Allow("ip_1", p)
	if d.RetryAfter != DefaultBlockDuration {
		t.Errorf("RetryAfter = %v, want %v", d.RetryAfter, DefaultBlockDuration)
	}

	clk.Advance(DefaultBlockDuration - time.Second)
	if l.Allow("ip_1", p).Allowed {
		t.Error("allowed before default block duration elapsed")
	}
}

func TestLimiter_Check(t *testing.T) {
	l, _ := newTestLimiter(t)
	p := Policy{MaxRequests: 1, Window: time.Minute, BlockDuration: 90 * time.Second}

	if err := l.Check("user_7", p); err != nil {
		t.Fatalf("Check() first call error = %v", err)
	}

	err := l.Check("user_7", p)
	if !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("Check() error = %v, want ErrRateLimitExceeded", err)
	}

	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("Check() error type = %T, want *ExceededError", err)
	}
	if exceeded.Identifier != "user_7" {
		t.Errorf("Identifier = %q", exceeded.Identifier)
	}
	if exceeded.RetryAfterSeconds() != 90 {
		t.Errorf("RetryAfterSeconds() = %d, want 90", exceeded.RetryAfterSeconds())
	}
}

func TestLimiter_Reset(t *testing.T) {
	l, _ := newTestLimiter(t)
	p := Policy{MaxRequests: 1, Window: time.Minute}

	l.Allow("ip_1", p)
	l.Allow("ip_1", p)
	l.Reset("ip_1")

	if s := l.State("ip_1", p); s.Status != StatusClear {
		t.Errorf("status after Reset = %v, want %v", s.Status, StatusClear)
	}
	if !l.Allow("ip_1", p).Allowed {
		t.Error("request denied after Reset")
	}
}

func TestLimiter_Cleanup(t *testing.T) {
	clk := testutil.NewFakeClock(epoch)
	l := NewLimiter(WithClock(clk), WithLogger(zerolog.Nop()), WithRetention(time.Minute))
	p := Policy{MaxRequests: 1, Window: time.Minute, BlockDuration: 5 * time.Minute}

	l.Allow("idle", p)
	l.Allow("locked", p)
	l.Allow("locked", p)

	clk.Advance(2 * time.Minute)
	l.Allow("fresh", p)

	if removed := l.Cleanup(); removed != 1 {
		t.Errorf("Cleanup() removed %d, want 1 (idle)", removed)
	}
	if s := l.State("locked", p); s.Status != StatusLocked {
		t.Errorf("Cleanup dropped an active lockout, status = %v", s.Status)
	}

	clk.Advance(5 * time.Minute)
	if removed := l.Cleanup(); removed != 2 {
		t.Errorf("Cleanup() removed %d, want 2 (locked, fresh)", removed)
	}
	if !l.Allow("locked", p).Allowed {
		t.Error("request denied after expired lockout was cleaned up")
	}
}

func TestLimiter_CleanupKeepsLongWindows(t *testing.T) {
	clk := testutil.NewFakeClock(epoch)
	l := NewLimiter(WithClock(clk), WithLogger(zerolog.Nop()), WithRetention(time.Minute))

	// Window longer than the retention period.
	for i := 0; i < 3; i++ {
		if !l.IsAllowed("ip_1", 3, time.Hour, time.Hour) {
			t.Fatalf("request %d denied", i+1)
		}
	}

	clk.Advance(10 * time.Minute)
	if removed := l.Cleanup(); removed != 0 {
		t.Errorf("Cleanup() removed %d, want 0 while the hour window is live", removed)
	}
	if l.IsAllowed("ip_1", 3, time.Hour, time.Hour) {
		t.Error("request allowed after Cleanup dropped live history")
	}
}

func TestLimiter_ConcurrentNoOvershoot(t *testing.T) {
	l, _ := newTestLimiter(t)
	const maxRequests = 10

	var admitted atomic.Int64
	var wg sync.WaitGroup
	start := make(chan struct{})

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if l.IsAllowed("ip_shared", maxRequests, time.Minute, time.Hour) {
				admitted.Add(1)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := admitted.Load(); got != maxRequests {
		t.Errorf("admitted %d requests, want exactly %d", got, maxRequests)
	}
	if s := l.State("ip_shared", Policy{MaxRequests: maxRequests, Window: time.Minute}); s.Status != StatusLocked {
		t.Errorf("status = %v, want %v", s.Status, StatusLocked)
	}
}
