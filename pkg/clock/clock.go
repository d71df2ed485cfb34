// Package clock provides the time source used by every expiration and
// admission decision in the cache and rate limiter.
package clock

import "time"

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// Real is the wall clock. The returned time carries a monotonic reading,
// so comparisons between two Now() values are immune to wall-clock jumps.
type Real struct{}

// Now returns time.Now().
func (Real) Now() time.Time { return time.Now() }

// OrReal returns c, or Real when c is nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return Real{}
	}
	return c
}
