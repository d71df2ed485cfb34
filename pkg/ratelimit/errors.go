package ratelimit

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimitExceeded is matched by every denial returned from Check.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ExceededError describes a denied request.
type ExceededError struct {
	Identifier string
	Policy     Policy

	// RetryAfter is the time left until the identifier's lockout ends
	RetryAfter time.Duration

	// Remaining is the quota left to the identifier (0 while locked)
	Remaining int
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: limit %s, retry after %s",
		e.Identifier, e.Policy, e.RetryAfter)
}

// Unwrap returns ErrRateLimitExceeded.
func (e *ExceededError) Unwrap() error {
	return ErrRateLimitExceeded
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, as used in the
// Retry-After header.
func (e *ExceededError) RetryAfterSeconds() int {
	return ceilSeconds(e.RetryAfter)
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
