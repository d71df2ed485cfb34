package ratelimit

import (
	"time"
)

// Status is the position of an identifier in the limiter's state machine.
type Status string

// Identifier states.
const (
	// StatusClear means no requests in the window and no lockout.
	StatusClear Status = "clear"

	// StatusActive means the window holds 1..MaxRequests-1 requests.
	StatusActive Status = "active"

	// StatusAtLimit means the window is full; the next request locks the
	// identifier out.
	StatusAtLimit Status = "at_limit"

	// StatusLocked means a lockout is in force.
	StatusLocked Status = "locked"
)

// State is a point-in-time snapshot of one identifier under a policy.
// Taking it never modifies the limiter.
type State struct {
	// Identifier the snapshot describes (e.g., "ip_203.0.113.7", "user_42")
	Identifier string `json:"identifier"`

	// Status is derived from the window size and the lockout table.
	Status Status `json:"status"`

	// Requests is the number of timestamps inside the window at At.
	Requests int `json:"requests"`

	// Limit is the policy's MaxRequests.
	Limit int `json:"limit"`

	// UnblockAt is when the lockout ends. Zero unless Status is StatusLocked.
	UnblockAt time.Time `json:"unblock_at,omitempty"`

	// At is the instant the snapshot was taken.
	At time.Time `json:"at"`
}

// IsLocked returns true while a lockout is in force.
func (s *State) IsLocked() bool {
	return s.Status == StatusLocked
}

// Remaining returns the quota left in the window. A locked identifier has
// none.
func (s *State) Remaining() int {
	if s.IsLocked() {
		return 0
	}
	return max(0, s.Limit-s.Requests)
}

// TimeUntilUnblock returns the lockout time left at the snapshot instant.
// Returns 0 when not locked.
func (s *State) TimeUntilUnblock() time.Duration {
	if !s.IsLocked() {
		return 0
	}
	return s.UnblockAt.Sub(s.At)
}

func statusFor(requests, limit int) Status {
	switch {
	case requests == 0:
		return StatusClear
	case requests >= limit:
		return StatusAtLimit
	default:
		return StatusActive
	}
}
