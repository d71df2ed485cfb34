package ratelimit

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// DefaultBlockDuration is the lockout length used when a Policy leaves
// BlockDuration unset.
const DefaultBlockDuration = time.Hour

// Policy is the admission rule applied to one identifier.
type Policy struct {
	// MaxRequests is the number of requests admitted per Window
	MaxRequests int `json:"max_requests"`

	// Window is the sliding window length
	Window time.Duration `json:"window"`

	// BlockDuration is how long an identifier stays locked after exceeding
	// MaxRequests (0 means DefaultBlockDuration)
	BlockDuration time.Duration `json:"block_duration"`
}

// DefaultPolicy applies to routes without an entry in EndpointPolicies.
var DefaultPolicy = Policy{MaxRequests: 100, Window: time.Hour}

func (p Policy) block() time.Duration {
	if p.BlockDuration <= 0 {
		return DefaultBlockDuration
	}
	return p.BlockDuration
}

// String renders the policy as "5/5m0s".
func (p Policy) String() string {
	return fmt.Sprintf("%d/%s", p.MaxRequests, p.Window)
}

// EndpointPolicies maps request paths to policies.
//
// Lookup tries an exact match first. Entries ending in "/" also match
// every path below them, the longest such entry winning. Anything else
// gets the fallback policy. A missing entry is never an error.
type EndpointPolicies struct {
	mu       sync.RWMutex
	routes   map[string]Policy
	fallback Policy
}

// NewEndpointPolicies creates an empty table with the given fallback.
func NewEndpointPolicies(fallback Policy) *EndpointPolicies {
	return &EndpointPolicies{
		routes:   make(map[string]Policy),
		fallback: fallback,
	}
}

// DefaultEndpointPolicies returns the built-in table for the learnia API.
func DefaultEndpointPolicies() *EndpointPolicies {
	p := NewEndpointPolicies(DefaultPolicy)
	p.Set("/api/v1/auth/login", Policy{MaxRequests: 5, Window: 5 * time.Minute})
	p.Set("/api/v1/auth/register", Policy{MaxRequests: 3, Window: time.Hour})
	p.Set("/api/v1/ai/tutor/", Policy{MaxRequests: 50, Window: time.Hour})
	p.Set("/api/v1/ai/qcm/", Policy{MaxRequests: 20, Window: time.Hour})
	p.Set("/api/v1/ai/summary/", Policy{MaxRequests: 30, Window: time.Hour})
	p.Set("/api/v1/ai/translate/", Policy{MaxRequests: 100, Window: time.Hour})
	p.Set("/api/v1/ai/ocr/", Policy{MaxRequests: 10, Window: time.Hour})
	return p
}

// Set registers or replaces the policy for path.
func (e *EndpointPolicies) Set(path string, p Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.routes[path] = p
}

// SetBlockDuration applies d to the fallback and every registered policy
// that leaves BlockDuration unset.
func (e *EndpointPolicies) SetBlockDuration(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fallback.BlockDuration == 0 {
		e.fallback.BlockDuration = d
	}
	for path, p := range e.routes {
		if p.BlockDuration == 0 {
			p.BlockDuration = d
			e.routes[path] = p
		}
	}
}

// Lookup returns the policy for path.
func (e *EndpointPolicies) Lookup(path string) Policy {
	if e == nil {
		return DefaultPolicy
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if p, ok := e.routes[path]; ok {
		return p
	}

	best, bestLen := e.fallback, 0
	for route, p := range e.routes {
		if strings.HasSuffix(route, "/") && strings.HasPrefix(path, route) && len(route) > bestLen {
			best, bestLen = p, len(route)
		}
	}
	return best
}

// Routes returns a copy of the registered policies keyed by path.
func (e *EndpointPolicies) Routes() map[string]Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make(map[string]Policy, len(e.routes))
	for path, p := range e.routes {
		out[path] = p
	}
	return out
}

// Fallback returns the policy applied to unlisted paths.
func (e *EndpointPolicies) Fallback() Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.fallback
}

// MaxWindow returns the longest window of any policy in the table.
func (e *EndpointPolicies) MaxWindow() time.Duration {
	if e == nil {
		return DefaultPolicy.Window
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	longest := e.fallback.Window
	for _, p := range e.routes {
		if p.Window > longest {
			longest = p.Window
		}
	}
	return longest
}
