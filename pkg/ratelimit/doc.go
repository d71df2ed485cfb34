// Package ratelimit admits or denies requests per identifier using a
// sliding window of request timestamps combined with a lockout table.
//
// # Algorithm
//
// For every call to Limiter.Allow (or IsAllowed):
//
//  1. An identifier with an active lockout (now < unblockAt) is denied.
//  2. An expired lockout is removed together with the identifier's window,
//     so a released identifier starts from an empty window.
//  3. Timestamps older than now - window are pruned.
//  4. If the window already holds MaxRequests timestamps, a lockout until
//     now + BlockDuration is created and the request is denied.
//  5. Otherwise now is appended and the request is allowed.
//
// All identifiers share one mutex, so two concurrent requests can never both
// take the last free slot.
//
// # Usage
//
//	limiter := ratelimit.NewLimiter()
//	policies := ratelimit.DefaultEndpointPolicies()
//
//	policy := policies.Lookup("/api/v1/auth/login")
//	if err := limiter.Check("ip_203.0.113.7", policy); err != nil {
//	    var exceeded *ratelimit.ExceededError
//	    if errors.As(err, &exceeded) {
//	        // respond 429, Retry-After: exceeded.RetryAfter
//	    }
//	}
//
// Middleware wraps an http.Handler with the same checks, emits the
// X-RateLimit-* headers and writes a JSON 429 body on denial.
//
// # State
//
// Limiter state lives in process memory only. Recorders (MemoryRecorder,
// RedisRecorder) observe decisions for reporting; admission never reads them.
package ratelimit
