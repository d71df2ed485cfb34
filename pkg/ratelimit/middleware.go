package ratelimit

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// UserFunc extracts the authenticated user id from a request. It returns
// false for anonymous requests.
type UserFunc func(r *http.Request) (string, bool)

// MiddlewareOptions configures Middleware.
type MiddlewareOptions struct {
	// Limiter makes the per-identifier decisions (required)
	Limiter *Limiter

	// Policies maps the request path to a policy (nil means DefaultPolicy)
	Policies *EndpointPolicies

	// Recorder observes every decision (optional)
	Recorder Recorder

	// Global is a process-wide token bucket checked before the limiter
	// (optional)
	Global *rate.Limiter

	// UserFunc identifies authenticated users (optional)
	UserFunc UserFunc

	// TrustXForwardedFor uses the first X-Forwarded-For hop as client IP
	TrustXForwardedFor bool
}

// ErrorResponse is the JSON body of a 429 response.
type ErrorResponse struct {
	Error             string `json:"error"`
	Message           string `json:"message"`
	RetryAfter        int    `json:"retry_after"`
	RemainingRequests int    `json:"remaining_requests"`
}

// Info describes an identifier's quota on one endpoint.
type Info struct {
	Endpoint          string `json:"endpoint"`
	MaxRequests       int    `json:"max_requests"`
	WindowSeconds     int    `json:"window_seconds"`
	RemainingRequests int    `json:"remaining_requests"`
	ResetTime         int64  `json:"reset_time"`
	Locked            bool   `json:"locked"`
}

// RateLimitInfo reports id's quota for path without consuming any of it.
func (l *Limiter) RateLimitInfo(id, path string, policies *EndpointPolicies) Info {
	p := policies.Lookup(path)
	s := l.State(id, p)

	reset := s.At.Add(p.Window)
	if s.IsLocked() {
		reset = s.UnblockAt
	}

	return Info{
		Endpoint:          path,
		MaxRequests:       p.MaxRequests,
		WindowSeconds:     int(p.Window / time.Second),
		RemainingRequests: s.Remaining(),
		ResetTime:         reset.Unix(),
		Locked:            s.IsLocked(),
	}
}

// Middleware rejects requests over their endpoint policy with 429 and
// annotates admitted responses with X-RateLimit-* headers.
func Middleware(opts MiddlewareOptions) func(http.Handler) http.Handler {
	if opts.Limiter == nil {
		panic("ratelimit: Middleware requires a Limiter")
	}
	logger := opts.Limiter.logger

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := Identifier(r, opts.UserFunc, opts.TrustXForwardedFor)
			policy := opts.Policies.Lookup(r.URL.Path)

			record := func(allowed bool) {
				if opts.Recorder == nil {
					return
				}
				ev := Event{Identifier: id, Allowed: allowed, Method: r.Method, Path: r.URL.Path, At: time.Now()}
				if err := opts.Recorder.Record(r.Context(), ev); err != nil {
					logger.Debug().Err(err).Msg("Failed to record rate limit decision")
				}
			}

			if opts.Global != nil && !opts.Global.Allow() {
				Decisions.WithLabelValues(resultGlobal).Inc()
				record(false)
				writeTooManyRequests(w, ErrorResponse{
					Error:      "Rate limit exceeded",
					Message:    "Server is busy, try again shortly",
					RetryAfter: 1,
				})
				return
			}

			d := opts.Limiter.Allow(id, policy)
			record(d.Allowed)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				writeTooManyRequests(w, ErrorResponse{
					Error: "Rate limit exceeded",
					Message: fmt.Sprintf("Too many requests. Limit: %d per %ds",
						policy.MaxRequests, int(policy.Window/time.Second)),
					RetryAfter:        ceilSeconds(d.RetryAfter),
					RemainingRequests: d.Remaining,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func writeTooManyRequests(w http.ResponseWriter, body ErrorResponse) {
	w.Header().Set("Retry-After", strconv.Itoa(body.RetryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	_ = json.NewEncoder(w).Encode(body)
}

// Identifier builds the limiter identifier for r: "user_<id>" for
// authenticated requests, "ip_<client ip>" otherwise.
func Identifier(r *http.Request, userFn UserFunc, trustXFF bool) string {
	if userFn != nil {
		if id, ok := userFn(r); ok && id != "" {
			return "user_" + id
		}
	}
	return "ip_" + ClientIP(r, trustXFF)
}

// ClientIP returns the first X-Forwarded-For hop (when trusted), then
// X-Real-IP (when trusted), then the RemoteAddr host.
func ClientIP(r *http.Request, trustXFF bool) string {
	if trustXFF {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
			return ip
		}
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr != "" {
		return addr
	}
	return "unknown"
}
