package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/learnia-guard/pkg/cache"
	"github.com/Sternrassler/learnia-guard/pkg/logging"
	"github.com/Sternrassler/learnia-guard/pkg/metrics"
	"github.com/Sternrassler/learnia-guard/pkg/ratelimit"
)

type server struct {
	cache    *cache.Cache
	limiter  *ratelimit.Limiter
	policies *ratelimit.EndpointPolicies
	recorder ratelimit.Recorder
	global   *rate.Limiter
	trustXFF bool
	ttl      time.Duration
	logger   zerolog.Logger

	// userID identifies authenticated callers. Authentication lives
	// upstream; nil limits every caller by IP.
	userID ratelimit.UserFunc

	// admin authorizes maintenance routes. nil rejects every request.
	admin adminFunc
}

// adminFunc reports whether r may call maintenance routes.
type adminFunc func(r *http.Request) bool

// bearerToken accepts requests carrying "Authorization: Bearer <token>".
// An empty token yields nil, which keeps admin routes closed.
func bearerToken(token string) adminFunc {
	if token == "" {
		return nil
	}
	return func(r *http.Request) bool {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		return ok && subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
	}
}

// requireAdmin answers 403 unless admin accepts the request.
func requireAdmin(admin adminFunc, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if admin == nil || !admin(r) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "admin access required"})
			return
		}
		next(w, r)
	}
}

func (s *server) routes() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(ratelimit.Middleware(ratelimit.MiddlewareOptions{
		Limiter:            s.limiter,
		Policies:           s.policies,
		Recorder:           s.recorder,
		Global:             s.global,
		UserFunc:           s.userID,
		TrustXForwardedFor: s.trustXFF,
	}))

	api.HandleFunc("/cache/stats", s.handleCacheStats).Methods(http.MethodGet)
	api.HandleFunc("/cache", requireAdmin(s.admin, s.handleCacheClear)).Methods(http.MethodDelete)
	api.HandleFunc("/ratelimit/info", s.handleRateLimitInfo).Methods(http.MethodGet)
	api.Handle("/ratelimit/policies",
		cache.ResponseMiddleware(s.cache, cache.DefaultResponseTTL, nil)(http.HandlerFunc(s.handlePolicies)),
	).Methods(http.MethodGet)
	api.HandleFunc("/ai/tutor/{topic}", s.handleTutor(s.tutor())).Methods(http.MethodGet)

	return logging.AccessLog(s.logger, logging.DefaultSlowRequest)(metrics.Instrument(r))
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":        "ok",
		"cache_backend": s.cache.Backend(),
	})
}

func (s *server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.Stats(r.Context()))
}

func (s *server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	pattern := strings.TrimSpace(r.URL.Query().Get("pattern"))
	if pattern == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "pattern query parameter is required"})
		return
	}

	deleted := s.cache.ClearPattern(r.Context(), pattern)
	s.logger.Info().Str("pattern", pattern).Int("deleted", deleted).Msg("Cache entries cleared")
	writeJSON(w, http.StatusOK, map[string]any{"pattern": pattern, "deleted": deleted})
}

// handleRateLimitInfo reports the caller's quota for ?path= (default: the
// info endpoint itself).
func (s *server) handleRateLimitInfo(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		path = r.URL.Path
	}
	id := ratelimit.Identifier(r, s.userID, s.trustXFF)
	writeJSON(w, http.StatusOK, s.limiter.RateLimitInfo(id, path, s.policies))
}

type policyView struct {
	Path          string `json:"path"`
	MaxRequests   int    `json:"max_requests"`
	WindowSeconds int    `json:"window_seconds"`
	BlockSeconds  int    `json:"block_seconds"`
}

func (s *server) handlePolicies(w http.ResponseWriter, r *http.Request) {
	view := func(path string, p ratelimit.Policy) policyView {
		block := p.BlockDuration
		if block == 0 {
			block = ratelimit.DefaultBlockDuration
		}
		return policyView{
			Path:          path,
			MaxRequests:   p.MaxRequests,
			WindowSeconds: int(p.Window / time.Second),
			BlockSeconds:  int(block / time.Second),
		}
	}

	routes := s.policies.Routes()
	out := struct {
		Default  policyView   `json:"default"`
		Policies []policyView `json:"policies"`
	}{
		Default:  view("*", s.policies.Fallback()),
		Policies: make([]policyView, 0, len(routes)),
	}
	for path, p := range routes {
		out.Policies = append(out.Policies, view(path, p))
	}
	sort.Slice(out.Policies, func(i, j int) bool { return out.Policies[i].Path < out.Policies[j].Path })

	writeJSON(w, http.StatusOK, out)
}

// tutorQuestion is the memoization argument of the tutor endpoint.
type tutorQuestion struct {
	Topic string
	Lang  string
}

type tutorAnswer struct {
	Topic       string    `json:"topic"`
	Lang        string    `json:"lang"`
	Answer      string    `json:"answer"`
	GeneratedAt time.Time `json:"generated_at"`
}

func tutorKey(q tutorQuestion) string {
	return cache.CacheKey{
		Prefix: "tutor",
		Args:   []string{q.Topic},
		Params: map[string]string{"lang": q.Lang},
	}.String()
}

// generateTutorAnswer stands in for the AI provider, which is reached
// through its own client outside this service.
func generateTutorAnswer(_ context.Context, q tutorQuestion) (tutorAnswer, error) {
	return tutorAnswer{
		Topic:       q.Topic,
		Lang:        q.Lang,
		Answer:      fmt.Sprintf("Let's study %s together.", q.Topic),
		GeneratedAt: time.Now().UTC(),
	}, nil
}

func (s *server) tutor() func(context.Context, tutorQuestion) (tutorAnswer, error) {
	return cache.Memoize(s.cache, tutorKey, s.ttl, generateTutorAnswer)
}

func (s *server) warmupLoaders(topics []string) []cache.Loader {
	loaders := make([]cache.Loader, 0, len(topics))
	for _, topic := range topics {
		q := tutorQuestion{Topic: topic, Lang: "fr"}
		loaders = append(loaders, cache.Loader{
			Key: tutorKey(q),
			TTL: s.ttl,
			Load: func(ctx context.Context) (any, error) {
				return generateTutorAnswer(ctx, q)
			},
		})
	}
	return loaders
}

func (s *server) handleTutor(ask func(context.Context, tutorQuestion) (tutorAnswer, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := tutorQuestion{Topic: mux.Vars(r)["topic"], Lang: r.URL.Query().Get("lang")}
		if q.Lang == "" {
			q.Lang = "fr"
		}

		answer, err := ask(r.Context(), q)
		if err != nil {
			s.logger.Error().Err(err).Str("topic", q.Topic).Msg("Tutor request failed")
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "tutor unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, answer)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
