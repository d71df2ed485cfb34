package cache

import (
	"bytes"
	"context"
	"net/http"
	"slices"
	"time"
)

// DefaultResponseTTL is used by ResponseMiddleware when ttl is 0.
const DefaultResponseTTL = 5 * time.Minute

// CachedResponse is a replayable HTTP response.
type CachedResponse struct {
	StatusCode int         `json:"status_code"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"body"`
}

// WriteTo replays the response on w.
func (r *CachedResponse) WriteTo(w http.ResponseWriter) {
	for name, values := range r.Header {
		w.Header()[name] = append([]string(nil), values...)
	}
	w.Header().Set("X-Cache", "HIT")
	w.WriteHeader(r.StatusCode)
	_, _ = w.Write(r.Body)
}

// RequestKey builds the default response cache key from method, path and
// raw query.
func RequestKey(r *http.Request) string {
	k := CacheKey{Prefix: "api_response", Args: []string{r.Method, r.URL.Path}}
	if q := r.URL.Query(); len(q) > 0 {
		k.Params = make(map[string]string, len(q))
		for name := range q {
			k.Params[name] = q.Get(name)
		}
	}
	return k.String()
}

// ResponseMiddleware caches successful GET responses for ttl.
// keyFn defaults to RequestKey.
func ResponseMiddleware(c *Cache, ttl time.Duration, keyFn func(*http.Request) string) func(http.Handler) http.Handler {
	if ttl <= 0 {
		ttl = DefaultResponseTTL
	}
	if keyFn == nil {
		keyFn = RequestKey
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFn(r)
			var cached CachedResponse
			if c.Get(r.Context(), key, &cached) {
				cached.WriteTo(w)
				return
			}

			// Headers set by outer middleware stay out of the cached copy.
			outer := w.Header().Clone()
			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			rec.Header().Set("X-Cache", "MISS")
			next.ServeHTTP(rec, r)

			if rec.status != http.StatusOK {
				return
			}

			header := make(http.Header)
			for name, values := range w.Header() {
				if name == "X-Cache" || slices.Equal(outer[name], values) {
					continue
				}
				header[name] = append([]string(nil), values...)
			}
			// Detach from the request so a cancelled client does not
			// abort the write.
			c.Set(context.WithoutCancel(r.Context()), key, &CachedResponse{
				StatusCode: rec.status,
				Header:     header,
				Body:       rec.body.Bytes(),
			}, ttl)
		})
	}
}

// responseRecorder passes writes through while keeping a copy.
type responseRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (r *responseRecorder) WriteHeader(code int) {
	if r.wroteHeader {
		return
	}
	r.wroteHeader = true
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(p []byte) (int, error) {
	if !r.wroteHeader {
		r.WriteHeader(http.StatusOK)
	}
	r.body.Write(p)
	return r.ResponseWriter.Write(p)
}
