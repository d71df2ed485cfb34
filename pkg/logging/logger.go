// Package logging configures the zerolog logger shared by the cache, the
// rate limiter and the API server.
package logging

import (
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// ParseLevel converts a level name to zerolog.Level. Unknown names map to
// info.
func ParseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a logger tagged with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// DefaultSlowRequest is the AccessLog threshold used when none is given.
const DefaultSlowRequest = time.Second

// AccessLog logs one line per request at info level. 5xx responses and
// requests slower than slow are logged at warn level. A slow of 0 applies
// DefaultSlowRequest.
func AccessLog(logger zerolog.Logger, slow time.Duration) func(http.Handler) http.Handler {
	if slow <= 0 {
		slow = DefaultSlowRequest
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(sw, r)

			elapsed := time.Since(start)
			event := logger.Info()
			isSlow := elapsed > slow
			if isSlow || sw.status >= http.StatusInternalServerError {
				event = logger.Warn()
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status_code", sw.status).
				Dur("duration", elapsed).
				Bool("slow", isSlow).
				Str("cache", w.Header().Get("X-Cache")).
				Msg("Request served")
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache hit/miss per key
//   - Rate limit admissions and lockout denials
//   - Shared in-flight loads
//
// Info: Normal operation events
//   - Cache backend selection at startup and after a re-probe
//   - Cache warm-up results
//   - Explicit rate limit resets
//   - Server startup/shutdown, one access log line per request
//
// Warn: Conditions that degrade but don't prevent operation
//   - Primary cache errors (the call reports a miss)
//   - Serialization failures
//   - Falling back to the in-memory cache
//   - Identifier lockouts
//
// Error: Error conditions requiring attention
//   - Invalid configuration
//   - Server failures
//
// Context Fields:
//   - component: cache, ratelimit, api
//   - backend: active cache backend (redis, memory)
//   - key: cache key
//   - identifier: rate limit identifier (ip_<addr>, user_<id>)
//   - retry_after, unblock_at: lockout timing
//   - status_code, duration: access log
