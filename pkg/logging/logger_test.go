package logging

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level to be Info, got %s", cfg.Level)
	}

	if cfg.Pretty {
		t.Error("Expected default pretty to be false")
	}
}

func TestSetup(t *testing.T) {
	tests := []struct {
		name    string
		level   LogLevel
		logFn   func(zerolog.Logger)
		visible bool
	}{
		{
			name:    "info passes info level",
			level:   LevelInfo,
			logFn:   func(l zerolog.Logger) { l.Info().Msg("cache backend selected") },
			visible: true,
		},
		{
			name:    "info drops debug",
			level:   LevelInfo,
			logFn:   func(l zerolog.Logger) { l.Debug().Msg("cache backend selected") },
			visible: false,
		},
		{
			name:    "warn drops info",
			level:   LevelWarn,
			logFn:   func(l zerolog.Logger) { l.Info().Msg("cache backend selected") },
			visible: false,
		},
		{
			name:    "debug passes debug",
			level:   LevelDebug,
			logFn:   func(l zerolog.Logger) { l.Debug().Msg("cache backend selected") },
			visible: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := Setup(Config{Level: tt.level, Output: &buf})

			tt.logFn(logger)

			if got := strings.Contains(buf.String(), "cache backend selected"); got != tt.visible {
				t.Errorf("message visible = %v, want %v (output %q)", got, tt.visible, buf.String())
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input LogLevel
		want  zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"INFO", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{" error ", zerolog.ErrorLevel},
		{"verbose", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(string(tt.input), func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	Setup(Config{Level: LevelInfo, Output: &buf})

	logger := NewLogger("ratelimit")
	logger.Info().Msg("hello")

	if !strings.Contains(buf.String(), `"component":"ratelimit"`) {
		t.Errorf("output %q lacks component field", buf.String())
	}
}

func TestAccessLog(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	h := AccessLog(logger, 0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	out := buf.String()
	for _, want := range []string{`"path":"/health"`, `"status_code":418`, `"method":"GET"`, `"level":"info"`, `"slow":false`} {
		if !strings.Contains(out, want) {
			t.Errorf("access log %q lacks %s", out, want)
		}
	}
}

func TestAccessLog_Levels(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	tests := []struct {
		name   string
		delay  time.Duration
		status int
		want   []string
	}{
		{"slow request", 20 * time.Millisecond, http.StatusOK, []string{`"level":"warn"`, `"slow":true`}},
		{"server error", 0, http.StatusBadGateway, []string{`"level":"warn"`, `"slow":false`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := AccessLog(zerolog.New(&buf), 10*time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				time.Sleep(tt.delay)
				w.WriteHeader(tt.status)
			}))
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/ai/tutor/fractions", nil))

			for _, want := range tt.want {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("access log %q lacks %s", buf.String(), want)
				}
			}
		})
	}
}
