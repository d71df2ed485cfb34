// Command learnia-api serves the learnia API surface guarded by the
// resilient cache and the per-identifier rate limiter.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Sternrassler/learnia-guard/internal/config"
	"github.com/Sternrassler/learnia-guard/pkg/cache"
	"github.com/Sternrassler/learnia-guard/pkg/logging"
	"github.com/Sternrassler/learnia-guard/pkg/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.Setup(logging.DefaultConfig())
		l.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
		Output: os.Stderr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Server failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient = cache.NewRedisClient(cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
	}

	srv := newServer(ctx, cfg, redisClient)

	srv.cache.WarmUp(ctx, srv.warmupLoaders(cfg.CacheWarmupTopics)...)
	if cfg.CacheReprobeInterval > 0 {
		srv.cache.StartReprobe(ctx, cache.DefaultReprobeConfig(cfg.CacheReprobeInterval))
	}
	srv.limiter.StartJanitor(ctx, time.Minute)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info().
		Str("addr", httpServer.Addr).
		Str("cache_backend", srv.cache.Backend()).
		Bool("redis_enabled", cfg.RedisEnabled).
		Dur("reprobe_interval", cfg.CacheReprobeInterval).
		Float64("global_rps", cfg.RateLimitGlobalRPS).
		Msg("Starting learnia API server")

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	logger.Info().Msg("Server stopped")
	return nil
}

// newServer wires the cache, the limiter and their collaborators. A nil
// redisClient runs the cache on its in-memory fallback.
func newServer(ctx context.Context, cfg *config.Config, redisClient *redis.Client) *server {
	var primary cache.Backend
	if redisClient != nil {
		primary = cache.NewRedisBackend(redisClient, cache.WithRedisDefaultTTL(cfg.CacheDefaultTTL))
	}
	fallback := cache.NewMemoryCache(cfg.CacheMaxSize, cache.WithMemoryDefaultTTL(cfg.CacheDefaultTTL))
	c := cache.New(ctx, primary, fallback, cache.WithLogger(logging.NewLogger("cache")))

	policies := ratelimit.DefaultEndpointPolicies()
	policies.SetBlockDuration(cfg.RateLimitBlock)

	limiter := ratelimit.NewLimiter(
		ratelimit.WithLogger(logging.NewLogger("ratelimit")),
		ratelimit.WithRetention(policies.MaxWindow()),
	)

	var recorder ratelimit.Recorder
	if cfg.RateLimitStats && redisClient != nil {
		recorder = ratelimit.NewRedisRecorder(redisClient)
	}

	var global *rate.Limiter
	if cfg.RateLimitGlobalRPS > 0 {
		global = rate.NewLimiter(rate.Limit(cfg.RateLimitGlobalRPS), cfg.RateLimitGlobalBurst)
	}

	return &server{
		cache:    c,
		limiter:  limiter,
		policies: policies,
		recorder: recorder,
		global:   global,
		trustXFF: cfg.RateLimitTrustXFF,
		ttl:      cfg.CacheDefaultTTL,
		logger:   logging.NewLogger("api"),
		admin:    bearerToken(cfg.AdminToken),
	}
}
