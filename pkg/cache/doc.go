// Package cache provides a best-effort key-value cache with automatic
// failover from a Redis primary to an in-process memory store.
//
// The cache is an optimization, never a dependency: every failure talking
// to a backend, and every value that cannot be encoded or decoded, is
// logged, counted and reported as a miss (or false / 0). Nothing is
// returned to the caller as an error.
//
// # Backend Selection
//
// New probes the primary backend once. If the probe fails the cache serves
// every call from the MemoryCache for the rest of the process lifetime
// (fail-static). StartReprobe optionally retries the probe in the
// background with exponential backoff. Each call uses exactly one backend;
// nothing is copied between them.
//
// # Basic Usage
//
//	redisClient := cache.NewRedisClient(cache.RedisConfig{Addr: "localhost:6379"})
//	c := cache.New(ctx, cache.NewRedisBackend(redisClient), cache.NewMemoryCache(10000))
//
//	c.Set(ctx, cache.Key("user", 42), user, time.Hour)
//
//	var got User
//	if c.Get(ctx, cache.Key("user", 42), &got) {
//		// hit
//	}
//
//	// Bulk invalidation; '*' is the only wildcard and the match is anchored.
//	n := c.ClearPattern(ctx, "learnia:user:*")
//
// # Memoization
//
//	answer, err := cache.Remember(ctx, c, key, 10*time.Minute, func(ctx context.Context) (Answer, error) {
//		return tutor.Ask(ctx, question)
//	})
//
// # Memory Cache Capacity
//
// When the MemoryCache holds max_size entries, the next Set first sweeps
// every expired entry. Unexpired entries are never evicted; if nothing has
// expired the new entry is inserted anyway.
//
// # Metrics
//
//   - learnia_cache_hits_total{backend} - Cache hits
//   - learnia_cache_misses_total{backend} - Cache misses
//   - learnia_cache_errors_total{operation} - Swallowed errors
//   - learnia_cache_sweeps_total - Memory cache sweeps
//   - learnia_cache_swept_entries_total - Entries removed by sweeps
//   - learnia_cache_primary_available - 1 while Redis serves calls
package cache
