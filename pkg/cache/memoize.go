package cache

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"
)

// loads collapses concurrent loads of the same key across all caches.
// Keys are namespaced per Cache by Remember.
var loads singleflight.Group

// Remember returns the value cached under key, or calls load, caches its
// result for ttl and returns it. Concurrent misses on the same key share a
// single load. Load errors are returned and never cached; a failure to
// cache the result is ignored.
//
// The shared load runs detached from any one caller's cancellation. A
// caller whose ctx is done stops waiting and gets ctx.Err(); the others
// still receive the loaded value.
func Remember[T any](ctx context.Context, c *Cache, key string, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	var cached T
	if c.Get(ctx, key, &cached) {
		return cached, nil
	}

	loadCtx := context.WithoutCancel(ctx)
	ch := loads.DoChan(fmt.Sprintf("%p:%s", c, key), func() (any, error) {
		value, err := load(loadCtx)
		if err != nil {
			return value, err
		}
		c.Set(loadCtx, key, value, ttl)
		return value, nil
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.logger.Debug().Str("key", key).Msg("Shared in-flight load")
		}
		if res.Err != nil {
			return zero, res.Err
		}
		value, _ := res.Val.(T)
		return value, nil
	}
}

// Memoize wraps fn so its results are cached under keyFn(arg) for ttl.
func Memoize[A, T any](c *Cache, keyFn func(A) string, ttl time.Duration, fn func(ctx context.Context, arg A) (T, error)) func(ctx context.Context, arg A) (T, error) {
	return func(ctx context.Context, arg A) (T, error) {
		return Remember(ctx, c, keyFn(arg), ttl, func(ctx context.Context) (T, error) {
			return fn(ctx, arg)
		})
	}
}

// Loader pre-populates one cache key.
type Loader struct {
	Key  string
	TTL  time.Duration
	Load func(ctx context.Context) (any, error)
}

// WarmUp runs every loader and caches the results. It returns the number
// of keys stored; loader errors are logged and skipped.
func (c *Cache) WarmUp(ctx context.Context, loaders ...Loader) int {
	c.logger.Info().Int("loaders", len(loaders)).Msg("Warming up cache")

	stored := 0
	for _, l := range loaders {
		if ctx.Err() != nil {
			break
		}
		value, err := l.Load(ctx)
		if err != nil {
			c.logger.Warn().Err(err).Str("key", l.Key).Msg("Warm-up loader failed")
			continue
		}
		if c.Set(ctx, l.Key, value, l.TTL) {
			stored++
		}
	}

	c.logger.Info().Int("stored", stored).Msg("Cache warm-up finished")
	return stored
}
