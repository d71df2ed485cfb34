package cache

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// scanBatch is the COUNT hint passed to SCAN by ClearPattern.
const scanBatch = 500

// delBatch caps the number of keys passed to a single DEL.
const delBatch = 500

// RedisConfig holds connection settings for the primary backend.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int

	// Timeout bounds dialing and each read/write (default 5s)
	Timeout time.Duration
}

// NewRedisClient creates a go-redis client with bounded network timeouts,
// so no cache call can block indefinitely.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
}

// RedisBackend is the network-backed primary cache.
type RedisBackend struct {
	redis      *redis.Client
	defaultTTL time.Duration
}

// RedisOption configures a RedisBackend.
type RedisOption func(*RedisBackend)

// WithRedisDefaultTTL sets the TTL applied when Set is called with ttl 0.
// Without it such keys do not expire.
func WithRedisDefaultTTL(ttl time.Duration) RedisOption {
	return func(b *RedisBackend) {
		if ttl > 0 {
			b.defaultTTL = ttl
		}
	}
}

// NewRedisBackend creates a primary backend on top of redisClient.
func NewRedisBackend(redisClient *redis.Client, opts ...RedisOption) *RedisBackend {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	b := &RedisBackend{redis: redisClient}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Name implements Backend.
func (b *RedisBackend) Name() string { return "redis" }

// Ping implements Pinger.
func (b *RedisBackend) Ping(ctx context.Context) error {
	if err := b.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping: %v", ErrBackendUnavailable, err)
	}
	return nil
}

// Get implements Backend. Returns ErrCacheMiss if the key doesn't exist.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := b.redis.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Set implements Backend. Expiration is enforced by Redis itself.
func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl == 0 {
		ttl = b.defaultTTL
	}
	if ttl < 0 {
		// go-redis reads negative expirations as KEEPTTL
		return fmt.Errorf("redis set: negative ttl %v", ttl)
	}
	if err := b.redis.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete implements Backend.
func (b *RedisBackend) Delete(ctx context.Context, key string) (bool, error) {
	n, err := b.redis.Del(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis del: %w", err)
	}
	return n > 0, nil
}

// Exists implements Backend.
func (b *RedisBackend) Exists(ctx context.Context, key string) (bool, error) {
	n, err := b.redis.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

// ClearPattern implements Backend. Keys are walked with SCAN rather than
// KEYS so the server is never blocked on a large keyspace. Deletion starts
// only after the scan completes.
func (b *RedisBackend) ClearPattern(ctx context.Context, pattern string) (int, error) {
	match := RedisPattern(pattern)

	var (
		cursor  uint64
		matched []string
	)
	for {
		keys, next, err := b.redis.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return 0, fmt.Errorf("redis scan: %w", err)
		}
		for _, key := range keys {
			if MatchPattern(pattern, key) {
				matched = append(matched, key)
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	deleted := 0
	for start := 0; start < len(matched); start += delBatch {
		end := min(start+delBatch, len(matched))
		n, err := b.redis.Del(ctx, matched[start:end]...).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis del: %w", err)
		}
		deleted += int(n)
	}
	return deleted, nil
}

// Stats implements Backend using INFO and DBSIZE.
func (b *RedisBackend) Stats(ctx context.Context) Stats {
	stats := Stats{
		Status:  StatusAvailable,
		Backend: b.Name(),
	}

	if size, err := b.redis.DBSize(ctx).Result(); err == nil {
		stats.TotalEntries = int(size)
	}

	info, err := b.redis.Info(ctx).Result()
	if err != nil {
		stats.Status = StatusError
		stats.Error = err.Error()
		return stats
	}

	fields := parseInfo(info)
	stats.UsedMemory = fields["used_memory_human"]
	stats.ConnectedClients = infoInt(fields, "connected_clients")
	stats.TotalCommandsProcessed = infoInt(fields, "total_commands_processed")
	stats.KeyspaceHits = infoInt(fields, "keyspace_hits")
	stats.KeyspaceMisses = infoInt(fields, "keyspace_misses")

	return stats
}

// parseInfo turns the "field:value" lines of an INFO reply into a map.
func parseInfo(info string) map[string]string {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[name] = value
	}
	return fields
}

func infoInt(fields map[string]string, name string) int64 {
	v, err := strconv.ParseInt(fields[name], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
