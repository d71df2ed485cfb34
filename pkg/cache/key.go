package cache

import (
	"fmt"
	"sort"
	"strings"
)

// KeyNamespace prefixes every key built by CacheKey and Key.
const KeyNamespace = "learnia"

// CacheKey describes a cached value in structured form.
type CacheKey struct {
	// Prefix groups related keys (e.g., "tutor", "user", "api_response")
	Prefix string

	// Args are positional key parts, kept in order
	Args []string

	// Params are named key parts (e.g., {"lang": "fr"})
	Params map[string]string

	// UserID scopes the key to a user (0 for shared entries)
	UserID int64
}

// String generates a deterministic cache key string.
// Format: learnia:prefix:arg1:arg2:param1=val1:user=42
//
// Example:
//
//	learnia:tutor:algebra:lang=fr:user=42
func (k CacheKey) String() string {
	parts := []string{KeyNamespace}

	if prefix := strings.Trim(k.Prefix, ":"); prefix != "" {
		parts = append(parts, prefix)
	}

	parts = append(parts, k.Args...)

	// Params sorted for determinism
	if len(k.Params) > 0 {
		names := make([]string, 0, len(k.Params))
		for name := range k.Params {
			names = append(names, name)
		}
		sort.Strings(names)

		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%s", name, k.Params[name]))
		}
	}

	if k.UserID > 0 {
		parts = append(parts, fmt.Sprintf("user=%d", k.UserID))
	}

	return strings.Join(parts, ":")
}

// Pattern returns a glob matching every key sharing this key's prefix and
// leading args, suitable for Cache.ClearPattern.
func (k CacheKey) Pattern() string {
	base := CacheKey{Prefix: k.Prefix, Args: k.Args}
	return base.String() + ":*"
}

// Key builds "learnia:prefix:arg1:arg2" from arbitrary arguments.
func Key(prefix string, args ...any) string {
	k := CacheKey{Prefix: prefix, Args: make([]string, 0, len(args))}
	for _, arg := range args {
		k.Args = append(k.Args, fmt.Sprint(arg))
	}
	return k.String()
}
