package cache

import "strings"

// MatchPattern reports whether key matches the glob pattern in full.
// '*' matches zero or more characters; every other character, including
// '?', '[', ']' and '\', matches only itself.
func MatchPattern(pattern, key string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == key
	}

	p, k := 0, 0
	// Position of the last '*' seen and the key offset it was tried at.
	star, mark := -1, 0

	for k < len(key) {
		switch {
		case p < len(pattern) && pattern[p] == '*':
			star = p
			mark = k
			p++
		case p < len(pattern) && pattern[p] == key[k]:
			p++
			k++
		case star >= 0:
			// Let the last '*' swallow one more character.
			p = star + 1
			mark++
			k = mark
		default:
			return false
		}
	}

	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// RedisPattern converts a glob into a Redis MATCH pattern with the same
// meaning: Redis metacharacters other than '*' are escaped.
func RedisPattern(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern))
	for i := 0; i < len(pattern); i++ {
		switch c := pattern[i]; c {
		case '?', '[', ']', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
