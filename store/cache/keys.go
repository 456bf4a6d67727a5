package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// GenerateCacheKey builds a deterministic key "prefix" + hash of the components.
// Components are trimmed and lowercased so equivalent inputs share a key.
func GenerateCacheKey(prefix string, components ...string) string {
	normalized := make([]string, len(components))
	for i, c := range components {
		normalized[i] = strings.ToLower(strings.TrimSpace(c))
	}
	return prefix + KeyHash(strings.Join(normalized, "|"))
}

// KeyHash returns a short hex sha256 digest of s.
func KeyHash(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])[:16]
}
