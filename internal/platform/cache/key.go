package cache

import (
	"fmt"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/bejimenez/magus/internal/platform/textutil"
)

const (
	defaultKeyNamespace = "names"
	defaultMaxKeyLength = 128
)

// KeyBuilder derives stable cache keys from request parameters.
type KeyBuilder struct {
	namespace string
	maxLen    int
}

// NewKeyBuilder returns a builder rooted at namespace. Keys longer than maxLen have their
// parameter section replaced by a fixed-width digest.
func NewKeyBuilder(namespace string, maxLen int) KeyBuilder {
	namespace = strings.Trim(strings.TrimSpace(namespace), ":")
	if namespace == "" {
		namespace = defaultKeyNamespace
	}
	if maxLen <= 0 {
		maxLen = defaultMaxKeyLength
	}
	return KeyBuilder{namespace: namespace, maxLen: maxLen}
}

// Prefix is the shared key prefix of every entry for a culture.
func (b KeyBuilder) Prefix(culture string) string {
	return b.namespace + ":" + strings.ToLower(strings.TrimSpace(culture)) + ":"
}

// Build returns the key for culture and params. Parameter order and surrounding
// whitespace do not affect the result.
func (b KeyBuilder) Build(culture string, params map[string]string) string {
	prefix := b.Prefix(culture)
	canonical := textutil.CanonicalPairs(params, "&")
	key := prefix + canonical
	if len(key) <= b.maxLen {
		return key
	}
	return fmt.Sprintf("%sh=%016x", prefix, xxhash.Sum64String(canonical))
}
