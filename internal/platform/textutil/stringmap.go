package textutil

import (
	"sort"
	"strings"
)

// NormalizeStringMap trims keys and values, lowercases keys, and drops entries whose key
// or value is empty.
func NormalizeStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	result := make(map[string]string, len(values))
	for key, value := range values {
		trimmedKey := strings.ToLower(strings.TrimSpace(key))
		trimmedValue := strings.TrimSpace(value)
		if trimmedKey == "" || trimmedValue == "" {
			continue
		}
		result[trimmedKey] = trimmedValue
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

// CanonicalPairs renders a normalised map as key-sorted "k=v" pairs joined by sep.
func CanonicalPairs(values map[string]string, sep string) string {
	normalized := NormalizeStringMap(values)
	if len(normalized) == 0 {
		return ""
	}
	keys := make([]string, 0, len(normalized))
	for key := range normalized {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, key := range keys {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(key)
		b.WriteByte('=')
		b.WriteString(normalized[key])
	}
	return b.String()
}
