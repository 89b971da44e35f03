// Package patterns implements pattern memory: context-keyed aggregation of
// validation events with an LRU cache over SQLite persistence and pluggable
// similarity search for inexact matches.
package patterns

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"vlearn/internal/types"
)

// ContextSignature derives a stable fingerprint from a validation context's
// structural shape. Equal contexts always produce equal signatures; map
// iteration order never matters.
func ContextSignature(context map[string]interface{}) string {
	if len(context) == 0 {
		return "empty"
	}

	keys := make([]string, 0, len(context))
	for k := range context {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(canonicalValue(context[k]))
		b.WriteByte(';')
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:8])
}

// canonicalValue renders a context value deterministically. Nested maps are
// flattened recursively; slices keep their order.
func canonicalValue(v interface{}) string {
	switch val := v.(type) {
	case map[string]interface{}:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+":"+canonicalValue(val[k]))
		}
		return "{" + strings.Join(parts, ",") + "}"
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, canonicalValue(item))
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return types.ExtractString(v)
	}
}

// PatternID derives the deterministic pattern identifier from an event type
// and a context signature.
func PatternID(eventType, signature string) string {
	sum := sha256.Sum256([]byte(eventType + ":" + signature))
	return fmt.Sprintf("%s-%s", sanitizeType(eventType), hex.EncodeToString(sum[:8]))
}

// sanitizeType keeps pattern ids readable without unbounded length.
func sanitizeType(eventType string) string {
	s := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, eventType)
	if len(s) > 24 {
		s = s[:24]
	}
	return s
}
