package types

import (
	"fmt"
	"time"
)

// =============================================================================
// RESULT VALUE EXTRACTION UTILITIES
// =============================================================================
//
// Host systems attach arbitrary structured data to Context/Result/Metadata
// maps. These helpers extract typed values without bare type assertions that
// panic on mismatch. Numeric JSON values may arrive as float64, int, or
// int64 depending on how the host constructed the map.

// ExtractString extracts a string representation from a map value.
func ExtractString(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case int64:
		return fmt.Sprintf("%d", val)
	case int:
		return fmt.Sprintf("%d", val)
	case float64:
		return fmt.Sprintf("%g", val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

// ExtractFloat extracts a float64 from a map value, reporting success.
func ExtractFloat(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	default:
		return 0, false
	}
}

// ExtractBool extracts a bool from a map value, reporting success.
// Accepts common string spellings so loosely typed result maps still work.
func ExtractBool(v interface{}) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		switch val {
		case "true", "True", "yes", "ok", "passed", "success":
			return true, true
		case "false", "False", "no", "failed", "failure":
			return false, true
		}
	}
	return false, false
}
