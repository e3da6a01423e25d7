package hydrate

import (
	"fmt"
	"strconv"
	"strings"
)

// toString is a null-safe coercer: any value becomes a string, or def if
// the value is nil / not stringifiable in a sane way.
func toString(v any, def string) string {
	if v == nil {
		return def
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case float64, float32, int, int64:
		return fmt.Sprintf("%v", t)
	default:
		return def
	}
}

// toNumber is a null-safe coercer: any value becomes a float64, or 0 if it
// cannot be interpreted as a number.
func toNumber(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// toStringSlice is a null-safe coercer for list fields: non-slice or
// unstringifiable elements are dropped rather than erroring.
func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		if ss, ok := v.([]string); ok {
			return ss
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s := toString(item, "")
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// coerceReports runs the reports-map contract boundary: every value becomes
// a trimmed non-empty string, or the key is dropped entirely.
func coerceReports(raw map[string]any) map[string]string {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		s := strings.TrimSpace(toString(v, ""))
		if s == "" {
			continue
		}
		out[k] = s
	}
	return out
}

func asStringMap(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return nil
}
