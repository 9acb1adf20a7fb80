package evaluation

import (
	"strconv"
	"strings"
)

// Strategy parameters travel as strings on the wire. These helpers convert
// them once at the evaluation boundary; conversion failures yield the zero
// value so a malformed parameter disables rather than enables.

// ParamString returns the raw parameter value, or fallback when unset.
func ParamString(params map[string]string, key, fallback string) string {
	if v, ok := params[key]; ok && v != "" {
		return v
	}
	return fallback
}

// ParamPercentage parses a percentage parameter, clamped to [0, 100].
func ParamPercentage(params map[string]string, key string) int {
	v, ok := params[key]
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0
	}
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

// ParamList parses a comma-separated list parameter, trimming whitespace and
// dropping empty items.
func ParamList(params map[string]string, key string) []string {
	v, ok := params[key]
	if !ok || strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParamNumber parses a numeric parameter.
func ParamNumber(params map[string]string, key string) float64 {
	v, ok := params[key]
	if !ok {
		return 0
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return n
}

// ParamBool parses a boolean parameter.
func ParamBool(params map[string]string, key string) bool {
	v, ok := params[key]
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false
	}
	return b
}
