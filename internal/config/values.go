package config

import (
	"fmt"
	"time"
)

// Values holds the free-form settings of one [modules.<name>] table.
type Values map[string]any

// String returns the value under key as a string, or fallback when unset.
func (v Values) String(key, fallback string) string {
	raw, ok := v[key]
	if !ok || raw == nil {
		return fallback
	}
	if s, ok := raw.(string); ok {
		return s
	}
	return fmt.Sprint(raw)
}

// Int returns the value under key as an int, or fallback when unset or not numeric.
func (v Values) Int(key string, fallback int) int {
	switch n := v[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return fallback
	}
}

// Bool returns the value under key as a bool, or fallback when unset.
func (v Values) Bool(key string, fallback bool) bool {
	if b, ok := v[key].(bool); ok {
		return b
	}
	return fallback
}

// Strings returns the value under key as a string slice.
func (v Values) Strings(key string) []string {
	switch list := v[key].(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			out = append(out, fmt.Sprint(item))
		}
		return out
	default:
		return nil
	}
}

// Duration returns the value under key parsed as a Go duration ("90s") or
// seconds when numeric.
func (v Values) Duration(key string, fallback time.Duration) time.Duration {
	switch d := v[key].(type) {
	case string:
		parsed, err := time.ParseDuration(d)
		if err != nil {
			return fallback
		}
		return parsed
	case int64:
		return time.Duration(d) * time.Second
	case float64:
		return time.Duration(d * float64(time.Second))
	default:
		return fallback
	}
}
