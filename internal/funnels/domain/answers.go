// Package domain holds the funnel, session, lead and score types shared by
// the funnels bounded context.
package domain

import (
	"math"
	"strings"
)

// TrackingKey is the reserved answers key holding attribution data captured
// when a web session starts.
const TrackingKey = "_tracking"

// Answers is the free-form answer map accumulated by a session.
type Answers map[string]any

// Merge returns a new map holding a overlaid with patch. Keys in patch win.
func (a Answers) Merge(patch Answers) Answers {
	out := make(Answers, len(a)+len(patch))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range patch {
		out[k] = v
	}
	return out
}

// Clone returns a shallow copy.
func (a Answers) Clone() Answers {
	return a.Merge(nil)
}

// Tracking returns the attribution map, or nil.
func (a Answers) Tracking() map[string]any {
	t, _ := a[TrackingKey].(map[string]any)
	return t
}

// Lookup walks nested objects, e.g. Lookup("qualification", "budget").
func (a Answers) Lookup(path ...string) (any, bool) {
	var cur any = map[string]any(a)
	for _, key := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// LookupString is Lookup for string leaves.
func (a Answers) LookupString(path ...string) string {
	v, _ := a.Lookup(path...)
	s, _ := v.(string)
	return s
}

// Present reports whether a stored value counts for scoring. Only nil, the
// empty string, false and zero or NaN numbers are absent; whitespace and
// empty collections are present.
func Present(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case string:
		return t != ""
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case int:
		return t != 0
	default:
		return true
	}
}

// IsEmpty reports whether a submitted answer is missing for a required
// step: nil, blank strings, false, zero numbers and empty collections.
func IsEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case int:
		return t == 0
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	default:
		return false
	}
}
