package scoring

import "fmt"

// Dimension names a table-driven scoring component.
type Dimension string

const (
	DimensionTimeline  Dimension = "timeline"
	DimensionFinancial Dimension = "financial"
)

// Version identifies the scoring model persisted with every score.
const Version = "2026.1"

const (
	maxTimeline    = 30
	maxFinancial   = 30
	maxSpecificity = 25
	maxEngagement  = 15

	// presentUnmappedPoints is awarded when an answer exists but no table
	// entry matches it.
	presentUnmappedPoints = 10
)

// Tables holds one enum-to-points table per dimension. A Tables value is
// immutable once built; Register returns a derived copy.
type Tables struct {
	version   string
	timeline  map[string]int
	financial map[string]int
}

// DefaultTables returns the canonical vocabularies of every funnel template.
func DefaultTables() Tables {
	return Tables{
		version: Version,
		timeline: map[string]int{
			"30_days":        30,
			"within_30_days": 30,
			"asap":           30,
			"60_days":        25,
			"30_60_days":     25,
			"1_3_months":     20,
			"3_6_months":     15,
			"monitoring":     10,
			"exploring":      5,
			"just_exploring": 5,
			"flexible":       5,
		},
		financial: map[string]int{
			"yes":           30,
			"pre_approved":  30,
			"cash":          30,
			"all_cash":      30,
			"hard_money":    25,
			"in_progress":   20,
			"conventional":  20,
			"full_time":     20,
			"self_employed": 15,
			"depends":       15,
			"student":       10,
			"no":            5,
			"unsure":        5,
			"other":         5,
		},
	}
}

// Version returns the model version stamped on scores built from t.
func (t Tables) Version() string { return t.version }

// Register returns a copy of t with synonyms mapped to points on dim. The
// derived tables carry a version suffixed with tag so persisted scores stay
// attributable; an empty tag keeps the version. Existing entries are never
// overridden.
func (t Tables) Register(dim Dimension, tag string, synonyms map[string]int) (Tables, error) {
	var (
		src     map[string]int
		ceiling int
	)
	switch dim {
	case DimensionTimeline:
		src, ceiling = t.timeline, maxTimeline
	case DimensionFinancial:
		src, ceiling = t.financial, maxFinancial
	default:
		return t, fmt.Errorf("unknown scoring dimension %q", dim)
	}

	next := make(map[string]int, len(src)+len(synonyms))
	for k, v := range src {
		next[k] = v
	}
	for k, v := range synonyms {
		if v < 0 || v > ceiling {
			return t, fmt.Errorf("%s synonym %q: points %d outside 0..%d", dim, k, v, ceiling)
		}
		if _, exists := next[k]; exists {
			continue
		}
		next[k] = v
	}

	out := Tables{version: t.version, timeline: t.timeline, financial: t.financial}
	if tag != "" {
		out.version += "+" + tag
	}
	if dim == DimensionTimeline {
		out.timeline = next
	} else {
		out.financial = next
	}
	return out, nil
}

// Points looks a present answer up on dim. Values that are not strings or
// not in the table earn presentUnmappedPoints.
func (t Tables) Points(dim Dimension, value any) int {
	s, ok := value.(string)
	if !ok {
		return presentUnmappedPoints
	}
	var table map[string]int
	switch dim {
	case DimensionTimeline:
		table = t.timeline
	case DimensionFinancial:
		table = t.financial
	}
	if points, ok := table[s]; ok {
		return points
	}
	return presentUnmappedPoints
}

// Has reports whether value is an explicit entry on dim.
func (t Tables) Has(dim Dimension, value string) bool {
	switch dim {
	case DimensionTimeline:
		_, ok := t.timeline[value]
		return ok
	case DimensionFinancial:
		_, ok := t.financial[value]
		return ok
	}
	return false
}
