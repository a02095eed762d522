// Package scoring turns funnel answers into a weighted 0-100 qualification
// score and tier.
package scoring

import (
	"time"
	"unicode/utf8"

	"leadfunnel_backend/internal/funnels/domain"

	"github.com/google/uuid"
)

// Meta is the lead metadata the engine reads besides answers.
type Meta struct {
	LeadID        uuid.UUID
	CreatedAt     time.Time
	ContactedAt   *time.Time
	SessionStatus domain.SessionStatus
}

// Engine scores leads against one set of tables. It holds no mutable state.
type Engine struct {
	tables Tables
}

// NewEngine builds an engine over tables.
func NewEngine(tables Tables) *Engine {
	return &Engine{tables: tables}
}

// Score computes the qualification score. It never fails: every missing or
// unmapped input has a defined fallback. Identical inputs give identical
// scores; ComputedAt is left zero for the caller to stamp.
func (e *Engine) Score(meta Meta, answers domain.Answers, contact map[string]any) domain.Score {
	fields := Resolve(answers, contact)

	s := domain.Score{
		LeadID:             meta.LeadID,
		Timeline:           e.timeline(fields.Timeline),
		FinancialReadiness: e.financial(fields.Financial),
		Specificity:        specificity(fields.Budget, fields.Area),
		Engagement:         engagement(meta.SessionStatus, answers),
		ResponseSpeed:      responseSpeed(meta.CreatedAt, meta.ContactedAt),
		Version:            e.tables.Version(),
	}
	s.Total = s.Sum()
	s.Tier = domain.TierFor(s.Total)
	return s
}

func (e *Engine) timeline(v any) int {
	if v == nil {
		return 0
	}
	return e.tables.Points(DimensionTimeline, v)
}

func (e *Engine) financial(v any) int {
	if v == nil {
		return 0
	}
	return e.tables.Points(DimensionFinancial, v)
}

func specificity(budget, area any) int {
	points := 0
	if budget != nil && budget != "flexible" && budget != "unsure" {
		points += 10
	}
	if area != nil {
		switch n := areaLength(area); {
		case n > 20:
			points += 15
		case n > 10:
			points += 10
		default:
			points += 5
		}
	}
	return min(points, maxSpecificity)
}

// areaLength measures free text in characters; list answers count entries.
func areaLength(v any) int {
	switch t := v.(type) {
	case string:
		return utf8.RuneCountInString(t)
	case []any:
		return len(t)
	default:
		return 0
	}
}

func engagement(status domain.SessionStatus, answers domain.Answers) int {
	if status == domain.SessionCompleted {
		return maxEngagement
	}
	return min(3*len(answers), 12)
}

func responseSpeed(createdAt time.Time, contactedAt *time.Time) int {
	if createdAt.IsZero() || contactedAt == nil {
		return 0
	}
	elapsed := contactedAt.Sub(createdAt)
	switch {
	case elapsed < 5*time.Minute:
		return 10
	case elapsed < time.Hour:
		return 7
	case elapsed < 24*time.Hour:
		return 4
	default:
		return 0
	}
}
