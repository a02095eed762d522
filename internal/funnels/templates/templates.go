// Package templates ships the system funnel templates and derives the
// scoring vocabulary their option labels add.
package templates

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"leadfunnel_backend/internal/funnels/scoring"

	"gopkg.in/yaml.v3"
)

//go:embed system.yaml
var systemYAML []byte

// Scoring components a template step may feed.
const (
	ComponentTimeline    = "timeline"
	ComponentFinancial   = "financial_ready"
	ComponentSpecificity = "specificity"
	ComponentEngagement  = "engagement"
)

// Option is one selectable answer of a multiple choice step.
type Option struct {
	Value      string `yaml:"value" json:"value"`
	Label      string `yaml:"label" json:"label"`
	Score      int    `yaml:"score" json:"score"`
	Disqualify bool   `yaml:"disqualify,omitempty" json:"disqualify,omitempty"`
}

// Step is one question of a template.
type Step struct {
	Question         string   `yaml:"question" json:"question"`
	FieldName        string   `yaml:"field_name" json:"fieldName"`
	Type             string   `yaml:"type" json:"type"`
	Required         bool     `yaml:"required,omitempty" json:"required"`
	Placeholder      string   `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	ScoringComponent string   `yaml:"scoring_component" json:"scoringComponent"`
	Options          []Option `yaml:"options,omitempty" json:"options,omitempty"`
}

// Template is a pre-built funnel for one real estate intent.
type Template struct {
	Key         string `yaml:"key" json:"key"`
	Name        string `yaml:"name" json:"name"`
	Intent      string `yaml:"intent" json:"intent"`
	Description string `yaml:"description" json:"description"`
	Steps       []Step `yaml:"steps" json:"steps"`
}

var loadSystem = sync.OnceValues(func() ([]Template, error) {
	return Parse(systemYAML)
})

// System returns the built-in templates in declaration order.
func System() ([]Template, error) {
	return loadSystem()
}

// Parse decodes a YAML template list.
func Parse(data []byte) ([]Template, error) {
	var list []Template
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	seen := make(map[string]bool, len(list))
	for _, t := range list {
		if t.Key == "" || seen[t.Key] {
			return nil, fmt.Errorf("template key %q is empty or duplicated", t.Key)
		}
		seen[t.Key] = true
		for i, s := range t.Steps {
			if s.FieldName == "" {
				return nil, fmt.Errorf("template %s step %d has no field name", t.Key, i)
			}
		}
	}
	return list, nil
}

// ByIntent filters list to one intent. An empty intent returns list as is.
func ByIntent(list []Template, intent string) []Template {
	if intent == "" {
		return list
	}
	out := make([]Template, 0, 1)
	for _, t := range list {
		if t.Intent == intent {
			out = append(out, t)
		}
	}
	return out
}

// ScoringTables extends base with the option labels of every timeline and
// financial step, so free-text chat replies that repeat a label score like
// the option value. Option values base does not know are added with the
// template's score. Earlier templates win when labels collide.
func ScoringTables(base scoring.Tables, list []Template) (scoring.Tables, error) {
	timeline := map[string]int{}
	financial := map[string]int{}
	for _, t := range list {
		for _, s := range t.Steps {
			var (
				into map[string]int
				dim  scoring.Dimension
			)
			switch s.ScoringComponent {
			case ComponentTimeline:
				into, dim = timeline, scoring.DimensionTimeline
			case ComponentFinancial:
				into, dim = financial, scoring.DimensionFinancial
			default:
				continue
			}
			for _, o := range s.Options {
				keys := []string{o.Label, strings.ToLower(o.Label)}
				if o.Value != "" && !base.Has(dim, o.Value) {
					keys = append(keys, o.Value)
				}
				for _, key := range keys {
					if _, ok := into[key]; !ok {
						into[key] = o.Score
					}
				}
			}
		}
	}

	tables, err := base.Register(scoring.DimensionTimeline, "templates", timeline)
	if err != nil {
		return base, err
	}
	withFinancial, err := tables.Register(scoring.DimensionFinancial, "", financial)
	if err != nil {
		return base, err
	}
	return withFinancial, nil
}
