package domain

import (
	"sort"

	"github.com/google/uuid"
)

// Client is the tenant that owns funnels.
type Client struct {
	ID             uuid.UUID
	AccountID      uuid.UUID
	Name           string
	TwilioNumber   string
	WhatsAppNumber string
	PixelID        string
	AccessToken    string
}

// Step is one question of a funnel.
type Step struct {
	ID        uuid.UUID
	Order     int
	Question  string
	FieldName string
	Type      string
	Required  bool
}

// Funnel is a client's ordered question flow.
type Funnel struct {
	ID             uuid.UUID
	ClientID       uuid.UUID
	AccountID      uuid.UUID
	Name           string
	Slug           string
	WelcomeMessage string
	Steps          []Step
}

// SortSteps orders steps by their Order field.
func (f *Funnel) SortSteps() {
	sort.SliceStable(f.Steps, func(i, j int) bool { return f.Steps[i].Order < f.Steps[j].Order })
}

// StepAt returns the step at the zero-based index.
func (f Funnel) StepAt(index int) (Step, bool) {
	if index < 0 || index >= len(f.Steps) {
		return Step{}, false
	}
	return f.Steps[index], true
}
