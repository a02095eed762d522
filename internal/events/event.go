// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"leadfunnel_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Funnel Domain Events
// =============================================================================

// LeadCreated is published once a session has been converted into a lead.
// Scoring and notifications subscribe to it.
type LeadCreated struct {
	BaseEvent
	LeadID    uuid.UUID      `json:"leadId"`
	SessionID uuid.UUID      `json:"sessionId"`
	FunnelID  uuid.UUID      `json:"funnelId"`
	ClientID  uuid.UUID      `json:"clientId"`
	AccountID uuid.UUID      `json:"accountId"`
	Source    string         `json:"source"`
	LeadPhone string         `json:"leadPhone,omitempty"`
	Answers   map[string]any `json:"answers,omitempty"`
}

func (e LeadCreated) EventName() string { return "funnels.lead.created" }

// LeadScored is published after a qualification score was persisted.
type LeadScored struct {
	BaseEvent
	LeadID     uuid.UUID `json:"leadId"`
	AccountID  uuid.UUID `json:"accountId"`
	TotalScore int       `json:"totalScore"`
	Tier       string    `json:"tier"`
}

func (e LeadScored) EventName() string { return "funnels.lead.scored" }

