package domain

import (
	"time"

	"github.com/google/uuid"
)

// Channel is the transport a session runs over.
type Channel string

const (
	ChannelWeb  Channel = "web"
	ChannelChat Channel = "chat"
)

// SessionStatus is the lifecycle state of a funnel session.
type SessionStatus string

const (
	SessionStarted    SessionStatus = "started"
	SessionActive     SessionStatus = "active"
	SessionCompleted  SessionStatus = "completed"
	SessionForwarding SessionStatus = "forwarding"
	SessionAbandoned  SessionStatus = "abandoned"
)

var sessionTransitions = map[SessionStatus][]SessionStatus{
	SessionStarted: {SessionActive, SessionCompleted, SessionAbandoned},
	SessionActive:  {SessionCompleted, SessionForwarding, SessionAbandoned},
}

// IsOpen reports whether answers may still be recorded.
func (s SessionStatus) IsOpen() bool {
	return s == SessionStarted || s == SessionActive
}

// CanTransition reports whether from -> to is a legal forward move.
func CanTransition(from, to SessionStatus) bool {
	for _, next := range sessionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Session is one prospect's pass through a funnel.
type Session struct {
	ID           uuid.UUID
	FunnelID     uuid.UUID
	Channel      Channel
	SessionToken string
	ClientID     *uuid.UUID
	LeadPhone    string
	Answers      Answers
	StepProgress int
	Status       SessionStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewSession carries the fields required to open a session.
type NewSession struct {
	FunnelID     uuid.UUID
	Channel      Channel
	SessionToken string
	ClientID     *uuid.UUID
	LeadPhone    string
	Answers      Answers
	Status       SessionStatus
}

// AnswerWrite is one atomic answer merge. When ExpectedProgress is set the
// write only applies if the stored progress still equals it.
type AnswerWrite struct {
	SessionID        uuid.UUID
	Patch            Answers
	Progress         int
	ExpectedProgress *int
}

// Completion closes a session and creates its lead in one step.
type Completion struct {
	Write  AnswerWrite
	Status SessionStatus
	Lead   NewLead
}
