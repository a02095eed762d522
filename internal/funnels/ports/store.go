// Package ports defines the storage and side-channel contracts of the funnels
// context. Implementations live in repository and in the adapter modules.
package ports

import (
	"context"
	"time"

	"leadfunnel_backend/internal/funnels/domain"

	"github.com/google/uuid"
)

// FunnelReader loads funnel definitions. Steps come back sorted by order.
type FunnelReader interface {
	GetFunnel(ctx context.Context, id uuid.UUID) (domain.Funnel, error)
}

// ClientReader loads tenants.
type ClientReader interface {
	GetClient(ctx context.Context, id uuid.UUID) (domain.Client, error)
	GetClientByNumber(ctx context.Context, number string) (domain.Client, error)
}

// SessionStore persists sessions. Every mutation is atomic per session:
// implementations must never lose a concurrent write to a different key.
type SessionStore interface {
	CreateSession(ctx context.Context, params domain.NewSession) (domain.Session, error)
	FindSession(ctx context.Context, token string, funnelID uuid.UUID) (domain.Session, error)
	FindLatestChatSession(ctx context.Context, clientID uuid.UUID, leadPhone string) (domain.Session, error)
	// MergeSessionAnswers applies one AnswerWrite. It fails with Conflict when
	// the session is closed and with ErrStaleProgress when an expected
	// progress guard no longer holds.
	MergeSessionAnswers(ctx context.Context, write domain.AnswerWrite) (domain.Session, error)
	// CompleteSession applies the write, closes the session and creates its
	// lead in one transaction.
	CompleteSession(ctx context.Context, c domain.Completion) (domain.Session, domain.Lead, error)
	MarkSessionStatus(ctx context.Context, sessionID uuid.UUID, status domain.SessionStatus) (domain.Session, error)
	AbandonIdleSessions(ctx context.Context, idleSince time.Time) ([]domain.Session, error)
}

// LeadStore reads leads and persists their derived state.
type LeadStore interface {
	GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	FindLeadWithInputs(ctx context.Context, id uuid.UUID) (domain.LeadInputs, domain.SessionStatus, error)
	ListLeadIDs(ctx context.Context, clientID *uuid.UUID) ([]uuid.UUID, error)
	MarkLeadViewed(ctx context.Context, id uuid.UUID) (bool, error)
	SetQualificationLabel(ctx context.Context, id uuid.UUID, label domain.QualificationLabel) error
	GetConversionTarget(ctx context.Context, id uuid.UUID) (domain.ConversionTarget, error)
	MarkConversionSynced(ctx context.Context, id uuid.UUID, eventID string, at time.Time) error
}

// ScoreStore persists qualification scores, at most one per lead.
type ScoreStore interface {
	UpsertScore(ctx context.Context, score domain.Score) error
	GetScore(ctx context.Context, leadID uuid.UUID) (domain.Score, error)
}

// Store is the full storage surface of the funnels context.
type Store interface {
	FunnelReader
	ClientReader
	SessionStore
	LeadStore
	ScoreStore
}
