package ports

import (
	"context"

	"leadfunnel_backend/internal/funnels/domain"

	"github.com/google/uuid"
)

// Notifier tells a client account about new leads. Failures are logged by
// callers and never fail lead creation.
type Notifier interface {
	NotifyNewLead(ctx context.Context, accountID, leadID uuid.UUID) error
	NotifyHotLead(ctx context.Context, accountID, leadID uuid.UUID) error
}

// Relay forwards a prospect's chat message to the client's operator once the
// funnel is finished.
type Relay interface {
	RelayToClient(ctx context.Context, client domain.Client, leadPhone, text string) error
}

// ConversionSender reports a qualification signal to the ad platform.
type ConversionSender interface {
	SendConversionSignal(ctx context.Context, target domain.ConversionTarget, signal string) (ConversionResult, error)
}

// ConversionResult describes what the ad platform accepted.
type ConversionResult struct {
	Skipped bool
	Reason  string
	EventID string
}

// ScoreScheduler hands lead scoring to a background queue.
type ScoreScheduler interface {
	ScheduleLeadScoring(ctx context.Context, leadID uuid.UUID) error
}
