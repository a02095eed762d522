// Package qualification records operator verdicts on leads and reports them
// to the ad platform.
package qualification

import (
	"context"
	"strings"
	"time"

	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/internal/funnels/ports"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/logger"

	"github.com/google/uuid"
)

// SignalQualified marks a lead as a real prospect. Any other signal marks it
// as noise.
const SignalQualified = "QUALIFIED"

// Conversion sync outcomes.
const (
	SyncSynced  = "synced"
	SyncSkipped = "skipped"
	SyncFailed  = "failed"
)

// Store is the slice of the lead store the service needs.
type Store interface {
	GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error)
	MarkLeadViewed(ctx context.Context, id uuid.UUID) (bool, error)
	SetQualificationLabel(ctx context.Context, id uuid.UUID, label domain.QualificationLabel) error
	GetConversionTarget(ctx context.Context, id uuid.UUID) (domain.ConversionTarget, error)
	MarkConversionSynced(ctx context.Context, id uuid.UUID, eventID string, at time.Time) error
}

// Outcome reports what MarkQualified did.
type Outcome struct {
	Label   domain.QualificationLabel `json:"label"`
	Sync    string                    `json:"capiStatus"`
	Reason  string                    `json:"reason,omitempty"`
	EventID string                    `json:"eventId,omitempty"`
}

type Service struct {
	store  Store
	sender ports.ConversionSender
	log    *logger.Logger
	now    func() time.Time
}

func NewService(store Store, sender ports.ConversionSender, log *logger.Logger) *Service {
	return &Service{store: store, sender: sender, log: log, now: time.Now}
}

// LabelFor maps an operator signal onto the stored label.
func LabelFor(signal string) domain.QualificationLabel {
	if strings.EqualFold(strings.TrimSpace(signal), SignalQualified) {
		return domain.LabelQualified
	}
	return domain.LabelNoise
}

// MarkQualified stores the label first and then sends the conversion event.
// A failed or skipped send leaves the label in place.
func (s *Service) MarkQualified(ctx context.Context, leadID uuid.UUID, signal string) (Outcome, error) {
	signal = strings.ToUpper(strings.TrimSpace(signal))
	if signal == "" {
		return Outcome{}, apperr.Validation("signal is required")
	}

	label := LabelFor(signal)
	if err := s.store.SetQualificationLabel(ctx, leadID, label); err != nil {
		return Outcome{}, err
	}
	out := Outcome{Label: label}
	if s.sender == nil {
		out.Sync, out.Reason = SyncSkipped, "not_configured"
		return out, nil
	}

	target, err := s.store.GetConversionTarget(ctx, leadID)
	if err != nil {
		s.log.WithContext(ctx).SideEffectFailed("capi", leadID.String(), err)
		out.Sync = SyncFailed
		return out, nil
	}

	result, err := s.sender.SendConversionSignal(ctx, target, signal)
	switch {
	case err != nil:
		s.log.WithContext(ctx).SideEffectFailed("capi", leadID.String(), err)
		out.Sync = SyncFailed
		return out, nil
	case result.Skipped:
		s.log.WithContext(ctx).Warn("conversion signal skipped", "leadId", leadID, "reason", result.Reason)
		out.Sync, out.Reason = SyncSkipped, result.Reason
		return out, nil
	}

	if err := s.store.MarkConversionSynced(ctx, leadID, result.EventID, s.now()); err != nil {
		s.log.WithContext(ctx).SideEffectFailed("capi_sync_mark", leadID.String(), err)
	}
	out.Sync, out.EventID = SyncSynced, result.EventID
	return out, nil
}

// MarkViewed moves a lead from new to viewed. It reports whether the lead
// changed; leads already past new are left alone.
func (s *Service) MarkViewed(ctx context.Context, leadID uuid.UUID) (bool, error) {
	return s.store.MarkLeadViewed(ctx, leadID)
}

// GetLead loads one lead.
func (s *Service) GetLead(ctx context.Context, leadID uuid.UUID) (domain.Lead, error) {
	return s.store.GetLead(ctx, leadID)
}
