package inapp

import (
	"context"

	"leadfunnel_backend/internal/funnels/ports"
	"leadfunnel_backend/platform/logger"

	"github.com/google/uuid"
)

// Store persists notifications.
type Store interface {
	Create(ctx context.Context, p CreateParams) (Notification, error)
}

type Service struct {
	repo Store
	log  *logger.Logger
}

var _ ports.Notifier = (*Service)(nil)

func NewService(repo Store, log *logger.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
	}
}

// NotifyNewLead records a new_lead notification for the account.
func (s *Service) NotifyNewLead(ctx context.Context, accountID, leadID uuid.UUID) error {
	return s.notify(ctx, accountID, leadID, TypeNewLead)
}

// NotifyHotLead records a hot_lead notification for the account.
func (s *Service) NotifyHotLead(ctx context.Context, accountID, leadID uuid.UUID) error {
	return s.notify(ctx, accountID, leadID, TypeHotLead)
}

func (s *Service) notify(ctx context.Context, accountID, leadID uuid.UUID, kind string) error {
	n, err := s.repo.Create(ctx, CreateParams{
		AccountID: accountID,
		LeadID:    &leadID,
		Type:      kind,
	})
	if err != nil {
		return err
	}
	s.log.WithContext(ctx).Debug("in-app notification stored", "notificationId", n.ID, "leadId", leadID, "type", kind)
	return nil
}
