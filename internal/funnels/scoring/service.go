package scoring

import (
	"context"
	"fmt"
	"time"

	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is what the scoring service needs from persistence.
type Store interface {
	FindLeadWithInputs(ctx context.Context, id uuid.UUID) (domain.LeadInputs, domain.SessionStatus, error)
	ListLeadIDs(ctx context.Context, clientID *uuid.UUID) ([]uuid.UUID, error)
	UpsertScore(ctx context.Context, score domain.Score) error
	GetScore(ctx context.Context, leadID uuid.UUID) (domain.Score, error)
}

// Service wraps the engine with persistence.
type Service struct {
	store       Store
	engine      *Engine
	bus         events.Bus
	log         *logger.Logger
	concurrency int
	now         func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithConcurrency bounds the number of leads rescored in parallel.
func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithEventBus publishes LeadScored after every save.
func WithEventBus(bus events.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

func NewService(store Store, engine *Engine, log *logger.Logger, opts ...Option) *Service {
	s := &Service{store: store, engine: engine, log: log, concurrency: 4, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Calculate scores a lead without persisting the result.
func (s *Service) Calculate(ctx context.Context, leadID uuid.UUID) (domain.Score, error) {
	inputs, status, err := s.store.FindLeadWithInputs(ctx, leadID)
	if err != nil {
		return domain.Score{}, err
	}
	score := s.engine.Score(metaFor(inputs, status), inputs.Answers, inputs.ContactData)
	score.ComputedAt = s.now().UTC()
	return score, nil
}

// ScoreAndSave scores a lead and upserts the result keyed by lead id.
func (s *Service) ScoreAndSave(ctx context.Context, leadID uuid.UUID) (domain.Score, error) {
	inputs, status, err := s.store.FindLeadWithInputs(ctx, leadID)
	if err != nil {
		return domain.Score{}, err
	}

	score := s.engine.Score(metaFor(inputs, status), inputs.Answers, inputs.ContactData)
	score.ComputedAt = s.now().UTC()
	if err := s.store.UpsertScore(ctx, score); err != nil {
		return domain.Score{}, fmt.Errorf("save score for lead %s: %w", leadID, err)
	}

	if inputs.Temperature != "" && !inputs.Temperature.Matches(score.Tier) {
		s.log.WithContext(ctx).Warn("lead temperature disagrees with scored tier",
			"leadId", leadID, "temperature", inputs.Temperature, "tier", score.Tier, "total", score.Total)
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadScored{
			BaseEvent:  events.NewBaseEvent(),
			LeadID:     leadID,
			AccountID:  inputs.AccountID,
			TotalScore: score.Total,
			Tier:       string(score.Tier),
		})
	}
	return score, nil
}

// Stored returns the last persisted score of a lead.
func (s *Service) Stored(ctx context.Context, leadID uuid.UUID) (domain.Score, error) {
	return s.store.GetScore(ctx, leadID)
}

func metaFor(in domain.LeadInputs, status domain.SessionStatus) Meta {
	return Meta{
		LeadID:        in.LeadID,
		CreatedAt:     in.CreatedAt,
		ContactedAt:   in.ContactedAt,
		SessionStatus: status,
	}
}
