// Package session runs the funnel session lifecycle for both the web and
// the chat channel.
package session

import (
	"context"
	"errors"
	"time"

	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/internal/funnels/ports"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/phone"

	"github.com/google/uuid"
)

const maxWriteAttempts = 3

// Machine owns session state transitions. It is safe for concurrent use;
// per-session serialization is delegated to the store.
type Machine struct {
	funnels  ports.FunnelReader
	clients  ports.ClientReader
	sessions ports.SessionStore
	relay    ports.Relay
	bus      events.Bus
	log      *logger.Logger

	phoneRegion string
	newToken    func() string
	now         func() time.Time
	web         Transport
	chat        Transport
}

// Option customizes a Machine.
type Option func(*Machine)

// WithRelay sets where forwarded chat messages go.
func WithRelay(r ports.Relay) Option {
	return func(m *Machine) { m.relay = r }
}

// WithPhoneRegion sets the region national chat numbers resolve against.
func WithPhoneRegion(region string) Option {
	return func(m *Machine) { m.phoneRegion = region }
}

func NewMachine(
	funnels ports.FunnelReader,
	clients ports.ClientReader,
	sessions ports.SessionStore,
	bus events.Bus,
	log *logger.Logger,
	opts ...Option,
) *Machine {
	m := &Machine{
		funnels:     funnels,
		clients:     clients,
		sessions:    sessions,
		bus:         bus,
		log:         log,
		phoneRegion: phone.DefaultRegion,
		newToken:    func() string { return uuid.NewString() },
		now:         time.Now,
		web:         WebTransport{},
		chat:        ChatTransport{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StartResult identifies a freshly opened web session.
type StartResult struct {
	SessionID    uuid.UUID `json:"sessionId"`
	SessionToken string    `json:"sessionToken"`
}

// StartSession opens a web session on funnelID, keeping tracking data under
// the reserved _tracking key.
func (m *Machine) StartSession(ctx context.Context, funnelID uuid.UUID, tracking map[string]any) (StartResult, error) {
	if _, err := m.funnels.GetFunnel(ctx, funnelID); err != nil {
		return StartResult{}, err
	}

	answers := domain.Answers{}
	if len(tracking) > 0 {
		answers[domain.TrackingKey] = tracking
	}

	s, err := m.sessions.CreateSession(ctx, domain.NewSession{
		FunnelID:     funnelID,
		Channel:      m.web.Channel(),
		SessionToken: m.newToken(),
		Answers:      answers,
		Status:       m.web.InitialStatus(),
	})
	if err != nil {
		return StartResult{}, err
	}

	m.log.WithContext(ctx).SessionEvent("started", s.ID.String(), string(s.Channel), string(s.Status))
	return StartResult{SessionID: s.ID, SessionToken: s.SessionToken}, nil
}

// SubmitStep merges a partial answer set into the session. Progress never
// moves backwards; no status change happens here.
func (m *Machine) SubmitStep(ctx context.Context, token string, funnelID uuid.UUID, stepIndex int, partial domain.Answers) (domain.Session, error) {
	f, err := m.funnels.GetFunnel(ctx, funnelID)
	if err != nil {
		return domain.Session{}, err
	}

	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		s, err := m.sessions.FindSession(ctx, token, funnelID)
		if err != nil {
			return domain.Session{}, err
		}
		next, _, err := m.advance(ctx, m.web, f, s, Input{StepIndex: stepIndex, Patch: partial}, nil)
		if !errors.Is(err, ports.ErrStaleProgress) {
			return next, err
		}
		lastErr = err
	}
	return domain.Session{}, apperr.Wrap(apperr.KindConflict, "session is busy, please retry", lastErr)
}

// SubmitContact converts the session into a lead and closes it. Scoring and
// notification run afterwards through LeadCreated subscribers and never
// affect the outcome.
func (m *Machine) SubmitContact(ctx context.Context, token string, funnelID uuid.UUID, contact map[string]any) (domain.Lead, error) {
	s, err := m.sessions.FindSession(ctx, token, funnelID)
	if err != nil {
		return domain.Lead{}, err
	}
	f, err := m.funnels.GetFunnel(ctx, funnelID)
	if err != nil {
		return domain.Lead{}, err
	}
	if !s.Status.IsOpen() {
		return domain.Lead{}, apperr.Conflict("session is already completed")
	}

	_, lead, err := m.complete(ctx, m.web, f, s, domain.AnswerWrite{SessionID: s.ID}, domain.NewLead{
		FunnelID:    f.ID,
		SessionID:   &s.ID,
		Source:      domain.LeadSourceWeb,
		ContactData: domain.ContactWithTracking(contact, s.Answers.Tracking()),
		Temperature: domain.InitialTemperature(s.Answers),
	})
	return lead, err
}

// AbandonSession closes an open session without creating a lead.
func (m *Machine) AbandonSession(ctx context.Context, sessionID uuid.UUID) (domain.Session, error) {
	s, err := m.sessions.MarkSessionStatus(ctx, sessionID, domain.SessionAbandoned)
	if err != nil {
		return domain.Session{}, err
	}
	m.afterAbandon(ctx, s)
	return s, nil
}

// AbandonIdleSessions closes every open session untouched for idleFor and
// returns how many were closed.
func (m *Machine) AbandonIdleSessions(ctx context.Context, idleFor time.Duration) (int, error) {
	if idleFor <= 0 {
		return 0, apperr.Validation("idle duration must be positive")
	}
	closed, err := m.sessions.AbandonIdleSessions(ctx, m.now().Add(-idleFor))
	if err != nil {
		return 0, err
	}
	for _, s := range closed {
		m.afterAbandon(ctx, s)
	}
	return len(closed), nil
}

func (m *Machine) afterAbandon(ctx context.Context, s domain.Session) {
	m.log.WithContext(ctx).SessionEvent("abandoned", s.ID.String(), string(s.Channel), string(s.Status))
}

// advance records one input through transport t. When the input finishes
// the flow, leadFor builds the lead that closes the session.
func (m *Machine) advance(
	ctx context.Context,
	t Transport,
	f domain.Funnel,
	s domain.Session,
	in Input,
	leadFor func(answers domain.Answers) domain.NewLead,
) (domain.Session, *domain.Lead, error) {
	if !s.Status.IsOpen() {
		return domain.Session{}, nil, apperr.Conflict("session is no longer accepting answers")
	}

	patch, progress, err := t.Record(f, s, in)
	if err != nil {
		return domain.Session{}, nil, err
	}

	write := domain.AnswerWrite{SessionID: s.ID, Patch: patch, Progress: progress}
	if t.Guarded() {
		expected := s.StepProgress
		write.ExpectedProgress = &expected
	}

	if t.Finishes(f, progress) && leadFor != nil {
		next, lead, err := m.complete(ctx, t, f, s, write, leadFor(s.Answers.Merge(patch)))
		if err != nil {
			return domain.Session{}, nil, err
		}
		return next, &lead, nil
	}

	next, err := m.sessions.MergeSessionAnswers(ctx, write)
	if err != nil {
		return domain.Session{}, nil, err
	}
	return next, nil, nil
}

func (m *Machine) complete(
	ctx context.Context,
	t Transport,
	f domain.Funnel,
	s domain.Session,
	write domain.AnswerWrite,
	newLead domain.NewLead,
) (domain.Session, domain.Lead, error) {
	closed, lead, err := m.sessions.CompleteSession(ctx, domain.Completion{
		Write:  write,
		Status: t.ClosedStatus(),
		Lead:   newLead,
	})
	if err != nil {
		return domain.Session{}, domain.Lead{}, err
	}
	lead.ClientID = f.ClientID

	m.log.WithContext(ctx).SessionEvent("closed", closed.ID.String(), string(closed.Channel), string(closed.Status))
	m.bus.Publish(ctx, events.LeadCreated{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		SessionID: s.ID,
		FunnelID:  f.ID,
		ClientID:  f.ClientID,
		AccountID: f.AccountID,
		Source:    string(lead.Source),
		LeadPhone: s.LeadPhone,
		Answers:   closed.Answers,
	})
	return closed, lead, nil
}
