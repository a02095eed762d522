package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/internal/funnels/ports"
	"leadfunnel_backend/platform/apperr"

	"github.com/google/uuid"
)

// Memory is an in-process store with the same atomicity guarantees as the
// Postgres repository. One mutex serializes every read-modify-write.
type Memory struct {
	mu       sync.Mutex
	clients  map[uuid.UUID]domain.Client
	funnels  map[uuid.UUID]domain.Funnel
	sessions map[uuid.UUID]domain.Session
	leads    map[uuid.UUID]domain.Lead
	scores   map[uuid.UUID]domain.Score
	now      func() time.Time
}

var (
	_ ports.FunnelReader = (*Memory)(nil)
	_ ports.ClientReader = (*Memory)(nil)
	_ ports.SessionStore = (*Memory)(nil)
	_ ports.LeadStore    = (*Memory)(nil)
	_ ports.ScoreStore   = (*Memory)(nil)
	_ ports.Store        = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{
		clients:  map[uuid.UUID]domain.Client{},
		funnels:  map[uuid.UUID]domain.Funnel{},
		sessions: map[uuid.UUID]domain.Session{},
		leads:    map[uuid.UUID]domain.Lead{},
		scores:   map[uuid.UUID]domain.Score{},
		now:      time.Now,
	}
}

// PutClient seeds a client.
func (m *Memory) PutClient(c domain.Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clients[c.ID] = c
}

// PutFunnel seeds a funnel; its AccountID is filled from the client.
func (m *Memory) PutFunnel(f domain.Funnel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f.SortSteps()
	if c, ok := m.clients[f.ClientID]; ok {
		f.AccountID = c.AccountID
	}
	m.funnels[f.ID] = f
}

// SetContactedAt records when an operator first reached the lead.
func (m *Memory) SetContactedAt(leadID uuid.UUID, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.leads[leadID]; ok {
		l.ContactedAt = &at
		m.leads[leadID] = l
	}
}

func (m *Memory) GetFunnel(_ context.Context, id uuid.UUID) (domain.Funnel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.funnels[id]
	if !ok {
		return domain.Funnel{}, apperr.NotFound("funnel not found")
	}
	f.Steps = append([]domain.Step(nil), f.Steps...)
	return f, nil
}

func (m *Memory) GetClient(_ context.Context, id uuid.UUID) (domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.clients[id]
	if !ok {
		return domain.Client{}, apperr.NotFound("client not found")
	}
	return c, nil
}

func (m *Memory) GetClientByNumber(_ context.Context, number string) (domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.clients {
		if c.TwilioNumber != "" && c.TwilioNumber == number {
			return c, nil
		}
	}
	return domain.Client{}, apperr.NotFound("client not found")
}

func (m *Memory) CreateSession(_ context.Context, p domain.NewSession) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range m.sessions {
		if p.SessionToken != "" && s.SessionToken == p.SessionToken {
			return domain.Session{}, apperr.Conflict("session already exists")
		}
		if p.Channel == domain.ChannelChat && s.Channel == domain.ChannelChat && s.Status == domain.SessionActive &&
			sameClient(s.ClientID, p.ClientID) && s.LeadPhone == p.LeadPhone {
			return domain.Session{}, apperr.Conflict("session already exists")
		}
	}

	now := m.now()
	s := domain.Session{
		ID:           uuid.New(),
		FunnelID:     p.FunnelID,
		Channel:      p.Channel,
		SessionToken: p.SessionToken,
		ClientID:     p.ClientID,
		LeadPhone:    p.LeadPhone,
		Answers:      domain.Answers{}.Merge(p.Answers),
		Status:       p.Status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.sessions[s.ID] = s
	return copySession(s), nil
}

func sameClient(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (m *Memory) FindSession(_ context.Context, token string, funnelID uuid.UUID) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.Channel == domain.ChannelWeb && s.SessionToken == token && s.FunnelID == funnelID {
			return copySession(s), nil
		}
	}
	return domain.Session{}, apperr.NotFound("session not found")
}

func (m *Memory) FindLatestChatSession(_ context.Context, clientID uuid.UUID, leadPhone string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var (
		latest domain.Session
		found  bool
	)
	for _, s := range m.sessions {
		if s.Channel != domain.ChannelChat || s.ClientID == nil || *s.ClientID != clientID || s.LeadPhone != leadPhone {
			continue
		}
		if !found || s.CreatedAt.After(latest.CreatedAt) {
			latest, found = s, true
		}
	}
	if !found {
		return domain.Session{}, apperr.NotFound("session not found")
	}
	return copySession(latest), nil
}

func (m *Memory) MergeSessionAnswers(_ context.Context, w domain.AnswerWrite) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.guardedLocked(w)
	if err != nil {
		return domain.Session{}, err
	}
	m.applyLocked(&s, w)
	return copySession(s), nil
}

func (m *Memory) CompleteSession(_ context.Context, c domain.Completion) (domain.Session, domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.guardedLocked(c.Write)
	if err != nil {
		return domain.Session{}, domain.Lead{}, err
	}
	if !domain.CanTransition(s.Status, c.Status) {
		return domain.Session{}, domain.Lead{}, apperr.Conflict("session cannot move from " + string(s.Status) + " to " + string(c.Status))
	}
	s.Status = c.Status
	m.applyLocked(&s, c.Write)

	f := m.funnels[c.Lead.FunnelID]
	lead := domain.Lead{
		ID:          uuid.New(),
		FunnelID:    c.Lead.FunnelID,
		ClientID:    f.ClientID,
		SessionID:   c.Lead.SessionID,
		Source:      c.Lead.Source,
		ContactData: domain.Answers{}.Merge(c.Lead.ContactData),
		Status:      domain.LeadStatusNew,
		Temperature: c.Lead.Temperature,
		CreatedAt:   m.now(),
	}
	m.leads[lead.ID] = lead
	return copySession(s), lead, nil
}

func (m *Memory) guardedLocked(w domain.AnswerWrite) (domain.Session, error) {
	s, ok := m.sessions[w.SessionID]
	if !ok {
		return domain.Session{}, apperr.NotFound("session not found")
	}
	if !s.Status.IsOpen() {
		return domain.Session{}, apperr.Conflict("session is no longer accepting answers")
	}
	if w.ExpectedProgress != nil && s.StepProgress != *w.ExpectedProgress {
		return domain.Session{}, ports.ErrStaleProgress
	}
	return s, nil
}

func (m *Memory) applyLocked(s *domain.Session, w domain.AnswerWrite) {
	s.Answers = s.Answers.Merge(w.Patch)
	s.StepProgress = max(s.StepProgress, w.Progress)
	s.UpdatedAt = m.now()
	m.sessions[s.ID] = *s
}

func (m *Memory) MarkSessionStatus(_ context.Context, id uuid.UUID, status domain.SessionStatus) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.guardedLocked(domain.AnswerWrite{SessionID: id})
	if err != nil {
		return domain.Session{}, err
	}
	s.Status = status
	s.UpdatedAt = m.now()
	m.sessions[id] = s
	return copySession(s), nil
}

func (m *Memory) AbandonIdleSessions(_ context.Context, idleSince time.Time) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Session
	for id, s := range m.sessions {
		if s.Status.IsOpen() && s.UpdatedAt.Before(idleSince) {
			s.Status = domain.SessionAbandoned
			s.UpdatedAt = m.now()
			m.sessions[id] = s
			out = append(out, copySession(s))
		}
	}
	return out, nil
}

func (m *Memory) GetLead(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return domain.Lead{}, apperr.NotFound("lead not found")
	}
	return l, nil
}

func (m *Memory) FindLeadWithInputs(_ context.Context, id uuid.UUID) (domain.LeadInputs, domain.SessionStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return domain.LeadInputs{}, "", apperr.NotFound("lead not found")
	}
	in := domain.LeadInputs{
		LeadID:      l.ID,
		AccountID:   m.funnels[l.FunnelID].AccountID,
		CreatedAt:   l.CreatedAt,
		ContactedAt: l.ContactedAt,
		Temperature: l.Temperature,
		Answers:     domain.Answers{},
		ContactData: l.ContactData,
	}
	var status domain.SessionStatus
	if l.SessionID != nil {
		if s, ok := m.sessions[*l.SessionID]; ok {
			in.Answers = s.Answers.Clone()
			status = s.Status
		}
	}
	return in, status, nil
}

func (m *Memory) ListLeadIDs(_ context.Context, clientID *uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	leads := make([]domain.Lead, 0, len(m.leads))
	for _, l := range m.leads {
		if clientID == nil || l.ClientID == *clientID {
			leads = append(leads, l)
		}
	}
	sort.Slice(leads, func(i, j int) bool { return leads[i].CreatedAt.Before(leads[j].CreatedAt) })
	ids := make([]uuid.UUID, len(leads))
	for i, l := range leads {
		ids[i] = l.ID
	}
	return ids, nil
}

func (m *Memory) MarkLeadViewed(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return false, apperr.NotFound("lead not found")
	}
	if l.Status != domain.LeadStatusNew {
		return false, nil
	}
	l.Status = domain.LeadStatusViewed
	m.leads[id] = l
	return true, nil
}

func (m *Memory) SetQualificationLabel(_ context.Context, id uuid.UUID, label domain.QualificationLabel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return apperr.NotFound("lead not found")
	}
	l.QualificationLabel = label
	m.leads[id] = l
	return nil
}

func (m *Memory) GetConversionTarget(_ context.Context, id uuid.UUID) (domain.ConversionTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return domain.ConversionTarget{}, apperr.NotFound("lead not found")
	}
	c := m.clients[l.ClientID]
	return domain.ConversionTarget{Lead: l, PixelID: c.PixelID, AccessToken: c.AccessToken}, nil
}

func (m *Memory) MarkConversionSynced(_ context.Context, id uuid.UUID, eventID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[id]
	if !ok {
		return apperr.NotFound("lead not found")
	}
	l.CAPISyncedAt = &at
	l.CAPIEventID = eventID
	m.leads[id] = l
	return nil
}

func (m *Memory) UpsertScore(_ context.Context, s domain.Score) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.leads[s.LeadID]; !ok {
		return apperr.NotFound("lead not found")
	}
	m.scores[s.LeadID] = s
	return nil
}

func (m *Memory) GetScore(_ context.Context, leadID uuid.UUID) (domain.Score, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scores[leadID]
	if !ok {
		return domain.Score{}, apperr.NotFound("score not found")
	}
	return s, nil
}

// ScoreCount reports how many score rows exist.
func (m *Memory) ScoreCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.scores)
}

func copySession(s domain.Session) domain.Session {
	s.Answers = s.Answers.Clone()
	return s
}
