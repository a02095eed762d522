package notification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/internal/funnels/repository"
	"leadfunnel_backend/platform/logger"

	"github.com/google/uuid"
)

type testNotifier struct {
	calls int
	hot   []uuid.UUID
	err   error
}

func (n *testNotifier) NotifyNewLead(context.Context, uuid.UUID, uuid.UUID) error {
	n.calls++
	return n.err
}

func (n *testNotifier) NotifyHotLead(_ context.Context, _ uuid.UUID, leadID uuid.UUID) error {
	n.hot = append(n.hot, leadID)
	return n.err
}

type testSender struct {
	to       []string
	messages []string
}

func (s *testSender) SendMessage(_ context.Context, phoneNumber, message string) error {
	s.to = append(s.to, phoneNumber)
	s.messages = append(s.messages, message)
	return nil
}

func newTestModule(notifier *testNotifier, sender *testSender) (*Module, domain.Client) {
	store := repository.NewMemory()
	client := domain.Client{ID: uuid.New(), AccountID: uuid.New(), Name: "Sunrise", WhatsAppNumber: "+13055550100"}
	store.PutClient(client)
	return NewWithNotifier(notifier, sender, store, logger.New("test")), client
}

func TestWebLeadOnlyNotifiesInApp(t *testing.T) {
	notifier, sender := &testNotifier{}, &testSender{}
	m, client := newTestModule(notifier, sender)

	err := m.Handle(context.Background(), events.LeadCreated{LeadID: uuid.New(), ClientID: client.ID, Source: "web"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notifier.calls != 1 {
		t.Fatalf("expected one in-app notification, got %d", notifier.calls)
	}
	if len(sender.messages) != 0 {
		t.Fatalf("expected no whatsapp message for web lead")
	}
}

func TestChatLeadSendsSummary(t *testing.T) {
	notifier, sender := &testNotifier{err: errors.New("db down")}, &testSender{}
	m, client := newTestModule(notifier, sender)

	err := m.Handle(context.Background(), events.LeadCreated{
		LeadID:    uuid.New(),
		ClientID:  client.ID,
		Source:    "whatsapp",
		LeadPhone: "+13055550142",
		Answers:   map[string]any{"timeline": "asap", "name": "Ana", "_tracking": map[string]any{}},
	})
	if err != nil {
		t.Fatalf("side effect failures must not fail the handler: %v", err)
	}
	if len(sender.messages) != 1 || sender.to[0] != client.WhatsAppNumber {
		t.Fatalf("expected one summary to the client number, got %v", sender.to)
	}
	msg := sender.messages[0]
	if !strings.Contains(msg, "+13055550142") || !strings.Contains(msg, "• name: Ana\n• timeline: asap") {
		t.Fatalf("unexpected summary: %q", msg)
	}
	if strings.Contains(msg, "_tracking") {
		t.Fatalf("summary must not include reserved keys: %q", msg)
	}
}

func TestRelayToClient(t *testing.T) {
	sender := &testSender{}
	m, client := newTestModule(&testNotifier{}, sender)

	if err := m.RelayToClient(context.Background(), client, "+13055550142", "still there?"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sender.messages[0] != "Lead +13055550142:\nstill there?" {
		t.Fatalf("unexpected relay body %q", sender.messages[0])
	}

	client.WhatsAppNumber = ""
	if err := m.RelayToClient(context.Background(), client, "+13055550142", "hello"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.messages) != 1 {
		t.Fatal("expected relay to be skipped without an operator number")
	}
}

func TestHotScoreNotifiesAccount(t *testing.T) {
	notifier := &testNotifier{}
	m, client := newTestModule(notifier, &testSender{})
	hot, warm := uuid.New(), uuid.New()

	for _, e := range []events.LeadScored{
		{LeadID: hot, AccountID: client.AccountID, TotalScore: 85, Tier: string(domain.TierHot)},
		{LeadID: warm, AccountID: client.AccountID, TotalScore: 55, Tier: string(domain.TierWarm)},
		{LeadID: uuid.New(), TotalScore: 90, Tier: string(domain.TierHot)},
	} {
		if err := m.Handle(context.Background(), e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(notifier.hot) != 1 || notifier.hot[0] != hot {
		t.Fatalf("expected only the hot lead with an account to notify, got %v", notifier.hot)
	}
}

func TestHotScoreNotificationFailureIsSwallowed(t *testing.T) {
	m, client := newTestModule(&testNotifier{err: errors.New("db down")}, &testSender{})
	err := m.Handle(context.Background(), events.LeadScored{
		LeadID: uuid.New(), AccountID: client.AccountID, TotalScore: 95, Tier: string(domain.TierHot),
	})
	if err != nil {
		t.Fatalf("side effect failures must not fail the handler: %v", err)
	}
}
