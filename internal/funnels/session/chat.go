package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/internal/funnels/ports"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/phone"

	"github.com/google/uuid"
)

// StartMarker prefixes the funnel id in the message that opens a chat session.
const StartMarker = "START_FUNNEL_"

const (
	msgInstructions   = "Hi! To get started, please send the funnel code you received.\nExample: START_FUNNEL_ABC123"
	msgInvalidFunnel  = "Sorry, that funnel code is not valid. Please check it and try again."
	msgEmptyFunnel    = "This funnel has no questions configured yet."
	msgDefaultWelcome = "I'll ask you a few quick questions."
	msgAnswerRequired = "Please reply with an answer to continue."
)

// Reply is what the chat channel sends back to the prospect. Relayed is set
// when the message was forwarded to the client instead; Text is then empty.
type Reply struct {
	Text    string
	Relayed bool
}

// HandleInboundChatMessage advances the chat session of fromPhone with the
// client identified by clientID.
func (m *Machine) HandleInboundChatMessage(ctx context.Context, clientID uuid.UUID, fromPhone, text string) (Reply, error) {
	client, err := m.clients.GetClient(ctx, clientID)
	if err != nil {
		return Reply{}, err
	}
	leadPhone := phone.NormalizeE164In(phone.StripChannel(fromPhone), m.phoneRegion)
	if leadPhone == "" {
		return Reply{}, apperr.Validation("sender phone is required")
	}
	text = strings.TrimSpace(text)

	var lastErr error
	for attempt := 0; attempt < maxWriteAttempts; attempt++ {
		reply, err := m.dispatchChat(ctx, client, leadPhone, text)
		if !errors.Is(err, ports.ErrStaleProgress) {
			return reply, err
		}
		lastErr = err
	}
	return Reply{}, apperr.Wrap(apperr.KindConflict, "session is busy, please retry", lastErr)
}

func (m *Machine) dispatchChat(ctx context.Context, client domain.Client, leadPhone, text string) (Reply, error) {
	s, found, err := m.latestChatSession(ctx, client.ID, leadPhone)
	if err != nil {
		return Reply{}, err
	}

	switch {
	case found && s.Status == domain.SessionForwarding:
		return m.relayToClient(ctx, client, leadPhone, text), nil
	case found && s.Status.IsOpen():
		return m.answerChat(ctx, client, s, text)
	case hasStartMarker(text):
		return m.startChat(ctx, client, leadPhone, text)
	default:
		return Reply{Text: msgInstructions}, nil
	}
}

func (m *Machine) latestChatSession(ctx context.Context, clientID uuid.UUID, leadPhone string) (domain.Session, bool, error) {
	s, err := m.sessions.FindLatestChatSession(ctx, clientID, leadPhone)
	if apperr.Is(err, apperr.KindNotFound) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, err
	}
	return s, true, nil
}

func (m *Machine) relayToClient(ctx context.Context, client domain.Client, leadPhone, text string) Reply {
	if m.relay == nil || text == "" {
		return Reply{Relayed: true}
	}
	if err := m.relay.RelayToClient(ctx, client, leadPhone, text); err != nil {
		m.log.WithContext(ctx).Error("failed to relay chat message", "clientId", client.ID, "error", err)
	}
	return Reply{Relayed: true}
}

func (m *Machine) startChat(ctx context.Context, client domain.Client, leadPhone, text string) (Reply, error) {
	funnelID, err := uuid.Parse(strings.TrimSpace(text[len(StartMarker):]))
	if err != nil {
		return Reply{Text: msgInvalidFunnel}, nil
	}
	f, err := m.funnels.GetFunnel(ctx, funnelID)
	if apperr.Is(err, apperr.KindNotFound) || (err == nil && f.ClientID != client.ID) {
		return Reply{Text: msgInvalidFunnel}, nil
	}
	if err != nil {
		return Reply{}, err
	}
	if len(f.Steps) == 0 {
		return Reply{Text: msgEmptyFunnel}, nil
	}

	clientID := client.ID
	s, err := m.sessions.CreateSession(ctx, domain.NewSession{
		FunnelID:  f.ID,
		Channel:   m.chat.Channel(),
		ClientID:  &clientID,
		LeadPhone: leadPhone,
		Answers:   domain.Answers{},
		Status:    m.chat.InitialStatus(),
	})
	if apperr.Is(err, apperr.KindConflict) {
		// Another message opened the session first; repeat its question.
		existing, found, lookupErr := m.latestChatSession(ctx, client.ID, leadPhone)
		if lookupErr != nil {
			return Reply{}, lookupErr
		}
		if found && existing.Status.IsOpen() {
			return m.currentQuestion(ctx, existing, "")
		}
		return Reply{}, err
	}
	if err != nil {
		return Reply{}, err
	}

	m.log.WithContext(ctx).SessionEvent("started", s.ID.String(), string(s.Channel), string(s.Status))
	return Reply{Text: greeting(client, f)}, nil
}

func (m *Machine) answerChat(ctx context.Context, client domain.Client, s domain.Session, text string) (Reply, error) {
	f, err := m.funnels.GetFunnel(ctx, s.FunnelID)
	if err != nil {
		return Reply{}, err
	}

	next, lead, err := m.advance(ctx, m.chat, f, s, Input{Text: text}, func(answers domain.Answers) domain.NewLead {
		return domain.NewLead{
			FunnelID:    f.ID,
			SessionID:   &s.ID,
			Source:      domain.LeadSourceWhatsApp,
			ContactData: chatContact(s.LeadPhone, answers),
			Temperature: domain.TemperatureWarm,
		}
	})
	if apperr.Is(err, apperr.KindValidation) {
		return m.currentQuestion(ctx, s, msgAnswerRequired+"\n\n")
	}
	if err != nil {
		return Reply{}, err
	}
	if lead != nil {
		return Reply{Text: completion(client)}, nil
	}

	step, _ := f.StepAt(next.StepProgress)
	return Reply{Text: question(next.StepProgress, len(f.Steps), step.Question)}, nil
}

func (m *Machine) currentQuestion(ctx context.Context, s domain.Session, prefix string) (Reply, error) {
	f, err := m.funnels.GetFunnel(ctx, s.FunnelID)
	if err != nil {
		return Reply{}, err
	}
	step, ok := f.StepAt(s.StepProgress)
	if !ok {
		return Reply{}, apperr.Conflict("session has no pending question")
	}
	return Reply{Text: prefix + question(s.StepProgress, len(f.Steps), step.Question)}, nil
}

func hasStartMarker(text string) bool {
	return len(text) > len(StartMarker) && strings.EqualFold(text[:len(StartMarker)], StartMarker)
}

// chatContact is the lead contact payload of a chat lead: the phone plus
// every collected answer.
func chatContact(leadPhone string, answers domain.Answers) map[string]any {
	contact := map[string]any{}
	for k, v := range answers {
		if k == domain.TrackingKey {
			continue
		}
		contact[k] = v
	}
	contact["phone"] = leadPhone
	return contact
}

func greeting(client domain.Client, f domain.Funnel) string {
	welcome := strings.TrimSpace(f.WelcomeMessage)
	if welcome == "" {
		welcome = msgDefaultWelcome
	}
	return fmt.Sprintf("Hi! 👋 I'm the assistant for %s.\n%s\n\n%s",
		client.Name, welcome, question(0, len(f.Steps), f.Steps[0].Question))
}

func question(index, total int, text string) string {
	return fmt.Sprintf("Question %d/%d: %s", index+1, total, text)
}

func completion(client domain.Client) string {
	return fmt.Sprintf("Perfect! ✅ We have your information. Someone from %s will contact you soon.\n"+
		"Anything you send from now on goes straight to the team.", client.Name)
}
