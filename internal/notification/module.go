// Package notification reacts to funnel events: it records in-app
// notifications and messages the client's WhatsApp operator.
package notification

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/internal/funnels/ports"
	"leadfunnel_backend/internal/notification/inapp"
	"leadfunnel_backend/internal/whatsapp"
	"leadfunnel_backend/platform/db"
	"leadfunnel_backend/platform/logger"

	"github.com/google/uuid"
)

// Module handles notification-related event subscriptions and implements the
// chat relay.
type Module struct {
	inApp    ports.Notifier
	whatsapp whatsapp.Sender
	clients  ports.ClientReader
	log      *logger.Logger
}

var _ ports.Relay = (*Module)(nil)

// New wires the module on top of the notifications table. sender may be nil
// when no WhatsApp gateway is configured.
func New(pool db.Pool, sender whatsapp.Sender, clients ports.ClientReader, log *logger.Logger) *Module {
	return NewWithNotifier(inapp.NewService(inapp.NewRepository(pool), log), sender, clients, log)
}

// NewWithNotifier wires the module with an explicit in-app notifier.
func NewWithNotifier(notifier ports.Notifier, sender whatsapp.Sender, clients ports.ClientReader, log *logger.Logger) *Module {
	return &Module{inApp: notifier, whatsapp: sender, clients: clients, log: log}
}

// RegisterHandlers subscribes to the funnel events this module reacts to.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.LeadCreated{}.EventName(), m)
	bus.Subscribe(events.LeadScored{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.LeadCreated:
		return m.handleLeadCreated(ctx, e)
	case events.LeadScored:
		return m.handleLeadScored(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

// handleLeadCreated never fails the lead: each side effect logs its own error.
func (m *Module) handleLeadCreated(ctx context.Context, e events.LeadCreated) error {
	if err := m.inApp.NotifyNewLead(ctx, e.AccountID, e.LeadID); err != nil {
		m.log.SideEffectFailed("in_app_notification", e.LeadID.String(), err)
	}

	if e.Source != string(domain.LeadSourceWhatsApp) || m.whatsapp == nil {
		return nil
	}

	client, err := m.clients.GetClient(ctx, e.ClientID)
	if err != nil {
		m.log.SideEffectFailed("whatsapp_lead_summary", e.LeadID.String(), err)
		return nil
	}
	if client.WhatsAppNumber == "" {
		return nil
	}
	if err := m.whatsapp.SendMessage(ctx, client.WhatsAppNumber, leadSummary(e.LeadPhone, e.Answers)); err != nil {
		m.log.SideEffectFailed("whatsapp_lead_summary", e.LeadID.String(), err)
	}
	return nil
}

// handleLeadScored flags hot leads to the account. Rescoring a lead that
// stays hot records another notification.
func (m *Module) handleLeadScored(ctx context.Context, e events.LeadScored) error {
	if e.Tier != string(domain.TierHot) || e.AccountID == uuid.Nil {
		return nil
	}
	if err := m.inApp.NotifyHotLead(ctx, e.AccountID, e.LeadID); err != nil {
		m.log.SideEffectFailed("hot_lead_notification", e.LeadID.String(), err)
	}
	return nil
}

// RelayToClient forwards a prospect's message to the client's WhatsApp.
func (m *Module) RelayToClient(ctx context.Context, client domain.Client, leadPhone, text string) error {
	if m.whatsapp == nil || client.WhatsAppNumber == "" {
		m.log.Warn("chat relay skipped, no operator number", "clientId", client.ID)
		return nil
	}
	return m.whatsapp.SendMessage(ctx, client.WhatsAppNumber, fmt.Sprintf("Lead %s:\n%s", leadPhone, text))
}

func leadSummary(leadPhone string, answers map[string]any) string {
	keys := make([]string, 0, len(answers))
	for k := range answers {
		if strings.HasPrefix(k, "_") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("🔥 New qualified lead!\n\n")
	fmt.Fprintf(&b, "Phone: %s\n\n", leadPhone)
	b.WriteString("Answers:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "• %s: %v\n", k, answers[k])
	}
	b.WriteString("\nReply here to continue the conversation.")
	return b.String()
}
