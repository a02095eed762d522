package webhook

import (
	"context"

	"leadfunnel_backend/internal/funnels/ports"
	"leadfunnel_backend/internal/funnels/session"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/phone"

	"github.com/google/uuid"
)

const (
	msgNumberNotConfigured = "Error: This number is not configured."
	msgProcessingFailed    = "Sorry, there was an error processing your message."
)

// ChatMachine advances chat sessions for one client.
type ChatMachine interface {
	HandleInboundChatMessage(ctx context.Context, clientID uuid.UUID, fromPhone, text string) (session.Reply, error)
}

// Service routes inbound chat messages to the client that owns the
// destination number.
type Service struct {
	clients ports.ClientReader
	machine ChatMachine
	region  string
	log     *logger.Logger
}

// NewService creates the inbound chat service.
func NewService(clients ports.ClientReader, machine ChatMachine, region string, log *logger.Logger) *Service {
	return &Service{clients: clients, machine: machine, region: region, log: log}
}

// HandleInbound resolves the client from toNumber and hands the message to
// the session machine. It always produces a reply; failures become a
// generic apology and are logged.
func (s *Service) HandleInbound(ctx context.Context, toNumber, fromPhone, text string) session.Reply {
	number := phone.NormalizeE164In(phone.StripChannel(toNumber), s.region)
	client, err := s.clients.GetClientByNumber(ctx, number)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			s.log.Warn("inbound chat to unconfigured number", "to", number)
			return session.Reply{Text: msgNumberNotConfigured}
		}
		s.log.WithContext(ctx).Error("failed to resolve client for inbound chat", "to", number, "error", err)
		return session.Reply{Text: msgProcessingFailed}
	}

	ctx = logger.ContextWithClientID(ctx, client.ID.String())
	reply, err := s.machine.HandleInboundChatMessage(ctx, client.ID, fromPhone, text)
	if err != nil {
		s.log.WithContext(ctx).Error("failed to handle inbound chat message", "error", err)
		return session.Reply{Text: msgProcessingFailed}
	}
	return reply
}
