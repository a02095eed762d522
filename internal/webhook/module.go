// Package webhook provides the inbound chat webhook bounded context module.
// Messages posted by the messaging provider drive chat funnel sessions.
package webhook

import (
	"leadfunnel_backend/internal/funnels/ports"
	apphttp "leadfunnel_backend/internal/http"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/validator"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
	cfg     config.TwilioConfig
	log     *logger.Logger
}

// NewModule creates and initializes the webhook module with all its dependencies.
func NewModule(clients ports.ClientReader, machine ChatMachine, region string, cfg config.TwilioConfig, val *validator.Validator, log *logger.Logger) *Module {
	service := NewService(clients, machine, region, log)
	if cfg.GetTwilioAuthToken() == "" {
		log.Warn("TWILIO_AUTH_TOKEN not configured; chat webhook signatures are not verified")
	}
	return &Module{
		handler: NewHandler(service, val),
		service: service,
		cfg:     cfg,
		log:     log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// Service returns the inbound chat service.
func (m *Module) Service() *Service {
	return m.service
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.Engine.Group("/api/webhooks")
	group.Use(SignatureAuthMiddleware(m.cfg, m.log))
	group.POST("/twilio", m.handler.HandleInboundMessage)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
