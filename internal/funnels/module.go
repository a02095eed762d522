// Package funnels provides the funnel session and lead qualification
// bounded context module.
package funnels

import (
	"context"
	"fmt"

	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/funnels/handler"
	"leadfunnel_backend/internal/funnels/ports"
	"leadfunnel_backend/internal/funnels/qualification"
	"leadfunnel_backend/internal/funnels/scoring"
	"leadfunnel_backend/internal/funnels/session"
	"leadfunnel_backend/internal/funnels/templates"
	apphttp "leadfunnel_backend/internal/http"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/validator"
)

// Module is the funnels bounded context module implementing http.Module.
type Module struct {
	handler   *handler.Handler
	machine   *session.Machine
	scoring   *scoring.Service
	qualifier *qualification.Service
	scheduler ports.ScoreScheduler
	log       *logger.Logger
}

// Deps are the optional collaborators of the module. Nil fields disable the
// matching side effect.
type Deps struct {
	Relay  ports.Relay
	Sender ports.ConversionSender
}

// NewModule creates and initializes the funnels module with all its dependencies.
func NewModule(store ports.Store, eventBus events.Bus, val *validator.Validator, cfg config.FunnelConfig, log *logger.Logger, deps Deps) (*Module, error) {
	list, err := templates.System()
	if err != nil {
		return nil, fmt.Errorf("load funnel templates: %w", err)
	}
	tables, err := templates.ScoringTables(scoring.DefaultTables(), list)
	if err != nil {
		return nil, fmt.Errorf("register template vocabulary: %w", err)
	}

	scoringSvc := scoring.NewService(store, scoring.NewEngine(tables), log,
		scoring.WithConcurrency(cfg.GetRescoreConcurrency()),
		scoring.WithEventBus(eventBus),
	)

	opts := []session.Option{session.WithPhoneRegion(cfg.GetPhoneDefaultRegion())}
	if deps.Relay != nil {
		opts = append(opts, session.WithRelay(deps.Relay))
	}
	machine := session.NewMachine(store, store, store, eventBus, log, opts...)
	qualifier := qualification.NewService(store, deps.Sender, log)

	m := &Module{
		handler:   handler.New(machine, scoringSvc, qualifier, list, val, cfg.GetSessionIdleTTL()),
		machine:   machine,
		scoring:   scoringSvc,
		qualifier: qualifier,
		log:       log,
	}

	// Score every new lead; failures are logged and never affect the lead.
	eventBus.Subscribe(events.LeadCreated{}.EventName(), events.HandlerFunc(m.handleLeadCreated))

	log.Info("funnels module initialized", "scoringVersion", tables.Version())
	return m, nil
}

// SetScoreScheduler moves lead scoring onto the background queue.
func (m *Module) SetScoreScheduler(s ports.ScoreScheduler) {
	m.scheduler = s
}

func (m *Module) handleLeadCreated(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadCreated)
	if !ok {
		return nil
	}

	if m.scheduler != nil {
		err := m.scheduler.ScheduleLeadScoring(ctx, e.LeadID)
		if err == nil {
			return nil
		}
		m.log.Warn("failed to enqueue lead scoring, scoring inline", "leadId", e.LeadID, "error", err)
	}

	if _, err := m.scoring.ScoreAndSave(ctx, e.LeadID); err != nil {
		m.log.SideEffectFailed("scoring", e.LeadID.String(), err)
	}
	return nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "funnels"
}

// Machine returns the session state machine for the chat transport.
func (m *Module) Machine() *session.Machine {
	return m.machine
}

// ScoringService returns the scoring service for the worker and CLI.
func (m *Module) ScoringService() *scoring.Service {
	return m.scoring
}

// QualificationService returns the lead signal service.
func (m *Module) QualificationService() *qualification.Service {
	return m.qualifier
}

// RegisterRoutes mounts funnels routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterPublicRoutes(ctx.Public.Group("/funnels"))
	m.handler.RegisterTemplateRoutes(ctx.V1.Group("/funnel-templates"))
	m.handler.RegisterInternalRoutes(ctx.Internal)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
