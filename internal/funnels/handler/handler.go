// Package handler exposes the funnels context over HTTP.
package handler

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"leadfunnel_backend/internal/funnels/qualification"
	"leadfunnel_backend/internal/funnels/scoring"
	"leadfunnel_backend/internal/funnels/session"
	"leadfunnel_backend/internal/funnels/templates"
	"leadfunnel_backend/internal/funnels/transport"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/httpkit"
	"leadfunnel_backend/platform/sanitize"
	"leadfunnel_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgSessionExpired   = "Session expired, please restart"
	msgInvalidFunnelID  = "invalid funnel id"
	msgInvalidID        = "invalid id"
)

// Handler handles HTTP requests for funnels, scoring and lead signals.
type Handler struct {
	machine   *session.Machine
	scoring   *scoring.Service
	qualifier *qualification.Service
	templates []templates.Template
	val       *validator.Validator
	idleFor   time.Duration
	now       func() time.Time
}

// New builds the handler. idleFor is the sweep window used when a sweep
// request names none.
func New(machine *session.Machine, scoringSvc *scoring.Service, qualifier *qualification.Service, tpls []templates.Template, val *validator.Validator, idleFor time.Duration) *Handler {
	return &Handler{
		machine:   machine,
		scoring:   scoringSvc,
		qualifier: qualifier,
		templates: tpls,
		val:       val,
		idleFor:   idleFor,
		now:       time.Now,
	}
}

// RegisterPublicRoutes registers the prospect-facing funnel routes.
func (h *Handler) RegisterPublicRoutes(rg *gin.RouterGroup) {
	rg.POST("/:funnelId/session/start", h.StartSession)
	rg.POST("/:funnelId/session/step", h.SubmitStep)
	rg.POST("/:funnelId/lead", h.SubmitContact)
}

// RegisterTemplateRoutes registers the read-only template catalog.
func (h *Handler) RegisterTemplateRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.ListTemplates)
}

// RegisterInternalRoutes registers operator routes behind the internal key.
func (h *Handler) RegisterInternalRoutes(rg *gin.RouterGroup) {
	rg.POST("/scoring/calculate", h.CalculateAndSave)
	rg.GET("/scoring/calculate", h.Calculate)
	rg.GET("/leads/:id/score", h.GetScore)
	rg.POST("/leads/:id/viewed", h.MarkViewed)
	rg.POST("/leads/:id/signal", h.Signal)
	rg.POST("/sessions/:id/abandon", h.AbandonSession)
	rg.POST("/sessions/sweep", h.SweepSessions)
}

// StartSession handles POST /api/v1/public/funnels/:funnelId/session/start
func (h *Handler) StartSession(c *gin.Context) {
	funnelID, ok := parseUUIDParam(c, "funnelId", msgInvalidFunnelID)
	if !ok {
		return
	}

	var req transport.StartSessionRequest
	// An empty or malformed body starts an untracked session.
	_ = c.ShouldBindJSON(&req)

	res, err := h.machine.StartSession(c.Request.Context(), funnelID, sanitize.Answers(req.TrackingData))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.StartSessionResponse{SessionID: res.SessionID, SessionToken: res.SessionToken})
}

// SubmitStep handles POST /api/v1/public/funnels/:funnelId/session/step
func (h *Handler) SubmitStep(c *gin.Context) {
	funnelID, ok := parseUUIDParam(c, "funnelId", msgInvalidFunnelID)
	if !ok {
		return
	}

	var req transport.SubmitStepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if req.CompanyHP != "" {
		httpkit.OK(c, transport.SuccessResponse{Success: true})
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	_, err := h.machine.SubmitStep(c.Request.Context(), req.SessionToken, funnelID, *req.StepIndex, sanitize.Answers(req.Answers))
	if handleSessionError(c, err) {
		return
	}

	httpkit.OK(c, transport.SuccessResponse{Success: true})
}

// SubmitContact handles POST /api/v1/public/funnels/:funnelId/lead
func (h *Handler) SubmitContact(c *gin.Context) {
	funnelID, ok := parseUUIDParam(c, "funnelId", msgInvalidFunnelID)
	if !ok {
		return
	}

	var req transport.SubmitContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if req.CompanyHP != "" {
		httpkit.OK(c, transport.SubmitContactResponse{Success: true, LeadID: fmt.Sprintf("hp-%d", h.now().UnixMilli())})
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	lead, err := h.machine.SubmitContact(c.Request.Context(), req.SessionToken, funnelID, sanitize.Answers(req.Contact))
	if handleSessionError(c, err) {
		return
	}

	httpkit.OK(c, transport.SubmitContactResponse{Success: true, LeadID: lead.ID.String()})
}

// ListTemplates handles GET /api/v1/funnel-templates
func (h *Handler) ListTemplates(c *gin.Context) {
	var q transport.TemplatesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	httpkit.OK(c, transport.TemplatesResponse{Success: true, Templates: templates.ByIntent(h.templates, q.Intent)})
}

// CalculateAndSave handles POST /api/v1/scoring/calculate
func (h *Handler) CalculateAndSave(c *gin.Context) {
	var req transport.CalculateScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}

	if req.RecalculateAll {
		count, err := h.scoring.RecalculateAll(c.Request.Context(), req.ClientID)
		if httpkit.HandleError(c, err) {
			return
		}
		httpkit.OK(c, transport.RecalculateResponse{
			Success:     true,
			Message:     fmt.Sprintf("Recalculated scores for %d leads", count),
			ScoredCount: count,
		})
		return
	}

	if req.LeadID == nil {
		httpkit.Error(c, http.StatusBadRequest, "lead_id is required", nil)
		return
	}

	score, err := h.scoring.ScoreAndSave(c.Request.Context(), *req.LeadID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ScoreResponse{Success: true, Scores: score})
}

// Calculate handles GET /api/v1/scoring/calculate?lead_id=
func (h *Handler) Calculate(c *gin.Context) {
	var q transport.CalculateScoreQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(q); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "lead_id parameter is required", err.Error())
		return
	}

	score, err := h.scoring.Calculate(c.Request.Context(), uuid.MustParse(q.LeadID))
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ScoreResponse{Success: true, Scores: score})
}

// GetScore handles GET /api/v1/leads/:id/score
func (h *Handler) GetScore(c *gin.Context) {
	leadID, ok := parseUUIDParam(c, "id", msgInvalidID)
	if !ok {
		return
	}

	score, err := h.scoring.Stored(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.ScoreResponse{Success: true, Scores: score})
}

// MarkViewed handles POST /api/v1/leads/:id/viewed
func (h *Handler) MarkViewed(c *gin.Context) {
	leadID, ok := parseUUIDParam(c, "id", msgInvalidID)
	if !ok {
		return
	}

	updated, err := h.qualifier.MarkViewed(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.MarkViewedResponse{Success: true, Updated: updated})
}

// Signal handles POST /api/v1/leads/:id/signal
func (h *Handler) Signal(c *gin.Context) {
	leadID, ok := parseUUIDParam(c, "id", msgInvalidID)
	if !ok {
		return
	}

	var req transport.SignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	outcome, err := h.qualifier.MarkQualified(c.Request.Context(), leadID, req.SignalType)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.SignalResponse{Success: true, Outcome: outcome})
}

// AbandonSession handles POST /api/v1/sessions/:id/abandon
func (h *Handler) AbandonSession(c *gin.Context) {
	sessionID, ok := parseUUIDParam(c, "id", msgInvalidID)
	if !ok {
		return
	}

	s, err := h.machine.AbandonSession(c.Request.Context(), sessionID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.AbandonSessionResponse{Success: true, Status: s.Status})
}

// SweepSessions handles POST /api/v1/sessions/sweep
func (h *Handler) SweepSessions(c *gin.Context) {
	var req transport.SweepSessionsRequest
	_ = c.ShouldBindJSON(&req)
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	idleFor := h.idleFor
	if strings.TrimSpace(req.IdleFor) != "" {
		parsed, err := time.ParseDuration(req.IdleFor)
		if err != nil || parsed <= 0 {
			httpkit.Error(c, http.StatusBadRequest, "idleFor must be a positive duration", nil)
			return
		}
		idleFor = parsed
	}

	n, err := h.machine.AbandonIdleSessions(c.Request.Context(), idleFor)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.SweepSessionsResponse{Success: true, Abandoned: n})
}

// handleSessionError hides which part of a (token, funnel) pair was wrong.
func handleSessionError(c *gin.Context, err error) bool {
	if apperr.Is(err, apperr.KindNotFound) {
		httpkit.Error(c, http.StatusNotFound, msgSessionExpired, nil)
		return true
	}
	return httpkit.HandleError(c, err)
}

func parseUUIDParam(c *gin.Context, name, msg string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msg, nil)
		return uuid.UUID{}, false
	}
	return id, true
}

