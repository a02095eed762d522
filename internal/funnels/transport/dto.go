// Package transport holds the request and response bodies of the funnels API.
package transport

import (
	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/internal/funnels/qualification"
	"leadfunnel_backend/internal/funnels/templates"

	"github.com/google/uuid"
)

// StartSessionRequest opens a web session. Tracking data (UTM parameters,
// referrer) is optional.
type StartSessionRequest struct {
	TrackingData map[string]any `json:"trackingData"`
}

type StartSessionResponse struct {
	SessionID    uuid.UUID `json:"sessionId"`
	SessionToken string    `json:"sessionToken"`
}

// SubmitStepRequest merges one step's answers. StepIndex is the progress
// reached by this submission: the index of the answered step plus one.
// CompanyHP is a honeypot field that real visitors never fill.
type SubmitStepRequest struct {
	SessionToken string         `json:"sessionToken" validate:"required,max=128"`
	StepIndex    *int           `json:"stepIndex" validate:"required,min=0,max=500"`
	Answers      map[string]any `json:"answers" validate:"omitempty,max=100,dive,keys,fieldkey,max=100,endkeys"`
	CompanyHP    string         `json:"company_hp"`
}

// SubmitContactRequest converts the session into a lead.
type SubmitContactRequest struct {
	SessionToken string         `json:"sessionToken" validate:"required,max=128"`
	Contact      map[string]any `json:"contact" validate:"required,min=1,max=50"`
	CompanyHP    string         `json:"company_hp"`
}

type SuccessResponse struct {
	Success bool `json:"success"`
}

type SubmitContactResponse struct {
	Success bool   `json:"success"`
	LeadID  string `json:"leadId"`
}

// CalculateScoreRequest scores one lead, or every lead when RecalculateAll
// is set (optionally limited to one client).
type CalculateScoreRequest struct {
	LeadID         *uuid.UUID `json:"lead_id"`
	RecalculateAll bool       `json:"recalculate_all"`
	ClientID       *uuid.UUID `json:"client_id"`
}

type CalculateScoreQuery struct {
	LeadID string `form:"lead_id" validate:"required,uuid"`
}

type ScoreResponse struct {
	Success bool         `json:"success"`
	Scores  domain.Score `json:"scores"`
}

type RecalculateResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	ScoredCount int    `json:"scored_count"`
}

// SignalRequest carries an operator verdict, QUALIFIED or anything else.
type SignalRequest struct {
	SignalType string `json:"signalType" validate:"required,max=32"`
}

type SignalResponse struct {
	Success bool                  `json:"success"`
	Outcome qualification.Outcome `json:"outcome"`
}

type MarkViewedResponse struct {
	Success bool `json:"success"`
	Updated bool `json:"updated"`
}

type AbandonSessionResponse struct {
	Success bool                 `json:"success"`
	Status  domain.SessionStatus `json:"status"`
}

type SweepSessionsRequest struct {
	IdleFor string `json:"idleFor" validate:"omitempty,max=32"`
}

type SweepSessionsResponse struct {
	Success   bool `json:"success"`
	Abandoned int  `json:"abandoned"`
}

type TemplatesQuery struct {
	Intent string `form:"intent" validate:"omitempty,oneof=buyer seller investor renter"`
}

type TemplatesResponse struct {
	Success   bool                 `json:"success"`
	Templates []templates.Template `json:"templates"`
}
