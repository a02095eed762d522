package session

import (
	"fmt"

	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/platform/apperr"
)

// Input is one inbound submission. Web callers fill StepIndex and Patch;
// chat callers fill Text.
type Input struct {
	StepIndex int
	Patch     domain.Answers
	Text      string
}

// Transport adapts a channel onto the shared session lifecycle: it decides
// which answer key a submission lands on and how far it advances the flow.
type Transport interface {
	Channel() domain.Channel
	// Record maps an input onto the answer patch and the progress it reaches.
	Record(f domain.Funnel, s domain.Session, in Input) (domain.Answers, int, error)
	// Finishes reports whether reaching progress ends the question flow.
	Finishes(f domain.Funnel, progress int) bool
	// ClosedStatus is the status a finished session moves to.
	ClosedStatus() domain.SessionStatus
	// Guarded reports whether a write only applies to the progress it was
	// computed from. Positional transports need this; keyed ones do not.
	Guarded() bool
	// InitialStatus is the status a new session starts in.
	InitialStatus() domain.SessionStatus
}

// WebTransport takes explicit answer keys from the caller. StepIndex is the
// progress watermark after the submission, as in chat: answering step i
// posts i+1. The flow ends with a separate contact submission, never by
// answering a step.
type WebTransport struct{}

func (WebTransport) Channel() domain.Channel             { return domain.ChannelWeb }
func (WebTransport) Finishes(domain.Funnel, int) bool    { return false }
func (WebTransport) ClosedStatus() domain.SessionStatus  { return domain.SessionCompleted }
func (WebTransport) Guarded() bool                       { return false }
func (WebTransport) InitialStatus() domain.SessionStatus { return domain.SessionStarted }

func (WebTransport) Record(f domain.Funnel, _ domain.Session, in Input) (domain.Answers, int, error) {
	if in.StepIndex < 0 {
		return nil, 0, apperr.Validation("stepIndex must not be negative")
	}
	if step, ok := f.StepAt(in.StepIndex - 1); ok && step.Required && step.FieldName != "" {
		if domain.IsEmpty(in.Patch[step.FieldName]) {
			return nil, 0, apperr.Validation(fmt.Sprintf("answer for %q is required", step.FieldName))
		}
	}
	return in.Patch, in.StepIndex, nil
}

// ChatTransport infers the key from position: the answer belongs to the
// current step's field name and advances the flow by one.
type ChatTransport struct{}

func (ChatTransport) Channel() domain.Channel             { return domain.ChannelChat }
func (ChatTransport) ClosedStatus() domain.SessionStatus  { return domain.SessionForwarding }
func (ChatTransport) Guarded() bool                       { return true }
func (ChatTransport) InitialStatus() domain.SessionStatus { return domain.SessionActive }

func (ChatTransport) Finishes(f domain.Funnel, progress int) bool {
	return progress >= len(f.Steps)
}

func (ChatTransport) Record(f domain.Funnel, s domain.Session, in Input) (domain.Answers, int, error) {
	step, ok := f.StepAt(s.StepProgress)
	if !ok {
		return nil, 0, apperr.Conflict("session has no pending question")
	}
	if step.Required && domain.IsEmpty(in.Text) {
		return nil, 0, apperr.Validation(fmt.Sprintf("answer for %q is required", step.FieldName))
	}
	return domain.Answers{step.FieldName: in.Text}, s.StepProgress + 1, nil
}
