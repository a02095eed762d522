package repository

import (
	"context"
	"errors"
	"time"

	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/internal/funnels/ports"
	"leadfunnel_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sessionColumns = `id, funnel_id, channel, COALESCE(session_token, ''), client_id, COALESCE(lead_phone, ''),
	answers, step_progress, status, created_at, updated_at`

func scanSession(row pgx.Row) (domain.Session, error) {
	var (
		s       domain.Session
		channel string
		status  string
		answers []byte
	)
	err := row.Scan(&s.ID, &s.FunnelID, &channel, &s.SessionToken, &s.ClientID, &s.LeadPhone,
		&answers, &s.StepProgress, &status, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return domain.Session{}, err
	}
	decoded, err := unmarshalObject(answers)
	if err != nil {
		return domain.Session{}, err
	}
	s.Channel = domain.Channel(channel)
	s.Status = domain.SessionStatus(status)
	s.Answers = domain.Answers(decoded)
	return s, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *Repository) CreateSession(ctx context.Context, p domain.NewSession) (domain.Session, error) {
	answers, err := marshalObject(p.Answers)
	if err != nil {
		return domain.Session{}, err
	}
	s, err := scanSession(r.pool.QueryRow(ctx,
		`INSERT INTO funnel_sessions (funnel_id, channel, session_token, client_id, lead_phone, answers, step_progress, status)
		 VALUES ($1, $2, $3, $4, $5, $6, 0, $7)
		 RETURNING `+sessionColumns,
		p.FunnelID, string(p.Channel), nullable(p.SessionToken), p.ClientID, nullable(p.LeadPhone), answers, string(p.Status),
	))
	if err != nil {
		return domain.Session{}, rowError("sessions.create", "session", err)
	}
	return s, nil
}

func (r *Repository) FindSession(ctx context.Context, token string, funnelID uuid.UUID) (domain.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM funnel_sessions
		 WHERE session_token = $1 AND funnel_id = $2 AND channel = 'web'`,
		token, funnelID,
	))
	if err != nil {
		return domain.Session{}, rowError("sessions.find", "session", err)
	}
	return s, nil
}

func (r *Repository) FindLatestChatSession(ctx context.Context, clientID uuid.UUID, leadPhone string) (domain.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM funnel_sessions
		 WHERE client_id = $1 AND lead_phone = $2 AND channel = 'chat'
		 ORDER BY created_at DESC
		 LIMIT 1`,
		clientID, leadPhone,
	))
	if err != nil {
		return domain.Session{}, rowError("sessions.find_chat", "session", err)
	}
	return s, nil
}

// MergeSessionAnswers is a single conditional UPDATE, so concurrent writers
// to the same row are serialized by the row lock and neither loses keys.
func (r *Repository) MergeSessionAnswers(ctx context.Context, w domain.AnswerWrite) (domain.Session, error) {
	patch, err := marshalObject(w.Patch)
	if err != nil {
		return domain.Session{}, err
	}
	s, err := scanSession(r.pool.QueryRow(ctx,
		`UPDATE funnel_sessions
		 SET answers = answers || $2::jsonb,
		     step_progress = GREATEST(step_progress, $3),
		     updated_at = now()
		 WHERE id = $1
		   AND status IN ('started', 'active')
		   AND ($4::int IS NULL OR step_progress = $4)
		 RETURNING `+sessionColumns,
		w.SessionID, patch, w.Progress, w.ExpectedProgress,
	))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, apperr.Persistence("sessions.merge_answers", err)
	}
	return domain.Session{}, r.explainSkippedWrite(ctx, w.SessionID, w.ExpectedProgress)
}

// explainSkippedWrite reports why a guarded write matched no row. When the
// guard holds again by the time it looks, the caller lost a race and gets
// ErrStaleProgress.
func (r *Repository) explainSkippedWrite(ctx context.Context, id uuid.UUID, expected *int) error {
	var (
		status   string
		progress int
	)
	err := r.pool.QueryRow(ctx, `SELECT status, step_progress FROM funnel_sessions WHERE id = $1`, id).Scan(&status, &progress)
	if err != nil {
		return rowError("sessions.inspect", "session", err)
	}
	if err := guardError(domain.SessionStatus(status), progress, expected); err != nil {
		return err
	}
	return ports.ErrStaleProgress
}

func guardError(status domain.SessionStatus, progress int, expected *int) error {
	if !status.IsOpen() {
		return apperr.Conflict("session is no longer accepting answers")
	}
	if expected != nil && progress != *expected {
		return ports.ErrStaleProgress
	}
	return nil
}

func (r *Repository) CompleteSession(ctx context.Context, c domain.Completion) (domain.Session, domain.Lead, error) {
	patch, err := marshalObject(c.Write.Patch)
	if err != nil {
		return domain.Session{}, domain.Lead{}, err
	}
	contact, err := marshalObject(c.Lead.ContactData)
	if err != nil {
		return domain.Session{}, domain.Lead{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Session{}, domain.Lead{}, apperr.Persistence("sessions.complete", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		status   string
		progress int
	)
	err = tx.QueryRow(ctx,
		`SELECT status, step_progress FROM funnel_sessions WHERE id = $1 FOR UPDATE`,
		c.Write.SessionID,
	).Scan(&status, &progress)
	if err != nil {
		return domain.Session{}, domain.Lead{}, rowError("sessions.complete_lock", "session", err)
	}
	if err := guardError(domain.SessionStatus(status), progress, c.Write.ExpectedProgress); err != nil {
		return domain.Session{}, domain.Lead{}, err
	}
	if !domain.CanTransition(domain.SessionStatus(status), c.Status) {
		return domain.Session{}, domain.Lead{}, apperr.Conflict("session cannot move from " + status + " to " + string(c.Status))
	}

	s, err := scanSession(tx.QueryRow(ctx,
		`UPDATE funnel_sessions
		 SET answers = answers || $2::jsonb,
		     step_progress = GREATEST(step_progress, $3),
		     status = $4,
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+sessionColumns,
		c.Write.SessionID, patch, c.Write.Progress, string(c.Status),
	))
	if err != nil {
		return domain.Session{}, domain.Lead{}, rowError("sessions.complete_update", "session", err)
	}

	lead := domain.Lead{
		FunnelID:    c.Lead.FunnelID,
		SessionID:   c.Lead.SessionID,
		Source:      c.Lead.Source,
		ContactData: c.Lead.ContactData,
		Status:      domain.LeadStatusNew,
		Temperature: c.Lead.Temperature,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO leads (funnel_id, session_id, source, contact_data, status, temperature)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		c.Lead.FunnelID, c.Lead.SessionID, string(c.Lead.Source), contact, string(domain.LeadStatusNew), string(c.Lead.Temperature),
	).Scan(&lead.ID, &lead.CreatedAt)
	if err != nil {
		return domain.Session{}, domain.Lead{}, rowError("leads.create", "lead", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Session{}, domain.Lead{}, apperr.Persistence("sessions.complete_commit", err)
	}
	return s, lead, nil
}

func (r *Repository) MarkSessionStatus(ctx context.Context, id uuid.UUID, status domain.SessionStatus) (domain.Session, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`UPDATE funnel_sessions
		 SET status = $2, updated_at = now()
		 WHERE id = $1 AND status IN ('started', 'active')
		 RETURNING `+sessionColumns,
		id, string(status),
	))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, apperr.Persistence("sessions.mark_status", err)
	}
	err = r.explainSkippedWrite(ctx, id, nil)
	if errors.Is(err, ports.ErrStaleProgress) {
		return domain.Session{}, apperr.Conflict("session status changed concurrently")
	}
	return domain.Session{}, err
}

func (r *Repository) AbandonIdleSessions(ctx context.Context, idleSince time.Time) ([]domain.Session, error) {
	rows, err := r.pool.Query(ctx,
		`UPDATE funnel_sessions
		 SET status = 'abandoned', updated_at = now()
		 WHERE status IN ('started', 'active') AND updated_at < $1
		 RETURNING `+sessionColumns,
		idleSince,
	)
	if err != nil {
		return nil, apperr.Persistence("sessions.abandon_idle", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, apperr.Persistence("sessions.abandon_idle_scan", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("sessions.abandon_idle", err)
	}
	return out, nil
}
