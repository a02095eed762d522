package repository

import (
	"context"
	"time"

	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const leadColumns = `l.id, l.funnel_id, f.client_id, l.session_id, l.source, l.contact_data, l.status, l.temperature,
	COALESCE(l.qualification_label, ''), l.created_at, l.contacted_at, l.capi_synced_at, COALESCE(l.capi_event_id, '')`

func scanLead(row pgx.Row, extra ...any) (domain.Lead, error) {
	var (
		l                         domain.Lead
		source, status, temp, lbl string
		contact                   []byte
	)
	dest := []any{&l.ID, &l.FunnelID, &l.ClientID, &l.SessionID, &source, &contact, &status, &temp,
		&lbl, &l.CreatedAt, &l.ContactedAt, &l.CAPISyncedAt, &l.CAPIEventID}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return domain.Lead{}, err
	}
	decoded, err := unmarshalObject(contact)
	if err != nil {
		return domain.Lead{}, err
	}
	l.Source = domain.LeadSource(source)
	l.Status = domain.LeadStatus(status)
	l.Temperature = domain.Temperature(temp)
	l.QualificationLabel = domain.QualificationLabel(lbl)
	l.ContactData = decoded
	return l, nil
}

func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	l, err := scanLead(r.pool.QueryRow(ctx,
		`SELECT `+leadColumns+`
		 FROM leads l
		 JOIN funnels f ON f.id = l.funnel_id
		 WHERE l.id = $1`,
		id,
	))
	if err != nil {
		return domain.Lead{}, rowError("leads.get", "lead", err)
	}
	return l, nil
}

// FindLeadWithInputs loads the lead together with the answers and status of
// the session it came from. A lead whose session was deleted scores with
// empty answers.
func (r *Repository) FindLeadWithInputs(ctx context.Context, id uuid.UUID) (domain.LeadInputs, domain.SessionStatus, error) {
	var (
		in               domain.LeadInputs
		temp, status     string
		contact, answers []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT l.id, c.account_id, l.created_at, l.contacted_at, l.temperature, l.contact_data,
		        COALESCE(s.answers, '{}'::jsonb), COALESCE(s.status, '')
		 FROM leads l
		 JOIN funnels f ON f.id = l.funnel_id
		 JOIN clients c ON c.id = f.client_id
		 LEFT JOIN funnel_sessions s ON s.id = l.session_id
		 WHERE l.id = $1`,
		id,
	).Scan(&in.LeadID, &in.AccountID, &in.CreatedAt, &in.ContactedAt, &temp, &contact, &answers, &status)
	if err != nil {
		return domain.LeadInputs{}, "", rowError("leads.find_with_inputs", "lead", err)
	}

	contactData, err := unmarshalObject(contact)
	if err != nil {
		return domain.LeadInputs{}, "", apperr.Persistence("leads.find_with_inputs", err)
	}
	answerData, err := unmarshalObject(answers)
	if err != nil {
		return domain.LeadInputs{}, "", apperr.Persistence("leads.find_with_inputs", err)
	}
	in.Temperature = domain.Temperature(temp)
	in.ContactData = contactData
	in.Answers = domain.Answers(answerData)
	return in, domain.SessionStatus(status), nil
}

func (r *Repository) ListLeadIDs(ctx context.Context, clientID *uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT l.id
		 FROM leads l
		 JOIN funnels f ON f.id = l.funnel_id
		 WHERE ($1::uuid IS NULL OR f.client_id = $1)
		 ORDER BY l.created_at ASC`,
		clientID,
	)
	if err != nil {
		return nil, apperr.Persistence("leads.list_ids", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, apperr.Persistence("leads.list_ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Persistence("leads.list_ids", err)
	}
	return ids, nil
}

// MarkLeadViewed moves new -> viewed. It reports false when the lead had
// already left the new state.
func (r *Repository) MarkLeadViewed(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE leads SET status = 'viewed' WHERE id = $1 AND status = 'new'`,
		id,
	)
	if err != nil {
		return false, apperr.Persistence("leads.mark_viewed", err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if err := r.leadExists(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *Repository) SetQualificationLabel(ctx context.Context, id uuid.UUID, label domain.QualificationLabel) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE leads SET qualification_label = $2 WHERE id = $1`,
		id, nullable(string(label)),
	)
	if err != nil {
		return apperr.Persistence("leads.set_label", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("lead not found")
	}
	return nil
}

func (r *Repository) GetConversionTarget(ctx context.Context, id uuid.UUID) (domain.ConversionTarget, error) {
	var t domain.ConversionTarget
	l, err := scanLead(r.pool.QueryRow(ctx,
		`SELECT `+leadColumns+`, COALESCE(c.meta_pixel_id, ''), COALESCE(c.meta_access_token, '')
		 FROM leads l
		 JOIN funnels f ON f.id = l.funnel_id
		 JOIN clients c ON c.id = f.client_id
		 WHERE l.id = $1`,
		id,
	), &t.PixelID, &t.AccessToken)
	if err != nil {
		return domain.ConversionTarget{}, rowError("leads.conversion_target", "lead", err)
	}
	t.Lead = l
	return t, nil
}

func (r *Repository) MarkConversionSynced(ctx context.Context, id uuid.UUID, eventID string, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE leads SET capi_synced_at = $2, capi_event_id = $3 WHERE id = $1`,
		id, at, eventID,
	)
	if err != nil {
		return apperr.Persistence("leads.mark_conversion_synced", err)
	}
	return nil
}

func (r *Repository) leadExists(ctx context.Context, id uuid.UUID) error {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM leads WHERE id = $1)`, id).Scan(&exists); err != nil {
		return apperr.Persistence("leads.exists", err)
	}
	if !exists {
		return apperr.NotFound("lead not found")
	}
	return nil
}
