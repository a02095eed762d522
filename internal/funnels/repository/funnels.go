package repository

import (
	"context"

	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/platform/apperr"

	"github.com/google/uuid"
)

const clientColumns = `id, account_id, name, COALESCE(twilio_phone_number, ''), COALESCE(whatsapp_number, ''),
	COALESCE(meta_pixel_id, ''), COALESCE(meta_access_token, '')`

func (r *Repository) GetFunnel(ctx context.Context, id uuid.UUID) (domain.Funnel, error) {
	var f domain.Funnel
	err := r.pool.QueryRow(ctx,
		`SELECT f.id, f.client_id, c.account_id, f.name, f.slug, COALESCE(f.welcome_message, '')
		 FROM funnels f
		 JOIN clients c ON c.id = f.client_id
		 WHERE f.id = $1`,
		id,
	).Scan(&f.ID, &f.ClientID, &f.AccountID, &f.Name, &f.Slug, &f.WelcomeMessage)
	if err != nil {
		return domain.Funnel{}, rowError("funnels.get", "funnel", err)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, step_order, question, field_name, step_type, required
		 FROM funnel_steps
		 WHERE funnel_id = $1
		 ORDER BY step_order ASC`,
		id,
	)
	if err != nil {
		return domain.Funnel{}, apperr.Persistence("funnels.list_steps", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s domain.Step
		if err := rows.Scan(&s.ID, &s.Order, &s.Question, &s.FieldName, &s.Type, &s.Required); err != nil {
			return domain.Funnel{}, apperr.Persistence("funnels.scan_step", err)
		}
		f.Steps = append(f.Steps, s)
	}
	if err := rows.Err(); err != nil {
		return domain.Funnel{}, apperr.Persistence("funnels.list_steps", err)
	}
	return f, nil
}

func (r *Repository) GetClient(ctx context.Context, id uuid.UUID) (domain.Client, error) {
	return r.scanClient(ctx, "clients.get", `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id)
}

func (r *Repository) GetClientByNumber(ctx context.Context, number string) (domain.Client, error) {
	return r.scanClient(ctx, "clients.get_by_number", `SELECT `+clientColumns+` FROM clients WHERE twilio_phone_number = $1`, number)
}

func (r *Repository) scanClient(ctx context.Context, op, query string, arg any) (domain.Client, error) {
	var c domain.Client
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&c.ID, &c.AccountID, &c.Name, &c.TwilioNumber, &c.WhatsAppNumber, &c.PixelID, &c.AccessToken,
	)
	if err != nil {
		return domain.Client{}, rowError(op, "client", err)
	}
	return c, nil
}
