// Package inapp stores dashboard notifications for client accounts.
package inapp

import (
	"context"
	"errors"
	"time"

	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	opCreate      = "notification.inapp.repository.create"
	opCountUnread = "notification.inapp.repository.count_unread"

	errRepoNotConfigured = "in-app notification repository not configured"
)

// TypeNewLead marks a notification about a freshly created lead.
const TypeNewLead = "new_lead"

// TypeHotLead marks a notification about a lead that scored into the hot tier.
const TypeHotLead = "hot_lead"

type Notification struct {
	ID        uuid.UUID  `json:"id"`
	AccountID uuid.UUID  `json:"accountId"`
	LeadID    *uuid.UUID `json:"leadId,omitempty"`
	Type      string     `json:"type"`
	IsRead    bool       `json:"isRead"`
	CreatedAt time.Time  `json:"createdAt"`
}

type CreateParams struct {
	AccountID uuid.UUID
	LeadID    *uuid.UUID
	Type      string
}

type Repository struct {
	pool db.Pool
}

func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Create(ctx context.Context, p CreateParams) (Notification, error) {
	if r == nil || r.pool == nil {
		return Notification{}, apperr.Internal(errRepoNotConfigured).WithOp(opCreate)
	}
	if p.AccountID == uuid.Nil {
		return Notification{}, apperr.Validation("accountId is required").WithOp(opCreate)
	}
	if p.Type == "" {
		return Notification{}, apperr.Validation("type is required").WithOp(opCreate)
	}

	var n Notification
	err := r.pool.QueryRow(ctx, `
		INSERT INTO notifications (account_id, lead_id, type)
		VALUES ($1, $2, $3)
		RETURNING id, account_id, lead_id, type, is_read, created_at
	`, p.AccountID, p.LeadID, p.Type).Scan(
		&n.ID, &n.AccountID, &n.LeadID, &n.Type, &n.IsRead, &n.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Notification{}, apperr.Validation("invalid leadId").WithOp(opCreate)
		}
		return Notification{}, apperr.Persistence(opCreate, err)
	}

	return n, nil
}

func (r *Repository) CountUnread(ctx context.Context, accountID uuid.UUID) (int, error) {
	if r == nil || r.pool == nil {
		return 0, apperr.Internal(errRepoNotConfigured).WithOp(opCountUnread)
	}

	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM notifications WHERE account_id = $1 AND is_read = false
	`, accountID).Scan(&count)
	if err != nil {
		return 0, apperr.Persistence(opCountUnread, err)
	}
	return count, nil
}
