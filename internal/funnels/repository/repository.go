// Package repository implements the funnels storage ports on PostgreSQL and
// in memory.
package repository

import (
	"encoding/json"
	"errors"
	"fmt"

	"leadfunnel_backend/internal/funnels/ports"
	"leadfunnel_backend/platform/apperr"
	"leadfunnel_backend/platform/db"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// Repository is the pgx-backed store for funnels, sessions, leads and scores.
type Repository struct {
	pool db.Pool
}

var (
	_ ports.FunnelReader = (*Repository)(nil)
	_ ports.ClientReader = (*Repository)(nil)
	_ ports.SessionStore = (*Repository)(nil)
	_ ports.LeadStore    = (*Repository)(nil)
	_ ports.ScoreStore   = (*Repository)(nil)
	_ ports.Store        = (*Repository)(nil)
)

func New(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

// rowError maps pgx errors onto the domain taxonomy.
func rowError(op, what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.NotFound(what + " not found").WithOp(op)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return apperr.Wrap(apperr.KindConflict, what+" already exists", err).WithOp(op)
	}
	return apperr.Persistence(op, err)
}

// marshalObject encodes m as a JSON object. A nil map becomes {} so that
// jsonb concatenation never sees a JSON null.
func marshalObject(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal json object: %w", err)
	}
	return b, nil
}

func unmarshalObject(raw []byte) (map[string]any, error) {
	out := map[string]any{}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("unmarshal json object: %w", err)
	}
	return out, nil
}
