package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/internal/funnels/ports"
	"leadfunnel_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var sessionCols = []string{
	"id", "funnel_id", "channel", "session_token", "client_id", "lead_phone",
	"answers", "step_progress", "status", "created_at", "updated_at",
}

func newMock(t *testing.T) (pgxmock.PgxPoolIface, *Repository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, New(mock)
}

func TestMergeSessionAnswers_Success(t *testing.T) {
	mock, repo := newMock(t)
	id, funnelID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery("UPDATE funnel_sessions").
		WithArgs(id, []byte(`{"budget":"under_300k"}`), 2, pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows(sessionCols).AddRow(
			id, funnelID, "web", "tok-1", nil, "",
			[]byte(`{"timeline":"asap","budget":"under_300k"}`), 3, "started", now, now,
		))

	s, err := repo.MergeSessionAnswers(context.Background(), domain.AnswerWrite{
		SessionID: id,
		Patch:     domain.Answers{"budget": "under_300k"},
		Progress:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, s.StepProgress, "progress watermark comes from the row")
	assert.Equal(t, "asap", s.Answers["timeline"])
	assert.Equal(t, domain.SessionStarted, s.Status)
	assert.Nil(t, s.ClientID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeSessionAnswers_ClosedSessionConflicts(t *testing.T) {
	mock, repo := newMock(t)
	id := uuid.New()

	mock.ExpectQuery("UPDATE funnel_sessions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT status, step_progress FROM funnel_sessions WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status", "step_progress"}).AddRow("completed", 4))

	_, err := repo.MergeSessionAnswers(context.Background(), domain.AnswerWrite{SessionID: id, Progress: 1})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeSessionAnswers_StaleProgress(t *testing.T) {
	mock, repo := newMock(t)
	id := uuid.New()
	expected := 1

	mock.ExpectQuery("UPDATE funnel_sessions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT status, step_progress FROM funnel_sessions WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status", "step_progress"}).AddRow("active", 2))

	_, err := repo.MergeSessionAnswers(context.Background(), domain.AnswerWrite{
		SessionID: id, Progress: 2, ExpectedProgress: &expected,
	})
	assert.ErrorIs(t, err, ports.ErrStaleProgress)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeSessionAnswers_MissingSession(t *testing.T) {
	mock, repo := newMock(t)
	id := uuid.New()

	mock.ExpectQuery("UPDATE funnel_sessions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT status, step_progress FROM funnel_sessions WHERE id").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.MergeSessionAnswers(context.Background(), domain.AnswerWrite{SessionID: id})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMergeSessionAnswers_DriverErrorIsPersistence(t *testing.T) {
	mock, repo := newMock(t)
	mock.ExpectQuery("UPDATE funnel_sessions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.MergeSessionAnswers(context.Background(), domain.AnswerWrite{SessionID: uuid.New()})
	assert.True(t, apperr.Is(err, apperr.KindPersistence))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteSession_CreatesLeadInTransaction(t *testing.T) {
	mock, repo := newMock(t)
	sessionID, funnelID, leadID := uuid.New(), uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, step_progress FROM funnel_sessions WHERE id = \$1 FOR UPDATE`).
		WithArgs(sessionID).
		WillReturnRows(pgxmock.NewRows([]string{"status", "step_progress"}).AddRow("started", 3))
	mock.ExpectQuery("UPDATE funnel_sessions").
		WithArgs(sessionID, []byte("{}"), 0, "completed").
		WillReturnRows(pgxmock.NewRows(sessionCols).AddRow(
			sessionID, funnelID, "web", "tok-1", nil, "", []byte(`{"timeline":"asap"}`), 3, "completed", now, now,
		))
	mock.ExpectQuery("INSERT INTO leads").
		WithArgs(funnelID, pgxmock.AnyArg(), "web", []byte(`{"email":"ana@example.com"}`), "new", "hot").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(leadID, now))
	mock.ExpectCommit()

	s, lead, err := repo.CompleteSession(context.Background(), domain.Completion{
		Write:  domain.AnswerWrite{SessionID: sessionID},
		Status: domain.SessionCompleted,
		Lead: domain.NewLead{
			FunnelID:    funnelID,
			SessionID:   &sessionID,
			Source:      domain.LeadSourceWeb,
			ContactData: map[string]any{"email": "ana@example.com"},
			Temperature: domain.TemperatureHot,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, s.Status)
	assert.Equal(t, leadID, lead.ID)
	assert.Equal(t, domain.LeadStatusNew, lead.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteSession_AlreadyCompletedConflicts(t *testing.T) {
	mock, repo := newMock(t)
	sessionID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT status, step_progress FROM funnel_sessions WHERE id = \$1 FOR UPDATE`).
		WithArgs(sessionID).
		WillReturnRows(pgxmock.NewRows([]string{"status", "step_progress"}).AddRow("completed", 3))
	mock.ExpectRollback()

	_, _, err := repo.CompleteSession(context.Background(), domain.Completion{
		Write:  domain.AnswerWrite{SessionID: sessionID},
		Status: domain.SessionCompleted,
	})
	assert.True(t, apperr.Is(err, apperr.KindConflict))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindSession_NotFound(t *testing.T) {
	mock, repo := newMock(t)
	funnelID := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM funnel_sessions").
		WithArgs("missing", funnelID).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.FindSession(context.Background(), "missing", funnelID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindLeadWithInputs(t *testing.T) {
	mock, repo := newMock(t)
	leadID, accountID := uuid.New(), uuid.New()
	now := time.Now()

	mock.ExpectQuery("SELECT .+ FROM leads l").
		WithArgs(leadID).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "account_id", "created_at", "contacted_at", "temperature", "contact_data", "answers", "status",
		}).AddRow(leadID, accountID, now, nil, "warm", []byte(`{"area_preference":"Doral"}`), []byte(`{"timeline":"asap"}`), "completed"))

	in, status, err := repo.FindLeadWithInputs(context.Background(), leadID)
	require.NoError(t, err)
	assert.Equal(t, domain.SessionCompleted, status)
	assert.Equal(t, domain.TemperatureWarm, in.Temperature)
	assert.Equal(t, accountID, in.AccountID)
	assert.Equal(t, "asap", in.Answers["timeline"])
	assert.Equal(t, "Doral", in.ContactData["area_preference"])
	assert.Nil(t, in.ContactedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListLeadIDs_TenantFilter(t *testing.T) {
	mock, repo := newMock(t)
	clientID := uuid.New()
	a, b := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT l.id").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(a).AddRow(b))

	ids, err := repo.ListLeadIDs(context.Background(), &clientID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{a, b}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertScore(t *testing.T) {
	mock, repo := newMock(t)
	now := time.Now()
	s := domain.Score{
		LeadID: uuid.New(), Timeline: 30, FinancialReadiness: 30, Specificity: 25, Engagement: 15,
		Total: 100, Tier: domain.TierHot, Version: "2026.1", ComputedAt: now,
	}

	mock.ExpectExec("INSERT INTO lead_qualification_scores").
		WithArgs(s.LeadID, 30, 30, 15, 0, 25, 100, "hot", "2026.1", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, repo.UpsertScore(context.Background(), s))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkLeadViewed(t *testing.T) {
	mock, repo := newMock(t)
	id := uuid.New()

	mock.ExpectExec("UPDATE leads SET status = 'viewed'").
		WithArgs(id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	changed, err := repo.MarkLeadViewed(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, changed, "already viewed leads stay as they are")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetFunnel_LoadsOrderedSteps(t *testing.T) {
	mock, repo := newMock(t)
	funnelID, clientID, accountID := uuid.New(), uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT f.id").
		WithArgs(funnelID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "client_id", "account_id", "name", "slug", "welcome_message"}).
			AddRow(funnelID, clientID, accountID, "Buyers", "buyers", "Hi!"))
	mock.ExpectQuery("SELECT id, step_order").
		WithArgs(funnelID).
		WillReturnRows(pgxmock.NewRows([]string{"id", "step_order", "question", "field_name", "step_type", "required"}).
			AddRow(uuid.New(), 1, "When?", "timeline", "select", true).
			AddRow(uuid.New(), 2, "Budget?", "budget", "select", false))

	f, err := repo.GetFunnel(context.Background(), funnelID)
	require.NoError(t, err)
	assert.Equal(t, accountID, f.AccountID)
	require.Len(t, f.Steps, 2)
	assert.Equal(t, "timeline", f.Steps[0].FieldName)
	assert.NoError(t, mock.ExpectationsWereMet())
}
