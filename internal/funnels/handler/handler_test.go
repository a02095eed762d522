package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/internal/funnels/qualification"
	"leadfunnel_backend/internal/funnels/repository"
	"leadfunnel_backend/internal/funnels/scoring"
	"leadfunnel_backend/internal/funnels/session"
	"leadfunnel_backend/internal/funnels/templates"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	engine *gin.Engine
	store  *repository.Memory
	funnel domain.Funnel
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemory()
	client := domain.Client{ID: uuid.New(), AccountID: uuid.New(), Name: "Sunrise Realty"}
	store.PutClient(client)
	f := domain.Funnel{ID: uuid.New(), ClientID: client.ID, Steps: []domain.Step{
		{ID: uuid.New(), Order: 1, Question: "When?", FieldName: "timeline", Required: true},
		{ID: uuid.New(), Order: 2, Question: "Budget?", FieldName: "budget"},
	}}
	store.PutFunnel(f)

	log := logger.New("test")
	bus := events.NewInMemoryBus(log)
	list, err := templates.System()
	require.NoError(t, err)

	h := New(
		session.NewMachine(store, store, store, bus, log),
		scoring.NewService(store, scoring.NewEngine(scoring.DefaultTables()), log),
		qualification.NewService(store, nil, log),
		list,
		validator.New(),
		time.Hour,
	)

	r := gin.New()
	h.RegisterPublicRoutes(r.Group("/api/v1/public/funnels"))
	h.RegisterTemplateRoutes(r.Group("/api/v1/funnel-templates"))
	h.RegisterInternalRoutes(r.Group("/api/v1"))
	return &testServer{engine: r, store: store, funnel: f}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func (s *testServer) funnelPath(suffix string) string {
	return "/api/v1/public/funnels/" + s.funnel.ID.String() + suffix
}

func (s *testServer) start(t *testing.T) string {
	t.Helper()
	w := s.do(t, http.MethodPost, s.funnelPath("/session/start"), map[string]any{
		"trackingData": map[string]any{"utm_source": "meta"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[map[string]any](t, w)
	token, _ := res["sessionToken"].(string)
	require.NotEmpty(t, token)
	return token
}

func TestWebFunnelToLead(t *testing.T) {
	s := newTestServer(t)
	token := s.start(t)

	w := s.do(t, http.MethodPost, s.funnelPath("/session/step"), map[string]any{
		"sessionToken": token,
		"stepIndex":    1,
		"answers":      map[string]any{"timeline": "<b>asap</b>"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, s.funnelPath("/lead"), map[string]any{
		"sessionToken": token,
		"contact":      map[string]any{"name": "Ana", "phone": "+13055550142"},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[map[string]any](t, w)
	leadID, err := uuid.Parse(res["leadId"].(string))
	require.NoError(t, err)

	lead, err := s.store.GetLead(context.Background(), leadID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", lead.ContactData["name"])
	assert.Equal(t, "meta", lead.ContactData["utm_source"])

	inputs, _, err := s.store.FindLeadWithInputs(context.Background(), leadID)
	require.NoError(t, err)
	assert.Equal(t, "asap", inputs.Answers["timeline"])

	w = s.do(t, http.MethodPost, s.funnelPath("/lead"), map[string]any{
		"sessionToken": token,
		"contact":      map[string]any{"name": "Ana"},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHoneypotPretendsSuccess(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, s.funnelPath("/session/step"), map[string]any{
		"sessionToken": "does-not-exist",
		"stepIndex":    0,
		"company_hp":   "Acme",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, s.funnelPath("/lead"), map[string]any{
		"sessionToken": "does-not-exist",
		"contact":      map[string]any{"name": "bot"},
		"company_hp":   "Acme",
	})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[map[string]any](t, w)
	assert.Contains(t, res["leadId"], "hp-")
}

func TestSubmitStepRejections(t *testing.T) {
	s := newTestServer(t)
	token := s.start(t)

	cases := []struct {
		name string
		body map[string]any
		code int
	}{
		{"missing step index", map[string]any{"sessionToken": token, "answers": map[string]any{"timeline": "asap"}}, http.StatusBadRequest},
		{"reserved key", map[string]any{"sessionToken": token, "stepIndex": 1, "answers": map[string]any{"_tracking": "x"}}, http.StatusBadRequest},
		{"required field missing", map[string]any{"sessionToken": token, "stepIndex": 1, "answers": map[string]any{"budget": "1M"}}, http.StatusBadRequest},
		{"unknown token", map[string]any{"sessionToken": "nope", "stepIndex": 1, "answers": map[string]any{"budget": "1M"}}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, s.funnelPath("/session/step"), tc.body)
			assert.Equal(t, tc.code, w.Code, w.Body.String())
		})
	}
}

func TestUnknownSessionLooksExpired(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, s.funnelPath("/lead"), map[string]any{
		"sessionToken": "stale",
		"contact":      map[string]any{"name": "Ana"},
	})
	require.Equal(t, http.StatusNotFound, w.Code)
	res := decode[map[string]any](t, w)
	assert.Equal(t, msgSessionExpired, res["error"])
}

func TestListTemplatesByIntent(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/funnel-templates?intent=seller", nil)
	require.Equal(t, http.StatusOK, w.Code)
	res := decode[struct {
		Templates []templates.Template `json:"templates"`
	}](t, w)
	require.Len(t, res.Templates, 1)
	assert.Equal(t, "seller", res.Templates[0].Intent)

	w = s.do(t, http.MethodGet, "/api/v1/funnel-templates?intent=landlord", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScoringEndpoints(t *testing.T) {
	s := newTestServer(t)
	token := s.start(t)
	s.do(t, http.MethodPost, s.funnelPath("/session/step"), map[string]any{
		"sessionToken": token, "stepIndex": 1, "answers": map[string]any{"timeline": "asap"},
	})
	w := s.do(t, http.MethodPost, s.funnelPath("/lead"), map[string]any{
		"sessionToken": token, "contact": map[string]any{"name": "Ana"},
	})
	leadID := decode[map[string]any](t, w)["leadId"].(string)

	w = s.do(t, http.MethodGet, "/api/v1/leads/"+leadID+"/score", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/scoring/calculate?lead_id="+leadID, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0, s.store.ScoreCount())

	w = s.do(t, http.MethodPost, "/api/v1/scoring/calculate", map[string]any{"lead_id": leadID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	saved := decode[struct {
		Scores domain.Score `json:"scores"`
	}](t, w)
	assert.Equal(t, 1, s.store.ScoreCount())

	w = s.do(t, http.MethodGet, "/api/v1/leads/"+leadID+"/score", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stored := decode[struct {
		Scores domain.Score `json:"scores"`
	}](t, w)
	assert.Equal(t, saved.Scores.Total, stored.Scores.Total)

	w = s.do(t, http.MethodPost, "/api/v1/scoring/calculate", map[string]any{"recalculate_all": true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["scored_count"])

	w = s.do(t, http.MethodPost, "/api/v1/scoring/calculate", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/scoring/calculate", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLeadSignalAndViewed(t *testing.T) {
	s := newTestServer(t)
	token := s.start(t)
	w := s.do(t, http.MethodPost, s.funnelPath("/lead"), map[string]any{
		"sessionToken": token, "contact": map[string]any{"name": "Ana"},
	})
	leadID := decode[map[string]any](t, w)["leadId"].(string)

	w = s.do(t, http.MethodPost, "/api/v1/leads/"+leadID+"/viewed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["updated"])

	w = s.do(t, http.MethodPost, "/api/v1/leads/"+leadID+"/signal", map[string]any{"signalType": "QUALIFIED"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	lead, err := s.store.GetLead(context.Background(), uuid.MustParse(leadID))
	require.NoError(t, err)
	assert.Equal(t, domain.LeadStatusViewed, lead.Status)
	assert.Equal(t, domain.LabelQualified, lead.QualificationLabel)

	w = s.do(t, http.MethodPost, "/api/v1/leads/"+leadID+"/signal", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSessionAdminRoutes(t *testing.T) {
	s := newTestServer(t)
	token := s.start(t)
	sess, err := s.store.FindSession(context.Background(), token, s.funnel.ID)
	require.NoError(t, err)

	w := s.do(t, http.MethodPost, "/api/v1/sessions/"+sess.ID.String()+"/abandon", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "abandoned", decode[map[string]any](t, w)["status"])

	w = s.do(t, http.MethodPost, "/api/v1/sessions/sweep", map[string]any{"idleFor": "soon"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/sessions/sweep", map[string]any{"idleFor": "1h"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 0, decode[map[string]any](t, w)["abandoned"])
}
