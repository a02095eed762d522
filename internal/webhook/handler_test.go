package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"leadfunnel_backend/internal/events"
	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/internal/funnels/repository"
	"leadfunnel_backend/internal/funnels/session"
	apphttp "leadfunnel_backend/internal/http"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	providerNumber = "+13055550199"
	prospectNumber = "+13055550142"
)

type twilioConfig struct {
	token string
	base  string
}

func (c twilioConfig) GetTwilioAuthToken() string { return c.token }
func (c twilioConfig) GetPublicBaseURL() string   { return c.base }

type fakeRelay struct {
	mu   sync.Mutex
	sent []string
}

func (r *fakeRelay) RelayToClient(_ context.Context, _ domain.Client, leadPhone, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, leadPhone+"|"+text)
	return nil
}

type fixture struct {
	engine *gin.Engine
	funnel domain.Funnel
	relay  *fakeRelay
	bus    *events.InMemoryBus
}

func newFixture(t *testing.T, cfg twilioConfig) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := repository.NewMemory()
	client := domain.Client{ID: uuid.New(), AccountID: uuid.New(), Name: "Sunrise Realty", TwilioNumber: providerNumber, WhatsAppNumber: "+13055550100"}
	store.PutClient(client)
	f := domain.Funnel{ID: uuid.New(), ClientID: client.ID, Steps: []domain.Step{
		{ID: uuid.New(), Order: 1, Question: "What is your name?", FieldName: "name", Required: true},
		{ID: uuid.New(), Order: 2, Question: "When are you moving?", FieldName: "timeline"},
	}}
	store.PutFunnel(f)

	log := logger.New("test")
	bus := events.NewInMemoryBus(log)
	relay := &fakeRelay{}
	machine := session.NewMachine(store, store, store, bus, log, session.WithRelay(relay))

	m := NewModule(store, machine, "US", cfg, validator.New(), log)
	engine := gin.New()
	m.RegisterRoutes(&apphttp.RouterContext{Engine: engine, V1: engine.Group("/api/v1")})
	return &fixture{engine: engine, funnel: f, relay: relay, bus: bus}
}

func (fx *fixture) post(t *testing.T, form url.Values, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/twilio", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	fx.engine.ServeHTTP(w, req)
	return w
}

func message(to, body string) url.Values {
	return url.Values{"From": {"whatsapp:" + prospectNumber}, "To": {"whatsapp:" + to}, "Body": {body}}
}

func TestChatFunnelOverWebhook(t *testing.T) {
	fx := newFixture(t, twilioConfig{})

	w := fx.post(t, message(providerNumber, "START_FUNNEL_"+fx.funnel.ID.String()), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/xml")
	assert.Contains(t, w.Body.String(), "<Response><Message>")
	assert.Contains(t, w.Body.String(), "Question 1/2: What is your name?")

	w = fx.post(t, message(providerNumber, "Ana & Leo"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Question 2/2")

	w = fx.post(t, message(providerNumber, "next month"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Sunrise Realty will contact you soon")

	w = fx.post(t, message(providerNumber, "is the house <still> available?"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?>`+"\n<Response></Response>", w.Body.String())
	fx.bus.Wait()

	fx.relay.mu.Lock()
	defer fx.relay.mu.Unlock()
	assert.Equal(t, []string{prospectNumber + "|is the house <still> available?"}, fx.relay.sent)
}

func TestReplyTextIsEscaped(t *testing.T) {
	body, err := renderTwiML(`Tom & Jerry <3 "quotes"`)
	require.NoError(t, err)
	assert.Contains(t, string(body), "<Message>Tom &amp; Jerry &lt;3 &#34;quotes&#34;</Message>")
}

func TestUnknownNumberIsNotConfigured(t *testing.T) {
	fx := newFixture(t, twilioConfig{})

	w := fx.post(t, message("+13055550000", "hello"), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), msgNumberNotConfigured)
}

func TestMissingSenderIsRejected(t *testing.T) {
	fx := newFixture(t, twilioConfig{})

	w := fx.post(t, url.Values{"To": {providerNumber}, "Body": {"hi"}}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSignatureIsVerified(t *testing.T) {
	cfg := twilioConfig{token: "auth-token", base: "https://funnels.example.com"}
	fx := newFixture(t, cfg)
	form := message(providerNumber, "hello")

	w := fx.post(t, form, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = fx.post(t, form, map[string]string{signatureHeader: "bm90LXRoZS1zaWduYXR1cmU="})
	assert.Equal(t, http.StatusForbidden, w.Code)

	sig := computeSignature(cfg.token, cfg.base+"/api/webhooks/twilio", form)
	w = fx.post(t, form, map[string]string{signatureHeader: sig})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "START_FUNNEL_")
}

func TestComputeSignatureSortsParameters(t *testing.T) {
	a := computeSignature("t", "https://x.test/hook", url.Values{"B": {"2"}, "A": {"1"}})
	b := computeSignature("t", "https://x.test/hook", url.Values{"A": {"1"}, "B": {"2"}})
	c := computeSignature("t", "https://x.test/hook", url.Values{"A": {"2"}, "B": {"1"}})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
