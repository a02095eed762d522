package capi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type metaConfig struct{ url string }

func (c metaConfig) GetMetaGraphURL() string   { return c.url }
func (c metaConfig) GetMetaAPIVersion() string { return "v19.0" }

func TestSendConversionSignal(t *testing.T) {
	leadID := uuid.New()
	var got eventsRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v19.0/px-1/events", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"events_received":1,"fbtrace_id":"abc"}`))
	}))
	defer srv.Close()

	c := NewClient(metaConfig{url: srv.URL}, logger.New("test"))
	c.now = func() time.Time { return time.UnixMilli(1767225600123) }

	res, err := c.SendConversionSignal(context.Background(), domain.ConversionTarget{
		Lead: domain.Lead{ID: leadID, ContactData: map[string]any{
			"phone": "+1 (305) 555-0142",
			"email": "  Ana@Example.com ",
		}},
		PixelID:     "px-1",
		AccessToken: "secret",
	}, "QUALIFIED")
	require.NoError(t, err)
	assert.False(t, res.Skipped)
	assert.Equal(t, "lead_"+leadID.String()+"_QUALIFIED_1767225600123", res.EventID)

	require.Len(t, got.Data, 1)
	evt := got.Data[0]
	assert.Equal(t, "secret", got.AccessToken)
	assert.Equal(t, eventQualifiedLead, evt.EventName)
	assert.Equal(t, actionSource, evt.ActionSource)
	assert.Equal(t, int64(1767225600), evt.EventTime)
	assert.Equal(t, hash("13055550142"), evt.UserData.Phone)
	assert.Equal(t, hash("ana@example.com"), evt.UserData.Email)
}

func TestSendConversionSignalSkipsWithoutCredentials(t *testing.T) {
	c := NewClient(metaConfig{url: "http://unused.invalid"}, logger.New("test"))
	res, err := c.SendConversionSignal(context.Background(), domain.ConversionTarget{PixelID: "px"}, "QUALIFIED")
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, ReasonNoCredentials, res.Reason)
}

func TestSendConversionSignalSurfacesGraphError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token."}}`))
	}))
	defer srv.Close()

	c := NewClient(metaConfig{url: srv.URL}, logger.New("test"))
	_, err := c.SendConversionSignal(context.Background(), domain.ConversionTarget{
		Lead:        domain.Lead{ID: uuid.New()},
		PixelID:     "px",
		AccessToken: "bad",
	}, "NOISE")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid OAuth access token.")
}

func TestNoiseSignalUsesLeadEvent(t *testing.T) {
	evt := buildEvent(domain.Lead{ID: uuid.New()}, "NOISE", time.Now())
	assert.Equal(t, eventLead, evt.EventName)
	assert.Empty(t, evt.UserData.Phone)
	assert.Empty(t, evt.UserData.Email)
}
