// Package capi sends lead qualification signals to the Meta Conversions API.
package capi

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"leadfunnel_backend/internal/funnels/domain"
	"leadfunnel_backend/internal/funnels/ports"
	"leadfunnel_backend/platform/config"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/phone"
)

const (
	eventQualifiedLead = "QualifiedLead"
	eventLead          = "Lead"
	actionSource       = "system_generated"
	eventSourceURL     = "https://wa.me/signal-bridge"

	// ReasonNoCredentials is reported when the client has no pixel or token.
	ReasonNoCredentials = "no_credentials"
)

type Client struct {
	graphURL string
	version  string
	http     *http.Client
	log      *logger.Logger
	now      func() time.Time
}

var _ ports.ConversionSender = (*Client)(nil)

type userData struct {
	Phone string `json:"ph,omitempty"`
	Email string `json:"em,omitempty"`
}

type customData struct {
	Status string `json:"status"`
}

type event struct {
	EventName      string     `json:"event_name"`
	EventTime      int64      `json:"event_time"`
	EventSourceURL string     `json:"event_source_url"`
	ActionSource   string     `json:"action_source"`
	UserData       userData   `json:"user_data"`
	CustomData     customData `json:"custom_data"`
	EventID        string     `json:"event_id"`
}

type eventsRequest struct {
	Data        []event `json:"data"`
	AccessToken string  `json:"access_token"`
}

type graphError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func NewClient(cfg config.MetaCAPIConfig, log *logger.Logger) *Client {
	return &Client{
		graphURL: strings.TrimRight(cfg.GetMetaGraphURL(), "/"),
		version:  cfg.GetMetaAPIVersion(),
		http:     &http.Client{Timeout: 10 * time.Second},
		log:      log,
		now:      time.Now,
	}
}

// SendConversionSignal posts one event for the target lead. Clients without
// a pixel id or access token are skipped, not failed.
func (c *Client) SendConversionSignal(ctx context.Context, target domain.ConversionTarget, signal string) (ports.ConversionResult, error) {
	if target.PixelID == "" || target.AccessToken == "" {
		return ports.ConversionResult{Skipped: true, Reason: ReasonNoCredentials}, nil
	}

	now := c.now()
	evt := buildEvent(target.Lead, signal, now)

	body, err := json.Marshal(eventsRequest{Data: []event{evt}, AccessToken: target.AccessToken})
	if err != nil {
		return ports.ConversionResult{}, fmt.Errorf("marshal capi payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/%s/events", c.graphURL, c.version, target.PixelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return ports.ConversionResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return ports.ConversionResult{}, fmt.Errorf("capi request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		var ge graphError
		if json.Unmarshal(data, &ge) == nil && ge.Error.Message != "" {
			return ports.ConversionResult{}, fmt.Errorf("capi returned %d: %s", resp.StatusCode, ge.Error.Message)
		}
		return ports.ConversionResult{}, fmt.Errorf("capi returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	c.log.Info("capi event sent", "leadId", target.Lead.ID, "event", evt.EventName, "pixelId", target.PixelID)
	return ports.ConversionResult{EventID: evt.EventID}, nil
}

func buildEvent(lead domain.Lead, signal string, now time.Time) event {
	name := eventLead
	if signal == "QUALIFIED" {
		name = eventQualifiedLead
	}

	var ud userData
	if digits := phone.DigitsOnly(firstString(lead.ContactData, "phone", "whatsapp")); digits != "" {
		ud.Phone = hash(digits)
	}
	if email := strings.ToLower(strings.TrimSpace(firstString(lead.ContactData, "email"))); email != "" {
		ud.Email = hash(email)
	}

	return event{
		EventName:      name,
		EventTime:      now.Unix(),
		EventSourceURL: eventSourceURL,
		ActionSource:   actionSource,
		UserData:       ud,
		CustomData:     customData{Status: signal},
		EventID:        fmt.Sprintf("lead_%s_%s_%d", lead.ID, signal, now.UnixMilli()),
	}
}

func firstString(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := data[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}

func hash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
