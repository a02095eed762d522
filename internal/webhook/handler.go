package webhook

import (
	"net/http"

	"leadfunnel_backend/platform/httpkit"
	"leadfunnel_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
	contentTypeXML    = "text/xml; charset=utf-8"
)

// InboundMessage is the form body posted by the messaging provider.
type InboundMessage struct {
	From string `form:"From" validate:"required,max=64"`
	To   string `form:"To" validate:"required,max=64"`
	Body string `form:"Body" validate:"max=4096"`
}

// Handler handles inbound chat webhook requests.
type Handler struct {
	service *Service
	val     *validator.Validator
}

// NewHandler creates a new webhook handler.
func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// HandleInboundMessage answers one chat message with a TwiML reply.
// POST /api/webhooks/twilio
func (h *Handler) HandleInboundMessage(c *gin.Context) {
	var msg InboundMessage
	if err := c.ShouldBind(&msg); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(msg); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return
	}

	reply := h.service.HandleInbound(c.Request.Context(), msg.To, msg.From, msg.Body)

	text := reply.Text
	if reply.Relayed {
		text = ""
	}
	body, err := renderTwiML(text)
	if err != nil {
		_ = c.Error(err)
		httpkit.Error(c, http.StatusInternalServerError, "internal server error", nil)
		return
	}
	c.Data(http.StatusOK, contentTypeXML, body)
}
