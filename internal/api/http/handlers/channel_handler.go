package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-inbox/internal/api/dto"
	"github.com/spec-kit/support-inbox/internal/channel"
	"github.com/spec-kit/support-inbox/internal/config"
	"github.com/spec-kit/support-inbox/internal/observability"
	apperrors "github.com/spec-kit/support-inbox/pkg/util"
)

// ChannelHandler receives inbound messages from the external channel
// provider.
type ChannelHandler struct {
	inbound *channel.Inbound
	cfg     config.ChannelConfig
	metrics *observability.Metrics
}

// NewChannelHandler constructs handler.
func NewChannelHandler(inbound *channel.Inbound, cfg config.ChannelConfig, metrics *observability.Metrics) *ChannelHandler {
	return &ChannelHandler{inbound: inbound, cfg: cfg, metrics: metrics}
}

// Verify GET /channels/whatsapp/webhook implements the provider's
// subscription handshake: echo the challenge when the verify token matches.
func (h *ChannelHandler) Verify(c *fiber.Ctx) error {
	token := c.Query("hub.verify_token")
	if h.cfg.WebhookVerifyToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.WebhookVerifyToken)) != 1 {
		return apperrors.NewUnauthorized("verify token mismatch")
	}
	return c.SendString(c.Query("hub.challenge"))
}

// Receive POST /channels/whatsapp/webhook.
func (h *ChannelHandler) Receive(c *fiber.Ctx) error {
	if h.cfg.WebhookVerifyToken != "" {
		token := c.Get("X-Webhook-Token")
		if subtle.ConstantTimeCompare([]byte(token), []byte(h.cfg.WebhookVerifyToken)) != 1 {
			return apperrors.NewUnauthorized("verify token mismatch")
		}
	}

	var payload channel.InboundMessage
	if err := c.BodyParser(&payload); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	msg, err := h.inbound.Receive(c.UserContext(), payload)
	if err != nil {
		return err
	}
	h.metrics.RecordMessage(string(msg.SenderType))
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.MessageFromDomain(msg)})
}
