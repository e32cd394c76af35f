package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-inbox/internal/api/dto"
	"github.com/spec-kit/support-inbox/internal/auth"
	"github.com/spec-kit/support-inbox/internal/domain"
	"github.com/spec-kit/support-inbox/internal/observability"
	"github.com/spec-kit/support-inbox/internal/service"
	apperrors "github.com/spec-kit/support-inbox/pkg/util"
)

// MessagesHandler exposes the message store.
type MessagesHandler struct {
	messages *service.MessageService
	metrics  *observability.Metrics
}

// NewMessagesHandler constructs handler.
func NewMessagesHandler(messages *service.MessageService, metrics *observability.Metrics) *MessagesHandler {
	return &MessagesHandler{messages: messages, metrics: metrics}
}

// ListByTicket GET /tickets/:id/messages.
func (h *MessagesHandler) ListByTicket(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	msgs, err := h.messages.ListByTicket(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MessagesFromDomain(msgs)})
}

// Append POST /tickets/messages. Staff post USER messages; the AI agent
// integration posts AI messages. Customer messages arrive via the channel
// webhook, never through this endpoint.
func (h *MessagesHandler) Append(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.AppendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.SenderType == domain.SenderTypeCustomer {
		return apperrors.NewValidationError("customer messages arrive via the channel webhook", nil)
	}
	if req.TicketID == "" {
		return apperrors.NewValidationError("ticketId required", nil)
	}

	senderType := req.SenderType
	if senderType == "" {
		senderType = domain.SenderTypeUser
	}
	messageType := req.MessageType
	if messageType == "" {
		messageType = domain.MessageTypeText
	}

	input := service.AppendInput{
		TicketID:         req.TicketID,
		CompanyID:        actor.CompanyID,
		SenderType:       senderType,
		SenderIdentifier: actor.UserID,
		SenderName:       req.SenderName,
		MessageType:      messageType,
		Content:          req.Content,
	}
	msg, err := h.messages.Append(c.UserContext(), input)
	if err != nil {
		return err
	}
	h.metrics.RecordMessage(string(msg.SenderType))
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.MessageFromDomain(msg)})
}
