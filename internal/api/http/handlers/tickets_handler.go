package handlers

import (
	"net/http"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-inbox/internal/api/dto"
	"github.com/spec-kit/support-inbox/internal/auth"
	"github.com/spec-kit/support-inbox/internal/domain"
	"github.com/spec-kit/support-inbox/internal/observability"
	"github.com/spec-kit/support-inbox/internal/service"
	apperrors "github.com/spec-kit/support-inbox/pkg/util"
)

// TicketsHandler exposes the transfer coordinator and list query service.
type TicketsHandler struct {
	tickets *service.TicketService
	metrics *observability.Metrics
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(tickets *service.TicketService, metrics *observability.Metrics) *TicketsHandler {
	return &TicketsHandler{tickets: tickets, metrics: metrics}
}

// Transfer POST /tickets/:id/transfer.
func (h *TicketsHandler) Transfer(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.TransferRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Status == "" && !req.CloseTicket {
		return apperrors.NewValidationError("status or closeTicket required", nil)
	}

	input := service.TransferInput{
		Status:      req.Status,
		UserID:      req.UserID,
		Priority:    req.PriorityLevel,
		CloseTicket: req.CloseTicket,
	}
	ticket, err := h.tickets.Transfer(c.UserContext(), actor, c.Params("id"), input)
	if err != nil {
		return err
	}
	h.metrics.RecordTransfer(string(ticket.Status))
	return c.JSON(fiber.Map{"data": dto.TicketFromDomain(ticket)})
}

// List GET /tickets.
func (h *TicketsHandler) List(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	status := domain.TicketStatus(c.Query("status", string(domain.TicketStatusAI)))
	page := parseInt(c.Query("page"), 1)
	pageSize := parseInt(c.Query("page_size"), 20)

	tickets, err := h.tickets.List(c.UserContext(), actor, status, pageSize, (page-1)*pageSize)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.TicketsFromDomain(tickets)})
}

// Get GET /tickets/:id.
func (h *TicketsHandler) Get(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	ticket, msgs, err := h.tickets.Get(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"ticket":   dto.TicketFromDomain(ticket),
		"messages": dto.MessagesFromDomain(msgs),
	}})
}

// UpdateSummary PATCH /tickets/:id/summary.
func (h *TicketsHandler) UpdateSummary(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("authentication required")
	}
	var req dto.UpdateSummaryRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.tickets.UpdateSummary(c.UserContext(), actor, c.Params("id"), req.Summary)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"data": dto.TicketFromDomain(ticket)})
}

func parseInt(val string, def int) int {
	if val == "" {
		return def
	}
	parsed, err := strconv.Atoi(val)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}
