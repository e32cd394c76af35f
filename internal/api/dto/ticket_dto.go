package dto

import (
	"time"

	"github.com/spec-kit/support-inbox/internal/domain"
)

// TransferRequest is the body of POST /tickets/:id/transfer.
type TransferRequest struct {
	Status        domain.TicketStatus    `json:"status"`
	UserID        *string                `json:"userId"`
	PriorityLevel *domain.TicketPriority `json:"priorityLevel"`
	CloseTicket   bool                   `json:"closeTicket"`
}

// UpdateSummaryRequest is the body of PATCH /tickets/:id/summary.
type UpdateSummaryRequest struct {
	Summary string `json:"summary"`
}

// TicketResponse is the wire form of a ticket.
type TicketResponse struct {
	ID             string                `json:"id"`
	CompanyID      string                `json:"companyId"`
	CustomerID     string                `json:"customerId"`
	AreaID         string                `json:"areaId"`
	Channel        string                `json:"channel"`
	Status         domain.TicketStatus   `json:"status"`
	PriorityLevel  domain.TicketPriority `json:"priorityLevel"`
	AssignedUserID *string               `json:"assignedUserId"`
	Summary        string                `json:"summary"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
	ClosedAt       *time.Time            `json:"closedAt"`
}

// TicketFromDomain converts a domain ticket.
func TicketFromDomain(ticket *domain.Ticket) TicketResponse {
	return TicketResponse{
		ID:             ticket.ID,
		CompanyID:      ticket.CompanyID,
		CustomerID:     ticket.CustomerID,
		AreaID:         ticket.AreaID,
		Channel:        ticket.Channel,
		Status:         ticket.Status,
		PriorityLevel:  ticket.Priority,
		AssignedUserID: ticket.AssignedUserID,
		Summary:        ticket.Summary,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
		ClosedAt:       ticket.ClosedAt,
	}
}

// TicketsFromDomain converts a ticket page.
func TicketsFromDomain(tickets []domain.Ticket) []TicketResponse {
	items := make([]TicketResponse, 0, len(tickets))
	for i := range tickets {
		items = append(items, TicketFromDomain(&tickets[i]))
	}
	return items
}
