package events

import (
	"time"

	"github.com/spec-kit/support-inbox/internal/domain"
)

// EventType enumerates broadcast event kinds.
type EventType string

const (
	EventNewMessage    EventType = "new_message"
	EventTicketUpdated EventType = "ticket_updated"
)

// TicketUpdatedPayload carries the fields a transfer may change.
type TicketUpdatedPayload struct {
	Status         domain.TicketStatus   `json:"status"`
	Priority       domain.TicketPriority `json:"priority_level"`
	AssignedUserID *string               `json:"assigned_user_id"`
	Summary        string                `json:"summary"`
	ClosedAt       *time.Time            `json:"closed_at,omitempty"`
}

// Event is a server-to-client push notification. Exactly one of Message and
// Ticket is set, matching Type.
type Event struct {
	ID        string                `json:"id"`
	Type      EventType             `json:"type"`
	CompanyID string                `json:"company_id"`
	TicketID  string                `json:"ticket_id"`
	Timestamp time.Time             `json:"timestamp"`
	Message   *domain.Message       `json:"message,omitempty"`
	Ticket    *TicketUpdatedPayload `json:"ticket,omitempty"`
}

// NewMessageEvent builds a new_message event from a persisted message.
func NewMessageEvent(companyID string, msg *domain.Message) Event {
	return Event{
		Type:      EventNewMessage,
		CompanyID: companyID,
		TicketID:  msg.TicketID,
		Message:   msg,
	}
}

// TicketUpdatedEvent builds a ticket_updated event from a post-transition
// snapshot.
func TicketUpdatedEvent(ticket *domain.Ticket) Event {
	return Event{
		Type:      EventTicketUpdated,
		CompanyID: ticket.CompanyID,
		TicketID:  ticket.ID,
		Ticket: &TicketUpdatedPayload{
			Status:         ticket.Status,
			Priority:       ticket.Priority,
			AssignedUserID: ticket.AssignedUserID,
			Summary:        ticket.Summary,
			ClosedAt:       ticket.ClosedAt,
		},
	}
}
