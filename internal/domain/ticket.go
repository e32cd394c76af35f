package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusAI         TicketStatus = "AI"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusClosed     TicketStatus = "CLOSED"
)

// Valid reports whether the status is a known lifecycle state.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusAI, TicketStatusInProgress, TicketStatusClosed:
		return true
	}
	return false
}

// TicketPriority enumerates urgency levels.
type TicketPriority string

const (
	TicketPriorityLow      TicketPriority = "LOW"
	TicketPriorityMedium   TicketPriority = "MEDIUM"
	TicketPriorityHigh     TicketPriority = "HIGH"
	TicketPriorityCritical TicketPriority = "CRITICAL"
)

// Valid reports whether the priority is a known level.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityCritical:
		return true
	}
	return false
}

// Ticket is the aggregate for a customer support conversation. A ticket is
// owned by the AI agent on creation, may be claimed by a staff member, and
// ends closed. AssignedUserID is non-nil only while status is IN_PROGRESS.
type Ticket struct {
	ID             string
	CompanyID      string
	CustomerID     string
	AreaID         string
	Channel        string
	Status         TicketStatus
	Priority       TicketPriority
	AssignedUserID *string
	Summary        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ClosedAt       *time.Time
}

// Clone returns a copy safe to hand to callers while the original keeps
// mutating under the per-ticket lock.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	clone := *t
	if t.AssignedUserID != nil {
		id := *t.AssignedUserID
		clone.AssignedUserID = &id
	}
	if t.ClosedAt != nil {
		at := *t.ClosedAt
		clone.ClosedAt = &at
	}
	return &clone
}
