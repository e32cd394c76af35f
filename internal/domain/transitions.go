package domain

import (
	"time"

	apperrors "github.com/spec-kit/support-inbox/pkg/util"
)

// TransitionInput describes a requested ticket state change. CloseTicket
// forces the target status to CLOSED regardless of Status. AllowReassign is
// set by the coordinator when the caller may take over an assigned ticket
// (admin, or the current assignee); without it a transfer to IN_PROGRESS on a
// ticket assigned to someone else is treated as a lost claim race.
type TransitionInput struct {
	Status        TicketStatus
	UserID        *string
	Priority      *TicketPriority
	CloseTicket   bool
	AllowReassign bool
}

// TargetStatus resolves the effective requested status.
func (in TransitionInput) TargetStatus() TicketStatus {
	if in.CloseTicket {
		return TicketStatusClosed
	}
	return in.Status
}

var allowedTransitions = map[TicketStatus][]TicketStatus{
	TicketStatusAI:         {TicketStatusInProgress, TicketStatusClosed},
	TicketStatusInProgress: {TicketStatusInProgress, TicketStatusClosed},
	TicketStatusClosed:     {},
}

func transitionAllowed(current, next TicketStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ApplyTransition mutates the ticket according to the lifecycle rules:
//
//	AI          --claim(userID)-->    IN_PROGRESS
//	IN_PROGRESS --reassign(userID)--> IN_PROGRESS
//	AI|IN_PROGRESS --close-->         CLOSED (terminal)
//
// Closing sets ClosedAt exactly once and clears the assignee so that a
// non-IN_PROGRESS ticket never carries one. On any error the ticket is left
// untouched and the error details carry the conflicting current state.
func ApplyTransition(t *Ticket, in TransitionInput, now time.Time) error {
	target := in.TargetStatus()
	if !target.Valid() {
		return apperrors.NewValidationError("unknown target status", map[string]any{
			"status": string(target),
		})
	}
	if in.Priority != nil && !in.Priority.Valid() {
		return apperrors.NewValidationError("unknown priority level", map[string]any{
			"priority_level": string(*in.Priority),
		})
	}
	if !transitionAllowed(t.Status, target) {
		return invalidTransition(t, "transition not permitted from current status")
	}

	switch target {
	case TicketStatusInProgress:
		if in.UserID == nil || *in.UserID == "" {
			return apperrors.NewValidationError("userId required to assign a ticket", nil)
		}
		if t.AssignedUserID != nil && *t.AssignedUserID != *in.UserID && !in.AllowReassign {
			return invalidTransition(t, "ticket already assigned to another user")
		}
		t.AssignedUserID = in.UserID
		if t.Priority == "" {
			t.Priority = TicketPriorityMedium
		}
	case TicketStatusClosed:
		closedAt := now
		t.ClosedAt = &closedAt
		t.AssignedUserID = nil
	}

	if in.Priority != nil {
		t.Priority = *in.Priority
	}
	t.Status = target
	t.UpdatedAt = now
	return nil
}

func invalidTransition(t *Ticket, message string) error {
	details := map[string]any{
		"ticket_id":      t.ID,
		"current_status": t.Status,
	}
	if t.AssignedUserID != nil {
		details["assigned_user_id"] = *t.AssignedUserID
	}
	return apperrors.NewInvalidTransition(message, details)
}
