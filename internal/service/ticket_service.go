package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-inbox/internal/domain"
	"github.com/spec-kit/support-inbox/internal/events"
	"github.com/spec-kit/support-inbox/internal/locker"
	"github.com/spec-kit/support-inbox/internal/repository"
	apperrors "github.com/spec-kit/support-inbox/pkg/util"
)

// TicketService is the transfer coordinator and list query service. All
// state-mutating requests for a ticket run under that ticket's keyed lock,
// so concurrent transfers on one ticket apply one at a time while unrelated
// tickets proceed independently.
type TicketService struct {
	tickets   repository.TicketRepository
	messages  repository.MessageRepository
	locks     *locker.KeyedMutex
	publisher events.Publisher
	logger    *zap.Logger
	lockWait  time.Duration
}

// TicketDependencies bundles collaborators for the ticket service.
type TicketDependencies struct {
	TicketRepo  repository.TicketRepository
	MessageRepo repository.MessageRepository
	Locks       *locker.KeyedMutex
	Publisher   events.Publisher
	Logger      *zap.Logger
	LockWait    time.Duration
}

// TransferInput describes a transfer request.
type TransferInput struct {
	Status      domain.TicketStatus
	UserID      *string
	Priority    *domain.TicketPriority
	CloseTicket bool
}

// NewTicketService constructs the service.
func NewTicketService(deps TicketDependencies) *TicketService {
	lockWait := deps.LockWait
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}
	return &TicketService{
		tickets:   deps.TicketRepo,
		messages:  deps.MessageRepo,
		locks:     deps.Locks,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		lockWait:  lockWait,
	}
}

// Transfer applies a state transition to the ticket and returns the
// post-transition snapshot. Competing transfers on the same ticket are
// serialized in arrival order; a request that cannot take the lock within
// the configured wait fails with BUSY and leaves the ticket untouched.
func (s *TicketService) Transfer(ctx context.Context, actor domain.Actor, ticketID string, input TransferInput) (*domain.Ticket, error) {
	release, err := s.lockTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer release()

	ticket, err := s.loadScoped(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}

	transition := domain.TransitionInput{
		Status:        input.Status,
		UserID:        input.UserID,
		Priority:      input.Priority,
		CloseTicket:   input.CloseTicket,
		AllowReassign: s.mayReassign(actor, ticket),
	}
	if err := domain.ApplyTransition(ticket, transition, time.Now()); err != nil {
		return nil, err
	}
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, events.TicketUpdatedEvent(ticket))
	s.logger.Info("ticket transferred",
		zap.String("ticket_id", ticket.ID),
		zap.String("status", string(ticket.Status)),
		zap.String("actor_user_id", actor.UserID))
	return ticket, nil
}

// UpdateSummary lets staff edit the short ticket description.
func (s *TicketService) UpdateSummary(ctx context.Context, actor domain.Actor, ticketID, summary string) (*domain.Ticket, error) {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return nil, apperrors.NewValidationError("summary required", nil)
	}

	release, err := s.lockTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	defer release()

	ticket, err := s.loadScoped(ctx, actor, ticketID)
	if err != nil {
		return nil, err
	}

	ticket.Summary = summary
	ticket.UpdatedAt = time.Now()
	if err := s.tickets.Update(ctx, ticket); err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, events.TicketUpdatedEvent(ticket))
	return ticket, nil
}

// List returns the company's tickets for one status tab, newest update
// first. The result is a plain finite page; callers re-invoke after
// broadcast events.
func (s *TicketService) List(ctx context.Context, actor domain.Actor, status domain.TicketStatus, limit, offset int) ([]domain.Ticket, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("unknown status", map[string]any{"status": string(status)})
	}
	return s.tickets.ListByStatus(ctx, actor.CompanyID, status, limit, offset)
}

// Get returns one ticket with its full message log.
func (s *TicketService) Get(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, []domain.Message, error) {
	ticket, err := s.loadScoped(ctx, actor, ticketID)
	if err != nil {
		return nil, nil, err
	}
	msgs, err := s.messages.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, nil, err
	}
	return ticket, msgs, nil
}

func (s *TicketService) lockTicket(ctx context.Context, ticketID string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	release, err := s.locks.Acquire(waitCtx, ticketKey(ticketID))
	if err != nil {
		return nil, apperrors.NewBusy(ticketID)
	}
	return release, nil
}

func (s *TicketService) loadScoped(ctx context.Context, actor domain.Actor, ticketID string) (*domain.Ticket, error) {
	ticket, err := s.tickets.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewTicketNotFound(ticketID)
		}
		return nil, err
	}
	if ticket.CompanyID != actor.CompanyID {
		return nil, apperrors.NewForbidden("ticket belongs to another company")
	}
	return ticket, nil
}

// mayReassign decides whether a transfer to IN_PROGRESS may take over an
// assigned ticket: admins always, agents only when they currently hold it.
func (s *TicketService) mayReassign(actor domain.Actor, ticket *domain.Ticket) bool {
	if actor.Role == domain.RoleAdmin {
		return true
	}
	return ticket.AssignedUserID != nil && *ticket.AssignedUserID == actor.UserID
}

func ticketKey(ticketID string) string {
	return "ticket:" + ticketID
}
