package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-inbox/internal/billing"
	"github.com/spec-kit/support-inbox/internal/domain"
	"github.com/spec-kit/support-inbox/internal/events"
	"github.com/spec-kit/support-inbox/internal/locker"
	"github.com/spec-kit/support-inbox/internal/repository"
	apperrors "github.com/spec-kit/support-inbox/pkg/util"
)

// MessageService is the message store entrypoint. Appends run under the same
// per-ticket lock the transfer coordinator uses, which keeps the broadcast
// order of new_message events identical to the persisted order.
type MessageService struct {
	tickets   repository.TicketRepository
	messages  repository.MessageRepository
	customers repository.CustomerRepository
	locks     *locker.KeyedMutex
	publisher events.Publisher
	gate      billing.Gate
	logger    *zap.Logger
	lockWait  time.Duration
}

// MessageDependencies bundles collaborators for the message service.
type MessageDependencies struct {
	TicketRepo   repository.TicketRepository
	MessageRepo  repository.MessageRepository
	CustomerRepo repository.CustomerRepository
	Locks        *locker.KeyedMutex
	Publisher    events.Publisher
	Gate         billing.Gate
	Logger       *zap.Logger
	LockWait     time.Duration
}

// AppendInput describes a message append. TicketID may be empty for
// customer messages; the service then finds the customer's open ticket on
// that channel or creates one owned by the AI agent.
type AppendInput struct {
	TicketID         string
	CompanyID        string
	CustomerID       string
	AreaID           string
	Channel          string
	SenderType       domain.SenderType
	SenderIdentifier string
	SenderName       *string
	MessageType      domain.MessageType
	Content          string
}

// NewMessageService constructs the service.
func NewMessageService(deps MessageDependencies) *MessageService {
	lockWait := deps.LockWait
	if lockWait <= 0 {
		lockWait = 5 * time.Second
	}
	gate := deps.Gate
	if gate == nil {
		gate = billing.AllowAll{}
	}
	return &MessageService{
		tickets:   deps.TicketRepo,
		messages:  deps.MessageRepo,
		customers: deps.CustomerRepo,
		locks:     deps.Locks,
		publisher: deps.Publisher,
		gate:      gate,
		logger:    deps.Logger,
		lockWait:  lockWait,
	}
}

// Append persists a message and broadcasts it after commit. It fails with
// INVALID_TICKET when the target ticket is unknown, LIMIT_EXCEEDED when the
// billing gate refuses, and BUSY when the per-ticket lock cannot be taken in
// time. The message is visible to reads of the ticket before Append returns.
func (s *MessageService) Append(ctx context.Context, input AppendInput) (*domain.Message, error) {
	if err := validateAppend(input); err != nil {
		return nil, err
	}
	if err := s.gate.AllowMessageAppend(ctx, input.CompanyID); err != nil {
		return nil, err
	}

	ticket, release, err := s.resolveTicket(ctx, input)
	if err != nil {
		return nil, err
	}
	defer release()

	msg := &domain.Message{
		ID:               uuid.NewString(),
		TicketID:         ticket.ID,
		SenderType:       input.SenderType,
		SenderIdentifier: input.SenderIdentifier,
		SenderName:       input.SenderName,
		MessageType:      input.MessageType,
		Content:          input.Content,
		CreatedAt:        time.Now(),
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, events.NewMessageEvent(ticket.CompanyID, msg))
	s.logger.Debug("message appended",
		zap.String("ticket_id", ticket.ID),
		zap.String("message_id", msg.ID),
		zap.String("sender_type", string(msg.SenderType)))
	return msg, nil
}

// ListByTicket returns the full ordered log for a ticket, scoped to the
// actor's company.
func (s *MessageService) ListByTicket(ctx context.Context, actor domain.Actor, ticketID string) ([]domain.Message, error) {
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
	return s.messages.ListByTicket(ctx, ticketID)
}

// resolveTicket returns the target ticket with its lock held. The returned
// release function must be called once the append is done.
func (s *MessageService) resolveTicket(ctx context.Context, input AppendInput) (*domain.Ticket, func(), error) {
	if input.TicketID != "" {
		release, err := s.lock(ctx, ticketKey(input.TicketID))
		if err != nil {
			return nil, nil, apperrors.NewBusy(input.TicketID)
		}
		ticket, err := s.tickets.GetByID(ctx, input.TicketID)
		if err != nil {
			release()
			if errors.Is(err, repository.ErrNotFound) {
				return nil, nil, apperrors.NewInvalidTicket(input.TicketID)
			}
			return nil, nil, err
		}
		if input.CompanyID != "" && ticket.CompanyID != input.CompanyID {
			release()
			return nil, nil, apperrors.NewInvalidTicket(input.TicketID)
		}
		return ticket, release, nil
	}

	if input.SenderType != domain.SenderTypeCustomer {
		return nil, nil, apperrors.NewValidationError("ticketId required for staff and AI messages", nil)
	}

	// Serialize find-or-create per customer so two simultaneous inbound
	// messages cannot open two tickets.
	customerKey := "customer:" + input.CompanyID + ":" + input.CustomerID + ":" + input.Channel
	releaseCustomer, err := s.lock(ctx, customerKey)
	if err != nil {
		return nil, nil, apperrors.NewBusy(input.CustomerID)
	}

	ticket, err := s.findOrCreateTicket(ctx, input)
	if err != nil {
		releaseCustomer()
		return nil, nil, err
	}

	releaseTicket, err := s.lock(ctx, ticketKey(ticket.ID))
	releaseCustomer()
	if err != nil {
		return nil, nil, apperrors.NewBusy(ticket.ID)
	}
	return ticket, releaseTicket, nil
}

func (s *MessageService) findOrCreateTicket(ctx context.Context, input AppendInput) (*domain.Ticket, error) {
	ticket, err := s.tickets.FindOpenByCustomer(ctx, input.CompanyID, input.CustomerID, input.Channel)
	if err == nil {
		return ticket, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	if err := s.gate.AllowTicketCreate(ctx, input.CompanyID); err != nil {
		return nil, err
	}
	customer, err := s.customers.GetByID(ctx, input.CustomerID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewValidationError("unknown customer", map[string]any{
				"customer_id": input.CustomerID,
			})
		}
		return nil, err
	}

	now := time.Now()
	ticket = &domain.Ticket{
		ID:         uuid.NewString(),
		CompanyID:  customer.CompanyID,
		CustomerID: customer.ID,
		AreaID:     input.AreaID,
		Channel:    input.Channel,
		Status:     domain.TicketStatusAI,
		Priority:   domain.TicketPriorityMedium,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.tickets.Create(ctx, ticket); err != nil {
		return nil, err
	}

	s.publisher.Publish(ctx, events.TicketUpdatedEvent(ticket))
	s.logger.Info("ticket created from inbound message",
		zap.String("ticket_id", ticket.ID),
		zap.String("customer_id", ticket.CustomerID),
		zap.String("channel", ticket.Channel))
	return ticket, nil
}

func (s *MessageService) lock(ctx context.Context, key string) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	return s.locks.Acquire(waitCtx, key)
}

func validateAppend(input AppendInput) error {
	if !input.SenderType.Valid() {
		return apperrors.NewValidationError("unknown sender type", map[string]any{
			"sender_type": string(input.SenderType),
		})
	}
	if !input.MessageType.Valid() {
		return apperrors.NewValidationError("unknown message type", map[string]any{
			"message_type": string(input.MessageType),
		})
	}
	if strings.TrimSpace(input.Content) == "" {
		return apperrors.NewValidationError("content required", nil)
	}
	if input.TicketID == "" && (input.CompanyID == "" || input.CustomerID == "") {
		return apperrors.NewValidationError("ticketId or customer identity required", nil)
	}
	return nil
}
