package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/support-inbox/internal/domain"
	"github.com/spec-kit/support-inbox/internal/events"
	"github.com/spec-kit/support-inbox/internal/locker"
	"github.com/spec-kit/support-inbox/internal/repository"
	apperrors "github.com/spec-kit/support-inbox/pkg/util"
)

type ticketFixture struct {
	svc     *TicketService
	tickets *repository.MemoryTicketRepository
	locks   *locker.KeyedMutex
	broker  *events.Broker
}

func newTicketFixture(t *testing.T, lockWait time.Duration) *ticketFixture {
	t.Helper()
	tickets := repository.NewMemoryTicketRepository()
	messages := repository.NewMemoryMessageRepository()
	locks := locker.NewKeyedMutex()
	broker := events.NewBroker(64, zap.NewNop())

	svc := NewTicketService(TicketDependencies{
		TicketRepo:  tickets,
		MessageRepo: messages,
		Locks:       locks,
		Publisher:   broker,
		Logger:      zap.NewNop(),
		LockWait:    lockWait,
	})
	return &ticketFixture{svc: svc, tickets: tickets, locks: locks, broker: broker}
}

func seedTicket(t *testing.T, repo *repository.MemoryTicketRepository, id, companyID string) *domain.Ticket {
	t.Helper()
	now := time.Now().Add(-time.Hour)
	ticket := &domain.Ticket{
		ID:         id,
		CompanyID:  companyID,
		CustomerID: "cust-1",
		Channel:    "whatsapp",
		Status:     domain.TicketStatusAI,
		Priority:   domain.TicketPriorityMedium,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, repo.Create(context.Background(), ticket))
	return ticket
}

func agent(userID string) domain.Actor {
	return domain.Actor{UserID: userID, CompanyID: "c-1", Role: domain.RoleAgent}
}

func userPtr(s string) *string { return &s }

func TestTransferClaimThenClose(t *testing.T) {
	fx := newTicketFixture(t, time.Second)
	seedTicket(t, fx.tickets, "t-1", "c-1")
	ctx := context.Background()

	sub := fx.broker.Subscribe("c-1")
	defer sub.Close()

	claimed, err := fx.svc.Transfer(ctx, agent("user-7"), "t-1", TransferInput{
		Status: domain.TicketStatusInProgress,
		UserID: userPtr("user-7"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusInProgress, claimed.Status)
	require.NotNil(t, claimed.AssignedUserID)
	assert.Equal(t, "user-7", *claimed.AssignedUserID)
	assert.Equal(t, domain.TicketPriorityMedium, claimed.Priority)

	closed, err := fx.svc.Transfer(ctx, agent("user-7"), "t-1", TransferInput{CloseTicket: true})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, closed.Status)
	require.NotNil(t, closed.ClosedAt)
	assert.Nil(t, closed.AssignedUserID)

	// Both transitions broadcast, in order.
	for _, want := range []domain.TicketStatus{domain.TicketStatusInProgress, domain.TicketStatusClosed} {
		select {
		case event := <-sub.C:
			assert.Equal(t, events.EventTicketUpdated, event.Type)
			assert.Equal(t, "t-1", event.TicketID)
			require.NotNil(t, event.Ticket)
			assert.Equal(t, want, event.Ticket.Status)
		case <-time.After(time.Second):
			t.Fatal("missing ticket_updated event")
		}
	}

	// The repository holds the same state the caller saw.
	stored, err := fx.tickets.GetByID(ctx, "t-1")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusClosed, stored.Status)
	require.NotNil(t, stored.ClosedAt)
	assert.Equal(t, closed.ClosedAt.Unix(), stored.ClosedAt.Unix())
}

func TestConcurrentClaimsExactlyOneWins(t *testing.T) {
	fx := newTicketFixture(t, 2*time.Second)
	seedTicket(t, fx.tickets, "t-1", "c-1")
	ctx := context.Background()

	const contenders = 8
	var (
		mu     sync.Mutex
		wins   []string
		losses []error
	)

	group, _ := errgroup.WithContext(ctx)
	for i := 0; i < contenders; i++ {
		userID := string(rune('a' + i))
		group.Go(func() error {
			_, err := fx.svc.Transfer(ctx, agent(userID), "t-1", TransferInput{
				Status: domain.TicketStatusInProgress,
				UserID: userPtr(userID),
			})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				losses = append(losses, err)
			} else {
				wins = append(wins, userID)
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())

	require.Len(t, wins, 1, "exactly one claim wins")
	require.Len(t, losses, contenders-1)
	for _, err := range losses {
		assert.True(t, apperrors.IsCode(err, "INVALID_TRANSITION"),
			"losers get INVALID_TRANSITION, got %v", err)
	}

	stored, err := fx.tickets.GetByID(ctx, "t-1")
	require.NoError(t, err)
	require.NotNil(t, stored.AssignedUserID)
	assert.Equal(t, wins[0], *stored.AssignedUserID)
	assert.Equal(t, 0, fx.locks.Len(), "lock table drained")
}

func TestTransferBusyWhenLockHeld(t *testing.T) {
	fx := newTicketFixture(t, 30*time.Millisecond)
	seedTicket(t, fx.tickets, "t-1", "c-1")
	ctx := context.Background()

	release, err := fx.locks.Acquire(ctx, "ticket:t-1")
	require.NoError(t, err)
	defer release()

	_, err = fx.svc.Transfer(ctx, agent("user-7"), "t-1", TransferInput{
		Status: domain.TicketStatusInProgress,
		UserID: userPtr("user-7"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "BUSY"))

	stored, getErr := fx.tickets.GetByID(ctx, "t-1")
	require.NoError(t, getErr)
	assert.Equal(t, domain.TicketStatusAI, stored.Status, "busy requests leave the ticket untouched")
}

func TestTransferUnknownTicket(t *testing.T) {
	fx := newTicketFixture(t, time.Second)

	_, err := fx.svc.Transfer(context.Background(), agent("user-7"), "9999", TransferInput{
		Status: domain.TicketStatusInProgress,
		UserID: userPtr("user-7"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "TICKET_NOT_FOUND"))
}

func TestTransferScopedToCompany(t *testing.T) {
	fx := newTicketFixture(t, time.Second)
	seedTicket(t, fx.tickets, "t-1", "c-2")

	_, err := fx.svc.Transfer(context.Background(), agent("user-7"), "t-1", TransferInput{
		Status: domain.TicketStatusInProgress,
		UserID: userPtr("user-7"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "FORBIDDEN"))
}

func TestAdminMayReassign(t *testing.T) {
	fx := newTicketFixture(t, time.Second)
	seedTicket(t, fx.tickets, "t-1", "c-1")
	ctx := context.Background()

	_, err := fx.svc.Transfer(ctx, agent("user-a"), "t-1", TransferInput{
		Status: domain.TicketStatusInProgress,
		UserID: userPtr("user-a"),
	})
	require.NoError(t, err)

	// Another agent cannot take over.
	_, err = fx.svc.Transfer(ctx, agent("user-b"), "t-1", TransferInput{
		Status: domain.TicketStatusInProgress,
		UserID: userPtr("user-b"),
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "INVALID_TRANSITION"))

	// An admin can.
	admin := domain.Actor{UserID: "admin-1", CompanyID: "c-1", Role: domain.RoleAdmin}
	reassigned, err := fx.svc.Transfer(ctx, admin, "t-1", TransferInput{
		Status: domain.TicketStatusInProgress,
		UserID: userPtr("user-b"),
	})
	require.NoError(t, err)
	assert.Equal(t, "user-b", *reassigned.AssignedUserID)
}

func TestListFiltersByStatusAndCompany(t *testing.T) {
	fx := newTicketFixture(t, time.Second)
	ctx := context.Background()

	seedTicket(t, fx.tickets, "t-1", "c-1")
	seedTicket(t, fx.tickets, "t-2", "c-1")
	seedTicket(t, fx.tickets, "t-other", "c-2")

	_, err := fx.svc.Transfer(ctx, agent("user-7"), "t-2", TransferInput{
		Status: domain.TicketStatusInProgress,
		UserID: userPtr("user-7"),
	})
	require.NoError(t, err)

	aiTab, err := fx.svc.List(ctx, agent("user-7"), domain.TicketStatusAI, 20, 0)
	require.NoError(t, err)
	require.Len(t, aiTab, 1)
	assert.Equal(t, "t-1", aiTab[0].ID)

	inProgressTab, err := fx.svc.List(ctx, agent("user-7"), domain.TicketStatusInProgress, 20, 0)
	require.NoError(t, err)
	require.Len(t, inProgressTab, 1)
	assert.Equal(t, "t-2", inProgressTab[0].ID)

	_, err = fx.svc.List(ctx, agent("user-7"), "BOGUS", 20, 0)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestUpdateSummary(t *testing.T) {
	fx := newTicketFixture(t, time.Second)
	seedTicket(t, fx.tickets, "t-1", "c-1")
	ctx := context.Background()

	updated, err := fx.svc.UpdateSummary(ctx, agent("user-7"), "t-1", "customer asks about billing")
	require.NoError(t, err)
	assert.Equal(t, "customer asks about billing", updated.Summary)

	_, err = fx.svc.UpdateSummary(ctx, agent("user-7"), "t-1", "   ")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}
