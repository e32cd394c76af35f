package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/support-inbox/internal/billing"
	"github.com/spec-kit/support-inbox/internal/config"
	"github.com/spec-kit/support-inbox/internal/domain"
	"github.com/spec-kit/support-inbox/internal/events"
	"github.com/spec-kit/support-inbox/internal/locker"
	"github.com/spec-kit/support-inbox/internal/repository"
	apperrors "github.com/spec-kit/support-inbox/pkg/util"
)

type messageFixture struct {
	svc       *MessageService
	tickets   *repository.MemoryTicketRepository
	messages  *repository.MemoryMessageRepository
	customers *repository.MemoryCustomerRepository
	broker    *events.Broker
}

func newMessageFixture(t *testing.T, gate billing.Gate) *messageFixture {
	t.Helper()
	tickets := repository.NewMemoryTicketRepository()
	messages := repository.NewMemoryMessageRepository()
	customers := repository.NewMemoryCustomerRepository()
	broker := events.NewBroker(64, zap.NewNop())

	svc := NewMessageService(MessageDependencies{
		TicketRepo:   tickets,
		MessageRepo:  messages,
		CustomerRepo: customers,
		Locks:        locker.NewKeyedMutex(),
		Publisher:    broker,
		Gate:         gate,
		Logger:       zap.NewNop(),
		LockWait:     time.Second,
	})
	return &messageFixture{
		svc:       svc,
		tickets:   tickets,
		messages:  messages,
		customers: customers,
		broker:    broker,
	}
}

func seedCustomer(fx *messageFixture, id, companyID, phone string) {
	fx.customers.Put(&domain.Customer{
		ID:        id,
		CompanyID: companyID,
		Name:      "Ana",
		Phone:     phone,
		Channel:   "whatsapp",
		CreatedAt: time.Now().Add(-24 * time.Hour),
	})
}

func staffAppend(ticketID, content string) AppendInput {
	return AppendInput{
		TicketID:         ticketID,
		CompanyID:        "c-1",
		SenderType:       domain.SenderTypeUser,
		SenderIdentifier: "user-7",
		MessageType:      domain.MessageTypeText,
		Content:          content,
	}
}

func customerAppend(content string) AppendInput {
	return AppendInput{
		CompanyID:        "c-1",
		CustomerID:       "cust-1",
		Channel:          "whatsapp",
		SenderType:       domain.SenderTypeCustomer,
		SenderIdentifier: "+5511999990000",
		MessageType:      domain.MessageTypeText,
		Content:          content,
	}
}

func TestAppendToUnknownTicketFails(t *testing.T) {
	fx := newMessageFixture(t, nil)

	_, err := fx.svc.Append(context.Background(), staffAppend("9999", "hello?"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "INVALID_TICKET"))

	msgs, listErr := fx.messages.ListByTicket(context.Background(), "9999")
	require.NoError(t, listErr)
	assert.Empty(t, msgs, "nothing persisted for the unknown ticket")
}

func TestAppendVisibleBeforeReturnAndBroadcast(t *testing.T) {
	fx := newMessageFixture(t, nil)
	seedTicket(t, fx.tickets, "t-1", "c-1")

	sub := fx.broker.Subscribe("c-1")
	defer sub.Close()

	msg, err := fx.svc.Append(context.Background(), staffAppend("t-1", "how can I help?"))
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Positive(t, msg.Seq)

	msgs, err := fx.svc.ListByTicket(context.Background(), agent("user-7"), "t-1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, msg.ID, msgs[0].ID)

	select {
	case event := <-sub.C:
		assert.Equal(t, events.EventNewMessage, event.Type)
		require.NotNil(t, event.Message)
		assert.Equal(t, msg.ID, event.Message.ID)
	case <-time.After(time.Second):
		t.Fatal("new_message event not broadcast")
	}
}

func TestListOrderIsStableWithInsertionTiebreak(t *testing.T) {
	fx := newMessageFixture(t, nil)
	seedTicket(t, fx.tickets, "t-1", "c-1")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := fx.svc.Append(ctx, staffAppend("t-1", fmt.Sprintf("m-%d", i)))
		require.NoError(t, err)
	}

	first, err := fx.svc.ListByTicket(ctx, agent("user-7"), "t-1")
	require.NoError(t, err)
	require.Len(t, first, 5)
	for i := range first {
		assert.Equal(t, fmt.Sprintf("m-%d", i), first[i].Content)
		if i > 0 {
			assert.Greater(t, first[i].Seq, first[i-1].Seq,
				"equal timestamps break ties by insertion order")
		}
	}

	// Repeated reads return the same order.
	second, err := fx.svc.ListByTicket(ctx, agent("user-7"), "t-1")
	require.NoError(t, err)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
}

func TestConcurrentAppendsAllLand(t *testing.T) {
	fx := newMessageFixture(t, nil)
	seedTicket(t, fx.tickets, "t-1", "c-1")
	ctx := context.Background()

	const writers = 10
	group, _ := errgroup.WithContext(ctx)
	for i := 0; i < writers; i++ {
		i := i
		group.Go(func() error {
			_, err := fx.svc.Append(ctx, staffAppend("t-1", fmt.Sprintf("w-%d", i)))
			return err
		})
	}
	require.NoError(t, group.Wait())

	msgs, err := fx.svc.ListByTicket(ctx, agent("user-7"), "t-1")
	require.NoError(t, err)
	require.Len(t, msgs, writers)
	for i := 1; i < len(msgs); i++ {
		assert.Greater(t, msgs[i].Seq, msgs[i-1].Seq, "log order is a total order")
	}
}

func TestCustomerMessageCreatesTicket(t *testing.T) {
	fx := newMessageFixture(t, nil)
	seedCustomer(fx, "cust-1", "c-1", "+5511999990000")
	ctx := context.Background()

	sub := fx.broker.Subscribe("c-1")
	defer sub.Close()

	msg, err := fx.svc.Append(ctx, customerAppend("my order is late"))
	require.NoError(t, err)

	ticket, err := fx.tickets.GetByID(ctx, msg.TicketID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAI, ticket.Status)
	assert.Equal(t, domain.TicketPriorityMedium, ticket.Priority)
	assert.Equal(t, "cust-1", ticket.CustomerID)
	assert.Nil(t, ticket.AssignedUserID)

	// ticket_updated for the creation, then new_message, in that order.
	select {
	case event := <-sub.C:
		assert.Equal(t, events.EventTicketUpdated, event.Type)
	case <-time.After(time.Second):
		t.Fatal("missing creation event")
	}
	select {
	case event := <-sub.C:
		assert.Equal(t, events.EventNewMessage, event.Type)
	case <-time.After(time.Second):
		t.Fatal("missing message event")
	}

	// A second inbound message reuses the open ticket.
	second, err := fx.svc.Append(ctx, customerAppend("any update?"))
	require.NoError(t, err)
	assert.Equal(t, msg.TicketID, second.TicketID)
}

func TestConcurrentInboundCreatesOneTicket(t *testing.T) {
	fx := newMessageFixture(t, nil)
	seedCustomer(fx, "cust-1", "c-1", "+5511999990000")
	ctx := context.Background()

	group, _ := errgroup.WithContext(ctx)
	ticketIDs := make(chan string, 6)
	for i := 0; i < 6; i++ {
		i := i
		group.Go(func() error {
			msg, err := fx.svc.Append(ctx, customerAppend(fmt.Sprintf("ping %d", i)))
			if err != nil {
				return err
			}
			ticketIDs <- msg.TicketID
			return nil
		})
	}
	require.NoError(t, group.Wait())
	close(ticketIDs)

	seen := map[string]bool{}
	for id := range ticketIDs {
		seen[id] = true
	}
	assert.Len(t, seen, 1, "find-or-create is serialized per customer")
}

func TestCustomerMessageToClosedTicketOpensNewOne(t *testing.T) {
	fx := newMessageFixture(t, nil)
	seedCustomer(fx, "cust-1", "c-1", "+5511999990000")
	ctx := context.Background()

	first, err := fx.svc.Append(ctx, customerAppend("hello"))
	require.NoError(t, err)

	ticket, err := fx.tickets.GetByID(ctx, first.TicketID)
	require.NoError(t, err)
	require.NoError(t, domain.ApplyTransition(ticket, domain.TransitionInput{CloseTicket: true}, time.Now()))
	require.NoError(t, fx.tickets.Update(ctx, ticket))

	second, err := fx.svc.Append(ctx, customerAppend("hello again"))
	require.NoError(t, err)
	assert.NotEqual(t, first.TicketID, second.TicketID)
}

func TestUnknownCustomerRejected(t *testing.T) {
	fx := newMessageFixture(t, nil)

	_, err := fx.svc.Append(context.Background(), customerAppend("hi"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}

func TestGateRefusalHasNoSideEffects(t *testing.T) {
	gate := billing.NewPlanGate(config.BillingConfig{MonthlyMessageLimit: 1}, billing.NewMemoryCounter())
	fx := newMessageFixture(t, gate)
	seedTicket(t, fx.tickets, "t-1", "c-1")
	ctx := context.Background()

	_, err := fx.svc.Append(ctx, staffAppend("t-1", "first"))
	require.NoError(t, err)

	_, err = fx.svc.Append(ctx, staffAppend("t-1", "second"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "LIMIT_EXCEEDED"))

	msgs, listErr := fx.messages.ListByTicket(ctx, "t-1")
	require.NoError(t, listErr)
	assert.Len(t, msgs, 1, "refused append persists nothing")
}

func TestTicketLimitBlocksImplicitCreation(t *testing.T) {
	gate := billing.NewPlanGate(config.BillingConfig{MonthlyTicketLimit: 1}, billing.NewMemoryCounter())
	fx := newMessageFixture(t, gate)
	seedCustomer(fx, "cust-1", "c-1", "+5511999990000")
	seedCustomer(fx, "cust-2", "c-1", "+5511999990001")
	ctx := context.Background()

	_, err := fx.svc.Append(ctx, customerAppend("first conversation"))
	require.NoError(t, err)

	over := customerAppend("second conversation")
	over.CustomerID = "cust-2"
	over.SenderIdentifier = "+5511999990001"
	_, err = fx.svc.Append(ctx, over)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "LIMIT_EXCEEDED"))
}

func TestAppendValidation(t *testing.T) {
	fx := newMessageFixture(t, nil)
	seedTicket(t, fx.tickets, "t-1", "c-1")
	ctx := context.Background()

	blank := staffAppend("t-1", "   ")
	_, err := fx.svc.Append(ctx, blank)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	badSender := staffAppend("t-1", "hi")
	badSender.SenderType = "ROBOT"
	_, err = fx.svc.Append(ctx, badSender)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))

	// Staff appends must name a ticket.
	noTicket := staffAppend("", "hi")
	noTicket.CustomerID = "cust-1"
	_, err = fx.svc.Append(ctx, noTicket)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, "VALIDATION_FAILED"))
}
