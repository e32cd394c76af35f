package events

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-inbox/internal/domain"
)

func testEvent(companyID, ticketID string) Event {
	return Event{
		Type:      EventNewMessage,
		CompanyID: companyID,
		TicketID:  ticketID,
		Message:   &domain.Message{TicketID: ticketID, Content: "hi"},
	}
}

func TestPublishReachesCompanySubscriber(t *testing.T) {
	broker := NewBroker(8, zap.NewNop())
	sub := broker.Subscribe("c-1")
	defer sub.Close()

	broker.Publish(context.Background(), testEvent("c-1", "t-1"))

	select {
	case got := <-sub.C:
		assert.Equal(t, EventNewMessage, got.Type)
		assert.Equal(t, "t-1", got.TicketID)
		assert.NotEmpty(t, got.ID, "broker assigns an event id")
		assert.False(t, got.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestCompanyScoping(t *testing.T) {
	broker := NewBroker(8, zap.NewNop())
	mine := broker.Subscribe("c-1")
	defer mine.Close()
	other := broker.Subscribe("c-2")
	defer other.Close()

	broker.Publish(context.Background(), testEvent("c-1", "t-1"))

	select {
	case <-mine.C:
	case <-time.After(time.Second):
		t.Fatal("scoped subscriber missed its event")
	}
	select {
	case got := <-other.C:
		t.Fatalf("subscriber of another company received %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeAllSeesEveryCompany(t *testing.T) {
	broker := NewBroker(8, zap.NewNop())
	all := broker.SubscribeAll()
	defer all.Close()

	broker.Publish(context.Background(), testEvent("c-1", "t-1"))
	broker.Publish(context.Background(), testEvent("c-2", "t-2"))

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case got := <-all.C:
			seen[got.CompanyID] = true
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
	assert.True(t, seen["c-1"])
	assert.True(t, seen["c-2"])
}

func TestDeliveryOrderPerTicket(t *testing.T) {
	broker := NewBroker(64, zap.NewNop())
	sub := broker.Subscribe("c-1")
	defer sub.Close()

	for i := 0; i < 10; i++ {
		e := testEvent("c-1", "t-1")
		e.Message.Content = fmt.Sprintf("m-%d", i)
		broker.Publish(context.Background(), e)
	}

	for i := 0; i < 10; i++ {
		select {
		case got := <-sub.C:
			assert.Equal(t, fmt.Sprintf("m-%d", i), got.Message.Content)
		case <-time.After(time.Second):
			t.Fatal("missing event")
		}
	}
}

func TestFullBufferDropsInsteadOfBlocking(t *testing.T) {
	broker := NewBroker(2, zap.NewNop())
	slow := broker.Subscribe("c-1")
	defer slow.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			broker.Publish(context.Background(), testEvent("c-1", "t-1"))
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	// The slow subscriber keeps at most its buffer worth of events.
	received := 0
	for {
		select {
		case <-slow.C:
			received++
		default:
			assert.LessOrEqual(t, received, 2)
			return
		}
	}
}

func TestCloseRemovesSubscription(t *testing.T) {
	broker := NewBroker(8, zap.NewNop())
	sub := broker.Subscribe("c-1")
	require.Equal(t, 1, broker.SubscriberCount())

	sub.Close()
	sub.Close() // idempotent
	assert.Equal(t, 0, broker.SubscriberCount())

	_, open := <-sub.C
	assert.False(t, open, "channel closed after Close")

	// Publishing after close must not panic.
	broker.Publish(context.Background(), testEvent("c-1", "t-1"))
}
