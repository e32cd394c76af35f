package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// allCompanies marks a subscription that receives every event regardless of
// company scope.
const allCompanies = "*"

// Publisher is the mutation-side interface of the broadcast channel.
// Publishing is fire-and-forget: delivery problems never propagate back to
// the mutation that triggered the event.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Broker fans events out to connected subscribers. Delivery is at-most-once
// best effort: a subscriber whose buffer is full loses the event and is
// expected to reconcile by re-querying. Events published for a single ticket
// arrive in publish order because mutations on one ticket are serialized
// upstream.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
	logger *zap.Logger
}

// Subscription is one subscriber's view of the broker, scoped to a company.
type Subscription struct {
	C <-chan Event

	ch        chan Event
	companyID string
	broker    *Broker
	once      sync.Once
}

// NewBroker creates a broker with the given per-subscriber buffer size.
func NewBroker(buffer int, logger *zap.Logger) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers a subscriber for all events scoped to companyID.
func (b *Broker) Subscribe(companyID string) *Subscription {
	ch := make(chan Event, b.buffer)
	sub := &Subscription{C: ch, ch: ch, companyID: companyID, broker: b}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// SubscribeAll registers a subscriber for events of every company. Used by
// in-process workers such as the outbound channel dispatcher.
func (b *Broker) SubscribeAll() *Subscription {
	return b.Subscribe(allCompanies)
}

// Publish delivers the event to every matching subscriber without blocking.
func (b *Broker) Publish(_ context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if sub.companyID != allCompanies && sub.companyID != event.CompanyID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.logger.Debug("subscriber buffer full, dropping event",
				zap.String("event_id", event.ID),
				zap.String("ticket_id", event.TicketID),
				zap.String("type", string(event.Type)))
		}
	}
}

// SubscriberCount reports the number of live subscriptions.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close removes the subscription and releases its channel. Safe to call more
// than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.mu.Lock()
		delete(s.broker.subs, s)
		s.broker.mu.Unlock()
		close(s.ch)
	})
}
