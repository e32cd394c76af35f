package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/spec-kit/support-inbox/internal/config"
	"github.com/spec-kit/support-inbox/internal/domain"
	"github.com/spec-kit/support-inbox/internal/events"
	"github.com/spec-kit/support-inbox/internal/repository"
)

// Sender delivers one outbound message to the external channel provider.
type Sender interface {
	Send(ctx context.Context, to string, msg *domain.Message) error
}

// HTTPSender posts outbound messages to the provider's send endpoint.
type HTTPSender struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPSender builds a sender from channel configuration.
func NewHTTPSender(cfg config.ChannelConfig) *HTTPSender {
	return &HTTPSender{
		endpoint: cfg.SendEndpoint,
		token:    cfg.AccessToken,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *HTTPSender) Send(ctx context.Context, to string, msg *domain.Message) error {
	body, err := json.Marshal(map[string]any{
		"to":      to,
		"type":    msg.MessageType,
		"content": msg.Content,
	})
	if err != nil {
		return backoff.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode >= 500 {
		return fmt.Errorf("provider returned %d", resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return backoff.Permanent(fmt.Errorf("provider rejected message: %d", resp.StatusCode))
	}
	return nil
}

// Dispatcher forwards staff and AI messages to the external channel. It
// consumes the broadcast stream, so delivery is decoupled from the mutation
// path: a provider outage slows this worker, never an append.
type Dispatcher struct {
	broker     *events.Broker
	sender     Sender
	tickets    repository.TicketRepository
	customers  repository.CustomerRepository
	logger     *zap.Logger
	maxRetries uint64
}

// DispatcherDependencies bundles collaborators for the dispatcher.
type DispatcherDependencies struct {
	Broker       *events.Broker
	Sender       Sender
	TicketRepo   repository.TicketRepository
	CustomerRepo repository.CustomerRepository
	Logger       *zap.Logger
	MaxRetries   uint64
}

// NewDispatcher constructs the outbound worker.
func NewDispatcher(deps DispatcherDependencies) *Dispatcher {
	maxRetries := deps.MaxRetries
	if maxRetries == 0 {
		maxRetries = 5
	}
	return &Dispatcher{
		broker:     deps.Broker,
		sender:     deps.Sender,
		tickets:    deps.TicketRepo,
		customers:  deps.CustomerRepo,
		logger:     deps.Logger,
		maxRetries: maxRetries,
	}
}

// Run consumes events until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	sub := d.broker.SubscribeAll()
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-sub.C:
			if !ok {
				return nil
			}
			d.handle(ctx, event)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, event events.Event) {
	if event.Type != events.EventNewMessage || event.Message == nil {
		return
	}
	// Customer messages came from the channel; only staff and AI replies go
	// back out.
	if event.Message.SenderType == domain.SenderTypeCustomer {
		return
	}

	ticket, err := d.tickets.GetByID(ctx, event.TicketID)
	if err != nil {
		d.logger.Warn("outbound delivery: ticket lookup failed",
			zap.String("ticket_id", event.TicketID), zap.Error(err))
		return
	}
	if ticket.Channel != Name {
		return
	}
	customer, err := d.customers.GetByID(ctx, ticket.CustomerID)
	if err != nil {
		d.logger.Warn("outbound delivery: customer lookup failed",
			zap.String("customer_id", ticket.CustomerID), zap.Error(err))
		return
	}

	operation := func() error {
		return d.sender.Send(ctx, customer.Phone, event.Message)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), d.maxRetries), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		d.logger.Error("outbound delivery failed",
			zap.String("ticket_id", event.TicketID),
			zap.String("message_id", event.Message.ID),
			zap.Error(err))
	}
}
