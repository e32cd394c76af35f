package events

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const relayChannel = "support_inbox:events"

type relayEnvelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisRelay bridges the local broker with other service instances over
// Redis Pub/Sub, so a client connected to any instance sees events for
// mutations applied on every instance. The relay tags outgoing events with
// an instance id and skips its own messages on the way back in.
type RedisRelay struct {
	client     *redis.Client
	broker     *Broker
	instanceID string
	logger     *zap.Logger
}

// NewRedisRelay creates a relay around the given broker.
func NewRedisRelay(client *redis.Client, broker *Broker, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		client:     client,
		broker:     broker,
		instanceID: uuid.NewString(),
		logger:     logger,
	}
}

// Publish delivers locally and forwards to the Redis channel. Forwarding
// failures are logged and swallowed; the local mutation already committed.
func (r *RedisRelay) Publish(ctx context.Context, event Event) {
	r.broker.Publish(ctx, event)

	payload, err := json.Marshal(relayEnvelope{Origin: r.instanceID, Event: event})
	if err != nil {
		r.logger.Error("marshal relay event", zap.Error(err))
		return
	}
	if err := r.client.Publish(ctx, relayChannel, payload).Err(); err != nil {
		r.logger.Warn("relay publish failed", zap.Error(err), zap.String("event_id", event.ID))
	}
}

// Run consumes foreign events from Redis until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, relayChannel)
	defer sub.Close() //nolint:errcheck

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var envelope relayEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				r.logger.Warn("malformed relay event", zap.Error(err))
				continue
			}
			if envelope.Origin == r.instanceID {
				continue
			}
			r.broker.Publish(ctx, envelope.Event)
		}
	}
}
