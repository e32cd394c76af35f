package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/support-inbox/internal/auth"
	"github.com/spec-kit/support-inbox/internal/domain"
	"github.com/spec-kit/support-inbox/internal/events"
)

const realtimeActorKey = "realtime_actor"

// RealtimeHandler streams broadcast events to connected clients over a
// websocket. Delivery is best effort: a client that disconnects or falls
// behind misses events and reconciles by re-querying the REST surface.
type RealtimeHandler struct {
	broker *events.Broker
	authMW *auth.AuthMiddleware
	logger *zap.Logger
}

// NewRealtimeHandler constructs handler.
func NewRealtimeHandler(broker *events.Broker, authMW *auth.AuthMiddleware, logger *zap.Logger) *RealtimeHandler {
	return &RealtimeHandler{broker: broker, authMW: authMW, logger: logger}
}

// Upgrade authenticates the connection before the websocket upgrade.
func (h *RealtimeHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	actor, err := h.authMW.WebsocketActor(c)
	if err != nil {
		return err
	}
	c.Locals(realtimeActorKey, actor)
	return c.Next()
}

// Stream returns the websocket handler. Each connection gets one broker
// subscription scoped to the actor's company.
func (h *RealtimeHandler) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		actor, ok := conn.Locals(realtimeActorKey).(domain.Actor)
		if !ok {
			_ = conn.Close()
			return
		}

		sub := h.broker.Subscribe(actor.CompanyID)
		defer sub.Close()
		h.logger.Debug("realtime client connected",
			zap.String("company_id", actor.CompanyID),
			zap.String("user_id", actor.UserID))

		// The reader goroutine only detects disconnects; clients never send
		// meaningful frames.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case <-done:
				return
			case event, ok := <-sub.C:
				if !ok {
					return
				}
				if err := conn.WriteJSON(event); err != nil {
					h.logger.Debug("realtime write failed, dropping client",
						zap.String("user_id", actor.UserID), zap.Error(err))
					return
				}
			}
		}
	})
}
