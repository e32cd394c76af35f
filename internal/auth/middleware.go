package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-inbox/internal/domain"
	apperrors "github.com/spec-kit/support-inbox/pkg/util"
)

const actorKey = "auth_actor"

// AuthMiddleware validates bearer tokens and attaches the actor to the
// request. Identity comes entirely from the verified token; the core holds
// no user records.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	token, err := bearerToken(c.Get("Authorization"))
	if err != nil {
		return err
	}
	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}
	actor := claims.Actor()
	c.Locals(actorKey, actor)
	return c.Next()
}

// WebsocketActor authenticates a token passed as a query parameter, used by
// the realtime endpoint where browsers cannot set headers on the upgrade.
func (m *AuthMiddleware) WebsocketActor(c *fiber.Ctx) (domain.Actor, error) {
	token := c.Query("token")
	if token == "" {
		if header, err := bearerToken(c.Get("Authorization")); err == nil {
			token = header
		}
	}
	if token == "" {
		return domain.Actor{}, apperrors.NewUnauthorized("missing token")
	}
	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return domain.Actor{}, apperrors.NewUnauthorized("invalid token")
	}
	return claims.Actor(), nil
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", apperrors.NewUnauthorized("missing authorization header")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", apperrors.NewUnauthorized("invalid authorization header")
	}
	return parts[1], nil
}

// ActorFromContext retrieves the authenticated actor.
func ActorFromContext(c *fiber.Ctx) (domain.Actor, bool) {
	val := c.Locals(actorKey)
	if val == nil {
		return domain.Actor{}, false
	}
	actor, ok := val.(domain.Actor)
	return actor, ok
}
