package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/support-inbox/internal/domain"
)

// TokenManager validates JWTs issued by the external auth system. The core
// never issues session tokens; GenerateToken exists for dev tooling and
// tests.
type TokenManager struct {
	secret []byte
}

// NewTokenManager builds a manager around the shared signing secret.
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret)}
}

// Claims describes the JWT payload the core consumes: an authenticated
// userId and companyId plus the staff role.
type Claims struct {
	UserID    string      `json:"sub"`
	CompanyID string      `json:"company_id"`
	Role      domain.Role `json:"role"`
	jwt.RegisteredClaims
}

// Actor converts claims into the domain actor attached to requests.
func (c *Claims) Actor() domain.Actor {
	return domain.Actor{
		UserID:    c.UserID,
		CompanyID: c.CompanyID,
		Role:      c.Role,
	}
}

// GenerateToken signs a token for the given actor.
func (tm *TokenManager) GenerateToken(actor domain.Actor, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID:    actor.UserID,
		CompanyID: actor.CompanyID,
		Role:      actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tm.secret)
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if claims.UserID == "" || claims.CompanyID == "" {
		return nil, errors.New("token missing subject or company")
	}
	return claims, nil
}
