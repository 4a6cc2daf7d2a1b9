package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/visitor-identity/internal/domain"
	apperrors "github.com/spec-kit/visitor-identity/pkg/util"
)

const principalKey = "auth_principal"

// SessionSource exposes the live session a token must be bound to.
type SessionSource interface {
	Current() *domain.SessionView
}

// Principal represents the authenticated caller.
type Principal struct {
	Session domain.SessionView
}

// AuthMiddleware validates bearer tokens against the live session.
type AuthMiddleware struct {
	tokens   *TokenManager
	sessions SessionSource
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, sessions SessionSource) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, sessions: sessions}
}

// Handle enforces authentication for protected routes. A token is only
// honored while its subject still holds the session.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	current := m.sessions.Current()
	if current == nil || current.ID != claims.Subject {
		return apperrors.NewUnauthorized("session is no longer active")
	}

	c.Locals(principalKey, &Principal{Session: *current})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated entity.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
