package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// RequireOwner ensures the session holder is an owner.
func RequireOwner() fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if !principal.Session.IsOwner {
			return fiber.NewError(http.StatusForbidden, "owner required")
		}
		return c.Next()
	}
}
