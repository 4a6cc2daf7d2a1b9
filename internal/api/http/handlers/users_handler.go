package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/visitor-identity/internal/api/dto"
	"github.com/spec-kit/visitor-identity/internal/service"
	apperrors "github.com/spec-kit/visitor-identity/pkg/util"
)

// UsersHandler exposes the registry to the session holder.
type UsersHandler struct {
	sessions *service.SessionService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(sessions *service.SessionService) *UsersHandler {
	return &UsersHandler{sessions: sessions}
}

// List handles GET /users.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	users, err := h.sessions.ListUsers(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": users})
}

// Activities handles GET /users/:id/activities. An optional limit keeps only
// the newest entries.
func (h *UsersHandler) Activities(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 0)
	if limit < 0 {
		return apperrors.NewValidationError("limit must not be negative", map[string]any{"limit": limit})
	}

	userID := c.Params("id")
	activities, err := h.sessions.ActivitiesOf(c.UserContext(), userID)
	if err != nil {
		return err
	}
	if limit > 0 && len(activities) > limit {
		activities = activities[:limit]
	}
	return c.JSON(fiber.Map{
		"data": dto.ActivitiesResponse{UserID: userID, Activities: activities},
	})
}

// MakeOwner handles POST /users/:id/owner.
func (h *UsersHandler) MakeOwner(c *fiber.Ctx) error {
	outcome, err := h.sessions.MakeOwner(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return respondOutcome(c, outcome, nil)
}

// Delete handles DELETE /users/:id.
func (h *UsersHandler) Delete(c *fiber.Ctx) error {
	outcome, err := h.sessions.DeleteUser(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return respondOutcome(c, outcome, nil)
}
