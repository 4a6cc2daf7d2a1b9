package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/visitor-identity/internal/api/dto"
	"github.com/spec-kit/visitor-identity/internal/auth"
	"github.com/spec-kit/visitor-identity/internal/domain"
	"github.com/spec-kit/visitor-identity/internal/service"
	apperrors "github.com/spec-kit/visitor-identity/pkg/util"
)

// SessionHandler exposes signup, login and the caller's own session.
type SessionHandler struct {
	sessions *service.SessionService
	tokens   *auth.TokenManager
}

// NewSessionHandler constructs handler.
func NewSessionHandler(sessions *service.SessionService, tokens *auth.TokenManager) *SessionHandler {
	return &SessionHandler{sessions: sessions, tokens: tokens}
}

// Signup handles POST /auth/signup.
func (h *SessionHandler) Signup(c *fiber.Ctx) error {
	var req dto.SignupRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		return apperrors.NewValidationError("name, email, password required", nil)
	}

	view, err := h.sessions.Signup(c.UserContext(), req.Email, req.Password, req.Name)
	if err != nil {
		return err
	}
	return h.respondSession(c, http.StatusCreated, view)
}

// Login handles POST /auth/login.
func (h *SessionHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	view, err := h.sessions.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return err
	}
	return h.respondSession(c, http.StatusOK, view)
}

// Logout handles POST /auth/logout.
func (h *SessionHandler) Logout(c *fiber.Ctx) error {
	outcome, err := h.sessions.Logout(c.UserContext())
	if err != nil {
		return err
	}
	return respondOutcome(c, outcome, nil)
}

// Current handles GET /session.
func (h *SessionHandler) Current(c *fiber.Ctx) error {
	view := h.sessions.Current()
	if view == nil {
		return apperrors.NewUnauthorized("no active session")
	}
	return c.JSON(fiber.Map{"data": view})
}

// UpdateProfile handles PATCH /session/profile.
func (h *SessionHandler) UpdateProfile(c *fiber.Ctx) error {
	var req dto.ProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Age != nil && *req.Age < 0 {
		return apperrors.NewValidationError("age must not be negative", map[string]any{"age": *req.Age})
	}

	outcome, err := h.sessions.UpdateProfile(c.UserContext(), req.Update())
	if err != nil {
		return err
	}
	return respondOutcome(c, outcome, h.sessions.Current())
}

// AddActivity handles POST /session/activities.
func (h *SessionHandler) AddActivity(c *fiber.Ctx) error {
	var req dto.ActivityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	outcome, err := h.sessions.AddActivity(c.UserContext(), req.Message)
	if err != nil {
		return err
	}
	return respondOutcome(c, outcome, h.sessions.Current())
}

// IncrementLoginCount handles POST /session/login-count.
func (h *SessionHandler) IncrementLoginCount(c *fiber.Ctx) error {
	outcome, err := h.sessions.IncrementLoginCount(c.UserContext())
	if err != nil {
		return err
	}
	return respondOutcome(c, outcome, h.sessions.Current())
}

func (h *SessionHandler) respondSession(c *fiber.Ctx, status int, view *domain.SessionView) error {
	token, err := h.tokens.Issue(*view)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.Status(status).JSON(fiber.Map{
		"data": dto.SessionResponse{User: *view, Auth: token},
	})
}

// respondOutcome maps refusals onto error sentinels and reports the rest.
func respondOutcome(c *fiber.Ctx, outcome domain.Outcome, view *domain.SessionView) error {
	switch outcome {
	case domain.OutcomeForbidden:
		return apperrors.ErrNotAuthorized
	case domain.OutcomeNotFound:
		return apperrors.ErrNotFound
	}
	return c.JSON(fiber.Map{
		"data": dto.OutcomeResponse{Outcome: outcome, User: view},
	})
}
