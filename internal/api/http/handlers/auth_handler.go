package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/api/dto"
	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/service"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// AuthHandler exposes login, registration and session endpoints.
type AuthHandler struct {
	auth     *service.AuthService
	sessions *auth.SessionMiddleware
	logger   *zap.Logger
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService, sessions *auth.SessionMiddleware, logger *zap.Logger) *AuthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthHandler{auth: authService, sessions: sessions, logger: logger}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.UserLoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("Invalid request body", nil)
	}

	user, token, expiresAt, err := h.auth.Login(c.UserContext(), service.LoginInput{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		return err
	}

	// A session presented alongside a fresh login is replaced.
	if old := h.sessions.Token(c); old != "" && old != token {
		if err := h.auth.Logout(c.UserContext(), old); err != nil {
			h.logger.Warn("destroy replaced session", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	h.sessions.SetCookie(c, token, expiresAt)
	return c.JSON(dto.AuthResponse{User: dto.NewUserResponse(user), Message: "Login successful"})
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req dto.UserRegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("Invalid request body", nil)
	}

	user, err := h.auth.Register(c.UserContext(), service.RegisterInput{
		Username:        req.Username,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Email:           req.Email,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(dto.AuthResponse{User: dto.NewUserResponse(user), Message: "User created successfully"})
}

// Logout handles POST /api/auth/logout. It succeeds without a session.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.auth.Logout(c.UserContext(), h.sessions.Token(c)); err != nil {
		return err
	}
	h.sessions.ClearCookie(c)
	return c.JSON(dto.MessageResponse{Message: "Logout successful"})
}

// CurrentUser handles GET /api/auth/user.
func (h *AuthHandler) CurrentUser(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("Authentication required")
	}
	user, err := h.auth.CurrentUser(c.UserContext(), principal.Identity)
	if err != nil {
		return err
	}
	return c.JSON(dto.NewUserResponse(user))
}
