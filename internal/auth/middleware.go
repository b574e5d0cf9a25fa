package auth

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	User     *domain.User
	Identity domain.Identity
	Token    string
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// SessionMiddleware resolves the session cookie into a principal. It never
// rejects a request; guards in roles.go do that.
type SessionMiddleware struct {
	sessions *SessionManager
	users    repository.UserRepository
	cookie   CookieConfig
	logger   *zap.Logger
}

// NewSessionMiddleware constructs middleware.
func NewSessionMiddleware(sessions *SessionManager, users repository.UserRepository, cookie CookieConfig, logger *zap.Logger) *SessionMiddleware {
	if cookie.Name == "" {
		cookie.Name = "sid"
	}
	return &SessionMiddleware{sessions: sessions, users: users, cookie: cookie, logger: logger}
}

// Handle loads the principal for the request, if any.
func (m *SessionMiddleware) Handle(c *fiber.Ctx) error {
	token := c.Cookies(m.cookie.Name)
	if token == "" {
		return c.Next()
	}

	userID, ok, err := m.sessions.Resolve(c.UserContext(), token)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	if !ok {
		return c.Next()
	}

	user, err := m.users.GetByID(c.UserContext(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			m.logger.Warn("session references missing user; destroying", zap.String("user_id", userID))
			if derr := m.sessions.Destroy(c.UserContext(), token); derr != nil {
				m.logger.Error("destroy orphan session", zap.Error(derr))
			}
			return c.Next()
		}
		return apperrors.NewInternalError(err)
	}

	c.Locals(principalKey, &Principal{User: user.Redacted(), Identity: user.Identity(), Token: token})
	return c.Next()
}

// Token returns the raw session token sent by the client, if any.
func (m *SessionMiddleware) Token(c *fiber.Ctx) string {
	return c.Cookies(m.cookie.Name)
}

// SetCookie writes the session cookie.
func (m *SessionMiddleware) SetCookie(c *fiber.Ctx, token string, expiresAt time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     m.cookie.Name,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(m.sessions.TTL().Seconds()),
		Secure:   m.cookie.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie on the client.
func (m *SessionMiddleware) ClearCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     m.cookie.Name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   m.cookie.Secure,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
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
