package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk/internal/auth"
	"github.com/spec-kit/helpdesk/internal/config"
	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/observability"
	"github.com/spec-kit/helpdesk/internal/repository"
	apperrors "github.com/spec-kit/helpdesk/pkg/util/errorutil"
)

// ErrInvalidCredentials is returned for both unknown usernames and wrong
// passwords.
var ErrInvalidCredentials = apperrors.NewUnauthorized("Invalid username or password")

// RegisterInput is the self-registration payload.
type RegisterInput struct {
	Username        string `json:"username" validate:"required,notblank,min=3,max=50"`
	Password        string `json:"password" validate:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	Email           string `json:"email" validate:"omitempty,email,max=255"`
	FirstName       string `json:"firstName" validate:"max=100"`
	LastName        string `json:"lastName" validate:"max=100"`
}

// LoginInput carries credentials.
type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthService coordinates registration, login and session teardown.
type AuthService struct {
	users      repository.UserRepository
	sessions   *auth.SessionManager
	bcryptCost int
	dummyHash  string
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo repository.UserRepository
	Sessions *auth.SessionManager
	Metrics  *observability.Metrics
	Logger   *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) (*AuthService, error) {
	dummy, err := auth.HashPassword("helpdesk-timing-guard", cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      deps.UserRepo,
		sessions:   deps.Sessions,
		bcryptCost: cfg.BcryptCost,
		dummyHash:  dummy,
		metrics:    deps.Metrics,
		logger:     logger,
	}, nil
}

// Authenticate verifies credentials without creating a session. The returned
// user carries no password hash.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = auth.ComparePassword(s.dummyHash, password)
			return nil, ErrInvalidCredentials
		}
		return nil, apperrors.NewInternalError(err)
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, ErrInvalidCredentials
	}
	return user.Redacted(), nil
}

// Login authenticates and opens a session, returning the raw token.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.User, string, time.Time, error) {
	user, err := s.Authenticate(ctx, input.Username, input.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.metrics.RecordLogin("invalid")
			s.logger.Info("login rejected", zap.String("username", input.Username))
		} else {
			s.metrics.RecordLogin("error")
		}
		return nil, "", time.Time{}, err
	}

	token, expiresAt, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		s.metrics.RecordLogin("error")
		return nil, "", time.Time{}, apperrors.NewInternalError(err)
	}
	s.metrics.RecordLogin("success")
	s.logger.Info("login succeeded", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return user, token, expiresAt, nil
}

// Register creates a regular user account. It does not open a session.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	input.Email = strings.TrimSpace(input.Email)
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	if err := validateInput("Invalid user data", input); err != nil {
		return nil, err
	}

	user, err := s.createUser(ctx, &domain.User{
		Username:  input.Username,
		Email:     input.Email,
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Role:      domain.RoleUser,
	}, input.Password)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

func (s *AuthService) createUser(ctx context.Context, user *domain.User, password string) (*domain.User, error) {
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, apperrors.NewDuplicate("Username already exists", map[string]any{"username": "already taken"})
		}
		return nil, apperrors.NewInternalError(err)
	}
	return user.Redacted(), nil
}

// Logout destroys the session behind token, if any.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if err := s.sessions.Destroy(ctx, token); err != nil {
		return apperrors.NewInternalError(err)
	}
	return nil
}

// CurrentUser reloads the caller's account.
func (s *AuthService) CurrentUser(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewUnauthorized("Authentication required")
		}
		return nil, apperrors.NewInternalError(err)
	}
	return user.Redacted(), nil
}

// ListUsers returns every account. Admin only.
func (s *AuthService) ListUsers(ctx context.Context, identity domain.Identity) ([]domain.User, error) {
	if !identity.IsAdmin() {
		return nil, apperrors.NewForbidden("Admin access required")
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

type seedAccount struct {
	user     domain.User
	password string
}

var defaultAccounts = []seedAccount{
	{
		user:     domain.User{Username: "admin", Email: "admin@example.com", FirstName: "Admin", LastName: "User", Role: domain.RoleAdmin},
		password: "admin123",
	},
	{
		user:     domain.User{Username: "user", Email: "user@example.com", FirstName: "Regular", LastName: "User", Role: domain.RoleUser},
		password: "user123",
	},
}

// SeedDefaultUsers creates the stock admin and user accounts when their
// usernames are free. Existing accounts are left untouched.
func (s *AuthService) SeedDefaultUsers(ctx context.Context) error {
	for _, account := range defaultAccounts {
		_, err := s.users.GetByUsername(ctx, account.user.Username)
		if err == nil {
			continue
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("lookup %s: %w", account.user.Username, err)
		}

		user := account.user
		created, err := s.createUser(ctx, &user, account.password)
		if err != nil {
			if apperrors.IsCode(err, "DUPLICATE_RESOURCE") {
				continue
			}
			return fmt.Errorf("seed %s: %w", account.user.Username, err)
		}
		s.logger.Info("default user created", zap.String("username", created.Username), zap.String("role", string(created.Role)))
	}
	return nil
}
