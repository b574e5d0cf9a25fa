package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/spec-kit/helpdesk/internal/domain"
	"github.com/spec-kit/helpdesk/internal/repository"
)

const tokenBytes = 32

// SessionManager issues and resolves opaque session tokens. Only the
// SHA-256 of a token is ever persisted.
type SessionManager struct {
	store repository.SessionRepository
	ttl   time.Duration
	now   func() time.Time
}

// NewSessionManager builds a manager; ttl applies to every session it creates.
func NewSessionManager(store repository.SessionRepository, ttl time.Duration) *SessionManager {
	return &SessionManager{store: store, ttl: ttl, now: time.Now}
}

// TTL returns the lifetime given to new sessions.
func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

// Create persists a new session for userID and returns the raw token.
func (m *SessionManager) Create(ctx context.Context, userID string) (string, time.Time, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", time.Time{}, fmt.Errorf("generate session token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	now := m.now().UTC()
	session := &domain.Session{
		TokenHash: hashToken(token),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.ttl),
	}
	if err := m.store.Create(ctx, session); err != nil {
		return "", time.Time{}, fmt.Errorf("store session: %w", err)
	}
	return token, session.ExpiresAt, nil
}

// Resolve maps a token to its user id. ok is false for empty, unknown and
// expired tokens; err is reserved for store failures.
func (m *SessionManager) Resolve(ctx context.Context, token string) (string, bool, error) {
	if token == "" {
		return "", false, nil
	}
	session, err := m.store.Get(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	if session.Expired(m.now()) {
		return "", false, nil
	}
	return session.UserID, true, nil
}

// Destroy invalidates the token. Unknown tokens are not an error.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return m.store.Delete(ctx, hashToken(token))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
