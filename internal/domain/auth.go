package domain

import "time"

// Identity is the session-resolved caller that every protected operation
// receives. Role checks go through its methods and nowhere else.
type Identity struct {
	UserID   string
	Username string
	Role     Role
}

// IsAdmin reports whether the caller holds the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// CanAccess reports whether the caller may read or modify the ticket.
func (i Identity) CanAccess(t *Ticket) bool {
	if t == nil {
		return false
	}
	return i.IsAdmin() || t.CreatedBy == i.UserID
}

// Session maps a hashed opaque token to a user until ExpiresAt.
type Session struct {
	TokenHash string    `json:"token_hash"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
