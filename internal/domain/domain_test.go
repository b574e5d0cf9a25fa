package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIdentityCanAccess(t *testing.T) {
	ticket := &Ticket{ID: "t1", CreatedBy: "owner"}

	tests := []struct {
		name     string
		identity Identity
		want     bool
	}{
		{name: "owner", identity: Identity{UserID: "owner", Role: RoleUser}, want: true},
		{name: "other user", identity: Identity{UserID: "someone", Role: RoleUser}, want: false},
		{name: "admin", identity: Identity{UserID: "root", Role: RoleAdmin}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.identity.CanAccess(ticket))
		})
	}

	assert.False(t, Identity{Role: RoleAdmin}.CanAccess(nil))
}

func TestSessionExpired(t *testing.T) {
	now := time.Date(2024, 1, 8, 12, 0, 0, 0, time.UTC)
	s := &Session{ExpiresAt: now}

	assert.True(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(time.Second)))
	assert.False(t, s.Expired(now.Add(-time.Second)))
}

func TestUserRedacted(t *testing.T) {
	u := &User{ID: "1", Username: "admin", PasswordHash: "$2a$10$abc", Role: RoleAdmin}
	r := u.Redacted()

	assert.Empty(t, r.PasswordHash)
	assert.Equal(t, "$2a$10$abc", u.PasswordHash)
	assert.Equal(t, Identity{UserID: "1", Username: "admin", Role: RoleAdmin}, u.Identity())
}

func TestStatusAndRoleValid(t *testing.T) {
	assert.True(t, TicketStatusPending.Valid())
	assert.True(t, TicketStatusResolved.Valid())
	assert.False(t, TicketStatus("closed").Valid())
	assert.True(t, RoleUser.Valid())
	assert.False(t, Role("root").Valid())
}
