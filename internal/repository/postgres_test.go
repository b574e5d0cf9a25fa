package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk/internal/domain"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		mock.Close()
	})
	return mock
}

func TestUserRepositoryCreate(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)
	now := time.Now()

	mock.ExpectQuery("INSERT INTO users").
		WithArgs("alice", "a@example.com", "Alice", "", "hash", domain.RoleUser).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("u-1", now, now))

	user := &domain.User{Username: "alice", Email: "a@example.com", FirstName: "Alice", PasswordHash: "hash", Role: domain.RoleUser}
	require.NoError(t, repo.Create(context.Background(), user))
	assert.Equal(t, "u-1", user.ID)
	assert.Equal(t, now, user.CreatedAt)
}

func TestUserRepositoryCreateDuplicate(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery("INSERT INTO users").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "users_username_key"})

	err := repo.Create(context.Background(), &domain.User{Username: "admin", Role: domain.RoleUser})
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestUserRepositoryGetByUsernameNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewUserRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE username=$1")).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTicketRepositoryListScopesByOwner(t *testing.T) {
	mock := newMock(t)
	repo := NewTicketRepository(mock)
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	rows := pgxmock.NewRows([]string{"id", "date", "room", "issue", "action_taken", "solved_by", "status", "created_by", "assigned_to", "created_at"}).
		AddRow("t-1", "2024-01-01", "Lab Room", "Projector broken", nil, nil, domain.TicketStatusPending, "u-1", nil, created)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1 AND created_by=$1 AND status IN ($2) ORDER BY created_at DESC")).
		WithArgs("u-1", domain.TicketStatusPending).
		WillReturnRows(rows)

	owner := "u-1"
	tickets, err := repo.List(context.Background(), TicketFilter{
		CreatedBy: &owner,
		Statuses:  []domain.TicketStatus{domain.TicketStatusPending},
	})
	require.NoError(t, err)
	require.Len(t, tickets, 1)
	assert.Equal(t, "Lab Room", tickets[0].Room)
	assert.Nil(t, tickets[0].ActionTaken)
}

func TestTicketRepositoryListTreatsWildcardsLiterally(t *testing.T) {
	mock := newMock(t)
	repo := NewTicketRepository(mock)
	since := time.Date(2024, 6, 8, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`LOWER(room) LIKE $1 ESCAPE '\' AND (LOWER(room) LIKE $2 ESCAPE '\' OR`)).
		WithArgs(`%lab\_1%`, `%50\%%`, since).
		WillReturnRows(pgxmock.NewRows([]string{"id", "date", "room", "issue", "action_taken", "solved_by", "status", "created_by", "assigned_to", "created_at"}))

	room := " Lab_1 "
	term := "50%"
	tickets, err := repo.List(context.Background(), TicketFilter{Room: &room, SearchTerm: &term, CreatedFrom: &since})
	require.NoError(t, err)
	assert.Empty(t, tickets)
}

func TestContainsPatternEscapesBackslash(t *testing.T) {
	assert.Equal(t, `%c:\\tmp%`, containsPattern(`C:\tmp`))
}

func TestTicketRepositoryGetByIDNotFound(t *testing.T) {
	mock := newMock(t)
	repo := NewTicketRepository(mock)

	mock.ExpectQuery(regexp.QuoteMeta("FROM tickets WHERE id=$1")).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{"id", "date", "room", "issue", "action_taken", "solved_by", "status", "created_by", "assigned_to", "created_at"}))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTicketRepositoryDeleteMissing(t *testing.T) {
	mock := newMock(t)
	repo := NewTicketRepository(mock)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM tickets WHERE id=$1")).
		WithArgs("t-9").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	assert.ErrorIs(t, repo.Delete(context.Background(), "t-9"), ErrNotFound)
}

func TestSessionRepositoryRoundTrip(t *testing.T) {
	mock := newMock(t)
	repo := NewSessionRepository(mock)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	session := &domain.Session{TokenHash: "abc", UserID: "u-1", CreatedAt: now, ExpiresAt: now.Add(7 * 24 * time.Hour)}

	mock.ExpectExec("INSERT INTO sessions").
		WithArgs("abc", "u-1", session.CreatedAt, session.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE token_hash=$1")).
		WithArgs("abc").
		WillReturnRows(pgxmock.NewRows([]string{"token_hash", "user_id", "created_at", "expires_at"}).
			AddRow("abc", "u-1", session.CreatedAt, session.ExpiresAt))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sessions WHERE token_hash=$1")).
		WithArgs("abc").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, session))
	got, err := repo.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, session.ExpiresAt, got.ExpiresAt)
	require.NoError(t, repo.Delete(ctx, "abc"))
}
