package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/helpdesk/internal/domain"
)

// SessionRepository persists sessions keyed by token hash. Get returns
// expired sessions as-is; deciding validity is the caller's job.
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context, tokenHash string) (*domain.Session, error)
	Delete(ctx context.Context, tokenHash string) error
}

type sessionRepository struct {
	db DBTX
}

// NewSessionRepository returns a Postgres-backed session store.
func NewSessionRepository(db DBTX) SessionRepository {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	const query = `
        INSERT INTO sessions (token_hash, user_id, created_at, expires_at)
        VALUES ($1,$2,$3,$4)`
	_, err := r.db.Exec(ctx, query, session.TokenHash, session.UserID, session.CreatedAt, session.ExpiresAt)
	return err
}

func (r *sessionRepository) Get(ctx context.Context, tokenHash string) (*domain.Session, error) {
	const query = `
        SELECT token_hash, user_id, created_at, expires_at
        FROM sessions WHERE token_hash=$1`
	var session domain.Session
	if err := r.db.QueryRow(ctx, query, tokenHash).Scan(
		&session.TokenHash,
		&session.UserID,
		&session.CreatedAt,
		&session.ExpiresAt,
	); err != nil {
		return nil, mapNoRows(err)
	}
	return &session, nil
}

func (r *sessionRepository) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE token_hash=$1`, tokenHash)
	return err
}

const redisSessionPrefix = "session:"

type redisSessionRepository struct {
	client redis.UniversalClient
}

// NewRedisSessionRepository stores sessions as JSON values with a matching key TTL.
func NewRedisSessionRepository(client redis.UniversalClient) SessionRepository {
	return &redisSessionRepository{client: client}
}

func (r *redisSessionRepository) Create(ctx context.Context, session *domain.Session) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, redisSessionPrefix+session.TokenHash, payload, ttl).Err()
}

func (r *redisSessionRepository) Get(ctx context.Context, tokenHash string) (*domain.Session, error) {
	val, err := r.client.Get(ctx, redisSessionPrefix+tokenHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var session domain.Session
	if err := json.Unmarshal(val, &session); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &session, nil
}

func (r *redisSessionRepository) Delete(ctx context.Context, tokenHash string) error {
	return r.client.Del(ctx, redisSessionPrefix+tokenHash).Err()
}
