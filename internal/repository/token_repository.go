package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/auth-gate/internal/domain"
)

var (
	// ErrTokenNotFound is returned when no record exists for a token string.
	ErrTokenNotFound = errors.New("token record not found")
	// ErrTokenExists is returned when a token string is registered twice.
	ErrTokenExists = errors.New("token record already exists")
)

// TokenRepository is the server-side registry of issued tokens.
type TokenRepository interface {
	Create(ctx context.Context, record *domain.TokenRecord) error
	// GetByToken returns ErrTokenNotFound on a miss.
	GetByToken(ctx context.Context, token string) (*domain.TokenRecord, error)
	// Touch advances LastUsedAt to now; it never moves it backwards.
	Touch(ctx context.Context, record *domain.TokenRecord) error
	DeleteByToken(ctx context.Context, token string) error
	// DeleteExpiredBefore removes every record with ExpiresAt strictly before the instant.
	DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error)
}

type tokenRepository struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// NewTokenRepository returns a Postgres-backed implementation.
func NewTokenRepository(pool *pgxpool.Pool) TokenRepository {
	return &tokenRepository{pool: pool, now: time.Now}
}

func (r *tokenRepository) Create(ctx context.Context, record *domain.TokenRecord) error {
	const query = `
        INSERT INTO auth_tokens (id, token, subject, user_id, expires_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING created_at`

	if record.ID == "" {
		record.ID = newID()
	}
	err := r.pool.QueryRow(ctx, query,
		record.ID,
		record.Token,
		record.Subject,
		record.UserID,
		record.ExpiresAt,
	).Scan(&record.CreatedAt)
	if isUniqueViolation(err) {
		return ErrTokenExists
	}
	return err
}

func (r *tokenRepository) GetByToken(ctx context.Context, token string) (*domain.TokenRecord, error) {
	const query = `
        SELECT id, token, subject, user_id, expires_at, last_used_at, created_at
        FROM auth_tokens WHERE token=$1`

	var record domain.TokenRecord
	if err := r.pool.QueryRow(ctx, query, token).Scan(
		&record.ID,
		&record.Token,
		&record.Subject,
		&record.UserID,
		&record.ExpiresAt,
		&record.LastUsedAt,
		&record.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *tokenRepository) Touch(ctx context.Context, record *domain.TokenRecord) error {
	// GREATEST ignores NULL, so the first touch simply sets the column.
	const query = `
        UPDATE auth_tokens SET last_used_at = GREATEST(last_used_at, $2)
        WHERE id=$1
        RETURNING last_used_at`

	var lastUsed time.Time
	if err := r.pool.QueryRow(ctx, query, record.ID, r.now()).Scan(&lastUsed); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrTokenNotFound
		}
		return err
	}
	record.LastUsedAt = &lastUsed
	return nil
}

func (r *tokenRepository) DeleteByToken(ctx context.Context, token string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE token=$1`, token)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTokenNotFound
	}
	return nil
}

func (r *tokenRepository) DeleteExpiredBefore(ctx context.Context, before time.Time) (int64, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM auth_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return cmd.RowsAffected(), nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
