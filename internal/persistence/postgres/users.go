package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/agenda/internal/identity"
)

// UserStore persists accounts and password reset tokens.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore wires a user store over the shared pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) CreateUser(ctx context.Context, user identity.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (user_id, email, display_name, password_hash, provider)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
	`, user.ID, user.Email, user.DisplayName, nullIfEmpty(user.PasswordHash), user.Provider)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	return s.getUser(ctx, `
		SELECT user_id, email, display_name, COALESCE(password_hash, ''), COALESCE(provider, ''), created_at
		FROM users WHERE email = $1
	`, email)
}

func (s *UserStore) GetUserByID(ctx context.Context, id string) (*identity.User, error) {
	return s.getUser(ctx, `
		SELECT user_id, email, display_name, COALESCE(password_hash, ''), COALESCE(provider, ''), created_at
		FROM users WHERE user_id = $1
	`, id)
}

func (s *UserStore) getUser(ctx context.Context, query string, arg any) (*identity.User, error) {
	var user identity.User
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.DisplayName,
		&user.PasswordHash,
		&user.Provider,
		&user.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}

func (s *UserStore) UpdateUserPassword(ctx context.Context, userID, passwordHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET password_hash = $2 WHERE user_id = $1
	`, userID, passwordHash)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

func (s *UserStore) CreatePasswordReset(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO password_resets (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, token, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("insert password reset: %w", err)
	}
	return nil
}

// ConsumePasswordReset marks the reset used and returns its user. A token
// that is unknown, expired, or already used yields an error.
func (s *UserStore) ConsumePasswordReset(ctx context.Context, token string) (string, error) {
	var userID string
	err := s.pool.QueryRow(ctx, `
		UPDATE password_resets
		SET used_at = NOW()
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > NOW()
		RETURNING user_id
	`, token).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", identity.ErrResetTokenInvalid
	}
	if err != nil {
		return "", fmt.Errorf("consume password reset: %w", err)
	}
	return userID, nil
}
