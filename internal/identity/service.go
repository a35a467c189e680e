// Package identity provides account management and token issuance for the
// activity API: email/password sign-up and sign-in, federated sign-in,
// refresh sessions, and password resets.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"example.com/agenda/internal/session"
)

const (
	minPasswordLength = 8
	refreshTTL        = 30 * 24 * time.Hour
	resetTTL          = time.Hour
)

// Session is the result of a successful authentication.
type Session struct {
	User            *User
	AccessToken     string
	AccessExpiresAt time.Time
	RefreshToken    string
}

// Service implements the identity operations.
type Service struct {
	store    UserStore
	sessions *session.RedisStore
	limiter  *RateLimiter
	tokens   TokenIssuer
	logger   *log.Logger

	authState
}

// NewService wires the identity service. limiter may be nil to disable
// throttling (used by tests).
func NewService(store UserStore, sessions *session.RedisStore, limiter *RateLimiter, tokens TokenIssuer, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		store:    store,
		sessions: sessions,
		limiter:  limiter,
		tokens:   tokens,
		logger:   logger,
	}
}

// SignUp creates an account and signs the new user in.
func (s *Service) SignUp(ctx context.Context, email, password, displayName string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	if existing, err := s.store.GetUserByEmail(ctx, email); err != nil {
		return nil, fmt.Errorf("look up email: %w", err)
	} else if existing != nil {
		return nil, ErrEmailAlreadyInUse
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := User{
		ID:           uuid.NewString(),
		Email:        email,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: string(hash),
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}

	return s.openSession(ctx, &user)
}

// SignIn authenticates with email and password.
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	if err := s.throttle(ctx, email); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("look up email: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	if user.PasswordHash == "" {
		// Federated-only account, no password to check.
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if s.limiter != nil {
		s.limiter.Reset(ctx, email)
	}
	return s.openSession(ctx, user)
}

// SignInFederated signs in a user asserted by an external provider,
// creating the account on first use.
func (s *Service) SignInFederated(ctx context.Context, provider, email, displayName string) (*Session, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("look up email: %w", err)
	}
	if user == nil {
		created := User{
			ID:          uuid.NewString(),
			Email:       email,
			DisplayName: strings.TrimSpace(displayName),
			Provider:    provider,
		}
		if err := s.store.CreateUser(ctx, created); err != nil {
			return nil, fmt.Errorf("create federated user: %w", err)
		}
		user = &created
	}

	return s.openSession(ctx, user)
}

// SignOut revokes the refresh session for the given token. Unknown tokens
// are treated as already signed out.
func (s *Service) SignOut(ctx context.Context, refreshToken string) error {
	if refreshToken != "" && s.sessions != nil {
		if err := s.sessions.Revoke(ctx, hashToken(refreshToken)); err != nil {
			return err
		}
	}
	s.broadcast(nil)
	return nil
}

// Refresh exchanges a refresh token for a new access token.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	if s.sessions == nil {
		return nil, session.ErrNotFound
	}
	rec, err := s.sessions.Lookup(ctx, hashToken(refreshToken))
	if err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, rec.UserID)
	if err != nil {
		return nil, fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}

	access, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}
	return &Session{
		User:            user,
		AccessToken:     access,
		AccessExpiresAt: expiresAt,
		RefreshToken:    refreshToken,
	}, nil
}

// RequestPasswordReset creates a reset token for the account. The token is
// returned for delivery; an unknown email yields an empty token so callers
// cannot probe which addresses exist.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return "", err
	}

	if err := s.throttle(ctx, "reset:"+email); err != nil {
		return "", err
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("look up email: %w", err)
	}
	if user == nil {
		return "", nil
	}

	token, err := newOpaqueToken()
	if err != nil {
		return "", err
	}
	if err := s.store.CreatePasswordReset(ctx, user.ID, hashToken(token), time.Now().Add(resetTTL)); err != nil {
		return "", fmt.Errorf("create password reset: %w", err)
	}
	return token, nil
}

// ResetPassword sets a new password using a reset token.
func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrResetTokenInvalid
	}
	if len(newPassword) < minPasswordLength {
		return ErrWeakPassword
	}

	userID, err := s.store.ConsumePasswordReset(ctx, hashToken(token))
	if err != nil {
		return ErrResetTokenInvalid
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.store.UpdateUserPassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *Service) openSession(ctx context.Context, user *User) (*Session, error) {
	access, expiresAt, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, err
	}

	refresh, err := newOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}
	if s.sessions != nil {
		rec := session.Record{UserID: user.ID, Email: user.Email}
		if err := s.sessions.Save(ctx, hashToken(refresh), rec, time.Now().Add(refreshTTL)); err != nil {
			return nil, err
		}
	}

	s.broadcast(user)
	return &Session{
		User:            user,
		AccessToken:     access,
		AccessExpiresAt: expiresAt,
		RefreshToken:    refresh,
	}, nil
}

func (s *Service) throttle(ctx context.Context, subject string) error {
	if s.limiter == nil {
		return nil
	}
	ok, err := s.limiter.Allow(ctx, subject)
	if err != nil {
		s.logger.Printf("rate limiter unavailable, allowing attempt: %v", err)
		return nil
	}
	if !ok {
		return ErrTooManyRequests
	}
	return nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", ErrInvalidEmail
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", ErrInvalidEmail
	}
	return email, nil
}

// IsAuthError reports whether err belongs to the identity error taxonomy,
// as opposed to an infrastructure failure.
func IsAuthError(err error) bool {
	for _, sentinel := range []error{
		ErrInvalidCredentials,
		ErrUserNotFound,
		ErrEmailAlreadyInUse,
		ErrWeakPassword,
		ErrTooManyRequests,
		ErrInvalidEmail,
		ErrResetTokenInvalid,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}
