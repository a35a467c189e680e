package identity

import "errors"

// Sentinel errors mapped to stable API error codes by the HTTP layer.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("no account exists for this email")
	ErrEmailAlreadyInUse  = errors.New("email is already registered")
	ErrWeakPassword       = errors.New("password must be at least 8 characters")
	ErrTooManyRequests    = errors.New("too many attempts, try again later")
	ErrInvalidEmail       = errors.New("email address is not valid")
	ErrResetTokenInvalid  = errors.New("invalid or expired reset token")
)
