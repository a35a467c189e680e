package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"example.com/agenda/internal/auth"
)

// TokenIssuer mints signed access tokens for authenticated users.
type TokenIssuer struct {
	Secret string
	Issuer string
	TTL    time.Duration
}

// Issue returns a signed JWT for the given user along with its expiry.
func (t TokenIssuer) Issue(userID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(t.TTL)

	claims := jwt.MapClaims{
		"sub":    userID,
		"iss":    t.Issuer,
		"iat":    now.Unix(),
		"exp":    expiresAt.Unix(),
		"scopes": []string{auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(t.Secret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expiresAt, nil
}

// newOpaqueToken creates a secure random token for refresh sessions and
// password resets. The raw value goes to the client, only the hash is stored.
func newOpaqueToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// hashToken derives the storage key for an opaque token.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
