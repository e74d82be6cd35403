package tokenstore

import (
	"errors"
	"time"
)

// Errors returned by credential operations.
var (
	// ErrNotFound is returned when no credential exists for a (user, service) pair.
	ErrNotFound = errors.New("credential not found")
	// ErrDecrypt is returned when a stored secret cannot be opened, e.g. after
	// a key rotation without migration. It is never silently swallowed.
	ErrDecrypt = errors.New("credential decrypt failed")
)

// Credential is one stored token record for a (user, service) pair.
// AccessToken and RefreshToken are plaintext in memory and sealed at rest.
type Credential struct {
	ID           string
	UserID       string
	Service      string
	AccessToken  string
	RefreshToken string
	// ExpiresAt zero means the token is treated as non-expiring.
	ExpiresAt time.Time
	ExtraData map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the credential is past its expiry at the given instant.
func (c Credential) Expired(now time.Time) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(c.ExpiresAt)
}

// PutParams is the input for Put. RefreshToken, ExpiresAt, and ExtraData are
// optional; ExtraData is merged into the stored record rather than replacing it.
type PutParams struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	ExtraData    map[string]any
}
