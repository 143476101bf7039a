package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrUnauthorized is returned for unknown, disabled or malformed API keys.
var ErrUnauthorized = errors.New("unauthorized")

// APIKeyInfo holds the identity and permission data for a validated API key.
// UserID is the storefront user the key acts as; the core trusts it as the
// resolved caller identity.
type APIKeyInfo struct {
	ID      string
	KeyHash string
	UserID  string
	Name    string
	Scopes  []string
}

// Repository provides lookup of API keys by their HMAC-SHA256 hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*APIKeyInfo, error)
}
