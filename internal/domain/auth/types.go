// Package auth implements the incoming-authentication providers the
// middleware chain's auth stage consults to turn a request's credential
// into an identity.Identity (§4.7, §6 incoming_auth).
package auth

import (
	"context"
	"time"

	"github.com/diaz3618/mcp-sentinel/internal/domain/identity"
)

// Provider authenticates one request credential and returns the caller's
// identity. The credential is empty when the request carries none; only
// AnonymousProvider accepts an empty credential.
type Provider interface {
	Authenticate(ctx context.Context, credential string) (identity.Identity, error)
}

// StaticToken is one configured static-token entry: a hashed token (SHA-256
// hex or Argon2id PHC format, verified the same way) mapped directly to the
// identity it authenticates as. There is no separate identity-store lookup
// indirection — the specification's Non-goals exclude a built-in identity
// provider with user CRUD; this is a fixed, config-declared token list, not
// one.
type StaticToken struct {
	// Hash is the stored token hash (SHA-256 hex or Argon2id PHC format).
	Hash string
	// Subject, DisplayName, Roles populate the resulting identity.
	Subject     string
	DisplayName string
	Roles       []string
	// ExpiresAt, if set, makes the token stop authenticating after this
	// time without needing a revocation list entry.
	ExpiresAt *time.Time
	Revoked   bool
}

// IsExpired reports whether the token's expiry, if set, has passed.
func (k *StaticToken) IsExpired() bool {
	if k.ExpiresAt == nil {
		return false
	}
	return time.Now().UTC().After(*k.ExpiresAt)
}
