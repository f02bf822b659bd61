package auth

import (
	"context"
	"errors"
)

// ErrInvalidToken is returned when a static token is unknown, expired, or revoked.
var ErrInvalidToken = errors.New("auth: invalid token")

// ErrUnknownHashType is returned when a stored hash has an unrecognized format.
var ErrUnknownHashType = errors.New("auth: unknown hash type")

// TokenStore looks up configured static tokens for the static-token
// provider. The in-memory implementation loads its contents once from
// config at startup; there is no runtime CRUD surface (§1 Non-goals: no
// built-in identity provider).
type TokenStore interface {
	// ListTokens returns every configured static token, for the
	// verify-by-iteration fallback that supports Argon2id hashes (which
	// cannot be looked up by a direct hash match the way SHA-256 can).
	ListTokens(ctx context.Context) ([]*StaticToken, error)
}
