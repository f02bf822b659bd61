package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/alexedwards/argon2id"

	"github.com/diaz3618/mcp-sentinel/internal/domain/identity"
)

// StaticProvider validates a raw token against a fixed, config-declared
// token list and returns the identity it authenticates as.
type StaticProvider struct {
	store TokenStore
}

// NewStaticProvider creates a StaticProvider backed by store.
func NewStaticProvider(store TokenStore) *StaticProvider {
	return &StaticProvider{store: store}
}

// Authenticate verifies rawToken against every configured token (Argon2id
// hashes cannot be matched by a direct hash comparison, so this is always
// an iteration, not a map lookup — the token list is expected to be small).
func (p *StaticProvider) Authenticate(ctx context.Context, rawToken string) (identity.Identity, error) {
	tokens, err := p.store.ListTokens(ctx)
	if err != nil {
		return identity.Identity{}, ErrInvalidToken
	}

	for _, candidate := range tokens {
		match, verifyErr := VerifyKey(rawToken, candidate.Hash)
		if verifyErr != nil || !match {
			continue
		}
		if candidate.Revoked || candidate.IsExpired() {
			return identity.Identity{}, ErrInvalidToken
		}
		return identity.Identity{
			Subject:     candidate.Subject,
			DisplayName: candidate.DisplayName,
			Roles:       candidate.Roles,
			Provider:    "static",
		}, nil
	}

	return identity.Identity{}, ErrInvalidToken
}

// HashKey returns the SHA-256 hex hash of the raw token.
func HashKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// argon2idParams defines OWASP minimum parameters for Argon2id.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024, // 47 MiB (OWASP minimum: 46 MiB)
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKeyArgon2id returns an Argon2id hash of the raw token in PHC format.
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// DetectHashType identifies the hash algorithm used for a stored hash.
func DetectHashType(storedHash string) string {
	if strings.HasPrefix(storedHash, "$argon2id$") {
		return "argon2id"
	}
	if strings.HasPrefix(storedHash, "sha256:") {
		return "sha256"
	}
	if len(storedHash) == 64 && isHexString(storedHash) {
		return "sha256"
	}
	return "unknown"
}

func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// VerifyKey verifies a raw token against a stored hash. Supports Argon2id
// (PHC format), SHA-256 prefixed, and legacy bare SHA-256 hex.
func VerifyKey(rawKey, storedHash string) (bool, error) {
	switch DetectHashType(storedHash) {
	case "argon2id":
		return safeArgon2idCompare(rawKey, storedHash)

	case "sha256":
		expectedHash := strings.TrimPrefix(storedHash, "sha256:")
		computedHash := HashKey(rawKey)
		match := subtle.ConstantTimeCompare([]byte(computedHash), []byte(expectedHash)) == 1
		return match, nil

	default:
		return false, ErrUnknownHashType
	}
}

// safeArgon2idCompare wraps argon2id.ComparePasswordAndHash with panic
// recovery: the underlying library panics on malformed parameters (e.g.
// t=0 rounds), and VerifyKey must never panic on attacker-controlled input.
func safeArgon2idCompare(rawKey, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}
