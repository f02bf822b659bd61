// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"

	"github.com/diaz3618/mcp-sentinel/internal/domain/auth"
)

// TokenStore implements auth.TokenStore with an in-memory slice, populated
// once at config-load time from the deployment's declared token list.
// There is no Add/Remove surface at runtime: the specification's Non-goals
// exclude a built-in identity provider, so tokens are config-managed only.
type TokenStore struct {
	mu     sync.RWMutex
	tokens []*auth.StaticToken
}

// NewTokenStore creates a TokenStore seeded with tokens.
func NewTokenStore(tokens []*auth.StaticToken) *TokenStore {
	return &TokenStore{tokens: tokens}
}

func (s *TokenStore) ListTokens(_ context.Context) ([]*auth.StaticToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*auth.StaticToken, len(s.tokens))
	copy(out, s.tokens)
	return out, nil
}

var _ auth.TokenStore = (*TokenStore)(nil)
