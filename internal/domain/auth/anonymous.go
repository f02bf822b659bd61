package auth

import (
	"context"

	"github.com/diaz3618/mcp-sentinel/internal/domain/identity"
)

// AnonymousProvider authenticates every credential (including an empty one)
// as identity.Anonymous. It is the provider used when incoming_auth is
// disabled.
type AnonymousProvider struct{}

func (AnonymousProvider) Authenticate(_ context.Context, _ string) (identity.Identity, error) {
	return identity.Anonymous, nil
}
