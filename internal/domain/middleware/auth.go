package middleware

import (
	"context"
	"strings"

	"github.com/diaz3618/mcp-sentinel/internal/domain/auth"
	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
)

// Auth resolves req's credential to an identity.Identity via provider and
// stashes it on req for downstream stages. The provider is consulted for
// every request, including one with no credential: AnonymousProvider
// accepts an empty credential, the other providers reject it, and a
// rejection fails the request as unauthenticated (§4.7).
func Auth(provider auth.Provider) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req Request) Response {
			cred := bearerFromContext(ctx)
			id, err := provider.Authenticate(ctx, cred)
			if err != nil {
				return Response{Err: backend.New(backend.KindUnauthenticated, "invalid credential")}
			}
			req.Identity = id
			return next(ctx, req)
		}
	}
}

type credentialContextKey struct{}

// WithBearer stores the raw bearer credential extracted by the transport
// adapter so the Auth stage can read it without the transport depending on
// this package's internals.
func WithBearer(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, credentialContextKey{}, token)
}

func bearerFromContext(ctx context.Context) string {
	v, _ := ctx.Value(credentialContextKey{}).(string)
	return strings.TrimSpace(v)
}
