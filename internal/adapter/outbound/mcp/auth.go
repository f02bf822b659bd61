package mcp

import (
	"context"
	"net/http"

	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
	backendauth "github.com/diaz3618/mcp-sentinel/internal/domain/backend/auth"
)

// outgoingAuth adapts a backend.OutgoingAuth descriptor to the
// backend/auth.Strategy a network-transport session (SSE, streamable
// HTTP) applies to every outbound request (§4.1).
type outgoingAuth struct {
	strategy backendauth.Strategy
}

func newOutgoingAuth(a backend.OutgoingAuth) *outgoingAuth {
	switch a.Kind {
	case backend.OutgoingAuthStatic:
		return &outgoingAuth{strategy: backendauth.NewStatic(a.Headers)}
	case backend.OutgoingAuthClientCredentials:
		return &outgoingAuth{strategy: backendauth.NewClientCredentials(backendauth.ClientCredentialsConfig{
			TokenURL:     a.TokenURL,
			ClientID:     a.ClientID,
			ClientSecret: a.ClientSecret,
			Scopes:       a.Scopes,
		})}
	default:
		return &outgoingAuth{strategy: backendauth.None{}}
	}
}

// apply sets the headers this session's auth strategy requires.
func (a *outgoingAuth) apply(ctx context.Context, req *http.Request) error {
	headers, err := a.strategy.Headers(ctx)
	if err != nil {
		return err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return nil
}
