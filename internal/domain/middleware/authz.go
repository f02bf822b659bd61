package middleware

import (
	"context"

	"github.com/diaz3618/mcp-sentinel/internal/domain/authz"
	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
)

// Authz consults engine with the authenticated caller's roles and the
// capability being reached, denying the request before it reaches routing
// when the decision is authz.EffectDeny.
func Authz(engine *authz.Engine) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req Request) Response {
			decision := engine.Evaluate(ctx, req.Identity.Roles, string(req.CapabilityKind), req.CapabilityName)
			if decision.Effect == authz.EffectDeny {
				return Response{Err: backend.New(backend.KindForbidden, decision.Reason)}
			}
			return next(ctx, req)
		}
	}
}
