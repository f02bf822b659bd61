// Package middleware implements the per-request pipeline every aggregated
// call passes through before it reaches the routing terminal: recovery,
// incoming authentication, authorization, telemetry, and audit (§4.7).
// Each stage wraps the next exactly as the host repository's HTTP
// middleware wraps http.Handler — an onion, outermost first — generalized
// from a net/http chain to this module's own request/response shapes so
// it can run over any client-facing transport without depending on one.
package middleware

import (
	"context"
	"encoding/json"

	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
	"github.com/diaz3618/mcp-sentinel/internal/domain/identity"
)

// Request is one inbound call after transport decoding, before routing.
type Request struct {
	RequestID      string
	SessionID      string
	Identity       identity.Identity
	Method         string // "tools/call", "resources/read", "prompts/get", ...
	CapabilityKind capability.Kind
	CapabilityName string
	Arguments      json.RawMessage
}

// Response is what the routing terminal (or an earlier stage, on
// rejection) produces for a Request.
type Response struct {
	Payload json.RawMessage
	Err     error
}

// Handler processes one Request and produces a Response. The routing
// terminal is the innermost Handler; every middleware stage is a
// HandlerFunc decorator around it.
type Handler func(ctx context.Context, req Request) Response

// Middleware wraps a Handler to produce a new Handler that runs before (and
// optionally after) it.
type Middleware func(next Handler) Handler

// Chain composes stages outermost-first: Chain(a, b, c)(terminal) runs a,
// then b, then c, then terminal, then unwinds back through c, b, a. A nil
// stage in the slice is skipped. The gateway passes all five stages
// unconditionally; telemetry and audit have no switch that leaves them out.
func Chain(stages ...Middleware) Middleware {
	return func(final Handler) Handler {
		h := final
		for i := len(stages) - 1; i >= 0; i-- {
			if stages[i] == nil {
				continue
			}
			h = stages[i](h)
		}
		return h
	}
}
