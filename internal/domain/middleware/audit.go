package middleware

import (
	"context"
	"encoding/json"
	"time"

	"github.com/diaz3618/mcp-sentinel/internal/domain/audit"
	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
)

// Audit emits a request and a response audit.Event for every call that
// reaches this stage, to sink. Arguments are redacted before they ever
// leave this stage (§9 "never persist a raw credential").
func Audit(sink audit.Sink) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req Request) Response {
			var args map[string]any
			_ = json.Unmarshal(req.Arguments, &args)

			sink.Append(ctx, audit.Event{
				Timestamp:       time.Now(),
				Kind:            audit.KindRequest,
				RequestID:       req.RequestID,
				SessionID:       req.SessionID,
				IdentitySubject: req.Identity.Subject,
				IdentityRoles:   req.Identity.Roles,
				CapabilityKind:  string(req.CapabilityKind),
				Capability:      req.CapabilityName,
				Arguments:       audit.RedactArguments(args),
			})

			start := time.Now()
			resp := next(ctx, req)
			elapsed := time.Since(start)

			outcome := audit.OutcomeAllow
			reason := ""
			backendName := ""
			if resp.Err != nil {
				outcome = audit.OutcomeError
				reason = resp.Err.Error()
				if be, ok := resp.Err.(*backend.Error); ok {
					backendName = be.Backend
					if be.Kind == backend.KindForbidden {
						outcome = audit.OutcomeDeny
					}
				}
			}

			sink.Append(ctx, audit.Event{
				Timestamp:       time.Now(),
				Kind:            audit.KindResponse,
				RequestID:       req.RequestID,
				SessionID:       req.SessionID,
				IdentitySubject: req.Identity.Subject,
				IdentityRoles:   req.Identity.Roles,
				Backend:         backendName,
				CapabilityKind:  string(req.CapabilityKind),
				Capability:      req.CapabilityName,
				Outcome:         outcome,
				Reason:          reason,
				LatencyMicros:   elapsed.Microseconds(),
			})

			return resp
		}
	}
}
