// Package routing implements the innermost stage of the middleware chain
// (§4.8): resolving a decorated request's capability to a backend and
// dispatching the call, generalizing the host repository's UpstreamRouter
// from a single tool-name lookup against one shared cache to the three
// capability kinds this module aggregates, resolved against the
// capability registry's published route map.
package routing

import (
	"context"
	"fmt"

	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
	"github.com/diaz3618/mcp-sentinel/internal/domain/middleware"
)

// SessionProvider resolves a backend name to its live session, or nil if
// the backend isn't currently routable. clientmanager.Manager satisfies
// this; routing depends only on the narrow slice it needs.
type SessionProvider interface {
	Session(name string) backend.Session
}

// Terminal is the innermost middleware.Handler: capability lookup plus
// backend dispatch (§4.8).
type Terminal struct {
	registry *capability.Registry
	sessions SessionProvider
}

// New builds a routing Terminal over registry's published route map and
// sessions' live backend connections.
func New(registry *capability.Registry, sessions SessionProvider) *Terminal {
	return &Terminal{registry: registry, sessions: sessions}
}

// wireMethod maps a Request.Method to the backend.Session.Call method
// string and the capability.Kind it operates on.
func wireMethod(method string) (string, capability.Kind, bool) {
	switch method {
	case "tools/call":
		return "call_tool", capability.KindTool, true
	case "resources/read":
		return "read_resource", capability.KindResource, true
	case "prompts/get":
		return "get_prompt", capability.KindPrompt, true
	default:
		return "", "", false
	}
}

// Handle resolves req's capability to a backend, dispatches the call
// under the original (pre-rename) name, and classifies any backend
// failure into the standard error taxonomy (§4.8, §7).
func (t *Terminal) Handle(ctx context.Context, req middleware.Request) middleware.Response {
	wireMethodName, kind, ok := wireMethod(req.Method)
	if !ok {
		return middleware.Response{Err: backend.New(backend.KindInvalidRequest,
			fmt.Sprintf("unsupported method %q", req.Method))}
	}

	route, ok := t.registry.Resolve(kind, req.CapabilityName)
	if !ok {
		return middleware.Response{Err: backend.New(backend.KindCapabilityNotFound,
			fmt.Sprintf("%s %q is not registered", kind, req.CapabilityName))}
	}

	session := t.sessions.Session(route.Backend)
	if session == nil {
		return middleware.Response{Err: &backend.Error{
			Kind:    backend.KindBackendUnavailable,
			Backend: route.Backend,
			Message: fmt.Sprintf("backend %q is not currently routable", route.Backend),
		}}
	}

	result, err := session.Call(ctx, wireMethodName, route.OriginalName, req.Arguments)
	if err != nil {
		return middleware.Response{Err: attributeBackend(err, route.Backend)}
	}
	return middleware.Response{Payload: result.Payload}
}

// attributeBackend ensures a failure surfaced by a session carries the
// backend name, so downstream stages (audit, telemetry) can label it
// without re-resolving the route. Sessions that already return a
// *backend.Error are passed through with Backend filled in if unset;
// anything else is classified as a backend_error.
func attributeBackend(err error, backendName string) error {
	if be, ok := err.(*backend.Error); ok {
		if be.Backend == "" {
			be.Backend = backendName
		}
		return be
	}
	return &backend.Error{Kind: backend.KindBackendError, Backend: backendName, Message: err.Error(), Cause: err}
}
