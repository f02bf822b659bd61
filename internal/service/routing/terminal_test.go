package routing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"

	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
	"github.com/diaz3618/mcp-sentinel/internal/domain/middleware"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type stubSession struct {
	result     backend.CallResult
	err        error
	calledWith struct {
		method, name string
	}
}

func (s *stubSession) Initialize(ctx context.Context) (backend.ServerInfo, error) { return backend.ServerInfo{}, nil }
func (s *stubSession) ListCapabilities(ctx context.Context, kind capability.Kind) ([]backend.RawCapability, error) {
	return nil, nil
}
func (s *stubSession) Call(ctx context.Context, method, name string, args json.RawMessage) (backend.CallResult, error) {
	s.calledWith.method = method
	s.calledWith.name = name
	return s.result, s.err
}
func (s *stubSession) Ping(ctx context.Context) error { return nil }
func (s *stubSession) Close() error                   { return nil }

type stubSessionProvider struct {
	sessions map[string]backend.Session
}

func (p *stubSessionProvider) Session(name string) backend.Session {
	return p.sessions[name]
}

func registryWithRoute(kind capability.Kind, exposed, original, backendName string) *capability.Registry {
	reg := capability.NewRegistry(testLogger())
	_ = reg.Rebuild(func() (capability.BuildResult, error) {
		return capability.BuildResult{
			Routes: map[capability.Kind]map[string]capability.RouteEntry{
				kind: {exposed: {Backend: backendName, OriginalName: original, Kind: kind}},
			},
			Catalog: nil,
		}, nil
	})
	return reg
}

func TestTerminal_UnsupportedMethod(t *testing.T) {
	t.Parallel()

	term := New(capability.NewRegistry(testLogger()), &stubSessionProvider{})
	resp := term.Handle(context.Background(), middleware.Request{Method: "prompts/list"})

	var be *backend.Error
	if !errors.As(resp.Err, &be) || be.Kind != backend.KindInvalidRequest {
		t.Fatalf("Err = %v, want KindInvalidRequest", resp.Err)
	}
}

func TestTerminal_CapabilityNotFound(t *testing.T) {
	t.Parallel()

	term := New(capability.NewRegistry(testLogger()), &stubSessionProvider{})
	resp := term.Handle(context.Background(), middleware.Request{
		Method:         "tools/call",
		CapabilityName: "missing_tool",
	})

	var be *backend.Error
	if !errors.As(resp.Err, &be) || be.Kind != backend.KindCapabilityNotFound {
		t.Fatalf("Err = %v, want KindCapabilityNotFound", resp.Err)
	}
}

func TestTerminal_BackendUnavailable(t *testing.T) {
	t.Parallel()

	reg := registryWithRoute(capability.KindTool, "search", "search_impl", "alpha")
	term := New(reg, &stubSessionProvider{sessions: map[string]backend.Session{}})

	resp := term.Handle(context.Background(), middleware.Request{
		Method:         "tools/call",
		CapabilityName: "search",
	})

	var be *backend.Error
	if !errors.As(resp.Err, &be) || be.Kind != backend.KindBackendUnavailable || be.Backend != "alpha" {
		t.Fatalf("Err = %v, want KindBackendUnavailable for alpha", resp.Err)
	}
}

func TestTerminal_DispatchesUnderOriginalName(t *testing.T) {
	t.Parallel()

	reg := registryWithRoute(capability.KindTool, "search", "search_impl", "alpha")
	sess := &stubSession{result: backend.CallResult{Payload: json.RawMessage(`{"ok":true}`)}}
	term := New(reg, &stubSessionProvider{sessions: map[string]backend.Session{"alpha": sess}})

	resp := term.Handle(context.Background(), middleware.Request{
		Method:         "tools/call",
		CapabilityName: "search",
		Arguments:      json.RawMessage(`{"q":"x"}`),
	})

	if resp.Err != nil {
		t.Fatalf("Err = %v, want nil", resp.Err)
	}
	if sess.calledWith.method != "call_tool" || sess.calledWith.name != "search_impl" {
		t.Fatalf("Call() got (%q, %q), want (call_tool, search_impl)", sess.calledWith.method, sess.calledWith.name)
	}
	if string(resp.Payload) != `{"ok":true}` {
		t.Fatalf("Payload = %s, want passthrough of session result", resp.Payload)
	}
}

func TestTerminal_ClassifiesUnstructuredBackendError(t *testing.T) {
	t.Parallel()

	reg := registryWithRoute(capability.KindPrompt, "greeting", "greet_impl", "alpha")
	sess := &stubSession{err: errors.New("connection reset")}
	term := New(reg, &stubSessionProvider{sessions: map[string]backend.Session{"alpha": sess}})

	resp := term.Handle(context.Background(), middleware.Request{
		Method:         "prompts/get",
		CapabilityName: "greeting",
	})

	var be *backend.Error
	if !errors.As(resp.Err, &be) || be.Kind != backend.KindBackendError || be.Backend != "alpha" {
		t.Fatalf("Err = %v, want KindBackendError for alpha", resp.Err)
	}
}

func TestTerminal_PreservesUpstreamErrorKindAndFillsBackend(t *testing.T) {
	t.Parallel()

	reg := registryWithRoute(capability.KindResource, "doc", "doc_impl", "alpha")
	sess := &stubSession{err: backend.New(backend.KindTimeout, "deadline exceeded")}
	term := New(reg, &stubSessionProvider{sessions: map[string]backend.Session{"alpha": sess}})

	resp := term.Handle(context.Background(), middleware.Request{
		Method:         "resources/read",
		CapabilityName: "doc",
	})

	var be *backend.Error
	if !errors.As(resp.Err, &be) || be.Kind != backend.KindTimeout || be.Backend != "alpha" {
		t.Fatalf("Err = %v, want KindTimeout for alpha", resp.Err)
	}
}
