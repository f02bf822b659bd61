package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/diaz3618/mcp-sentinel/internal/adapter/outbound/audit"
	mcpadapter "github.com/diaz3618/mcp-sentinel/internal/adapter/outbound/mcp"
	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
	"github.com/diaz3618/mcp-sentinel/internal/gateway"
	"github.com/diaz3618/mcp-sentinel/internal/service/clientmanager"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testGateway(t *testing.T) *gateway.Gateway {
	t.Helper()

	logger := testLogger()
	manager := clientmanager.New(nil, mcpadapter.Factories(logger), clientmanager.Config{}, logger)

	registry := capability.NewRegistry(logger)
	if err := registry.Rebuild(func() (capability.BuildResult, error) {
		return capability.BuildResult{
			Routes: map[capability.Kind]map[string]capability.RouteEntry{
				capability.KindTool: {},
			},
			Catalog: []capability.Record{
				{ExposedName: "docs_search", OriginalName: "search", Kind: capability.KindTool, Backend: "docs"},
			},
		}, nil
	}); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	sink, err := audit.NewFileSink(audit.FileSinkConfig{Dir: t.TempDir()}, logger)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	return &gateway.Gateway{Manager: manager, Registry: registry, AuditSink: sink}
}

func TestGetStatus(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	w := httptest.NewRecorder()
	NewRouter(testGateway(t)).ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Backends == nil {
		t.Error("Backends is nil, want empty slice")
	}
}

func TestGetCapabilities(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/capabilities?kind=tool", nil)
	w := httptest.NewRecorder()
	NewRouter(testGateway(t)).ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp capabilitiesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Capabilities) != 1 || resp.Capabilities[0].ExposedName != "docs_search" {
		t.Errorf("Capabilities = %+v, want one record named docs_search", resp.Capabilities)
	}
}

func TestGetCapabilities_FiltersByBackend(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/capabilities?backend=unknown", nil)
	w := httptest.NewRecorder()
	NewRouter(testGateway(t)).ServeHTTP(w, r)

	var resp capabilitiesResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Capabilities) != 0 {
		t.Errorf("Capabilities = %+v, want none for unknown backend", resp.Capabilities)
	}
}

func TestGetEvents_InvalidSince(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/events?since=not-a-time", nil)
	w := httptest.NewRecorder()
	NewRouter(testGateway(t)).ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetEvents_InvalidMax(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/events?max=-1", nil)
	w := httptest.NewRecorder()
	NewRouter(testGateway(t)).ServeHTTP(w, r)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetEvents_Default(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	w := httptest.NewRecorder()
	NewRouter(testGateway(t)).ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestPostReconnect_UnknownBackend(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/api/v1/backends/ghost/reconnect", nil)
	w := httptest.NewRecorder()
	NewRouter(testGateway(t)).ServeHTTP(w, r)

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	var resp reconnectResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Success {
		t.Error("Success = true, want false for unmanaged backend")
	}
}

func TestPostReconnect_KnownBackend(t *testing.T) {
	t.Parallel()

	logger := testLogger()
	descriptors := []*backend.Descriptor{
		{
			Name:      "docs",
			Transport: backend.TransportStdio,
			Connect:   backend.Connect{Command: "/bin/true"},
			Timeouts:  backend.Timeouts{Init: 50 * time.Millisecond},
		},
	}
	manager := clientmanager.New(descriptors, mcpadapter.Factories(logger), clientmanager.Config{MaxRetries: 0}, logger)

	registry := capability.NewRegistry(logger)
	sink, err := audit.NewFileSink(audit.FileSinkConfig{Dir: t.TempDir()}, logger)
	if err != nil {
		t.Fatalf("NewFileSink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	gw := &gateway.Gateway{Manager: manager, Registry: registry, AuditSink: sink}

	r := httptest.NewRequest(http.MethodPost, "/api/v1/backends/docs/reconnect", nil)
	w := httptest.NewRecorder()
	NewRouter(gw).ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var resp reconnectResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success {
		t.Error("Success = false, want true for managed backend")
	}
}
