package backend

import (
	"context"
	"encoding/json"

	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
)

// ServerInfo is the handshake result returned by Initialize.
type ServerInfo struct {
	Name    string
	Version string
}

// RawCapability is one entry of the raw, pre-filter catalog a backend
// returns from ListCapabilities.
type RawCapability struct {
	Name        string
	Description string
	Metadata    map[string]any
}

// CallResult is the successful outcome of Call.
type CallResult struct {
	Payload json.RawMessage
}

// Session is the five-operation contract every backend transport
// implements (§4.1). One Session exists per live backend connection;
// the client manager owns its lifetime.
type Session interface {
	// Initialize performs the protocol handshake. Must complete within
	// the descriptor's init timeout or the caller fails the attempt.
	Initialize(ctx context.Context) (ServerInfo, error)

	// ListCapabilities fetches the raw catalog for one kind. Must
	// complete within the descriptor's capability-fetch timeout.
	ListCapabilities(ctx context.Context, kind capability.Kind) ([]RawCapability, error)

	// Call dispatches a single JSON-RPC request and awaits the
	// correlated response, honoring ctx's deadline. method is one of
	// "call_tool", "read_resource", "get_prompt"; name is the
	// backend's original (pre-rename) capability name.
	Call(ctx context.Context, method, name string, args json.RawMessage) (CallResult, error)

	// Ping is a cheap liveness call used by the health monitor.
	Ping(ctx context.Context) error

	// Close releases underlying I/O resources. Idempotent.
	Close() error
}

// Factory constructs a Session for one descriptor. One Factory
// implementation exists per Transport value.
type Factory func(d *Descriptor) (Session, error)
