package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
)

// protocolVersion is the MCP protocol version this gateway negotiates
// with every backend during Initialize.
const protocolVersion = "2025-06-18"

// clientInfo identifies this gateway to a backend during the handshake.
var clientInfo = map[string]string{"name": "mcp-sentinel", "version": "0.1.0"}

func initializeParams() map[string]any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      clientInfo,
	}
}

type serverInfoResult struct {
	ServerInfo struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

func parseServerInfo(result json.RawMessage) (backend.ServerInfo, error) {
	var parsed serverInfoResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		return backend.ServerInfo{}, fmt.Errorf("parse initialize result: %w", err)
	}
	return backend.ServerInfo{Name: parsed.ServerInfo.Name, Version: parsed.ServerInfo.Version}, nil
}

// listMethod maps a capability kind to its MCP list wire method.
func listMethod(kind capability.Kind) (string, error) {
	switch kind {
	case capability.KindTool:
		return "tools/list", nil
	case capability.KindResource:
		return "resources/list", nil
	case capability.KindPrompt:
		return "prompts/list", nil
	default:
		return "", fmt.Errorf("mcp: unknown capability kind %q", kind)
	}
}

type rawTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type rawResource struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

type rawPrompt struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Arguments   []map[string]any `json:"arguments"`
}

// parseCapabilityList converts a list_* result into this module's own
// RawCapability shape, one converter per kind since each has a distinct
// wire shape and a distinct notion of "name" (a resource's is its URI).
func parseCapabilityList(kind capability.Kind, result json.RawMessage) ([]backend.RawCapability, error) {
	switch kind {
	case capability.KindTool:
		var parsed struct {
			Tools []rawTool `json:"tools"`
		}
		if err := json.Unmarshal(result, &parsed); err != nil {
			return nil, fmt.Errorf("parse tools/list result: %w", err)
		}
		out := make([]backend.RawCapability, len(parsed.Tools))
		for i, t := range parsed.Tools {
			out[i] = backend.RawCapability{
				Name: t.Name, Description: t.Description,
				Metadata: map[string]any{"input_schema": t.InputSchema},
			}
		}
		return out, nil

	case capability.KindResource:
		var parsed struct {
			Resources []rawResource `json:"resources"`
		}
		if err := json.Unmarshal(result, &parsed); err != nil {
			return nil, fmt.Errorf("parse resources/list result: %w", err)
		}
		out := make([]backend.RawCapability, len(parsed.Resources))
		for i, r := range parsed.Resources {
			name := r.URI
			if name == "" {
				name = r.Name
			}
			out[i] = backend.RawCapability{
				Name: name, Description: r.Description,
				Metadata: map[string]any{"uri": r.URI, "mime_type": r.MimeType},
			}
		}
		return out, nil

	case capability.KindPrompt:
		var parsed struct {
			Prompts []rawPrompt `json:"prompts"`
		}
		if err := json.Unmarshal(result, &parsed); err != nil {
			return nil, fmt.Errorf("parse prompts/list result: %w", err)
		}
		out := make([]backend.RawCapability, len(parsed.Prompts))
		for i, p := range parsed.Prompts {
			out[i] = backend.RawCapability{
				Name: p.Name, Description: p.Description,
				Metadata: map[string]any{"arguments": p.Arguments},
			}
		}
		return out, nil

	default:
		return nil, fmt.Errorf("mcp: unknown capability kind %q", kind)
	}
}

// callSpec is the wire method and JSON-RPC params for one dispatched
// call, built from the routing terminal's (method, name, args) triple.
func callSpec(method, name string, args json.RawMessage) (wireMethod string, params any, err error) {
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	switch method {
	case "call_tool":
		return "tools/call", map[string]any{"name": name, "arguments": json.RawMessage(args)}, nil
	case "read_resource":
		return "resources/read", map[string]any{"uri": name}, nil
	case "get_prompt":
		return "prompts/get", map[string]any{"name": name, "arguments": json.RawMessage(args)}, nil
	default:
		return "", nil, fmt.Errorf("mcp: unknown call method %q", method)
	}
}

// classifyErr turns a transport-level failure (as opposed to a JSON-RPC
// error envelope, which the correlator already surfaces as a plain
// error) into the standard backend.Error taxonomy (§7).
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	var be *backend.Error
	if errors.As(err, &be) {
		return be
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return backend.Wrap(backend.KindTimeout, "backend call timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return backend.Wrap(backend.KindCancelled, "backend call cancelled", err)
	}
	return backend.Wrap(backend.KindTransportFailure, err.Error(), err)
}
