// Package capability implements filtering, renaming, conflict resolution,
// and the published route map for aggregated backend capabilities (§4.3,
// §4.4, §4.5).
package capability

// Kind is the MCP capability category. The registry keeps one route map
// per kind (§3).
type Kind string

const (
	KindTool     Kind = "tool"
	KindResource Kind = "resource"
	KindPrompt   Kind = "prompt"
)

// Record is one exposed capability: post-filter, post-rename, post-conflict
// (§3 "Capability record").
type Record struct {
	// ExposedName is what upstream clients see.
	ExposedName string
	// OriginalName is what the backend itself knows the capability as.
	OriginalName string
	Kind         Kind
	Backend      string
	Description  string

	// Metadata carries the kind-specific payload: input schema (tool),
	// URI+MIME type (resource), argument list (prompt). Opaque to this
	// package; the routing terminal and the list_* handlers interpret it.
	Metadata map[string]any
}

// RouteEntry is the value stored in a route map for one exposed name.
type RouteEntry struct {
	Backend      string
	OriginalName string
	Kind         Kind
}
