// Package session tracks upstream MCP client connections across the calls
// of a single conversation: a session ID, its inactivity TTL, and a route
// map snapshot frozen at creation time, which later changes to the live
// route map do not alter (§4.12).
package session

import (
	"time"

	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
	"github.com/diaz3618/mcp-sentinel/internal/domain/identity"
)

// Session is an upstream MCP client's connection to the gateway.
type Session struct {
	// ID is the transport-supplied session identifier.
	ID string
	// Identity is the caller that first authenticated this session.
	Identity identity.Identity
	// Snapshot is the route map published at session creation; it is not
	// refreshed when the live registry changes. No list_tools handler in
	// this module reads it. Routing a tool call always consults the live
	// registry.
	Snapshot *capability.Snapshot
	// CreatedAt is when the session was first recorded.
	CreatedAt time.Time
	// LastActivity is updated on every call made on this session.
	LastActivity time.Time
}

// IsExpired reports whether the session has been idle longer than ttl,
// measured from now.
func (s *Session) IsExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastActivity) > ttl
}

// Touch advances LastActivity to now.
func (s *Session) Touch(now time.Time) {
	s.LastActivity = now
}
