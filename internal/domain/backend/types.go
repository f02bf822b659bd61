// Package backend holds the declarative descriptor, runtime status, and
// session contract for one aggregated MCP backend.
package backend

import (
	"fmt"
	"regexp"
	"time"

	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
)

// Transport identifies which of the three backend transports a descriptor
// uses.
type Transport string

const (
	TransportStdio           Transport = "stdio"
	TransportSSE             Transport = "sse"
	TransportStreamableHTTP  Transport = "streamable-http"
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DefaultGroup is the label assigned to a descriptor with no explicit group.
const DefaultGroup = "default"

// Timeouts carries per-backend overrides for the three timeout knobs the
// session contract honors. A zero value means "use the deployment default".
type Timeouts struct {
	Init      time.Duration
	CapFetch  time.Duration
	StartupDelay time.Duration
}

// DefaultInitTimeout, DefaultCapFetchTimeout and DefaultStartupDelay are the
// deployment-wide fallbacks applied when a descriptor leaves a Timeouts
// field unset.
const (
	DefaultInitTimeout      = 15 * time.Second
	DefaultCapFetchTimeout  = 10 * time.Second
	DefaultStartupDelay     = 5 * time.Second
)

// Resolve fills zero fields with the package defaults.
func (t Timeouts) Resolve() Timeouts {
	if t.Init == 0 {
		t.Init = DefaultInitTimeout
	}
	if t.CapFetch == 0 {
		t.CapFetch = DefaultCapFetchTimeout
	}
	if t.StartupDelay == 0 {
		t.StartupDelay = DefaultStartupDelay
	}
	return t
}

// Connect carries transport-specific connection parameters. Exactly the
// fields relevant to Transport are populated; the others are left zero.
type Connect struct {
	// stdio
	Command string
	Args    []string
	Env     map[string]string

	// sse / streamable-http
	URL     string
	Headers map[string]string
}

// FilterRules is the per-kind allow/deny glob configuration (§4.3).
type FilterRules struct {
	Allow []string
	Deny  []string
}

// ToolOverride is one entry of a descriptor's tool_overrides map (§4.3).
type ToolOverride struct {
	Name        string
	Description string
}

// OutgoingAuthKind selects the strategy used to compute headers sent to a
// remote backend (§4.1).
type OutgoingAuthKind string

const (
	OutgoingAuthNone             OutgoingAuthKind = ""
	OutgoingAuthStatic           OutgoingAuthKind = "static"
	OutgoingAuthClientCredentials OutgoingAuthKind = "client-credentials"
)

// OutgoingAuth is the descriptor's outgoing-auth configuration. Only the
// fields relevant to Kind are populated.
type OutgoingAuth struct {
	Kind OutgoingAuthKind

	// static
	Headers map[string]string

	// client-credentials
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

// Descriptor is the immutable, declarative record a backend is created
// from. It is replaced wholesale on reload, never mutated in place.
type Descriptor struct {
	Name      string
	Transport Transport
	Connect   Connect
	Auth      OutgoingAuth
	Group     string
	Filters   map[capability.Kind]FilterRules
	Overrides map[string]ToolOverride
	Timeouts  Timeouts

	// ContentHash is a stable digest of the fields above, used by the
	// reload coordinator to classify a name as "changed" vs "unchanged".
	ContentHash uint64
}

// Validate checks the descriptor's static invariants (§3).
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("backend descriptor: name is required")
	}
	if !namePattern.MatchString(d.Name) {
		return fmt.Errorf("backend descriptor %q: name must match [A-Za-z0-9_-]+", d.Name)
	}
	switch d.Transport {
	case TransportStdio:
		if d.Connect.Command == "" {
			return fmt.Errorf("backend descriptor %q: stdio transport requires connect.command", d.Name)
		}
	case TransportSSE, TransportStreamableHTTP:
		if d.Connect.URL == "" {
			return fmt.Errorf("backend descriptor %q: %s transport requires connect.url", d.Name, d.Transport)
		}
	default:
		return fmt.Errorf("backend descriptor %q: unknown transport %q", d.Name, d.Transport)
	}
	switch d.Auth.Kind {
	case OutgoingAuthNone, OutgoingAuthStatic:
	case OutgoingAuthClientCredentials:
		if d.Auth.TokenURL == "" || d.Auth.ClientID == "" {
			return fmt.Errorf("backend descriptor %q: client-credentials auth requires token_url and client_id", d.Name)
		}
	default:
		return fmt.Errorf("backend descriptor %q: unknown outgoing auth kind %q", d.Name, d.Auth.Kind)
	}
	return nil
}

// GroupOrDefault returns the descriptor's group, or DefaultGroup if unset.
func (d *Descriptor) GroupOrDefault() string {
	if d.Group == "" {
		return DefaultGroup
	}
	return d.Group
}

// Phase is a backend's current lifecycle state (§3 Lifecycles).
type Phase string

const (
	PhasePending      Phase = "Pending"
	PhaseInitializing Phase = "Initializing"
	PhaseReady        Phase = "Ready"
	PhaseDegraded     Phase = "Degraded"
	PhaseFailed       Phase = "Failed"
	PhaseShuttingDown Phase = "ShuttingDown"
)

// Routable reports whether a backend in this phase should appear in the
// route map (Invariant 2).
func (p Phase) Routable() bool {
	return p == PhaseReady || p == PhaseDegraded
}

// Condition is one append-only status entry explaining a phase or health
// event (Invariant 6). On phase change, the latest condition of a matching
// Type is updated in place rather than appended again.
type Condition struct {
	Type      string
	Status    bool
	Reason    string
	Message   string
	Timestamp time.Time
}

// CapabilityCounts snapshots how many capabilities of each kind a backend
// currently exposes.
type CapabilityCounts struct {
	Tools     int
	Resources int
	Prompts   int
}

// StatusRecord is the mutable, observable snapshot for one backend (§3).
// It is owned exclusively by the client manager slot that wrote it; callers
// read a copy via Status/Snapshot.
type StatusRecord struct {
	Name         string
	Phase        Phase
	Conditions   []Condition
	LastLatency  time.Duration
	Capabilities CapabilityCounts
	LastError    string
}

// Clone returns a deep-enough copy safe to hand to a caller outside the
// client manager's lock.
func (s StatusRecord) Clone() StatusRecord {
	out := s
	out.Conditions = append([]Condition(nil), s.Conditions...)
	return out
}

// SetCondition appends a new condition, or updates the latest condition of
// the same Type in place if one already exists (Invariant 6).
func (s *StatusRecord) SetCondition(c Condition) {
	for i := len(s.Conditions) - 1; i >= 0; i-- {
		if s.Conditions[i].Type == c.Type {
			s.Conditions[i] = c
			return
		}
	}
	s.Conditions = append(s.Conditions, c)
}
