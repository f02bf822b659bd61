// Package audit defines the typed audit event record and the sink it is
// written through. This channel is distinct from the operator log
// (log/slog): nothing in this package touches slog, so a misconfigured log
// level can never suppress an audit record (§9 "never mix the two").
package audit

import (
	"strings"
	"time"
)

// Kind categorizes an audit event. The middleware chain emits Request and
// Response for every call that reaches it; the gateway's route-map build
// hook emits CapabilityDropped. AuthzDeny, Reload, Reconnect and
// BackendFailed are declared but no component emits them.
type Kind string

const (
	KindRequest           Kind = "request"
	KindResponse          Kind = "response"
	KindAuthzDeny         Kind = "authz_deny"
	KindCapabilityDropped Kind = "capability_dropped"
	KindReload            Kind = "reload"
	KindReconnect         Kind = "reconnect"
	KindBackendFailed     Kind = "backend_failed"
)

// Outcome is the terminal disposition of a request-shaped event.
type Outcome string

const (
	OutcomeAllow Outcome = "allow"
	OutcomeDeny  Outcome = "deny"
	OutcomeError Outcome = "error"
)

// Event is one audit record. Fields not meaningful to a given Kind are left
// zero, and zero-valued fields other than Timestamp and Kind are omitted
// from the JSON encoding.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      Kind      `json:"kind"`
	RequestID string    `json:"request_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`

	IdentitySubject string   `json:"identity_subject,omitempty"`
	IdentityRoles   []string `json:"identity_roles,omitempty"`

	Backend        string         `json:"backend,omitempty"`
	CapabilityKind string         `json:"capability_kind,omitempty"`
	Capability     string         `json:"capability,omitempty"`
	Arguments      map[string]any `json:"arguments,omitempty"`

	Outcome Outcome `json:"outcome,omitempty"`
	Reason  string  `json:"reason,omitempty"`

	LatencyMicros int64 `json:"latency_micros,omitempty"`

	// Detail carries kind-specific context that doesn't warrant its own
	// field: the dropped capability's winning/losing backend, a reload
	// report's added/removed/changed counts, and so on.
	Detail map[string]any `json:"detail,omitempty"`
}

// sensitiveKeywords lists substrings that mark an argument key as
// sensitive. Comparison is case-insensitive.
var sensitiveKeywords = []string{
	"password", "secret", "token", "api_key", "apikey",
	"credential", "auth", "private_key", "privatekey",
}

const redactedValue = "***REDACTED***"

// RedactArguments returns a copy of args with sensitive values masked, so
// the audit sink never persists a credential a tool call happened to carry
// as an argument.
func RedactArguments(args map[string]any) map[string]any {
	if len(args) == 0 {
		return args
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		if isSensitiveKey(k) {
			out[k] = redactedValue
		} else {
			out[k] = v
		}
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, kw := range sensitiveKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
