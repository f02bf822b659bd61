// Package authz implements the authorization engine: role-glob vs
// resource-glob policy matching with a configurable default effect
// (§4.9).
package authz

// Effect is the outcome a matching policy assigns.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Policy is one ordered entry of the authorization configuration
// (§6 `authorization.policies[]`). Resources are patterns of the form
// `kind:name-glob` or the literal `*`.
type Policy struct {
	Effect    Effect
	Roles     []string
	Resources []string

	// Condition is an optional CEL boolean expression narrowing the match
	// beyond role/resource globs. Empty means the glob match alone decides.
	Condition string
}

// Config is the full authorization middleware configuration.
type Config struct {
	Enabled       bool
	DefaultEffect Effect
	Policies      []Policy
}

// Decision is the outcome of evaluating one request against the compiled
// policy list.
type Decision struct {
	Effect  Effect
	Matched bool   // false when no policy matched and the default effect applied
	Reason  string
}
