// Package identity holds the authenticated-principal record shared by the
// incoming-auth providers, the authorization engine, and the audit trail.
package identity

// Identity is the immutable record produced by an incoming-auth provider.
// The anonymous identity is a distinguished constant with no roles; it is
// used when the incoming-auth mode is "anonymous" or when a provider
// explicitly grants unauthenticated access.
type Identity struct {
	// Subject is the principal identifier: the static token's configured
	// name, or the JWT "sub" claim.
	Subject string
	// Email is optional, populated from a JWT "email" claim when present.
	Email string
	// DisplayName is optional, populated from a JWT "name" claim when present.
	DisplayName string
	// Roles is the set of role names attached to this identity. Order is
	// not significant; membership is tested with HasRole/HasAnyRole.
	Roles []string
	// Provider names the incoming-auth provider that produced this
	// identity: "anonymous", "static", or "jwt".
	Provider string
	// Claims carries the raw claim bag for providers that decode one
	// (JWT/OIDC); nil for anonymous and static.
	Claims map[string]any
}

// Anonymous is the distinguished identity used when no credential is
// presented and the incoming-auth mode allows it.
var Anonymous = Identity{Subject: "anonymous", Provider: "anonymous"}

// IsAnonymous reports whether this identity is the anonymous principal.
func (i Identity) IsAnonymous() bool {
	return i.Provider == "anonymous"
}

// HasRole reports whether the identity carries the exact role name.
func (i Identity) HasRole(role string) bool {
	for _, r := range i.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the identity carries at least one of roles.
func (i Identity) HasAnyRole(roles []string) bool {
	for _, want := range roles {
		if i.HasRole(want) {
			return true
		}
	}
	return false
}
