package capability

import "path/filepath"

// Filter evaluates allow/deny glob patterns for one capability kind of one
// backend (§4.3). Deny always wins over allow.
type Filter struct {
	Allow []string
	Deny  []string
}

// Active reports whether any pattern is configured.
func (f Filter) Active() bool {
	return len(f.Allow) > 0 || len(f.Deny) > 0
}

// Allowed reports whether name passes the filter:
//  1. If deny is non-empty and name matches any deny glob → false.
//  2. Else if allow is non-empty, name must match at least one glob.
//  3. Else (no filters configured) → true.
func (f Filter) Allowed(name string) bool {
	for _, pat := range f.Deny {
		if globMatch(pat, name) {
			return false
		}
	}
	if len(f.Allow) == 0 {
		return true
	}
	for _, pat := range f.Allow {
		if globMatch(pat, name) {
			return true
		}
	}
	return false
}

// globMatch wraps filepath.Match, treating a malformed pattern as a
// non-match rather than propagating the error — a config-time validator
// is responsible for rejecting bad globs before they reach here.
func globMatch(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	ok, err := filepath.Match(pattern, name)
	return err == nil && ok
}

// ApplyFilter reduces a raw per-backend capability list to the subset that
// passes f. Order is preserved.
func ApplyFilter(raw []Record, f Filter) []Record {
	if !f.Active() {
		return raw
	}
	out := make([]Record, 0, len(raw))
	for _, r := range raw {
		if f.Allowed(r.OriginalName) {
			out = append(out, r)
		}
	}
	return out
}
