package authz

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/cel-go/cel"
)

// compiledPolicy is a Config.Policies entry with its optional condition
// pre-compiled once at construction time.
type compiledPolicy struct {
	Policy
	cond *condition
}

// Engine evaluates a compiled, ordered policy list against a caller's roles
// and the resource they are attempting to reach (§4.9). The first matching
// policy decides; no match falls back to Config.DefaultEffect.
type Engine struct {
	enabled       bool
	defaultEffect Effect
	policies      []compiledPolicy
}

// NewEngine compiles cfg into an Engine. A policy whose Condition fails to
// compile makes the whole configuration invalid — authorization
// misconfiguration must fail loudly at startup, not silently at request
// time (§7 KindInvalidRequest is for request-shaped errors, not this).
func NewEngine(cfg Config) (*Engine, error) {
	e := &Engine{enabled: cfg.Enabled, defaultEffect: cfg.DefaultEffect}
	if e.defaultEffect == "" {
		e.defaultEffect = EffectDeny
	}

	var env *cel.Env
	for _, p := range cfg.Policies {
		cp := compiledPolicy{Policy: p}
		if p.Condition != "" {
			if env == nil {
				var err error
				env, err = conditionEnv()
				if err != nil {
					return nil, fmt.Errorf("authz: build condition environment: %w", err)
				}
			}
			c, err := compileCondition(env, p.Condition)
			if err != nil {
				return nil, err
			}
			cp.cond = c
		}
		e.policies = append(e.policies, cp)
	}
	return e, nil
}

// Evaluate decides whether roles may reach resource ("kind:name", e.g.
// "tool:search_docs"). When the engine is disabled every request is
// allowed without consulting the policy list (§4.9 "authorization is
// optional; disabled by default").
func (e *Engine) Evaluate(ctx context.Context, roles []string, kind, name string) Decision {
	if !e.enabled {
		return Decision{Effect: EffectAllow, Matched: false, Reason: "authorization disabled"}
	}

	resource := kind + ":" + name
	for _, p := range e.policies {
		if !rolesMatch(p.Roles, roles) {
			continue
		}
		if !resourcesMatch(p.Resources, kind, name) {
			continue
		}
		if p.cond != nil {
			ok, err := p.cond.evaluate(ctx, roles, kind, name, resource)
			if err != nil || !ok {
				continue
			}
		}
		return Decision{Effect: p.Effect, Matched: true, Reason: "policy matched"}
	}

	return Decision{Effect: e.defaultEffect, Matched: false, Reason: "no policy matched, default effect applied"}
}

// rolesMatch reports whether any of the caller's roles satisfies any of the
// policy's role patterns. An empty pattern list matches any caller.
func rolesMatch(patterns, callerRoles []string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pat := range patterns {
		if pat == "*" {
			return true
		}
		for _, role := range callerRoles {
			if ok, _ := filepath.Match(pat, role); ok {
				return true
			}
		}
	}
	return false
}

// resourcesMatch reports whether kind:name satisfies any of the policy's
// resource patterns. A bare "*" matches everything; otherwise a pattern is
// "kind:name-glob" and both halves must match.
func resourcesMatch(patterns []string, kind, name string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, pat := range patterns {
		if pat == "*" {
			return true
		}
		wantKind, wantName, ok := strings.Cut(pat, ":")
		if !ok {
			continue
		}
		if wantKind != "*" && wantKind != kind {
			continue
		}
		if ok, _ := filepath.Match(wantName, name); ok {
			return true
		}
	}
	return false
}
