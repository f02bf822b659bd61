package authz

import (
	"context"
	"testing"
)

func TestEngine_DisabledAllowsEverything(t *testing.T) {
	e, err := NewEngine(Config{Enabled: false, DefaultEffect: EffectDeny})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	d := e.Evaluate(context.Background(), []string{"guest"}, "tool", "delete_everything")
	if d.Effect != EffectAllow || d.Matched {
		t.Errorf("Evaluate on disabled engine = %+v, want Allow/unmatched", d)
	}
}

func TestEngine_NoPolicyMatchFallsBackToDefault(t *testing.T) {
	e, err := NewEngine(Config{Enabled: true, DefaultEffect: EffectDeny})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	d := e.Evaluate(context.Background(), []string{"guest"}, "tool", "search")
	if d.Effect != EffectDeny || d.Matched {
		t.Errorf("Evaluate with no policies = %+v, want Deny/unmatched (default effect)", d)
	}
}

func TestEngine_DefaultsToDenyWhenUnset(t *testing.T) {
	e, err := NewEngine(Config{Enabled: true})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	d := e.Evaluate(context.Background(), []string{"guest"}, "tool", "search")
	if d.Effect != EffectDeny {
		t.Errorf("Evaluate with DefaultEffect unset = %+v, want Deny", d)
	}
}

func TestEngine_RoleAndResourceGlobMatch(t *testing.T) {
	e, err := NewEngine(Config{
		Enabled:       true,
		DefaultEffect: EffectDeny,
		Policies: []Policy{
			{Effect: EffectAllow, Roles: []string{"admin*"}, Resources: []string{"tool:search_*"}},
		},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	tests := []struct {
		name    string
		roles   []string
		kind    string
		resName string
		want    Effect
	}{
		{"role and resource both match", []string{"administrator"}, "tool", "search_docs", EffectAllow},
		{"role matches, resource does not", []string{"admin"}, "tool", "delete_docs", EffectDeny},
		{"resource matches, role does not", []string{"guest"}, "tool", "search_docs", EffectDeny},
		{"wrong kind", []string{"admin"}, "resource", "search_docs", EffectDeny},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := e.Evaluate(context.Background(), tt.roles, tt.kind, tt.resName)
			if d.Effect != tt.want {
				t.Errorf("Evaluate(%v, %s, %s) = %v, want %v", tt.roles, tt.kind, tt.resName, d.Effect, tt.want)
			}
		})
	}
}

func TestEngine_FirstMatchingPolicyWins(t *testing.T) {
	e, err := NewEngine(Config{
		Enabled:       true,
		DefaultEffect: EffectDeny,
		Policies: []Policy{
			{Effect: EffectDeny, Roles: []string{"*"}, Resources: []string{"tool:dangerous_*"}},
			{Effect: EffectAllow, Roles: []string{"*"}, Resources: []string{"*"}},
		},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if d := e.Evaluate(context.Background(), []string{"anyone"}, "tool", "dangerous_delete"); d.Effect != EffectDeny {
		t.Errorf("dangerous_delete = %v, want Deny (first matching policy)", d.Effect)
	}
	if d := e.Evaluate(context.Background(), []string{"anyone"}, "tool", "search"); d.Effect != EffectAllow {
		t.Errorf("search = %v, want Allow (falls through to second policy)", d.Effect)
	}
}

func TestEngine_ConditionNarrowsAMatchedPolicy(t *testing.T) {
	e, err := NewEngine(Config{
		Enabled:       true,
		DefaultEffect: EffectDeny,
		Policies: []Policy{
			{
				Effect:    EffectAllow,
				Roles:     []string{"*"},
				Resources: []string{"*"},
				Condition: `"admin" in roles`,
			},
		},
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if d := e.Evaluate(context.Background(), []string{"admin"}, "tool", "search"); d.Effect != EffectAllow || !d.Matched {
		t.Errorf("admin caller = %+v, want Allow/matched", d)
	}
	if d := e.Evaluate(context.Background(), []string{"guest"}, "tool", "search"); d.Effect != EffectDeny || d.Matched {
		t.Errorf("guest caller = %+v, want the condition to fail the match and fall back to default", d)
	}
}

func TestNewEngine_RejectsUncompilableCondition(t *testing.T) {
	_, err := NewEngine(Config{
		Enabled: true,
		Policies: []Policy{
			{Effect: EffectAllow, Condition: "this is not valid cel ((("},
		},
	})
	if err == nil {
		t.Fatal("NewEngine: expected an error compiling an invalid condition")
	}
}

func TestNewEngine_RejectsNonBoolCondition(t *testing.T) {
	_, err := NewEngine(Config{
		Enabled: true,
		Policies: []Policy{
			{Effect: EffectAllow, Condition: `"not a bool"`},
		},
	})
	if err == nil {
		t.Fatal("NewEngine: expected an error for a condition that doesn't evaluate to bool")
	}
}
