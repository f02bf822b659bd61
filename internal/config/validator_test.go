package config

import (
	"strings"
	"testing"
)

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_NoBackends(t *testing.T) {
	t.Parallel()

	cfg := &Config{}
	cfg.SetDefaults()

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for zero backends, got nil")
	}
	if !strings.Contains(err.Error(), "Backends") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "Backends")
	}
}

func TestValidate_DuplicateBackendName(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Backends = append(cfg.Backends, BackendConfig{Name: "docs", Transport: "stdio", Command: "/usr/bin/other"})
	cfg.SetDefaults()

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for duplicate backend name, got nil")
	}
	if !strings.Contains(err.Error(), "duplicate name") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "duplicate name")
	}
}

func TestValidate_UnknownTransport(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Backends[0].Transport = "websocket"
	cfg.SetDefaults()

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for unknown transport, got nil")
	}
}

func TestValidate_InvalidConflictStrategy(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Conflict.Strategy = "manual"
	cfg.SetDefaults()

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for invalid conflict strategy, got nil")
	}
	if !strings.Contains(err.Error(), "conflict.strategy") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "conflict.strategy")
	}
}

func TestValidate_StaticModeRequiresTokens(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.IncomingAuth.Mode = "static"
	cfg.SetDefaults()

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for static mode without tokens, got nil")
	}
	if !strings.Contains(err.Error(), "static_tokens") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "static_tokens")
	}
}

func TestValidate_StaticModeWithTokens(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.IncomingAuth.Mode = "static"
	cfg.IncomingAuth.StaticTokens = []StaticTokenConfig{
		{Hash: "sha256:abc", Subject: "svc-1", Roles: []string{"admin"}},
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_JWTModeRequiresJWKSURL(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.IncomingAuth.Mode = "jwt"
	cfg.SetDefaults()

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error for jwt mode without jwks_url, got nil")
	}
	if !strings.Contains(err.Error(), "jwks_url") {
		t.Errorf("error = %q, want to contain %q", err.Error(), "jwks_url")
	}
}

func TestValidate_JWTModeWithJWKSURL(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.IncomingAuth.Mode = "jwt"
	cfg.IncomingAuth.JWT.JWKSURL = "https://issuer.example.com/.well-known/jwks.json"
	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() unexpected error: %v", err)
	}
}

func TestValidate_MissingBackendName(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Backends[0].Name = ""
	cfg.SetDefaults()

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for missing backend name, got nil")
	}
}

func TestValidate_InvalidPolicyEffect(t *testing.T) {
	t.Parallel()

	cfg := minimalValidConfig()
	cfg.Authorization.Policies = []PolicyConfig{
		{Effect: "maybe", Resources: []string{"*"}},
	}
	cfg.SetDefaults()

	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate() expected error for invalid policy effect, got nil")
	}
}
