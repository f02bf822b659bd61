// Package config provides the declarative configuration schema for the
// aggregation gateway: the backend descriptor set, incoming/outgoing auth,
// authorization policy, audit, health, and reload knobs that feed the
// gateway facade at startup.
package config

import (
	"fmt"
	"time"

	"github.com/diaz3618/mcp-sentinel/internal/domain/auth"
	"github.com/diaz3618/mcp-sentinel/internal/domain/authz"
	"github.com/diaz3618/mcp-sentinel/internal/domain/backend"
	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
	"github.com/diaz3618/mcp-sentinel/internal/service/clientmanager"
	"github.com/diaz3618/mcp-sentinel/internal/service/health"
	"github.com/diaz3618/mcp-sentinel/internal/service/reload"
	"github.com/diaz3618/mcp-sentinel/internal/service/sessiontracker"
)

// Config is the top-level gateway configuration.
type Config struct {
	// Server configures the management HTTP listener (§6).
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// Backends declares every aggregated MCP backend (§3).
	Backends []BackendConfig `yaml:"backends" mapstructure:"backends" validate:"required,min=1,dive"`

	// Conflict configures how the capability registry resolves naming
	// collisions across backends (§4.4).
	Conflict ConflictConfig `yaml:"conflict" mapstructure:"conflict"`

	// IncomingAuth configures how the gateway authenticates inbound
	// callers (§4.7, §6 incoming_auth).
	IncomingAuth IncomingAuthConfig `yaml:"incoming_auth" mapstructure:"incoming_auth"`

	// Authorization configures the authz middleware stage (§4.9).
	Authorization AuthorizationConfig `yaml:"authorization" mapstructure:"authorization"`

	// Audit configures the audit sink (§9).
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// Health configures the background health monitor (§4.6).
	Health HealthConfig `yaml:"health" mapstructure:"health"`

	// Reload configures the reload coordinator's deadline (§4.11).
	Reload ReloadConfig `yaml:"reload" mapstructure:"reload"`

	// Session configures the upstream session tracker's TTL (§4.12).
	Session SessionConfig `yaml:"session" mapstructure:"session"`

	// ClientManager configures backend reconnect backoff (§4.2).
	ClientManager ClientManagerConfig `yaml:"client_manager" mapstructure:"client_manager"`

	// DevMode relaxes defaults for local development (anonymous auth,
	// allow-all authorization) the way a single-operator deployment needs.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the management HTTP listener (§6).
type ServerConfig struct {
	// HTTPAddr is the address the management API listens on.
	// Defaults to "127.0.0.1:8080".
	HTTPAddr string `yaml:"http_addr" mapstructure:"http_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum operator log level.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// BackendConfig is the YAML-facing form of backend.Descriptor.
type BackendConfig struct {
	Name      string                       `yaml:"name" mapstructure:"name" validate:"required"`
	Transport string                       `yaml:"transport" mapstructure:"transport" validate:"required,oneof=stdio sse streamable-http"`
	Group     string                       `yaml:"group" mapstructure:"group"`
	Command   string                       `yaml:"command" mapstructure:"command"`
	Args      []string                     `yaml:"args" mapstructure:"args"`
	Env       map[string]string            `yaml:"env" mapstructure:"env"`
	URL       string                       `yaml:"url" mapstructure:"url" validate:"omitempty,url"`
	Headers   map[string]string            `yaml:"headers" mapstructure:"headers"`
	Auth      OutgoingAuthConfig           `yaml:"auth" mapstructure:"auth"`
	Filters   map[string]FilterRulesConfig `yaml:"filters" mapstructure:"filters"`
	Overrides map[string]ToolOverrideConfig `yaml:"tool_overrides" mapstructure:"tool_overrides"`
	Timeouts  TimeoutsConfig               `yaml:"timeouts" mapstructure:"timeouts"`
}

// OutgoingAuthConfig is the YAML-facing form of backend.OutgoingAuth.
type OutgoingAuthConfig struct {
	Kind         string            `yaml:"kind" mapstructure:"kind" validate:"omitempty,oneof=static client-credentials"`
	Headers      map[string]string `yaml:"headers" mapstructure:"headers"`
	TokenURL     string            `yaml:"token_url" mapstructure:"token_url"`
	ClientID     string            `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string            `yaml:"client_secret" mapstructure:"client_secret"`
	Scopes       []string          `yaml:"scopes" mapstructure:"scopes"`
}

// FilterRulesConfig is the YAML-facing form of backend.FilterRules.
type FilterRulesConfig struct {
	Allow []string `yaml:"allow" mapstructure:"allow"`
	Deny  []string `yaml:"deny" mapstructure:"deny"`
}

// ToolOverrideConfig is the YAML-facing form of backend.ToolOverride.
type ToolOverrideConfig struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Description string `yaml:"description" mapstructure:"description"`
}

// TimeoutsConfig is the YAML-facing form of backend.Timeouts.
type TimeoutsConfig struct {
	Init         string `yaml:"init" mapstructure:"init" validate:"omitempty"`
	CapFetch     string `yaml:"cap_fetch" mapstructure:"cap_fetch" validate:"omitempty"`
	StartupDelay string `yaml:"startup_delay" mapstructure:"startup_delay" validate:"omitempty"`
}

// ConflictConfig is the YAML-facing form of capability.ConflictConfig.
type ConflictConfig struct {
	Strategy      string   `yaml:"strategy" mapstructure:"strategy" validate:"omitempty,oneof=first-wins prefix priority error"`
	Separator     string   `yaml:"separator" mapstructure:"separator"`
	PriorityOrder []string `yaml:"priority_order" mapstructure:"priority_order"`
}

// IncomingAuthConfig configures how the gateway authenticates inbound
// callers (§4.7, §6 incoming_auth).
type IncomingAuthConfig struct {
	// Mode selects the incoming-auth provider: "anonymous", "static", or
	// "jwt". Defaults to "anonymous".
	Mode string `yaml:"mode" mapstructure:"mode" validate:"omitempty,oneof=anonymous static jwt"`

	// StaticTokens configures the static-token provider. Only used when
	// Mode is "static".
	StaticTokens []StaticTokenConfig `yaml:"static_tokens" mapstructure:"static_tokens" validate:"omitempty,dive"`

	// JWT configures the JWT provider. Only used when Mode is "jwt".
	JWT JWTConfig `yaml:"jwt" mapstructure:"jwt"`
}

// StaticTokenConfig is the YAML-facing form of auth.StaticToken.
type StaticTokenConfig struct {
	Hash        string   `yaml:"hash" mapstructure:"hash" validate:"required"`
	Subject     string   `yaml:"subject" mapstructure:"subject" validate:"required"`
	DisplayName string   `yaml:"display_name" mapstructure:"display_name"`
	Roles       []string `yaml:"roles" mapstructure:"roles" validate:"required,min=1"`
	ExpiresAt   string   `yaml:"expires_at" mapstructure:"expires_at"`
}

// JWTConfig is the YAML-facing form of auth.JWTProviderConfig.
type JWTConfig struct {
	Issuer     string `yaml:"issuer" mapstructure:"issuer"`
	Audience   string `yaml:"audience" mapstructure:"audience"`
	JWKSURL    string `yaml:"jwks_url" mapstructure:"jwks_url" validate:"omitempty,url"`
	RolesClaim string `yaml:"roles_claim" mapstructure:"roles_claim"`
}

// AuthorizationConfig is the YAML-facing form of authz.Config.
type AuthorizationConfig struct {
	Enabled       bool           `yaml:"enabled" mapstructure:"enabled"`
	DefaultEffect string         `yaml:"default_effect" mapstructure:"default_effect" validate:"omitempty,oneof=allow deny"`
	Policies      []PolicyConfig `yaml:"policies" mapstructure:"policies" validate:"omitempty,dive"`
}

// PolicyConfig is the YAML-facing form of authz.Policy.
type PolicyConfig struct {
	Effect    string   `yaml:"effect" mapstructure:"effect" validate:"required,oneof=allow deny"`
	Roles     []string `yaml:"roles" mapstructure:"roles"`
	Resources []string `yaml:"resources" mapstructure:"resources" validate:"required,min=1"`
	Condition string   `yaml:"condition" mapstructure:"condition"`
}

// AuditConfig configures the file-based audit sink.
type AuditConfig struct {
	// Dir is the directory audit files are written to.
	Dir string `yaml:"dir" mapstructure:"dir" validate:"required"`
	// RetentionDays is how many days of audit files to keep. Defaults to 7.
	RetentionDays int `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`
	// MaxFileSizeMB is the rotation threshold per audit file. Defaults to 100.
	MaxFileSizeMB int `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"omitempty,min=1"`
	// BufferSize is the in-memory tail buffer size for events_tail (§6). Defaults to 1000.
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size" validate:"omitempty,min=1"`
}

// HealthConfig is the YAML-facing form of health.Config.
type HealthConfig struct {
	Interval          string `yaml:"interval" mapstructure:"interval" validate:"omitempty"`
	DegradedThreshold int    `yaml:"degraded_threshold" mapstructure:"degraded_threshold" validate:"omitempty,min=1"`
	FailedThreshold   int    `yaml:"failed_threshold" mapstructure:"failed_threshold" validate:"omitempty,min=1"`
	LatencyThreshold  string `yaml:"latency_threshold" mapstructure:"latency_threshold" validate:"omitempty"`
	SlowThreshold     int    `yaml:"slow_threshold" mapstructure:"slow_threshold" validate:"omitempty,min=1"`
	ProbeTimeout      string `yaml:"probe_timeout" mapstructure:"probe_timeout" validate:"omitempty"`
}

// ReloadConfig is the YAML-facing form of reload.Config.
type ReloadConfig struct {
	Deadline           string `yaml:"deadline" mapstructure:"deadline" validate:"omitempty"`
	SettlePollInterval string `yaml:"settle_poll_interval" mapstructure:"settle_poll_interval" validate:"omitempty"`
}

// SessionConfig is the YAML-facing form of sessiontracker.Config.
type SessionConfig struct {
	TTL           string `yaml:"ttl" mapstructure:"ttl" validate:"omitempty"`
	SweepInterval string `yaml:"sweep_interval" mapstructure:"sweep_interval" validate:"omitempty"`
}

// ClientManagerConfig is the YAML-facing form of clientmanager.Config.
type ClientManagerConfig struct {
	BackoffBase  string `yaml:"backoff_base" mapstructure:"backoff_base" validate:"omitempty"`
	BackoffCap   string `yaml:"backoff_cap" mapstructure:"backoff_cap" validate:"omitempty"`
	MaxRetries   int    `yaml:"max_retries" mapstructure:"max_retries" validate:"omitempty,min=1"`
	StopDeadline string `yaml:"stop_deadline" mapstructure:"stop_deadline" validate:"omitempty"`
}

// SetDevDefaults applies permissive defaults so the gateway runs with a
// minimal config: anonymous auth, allow-all authorization.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.IncomingAuth.Mode == "" {
		c.IncomingAuth.Mode = "anonymous"
	}
	if !c.Authorization.Enabled && len(c.Authorization.Policies) == 0 {
		c.Authorization.DefaultEffect = string(authz.EffectAllow)
	}
	if c.Audit.Dir == "" {
		c.Audit.Dir = "./audit"
	}
}

// SetDefaults applies sensible default values to the configuration.
func (c *Config) SetDefaults() {
	if c.Server.HTTPAddr == "" {
		c.Server.HTTPAddr = "127.0.0.1:8080"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Conflict.Strategy == "" {
		c.Conflict.Strategy = string(capability.StrategyFirstWins)
	}
	if c.IncomingAuth.Mode == "" {
		c.IncomingAuth.Mode = "anonymous"
	}
	if c.Authorization.DefaultEffect == "" {
		c.Authorization.DefaultEffect = string(authz.EffectDeny)
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 7
	}
	if c.Audit.MaxFileSizeMB == 0 {
		c.Audit.MaxFileSizeMB = 100
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = 1000
	}
}

// ToDescriptors converts every BackendConfig to a validated
// backend.Descriptor, computing each one's content hash.
func (c *Config) ToDescriptors() ([]*backend.Descriptor, error) {
	out := make([]*backend.Descriptor, 0, len(c.Backends))
	for _, b := range c.Backends {
		d, err := b.toDescriptor()
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (b BackendConfig) toDescriptor() (*backend.Descriptor, error) {
	timeouts, err := b.Timeouts.resolve()
	if err != nil {
		return nil, fmt.Errorf("backend %q: %w", b.Name, err)
	}

	auth, err := b.Auth.toDomain()
	if err != nil {
		return nil, fmt.Errorf("backend %q: %w", b.Name, err)
	}

	filters := make(map[capability.Kind]backend.FilterRules, len(b.Filters))
	for kind, rules := range b.Filters {
		filters[capability.Kind(kind)] = backend.FilterRules{Allow: rules.Allow, Deny: rules.Deny}
	}

	overrides := make(map[string]backend.ToolOverride, len(b.Overrides))
	for name, ov := range b.Overrides {
		overrides[name] = backend.ToolOverride{Name: ov.Name, Description: ov.Description}
	}

	d := &backend.Descriptor{
		Name:      b.Name,
		Transport: backend.Transport(b.Transport),
		Connect: backend.Connect{
			Command: b.Command,
			Args:    b.Args,
			Env:     b.Env,
			URL:     b.URL,
			Headers: b.Headers,
		},
		Auth:      auth,
		Group:     b.Group,
		Filters:   filters,
		Overrides: overrides,
		Timeouts:  timeouts,
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	d.ContentHash = d.ComputeContentHash()
	return d, nil
}

func (a OutgoingAuthConfig) toDomain() (backend.OutgoingAuth, error) {
	switch a.Kind {
	case "", "none":
		return backend.OutgoingAuth{}, nil
	case "static":
		return backend.OutgoingAuth{Kind: backend.OutgoingAuthStatic, Headers: a.Headers}, nil
	case "client-credentials":
		return backend.OutgoingAuth{
			Kind:         backend.OutgoingAuthClientCredentials,
			TokenURL:     a.TokenURL,
			ClientID:     a.ClientID,
			ClientSecret: a.ClientSecret,
			Scopes:       a.Scopes,
		}, nil
	default:
		return backend.OutgoingAuth{}, fmt.Errorf("unknown auth kind %q", a.Kind)
	}
}

func (t TimeoutsConfig) resolve() (backend.Timeouts, error) {
	init, err := parseDurationOrZero(t.Init)
	if err != nil {
		return backend.Timeouts{}, fmt.Errorf("timeouts.init: %w", err)
	}
	capFetch, err := parseDurationOrZero(t.CapFetch)
	if err != nil {
		return backend.Timeouts{}, fmt.Errorf("timeouts.cap_fetch: %w", err)
	}
	startup, err := parseDurationOrZero(t.StartupDelay)
	if err != nil {
		return backend.Timeouts{}, fmt.Errorf("timeouts.startup_delay: %w", err)
	}
	return backend.Timeouts{Init: init, CapFetch: capFetch, StartupDelay: startup}, nil
}

// ConflictDomain converts ConflictConfig to capability.ConflictConfig.
func (c ConflictConfig) ConflictDomain() capability.ConflictConfig {
	return capability.ConflictConfig{
		Strategy:      capability.Strategy(c.Strategy),
		Separator:     c.Separator,
		PriorityOrder: c.PriorityOrder,
	}
}

// StaticTokensDomain converts the configured static tokens to
// auth.StaticToken, parsing each entry's optional RFC 3339 expires_at.
func (c IncomingAuthConfig) StaticTokensDomain() ([]auth.StaticToken, error) {
	out := make([]auth.StaticToken, 0, len(c.StaticTokens))
	for _, t := range c.StaticTokens {
		tok := auth.StaticToken{
			Hash:        t.Hash,
			Subject:     t.Subject,
			DisplayName: t.DisplayName,
			Roles:       t.Roles,
		}
		if t.ExpiresAt != "" {
			parsed, err := time.Parse(time.RFC3339, t.ExpiresAt)
			if err != nil {
				return nil, fmt.Errorf("static_tokens[%s].expires_at: %w", t.Subject, err)
			}
			tok.ExpiresAt = &parsed
		}
		out = append(out, tok)
	}
	return out, nil
}

// ClientManagerDomain converts ClientManagerConfig to clientmanager.Config,
// parsing its duration fields and falling back to the package defaults on
// empty ones.
func (c ClientManagerConfig) ClientManagerDomain() clientmanager.Config {
	base, _ := parseDurationOrZero(c.BackoffBase)
	cap_, _ := parseDurationOrZero(c.BackoffCap)
	stop, _ := parseDurationOrZero(c.StopDeadline)
	return clientmanager.Config{
		BackoffBase:  base,
		BackoffCap:   cap_,
		MaxRetries:   c.MaxRetries,
		StopDeadline: stop,
	}
}

// HealthDomain converts HealthConfig to health.Config.
func (c HealthConfig) HealthDomain() health.Config {
	interval, _ := parseDurationOrZero(c.Interval)
	latency, _ := parseDurationOrZero(c.LatencyThreshold)
	probe, _ := parseDurationOrZero(c.ProbeTimeout)
	return health.Config{
		Interval:          interval,
		DegradedThreshold: c.DegradedThreshold,
		FailedThreshold:   c.FailedThreshold,
		LatencyThreshold:  latency,
		SlowThreshold:     c.SlowThreshold,
		ProbeTimeout:      probe,
	}
}

// ReloadDomain converts ReloadConfig to reload.Config.
func (c ReloadConfig) ReloadDomain() reload.Config {
	deadline, _ := parseDurationOrZero(c.Deadline)
	settle, _ := parseDurationOrZero(c.SettlePollInterval)
	return reload.Config{Deadline: deadline, SettlePollInterval: settle}
}

// SessionDomain converts SessionConfig to sessiontracker.Config.
func (c SessionConfig) SessionDomain() sessiontracker.Config {
	ttl, _ := parseDurationOrZero(c.TTL)
	sweep, _ := parseDurationOrZero(c.SweepInterval)
	return sessiontracker.Config{TTL: ttl, SweepInterval: sweep}
}

// AuthorizationDomain converts AuthorizationConfig to authz.Config.
func (c AuthorizationConfig) AuthorizationDomain() authz.Config {
	policies := make([]authz.Policy, 0, len(c.Policies))
	for _, p := range c.Policies {
		policies = append(policies, authz.Policy{
			Effect:    authz.Effect(p.Effect),
			Roles:     p.Roles,
			Resources: p.Resources,
			Condition: p.Condition,
		})
	}
	return authz.Config{
		Enabled:       c.Enabled,
		DefaultEffect: authz.Effect(c.DefaultEffect),
		Policies:      policies,
	}
}
