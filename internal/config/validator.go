package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/diaz3618/mcp-sentinel/internal/domain/capability"
)

// Validate validates the Config using struct tags and cross-field rules
// that a tag alone can't express (backend name uniqueness, conflict
// strategy validity, mode-dependent required fields).
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}

	if err := c.validateBackendNamesUnique(); err != nil {
		return err
	}
	if err := c.validateConflictStrategy(); err != nil {
		return err
	}
	if err := c.validateIncomingAuthMode(); err != nil {
		return err
	}
	return nil
}

// validateBackendNamesUnique rejects a config naming the same backend twice;
// the capability registry's catalog build assumes one descriptor per name.
func (c *Config) validateBackendNamesUnique() error {
	seen := make(map[string]struct{}, len(c.Backends))
	for _, b := range c.Backends {
		if _, dup := seen[b.Name]; dup {
			return fmt.Errorf("backends: duplicate name %q", b.Name)
		}
		seen[b.Name] = struct{}{}
	}
	return nil
}

// validateConflictStrategy ensures conflict.strategy names one of the four
// resolution strategies the capability registry implements.
func (c *Config) validateConflictStrategy() error {
	strategy := capability.Strategy(c.Conflict.Strategy)
	if !capability.ValidStrategy(strategy) {
		return fmt.Errorf("conflict.strategy: %q is not one of first-wins, prefix, priority, error", c.Conflict.Strategy)
	}
	return nil
}

// validateIncomingAuthMode ensures the fields a chosen incoming_auth.mode
// depends on are actually populated.
func (c *Config) validateIncomingAuthMode() error {
	switch c.IncomingAuth.Mode {
	case "static":
		if len(c.IncomingAuth.StaticTokens) == 0 {
			return errors.New("incoming_auth.static_tokens: required when mode is \"static\"")
		}
	case "jwt":
		if c.IncomingAuth.JWT.JWKSURL == "" {
			return errors.New("incoming_auth.jwt.jwks_url: required when mode is \"jwt\"")
		}
	}
	return nil
}

// formatValidationErrors converts validator.ValidationErrors to user-friendly messages.
func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		var messages []string
		for _, e := range validationErrors {
			messages = append(messages, formatSingleValidationError(e))
		}
		return errors.New(strings.Join(messages, "; "))
	}
	return err
}

// formatSingleValidationError creates a user-friendly message for a single validation error.
func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	tag := e.Tag()

	switch tag {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must have at least %s items", field, e.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "hostname_port":
		return fmt.Sprintf("%s must be a valid host:port", field)
	default:
		return fmt.Sprintf("%s failed validation: %s", field, tag)
	}
}
