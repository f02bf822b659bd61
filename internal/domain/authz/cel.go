package authz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
)

// condition wraps a compiled CEL program for a Policy's optional Condition
// expression. It is evaluated only after the policy's role and resource
// globs have already matched — a narrowing enrichment, not a replacement
// for the required glob match.
type condition struct {
	expr    string
	program cel.Program
}

const (
	maxConditionLength = 1024
	maxConditionDepth  = 50
	conditionCostLimit = 100_000
	conditionInterrupt = 100
	conditionTimeout   = 5 * time.Second
)

// conditionEnv is the CEL environment exposed to policy conditions: the
// caller's roles and the resource string being checked, split into kind and
// name for convenience.
func conditionEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("roles", cel.ListType(cel.StringType)),
		cel.Variable("resource", cel.StringType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("name", cel.StringType),
	)
}

// validateConditionNesting counts parenthesis/bracket/brace nesting depth in
// the raw expression text, rejecting pathologically nested conditions before
// they reach the compiler.
func validateConditionNesting(expr string) error {
	var depth, max int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > max {
				max = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if max > maxConditionDepth {
		return fmt.Errorf("authz: condition nesting too deep: %d levels (max %d)", max, maxConditionDepth)
	}
	return nil
}

func compileCondition(env *cel.Env, expr string) (*condition, error) {
	if expr == "" {
		return nil, errors.New("authz: condition is empty")
	}
	if len(expr) > maxConditionLength {
		return nil, fmt.Errorf("authz: condition too long: %d characters (max %d)", len(expr), maxConditionLength)
	}
	if err := validateConditionNesting(expr); err != nil {
		return nil, err
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("authz: condition compile: %w", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("authz: condition must evaluate to bool, got %s", ast.OutputType())
	}

	prg, err := env.Program(ast,
		cel.CostLimit(conditionCostLimit),
		cel.InterruptCheckFrequency(conditionInterrupt),
	)
	if err != nil {
		return nil, fmt.Errorf("authz: condition program: %w", err)
	}
	return &condition{expr: expr, program: prg}, nil
}

func (c *condition) evaluate(ctx context.Context, roles []string, kind, name, resource string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, conditionTimeout)
	defer cancel()

	vars := map[string]any{
		"roles":    roles,
		"resource": resource,
		"kind":     kind,
		"name":     name,
	}
	out, _, err := c.program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("authz: condition eval: %w", err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("authz: condition returned non-bool %T", out.Value())
	}
	return b, nil
}
