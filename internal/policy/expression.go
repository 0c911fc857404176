// Package policy implements the expression evaluator (component I):
// compiling and running ordered deny/accept boolean expressions over
// the dotted-path metric namespace produced by internal/metrics.
package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types/ref"

	"aprz.dev/aprz/internal/aprzerr"
)

// Expression is a named, compiled boolean predicate. NewExpression
// compiles it once and only returns it on success; reuse the returned
// Expression for every evaluation.
type Expression struct {
	Name        string
	Description string
	Source      string

	env     *cel.Env
	program cel.Program
}

// describe returns the description if present, else falls back to the
// raw source text — matching the original's "name: description-or-source"
// reason formatting.
func (e *Expression) describe() string {
	if e.Description != "" {
		return e.Description
	}
	return e.Source
}

func (e *Expression) reason() string {
	return fmt.Sprintf("%s: %s", e.Name, e.describe())
}

// NewExpression compiles source against env and returns a ready-to-run
// Expression. env must declare every identifier the expression may
// reference (see BuildEnv).
func NewExpression(env *cel.Env, name, description, source string) (*Expression, error) {
	ast, iss := env.Compile(source)
	if iss != nil && iss.Err() != nil {
		return nil, fmt.Errorf("compiling expression %q: %w: %w", name, aprzerr.ExpressionError, iss.Err())
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("building program for expression %q: %w: %w", name, aprzerr.ExpressionError, err)
	}

	return &Expression{Name: name, Description: description, Source: source, env: env, program: prg}, nil
}

func (e *Expression) evaluate(vars map[string]any) (bool, error) {
	out, _, err := e.program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("evaluating expression %q: %w: %w", e.Name, aprzerr.ExpressionError, err)
	}

	b, ok := out.Value().(bool)
	if !ok {
		if v, isRef := out.(ref.Val); isRef {
			return false, fmt.Errorf("expression %q did not return a boolean, got %v: %w", e.Name, v.Type(), aprzerr.ExpressionError)
		}
		return false, fmt.Errorf("expression %q did not return a boolean: %w", e.Name, aprzerr.ExpressionError)
	}
	return b, nil
}
