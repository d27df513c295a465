package handlers

import (
	"context"
	"fmt"

	"github.com/expr-lang/expr"
)

// Eval evaluates an expression against an environment mapping.
//
//	function: expr/eval
//	expression: 'priority * 10'
//	env: {priority: 3}
type Eval struct{}

func (Eval) Apply(_ context.Context, _ string, args map[string]any) (any, error) {
	expression, err := stringArg(args, "expression")
	if err != nil {
		return nil, err
	}
	env := map[string]any{}
	if raw, ok := args["env"]; ok && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("argument %q must be a mapping, got %T", "env", raw)
		}
		env = m
	}
	out, err := expr.Eval(expression, env)
	if err != nil {
		return nil, fmt.Errorf("evaluating %q: %w", expression, err)
	}
	return out, nil
}
