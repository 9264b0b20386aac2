package expressions

import "context"

// Engine evaluates an expression against the conversation's variable set.
// Two implementations evaluate condition nodes (Expr by default, CEL as an
// alternative); a third (GoJQ) narrows api responses before binding.
type Engine interface {
	Name() string
	Evaluate(ctx context.Context, expression string, vars map[string]any) (any, error)
}

// Truthy reduces an evaluation result to the boolean a condition branch
// needs: booleans pass through, nil and zero values are false, everything
// else is true.
func Truthy(val any) bool {
	switch v := val.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case int:
		return v != 0
	case int64:
		return v != 0
	case uint64:
		return v != 0
	case float64:
		return v != 0
	default:
		return true
	}
}
