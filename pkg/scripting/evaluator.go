// Package scripting provides expression evaluation for configurable rules
// such as candidate eligibility.
package scripting

import (
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"
)

// Evaluator evaluates JavaScript expressions against a context map.
// Expressions are wrapped in ${...}; a plain string is returned as-is.
type Evaluator struct {
	mu sync.Mutex
	vm *goja.Runtime
}

// NewEvaluator creates a new Evaluator
func NewEvaluator() *Evaluator {
	return &Evaluator{vm: goja.New()}
}

// IsExpression reports whether the string is a ${...} expression
func IsExpression(s string) bool {
	return strings.HasPrefix(s, "${") && strings.HasSuffix(s, "}")
}

// Evaluate processes an expression string with the given context
func (e *Evaluator) Evaluate(expression string, context map[string]interface{}) (interface{}, error) {
	if !IsExpression(expression) {
		return expression, nil
	}

	expr := expression[2 : len(expression)-1]

	e.mu.Lock()
	defer e.mu.Unlock()

	for key, value := range context {
		if err := e.vm.Set(key, value); err != nil {
			return nil, fmt.Errorf("failed to bind %q: %w", key, err)
		}
	}

	result, err := e.vm.RunString(expr)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate expression '%s': %w", expr, err)
	}

	return result.Export(), nil
}

// EvaluateBool evaluates an expression and coerces the result to a boolean
func (e *Evaluator) EvaluateBool(expression string, context map[string]interface{}) (bool, error) {
	result, err := e.Evaluate(expression, context)
	if err != nil {
		return false, err
	}

	switch v := result.(type) {
	case bool:
		return v, nil
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expression '%s' did not evaluate to a boolean, got %T", expression, result)
	}
}
