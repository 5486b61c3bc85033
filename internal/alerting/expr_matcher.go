package alerting

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// ExprMatcher compiles and evaluates expr-lang expressions against alerts.
type ExprMatcher struct {
	expression string
	program    *vm.Program
}

// NewExprMatcher creates a new ExprMatcher for the given expression.
func NewExprMatcher(expression string) (*ExprMatcher, error) {
	m := &ExprMatcher{expression: expression}
	if err := m.compile(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *ExprMatcher) compile() error {
	// expr-lang has built-in operators: contains, startsWith, endsWith, matches.
	// Syntax: message contains "timeout"
	program, err := expr.Compile(m.expression,
		expr.Env(buildSampleEnv()),
		expr.AsBool(),
	)
	if err != nil {
		return fmt.Errorf("compile expression: %w", err)
	}

	m.program = program
	return nil
}

// Match evaluates the expression against an alert.
func (m *ExprMatcher) Match(alert *models.HealthAlert) (bool, error) {
	result, err := expr.Run(m.program, buildEnvFromAlert(alert))
	if err != nil {
		return false, fmt.Errorf("evaluate expression: %w", err)
	}

	matched, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return bool: got %T", result)
	}
	return matched, nil
}

// Expression returns the original expression string.
func (m *ExprMatcher) Expression() string {
	return m.expression
}

func buildSampleEnv() map[string]any {
	return map[string]any{
		"type":          "",
		"severity":      "",
		"severity_rank": 0,
		"service":       "",
		"message":       "",
		"value":         0.0,
		"metadata":      map[string]any{},
	}
}

func buildEnvFromAlert(alert *models.HealthAlert) map[string]any {
	value, _ := toFloat64(ExtractValue(alert))
	meta := alert.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	return map[string]any{
		"type":          string(alert.Type),
		"severity":      string(alert.Severity),
		"severity_rank": alert.Severity.Rank(),
		"service":       alert.Service,
		"message":       alert.Message,
		"value":         value,
		"metadata":      meta,
	}
}
