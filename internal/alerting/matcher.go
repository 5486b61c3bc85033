package alerting

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

// floatEpsilon is the tolerance for float64 equality comparison.
const floatEpsilon = 1e-9

// ExtractValue returns the scalar a rule condition is compared against:
// true for service_down, the latency for performance_degraded, the usage
// percentage for quota_exceeded, the error rate for high_error_rate and the
// "value" metadata entry for custom alerts.
func ExtractValue(alert *models.HealthAlert) any {
	switch alert.Type {
	case models.AlertTypeServiceDown:
		return true
	case models.AlertTypePerformanceDegraded:
		return alert.Metadata[models.MetaLatencyMs]
	case models.AlertTypeQuotaExceeded:
		return alert.Metadata[models.MetaUsagePercentage]
	case models.AlertTypeHighErrorRate:
		return alert.Metadata[models.MetaErrorRate]
	default:
		return alert.Metadata[models.MetaValue]
	}
}

// MatchRule reports whether alert satisfies rule. The sustain duration is
// not considered here; see Router.
func MatchRule(rule *AlertRule, alert *models.HealthAlert) bool {
	if rule.Condition.Type != alert.Type {
		return false
	}
	if !rule.AppliesToService(alert.Service) {
		return false
	}
	if !alert.Severity.AtLeast(rule.Severity) {
		return false
	}
	if !compareValues(ExtractValue(alert), rule.Condition.Value, rule.Condition.Operator) {
		return false
	}
	if rule.Condition.expr != nil {
		ok, err := rule.Condition.expr.Match(alert)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// compareValues compares the extracted alert value with the condition value.
func compareValues(alertValue, condValue any, op Operator) bool {
	if alertValue == nil || condValue == nil {
		return false
	}

	if op == OpContains {
		return strings.Contains(fmt.Sprintf("%v", alertValue), fmt.Sprintf("%v", condValue))
	}

	// Boolean values only support equality
	if b, ok := alertValue.(bool); ok {
		want, ok := toBool(condValue)
		return ok && op == OpEq && b == want
	}

	alertNum, alertOK := toFloat64(alertValue)
	condNum, condOK := toFloat64(condValue)
	if alertOK && condOK {
		switch op {
		case OpEq:
			diff := alertNum - condNum
			if diff < 0 {
				diff = -diff
			}
			return diff < floatEpsilon
		case OpGt:
			return alertNum > condNum
		case OpGte:
			return alertNum >= condNum
		case OpLt:
			return alertNum < condNum
		case OpLte:
			return alertNum <= condNum
		}
		return false
	}

	// Fallback to string comparison
	strAlert := fmt.Sprintf("%v", alertValue)
	strCond := fmt.Sprintf("%v", condValue)
	switch op {
	case OpEq:
		return strAlert == strCond
	case OpGt:
		return strAlert > strCond
	case OpGte:
		return strAlert >= strCond
	case OpLt:
		return strAlert < strCond
	case OpLte:
		return strAlert <= strCond
	}
	return false
}

func toBool(v any) (bool, bool) {
	switch val := v.(type) {
	case bool:
		return val, true
	case string:
		b, err := strconv.ParseBool(val)
		return b, err == nil
	}
	return false, false
}

// toFloat64 converts an interface to float64 if possible.
func toFloat64(v any) (float64, bool) {
	switch val := v.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case string:
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f, true
		}
		return 0, false
	default:
		return 0, false
	}
}
