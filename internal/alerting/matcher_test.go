package alerting

import (
	"testing"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

func TestExtractValue(t *testing.T) {
	tests := []struct {
		alertType models.AlertType
		meta      map[string]any
		want      any
	}{
		{models.AlertTypeServiceDown, nil, true},
		{models.AlertTypePerformanceDegraded, map[string]any{models.MetaLatencyMs: 6000.0}, 6000.0},
		{models.AlertTypeQuotaExceeded, map[string]any{models.MetaUsagePercentage: 95.0}, 95.0},
		{models.AlertTypeHighErrorRate, map[string]any{models.MetaErrorRate: 12.5}, 12.5},
		{models.AlertTypeCustom, map[string]any{models.MetaValue: "degraded"}, "degraded"},
	}

	for _, tt := range tests {
		t.Run(string(tt.alertType), func(t *testing.T) {
			a := &models.HealthAlert{Type: tt.alertType, Metadata: tt.meta}
			if got := ExtractValue(a); got != tt.want {
				t.Errorf("ExtractValue() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchRule(t *testing.T) {
	latency := func(ms float64, sev models.Severity, service string) *models.HealthAlert {
		return newAlert("a", models.AlertTypePerformanceDegraded, sev, service, testEpoch,
			map[string]any{models.MetaLatencyMs: ms})
	}
	rule := func(op Operator, value any, sev models.Severity, services ...string) *AlertRule {
		r := &AlertRule{
			ID:        "r",
			Condition: AlertCondition{Type: models.AlertTypePerformanceDegraded, Operator: op, Value: value},
			Severity:  sev,
			Services:  services,
		}
		if err := r.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		return r
	}

	tests := []struct {
		name  string
		rule  *AlertRule
		alert *models.HealthAlert
		want  bool
	}{
		{"gt holds", rule(OpGt, 5000, models.SeverityMedium), latency(6000, models.SeverityMedium, "ocr"), true},
		{"gt fails", rule(OpGt, 5000, models.SeverityMedium), latency(4000, models.SeverityMedium, "ocr"), false},
		{"gte boundary", rule(OpGte, 5000.0, models.SeverityLow), latency(5000, models.SeverityMedium, "ocr"), true},
		{"lt holds", rule(OpLt, 100, models.SeverityLow), latency(50, models.SeverityLow, "ocr"), true},
		{"lte boundary", rule(OpLte, 50, models.SeverityLow), latency(50, models.SeverityLow, "ocr"), true},
		{"eq float", rule(OpEq, "6000", models.SeverityLow), latency(6000, models.SeverityLow, "ocr"), true},
		{"contains", rule(OpContains, "60", models.SeverityLow), latency(6000, models.SeverityLow, "ocr"), true},
		{"severity below floor", rule(OpGt, 0, models.SeverityHigh), latency(6000, models.SeverityMedium, "ocr"), false},
		{"severity above floor", rule(OpGt, 0, models.SeverityLow), latency(6000, models.SeverityCritical, "ocr"), true},
		{"service allowed", rule(OpGt, 0, models.SeverityLow, "ocr", "vision"), latency(6000, models.SeverityLow, "vision"), true},
		{"service not allowed", rule(OpGt, 0, models.SeverityLow, "ocr"), latency(6000, models.SeverityLow, "vision"), false},
		{
			name:  "type mismatch",
			rule:  rule(OpGt, 0, models.SeverityLow),
			alert: newAlert("a", models.AlertTypeHighErrorRate, models.SeverityHigh, "ocr", testEpoch, map[string]any{models.MetaErrorRate: 50.0}),
			want:  false,
		},
		{
			name:  "missing metadata",
			rule:  rule(OpGt, 0, models.SeverityLow),
			alert: newAlert("a", models.AlertTypePerformanceDegraded, models.SeverityLow, "ocr", testEpoch, nil),
			want:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchRule(tt.rule, tt.alert); got != tt.want {
				t.Errorf("MatchRule() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchRule_ServiceDownBool(t *testing.T) {
	down := newAlert("a", models.AlertTypeServiceDown, models.SeverityCritical, "api", testEpoch, nil)

	tests := []struct {
		name  string
		op    Operator
		value any
		want  bool
	}{
		{"eq true", OpEq, true, true},
		{"eq string true", OpEq, "true", true},
		{"eq false", OpEq, false, false},
		{"gt is not defined for bools", OpGt, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &AlertRule{ID: "r", Condition: AlertCondition{Type: models.AlertTypeServiceDown, Operator: tt.op, Value: tt.value}}
			if err := r.Validate(); err != nil {
				t.Fatalf("Validate() error = %v", err)
			}
			if got := MatchRule(r, down); got != tt.want {
				t.Errorf("MatchRule() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchRule_Expression(t *testing.T) {
	r := &AlertRule{
		ID: "r",
		Condition: AlertCondition{
			Type:       models.AlertTypeQuotaExceeded,
			Operator:   OpGte,
			Value:      80,
			Expression: `metadata["quotaType"] == "storage"`,
		},
	}
	if err := r.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	storage := newAlert("a", models.AlertTypeQuotaExceeded, models.SeverityMedium, "blob", testEpoch,
		map[string]any{models.MetaUsagePercentage: 85.0, models.MetaQuotaType: "storage"})
	calls := newAlert("b", models.AlertTypeQuotaExceeded, models.SeverityMedium, "blob", testEpoch,
		map[string]any{models.MetaUsagePercentage: 85.0, models.MetaQuotaType: "api_calls"})

	if !MatchRule(r, storage) {
		t.Error("storage quota should match")
	}
	if MatchRule(r, calls) {
		t.Error("api_calls quota should not match")
	}
}
