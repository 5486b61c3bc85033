package alerting

import (
	"testing"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

func TestExprMatcher_Compile(t *testing.T) {
	tests := []struct {
		name       string
		expression string
		wantErr    bool
	}{
		{
			name:       "simple equality",
			expression: `service == "ocr"`,
			wantErr:    false,
		},
		{
			name:       "numeric comparison",
			expression: `value >= 90`,
			wantErr:    false,
		},
		{
			name:       "boolean AND",
			expression: `service startsWith "db-" && severity_rank >= 3`,
			wantErr:    false,
		},
		{
			name:       "contains operator",
			expression: `message contains "timeout"`,
			wantErr:    false,
		},
		{
			name:       "invalid syntax",
			expression: `service == `,
			wantErr:    true,
		},
		{
			name:       "undefined variable",
			expression: `unknown_field == "test"`,
			wantErr:    true,
		},
		{
			name:       "not a bool",
			expression: `value + 1`,
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewExprMatcher(tt.expression)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewExprMatcher() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExprMatcher_Match(t *testing.T) {
	quota := &models.HealthAlert{
		Type:     models.AlertTypeQuotaExceeded,
		Severity: models.SeverityCritical,
		Service:  "db-primary",
		Message:  "storage quota at 97%",
		Metadata: map[string]any{
			models.MetaUsagePercentage: 97.0,
			models.MetaQuotaType:       "storage",
		},
	}

	tests := []struct {
		name       string
		expression string
		alert      *models.HealthAlert
		want       bool
	}{
		{"service prefix", `service startsWith "db-"`, quota, true},
		{"extracted value", `value > 95`, quota, true},
		{"extracted value no match", `value > 99`, quota, false},
		{"severity rank", `severity_rank == 4`, quota, true},
		{"metadata access", `metadata["quotaType"] == "storage"`, quota, true},
		{"message contains", `message contains "quota"`, quota, true},
		{
			name:       "nil metadata",
			expression: `service == "api"`,
			alert:      &models.HealthAlert{Type: models.AlertTypeServiceDown, Service: "api"},
			want:       true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewExprMatcher(tt.expression)
			if err != nil {
				t.Fatalf("NewExprMatcher() error = %v", err)
			}
			got, err := m.Match(tt.alert)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}
