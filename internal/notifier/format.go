package notifier

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

const timestampLayout = "2006-01-02 15:04:05 MST"

// Detail is one rendered metadata entry.
type Detail struct {
	Key   string
	Value string
}

// alertTitle returns the headline used by every channel.
func alertTitle(alert *models.HealthAlert) string {
	prefix := "BlazeWatch Alert"
	if isTestAlert(alert) {
		prefix = "BlazeWatch Test Alert"
	}
	return fmt.Sprintf("%s: %s on %s", prefix, humanType(alert.Type), alert.Service)
}

func humanType(t models.AlertType) string {
	return strings.ReplaceAll(string(t), "_", " ")
}

func isTestAlert(alert *models.HealthAlert) bool {
	v, _ := alert.Metadata[models.MetaTest].(bool)
	return v
}

// alertDetails renders the alert metadata sorted by key.
func alertDetails(alert *models.HealthAlert) []Detail {
	keys := make([]string, 0, len(alert.Metadata))
	for k := range alert.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]Detail, 0, len(keys))
	for _, k := range keys {
		out = append(out, Detail{Key: k, Value: formatValue(alert.Metadata[k])})
	}
	return out
}

func formatValue(v any) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case time.Time:
		return val.Format(time.RFC3339)
	case string:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// smsText renders a compact single-line message.
func smsText(alert *models.HealthAlert) string {
	return truncate(fmt.Sprintf("[%s] %s: %s", strings.ToUpper(string(alert.Severity)), alertTitle(alert), alert.Message), 320)
}

// severityEmoji returns an emoji for the severity level.
func severityEmoji(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "\U0001F534" // red circle
	case models.SeverityHigh:
		return "\U0001F7E0" // orange circle
	case models.SeverityMedium:
		return "\U0001F7E1" // yellow circle
	case models.SeverityLow:
		return "\U0001F7E2" // green circle
	default:
		return "\u26AA" // white circle
	}
}

// severityColor returns the hex color for a severity level.
func severityColor(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "#d32f2f" // red
	case models.SeverityHigh:
		return "#f57c00" // orange
	case models.SeverityMedium:
		return "#fbc02d" // yellow
	case models.SeverityLow:
		return "#388e3c" // green
	default:
		return "#757575" // gray
	}
}

// truncate truncates a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
