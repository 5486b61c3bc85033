package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

var (
	alertService  string
	alertType     string
	alertSeverity string
	alertID       string
	historyStatus string
	historyLimit  int
	notifStatus   string
)

// alertsCmd represents the alerts command group
var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Alert commands",
	Long: `Commands for inspecting and resolving alerts.

Examples:
  # List active alerts for one service
  watchctl alerts list --service ocr

  # Resolve an alert
  watchctl alerts resolve 9b2f...

  # Show the newest 20 history entries
  watchctl alerts history --limit 20`,
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List active (unresolved) alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		setIf(q, "service", alertService)
		setIf(q, "type", alertType)
		setIf(q, "severity", alertSeverity)

		var alerts []*models.HealthAlert
		if err := newClientFromFlags().Do(cmd.Context(), http.MethodGet, "/api/v1/alerts", q, nil, &alerts); err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), alerts)
		}
		if len(alerts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No active alerts.")
			return nil
		}
		printAlerts(cmd.OutOrStdout(), alerts)
		fmt.Fprintf(cmd.OutOrStdout(), "\nTotal: %d alert(s)\n", len(alerts))
		return nil
	},
}

var alertsResolveCmd = &cobra.Command{
	Use:   "resolve <alert-id>",
	Short: "Mark an alert resolved",
	Long: `Mark an alert resolved. Resolved alerts are no longer escalated.
Resolving an already resolved alert succeeds.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var out struct {
			ID       string `json:"id"`
			Resolved bool   `json:"resolved"`
		}
		path := "/api/v1/alerts/" + url.PathEscape(args[0]) + "/resolve"
		if err := newClientFromFlags().Do(cmd.Context(), http.MethodPost, path, nil, nil, &out); err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), out)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Alert %s resolved.\n", out.ID)
		return nil
	},
}

var alertsHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show alert lifecycle history",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		setIf(q, "alert_id", alertID)
		setIf(q, "status", historyStatus)
		if historyLimit > 0 {
			q.Set("limit", strconv.Itoa(historyLimit))
		}

		var entries []models.HistoryEntry
		if err := newClientFromFlags().Do(cmd.Context(), http.MethodGet, "/api/v1/history", q, nil, &entries); err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), entries)
		}
		if len(entries) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No history entries.")
			return nil
		}
		printHistory(cmd.OutOrStdout(), entries)
		return nil
	},
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Show notification delivery status",
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		setIf(q, "alert_id", alertID)
		setIf(q, "status", notifStatus)

		var notes []*models.AlertNotification
		if err := newClientFromFlags().Do(cmd.Context(), http.MethodGet, "/api/v1/notifications", q, nil, &notes); err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), notes)
		}
		if len(notes) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No notifications.")
			return nil
		}
		printNotifications(cmd.OutOrStdout(), notes)
		return nil
	},
}

// deliveryStats mirrors GET /api/v1/notifications/stats.
type deliveryStats struct {
	RateLimit struct {
		Dropped   int64 `json:"dropped"`
		Channels  int   `json:"channels"`
		PerMinute int   `json:"per_minute"`
		Burst     int   `json:"burst"`
		Enabled   bool  `json:"enabled"`
	} `json:"rate_limit"`
	Cooldowns []struct {
		Key       string        `json:"key"`
		Until     time.Time     `json:"until"`
		Remaining time.Duration `json:"remaining"`
	} `json:"cooldowns"`
}

var notificationsStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show rate limiting and active alert cooldowns",
	RunE: func(cmd *cobra.Command, args []string) error {
		var stats deliveryStats
		if err := newClientFromFlags().Do(cmd.Context(), http.MethodGet, "/api/v1/notifications/stats", nil, nil, &stats); err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), stats)
		}
		printDeliveryStats(cmd.OutOrStdout(), &stats)
		return nil
	},
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func printAlerts(w io.Writer, alerts []*models.HealthAlert) {
	fmt.Fprintf(w, "\n%-36s  %-22s  %-8s  %-16s  %-16s  %s\n",
		"ID", "TYPE", "SEVERITY", "SERVICE", "TIME", "MESSAGE")
	fmt.Fprintln(w, strings.Repeat("-", 130))
	for _, a := range alerts {
		fmt.Fprintf(w, "%-36s  %-22s  %-8s  %-16s  %-16s  %s\n",
			a.ID, a.Type, a.Severity, truncate(a.Service, 16),
			a.Timestamp.Format("2006-01-02 15:04"), truncate(a.Message, 40))
	}
}

func printHistory(w io.Writer, entries []models.HistoryEntry) {
	fmt.Fprintf(w, "\n%-20s  %-36s  %-10s  %s\n", "TIME", "ALERT", "STATUS", "DETAILS")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, e := range entries {
		fmt.Fprintf(w, "%-20s  %-36s  %-10s  %s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"), e.AlertID, e.Status, formatDetails(e.Details))
	}
}

func printNotifications(w io.Writer, notes []*models.AlertNotification) {
	fmt.Fprintf(w, "\n%-36s  %-16s  %-8s  %-9s  %5s  %s\n", "ALERT", "CHANNEL", "TYPE", "STATUS", "TRIES", "ERROR")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, n := range notes {
		fmt.Fprintf(w, "%-36s  %-16s  %-8s  %-9s  %5d  %s\n",
			n.AlertID, truncate(n.ChannelName, 16), n.ChannelType, n.Status, n.RetryCount, truncate(n.Error, 30))
	}
}

func printDeliveryStats(w io.Writer, s *deliveryStats) {
	rl := s.RateLimit
	if rl.Enabled {
		fmt.Fprintf(w, "Rate limit: %d/min, burst %d, %d channel(s) tracked, %d dropped\n",
			rl.PerMinute, rl.Burst, rl.Channels, rl.Dropped)
	} else {
		fmt.Fprintln(w, "Rate limit: disabled")
	}

	if len(s.Cooldowns) == 0 {
		fmt.Fprintln(w, "No active cooldowns.")
		return
	}
	fmt.Fprintf(w, "\n%-48s  %-20s  %s\n", "COOLDOWN", "UNTIL", "REMAINING")
	fmt.Fprintln(w, strings.Repeat("-", 84))
	for _, c := range s.Cooldowns {
		fmt.Fprintf(w, "%-48s  %-20s  %s\n",
			truncate(c.Key, 48), c.Until.Format("2006-01-02 15:04:05"), c.Remaining.Round(time.Second))
	}
}

func formatDetails(d map[string]any) string {
	if len(d) == 0 {
		return ""
	}
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, d[k]))
	}
	return truncate(strings.Join(parts, " "), 60)
}

func init() {
	alertsListCmd.Flags().StringVar(&alertService, "service", "", "filter by service")
	alertsListCmd.Flags().StringVar(&alertType, "type", "", "filter by alert type")
	alertsListCmd.Flags().StringVar(&alertSeverity, "severity", "", "minimum severity (low, medium, high, critical)")

	alertsHistoryCmd.Flags().StringVar(&alertID, "alert", "", "only entries for this alert ID")
	alertsHistoryCmd.Flags().StringVar(&historyStatus, "status", "", "filter by status (triggered, resolved, escalated, suppressed)")
	alertsHistoryCmd.Flags().IntVar(&historyLimit, "limit", 0, "keep only the newest N entries")

	notificationsCmd.Flags().StringVar(&alertID, "alert", "", "only notifications for this alert ID")
	notificationsCmd.Flags().StringVar(&notifStatus, "status", "", "filter by status (pending, sent, failed, retrying)")

	notificationsCmd.AddCommand(notificationsStatsCmd)
	alertsCmd.AddCommand(alertsListCmd, alertsResolveCmd, alertsHistoryCmd)
	rootCmd.AddCommand(alertsCmd, notificationsCmd)
}
