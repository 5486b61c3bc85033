package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/blazewatch/internal/models"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Run a health cycle and show the system report",
	Long: `Ask the server to probe every service now and print the resulting
system health report: per-service status, quotas, rolling metrics and the
alerts the cycle produced.

Example:
  watchctl status -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var report models.SystemHealthReport
		if err := newClientFromFlags().Do(cmd.Context(), http.MethodGet, "/api/v1/health", nil, nil, &report); err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), report)
		}
		printReport(cmd.OutOrStdout(), &report)
		return nil
	},
}

var statusHistoryCmd = &cobra.Command{
	Use:   "history <service>",
	Short: "Show the retained health history of one service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var statuses []models.ServiceHealthStatus
		path := "/api/v1/health/" + url.PathEscape(args[0]) + "/history"
		if err := newClientFromFlags().Do(cmd.Context(), http.MethodGet, path, nil, nil, &statuses); err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), statuses)
		}
		if len(statuses) == 0 {
			fmt.Fprintf(cmd.OutOrStdout(), "No history for %s yet.\n", args[0])
			return nil
		}
		printServiceHistory(cmd.OutOrStdout(), statuses)
		return nil
	},
}

func printServiceHistory(w io.Writer, statuses []models.ServiceHealthStatus) {
	fmt.Fprintf(w, "\n%-20s  %-10s  %10s  %s\n", "TIME", "STATUS", "LATENCY", "ERROR")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, s := range statuses {
		fmt.Fprintf(w, "%-20s  %-10s  %8.0fms  %s\n",
			s.CheckedAt.Format("2006-01-02 15:04:05"), s.Status, s.LatencyMs(), truncate(s.Error, 40))
	}
}

func printReport(w io.Writer, r *models.SystemHealthReport) {
	fmt.Fprintf(w, "Overall: %s (%s)\n", strings.ToUpper(string(r.OverallStatus)), r.Timestamp.Format("2006-01-02 15:04:05"))

	fmt.Fprintf(w, "\n%-24s  %-10s  %10s  %s\n", "SERVICE", "STATUS", "LATENCY", "ERROR")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, s := range r.Services {
		fmt.Fprintf(w, "%-24s  %-10s  %8.0fms  %s\n", truncate(s.Service, 24), s.Status, s.LatencyMs(), truncate(s.Error, 40))
	}

	if len(r.Quotas) > 0 {
		fmt.Fprintf(w, "\n%-24s  %-16s  %7s  %s\n", "SERVICE", "QUOTA", "USED", "STATUS")
		fmt.Fprintln(w, strings.Repeat("-", 60))
		for _, q := range r.Quotas {
			fmt.Fprintf(w, "%-24s  %-16s  %6.1f%%  %s\n", truncate(q.Service, 24), truncate(q.QuotaType, 16), q.UsagePercentage(), q.Status())
		}
	}

	if len(r.Metrics) > 0 {
		fmt.Fprintf(w, "\n%-24s  %8s  %8s  %10s\n", "SERVICE", "REQUESTS", "ERRORS", "ERROR RATE")
		fmt.Fprintln(w, strings.Repeat("-", 60))
		for _, m := range r.Metrics {
			fmt.Fprintf(w, "%-24s  %8d  %8d  %9.1f%%\n", truncate(m.Service, 24), m.TotalRequests, m.FailedRequests, m.ErrorRate())
		}
	}

	if len(r.Alerts) > 0 {
		fmt.Fprintf(w, "\nAlerts raised by this cycle: %d\n", len(r.Alerts))
		printAlerts(w, r.Alerts)
	}
}

func init() {
	statusCmd.AddCommand(statusHistoryCmd)
	rootCmd.AddCommand(statusCmd)
}

