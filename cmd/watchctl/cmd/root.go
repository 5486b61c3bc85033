// Package cmd contains the CLI commands for watchctl.
package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Used for flags
	verbose   bool
	output    string
	serverURL string
	token     string
	timeout   time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "watchctl",
	Short: "watchctl - BlazeWatch command line client",
	Long: `watchctl talks to a running BlazeWatch server over its HTTP API.

It reports system health, lists and resolves alerts, inspects alert
history and notification delivery, and manages alert configurations.

Examples:
  # Run a health cycle and show the report
  watchctl status

  # List active alerts of at least high severity
  watchctl alerts list --severity high

  # Load alert configurations from a file
  watchctl configs add -f alerts.yaml

  # Mint an admin token for a server with jwt_secret set
  watchctl token --secret "$BLAZEWATCH_JWT_SECRET" --role admin`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "output format (table, json)")
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", envOr("BLAZEWATCH_SERVER", "http://localhost:8080"), "BlazeWatch server URL")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", os.Getenv("BLAZEWATCH_TOKEN"), "API bearer token")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", time.Minute, "request timeout")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// GetOutput returns the output format.
func GetOutput() string {
	return output
}

// PrintVerbose prints a message only if verbose mode is enabled.
func PrintVerbose(format string, args ...any) {
	if verbose {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 2 {
		return s[:n]
	}
	return s[:n-2] + ".."
}
