package cmd

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/good-yellow-bee/blazewatch/internal/alerting"
	"github.com/good-yellow-bee/blazewatch/internal/monitor"
)

var configFile string

// configsCmd represents the configs command group
var configsCmd = &cobra.Command{
	Use:   "configs",
	Short: "Alert configuration commands",
	Long: `Commands for managing alert configurations on the server.

Configurations are written in the same YAML layout the server reads from
its alert file (a top-level "configs" list). Credentials are masked in
everything the server returns.

Examples:
  watchctl configs list
  watchctl configs add -f alerts.yaml
  watchctl configs test critical-services
  watchctl configs remove performance`,
}

var configsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alert configurations",
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfgs []*alerting.AlertConfig
		if err := newClientFromFlags().Do(cmd.Context(), http.MethodGet, "/api/v1/configs", nil, nil, &cfgs); err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), cfgs)
		}
		if len(cfgs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No alert configurations.")
			return nil
		}
		printConfigs(cmd.OutOrStdout(), cfgs)
		return nil
	},
}

var configsGetCmd = &cobra.Command{
	Use:   "get <config-id>",
	Short: "Show one alert configuration",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var cfg alerting.AlertConfig
		if err := newClientFromFlags().Do(cmd.Context(), http.MethodGet, "/api/v1/configs/"+url.PathEscape(args[0]), nil, nil, &cfg); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), &cfg)
	},
}

var configsApplyCmd = &cobra.Command{
	Use:     "add",
	Aliases: []string{"apply"},
	Short:   "Create or replace alert configurations from a file",
	Long: `Validate every configuration in the file locally, then send each one to
the server. A configuration with an existing ID replaces it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if configFile == "" {
			return fmt.Errorf("--file is required")
		}
		cfgs, err := alerting.LoadConfigsFromFile(configFile)
		if err != nil {
			return err
		}

		c := newClientFromFlags()
		var errs []error
		for _, cfg := range cfgs {
			if err := c.Do(cmd.Context(), http.MethodPost, "/api/v1/configs", nil, cfg, nil); err != nil {
				errs = append(errs, fmt.Errorf("config %q: %w", cfg.ID, err))
				continue
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %s\n", cfg.ID)
		}
		return errors.Join(errs...)
	},
}

var configsDeleteCmd = &cobra.Command{
	Use:     "remove <config-id>",
	Aliases: []string{"delete", "rm"},
	Short:   "Remove an alert configuration",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClientFromFlags().Do(cmd.Context(), http.MethodDelete, "/api/v1/configs/"+url.PathEscape(args[0]), nil, nil, nil); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
		return nil
	},
}

var configsTestCmd = &cobra.Command{
	Use:   "test <config-id>",
	Short: "Send a test notification through every enabled channel",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var res monitor.TestResult
		path := "/api/v1/configs/" + url.PathEscape(args[0]) + "/test"
		if err := newClientFromFlags().Do(cmd.Context(), http.MethodPost, path, nil, nil, &res); err != nil {
			return err
		}
		if GetOutput() == "json" {
			return printJSON(cmd.OutOrStdout(), res)
		}
		if !res.Success {
			return fmt.Errorf("test notification failed: %s", res.Error)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Test notification for %s delivered.\n", args[0])
		return nil
	},
}

func printConfigs(w io.Writer, cfgs []*alerting.AlertConfig) {
	fmt.Fprintf(w, "\n%-24s  %-24s  %-7s  %5s  %-30s  %8s\n",
		"ID", "NAME", "ENABLED", "RULES", "CHANNELS", "COOLDOWN")
	fmt.Fprintln(w, strings.Repeat("-", 110))
	for _, c := range cfgs {
		names := make([]string, 0, len(c.Channels))
		for _, ch := range c.Channels {
			names = append(names, ch.Name)
		}
		fmt.Fprintf(w, "%-24s  %-24s  %-7t  %5d  %-30s  %7dm\n",
			truncate(c.ID, 24), truncate(c.Name, 24), c.Enabled, len(c.Rules),
			truncate(strings.Join(names, ","), 30), c.CooldownMinutes)
	}
}

func init() {
	configsApplyCmd.Flags().StringVarP(&configFile, "file", "f", "", "YAML file with a top-level configs list")

	configsCmd.AddCommand(configsListCmd, configsGetCmd, configsApplyCmd, configsDeleteCmd, configsTestCmd)
	rootCmd.AddCommand(configsCmd)
}
