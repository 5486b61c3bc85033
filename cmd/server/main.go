package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/blazewatch/internal/alerting"
	"github.com/good-yellow-bee/blazewatch/internal/api"
	"github.com/good-yellow-bee/blazewatch/internal/metrics"
	"github.com/good-yellow-bee/blazewatch/internal/monitor"
	"github.com/good-yellow-bee/blazewatch/pkg/config"
)

var (
	configFile string
	httpAddr   string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "blazewatch-server",
	Short: "BlazeWatch Server - service health monitoring and alert routing",
	Long: `BlazeWatch Server probes service health and quota usage, turns
failures into alerts and routes them to notification channels with
cooldowns, retries and escalation.`,
	RunE: runServer,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(config.VersionString("blazewatch-server"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (optional)")
	rootCmd.PersistentFlags().StringVarP(&httpAddr, "address", "a", "", "HTTP API listen address (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	var cfg *Config

	// Load configuration from file if provided
	if configFile != "" {
		var err error
		cfg, err = LoadConfig(configFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	} else {
		cfg = DefaultConfig()
	}

	// Override with CLI flags
	if httpAddr != "" {
		cfg.Server.HTTPAddress = httpAddr
	}
	cfg.Verbose = verbose

	metrics.SetBuildInfo(config.Version, config.Commit, config.BuildTime)

	// Setup signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	alertConfigs, err := initialAlertConfigs(cfg)
	if err != nil {
		return err
	}

	probes, err := buildProbes(ctx, cfg.Probes)
	if err != nil {
		return fmt.Errorf("build probes: %w", err)
	}

	mon, err := monitor.New(cfg.MonitorConfig(), monitor.Deps{
		Probes:         probes,
		QuotaProviders: buildQuotaProviders(cfg.Quotas),
		ProberOptions:  cfg.ProberOptions(),
		Dispatch:       cfg.DispatchOptions(),
		Configs:        alertConfigs,
	})
	if err != nil {
		if cerr := closeProbes(probes); cerr != nil {
			log.Printf("close probes: %v", cerr)
		}
		return fmt.Errorf("create monitor: %w", err)
	}
	defer func() {
		if err := mon.Close(); err != nil {
			log.Printf("close monitor: %v", err)
		}
	}()

	apiSrv, err := api.New(&api.Config{
		Address:            cfg.Server.HTTPAddress,
		JWTSecret:          []byte(cfg.Server.JWTSecret),
		AccessTokenTTL:     cfg.TokenTTL(),
		CORSOrigins:        cfg.Server.CORSOrigins,
		HTTPTLSEnabled:     cfg.Server.TLS.Enabled,
		HTTPTLSCertFile:    cfg.Server.TLS.CertFile,
		HTTPTLSKeyFile:     cfg.Server.TLS.KeyFile,
		RateLimitPerMinute: cfg.Server.RateLimit,
		Verbose:            cfg.Verbose,
	}, mon)
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}
	if cfg.Server.JWTSecret == "" {
		log.Printf("warning: server.jwt_secret is not set, the HTTP API is unauthenticated")
	}

	log.Printf("starting blazewatch-server %s", config.Version)
	log.Printf("monitoring %d services, %d quota providers, %d alert configs",
		len(probes), len(cfg.Quotas), len(alertConfigs))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return mon.Run(gctx) })
	g.Go(func() error { return apiSrv.Run(gctx) })
	if cfg.Server.MetricsAddress != "" {
		metricsSrv := metrics.NewServer(cfg.Server.MetricsAddress)
		g.Go(func() error { return metricsSrv.Run(gctx) })
	}
	if cfg.Alerts.File != "" && cfg.Alerts.Watch {
		g.Go(func() error {
			return alerting.WatchConfigs(gctx, cfg.Alerts.File, func(cfgs []*alerting.AlertConfig) {
				if err := mon.ReplaceAlertConfigs(cfgs); err != nil {
					log.Printf("[alerting] reload rejected: %v", err)
				}
			})
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run server: %w", err)
	}

	log.Printf("server stopped")
	return nil
}

// initialAlertConfigs loads the alert file, or builds the default
// configurations over the configured channels when no file is set.
func initialAlertConfigs(cfg *Config) ([]*alerting.AlertConfig, error) {
	if cfg.Alerts.File == "" {
		return alerting.DefaultConfigs(cfg.Channels), nil
	}
	cfgs, err := alerting.LoadConfigsFromFile(cfg.Alerts.File)
	if err != nil {
		return nil, fmt.Errorf("load alert configs: %w", err)
	}
	return cfgs, nil
}
