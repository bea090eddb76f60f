package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/FairForge/marketplace/internal/config"
	"github.com/FairForge/marketplace/internal/identity"
	"github.com/FairForge/marketplace/internal/loadtest"
	"github.com/FairForge/marketplace/internal/logging"
	"github.com/FairForge/marketplace/internal/reporting"
	"github.com/FairForge/marketplace/internal/traffic"
)

type runOptions struct {
	configPath  string
	host        string
	users       int
	hatchRate   float64
	duration    time.Duration
	fixtures    string
	report      string
	metricsAddr string
	noAccounts  bool
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run simulated users against a host",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadTest(cmd, opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "path to YAML config")
	f.StringVar(&opts.host, "host", "", "site to load, e.g. https://addons.example")
	f.IntVar(&opts.users, "users", 0, "number of simulated users")
	f.Float64Var(&opts.hatchRate, "hatch-rate", 0, "users started per second")
	f.DurationVar(&opts.duration, "duration", 0, "run time, e.g. 10m")
	f.StringVar(&opts.fixtures, "fixtures", "", "directory of .xpi/.zip upload fixtures")
	f.StringVar(&opts.report, "report", "", "write the run report to a file or s3://bucket/key")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.BoolVar(&opts.noAccounts, "no-accounts", false, "browse anonymously without provisioning accounts")
	return cmd
}

// applyFlags overrides configuration with the flags the user set.
func applyFlags(cmd *cobra.Command, opts *runOptions, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.LoadTest.Host = opts.host
	}
	if f.Changed("users") {
		cfg.LoadTest.Users = opts.users
	}
	if f.Changed("hatch-rate") {
		cfg.LoadTest.HatchRate = opts.hatchRate
	}
	if f.Changed("duration") {
		cfg.LoadTest.Duration = opts.duration
	}
	if f.Changed("fixtures") {
		cfg.LoadTest.FixturesDir = opts.fixtures
	}
	if f.Changed("report") {
		cfg.Report.Destination = opts.report
	}
	if f.Changed("metrics-addr") {
		cfg.LoadTest.MetricsAddr = opts.metricsAddr
	}
}

func runLoadTest(cmd *cobra.Command, opts *runOptions) error {
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	applyFlags(cmd, opts, cfg)

	logger, err := logging.New(&logging.LoggerConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	siteConfig := traffic.SiteConfig{Host: cfg.LoadTest.Host, Logger: logger}

	if cfg.LoadTest.FixturesDir != "" {
		fixtures, err := traffic.LoadFixtures(cfg.LoadTest.FixturesDir, logger)
		switch {
		case err == nil:
			siteConfig.Fixtures = fixtures
			go func() {
				if err := fixtures.Watch(ctx); err != nil {
					logger.Warn("fixture watch stopped", zap.Error(err))
				}
			}()
		case errors.Is(err, traffic.ErrNoFixtures):
			logger.Warn("no fixtures found, uploads disabled", zap.String("dir", cfg.LoadTest.FixturesDir))
		default:
			return err
		}
	}

	if !opts.noAccounts {
		endpoints, err := identity.LookupEnv(cfg.Identity.Env)
		if err != nil {
			return err
		}
		siteConfig.Accounts = identity.NewProvisioner(endpoints, logger)
	}

	site, err := traffic.NewSite(siteConfig)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	prom, err := loadtest.NewPromRecorder(registry)
	if err != nil {
		return err
	}
	if cfg.LoadTest.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.LoadTest.MetricsAddr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("serving metrics", zap.String("addr", cfg.LoadTest.MetricsAddr))
	}

	ltConfig := loadtest.DefaultConfig("marketplace")
	ltConfig.Users = cfg.LoadTest.Users
	ltConfig.HatchRate = cfg.LoadTest.HatchRate
	ltConfig.Duration = cfg.LoadTest.Duration
	ltConfig.MinWait = cfg.LoadTest.MinWait
	ltConfig.MaxWait = cfg.LoadTest.MaxWait
	ltConfig.Logger = logger
	ltConfig.Observers = []loadtest.Observer{loadtest.NewEventMarker(logger), prom}
	ltConfig.Recorders = []loadtest.Recorder{prom}

	logger.Info("starting load test",
		zap.String("host", cfg.LoadTest.Host),
		zap.Int("users", ltConfig.Users),
		zap.Float64("hatch_rate", ltConfig.HatchRate),
		zap.Duration("duration", ltConfig.Duration),
	)

	summary, err := loadtest.New(ltConfig, site.NewUser).Run(ctx)
	if err != nil {
		return err
	}

	sla := loadtest.NewSLAValidator(loadtest.DefaultSiteSLA(cfg.LoadTest.MaxFailRate, cfg.LoadTest.MaxP95)).Validate(summary)
	fmt.Fprint(cmd.OutOrStdout(), sla.GenerateReport())

	if cfg.Report.Destination != "" {
		report, err := reporting.NewReport(cfg.LoadTest.Host, summary, sla)
		if err != nil {
			return err
		}
		s3opts := reporting.S3Options{Region: cfg.Report.S3Region, Endpoint: cfg.Report.S3Endpoint}
		if err := reporting.Publish(context.WithoutCancel(ctx), report, cfg.Report.Destination, s3opts, logger); err != nil {
			return err
		}
	}

	logger.Info("load test finished",
		zap.Int64("requests", summary.TotalRequests),
		zap.Int64("failures", summary.FailureCount),
		zap.Bool("sla_passed", sla.OverallPass),
	)
	if !sla.OverallPass {
		return errSLABreached
	}
	return nil
}
