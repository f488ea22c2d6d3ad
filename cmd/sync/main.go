package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/petroleumjelliffe/socialsync/internal/config"
	"github.com/petroleumjelliffe/socialsync/internal/logging"
	"github.com/petroleumjelliffe/socialsync/internal/metricool"
	"github.com/petroleumjelliffe/socialsync/internal/metrics"
	"github.com/petroleumjelliffe/socialsync/internal/notion"
	"github.com/petroleumjelliffe/socialsync/internal/ratelimit"
	"github.com/petroleumjelliffe/socialsync/internal/syncer"
)

type flags struct {
	configFile  string
	platforms   []string
	yearsBack   int
	dryRun      bool
	metricsAddr string
	logLevel    string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:           "socialsync",
		Short:         "Sync social post analytics from Metricool into Notion",
		Long:          "socialsync fetches post statistics for every configured platform from Metricool and creates one Notion database row per post that is not already present.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, f)
		},
	}

	rootCmd.PersistentFlags().StringVar(&f.configFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "", "override log level: trace|debug|info|warn|error")
	rootCmd.Flags().StringSliceVar(&f.platforms, "platform", nil, "platforms to sync, repeatable (default from config)")
	rootCmd.Flags().IntVar(&f.yearsBack, "years", 0, "how many years of history to fetch (default from config)")
	rootCmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "collect and dedupe but do not create pages")
	rootCmd.Flags().StringVar(&f.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address during the run")

	rootCmd.AddCommand(newPlatformsCmd())

	return rootCmd
}

func newPlatformsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "platforms",
		Short: "List supported platforms",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range metricool.SupportedPlatforms() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}

func runSync(cmd *cobra.Command, f *flags) error {
	cfg, err := config.Load(f.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if f.logLevel != "" {
		cfg.Log.Level = strings.ToLower(f.logLevel)
	}
	if len(f.platforms) > 0 {
		cfg.Sync.Platforms = f.platforms
	}
	if f.yearsBack > 0 {
		cfg.Sync.YearsBack = f.yearsBack
	}
	if cmd.Flags().Changed("dry-run") {
		cfg.Sync.DryRun = f.dryRun
	}

	logging.Init(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	log := logging.Component("main")

	if err := cfg.ValidateForSync(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if f.metricsAddr != "" {
		srv := serveMetrics(f.metricsAddr)
		defer srv.Close()
	}

	source := metricool.NewClient(metricool.Options{
		BaseURL:             cfg.Metricool.BaseURL,
		Token:               cfg.Metricool.Token,
		UserID:              cfg.Metricool.UserID,
		BlogID:              cfg.Metricool.BlogID,
		HTTPClient:          &http.Client{Timeout: cfg.Metricool.Timeout()},
		Limiter:             ratelimit.New("metricool", cfg.Metricool.CallsPerSecond, cfg.Metricool.CallsPerMinute),
		MaxRateLimitRetries: cfg.Metricool.MaxRateLimitRetries,
		MaxRateLimitWait:    cfg.Metricool.MaxRateLimitWait(),
	})

	notionClient := notion.NewClient(cfg.Notion.BaseURL, cfg.Notion.Token, cfg.Notion.Version, cfg.Notion.DatabaseID, nil)
	sink := notion.NewSink(notionClient, notion.SinkOptions{
		Limiter:        ratelimit.New("notion", cfg.Notion.CallsPerSecond, cfg.Notion.CallsPerMinute),
		MaxRetries:     cfg.Notion.MaxRetries,
		InitialBackoff: cfg.Notion.InitialBackoff(),
		BatchPause:     ms(cfg.Sync.BatchPauseMs),
		DryRun:         cfg.Sync.DryRun,
	})

	s := syncer.New(source, sink, syncer.Options{
		Platforms:     cfg.Sync.Platforms,
		YearsBack:     cfg.Sync.YearsBack,
		WindowDays:    cfg.Sync.WindowDays,
		BatchSize:     cfg.Sync.BatchSize,
		WindowPause:   ms(cfg.Sync.WindowPauseMs),
		PlatformPause: ms(cfg.Sync.PlatformPauseMs),
		BatchPause:    ms(cfg.Sync.BatchPauseMs),
	})

	log.Info().
		Strs("platforms", cfg.Sync.Platforms).
		Int("years_back", cfg.Sync.YearsBack).
		Bool("dry_run", cfg.Sync.DryRun).
		Msg("Starting sync")

	summary, err := s.Run(ctx)
	if errors.Is(err, context.Canceled) {
		log.Info().Msg("Sync interrupted")
		return nil
	}
	if err != nil {
		return err
	}

	log.Info().
		Str("run_id", summary.RunID).
		Int("collected", summary.Collected).
		Int("uploaded", summary.Uploaded).
		Strs("failed_platforms", summary.Failed()).
		Dur("duration", summary.Duration).
		Msg("Sync complete")
	return nil
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log := logging.Component("metrics")
		log.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return srv
}

func ms(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}
