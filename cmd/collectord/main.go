package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reachlab/reach-data/internal/collector"
	"github.com/reachlab/reach-data/internal/config"
	"github.com/reachlab/reach-data/internal/database"
	"github.com/reachlab/reach-data/internal/model"
	"github.com/reachlab/reach-data/internal/provider"
	"github.com/reachlab/reach-data/internal/provider/dart"
	"github.com/reachlab/reach-data/internal/provider/finnhub"
	"github.com/reachlab/reach-data/internal/provider/krx"
	"github.com/reachlab/reach-data/internal/provider/twelvedata"
	"github.com/reachlab/reach-data/internal/quality"
	"github.com/reachlab/reach-data/internal/ratio"
	"github.com/reachlab/reach-data/internal/scheduler"
	"github.com/reachlab/reach-data/internal/server"
	"github.com/reachlab/reach-data/internal/store"
	"github.com/reachlab/reach-data/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/collectord.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting collectord",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"korea_markets", cfg.Collector.KoreaMarkets,
		"us_tickers", len(cfg.Collector.USTickers),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Connect to database
	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	logger.Info("database connected")

	st := store.New(db, logger)

	// Provider adapters
	krxClient := krx.New(cfg.Providers.KRX, logger)
	finnhubClient := finnhub.New(cfg.Providers.Finnhub, logger)
	twelveDataClient := twelvedata.New(cfg.Providers.TwelveData, logger)
	dartClient := dart.New(cfg.Providers.Dart, logger)

	collectorCfg := collector.Config{
		Concurrency: cfg.Collector.Concurrency,
		Window:      time.Duration(cfg.Collector.DefaultWindowDays) * 24 * time.Hour,
		RunTimeout:  cfg.Collector.RunTimeout,
	}

	korea := collector.New("korea", cfg.Collector.KoreaMarkets, collectorCfg, st, krxClient, krxClient, logger)

	usProvider := &usUniverse{
		Client:   twelveDataClient,
		profiles: finnhubClient,
		tickers:  cfg.Collector.USTickers,
		logger:   logger,
	}
	us := collector.New("us", []string{"US"}, collectorCfg, st, usProvider, nil, logger)

	ratios := ratio.NewBatch(st, logger)
	statements := collector.NewStatementBatch("statements", cfg.Collector.KoreaMarkets, collector.StatementConfig{
		Concurrency: cfg.Collector.Concurrency,
		StartYear:   cfg.Collector.StatementStartYear,
		Quarters:    cfg.Collector.StatementQuarters,
		RunTimeout:  cfg.Collector.RunTimeout,
	}, st, dartClient, ratios, logger)

	checker := quality.New(st, quality.Config{
		OutlierMultiple: cfg.Quality.PriceOutlierMultiple,
		OutlierLookback: cfg.Quality.PriceOutlierLookback,
	}, logger)

	// Scheduler registry, one scope per schedule
	registry := scheduler.NewRegistry()
	registry.Add(scheduler.NewScopeScheduler("korea", scheduler.RunnerFunc(
		func(ctx context.Context) (*model.RunSummary, error) {
			return korea.Run(ctx, collector.Options{})
		}), logger))
	registry.Add(scheduler.NewScopeScheduler("us", scheduler.RunnerFunc(
		func(ctx context.Context) (*model.RunSummary, error) {
			return us.Run(ctx, collector.Options{})
		}), logger))
	registry.Add(scheduler.NewScopeScheduler("statements", scheduler.RunnerFunc(
		func(ctx context.Context) (*model.RunSummary, error) {
			return statements.Run(ctx, collector.Options{})
		}), logger))

	if cfg.Scheduler.Enabled {
		schedules := map[string]string{
			"korea":      cfg.Scheduler.KoreaCron,
			"us":         cfg.Scheduler.USCron,
			"statements": cfg.Scheduler.StatementsCron,
		}
		for scope, expr := range schedules {
			if err := registry.Get(scope).Start(expr); err != nil {
				logger.Error("failed to schedule scope", "scope", scope, "error", err)
				os.Exit(1)
			}
		}
	} else {
		logger.Info("scheduler disabled, runs via admin API only")
	}

	// Admin HTTP server
	batch := &batchRunner{registry: registry, korea: korea, us: us, statements: statements}
	srv := server.New(cfg.Server.Port, db, registry, batch, checker, logger)
	srv.Start()

	logger.Info("collectord running",
		"instance_id", cfg.Instance.ID,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Server.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	registry.StopAll()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	logger.Info("collectord stopped")
}

// batchRunner routes ad-hoc smoke runs from the admin API to the right
// scope's runner, through the scope's scheduler run lock so a smoke run
// cannot overlap a cron-fired run.
type batchRunner struct {
	registry   *scheduler.Registry
	korea      *collector.Orchestrator
	us         *collector.Orchestrator
	statements *collector.StatementBatch
}

func (b *batchRunner) RunBatch(ctx context.Context, scope string, maxTickers int) (*model.RunSummary, error) {
	opts := collector.Options{MaxTickers: maxTickers}

	var run scheduler.RunnerFunc
	switch scope {
	case "korea":
		run = func(ctx context.Context) (*model.RunSummary, error) { return b.korea.Run(ctx, opts) }
	case "us":
		run = func(ctx context.Context) (*model.RunSummary, error) { return b.us.Run(ctx, opts) }
	case "statements":
		run = func(ctx context.Context) (*model.RunSummary, error) { return b.statements.Run(ctx, opts) }
	default:
		return nil, fmt.Errorf("unknown scope %q", scope)
	}

	return b.registry.Get(scope).RunAdHoc(ctx, run)
}

// usUniverse combines the two US sources into one price provider: Twelve
// Data serves the candles (embedded), Finnhub serves per-ticker profile
// metadata, and the universe itself is the fixed ticker list from config.
type usUniverse struct {
	*twelvedata.Client
	profiles *finnhub.Client
	tickers  []string
	logger   *slog.Logger
}

func (u *usUniverse) ListSymbols(ctx context.Context, market string) ([]model.Security, error) {
	securities := make([]model.Security, 0, len(u.tickers))
	for _, ticker := range u.tickers {
		sec, err := u.profiles.FetchProfile(ctx, ticker)
		if err != nil {
			if provider.IsSystemic(err) {
				return nil, err
			}
			u.logger.Warn("profile lookup failed, skipping ticker",
				"ticker", ticker,
				"err", err,
			)
			continue
		}
		// The scope tracks a single pseudo-market.
		sec.Market = market
		securities = append(securities, *sec)
	}
	return securities, nil
}
