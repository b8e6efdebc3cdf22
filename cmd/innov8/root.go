package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"innov8/internal/config"
	"innov8/internal/forecast"
	"innov8/internal/gather/us"
	"innov8/internal/ohlc"
	"innov8/internal/refdata"
	"innov8/internal/refresh"
	"innov8/internal/snapshot"
	"innov8/internal/store"
	"innov8/internal/util"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "innov8",
	Short: "Daily market data pipeline and forecasting backend for the innov8 dashboard",
	Long: `innov8 keeps a local store of daily OHLCV bars for the S&P 500 universe
up to date, derives short-horizon forecasts from it and serves both to the
dashboard over a JSON API.

The first run against an empty store seeds the universe and a year of
history. Later runs fetch only the missing days.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default $INNOV8_CONFIG or config/innov8.yaml)")
	rootCmd.AddCommand(
		newServeCmd(),
		newUpdateCmd(),
		newResetCmd(),
		newForecastCmd(),
		newExportCmd(),
		newStatusCmd(),
	)
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func loadConfig() (*config.Config, error) {
	path := cfgPath
	if path == "" {
		path = config.Path()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return cfg, nil
}

// app holds the wired pipeline components.
type app struct {
	cfg     *config.Config
	log     *slog.Logger
	loc     *time.Location
	store   *store.SQLiteStore
	builder *snapshot.Builder
	engine  *forecast.Engine
	orch    *refresh.Orchestrator
}

func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	loc, err := time.LoadLocation(cfg.Sync.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", cfg.Sync.Timezone, err)
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return nil, err
	}

	provider := us.NewAlpacaProvider(us.AlpacaOptions{
		APIKey:          cfg.Alpaca.APIKey,
		APISecret:       cfg.Alpaca.APISecret,
		BaseURL:         cfg.Alpaca.BaseURL,
		DataURL:         cfg.Alpaca.DataURL,
		Feed:            cfg.Alpaca.Feed,
		Timeout:         cfg.Alpaca.Timeout,
		RateLimitPerMin: cfg.Alpaca.RateLimitPerMin,
		Location:        loc,
		Reference:       us.LoadReferenceData(cfg.Universe.ReferenceDir),
	})
	universe := us.NewConstituentScraper(cfg.Universe.ScrapeURL, cfg.Universe.ScrapeTimeout, cfg.Universe.FallbackFile)

	loader := refdata.NewLoader(st, provider, universe, cfg.Sync.Workers, logger)
	syncer := ohlc.NewSynchronizer(st, provider, ohlc.Options{
		LookbackDays: cfg.Sync.LookbackDays,
		Location:     loc,
		Workers:      cfg.Sync.Workers,
	}, logger)
	builder := snapshot.NewBuilder(st, cfg.Storage.SignalFile, logger)
	engine := forecast.NewEngine(st, nil, cfg.Forecast.Horizon, logger)

	return &app{
		cfg:     cfg,
		log:     logger,
		loc:     loc,
		store:   st,
		builder: builder,
		engine:  engine,
		orch:    refresh.NewOrchestrator(loader, syncer, builder, engine, logger),
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// schemaStore is the part of the store needSeed inspects.
type schemaStore interface {
	EnsureSchema(ctx context.Context) (bool, error)
	Counts(ctx context.Context) (store.Counts, error)
}

// needSeed ensures the schema exists and reports whether the store still
// has to be seeded: either the fact table was just created, or an earlier
// seed stopped before any instrument was stored.
func needSeed(ctx context.Context, st schemaStore) (bool, error) {
	warm, err := st.EnsureSchema(ctx)
	if err != nil {
		return false, err
	}
	if !warm {
		return true, nil
	}
	c, err := st.Counts(ctx)
	if err != nil {
		return false, err
	}
	return c.Instruments == 0, nil
}

// prepare ensures the schema exists and seeds an empty store.
func (a *app) prepare(ctx context.Context) error {
	seed, err := needSeed(ctx, a.store)
	if err != nil {
		return err
	}
	if !seed {
		return nil
	}
	a.log.Info("empty store, seeding universe and history", "path", a.cfg.Storage.SQLitePath)
	rep, err := a.orch.Seed(ctx)
	if err != nil {
		return fmt.Errorf("seeding store: %w", err)
	}
	printReport(rep)
	return nil
}

func printReport(r refresh.Report) {
	fmt.Printf("%s refresh: %d symbols, synced %d (%d failed), forecast %d (%d failed) in %s\n",
		r.Scope, r.Symbols, r.Synced, r.SyncFailed, r.Forecast, r.ForecastFailed, r.Elapsed.Round(time.Millisecond))
}
