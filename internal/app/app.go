package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"basis-monitor/internal/alerting"
	"basis-monitor/internal/basis"
	"basis-monitor/internal/benchmark"
	"basis-monitor/internal/config"
	"basis-monitor/internal/fetcher"
	"basis-monitor/internal/scheduler"
	"basis-monitor/internal/service"
	"basis-monitor/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newMarketData() fetcher.MarketData {
	return fetcher.NewDeribit(fetcher.DeribitOptions{
		BaseURL:   a.Config.Deribit.BaseURL,
		Timeout:   a.Config.Deribit.RequestTimeout,
		UserAgent: a.Config.Deribit.UserAgent,
	}, a.Logger)
}

// newIndexFetcher returns the on-chain settlement reference when configured,
// nil otherwise; the service then falls back to the venue index.
func (a *App) newIndexFetcher() fetcher.IndexPriceFetcher {
	if a.Config.Pipeline.ReferenceSource != "chainlink" || !a.Config.Chainlink.Enabled {
		return nil
	}
	return fetcher.NewChainlink(fetcher.ChainlinkOptions{
		RPCURL:            a.Config.Chainlink.RPCURL,
		AggregatorAddress: a.Config.Chainlink.AggregatorAddress,
		Timeout:           a.Config.Chainlink.RequestTimeout,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) loadBenchmark() ([]basis.BenchmarkRow, error) {
	return benchmark.NewLoader(a.Config.Benchmark.Path, a.Logger).Load()
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	rows, err := a.loadBenchmark()
	if err != nil {
		return err
	}

	sched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)

	market := a.newMarketData()
	index := a.newIndexFetcher()
	notifier := a.newNotifier()

	var obsStore storage.ObservationStore
	var signalStore storage.SignalStore
	if store != nil {
		obsStore = store
		signalStore = store
	}

	svc := service.New(a.Config, sched, market, index, obsStore, signalStore, notifier, rows, a.Logger)

	a.Logger.Info().Msg("starting basis monitoring service")
	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("basis monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting historical observations.
type ExportOptions struct {
	Currency  string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Currency string
}

// BackfillOptions configure the backfill job.
type BackfillOptions struct {
	From       time.Time
	To         time.Time
	Resolution string
	DryRun     bool
}

// SimulateOptions describe a synthetic observation to push through the alert
// path end to end.
type SimulateOptions struct {
	Currency       string
	Instrument     string
	TenorDays      float64
	ContractPrice  float64
	ReferencePrice float64
}
