package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"basis-monitor/internal/alerting"
	"basis-monitor/internal/basis"
	"basis-monitor/internal/config"
	"basis-monitor/internal/fetcher"
	"basis-monitor/internal/scheduler"
	"basis-monitor/internal/storage"
)

// Service orchestrates fetching, scoring, persistence, and alerting. Market
// data failures never cross into the core: they are logged here and the core
// sees empty collections.
type Service struct {
	scheduler *scheduler.Scheduler
	market    fetcher.MarketData
	index     fetcher.IndexPriceFetcher
	store     storage.ObservationStore
	signals   storage.SignalStore
	notifier  alerting.Notifier
	pipeline  *basis.Pipeline
	benchmark []basis.BenchmarkRow
	logger    zerolog.Logger

	cfg       *config.Config
	locker    storage.AdvisoryLocker
	lockKey   int64
	lastAlert map[string]time.Time
}

// New constructs the monitoring service. The benchmark table is loaded once
// by the caller and shared across cycles; it is immutable from here on. The
// index fetcher overrides the venue index when the chainlink reference is
// configured; pass nil to use the market data's own index.
func New(cfg *config.Config, sched *scheduler.Scheduler, market fetcher.MarketData, index fetcher.IndexPriceFetcher, store storage.ObservationStore, signals storage.SignalStore, notifier alerting.Notifier, benchmark []basis.BenchmarkRow, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	var idx fetcher.IndexPriceFetcher = market
	if index != nil {
		idx = index
	}

	return &Service{
		scheduler: sched,
		market:    market,
		index:     idx,
		store:     store,
		signals:   signals,
		notifier:  notifier,
		pipeline:  basis.NewPipeline(cfg.PipelineSettings(), logger),
		benchmark: benchmark,
		logger:    logger.With().Str("component", "service").Logger(),
		cfg:       cfg,
		locker:    locker,
		lockKey:   cfg.Scheduler.AdvisoryLockKey,
		lastAlert: make(map[string]time.Time),
	}
}

// Run begins the aligned sampling loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessBucket)
}

// ProcessBucket executes one scoring cycle per configured currency for a
// time bucket.
func (s *Service) ProcessBucket(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("bucket", bucket).Msg("skip bucket because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	results := make(map[string]basis.CycleResult, len(s.cfg.Pipeline.Currencies))
	for _, currency := range s.cfg.Pipeline.Currencies {
		result, err := s.runCurrency(ctx, bucket, currency)
		if err != nil {
			return fmt.Errorf("cycle for %s: %w", currency, err)
		}
		results[strings.ToUpper(currency)] = result
	}

	if s.cfg.Pipeline.Spread.Enabled {
		s.reportSpread(bucket, results)
	}
	return nil
}

func (s *Service) runCurrency(ctx context.Context, bucket time.Time, currency string) (basis.CycleResult, error) {
	currency = strings.ToUpper(currency)
	log := s.logger.With().Str("currency", currency).Logger()

	live, reference := s.fetchLive(ctx, bucket, currency, log)
	history := s.loadHistory(ctx, bucket, currency, log)

	result, err := s.pipeline.Run(history, live, s.benchmark)
	if err != nil {
		return basis.CycleResult{}, err
	}

	s.persist(ctx, currency, result, log)
	s.summarize(bucket, currency, reference, result, log)
	s.alert(ctx, bucket, currency, result, log)

	return result, nil
}

// fetchLive builds the live snapshot. Any fetch failure degrades to fewer
// (or zero) live observations; the cycle still runs on history.
func (s *Service) fetchLive(ctx context.Context, bucket time.Time, currency string, log zerolog.Logger) ([]basis.YieldObservation, float64) {
	specs, err := s.market.ListActiveFutures(ctx, currency)
	if err != nil {
		log.Error().Err(err).Msg("failed to list active futures; cycle degrades to history only")
		return nil, 0
	}

	reference, err := s.fetchReference(ctx, currency)
	if err != nil {
		log.Error().Err(err).Msg("failed to fetch reference price; cycle degrades to history only")
		return nil, 0
	}

	live := make([]basis.YieldObservation, 0, len(specs))
	for _, spec := range specs {
		mid, err := s.market.FetchMid(ctx, spec.InstrumentID)
		if err != nil {
			log.Warn().Err(err).Str("instrument", spec.InstrumentID).Msg("skipping instrument without a live mid")
			continue
		}

		obs, ok, err := s.pipeline.BuildObservation(spec, mid.InexactFloat64(), reference, bucket, basis.ProvenanceLive)
		if err != nil {
			log.Error().Err(err).Str("instrument", spec.InstrumentID).Msg("invalid observation inputs")
			continue
		}
		if ok {
			live = append(live, obs)
		}
	}
	return live, reference
}

func (s *Service) fetchReference(ctx context.Context, currency string) (float64, error) {
	switch s.cfg.Pipeline.ReferenceSource {
	case "index", "chainlink":
		price, err := s.index.FetchIndexPrice(ctx, s.cfg.IndexName(currency))
		if err != nil {
			return 0, err
		}
		return price.InexactFloat64(), nil
	default:
		price, err := s.market.FetchMid(ctx, s.cfg.SpotInstrument(currency))
		if err != nil {
			return 0, err
		}
		return price.InexactFloat64(), nil
	}
}

func (s *Service) loadHistory(ctx context.Context, bucket time.Time, currency string, log zerolog.Logger) []basis.YieldObservation {
	if s.store == nil || s.cfg.Pipeline.HistoryWindow <= 0 {
		return nil
	}

	from := bucket.Add(-s.cfg.Pipeline.HistoryWindow)
	records, err := s.store.ListObservationsBetween(ctx, currency, from, bucket)
	if err != nil {
		log.Error().Err(err).Msg("failed to load history; cycle degrades to live only")
		return nil
	}

	history := make([]basis.YieldObservation, 0, len(records))
	for _, rec := range records {
		history = append(history, rec.Observation())
	}
	return history
}

func (s *Service) persist(ctx context.Context, currency string, result basis.CycleResult, log zerolog.Logger) {
	if s.store == nil {
		return
	}
	for _, obs := range result.Scored {
		if obs.Provenance != basis.ProvenanceLive {
			continue
		}
		if err := s.store.UpsertObservation(ctx, storage.NewObservationRecord(currency, obs)); err != nil {
			log.Error().Err(err).Str("instrument", obs.InstrumentID).Msg("failed to upsert observation")
		}
	}
}

func (s *Service) summarize(bucket time.Time, currency string, reference float64, result basis.CycleResult, log zerolog.Logger) {
	event := log.Info().Time("bucket", bucket).
		Int("contracts", len(result.Latest)).
		Float64("reference_price", reference).
		Bool("scored", result.BenchmarkApplied).
		Bool("fit_available", result.Curves.Available())

	if best, ok := bestYield(result.Latest); ok {
		event = event.Str("best_contract", best.InstrumentID).
			Float64("best_yield_pct", best.YieldPct)
	}
	event.Msg("cycle complete")
}

func bestYield(latest []basis.ScoredObservation) (basis.ScoredObservation, bool) {
	if len(latest) == 0 {
		return basis.ScoredObservation{}, false
	}
	best := latest[0]
	for _, obs := range latest[1:] {
		if obs.YieldPct > best.YieldPct {
			best = obs
		}
	}
	return best, true
}

func (s *Service) alert(ctx context.Context, bucket time.Time, currency string, result basis.CycleResult, log zerolog.Logger) {
	if !s.cfg.Alerting.Enabled || s.notifier == nil || !result.BenchmarkApplied {
		return
	}

	for _, obs := range result.Latest {
		if !obs.Scored || obs.Classification == basis.ClassNormal {
			continue
		}
		if !s.cooldownElapsed(obs.InstrumentID, bucket) {
			continue
		}

		if s.signals != nil {
			record := storage.SignalRecord{
				Currency:       currency,
				InstrumentID:   obs.InstrumentID,
				ObservedAt:     obs.ObservedAt,
				TenorDays:      obs.TenorDays,
				YieldPct:       obs.YieldPct,
				ZScore:         obs.ZScore,
				Classification: string(obs.Classification),
				Channels:       s.cfg.Alerting.Channels,
			}
			if _, err := s.signals.InsertSignal(ctx, record); err != nil {
				log.Error().Err(err).Str("instrument", obs.InstrumentID).Msg("failed to persist signal record")
			}
		}

		note := alerting.Notification{
			Currency:       currency,
			InstrumentID:   obs.InstrumentID,
			ObservedAt:     obs.ObservedAt,
			TenorDays:      obs.TenorDays,
			YieldPct:       obs.YieldPct,
			ExpectedMedian: obs.ExpectedMedian,
			ZScore:         obs.ZScore,
			IQR:            obs.IQR,
			Classification: obs.Classification,
			Channels:       s.cfg.Alerting.Channels,
		}
		if err := s.notifier.Notify(ctx, note); err != nil {
			log.Error().Err(err).Str("instrument", obs.InstrumentID).Msg("failed to dispatch signal alert")
			continue
		}
		s.lastAlert[obs.InstrumentID] = bucket
	}
}

func (s *Service) cooldownElapsed(instrument string, bucket time.Time) bool {
	if s.cfg.Alerting.Cooldown <= 0 {
		return true
	}
	last, ok := s.lastAlert[instrument]
	if !ok {
		return true
	}
	return bucket.Sub(last) >= s.cfg.Alerting.Cooldown
}

func (s *Service) reportSpread(bucket time.Time, results map[string]basis.CycleResult) {
	baseCcy := strings.ToUpper(s.cfg.Pipeline.Spread.BaseCurrency)
	quoteCcy := strings.ToUpper(s.cfg.Pipeline.Spread.QuoteCurrency)

	base, okBase := results[baseCcy]
	quote, okQuote := results[quoteCcy]
	if !okBase || !okQuote {
		s.logger.Warn().Str("base", baseCcy).Str("quote", quoteCcy).Msg("spread requires both currencies in pipeline.currencies")
		return
	}

	rows := JoinOnExpiry(base.Latest, quote.Latest)
	for _, row := range rows {
		s.logger.Info().Time("bucket", bucket).
			Str("expiry", row.ExpiryKey).
			Str("base_instrument", row.BaseInstrument).
			Str("quote_instrument", row.QuoteInstrument).
			Float64("base_yield_pct", row.BaseYieldPct).
			Float64("quote_yield_pct", row.QuoteYieldPct).
			Float64("spread_pct", row.SpreadPct).
			Msg("cross-currency basis spread")
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
