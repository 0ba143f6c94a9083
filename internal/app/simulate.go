package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"basis-monitor/internal/basis"
	"basis-monitor/internal/fetcher"
	"basis-monitor/internal/service"
)

// SimulateAlert pushes a synthetic observation through the full scoring and
// alert path so channel wiring can be verified without waiting for a real
// dislocation.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting is not enabled")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("no alert channel configured")
	}

	if opts.TenorDays <= 0 {
		return errors.New("--tenor-days must be positive")
	}
	if opts.ReferencePrice <= 0 {
		return errors.New("--reference-price must be positive")
	}
	if opts.ContractPrice <= 0 {
		return errors.New("--contract-price must be positive")
	}

	rows, err := a.loadBenchmark()
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return errors.New("benchmark table is empty; a simulated signal cannot be scored")
	}

	currency := strings.ToUpper(opts.Currency)
	bucket := time.Now().UTC().Truncate(a.Config.Scheduler.Interval)
	instrument := opts.Instrument
	if instrument == "" {
		instrument = fmt.Sprintf("%s-SIM-%.0fD", currency, opts.TenorDays)
	}

	expiry := bucket.Add(time.Duration(opts.TenorDays * 24 * float64(time.Hour)))
	spec := basis.NewContractSpec(instrument, currency, expiry, basis.SettlementFuture)

	market := &staticMarketData{
		specs: []basis.ContractSpec{spec},
		mids: map[string]decimal.Decimal{
			instrument:                        decimal.NewFromFloat(opts.ContractPrice),
			a.Config.SpotInstrument(currency): decimal.NewFromFloat(opts.ReferencePrice),
		},
		index: decimal.NewFromFloat(opts.ReferencePrice),
	}

	cfg := *a.Config
	cfg.Pipeline.Currencies = []string{currency}
	cfg.Pipeline.Spread.Enabled = false
	cfg.Alerting.Cooldown = 0

	svc := service.New(&cfg, nil, market, nil, nil, nil, notifier, rows, a.Logger)
	return svc.ProcessBucket(ctx, bucket)
}

type staticMarketData struct {
	specs []basis.ContractSpec
	mids  map[string]decimal.Decimal
	index decimal.Decimal
}

func (s *staticMarketData) ListActiveFutures(ctx context.Context, currency string) ([]basis.ContractSpec, error) {
	return s.specs, nil
}

func (s *staticMarketData) FetchMid(ctx context.Context, instrument string) (decimal.Decimal, error) {
	mid, ok := s.mids[instrument]
	if !ok {
		return decimal.Zero, fmt.Errorf("no simulated price for %s", instrument)
	}
	return mid, nil
}

func (s *staticMarketData) FetchIndexPrice(ctx context.Context, indexName string) (decimal.Decimal, error) {
	return s.index, nil
}

func (s *staticMarketData) FetchHistory(ctx context.Context, instrument string, start, end time.Time, resolution string) ([]basis.PricePoint, error) {
	return nil, nil
}

var _ fetcher.MarketData = (*staticMarketData)(nil)
