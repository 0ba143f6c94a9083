package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"basis-monitor/internal/alerting"
	"basis-monitor/internal/basis"
	"basis-monitor/internal/config"
	"basis-monitor/internal/storage"
)

type fakeMarket struct {
	specs    []basis.ContractSpec
	listErr  error
	mids     map[string]float64
	midErr   map[string]error
	index    float64
	indexErr error
}

func (f *fakeMarket) ListActiveFutures(_ context.Context, _ string) ([]basis.ContractSpec, error) {
	return f.specs, f.listErr
}

func (f *fakeMarket) FetchMid(_ context.Context, instrument string) (decimal.Decimal, error) {
	if err, ok := f.midErr[instrument]; ok {
		return decimal.Zero, err
	}
	price, ok := f.mids[instrument]
	if !ok {
		return decimal.Zero, errors.New("unknown instrument")
	}
	return decimal.NewFromFloat(price), nil
}

func (f *fakeMarket) FetchIndexPrice(_ context.Context, _ string) (decimal.Decimal, error) {
	if f.indexErr != nil {
		return decimal.Zero, f.indexErr
	}
	return decimal.NewFromFloat(f.index), nil
}

func (f *fakeMarket) FetchHistory(_ context.Context, _ string, _, _ time.Time, _ string) ([]basis.PricePoint, error) {
	return nil, nil
}

type fakeStore struct {
	history  []storage.ObservationRecord
	listErr  error
	upserted []storage.ObservationRecord
}

func (f *fakeStore) UpsertObservation(_ context.Context, rec storage.ObservationRecord) error {
	f.upserted = append(f.upserted, rec)
	return nil
}

func (f *fakeStore) ListObservationsBetween(_ context.Context, _ string, _, _ time.Time) ([]storage.ObservationRecord, error) {
	return f.history, f.listErr
}

func (f *fakeStore) ListLatestObservations(_ context.Context, _ string) ([]storage.ObservationRecord, error) {
	return nil, nil
}

func (f *fakeStore) CountObservations(_ context.Context, _ string) (int64, error) {
	return int64(len(f.history)), nil
}

type fakeNotifier struct {
	sent []alerting.Notification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, note alerting.Notification) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, note)
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{Interval: time.Minute},
		Pipeline: config.PipelineConfig{
			Currencies:       []string{"BTC"},
			ReferenceSource:  "spot",
			NearExpiryPolicy: string(basis.PolicyExclude),
			MinTenorDays:     2,
			MaxTenorDays:     180,
			RichThreshold:    2,
			CheapThreshold:   -2,
			FitMethods:       []string{string(basis.FitLogLinear)},
			HistoryWindow:    time.Hour,
		},
		Alerting: config.AlertingConfig{
			Enabled:  true,
			Cooldown: 30 * time.Minute,
			Channels: []string{"telegram"},
		},
	}
}

func flatBenchmark(median float64) []basis.BenchmarkRow {
	return []basis.BenchmarkRow{
		{TenorDays: 1, MedianYieldPct: median, Q1YieldPct: median - 1, Q3YieldPct: median + 1},
		{TenorDays: 365, MedianYieldPct: median, Q1YieldPct: median - 1, Q3YieldPct: median + 1},
	}
}

func futureSpec(instrument string, expiry time.Time) basis.ContractSpec {
	return basis.NewContractSpec(instrument, "BTC", expiry, basis.SettlementFuture)
}

func TestProcessBucketPersistsLiveObservations(t *testing.T) {
	bucket := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	market := &fakeMarket{
		specs: []basis.ContractSpec{
			futureSpec("BTC-25SEP26", bucket.Add(30*24*time.Hour)),
			futureSpec("BTC-25DEC26", bucket.Add(90*24*time.Hour)),
		},
		mids: map[string]float64{
			"BTC_USDC":    100000,
			"BTC-25SEP26": 100800,
			"BTC-25DEC26": 102500,
		},
	}
	store := &fakeStore{}
	notifier := &fakeNotifier{}

	svc := New(testConfig(), nil, market, nil, store, nil, notifier, flatBenchmark(5), zerolog.Nop())
	if err := svc.ProcessBucket(context.Background(), bucket); err != nil {
		t.Fatalf("process bucket: %v", err)
	}

	if len(store.upserted) != 2 {
		t.Fatalf("expected 2 persisted observations, got %d", len(store.upserted))
	}
	for _, rec := range store.upserted {
		if rec.Currency != "BTC" {
			t.Fatalf("wrong currency on record: %+v", rec)
		}
		if rec.ZScore == nil || rec.Classification == nil {
			t.Fatalf("scored cycle must persist score fields: %+v", rec)
		}
	}
}

func TestProcessBucketAlertsOnRichContract(t *testing.T) {
	bucket := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	// 30-day tenor at +8.22% annualized against a flat 1% median with IQR 2
	// gives a robust Z far above the rich threshold.
	market := &fakeMarket{
		specs: []basis.ContractSpec{futureSpec("BTC-25SEP26", bucket.Add(30*24*time.Hour))},
		mids: map[string]float64{
			"BTC_USDC":    100000,
			"BTC-25SEP26": 100800,
		},
	}
	notifier := &fakeNotifier{}

	svc := New(testConfig(), nil, market, nil, &fakeStore{}, nil, notifier, flatBenchmark(1), zerolog.Nop())
	if err := svc.ProcessBucket(context.Background(), bucket); err != nil {
		t.Fatalf("process bucket: %v", err)
	}

	if len(notifier.sent) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(notifier.sent))
	}
	if notifier.sent[0].Classification != basis.ClassRich {
		t.Fatalf("expected rich classification, got %s", notifier.sent[0].Classification)
	}

	// A repeat bucket inside the cooldown window must stay silent.
	if err := svc.ProcessBucket(context.Background(), bucket.Add(time.Minute)); err != nil {
		t.Fatalf("second bucket: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("cooldown should suppress the repeat alert, got %d", len(notifier.sent))
	}
}

func TestProcessBucketDegradesToHistoryOnListFailure(t *testing.T) {
	bucket := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	market := &fakeMarket{listErr: errors.New("venue down")}
	store := &fakeStore{
		history: []storage.ObservationRecord{
			{
				Currency:     "BTC",
				InstrumentID: "BTC-25SEP26",
				ExpiryKey:    "2026-09-25",
				ObservedAt:   bucket.Add(-time.Minute),
				TenorDays:    30,
				YieldPct:     6.0,
			},
		},
	}

	svc := New(testConfig(), nil, market, nil, store, nil, &fakeNotifier{}, flatBenchmark(5), zerolog.Nop())
	if err := svc.ProcessBucket(context.Background(), bucket); err != nil {
		t.Fatalf("degraded cycle must not fail: %v", err)
	}
	if len(store.upserted) != 0 {
		t.Fatalf("no live rows should be persisted when listing fails, got %d", len(store.upserted))
	}
}

func TestProcessBucketSkipsInstrumentWithoutMid(t *testing.T) {
	bucket := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	market := &fakeMarket{
		specs: []basis.ContractSpec{
			futureSpec("BTC-25SEP26", bucket.Add(30*24*time.Hour)),
			futureSpec("BTC-25DEC26", bucket.Add(90*24*time.Hour)),
		},
		mids: map[string]float64{
			"BTC_USDC":    100000,
			"BTC-25SEP26": 100800,
		},
		midErr: map[string]error{"BTC-25DEC26": errors.New("empty book")},
	}
	store := &fakeStore{}

	svc := New(testConfig(), nil, market, nil, store, nil, &fakeNotifier{}, flatBenchmark(5), zerolog.Nop())
	if err := svc.ProcessBucket(context.Background(), bucket); err != nil {
		t.Fatalf("process bucket: %v", err)
	}
	if len(store.upserted) != 1 {
		t.Fatalf("expected the healthy instrument only, got %d rows", len(store.upserted))
	}
	if store.upserted[0].InstrumentID != "BTC-25SEP26" {
		t.Fatalf("wrong instrument persisted: %+v", store.upserted[0])
	}
}

func TestProcessBucketFailsOnMalformedBenchmark(t *testing.T) {
	bucket := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	market := &fakeMarket{
		specs: []basis.ContractSpec{futureSpec("BTC-25SEP26", bucket.Add(30*24*time.Hour))},
		mids: map[string]float64{
			"BTC_USDC":    100000,
			"BTC-25SEP26": 100800,
		},
	}
	malformed := []basis.BenchmarkRow{
		{TenorDays: 30, MedianYieldPct: 5},
		{TenorDays: 7, MedianYieldPct: 4},
	}

	svc := New(testConfig(), nil, market, nil, &fakeStore{}, nil, &fakeNotifier{}, malformed, zerolog.Nop())
	err := svc.ProcessBucket(context.Background(), bucket)
	if !errors.Is(err, basis.ErrMalformedBenchmark) {
		t.Fatalf("expected malformed benchmark error, got %v", err)
	}
}
