package fetcher

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"basis-monitor/internal/basis"
)

// InstrumentLister enumerates the active dated futures for a currency.
// Perpetuals are filtered out before the specs reach the core.
type InstrumentLister interface {
	ListActiveFutures(ctx context.Context, currency string) ([]basis.ContractSpec, error)
}

// MidPriceFetcher retrieves the live mid of best bid/ask for an instrument.
type MidPriceFetcher interface {
	FetchMid(ctx context.Context, instrument string) (decimal.Decimal, error)
}

// IndexPriceFetcher retrieves a settlement index price, distinct from the
// tradable spot mid.
type IndexPriceFetcher interface {
	FetchIndexPrice(ctx context.Context, indexName string) (decimal.Decimal, error)
}

// HistoryFetcher retrieves a close-price series for an instrument. "No data"
// from the venue is an empty series, not an error.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, instrument string, start, end time.Time, resolution string) ([]basis.PricePoint, error)
}

// MarketData is the full market-data collaborator surface the service needs.
type MarketData interface {
	InstrumentLister
	MidPriceFetcher
	IndexPriceFetcher
	HistoryFetcher
}
