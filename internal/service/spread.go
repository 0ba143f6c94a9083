package service

import (
	"sort"

	"basis-monitor/internal/basis"
)

// SpreadRow pairs two currencies' contracts that settle on the same date and
// carries the difference of their annualized yields.
type SpreadRow struct {
	ExpiryKey       string
	BaseInstrument  string
	QuoteInstrument string
	BaseYieldPct    float64
	QuoteYieldPct   float64
	SpreadPct       float64
}

// JoinOnExpiry inner-joins two latest term structures on the contract expiry
// date. Expiries present on only one side are dropped. Rows come back sorted
// by expiry date; the key format (YYYY-MM-DD) makes lexicographic order
// chronological.
func JoinOnExpiry(base, quote []basis.ScoredObservation) []SpreadRow {
	quoteByExpiry := make(map[string]basis.ScoredObservation, len(quote))
	for _, obs := range quote {
		quoteByExpiry[obs.ExpiryKey] = obs
	}

	rows := make([]SpreadRow, 0, len(base))
	for _, b := range base {
		q, ok := quoteByExpiry[b.ExpiryKey]
		if !ok {
			continue
		}
		rows = append(rows, SpreadRow{
			ExpiryKey:       b.ExpiryKey,
			BaseInstrument:  b.InstrumentID,
			QuoteInstrument: q.InstrumentID,
			BaseYieldPct:    b.YieldPct,
			QuoteYieldPct:   q.YieldPct,
			SpreadPct:       b.YieldPct - q.YieldPct,
		})
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ExpiryKey < rows[j].ExpiryKey })
	return rows
}
