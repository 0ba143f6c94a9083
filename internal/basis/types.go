package basis

import (
	"errors"
	"time"
)

var (
	// ErrInvalidReference indicates a non-positive reference price reached the annualizer.
	ErrInvalidReference = errors.New("basis: reference price must be positive")
	// ErrDegenerateTenor indicates a tenor at or below the admissible floor reached the annualizer.
	ErrDegenerateTenor = errors.New("basis: tenor is zero, negative, or below the configured floor")
	// ErrMalformedBenchmark indicates benchmark rows are unsorted or contain duplicate tenors.
	ErrMalformedBenchmark = errors.New("basis: benchmark rows must be sorted ascending with unique tenors")
)

// Provenance distinguishes historical buckets from the live snapshot.
type Provenance string

const (
	ProvenanceHistory Provenance = "history"
	ProvenanceLive    Provenance = "live"
)

// SettlementKind classifies a contract's settlement schedule.
type SettlementKind string

const (
	SettlementFuture    SettlementKind = "future"
	SettlementPerpetual SettlementKind = "perpetual"
)

// Classification labels an observation relative to the benchmark curve.
type Classification string

const (
	ClassRich   Classification = "rich"
	ClassCheap  Classification = "cheap"
	ClassNormal Classification = "normal"
)

// PricePoint is a single mid-price sample supplied by the market-data layer.
type PricePoint struct {
	InstrumentID string
	Timestamp    time.Time
	Price        float64
}

// ContractSpec describes a tradable contract. ExpiryKey is the contract's
// expiry date rendered as YYYY-MM-DD, computed once at load so cross-currency
// joins never parse instrument names.
type ContractSpec struct {
	InstrumentID string
	Currency     string
	Expiry       time.Time
	Settlement   SettlementKind
	ExpiryKey    string
}

// NewContractSpec builds a ContractSpec with its derived expiry key.
func NewContractSpec(instrumentID, currency string, expiry time.Time, settlement SettlementKind) ContractSpec {
	return ContractSpec{
		InstrumentID: instrumentID,
		Currency:     currency,
		Expiry:       expiry.UTC(),
		Settlement:   settlement,
		ExpiryKey:    expiry.UTC().Format("2006-01-02"),
	}
}

// IsDated reports whether the contract has a fixed expiry and therefore a
// defined tenor. Perpetuals are excluded from all term-structure work.
func (c ContractSpec) IsDated() bool {
	return c.Settlement != SettlementPerpetual && !c.Expiry.IsZero()
}

// TenorDaysAt returns the fractional days remaining until expiry.
func (c ContractSpec) TenorDaysAt(now time.Time) float64 {
	return c.Expiry.Sub(now).Hours() / 24
}

// YieldObservation is one annualized basis reading for one contract at one
// point in time. Instances are never mutated; a new cycle produces a new set.
type YieldObservation struct {
	InstrumentID   string
	ExpiryKey      string
	ObservedAt     time.Time
	TenorDays      float64
	ReferencePrice float64
	ContractPrice  float64
	BasisAmount    float64
	YieldPct       float64
	Provenance     Provenance
}

// ScoredObservation extends a YieldObservation with benchmark expectations
// and the robust Z-score. Scored is false when no benchmark was available;
// in that case the expectation fields are meaningless and must not be read.
type ScoredObservation struct {
	YieldObservation

	ExpectedMedian float64
	ExpectedQ1     float64
	ExpectedQ3     float64
	IQR            float64
	SigmaProxy     float64
	ZScore         float64
	Classification Classification
	Scored         bool
}

// BenchmarkRow is one tenor bucket of the historical fair-value table.
type BenchmarkRow struct {
	TenorDays      float64
	MedianYieldPct float64
	Q1YieldPct     float64
	Q3YieldPct     float64
}
