package storage

import (
	"time"

	"basis-monitor/internal/basis"
)

// ObservationRecord is a persisted yield observation for one contract at one
// bucket. Score fields are nil when the cycle that produced the row had no
// benchmark to score against.
type ObservationRecord struct {
	Currency       string
	InstrumentID   string
	ExpiryKey      string
	ObservedAt     time.Time
	TenorDays      float64
	ReferencePrice float64
	ContractPrice  float64
	BasisAmount    float64
	YieldPct       float64
	Provenance     basis.Provenance
	ZScore         *float64
	Classification *string
	CreatedAt      time.Time
}

// NewObservationRecord converts a scored observation into its storage shape.
func NewObservationRecord(currency string, obs basis.ScoredObservation) ObservationRecord {
	rec := ObservationRecord{
		Currency:       currency,
		InstrumentID:   obs.InstrumentID,
		ExpiryKey:      obs.ExpiryKey,
		ObservedAt:     obs.ObservedAt,
		TenorDays:      obs.TenorDays,
		ReferencePrice: obs.ReferencePrice,
		ContractPrice:  obs.ContractPrice,
		BasisAmount:    obs.BasisAmount,
		YieldPct:       obs.YieldPct,
		Provenance:     obs.Provenance,
	}
	if obs.Scored {
		z := obs.ZScore
		class := string(obs.Classification)
		rec.ZScore = &z
		rec.Classification = &class
	}
	return rec
}

// Observation converts the record back into the core type. Rows loaded from
// the store always carry history provenance regardless of how they were
// captured: to the current cycle they are history.
func (r ObservationRecord) Observation() basis.YieldObservation {
	return basis.YieldObservation{
		InstrumentID:   r.InstrumentID,
		ExpiryKey:      r.ExpiryKey,
		ObservedAt:     r.ObservedAt,
		TenorDays:      r.TenorDays,
		ReferencePrice: r.ReferencePrice,
		ContractPrice:  r.ContractPrice,
		BasisAmount:    r.BasisAmount,
		YieldPct:       r.YieldPct,
		Provenance:     basis.ProvenanceHistory,
	}
}

func provenanceFromString(v string) basis.Provenance {
	if v == string(basis.ProvenanceLive) {
		return basis.ProvenanceLive
	}
	return basis.ProvenanceHistory
}

// SignalRecord captures an emitted rich/cheap signal for auditing and
// cooldown bookkeeping.
type SignalRecord struct {
	ID             int64
	Currency       string
	InstrumentID   string
	ObservedAt     time.Time
	TenorDays      float64
	YieldPct       float64
	ZScore         float64
	Classification string
	Channels       []string
	CreatedAt      time.Time
}
