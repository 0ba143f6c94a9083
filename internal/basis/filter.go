package basis

// TenorFilter is the single admission gate for tenor values. It must be
// invoked identically for benchmark rows, historical observations, and live
// snapshots; the interpolator and scorer both assume the three inputs share
// one admissible tenor domain.
type TenorFilter struct {
	Policy       NearExpiryPolicy
	MinTenorDays float64
	MaxTenorDays float64
}

// Admit reports whether a tenor falls inside the admissible range. Under the
// clamp policy any positive-or-clampable tenor passes the lower bound, since
// the annualizer will floor it; under the exclude policy the configured
// minimum applies.
func (f TenorFilter) Admit(tenorDays float64) bool {
	if f.MaxTenorDays > 0 && tenorDays > f.MaxTenorDays {
		return false
	}
	if f.Policy == PolicyClamp {
		return true
	}
	return tenorDays > 0 && tenorDays >= f.MinTenorDays
}

// FilterObservations returns the observations whose tenor is admissible.
func (f TenorFilter) FilterObservations(obs []YieldObservation) []YieldObservation {
	kept := make([]YieldObservation, 0, len(obs))
	for _, o := range obs {
		if f.Admit(o.TenorDays) {
			kept = append(kept, o)
		}
	}
	return kept
}

// FilterBenchmark returns the benchmark rows whose tenor is admissible.
func (f TenorFilter) FilterBenchmark(rows []BenchmarkRow) []BenchmarkRow {
	kept := make([]BenchmarkRow, 0, len(rows))
	for _, r := range rows {
		if f.Admit(r.TenorDays) {
			kept = append(kept, r)
		}
	}
	return kept
}
