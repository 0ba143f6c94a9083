package basis

// Expectation is the interpolated fair-value stats at one tenor.
type Expectation struct {
	Median float64
	Q1     float64
	Q3     float64
}

// Interpolator answers expected median/Q1/Q3 lookups at arbitrary tenors by
// piecewise-linear interpolation over the benchmark table. The table is
// immutable once validated, so one Interpolator may be shared across
// concurrent cycles without locking.
type Interpolator struct {
	rows []BenchmarkRow
}

// NewInterpolator validates and wraps a benchmark table. Rows must be sorted
// ascending by tenor with no duplicates; violations are a data-quality bug
// and fail with ErrMalformedBenchmark rather than being silently reconciled.
// An empty table is valid and yields a no-op interpolator.
func NewInterpolator(rows []BenchmarkRow) (*Interpolator, error) {
	for i := 1; i < len(rows); i++ {
		if rows[i].TenorDays <= rows[i-1].TenorDays {
			return nil, ErrMalformedBenchmark
		}
	}
	return &Interpolator{rows: rows}, nil
}

// Empty reports whether the interpolator holds no benchmark rows. Callers
// must treat an empty benchmark as "no score", never as a zero score.
func (it *Interpolator) Empty() bool {
	return it == nil || len(it.rows) == 0
}

// Lookup returns the expected stats at a tenor. Tenors exactly on a row
// return that row's values; tenors between rows interpolate linearly; tenors
// outside the table extrapolate along the nearest segment's slope (no
// clamping to the boundary value). A single-row table is flat everywhere.
// The bool is false when the table is empty.
func (it *Interpolator) Lookup(tenorDays float64) (Expectation, bool) {
	if it.Empty() {
		return Expectation{}, false
	}

	rows := it.rows
	if len(rows) == 1 {
		r := rows[0]
		return Expectation{Median: r.MedianYieldPct, Q1: r.Q1YieldPct, Q3: r.Q3YieldPct}, true
	}

	// Pick the segment: the nearest one for out-of-range tenors.
	hi := 1
	for hi < len(rows)-1 && rows[hi].TenorDays < tenorDays {
		hi++
	}
	lo := hi - 1

	frac := (tenorDays - rows[lo].TenorDays) / (rows[hi].TenorDays - rows[lo].TenorDays)
	return Expectation{
		Median: lerp(rows[lo].MedianYieldPct, rows[hi].MedianYieldPct, frac),
		Q1:     lerp(rows[lo].Q1YieldPct, rows[hi].Q1YieldPct, frac),
		Q3:     lerp(rows[lo].Q3YieldPct, rows[hi].Q3YieldPct, frac),
	}, true
}

// lerp is an unclamped linear interpolation; frac outside [0,1] extrapolates.
func lerp(a, b, frac float64) float64 {
	return a + (b-a)*frac
}
