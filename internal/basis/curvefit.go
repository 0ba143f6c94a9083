package basis

import (
	"math"
	"sort"
)

// FitMethod identifies a fair-value curve model.
type FitMethod string

const (
	// FitLogLinear is the stiff fit: yield = a*ln(tenor) + b.
	FitLogLinear FitMethod = "log_linear"
	// FitQuadratic is the flex fit: yield = a*tenor^2 + b*tenor + c.
	FitQuadratic FitMethod = "quadratic"
)

// FitCurve is a fitted reference curve evaluated at the input tenors.
// Degenerate marks the fallback case where the fit could not be computed and
// the input y-values were returned unchanged. Curves are ephemeral and
// recomputed every cycle.
type FitCurve struct {
	Method     FitMethod
	TenorDays  []float64
	YieldPct   []float64
	Coeffs     []float64
	Degenerate bool
}

// At evaluates the fitted model at an arbitrary tenor. Degenerate curves have
// no model and return NaN.
func (c FitCurve) At(tenorDays float64) float64 {
	if c.Degenerate || len(c.Coeffs) == 0 {
		return math.NaN()
	}
	switch c.Method {
	case FitLogLinear:
		return c.Coeffs[0]*math.Log(tenorDays) + c.Coeffs[1]
	case FitQuadratic:
		return c.Coeffs[0]*tenorDays*tenorDays + c.Coeffs[1]*tenorDays + c.Coeffs[2]
	}
	return math.NaN()
}

// FitResult carries the curves produced by one cycle. A nil curve means the
// method was disabled or there were fewer than three distinct tenor points.
type FitResult struct {
	LogLinear *FitCurve
	Quadratic *FitCurve
}

// Available reports whether at least one non-degenerate curve was produced.
func (r FitResult) Available() bool {
	return (r.LogLinear != nil && !r.LogLinear.Degenerate) ||
		(r.Quadratic != nil && !r.Quadratic.Degenerate)
}

// Fitter produces fair-value curves for the enabled methods.
type Fitter struct {
	Methods []FitMethod
}

// enabled defaults to both methods when none are configured.
func (f Fitter) enabled(m FitMethod) bool {
	if len(f.Methods) == 0 {
		return true
	}
	for _, have := range f.Methods {
		if have == m {
			return true
		}
	}
	return false
}

// Fit computes the enabled curves over (tenor, yield) pairs. Callers must
// exclude non-positive tenors upstream. Fewer than three distinct tenors
// yields no curves at all; numerical failure on a particular method degrades
// to echoing the input y-values for that method.
func (f Fitter) Fit(tenors, yields []float64) FitResult {
	var result FitResult
	if len(tenors) != len(yields) || distinctCount(tenors) < 3 {
		return result
	}

	if f.enabled(FitLogLinear) {
		result.LogLinear = fitLogLinear(tenors, yields)
	}
	if f.enabled(FitQuadratic) {
		result.Quadratic = fitQuadratic(tenors, yields)
	}
	return result
}

// Residual returns observed minus the log-linear fit at the observed tenor.
// Used for diagnostics only, never as a signal by itself.
func Residual(result FitResult, tenorDays, observedYieldPct float64) float64 {
	if result.LogLinear == nil || result.LogLinear.Degenerate {
		return math.NaN()
	}
	return observedYieldPct - result.LogLinear.At(tenorDays)
}

func distinctCount(values []float64) int {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	count := 0
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			count++
		}
	}
	return count
}

func degenerateCurve(method FitMethod, tenors, yields []float64) *FitCurve {
	return &FitCurve{
		Method:     method,
		TenorDays:  append([]float64(nil), tenors...),
		YieldPct:   append([]float64(nil), yields...),
		Degenerate: true,
	}
}

func fitLogLinear(tenors, yields []float64) *FitCurve {
	n := float64(len(tenors))
	var sx, sy, sxx, sxy float64
	for i, t := range tenors {
		x := math.Log(t)
		sx += x
		sy += yields[i]
		sxx += x * x
		sxy += x * yields[i]
	}

	denom := n*sxx - sx*sx
	if denom == 0 || math.IsNaN(denom) || math.IsInf(denom, 0) {
		return degenerateCurve(FitLogLinear, tenors, yields)
	}

	a := (n*sxy - sx*sy) / denom
	b := (sy - a*sx) / n

	curve := &FitCurve{
		Method:    FitLogLinear,
		TenorDays: append([]float64(nil), tenors...),
		YieldPct:  make([]float64, len(tenors)),
		Coeffs:    []float64{a, b},
	}
	for i, t := range tenors {
		curve.YieldPct[i] = a*math.Log(t) + b
	}
	return curve
}

func fitQuadratic(tenors, yields []float64) *FitCurve {
	// Normal equations for y = a*t^2 + b*t + c.
	var s0, s1, s2, s3, s4 float64
	var sy, sty, st2y float64
	s0 = float64(len(tenors))
	for i, t := range tenors {
		t2 := t * t
		s1 += t
		s2 += t2
		s3 += t2 * t
		s4 += t2 * t2
		sy += yields[i]
		sty += t * yields[i]
		st2y += t2 * yields[i]
	}

	m := [3][4]float64{
		{s4, s3, s2, st2y},
		{s3, s2, s1, sty},
		{s2, s1, s0, sy},
	}

	coeffs, ok := solve3(m)
	if !ok {
		return degenerateCurve(FitQuadratic, tenors, yields)
	}

	curve := &FitCurve{
		Method:    FitQuadratic,
		TenorDays: append([]float64(nil), tenors...),
		YieldPct:  make([]float64, len(tenors)),
		Coeffs:    coeffs,
	}
	for i, t := range tenors {
		curve.YieldPct[i] = coeffs[0]*t*t + coeffs[1]*t + coeffs[2]
	}
	return curve
}

// solve3 runs Gaussian elimination with partial pivoting on a 3x4 augmented
// matrix. Returns false for singular systems.
func solve3(m [3][4]float64) ([]float64, bool) {
	for col := 0; col < 3; col++ {
		pivot := col
		for row := col + 1; row < 3; row++ {
			if math.Abs(m[row][col]) > math.Abs(m[pivot][col]) {
				pivot = row
			}
		}
		if math.Abs(m[pivot][col]) < 1e-12 {
			return nil, false
		}
		m[col], m[pivot] = m[pivot], m[col]

		for row := col + 1; row < 3; row++ {
			factor := m[row][col] / m[col][col]
			for k := col; k < 4; k++ {
				m[row][k] -= factor * m[col][k]
			}
		}
	}

	coeffs := make([]float64, 3)
	for row := 2; row >= 0; row-- {
		sum := m[row][3]
		for k := row + 1; k < 3; k++ {
			sum -= m[row][k] * coeffs[k]
		}
		coeffs[row] = sum / m[row][row]
	}
	for _, c := range coeffs {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, false
		}
	}
	return coeffs, true
}
