package basis

import (
	"errors"
	"math"
	"testing"
)

func sampleBenchmark() []BenchmarkRow {
	return []BenchmarkRow{
		{TenorDays: 30, MedianYieldPct: 5, Q1YieldPct: 3, Q3YieldPct: 7},
		{TenorDays: 90, MedianYieldPct: 8, Q1YieldPct: 6, Q3YieldPct: 10},
	}
}

func TestInterpolatorExactRowLookup(t *testing.T) {
	interp, err := NewInterpolator(sampleBenchmark())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exp, ok := interp.Lookup(30)
	if !ok {
		t.Fatal("lookup on a populated table should succeed")
	}
	if exp.Median != 5 || exp.Q1 != 3 || exp.Q3 != 7 {
		t.Fatalf("exact tenor should return the row verbatim, got %+v", exp)
	}
}

func TestInterpolatorMidpoint(t *testing.T) {
	interp, _ := NewInterpolator(sampleBenchmark())
	exp, ok := interp.Lookup(60)
	if !ok {
		t.Fatal("lookup should succeed")
	}
	if math.Abs(exp.Median-6.5) > 1e-9 {
		t.Fatalf("expected median 6.5 at tenor 60, got %f", exp.Median)
	}
	if math.Abs(exp.Q1-4.5) > 1e-9 || math.Abs(exp.Q3-8.5) > 1e-9 {
		t.Fatalf("expected Q1 4.5 and Q3 8.5, got %+v", exp)
	}
}

func TestInterpolatorExtrapolatesBeyondRange(t *testing.T) {
	interp, _ := NewInterpolator(sampleBenchmark())

	// Above the table: continue the last segment's slope (3 per 60 days).
	exp, _ := interp.Lookup(150)
	if math.Abs(exp.Median-11) > 1e-9 {
		t.Fatalf("expected extrapolated median 11 at tenor 150, got %f", exp.Median)
	}

	// Below the table: same slope going down, no clamping to the edge row.
	exp, _ = interp.Lookup(0)
	if math.Abs(exp.Median-3.5) > 1e-9 {
		t.Fatalf("expected extrapolated median 3.5 at tenor 0, got %f", exp.Median)
	}
}

func TestInterpolatorEmptyTable(t *testing.T) {
	interp, err := NewInterpolator(nil)
	if err != nil {
		t.Fatalf("empty table is valid: %v", err)
	}
	if !interp.Empty() {
		t.Fatal("interpolator should report empty")
	}
	if _, ok := interp.Lookup(30); ok {
		t.Fatal("empty table must yield no expectation, never a zero one")
	}
}

func TestInterpolatorSingleRowIsFlat(t *testing.T) {
	interp, _ := NewInterpolator([]BenchmarkRow{{TenorDays: 30, MedianYieldPct: 5, Q1YieldPct: 3, Q3YieldPct: 7}})
	for _, tenor := range []float64{1, 30, 180} {
		exp, ok := interp.Lookup(tenor)
		if !ok || exp.Median != 5 {
			t.Fatalf("single-row table should be flat at median 5, got %+v ok=%v", exp, ok)
		}
	}
}

func TestInterpolatorRejectsMalformedRows(t *testing.T) {
	cases := [][]BenchmarkRow{
		{{TenorDays: 90}, {TenorDays: 30}},
		{{TenorDays: 30}, {TenorDays: 30}},
	}
	for _, rows := range cases {
		if _, err := NewInterpolator(rows); !errors.Is(err, ErrMalformedBenchmark) {
			t.Fatalf("rows %+v should fail with ErrMalformedBenchmark, got %v", rows, err)
		}
	}
}
