package basis

import (
	"errors"
	"math"
	"testing"
)

func TestAnnualizeZeroBasis(t *testing.T) {
	a := Annualizer{Policy: PolicyExclude, MinTenorDays: 2}
	for _, price := range []float64{1, 42_000, 100_000} {
		for _, tenor := range []float64{2, 30, 180} {
			yield, err := a.Annualize(price, price, tenor)
			if err != nil {
				t.Fatalf("equal prices should not error: %v", err)
			}
			if yield != 0 {
				t.Fatalf("equal prices should yield 0, got %f", yield)
			}
		}
	}
}

func TestAnnualizeKnownValue(t *testing.T) {
	a := Annualizer{Policy: PolicyExclude, MinTenorDays: 2}
	// 1% basis over 36.5 days annualizes to 10%.
	yield, err := a.Annualize(101_000, 100_000, 36.5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(yield-10) > 1e-9 {
		t.Fatalf("expected 10%%, got %f", yield)
	}
}

func TestAnnualizeMonotonicInContractPrice(t *testing.T) {
	a := Annualizer{Policy: PolicyExclude, MinTenorDays: 2}
	prev := math.Inf(-1)
	for _, contract := range []float64{99_000, 100_000, 101_000, 102_000} {
		yield, err := a.Annualize(contract, 100_000, 30)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if yield <= prev {
			t.Fatalf("yield should increase with contract price: %f then %f", prev, yield)
		}
		prev = yield
	}
}

func TestAnnualizeDecreasingInTenor(t *testing.T) {
	a := Annualizer{Policy: PolicyExclude, MinTenorDays: 2}
	prev := math.Inf(1)
	for _, tenor := range []float64{7, 30, 90, 180} {
		yield, err := a.Annualize(101_000, 100_000, tenor)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if yield >= prev {
			t.Fatalf("positive basis yield should shrink with tenor: %f then %f", prev, yield)
		}
		prev = yield
	}
}

func TestAnnualizeInvalidReference(t *testing.T) {
	a := Annualizer{Policy: PolicyExclude, MinTenorDays: 2}
	for _, ref := range []float64{0, -1} {
		if _, err := a.Annualize(100, ref, 30); !errors.Is(err, ErrInvalidReference) {
			t.Fatalf("reference %f should fail with ErrInvalidReference, got %v", ref, err)
		}
	}
}

func TestAnnualizeDegenerateTenorExcludePolicy(t *testing.T) {
	a := Annualizer{Policy: PolicyExclude, MinTenorDays: 2}
	for _, tenor := range []float64{0, -1, 1.9} {
		if _, err := a.Annualize(101, 100, tenor); !errors.Is(err, ErrDegenerateTenor) {
			t.Fatalf("tenor %f should fail with ErrDegenerateTenor, got %v", tenor, err)
		}
	}
}

func TestAnnualizeClampPolicyFloorsTenor(t *testing.T) {
	a := Annualizer{Policy: PolicyClamp}
	yield, err := a.Annualize(101_000, 100_000, 0)
	if err != nil {
		t.Fatalf("clamp policy should not error on zero tenor: %v", err)
	}
	// Floored to 0.5 days: 1% * 365/0.5 * 100 = 730%.
	if math.Abs(yield-730) > 1e-9 {
		t.Fatalf("expected clamped yield 730, got %f", yield)
	}
}
