package basis

import (
	"math"
	"testing"
)

func TestScoreAtMedianIsZero(t *testing.T) {
	s := Scorer{RichThreshold: 2, CheapThreshold: -2}
	for _, exp := range []Expectation{
		{Median: 5, Q1: 3, Q3: 7},
		{Median: -1, Q1: -4, Q3: 2},
	} {
		if rs := s.Score(exp.Median, exp); rs.ZScore != 0 {
			t.Fatalf("observing the median should score 0, got %f", rs.ZScore)
		}
	}
}

func TestScoreSpecExample(t *testing.T) {
	// Benchmark [(30,5,3,7),(90,8,6,10)] interpolated at tenor 60 gives
	// median 6.5, Q1 4.5, Q3 8.5.
	interp, _ := NewInterpolator(sampleBenchmark())
	exp, _ := interp.Lookup(60)

	s := Scorer{RichThreshold: 2, CheapThreshold: -2}

	if rs := s.Score(6.5, exp); rs.ZScore != 0 {
		t.Fatalf("observed 6.5 at tenor 60 should score 0, got %f", rs.ZScore)
	}

	rs := s.Score(10, exp)
	if math.Abs(rs.IQR-4) > 1e-9 {
		t.Fatalf("expected IQR 4, got %f", rs.IQR)
	}
	if math.Abs(rs.SigmaProxy-4/1.35) > 1e-9 {
		t.Fatalf("expected sigma 4/1.35, got %f", rs.SigmaProxy)
	}
	if math.Abs(rs.ZScore-1.18125) > 1e-4 {
		t.Fatalf("expected z ~1.18, got %f", rs.ZScore)
	}
}

func TestScoreFlatBenchmarkFloorsSigma(t *testing.T) {
	s := Scorer{RichThreshold: 2, CheapThreshold: -2}
	rs := s.Score(8, Expectation{Median: 5, Q1: 5, Q3: 5})
	if math.IsInf(rs.ZScore, 0) || math.IsNaN(rs.ZScore) {
		t.Fatalf("flat benchmark must not produce an infinite score, got %f", rs.ZScore)
	}
	if rs.SigmaProxy != 1 {
		t.Fatalf("zero IQR should floor sigma to 1, got %f", rs.SigmaProxy)
	}
	if rs.ZScore != 3 {
		t.Fatalf("expected z 3 with floored sigma, got %f", rs.ZScore)
	}
	if rs.IQR != 0 {
		t.Fatal("raw IQR must be exposed so consumers can discount the score")
	}
}

func TestClassifyThresholds(t *testing.T) {
	s := Scorer{RichThreshold: 2, CheapThreshold: -2}
	cases := []struct {
		z    float64
		want Classification
	}{
		{2.5, ClassRich},
		{2.0, ClassNormal},
		{0, ClassNormal},
		{-2.0, ClassNormal},
		{-2.5, ClassCheap},
	}
	for _, tc := range cases {
		if got := s.Classify(tc.z); got != tc.want {
			t.Fatalf("z=%f: expected %s, got %s", tc.z, tc.want, got)
		}
	}
}

func TestClassifyAsymmetricThresholds(t *testing.T) {
	s := Scorer{RichThreshold: 1.5, CheapThreshold: -2.5}
	if s.Classify(1.6) != ClassRich {
		t.Fatal("1.6 should be rich with a 1.5 threshold")
	}
	if s.Classify(-2.0) != ClassNormal {
		t.Fatal("-2.0 should be normal with a -2.5 threshold")
	}
}
