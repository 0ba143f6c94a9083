package basis

// iqrToSigma approximates the IQR-to-standard-deviation ratio of a normal
// distribution. A modelling choice, not a universal constant.
const iqrToSigma = 1.35

// Scorer converts observed yields into robust Z-scores against benchmark
// expectations and classifies them with configurable thresholds.
type Scorer struct {
	// RichThreshold flags observations with z above it as rich; typical 2.0.
	RichThreshold float64
	// CheapThreshold flags observations with z below it as cheap; typical -2.0.
	CheapThreshold float64
}

// RobustScore holds the score and its inputs. IQR is exposed beside the
// Z-score because scores computed near a flat benchmark region (IQR == 0,
// sigma floored to 1) are unreliable and consumers may want to discount them.
type RobustScore struct {
	ZScore     float64
	IQR        float64
	SigmaProxy float64
}

// Score computes the robust Z-score of an observed yield:
//
//	sigma = (q3 - q1) / 1.35, floored to 1 when the IQR is zero
//	z = (observed - median) / sigma
//
// The floor avoids division by zero at flat benchmark tenors.
func (s Scorer) Score(observedYieldPct float64, exp Expectation) RobustScore {
	iqr := exp.Q3 - exp.Q1
	sigma := iqr / iqrToSigma
	if iqr == 0 {
		sigma = 1
	}
	return RobustScore{
		ZScore:     (observedYieldPct - exp.Median) / sigma,
		IQR:        iqr,
		SigmaProxy: sigma,
	}
}

// Classify maps a Z-score onto the rich/cheap/normal labels.
func (s Scorer) Classify(z float64) Classification {
	switch {
	case z > s.RichThreshold:
		return ClassRich
	case z < s.CheapThreshold:
		return ClassCheap
	default:
		return ClassNormal
	}
}
