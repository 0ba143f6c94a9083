package basis

import (
	"time"

	"github.com/rs/zerolog"
)

// PipelineConfig parameterises one scoring pipeline. Variants of the monitor
// differ only in these values; they are instantiated per currency rather
// than duplicated as separate code paths.
type PipelineConfig struct {
	NearExpiryPolicy NearExpiryPolicy
	MinTenorDays     float64
	MaxTenorDays     float64
	RichThreshold    float64
	CheapThreshold   float64
	FitMethods       []FitMethod
}

// Pipeline runs one scoring cycle: filter, stitch, interpolate, score, fit.
// It is stateless across invocations and safe to run concurrently for
// independent instrument sets.
type Pipeline struct {
	filter     TenorFilter
	annualizer Annualizer
	scorer     Scorer
	fitter     Fitter
	logger     zerolog.Logger
}

// NewPipeline wires the core components from one configuration object.
func NewPipeline(cfg PipelineConfig, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		filter: TenorFilter{
			Policy:       cfg.NearExpiryPolicy,
			MinTenorDays: cfg.MinTenorDays,
			MaxTenorDays: cfg.MaxTenorDays,
		},
		annualizer: Annualizer{
			Policy:       cfg.NearExpiryPolicy,
			MinTenorDays: cfg.MinTenorDays,
		},
		scorer: Scorer{
			RichThreshold:  cfg.RichThreshold,
			CheapThreshold: cfg.CheapThreshold,
		},
		fitter: Fitter{Methods: cfg.FitMethods},
		logger: logger.With().Str("component", "pipeline").Logger(),
	}
}

// BuildObservation annualizes one (contract price, reference price) pair for
// a dated contract. The bool is false when the observation is inadmissible
// (perpetual, filtered tenor); a returned error marks a data-quality
// violation such as a non-positive reference price.
func (p *Pipeline) BuildObservation(spec ContractSpec, contractPrice, referencePrice float64, observedAt time.Time, prov Provenance) (YieldObservation, bool, error) {
	if !spec.IsDated() {
		return YieldObservation{}, false, nil
	}

	tenor := spec.TenorDaysAt(observedAt)
	if !p.filter.Admit(tenor) {
		return YieldObservation{}, false, nil
	}

	yield, err := p.annualizer.Annualize(contractPrice, referencePrice, tenor)
	if err != nil {
		if err == ErrDegenerateTenor {
			// Admitted by the filter but still below the annualizer floor;
			// treat as filtered rather than failing the cycle.
			return YieldObservation{}, false, nil
		}
		return YieldObservation{}, false, err
	}

	effective, _ := p.annualizer.EffectiveTenor(tenor)
	return YieldObservation{
		InstrumentID:   spec.InstrumentID,
		ExpiryKey:      spec.ExpiryKey,
		ObservedAt:     observedAt.UTC(),
		TenorDays:      effective,
		ReferencePrice: referencePrice,
		ContractPrice:  contractPrice,
		BasisAmount:    contractPrice - referencePrice,
		YieldPct:       yield,
		Provenance:     prov,
	}, true, nil
}

// CycleResult is the structured output of one cycle. Stage outcomes are
// tracked independently: a missing benchmark leaves Scored=false on every
// observation while the stitched series and curves remain usable, and a
// degenerate fit leaves the scores intact.
type CycleResult struct {
	// Stitched is the full merged history+live series after filtering.
	Stitched []YieldObservation
	// Scored covers the stitched series; expectation fields are only
	// meaningful where Scored is true on the row.
	Scored []ScoredObservation
	// Latest is the latest-per-contract term structure, scored.
	Latest []ScoredObservation
	// Curves are fitted over the latest term structure.
	Curves FitResult
	// BenchmarkApplied is false when the benchmark table was empty and the
	// cycle therefore carries no scores at all.
	BenchmarkApplied bool
}

// Run executes one full scoring cycle. The only error condition is a
// malformed benchmark table; every other shortfall (no live data, empty
// benchmark, too few points to fit) degrades to a partial CycleResult.
func (p *Pipeline) Run(history, live []YieldObservation, benchmark []BenchmarkRow) (CycleResult, error) {
	interp, err := NewInterpolator(p.filter.FilterBenchmark(benchmark))
	if err != nil {
		return CycleResult{}, err
	}

	stitched := Stitch(
		p.filter.FilterObservations(history),
		p.filter.FilterObservations(live),
	)

	result := CycleResult{
		Stitched:         stitched,
		Scored:           p.scoreAll(stitched, interp),
		BenchmarkApplied: !interp.Empty(),
	}

	latest := LatestPerContract(stitched)
	result.Latest = p.scoreAll(latest, interp)

	tenors := make([]float64, len(latest))
	yields := make([]float64, len(latest))
	for i, o := range latest {
		tenors[i] = o.TenorDays
		yields[i] = o.YieldPct
	}
	result.Curves = p.fitter.Fit(tenors, yields)

	if !result.BenchmarkApplied {
		p.logger.Debug().Msg("benchmark table empty; cycle is unscored")
	}
	return result, nil
}

func (p *Pipeline) scoreAll(obs []YieldObservation, interp *Interpolator) []ScoredObservation {
	scored := make([]ScoredObservation, len(obs))
	for i, o := range obs {
		scored[i] = ScoredObservation{YieldObservation: o}
		exp, ok := interp.Lookup(o.TenorDays)
		if !ok {
			continue
		}
		rs := p.scorer.Score(o.YieldPct, exp)
		scored[i].ExpectedMedian = exp.Median
		scored[i].ExpectedQ1 = exp.Q1
		scored[i].ExpectedQ3 = exp.Q3
		scored[i].IQR = rs.IQR
		scored[i].SigmaProxy = rs.SigmaProxy
		scored[i].ZScore = rs.ZScore
		scored[i].Classification = p.scorer.Classify(rs.ZScore)
		scored[i].Scored = true
	}
	return scored
}
