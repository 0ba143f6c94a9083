package basis

const (
	daysPerYear = 365.0
	// clampFloorDays is the substitute tenor applied to at-or-past-expiry
	// contracts under the clamp policy.
	clampFloorDays = 0.5
)

// NearExpiryPolicy selects how contracts close to expiry are handled.
// Exactly one policy applies per pipeline and it governs history, live
// snapshot, and benchmark admission alike.
type NearExpiryPolicy string

const (
	// PolicyExclude drops any tenor below the configured minimum.
	PolicyExclude NearExpiryPolicy = "exclude"
	// PolicyClamp floors non-positive tenors to half a day instead of
	// excluding them, matching the behaviour of the live dashboard.
	PolicyClamp NearExpiryPolicy = "clamp"
)

// Valid reports whether the policy is a known value.
func (p NearExpiryPolicy) Valid() bool {
	return p == PolicyExclude || p == PolicyClamp
}

// Annualizer converts raw price pairs into annualized basis yields under a
// 365-day count convention.
type Annualizer struct {
	Policy       NearExpiryPolicy
	MinTenorDays float64
}

// EffectiveTenor applies the near-expiry policy to a raw tenor. The returned
// bool is false when the observation must be excluded.
func (a Annualizer) EffectiveTenor(tenorDays float64) (float64, bool) {
	if a.Policy == PolicyClamp {
		if tenorDays <= 0 {
			return clampFloorDays, true
		}
		return tenorDays, true
	}
	if tenorDays <= 0 || tenorDays < a.MinTenorDays {
		return 0, false
	}
	return tenorDays, true
}

// Annualize computes the annualized basis yield in percent:
//
//	((contract - reference) / reference) * (365 / tenor) * 100
//
// It is a pure function. The reference price must be positive and the tenor
// must survive the near-expiry policy, otherwise a typed error is returned.
func (a Annualizer) Annualize(contractPrice, referencePrice, tenorDays float64) (float64, error) {
	if referencePrice <= 0 {
		return 0, ErrInvalidReference
	}
	tenor, ok := a.EffectiveTenor(tenorDays)
	if !ok {
		return 0, ErrDegenerateTenor
	}
	basisPct := (contractPrice - referencePrice) / referencePrice
	return basisPct * (daysPerYear / tenor) * 100, nil
}
