package basis

import "sort"

// Stitch merges a historical series with the live snapshot into one unified
// series. It is a plain concatenation: provenance is preserved and no
// timestamp de-duplication happens, so a live row landing on a historical
// bucket keeps both (consumers select by provenance). An empty live set means
// "no live signal" and degrades to history-only; it is not an error.
//
// The result is ordered by (instrument, observed_at, provenance) so repeated
// stitching of the same inputs is byte-for-byte identical.
func Stitch(history, live []YieldObservation) []YieldObservation {
	merged := make([]YieldObservation, 0, len(history)+len(live))
	merged = append(merged, history...)
	merged = append(merged, live...)
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].InstrumentID != merged[j].InstrumentID {
			return merged[i].InstrumentID < merged[j].InstrumentID
		}
		if !merged[i].ObservedAt.Equal(merged[j].ObservedAt) {
			return merged[i].ObservedAt.Before(merged[j].ObservedAt)
		}
		return merged[i].Provenance < merged[j].Provenance
	})
	return merged
}

// LatestPerContract selects, per instrument, the observation with the
// maximum observed_at. On an exact timestamp tie the live row wins. The
// result is sorted by tenor ascending so it reads as a term structure.
func LatestPerContract(obs []YieldObservation) []YieldObservation {
	latest := make(map[string]YieldObservation, len(obs))
	for _, o := range obs {
		have, ok := latest[o.InstrumentID]
		if !ok || o.ObservedAt.After(have.ObservedAt) {
			latest[o.InstrumentID] = o
			continue
		}
		if o.ObservedAt.Equal(have.ObservedAt) && o.Provenance == ProvenanceLive && have.Provenance != ProvenanceLive {
			latest[o.InstrumentID] = o
		}
	}

	result := make([]YieldObservation, 0, len(latest))
	for _, o := range latest {
		result = append(result, o)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].TenorDays != result[j].TenorDays {
			return result[i].TenorDays < result[j].TenorDays
		}
		return result[i].InstrumentID < result[j].InstrumentID
	})
	return result
}
