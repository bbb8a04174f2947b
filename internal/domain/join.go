package domain

import (
	"math"

	"github.com/paulmach/orb"
)

// EnrichedRecord is the ephemeral output of a time-slice join: one
// administrative unit with its case count and derived metrics for a single
// time bucket. Never persisted.
type EnrichedRecord struct {
	Key        string
	Name       string
	Cases      float64
	AreaKm2    float64
	Population float64
	Density    float64
	Incidence  float64
	Geometry   orb.Geometry
}

// Coverage describes the overlap between the geometry key set and the case
// key set. Shared == 0 with both sides populated means the join is
// misconfigured and every slice will render empty.
type Coverage struct {
	GeometryKeys int
	CaseKeys     int
	Shared       int
}

// TimeSlice left-outer-joins one time bucket of the case table onto the full
// geometry set. Every region appears in the output: units absent from the
// case table get zero cases, not omission. Density and incidence are computed
// here, after the join, so zero-filled units get zero metrics.
func TimeSlice(regions []AdminRegion, cases CaseTable, bucket string) []EnrichedRecord {
	totals := cases.Aggregate(bucket)

	out := make([]EnrichedRecord, 0, len(regions))
	for _, region := range regions {
		total := totals[region.Key]

		rec := EnrichedRecord{
			Key:        region.Key,
			Name:       region.Name,
			Cases:      total.Cases,
			AreaKm2:    region.AreaKm2,
			Population: region.Population,
			Geometry:   region.Geometry,
		}
		if total.Name != "" {
			rec.Name = total.Name
		}

		if region.AreaKm2 > 0 {
			rec.Density = rec.Cases / region.AreaKm2
		}
		switch {
		case region.Population > 0:
			rec.Incidence = round2(rec.Cases / region.Population * 100000)
		default:
			// Some sources ship a precomputed per-capita rate; use it when no
			// population is known.
			rec.Incidence = total.Incidence
		}

		out = append(out, rec)
	}
	return out
}

// KeyCoverage reports the sizes of both key sets and their intersection so a
// silent join miscoverage is detectable instead of rendering an empty map
// with no signal.
func KeyCoverage(regions []AdminRegion, cases CaseTable) Coverage {
	geomKeys := make(map[string]struct{}, len(regions))
	for _, r := range regions {
		geomKeys[r.Key] = struct{}{}
	}
	caseKeys := cases.Keys()

	shared := 0
	for k := range caseKeys {
		if _, ok := geomKeys[k]; ok {
			shared++
		}
	}
	return Coverage{
		GeometryKeys: len(geomKeys),
		CaseKeys:     len(caseKeys),
		Shared:       shared,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
