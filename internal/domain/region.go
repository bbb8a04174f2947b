package domain

import "github.com/paulmach/orb"

// AdminRegion is one administrative unit from a boundary source: a country,
// province, department, subdistrict, or municipality. It is created at
// geometry-load time and immutable thereafter; time-varying case metrics are
// attached per slice by the join engine, never stored here.
type AdminRegion struct {
	// Key is the join key linking this unit to its case records.
	Key string
	// Name is the display name from the boundary source.
	Name string
	// Geometry is a polygon or multipolygon in WGS-84 longitude/latitude,
	// already simplified for transmission.
	Geometry orb.Geometry
	// AreaKm2 is the unit's area in square kilometres, computed geodesically
	// from the unsimplified geometry or taken from a source attribute.
	AreaKm2 float64
	// Population is the resident population, 0 when unknown.
	Population float64
}

// CaseRecord is one (region, time bucket) observation after key
// normalization. Records sharing (Key, Bucket) must be summed, never
// overwritten.
type CaseRecord struct {
	Key    string  `json:"key"`
	Bucket string  `json:"bucket"`
	Cases  float64 `json:"cases"`
	// Name carries the source's display spelling, used when the boundary
	// attribute table has no usable name.
	Name string `json:"name,omitempty"`
	// Incidence is a source-precomputed per-capita rate, carried through for
	// regions without a population table. 0 when the source has none.
	Incidence float64 `json:"incidence,omitempty"`
}
