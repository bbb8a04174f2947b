// Package domain models dengue surveillance data and the reconciliation rules
// that join heterogeneous case-count tables to heterogeneous boundary sources.
//
// # Data Sources
//
// Case counts arrive as per-region tables published by national health
// authorities: a global weekly table keyed by ISO-3166 alpha-3 country code,
// Thai monthly province matrices, a Bangkok weekly subdistrict table keyed by
// ADM3 p-code, Argentine weekly department rows keyed by free-text
// province/department names, and Brazilian daily municipality rows keyed by
// IBGE municipality code. Boundary polygons come from equally heterogeneous
// sources (GeoJSON and shapefiles) whose attribute tables spell the same
// administrative names and codes differently.
//
// # Join Keys
//
// A join key is a normalized string computed deterministically from one or
// more raw text or code fields. Two constructions exist:
//
//	composite: normalized name parts joined by "_", e.g.
//	  "BUENOS AIRES_SAN MARTIN". The parent part disambiguates child units
//	  whose bare names collide across provinces.
//	code: a numeric/string code with any trailing ".0" decimal artifact
//	  stripped and the result truncated to a fixed width, e.g. the 7-digit
//	  IBGE code 2504108 keyed at 6 digits as "250410".
//
// Name normalization uppercases, trims, strips diacritics (Unicode
// decomposition with combining marks removed), and collapses internal
// whitespace, so "São Paulo ", "SAO PAULO" and "sao  paulo" all produce the
// same key fragment. Known alias spellings are rewritten to the geometry
// source's canonical name by per-region correction tables, applied after
// normalization and before key composition.
//
// # Aggregation Invariant
//
// Multiple raw rows mapping to the same (key, time bucket) after
// normalization are summed, never overwritten. Correction tables can fold two
// source spellings into one canonical unit; their counts must add.
//
// # Time Buckets
//
// A time bucket is a discrete period identifier string: an ISO week
// ("2024-W05"), a bare year-week pair ("2024-05"), or a calendar date
// ("2024-01-01"), depending on the region's reporting granularity. Buckets
// sort lexicographically in chronological order by construction.
//
// # Derived Metrics
//
// Metrics are computed per record after the join, never before, so regions
// zero-filled by the left-outer join get zero metrics rather than undefined
// ones:
//
//	density   = cases / area_km2          (0 when area is 0)
//	incidence = cases / population × 1e5  (0 when population is 0)
package domain
