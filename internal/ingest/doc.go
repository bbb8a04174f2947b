// Package ingest reads the raw surveillance files (GeoJSON, shapefiles,
// CSV exports, xlsx workbooks) and reshapes them into the canonical keyed
// form the join engine consumes. Loaders are driven entirely by region
// descriptors; nothing in here knows about a specific country.
package ingest
