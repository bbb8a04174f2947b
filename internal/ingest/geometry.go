package ingest

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	ctgeom "github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/simplify"

	"github.com/dengueviewer/atlas-service/internal/config"
	"github.com/dengueviewer/atlas-service/internal/domain"
)

// shape is one boundary feature with its attribute row, canonically keyed
// the same way Table columns are.
type shape struct {
	attrs    map[string]string
	geometry orb.Geometry
}

func (s shape) attr(candidates []string) (string, bool) {
	for _, c := range candidates {
		if v, ok := s.attrs[canonicalColumn(c)]; ok {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// LoadGeometry reads the boundary source described by spec, keys and
// filters its features, attaches areas, and simplifies rings with the given
// Douglas-Peucker tolerance in degrees. Duplicate keys keep the first
// feature seen.
func LoadGeometry(spec config.GeometrySpec, tolerance float64) ([]domain.AdminRegion, error) {
	var (
		shapes []shape
		err    error
	)
	switch spec.Format {
	case config.FormatGeoJSON:
		shapes, err = loadGeoJSONShapes(spec.Path)
	case config.FormatShapefile:
		shapes, err = loadShapefileShapes(spec.Path, spec)
	default:
		err = fmt.Errorf("unsupported geometry format %q", spec.Format)
	}
	if err != nil {
		return nil, err
	}
	if len(shapes) == 0 {
		return nil, fmt.Errorf("%s: no features", spec.Path)
	}

	// Every key part must resolve somewhere in the attribute table before
	// any feature is keyed, so a renamed column fails loudly instead of
	// silently producing an empty join.
	for _, candidates := range spec.KeyFields {
		if !attrPresent(shapes, candidates) {
			return nil, &SchemaError{
				Source:     spec.Path,
				Candidates: candidates,
				Columns:    attrColumns(shapes[0]),
			}
		}
	}

	corrections := domain.Corrections(spec.Key.Corrections)
	seen := make(map[string]bool)
	var regions []domain.AdminRegion

	for _, s := range shapes {
		if spec.Filter != nil {
			v, _ := s.attr(spec.Filter.Fields)
			if !strings.EqualFold(v, spec.Filter.Equals) {
				continue
			}
		}

		key := shapeKey(spec.Key, corrections, spec.KeyFields, s)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true

		name, _ := s.attr(spec.NameFields)
		area := shapeArea(spec.AreaFields, s)

		g := s.geometry
		if tolerance > 0 {
			g = simplify.DouglasPeucker(tolerance).Simplify(g)
		}

		regions = append(regions, domain.AdminRegion{
			Key:      key,
			Name:     name,
			Geometry: g,
			AreaKm2:  area,
		})
	}
	return regions, nil
}

func shapeKey(spec config.KeySpec, corrections domain.Corrections, keyFields [][]string, s shape) string {
	if spec.Kind == config.KeyComposite {
		parts := make([]string, 0, len(keyFields))
		empty := true
		for _, candidates := range keyFields {
			v, _ := s.attr(candidates)
			if v != "" {
				empty = false
			}
			parts = append(parts, v)
		}
		if empty {
			return ""
		}
		return domain.CompositeKey(corrections, parts...)
	}

	v, _ := s.attr(keyFields[0])
	return domain.CodeKey(v, spec.Width)
}

// shapeArea takes the first usable precomputed area attribute, converted to
// km² through its divisor, and falls back to the geodesic area otherwise.
func shapeArea(fields []config.AreaFieldSpec, s shape) float64 {
	for _, f := range fields {
		raw, ok := s.attr([]string{f.Field})
		if !ok {
			continue
		}
		v, err := parseNumber(raw)
		if err != nil || v <= 0 {
			continue
		}
		div := f.Divisor
		if div == 0 {
			div = 1
		}
		return v / div
	}
	return geo.Area(s.geometry) / 1e6
}

func attrPresent(shapes []shape, candidates []string) bool {
	for _, s := range shapes {
		if _, ok := s.attr(candidates); ok {
			return true
		}
	}
	return false
}

func attrColumns(s shape) []string {
	cols := make([]string, 0, len(s.attrs))
	for k := range s.attrs {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

func loadGeoJSONShapes(path string) ([]shape, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MissingResourceError{Path: path}
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	shapes := make([]shape, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		attrs := make(map[string]string, len(f.Properties))
		for k, v := range f.Properties {
			attrs[canonicalColumn(k)] = propString(v)
		}
		shapes = append(shapes, shape{attrs: attrs, geometry: f.Geometry})
	}
	return shapes, nil
}

func propString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		return fmt.Sprint(t)
	}
}

func loadShapefileShapes(path string, spec config.GeometrySpec) ([]shape, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &MissingResourceError{Path: path}
	}

	// The decoder errors on an unknown attribute name, so each configured
	// candidate is probed individually and only present ones are requested
	// from the full read.
	fields := presentShapefileFields(path, candidateFields(spec))

	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("open shapefile %s: %w", path, err)
	}
	defer d.Close()

	var shapes []shape
	for {
		g, attrs, more := d.DecodeRowFields(fields...)
		if !more {
			break
		}
		og, err := orbFromGeom(g)
		if err != nil {
			continue
		}
		row := make(map[string]string, len(attrs))
		for k, v := range attrs {
			row[canonicalColumn(k)] = v
		}
		shapes = append(shapes, shape{attrs: row, geometry: og})
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("decode shapefile %s: %w", path, err)
	}
	return shapes, nil
}

// candidateFields flattens every attribute name a descriptor may consult.
func candidateFields(spec config.GeometrySpec) []string {
	var out []string
	for _, set := range spec.KeyFields {
		out = append(out, set...)
	}
	out = append(out, spec.NameFields...)
	for _, f := range spec.AreaFields {
		out = append(out, f.Field)
	}
	if spec.Filter != nil {
		out = append(out, spec.Filter.Fields...)
	}
	return out
}

func presentShapefileFields(path string, candidates []string) []string {
	var present []string
	seen := make(map[string]bool)
	for _, c := range candidates {
		if seen[c] {
			continue
		}
		seen[c] = true
		if shapefileHasField(path, c) {
			present = append(present, c)
		}
	}
	return present
}

func shapefileHasField(path, field string) bool {
	d, err := shp.NewDecoder(path)
	if err != nil {
		return false
	}
	defer d.Close()

	_, attrs, more := d.DecodeRowFields(field)
	if !more || d.Error() != nil {
		return false
	}
	_, ok := attrs[field]
	return ok
}

// orbFromGeom converts a decoded polygonal feature to its orb counterpart.
func orbFromGeom(g ctgeom.Geom) (orb.Geometry, error) {
	p, ok := g.(ctgeom.Polygonal)
	if !ok {
		return nil, fmt.Errorf("feature is %T, not polygonal", g)
	}

	polys := p.Polygons()
	out := make(orb.MultiPolygon, 0, len(polys))
	for _, poly := range polys {
		op := make(orb.Polygon, 0, len(poly))
		for _, ring := range poly {
			or := make(orb.Ring, 0, len(ring))
			for _, pt := range ring {
				or = append(or, orb.Point{pt.X, pt.Y})
			}
			op = append(op, or)
		}
		out = append(out, op)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("feature has no rings")
	}
	if len(out) == 1 {
		return out[0], nil
	}
	return out, nil
}
