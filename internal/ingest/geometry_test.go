package ingest

import (
	"path/filepath"
	"testing"

	ctgeom "github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dengueviewer/atlas-service/internal/config"
)

const worldFixture = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"iso3": "AAA", "name": "Alphaland", "area_km2": 1234.5},
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}
    },
    {
      "type": "Feature",
      "properties": {"iso3": "BBB", "name": "Betaland", "area_km2": 99.0},
      "geometry": {"type": "Polygon", "coordinates": [[[2,0],[3,0],[3,1],[2,1],[2,0]]]}
    }
  ]
}`

func worldSpec(path string) config.GeometrySpec {
	return config.GeometrySpec{
		Path:       path,
		Format:     config.FormatGeoJSON,
		Key:        config.KeySpec{Kind: config.KeyCode},
		KeyFields:  [][]string{{"iso3"}},
		NameFields: []string{"name"},
		AreaFields: []config.AreaFieldSpec{{Field: "area_km2", Divisor: 1}},
	}
}

func TestLoadGeometryGeoJSON(t *testing.T) {
	path := writeFixture(t, "world.geojson", worldFixture)

	regions, err := LoadGeometry(worldSpec(path), 0)
	require.NoError(t, err)
	require.Len(t, regions, 2)

	assert.Equal(t, "AAA", regions[0].Key)
	assert.Equal(t, "Alphaland", regions[0].Name)
	assert.Equal(t, 1234.5, regions[0].AreaKm2)
	assert.NotNil(t, regions[0].Geometry)
}

func TestLoadGeometryAreaFallback(t *testing.T) {
	path := writeFixture(t, "world.geojson", worldFixture)
	spec := worldSpec(path)
	spec.AreaFields = nil

	regions, err := LoadGeometry(spec, 0)
	require.NoError(t, err)

	// A one-degree square near the equator is roughly 12,300 km².
	assert.Greater(t, regions[0].AreaKm2, 10000.0)
	assert.Less(t, regions[0].AreaKm2, 15000.0)
}

func TestLoadGeometryAreaDivisor(t *testing.T) {
	fixture := `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"ADM3_PCODE": "100101", "Shape_Area": 2000000},
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}
    }
  ]
}`
	path := writeFixture(t, "bkk.geojson", fixture)
	spec := config.GeometrySpec{
		Path:       path,
		Format:     config.FormatGeoJSON,
		Key:        config.KeySpec{Kind: config.KeyCode},
		KeyFields:  [][]string{{"ADM3_PCODE"}},
		AreaFields: []config.AreaFieldSpec{{Field: "Shape_Area", Divisor: 1e6}},
	}

	regions, err := LoadGeometry(spec, 0)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, 2.0, regions[0].AreaKm2)
}

func TestLoadGeometryFilter(t *testing.T) {
	fixture := `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"ADM1_PCODE": "TH10", "ADM3_PCODE": "100101"},
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}
    },
    {
      "type": "Feature",
      "properties": {"ADM1_PCODE": "TH50", "ADM3_PCODE": "500101"},
      "geometry": {"type": "Polygon", "coordinates": [[[2,0],[3,0],[3,1],[2,1],[2,0]]]}
    }
  ]
}`
	path := writeFixture(t, "adm3.geojson", fixture)
	spec := config.GeometrySpec{
		Path:      path,
		Format:    config.FormatGeoJSON,
		Filter:    &config.FieldFilter{Fields: []string{"ADM1_PCODE"}, Equals: "TH10"},
		Key:       config.KeySpec{Kind: config.KeyCode},
		KeyFields: [][]string{{"ADM3_PCODE"}},
	}

	regions, err := LoadGeometry(spec, 0)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "100101", regions[0].Key)
}

func TestLoadGeometrySimplify(t *testing.T) {
	// Square with redundant collinear vertices on every edge.
	fixture := `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"iso3": "AAA"},
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[0.5,0],[1,0],[1,0.5],[1,1],[0.5,1],[0,1],[0,0.5],[0,0]]]}
    }
  ]
}`
	path := writeFixture(t, "dense.geojson", fixture)
	spec := config.GeometrySpec{
		Path:      path,
		Format:    config.FormatGeoJSON,
		Key:       config.KeySpec{Kind: config.KeyCode},
		KeyFields: [][]string{{"iso3"}},
	}

	regions, err := LoadGeometry(spec, 0.01)
	require.NoError(t, err)

	poly, ok := regions[0].Geometry.(orb.Polygon)
	require.True(t, ok)
	assert.Less(t, len(poly[0]), 9, "collinear vertices removed")
}

func TestLoadGeometrySchemaMismatch(t *testing.T) {
	path := writeFixture(t, "world.geojson", worldFixture)
	spec := worldSpec(path)
	spec.KeyFields = [][]string{{"GID_0"}}

	_, err := LoadGeometry(spec, 0)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Candidates, "GID_0")
}

func TestLoadGeometryMissingFile(t *testing.T) {
	spec := worldSpec(filepath.Join(t.TempDir(), "nope.geojson"))
	_, err := LoadGeometry(spec, 0)
	assert.True(t, IsMissingResource(err))
}

func TestLoadGeometryDuplicateKeysKeepFirst(t *testing.T) {
	fixture := `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {"iso3": "AAA", "name": "First"},
      "geometry": {"type": "Polygon", "coordinates": [[[0,0],[1,0],[1,1],[0,1],[0,0]]]}
    },
    {
      "type": "Feature",
      "properties": {"iso3": "AAA", "name": "Second"},
      "geometry": {"type": "Polygon", "coordinates": [[[2,0],[3,0],[3,1],[2,1],[2,0]]]}
    }
  ]
}`
	path := writeFixture(t, "dupes.geojson", fixture)

	regions, err := LoadGeometry(worldSpec(path), 0)
	require.NoError(t, err)
	require.Len(t, regions, 1)
	assert.Equal(t, "First", regions[0].Name)
}

func TestLoadGeometryShapefile(t *testing.T) {
	type provinceRow struct {
		ctgeom.Polygon
		PROV_NAME string
	}

	path := filepath.Join(t.TempDir(), "provinces.shp")
	enc, err := shp.NewEncoder(path, provinceRow{})
	require.NoError(t, err)
	require.NoError(t, enc.Encode(provinceRow{
		Polygon:   ctgeom.Polygon{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}, {X: 0, Y: 0}}},
		PROV_NAME: "Chai Nat",
	}))
	require.NoError(t, enc.Encode(provinceRow{
		Polygon:   ctgeom.Polygon{{{X: 2, Y: 0}, {X: 3, Y: 0}, {X: 3, Y: 1}, {X: 2, Y: 1}, {X: 2, Y: 0}}},
		PROV_NAME: "Phuket",
	}))
	enc.Close()

	spec := config.GeometrySpec{
		Path:   path,
		Format: config.FormatShapefile,
		Key: config.KeySpec{
			Kind:        config.KeyComposite,
			Corrections: map[string]string{"CHAI NAT": "CHAINAT"},
		},
		KeyFields:  [][]string{{"NO_SUCH_COLUMN", "PROV_NAME"}},
		NameFields: []string{"PROV_NAME"},
	}

	regions, err := LoadGeometry(spec, 0)
	require.NoError(t, err)
	require.Len(t, regions, 2)

	assert.Equal(t, "CHAINAT", regions[0].Key, "candidate probing skips absent columns")
	assert.Equal(t, "Chai Nat", regions[0].Name)
	assert.Equal(t, "PHUKET", regions[1].Key)
	assert.Greater(t, regions[0].AreaKm2, 0.0)
}
