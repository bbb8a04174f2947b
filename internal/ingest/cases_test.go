package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dengueviewer/atlas-service/internal/config"
	"github.com/dengueviewer/atlas-service/internal/domain"
)

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCaseTableLongYearWeek(t *testing.T) {
	path := writeFixture(t, "cases.csv",
		"iso3,Year,Epi. Week (a),Casos_Nuevos,Inc_Nueva,Country\n"+
			"BRA,2024,5,120,0.8,Brazil\n"+
			"BRA,2024,5,30,0.2,Brazil\n"+
			"ARG,2024,6,15,0.1,Argentina\n")

	spec := config.CaseSpec{
		Path:            path,
		Format:          config.FormatCSV,
		Shape:           "long",
		Key:             config.KeySpec{Kind: config.KeyCode},
		KeyFields:       [][]string{{"iso3"}},
		CountFields:     []string{"Casos_Nuevos"},
		NameFields:      []string{"Country"},
		IncidenceFields: []string{"Inc_Nueva"},
		Time: config.TimeSpec{
			Kind:       config.TimeYearWeek,
			YearFields: []string{"Year"},
			WeekFields: []string{"Epi. Week (a)"},
			WeekFormat: config.WeekFormatISO,
			MinYear:    2000,
			MaxYear:    2030,
		},
	}

	table, stats, err := LoadCaseTable(spec)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.RecordsKept)

	// Residual duplicates survive the load; aggregation sums them later.
	require.Len(t, table.Records, 3)
	assert.Equal(t, "BRA", table.Records[0].Key)
	assert.Equal(t, "2024-W05", table.Records[0].Bucket)
	assert.Equal(t, 120.0, table.Records[0].Cases)
	assert.Equal(t, 0.8, table.Records[0].Incidence)
	assert.Equal(t, "Brazil", table.Records[0].Name)
}

func TestLoadCaseTableYearBounds(t *testing.T) {
	path := writeFixture(t, "cases.csv",
		"iso3,Year,Week,Casos_Nuevos\n"+
			"BRA,1899,2,10\n"+
			"BRA,2044,2,10\n"+
			"BRA,2024,2,10\n")

	spec := config.CaseSpec{
		Path:        path,
		Format:      config.FormatCSV,
		Shape:       "long",
		Key:         config.KeySpec{Kind: config.KeyCode},
		KeyFields:   [][]string{{"iso3"}},
		CountFields: []string{"Casos_Nuevos"},
		Time: config.TimeSpec{
			Kind:       config.TimeYearWeek,
			YearFields: []string{"Year"},
			WeekFields: []string{"Week"},
			MinYear:    2000,
			MaxYear:    2030,
		},
	}

	table, stats, err := LoadCaseTable(spec)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DroppedYearRange)
	require.Len(t, table.Records, 1)
	assert.Equal(t, "2024-W02", table.Records[0].Bucket)
}

func TestLoadCaseTablePositionalDayFirst(t *testing.T) {
	path := writeFixture(t, "resumen.csv",
		"data,municipio,casos\n"+
			"05/02/2024,2504108.0,3\n"+
			"garbage,2504108,1\n")

	spec := config.CaseSpec{
		Path:       path,
		Format:     config.FormatCSV,
		Shape:      "long",
		Positional: true,
		Key:        config.KeySpec{Kind: config.KeyCode, Width: 6},
		Time: config.TimeSpec{
			Kind:       config.TimeWeekOfDate,
			DayFirst:   true,
			WeekFormat: config.WeekFormatISO,
			MinYear:    2000,
			MaxYear:    2030,
		},
	}

	table, stats, err := LoadCaseTable(spec)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DroppedBadTime)

	require.Len(t, table.Records, 1)
	assert.Equal(t, "250410", table.Records[0].Key, "code truncated and decimal artifact stripped")
	assert.Equal(t, "2024-W06", table.Records[0].Bucket, "2024-02-05 falls in ISO week 6")
}

func TestLoadCaseTablePlainWeekFormat(t *testing.T) {
	path := writeFixture(t, "casos.csv",
		"PROVINCIA;DEPARTAMENTO;ANIO;SEPI;CONFIRMADO\n"+
			"Buenos Aires;San Martín;2024;5;12\n"+
			"CABA;Comuna 1;2024;5;7\n")

	spec := config.CaseSpec{
		Path:   path,
		Format: config.FormatCSV,
		Shape:  "long",
		Key: config.KeySpec{
			Kind:        config.KeyComposite,
			Corrections: map[string]string{"CABA": "CIUDAD AUTONOMA DE BUENOS AIRES"},
		},
		KeyFields:   [][]string{{"PROVINCIA"}, {"DEPARTAMENTO"}},
		CountFields: []string{"CONFIRMADO"},
		Time: config.TimeSpec{
			Kind:       config.TimeYearWeek,
			YearFields: []string{"ANIO"},
			WeekFields: []string{"SEPI"},
			WeekFormat: config.WeekFormatPlain,
			MinYear:    2000,
			MaxYear:    2030,
		},
	}

	table, _, err := LoadCaseTable(spec)
	require.NoError(t, err)
	require.Len(t, table.Records, 2)

	assert.Equal(t, "BUENOS AIRES_SAN MARTIN", table.Records[0].Key)
	assert.Equal(t, "2024-05", table.Records[0].Bucket)
	assert.Equal(t, "CIUDAD AUTONOMA DE BUENOS AIRES_COMUNA 1", table.Records[1].Key)
}

func TestLoadCaseTableWideMelt(t *testing.T) {
	path := writeFixture(t, "monthly.csv",
		"Date,Bangkok,Chai Nat\n"+
			"2024-01-01,5,2\n"+
			"2024-02-01,8,\n")

	spec := config.CaseSpec{
		Path:   path,
		Format: config.FormatCSV,
		Shape:  "wide",
		Key: config.KeySpec{
			Kind: config.KeyComposite,
			Corrections: map[string]string{
				"BANGKOK":  "KRUNG THEP MAHA NAKHON (BANGKOK)",
				"CHAI NAT": "CHAINAT",
			},
		},
		Time: config.TimeSpec{
			Kind:       config.TimeDate,
			DateFields: []string{"Date"},
			MinYear:    2000,
			MaxYear:    2030,
		},
	}

	table, _, err := LoadCaseTable(spec)
	require.NoError(t, err)
	require.Len(t, table.Records, 4, "two dates times two unit columns")

	byKey := map[string]domain.CaseRecord{}
	for _, r := range table.Records {
		if r.Bucket == "2024-01-01" {
			byKey[r.Key] = r
		}
	}
	assert.Equal(t, 5.0, byKey["KRUNG THEP MAHA NAKHON (BANGKOK)"].Cases)
	assert.Equal(t, 2.0, byKey["CHAINAT"].Cases)
	assert.Equal(t, "Bangkok", byKey["KRUNG THEP MAHA NAKHON (BANGKOK)"].Name)
}

func TestLoadCaseTableLiteralBuckets(t *testing.T) {
	path := writeFixture(t, "subdistricts.csv",
		"ID_MAPA,year_week,Cases\n"+
			"100101,2024-W05,4\n"+
			"100101,1899-W05,4\n")

	spec := config.CaseSpec{
		Path:        path,
		Format:      config.FormatCSV,
		Shape:       "long",
		Key:         config.KeySpec{Kind: config.KeyCode},
		KeyFields:   [][]string{{"ID_MAPA"}},
		CountFields: []string{"Cases"},
		Time: config.TimeSpec{
			Kind:         config.TimeBucket,
			BucketFields: []string{"year_week"},
			MinYear:      2000,
			MaxYear:      2030,
		},
	}

	table, stats, err := LoadCaseTable(spec)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DroppedYearRange)
	require.Len(t, table.Records, 1)
	assert.Equal(t, "2024-W05", table.Records[0].Bucket)
}

func TestLoadCaseTableMissingFile(t *testing.T) {
	spec := config.CaseSpec{
		Path:   filepath.Join(t.TempDir(), "nope.csv"),
		Format: config.FormatCSV,
		Shape:  "long",
	}

	_, _, err := LoadCaseTable(spec)
	assert.True(t, IsMissingResource(err))
}

func TestLoadCaseTableSchemaMismatch(t *testing.T) {
	path := writeFixture(t, "renamed.csv", "pais,casos\nBRA,3\n")

	spec := config.CaseSpec{
		Path:        path,
		Format:      config.FormatCSV,
		Shape:       "long",
		Key:         config.KeySpec{Kind: config.KeyCode},
		KeyFields:   [][]string{{"iso3"}},
		CountFields: []string{"casos"},
		Time:        config.TimeSpec{Kind: config.TimeDate, DateFields: []string{"Date"}},
	}

	_, _, err := LoadCaseTable(spec)
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Contains(t, schemaErr.Candidates, "iso3")
	assert.Contains(t, schemaErr.Columns, "pais")
}

func TestLoadCaseTableCoercesBadCounts(t *testing.T) {
	path := writeFixture(t, "cases.csv",
		"iso3,Year,Week,Casos_Nuevos\n"+
			"BRA,2024,2,n/a\n"+
			"ARG,2024,2,\n")

	spec := config.CaseSpec{
		Path:        path,
		Format:      config.FormatCSV,
		Shape:       "long",
		Key:         config.KeySpec{Kind: config.KeyCode},
		KeyFields:   [][]string{{"iso3"}},
		CountFields: []string{"Casos_Nuevos"},
		Time: config.TimeSpec{
			Kind:       config.TimeYearWeek,
			YearFields: []string{"Year"},
			WeekFields: []string{"Week"},
		},
	}

	table, stats, err := LoadCaseTable(spec)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CoercedCounts, "empty cells are plain zeros, not coercions")
	require.Len(t, table.Records, 2)
	assert.Equal(t, 0.0, table.Records[0].Cases)
	assert.Equal(t, 0.0, table.Records[1].Cases)
}

func TestResolveIsCaseAndSpaceInsensitive(t *testing.T) {
	table := NewTable("t", []string{" ISO3 ", "Year"}, nil)

	i, ok := table.Resolve("iso3")
	require.True(t, ok)
	assert.Equal(t, 0, i)

	_, err := table.MustResolve("missing")
	var schemaErr *SchemaError
	assert.True(t, errors.As(err, &schemaErr))
}
