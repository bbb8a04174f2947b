package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-yaml"
)

// Key construction kinds.
const (
	KeyComposite = "composite" // normalized name parts joined by "_"
	KeyCode      = "code"      // numeric/string code, ".0" stripped, truncated to width
)

// Time bucket kinds.
const (
	TimeDate       = "date"         // calendar-date column, bucket "2006-01-02"
	TimeWeekOfDate = "week-of-date" // calendar-date column bucketed to its ISO week
	TimeYearWeek   = "year-week"    // separate numeric year and week columns
	TimeBucket     = "bucket"       // source already carries the bucket identifier
)

// Week bucket formats for TimeYearWeek and TimeWeekOfDate.
const (
	WeekFormatISO   = "iso"   // "2024-W05"
	WeekFormatPlain = "plain" // "2024-05"
)

// Geometry source formats.
const (
	FormatGeoJSON   = "geojson"
	FormatShapefile = "shapefile"
	FormatCSV       = "csv"
	FormatXLSX      = "xlsx"
)

// KeySpec describes how a region's join key is built from resolved fields.
type KeySpec struct {
	Kind        string            `yaml:"kind"`
	Width       int               `yaml:"width,omitempty"`
	Corrections map[string]string `yaml:"corrections,omitempty"`
}

// FieldFilter keeps only rows whose resolved field equals a literal value,
// e.g. restricting a national ADM3 file to the Bangkok province p-code.
type FieldFilter struct {
	Fields []string `yaml:"fields"`
	Equals string   `yaml:"equals"`
}

// AreaFieldSpec is one candidate source attribute carrying a precomputed
// area. Divisor converts the source unit to km² (1e6 for m²).
type AreaFieldSpec struct {
	Field   string  `yaml:"field"`
	Divisor float64 `yaml:"divisor"`
}

// GeometrySpec describes one boundary source. KeyFields holds an ordered
// candidate list per key part; candidates are probed against the attribute
// table in order and the first present wins.
type GeometrySpec struct {
	Path       string          `yaml:"path"`
	Format     string          `yaml:"format"`
	Filter     *FieldFilter    `yaml:"filter,omitempty"`
	Key        KeySpec         `yaml:"key"`
	KeyFields  [][]string      `yaml:"key_fields"`
	NameFields []string        `yaml:"name_fields"`
	AreaFields []AreaFieldSpec `yaml:"area_fields,omitempty"`
}

// TimeSpec describes how a case table's time bucket is derived.
type TimeSpec struct {
	Kind         string   `yaml:"kind"`
	DayFirst     bool     `yaml:"day_first,omitempty"`
	DateFields   []string `yaml:"date_fields,omitempty"`
	YearFields   []string `yaml:"year_fields,omitempty"`
	WeekFields   []string `yaml:"week_fields,omitempty"`
	BucketFields []string `yaml:"bucket_fields,omitempty"`
	WeekFormat   string   `yaml:"week_format,omitempty"`
	// MinYear/MaxYear bound accepted years; rows outside are dropped as
	// spreadsheet date artifacts. 0 disables the bound.
	MinYear int `yaml:"min_year,omitempty"`
	MaxYear int `yaml:"max_year,omitempty"`
}

// CaseSpec describes one case-count source.
type CaseSpec struct {
	Path   string `yaml:"path"`
	Format string `yaml:"format"`
	// Shape is "long" (one row per unit per bucket) or "wide" (one column
	// per unit, unpivoted on load).
	Shape string `yaml:"shape"`
	// Positional takes the first three columns as (time, key, count)
	// regardless of their header names.
	Positional      bool       `yaml:"positional,omitempty"`
	Key             KeySpec    `yaml:"key"`
	KeyFields       [][]string `yaml:"key_fields,omitempty"`
	CountFields     []string   `yaml:"count_fields,omitempty"`
	NameFields      []string   `yaml:"name_fields,omitempty"`
	IncidenceFields []string   `yaml:"incidence_fields,omitempty"`
	Time            TimeSpec   `yaml:"time"`
}

// PopulationSpec describes an optional population table joined onto the
// geometry by normalized name.
type PopulationSpec struct {
	Path        string            `yaml:"path"`
	Format      string            `yaml:"format"`
	NameFields  []string          `yaml:"name_fields"`
	ValueFields []string          `yaml:"value_fields"`
	Corrections map[string]string `yaml:"corrections,omitempty"`
}

// RegionSpec fully describes one served region: where its boundary and case
// files live and how their keys reconcile. The join engine is generic over
// this descriptor; adding a region means adding data, not code.
type RegionSpec struct {
	ID         string          `yaml:"id"`
	Geometry   GeometrySpec    `yaml:"geometry"`
	Cases      CaseSpec        `yaml:"cases"`
	Population *PopulationSpec `yaml:"population,omitempty"`
}

// Validate checks the structural invariants a descriptor must satisfy before
// any file is touched.
func (r RegionSpec) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("region descriptor missing id")
	}
	switch r.Geometry.Format {
	case FormatGeoJSON, FormatShapefile:
	default:
		return fmt.Errorf("region %s: unknown geometry format %q", r.ID, r.Geometry.Format)
	}
	if len(r.Geometry.KeyFields) == 0 {
		return fmt.Errorf("region %s: geometry key_fields is empty", r.ID)
	}
	switch r.Cases.Format {
	case FormatCSV, FormatXLSX:
	default:
		return fmt.Errorf("region %s: unknown cases format %q", r.ID, r.Cases.Format)
	}
	switch r.Cases.Shape {
	case "long", "wide":
	default:
		return fmt.Errorf("region %s: unknown cases shape %q", r.ID, r.Cases.Shape)
	}
	switch r.Cases.Time.Kind {
	case TimeDate, TimeWeekOfDate, TimeYearWeek, TimeBucket:
	default:
		return fmt.Errorf("region %s: unknown time kind %q", r.ID, r.Cases.Time.Kind)
	}
	return nil
}

// regionsFile is the YAML document shape of REGIONS_FILE.
type regionsFile struct {
	Regions []RegionSpec `yaml:"regions"`
}

// LoadRegions returns the region descriptors: the built-in defaults, or the
// contents of path when given. Relative data paths are resolved under dataDir.
func LoadRegions(path, dataDir string) ([]RegionSpec, error) {
	specs := DefaultRegions()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read regions file: %w", err)
		}
		var doc regionsFile
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("parse regions file: %w", err)
		}
		if len(doc.Regions) == 0 {
			return nil, fmt.Errorf("regions file %s defines no regions", path)
		}
		specs = doc.Regions
	}

	for i := range specs {
		if err := specs[i].Validate(); err != nil {
			return nil, err
		}
		specs[i].anchor(dataDir)
	}
	return specs, nil
}

func (r *RegionSpec) anchor(dataDir string) {
	r.Geometry.Path = anchorPath(dataDir, r.Geometry.Path)
	r.Cases.Path = anchorPath(dataDir, r.Cases.Path)
	if r.Population != nil {
		r.Population.Path = anchorPath(dataDir, r.Population.Path)
	}
}

func anchorPath(dataDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dataDir, p)
}

// DefaultRegions describes the five stock datasets. Correction tables live
// here as data so new alias spellings never touch the join engine.
func DefaultRegions() []RegionSpec {
	return []RegionSpec{
		{
			ID: "global",
			Geometry: GeometrySpec{
				Path:       "world_geometries.geojson",
				Format:     FormatGeoJSON,
				Key:        KeySpec{Kind: KeyCode},
				KeyFields:  [][]string{{"iso3", "ISO3", "ISO_A3"}},
				NameFields: []string{"Country", "name", "ADMIN", "iso3"},
				AreaFields: []AreaFieldSpec{{Field: "area_km2", Divisor: 1}},
			},
			Cases: CaseSpec{
				Path:            "df_final_f2.csv",
				Format:          FormatCSV,
				Shape:           "long",
				Key:             KeySpec{Kind: KeyCode},
				KeyFields:       [][]string{{"iso3"}},
				CountFields:     []string{"Casos_Nuevos"},
				NameFields:      []string{"Country"},
				IncidenceFields: []string{"Inc_Nueva"},
				Time: TimeSpec{
					Kind:       TimeYearWeek,
					YearFields: []string{"Year"},
					WeekFields: []string{"Epi. Week (a)", "Epi_Week", "Week"},
					WeekFormat: WeekFormatISO,
					MinYear:    2000,
					MaxYear:    2030,
				},
			},
		},
		{
			ID: "thailand",
			Geometry: GeometrySpec{
				Path:       "geo_thailand/province_dd.shp",
				Format:     FormatShapefile,
				Key:        KeySpec{Kind: KeyComposite},
				KeyFields:  [][]string{{"PROV_NAME", "prov_name"}},
				NameFields: []string{"PROV_NAME", "prov_name"},
			},
			Cases: CaseSpec{
				Path:   "DengueThailand_2003-2024_Monthly.xlsx",
				Format: FormatXLSX,
				Shape:  "wide",
				Key: KeySpec{
					Kind: KeyComposite,
					Corrections: map[string]string{
						"AYUTTHAYA":         "PHRA NAKHON SI AYUTTHAYA",
						"BANGKOK":           "KRUNG THEP MAHA NAKHON (BANGKOK)",
						"CHAI NAT":          "CHAINAT",
						"BUNGKAN":           "BUENG KAN",
						"BURI RAM":          "BURIRAM",
						"CHON BURI":         "CHONBURI",
						"LOP BURI":          "LOPBURI",
						"NONG BUA LAM PHU":  "NONG BUA LAMPHU",
						"PHANGNGA":          "PHANG NGA",
						"PRACHIN BURI":      "PRACHINBURI",
						"SI SA KET":         "SISAKET",
					},
				},
				Time: TimeSpec{
					Kind:       TimeDate,
					DateFields: []string{"Date"},
					MinYear:    2000,
					MaxYear:    2030,
				},
			},
			Population: &PopulationSpec{
				Path:        "population_thai.xlsx",
				Format:      FormatXLSX,
				NameFields:  []string{"Name"},
				ValueFields: []string{"Population"},
				Corrections: map[string]string{
					"BANGKOK":   "KRUNG THEP MAHA NAKHON (BANGKOK)",
					"CHAI NAT":  "CHAINAT",
					"BUENG KAN": "NONG KHAI",
				},
			},
		},
		{
			ID: "bangkok",
			Geometry: GeometrySpec{
				Path:   "bangkok_admin3.geojson",
				Format: FormatGeoJSON,
				Filter: &FieldFilter{
					Fields: []string{"ADM1_PCODE", "adm1_pcode"},
					Equals: "TH10",
				},
				Key:        KeySpec{Kind: KeyCode},
				KeyFields:  [][]string{{"ADM3_PCODE", "adm3_pcode"}},
				NameFields: []string{"ADM3_EN", "adm3_name", "Subdistrict (English)"},
				AreaFields: []AreaFieldSpec{
					{Field: "area_sqkm", Divisor: 1},
					{Field: "Shape_Area", Divisor: 1e6},
				},
			},
			Cases: CaseSpec{
				Path:        "thailand_subdistrict_cases.csv",
				Format:      FormatCSV,
				Shape:       "long",
				Key:         KeySpec{Kind: KeyCode},
				KeyFields:   [][]string{{"ID_MAPA"}},
				CountFields: []string{"Cases"},
				NameFields:  []string{"Subdistrict (English)", "Subdistrict"},
				Time: TimeSpec{
					Kind:         TimeBucket,
					BucketFields: []string{"year_week", "Year_Week"},
					MinYear:      2000,
					MaxYear:      2030,
				},
			},
		},
		{
			ID: "argentina",
			Geometry: GeometrySpec{
				Path:   "geo_argentina/pxdptodatosok.shp",
				Format: FormatShapefile,
				Key: KeySpec{
					Kind:        KeyComposite,
					Corrections: argentinaProvinceCorrections(),
				},
				KeyFields:  [][]string{{"provincia", "prov"}, {"departamen", "nam", "nombre"}},
				NameFields: []string{"departamen", "nam", "nombre"},
			},
			Cases: CaseSpec{
				Path:   "casos_ARG.csv",
				Format: FormatCSV,
				Shape:  "long",
				Key: KeySpec{
					Kind:        KeyComposite,
					Corrections: argentinaProvinceCorrections(),
				},
				KeyFields:   [][]string{{"PROVINCIA"}, {"DEPARTAMENTO"}},
				CountFields: []string{"CONFIRMADO"},
				NameFields:  []string{"DEPARTAMENTO"},
				Time: TimeSpec{
					Kind:       TimeYearWeek,
					YearFields: []string{"ANIO", "AÑO"},
					WeekFields: []string{"SEPI", "ISO_WEEK"},
					WeekFormat: WeekFormatPlain,
					MinYear:    2000,
					MaxYear:    2030,
				},
			},
		},
		{
			ID: "brasil",
			Geometry: GeometrySpec{
				Path:       "BRA/BR_Municipios_2024/BR_Municipios_2024.shp",
				Format:     FormatShapefile,
				Key:        KeySpec{Kind: KeyCode, Width: 6},
				KeyFields:  [][]string{{"CD_MUN"}},
				NameFields: []string{"NM_MUN"},
			},
			Cases: CaseSpec{
				Path:       "casos_brasil_resumen.csv",
				Format:     FormatCSV,
				Shape:      "long",
				Positional: true,
				Key:        KeySpec{Kind: KeyCode, Width: 6},
				Time: TimeSpec{
					Kind:       TimeWeekOfDate,
					DayFirst:   true,
					WeekFormat: WeekFormatISO,
					MinYear:    2000,
					MaxYear:    2030,
				},
			},
		},
	}
}

func argentinaProvinceCorrections() map[string]string {
	return map[string]string{
		"CABA":            "CIUDAD AUTONOMA DE BUENOS AIRES",
		"CAPITAL FEDERAL": "CIUDAD AUTONOMA DE BUENOS AIRES",
	}
}
