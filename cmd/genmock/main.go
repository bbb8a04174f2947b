// Command genmock generates a self-contained mock dataset tree: boundary
// GeoJSON, weekly and monthly case tables, a population workbook, and the
// regions.yaml describing them. It exists so the frontend and the service
// can be developed without the real surveillance exports, which are not
// redistributable.
//
// Usage:
//
//	go run ./cmd/genmock -out data/mock
//	REGIONS_FILE=data/mock/regions.yaml DATA_DIR=data/mock go run ./cmd/server
package main

import (
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/xuri/excelize/v2"

	"github.com/dengueviewer/atlas-service/internal/config"
)

// Fixed seed keeps the fixtures reproducible across runs.
const seed = 20240426

var provinces = []string{
	"Northhaven", "Southmarsh", "Eastbrook", "Westfield",
	"Centralia", "Lakeside", "Hillcrest", "Riverbend",
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "data/mock", "output directory for the mock dataset tree")
	countries := flag.Int("countries", 12, "number of mock countries in the weekly region")
	flag.Parse()

	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}
	rng := rand.New(rand.NewSource(seed))

	if err := writeWorldGeometry(filepath.Join(*out, "mock_world.geojson"), *countries); err != nil {
		return fmt.Errorf("world geometry: %w", err)
	}
	if err := writeWeeklyCases(filepath.Join(*out, "mock_world_cases.csv"), *countries, rng); err != nil {
		return fmt.Errorf("weekly cases: %w", err)
	}
	if err := writeProvinceGeometry(filepath.Join(*out, "mock_provinces.geojson")); err != nil {
		return fmt.Errorf("province geometry: %w", err)
	}
	if err := writeMonthlyCases(filepath.Join(*out, "mock_monthly_cases.xlsx"), rng); err != nil {
		return fmt.Errorf("monthly cases: %w", err)
	}
	if err := writePopulation(filepath.Join(*out, "mock_population.xlsx"), rng); err != nil {
		return fmt.Errorf("population: %w", err)
	}
	if err := writeRegionsFile(filepath.Join(*out, "regions.yaml")); err != nil {
		return fmt.Errorf("regions file: %w", err)
	}

	log.Printf("mock dataset written to %s", *out)
	return nil
}

func countryCode(i int) string {
	return fmt.Sprintf("C%02d", i+1)
}

// square returns a 1x1 degree square at a grid position, offset so the mock
// world does not cluster on the null island.
func square(col, row int) orb.Polygon {
	x := float64(col)*1.5 - 30
	y := float64(row)*1.5 - 10
	return orb.Polygon{{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}}
}

func writeWorldGeometry(path string, countries int) error {
	fc := geojson.NewFeatureCollection()
	for i := 0; i < countries; i++ {
		f := geojson.NewFeature(square(i%6, i/6))
		f.Properties["iso3"] = countryCode(i)
		f.Properties["Country"] = "Country " + countryCode(i)
		f.Properties["area_km2"] = 10000.0 + float64(i)*500
		fc.Append(f)
	}
	raw, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// writeWeeklyCases emits eighteen months of weekly records per country with
// a seasonal curve so the map has visible waves to animate.
func writeWeeklyCases(path string, countries int, rng *rand.Rand) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"iso3", "Country", "Year", "Epi. Week (a)", "Casos_Nuevos", "Inc_Nueva"}); err != nil {
		return err
	}

	start := time.Date(2023, time.January, 2, 0, 0, 0, 0, time.UTC)
	for week := 0; week < 78; week++ {
		date := start.AddDate(0, 0, week*7)
		year, isoWeek := date.ISOWeek()
		for i := 0; i < countries; i++ {
			cases := seasonal(rng, week, 40+10*float64(i))
			record := []string{
				countryCode(i),
				"Country " + countryCode(i),
				fmt.Sprintf("%d", year),
				fmt.Sprintf("%d", isoWeek),
				fmt.Sprintf("%.0f", cases),
				fmt.Sprintf("%.2f", cases/1000),
			}
			if err := w.Write(record); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeProvinceGeometry(path string) error {
	fc := geojson.NewFeatureCollection()
	for i, name := range provinces {
		f := geojson.NewFeature(square(i%4, 8+i/4))
		f.Properties["PROV_NAME"] = name
		fc.Append(f)
	}
	raw, err := fc.MarshalJSON()
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// writeMonthlyCases emits five years of wide-format monthly counts, enough
// history for the forecast model's lags and its train/test split.
func writeMonthlyCases(path string, rng *rand.Rand) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	header := append([]interface{}{"Date"}, toAny(provinces)...)
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}

	rowIdx := 2
	for year := 2020; year <= 2024; year++ {
		for month := 1; month <= 12; month++ {
			row := []interface{}{fmt.Sprintf("%d-%02d-01", year, month)}
			for i := range provinces {
				monthIdx := (year-2020)*12 + month - 1
				row = append(row, math.Round(seasonal(rng, monthIdx, 60+15*float64(i))))
			}
			if err := setRow(f, sheet, rowIdx, row); err != nil {
				return err
			}
			rowIdx++
		}
	}
	return f.SaveAs(path)
}

func writePopulation(path string, rng *rand.Rand) error {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	if err := setRow(f, sheet, 1, []interface{}{"Name", "Population"}); err != nil {
		return err
	}
	for i, name := range provinces {
		pop := 200000 + rng.Intn(800000)
		if err := setRow(f, sheet, i+2, []interface{}{name, pop}); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}

func writeRegionsFile(path string) error {
	doc := struct {
		Regions []config.RegionSpec `yaml:"regions"`
	}{
		Regions: []config.RegionSpec{
			{
				ID: "global",
				Geometry: config.GeometrySpec{
					Path:       "mock_world.geojson",
					Format:     config.FormatGeoJSON,
					Key:        config.KeySpec{Kind: config.KeyCode},
					KeyFields:  [][]string{{"iso3"}},
					NameFields: []string{"Country"},
					AreaFields: []config.AreaFieldSpec{{Field: "area_km2", Divisor: 1}},
				},
				Cases: config.CaseSpec{
					Path:            "mock_world_cases.csv",
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
				},
			},
			{
				ID: "thailand",
				Geometry: config.GeometrySpec{
					Path:       "mock_provinces.geojson",
					Format:     config.FormatGeoJSON,
					Key:        config.KeySpec{Kind: config.KeyComposite},
					KeyFields:  [][]string{{"PROV_NAME"}},
					NameFields: []string{"PROV_NAME"},
				},
				Cases: config.CaseSpec{
					Path:   "mock_monthly_cases.xlsx",
					Format: config.FormatXLSX,
					Shape:  "wide",
					Key:    config.KeySpec{Kind: config.KeyComposite},
					Time: config.TimeSpec{
						Kind:       config.TimeDate,
						DateFields: []string{"Date"},
						MinYear:    2000,
						MaxYear:    2030,
					},
				},
				Population: &config.PopulationSpec{
					Path:        "mock_population.xlsx",
					Format:      config.FormatXLSX,
					NameFields:  []string{"Name"},
					ValueFields: []string{"Population"},
				},
			},
		},
	}

	raw, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// seasonal produces a yearly case curve with noise, peaking mid-year the
// way dengue seasons do in the mock hemisphere.
func seasonal(rng *rand.Rand, period int, base float64) float64 {
	wave := math.Sin(2 * math.Pi * float64(period%52) / 52)
	value := base * (1 + 0.8*wave) * (0.85 + 0.3*rng.Float64())
	return math.Max(0, math.Round(value))
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func toAny(ss []string) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
