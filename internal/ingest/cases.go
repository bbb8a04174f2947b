package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dengueviewer/atlas-service/internal/config"
	"github.com/dengueviewer/atlas-service/internal/domain"
)

// Stats counts what happened to the source rows of one case table. Dropped
// rows are observable per reason; they never fail the load.
type Stats struct {
	RowsRead         int
	RecordsKept      int
	DroppedBadTime   int
	DroppedYearRange int
	DroppedNoKey     int
	CoercedCounts    int
}

// Drop reasons as exposed on the rows_dropped metric.
const (
	ReasonBadTime   = "bad_time"
	ReasonYearRange = "year_out_of_range"
	ReasonNoKey     = "no_key"
)

// LoadCaseTable reads the case source described by spec and reshapes it into
// the canonical long form keyed for joining.
func LoadCaseTable(spec config.CaseSpec) (domain.CaseTable, Stats, error) {
	var (
		table *Table
		err   error
	)
	switch spec.Format {
	case config.FormatCSV:
		table, err = ReadCSVTable(spec.Path)
	case config.FormatXLSX:
		table, err = ReadWorkbookTable(spec.Path)
	default:
		err = fmt.Errorf("unsupported case table format %q", spec.Format)
	}
	if err != nil {
		return domain.CaseTable{}, Stats{}, err
	}

	if spec.Shape == "wide" {
		return meltWide(table, spec)
	}
	return loadLong(table, spec)
}

// loadLong handles sources already shaped one row per unit per time bucket.
func loadLong(table *Table, spec config.CaseSpec) (domain.CaseTable, Stats, error) {
	var (
		keyIdx           []int
		countIdx         int
		nameIdx, incIdx  = -1, -1
		timeIdx, weekIdx = -1, -1
		err              error
	)

	if spec.Positional {
		// First three columns are (time, key, count) whatever their headers.
		if len(table.Columns) < 3 {
			return domain.CaseTable{}, Stats{}, &SchemaError{
				Source:     table.Source,
				Candidates: []string{"<positional: time, key, count>"},
				Columns:    table.Columns,
			}
		}
		timeIdx, keyIdx, countIdx = 0, []int{1}, 2
	} else {
		for _, candidates := range spec.KeyFields {
			i, err := table.MustResolve(candidates...)
			if err != nil {
				return domain.CaseTable{}, Stats{}, err
			}
			keyIdx = append(keyIdx, i)
		}
		if countIdx, err = table.MustResolve(spec.CountFields...); err != nil {
			return domain.CaseTable{}, Stats{}, err
		}
		if i, ok := table.Resolve(spec.NameFields...); ok {
			nameIdx = i
		}
		if i, ok := table.Resolve(spec.IncidenceFields...); ok {
			incIdx = i
		}

		switch spec.Time.Kind {
		case config.TimeDate, config.TimeWeekOfDate:
			if timeIdx, err = table.MustResolve(spec.Time.DateFields...); err != nil {
				return domain.CaseTable{}, Stats{}, err
			}
		case config.TimeYearWeek:
			if timeIdx, err = table.MustResolve(spec.Time.YearFields...); err != nil {
				return domain.CaseTable{}, Stats{}, err
			}
			if weekIdx, err = table.MustResolve(spec.Time.WeekFields...); err != nil {
				return domain.CaseTable{}, Stats{}, err
			}
		case config.TimeBucket:
			if timeIdx, err = table.MustResolve(spec.Time.BucketFields...); err != nil {
				return domain.CaseTable{}, Stats{}, err
			}
		}
	}

	var (
		stats   Stats
		records []domain.CaseRecord
	)
	for _, row := range table.Rows {
		stats.RowsRead++

		var bucket, reason string
		if spec.Time.Kind == config.TimeYearWeek {
			bucket, reason = yearWeekBucket(spec.Time, Field(row, timeIdx), Field(row, weekIdx))
		} else {
			bucket, reason = timeBucket(spec.Time, Field(row, timeIdx))
		}
		if reason != "" {
			stats.drop(reason)
			continue
		}

		key := rowKey(spec.Key, row, keyIdx)
		if key == "" {
			stats.drop(ReasonNoKey)
			continue
		}

		rec := domain.CaseRecord{Key: key, Bucket: bucket}
		rec.Cases, stats.CoercedCounts = parseCount(Field(row, countIdx), stats.CoercedCounts)
		if nameIdx >= 0 {
			rec.Name = Field(row, nameIdx)
		}
		if incIdx >= 0 {
			rec.Incidence, _ = parseNumber(Field(row, incIdx))
		}
		records = append(records, rec)
		stats.RecordsKept++
	}

	return domain.CaseTable{Records: records}, stats, nil
}

// meltWide unpivots a one-column-per-unit source into long form. The time
// column is resolved by name; every other column header is taken as a unit
// name and keyed through the same corrections as a long-form key would be.
func meltWide(table *Table, spec config.CaseSpec) (domain.CaseTable, Stats, error) {
	timeIdx, err := table.MustResolve(spec.Time.DateFields...)
	if err != nil {
		return domain.CaseTable{}, Stats{}, err
	}

	type unitColumn struct {
		idx  int
		key  string
		name string
	}
	var units []unitColumn
	for i, col := range table.Columns {
		name := strings.TrimSpace(col)
		if i == timeIdx || name == "" {
			continue
		}
		units = append(units, unitColumn{
			idx:  i,
			key:  domain.CompositeKey(domain.Corrections(spec.Key.Corrections), name),
			name: name,
		})
	}

	var (
		stats   Stats
		records []domain.CaseRecord
	)
	for _, row := range table.Rows {
		stats.RowsRead++

		bucket, reason := timeBucket(spec.Time, Field(row, timeIdx))
		if reason != "" {
			stats.drop(reason)
			continue
		}

		for _, u := range units {
			rec := domain.CaseRecord{Key: u.key, Bucket: bucket, Name: u.name}
			rec.Cases, stats.CoercedCounts = parseCount(Field(row, u.idx), stats.CoercedCounts)
			records = append(records, rec)
			stats.RecordsKept++
		}
	}

	return domain.CaseTable{Records: records}, stats, nil
}

func (s *Stats) drop(reason string) {
	switch reason {
	case ReasonYearRange:
		s.DroppedYearRange++
	case ReasonNoKey:
		s.DroppedNoKey++
	default:
		s.DroppedBadTime++
	}
}

func rowKey(spec config.KeySpec, row []string, keyIdx []int) string {
	if spec.Kind == config.KeyComposite {
		parts := make([]string, 0, len(keyIdx))
		empty := true
		for _, i := range keyIdx {
			v := Field(row, i)
			if v != "" {
				empty = false
			}
			parts = append(parts, v)
		}
		if empty {
			return ""
		}
		return domain.CompositeKey(domain.Corrections(spec.Corrections), parts...)
	}
	return domain.CodeKey(Field(row, keyIdx[0]), spec.Width)
}

// timeBucket derives the bucket for date-flavored and literal-bucket time
// specs. It returns the bucket or a non-empty drop reason.
func timeBucket(ts config.TimeSpec, raw string) (string, string) {
	if ts.Kind == config.TimeBucket {
		bucket := strings.TrimSpace(raw)
		if bucket == "" {
			return "", ReasonBadTime
		}
		if y, ok := leadingYear(bucket); ok && !yearInRange(ts, y) {
			return "", ReasonYearRange
		}
		return bucket, ""
	}

	t, err := parseFlexibleDate(raw, ts.DayFirst)
	if err != nil {
		return "", ReasonBadTime
	}
	if !yearInRange(ts, t.Year()) {
		return "", ReasonYearRange
	}

	if ts.Kind == config.TimeWeekOfDate {
		y, w := t.ISOWeek()
		return formatWeek(ts.WeekFormat, y, w), ""
	}
	return t.Format("2006-01-02"), ""
}

func yearWeekBucket(ts config.TimeSpec, rawYear, rawWeek string) (string, string) {
	year, err := parseIntCell(rawYear)
	if err != nil {
		return "", ReasonBadTime
	}
	week, err := parseIntCell(rawWeek)
	if err != nil || week < 1 || week > 53 {
		return "", ReasonBadTime
	}
	if !yearInRange(ts, year) {
		return "", ReasonYearRange
	}
	return formatWeek(ts.WeekFormat, year, week), ""
}

func formatWeek(format string, year, week int) string {
	if format == config.WeekFormatPlain {
		return fmt.Sprintf("%d-%02d", year, week)
	}
	return fmt.Sprintf("%d-W%02d", year, week)
}

func yearInRange(ts config.TimeSpec, year int) bool {
	if ts.MinYear != 0 && year < ts.MinYear {
		return false
	}
	if ts.MaxYear != 0 && year > ts.MaxYear {
		return false
	}
	return true
}

func leadingYear(bucket string) (int, bool) {
	if len(bucket) < 4 {
		return 0, false
	}
	y, err := strconv.Atoi(bucket[:4])
	if err != nil {
		return 0, false
	}
	return y, true
}

// dateLayouts lists the formats seen across the stock exports. Slash and
// dash separated day-first layouts come from the Brazilian summary file.
var (
	isoDateLayouts    = []string{"2006-01-02", "2006-01-02 15:04:05", "2006-01-02T15:04:05Z07:00"}
	dayFirstLayouts   = []string{"2/1/2006", "02/01/2006", "2-1-2006", "02-01-2006"}
	monthFirstLayouts = []string{"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006"}
)

func parseFlexibleDate(raw string, dayFirst bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	layouts := append([]string{}, isoDateLayouts...)
	if dayFirst {
		layouts = append(layouts, dayFirstLayouts...)
		layouts = append(layouts, monthFirstLayouts...)
	} else {
		layouts = append(layouts, monthFirstLayouts...)
		layouts = append(layouts, dayFirstLayouts...)
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", raw)
}

func parseIntCell(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	// Spreadsheet exports leak integers as "2024.0".
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}

func parseNumber(raw string) (float64, error) {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if raw == "" {
		return 0, fmt.Errorf("empty cell")
	}
	return strconv.ParseFloat(raw, 64)
}

// parseCount coerces a count cell to a number the way a sum-aggregation
// treats missing values: empty and unparseable cells count as zero.
func parseCount(raw string, coerced int) (float64, int) {
	if strings.TrimSpace(raw) == "" {
		return 0, coerced
	}
	n, err := parseNumber(raw)
	if err != nil {
		return 0, coerced + 1
	}
	return n, coerced
}

// ReadCSVTable reads a delimited text file into a Table, sniffing the
// delimiter from the header line.
func ReadCSVTable(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MissingResourceError{Path: path}
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	r := csv.NewReader(bytes.NewReader(raw))
	r.Comma = sniffDelimiter(raw)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, &SchemaError{Source: path, Candidates: []string{"<header row>"}}
	}
	return NewTable(path, rows[0], rows[1:]), nil
}

// sniffDelimiter picks the candidate delimiter occurring most often in the
// header line. Comma wins ties.
func sniffDelimiter(raw []byte) rune {
	line := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		line = raw[:i]
	}

	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, c := range []byte{';', '\t', '|'} {
		if n := bytes.Count(line, []byte{c}); n > bestCount {
			best, bestCount = rune(c), n
		}
	}
	return best
}
