package ingest

import (
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/dengueviewer/atlas-service/internal/config"
	"github.com/dengueviewer/atlas-service/internal/domain"
)

// ReadWorkbookTable reads the first sheet of an xlsx workbook into a Table.
func ReadWorkbookTable(path string) (*Table, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, &MissingResourceError{Path: path}
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", path)
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %s of %s: %w", sheets[0], path, err)
	}
	if len(rows) == 0 {
		return nil, &SchemaError{Source: path, Candidates: []string{"<header row>"}}
	}
	return NewTable(path, rows[0], rows[1:]), nil
}

// LoadPopulation reads a population table and returns counts keyed the same
// way the region's geometry is keyed, so the join is a plain map lookup.
// Corrections can fold a unit into a neighbour; folded units sum.
func LoadPopulation(spec config.PopulationSpec) (map[string]float64, error) {
	var (
		table *Table
		err   error
	)
	switch spec.Format {
	case config.FormatCSV:
		table, err = ReadCSVTable(spec.Path)
	default:
		table, err = ReadWorkbookTable(spec.Path)
	}
	if err != nil {
		return nil, err
	}

	nameIdx, err := table.MustResolve(spec.NameFields...)
	if err != nil {
		return nil, err
	}
	valueIdx, err := table.MustResolve(spec.ValueFields...)
	if err != nil {
		return nil, err
	}

	corrections := domain.Corrections(spec.Corrections)
	out := make(map[string]float64)
	for _, row := range table.Rows {
		name := Field(row, nameIdx)
		if name == "" {
			continue
		}
		value, err := parseNumber(Field(row, valueIdx))
		if err != nil {
			continue
		}
		out[domain.CompositeKey(corrections, name)] += value
	}
	return out, nil
}
