package ingest

import "strings"

// Table is an in-memory tabular source: a header row plus data rows. Column
// lookup is whitespace-trimmed and case-insensitive, so "iso3", " ISO3" and
// "Iso3 " all resolve to the same column.
type Table struct {
	Source  string
	Columns []string
	Rows    [][]string

	index map[string]int
}

// NewTable builds a Table from a header row and data rows. When two columns
// collapse to the same canonical name the first one wins.
func NewTable(source string, header []string, rows [][]string) *Table {
	t := &Table{
		Source:  source,
		Columns: header,
		Rows:    rows,
		index:   make(map[string]int, len(header)),
	}
	for i, col := range header {
		key := canonicalColumn(col)
		if _, seen := t.index[key]; !seen {
			t.index[key] = i
		}
	}
	return t
}

func canonicalColumn(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Resolve returns the index of the first candidate column present in the
// table. The boolean is false when no candidate matches.
func (t *Table) Resolve(candidates ...string) (int, bool) {
	for _, c := range candidates {
		if i, ok := t.index[canonicalColumn(c)]; ok {
			return i, true
		}
	}
	return 0, false
}

// MustResolve is Resolve returning a SchemaError instead of a boolean.
func (t *Table) MustResolve(candidates ...string) (int, error) {
	if i, ok := t.Resolve(candidates...); ok {
		return i, nil
	}
	return 0, &SchemaError{Source: t.Source, Candidates: candidates, Columns: t.Columns}
}

// Field returns the trimmed cell at column i of row, or "" when the row is
// shorter than the header. Ragged rows are common in hand-edited CSV exports.
func Field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
