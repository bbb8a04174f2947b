package ingest

import (
	"errors"
	"fmt"
	"strings"
)

// MissingResourceError reports a dataset file that is absent on disk. The
// region it belongs to stays unavailable; other regions are unaffected.
type MissingResourceError struct {
	Path string
}

func (e *MissingResourceError) Error() string {
	return fmt.Sprintf("dataset file not found: %s", e.Path)
}

// IsMissingResource reports whether err wraps a MissingResourceError.
func IsMissingResource(err error) bool {
	var target *MissingResourceError
	return errors.As(err, &target)
}

// SchemaError reports that none of the configured candidate columns were
// found in a source table. The available header is carried so the failure
// can be diagnosed from logs alone.
type SchemaError struct {
	Source     string
	Candidates []string
	Columns    []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: none of the columns %s present (header: %s)",
		e.Source, strings.Join(e.Candidates, ", "), strings.Join(e.Columns, ", "))
}
