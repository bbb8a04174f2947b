package domain

import "strings"

// KeySeparator joins the parts of a composite key.
const KeySeparator = "_"

// Corrections maps known alias spellings (already normalized) to the
// canonical name used by the geometry source. Unmatched inputs pass through
// unchanged.
type Corrections map[string]string

// Apply substitutes a normalized name with its canonical spelling, if one is
// known.
func (c Corrections) Apply(normalized string) string {
	if canonical, ok := c[normalized]; ok {
		return canonical
	}
	return normalized
}

// CompositeKey builds a join key from raw text parts: each part is
// normalized, run through the correction table, and the results are joined by
// KeySeparator. Composing with the parent identifier keeps same-named child
// units in different provinces distinct.
func CompositeKey(corrections Corrections, parts ...string) string {
	fixed := make([]string, len(parts))
	for i, part := range parts {
		fixed[i] = corrections.Apply(Normalize(part))
	}
	return strings.Join(fixed, KeySeparator)
}

// CodeKey builds a join key from a numeric or string code field. A trailing
// ".0" decimal artifact (spreadsheet float round-trip) is stripped before the
// code is truncated to width characters. A width of 0 keeps the full code.
func CodeKey(raw string, width int) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimSuffix(s, ".0")
	if width > 0 && len(s) > width {
		s = s[:width]
	}
	return s
}
