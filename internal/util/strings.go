package util

import (
	"strings"
	"unicode"
)

// NormalizeKey folds a parameter or category name into its matching form:
// lower-case, trimmed, with every run of internal whitespace collapsed to a
// single underscore. "Clear  Height mm" and "clear_height_mm" normalize alike.
func NormalizeKey(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), unicode.IsSpace)
	return strings.Join(fields, "_")
}
