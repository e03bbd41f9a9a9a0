// Package units converts measurement values between units of the same dimension.
// Only linear (scale-factor) conversions are supported.
package units

import (
	"strconv"
	"strings"

	"github.com/aecoa/aecoa/errors"
)

// Dimension groups units that can be converted into one another
type Dimension string

const (
	Length Dimension = "length"
	Area   Dimension = "area"
	Volume Dimension = "volume"
	Count  Dimension = "count"
)

type unit struct {
	canonical string
	dim       Dimension
	// factor to the dimension's base unit (m, m2, m3, each)
	factor float64
}

var known = map[string]unit{}

func register(dim Dimension, canonical string, factor float64, aliases ...string) {
	u := unit{canonical: canonical, dim: dim, factor: factor}
	known[canonical] = u
	for _, a := range aliases {
		known[a] = u
	}
}

func init() {
	register(Length, "mm", 0.001, "millimetre", "millimeter", "millimetres", "millimeters")
	register(Length, "cm", 0.01, "centimetre", "centimeter")
	register(Length, "m", 1, "metre", "meter", "metres", "meters")

	register(Area, "mm2", 1e-6, "mm²", "mm^2", "sqmm")
	register(Area, "cm2", 1e-4, "cm²", "cm^2")
	register(Area, "m2", 1, "m²", "m^2", "sqm", "sq m")

	register(Volume, "mm3", 1e-9, "mm³", "mm^3")
	register(Volume, "cm3", 1e-6, "cm³", "cm^3", "cc")
	register(Volume, "l", 1e-3, "litre", "liter", "litres", "liters")
	register(Volume, "m3", 1, "m³", "m^3", "cum", "cu m")

	register(Count, "count", 1, "nos", "no", "pcs", "ea", "each")
}

func lookup(s string) (unit, bool) {
	u, ok := known[strings.ToLower(strings.TrimSpace(s))]
	return u, ok
}

// Canonical returns the canonical spelling of a unit ("M²" → "m2").
// Unknown units are returned lower-cased and trimmed.
func Canonical(s string) string {
	if u, ok := lookup(s); ok {
		return u.canonical
	}
	return strings.ToLower(strings.TrimSpace(s))
}

// DimensionOf reports the dimension of a unit
func DimensionOf(s string) (Dimension, bool) {
	u, ok := lookup(s)
	return u.dim, ok
}

// Convert converts value from one unit to another.
// Identical spellings convert without lookup so unregistered units still compare
// against themselves. Returns ErrUnitMismatch when no linear conversion exists.
func Convert(value float64, from, to string) (float64, error) {
	if strings.EqualFold(strings.TrimSpace(from), strings.TrimSpace(to)) {
		return value, nil
	}

	f, okFrom := lookup(from)
	t, okTo := lookup(to)
	switch {
	case !okFrom:
		return 0, errors.Wrapf(errors.ErrUnitMismatch, "unknown unit %q", from)
	case !okTo:
		return 0, errors.Wrapf(errors.ErrUnitMismatch, "unknown unit %q", to)
	case f.dim != t.dim:
		return 0, errors.Wrapf(errors.ErrUnitMismatch, "cannot convert %s (%s) to %s (%s)", from, f.dim, to, t.dim)
	}

	if f.factor == t.factor {
		return value, nil
	}
	return significant(value*f.factor/t.factor, convertedDigits), nil
}

// convertedDigits bounds converted values so 0.7 m reads 700 mm, not 699.9999999999999
const convertedDigits = 12

func significant(v float64, digits int) float64 {
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'g', digits, 64), 64)
	if err != nil {
		return v
	}
	return r
}
