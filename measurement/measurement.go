// Package measurement holds the numeric facts extracted from drawings.
package measurement

import (
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/aecoa/aecoa/internal/util"
)

// Measurement is one value read off a drawing for one entity.
// SourceRef is carried through to evidence and never interpreted.
type Measurement struct {
	EntityID  string  `json:"entity_id" yaml:"entity_id" validate:"required"`
	Category  string  `json:"category,omitempty" yaml:"category,omitempty"`
	Parameter string  `json:"parameter" yaml:"parameter" validate:"required"`
	Value     float64 `json:"value" yaml:"value" validate:"finite"`
	Unit      string  `json:"unit" yaml:"unit" validate:"required"`
	SourceRef string  `json:"source_ref,omitempty" yaml:"source_ref,omitempty"`
}

var measurementValidate *validator.Validate

func init() {
	measurementValidate = validator.New()
	_ = measurementValidate.RegisterValidation("finite", func(fl validator.FieldLevel) bool {
		f := fl.Field().Float()
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	})
}

// Index is an ordered, parameter-keyed view over measurements.
// Source order is preserved; it decides the "first" aggregator.
type Index struct {
	all   []Measurement
	byKey map[string][]int
}

// NewIndex builds an index. Measurements are copied.
func NewIndex(ms []Measurement) *Index {
	idx := &Index{
		all:   make([]Measurement, len(ms)),
		byKey: make(map[string][]int),
	}
	copy(idx.all, ms)
	for i, m := range idx.all {
		key := util.NormalizeKey(m.Parameter)
		idx.byKey[key] = append(idx.byKey[key], i)
	}
	return idx
}

// Lookup returns the measurements whose normalized parameter equals the
// normalized key, in source order
func (idx *Index) Lookup(parameter string) []Measurement {
	if idx == nil {
		return nil
	}
	positions := idx.byKey[util.NormalizeKey(parameter)]
	out := make([]Measurement, len(positions))
	for i, p := range positions {
		out[i] = idx.all[p]
	}
	return out
}

// All returns every measurement in source order
func (idx *Index) All() []Measurement {
	if idx == nil {
		return nil
	}
	out := make([]Measurement, len(idx.all))
	copy(out, idx.all)
	return out
}

// Len returns the number of measurements
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.all)
}

// Parameters returns the distinct normalized parameter keys, in first-seen order
func (idx *Index) Parameters() []string {
	if idx == nil {
		return nil
	}
	var keys []string
	seen := make(map[string]bool, len(idx.byKey))
	for _, m := range idx.all {
		key := util.NormalizeKey(m.Parameter)
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	return keys
}
