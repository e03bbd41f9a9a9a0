// Package requirement defines regulatory requirement tables.
//
// A requirement is either fixed (one threshold) or ranged (a threshold chosen
// by a driver value such as gross floor area). Tables are validated once when
// loaded; the evaluator assumes a validated table.
package requirement

import (
	"math"

	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/internal/util"
)

// Kind distinguishes fixed from ranged requirements
type Kind string

const (
	KindFixed  Kind = "fixed"
	KindRanged Kind = "ranged"
)

// Op is the comparison a measured value must satisfy against the required value
type Op string

const (
	OpGTE Op = ">="
	OpLTE Op = "<="
	OpGT  Op = ">"
	OpLT  Op = "<"
	OpEQ  Op = "=="
)

// AtLeast reports whether op puts a lower bound on the measured value
func (op Op) AtLeast() bool { return op == OpGTE || op == OpGT }

// AtMost reports whether op puts an upper bound on the measured value
func (op Op) AtMost() bool { return op == OpLTE || op == OpLT }

// Holds reports whether measured op required is true.
// tolerance only applies to OpEQ.
func (op Op) Holds(measured, required, tolerance float64) bool {
	switch op {
	case OpGTE:
		return measured >= required
	case OpGT:
		return measured > required
	case OpLTE:
		return measured <= required
	case OpLT:
		return measured < required
	case OpEQ:
		return math.Abs(measured-required) <= tolerance
	}
	return false
}

// Margin returns the distance from the threshold, positive on the compliant side
func (op Op) Margin(measured, required float64) float64 {
	switch {
	case op.AtLeast():
		return measured - required
	case op.AtMost():
		return required - measured
	default:
		return -math.Abs(measured - required)
	}
}

// Aggregator picks one measurement when several match a requirement
type Aggregator string

const (
	AggregateMin   Aggregator = "min"
	AggregateMax   Aggregator = "max"
	AggregateFirst Aggregator = "first"
)

// Scope restricts which entities a requirement applies to.
// The zero Scope applies to every entity.
type Scope struct {
	Entity   string `json:"entity,omitempty" yaml:"entity,omitempty" toml:"entity,omitempty"`
	Category string `json:"category,omitempty" yaml:"category,omitempty" toml:"category,omitempty"`
}

// IsZero reports whether the scope applies to all entities
func (s Scope) IsZero() bool { return s.Entity == "" && s.Category == "" }

// Bucket is one half-open interval [Lower, Upper) of a ranged requirement.
// A nil Upper is unbounded.
type Bucket struct {
	Lower     float64  `json:"lower" yaml:"lower" toml:"lower"`
	Upper     *float64 `json:"upper" yaml:"upper" toml:"upper,omitempty"`
	Threshold float64  `json:"threshold" yaml:"threshold" toml:"threshold"`
}

// Contains reports whether d falls in [Lower, Upper)
func (b Bucket) Contains(d float64) bool {
	if d < b.Lower {
		return false
	}
	return b.Upper == nil || d < *b.Upper
}

// Requirement is one regulatory check. DriverUnit is the unit of the bucket
// bounds; driver values read from measurements are converted into it.
type Requirement struct {
	ID          string     `json:"id" yaml:"id" toml:"id" validate:"required"`
	Clause      string     `json:"clause,omitempty" yaml:"clause,omitempty" toml:"clause,omitempty"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty" toml:"description,omitempty"`
	Kind        Kind       `json:"kind" yaml:"kind" toml:"kind" validate:"required,oneof=fixed ranged"`
	Parameter   string     `json:"parameter" yaml:"parameter" toml:"parameter" validate:"required,paramkey"`
	Op          Op         `json:"op" yaml:"op" toml:"op" validate:"required,oneof=>= <= > < =="`
	Unit        string     `json:"unit" yaml:"unit" toml:"unit" validate:"required"`
	Threshold   *float64   `json:"threshold,omitempty" yaml:"threshold,omitempty" toml:"threshold,omitempty"`
	Driver      string     `json:"driver,omitempty" yaml:"driver,omitempty" toml:"driver,omitempty"`
	DriverUnit  string     `json:"driver_unit,omitempty" yaml:"driver_unit,omitempty" toml:"driver_unit,omitempty"`
	Buckets     []Bucket   `json:"buckets,omitempty" yaml:"buckets,omitempty" toml:"buckets,omitempty"`
	Scope       Scope      `json:"scope,omitempty" yaml:"scope,omitempty" toml:"scope,omitempty"`
	Aggregator  Aggregator `json:"aggregator,omitempty" yaml:"aggregator,omitempty" toml:"aggregator,omitempty" validate:"omitempty,oneof=min max first"`
}

// Key returns the normalized parameter name used for matching
func (r Requirement) Key() string {
	return util.NormalizeKey(r.Parameter)
}

// EffectiveAggregator returns the configured aggregator, or the default for the op:
// min for at-least ops, max for at-most ops, first for equality.
func (r Requirement) EffectiveAggregator() Aggregator {
	if r.Aggregator != "" {
		return r.Aggregator
	}
	switch {
	case r.Op.AtLeast():
		return AggregateMin
	case r.Op.AtMost():
		return AggregateMax
	default:
		return AggregateFirst
	}
}

// ResolveBucket returns the bucket containing driver value d and its index.
// NaN, infinite, negative and uncovered values return ErrBucketResolution.
func (r Requirement) ResolveBucket(d float64) (Bucket, int, error) {
	if r.Kind != KindRanged {
		return Bucket{}, -1, errors.Wrapf(errors.ErrBucketResolution, "requirement %s is not ranged", r.ID)
	}
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return Bucket{}, -1, errors.Wrapf(errors.ErrBucketResolution, "driver %s=%v is not a finite number", r.Driver, d)
	}
	for i, b := range r.Buckets {
		if b.Contains(d) {
			return b, i, nil
		}
	}
	return Bucket{}, -1, errors.Wrapf(errors.ErrBucketResolution, "driver %s=%v outside all buckets of %s", r.Driver, d, r.ID)
}

// Table is a versioned set of requirements
type Table struct {
	SchemaVersion string        `json:"schema_version,omitempty" yaml:"schema_version,omitempty" toml:"schema_version,omitempty"`
	Name          string        `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Requirements  []Requirement `json:"requirements" yaml:"requirements" toml:"requirements" validate:"required,min=1,dive"`
}

// Drivers lists the distinct driver names used by ranged requirements, in table order
func (t *Table) Drivers() []string {
	var out []string
	seen := map[string]bool{}
	for _, r := range t.Requirements {
		if r.Kind == KindRanged && !seen[r.Driver] {
			seen[r.Driver] = true
			out = append(out, r.Driver)
		}
	}
	return out
}

// Find returns the requirement with the given id
func (t *Table) Find(id string) (Requirement, bool) {
	for _, r := range t.Requirements {
		if r.ID == id {
			return r, true
		}
	}
	return Requirement{}, false
}
