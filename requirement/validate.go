package requirement

import (
	"fmt"
	"math"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"

	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/internal/util"
	"github.com/aecoa/aecoa/version"
)

// DefaultSchemaVersion is assumed for tables that do not declare one
const DefaultSchemaVersion = "1.0.0"

var tableValidate *validator.Validate

func init() {
	tableValidate = validator.New()
	_ = tableValidate.RegisterValidation("paramkey", validateParamKey)
}

// validateParamKey rejects parameters that normalize to nothing
func validateParamKey(fl validator.FieldLevel) bool {
	return util.NormalizeKey(fl.Field().String()) != ""
}

// Validate checks the table and returns ErrInvalidRequirement describing every problem found
func (t *Table) Validate() error {
	var problems []string

	if err := checkSchemaVersion(t.SchemaVersion); err != nil {
		problems = append(problems, err.Error())
	}

	if err := tableValidate.Struct(t); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	seen := make(map[string]bool, len(t.Requirements))
	for i, r := range t.Requirements {
		if r.ID != "" {
			if seen[r.ID] {
				problems = append(problems, fmt.Sprintf("requirements[%d]: duplicate id %q", i, r.ID))
			}
			seen[r.ID] = true
		}
		for _, p := range r.shapeProblems() {
			problems = append(problems, fmt.Sprintf("requirement %s: %s", r.label(i), p))
		}
	}

	if len(problems) == 0 {
		return nil
	}
	err := errors.Wrap(errors.ErrInvalidRequirement, strings.Join(problems, "; "))
	return errors.WithHint(err, "fix the requirement table and load it again")
}

// Validate checks a single requirement
func (r Requirement) Validate() error {
	t := Table{SchemaVersion: DefaultSchemaVersion, Requirements: []Requirement{r}}
	return t.Validate()
}

func (r Requirement) label(i int) string {
	if r.ID != "" {
		return r.ID
	}
	return fmt.Sprintf("#%d", i)
}

// shapeProblems checks kind-specific structure that struct tags cannot express
func (r Requirement) shapeProblems() []string {
	var problems []string

	switch r.Kind {
	case KindFixed:
		if r.Threshold == nil {
			problems = append(problems, "fixed requirement needs a threshold")
		} else if !finite(*r.Threshold) {
			problems = append(problems, "threshold must be finite")
		}
		if len(r.Buckets) > 0 {
			problems = append(problems, "fixed requirement cannot have buckets")
		}
		if r.DriverUnit != "" {
			problems = append(problems, "fixed requirement cannot have a driver unit")
		}

	case KindRanged:
		if r.Threshold != nil {
			problems = append(problems, "ranged requirement cannot have a top-level threshold")
		}
		if util.NormalizeKey(r.Driver) == "" {
			problems = append(problems, "ranged requirement needs a driver")
		}
		problems = append(problems, bucketProblems(r.Buckets)...)
	}

	if r.Scope.Entity != "" && r.Scope.Category != "" {
		problems = append(problems, "scope names both an entity and a category")
	}

	return problems
}

// bucketProblems enforces contiguous, non-overlapping buckets covering [0, +inf)
func bucketProblems(buckets []Bucket) []string {
	if len(buckets) == 0 {
		return []string{"ranged requirement needs at least one bucket"}
	}

	var problems []string
	if buckets[0].Lower != 0 {
		problems = append(problems, fmt.Sprintf("first bucket must start at 0, starts at %v", buckets[0].Lower))
	}
	for i, b := range buckets {
		if !finite(b.Lower) || !finite(b.Threshold) {
			problems = append(problems, fmt.Sprintf("bucket %d has a non-finite bound or threshold", i))
			continue
		}
		last := i == len(buckets)-1
		if b.Upper == nil {
			if !last {
				problems = append(problems, fmt.Sprintf("bucket %d is unbounded but is not the last bucket", i))
			}
			continue
		}
		if last {
			problems = append(problems, fmt.Sprintf("last bucket must be unbounded, ends at %v", *b.Upper))
		}
		if !(*b.Upper > b.Lower) || math.IsInf(*b.Upper, 0) {
			problems = append(problems, fmt.Sprintf("bucket %d upper %v must be finite and above lower %v", i, *b.Upper, b.Lower))
			continue
		}
		if !last && buckets[i+1].Lower != *b.Upper {
			problems = append(problems, fmt.Sprintf("bucket %d ends at %v but bucket %d starts at %v", i, *b.Upper, i+1, buckets[i+1].Lower))
		}
	}
	return problems
}

// checkSchemaVersion requires a table schema this build understands
func checkSchemaVersion(v string) error {
	if v == "" {
		v = DefaultSchemaVersion
	}
	sv, err := semver.NewVersion(v)
	if err != nil {
		return errors.Newf("schema_version %q is not a semantic version", v)
	}
	constraint, err := semver.NewConstraint(version.TableSchemaConstraint)
	if err != nil {
		return errors.Wrap(err, "invalid table schema constraint")
	}
	if !constraint.Check(sv) {
		return errors.Newf("schema_version %s is not supported (need %s)", sv, version.TableSchemaConstraint)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
