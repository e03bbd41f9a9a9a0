// Package compliance evaluates measurements against requirement tables.
//
// Evaluation is pure: the same table, index and drivers always produce the
// same ordered results. Unit and bucket problems become INCONCLUSIVE results
// for the affected requirement and never abort a run.
package compliance

import (
	"github.com/aecoa/aecoa/requirement"
)

// Verdict is the outcome of one requirement check
type Verdict string

const (
	VerdictPass          Verdict = "PASS"
	VerdictFail          Verdict = "FAIL"
	VerdictNotApplicable Verdict = "NOT_APPLICABLE"
	VerdictInconclusive  Verdict = "INCONCLUSIVE"
)

// Verdicts lists every verdict in reporting order
var Verdicts = []Verdict{VerdictPass, VerdictFail, VerdictNotApplicable, VerdictInconclusive}

// Reason codes explain non-PASS verdicts
const (
	ReasonBelowThreshold   = "below_threshold"
	ReasonAboveThreshold   = "above_threshold"
	ReasonNotEqual         = "not_equal"
	ReasonNoMeasurement    = "no_measurement"
	ReasonUnitMismatch     = "unit_mismatch"
	ReasonBucketResolution = "bucket_resolution"
)

// Evidence records one matched measurement as it was read and as it was compared
type Evidence struct {
	EntityID        string  `json:"entity_id"`
	Parameter       string  `json:"parameter"`
	RawValue        float64 `json:"raw_value"`
	RawUnit         string  `json:"raw_unit"`
	NormalizedValue float64 `json:"normalized_value"`
	Unit            string  `json:"unit"`
	SourceRef       string  `json:"source_ref,omitempty"`
	Selected        bool    `json:"selected"`
	Convertible     bool    `json:"convertible"`
}

// BucketRef identifies the bucket a ranged requirement resolved to
type BucketRef struct {
	Index       int      `json:"index"`
	Lower       float64  `json:"lower"`
	Upper       *float64 `json:"upper,omitempty"`
	Driver      string   `json:"driver"`
	DriverValue float64  `json:"driver_value"`
}

// CheckResult is the verdict for one requirement
type CheckResult struct {
	RequirementID    string                 `json:"requirement_id"`
	Clause           string                 `json:"clause,omitempty"`
	Parameter        string                 `json:"parameter"`
	Op               requirement.Op         `json:"op"`
	Unit             string                 `json:"unit"`
	Verdict          Verdict                `json:"verdict"`
	MatchedEntityIDs []string               `json:"matched_entity_ids"`
	MeasuredValue    *float64               `json:"measured_value,omitempty"`
	RequiredValue    *float64               `json:"required_value,omitempty"`
	Margin           *float64               `json:"margin,omitempty"`
	Aggregator       requirement.Aggregator `json:"aggregator,omitempty"`
	Reason           string                 `json:"reason,omitempty"`
	Message          string                 `json:"message,omitempty"`
	Bucket           *BucketRef             `json:"bucket,omitempty"`
	Evidence         []Evidence             `json:"evidence"`
}

// Compliant reports whether the result does not block approval
func (r CheckResult) Compliant() bool {
	return r.Verdict == VerdictPass || r.Verdict == VerdictNotApplicable
}
