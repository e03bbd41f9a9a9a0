package compliance

import (
	"fmt"

	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/internal/util"
	"github.com/aecoa/aecoa/measurement"
	"github.com/aecoa/aecoa/requirement"
	"github.com/aecoa/aecoa/units"
)

// DefaultTolerance is the absolute tolerance used for == requirements
const DefaultTolerance = 1e-9

// marginPlaces keeps reported margins free of float noise (2.1-2.2 reports -0.1)
const marginPlaces = 9

// Drivers holds run-level driver values (e.g. gfa_m2) keyed by normalized name
type Drivers map[string]float64

// NewDrivers normalizes driver names
func NewDrivers(values map[string]float64) Drivers {
	d := make(Drivers, len(values))
	for k, v := range values {
		d[util.NormalizeKey(k)] = v
	}
	return d
}

// Lookup returns a driver value. When no value was supplied, the first
// measurement in idx whose parameter is named after the driver is used,
// converted to unit when unit is set. Supplied values are taken as given.
func (d Drivers) Lookup(name, unit string, idx *measurement.Index) (float64, bool, error) {
	key := util.NormalizeKey(name)
	if v, ok := d[key]; ok {
		return v, true, nil
	}
	ms := idx.Lookup(key)
	if len(ms) == 0 {
		return 0, false, nil
	}
	if unit == "" {
		return ms[0].Value, true, nil
	}
	v, err := units.Convert(ms[0].Value, ms[0].Unit, unit)
	if err != nil {
		return 0, true, errors.Wrapf(errors.ErrBucketResolution, "driver %s from %s: %v", name, ms[0].EntityID, err)
	}
	return v, true, nil
}

// ResolveThreshold returns the required value for req.
// Ranged requirements select the bucket containing the driver value;
// failures wrap ErrBucketResolution.
func ResolveThreshold(req requirement.Requirement, drivers Drivers, idx *measurement.Index) (float64, *BucketRef, error) {
	switch req.Kind {
	case requirement.KindFixed:
		if req.Threshold == nil {
			return 0, nil, errors.Wrapf(errors.ErrInvalidRequirement, "requirement %s has no threshold", req.ID)
		}
		return *req.Threshold, nil, nil

	case requirement.KindRanged:
		d, ok, err := drivers.Lookup(req.Driver, req.DriverUnit, idx)
		if err != nil {
			return 0, nil, err
		}
		if !ok {
			return 0, nil, errors.Wrapf(errors.ErrBucketResolution, "driver %s not provided", req.Driver)
		}
		b, i, err := req.ResolveBucket(d)
		if err != nil {
			return 0, nil, err
		}
		return b.Threshold, &BucketRef{Index: i, Lower: b.Lower, Upper: b.Upper, Driver: req.Driver, DriverValue: d}, nil
	}
	return 0, nil, errors.Wrapf(errors.ErrInvalidRequirement, "requirement %s has unknown kind %q", req.ID, req.Kind)
}

// Comparator applies a requirement's operator to one measurement
type Comparator struct {
	// Tolerance for == requirements; zero means DefaultTolerance
	Tolerance float64
}

func (c Comparator) tolerance() float64 {
	if c.Tolerance == 0 {
		return DefaultTolerance
	}
	return c.Tolerance
}

// Compare checks m against threshold using the package default tolerance
func Compare(req requirement.Requirement, m measurement.Measurement, threshold float64) CheckResult {
	return Comparator{}.Compare(req, m, threshold)
}

// Compare converts m to the requirement unit and checks it against threshold.
// A unit with no linear conversion yields INCONCLUSIVE.
func (c Comparator) Compare(req requirement.Requirement, m measurement.Measurement, threshold float64) CheckResult {
	result := newResult(req)
	result.MatchedEntityIDs = []string{m.EntityID}
	result.RequiredValue = util.Ptr(threshold)

	ev := Evidence{
		EntityID:  m.EntityID,
		Parameter: m.Parameter,
		RawValue:  m.Value,
		RawUnit:   m.Unit,
		Unit:      req.Unit,
		SourceRef: m.SourceRef,
		Selected:  true,
	}

	measured, err := units.Convert(m.Value, m.Unit, req.Unit)
	if err != nil {
		ev.Convertible = false
		result.Evidence = []Evidence{ev}
		return inconclusive(result, ReasonUnitMismatch, err)
	}
	ev.Convertible = true
	ev.NormalizedValue = measured
	result.Evidence = []Evidence{ev}

	return c.judge(result, req, measured, threshold)
}

// judge fills verdict, margin and reason for an already normalized value
func (c Comparator) judge(result CheckResult, req requirement.Requirement, measured, threshold float64) CheckResult {
	// verdict and margin must agree on the same value
	measured = util.RoundTo(measured, marginPlaces)
	result.MeasuredValue = util.Ptr(measured)
	result.RequiredValue = util.Ptr(threshold)
	result.Margin = util.Ptr(util.RoundTo(req.Op.Margin(measured, threshold), marginPlaces))

	if req.Op.Holds(measured, threshold, c.tolerance()) {
		result.Verdict = VerdictPass
		return result
	}

	result.Verdict = VerdictFail
	switch {
	case req.Op.AtLeast():
		result.Reason = ReasonBelowThreshold
	case req.Op.AtMost():
		result.Reason = ReasonAboveThreshold
	default:
		result.Reason = ReasonNotEqual
	}
	result.Message = fmt.Sprintf("%s %g %s required %s %g %s",
		req.Parameter, measured, req.Unit, req.Op, threshold, req.Unit)
	return result
}

func newResult(req requirement.Requirement) CheckResult {
	return CheckResult{
		RequirementID:    req.ID,
		Clause:           req.Clause,
		Parameter:        req.Parameter,
		Op:               req.Op,
		Unit:             req.Unit,
		Aggregator:       req.EffectiveAggregator(),
		MatchedEntityIDs: []string{},
		Evidence:         []Evidence{},
	}
}

func inconclusive(result CheckResult, reason string, err error) CheckResult {
	result.Verdict = VerdictInconclusive
	result.Reason = reason
	result.Message = err.Error()
	result.MeasuredValue = nil
	result.Margin = nil
	return result
}
