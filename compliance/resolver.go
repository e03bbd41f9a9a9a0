package compliance

import (
	"github.com/aecoa/aecoa/internal/util"
	"github.com/aecoa/aecoa/measurement"
	"github.com/aecoa/aecoa/requirement"
	"github.com/aecoa/aecoa/units"
)

// Resolution binds a requirement to the measurements that apply to it
type Resolution struct {
	Requirement requirement.Requirement
	// Matches in index source order
	Matches    []measurement.Measurement
	Aggregator requirement.Aggregator
	// Selected indexes Matches; -1 when nothing could be selected
	Selected int
	// Normalized holds each match converted to the requirement unit
	Normalized  []float64
	Convertible []bool
	// UnitErr is set when any match has no linear conversion to the requirement unit
	UnitErr error
}

// Empty reports whether no measurement applies
func (r Resolution) Empty() bool { return len(r.Matches) == 0 }

// Resolve finds the measurements a requirement applies to and selects the one
// to compare using the requirement's aggregator. It has no side effects.
func Resolve(req requirement.Requirement, idx *measurement.Index) Resolution {
	res := Resolution{
		Requirement: req,
		Aggregator:  req.EffectiveAggregator(),
		Selected:    -1,
	}

	for _, m := range idx.Lookup(req.Parameter) {
		if inScope(req.Scope, m) {
			res.Matches = append(res.Matches, m)
		}
	}
	if res.Empty() {
		return res
	}

	res.Normalized = make([]float64, len(res.Matches))
	res.Convertible = make([]bool, len(res.Matches))
	for i, m := range res.Matches {
		v, err := units.Convert(m.Value, m.Unit, req.Unit)
		if err != nil {
			if res.UnitErr == nil {
				res.UnitErr = err
			}
			continue
		}
		res.Normalized[i] = v
		res.Convertible[i] = true
	}
	// min/max over partially comparable values is meaningless
	if res.UnitErr != nil {
		return res
	}

	res.Selected = selectIndex(res.Aggregator, res.Normalized)
	return res
}

// selectIndex applies the aggregator; ties keep the earliest measurement
func selectIndex(agg requirement.Aggregator, values []float64) int {
	best := 0
	for i := 1; i < len(values); i++ {
		switch agg {
		case requirement.AggregateMin:
			if values[i] < values[best] {
				best = i
			}
		case requirement.AggregateMax:
			if values[i] > values[best] {
				best = i
			}
		}
	}
	return best
}

func inScope(scope requirement.Scope, m measurement.Measurement) bool {
	if scope.IsZero() {
		return true
	}
	if scope.Entity != "" && util.NormalizeKey(scope.Entity) != util.NormalizeKey(m.EntityID) {
		return false
	}
	if scope.Category != "" && util.NormalizeKey(scope.Category) != util.NormalizeKey(m.Category) {
		return false
	}
	return true
}
