package compliance

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/logger"
	"github.com/aecoa/aecoa/measurement"
	"github.com/aecoa/aecoa/requirement"
)

// ReasonInvalidRequirement marks a requirement that slipped past load-time validation
const ReasonInvalidRequirement = "invalid_requirement"

// Check resolves, thresholds and compares one requirement
func (c Comparator) Check(req requirement.Requirement, idx *measurement.Index, drivers Drivers) CheckResult {
	res := Resolve(req, idx)
	result := newResult(req)

	if res.Empty() {
		result.Verdict = VerdictNotApplicable
		result.Reason = ReasonNoMeasurement
		result.Message = "no measurement for " + req.Key()
		return result
	}

	result.MatchedEntityIDs = make([]string, len(res.Matches))
	result.Evidence = make([]Evidence, len(res.Matches))
	for i, m := range res.Matches {
		result.MatchedEntityIDs[i] = m.EntityID
		result.Evidence[i] = Evidence{
			EntityID:        m.EntityID,
			Parameter:       m.Parameter,
			RawValue:        m.Value,
			RawUnit:         m.Unit,
			NormalizedValue: res.Normalized[i],
			Unit:            req.Unit,
			SourceRef:       m.SourceRef,
			Selected:        i == res.Selected,
			Convertible:     res.Convertible[i],
		}
	}

	threshold, bucket, err := ResolveThreshold(req, drivers, idx)
	result.Bucket = bucket
	if err != nil {
		if errors.Is(err, errors.ErrBucketResolution) {
			return inconclusive(result, ReasonBucketResolution, err)
		}
		return inconclusive(result, ReasonInvalidRequirement, err)
	}
	result.RequiredValue = &threshold

	if res.UnitErr != nil {
		return inconclusive(result, ReasonUnitMismatch, res.UnitErr)
	}

	return c.judge(result, req, res.Normalized[res.Selected], threshold)
}

// Options configures an Evaluator
type Options struct {
	// Workers bounds concurrent checks; <= 0 runs one goroutine per requirement
	Workers   int
	Tolerance float64
	Logger    *zap.SugaredLogger
}

// Evaluator checks every requirement of a table against a measurement index
type Evaluator struct {
	comparator Comparator
	workers    int
	logger     *zap.SugaredLogger
}

// NewEvaluator creates an evaluator
func NewEvaluator(opts Options) *Evaluator {
	return &Evaluator{
		comparator: Comparator{Tolerance: opts.Tolerance},
		workers:    opts.Workers,
		logger:     logger.OrNop(opts.Logger),
	}
}

// Evaluation is the ordered result set for one table
type Evaluation struct {
	Table   string             `json:"table,omitempty"`
	Drivers map[string]float64 `json:"drivers,omitempty"`
	Results []CheckResult      `json:"results"`
	Summary Summary            `json:"summary"`
}

// Result returns the result for a requirement id
func (e *Evaluation) Result(id string) (CheckResult, bool) {
	for _, r := range e.Results {
		if r.RequirementID == id {
			return r, true
		}
	}
	return CheckResult{}, false
}

// Evaluate checks every requirement. Results follow table order regardless of
// worker scheduling. The only error is context cancellation.
func (e *Evaluator) Evaluate(ctx context.Context, table *requirement.Table, idx *measurement.Index, drivers Drivers) (*Evaluation, error) {
	if table == nil {
		return nil, errors.NewInvalidRequestError("requirement table is required")
	}
	start := time.Now()

	// One slot per requirement; each goroutine writes only its own slot
	results := make([]CheckResult, len(table.Requirements))

	g, gctx := errgroup.WithContext(ctx)
	if e.workers > 0 {
		g.SetLimit(e.workers)
	}
	for i, req := range table.Requirements {
		i, req := i, req
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.comparator.Check(req, idx, drivers)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "evaluation cancelled")
	}

	eval := &Evaluation{
		Table:   table.Name,
		Drivers: copyDrivers(drivers),
		Results: results,
		Summary: Summarize(results),
	}

	elapsed := time.Since(start)
	evaluationDuration.Observe(elapsed.Seconds())
	recordResults(results)

	e.logger.Infow("Evaluation complete",
		logger.FieldCount, len(results),
		"pass_all", eval.Summary.PassAll,
		"failed", len(eval.Summary.Failed),
		"inconclusive", len(eval.Summary.Inconclusive),
		logger.FieldDurationMS, elapsed.Milliseconds(),
	)
	for _, r := range results {
		if r.Verdict == VerdictInconclusive {
			e.logger.Warnw("Requirement inconclusive",
				logger.FieldRequirementID, r.RequirementID,
				logger.FieldReason, r.Reason,
				"message", r.Message,
			)
		}
	}

	return eval, nil
}

func copyDrivers(d Drivers) map[string]float64 {
	if len(d) == 0 {
		return nil
	}
	out := make(map[string]float64, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}
