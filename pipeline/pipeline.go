// Package pipeline drives a compliance run through its gates: the approved
// INPUT (requirement table and measurements) is evaluated into the PROCESS
// artifact, and the approved evaluation is rendered into the OUTPUT report.
package pipeline

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/aecoa/aecoa/compliance"
	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/gate"
	"github.com/aecoa/aecoa/logger"
	"github.com/aecoa/aecoa/measurement"
	"github.com/aecoa/aecoa/report"
	"github.com/aecoa/aecoa/requirement"
)

// Input is the INPUT stage artifact
type Input struct {
	Table        *requirement.Table        `json:"table"`
	Measurements []measurement.Measurement `json:"measurements"`
	Drivers      map[string]float64        `json:"drivers,omitempty"`
}

// Validate checks the requirement table and measurements
func (in Input) Validate() error {
	if in.Table == nil {
		return errors.NewInvalidRequestError("input has no requirement table")
	}
	if err := in.Table.Validate(); err != nil {
		return errors.WrapInvalidRequest(err, "requirement table")
	}
	doc := measurement.Document{Measurements: in.Measurements, Drivers: in.Drivers}
	return doc.Validate()
}

// Config configures a Pipeline
type Config struct {
	Manager   *gate.Manager
	Evaluator *compliance.Evaluator
	// AutoAdvance produces the next stage's artifact right after an approval
	AutoAdvance bool
	Logger      *zap.SugaredLogger
}

// Pipeline runs the gated INPUT → PROCESS → OUTPUT flow
type Pipeline struct {
	manager     *gate.Manager
	evalMu      sync.RWMutex
	evaluator   *compliance.Evaluator
	autoAdvance atomic.Bool
	logger      *zap.SugaredLogger
}

// New creates a pipeline
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		manager:   cfg.Manager,
		evaluator: cfg.Evaluator,
		logger:    logger.OrNop(cfg.Logger),
	}
	if p.manager == nil {
		p.manager = gate.NewManager(gate.ManagerOptions{Logger: cfg.Logger})
	}
	if p.evaluator == nil {
		p.evaluator = compliance.NewEvaluator(compliance.Options{Logger: cfg.Logger})
	}
	p.autoAdvance.Store(cfg.AutoAdvance)
	return p
}

// Manager returns the run manager
func (p *Pipeline) Manager() *gate.Manager { return p.manager }

// SetEvaluator swaps the evaluator used for later evaluations
func (p *Pipeline) SetEvaluator(e *compliance.Evaluator) {
	p.evalMu.Lock()
	defer p.evalMu.Unlock()
	p.evaluator = e
}

// SetAutoAdvance toggles automatic artifact production after approval
func (p *Pipeline) SetAutoAdvance(on bool) { p.autoAdvance.Store(on) }

func (p *Pipeline) currentEvaluator() *compliance.Evaluator {
	p.evalMu.RLock()
	defer p.evalMu.RUnlock()
	return p.evaluator
}

// Start creates a run and submits its INPUT artifact for review
func (p *Pipeline) Start(ctx context.Context, in Input, actor string) (gate.State, error) {
	if err := in.Validate(); err != nil {
		return gate.State{}, err
	}
	payload, err := json.Marshal(in)
	if err != nil {
		return gate.State{}, errors.Wrap(err, "encode input")
	}

	run := p.manager.Create(actor)
	if _, err := run.SubmitArtifact(gate.StageInput, payload, actor); err != nil {
		return run.State(), err
	}
	p.log(logger.WithRunID(ctx, run.ID())).Infow("Run started",
		logger.FieldActor, actor,
		"requirements", len(in.Table.Requirements),
		"measurements", len(in.Measurements),
	)
	return p.save(ctx, run)
}

// Approve approves a stage. A non-nil version must match the run's version.
// With auto-advance on, the next stage's artifact is produced immediately;
// a production failure is recorded on the run and returned.
func (p *Pipeline) Approve(ctx context.Context, runID string, stage gate.Stage, actor string, version *int64) (gate.State, error) {
	run, err := p.manager.Get(ctx, runID)
	if err != nil {
		return gate.State{}, err
	}

	ctx = logger.WithRunID(ctx, runID)
	if version != nil {
		err = run.ApproveVersion(stage, actor, *version)
	} else {
		err = run.Approve(stage, actor)
	}
	if err != nil {
		p.log(ctx).Warnw("Approval refused",
			logger.FieldStage, stage,
			logger.FieldActor, actor,
			logger.FieldError, err,
		)
		return run.State(), err
	}
	p.log(ctx).Infow("Stage approved",
		logger.FieldStage, stage,
		logger.FieldActor, actor,
	)

	if _, err := p.save(ctx, run); err != nil {
		return run.State(), err
	}

	next, ok := stage.Next()
	if !ok || !p.autoAdvance.Load() {
		return run.State(), nil
	}
	return p.produce(ctx, run, next)
}

// Reject rejects a stage; the stage must then be regenerated
func (p *Pipeline) Reject(ctx context.Context, runID string, stage gate.Stage, actor, reason string) (gate.State, error) {
	run, err := p.manager.Get(ctx, runID)
	if err != nil {
		return gate.State{}, err
	}
	if err := run.Reject(stage, actor, reason); err != nil {
		return run.State(), err
	}
	ctx = logger.WithRunID(ctx, runID)
	p.log(ctx).Infow("Stage rejected",
		logger.FieldStage, stage,
		logger.FieldActor, actor,
		logger.FieldReason, reason,
	)
	return p.save(ctx, run)
}

// Regenerate produces a new artifact for the current stage. For INPUT a new
// input may be given; otherwise the latest input is resubmitted. PROCESS and
// OUTPUT are recomputed from the approved upstream artifact.
func (p *Pipeline) Regenerate(ctx context.Context, runID string, stage gate.Stage, actor string, in *Input) (gate.State, error) {
	run, err := p.manager.Get(ctx, runID)
	if err != nil {
		return gate.State{}, err
	}

	if stage != gate.StageInput {
		if in != nil {
			return run.State(), errors.NewInvalidRequestError("only the INPUT stage accepts a new input")
		}
		return p.produce(ctx, run, stage)
	}

	var payload json.RawMessage
	if in != nil {
		if err := in.Validate(); err != nil {
			return run.State(), err
		}
		if payload, err = json.Marshal(in); err != nil {
			return run.State(), errors.Wrap(err, "encode input")
		}
	} else {
		latest := run.State().Artifacts[gate.StageInput]
		if latest == nil {
			return run.State(), errors.NewInvalidRequestError("run %s has no input to regenerate from", runID)
		}
		payload = latest.Payload
	}

	if _, err := run.SubmitArtifact(gate.StageInput, payload, actor); err != nil {
		return run.State(), err
	}
	return p.save(ctx, run)
}

// Advance produces the next stage's artifact for a run waiting at an approved gate
func (p *Pipeline) Advance(ctx context.Context, runID string) (gate.State, error) {
	run, err := p.manager.Get(ctx, runID)
	if err != nil {
		return gate.State{}, err
	}
	st := run.State()
	if st.Frozen {
		return st, errors.Wrapf(errors.ErrRunFrozen, "run %s", runID)
	}
	next, ok := st.Stage.Next()
	if st.Gate() != gate.GateApproved || !ok {
		return st, errors.Wrapf(errors.ErrStageMismatch, "run %s is at %s, nothing to advance", runID, st.Label())
	}
	return p.produce(ctx, run, next)
}

// Supersede starts a new run from a frozen run's input
func (p *Pipeline) Supersede(ctx context.Context, runID, actor string) (gate.State, error) {
	run, err := p.manager.Supersede(ctx, runID, actor)
	if err != nil {
		return gate.State{}, err
	}
	return p.save(ctx, run)
}

// State returns a run's current state
func (p *Pipeline) State(ctx context.Context, runID string) (gate.State, error) {
	run, err := p.manager.Get(ctx, runID)
	if err != nil {
		return gate.State{}, err
	}
	return run.State(), nil
}

// Events returns a run's execution log
func (p *Pipeline) Events(ctx context.Context, runID string) ([]gate.Event, error) {
	run, err := p.manager.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	return run.Events(), nil
}

// List returns recent runs, newest first
func (p *Pipeline) List(ctx context.Context, limit int) ([]gate.State, error) {
	return p.manager.List(ctx, limit)
}

// Results returns the latest evaluation of a run, approved or under review
func (p *Pipeline) Results(ctx context.Context, runID string) (*compliance.Evaluation, error) {
	run, err := p.manager.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	art := run.State().Artifacts[gate.StageProcess]
	if art == nil {
		return nil, errors.NewNotFoundError("run %s has no evaluation yet", runID)
	}
	var eval compliance.Evaluation
	if err := json.Unmarshal(art.Payload, &eval); err != nil {
		return nil, errors.Wrap(err, "decode evaluation")
	}
	return &eval, nil
}

// Report returns the latest comparisons report of a run
func (p *Pipeline) Report(ctx context.Context, runID string) (*report.Report, error) {
	run, err := p.manager.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	art := run.State().Artifacts[gate.StageOutput]
	if art == nil {
		return nil, errors.NewNotFoundError("run %s has no report yet", runID)
	}
	var rep report.Report
	if err := json.Unmarshal(art.Payload, &rep); err != nil {
		return nil, errors.Wrap(err, "decode report")
	}
	return &rep, nil
}

// log returns the pipeline logger with the request and run fields of ctx
func (p *Pipeline) log(ctx context.Context) *zap.SugaredLogger {
	return p.logger.With(logger.FieldsFromContext(ctx)...)
}

// produce builds stage's artifact from the approved upstream artifact
func (p *Pipeline) produce(ctx context.Context, run *gate.Run, stage gate.Stage) (gate.State, error) {
	ctx = logger.WithRunID(ctx, run.ID())
	payload, err := p.build(ctx, run, stage)
	if err != nil {
		// Stale-state errors mean nothing was attempted; everything else stalls the stage
		if !errors.IsInvalidTransition(err) {
			if ferr := run.ReportFailure(stage, err, "pipeline"); ferr == nil {
				p.log(ctx).Errorw("Stage production failed",
					logger.FieldStage, stage,
					logger.FieldError, err,
				)
				if _, serr := p.save(context.WithoutCancel(ctx), run); serr != nil {
					return run.State(), serr
				}
			}
		}
		return run.State(), errors.Wrapf(err, "produce %s", stage)
	}

	if _, err := run.SubmitArtifact(stage, payload, "pipeline"); err != nil {
		return run.State(), err
	}
	return p.save(ctx, run)
}

func (p *Pipeline) build(ctx context.Context, run *gate.Run, stage gate.Stage) (json.RawMessage, error) {
	switch stage {
	case gate.StageProcess:
		in, err := approvedInput(run)
		if err != nil {
			return nil, err
		}
		eval, err := p.currentEvaluator().Evaluate(ctx, in.Table,
			measurement.NewIndex(in.Measurements), compliance.NewDrivers(in.Drivers))
		if err != nil {
			return nil, err
		}
		return marshal(eval, "evaluation")

	case gate.StageOutput:
		in, err := approvedInput(run)
		if err != nil {
			return nil, err
		}
		art, err := run.ApprovedArtifact(gate.StageProcess)
		if err != nil {
			return nil, err
		}
		var eval compliance.Evaluation
		if err := json.Unmarshal(art.Payload, &eval); err != nil {
			return nil, errors.Wrap(err, "decode evaluation")
		}
		return marshal(report.Build(&eval, in.Table), "report")
	}
	return nil, errors.Wrapf(errors.ErrStageMismatch, "stage %s is produced from outside input", stage)
}

func approvedInput(run *gate.Run) (*Input, error) {
	art, err := run.ApprovedArtifact(gate.StageInput)
	if err != nil {
		return nil, err
	}
	var in Input
	if err := json.Unmarshal(art.Payload, &in); err != nil {
		return nil, errors.Wrap(err, "decode input")
	}
	return &in, nil
}

func marshal(v interface{}, what string) (json.RawMessage, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", what)
	}
	return data, nil
}

func (p *Pipeline) save(ctx context.Context, run *gate.Run) (gate.State, error) {
	if err := p.manager.Save(ctx, run); err != nil {
		return run.State(), errors.Wrapf(err, "persist run %s", run.ID())
	}
	return run.State(), nil
}

// WithDriver returns a copy of in where every driver the table uses and the
// input does not set takes value
func (in Input) WithDriver(value float64) Input {
	if in.Table == nil {
		return in
	}
	drivers := make(map[string]float64, len(in.Drivers))
	for k, v := range in.Drivers {
		drivers[k] = v
	}
	for _, name := range in.Table.Drivers() {
		if _, ok := drivers[name]; !ok {
			drivers[name] = value
		}
	}
	in.Drivers = drivers
	return in
}
