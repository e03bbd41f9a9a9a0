package gate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aecoa/aecoa/errors"
)

// Options configures a Run
type Options struct {
	// Clock defaults to time.Now
	Clock func() time.Time
	// OnEvent is called, outside the run lock, for every event the run records
	OnEvent func(Event)
	// ParentRunID links a run to the frozen run it supersedes
	ParentRunID string
}

// Run is the state machine for one compliance run.
// All methods are safe for concurrent use; actions are serialized.
type Run struct {
	mu        sync.Mutex
	state     State
	artifacts []Artifact
	events    []Event
	clock     func() time.Time
	onEvent   func(Event)
}

// NewRun creates a run at INPUT.PENDING
func NewRun(id, actor string, opts Options) *Run {
	r := newRun(opts)
	now := r.clock()
	r.state = State{
		RunID:       id,
		ParentRunID: opts.ParentRunID,
		Stage:       StageInput,
		Gates:       map[Stage]GateStatus{StageInput: GatePending},
		Artifacts:   map[Stage]*Artifact{},
		Failures:    map[Stage]*Failure{},
		CreatedBy:   actor,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	note := ""
	if opts.ParentRunID != "" {
		note = "supersedes " + opts.ParentRunID
	}
	r.commit(r.record(StageInput, ActionCreated, actor, "", GatePending, note))
	return r
}

// Restore rebuilds a run from persisted data without recording events
func Restore(snap Snapshot, opts Options) *Run {
	r := newRun(opts)
	r.state = snap.State.clone()
	r.artifacts = append([]Artifact(nil), snap.Artifacts...)
	r.events = append([]Event(nil), snap.Events...)
	return r
}

func newRun(opts Options) *Run {
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Run{clock: clock, onEvent: opts.OnEvent}
}

// ID returns the run id
func (r *Run) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.RunID
}

// State returns a copy of the current state
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.clone()
}

// Events returns a copy of the execution log
func (r *Run) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Artifacts returns every artifact ever submitted, rejected ones included
func (r *Run) Artifacts() []Artifact {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Artifact(nil), r.artifacts...)
}

// Snapshot returns state, artifacts and events together
func (r *Run) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Snapshot{
		State:     r.state.clone(),
		Artifacts: append([]Artifact(nil), r.artifacts...),
		Events:    append([]Event(nil), r.events...),
	}
}

// ApprovedArtifact returns the artifact of an approved stage.
// Work products of unapproved stages are not visible downstream.
func (r *Run) ApprovedArtifact(stage Stage) (Artifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Gates[stage] != GateApproved {
		return Artifact{}, errors.Wrapf(errors.ErrInvalidApprovalTransition, "stage %s is not approved", stage)
	}
	a := r.state.Artifacts[stage]
	if a == nil {
		return Artifact{}, errors.Wrapf(errors.ErrArtifactMissing, "stage %s", stage)
	}
	return *a, nil
}

// Approve approves the current stage's artifact. Approving OUTPUT freezes the run.
func (r *Run) Approve(stage Stage, actor string) error {
	return r.approve(stage, actor, nil)
}

// ApproveVersion approves only if the run is still at the given version,
// so a reviewer acting on a stale view cannot approve twice.
func (r *Run) ApproveVersion(stage Stage, actor string, version int64) error {
	return r.approve(stage, actor, &version)
}

func (r *Run) approve(stage Stage, actor string, version *int64) error {
	r.mu.Lock()
	ev, err := func() (*Event, error) {
		if err := r.checkMutable(stage); err != nil {
			return nil, err
		}
		if version != nil && *version != r.state.Version {
			return nil, errors.WithHint(
				errors.Wrapf(errors.ErrConflict, "run %s is at version %d, not %d", r.state.RunID, r.state.Version, *version),
				"reload the run before approving",
			)
		}
		from := r.state.Gates[stage]
		switch {
		case from == GateApproved:
			return nil, errors.Wrapf(errors.ErrAlreadyApproved, "approve %s", stage)
		case !from.CanTransitionTo(GateApproved):
			return nil, errors.WithHint(
				errors.Wrapf(errors.ErrInvalidApprovalTransition, "approve %s: gate is %s", stage, from),
				"regenerate the stage artifact before approving",
			)
		case r.state.Artifacts[stage] == nil:
			return nil, errors.Wrapf(errors.ErrArtifactMissing, "approve %s", stage)
		}

		r.state.Gates[stage] = GateApproved
		if stage == StageOutput {
			r.state.Frozen = true
		}
		ev := r.record(stage, ActionApproved, actor, from, GateApproved, "")
		return &ev, nil
	}()
	r.mu.Unlock()
	return r.finish(stage, ev, err)
}

// Reject rejects the current stage. The rejected artifact is kept; the
// producing stage regenerates by submitting a new artifact.
func (r *Run) Reject(stage Stage, actor, reason string) error {
	r.mu.Lock()
	ev, err := func() (*Event, error) {
		if err := r.checkMutable(stage); err != nil {
			return nil, err
		}
		from := r.state.Gates[stage]
		if from == GateApproved {
			return nil, errors.Wrapf(errors.ErrAlreadyApproved, "reject %s", stage)
		}
		if !from.CanTransitionTo(GateRejected) {
			return nil, errors.Wrapf(errors.ErrInvalidApprovalTransition, "reject %s: gate is %s", stage, from)
		}
		r.state.Gates[stage] = GateRejected
		ev := r.record(stage, ActionRejected, actor, from, GateRejected, reason)
		return &ev, nil
	}()
	r.mu.Unlock()
	return r.finish(stage, ev, err)
}

// SubmitArtifact records a stage's work product.
//
//   - current stage PENDING: replaces the artifact under review (new revision)
//   - current stage REJECTED: regeneration, the gate returns to PENDING
//   - next stage after an APPROVED gate: the run advances to next.PENDING
func (r *Run) SubmitArtifact(stage Stage, payload json.RawMessage, actor string) (Artifact, error) {
	r.mu.Lock()
	var art Artifact
	ev, err := func() (*Event, error) {
		if r.state.Frozen {
			return nil, r.frozenErr()
		}
		if !stage.Valid() {
			return nil, errors.NewInvalidRequestError("unknown stage %q", stage)
		}

		current := r.state.Stage
		gate := r.state.Gates[current]
		var from GateStatus
		switch {
		case stage == current && gate == GateApproved:
			return nil, errors.Wrapf(errors.ErrAlreadyApproved, "submit %s", stage)
		case stage == current:
			from = gate
		case gate == GateApproved && nextOf(current) == stage:
			r.state.Stage = stage
		default:
			return nil, errors.Wrapf(errors.ErrStageMismatch, "submit %s while run is at %s.%s", stage, current, gate)
		}

		art = Artifact{
			Stage:      stage,
			Revision:   r.nextRevision(stage),
			Digest:     digest(payload),
			Payload:    append(json.RawMessage(nil), payload...),
			ProducedBy: actor,
			ProducedAt: r.clock(),
		}
		r.artifacts = append(r.artifacts, art)
		stored := art
		r.state.Artifacts[stage] = &stored
		r.state.Gates[stage] = GatePending
		delete(r.state.Failures, stage)

		ev := r.record(stage, ActionArtifactSubmitted, actor, from, GatePending, "revision "+strconv.Itoa(art.Revision))
		return &ev, nil
	}()
	r.mu.Unlock()
	if err := r.finish(stage, ev, err); err != nil {
		return Artifact{}, err
	}
	return art, nil
}

// ReportFailure records that producing a stage's artifact failed. The gate is
// left as it is; the run stalls until the stage is regenerated.
func (r *Run) ReportFailure(stage Stage, cause error, actor string) error {
	r.mu.Lock()
	ev, err := func() (*Event, error) {
		if r.state.Frozen {
			return nil, r.frozenErr()
		}
		current := r.state.Stage
		gate := r.state.Gates[current]
		producing := stage == current && gate != GateApproved
		advancing := gate == GateApproved && nextOf(current) == stage
		if !producing && !advancing {
			return nil, errors.Wrapf(errors.ErrStageMismatch, "report failure for %s while run is at %s.%s", stage, current, gate)
		}

		msg := "unknown error"
		if cause != nil {
			msg = cause.Error()
		}
		r.state.Failures[stage] = &Failure{Stage: stage, Message: msg, At: r.clock()}
		status := r.state.Gates[current]
		ev := r.record(stage, ActionFailureReported, actor, status, status, msg)
		return &ev, nil
	}()
	r.mu.Unlock()
	return r.finish(stage, ev, err)
}

// checkMutable guards approve and reject. Callers hold r.mu.
func (r *Run) checkMutable(stage Stage) error {
	if r.state.Frozen {
		return r.frozenErr()
	}
	if stage != r.state.Stage {
		return errors.Wrapf(errors.ErrStageMismatch, "%s is not the current stage (%s)", stage, r.state.Stage)
	}
	return nil
}

func (r *Run) frozenErr() error {
	return errors.WithHint(
		errors.Wrapf(errors.ErrRunFrozen, "run %s", r.state.RunID),
		"supersede the run to start a new one from its input",
	)
}

// record appends an event and bumps the version. Callers hold r.mu.
func (r *Run) record(stage Stage, action Action, actor string, from, to GateStatus, note string) Event {
	now := r.clock()
	ev := Event{
		ID:     uuid.NewString(),
		RunID:  r.state.RunID,
		Seq:    len(r.events) + 1,
		Stage:  stage,
		Action: action,
		Actor:  actor,
		From:   from,
		To:     to,
		Note:   note,
		At:     now,
	}
	r.events = append(r.events, ev)
	if action != ActionCreated {
		r.state.Version++
	}
	r.state.UpdatedAt = now
	return ev
}

// finish updates metrics and notifies listeners once the lock is released
func (r *Run) finish(stage Stage, ev *Event, err error) error {
	if err != nil {
		if errors.IsInvalidTransition(err) {
			gateRejectedTransitions.WithLabelValues(string(stage)).Inc()
		}
		return err
	}
	r.commit(*ev)
	return nil
}

func (r *Run) commit(ev Event) {
	gateTransitions.WithLabelValues(string(ev.Stage), string(ev.Action)).Inc()
	if r.onEvent != nil {
		r.onEvent(ev)
	}
}

func (r *Run) nextRevision(stage Stage) int {
	rev := 1
	for _, a := range r.artifacts {
		if a.Stage == stage && a.Revision >= rev {
			rev = a.Revision + 1
		}
	}
	return rev
}

func nextOf(s Stage) Stage {
	next, _ := s.Next()
	return next
}

func digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
