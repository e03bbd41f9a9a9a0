// Package gate implements the human approval pipeline for a compliance run.
//
// A run moves through three stages, INPUT, PROCESS and OUTPUT. Each stage
// produces an artifact that a reviewer approves or rejects. Nothing is ever
// approved automatically. Approving OUTPUT freezes the run.
package gate

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/aecoa/aecoa/errors"
)

// Stage is a processing stage of a run
type Stage string

const (
	StageInput   Stage = "INPUT"
	StageProcess Stage = "PROCESS"
	StageOutput  Stage = "OUTPUT"
)

// Stages lists the stages in pipeline order
var Stages = []Stage{StageInput, StageProcess, StageOutput}

// Next returns the stage after s
func (s Stage) Next() (Stage, bool) {
	switch s {
	case StageInput:
		return StageProcess, true
	case StageProcess:
		return StageOutput, true
	}
	return "", false
}

// Valid reports whether s is a known stage
func (s Stage) Valid() bool {
	return s == StageInput || s == StageProcess || s == StageOutput
}

// ParseStage accepts stage names in any case
func ParseStage(s string) (Stage, error) {
	stage := Stage(strings.ToUpper(strings.TrimSpace(s)))
	if !stage.Valid() {
		return "", errors.NewInvalidRequestError("unknown stage %q (want input, process or output)", s)
	}
	return stage, nil
}

// GateStatus is the review status of a stage
type GateStatus string

const (
	GatePending  GateStatus = "PENDING"
	GateApproved GateStatus = "APPROVED"
	GateRejected GateStatus = "REJECTED"
)

// CanTransitionTo returns true if the gate can move to the target status.
// APPROVED is final for a gate; REJECTED returns to PENDING when the stage
// submits a regenerated artifact.
func (g GateStatus) CanTransitionTo(target GateStatus) bool {
	switch g {
	case GatePending:
		return target == GateApproved || target == GateRejected
	case GateRejected:
		return target == GatePending
	default:
		return false
	}
}

// Artifact is one work product of a stage. Revisions start at 1.
type Artifact struct {
	Stage      Stage           `json:"stage"`
	Revision   int             `json:"revision"`
	Digest     string          `json:"digest"`
	Payload    json.RawMessage `json:"payload"`
	ProducedBy string          `json:"produced_by"`
	ProducedAt time.Time       `json:"produced_at"`
}

// Failure records an upstream error while producing a stage's artifact
type Failure struct {
	Stage   Stage     `json:"stage"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Display values for State.Display
const (
	DisplayAwaitingApproval = "awaiting_approval"
	DisplayProcessing       = "processing"
	DisplayRejected         = "rejected"
	DisplayFailed           = "failed"
	DisplayFrozen           = "frozen"
)

// State is a point-in-time copy of a run
type State struct {
	RunID       string               `json:"run_id"`
	ParentRunID string               `json:"parent_run_id,omitempty"`
	Stage       Stage                `json:"stage"`
	Gates       map[Stage]GateStatus `json:"gates"`
	Artifacts   map[Stage]*Artifact  `json:"artifacts,omitempty"`
	Failures    map[Stage]*Failure   `json:"failures,omitempty"`
	Frozen      bool                 `json:"frozen"`
	Version     int64                `json:"version"`
	CreatedBy   string               `json:"created_by"`
	CreatedAt   time.Time            `json:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// Gate returns the status of the current stage's gate
func (s State) Gate() GateStatus {
	return s.Gates[s.Stage]
}

// Label renders the state as STAGE.STATUS
func (s State) Label() string {
	return string(s.Stage) + "." + string(s.Gate())
}

// Display summarizes what the run is waiting on
func (s State) Display() string {
	if s.Frozen {
		return DisplayFrozen
	}
	switch s.Gate() {
	case GateRejected:
		return DisplayRejected
	case GateApproved:
		// next stage has not produced its artifact yet
		if next, ok := s.Stage.Next(); ok && s.Failures[next] != nil {
			return DisplayFailed
		}
		return DisplayProcessing
	}
	if s.Failures[s.Stage] != nil {
		return DisplayFailed
	}
	if s.Artifacts[s.Stage] != nil {
		return DisplayAwaitingApproval
	}
	return DisplayProcessing
}

// CompletedStages lists approved stages in pipeline order
func (s State) CompletedStages() []Stage {
	var done []Stage
	for _, st := range Stages {
		if s.Gates[st] == GateApproved {
			done = append(done, st)
		}
	}
	return done
}

// clone deep-copies the maps so callers cannot reach run internals
func (s State) clone() State {
	out := s
	out.Gates = make(map[Stage]GateStatus, len(s.Gates))
	for k, v := range s.Gates {
		out.Gates[k] = v
	}
	out.Artifacts = make(map[Stage]*Artifact, len(s.Artifacts))
	for k, v := range s.Artifacts {
		a := *v
		a.Payload = append(json.RawMessage(nil), v.Payload...)
		out.Artifacts[k] = &a
	}
	out.Failures = make(map[Stage]*Failure, len(s.Failures))
	for k, v := range s.Failures {
		f := *v
		out.Failures[k] = &f
	}
	return out
}
