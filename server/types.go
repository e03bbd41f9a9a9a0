package server

import (
	"github.com/aecoa/aecoa/gate"
	"github.com/aecoa/aecoa/measurement"
	"github.com/aecoa/aecoa/pipeline"
	"github.com/aecoa/aecoa/requirement"
)

// InputRequest carries a run's input. Standard selects the built-in household
// shelter table when Table is omitted; Driver fills every driver the table
// uses and Drivers leaves unset.
type InputRequest struct {
	Table        *requirement.Table        `json:"table,omitempty"`
	Standard     bool                      `json:"standard,omitempty"`
	Measurements []measurement.Measurement `json:"measurements"`
	Drivers      map[string]float64        `json:"drivers,omitempty"`
	Driver       *float64                  `json:"driver,omitempty"`
}

func (r InputRequest) toInput() pipeline.Input {
	in := pipeline.Input{
		Table:        r.Table,
		Measurements: r.Measurements,
		Drivers:      r.Drivers,
	}
	if in.Table == nil && r.Standard {
		in.Table = requirement.StandardTable()
	}
	if r.Driver != nil {
		in = in.WithDriver(*r.Driver)
	}
	return in
}

// StartRunRequest starts a run
type StartRunRequest struct {
	InputRequest
	Actor string `json:"actor,omitempty"`
}

// ApproveRequest approves a stage. Version, when set, must match the run's version.
type ApproveRequest struct {
	Stage   gate.Stage `json:"stage"`
	Actor   string     `json:"actor,omitempty"`
	Version *int64     `json:"version,omitempty"`
}

// RejectRequest rejects a stage
type RejectRequest struct {
	Stage  gate.Stage `json:"stage"`
	Actor  string     `json:"actor,omitempty"`
	Reason string     `json:"reason"`
}

// RegenerateRequest produces a new artifact for the current stage. Input is
// only accepted for the INPUT stage.
type RegenerateRequest struct {
	Stage gate.Stage    `json:"stage"`
	Actor string        `json:"actor,omitempty"`
	Input *InputRequest `json:"input,omitempty"`
}

// ActorRequest is the body of requests that only need an actor
type ActorRequest struct {
	Actor string `json:"actor,omitempty"`
}

// RunResponse is a run's state plus its display status
type RunResponse struct {
	gate.State
	Label           string       `json:"label"`
	Display         string       `json:"display"`
	CompletedStages []gate.Stage `json:"completed_stages"`
}

func newRunResponse(st gate.State) RunResponse {
	completed := st.CompletedStages()
	if completed == nil {
		completed = []gate.Stage{}
	}
	return RunResponse{
		State:           st,
		Label:           st.Label(),
		Display:         st.Display(),
		CompletedStages: completed,
	}
}

// HealthResponse is returned by /health
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Clients int    `json:"clients"`
}
