package gate

import "time"

// Action names a gate event
type Action string

const (
	ActionCreated           Action = "created"
	ActionArtifactSubmitted Action = "artifact_submitted"
	ActionApproved          Action = "approved"
	ActionRejected          Action = "rejected"
	ActionFailureReported   Action = "failure_reported"
)

// Event is one entry of a run's execution log.
// Seq increases by one per event within a run.
type Event struct {
	ID     string     `json:"id"`
	RunID  string     `json:"run_id"`
	Seq    int        `json:"seq"`
	Stage  Stage      `json:"stage"`
	Action Action     `json:"action"`
	Actor  string     `json:"actor"`
	From   GateStatus `json:"from,omitempty"`
	To     GateStatus `json:"to,omitempty"`
	Note   string     `json:"note,omitempty"`
	At     time.Time  `json:"at"`
}
