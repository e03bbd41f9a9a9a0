package gate

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/aecoa/aecoa/errors"
)

// Snapshot is everything persisted for one run
type Snapshot struct {
	State     State      `json:"state"`
	Artifacts []Artifact `json:"artifacts"`
	Events    []Event    `json:"events"`
}

// Persister stores run snapshots
type Persister interface {
	Save(ctx context.Context, snap Snapshot) error
	Load(ctx context.Context, runID string) (Snapshot, error)
	List(ctx context.Context, limit int) ([]State, error)
}

// Store persists runs in the runs, run_artifacts and gate_events tables
type Store struct {
	db *sql.DB
}

// NewStore creates a new run store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save upserts the run row and inserts any artifacts and events not yet stored.
// Artifacts and events are append-only, so saving a snapshot twice is harmless.
// The run row only moves forward: a snapshot older than the stored version
// leaves it untouched, so out-of-order saves cannot unfreeze a run.
func (s *Store) Save(ctx context.Context, snap Snapshot) error {
	st := snap.State

	failures := sql.NullString{}
	if len(st.Failures) > 0 {
		data, err := json.Marshal(st.Failures)
		if err != nil {
			return errors.Wrap(err, "failed to marshal failures")
		}
		failures = sql.NullString{String: string(data), Valid: true}
	}
	parent := sql.NullString{String: st.ParentRunID, Valid: st.ParentRunID != ""}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, parent_run_id, stage,
			gate_input, gate_process, gate_output,
			frozen, version, failures,
			created_by, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			stage = excluded.stage,
			gate_input = excluded.gate_input,
			gate_process = excluded.gate_process,
			gate_output = excluded.gate_output,
			frozen = excluded.frozen,
			version = excluded.version,
			failures = excluded.failures,
			updated_at = excluded.updated_at
		WHERE excluded.version >= runs.version
	`,
		st.RunID,
		parent,
		st.Stage,
		gateOrPending(st, StageInput),
		gateOrPending(st, StageProcess),
		gateOrPending(st, StageOutput),
		st.Frozen,
		st.Version,
		failures,
		st.CreatedBy,
		st.CreatedAt,
		st.UpdatedAt,
	)
	if err != nil {
		return errors.Wrapf(err, "failed to save run %s", st.RunID)
	}

	for _, a := range snap.Artifacts {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO run_artifacts (run_id, stage, revision, digest, payload, produced_by, produced_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, st.RunID, a.Stage, a.Revision, a.Digest, string(a.Payload), a.ProducedBy, a.ProducedAt)
		if err != nil {
			return errors.Wrapf(err, "failed to save %s artifact revision %d", a.Stage, a.Revision)
		}
	}

	for _, ev := range snap.Events {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO gate_events (id, run_id, seq, stage, action, actor, from_status, to_status, note, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			ev.ID, st.RunID, ev.Seq, ev.Stage, ev.Action, ev.Actor,
			sql.NullString{String: string(ev.From), Valid: ev.From != ""},
			sql.NullString{String: string(ev.To), Valid: ev.To != ""},
			sql.NullString{String: ev.Note, Valid: ev.Note != ""},
			ev.At,
		)
		if err != nil {
			return errors.Wrapf(err, "failed to save event %d", ev.Seq)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit run")
	}
	return nil
}

// Load reads a run with its artifacts and events
func (s *Store) Load(ctx context.Context, runID string) (Snapshot, error) {
	var snap Snapshot
	var (
		st       State
		parent   sql.NullString
		failures sql.NullString
		gin      string
		gproc    string
		gout     string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, parent_run_id, stage, gate_input, gate_process, gate_output,
		       frozen, version, failures, created_by, created_at, updated_at
		FROM runs WHERE id = ?
	`, runID).Scan(
		&st.RunID, &parent, &st.Stage, &gin, &gproc, &gout,
		&st.Frozen, &st.Version, &failures, &st.CreatedBy, &st.CreatedAt, &st.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, errors.NewNotFoundError("run not found: %s", runID)
	}
	if err != nil {
		return snap, errors.Wrapf(err, "failed to load run %s", runID)
	}

	st.ParentRunID = parent.String
	st.Gates = map[Stage]GateStatus{StageInput: GateStatus(gin)}
	// gates of stages the run has not reached stay absent
	for _, stage := range Stages[1:] {
		if stageIndex(stage) <= stageIndex(st.Stage) {
			switch stage {
			case StageProcess:
				st.Gates[stage] = GateStatus(gproc)
			case StageOutput:
				st.Gates[stage] = GateStatus(gout)
			}
		}
	}
	st.Failures = map[Stage]*Failure{}
	if failures.Valid {
		if err := json.Unmarshal([]byte(failures.String), &st.Failures); err != nil {
			return snap, errors.Wrapf(err, "failed to decode failures of run %s", runID)
		}
	}

	artifacts, err := s.loadArtifacts(ctx, runID)
	if err != nil {
		return snap, err
	}
	st.Artifacts = map[Stage]*Artifact{}
	for i := range artifacts {
		a := artifacts[i]
		if cur := st.Artifacts[a.Stage]; cur == nil || a.Revision > cur.Revision {
			st.Artifacts[a.Stage] = &a
		}
	}

	events, err := s.loadEvents(ctx, runID)
	if err != nil {
		return snap, err
	}

	snap.State = st
	snap.Artifacts = artifacts
	snap.Events = events
	return snap, nil
}

// List returns the most recent runs, newest first
func (s *Store) List(ctx context.Context, limit int) ([]State, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list runs")
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "failed to scan run id")
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate runs")
	}

	states := make([]State, 0, len(ids))
	for _, id := range ids {
		snap, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		states = append(states, snap.State)
	}
	return states, nil
}

func (s *Store) loadArtifacts(ctx context.Context, runID string) ([]Artifact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT stage, revision, digest, payload, produced_by, produced_at
		FROM run_artifacts WHERE run_id = ? ORDER BY rowid
	`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load artifacts of run %s", runID)
	}
	defer rows.Close()

	var artifacts []Artifact
	for rows.Next() {
		var a Artifact
		var payload string
		if err := rows.Scan(&a.Stage, &a.Revision, &a.Digest, &payload, &a.ProducedBy, &a.ProducedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan artifact")
		}
		a.Payload = json.RawMessage(payload)
		artifacts = append(artifacts, a)
	}
	return artifacts, errors.Wrap(rows.Err(), "failed to iterate artifacts")
}

func (s *Store) loadEvents(ctx context.Context, runID string) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, stage, action, actor, from_status, to_status, note, created_at
		FROM gate_events WHERE run_id = ? ORDER BY seq
	`, runID)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load events of run %s", runID)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var from, to, note sql.NullString
		if err := rows.Scan(&ev.ID, &ev.Seq, &ev.Stage, &ev.Action, &ev.Actor, &from, &to, &note, &ev.At); err != nil {
			return nil, errors.Wrap(err, "failed to scan event")
		}
		ev.RunID = runID
		ev.From = GateStatus(from.String)
		ev.To = GateStatus(to.String)
		ev.Note = note.String
		events = append(events, ev)
	}
	return events, errors.Wrap(rows.Err(), "failed to iterate events")
}

func gateOrPending(st State, stage Stage) GateStatus {
	if g, ok := st.Gates[stage]; ok {
		return g
	}
	return GatePending
}

func stageIndex(s Stage) int {
	for i, st := range Stages {
		if st == s {
			return i
		}
	}
	return -1
}
