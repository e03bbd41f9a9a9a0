package gate

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aecoa/aecoa/errors"
	qtest "github.com/aecoa/aecoa/internal/testing"
)

func TestManager_CreateAndGet(t *testing.T) {
	m := NewManager(ManagerOptions{})
	run := m.Create("alice")

	got, err := m.Get(context.Background(), run.ID())
	require.NoError(t, err)
	assert.Same(t, run, got)

	_, err = m.Get(context.Background(), "missing")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestManager_ListNewestFirst(t *testing.T) {
	m := NewManager(ManagerOptions{Clock: fixedClock()})
	first := m.Create("alice")
	second := m.Create("bob")

	states, err := m.List(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, second.ID(), states[0].RunID)
	assert.Equal(t, first.ID(), states[1].RunID)

	states, err = m.List(context.Background(), 1)
	require.NoError(t, err)
	assert.Len(t, states, 1)
}

func TestManager_Supersede(t *testing.T) {
	m := NewManager(ManagerOptions{})
	ctx := context.Background()

	open := m.Create("alice")
	_, err := m.Supersede(ctx, open.ID(), "alice")
	assert.True(t, errors.IsInvalidTransition(err), "open runs are regenerated, not superseded")

	frozen := m.Create("alice")
	for _, stage := range Stages {
		_, err := frozen.SubmitArtifact(stage, payload(string(stage)), "pipeline")
		require.NoError(t, err)
		require.NoError(t, frozen.Approve(stage, "alice"))
	}
	before := frozen.Snapshot()

	next, err := m.Supersede(ctx, frozen.ID(), "bob")
	require.NoError(t, err)

	st := next.State()
	assert.Equal(t, frozen.ID(), st.ParentRunID)
	assert.Equal(t, "INPUT.PENDING", st.Label())
	assert.Equal(t, DisplayAwaitingApproval, st.Display())
	assert.JSONEq(t, string(payload("INPUT")), string(st.Artifacts[StageInput].Payload))
	assert.Equal(t, "supersedes "+frozen.ID(), next.Events()[0].Note)

	assert.Equal(t, before, frozen.Snapshot(), "frozen run is untouched")
}

func TestManager_Subscribe(t *testing.T) {
	m := NewManager(ManagerOptions{})
	events, cancel := m.Subscribe(8)

	run := m.Create("alice")
	_, err := run.SubmitArtifact(StageInput, payload("input"), "pipeline")
	require.NoError(t, err)

	for _, want := range []Action{ActionCreated, ActionArtifactSubmitted} {
		select {
		case ev := <-events:
			assert.Equal(t, want, ev.Action)
			assert.Equal(t, run.ID(), ev.RunID)
		case <-time.After(time.Second):
			t.Fatalf("no %s event", want)
		}
	}

	cancel()
	cancel()
	_, open := <-events
	assert.False(t, open)
}

func TestManager_SlowSubscriberDoesNotBlock(t *testing.T) {
	m := NewManager(ManagerOptions{})
	_, cancel := m.Subscribe(1)
	defer cancel()

	run := m.Create("alice")
	for i := 0; i < 5; i++ {
		_, err := run.SubmitArtifact(StageInput, payload("x"), "pipeline")
		require.NoError(t, err)
	}
	assert.Len(t, run.Events(), 6)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore(qtest.CreateMigratedTestDB(t))
	m := NewManager(ManagerOptions{Store: store})

	run := m.Create("alice")
	_, err := run.SubmitArtifact(StageInput, payload("v1"), "pipeline")
	require.NoError(t, err)
	require.NoError(t, run.Reject(StageInput, "alice", "bad scan"))
	_, err = run.SubmitArtifact(StageInput, payload("v2"), "pipeline")
	require.NoError(t, err)
	require.NoError(t, run.Approve(StageInput, "alice"))
	require.NoError(t, run.ReportFailure(StageProcess, errors.New("evaluation failed"), "pipeline"))

	require.NoError(t, m.Save(ctx, run))
	// saving again is harmless
	require.NoError(t, m.Save(ctx, run))

	want := run.Snapshot()
	got, err := store.Load(ctx, run.ID())
	require.NoError(t, err)

	assert.Equal(t, want.State.RunID, got.State.RunID)
	assert.Equal(t, want.State.Label(), got.State.Label())
	assert.Equal(t, want.State.Gates, got.State.Gates)
	assert.Equal(t, want.State.Version, got.State.Version)
	assert.Equal(t, DisplayFailed, got.State.Display())
	assert.Equal(t, "evaluation failed", got.State.Failures[StageProcess].Message)
	assert.True(t, want.State.CreatedAt.Equal(got.State.CreatedAt))

	require.Len(t, got.Artifacts, 2)
	assert.Equal(t, 2, got.State.Artifacts[StageInput].Revision)
	assert.JSONEq(t, `{"v":"v2"}`, string(got.State.Artifacts[StageInput].Payload))

	require.Len(t, got.Events, len(want.Events))
	for i := range want.Events {
		assert.Equal(t, want.Events[i].ID, got.Events[i].ID)
		assert.Equal(t, want.Events[i].Action, got.Events[i].Action)
		assert.Equal(t, want.Events[i].From, got.Events[i].From)
		assert.Equal(t, want.Events[i].Note, got.Events[i].Note)
	}

	// a fresh manager restores the run from the store
	fresh := NewManager(ManagerOptions{Store: store})
	restored, err := fresh.Get(ctx, run.ID())
	require.NoError(t, err)
	assert.Equal(t, "INPUT.APPROVED", restored.State().Label())
	_, err = restored.SubmitArtifact(StageProcess, payload("eval"), "pipeline")
	require.NoError(t, err)
	assert.Equal(t, len(want.Events)+1, restored.Events()[len(restored.Events())-1].Seq)

	states, err := fresh.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, run.ID(), states[0].RunID)
}

func TestStore_OlderSnapshotDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	store := NewStore(qtest.CreateMigratedTestDB(t))

	run := newTestRun()
	for _, stage := range Stages {
		_, err := run.SubmitArtifact(stage, payload(string(stage)), "pipeline")
		require.NoError(t, err)
		if stage != StageOutput {
			require.NoError(t, run.Approve(stage, "alice"))
		}
	}
	stale := run.Snapshot()
	require.NoError(t, run.Approve(StageOutput, "bob"))
	frozen := run.Snapshot()

	// saves committed out of order
	require.NoError(t, store.Save(ctx, frozen))
	require.NoError(t, store.Save(ctx, stale))

	got, err := store.Load(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, got.State.Frozen)
	assert.Equal(t, "OUTPUT.APPROVED", got.State.Label())
	assert.Equal(t, frozen.State.Version, got.State.Version)
	assert.Len(t, got.Events, len(frozen.Events))

	restored := Restore(got, Options{})
	assert.True(t, errors.Is(restored.Reject(StageOutput, "mallory", "reopen"), errors.ErrRunFrozen))
}

func TestStore_LoadMissing(t *testing.T) {
	store := NewStore(qtest.CreateMigratedTestDB(t))
	_, err := store.Load(context.Background(), "nope")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestStore_SaveErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewStore(db)
	snap := newTestRun().Snapshot()

	t.Run("begin fails", func(t *testing.T) {
		mock.ExpectBegin().WillReturnError(errors.New("database is locked"))
		err := store.Save(context.Background(), snap)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to begin transaction")
	})

	t.Run("run upsert fails and rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO runs").WillReturnError(errors.New("disk I/O error"))
		mock.ExpectRollback()

		err := store.Save(context.Background(), snap)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to save run run-1")
	})

	t.Run("event insert fails", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO runs").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT OR IGNORE INTO gate_events").WillReturnError(errors.New("constraint failed"))
		mock.ExpectRollback()

		err := store.Save(context.Background(), snap)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to save event 1")
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_LoadErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := NewStore(db)

	mock.ExpectQuery("SELECT id, parent_run_id").WithArgs("gone").WillReturnError(sql.ErrNoRows)
	_, err = store.Load(context.Background(), "gone")
	assert.True(t, errors.IsNotFoundError(err))

	mock.ExpectQuery("SELECT id, parent_run_id").WithArgs("broken").WillReturnError(errors.New("malformed database"))
	_, err = store.Load(context.Background(), "broken")
	require.Error(t, err)
	assert.False(t, errors.IsNotFoundError(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}
