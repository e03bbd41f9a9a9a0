package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aecoa/aecoa/compliance"
	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/gate"
	qtest "github.com/aecoa/aecoa/internal/testing"
	"github.com/aecoa/aecoa/internal/util"
	"github.com/aecoa/aecoa/measurement"
	"github.com/aecoa/aecoa/requirement"
)

func shelterInput() Input {
	return Input{
		Table: requirement.StandardTable(),
		Measurements: []measurement.Measurement{
			{EntityID: "hs-1", Parameter: "hs_floor_area_m2", Value: 2.1, Unit: "m2", SourceRef: "A-101"},
			{EntityID: "hs-1", Parameter: "hs_volume_m3", Value: 5.8, Unit: "m3", SourceRef: "A-101"},
			{EntityID: "hs-1", Parameter: "clear_height_mm", Value: 2400, Unit: "mm", SourceRef: "A-102"},
			{EntityID: "hs-1", Parameter: "ceiling_slab_mm", Value: 300, Unit: "mm", SourceRef: "S-201"},
		},
		Drivers: map[string]float64{"gfa_m2": 65.5},
	}
}

func newPipeline(autoAdvance bool) *Pipeline {
	return New(Config{AutoAdvance: autoAdvance})
}

func TestPipeline_AutoAdvanceHappyPath(t *testing.T) {
	p := newPipeline(true)
	ctx := context.Background()

	st, err := p.Start(ctx, shelterInput(), "alice")
	require.NoError(t, err)
	assert.Equal(t, "INPUT.PENDING", st.Label())
	assert.Equal(t, gate.DisplayAwaitingApproval, st.Display())
	runID := st.RunID

	_, err = p.Results(ctx, runID)
	assert.True(t, errors.IsNotFoundError(err), "nothing evaluated before INPUT approval")

	st, err = p.Approve(ctx, runID, gate.StageInput, "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, "PROCESS.PENDING", st.Label())
	require.NotNil(t, st.Artifacts[gate.StageProcess])

	eval, err := p.Results(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "household-shelter-standard", eval.Table)

	area, ok := eval.Result("hs_floor_area")
	require.True(t, ok)
	assert.Equal(t, compliance.VerdictFail, area.Verdict)
	assert.InDelta(t, 2.2, *area.RequiredValue, 1e-12)
	assert.InDelta(t, -0.1, *area.Margin, 1e-12)

	vol, _ := eval.Result("hs_volume")
	assert.Equal(t, compliance.VerdictPass, vol.Verdict)

	stair, _ := eval.Result("staircase_waist")
	assert.Equal(t, compliance.VerdictNotApplicable, stair.Verdict)
	assert.False(t, eval.Summary.PassAll)
	assert.Equal(t, []string{"hs_floor_area"}, eval.Summary.Failed)

	_, err = p.Report(ctx, runID)
	assert.True(t, errors.IsNotFoundError(err))

	st, err = p.Approve(ctx, runID, gate.StageProcess, "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, "OUTPUT.PENDING", st.Label())

	rep, err := p.Report(ctx, runID)
	require.NoError(t, err)
	require.Len(t, rep.Rows, len(eval.Results))
	assert.Equal(t, "hs_floor_area", rep.Rows[0].RequirementID)
	assert.Equal(t, "Non-compliant", rep.Rows[0].Compliance)

	st, err = p.Approve(ctx, runID, gate.StageOutput, "bob", nil)
	require.NoError(t, err)
	assert.True(t, st.Frozen)
	assert.Equal(t, gate.DisplayFrozen, st.Display())

	events, err := p.Events(ctx, runID)
	require.NoError(t, err)
	var actions []gate.Action
	for _, ev := range events {
		actions = append(actions, ev.Action)
	}
	assert.Equal(t, []gate.Action{
		gate.ActionCreated,
		gate.ActionArtifactSubmitted, gate.ActionApproved,
		gate.ActionArtifactSubmitted, gate.ActionApproved,
		gate.ActionArtifactSubmitted, gate.ActionApproved,
	}, actions)
}

func TestPipeline_StartRejectsInvalidInput(t *testing.T) {
	p := newPipeline(true)
	ctx := context.Background()

	tests := []struct {
		name  string
		input Input
	}{
		{"no table", Input{Measurements: shelterInput().Measurements}},
		{"invalid table", Input{Table: &requirement.Table{Name: "empty"}}},
		{"measurement without unit", Input{
			Table:        requirement.StandardTable(),
			Measurements: []measurement.Measurement{{EntityID: "hs-1", Parameter: "clear_height_mm", Value: 2400}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Start(ctx, tt.input, "alice")
			assert.True(t, errors.IsInvalidRequestError(err), "got %v", err)
		})
	}

	runs, err := p.List(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestPipeline_ManualAdvance(t *testing.T) {
	p := newPipeline(false)
	ctx := context.Background()

	st, err := p.Start(ctx, shelterInput(), "alice")
	require.NoError(t, err)
	runID := st.RunID

	_, err = p.Advance(ctx, runID)
	assert.True(t, errors.IsInvalidTransition(err), "INPUT not approved yet")

	st, err = p.Approve(ctx, runID, gate.StageInput, "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, "INPUT.APPROVED", st.Label())
	assert.Equal(t, gate.DisplayProcessing, st.Display())

	st, err = p.Advance(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, "PROCESS.PENDING", st.Label())

	p.SetAutoAdvance(true)
	st, err = p.Approve(ctx, runID, gate.StageProcess, "alice", nil)
	require.NoError(t, err)
	assert.Equal(t, "OUTPUT.PENDING", st.Label())
}

func TestPipeline_RejectAndRegenerate(t *testing.T) {
	p := newPipeline(true)
	ctx := context.Background()

	st, err := p.Start(ctx, shelterInput(), "alice")
	require.NoError(t, err)
	runID := st.RunID

	t.Run("INPUT with corrected measurements", func(t *testing.T) {
		st, err := p.Reject(ctx, runID, gate.StageInput, "bob", "floor area mis-measured")
		require.NoError(t, err)
		assert.Equal(t, gate.DisplayRejected, st.Display())

		_, err = p.Approve(ctx, runID, gate.StageInput, "bob", nil)
		assert.True(t, errors.IsInvalidTransition(err), "rejected gate needs regeneration first")

		fixed := shelterInput()
		fixed.Measurements[0].Value = 2.4
		st, err = p.Regenerate(ctx, runID, gate.StageInput, "alice", &fixed)
		require.NoError(t, err)
		assert.Equal(t, "INPUT.PENDING", st.Label())
		assert.Equal(t, 2, st.Artifacts[gate.StageInput].Revision)
	})

	t.Run("PROCESS recomputed from approved input", func(t *testing.T) {
		_, err := p.Approve(ctx, runID, gate.StageInput, "bob", nil)
		require.NoError(t, err)

		eval, err := p.Results(ctx, runID)
		require.NoError(t, err)
		area, _ := eval.Result("hs_floor_area")
		assert.Equal(t, compliance.VerdictPass, area.Verdict)

		_, err = p.Reject(ctx, runID, gate.StageProcess, "bob", "re-run")
		require.NoError(t, err)

		_, err = p.Regenerate(ctx, runID, gate.StageProcess, "alice", &Input{})
		assert.True(t, errors.IsInvalidRequestError(err))

		st, err := p.Regenerate(ctx, runID, gate.StageProcess, "alice", nil)
		require.NoError(t, err)
		assert.Equal(t, "PROCESS.PENDING", st.Label())
		assert.Equal(t, 2, st.Artifacts[gate.StageProcess].Revision)
	})

	t.Run("wrong stage", func(t *testing.T) {
		_, err := p.Reject(ctx, runID, gate.StageOutput, "bob", "too early")
		assert.True(t, errors.IsInvalidTransition(err))
	})
}

func TestPipeline_ProductionFailureStallsRun(t *testing.T) {
	p := newPipeline(true)

	st, err := p.Start(context.Background(), shelterInput(), "alice")
	require.NoError(t, err)
	runID := st.RunID

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	st, err = p.Approve(cancelled, runID, gate.StageInput, "alice", nil)
	require.Error(t, err)
	assert.Equal(t, "INPUT.APPROVED", st.Label(), "approval stands")
	assert.Equal(t, gate.DisplayFailed, st.Display())
	require.NotNil(t, st.Failures[gate.StageProcess])

	st, err = p.Advance(context.Background(), runID)
	require.NoError(t, err)
	assert.Equal(t, "PROCESS.PENDING", st.Label())
	assert.Nil(t, st.Failures[gate.StageProcess])
}

func TestPipeline_ApproveVersion(t *testing.T) {
	p := newPipeline(false)
	ctx := context.Background()

	st, err := p.Start(ctx, shelterInput(), "alice")
	require.NoError(t, err)

	_, err = p.Approve(ctx, st.RunID, gate.StageInput, "bob", util.Ptr(st.Version+1))
	assert.True(t, errors.IsConflictError(err))

	st, err = p.Approve(ctx, st.RunID, gate.StageInput, "bob", util.Ptr(st.Version))
	require.NoError(t, err)
	assert.Equal(t, "INPUT.APPROVED", st.Label())
}

func TestPipeline_SupersedeFrozenRun(t *testing.T) {
	p := newPipeline(true)
	ctx := context.Background()

	st, err := p.Start(ctx, shelterInput(), "alice")
	require.NoError(t, err)
	runID := st.RunID

	_, err = p.Supersede(ctx, runID, "alice")
	assert.True(t, errors.IsInvalidTransition(err))

	for _, stage := range gate.Stages {
		_, err := p.Approve(ctx, runID, stage, "bob", nil)
		require.NoError(t, err)
	}

	_, err = p.Reject(ctx, runID, gate.StageOutput, "bob", "late change")
	assert.True(t, errors.Is(err, errors.ErrRunFrozen))
	_, err = p.Regenerate(ctx, runID, gate.StageInput, "bob", nil)
	assert.True(t, errors.Is(err, errors.ErrRunFrozen))

	next, err := p.Supersede(ctx, runID, "alice")
	require.NoError(t, err)
	assert.Equal(t, runID, next.ParentRunID)
	assert.Equal(t, "INPUT.PENDING", next.Label())
}

func TestPipeline_PersistsAcrossManagers(t *testing.T) {
	db := qtest.CreateMigratedTestDB(t)
	ctx := context.Background()

	first := New(Config{
		Manager:     gate.NewManager(gate.ManagerOptions{Store: gate.NewStore(db)}),
		AutoAdvance: true,
	})
	st, err := first.Start(ctx, shelterInput(), "alice")
	require.NoError(t, err)
	_, err = first.Approve(ctx, st.RunID, gate.StageInput, "alice", nil)
	require.NoError(t, err)

	second := New(Config{
		Manager:     gate.NewManager(gate.ManagerOptions{Store: gate.NewStore(db)}),
		AutoAdvance: true,
	})
	restored, err := second.State(ctx, st.RunID)
	require.NoError(t, err)
	assert.Equal(t, "PROCESS.PENDING", restored.Label())

	eval, err := second.Results(ctx, st.RunID)
	require.NoError(t, err)
	assert.Len(t, eval.Results, len(requirement.StandardTable().Requirements))

	st, err = second.Approve(ctx, st.RunID, gate.StageProcess, "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, "OUTPUT.PENDING", st.Label())

	runs, err := second.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "OUTPUT.PENDING", runs[0].Label())
}

func TestPipeline_UnknownRun(t *testing.T) {
	p := newPipeline(true)
	_, err := p.Approve(context.Background(), "missing", gate.StageInput, "alice", nil)
	assert.True(t, errors.IsNotFoundError(err))
}

func TestInput_WithDriver(t *testing.T) {
	in := Input{Table: requirement.StandardTable()}

	filled := in.WithDriver(120)
	assert.Equal(t, map[string]float64{"gfa_m2": 120}, filled.Drivers)
	assert.Nil(t, in.Drivers, "receiver is not modified")

	in.Drivers = map[string]float64{"gfa_m2": 42}
	kept := in.WithDriver(120)
	assert.Equal(t, 42.0, kept.Drivers["gfa_m2"], "explicit drivers win")

	assert.Nil(t, Input{}.WithDriver(1).Drivers)
}
