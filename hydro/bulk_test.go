package hydro_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavletto/hydroflow/hydro"
)

func TestRunBulk(t *testing.T) {
	eng := newFakeEngine()
	ws := newFakeWorkspaces()

	res, err := hydro.RunBulk(context.Background(), newDeps(eng, ws), hydro.BulkInput{DEM: "dem.tif", Workspace: "/out"})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 1.5, res.MeanSinkDepth)
	require.Len(t, res.Outputs, 9)

	names := make([]string, len(res.Outputs))
	for i, out := range res.Outputs {
		names[i] = out.Name
		assert.Equal(t, "/out/"+out.Name+".tif", out.Path)
	}
	assert.Equal(t, hydro.BulkOutputs, names)
	assert.Equal(t, []string{
		"/out/sink.tif", "/out/filled.tif", "/out/flowdir.tif", "/out/flowacc.tif", "/out/stream.tif",
		"/out/flowdist.tif", "/out/flowlen.tif", "/out/streamlink.tif", "/out/streamorder.tif",
	}, ws.persisted)

	assert.Equal(t, []string{
		hydro.OpFlowDirection, hydro.OpSink,
		hydro.OpFill, hydro.OpMinus, hydro.OpZonalMean,
		hydro.OpFill, hydro.OpFlowDirection, hydro.OpFlowAccumulation,
		hydro.OpDeriveStreamRaster, hydro.OpFlowDistance, hydro.OpFlowLength,
		hydro.OpStreamLink, hydro.OpStreamOrder,
	}, eng.ops())

	fills := eng.callsOf(hydro.OpFill)
	require.Len(t, fills, 2)
	assert.Equal(t, "1.5", fills[1].params["threshold"], "filled DEM is bounded by the mean sink depth")

	flowLen := eng.callsOf(hydro.OpFlowLength)[0]
	assert.Equal(t, string(hydro.Upstream), flowLen.params["mode"])

	stream := eng.callsOf(hydro.OpDeriveStreamRaster)[0]
	assert.Equal(t, []string{"source:dem.tif"}, stream.inputs, "streams come from the raw DEM")

	assert.Empty(t, res.Registration.Registered)
}

func TestRunBulk_FlatDEM(t *testing.T) {
	eng := newFakeEngine()
	eng.sinkFree = true
	ws := newFakeWorkspaces()

	res, err := hydro.RunBulk(context.Background(), newDeps(eng, ws), hydro.BulkInput{DEM: "flat.tif", Workspace: "/out"})
	require.NoError(t, err)

	assert.Zero(t, res.MeanSinkDepth)
	require.Len(t, res.Outputs, 9)
	for _, out := range res.Outputs {
		assert.NotEmpty(t, out.Raster.ID, out.Name)
	}
	filled := ws.rasters["/out/filled.tif"]
	assert.Equal(t, hydro.Source("flat.tif"), filled, "filled DEM is the input unchanged")
}

func TestRunBulk_CapabilityUnavailable(t *testing.T) {
	eng := newFakeEngine()
	eng.capable = false
	ws := newFakeWorkspaces()

	_, err := hydro.RunBulk(context.Background(), newDeps(eng, ws), hydro.BulkInput{DEM: "dem.tif", Workspace: "/out"})
	require.ErrorIs(t, err, hydro.ErrCapabilityUnavailable)
	assert.Empty(t, eng.ops())
	assert.Empty(t, ws.persisted)
	assert.Zero(t, ws.describes)
}

func TestRunBulk_InvalidInput(t *testing.T) {
	eng := newFakeEngine()

	_, err := hydro.RunBulk(context.Background(), newDeps(eng, newFakeWorkspaces()), hydro.BulkInput{Workspace: "/out"})
	var verr *hydro.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "dem", verr.Fields[0].Field)
	assert.Zero(t, eng.capChecks)
}

func TestRunBulk_MidPipelineFailure(t *testing.T) {
	tests := []struct {
		name        string
		policy      hydro.FailurePolicy
		wantRemoved []string
	}{
		{name: "keep partial", policy: hydro.KeepPartial},
		{
			name:        "rollback partial",
			policy:      hydro.RollbackPartial,
			wantRemoved: []string{"/out/flowdir.tif", "/out/filled.tif", "/out/sink.tif"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := newFakeEngine()
			eng.failOn = hydro.OpFlowAccumulation
			ws := newFakeWorkspaces()
			deps := newDeps(eng, ws)
			deps.Policy = tt.policy

			_, err := hydro.RunBulk(context.Background(), deps, hydro.BulkInput{DEM: "dem.tif", Workspace: "/out"})
			var serr *hydro.StepError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, hydro.OutFlowAcc, serr.Step)

			assert.Equal(t, []string{"/out/sink.tif", "/out/filled.tif", "/out/flowdir.tif"}, ws.persisted)
			assert.Equal(t, tt.wantRemoved, ws.removed)
			assert.NotContains(t, eng.ops(), hydro.OpDeriveStreamRaster, "no step runs after a failure")
		})
	}
}

func TestRunBulk_RollbackErrorsJoined(t *testing.T) {
	eng := newFakeEngine()
	ws := newFakeWorkspaces()
	ws.failPersist = "stream.tif"
	ws.removeErr = errors.New("permission denied")
	deps := newDeps(eng, ws)
	deps.Policy = hydro.RollbackPartial

	_, err := hydro.RunBulk(context.Background(), deps, hydro.BulkInput{DEM: "dem.tif", Workspace: "/out"})
	require.Error(t, err)

	var serr *hydro.StepError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "persist "+hydro.OutStream, serr.Step)
	assert.ErrorIs(t, err, ws.removeErr)
}

func TestRunBulk_CancelledBetweenSteps(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	eng := newFakeEngine()

	_, err := hydro.RunBulk(ctx, newDeps(eng, newFakeWorkspaces()), hydro.BulkInput{DEM: "dem.tif", Workspace: "/out"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, eng.ops())
}

func TestRunBulk_AddToMap(t *testing.T) {
	eng := newFakeEngine()
	ws := newFakeWorkspaces()
	reg := &fakeRegistrar{failOn: "filled"}
	deps := newDeps(eng, ws)
	deps.Registrar = reg

	res, err := hydro.RunBulk(context.Background(), deps, hydro.BulkInput{DEM: "dem.tif", Workspace: "/out", AddToMap: true})
	require.NoError(t, err, "registration failures do not fail the run")

	assert.Len(t, res.Registration.Registered, 8)
	assert.Equal(t, []string{"/out/filled.tif"}, res.Registration.Failed)
	require.Len(t, res.Registration.Errors, 1)
	assert.Equal(t, ws.persisted[len(ws.persisted)-1], reg.registered[len(reg.registered)-1],
		"registration continues after a failure")
}

func TestRunBulk_AddToMapAfterFailure(t *testing.T) {
	eng := newFakeEngine()
	eng.failOn = hydro.OpStreamOrder
	reg := &fakeRegistrar{}
	deps := newDeps(eng, newFakeWorkspaces())
	deps.Registrar = reg

	_, err := hydro.RunBulk(context.Background(), deps, hydro.BulkInput{DEM: "dem.tif", Workspace: "/out", AddToMap: true})
	require.Error(t, err)
	assert.Empty(t, reg.registered, "nothing is added to the map unless all outputs exist")
}

func TestRunBulk_ReleasesScratch(t *testing.T) {
	eng := newFakeEngine()
	ws := newFakeWorkspaces()

	_, err := hydro.RunBulk(context.Background(), newDeps(eng, ws), hydro.BulkInput{DEM: "dem.tif", Workspace: "/out"})
	require.NoError(t, err)

	produced, released := eng.scratchState()
	assert.ElementsMatch(t, produced, released, "every intermediate and persisted scratch raster is released")
	assert.Len(t, ws.persisted, 9)
}
