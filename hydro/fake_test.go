package hydro_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/pavletto/hydroflow/hydro"
)

type call struct {
	op     string
	inputs []string
	params map[string]string
}

// fakeEngine records every derivation and returns rasters carrying the
// identity of the call that produced them.
type fakeEngine struct {
	mu        sync.Mutex
	capable   bool
	capErr    error
	capChecks int
	zonalMean float64
	sinkFree  bool // no sinks: fills return the DEM unchanged, zonal mean has no zones
	failOn    string
	calls     []call
	n         int
	produced  []string
	released  []string
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{capable: true, zonalMean: 1.5}
}

func (f *fakeEngine) derive(op string, params map[string]string, inputs ...hydro.Raster) (hydro.Raster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := hydro.Derive(op, params, inputs...)
	f.calls = append(f.calls, call{op: op, inputs: r.Inputs, params: params})
	if f.failOn == op {
		return hydro.Raster{}, errors.New("engine failure in " + op)
	}
	f.n++
	r.ID = fmt.Sprintf("%s-%d", strings.ToLower(op), f.n)
	r.Path = "/scratch/" + r.ID + ".tif"
	f.produced = append(f.produced, r.ID)
	return r, nil
}

func (f *fakeEngine) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.op
	}
	return out
}

func (f *fakeEngine) callsOf(op string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeEngine) CheckCapability(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.capChecks++
	return f.capable && name == hydro.SpatialAnalysis, f.capErr
}

func (f *fakeEngine) FlowDirection(_ context.Context, dem hydro.Raster) (hydro.Raster, error) {
	return f.derive(hydro.OpFlowDirection, nil, dem)
}

func (f *fakeEngine) Fill(_ context.Context, dem hydro.Raster, threshold *float64) (hydro.Raster, error) {
	r, err := f.derive(hydro.OpFill, hydro.FillParams(threshold), dem)
	if err == nil && f.sinkFree {
		return dem, nil
	}
	return r, err
}

func (f *fakeEngine) FlowAccumulation(_ context.Context, flowdir hydro.Raster) (hydro.Raster, error) {
	return f.derive(hydro.OpFlowAccumulation, nil, flowdir)
}

func (f *fakeEngine) Sink(_ context.Context, flowdir hydro.Raster) (hydro.Raster, error) {
	return f.derive(hydro.OpSink, nil, flowdir)
}

func (f *fakeEngine) Minus(_ context.Context, a, b hydro.Raster) (hydro.Raster, error) {
	return f.derive(hydro.OpMinus, nil, a, b)
}

func (f *fakeEngine) ZonalMean(_ context.Context, zones hydro.Raster, field string, values hydro.Raster) (hydro.ZonalResult, error) {
	r, err := f.derive(hydro.OpZonalMean, map[string]string{"field": field}, zones, values)
	if err != nil {
		return hydro.ZonalResult{}, err
	}
	mean := f.zonalMean
	if f.sinkFree {
		mean = math.NaN()
	}
	return hydro.ZonalResult{Raster: r, Mean: mean}, nil
}

func (f *fakeEngine) DeriveStreamRaster(_ context.Context, dem hydro.Raster) (hydro.Raster, error) {
	return f.derive(hydro.OpDeriveStreamRaster, nil, dem)
}

func (f *fakeEngine) FlowDistance(_ context.Context, stream, dem, flowdir hydro.Raster) (hydro.Raster, error) {
	return f.derive(hydro.OpFlowDistance, nil, stream, dem, flowdir)
}

func (f *fakeEngine) FlowLength(_ context.Context, flowdir hydro.Raster, mode hydro.FlowLengthMode) (hydro.Raster, error) {
	return f.derive(hydro.OpFlowLength, map[string]string{"mode": string(mode)}, flowdir)
}

func (f *fakeEngine) StreamLink(_ context.Context, stream, flowdir hydro.Raster) (hydro.Raster, error) {
	return f.derive(hydro.OpStreamLink, nil, stream, flowdir)
}

func (f *fakeEngine) StreamOrder(_ context.Context, stream, flowdir hydro.Raster) (hydro.Raster, error) {
	return f.derive(hydro.OpStreamOrder, nil, stream, flowdir)
}

func (f *fakeEngine) SnapPourPoint(_ context.Context, points, accumulation hydro.Raster, distance float64, field string) (hydro.Raster, error) {
	params := map[string]string{"distance": hydro.FormatFloat(distance), "field": field}
	return f.derive(hydro.OpSnapPourPoint, params, points, accumulation)
}

func (f *fakeEngine) Watershed(_ context.Context, flowdir, points hydro.Raster, field string) (hydro.Raster, error) {
	return f.derive(hydro.OpWatershed, map[string]string{"field": field}, flowdir, points)
}

func (f *fakeEngine) Release(_ context.Context, r hydro.Raster) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released = append(f.released, r.ID)
	return nil
}

func (f *fakeEngine) scratchState() (produced, released []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.produced...), append([]string(nil), f.released...)
}

type fakeWorkspaces struct {
	mu          sync.Mutex
	fileSystem  bool
	describeErr error
	failPersist string // fail persisting any path containing this
	removeErr   error
	describes   int
	persisted   []string
	rasters     map[string]hydro.Raster
	removed     []string
}

func newFakeWorkspaces() *fakeWorkspaces {
	return &fakeWorkspaces{fileSystem: true, rasters: map[string]hydro.Raster{}}
}

func (w *fakeWorkspaces) Describe(_ context.Context, _ string) (hydro.WorkspaceInfo, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.describes++
	return hydro.WorkspaceInfo{IsFileSystem: w.fileSystem}, w.describeErr
}

func (w *fakeWorkspaces) Persist(_ context.Context, r hydro.Raster, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failPersist != "" && strings.Contains(path, w.failPersist) {
		return errors.New("disk full")
	}
	w.persisted = append(w.persisted, path)
	w.rasters[path] = r
	return nil
}

func (w *fakeWorkspaces) Remove(_ context.Context, path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.removeErr != nil {
		return w.removeErr
	}
	w.removed = append(w.removed, path)
	return nil
}

type fakeRegistrar struct {
	failOn     string
	registered []string
}

func (r *fakeRegistrar) Register(_ context.Context, path string) error {
	if r.failOn != "" && strings.Contains(path, r.failOn) {
		return errors.New("map view closed")
	}
	r.registered = append(r.registered, path)
	return nil
}

func newDeps(eng hydro.Engine, ws hydro.Workspaces) hydro.Deps {
	return hydro.Deps{Engine: eng, Workspaces: ws}
}
