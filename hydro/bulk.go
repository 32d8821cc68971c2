package hydro

import (
	"context"
	"fmt"
)

// Output names of the bulk hydro analysis, in persist order.
const (
	OutSink        = "sink"
	OutFilled      = "filled"
	OutFlowDir     = "flowdir"
	OutFlowAcc     = "flowacc"
	OutStream      = "stream"
	OutFlowDist    = "flowdist"
	OutFlowLen     = "flowlen"
	OutStreamLink  = "streamlink"
	OutStreamOrder = "streamorder"
)

// BulkOutputs lists the nine rasters a successful bulk run persists.
var BulkOutputs = []string{
	OutSink, OutFilled, OutFlowDir, OutFlowAcc, OutStream,
	OutFlowDist, OutFlowLen, OutStreamLink, OutStreamOrder,
}

// BulkResult contains the result of a bulk hydro analysis
type BulkResult struct {
	RunID         string       `json:"run_id"`
	MeanSinkDepth float64      `json:"mean_sink_depth"` // fill threshold used for the filled DEM
	Outputs       []Output     `json:"outputs"`
	Registration  Registration `json:"registration"`
}

// RunBulk derives the standard hydrological rasters from one DEM. Each
// output is persisted as soon as it is computed. Outputs are added to the
// map only after all nine exist.
func RunBulk(ctx context.Context, deps Deps, in BulkInput) (BulkResult, error) {
	if err := asValidationError(ValidateBulk(in)); err != nil {
		return BulkResult{}, err
	}
	if deps.Engine == nil || deps.Workspaces == nil {
		return BulkResult{}, fmt.Errorf("engine and workspaces are required")
	}
	if err := RequireCapability(ctx, deps.Engine, SpatialAnalysis); err != nil {
		return BulkResult{}, err
	}

	eng := deps.Engine
	r := newRun(deps, "bulk", in.Workspace)
	dem := Source(in.DEM)
	defer r.finish(ctx)
	res := BulkResult{RunID: r.id}
	r.log.Infow("starting bulk hydro analysis", "dem", in.DEM, "workspace", in.Workspace)

	sinks, err := step(ctx, r, OutSink, func() (Raster, error) {
		return sinkRaster(ctx, eng, r.scratch, dem)
	})
	if err != nil {
		return res, err
	}
	if err := r.persist(ctx, OutSink, sinks); err != nil {
		return res, err
	}

	depth, err := step(ctx, r, "mean sink depth", func() (float64, error) {
		return meanDepthOver(ctx, eng, r.scratch, dem, sinks)
	})
	if err != nil {
		return res, err
	}
	res.MeanSinkDepth = depth

	filled, err := step(ctx, r, OutFilled, func() (Raster, error) {
		return eng.Fill(ctx, dem, &depth)
	})
	if err != nil {
		return res, err
	}
	if err := r.persist(ctx, OutFilled, filled); err != nil {
		return res, err
	}

	flowdir, err := step(ctx, r, OutFlowDir, func() (Raster, error) {
		return eng.FlowDirection(ctx, filled)
	})
	if err != nil {
		return res, err
	}
	if err := r.persist(ctx, OutFlowDir, flowdir); err != nil {
		return res, err
	}

	flowacc, err := step(ctx, r, OutFlowAcc, func() (Raster, error) {
		return eng.FlowAccumulation(ctx, flowdir)
	})
	if err != nil {
		return res, err
	}
	if err := r.persist(ctx, OutFlowAcc, flowacc); err != nil {
		return res, err
	}

	stream, err := step(ctx, r, OutStream, func() (Raster, error) {
		return eng.DeriveStreamRaster(ctx, dem)
	})
	if err != nil {
		return res, err
	}
	if err := r.persist(ctx, OutStream, stream); err != nil {
		return res, err
	}

	derived := []struct {
		name string
		fn   func() (Raster, error)
	}{
		{OutFlowDist, func() (Raster, error) { return eng.FlowDistance(ctx, stream, filled, flowdir) }},
		{OutFlowLen, func() (Raster, error) { return eng.FlowLength(ctx, flowdir, Upstream) }},
		{OutStreamLink, func() (Raster, error) { return eng.StreamLink(ctx, stream, flowdir) }},
		{OutStreamOrder, func() (Raster, error) { return eng.StreamOrder(ctx, stream, flowdir) }},
	}
	for _, d := range derived {
		ras, err := step(ctx, r, d.name, d.fn)
		if err != nil {
			return res, err
		}
		if err := r.persist(ctx, d.name, ras); err != nil {
			return res, err
		}
	}

	res.Outputs = r.outputs
	if in.AddToMap {
		res.Registration = r.register(ctx)
	}
	r.log.Infow("bulk hydro analysis finished", "outputs", len(res.Outputs), "mean_sink_depth", depth)
	return res, nil
}
