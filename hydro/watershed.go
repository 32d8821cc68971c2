package hydro

import (
	"context"
	"fmt"
)

// OutWatershed is the output name of the optimized watershed.
const OutWatershed = "watershed"

// WatershedResult contains the result of an optimized watershed run
type WatershedResult struct {
	RunID            string       `json:"run_id"`
	Threshold        float64      `json:"threshold"`         // fill threshold actually used
	DerivedThreshold bool         `json:"derived_threshold"` // true when taken from the mean sink depth
	SnapDistance     float64      `json:"snap_distance"`
	Output           Output       `json:"output"`
	Registration     Registration `json:"registration"`
}

// RunWatershed fills the DEM with either the explicit Z-limit or the
// mean sink depth, routes flow over it, snaps the pour points onto the
// accumulation surface and delineates the watershed.
func RunWatershed(ctx context.Context, deps Deps, in WatershedInput) (WatershedResult, error) {
	if err := asValidationError(ValidateWatershed(in)); err != nil {
		return WatershedResult{}, err
	}
	if deps.Engine == nil || deps.Workspaces == nil {
		return WatershedResult{}, fmt.Errorf("engine and workspaces are required")
	}
	if err := RequireCapability(ctx, deps.Engine, SpatialAnalysis); err != nil {
		return WatershedResult{}, err
	}

	eng := deps.Engine
	r := newRun(deps, "watershed", in.Workspace)
	dem := Source(in.DEM)
	defer r.finish(ctx)
	res := WatershedResult{RunID: r.id}

	if in.ZLimit != nil {
		res.Threshold = *in.ZLimit
	} else {
		depth, err := step(ctx, r, "mean sink depth", func() (float64, error) {
			return MeanSinkDepth(ctx, eng, dem)
		})
		if err != nil {
			return res, err
		}
		res.Threshold = depth
		res.DerivedThreshold = true
	}
	r.log.Infow("starting optimized watershed", "dem", in.DEM, "threshold", res.Threshold, "derived", res.DerivedThreshold)

	threshold := res.Threshold
	filled, err := step(ctx, r, "fill", func() (Raster, error) {
		return eng.Fill(ctx, dem, &threshold)
	})
	if err != nil {
		return res, err
	}
	flowdir, err := step(ctx, r, "flow direction", func() (Raster, error) {
		return eng.FlowDirection(ctx, filled)
	})
	if err != nil {
		return res, err
	}
	flowacc, err := step(ctx, r, "flow accumulation", func() (Raster, error) {
		return eng.FlowAccumulation(ctx, flowdir)
	})
	if err != nil {
		return res, err
	}

	res.SnapDistance = SnapDistance(in.Resolution)
	snapped, err := step(ctx, r, "snap pour points", func() (Raster, error) {
		return eng.SnapPourPoint(ctx, Source(in.PourPoints), flowacc, res.SnapDistance, ValueField)
	})
	if err != nil {
		return res, err
	}
	ws, err := step(ctx, r, OutWatershed, func() (Raster, error) {
		return eng.Watershed(ctx, flowdir, snapped, ValueField)
	})
	if err != nil {
		return res, err
	}
	if err := r.persist(ctx, OutWatershed, ws); err != nil {
		return res, err
	}

	res.Output = r.outputs[0]
	if in.AddToMap {
		res.Registration = r.register(ctx)
	}
	r.log.Infow("optimized watershed finished", "path", res.Output.Path, "snap_distance", res.SnapDistance)
	return res, nil
}
