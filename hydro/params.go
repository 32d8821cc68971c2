package hydro

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"strings"
)

// RasterExt is appended to output names in file-system workspaces.
const RasterExt = ".tif"

// ConstructPath resolves the output path for name inside container.
// Directories get a raster file extension; database containers store the
// bare name.
func ConstructPath(ctx context.Context, ws Workspaces, container, name string) (string, error) {
	info, err := ws.Describe(ctx, container)
	if err != nil {
		return "", fmt.Errorf("describe workspace %s: %w", container, err)
	}
	if info.IsFileSystem {
		return filepath.Join(container, name+RasterExt), nil
	}
	// names inside a container are slash-separated on every platform
	return strings.TrimRight(container, "/\\") + "/" + name, nil
}

// SnapDistance derives the pour-point snap radius from the DEM cell size,
// which must be finite and positive (ValidateWatershed enforces this).
// Tier boundaries at 2 and 10 belong to the higher tier.
func SnapDistance(resolution float64) float64 {
	switch {
	case resolution >= 10:
		return resolution * 10
	case resolution >= 2:
		return resolution * 7
	default:
		return resolution * 5
	}
}

// MeanSinkDepth estimates the fill threshold for dem: the zonal mean, over
// sink groups, of the depth an unconstrained fill adds to the surface.
// Every intermediate raster is released before it returns.
func MeanSinkDepth(ctx context.Context, eng Engine, dem Raster) (float64, error) {
	sc := newScratch(eng)
	defer func() { _ = sc.release(ctx) }()

	sinks, err := sinkRaster(ctx, eng, sc, dem)
	if err != nil {
		return 0, err
	}
	return meanDepthOver(ctx, eng, sc, dem, sinks)
}

func sinkRaster(ctx context.Context, eng Engine, sc *scratch, dem Raster) (Raster, error) {
	flowdir, err := eng.FlowDirection(ctx, dem)
	if err != nil {
		return Raster{}, fmt.Errorf("flow direction: %w", err)
	}
	sc.keep(flowdir)
	sinks, err := eng.Sink(ctx, flowdir)
	if err != nil {
		return Raster{}, fmt.Errorf("sink: %w", err)
	}
	return sc.keep(sinks), nil
}

func meanDepthOver(ctx context.Context, eng Engine, sc *scratch, dem, sinks Raster) (float64, error) {
	filled, err := eng.Fill(ctx, dem, nil)
	if err != nil {
		return 0, fmt.Errorf("unconstrained fill: %w", err)
	}
	sc.keep(filled)
	depth, err := eng.Minus(ctx, filled, dem)
	if err != nil {
		return 0, fmt.Errorf("fill depth: %w", err)
	}
	sc.keep(depth)
	zonal, err := eng.ZonalMean(ctx, sinks, ValueField, depth)
	if err != nil {
		return 0, fmt.Errorf("zonal mean: %w", err)
	}
	sc.keep(zonal.Raster)
	// no sink zones leaves nothing to average
	if math.IsNaN(zonal.Mean) || math.IsInf(zonal.Mean, 0) {
		return 0, nil
	}
	return zonal.Mean, nil
}

// RequireCapability fails with ErrCapabilityUnavailable when the engine
// cannot provide name. It is checked before any derivation starts.
func RequireCapability(ctx context.Context, eng Engine, name string) error {
	ok, err := eng.CheckCapability(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCapabilityUnavailable, name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrCapabilityUnavailable, name)
	}
	return nil
}
