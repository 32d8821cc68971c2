// Package whitebox implements hydro.Engine on top of the WhiteboxTools
// command-line program. Every operation is one or two blocking tool runs
// writing into a scratch directory.
package whitebox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavletto/hydroflow/hydro"
)

type Config struct {
	Binary          string // whitebox_tools executable, looked up in PATH
	ScratchDir      string
	StreamThreshold float64 // contributing cells at which a cell becomes stream
	ToolTimeout     time.Duration
	// FixFlats adds a drainage gradient over flats in thresholded fills. The
	// unbounded fill behind the mean sink depth is always a plain fill.
	FixFlats bool
	Runner   Runner
}

// Tools each capability needs to be present in --listtools.
var capabilities = map[string][]string{
	hydro.SpatialAnalysis: {
		"D8Pointer", "FillDepressions", "D8FlowAccumulation", "Sink", "Subtract",
		"ZonalStatistics", "RasterSummaryStats", "ExtractStreams",
		"DownslopeDistanceToStream", "MaxUpslopeFlowpathLength", "DownslopeFlowpathLength",
		"StreamLinkIdentifier", "StrahlerStreamOrder", "SnapPourPoints", "Watershed",
	},
}

type Engine struct {
	cfg Config
	run Runner

	mu      sync.Mutex
	lineage map[string]hydro.Raster // pointer raster ID -> DEM it was computed from
}

func New(cfg Config) (*Engine, error) {
	if cfg.ScratchDir == "" {
		return nil, fmt.Errorf("ScratchDir required")
	}
	if err := os.MkdirAll(cfg.ScratchDir, 0o755); err != nil {
		return nil, err
	}
	if cfg.Binary == "" {
		cfg.Binary = "whitebox_tools"
	}
	if cfg.StreamThreshold <= 0 {
		cfg.StreamThreshold = 1000
	}
	run := cfg.Runner
	if run == nil {
		run = ExecRunner{}
	}
	return &Engine{cfg: cfg, run: run, lineage: make(map[string]hydro.Raster)}, nil
}

func (e *Engine) Config() Config { return e.cfg }

// CheckCapability reports whether every tool behind name is installed.
// A missing binary is reported as unavailable, not as an error.
func (e *Engine) CheckCapability(ctx context.Context, name string) (bool, error) {
	need, ok := capabilities[name]
	if !ok {
		return false, nil
	}
	out, err := e.run.Run(ctx, e.cfg.Binary, "--listtools")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	have := parseToolList(out)
	for _, t := range need {
		if _, ok := have[t]; !ok {
			return false, nil
		}
	}
	return true, nil
}

func (e *Engine) FlowDirection(ctx context.Context, dem hydro.Raster) (hydro.Raster, error) {
	out := e.output(hydro.OpFlowDirection, nil, dem)
	if _, err := e.tool(ctx, "D8Pointer", arg("dem", dem.Path), arg("output", out.Path)); err != nil {
		return hydro.Raster{}, err
	}
	e.remember(out, dem)
	return out, nil
}

func (e *Engine) Fill(ctx context.Context, dem hydro.Raster, threshold *float64) (hydro.Raster, error) {
	out := e.output(hydro.OpFill, hydro.FillParams(threshold), dem)
	args := []string{arg("dem", dem.Path), arg("output", out.Path)}
	if threshold != nil {
		args = append(args, arg("max_depth", hydro.FormatFloat(*threshold)))
		if e.cfg.FixFlats {
			args = append(args, "--fix_flats")
		}
	}
	if _, err := e.tool(ctx, "FillDepressions", args...); err != nil {
		return hydro.Raster{}, err
	}
	return out, nil
}

func (e *Engine) FlowAccumulation(ctx context.Context, flowdir hydro.Raster) (hydro.Raster, error) {
	out := e.output(hydro.OpFlowAccumulation, nil, flowdir)
	_, err := e.tool(ctx, "D8FlowAccumulation",
		arg("input", flowdir.Path), arg("output", out.Path), arg("out_type", "cells"), "--pntr")
	if err != nil {
		return hydro.Raster{}, err
	}
	return out, nil
}

// Sink locates sinks from the DEM behind flowdir; WhiteboxTools derives
// them from elevations rather than from a pointer grid.
func (e *Engine) Sink(ctx context.Context, flowdir hydro.Raster) (hydro.Raster, error) {
	dem, err := e.demOf(flowdir)
	if err != nil {
		return hydro.Raster{}, err
	}
	out := e.output(hydro.OpSink, nil, flowdir)
	if _, err := e.tool(ctx, "Sink", arg("input", dem.Path), arg("output", out.Path)); err != nil {
		return hydro.Raster{}, err
	}
	return out, nil
}

func (e *Engine) Minus(ctx context.Context, a, b hydro.Raster) (hydro.Raster, error) {
	out := e.output(hydro.OpMinus, nil, a, b)
	_, err := e.tool(ctx, "Subtract", arg("input1", a.Path), arg("input2", b.Path), arg("output", out.Path))
	if err != nil {
		return hydro.Raster{}, err
	}
	return out, nil
}

// ZonalMean groups by the zone raster's cell values; field is accepted for
// the contract but WhiteboxTools zones are always the raster values.
func (e *Engine) ZonalMean(ctx context.Context, zones hydro.Raster, field string, values hydro.Raster) (hydro.ZonalResult, error) {
	out := e.output(hydro.OpZonalMean, map[string]string{"field": field}, zones, values)
	_, err := e.tool(ctx, "ZonalStatistics",
		arg("input", values.Path), arg("features", zones.Path), arg("output", out.Path), arg("stat", "mean"))
	if err != nil {
		return hydro.ZonalResult{}, err
	}
	summary, err := e.tool(ctx, "RasterSummaryStats", arg("input", out.Path))
	if err != nil {
		return hydro.ZonalResult{}, err
	}
	mean, err := parseAverage(summary)
	if err != nil {
		return hydro.ZonalResult{}, err
	}
	return hydro.ZonalResult{Raster: out, Mean: mean}, nil
}

// DeriveStreamRaster accumulates flow directly over the DEM and keeps cells
// above the configured stream threshold.
func (e *Engine) DeriveStreamRaster(ctx context.Context, dem hydro.Raster) (hydro.Raster, error) {
	acc := e.output("DEMAccumulation", nil, dem)
	defer func() { _ = removeScratch(acc.Path) }()
	_, err := e.tool(ctx, "D8FlowAccumulation", arg("input", dem.Path), arg("output", acc.Path), arg("out_type", "cells"))
	if err != nil {
		return hydro.Raster{}, err
	}
	out := e.output(hydro.OpDeriveStreamRaster, nil, dem)
	_, err = e.tool(ctx, "ExtractStreams",
		arg("flow_accum", acc.Path), arg("output", out.Path), arg("threshold", hydro.FormatFloat(e.cfg.StreamThreshold)))
	if err != nil {
		return hydro.Raster{}, err
	}
	return out, nil
}

// FlowDistance measures downslope distance to the stream over dem; the
// pointer grid is implied by the DEM in WhiteboxTools.
func (e *Engine) FlowDistance(ctx context.Context, stream, dem, flowdir hydro.Raster) (hydro.Raster, error) {
	out := e.output(hydro.OpFlowDistance, nil, stream, dem, flowdir)
	_, err := e.tool(ctx, "DownslopeDistanceToStream", arg("dem", dem.Path), arg("streams", stream.Path), arg("output", out.Path))
	if err != nil {
		return hydro.Raster{}, err
	}
	return out, nil
}

func (e *Engine) FlowLength(ctx context.Context, flowdir hydro.Raster, mode hydro.FlowLengthMode) (hydro.Raster, error) {
	out := e.output(hydro.OpFlowLength, map[string]string{"mode": string(mode)}, flowdir)
	switch mode {
	case hydro.Upstream:
		dem, err := e.demOf(flowdir)
		if err != nil {
			return hydro.Raster{}, err
		}
		_, err = e.tool(ctx, "MaxUpslopeFlowpathLength", arg("dem", dem.Path), arg("output", out.Path))
		if err != nil {
			return hydro.Raster{}, err
		}
	case hydro.Downstream:
		_, err := e.tool(ctx, "DownslopeFlowpathLength", arg("d8_pntr", flowdir.Path), arg("output", out.Path))
		if err != nil {
			return hydro.Raster{}, err
		}
	default:
		return hydro.Raster{}, fmt.Errorf("unknown flow length mode %q", mode)
	}
	return out, nil
}

func (e *Engine) StreamLink(ctx context.Context, stream, flowdir hydro.Raster) (hydro.Raster, error) {
	out := e.output(hydro.OpStreamLink, nil, stream, flowdir)
	_, err := e.tool(ctx, "StreamLinkIdentifier", arg("d8_pntr", flowdir.Path), arg("streams", stream.Path), arg("output", out.Path))
	if err != nil {
		return hydro.Raster{}, err
	}
	return out, nil
}

func (e *Engine) StreamOrder(ctx context.Context, stream, flowdir hydro.Raster) (hydro.Raster, error) {
	out := e.output(hydro.OpStreamOrder, nil, stream, flowdir)
	_, err := e.tool(ctx, "StrahlerStreamOrder", arg("d8_pntr", flowdir.Path), arg("streams", stream.Path), arg("output", out.Path))
	if err != nil {
		return hydro.Raster{}, err
	}
	return out, nil
}

// SnapPourPoint moves each outlet to the highest accumulation cell within
// distance. WhiteboxTools takes pour points as a point vector, so the
// snapped result keeps the input's file type.
func (e *Engine) SnapPourPoint(ctx context.Context, points, accumulation hydro.Raster, distance float64, field string) (hydro.Raster, error) {
	params := map[string]string{"distance": hydro.FormatFloat(distance), "field": field}
	out := e.output(hydro.OpSnapPourPoint, params, points, accumulation)
	out.Path = strings.TrimSuffix(out.Path, hydro.RasterExt) + filepath.Ext(points.Path)
	_, err := e.tool(ctx, "SnapPourPoints",
		arg("pour_pts", points.Path), arg("flow_accum", accumulation.Path), arg("output", out.Path),
		arg("snap_dist", hydro.FormatFloat(distance)))
	if err != nil {
		return hydro.Raster{}, err
	}
	return out, nil
}

func (e *Engine) Watershed(ctx context.Context, flowdir, points hydro.Raster, field string) (hydro.Raster, error) {
	out := e.output(hydro.OpWatershed, map[string]string{"field": field}, flowdir, points)
	_, err := e.tool(ctx, "Watershed", arg("d8_pntr", flowdir.Path), arg("pour_pts", points.Path), arg("output", out.Path))
	if err != nil {
		return hydro.Raster{}, err
	}
	return out, nil
}

// Release deletes a scratch raster with its sidecar files and forgets its
// lineage. Rasters outside the scratch directory are left alone.
func (e *Engine) Release(_ context.Context, r hydro.Raster) error {
	e.mu.Lock()
	delete(e.lineage, r.ID)
	e.mu.Unlock()

	if r.Op == hydro.OpSource || r.Path == "" || filepath.Dir(r.Path) != filepath.Clean(e.cfg.ScratchDir) {
		return nil
	}
	return removeScratch(r.Path)
}

// removeScratch deletes path and every file sharing its base name, such as
// the .shx and .dbf of a shapefile.
func removeScratch(path string) error {
	matches, err := filepath.Glob(strings.TrimSuffix(path, filepath.Ext(path)) + ".*")
	if err != nil {
		return err
	}
	var errs []error
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) tool(ctx context.Context, name string, args ...string) ([]byte, error) {
	if e.cfg.ToolTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ToolTimeout)
		defer cancel()
	}
	argv := append([]string{"--run=" + name}, args...)
	out, err := e.run.Run(ctx, e.cfg.Binary, argv...)
	if err != nil {
		return out, fmt.Errorf("whitebox %s: %w", name, err)
	}
	return out, nil
}

// output names a fresh scratch raster for op. IDs are unique per run.
func (e *Engine) output(op string, params map[string]string, inputs ...hydro.Raster) hydro.Raster {
	r := hydro.Derive(op, params, inputs...)
	r.ID = strings.ToLower(op) + "_" + uuid.NewString()
	r.Path = filepath.Join(e.cfg.ScratchDir, r.ID+hydro.RasterExt)
	return r
}

func (e *Engine) remember(pointer, dem hydro.Raster) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lineage[pointer.ID] = dem
}

func (e *Engine) demOf(pointer hydro.Raster) (hydro.Raster, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	dem, ok := e.lineage[pointer.ID]
	if !ok {
		return hydro.Raster{}, fmt.Errorf("no DEM recorded for flow direction %s", pointer.ID)
	}
	return dem, nil
}

func arg(name, value string) string {
	return "--" + name + "=" + value
}
