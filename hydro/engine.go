package hydro

import (
	"context"

	"go.uber.org/zap"
)

// SpatialAnalysis is the capability every pipeline requires from the engine.
const SpatialAnalysis = "spatial"

// ValueField is the zone/point field handed to zonal, snap and watershed calls.
const ValueField = "Value"

// FlowLengthMode selects the direction flow paths are measured in.
type FlowLengthMode string

const (
	Upstream   FlowLengthMode = "upstream"
	Downstream FlowLengthMode = "downstream"
)

// ZonalResult is the output of a zonal mean together with its scalar summary
// (the mean over all cells of the zonal raster).
type ZonalResult struct {
	Raster Raster
	Mean   float64
}

// Engine is the external raster-processing collaborator. Every hydrological
// algorithm lives behind it; implementations block until the result exists.
type Engine interface {
	CheckCapability(ctx context.Context, name string) (bool, error)

	FlowDirection(ctx context.Context, dem Raster) (Raster, error)
	// Fill fills sinks; a nil threshold fills without limit.
	Fill(ctx context.Context, dem Raster, threshold *float64) (Raster, error)
	FlowAccumulation(ctx context.Context, flowdir Raster) (Raster, error)
	Sink(ctx context.Context, flowdir Raster) (Raster, error)
	Minus(ctx context.Context, a, b Raster) (Raster, error)
	ZonalMean(ctx context.Context, zones Raster, field string, values Raster) (ZonalResult, error)

	DeriveStreamRaster(ctx context.Context, dem Raster) (Raster, error)
	FlowDistance(ctx context.Context, stream, dem, flowdir Raster) (Raster, error)
	FlowLength(ctx context.Context, flowdir Raster, mode FlowLengthMode) (Raster, error)
	StreamLink(ctx context.Context, stream, flowdir Raster) (Raster, error)
	StreamOrder(ctx context.Context, stream, flowdir Raster) (Raster, error)

	SnapPourPoint(ctx context.Context, points, accumulation Raster, distance float64, field string) (Raster, error)
	Watershed(ctx context.Context, flowdir, points Raster, field string) (Raster, error)

	// Release frees the data behind a raster the engine produced. Input
	// rasters are never touched.
	Release(ctx context.Context, r Raster) error
}

// WorkspaceInfo describes an output container.
type WorkspaceInfo struct {
	IsFileSystem bool
}

// Workspaces persists rasters into output containers.
type Workspaces interface {
	Describe(ctx context.Context, container string) (WorkspaceInfo, error)
	Persist(ctx context.Context, r Raster, path string) error
	Remove(ctx context.Context, path string) error
}

// Registrar adds a persisted output to the active map view.
type Registrar interface {
	Register(ctx context.Context, path string) error
}

// FailurePolicy decides what happens to outputs already persisted when a
// later step of the same run fails.
type FailurePolicy int

const (
	// KeepPartial leaves earlier outputs in place.
	KeepPartial FailurePolicy = iota
	// RollbackPartial removes every output persisted by the failed run.
	RollbackPartial
)

func (p FailurePolicy) String() string {
	switch p {
	case RollbackPartial:
		return "rollback"
	default:
		return "keep"
	}
}

// ParseFailurePolicy accepts "keep" or "rollback".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "", "keep":
		return KeepPartial, nil
	case "rollback":
		return RollbackPartial, nil
	}
	return KeepPartial, &FieldError{Field: "failure_policy", Message: "must be keep or rollback"}
}

// Deps are the collaborators a pipeline run needs. Registrar may be nil when
// outputs are never added to a map.
type Deps struct {
	Engine     Engine
	Workspaces Workspaces
	Registrar  Registrar
	Policy     FailurePolicy
	Logger     *zap.SugaredLogger
}

func (d Deps) logger() *zap.SugaredLogger {
	if d.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return d.Logger
}
