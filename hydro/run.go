package hydro

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Output is a raster persisted by a pipeline run. Raster is the engine
// handle it was copied from; its scratch data is released when the run ends.
type Output struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Raster Raster `json:"-"`
}

// Registration reports what happened when outputs were added to the map.
type Registration struct {
	Registered []string `json:"registered,omitempty"`
	Failed     []string `json:"failed,omitempty"`
	Errors     []error  `json:"-"`
}

// run tracks the outputs of one pipeline invocation.
type run struct {
	id        string
	deps      Deps
	workspace string
	log       *zap.SugaredLogger
	outputs   []Output
	scratch   *scratch
}

// scratch collects engine intermediates so they can be released together.
type scratch struct {
	eng     Engine
	seen    map[string]bool
	rasters []Raster
}

func newScratch(eng Engine) *scratch {
	return &scratch{eng: eng, seen: make(map[string]bool)}
}

func (s *scratch) keep(r Raster) Raster {
	if r.ID != "" && !s.seen[r.ID] {
		s.seen[r.ID] = true
		s.rasters = append(s.rasters, r)
	}
	return r
}

// release frees kept rasters newest first, even when ctx is done.
func (s *scratch) release(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(s.rasters) - 1; i >= 0; i-- {
		if err := s.eng.Release(ctx, s.rasters[i]); err != nil {
			errs = append(errs, fmt.Errorf("release %s: %w", s.rasters[i].ID, err))
		}
	}
	s.rasters = nil
	s.seen = make(map[string]bool)
	return errors.Join(errs...)
}

func newRun(deps Deps, pipeline, workspace string) *run {
	id := uuid.NewString()
	return &run{
		id:        id,
		deps:      deps,
		workspace: workspace,
		log:       deps.logger().With("pipeline", pipeline, "run", id),
		scratch:   newScratch(deps.Engine),
	}
}

// finish releases every intermediate of the run. Persisted outputs are
// copies, so their scratch data goes too.
func (r *run) finish(ctx context.Context) {
	if err := r.scratch.release(ctx); err != nil {
		r.log.Warnw("failed to release scratch rasters", "error", err)
	}
}

func (r *run) persist(ctx context.Context, name string, ras Raster) error {
	path, err := ConstructPath(ctx, r.deps.Workspaces, r.workspace, name)
	if err != nil {
		return r.fail(ctx, "persist "+name, err)
	}
	if err := r.deps.Workspaces.Persist(ctx, ras, path); err != nil {
		return r.fail(ctx, "persist "+name, err)
	}
	r.outputs = append(r.outputs, Output{Name: name, Path: path, Raster: ras})
	r.log.Debugw("persisted output", "name", name, "path", path)
	return nil
}

// step runs one derivation, stopping early if ctx is already done.
func step[T any](ctx context.Context, r *run, name string, fn func() (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, r.fail(ctx, name, err)
	}
	r.log.Debugw("running step", "step", name)
	v, err := fn()
	if err != nil {
		return zero, r.fail(ctx, name, err)
	}
	if ras, ok := any(v).(Raster); ok {
		r.scratch.keep(ras)
	}
	return v, nil
}

// fail wraps err as a StepError and applies the failure policy to outputs
// already persisted by this run.
func (r *run) fail(ctx context.Context, name string, err error) error {
	serr := &StepError{Step: name, Err: err}
	r.log.Errorw("pipeline step failed", "step", name, "error", err, "persisted", len(r.outputs))
	if r.deps.Policy != RollbackPartial || len(r.outputs) == 0 {
		return serr
	}

	ctx = context.WithoutCancel(ctx)
	errs := []error{serr}
	for i := len(r.outputs) - 1; i >= 0; i-- {
		out := r.outputs[i]
		if rerr := r.deps.Workspaces.Remove(ctx, out.Path); rerr != nil {
			errs = append(errs, fmt.Errorf("rollback %s: %w", out.Path, rerr))
			continue
		}
		r.log.Debugw("rolled back output", "path", out.Path)
	}
	r.outputs = nil
	return errors.Join(errs...)
}

// register adds every persisted output to the map. Each registration is
// independent; a failure is recorded and the rest still run.
func (r *run) register(ctx context.Context) Registration {
	var reg Registration
	if r.deps.Registrar == nil {
		r.log.Warnw("add to map requested without a registrar")
		return reg
	}
	for _, out := range r.outputs {
		if err := r.deps.Registrar.Register(ctx, out.Path); err != nil {
			r.log.Warnw("failed to add output to map", "path", out.Path, "error", err)
			reg.Failed = append(reg.Failed, out.Path)
			reg.Errors = append(reg.Errors, err)
			continue
		}
		reg.Registered = append(reg.Registered, out.Path)
	}
	return reg
}
