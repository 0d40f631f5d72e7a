// Package engine provides the API-primary terrain build engine.
// CLI is a thin wrapper around this engine.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"terrain-build/core/area"
	"terrain-build/core/build"
	"terrain-build/core/catalog"
	"terrain-build/core/elevation"
	"terrain-build/core/geometry"
	"terrain-build/core/progress"
	"terrain-build/core/scratch"
	"terrain-build/core/source"
	"terrain-build/internal/config"
	"terrain-build/internal/errors"
)

// Engine is the primary API for terrain builds.
// All other interfaces (CLI, tests) are thin wrappers.
type Engine struct {
	registry *build.Registry
	catalog  *catalog.Catalog
	config   *config.Config
	logger   *zap.Logger
}

// NewEngine creates an engine over the full stage catalog
func NewEngine(cfg *config.Config, raw elevation.Source, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		return nil, errors.Input("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	reg, cat, err := catalog.New(catalog.Options{
		Roads:     cfg.Roads,
		Elevation: raw,
		SaveMasks: cfg.Output.SaveMasks,
	})
	if err != nil {
		return nil, err
	}
	return &Engine{registry: reg, catalog: cat, config: cfg, logger: logger}, nil
}

// Registry returns the stage registry
func (e *Engine) Registry() *build.Registry { return e.registry }

// Catalog returns the stage catalog
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// BuildRequest is the input to a build
type BuildRequest struct {
	// REQUIRED: vector survey data
	Source source.VectorSource

	// Optional: progress root, a zap-backed scope when nil
	Progress progress.Scope

	// Optional: scratch storage, in memory when nil
	Scratch scratch.Storage

	// SkipLayers builds the elevation only
	SkipLayers bool
}

// BuildResult is the output of a build
type BuildResult struct {
	// RunID identifies the build in logs
	RunID string

	// Area is the built area
	Area area.TerrainArea

	// Elevation is the corrected elevation
	Elevation *elevation.Data

	// Layers are the polygon layers, ordered by kind
	Layers []geometry.PolygonLayer

	// Stats describes every stage that ran
	Stats build.Stats

	// Phases records how long each phase took
	Phases []PhaseTiming

	// Scratch holds the images kept by the stages
	Scratch scratch.Storage

	// Timing
	BuiltAt  time.Time
	Duration time.Duration
}

// Build runs the pipeline once. Every stage runs at most once; the elevation
// and the polygon layers are requested concurrently.
func (e *Engine) Build(ctx context.Context, req *BuildRequest) (*BuildResult, error) {
	start := time.Now()

	if req == nil || req.Source == nil {
		return nil, errors.Input("vector source is required")
	}

	tracker := NewPhaseTracker()
	if err := tracker.Advance(PhaseConfigured); err != nil {
		return nil, err
	}

	storage := req.Scratch
	if storage == nil {
		storage = scratch.NewMemoryStorage()
	}
	a := area.FromConfig(e.config.Area)
	opts := []build.ContextOption{
		build.WithArea(a),
		build.WithSource(req.Source),
		build.WithOptions(e.config.Processing),
		build.WithScratch(storage),
		build.WithLogger(e.logger),
	}
	if req.Progress != nil {
		opts = append(opts, build.WithProgress(req.Progress))
	}
	bc := build.NewContext(e.registry, opts...)
	// scratch storage outlives the context so that callers can export masks
	defer bc.Cancel()

	logger := bc.Logger()
	logger.Info("build started",
		zap.Int("grid_size", a.GridSize),
		zap.Float64("cell_size", a.CellSize),
		zap.Int("kinds", e.registry.Len()))

	result := &BuildResult{RunID: bc.RunID(), Area: a, Scratch: storage, BuiltAt: start.UTC()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		data, err := build.Get(gctx, bc, elevation.Key)
		if err != nil {
			return err
		}
		result.Elevation = data
		return nil
	})
	if !req.SkipLayers {
		g.Go(func() error {
			layers, err := build.OfType[geometry.PolygonLayer](gctx, bc)
			if err != nil {
				return err
			}
			result.Layers = layers
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		tracker.Fail(err)
		logger.Error("build failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		return nil, err
	}
	if err := tracker.Advance(PhaseBuilt); err != nil {
		return nil, err
	}

	result.Stats = bc.Stats()
	if err := tracker.Advance(PhaseComplete); err != nil {
		return nil, err
	}
	result.Phases = tracker.Timings()
	result.Duration = time.Since(start)

	logger.Info("build finished",
		zap.Int("stages", result.Stats.Invocations),
		zap.Int("layers", len(result.Layers)),
		zap.Duration("duration", result.Duration))
	return result, nil
}
