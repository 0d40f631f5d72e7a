// Package elevation - Raw elevation input and the constrained elevation solver
// The solver corrects the raw survey raster so that it agrees with lakes,
// roads and waterways before the result is handed to exporters.
package elevation

import (
	"context"

	"go.uber.org/zap"

	"terrain-build/core/build"
	"terrain-build/core/progress"
	"terrain-build/core/raster"
	"terrain-build/internal/errors"
)

// RawData is the survey elevation raster sampled on the area grid
type RawData struct {
	Grid *raster.Grid
}

// Source loads a raw elevation raster
type Source interface {
	Load(ctx context.Context) (*raster.Grid, error)
}

// GridSource is a Source over an in-memory raster
type GridSource struct {
	Grid *raster.Grid
}

// Load implements Source
func (s GridSource) Load(ctx context.Context) (*raster.Grid, error) {
	if s.Grid == nil {
		return nil, errors.Input("no elevation raster")
	}
	return s.Grid, nil
}

// RawKey is the data kind of the raw elevation
var RawKey = build.NewKey[*RawData]("RawElevation")

// RawBuilder loads the raw raster and resamples it onto the area grid when its shape differs
type RawBuilder struct {
	Source Source
}

// Produce implements build.Stage
func (b RawBuilder) Produce(ctx context.Context, bc *build.Context, scope progress.Scope) (*RawData, error) {
	if b.Source == nil {
		return nil, errors.New(errors.TypeConfig, "no elevation source configured")
	}
	grid, err := b.Source.Load(ctx)
	if err != nil {
		return nil, err
	}

	a := bc.Area()
	if a.GridSize == 0 || a.Matches(grid) {
		return &RawData{Grid: grid}, nil
	}

	bc.Logger().Info("resampling raw elevation onto the area grid",
		zap.Int("source_width", grid.Width),
		zap.Int("source_height", grid.Height),
		zap.Int("grid_size", a.GridSize))

	step := scope.CreateStep("Resample", a.GridSize)
	defer step.Close()
	resampled, err := raster.Sample(ctx, a.GridSize, a.GridSize, a.CellSize, a.Origin, bc.Options().Workers, grid.ElevationAt)
	if err != nil {
		return nil, err
	}
	step.ReportItemsDone(a.GridSize)
	return &RawData{Grid: resampled}, nil
}
