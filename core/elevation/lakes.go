package elevation

import (
	"context"
	"fmt"
	"math"

	"github.com/fogleman/gg"
	"go.uber.org/zap"

	"terrain-build/core/geometry"
	"terrain-build/core/progress"
	"terrain-build/core/raster"
	"terrain-build/core/scratch"
	"terrain-build/internal/config"
)

// LakeWithElevation is a carved lake and the elevation of its rim
type LakeWithElevation struct {
	Polygon         *geometry.Polygon
	BorderElevation float64
}

// Carver lowers lake basins into a raster
type Carver struct {
	Options *config.Processing
	Scratch scratch.Storage

	// KeepMasks leaves the lake masks in scratch storage
	KeepMasks bool

	Logger *zap.Logger
}

// NewCarver creates a carver with in-memory scratch storage
func NewCarver(opts *config.Processing) *Carver {
	return &Carver{Options: opts, Scratch: scratch.NewMemoryStorage(), Logger: zap.NewNop()}
}

// Accept reports whether a polygon is large enough to be a real lake on grid
func (c *Carver) Accept(grid *raster.Grid, polygon *geometry.Polygon) bool {
	cell := grid.CellSize
	minSide := c.Options.MinLakeCells * cell
	if polygon.Area() < minSide*minSide {
		return false
	}
	if c.Options.LakeInsetCells > 0 {
		inset := polygon.InsetArea(c.Options.LakeInsetCells*cell, c.Options.GeometryResolution)
		if inset < cell*cell {
			return false
		}
	}
	return true
}

// BorderElevation returns the lowest elevation of grid along the shell of polygon
func BorderElevation(grid *raster.Grid, polygon *geometry.Polygon, step float64) float64 {
	ring := append(append([]geometry.Point(nil), polygon.Shell...), polygon.Shell[0])
	border := math.Inf(1)
	for _, p := range geometry.NewPath(ring...).Resample(step) {
		border = math.Min(border, grid.ElevationAt(p))
	}
	return border
}

// Drop returns how far below the border a lake bed at the given distance from shore lies
func (c *Carver) Drop(depth float64) float64 {
	shallow, deep := c.Options.BasinShallowDepth, c.Options.BasinDeepDepth
	switch {
	case depth <= shallow:
		return 0
	case depth >= deep:
		return c.Options.BasinDrop
	default:
		return c.Options.BasinDrop * (depth - shallow) / (deep - shallow)
	}
}

// CarveLakes carves every accepted polygon into grid, in order, and returns the carved lakes.
// Rejected polygons are skipped silently.
func (c *Carver) CarveLakes(ctx context.Context, grid *raster.Grid, polygons []*geometry.Polygon, step progress.Step) ([]LakeWithElevation, error) {
	var lakes []LakeWithElevation
	for i, polygon := range polygons {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step.ReportOneDone()
		if len(polygon.Shell) < 3 || !c.Accept(grid, polygon) {
			c.Logger.Debug("lake too small", zap.Int("lake", i), zap.Float64("area", polygon.Area()))
			continue
		}
		lake := LakeWithElevation{
			Polygon:         polygon,
			BorderElevation: BorderElevation(grid, polygon, c.Options.ResampleStep),
		}
		if err := c.CarveLake(ctx, grid, lake, fmt.Sprintf("lakes/%04d", i)); err != nil {
			return nil, err
		}
		lakes = append(lakes, lake)
	}
	return lakes, nil
}

// CarveLake sets every node of grid inside the lake to the border elevation minus the basin drop.
// The lake is rasterised into the scratch image name, one pixel per node.
func (c *Carver) CarveLake(ctx context.Context, grid *raster.Grid, lake LakeWithElevation, name string) error {
	env := lake.Polygon.Envelope()
	gx0, gy0 := grid.ToGrid(env.Lo())
	gx1, gy1 := grid.ToGrid(env.Hi())
	x0 := max(0, int(math.Ceil(gx0)))
	y0 := max(0, int(math.Ceil(gy0)))
	x1 := min(grid.Width-1, int(math.Floor(gx1)))
	y1 := min(grid.Height-1, int(math.Floor(gy1)))
	if x1 < x0 || y1 < y0 {
		return nil
	}

	width, height := x1-x0+1, y1-y0+1
	mask := c.Scratch.NewImage(name, width, height)
	if !c.KeepMasks {
		defer c.Scratch.Release(name)
	}

	toPixel := func(p geometry.Point) (float64, float64) {
		gx, gy := grid.ToGrid(p)
		return gx - float64(x0) + 0.5, gy - float64(y0) + 0.5
	}
	dc := gg.NewContextForRGBA(mask)
	dc.SetRGBA(1, 1, 1, 1)
	for _, ring := range lake.Polygon.Rings() {
		dc.NewSubPath()
		for i, p := range ring {
			px, py := toPixel(p)
			if i == 0 {
				dc.MoveTo(px, py)
			} else {
				dc.LineTo(px, py)
			}
		}
		dc.ClosePath()
	}
	dc.SetFillRuleEvenOdd()
	dc.Fill()

	return raster.ForEachRow(ctx, height, c.Options.Workers, func(iy int) error {
		y := y0 + iy
		for ix := 0; ix < width; ix++ {
			if mask.RGBAAt(ix, iy).A < 128 {
				continue
			}
			x := x0 + ix
			depth := lake.Polygon.SignedDistance(grid.ToTerrain(x, y))
			grid.Set(x, y, float32(lake.BorderElevation-c.Drop(math.Max(0, depth))))
		}
		return nil
	})
}
