// Package raster - Dense elevation grids
// Values are stored row-major; row 0 is at the grid origin.
package raster

import (
	"context"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"terrain-build/core/geometry"
)

// Grid is a dense grid of elevations sampled at node positions
type Grid struct {
	Width    int
	Height   int
	CellSize float64
	Origin   geometry.Point
	Values   []float32
}

// New creates a zeroed grid
func New(width, height int, cellSize float64, origin geometry.Point) *Grid {
	return &Grid{
		Width:    width,
		Height:   height,
		CellSize: cellSize,
		Origin:   origin,
		Values:   make([]float32, width*height),
	}
}

// Index returns the offset of node (x, y) in Values
func (g *Grid) Index(x, y int) int {
	return y*g.Width + x
}

// At returns the elevation of node (x, y)
func (g *Grid) At(x, y int) float32 {
	return g.Values[g.Index(x, y)]
}

// Set sets the elevation of node (x, y)
func (g *Grid) Set(x, y int, v float32) {
	g.Values[g.Index(x, y)] = v
}

// Clone returns a deep copy of the grid
func (g *Grid) Clone() *Grid {
	out := *g
	out.Values = append([]float32(nil), g.Values...)
	return &out
}

// SameShape reports whether both grids have the same size, cell size and origin
func (g *Grid) SameShape(other *Grid) bool {
	return g.Width == other.Width && g.Height == other.Height &&
		g.CellSize == other.CellSize && g.Origin == other.Origin
}

// ToTerrain returns the terrain position of node (x, y)
func (g *Grid) ToTerrain(x, y int) geometry.Point {
	return geometry.Pt(g.Origin.X+float64(x)*g.CellSize, g.Origin.Y+float64(y)*g.CellSize)
}

// ToGrid returns the fractional grid coordinates of a terrain position
func (g *Grid) ToGrid(p geometry.Point) (float64, float64) {
	return (p.X - g.Origin.X) / g.CellSize, (p.Y - g.Origin.Y) / g.CellSize
}

// Nearest returns the node closest to p, clamped to the grid
func (g *Grid) Nearest(p geometry.Point) (int, int) {
	gx, gy := g.ToGrid(p)
	return clamp(int(math.Round(gx)), g.Width-1), clamp(int(math.Round(gy)), g.Height-1)
}

// Bounds returns the terrain envelope covered by the nodes
func (g *Grid) Bounds() geometry.Rect {
	return geometry.NewRect(g.Origin, g.ToTerrain(g.Width-1, g.Height-1))
}

// ElevationAt interpolates the elevation at p over the triangle of the cell containing it.
// Positions outside the grid are clamped to its border.
func (g *Grid) ElevationAt(p geometry.Point) float64 {
	gx, gy := g.ToGrid(p)
	gx = math.Max(0, math.Min(float64(g.Width-1), gx))
	gy = math.Max(0, math.Min(float64(g.Height-1), gy))

	if g.Width < 2 || g.Height < 2 {
		x, y := clamp(int(math.Round(gx)), g.Width-1), clamp(int(math.Round(gy)), g.Height-1)
		return float64(g.At(x, y))
	}
	x0 := clamp(int(math.Floor(gx)), g.Width-2)
	y0 := clamp(int(math.Floor(gy)), g.Height-2)
	fx := gx - float64(x0)
	fy := gy - float64(y0)

	z00 := float64(g.At(x0, y0))
	z10 := float64(g.At(x0+1, y0))
	z01 := float64(g.At(x0, y0+1))
	z11 := float64(g.At(x0+1, y0+1))

	// the cell is split along the diagonal from (x0, y0) to (x0+1, y0+1)
	if fx >= fy {
		return z00 + (z10-z00)*fx + (z11-z10)*fy
	}
	return z00 + (z01-z00)*fy + (z11-z01)*fx
}

func clamp(v, max int) int {
	if v < 0 {
		return 0
	}
	if v > max {
		return max
	}
	return v
}

// ForEachRow calls fn for every row index using at most workers goroutines.
// workers <= 0 means GOMAXPROCS. The first error cancels the remaining rows.
func ForEachRow(ctx context.Context, height, workers int, fn func(y int) error) error {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for y := 0; y < height; y++ {
		y := y
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(y)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// Sample fills a grid by evaluating fn at every node position, row-parallel
func Sample(ctx context.Context, width, height int, cellSize float64, origin geometry.Point, workers int, fn func(p geometry.Point) float64) (*Grid, error) {
	g := New(width, height, cellSize, origin)
	err := ForEachRow(ctx, height, workers, func(y int) error {
		for x := 0; x < width; x++ {
			g.Set(x, y, float32(fn(g.ToTerrain(x, y))))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return g, nil
}

// Stats returns the minimum, maximum and mean elevation
func (g *Grid) Stats() (min, max, mean float64) {
	if len(g.Values) == 0 {
		return 0, 0, 0
	}
	min, max = math.Inf(1), math.Inf(-1)
	var sum float64
	for _, v := range g.Values {
		f := float64(v)
		min = math.Min(min, f)
		max = math.Max(max, f)
		sum += f
	}
	return min, max, sum / float64(len(g.Values))
}
