// Package area - The terrain area being built
package area

import (
	"terrain-build/core/geometry"
	"terrain-build/core/raster"
	"terrain-build/internal/config"
)

// TerrainArea is a square grid of GridSize x GridSize nodes spaced CellSize apart
type TerrainArea struct {
	Origin   geometry.Point
	CellSize float64
	GridSize int
}

// New creates an area
func New(origin geometry.Point, cellSize float64, gridSize int) TerrainArea {
	return TerrainArea{Origin: origin, CellSize: cellSize, GridSize: gridSize}
}

// FromConfig creates the area described by cfg
func FromConfig(cfg config.AreaConfig) TerrainArea {
	return New(geometry.Pt(cfg.OriginX, cfg.OriginY), cfg.CellSize, cfg.GridSize)
}

// SizeInMeters returns the distance between the first and the last node along an axis
func (a TerrainArea) SizeInMeters() float64 {
	return float64(a.GridSize-1) * a.CellSize
}

// Bounds returns the terrain envelope of the area
func (a TerrainArea) Bounds() geometry.Rect {
	size := a.SizeInMeters()
	return geometry.NewRect(a.Origin, geometry.Pt(a.Origin.X+size, a.Origin.Y+size))
}

// ToTerrain returns the terrain position of node (x, y)
func (a TerrainArea) ToTerrain(x, y int) geometry.Point {
	return geometry.Pt(a.Origin.X+float64(x)*a.CellSize, a.Origin.Y+float64(y)*a.CellSize)
}

// NewGrid creates a zeroed grid matching the area
func (a TerrainArea) NewGrid() *raster.Grid {
	return raster.New(a.GridSize, a.GridSize, a.CellSize, a.Origin)
}

// Matches reports whether g has the shape of the area
func (a TerrainArea) Matches(g *raster.Grid) bool {
	return g.Width == a.GridSize && g.Height == a.GridSize && g.CellSize == a.CellSize && g.Origin == a.Origin
}

// ClipPaths clips paths to the area, dropping what falls outside
func (a TerrainArea) ClipPaths(paths ...*geometry.Path) []*geometry.Path {
	bounds := a.Bounds()
	var out []*geometry.Path
	for _, p := range paths {
		out = append(out, p.ClipToRect(bounds)...)
	}
	return out
}

// ClipPolygons clips polygons to the area, dropping what falls outside
func (a TerrainArea) ClipPolygons(polygons ...*geometry.Polygon) []*geometry.Polygon {
	bounds := a.Bounds()
	var out []*geometry.Polygon
	for _, p := range polygons {
		if clipped := p.ClipToRect(bounds); clipped != nil {
			out = append(out, clipped)
		}
	}
	return out
}
