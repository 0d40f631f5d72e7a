// Package geometry - Planar geometry in terrain coordinates (meters)
// Points and envelopes come from golang/geo r2; polygon containment, distance
// and outline extraction are backed by model2d meshes and solids.
package geometry

import (
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"
	"github.com/unixpickle/model3d/model2d"
)

// Point is a position in terrain coordinates
type Point = r2.Point

// Rect is an axis-aligned envelope
type Rect = r2.Rect

// Epsilon is the distance under which two points are considered equal
const Epsilon = 1e-9

// Pt creates a point
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// NewRect creates the envelope spanning min and max
func NewRect(min, max Point) Rect {
	return Rect{X: r1.Interval{Lo: min.X, Hi: max.X}, Y: r1.Interval{Lo: min.Y, Hi: max.Y}}
}

// Distance returns the euclidean distance between a and b
func Distance(a, b Point) float64 {
	return a.Sub(b).Norm()
}

// Lerp returns the point at fraction t from a to b
func Lerp(a, b Point, t float64) Point {
	return a.Add(b.Sub(a).Mul(t))
}

// SegmentDistance returns the distance from p to the segment ab
func SegmentDistance(p, a, b Point) float64 {
	ab := b.Sub(a)
	length2 := ab.Dot(ab)
	if length2 < Epsilon {
		return Distance(p, a)
	}
	t := math.Max(0, math.Min(1, p.Sub(a).Dot(ab)/length2))
	return Distance(p, Lerp(a, b, t))
}

// segmentIntersection returns the parameter along ab where it crosses cd
func segmentIntersection(a, b, c, d Point) (float64, bool) {
	r := b.Sub(a)
	s := d.Sub(c)
	denom := r.Cross(s)
	if math.Abs(denom) < Epsilon {
		return 0, false
	}
	qp := c.Sub(a)
	t := qp.Cross(s) / denom
	u := qp.Cross(r) / denom
	if t < 0 || t > 1 || u < 0 || u > 1 {
		return 0, false
	}
	return t, true
}

// envelope returns the bounding box of points
func envelope(points []Point) Rect {
	if len(points) == 0 {
		return r2.EmptyRect()
	}
	return r2.RectFromPoints(points...)
}

func toCoord(p Point) model2d.Coord {
	return model2d.XY(p.X, p.Y)
}

func fromCoord(c model2d.Coord) Point {
	return Point{X: c.X, Y: c.Y}
}
