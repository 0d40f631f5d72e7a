package geometry

import (
	"math"
	"sync"

	"github.com/unixpickle/model3d/model2d"
)

// Polygon is a simple polygon with optional holes.
// Rings are stored open (the first point is not repeated at the end).
// A polygon must not be copied after first use.
type Polygon struct {
	Shell []Point
	Holes [][]Point

	once  sync.Once
	solid model2d.Solid
	sdf   model2d.SDF
	env   Rect
}

// NewPolygon creates a polygon from a shell and holes
func NewPolygon(shell []Point, holes ...[]Point) *Polygon {
	p := &Polygon{Shell: openRing(shell)}
	for _, hole := range holes {
		if hole = openRing(hole); len(hole) >= 3 {
			p.Holes = append(p.Holes, hole)
		}
	}
	return p
}

// NewRectPolygon creates the polygon covering rect
func NewRectPolygon(rect Rect) *Polygon {
	return NewPolygon([]Point{
		{X: rect.X.Lo, Y: rect.Y.Lo},
		{X: rect.X.Hi, Y: rect.Y.Lo},
		{X: rect.X.Hi, Y: rect.Y.Hi},
		{X: rect.X.Lo, Y: rect.Y.Hi},
	})
}

func openRing(ring []Point) []Point {
	out := append([]Point(nil), ring...)
	if n := len(out); n > 1 && Distance(out[0], out[n-1]) < Epsilon {
		out = out[:n-1]
	}
	return out
}

// Rings returns the shell followed by the holes
func (p *Polygon) Rings() [][]Point {
	return append([][]Point{p.Shell}, p.Holes...)
}

func (p *Polygon) init() {
	p.once.Do(func() {
		p.env = envelope(p.Shell)
		if len(p.Shell) < 3 {
			return
		}
		mesh := model2d.NewMesh()
		for _, ring := range p.Rings() {
			for i := range ring {
				a, b := ring[i], ring[(i+1)%len(ring)]
				if Distance(a, b) < Epsilon {
					continue
				}
				mesh.Add(&model2d.Segment{toCoord(a), toCoord(b)})
			}
		}
		p.solid = model2d.NewColliderSolid(model2d.MeshToCollider(mesh))
		p.sdf = model2d.MeshToSDF(mesh)
	})
}

// Envelope returns the bounding box of the shell
func (p *Polygon) Envelope() Rect {
	p.init()
	return p.env
}

// Contains reports whether pt is inside the shell and outside every hole
func (p *Polygon) Contains(pt Point) bool {
	p.init()
	if p.solid == nil || !p.env.ContainsPoint(pt) {
		return false
	}
	return p.solid.Contains(toCoord(pt))
}

// Distance returns the distance from pt to the polygon boundary
func (p *Polygon) Distance(pt Point) float64 {
	p.init()
	if p.sdf == nil {
		return NewPath(p.Shell...).Distance(pt)
	}
	return math.Abs(p.sdf.SDF(toCoord(pt)))
}

// SignedDistance returns the distance to the boundary, positive inside
func (p *Polygon) SignedDistance(pt Point) float64 {
	d := p.Distance(pt)
	if p.Contains(pt) {
		return d
	}
	return -d
}

// Area returns the area of the shell minus the holes
func (p *Polygon) Area() float64 {
	area := math.Abs(ringArea(p.Shell))
	for _, hole := range p.Holes {
		area -= math.Abs(ringArea(hole))
	}
	return math.Max(0, area)
}

// ringArea returns the signed shoelace area of ring
func ringArea(ring []Point) float64 {
	var sum float64
	for i := range ring {
		sum += ring[i].Cross(ring[(i+1)%len(ring)])
	}
	return sum / 2
}

// Offset buffers the polygon outward by d, or insets it when d is negative.
// The outline is traced at the given resolution.
func (p *Polygon) Offset(d, resolution float64) []*Polygon {
	return Outline(Buffer(p, d), resolution)
}

// InsetArea returns the area left after insetting the polygon by d
func (p *Polygon) InsetArea(d, resolution float64) float64 {
	var area float64
	for _, inset := range p.Offset(-d, resolution) {
		area += inset.Area()
	}
	return area
}

// InnerCrown returns the band of width w inside the polygon boundary
func (p *Polygon) InnerCrown(w, resolution float64) []*Polygon {
	return Outline(Crown(p, w), resolution)
}

// ClipToRect clips the polygon to rect, returning nil when nothing is left
func (p *Polygon) ClipToRect(rect Rect) *Polygon {
	if !p.Envelope().Intersects(rect) {
		return nil
	}
	if rect.Contains(p.Envelope()) {
		return NewPolygon(p.Shell, p.Holes...)
	}
	shell := clipRing(p.Shell, rect)
	if len(shell) < 3 || math.Abs(ringArea(shell)) < Epsilon {
		return nil
	}
	var holes [][]Point
	for _, hole := range p.Holes {
		if clipped := clipRing(hole, rect); len(clipped) >= 3 && math.Abs(ringArea(clipped)) > Epsilon {
			holes = append(holes, clipped)
		}
	}
	return NewPolygon(shell, holes...)
}

// clipRing clips a ring against rect (Sutherland-Hodgman)
func clipRing(ring []Point, rect Rect) []Point {
	type edge struct {
		inside func(Point) bool
		cross  func(a, b Point) Point
	}
	atX := func(x float64) func(a, b Point) Point {
		return func(a, b Point) Point { return Lerp(a, b, (x-a.X)/(b.X-a.X)) }
	}
	atY := func(y float64) func(a, b Point) Point {
		return func(a, b Point) Point { return Lerp(a, b, (y-a.Y)/(b.Y-a.Y)) }
	}
	edges := []edge{
		{func(q Point) bool { return q.X >= rect.X.Lo }, atX(rect.X.Lo)},
		{func(q Point) bool { return q.X <= rect.X.Hi }, atX(rect.X.Hi)},
		{func(q Point) bool { return q.Y >= rect.Y.Lo }, atY(rect.Y.Lo)},
		{func(q Point) bool { return q.Y <= rect.Y.Hi }, atY(rect.Y.Hi)},
	}

	out := ring
	for _, e := range edges {
		if len(out) == 0 {
			return nil
		}
		in := out
		out = nil
		prev := in[len(in)-1]
		for _, cur := range in {
			switch {
			case e.inside(cur):
				if !e.inside(prev) {
					out = append(out, e.cross(prev, cur))
				}
				out = append(out, cur)
			case e.inside(prev):
				out = append(out, e.cross(prev, cur))
			}
			prev = cur
		}
	}
	return out
}

// Intersects reports whether the two polygons overlap
func (p *Polygon) Intersects(other *Polygon) bool {
	if !p.Envelope().Intersects(other.Envelope()) {
		return false
	}
	for _, pt := range other.Shell {
		if p.Contains(pt) {
			return true
		}
	}
	for _, pt := range p.Shell {
		if other.Contains(pt) {
			return true
		}
	}
	for _, a := range p.Rings() {
		for i := range a {
			for _, b := range other.Rings() {
				for j := range b {
					if _, ok := segmentIntersection(a[i], a[(i+1)%len(a)], b[j], b[(j+1)%len(b)]); ok {
						return true
					}
				}
			}
		}
	}
	return false
}

// MergeAll unions overlapping polygons. Polygons that overlap nothing are returned as is.
func MergeAll(polygons []*Polygon, resolution float64) []*Polygon {
	parent := make([]int, len(polygons))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if parent[i] != i {
			parent[i] = find(parent[i])
		}
		return parent[i]
	}
	for i := range polygons {
		for j := i + 1; j < len(polygons); j++ {
			if find(i) != find(j) && polygons[i].Intersects(polygons[j]) {
				parent[find(j)] = find(i)
			}
		}
	}

	groups := make(map[int][]*Polygon)
	var order []int
	for i, poly := range polygons {
		root := find(i)
		if _, ok := groups[root]; !ok {
			order = append(order, root)
		}
		groups[root] = append(groups[root], poly)
	}

	var out []*Polygon
	for _, root := range order {
		group := groups[root]
		if len(group) == 1 {
			out = append(out, group[0])
			continue
		}
		shapes := make([]Shape, len(group))
		for i, poly := range group {
			shapes[i] = poly
		}
		out = append(out, Outline(Union(shapes...), resolution)...)
	}
	return out
}
