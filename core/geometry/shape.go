package geometry

import (
	"math"

	"github.com/unixpickle/model3d/model2d"
)

// Shape is a region described by a signed distance, positive inside.
// Distances of composed shapes are bounds, only their sign is exact.
type Shape interface {
	Envelope() Rect
	SignedDistance(p Point) float64
}

// PolygonLayer is implemented by artifacts made of polygons
type PolygonLayer interface {
	LayerName() string
	LayerPolygons() []*Polygon
}

type buffered struct {
	shape Shape
	d     float64
}

// Buffer grows shape by d, or shrinks it when d is negative
func Buffer(shape Shape, d float64) Shape {
	return buffered{shape: shape, d: d}
}

func (b buffered) Envelope() Rect {
	if b.d <= 0 {
		return b.shape.Envelope()
	}
	return b.shape.Envelope().ExpandedByMargin(b.d)
}

func (b buffered) SignedDistance(p Point) float64 {
	return b.shape.SignedDistance(p) + b.d
}

type crown struct {
	shape Shape
	w     float64
}

// Crown is the band of width w just inside the boundary of shape
func Crown(shape Shape, w float64) Shape {
	return crown{shape: shape, w: w}
}

func (c crown) Envelope() Rect {
	return c.shape.Envelope()
}

func (c crown) SignedDistance(p Point) float64 {
	d := c.shape.SignedDistance(p)
	return math.Min(d, c.w-d)
}

type union []Shape

// Union is the region inside any of shapes
func Union(shapes ...Shape) Shape {
	return union(shapes)
}

func (u union) Envelope() Rect {
	env := envelope(nil)
	for _, s := range u {
		env = env.Union(s.Envelope())
	}
	return env
}

func (u union) SignedDistance(p Point) float64 {
	best := math.Inf(-1)
	for _, s := range u {
		best = math.Max(best, s.SignedDistance(p))
	}
	return best
}

type difference struct {
	base Shape
	cuts []Shape
}

// Difference is the region inside base and outside every cut
func Difference(base Shape, cuts ...Shape) Shape {
	return difference{base: base, cuts: cuts}
}

func (d difference) Envelope() Rect {
	return d.base.Envelope()
}

func (d difference) SignedDistance(p Point) float64 {
	dist := d.base.SignedDistance(p)
	for _, cut := range d.cuts {
		if !cut.Envelope().ContainsPoint(p) {
			continue
		}
		dist = math.Min(dist, -cut.SignedDistance(p))
	}
	return dist
}

// PathBuffer is the region within HalfWidth of a path
type PathBuffer struct {
	Path      *Path
	HalfWidth float64
}

// NewPathBuffer creates the footprint of a path of the given full width
func NewPathBuffer(path *Path, width float64) *PathBuffer {
	return &PathBuffer{Path: path, HalfWidth: width / 2}
}

// Envelope returns the bounding box of the footprint
func (b *PathBuffer) Envelope() Rect {
	return b.Path.Envelope().ExpandedByMargin(b.HalfWidth)
}

// SignedDistance returns the distance to the footprint edge, positive inside
func (b *PathBuffer) SignedDistance(p Point) float64 {
	return b.HalfWidth - b.Path.Distance(p)
}

// shapeSolid adapts a Shape to model2d
type shapeSolid struct {
	shape    Shape
	min, max model2d.Coord
}

func (s *shapeSolid) Min() model2d.Coord { return s.min }
func (s *shapeSolid) Max() model2d.Coord { return s.max }

func (s *shapeSolid) Contains(c model2d.Coord) bool {
	return s.shape.SignedDistance(fromCoord(c)) >= 0
}

// Outline traces the boundary of shape with marching squares and returns
// the resulting polygons, holes attached to the shell around them.
func Outline(shape Shape, resolution float64) []*Polygon {
	env := shape.Envelope()
	if env.IsEmpty() || resolution <= 0 {
		return nil
	}
	env = env.ExpandedByMargin(2 * resolution)
	solid := &shapeSolid{
		shape: shape,
		min:   model2d.XY(env.X.Lo, env.Y.Lo),
		max:   model2d.XY(env.X.Hi, env.Y.Hi),
	}
	mesh := model2d.MarchingSquaresSearch(solid, resolution, 8)
	return assemble(chainRings(mesh.SegmentSlice()))
}

type coordKey struct{ x, y int64 }

func keyOf(c model2d.Coord) coordKey {
	const scale = 1e6
	return coordKey{int64(math.Round(c.X * scale)), int64(math.Round(c.Y * scale))}
}

// chainRings joins segments sharing endpoints into closed rings
func chainRings(segments []*model2d.Segment) [][]Point {
	byEnd := make(map[coordKey][]int)
	for i, seg := range segments {
		for _, c := range seg {
			k := keyOf(c)
			byEnd[k] = append(byEnd[k], i)
		}
	}

	used := make([]bool, len(segments))
	var rings [][]Point
	for start := range segments {
		if used[start] {
			continue
		}
		used[start] = true
		first := segments[start][0]
		ring := []Point{fromCoord(first)}
		cur := segments[start][1]
		for keyOf(cur) != keyOf(first) {
			ring = append(ring, fromCoord(cur))
			next := -1
			for _, idx := range byEnd[keyOf(cur)] {
				if !used[idx] {
					next = idx
					break
				}
			}
			if next < 0 {
				break
			}
			used[next] = true
			seg := segments[next]
			if keyOf(seg[0]) == keyOf(cur) {
				cur = seg[1]
			} else {
				cur = seg[0]
			}
		}
		if len(ring) >= 3 {
			rings = append(rings, ring)
		}
	}
	return rings
}

// assemble turns rings into polygons using nesting depth:
// rings inside an even number of rings are shells, the others holes.
func assemble(rings [][]Point) []*Polygon {
	ringPolys := make([]*Polygon, len(rings))
	for i, ring := range rings {
		ringPolys[i] = NewPolygon(ring)
	}

	depth := make([]int, len(rings))
	for i, ring := range rings {
		for j, poly := range ringPolys {
			if i != j && poly.Contains(ring[0]) {
				depth[i]++
			}
		}
	}

	shells := make(map[int]*Polygon)
	var order []int
	for i, ring := range rings {
		if depth[i]%2 == 0 {
			shells[i] = NewPolygon(ring)
			order = append(order, i)
		}
	}
	for i, ring := range rings {
		if depth[i]%2 == 0 {
			continue
		}
		owner, ownerArea := -1, math.Inf(1)
		for j := range shells {
			if depth[j] == depth[i]-1 && ringPolys[j].Contains(ring[0]) {
				if a := math.Abs(ringArea(rings[j])); a < ownerArea {
					owner, ownerArea = j, a
				}
			}
		}
		if owner >= 0 {
			shells[owner].Holes = append(shells[owner].Holes, ring)
		}
	}

	out := make([]*Polygon, 0, len(order))
	for _, i := range order {
		out = append(out, shells[i])
	}
	return out
}
