package geometry

import (
	"math"
	"sort"
)

// Path is an ordered polyline
type Path struct {
	Points []Point
}

// NewPath creates a path through points
func NewPath(points ...Point) *Path {
	return &Path{Points: points}
}

// Length returns the total length of the path
func (p *Path) Length() float64 {
	var length float64
	for i := 1; i < len(p.Points); i++ {
		length += Distance(p.Points[i-1], p.Points[i])
	}
	return length
}

// Envelope returns the bounding box of the path
func (p *Path) Envelope() Rect {
	return envelope(p.Points)
}

// First returns the starting point
func (p *Path) First() Point {
	return p.Points[0]
}

// Last returns the end point
func (p *Path) Last() Point {
	return p.Points[len(p.Points)-1]
}

// Distance returns the distance from pt to the closest point of the path
func (p *Path) Distance(pt Point) float64 {
	switch len(p.Points) {
	case 0:
		return math.Inf(1)
	case 1:
		return Distance(pt, p.Points[0])
	}
	best := math.Inf(1)
	for i := 1; i < len(p.Points); i++ {
		if d := SegmentDistance(pt, p.Points[i-1], p.Points[i]); d < best {
			best = d
		}
	}
	return best
}

// Resample returns points spaced step apart along the path.
// The first and last points of the path are always included.
func (p *Path) Resample(step float64) []Point {
	if len(p.Points) == 0 {
		return nil
	}
	out := []Point{p.Points[0]}
	if step <= 0 {
		return append(out, p.Points[1:]...)
	}

	next := step
	var walked float64
	for i := 1; i < len(p.Points); i++ {
		a, b := p.Points[i-1], p.Points[i]
		length := Distance(a, b)
		if length < Epsilon {
			continue
		}
		for next <= walked+length+Epsilon {
			out = append(out, Lerp(a, b, math.Min(1, (next-walked)/length)))
			next += step
		}
		walked += length
	}

	if last := p.Last(); Distance(out[len(out)-1], last) > 1e-6 {
		out = append(out, last)
	}
	return out
}

// ClipToRect returns the parts of the path inside rect
func (p *Path) ClipToRect(rect Rect) []*Path {
	var out []*Path
	var current []Point
	flush := func() {
		if len(current) >= 2 {
			out = append(out, NewPath(current...))
		}
		current = nil
	}

	for i := 1; i < len(p.Points); i++ {
		a, b := p.Points[i-1], p.Points[i]
		t0, t1, ok := clipSegment(a, b, rect)
		if !ok {
			flush()
			continue
		}
		p0, p1 := Lerp(a, b, t0), Lerp(a, b, t1)
		if len(current) > 0 && Distance(current[len(current)-1], p0) > 1e-6 {
			flush()
		}
		if len(current) == 0 {
			current = append(current, p0)
		}
		current = append(current, p1)
		if t1 < 1 {
			flush()
		}
	}
	flush()
	return out
}

// clipSegment clips ab against rect (Liang-Barsky)
func clipSegment(a, b Point, rect Rect) (float64, float64, bool) {
	t0, t1 := 0.0, 1.0
	d := b.Sub(a)
	edges := []struct{ p, q float64 }{
		{-d.X, a.X - rect.X.Lo},
		{d.X, rect.X.Hi - a.X},
		{-d.Y, a.Y - rect.Y.Lo},
		{d.Y, rect.Y.Hi - a.Y},
	}
	for _, e := range edges {
		if math.Abs(e.p) < Epsilon {
			if e.q < 0 {
				return 0, 0, false
			}
			continue
		}
		t := e.q / e.p
		if e.p < 0 {
			if t > t1 {
				return 0, 0, false
			}
			t0 = math.Max(t0, t)
		} else {
			if t < t0 {
				return 0, 0, false
			}
			t1 = math.Min(t1, t)
		}
	}
	return t0, t1, t0 < t1
}

// Subtract returns the parts of the path outside every polygon
func (p *Path) Subtract(polygons ...*Polygon) []*Path {
	env := p.Envelope()
	var cutters []*Polygon
	for _, poly := range polygons {
		if poly.Envelope().Intersects(env) {
			cutters = append(cutters, poly)
		}
	}
	if len(cutters) == 0 {
		return []*Path{NewPath(append([]Point(nil), p.Points...)...)}
	}

	inside := func(pt Point) bool {
		for _, poly := range cutters {
			if poly.Contains(pt) {
				return true
			}
		}
		return false
	}

	var out []*Path
	var current []Point
	flush := func() {
		if len(current) >= 2 {
			out = append(out, NewPath(current...))
		}
		current = nil
	}

	for i := 1; i < len(p.Points); i++ {
		a, b := p.Points[i-1], p.Points[i]
		cuts := []float64{0, 1}
		for _, poly := range cutters {
			for _, ring := range poly.Rings() {
				for j := range ring {
					c, d := ring[j], ring[(j+1)%len(ring)]
					if t, ok := segmentIntersection(a, b, c, d); ok {
						cuts = append(cuts, t)
					}
				}
			}
		}
		sort.Float64s(cuts)

		for k := 1; k < len(cuts); k++ {
			t0, t1 := cuts[k-1], cuts[k]
			if t1-t0 < Epsilon {
				continue
			}
			p0, p1 := Lerp(a, b, t0), Lerp(a, b, t1)
			if inside(Lerp(a, b, (t0+t1)/2)) {
				flush()
				continue
			}
			if len(current) > 0 && Distance(current[len(current)-1], p0) > 1e-6 {
				flush()
			}
			if len(current) == 0 {
				current = append(current, p0)
			}
			current = append(current, p1)
		}
	}
	flush()
	return out
}

// SubtractAll subtracts polygons from every path
func SubtractAll(paths []*Path, polygons []*Polygon) []*Path {
	var out []*Path
	for _, path := range paths {
		out = append(out, path.Subtract(polygons...)...)
	}
	return out
}
