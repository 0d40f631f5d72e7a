package geometry

import (
	"github.com/unixpickle/model3d/model2d"
)

// Index answers radius queries over items anchored at points
type Index[T any] struct {
	tree  *model2d.CoordTree
	items map[model2d.Coord][]T
}

// NewIndex creates an index of items anchored at the given points
func NewIndex[T any](points []Point, items []T) *Index[T] {
	idx := &Index[T]{items: make(map[model2d.Coord][]T, len(points))}
	coords := make([]model2d.Coord, 0, len(points))
	for i, p := range points {
		c := toCoord(p)
		if _, ok := idx.items[c]; !ok {
			coords = append(coords, c)
		}
		idx.items[c] = append(idx.items[c], items[i])
	}
	if len(coords) > 0 {
		idx.tree = model2d.NewCoordTree(coords)
	}
	return idx
}

// Len returns the number of distinct anchor points
func (x *Index[T]) Len() int {
	return len(x.items)
}

// Within returns the items anchored within radius of center
func (x *Index[T]) Within(center Point, radius float64) []T {
	if len(x.items) == 0 {
		return nil
	}
	c := toCoord(center)
	var out []T
	for k := 8; ; k *= 2 {
		neighbors := x.tree.KNN(k, c)
		if len(neighbors) < k || neighbors[len(neighbors)-1].Dist(c) > radius {
			for _, n := range neighbors {
				if n.Dist(c) <= radius {
					out = append(out, x.items[n]...)
				}
			}
			return out
		}
	}
}
