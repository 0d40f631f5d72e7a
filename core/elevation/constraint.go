package elevation

import (
	"math"

	"github.com/boljen/go-bitmap"
	"go.uber.org/zap"

	"terrain-build/core/geometry"
	"terrain-build/core/raster"
)

// Node is one grid node and the constraints accumulated on it
type Node struct {
	// X and Y are the grid coordinates
	X, Y int

	// Point is the terrain position
	Point geometry.Point

	// Initial is the elevation before solving
	Initial float64

	grid  *ConstraintGrid
	index int

	pinned    bool
	elevation float64

	hasWanted bool
	wanted    float64

	hasLowerLimit bool
	lowerLimit    float64

	hasFloor bool
	floor    float64
}

// Elevation returns the pinned elevation, if any
func (n *Node) Elevation() (float64, bool) {
	return n.elevation, n.pinned
}

// IsPinned reports whether the node has a pinned elevation
func (n *Node) IsPinned() bool {
	return n.pinned
}

// PinToInitial pins the node to its initial elevation
func (n *Node) PinToInitial() *Node {
	n.SetElevation(n.Initial)
	return n
}

// SetElevation pins the node. A protected node is never pinned below its floor.
// Pinning a node twice keeps the last value.
func (n *Node) SetElevation(v float64) {
	if n.IsProtected() && n.hasFloor && v < n.floor {
		n.grid.report.Clamped++
		v = n.floor
	}
	if n.pinned {
		if math.Abs(n.elevation-v) > conflictTolerance {
			n.grid.report.Conflicts++
		}
	} else {
		n.grid.report.Pinned++
	}
	n.pinned = true
	n.elevation = v
}

// SetNotBelow adds a floor; the highest floor wins
func (n *Node) SetNotBelow(v float64) {
	if !n.hasFloor || v > n.floor {
		n.floor = v
	}
	n.hasFloor = true
}

// Floor returns the floor of the node, if any
func (n *Node) Floor() (float64, bool) {
	return n.floor, n.hasFloor
}

// SetWantedRelativeElevation sets the offset from Initial the node starts from when not pinned
func (n *Node) SetWantedRelativeElevation(d float64) {
	n.hasWanted = true
	n.wanted = d
}

// SetLowerLimitRelativeElevation sets how far below Initial the node may go
func (n *Node) SetLowerLimitRelativeElevation(d float64) {
	n.hasLowerLimit = true
	n.lowerLimit = d
}

// MustBeLowerThan requires the node to end at or below upstream
func (n *Node) MustBeLowerThan(upstream *Node) {
	if n == upstream {
		return
	}
	n.grid.relations = append(n.grid.relations, relation{down: n, up: upstream})
}

// IsProtected reports whether the node lies in a protected zone
func (n *Node) IsProtected() bool {
	return n.grid.protected.Get(n.index)
}

// Protect marks the node protected
func (n *Node) Protect() {
	n.grid.protected.Set(n.index, true)
}

// minimum returns the lowest value the node may take
func (n *Node) minimum() float64 {
	m := math.Inf(-1)
	if n.hasLowerLimit {
		m = n.Initial + n.lowerLimit
	}
	if n.hasFloor {
		m = math.Max(m, n.floor)
	}
	return m
}

const conflictTolerance = 1e-6

type relation struct {
	down, up *Node
}

type flatSegment struct {
	center  *Node
	members []*Node
}

// SmoothSegment is an ordered run of nodes along a linear feature,
// each tagged with its cumulative distance from the start
type SmoothSegment struct {
	Width   float64
	entries []smoothEntry
}

type smoothEntry struct {
	distance float64
	node     *Node
}

// Add appends node at the given cumulative distance
func (s *SmoothSegment) Add(distance float64, node *Node) {
	s.entries = append(s.entries, smoothEntry{distance: distance, node: node})
}

// Len returns the number of nodes in the segment
func (s *SmoothSegment) Len() int {
	return len(s.entries)
}

// ConstraintGrid holds one node per grid cell and the constraints between them.
// It is owned by a single goroutine until solved.
type ConstraintGrid struct {
	grid      *raster.Grid
	nodes     []Node
	protected bitmap.Bitmap

	smooth    []*SmoothSegment
	flats     []flatSegment
	relations []relation

	report SolveReport
	logger *zap.Logger
}

// NewConstraintGrid creates a node for every cell of initial
func NewConstraintGrid(initial *raster.Grid, logger *zap.Logger) *ConstraintGrid {
	if logger == nil {
		logger = zap.NewNop()
	}
	cg := &ConstraintGrid{
		grid:      initial,
		nodes:     make([]Node, initial.Width*initial.Height),
		protected: bitmap.New(initial.Width * initial.Height),
		logger:    logger,
	}
	for y := 0; y < initial.Height; y++ {
		for x := 0; x < initial.Width; x++ {
			i := initial.Index(x, y)
			cg.nodes[i] = Node{
				X:       x,
				Y:       y,
				Point:   initial.ToTerrain(x, y),
				Initial: float64(initial.At(x, y)),
				grid:    cg,
				index:   i,
			}
		}
	}
	cg.report.Nodes = len(cg.nodes)
	return cg
}

// Grid returns the initial raster
func (cg *ConstraintGrid) Grid() *raster.Grid {
	return cg.grid
}

// Node returns node (x, y)
func (cg *ConstraintGrid) Node(x, y int) *Node {
	return &cg.nodes[cg.grid.Index(x, y)]
}

// NodeAt returns the node nearest to p
func (cg *ConstraintGrid) NodeAt(p geometry.Point) *Node {
	return cg.Node(cg.grid.Nearest(p))
}

// Search returns the nodes whose position lies within the rectangle [min, max]
func (cg *ConstraintGrid) Search(min, max geometry.Point) []*Node {
	gx0, gy0 := cg.grid.ToGrid(min)
	gx1, gy1 := cg.grid.ToGrid(max)
	x0 := int(math.Max(0, math.Ceil(gx0-geometry.Epsilon)))
	y0 := int(math.Max(0, math.Ceil(gy0-geometry.Epsilon)))
	x1 := int(math.Min(float64(cg.grid.Width-1), math.Floor(gx1+geometry.Epsilon)))
	y1 := int(math.Min(float64(cg.grid.Height-1), math.Floor(gy1+geometry.Epsilon)))

	var out []*Node
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			out = append(out, cg.Node(x, y))
		}
	}
	return out
}

// SearchRect returns the nodes inside r
func (cg *ConstraintGrid) SearchRect(r geometry.Rect) []*Node {
	if r.IsEmpty() {
		return nil
	}
	return cg.Search(r.Lo(), r.Hi())
}

// CreateSmoothSegment starts a smoothing run at start with a window of width
func (cg *ConstraintGrid) CreateSmoothSegment(start *Node, width float64) *SmoothSegment {
	s := &SmoothSegment{Width: width}
	s.Add(0, start)
	cg.smooth = append(cg.smooth, s)
	return s
}

// AddFlatSegment makes every node within width/2 of the segment [from, to]
// take the elevation of center
func (cg *ConstraintGrid) AddFlatSegment(center *Node, from, to geometry.Point, width float64) {
	half := width / 2
	env := geometry.NewPath(from, to).Envelope().ExpandedByMargin(half)

	var members []*Node
	for _, n := range cg.SearchRect(env) {
		if n == center {
			continue
		}
		if geometry.SegmentDistance(n.Point, from, to) <= half+geometry.Epsilon {
			members = append(members, n)
		}
	}
	cg.flats = append(cg.flats, flatSegment{center: center, members: members})
}
