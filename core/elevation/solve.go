package elevation

import (
	"context"
	"math"

	"go.uber.org/zap"

	"terrain-build/core/raster"
)

// maxRelaxIterations bounds the waterway relaxation on pathological relation graphs
const maxRelaxIterations = 256

// SolveReport summarises the constraints a grid was solved with
type SolveReport struct {
	// Nodes is the number of grid nodes
	Nodes int

	// Pinned is the number of nodes with a pinned elevation
	Pinned int

	// Conflicts counts pins that replaced a different earlier pin
	Conflicts int

	// Clamped counts pins raised to the floor of a protected node
	Clamped int

	// SmoothSegments is the number of smoothing runs
	SmoothSegments int

	// FlatSegments is the number of flat cross-sections
	FlatSegments int

	// Relations is the number of "must be lower than" relations
	Relations int

	// Iterations is the number of relaxation sweeps
	Iterations int

	// Unresolved counts relations still violated when the sweep limit was hit
	Unresolved int
}

// Solve computes the final elevation of every node and writes it into a new raster
// with the shape of the initial one. Passes run in a fixed order:
// base values, smoothing, flat cross-sections, waterway relaxation, floors.
func (cg *ConstraintGrid) Solve(ctx context.Context, workers int) (*raster.Grid, SolveReport, error) {
	values := make([]float64, len(cg.nodes))
	for i := range cg.nodes {
		values[i] = cg.nodes[i].base()
	}

	cg.applySmoothing(values)
	cg.applyFlats(values)
	if err := ctx.Err(); err != nil {
		return nil, cg.report, err
	}
	cg.relax(values)
	for i := range cg.nodes {
		if n := &cg.nodes[i]; n.hasFloor && values[i] < n.floor {
			values[i] = n.floor
		}
	}

	cg.report.SmoothSegments = len(cg.smooth)
	cg.report.FlatSegments = len(cg.flats)
	cg.report.Relations = len(cg.relations)

	out := cg.grid.Clone()
	err := raster.ForEachRow(ctx, out.Height, workers, func(y int) error {
		for x := 0; x < out.Width; x++ {
			i := out.Index(x, y)
			out.Values[i] = float32(values[i])
		}
		return nil
	})
	if err != nil {
		return nil, cg.report, err
	}

	if cg.report.Conflicts > 0 {
		cg.logger.Warn("conflicting pins resolved by last write",
			zap.Int("conflicts", cg.report.Conflicts))
	}
	cg.logger.Debug("elevation solved",
		zap.Int("pinned", cg.report.Pinned),
		zap.Int("clamped", cg.report.Clamped),
		zap.Int("flat_segments", cg.report.FlatSegments),
		zap.Int("relations", cg.report.Relations),
		zap.Int("iterations", cg.report.Iterations))
	return out, cg.report, nil
}

// base returns the pin, or the initial value shifted by the wanted offset
func (n *Node) base() float64 {
	if n.pinned {
		return n.elevation
	}
	if n.hasWanted {
		return n.Initial + n.wanted
	}
	return n.Initial
}

// applySmoothing replaces every unpinned node of a segment by the mean
// of the segment nodes within half a window along the segment
func (cg *ConstraintGrid) applySmoothing(values []float64) {
	snapshot := append([]float64(nil), values...)
	for _, s := range cg.smooth {
		half := s.Width / 2
		lo := 0
		for _, e := range s.entries {
			if e.node.pinned {
				continue
			}
			for s.entries[lo].distance < e.distance-half {
				lo++
			}
			var sum float64
			var count int
			for j := lo; j < len(s.entries) && s.entries[j].distance <= e.distance+half; j++ {
				sum += snapshot[s.entries[j].node.index]
				count++
			}
			if count > 0 {
				values[e.node.index] = sum / float64(count)
			}
		}
	}
}

// applyFlats copies the value of each flat segment center onto its members.
// Pinned nodes and the centers themselves keep their value; a node in
// several cross-sections takes the value of the last one.
func (cg *ConstraintGrid) applyFlats(values []float64) {
	snapshot := append([]float64(nil), values...)
	centers := make(map[int]bool, len(cg.flats))
	for _, f := range cg.flats {
		centers[f.center.index] = true
	}
	for _, f := range cg.flats {
		v := snapshot[f.center.index]
		for _, m := range f.members {
			if m.pinned || centers[m.index] {
				continue
			}
			values[m.index] = v
		}
	}
}

// relax makes every downstream node lower than or equal to its upstream node.
// Downstream nodes are lowered, but never below their minimum; when that
// minimum is above the upstream value the upstream side is raised instead.
func (cg *ConstraintGrid) relax(values []float64) {
	if len(cg.relations) == 0 {
		return
	}
	for iter := 1; iter <= maxRelaxIterations; iter++ {
		cg.report.Iterations = iter
		changed := false
		for _, r := range cg.relations {
			d, u := r.down.index, r.up.index
			v := math.Max(math.Min(values[d], values[u]), r.down.minimum())
			if v != values[d] {
				values[d] = v
				changed = true
			}
		}
		for i := len(cg.relations) - 1; i >= 0; i-- {
			r := cg.relations[i]
			d, u := r.down.index, r.up.index
			if values[u] < values[d] {
				values[u] = values[d]
				changed = true
			}
		}
		if !changed {
			return
		}
	}
	for _, r := range cg.relations {
		if values[r.down.index] > values[r.up.index]+conflictTolerance {
			cg.report.Unresolved++
		}
	}
	cg.logger.Warn("waterway relaxation did not converge", zap.Int("unresolved", cg.report.Unresolved))
}
