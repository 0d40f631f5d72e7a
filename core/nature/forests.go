// Package nature - Forest layers
package nature

import (
	"context"
	"math"

	"go.uber.org/zap"

	"terrain-build/core/build"
	"terrain-build/core/buildings"
	"terrain-build/core/geometry"
	"terrain-build/core/progress"
	"terrain-build/core/roads"
	"terrain-build/core/source"
)

// ForestData holds the forest areas, overlapping forests merged
type ForestData struct {
	Polygons []*geometry.Polygon
}

// LayerName implements geometry.PolygonLayer
func (d *ForestData) LayerName() string { return "forests" }

// LayerPolygons implements geometry.PolygonLayer
func (d *ForestData) LayerPolygons() []*geometry.Polygon { return d.Polygons }

// ForestEdgeData holds the band along forest borders where edge vegetation grows
type ForestEdgeData struct {
	Edges []*geometry.Polygon

	// Forests are the forests large enough to have an edge
	Forests []*geometry.Polygon
}

// LayerName implements geometry.PolygonLayer
func (d *ForestEdgeData) LayerName() string { return "forest_edges" }

// LayerPolygons implements geometry.PolygonLayer
func (d *ForestEdgeData) LayerPolygons() []*geometry.Polygon { return d.Edges }

var (
	// ForestsKey is the data kind of forests
	ForestsKey = build.NewKey[*ForestData]("Forests")

	// ForestEdgesKey is the data kind of forest edges
	ForestEdgesKey = build.NewKey[*ForestEdgeData]("ForestEdges")
)

// buildingMargin keeps edge vegetation away from walls
const buildingMargin = 2.5

// ForestsBuilder produces forests from forest features
type ForestsBuilder struct{}

// Produce implements build.Stage
func (ForestsBuilder) Produce(ctx context.Context, bc *build.Context, scope progress.Scope) (*ForestData, error) {
	features := bc.Source().Features(source.CategoryForest)
	var clipped []*geometry.Polygon
	for _, f := range features {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.Polygon != nil {
			clipped = append(clipped, bc.Area().ClipPolygons(f.Polygon)...)
		}
	}

	step := scope.CreateStep("Merge", 1)
	defer step.Close()
	polygons := geometry.MergeAll(clipped, bc.Options().GeometryResolution)
	step.ReportOneDone()
	return &ForestData{Polygons: polygons}, nil
}

// ForestEdgesBuilder produces the inner crown of every forest, minus trails and building surroundings
type ForestEdgesBuilder struct{}

// Produce implements build.Stage
func (ForestEdgesBuilder) Produce(ctx context.Context, bc *build.Context, scope progress.Scope) (*ForestEdgeData, error) {
	forests, err := build.Get(ctx, bc, ForestsKey, scope)
	if err != nil {
		return nil, err
	}
	roadsData, err := build.Get(ctx, bc, roads.Key, scope)
	if err != nil {
		return nil, err
	}
	buildingsData, err := build.Get(ctx, bc, buildings.Key, scope)
	if err != nil {
		return nil, err
	}

	opts := bc.Options()
	priority := priorityIndex(roadsData, buildingsData)

	var large []*geometry.Polygon
	for _, f := range forests.Polygons {
		if f.Area() > opts.MinForestArea {
			large = append(large, f)
		}
	}

	step := scope.CreateStep("Edges", len(large))
	defer step.Close()

	data := &ForestEdgeData{Forests: large}
	for _, forest := range large {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, crown := range forest.InnerCrown(opts.ForestEdgeWidth, opts.GeometryResolution) {
			data.Edges = append(data.Edges, priority.subtract(crown, opts.GeometryResolution)...)
		}
		step.ReportOneDone()
	}

	bc.Logger().Debug("forest edges built",
		zap.Int("forests", len(large)),
		zap.Int("edges", len(data.Edges)))
	return data, nil
}

// priorityShapes are the areas edge vegetation never grows in,
// indexed by the center of their envelope
type priorityShapes struct {
	index     *geometry.Index[geometry.Shape]
	maxRadius float64
}

func priorityIndex(roadsData *roads.Data, buildingsData *buildings.Data) *priorityShapes {
	var shapes []geometry.Shape
	for _, trail := range roadsData.OfType(roads.Trail) {
		shapes = append(shapes, geometry.NewPathBuffer(trail.Path, trail.Width+1))
	}
	for _, b := range buildingsData.Buildings {
		shapes = append(shapes, geometry.Buffer(b.Polygon, buildingMargin))
	}

	p := &priorityShapes{}
	centers := make([]geometry.Point, len(shapes))
	for i, s := range shapes {
		env := s.Envelope()
		centers[i] = env.Center()
		p.maxRadius = math.Max(p.maxRadius, geometry.Distance(env.Lo(), env.Hi())/2)
	}
	p.index = geometry.NewIndex(centers, shapes)
	return p
}

// subtract removes the priority shapes from polygon
func (p *priorityShapes) subtract(polygon *geometry.Polygon, resolution float64) []*geometry.Polygon {
	env := polygon.Envelope()
	radius := geometry.Distance(env.Lo(), env.Hi())/2 + p.maxRadius
	var cuts []geometry.Shape
	for _, s := range p.index.Within(env.Center(), radius) {
		if s.Envelope().Intersects(env) {
			cuts = append(cuts, s)
		}
	}
	if len(cuts) == 0 {
		return []*geometry.Polygon{polygon}
	}
	return geometry.Outline(geometry.Difference(polygon, cuts...), resolution)
}
