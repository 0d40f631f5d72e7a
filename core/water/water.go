// Package water - Lakes and waterways layers
package water

import (
	"context"

	"go.uber.org/zap"

	"terrain-build/core/build"
	"terrain-build/core/geometry"
	"terrain-build/core/progress"
	"terrain-build/core/source"
)

// LakesData holds the lake surfaces of the area, overlapping lakes merged
type LakesData struct {
	Polygons []*geometry.Polygon
}

// LayerName implements geometry.PolygonLayer
func (d *LakesData) LayerName() string { return "lakes" }

// LayerPolygons implements geometry.PolygonLayer
func (d *LakesData) LayerPolygons() []*geometry.Polygon { return d.Polygons }

// WaterwayKind distinguishes rivers from streams
type WaterwayKind string

const (
	River  WaterwayKind = "river"
	Stream WaterwayKind = "stream"
)

// Waterway is one waterway path oriented in the flow direction
type Waterway struct {
	// ID is the source feature id
	ID string

	// Kind is river or stream
	Kind WaterwayKind

	// Tunnel is set for culverts and underground sections
	Tunnel bool

	// Path runs from upstream to downstream
	Path *geometry.Path
}

// WaterwaysData holds the waterway paths of the area, lakes cut out
type WaterwaysData struct {
	Waterways []*Waterway
}

// Surface returns the waterways flowing in the open
func (d *WaterwaysData) Surface() []*Waterway {
	var out []*Waterway
	for _, w := range d.Waterways {
		if !w.Tunnel {
			out = append(out, w)
		}
	}
	return out
}

var (
	// LakesKey is the data kind of lakes
	LakesKey = build.NewKey[*LakesData]("Lakes")

	// WaterwaysKey is the data kind of waterways
	WaterwaysKey = build.NewKey[*WaterwaysData]("Waterways")
)

// LakesBuilder produces lakes from lake features
type LakesBuilder struct{}

// Produce implements build.Stage
func (LakesBuilder) Produce(ctx context.Context, bc *build.Context, scope progress.Scope) (*LakesData, error) {
	features := bc.Source().Features(source.CategoryLake)

	step := scope.CreateStep("Clip", len(features))
	var clipped []*geometry.Polygon
	for _, f := range features {
		if err := ctx.Err(); err != nil {
			step.Close()
			return nil, err
		}
		if f.Polygon != nil {
			clipped = append(clipped, bc.Area().ClipPolygons(f.Polygon)...)
		}
		step.ReportOneDone()
	}
	step.Close()

	merge := scope.CreateStep("Merge", 1)
	defer merge.Close()
	polygons := geometry.MergeAll(clipped, bc.Options().GeometryResolution)
	merge.ReportOneDone()

	bc.Logger().Debug("lakes built", zap.Int("features", len(features)), zap.Int("polygons", len(polygons)))
	return &LakesData{Polygons: polygons}, nil
}

// WaterwaysBuilder produces waterways from waterway features
type WaterwaysBuilder struct{}

// Produce implements build.Stage
func (WaterwaysBuilder) Produce(ctx context.Context, bc *build.Context, scope progress.Scope) (*WaterwaysData, error) {
	lakes, err := build.Get(ctx, bc, LakesKey, scope)
	if err != nil {
		return nil, err
	}

	features := bc.Source().Features(source.CategoryWaterway)
	step := scope.CreateStep("Paths", len(features))
	defer step.Close()

	data := &WaterwaysData{}
	for _, f := range features {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step.ReportOneDone()
		if f.Path == nil || len(f.Path.Points) < 2 {
			continue
		}
		kind := WaterwayKind(f.Attr("kind", string(Stream)))
		if kind != River && kind != Stream {
			bc.Logger().Warn("skipping waterway of unknown kind", zap.String("id", f.ID), zap.String("kind", string(kind)))
			continue
		}
		pieces := geometry.SubtractAll(bc.Area().ClipPaths(f.Path), lakes.Polygons)
		for _, piece := range pieces {
			data.Waterways = append(data.Waterways, &Waterway{
				ID:     f.ID,
				Kind:   kind,
				Tunnel: f.BoolAttr("tunnel"),
				Path:   piece,
			})
		}
	}

	bc.Logger().Debug("waterways built", zap.Int("count", len(data.Waterways)))
	return data, nil
}
