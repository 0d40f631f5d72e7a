// Package buildings - Building footprints layer
package buildings

import (
	"context"

	"go.uber.org/zap"

	"terrain-build/core/build"
	"terrain-build/core/geometry"
	"terrain-build/core/progress"
	"terrain-build/core/source"
)

// Building is one footprint
type Building struct {
	ID      string
	Polygon *geometry.Polygon
}

// Data holds the building footprints of the area
type Data struct {
	Buildings []*Building
}

// LayerName implements geometry.PolygonLayer
func (d *Data) LayerName() string { return "buildings" }

// LayerPolygons implements geometry.PolygonLayer
func (d *Data) LayerPolygons() []*geometry.Polygon {
	out := make([]*geometry.Polygon, len(d.Buildings))
	for i, b := range d.Buildings {
		out[i] = b.Polygon
	}
	return out
}

// Key is the data kind of buildings
var Key = build.NewKey[*Data]("Buildings")

// Builder produces footprints from building features
type Builder struct{}

// Produce implements build.Stage
func (Builder) Produce(ctx context.Context, bc *build.Context, scope progress.Scope) (*Data, error) {
	features := bc.Source().Features(source.CategoryBuilding)
	step := scope.CreateStep("Footprints", len(features))
	defer step.Close()

	data := &Data{}
	for _, f := range features {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step.ReportOneDone()
		if f.Polygon == nil {
			continue
		}
		for _, p := range bc.Area().ClipPolygons(f.Polygon) {
			data.Buildings = append(data.Buildings, &Building{ID: f.ID, Polygon: p})
		}
	}
	bc.Logger().Debug("buildings built", zap.Int("count", len(data.Buildings)))
	return data, nil
}
