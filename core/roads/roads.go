// Package roads - Road network layer
// Roads are read from the vector source, typed against the configured
// road library and clipped to the terrain area.
package roads

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"terrain-build/core/build"
	"terrain-build/core/geometry"
	"terrain-build/core/progress"
	"terrain-build/core/source"
	"terrain-build/internal/config"
)

// TypeID identifies a road type; lower ids are larger roads
type TypeID int

const (
	TwoLanesMotorway TypeID = iota + 1
	TwoLanesPrimaryRoad
	TwoLanesSecondaryRoad
	TwoLanesConcreteRoad
	SingleLaneDirtRoad
	SingleLaneDirtPath
	Trail
)

var typeNames = map[TypeID]string{
	TwoLanesMotorway:      "TwoLanesMotorway",
	TwoLanesPrimaryRoad:   "TwoLanesPrimaryRoad",
	TwoLanesSecondaryRoad: "TwoLanesSecondaryRoad",
	TwoLanesConcreteRoad:  "TwoLanesConcreteRoad",
	SingleLaneDirtRoad:    "SingleLaneDirtRoad",
	SingleLaneDirtPath:    "SingleLaneDirtPath",
	Trail:                 "Trail",
}

// String returns the type name
func (t TypeID) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TypeID(%d)", int(t))
}

// ParseType returns the type with the given name or numeric id
func ParseType(s string) (TypeID, bool) {
	for id, name := range typeNames {
		if name == s {
			return id, true
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		if _, ok := typeNames[TypeID(n)]; ok {
			return TypeID(n), true
		}
	}
	return 0, false
}

// Special marks road segments that do not follow the ground
type Special int

const (
	SpecialNone Special = iota
	SpecialBridge
	SpecialEmbankment
)

// String returns the special segment name
func (s Special) String() string {
	switch s {
	case SpecialBridge:
		return "bridge"
	case SpecialEmbankment:
		return "embankment"
	default:
		return "none"
	}
}

// ParseSpecial maps a feature attribute to a special segment, SpecialNone when unknown
func ParseSpecial(s string) Special {
	switch s {
	case "bridge":
		return SpecialBridge
	case "embankment":
		return SpecialEmbankment
	default:
		return SpecialNone
	}
}

// Road is one clipped road segment
type Road struct {
	// ID is the source feature id
	ID string

	// Type is the road type
	Type TypeID

	// Width is the paved width in meters
	Width float64

	// ClearWidth is the width kept clear of vegetation in meters
	ClearWidth float64

	// Special marks bridges and embankments
	Special Special

	// Path is the center line
	Path *geometry.Path
}

// Data is the road network of the area
type Data struct {
	Roads []*Road
}

// OfType returns the roads of the given type
func (d *Data) OfType(t TypeID) []*Road {
	var out []*Road
	for _, r := range d.Roads {
		if r.Type == t {
			out = append(out, r)
		}
	}
	return out
}

// Graded returns the roads whose type grades the terrain
func (d *Data) Graded(maxType TypeID) []*Road {
	var out []*Road
	for _, r := range d.Roads {
		if r.Type <= maxType && r.Type != Trail {
			out = append(out, r)
		}
	}
	return out
}

// Key is the data kind of the road network
var Key = build.NewKey[*Data]("Roads")

// Builder produces the road network from road features
type Builder struct {
	// Library maps type names to widths
	Library []config.RoadType
}

// NewBuilder creates a builder over the given road type library
func NewBuilder(library []config.RoadType) *Builder {
	return &Builder{Library: library}
}

func (b *Builder) width(t TypeID) (config.RoadType, bool) {
	for _, rt := range b.Library {
		if rt.Name == t.String() {
			return rt, true
		}
	}
	return config.RoadType{}, false
}

// Produce implements build.Stage
func (b *Builder) Produce(ctx context.Context, bc *build.Context, scope progress.Scope) (*Data, error) {
	features := bc.Source().Features(source.CategoryRoad)
	logger := bc.Logger().With(zap.String("kind", string(Key.Kind())))

	step := scope.CreateStep("Paths", len(features))
	defer step.Close()

	data := &Data{}
	for _, f := range features {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		step.ReportOneDone()
		if f.Path == nil {
			continue
		}

		typeID, ok := ParseType(f.Attr("type", ""))
		if !ok {
			logger.Warn("skipping road of unknown type", zap.String("id", f.ID), zap.String("type", f.Attr("type", "")))
			continue
		}
		rt, ok := b.width(typeID)
		if !ok {
			logger.Warn("road type missing from library", zap.String("type", typeID.String()))
			continue
		}
		width := rt.Width
		if w, err := strconv.ParseFloat(f.Attr("width", ""), 64); err == nil && w > 0 {
			width = w
		}
		clear := rt.ClearWidth
		if clear < width {
			clear = width
		}

		for _, piece := range bc.Area().ClipPaths(f.Path) {
			data.Roads = append(data.Roads, &Road{
				ID:         f.ID,
				Type:       typeID,
				Width:      width,
				ClearWidth: clear,
				Special:    ParseSpecial(f.Attr("special", "")),
				Path:       piece,
			})
		}
	}

	logger.Debug("roads built", zap.Int("count", len(data.Roads)))
	return data, nil
}
