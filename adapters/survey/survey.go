// Package survey loads vector survey data from HCL files.
//
// A survey file holds one labelled block per feature:
//
//	road "main" {
//	  path    = [[0, 5], [120, 5]]
//	  type    = "TwoLanesPrimaryRoad"
//	  special = "bridge"
//	}
//
//	lake "pond" {
//	  shell = [[10, 10], [40, 10], [40, 40], [10, 40]]
//	}
//
// road and waterway blocks carry a path, lake, forest and building blocks a
// shell with optional holes. Every other attribute becomes a feature attribute.
package survey

import (
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
	"go.uber.org/multierr"

	"terrain-build/core/geometry"
	"terrain-build/core/source"
	"terrain-build/internal/errors"
)

type linearBlock struct {
	ID     string      `hcl:"id,label"`
	Path   [][]float64 `hcl:"path"`
	Remain hcl.Body    `hcl:",remain"`
}

type arealBlock struct {
	ID     string        `hcl:"id,label"`
	Shell  [][]float64   `hcl:"shell"`
	Holes  [][][]float64 `hcl:"holes,optional"`
	Remain hcl.Body      `hcl:",remain"`
}

type file struct {
	Roads     []linearBlock `hcl:"road,block"`
	Waterways []linearBlock `hcl:"waterway,block"`
	Lakes     []arealBlock  `hcl:"lake,block"`
	Forests   []arealBlock  `hcl:"forest,block"`
	Buildings []arealBlock  `hcl:"building,block"`
}

// Load reads a survey file. Missing files are a not found error.
func Load(path string) (*source.MemorySource, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NotFound("survey file", path)
		}
		return nil, err
	}
	return Parse(src, path)
}

// Parse decodes survey source. Every invalid feature is reported, not only the first.
func Parse(src []byte, filename string) (*source.MemorySource, error) {
	parser := hclparse.NewParser()
	f, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, errors.Parsing("failed to parse "+filename, diags)
	}

	var decoded file
	if diags := gohcl.DecodeBody(f.Body, nil, &decoded); diags.HasErrors() {
		return nil, errors.Parsing("failed to decode "+filename, diags)
	}

	out := source.NewMemorySource()
	var problems error
	add := func(feature source.Feature, err error) {
		if err != nil {
			problems = multierr.Append(problems, err)
			return
		}
		out.Add(feature)
	}

	for _, b := range decoded.Roads {
		add(linearFeature(source.CategoryRoad, b))
	}
	for _, b := range decoded.Waterways {
		add(linearFeature(source.CategoryWaterway, b))
	}
	for _, b := range decoded.Lakes {
		add(arealFeature(source.CategoryLake, b))
	}
	for _, b := range decoded.Forests {
		add(arealFeature(source.CategoryForest, b))
	}
	for _, b := range decoded.Buildings {
		add(arealFeature(source.CategoryBuilding, b))
	}

	if problems != nil {
		return nil, errors.Wrap(errors.TypeInput, "invalid features in "+filename, problems)
	}
	return out, nil
}

func linearFeature(category source.Category, b linearBlock) (source.Feature, error) {
	feature := source.Feature{ID: b.ID, Category: category}
	points, err := toPoints(b.Path, 2)
	if err != nil {
		return feature, featureError(category, b.ID, "path", err)
	}
	attrs, err := attributes(b.Remain)
	if err != nil {
		return feature, featureError(category, b.ID, "attributes", err)
	}
	feature.Path = geometry.NewPath(points...)
	feature.Attributes = attrs
	return feature, nil
}

func arealFeature(category source.Category, b arealBlock) (source.Feature, error) {
	feature := source.Feature{ID: b.ID, Category: category}
	shell, err := toPoints(b.Shell, 3)
	if err != nil {
		return feature, featureError(category, b.ID, "shell", err)
	}
	var holes [][]geometry.Point
	for _, h := range b.Holes {
		hole, err := toPoints(h, 3)
		if err != nil {
			return feature, featureError(category, b.ID, "holes", err)
		}
		holes = append(holes, hole)
	}
	attrs, err := attributes(b.Remain)
	if err != nil {
		return feature, featureError(category, b.ID, "attributes", err)
	}
	feature.Polygon = geometry.NewPolygon(shell, holes...)
	feature.Attributes = attrs
	return feature, nil
}

func toPoints(coords [][]float64, minPoints int) ([]geometry.Point, error) {
	if len(coords) < minPoints {
		return nil, errors.Geometry(fmt.Sprintf("needs at least %d points, got %d", minPoints, len(coords)))
	}
	points := make([]geometry.Point, len(coords))
	for i, c := range coords {
		if len(c) != 2 {
			return nil, errors.Geometry(fmt.Sprintf("point %d has %d coordinates, want 2", i, len(c)))
		}
		points[i] = geometry.Pt(c[0], c[1])
	}
	return points, nil
}

// attributes converts the remaining attributes of a block to strings.
// Numbers and booleans are accepted; nested values are not.
func attributes(body hcl.Body) (map[string]string, error) {
	attrs, diags := body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}
	if len(attrs) == 0 {
		return nil, nil
	}

	out := make(map[string]string, len(attrs))
	for name, attr := range attrs {
		value, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return nil, diags
		}
		str, err := convert.Convert(value, cty.String)
		if err != nil {
			return nil, errors.Wrapf(errors.TypeParsing, err, "attribute %s", name)
		}
		if str.IsNull() {
			continue
		}
		out[name] = str.AsString()
	}
	return out, nil
}

func featureError(category source.Category, id, field string, cause error) error {
	return errors.Wrapf(errors.TypeInput, cause, "%s %q: invalid %s", category, id, field).
		WithContext("feature", id)
}
