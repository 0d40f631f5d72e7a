// Package config provides configuration management.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/multierr"

	"terrain-build/internal/errors"
	"terrain-build/internal/logging"
)

// Config is the main application configuration
type Config struct {
	// Version is the configuration version
	Version string `json:"version"`

	// Area describes the terrain grid being built
	Area AreaConfig `json:"area"`

	// Processing contains the tuning knobs read by the pipeline stages
	Processing Processing `json:"processing"`

	// Roads is the road type library, keyed by road type name
	Roads []RoadType `json:"roads"`

	// Logging contains logging configuration
	Logging logging.Config `json:"logging"`

	// Output contains output configuration
	Output OutputConfig `json:"output"`
}

// AreaConfig describes the square terrain grid
type AreaConfig struct {
	// OriginX and OriginY are the terrain coordinates of grid node (0, 0)
	OriginX float64 `json:"origin_x" hcl:"origin_x,optional"`
	OriginY float64 `json:"origin_y" hcl:"origin_y,optional"`

	// CellSize is the distance between two grid nodes in meters
	CellSize float64 `json:"cell_size" hcl:"cell_size,optional"`

	// GridSize is the number of nodes along each axis
	GridSize int `json:"grid_size" hcl:"grid_size,optional"`
}

// Processing contains the thresholds used by the build stages
type Processing struct {
	// ResampleStep is the distance between resampled points along paths and shells
	ResampleStep float64 `json:"resample_step" hcl:"resample_step,optional"`

	// MinLakeCells is the side, in cells, of the smallest square a lake must cover
	MinLakeCells float64 `json:"min_lake_cells" hcl:"min_lake_cells,optional"`

	// LakeInsetCells is the inset, in cells, a lake must survive to be carved
	LakeInsetCells float64 `json:"lake_inset_cells" hcl:"lake_inset_cells,optional"`

	// LakeProtectionCells is the outward buffer, in cells, of the protected zone around a lake
	LakeProtectionCells float64 `json:"lake_protection_cells" hcl:"lake_protection_cells,optional"`

	// BasinShallowDepth is the distance from shore under which a lake bed is not lowered
	BasinShallowDepth float64 `json:"basin_shallow_depth" hcl:"basin_shallow_depth,optional"`

	// BasinDeepDepth is the distance from shore at which the full basin drop applies
	BasinDeepDepth float64 `json:"basin_deep_depth" hcl:"basin_deep_depth,optional"`

	// BasinDrop is the depth of the lake bed below the border elevation
	BasinDrop float64 `json:"basin_drop" hcl:"basin_drop,optional"`

	// MinWaterwayLength is the length under which waterways are ignored
	MinWaterwayLength float64 `json:"min_waterway_length" hcl:"min_waterway_length,optional"`

	// WaterwayDrop is how far below raw a waterway node wants to be
	WaterwayDrop float64 `json:"waterway_drop" hcl:"waterway_drop,optional"`

	// WaterwayMaxDepth is how far below raw a waterway node may go
	WaterwayMaxDepth float64 `json:"waterway_max_depth" hcl:"waterway_max_depth,optional"`

	// SmoothingWidthFactor multiplies the road width to get the smoothing window
	SmoothingWidthFactor float64 `json:"smoothing_width_factor" hcl:"smoothing_width_factor,optional"`

	// MaxGradedRoadType is the highest road type id that grades the terrain
	MaxGradedRoadType int `json:"max_graded_road_type" hcl:"max_graded_road_type,optional"`

	// MinForestArea is the area under which forests are ignored
	MinForestArea float64 `json:"min_forest_area" hcl:"min_forest_area,optional"`

	// ForestEdgeWidth is the width of the inner crown of a forest
	ForestEdgeWidth float64 `json:"forest_edge_width" hcl:"forest_edge_width,optional"`

	// GeometryResolution is the sampling step of polygon outlines derived from solids
	GeometryResolution float64 `json:"geometry_resolution" hcl:"geometry_resolution,optional"`

	// Workers bounds row-parallel raster work, 0 means GOMAXPROCS
	Workers int `json:"workers" hcl:"workers,optional"`
}

// RoadType is one entry of the road type library
type RoadType struct {
	// Name is the road type name, e.g. TwoLanesPrimaryRoad
	Name string `json:"name" hcl:"name,label"`

	// Width is the full paved width in meters
	Width float64 `json:"width" hcl:"width"`

	// ClearWidth is the width kept clear of vegetation in meters
	ClearWidth float64 `json:"clear_width" hcl:"clear_width,optional"`
}

// OutputConfig contains output-related settings
type OutputConfig struct {
	// Directory receives the elevation raster and debug images
	Directory string `json:"directory" hcl:"directory,optional"`

	// SaveMasks writes lake mask images next to the raster
	SaveMasks bool `json:"save_masks" hcl:"save_masks,optional"`
}

// DefaultProcessing returns the processing thresholds used when none are configured
func DefaultProcessing() Processing {
	return Processing{
		ResampleStep:         2,
		MinLakeCells:         5,
		LakeInsetCells:       2,
		LakeProtectionCells:  2,
		BasinShallowDepth:    10,
		BasinDeepDepth:       20,
		BasinDrop:            2.5,
		MinWaterwayLength:    10,
		WaterwayDrop:         1,
		WaterwayMaxDepth:     4,
		SmoothingWidthFactor: 4,
		MaxGradedRoadType:    4, // TwoLanesConcreteRoad
		MinForestArea:        200,
		ForestEdgeWidth:      2,
		GeometryResolution:   1,
		Workers:              0,
	}
}

// DefaultRoadTypes returns the built-in road type library
func DefaultRoadTypes() []RoadType {
	return []RoadType{
		{Name: "TwoLanesMotorway", Width: 12, ClearWidth: 16},
		{Name: "TwoLanesPrimaryRoad", Width: 8, ClearWidth: 12},
		{Name: "TwoLanesSecondaryRoad", Width: 7, ClearWidth: 10},
		{Name: "TwoLanesConcreteRoad", Width: 6, ClearWidth: 9},
		{Name: "SingleLaneDirtRoad", Width: 4, ClearWidth: 6},
		{Name: "SingleLaneDirtPath", Width: 3, ClearWidth: 4},
		{Name: "Trail", Width: 1.5, ClearWidth: 2},
	}
}

// Default returns a default configuration
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	outputDir := filepath.Join(homeDir, ".terrain-build", "output")

	return &Config{
		Version: "1.0",
		Area: AreaConfig{
			CellSize: 5,
			GridSize: 512,
		},
		Processing: DefaultProcessing(),
		Roads:      DefaultRoadTypes(),
		Logging:    logging.DefaultConfig(),
		Output: OutputConfig{
			Directory: outputDir,
			SaveMasks: false,
		},
	}
}

// Load loads configuration from a file.
// Files ending in .json are read as HCL's JSON syntax, anything else as native HCL.
// Attributes missing from the file keep their default values.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}

	parser := hclparse.NewParser()
	var file *hcl.File
	var diags hcl.Diagnostics
	if strings.EqualFold(filepath.Ext(path), ".json") {
		file, diags = parser.ParseJSONFile(path)
	} else {
		file, diags = parser.ParseHCLFile(path)
	}
	if diags.HasErrors() {
		return nil, errors.Config("failed to parse "+path, diags)
	}

	config := Default()
	if diags := config.decode(file.Body); diags.HasErrors() {
		return nil, errors.Config("failed to decode "+path, diags)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

var rootSchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "version"},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "area"},
		{Type: "processing"},
		{Type: "logging"},
		{Type: "output"},
		{Type: "road_type", LabelNames: []string{"name"}},
	},
}

// decode overlays the body onto c. Each block is decoded into the already
// populated struct, so optional attributes absent from the file keep their defaults.
func (c *Config) decode(body hcl.Body) hcl.Diagnostics {
	content, diags := body.Content(rootSchema)

	if attr, ok := content.Attributes["version"]; ok {
		diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &c.Version)...)
	}

	for _, block := range content.Blocks {
		switch block.Type {
		case "area":
			diags = append(diags, gohcl.DecodeBody(block.Body, nil, &c.Area)...)
		case "processing":
			diags = append(diags, gohcl.DecodeBody(block.Body, nil, &c.Processing)...)
		case "logging":
			diags = append(diags, gohcl.DecodeBody(block.Body, nil, &c.Logging)...)
		case "output":
			diags = append(diags, gohcl.DecodeBody(block.Body, nil, &c.Output)...)
		case "road_type":
			var road RoadType
			diags = append(diags, gohcl.DecodeBody(block.Body, nil, &road)...)
			road.Name = block.Labels[0]
			c.SetRoadType(road)
		}
	}
	return diags
}

// SetRoadType replaces the library entry with the same name, or appends a new one
func (c *Config) SetRoadType(road RoadType) {
	for i := range c.Roads {
		if c.Roads[i].Name == road.Name {
			c.Roads[i] = road
			return
		}
	}
	c.Roads = append(c.Roads, road)
}

// RoadType returns the library entry for name
func (c *Config) RoadType(name string) (RoadType, bool) {
	for _, road := range c.Roads {
		if road.Name == name {
			return road, true
		}
	}
	return RoadType{}, false
}

// Validate reports every invalid setting at once
func (c *Config) Validate() error {
	var err error

	if c.Area.CellSize <= 0 {
		err = multierr.Append(err, fmt.Errorf("area.cell_size must be positive, got %v", c.Area.CellSize))
	}
	if c.Area.GridSize < 2 {
		err = multierr.Append(err, fmt.Errorf("area.grid_size must be at least 2, got %d", c.Area.GridSize))
	}

	err = multierr.Append(err, c.Processing.Validate())

	seen := make(map[string]bool, len(c.Roads))
	for _, road := range c.Roads {
		if seen[road.Name] {
			err = multierr.Append(err, fmt.Errorf("road type %q defined twice", road.Name))
		}
		seen[road.Name] = true
		if road.Width <= 0 {
			err = multierr.Append(err, fmt.Errorf("road type %q: width must be positive, got %v", road.Name, road.Width))
		}
	}

	switch c.Logging.Format {
	case "console", "json":
	default:
		err = multierr.Append(err, fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format))
	}

	if err != nil {
		return errors.Config("invalid configuration", err)
	}
	return nil
}

// Validate reports every invalid processing threshold at once
func (p Processing) Validate() error {
	var err error

	positive := map[string]float64{
		"processing.resample_step":          p.ResampleStep,
		"processing.smoothing_width_factor": p.SmoothingWidthFactor,
		"processing.geometry_resolution":    p.GeometryResolution,
	}
	for _, name := range sortedKeys(positive) {
		if positive[name] <= 0 {
			err = multierr.Append(err, fmt.Errorf("%s must be positive, got %v", name, positive[name]))
		}
	}

	nonNegative := map[string]float64{
		"processing.min_lake_cells":        p.MinLakeCells,
		"processing.lake_inset_cells":      p.LakeInsetCells,
		"processing.lake_protection_cells": p.LakeProtectionCells,
		"processing.basin_drop":            p.BasinDrop,
		"processing.min_waterway_length":   p.MinWaterwayLength,
		"processing.waterway_drop":         p.WaterwayDrop,
		"processing.waterway_max_depth":    p.WaterwayMaxDepth,
		"processing.min_forest_area":       p.MinForestArea,
		"processing.forest_edge_width":     p.ForestEdgeWidth,
	}
	for _, name := range sortedKeys(nonNegative) {
		if nonNegative[name] < 0 {
			err = multierr.Append(err, fmt.Errorf("%s must not be negative, got %v", name, nonNegative[name]))
		}
	}

	if p.BasinDeepDepth < p.BasinShallowDepth {
		err = multierr.Append(err, fmt.Errorf("processing.basin_deep_depth (%v) must not be below basin_shallow_depth (%v)",
			p.BasinDeepDepth, p.BasinShallowDepth))
	}
	if p.WaterwayMaxDepth < p.WaterwayDrop {
		err = multierr.Append(err, fmt.Errorf("processing.waterway_max_depth (%v) must not be below waterway_drop (%v)",
			p.WaterwayMaxDepth, p.WaterwayDrop))
	}
	if p.Workers < 0 {
		err = multierr.Append(err, fmt.Errorf("processing.workers must not be negative, got %d", p.Workers))
	}
	return err
}

// Encode renders the configuration in the HCL syntax Load reads
func (c *Config) Encode() []byte {
	file := hclwrite.NewEmptyFile()
	body := file.Body()

	body.SetAttributeValue("version", cty.StringVal(c.Version))
	body.AppendNewline()
	body.AppendBlock(gohcl.EncodeAsBlock(c.Area, "area"))
	body.AppendNewline()
	body.AppendBlock(gohcl.EncodeAsBlock(c.Processing, "processing"))
	body.AppendNewline()
	body.AppendBlock(gohcl.EncodeAsBlock(c.Logging, "logging"))
	body.AppendNewline()
	body.AppendBlock(gohcl.EncodeAsBlock(c.Output, "output"))
	for _, road := range c.Roads {
		body.AppendNewline()
		body.AppendBlock(gohcl.EncodeAsBlock(road, "road_type"))
	}

	return hclwrite.Format(file.Bytes())
}

// Save saves configuration to a file
func (c *Config) Save(path string) error {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, c.Encode(), 0644)
}

// Global configuration instance
var globalConfig = Default()

// Get returns the global configuration
func Get() *Config {
	return globalConfig
}

// Set sets the global configuration
func Set(config *Config) {
	globalConfig = config
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
