// Package catalog - Authoritative stage catalog
// Declares every data kind of the pipeline, the stage producing it and the
// kinds it depends on, and registers the stages into a build registry.
package catalog

import (
	"sort"

	"terrain-build/core/build"
	"terrain-build/core/buildings"
	"terrain-build/core/elevation"
	"terrain-build/core/nature"
	"terrain-build/core/roads"
	"terrain-build/core/water"
	"terrain-build/internal/config"
	"terrain-build/internal/errors"
)

// Entry is a catalog entry for a data kind
type Entry struct {
	Kind        build.Kind
	Description string

	// Layer is set for kinds whose artifact is a polygon layer
	Layer bool

	// DependsOn lists the kinds the stage requests
	DependsOn []build.Kind
}

// Catalog is the authoritative list of data kinds
type Catalog struct {
	entries map[build.Kind]*Entry
}

// NewCatalog creates an empty catalog
func NewCatalog() *Catalog {
	return &Catalog{
		entries: make(map[build.Kind]*Entry),
	}
}

// Add adds an entry to the catalog
func (c *Catalog) Add(entry Entry) {
	c.entries[entry.Kind] = &entry
}

// Get returns the entry of kind
func (c *Catalog) Get(kind build.Kind) (*Entry, bool) {
	entry, ok := c.entries[kind]
	return entry, ok
}

// Entries returns every entry sorted by kind
func (c *Catalog) Entries() []*Entry {
	out := make([]*Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// Stats returns catalog statistics
func (c *Catalog) Stats() Stats {
	var stats Stats
	for _, entry := range c.entries {
		stats.Total++
		if entry.Layer {
			stats.Layers++
		}
		if len(entry.DependsOn) == 0 {
			stats.Roots++
		}
	}
	return stats
}

// Stats holds catalog statistics
type Stats struct {
	Total  int
	Layers int
	Roots  int
}

// Options configures the stages registered by New
type Options struct {
	// Roads is the road type library
	Roads []config.RoadType

	// Elevation is the raw elevation source
	Elevation elevation.Source

	// SaveMasks keeps lake masks in scratch storage
	SaveMasks bool
}

// New registers every stage of the pipeline into a fresh registry and
// returns it with the matching catalog
func New(opts Options) (*build.Registry, *Catalog, error) {
	reg := build.NewRegistry()
	cat := NewCatalog()

	steps := []func() error{
		func() error {
			cat.Add(Entry{Kind: elevation.RawKey.Kind(), Description: "survey elevation on the area grid"})
			return build.Register(reg, elevation.RawKey, elevation.RawBuilder{Source: opts.Elevation})
		},
		func() error {
			cat.Add(Entry{Kind: roads.Key.Kind(), Description: "typed road center lines"})
			return build.Register(reg, roads.Key, roads.NewBuilder(opts.Roads))
		},
		func() error {
			cat.Add(Entry{Kind: water.LakesKey.Kind(), Description: "merged lake surfaces", Layer: true})
			return build.Register(reg, water.LakesKey, water.LakesBuilder{})
		},
		func() error {
			cat.Add(Entry{
				Kind:        water.WaterwaysKey.Kind(),
				Description: "waterway paths outside lakes",
				DependsOn:   []build.Kind{water.LakesKey.Kind()},
			})
			return build.Register(reg, water.WaterwaysKey, water.WaterwaysBuilder{})
		},
		func() error {
			cat.Add(Entry{
				Kind:        elevation.Key.Kind(),
				Description: "elevation corrected for lakes, roads and waterways",
				DependsOn: []build.Kind{
					elevation.RawKey.Kind(), roads.Key.Kind(), water.LakesKey.Kind(), water.WaterwaysKey.Kind(),
				},
			})
			return build.Register(reg, elevation.Key, elevation.Builder{SaveMasks: opts.SaveMasks})
		},
		func() error {
			cat.Add(Entry{Kind: buildings.Key.Kind(), Description: "building footprints", Layer: true})
			return build.Register(reg, buildings.Key, buildings.Builder{})
		},
		func() error {
			cat.Add(Entry{Kind: nature.ForestsKey.Kind(), Description: "merged forest areas", Layer: true})
			return build.Register(reg, nature.ForestsKey, nature.ForestsBuilder{})
		},
		func() error {
			cat.Add(Entry{
				Kind:        nature.ForestEdgesKey.Kind(),
				Description: "forest border band clear of trails and buildings",
				Layer:       true,
				DependsOn:   []build.Kind{nature.ForestsKey.Kind(), roads.Key.Kind(), buildings.Key.Kind()},
			})
			return build.Register(reg, nature.ForestEdgesKey, nature.ForestEdgesBuilder{})
		},
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, nil, err
		}
	}

	if err := cat.Validate(reg, DefaultValidationRules()); err != nil {
		return nil, nil, err
	}
	return reg, cat, nil
}

// Order returns the kinds sorted so that every kind follows its dependencies.
// Ties are broken by kind name. A dependency cycle is an error.
func (c *Catalog) Order() ([]build.Kind, error) {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[build.Kind]int, len(c.entries))
	var order []build.Kind

	var visit func(kind build.Kind, path []build.Kind) error
	visit = func(kind build.Kind, path []build.Kind) error {
		switch state[kind] {
		case done:
			return nil
		case visiting:
			return errors.Newf(errors.TypeConfig, "dependency cycle: %v", append(path, kind))
		}
		state[kind] = visiting
		if entry, ok := c.entries[kind]; ok {
			deps := append([]build.Kind(nil), entry.DependsOn...)
			sort.Slice(deps, func(i, j int) bool { return deps[i] < deps[j] })
			for _, dep := range deps {
				if err := visit(dep, append(path, kind)); err != nil {
					return err
				}
			}
		}
		state[kind] = done
		order = append(order, kind)
		return nil
	}

	for _, entry := range c.Entries() {
		if err := visit(entry.Kind, nil); err != nil {
			return nil, err
		}
	}
	return order, nil
}
