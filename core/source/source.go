// Package source - Vector survey data consumed by the build stages
package source

import (
	"sort"
	"strconv"
	"sync"

	"terrain-build/core/geometry"
)

// Category identifies the layer a feature belongs to
type Category string

const (
	CategoryRoad     Category = "road"
	CategoryWaterway Category = "waterway"
	CategoryLake     Category = "lake"
	CategoryForest   Category = "forest"
	CategoryBuilding Category = "building"
)

// Categories lists every known category
func Categories() []Category {
	return []Category{CategoryRoad, CategoryWaterway, CategoryLake, CategoryForest, CategoryBuilding}
}

// Feature is one surveyed object.
// Linear features carry a Path, areal features a Polygon.
type Feature struct {
	ID         string
	Category   Category
	Attributes map[string]string
	Path       *geometry.Path
	Polygon    *geometry.Polygon
}

// Attr returns an attribute value, or def when absent
func (f Feature) Attr(name, def string) string {
	if v, ok := f.Attributes[name]; ok && v != "" {
		return v
	}
	return def
}

// BoolAttr returns an attribute parsed as a boolean, false when absent or invalid
func (f Feature) BoolAttr(name string) bool {
	v, err := strconv.ParseBool(f.Attributes[name])
	return err == nil && v
}

// VectorSource provides features by category
type VectorSource interface {
	Features(category Category) []Feature
}

// MemorySource is a VectorSource backed by slices
type MemorySource struct {
	mu       sync.RWMutex
	features map[Category][]Feature
}

// NewMemorySource creates a source holding features
func NewMemorySource(features ...Feature) *MemorySource {
	s := &MemorySource{features: make(map[Category][]Feature)}
	s.Add(features...)
	return s
}

// Add appends features
func (s *MemorySource) Add(features ...Feature) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range features {
		s.features[f.Category] = append(s.features[f.Category], f)
	}
}

// Features returns the features of a category in insertion order
func (s *MemorySource) Features(category Category) []Feature {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Feature(nil), s.features[category]...)
}

// Counts returns the number of features per category
func (s *MemorySource) Counts() map[Category]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[Category]int, len(s.features))
	for c, fs := range s.features {
		counts[c] = len(fs)
	}
	return counts
}

// SortedCategories returns the categories holding features, sorted
func (s *MemorySource) SortedCategories() []Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Category, 0, len(s.features))
	for c := range s.features {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
