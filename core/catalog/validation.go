// Package catalog - Catalog validation
// Ensures the catalog and the registry agree and enforces invariants.
package catalog

import (
	"fmt"

	"go.uber.org/multierr"

	"terrain-build/core/build"
	"terrain-build/core/geometry"
	"terrain-build/internal/errors"
)

// ValidationRule is a catalog validation rule
type ValidationRule func(e *Entry, c *Catalog, reg *build.Registry) error

// DefaultValidationRules returns the standard validation rules
func DefaultValidationRules() []ValidationRule {
	return []ValidationRule{
		validateRegistered,
		validateDependencies,
		validateLayer,
	}
}

// Validate checks a catalog against a registry; all problems are reported together
func (c *Catalog) Validate(reg *build.Registry, rules []ValidationRule) error {
	var err error
	for _, entry := range c.Entries() {
		for _, rule := range rules {
			if ruleErr := rule(entry, c, reg); ruleErr != nil {
				err = multierr.Append(err, fmt.Errorf("%s: %w", entry.Kind, ruleErr))
			}
		}
	}
	if _, orderErr := c.Order(); orderErr != nil {
		err = multierr.Append(err, orderErr)
	}
	for _, kind := range reg.Kinds() {
		if _, ok := c.Get(kind); !ok {
			err = multierr.Append(err, fmt.Errorf("%s: registered but not cataloged", kind))
		}
	}
	if err != nil {
		return errors.Config("stage catalog is inconsistent", err)
	}
	return nil
}

// validateRegistered ensures every cataloged kind has a stage
func validateRegistered(e *Entry, _ *Catalog, reg *build.Registry) error {
	if !reg.Has(e.Kind) {
		return fmt.Errorf("no stage registered")
	}
	return nil
}

// validateDependencies ensures dependencies are cataloged and not self-referencing
func validateDependencies(e *Entry, c *Catalog, _ *build.Registry) error {
	for _, dep := range e.DependsOn {
		if dep == e.Kind {
			return fmt.Errorf("depends on itself")
		}
		if _, ok := c.Get(dep); !ok {
			return fmt.Errorf("depends on unknown kind %s", dep)
		}
	}
	return nil
}

// validateLayer ensures the layer flag matches the artifact type
func validateLayer(e *Entry, _ *Catalog, reg *build.Registry) error {
	artifact, _, err := reg.Describe(e.Kind)
	if err != nil {
		return nil
	}
	isLayer := build.Implements[geometry.PolygonLayer]()(artifact)
	if isLayer != e.Layer {
		return fmt.Errorf("layer flag is %v but artifact %s disagrees", e.Layer, artifact)
	}
	return nil
}
