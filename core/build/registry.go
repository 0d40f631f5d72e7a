// Package build - Build graph registry and execution context
// Stages produce one artifact kind each and pull the kinds they depend on
// from the context, which runs every stage at most once per build.
package build

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"

	"terrain-build/core/progress"
	"terrain-build/internal/errors"
)

// Kind names an artifact produced by exactly one stage
type Kind string

// Key is a typed handle on a kind whose artifacts have type T
type Key[T any] struct {
	kind Kind
}

// NewKey creates a key for kind
func NewKey[T any](kind Kind) Key[T] {
	return Key[T]{kind: kind}
}

// Kind returns the kind of the key
func (k Key[T]) Kind() Kind {
	return k.kind
}

// String returns the kind name
func (k Key[T]) String() string {
	return string(k.kind)
}

// Stage produces the artifact of one kind.
// Produce may block, including on other kinds requested through bc.
type Stage[T any] interface {
	Produce(ctx context.Context, bc *Context, scope progress.Scope) (T, error)
}

// StageFunc adapts a function to a Stage
type StageFunc[T any] func(ctx context.Context, bc *Context, scope progress.Scope) (T, error)

// Produce calls f
func (f StageFunc[T]) Produce(ctx context.Context, bc *Context, scope progress.Scope) (T, error) {
	return f(ctx, bc, scope)
}

// entry is a registered stage with its artifact type erased
type entry struct {
	kind     Kind
	artifact reflect.Type
	stage    string
	produce  func(ctx context.Context, bc *Context, scope progress.Scope) (any, error)
}

// Registry maps kinds to the stages producing them.
// It is populated once at startup and read concurrently afterwards.
type Registry struct {
	mu      sync.RWMutex
	entries map[Kind]*entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{entries: make(map[Kind]*entry)}
}

// Register adds the stage producing key's kind.
// Registering a kind twice fails.
func Register[T any](r *Registry, key Key[T], stage Stage[T]) error {
	if stage == nil {
		return errors.Newf(errors.TypeConfig, "nil stage for kind: %s", key.kind)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[key.kind]; exists {
		return errors.DuplicateKind(string(key.kind))
	}

	r.entries[key.kind] = &entry{
		kind:     key.kind,
		artifact: reflect.TypeOf((*T)(nil)).Elem(),
		stage:    fmt.Sprintf("%T", stage),
		produce: func(ctx context.Context, bc *Context, scope progress.Scope) (any, error) {
			return stage.Produce(ctx, bc, scope)
		},
	}
	return nil
}

// MustRegister is Register for startup wiring; it panics on error
func MustRegister[T any](r *Registry, key Key[T], stage Stage[T]) {
	if err := Register(r, key, stage); err != nil {
		panic(err)
	}
}

// lookup returns the entry for kind
func (r *Registry) lookup(kind Kind) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[kind]
	if !ok {
		return nil, errors.UnregisteredKind(string(kind))
	}
	return e, nil
}

// Has reports whether a stage is registered for kind
func (r *Registry) Has(kind Kind) bool {
	_, err := r.lookup(kind)
	return err == nil
}

// Len returns the number of registered kinds
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Kinds returns every registered kind, sorted
func (r *Registry) Kinds() []Kind {
	return r.AllOfType(func(reflect.Type) bool { return true })
}

// Describe returns the artifact type and stage type registered for kind
func (r *Registry) Describe(kind Kind) (artifact reflect.Type, stage string, err error) {
	e, err := r.lookup(kind)
	if err != nil {
		return nil, "", err
	}
	return e.artifact, e.stage, nil
}

// AllOfType returns the kinds whose artifact type satisfies match, sorted
func (r *Registry) AllOfType(match func(reflect.Type) bool) []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var kinds []Kind
	for kind, e := range r.entries {
		if match(e.artifact) {
			kinds = append(kinds, kind)
		}
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Implements returns a predicate matching artifact types assignable to C
func Implements[C any]() func(reflect.Type) bool {
	target := reflect.TypeOf((*C)(nil)).Elem()
	return func(t reflect.Type) bool {
		return t.AssignableTo(target)
	}
}
