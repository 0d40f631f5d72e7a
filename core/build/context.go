package build

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"terrain-build/core/area"
	"terrain-build/core/progress"
	"terrain-build/core/scratch"
	"terrain-build/core/source"
	"terrain-build/internal/config"
	"terrain-build/internal/errors"
)

// State is the lifecycle state of a kind within one context
type State int

const (
	// Unstarted means nobody requested or seeded the kind yet
	Unstarted State = iota
	// InFlight means the stage is running
	InFlight
	// Ready means the artifact is available
	Ready
	// Failed means the stage returned an error; it is not retried
	Failed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case InFlight:
		return "in-flight"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// cell holds the outcome of one kind. done is closed exactly once,
// after value and err are written; readers wait on it before reading them.
type cell struct {
	done     chan struct{}
	value    any
	err      error
	seeded   bool
	started  time.Time
	duration time.Duration
}

func (c *cell) state() State {
	select {
	case <-c.done:
		if c.err != nil {
			return Failed
		}
		return Ready
	default:
		return InFlight
	}
}

// Context runs stages on demand and caches their artifacts for one build.
// Every kind is produced at most once; concurrent requests share the result.
type Context struct {
	registry *Registry

	// mu guards cells; it is never held while a stage runs
	mu    sync.Mutex
	cells map[Kind]*cell

	base   context.Context
	cancel context.CancelFunc

	area    area.TerrainArea
	source  source.VectorSource
	options *config.Processing
	scratch scratch.Storage
	logger  *zap.Logger
	root    progress.Scope
	runID   string
}

// ContextOption configures a Context
type ContextOption func(*Context)

// WithArea sets the terrain area
func WithArea(a area.TerrainArea) ContextOption {
	return func(bc *Context) { bc.area = a }
}

// WithSource sets the vector data source
func WithSource(s source.VectorSource) ContextOption {
	return func(bc *Context) { bc.source = s }
}

// WithOptions sets the processing thresholds
func WithOptions(p config.Processing) ContextOption {
	return func(bc *Context) { bc.options = &p }
}

// WithScratch sets the scratch image storage
func WithScratch(s scratch.Storage) ContextOption {
	return func(bc *Context) { bc.scratch = s }
}

// WithLogger sets the logger
func WithLogger(l *zap.Logger) ContextOption {
	return func(bc *Context) { bc.logger = l }
}

// WithProgress sets the root progress scope
func WithProgress(s progress.Scope) ContextOption {
	return func(bc *Context) { bc.root = s }
}

// NewContext creates a build context over reg
func NewContext(reg *Registry, opts ...ContextOption) *Context {
	defaults := config.DefaultProcessing()
	bc := &Context{
		registry: reg,
		cells:    make(map[Kind]*cell),
		source:   source.NewMemorySource(),
		options:  &defaults,
		runID:    uuid.NewString(),
	}
	for _, opt := range opts {
		opt(bc)
	}
	if bc.logger == nil {
		bc.logger = zap.NewNop()
	}
	bc.logger = bc.logger.With(zap.String("run_id", bc.runID))
	if bc.scratch == nil {
		bc.scratch = scratch.NewMemoryStorage()
	}
	if bc.root == nil {
		bc.root = progress.NewLogScope(bc.logger, "build")
	}
	bc.base, bc.cancel = context.WithCancel(context.Background())
	return bc
}

// Registry returns the stage registry
func (bc *Context) Registry() *Registry { return bc.registry }

// Area returns the terrain area
func (bc *Context) Area() area.TerrainArea { return bc.area }

// Source returns the vector data source
func (bc *Context) Source() source.VectorSource { return bc.source }

// Options returns the processing thresholds
func (bc *Context) Options() *config.Processing { return bc.options }

// Scratch returns the scratch image storage
func (bc *Context) Scratch() scratch.Storage { return bc.scratch }

// Logger returns the build logger
func (bc *Context) Logger() *zap.Logger { return bc.logger }

// RootScope returns the root progress scope
func (bc *Context) RootScope() progress.Scope { return bc.root }

// RunID returns the unique id of this build
func (bc *Context) RunID() string { return bc.runID }

// Get returns the artifact of key's kind, running its stage if nobody has yet.
// The stage runs on its own goroutine in a progress scope named after the kind,
// opened under parent (the root scope when omitted). Cancelling ctx only stops
// this caller from waiting; the stage keeps running for other requesters.
func Get[T any](ctx context.Context, bc *Context, key Key[T], parent ...progress.Scope) (T, error) {
	var zero T
	scope := bc.root
	if len(parent) > 0 && parent[0] != nil {
		scope = parent[0]
	}

	value, err := bc.resolve(ctx, key.kind, scope)
	if err != nil {
		return zero, err
	}
	typed, ok := value.(T)
	if !ok {
		return zero, errors.Newf(errors.TypeInternal, "kind %s holds %T, not %T", key.kind, value, zero)
	}
	return typed, nil
}

// Set seeds the artifact of key's kind so that no stage runs for it.
// Seeding a kind that was already requested or seeded fails.
func Set[T any](bc *Context, key Key[T], value T) error {
	bc.mu.Lock()
	defer bc.mu.Unlock()

	if _, exists := bc.cells[key.kind]; exists {
		return errors.AlreadyResolved(string(key.kind))
	}
	c := &cell{done: make(chan struct{}), value: value, seeded: true}
	close(c.done)
	bc.cells[key.kind] = c
	return nil
}

// OfType resolves every registered kind whose artifact implements C, concurrently.
// Results are ordered by kind name.
func OfType[C any](ctx context.Context, bc *Context) ([]C, error) {
	kinds := bc.registry.AllOfType(Implements[C]())
	out := make([]C, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		i, kind := i, kind
		g.Go(func() error {
			value, err := bc.resolve(gctx, kind, bc.root)
			if err != nil {
				return err
			}
			typed, ok := value.(C)
			if !ok {
				return errors.Newf(errors.TypeInternal, "kind %s holds %T", kind, value)
			}
			out[i] = typed
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// resolve returns the cell outcome for kind, starting its stage when needed
func (bc *Context) resolve(ctx context.Context, kind Kind, parent progress.Scope) (any, error) {
	c, err := bc.acquire(kind, parent)
	if err != nil {
		return nil, err
	}

	select {
	case <-c.done:
		return c.value, c.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// acquire returns the cell for kind, inserting it and starting the stage on first request.
// An unregistered kind fails here, before anything is started.
func (bc *Context) acquire(kind Kind, parent progress.Scope) (*cell, error) {
	bc.mu.Lock()
	if c, ok := bc.cells[kind]; ok {
		bc.mu.Unlock()
		return c, nil
	}

	e, err := bc.registry.lookup(kind)
	if err != nil {
		bc.mu.Unlock()
		return nil, err
	}

	c := &cell{done: make(chan struct{}), started: time.Now()}
	bc.cells[kind] = c
	bc.mu.Unlock()

	go bc.run(e, c, parent)
	return c, nil
}

// run executes the stage of e and publishes its outcome to c
func (bc *Context) run(e *entry, c *cell, parent progress.Scope) {
	logger := bc.logger.With(zap.String("kind", string(e.kind)))
	logger.Debug("stage started", zap.String("stage", e.stage))

	scope := parent.CreateScope(string(e.kind))
	value, err := bc.invoke(e, scope)
	scope.Close()

	c.duration = time.Since(c.started)
	if err != nil {
		c.err = errors.Stage(string(e.kind), err)
		logger.Error("stage failed", zap.Duration("duration", c.duration), zap.Error(err))
	} else {
		c.value = value
		logger.Info("stage finished", zap.Duration("duration", c.duration))
	}
	close(c.done)
}

// invoke calls the stage, turning a panic into an error so that waiters never hang
func (bc *Context) invoke(e *entry, scope progress.Scope) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Internal(fmt.Sprintf("stage %s panicked", e.kind), fmt.Errorf("%v", r)).
				WithContext("stack", string(debug.Stack()))
		}
	}()
	return e.produce(bc.base, bc, scope)
}

// State returns the lifecycle state of kind
func (bc *Context) State(kind Kind) State {
	bc.mu.Lock()
	c, ok := bc.cells[kind]
	bc.mu.Unlock()
	if !ok {
		return Unstarted
	}
	return c.state()
}

// StageStat describes one kind after or during a build
type StageStat struct {
	Kind     Kind
	State    State
	Seeded   bool
	Duration time.Duration
	Err      error
}

// Stats summarises the stages of a build
type Stats struct {
	Stages      []StageStat
	Invocations int
	Failures    int
	Total       time.Duration
}

// Stats returns a snapshot of every kind touched so far, ordered by kind
func (bc *Context) Stats() Stats {
	bc.mu.Lock()
	kinds := make([]Kind, 0, len(bc.cells))
	cells := make(map[Kind]*cell, len(bc.cells))
	for kind, c := range bc.cells {
		kinds = append(kinds, kind)
		cells[kind] = c
	}
	bc.mu.Unlock()
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })

	var stats Stats
	for _, kind := range kinds {
		c := cells[kind]
		stat := StageStat{Kind: kind, State: c.state(), Seeded: c.seeded}
		if stat.State == Ready || stat.State == Failed {
			stat.Duration = c.duration
			stat.Err = c.err
		}
		if !c.seeded {
			stats.Invocations++
			stats.Total += stat.Duration
		}
		if stat.State == Failed {
			stats.Failures++
		}
		stats.Stages = append(stats.Stages, stat)
	}
	return stats
}

// Cancel cancels running stages; cached artifacts and scratch storage are kept
func (bc *Context) Cancel() {
	bc.cancel()
}

// Close cancels running stages and releases scratch storage
func (bc *Context) Close() error {
	bc.cancel()
	return bc.scratch.Close()
}
