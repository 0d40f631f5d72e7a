// Package progress - Hierarchical progress reporting for build stages
// A scope is opened per stage; long loops inside a stage report through steps.
package progress

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Scope is a named unit of work that may contain nested scopes and steps
type Scope interface {
	// Name returns the full dotted name of the scope
	Name() string

	// CreateScope opens a nested scope
	CreateScope(name string) Scope

	// CreateStep opens a counted step with an expected number of items
	CreateStep(name string, total int) Step

	// Close ends the scope
	Close()
}

// Step counts finished items of a loop
type Step interface {
	ReportOneDone()
	ReportItemsDone(n int)
	Close()
}

func join(parent, name string) string {
	if parent == "" {
		return name
	}
	return parent + "." + name
}

// LogScope reports scopes and steps to a zap logger
type LogScope struct {
	logger *zap.Logger
	name   string
	start  time.Time
}

// NewLogScope creates a root scope logging to logger
func NewLogScope(logger *zap.Logger, name string) *LogScope {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogScope{logger: logger, name: name, start: time.Now()}
}

// Name returns the scope name
func (s *LogScope) Name() string {
	return s.name
}

// CreateScope opens a nested scope
func (s *LogScope) CreateScope(name string) Scope {
	full := join(s.name, name)
	s.logger.Debug("scope started", zap.String("scope", full))
	return &LogScope{logger: s.logger, name: full, start: time.Now()}
}

// CreateStep opens a step
func (s *LogScope) CreateStep(name string, total int) Step {
	return &logStep{
		logger: s.logger,
		name:   join(s.name, name),
		total:  total,
		start:  time.Now(),
	}
}

// Close logs the scope duration
func (s *LogScope) Close() {
	s.logger.Debug("scope finished",
		zap.String("scope", s.name),
		zap.Duration("duration", time.Since(s.start)))
}

type logStep struct {
	logger *zap.Logger
	name   string
	total  int
	done   atomic.Int64
	start  time.Time
	once   sync.Once
}

func (s *logStep) ReportOneDone() {
	s.done.Add(1)
}

func (s *logStep) ReportItemsDone(n int) {
	s.done.Add(int64(n))
}

func (s *logStep) Close() {
	s.once.Do(func() {
		s.logger.Debug("step finished",
			zap.String("step", s.name),
			zap.Int64("done", s.done.Load()),
			zap.Int("total", s.total),
			zap.Duration("duration", time.Since(s.start)))
	})
}

// Nop returns a scope that reports nothing
func Nop() Scope {
	return nopScope{}
}

type nopScope struct{}

func (nopScope) Name() string { return "" }
func (nopScope) CreateScope(string) Scope { return nopScope{} }
func (nopScope) CreateStep(string, int) Step { return nopStep{} }
func (nopScope) Close() {}

type nopStep struct{}

func (nopStep) ReportOneDone() {}
func (nopStep) ReportItemsDone(int) {}
func (nopStep) Close() {}

// Multi fans every call out to several scopes
func Multi(scopes ...Scope) Scope {
	return multiScope(scopes)
}

type multiScope []Scope

func (m multiScope) Name() string {
	if len(m) == 0 {
		return ""
	}
	return m[0].Name()
}

func (m multiScope) CreateScope(name string) Scope {
	children := make(multiScope, len(m))
	for i, s := range m {
		children[i] = s.CreateScope(name)
	}
	return children
}

func (m multiScope) CreateStep(name string, total int) Step {
	steps := make(multiStep, len(m))
	for i, s := range m {
		steps[i] = s.CreateStep(name, total)
	}
	return steps
}

func (m multiScope) Close() {
	for _, s := range m {
		s.Close()
	}
}

type multiStep []Step

func (m multiStep) ReportOneDone() {
	for _, s := range m {
		s.ReportOneDone()
	}
}

func (m multiStep) ReportItemsDone(n int) {
	for _, s := range m {
		s.ReportItemsDone(n)
	}
}

func (m multiStep) Close() {
	for _, s := range m {
		s.Close()
	}
}
