// Package ui - Build runner with live stage progress
package ui

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"terrain-build/core/build"
	"terrain-build/core/catalog"
	"terrain-build/core/engine"
	"terrain-build/core/progress"
)

// TerminalScope prints stage scopes as they finish.
// Nested scopes are indented by depth; steps print their item count on close.
type TerminalScope struct {
	w     *Writer
	name  string
	depth int
	start time.Time
}

// NewTerminalScope creates a root scope printing to w
func NewTerminalScope(w *Writer, name string) *TerminalScope {
	return &TerminalScope{w: w, name: name, start: time.Now()}
}

// Name implements progress.Scope
func (s *TerminalScope) Name() string { return s.name }

// CreateScope implements progress.Scope
func (s *TerminalScope) CreateScope(name string) progress.Scope {
	child := &TerminalScope{w: s.w, name: s.name + "." + name, depth: s.depth + 1, start: time.Now()}
	s.w.Debug("%s%s started", strings.Repeat("  ", child.depth-1), name)
	return child
}

// CreateStep implements progress.Scope
func (s *TerminalScope) CreateStep(name string, total int) progress.Step {
	return &terminalStep{scope: s, name: name, total: total}
}

// Close implements progress.Scope
func (s *TerminalScope) Close() {
	if s.depth == 0 {
		return
	}
	short := s.name[strings.LastIndex(s.name, ".")+1:]
	s.w.Info("%s%s %s", strings.Repeat("  ", s.depth-1), short,
		s.w.color(Dim, formatDuration(time.Since(s.start))))
}

type terminalStep struct {
	scope *TerminalScope
	name  string
	total int
	done  atomic.Int64
}

func (s *terminalStep) ReportOneDone() { s.done.Add(1) }

func (s *terminalStep) ReportItemsDone(n int) { s.done.Add(int64(n)) }

func (s *terminalStep) Close() {
	s.scope.w.Debug("%s%s %d/%d", strings.Repeat("  ", s.scope.depth), s.name, s.done.Load(), s.total)
}

// BuildRunner runs builds with terminal feedback
type BuildRunner struct {
	w      *Writer
	engine *engine.Engine
}

// NewBuildRunner creates a runner over eng
func NewBuildRunner(w *Writer, eng *engine.Engine) *BuildRunner {
	return &BuildRunner{w: w, engine: eng}
}

// Run executes the build and prints progress. req.Progress is replaced by a
// terminal scope combined with any scope already set.
func (r *BuildRunner) Run(ctx context.Context, req engine.BuildRequest) (*engine.BuildResult, error) {
	r.w.Header("Terrain Build")

	var root progress.Scope = NewTerminalScope(r.w, "build")
	if req.Progress != nil {
		root = progress.Multi(req.Progress, root)
	}
	req.Progress = root

	result, err := r.engine.Build(ctx, &req)
	if err != nil {
		r.w.Error("Build failed: %v", err)
		return nil, err
	}
	return result, nil
}

// DisplayResult shows the outcome of a build
func (r *BuildRunner) DisplayResult(result *engine.BuildResult) {
	r.w.Println("")
	r.w.SubHeader("Stages")
	StageTable(r.w, r.engine.Catalog(), result.Stats).Render()

	if result.Elevation != nil {
		min, max, mean := result.Elevation.Grid.Stats()
		report := result.Elevation.Report

		r.w.Println("")
		r.w.SubHeader("Elevation")
		r.w.Println("  Grid:      %dx%d nodes, %g m cells", result.Elevation.Grid.Width, result.Elevation.Grid.Height, result.Elevation.Grid.CellSize)
		r.w.Println("  Range:     %.2f to %.2f m (mean %.2f)", min, max, mean)
		r.w.Println("  Lakes:     %d carved", len(result.Elevation.Lakes))
		r.w.Println("  Pinned:    %d of %d nodes", report.Pinned, report.Nodes)
		r.w.Println("  Relations: %d over %d sweeps", report.Relations, report.Iterations)
		if report.Conflicts > 0 {
			r.w.Warning("%d conflicting pins, last write kept", report.Conflicts)
		}
		if report.Unresolved > 0 {
			r.w.Warning("%d relations still violated after the sweep limit", report.Unresolved)
		}
	}

	if len(result.Layers) > 0 {
		r.w.Println("")
		r.w.SubHeader("Layers")
		table := r.w.NewTable("Layer", "Polygons", "Area (m²)")
		for _, layer := range result.Layers {
			var area float64
			polygons := layer.LayerPolygons()
			for _, p := range polygons {
				area += p.Area()
			}
			table.AddRow(layer.LayerName(), fmt.Sprintf("%d", len(polygons)), fmt.Sprintf("%.0f", area))
		}
		table.Render()
	}

	r.w.Println("")
	r.w.Success("Built in %s (%d stages)", formatDuration(result.Duration), result.Stats.Invocations)
	r.w.Debug("run %s", result.RunID)
}

// StageTable lists every cataloged kind with its state in stats.
// Kinds absent from stats were never requested.
func StageTable(w *Writer, cat *catalog.Catalog, stats build.Stats) *Table {
	byKind := make(map[build.Kind]build.StageStat, len(stats.Stages))
	for _, s := range stats.Stages {
		byKind[s.Kind] = s
	}

	table := w.NewTable("Kind", "State", "Duration", "Depends on")
	for _, entry := range cat.Entries() {
		state, duration := build.Unstarted.String(), ""
		if s, ok := byKind[entry.Kind]; ok {
			state = s.State.String()
			if s.Seeded {
				state += " (seeded)"
			} else if s.State == build.Ready || s.State == build.Failed {
				duration = formatDuration(s.Duration)
			}
		}
		deps := make([]string, len(entry.DependsOn))
		for i, d := range entry.DependsOn {
			deps[i] = string(d)
		}
		table.AddRow(string(entry.Kind), state, duration, strings.Join(deps, ", "))
	}
	return table
}
