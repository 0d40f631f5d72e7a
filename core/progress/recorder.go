package progress

import (
	"sort"
	"sync"
)

// Recorder is a scope that remembers what was opened and counted.
// Tests use it to check which stages ran and in which scope.
type Recorder struct {
	state *recorderState
	name  string
}

type recorderState struct {
	mu     sync.Mutex
	scopes []string
	closed map[string]int
	steps  map[string]*StepRecord
}

// StepRecord is the final state of a recorded step
type StepRecord struct {
	Total  int
	Done   int
	Closed bool
}

// NewRecorder creates an empty recorder rooted at name
func NewRecorder(name string) *Recorder {
	return &Recorder{
		name: name,
		state: &recorderState{
			closed: make(map[string]int),
			steps:  make(map[string]*StepRecord),
		},
	}
}

// Name returns the scope name
func (r *Recorder) Name() string {
	return r.name
}

// CreateScope records a nested scope
func (r *Recorder) CreateScope(name string) Scope {
	full := join(r.name, name)
	r.state.mu.Lock()
	r.state.scopes = append(r.state.scopes, full)
	r.state.mu.Unlock()
	return &Recorder{state: r.state, name: full}
}

// CreateStep records a step
func (r *Recorder) CreateStep(name string, total int) Step {
	full := join(r.name, name)
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	record := &StepRecord{Total: total}
	r.state.steps[full] = record
	return &recordedStep{state: r.state, record: record}
}

// Close records that the scope ended
func (r *Recorder) Close() {
	r.state.mu.Lock()
	r.state.closed[r.name]++
	r.state.mu.Unlock()
}

// Scopes returns the names of every scope opened, sorted
func (r *Recorder) Scopes() []string {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	out := append([]string(nil), r.state.scopes...)
	sort.Strings(out)
	return out
}

// Closed returns how many times the scope with the given full name was closed
func (r *Recorder) Closed(name string) int {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	return r.state.closed[name]
}

// Step returns a copy of the step with the given full name
func (r *Recorder) Step(name string) (StepRecord, bool) {
	r.state.mu.Lock()
	defer r.state.mu.Unlock()
	record, ok := r.state.steps[name]
	if !ok {
		return StepRecord{}, false
	}
	return *record, true
}

type recordedStep struct {
	state  *recorderState
	record *StepRecord
}

func (s *recordedStep) ReportOneDone() {
	s.ReportItemsDone(1)
}

func (s *recordedStep) ReportItemsDone(n int) {
	s.state.mu.Lock()
	s.record.Done += n
	s.state.mu.Unlock()
}

func (s *recordedStep) Close() {
	s.state.mu.Lock()
	s.record.Closed = true
	s.state.mu.Unlock()
}
