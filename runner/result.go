package runner

import (
	"sync"
	"time"

	"github.com/rlch/relgraph"
	"github.com/rlch/relgraph/conceptual"
	"github.com/rlch/relgraph/graph"
	"github.com/rlch/relgraph/inference"
	"github.com/rlch/relgraph/migrate"
	"github.com/rlch/relgraph/schema"
)

// Result accumulates the outputs of a run.
type Result struct {
	mu sync.RWMutex

	StartTime time.Time
	EndTime   time.Time

	Done    int
	Failed  int
	Skipped int

	// Pipeline outputs. Model and Report stay nil when inference is skipped.
	// Apply stays nil without a target and Migration without data
	// migration.
	Schema    *schema.Schema
	Model     *conceptual.Model
	Report    *inference.Report
	Graph     *graph.Schema
	Apply     *relgraph.ApplyResult
	Migration *migrate.Report

	// Stages indexed by name.
	Stages map[Stage]*StageResult

	// Order preserves stage completion order for display
	Order []Stage

	Advisories []inference.Advisory
}

// NewResult creates an initialized Result.
func NewResult() *Result {
	return &Result{
		StartTime: time.Now(),
		Stages:    make(map[Stage]*StageResult),
	}
}

// Add records a terminal or advisory event in the result.
func (r *Result) Add(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if event.Action == ActionAdvisory {
		if event.Advisory != nil {
			r.Advisories = append(r.Advisories, *event.Advisory)
		}

		return
	}

	if !event.Action.IsTerminal() {
		return
	}

	r.Stages[event.Stage] = &StageResult{
		Stage:   event.Stage,
		Status:  event.Action,
		Elapsed: event.Elapsed,
		Detail:  event.Detail,
		Error:   event.Error,
	}
	r.Order = append(r.Order, event.Stage)

	switch event.Action {
	case ActionDone:
		r.Done++
	case ActionFail:
		r.Failed++
	case ActionSkip:
		r.Skipped++
	case ActionRun, ActionAdvisory:
		// Not terminal actions
	}
}

// Finish marks the result as complete.
func (r *Result) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.EndTime = time.Now()
}

// Elapsed returns the total execution time.
func (r *Result) Elapsed() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}

	return r.EndTime.Sub(r.StartTime)
}

// Ok returns true if no stage failed.
func (r *Result) Ok() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.Failed == 0
}

// Stage returns the outcome of a finished stage.
func (r *Result) Stage(s Stage) (*StageResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sr, ok := r.Stages[s]

	return sr, ok
}

// Timings returns the elapsed time of every finished stage.
func (r *Result) Timings() map[Stage]time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[Stage]time.Duration, len(r.Stages))
	for s, sr := range r.Stages {
		out[s] = sr.Elapsed
	}

	return out
}

// Applied returns the number of statements the target executed.
func (r *Result) Applied() int {
	if r.Apply == nil {
		return 0
	}

	return r.Apply.Applied
}

// Migrated returns the number of nodes and relationships written by the
// migrate stage.
func (r *Result) Migrated() (nodes, relationships int) {
	if r.Migration == nil {
		return 0, 0
	}

	return r.Migration.NodesWritten(), r.Migration.RelationshipsWritten()
}

// StageResult holds the outcome of a single stage.
type StageResult struct {
	Stage   Stage
	Status  Action
	Elapsed time.Duration
	Detail  string
	Error   error
}
