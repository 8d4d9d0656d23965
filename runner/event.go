// Package runner drives a relational schema through the relgraph pipeline:
// load, validate, infer, map, apply and migrate.
package runner

import (
	"time"

	"github.com/rlch/relgraph/inference"
)

// Action represents the type of pipeline event.
type Action string

// Action constants for pipeline events.
const (
	ActionRun      Action = "run"
	ActionDone     Action = "done"
	ActionFail     Action = "failed"
	ActionSkip     Action = "skipped"
	ActionAdvisory Action = "advisory"
)

// IsTerminal returns true if this action ends a stage.
func (a Action) IsTerminal() bool {
	return a == ActionDone || a == ActionFail || a == ActionSkip
}

// Stage names a pipeline step.
type Stage string

// Pipeline stages, in execution order.
const (
	StageLoad     Stage = "load"
	StageValidate Stage = "validate"
	StageInfer    Stage = "infer"
	StageMap      Stage = "map"
	StageApply    Stage = "apply"
	StageMigrate  Stage = "migrate"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageLoad, StageValidate, StageInfer, StageMap, StageApply, StageMigrate}

// Event represents a single event emitted during a run.
type Event struct {
	Time    time.Time     // When the event occurred
	Action  Action        // What happened
	Stage   Stage         // Stage the event belongs to
	Elapsed time.Duration // Time taken (for terminal events)
	Detail  string        // Summary of the stage output, or why it was skipped
	Error   error         // Failure cause (for ActionFail)

	// Advisory is set for ActionAdvisory.
	Advisory *inference.Advisory
}
