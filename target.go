package relgraph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rlch/relgraph/graph"
)

// Target is a graph database that can receive a graph schema.
type Target interface {
	// Name returns the target identifier (e.g., "neo4j").
	Name() string

	// ApplySchema creates the schema's constraints and indexes. With dryRun
	// set it only reports the statements it would run.
	ApplySchema(ctx context.Context, gs *graph.Schema, dryRun bool) (*ApplyResult, error)

	// Close releases target resources.
	Close() error
}

// ApplyResult reports what ApplySchema did.
type ApplyResult struct {
	Statements []string `yaml:"statements" json:"statements"`
	Applied    int      `yaml:"applied" json:"applied"`
	DryRun     bool     `yaml:"dry_run,omitempty" json:"dryRun,omitempty"`
}

// TargetFactory creates a Target from its configuration section.
type TargetFactory func(cfg any) (Target, error)

var (
	targetsMu sync.RWMutex
	targets   = make(map[string]TargetFactory)
)

// RegisterTarget registers a target factory by name.
func RegisterTarget(name string, factory TargetFactory) {
	targetsMu.Lock()
	defer targetsMu.Unlock()

	targets[name] = factory
}

// NewTarget creates a registered target.
func NewTarget(name string, cfg any) (Target, error) { //nolint:ireturn
	targetsMu.RLock()
	factory, ok := targets[name]
	targetsMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, name)
	}

	return factory(cfg)
}

// RegisteredTargets returns the names of all registered targets, sorted.
func RegisteredTargets() []string {
	targetsMu.RLock()
	defer targetsMu.RUnlock()

	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}
