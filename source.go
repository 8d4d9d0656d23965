package relgraph

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rlch/relgraph/schema"
)

// Source produces a relational schema snapshot (a DDL script, a YAML file,
// or a live database).
type Source interface {
	// Name returns the source type (e.g., "postgres", "ddl").
	Name() string

	// Load reads the complete schema.
	Load(ctx context.Context) (*schema.Schema, error)

	// Close releases source resources.
	Close() error
}

// SourceFactory creates a Source from configuration.
type SourceFactory func(cfg *SourceConfig) (Source, error)

var (
	sourcesMu sync.RWMutex
	sources   = map[string]SourceFactory{
		SourceYAML: newYAMLSource,
	}
)

// RegisterSource registers a source factory by name.
func RegisterSource(name string, factory SourceFactory) {
	sourcesMu.Lock()
	defer sourcesMu.Unlock()

	sources[name] = factory
}

// NewSource creates a source for cfg. The type is taken from cfg.Type or
// detected from its URI or path.
func NewSource(cfg *SourceConfig) (Source, error) { //nolint:ireturn
	name := cfg.ResolvedType()
	if name == "" {
		return nil, ErrNoSource
	}

	sourcesMu.RLock()
	factory, ok := sources[name]
	sourcesMu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSource, name)
	}

	return factory(cfg)
}

// RegisteredSources returns the names of all registered sources, sorted.
func RegisteredSources() []string {
	sourcesMu.RLock()
	defer sourcesMu.RUnlock()

	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// yamlSource reads a schema previously written by schema.Write.
type yamlSource struct {
	path string
}

func newYAMLSource(cfg *SourceConfig) (Source, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: yaml source needs a path", ErrNoSource)
	}

	return &yamlSource{path: cfg.Path}, nil
}

func (s *yamlSource) Name() string { return SourceYAML }

func (s *yamlSource) Load(ctx context.Context) (*schema.Schema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return schema.LoadFile(s.path)
}

func (s *yamlSource) Close() error { return nil }

var _ Source = (*yamlSource)(nil)
