// Package mapper turns a relational schema, optionally enriched with a
// conceptual model, into a property-graph schema.
//
// Without a model the mapper works directly from tables and foreign keys.
// With a model it follows the inferred entities, hierarchies and
// relationship names.
package mapper

import (
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/rlch/relgraph/conceptual"
	"github.com/rlch/relgraph/graph"
	"github.com/rlch/relgraph/schema"
)

// Mode is the mapping strategy.
type Mode string

// Mapping strategies.
const (
	Direct   Mode = "direct"
	Enriched Mode = "enriched"
)

type options struct {
	log      *zap.Logger
	singular bool
}

// Option configures a Mapper.
type Option func(*options)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithSingularLabels controls whether table names are singularized when
// deriving labels. It is on by default.
func WithSingularLabels(on bool) Option {
	return func(o *options) { o.singular = on }
}

// Mapper maps one schema. The strategy is fixed by New.
type Mapper struct {
	schema *schema.Schema
	model  *conceptual.Model
	mode   Mode
	opts   options
}

// New creates a mapper for a derived copy of s. A nil model selects direct
// mapping.
func New(s *schema.Schema, model *conceptual.Model, opts ...Option) *Mapper {
	o := options{log: zap.NewNop(), singular: true}
	for _, opt := range opts {
		opt(&o)
	}

	mode := Enriched
	if model == nil {
		mode = Direct
	}

	return &Mapper{schema: s.Derive(), model: model, mode: mode, opts: o}
}

// Mode reports the strategy chosen by New.
func (m *Mapper) Mode() Mode {
	return m.mode
}

// Map builds the graph schema. A relationship whose endpoint has no label is
// fatal (graph.ErrDanglingEndpoint).
func (m *Mapper) Map() (*graph.Schema, error) {
	var b builder

	b.labels = newLabeler(m.opts.singular)
	b.log = m.opts.log.With(zap.String("mode", string(m.mode)))

	switch m.mode {
	case Direct:
		m.mapDirect(&b)
	case Enriched:
		m.mapEnriched(&b)
	}

	gs, err := graph.NewSchema(m.schema.Name, b.nodes, b.relationships)
	if err != nil {
		return nil, fmt.Errorf("mapper: %w", err)
	}

	b.log.Info("graph schema mapped",
		zap.Int("nodes", len(gs.Nodes)),
		zap.Int("relationships", len(gs.Relationships)))

	return gs, nil
}

// builder accumulates labels and relationship types.
type builder struct {
	log           *zap.Logger
	labels        *labeler
	nodes         []*graph.NodeLabel
	relationships []*graph.RelationshipType

	// byTable maps a table or entity name to its label.
	byTable map[string]string
	triples map[string]bool
}

func (b *builder) addNode(table string, n *graph.NodeLabel) {
	if b.byTable == nil {
		b.byTable = make(map[string]string)
	}

	n.Name = b.labels.label(table)
	b.byTable[table] = n.Name
	b.nodes = append(b.nodes, n)
}

// addRelationship resolves endpoint tables to labels and suffixes the name
// until its (name, source, target) triple is unused. Unknown endpoints are
// kept as table names so NewSchema reports them.
func (b *builder) addRelationship(sourceTable, targetTable string, r *graph.RelationshipType) {
	if b.triples == nil {
		b.triples = make(map[string]bool)
	}

	r.Source = b.endpoint(sourceTable)
	r.Target = b.endpoint(targetTable)
	r.Direction = graph.Outgoing

	base := r.Name
	for n := 2; b.triples[r.Key()]; n++ {
		r.Name = base + "_" + strconv.Itoa(n)
	}

	if r.Name != base {
		b.log.Warn("relationship renamed",
			zap.String("name", base),
			zap.String("renamed", r.Name),
			zap.String("source", r.Source),
			zap.String("target", r.Target))
	}

	b.triples[r.Key()] = true
	b.relationships = append(b.relationships, r)
}

func (b *builder) endpoint(table string) string {
	if label, ok := b.byTable[table]; ok {
		return label
	}

	return table
}
