// Package migratetest provides an in-memory row source and graph for
// exercising migrations without a database.
package migratetest

import (
	"context"
	"reflect"
	"slices"
	"sync"

	"github.com/rlch/relgraph"
	"github.com/rlch/relgraph/graph"
	"github.com/rlch/relgraph/schema"
)

// Source serves a schema and the rows of its tables from memory. Rows are
// keyed by column name.
type Source struct {
	Schema *schema.Schema
	Tables map[string][]map[string]any
}

// Name returns "memory".
func (s *Source) Name() string { return "memory" }

// Load returns the schema.
func (s *Source) Load(context.Context) (*schema.Schema, error) { return s.Schema, nil }

// Close does nothing.
func (s *Source) Close() error { return nil }

// Rows evaluates sel over the in-memory tables.
func (s *Source) Rows(ctx context.Context, sel *relgraph.Selection, size int, fn func([]relgraph.Row) error) error {
	rows := s.evaluate(sel)

	if size < 1 {
		size = relgraph.DefaultBatchSize
	}

	for start := 0; start < len(rows); start += size {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := fn(rows[start:min(start+size, len(rows))]); err != nil {
			return err
		}
	}

	return nil
}

// Count returns the number of rows sel yields.
func (s *Source) Count(_ context.Context, sel *relgraph.Selection) (int64, error) {
	return int64(len(s.evaluate(sel))), nil
}

func (s *Source) evaluate(sel *relgraph.Selection) []relgraph.Row {
	var out []relgraph.Row

next:
	for _, base := range s.Tables[sel.From.Name] {
		scope := map[string]map[string]any{sel.From.Name: base}

		for _, j := range sel.Joins {
			match := s.join(j, scope)
			if match == nil {
				continue next
			}

			scope[j.Table.Name] = match
		}

		for _, c := range sel.NotNull {
			if scope[c.Table][c.Column] == nil {
				continue next
			}
		}

		row := make(relgraph.Row, len(sel.Columns))
		for i, c := range sel.Columns {
			row[i] = scope[c.Table][c.Column]
		}

		out = append(out, row)
	}

	return out
}

func (s *Source) join(j relgraph.Join, scope map[string]map[string]any) map[string]any {
candidates:
	for _, r := range s.Tables[j.Table.Name] {
		for _, on := range j.On {
			v := scope[on.Equals.Table][on.Equals.Column]
			if v == nil || !reflect.DeepEqual(r[on.Column], v) {
				continue candidates
			}
		}

		return r
	}

	return nil
}

// Node is a node held by Graph.
type Node struct {
	Labels     []string
	Properties map[string]any
}

// Relationship is a relationship held by Graph.
type Relationship struct {
	Type       string
	From, To   *Node
	Properties map[string]any
}

// Graph is an in-memory relgraph.Loader with MERGE semantics.
type Graph struct {
	mu            sync.Mutex
	Nodes         []*Node
	Relationships []*Relationship
	Applied       []string
}

// Name returns "memory".
func (g *Graph) Name() string { return "memory" }

// ApplySchema records the schema statements.
func (g *Graph) ApplySchema(_ context.Context, gs *graph.Schema, dryRun bool) (*relgraph.ApplyResult, error) {
	res := &relgraph.ApplyResult{Statements: gs.Statements(), DryRun: dryRun}
	if !dryRun {
		g.mu.Lock()
		g.Applied = append(g.Applied, res.Statements...)
		g.mu.Unlock()

		res.Applied = len(res.Statements)
	}

	return res, nil
}

// Close does nothing.
func (g *Graph) Close() error { return nil }

// LoadNodes merges rows on b.Label and b.Key, or creates them without a key.
func (g *Graph) LoadNodes(_ context.Context, b *relgraph.NodeBatch) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, row := range b.Rows {
		var n *Node
		if len(b.Key) > 0 {
			n = g.find(b.Label, b.Key, row)
		}

		if n == nil {
			n = &Node{Labels: []string{b.Label}, Properties: make(map[string]any)}
			g.Nodes = append(g.Nodes, n)
		}

		for k, v := range row {
			n.Properties[k] = v
		}

		for _, l := range b.Labels {
			if !slices.Contains(n.Labels, l) {
				n.Labels = append(n.Labels, l)
			}
		}
	}

	return len(b.Rows), nil
}

// LoadRelationships merges relationships whose endpoints exist.
func (g *Graph) LoadRelationships(_ context.Context, b *relgraph.RelationshipBatch) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	written := 0

	for _, row := range b.Rows {
		from := g.find(b.From.Label, b.From.Key, row.From)
		to := g.find(b.To.Label, b.To.Key, row.To)

		if from == nil || to == nil {
			continue
		}

		var r *Relationship

		for _, existing := range g.Relationships {
			if existing.Type == b.Type && existing.From == from && existing.To == to {
				r = existing
				break
			}
		}

		if r == nil {
			r = &Relationship{Type: b.Type, From: from, To: to, Properties: make(map[string]any)}
			g.Relationships = append(g.Relationships, r)
		}

		for k, v := range row.Properties {
			r.Properties[k] = v
		}

		written++
	}

	return written, nil
}

// CountNodes returns the number of nodes carrying label.
func (g *Graph) CountNodes(_ context.Context, label string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var n int64

	for _, node := range g.Nodes {
		if slices.Contains(node.Labels, label) {
			n++
		}
	}

	return n, nil
}

// CountRelationships returns the number of relType relationships between
// nodes carrying from and to.
func (g *Graph) CountRelationships(_ context.Context, relType, from, to string) (int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var n int64

	for _, r := range g.Relationships {
		if r.Type == relType && slices.Contains(r.From.Labels, from) && slices.Contains(r.To.Labels, to) {
			n++
		}
	}

	return n, nil
}

// Node returns the first node carrying label whose properties include
// props.
func (g *Graph) Node(label string, props map[string]any) (*Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}

	n := g.find(label, keys, props)

	return n, n != nil
}

func (g *Graph) find(label string, key []string, values map[string]any) *Node {
nodes:
	for _, n := range g.Nodes {
		if !slices.Contains(n.Labels, label) {
			continue
		}

		for _, k := range key {
			v, ok := n.Properties[k]
			if !ok || !reflect.DeepEqual(v, values[k]) {
				continue nodes
			}
		}

		return n
	}

	return nil
}

var (
	_ relgraph.RowSource = (*Source)(nil)
	_ relgraph.Loader    = (*Graph)(nil)
)
