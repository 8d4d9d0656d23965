package neo4j

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/rlch/relgraph"
	"github.com/rlch/relgraph/graph"
)

// LoadNodes merges a batch of nodes on their key properties, or creates them
// when the batch has no key. Every row sets its properties on the node.
func (d *Database) LoadNodes(ctx context.Context, b *relgraph.NodeBatch) (int, error) {
	if len(b.Rows) == 0 {
		return 0, nil
	}

	rows := make([]any, len(b.Rows))
	for i, r := range b.Rows {
		rows[i] = r
	}

	n, err := d.single(ctx, neo4j.AccessModeWrite, nodeQuery(b), map[string]any{"rows": rows})
	if err != nil {
		return 0, fmt.Errorf("neo4j: loading %s nodes: %w", b.Label, err)
	}

	d.log.Debug("nodes loaded", zap.String("label", b.Label), zap.Int64("count", n))

	return int(n), nil
}

// LoadRelationships merges a batch of relationships between existing nodes.
// Rows whose endpoints are missing are not written.
func (d *Database) LoadRelationships(ctx context.Context, b *relgraph.RelationshipBatch) (int, error) {
	if len(b.Rows) == 0 {
		return 0, nil
	}

	rows := make([]any, len(b.Rows))

	for i, r := range b.Rows {
		props := r.Properties
		if props == nil {
			props = map[string]any{}
		}

		rows[i] = map[string]any{"from": r.From, "to": r.To, "props": props}
	}

	n, err := d.single(ctx, neo4j.AccessModeWrite, relationshipQuery(b), map[string]any{"rows": rows})
	if err != nil {
		return 0, fmt.Errorf("neo4j: loading %s relationships: %w", b.Type, err)
	}

	d.log.Debug("relationships loaded", zap.String("type", b.Type), zap.Int64("count", n))

	return int(n), nil
}

// CountNodes returns the number of nodes carrying label.
func (d *Database) CountNodes(ctx context.Context, label string) (int64, error) {
	n, err := d.single(ctx, neo4j.AccessModeRead, countNodesQuery(label), nil)
	if err != nil {
		return 0, fmt.Errorf("neo4j: counting %s nodes: %w", label, err)
	}

	return n, nil
}

// CountRelationships returns the number of relType relationships from a
// from node to a to node.
func (d *Database) CountRelationships(ctx context.Context, relType, from, to string) (int64, error) {
	n, err := d.single(ctx, neo4j.AccessModeRead, countRelationshipsQuery(relType, from, to), nil)
	if err != nil {
		return 0, fmt.Errorf("neo4j: counting %s relationships: %w", relType, err)
	}

	return n, nil
}

// single runs query in a managed transaction and returns the integer in the
// first column of its only record.
func (d *Database) single(ctx context.Context, mode neo4j.AccessMode, query string, params map[string]any) (int64, error) {
	session := d.session(ctx, mode)
	defer func() { _ = session.Close(ctx) }()

	work := func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}

		record, err := result.Single(ctx)
		if err != nil {
			return nil, err
		}

		n, _ := record.Values[0].(int64)

		return n, nil
	}

	var (
		out any
		err error
	)

	if mode == neo4j.AccessModeRead {
		out, err = session.ExecuteRead(ctx, work)
	} else {
		out, err = session.ExecuteWrite(ctx, work)
	}

	if err != nil {
		return 0, err
	}

	return out.(int64), nil //nolint:forcetypeassert
}

func labels(primary string, extra []string) string {
	var b strings.Builder

	b.WriteString(":" + graph.Quote(primary))

	for _, l := range extra {
		if l != primary {
			b.WriteString(":" + graph.Quote(l))
		}
	}

	return b.String()
}

// keyMap renders {k: prefix.k, ...}.
func keyMap(key []string, prefix string) string {
	parts := make([]string, len(key))
	for i, k := range key {
		parts[i] = graph.Quote(k) + ": " + prefix + "." + graph.Quote(k)
	}

	return "{" + strings.Join(parts, ", ") + "}"
}

func nodeQuery(b *relgraph.NodeBatch) string {
	if len(b.Key) == 0 {
		return "UNWIND $rows AS row CREATE (n" + labels(b.Label, b.Labels) + ") SET n = row RETURN count(n)"
	}

	q := "UNWIND $rows AS row MERGE (n:" + graph.Quote(b.Label) + " " + keyMap(b.Key, "row") + ") SET n += row"

	if extra := labels(b.Label, b.Labels); extra != ":"+graph.Quote(b.Label) {
		q += ", n" + strings.TrimPrefix(extra, ":"+graph.Quote(b.Label))
	}

	return q + " RETURN count(n)"
}

func relationshipQuery(b *relgraph.RelationshipBatch) string {
	return "UNWIND $rows AS row" +
		" MATCH (a:" + graph.Quote(b.From.Label) + " " + keyMap(b.From.Key, "row.from") + ")" +
		" MATCH (b:" + graph.Quote(b.To.Label) + " " + keyMap(b.To.Key, "row.to") + ")" +
		" MERGE (a)-[r:" + graph.Quote(b.Type) + "]->(b)" +
		" SET r += row.props" +
		" RETURN count(r)"
}

func countNodesQuery(label string) string {
	return "MATCH (n:" + graph.Quote(label) + ") RETURN count(n)"
}

func countRelationshipsQuery(relType, from, to string) string {
	return "MATCH (:" + graph.Quote(from) + ")-[r:" + graph.Quote(relType) + "]->(:" + graph.Quote(to) + ") RETURN count(r)"
}

var _ relgraph.Loader = (*Database)(nil)
