package graph_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/rlch/relgraph/conceptual"
	"github.com/rlch/relgraph/graph"
)

func shopSchema(t *testing.T) *graph.Schema {
	t.Helper()

	customer := &graph.NodeLabel{
		Name:   "Customer",
		Entity: "customers",
		Properties: []graph.Property{
			{Name: "id", Type: graph.Integer, Required: true, SourceTable: "customers", SourceColumn: "id"},
			{Name: "email", Type: graph.String, Required: true, SourceTable: "customers", SourceColumn: "email"},
		},
		KeyProperties:     []string{"id"},
		IndexedProperties: []string{"id", "email"},
		JoinTables:        []string{"customers"},
	}
	line := &graph.NodeLabel{
		Name:   "OrderLine",
		Entity: "order_lines",
		Properties: []graph.Property{
			{Name: "orderId", Type: graph.Integer, Required: true},
			{Name: "lineNo", Type: graph.Integer, Required: true},
		},
		KeyProperties: []string{"orderId", "lineNo"},
	}
	vip := &graph.NodeLabel{
		Name:       "VipCustomer",
		Entity:     "vip_customers",
		Labels:     []string{"Customer"},
		Properties: customer.Properties,
	}

	s, err := graph.NewSchema("shop", []*graph.NodeLabel{customer, line, vip}, []*graph.RelationshipType{{
		Name:        "PLACED",
		Source:      "Customer",
		Target:      "OrderLine",
		Cardinality: conceptual.OneToMany,
		Semantics:   conceptual.Composition,
		SourceTable: "order_lines",
		Columns:     []string{"customer_id"},
	}})
	require.NoError(t, err)

	return s
}

func TestNewSchema(t *testing.T) {
	t.Parallel()

	s := shopSchema(t)

	assert.Equal(t, []string{"Customer", "OrderLine", "VipCustomer"}, s.Labels())
	assert.Equal(t, graph.Outgoing, s.Relationships[0].Direction)

	vip, ok := s.Node("VipCustomer")
	require.True(t, ok)
	assert.Equal(t, []string{"Customer", "VipCustomer"}, vip.AllLabels())
	assert.True(t, vip.HasLabel("Customer"))
	assert.False(t, vip.HasLabel("OrderLine"))

	n, ok := s.NodeForEntity("order_lines")
	require.True(t, ok)
	assert.Equal(t, "OrderLine", n.Name)

	p, ok := n.Property("lineNo")
	require.True(t, ok)
	assert.Equal(t, graph.Integer, p.Type)

	assert.Len(t, s.RelationshipsOf("Customer"), 1)
	assert.Empty(t, s.RelationshipsOf("VipCustomer"))
}

func TestNewSchema_Invalid(t *testing.T) {
	t.Parallel()

	a := &graph.NodeLabel{Name: "A"}
	b := &graph.NodeLabel{Name: "B"}

	tests := []struct {
		name  string
		nodes []*graph.NodeLabel
		rels  []*graph.RelationshipType
		want  error
	}{
		{
			name:  "dangling target",
			nodes: []*graph.NodeLabel{a},
			rels:  []*graph.RelationshipType{{Name: "HAS", Source: "A", Target: "Ghost"}},
			want:  graph.ErrDanglingEndpoint,
		},
		{
			name:  "duplicate triple",
			nodes: []*graph.NodeLabel{a, b},
			rels: []*graph.RelationshipType{
				{Name: "HAS", Source: "A", Target: "B"},
				{Name: "HAS", Source: "A", Target: "B"},
			},
			want: graph.ErrDuplicateRelationship,
		},
		{
			name:  "duplicate label",
			nodes: []*graph.NodeLabel{a, {Name: "A"}},
			want:  graph.ErrDuplicateLabel,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := graph.NewSchema("bad", tt.nodes, tt.rels)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewSchema_SameNameDifferentEndpoints(t *testing.T) {
	t.Parallel()

	nodes := []*graph.NodeLabel{{Name: "A"}, {Name: "B"}}
	_, err := graph.NewSchema("ok", nodes, []*graph.RelationshipType{
		{Name: "HAS", Source: "A", Target: "B"},
		{Name: "HAS", Source: "B", Target: "A"},
	})
	require.NoError(t, err)
}

func TestStatements(t *testing.T) {
	t.Parallel()

	want := []string{
		"CREATE CONSTRAINT customer_id_unique IF NOT EXISTS FOR (n:Customer) REQUIRE n.id IS UNIQUE",
		"CREATE CONSTRAINT orderline_orderId_lineNo_unique IF NOT EXISTS FOR (n:OrderLine) REQUIRE (n.orderId, n.lineNo) IS UNIQUE",
		"CREATE INDEX customer_email_index IF NOT EXISTS FOR (n:Customer) ON (n.email)",
	}

	s := shopSchema(t)
	if diff := cmp.Diff(want, s.Statements()); diff != "" {
		t.Errorf("statements mismatch (-want +got):\n%s", diff)
	}

	var buf bytes.Buffer
	require.NoError(t, s.WriteCypher(&buf))
	assert.Equal(t, strings.Join(want, ";\n")+";\n", buf.String())

	assert.Equal(t, graph.Stats{Nodes: 3, Relationships: 1, Properties: 6, Constraints: 2, Indexes: 1}, s.Stats())
}

func TestStatements_QuotesIdentifiers(t *testing.T) {
	t.Parallel()

	stmt, ok := graph.UniqueConstraint(&graph.NodeLabel{Name: "Line Item", KeyProperties: []string{"id"}})
	require.True(t, ok)
	assert.Equal(t, "CREATE CONSTRAINT `line item_id_unique` IF NOT EXISTS FOR (n:`Line Item`) REQUIRE n.id IS UNIQUE", stmt)

	_, ok = graph.UniqueConstraint(&graph.NodeLabel{Name: "Keyless"})
	assert.False(t, ok)
}

func TestSchema_ToMap(t *testing.T) {
	t.Parallel()

	m := shopSchema(t).ToMap()

	nodes, ok := m["nodes"].([]any)
	require.True(t, ok)
	require.Len(t, nodes, 3)

	vip, ok := nodes[2].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"Customer", "VipCustomer"}, vip["labels"])

	rels, ok := m["relationships"].([]any)
	require.True(t, ok)

	placed, ok := rels[0].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "OUTGOING", placed["direction"])
	assert.Equal(t, "COMPOSITION", placed["semantics"])
	assert.NotContains(t, placed, "junction")

	assert.Len(t, m["constraints"], 3)
}

func TestSchema_Writers(t *testing.T) {
	t.Parallel()

	s := shopSchema(t)

	var buf bytes.Buffer
	require.NoError(t, s.WriteYAML(&buf))

	var decoded graph.Schema
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))

	again, err := graph.NewSchema(decoded.Name, decoded.Nodes, decoded.Relationships)
	require.NoError(t, err)

	if diff := cmp.Diff(s.ToMap(), again.ToMap()); diff != "" {
		t.Errorf("yaml round trip mismatch (-want +got):\n%s", diff)
	}

	buf.Reset()
	require.NoError(t, s.WriteJSON(&buf))
	assert.Contains(t, buf.String(), `"keyProperties": [`)
}
