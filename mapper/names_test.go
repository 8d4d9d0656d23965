package mapper

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rlch/relgraph/graph"
)

func TestLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		table    string
		singular bool
		want     string
	}{
		{"order_lines", true, "OrderLine"},
		{"OrderLines", true, "OrderLine"},
		{"order_lines", false, "OrderLines"},
		{"people", true, "Person"},
		{"customer", true, "Customer"},
		{"1st_class", true, "N1stClass"},
		{"$$$", true, "Node"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Label(tt.table, tt.singular), "Label(%q, %v)", tt.table, tt.singular)
	}
}

func TestLabeler_Collisions(t *testing.T) {
	t.Parallel()

	l := newLabeler(true)

	assert.Equal(t, "User", l.label("user"))
	assert.Equal(t, "Users", l.label("users"))
	assert.Equal(t, "User2", l.label("Users"))

	plural := newLabeler(false)
	assert.Equal(t, "Users", plural.label("users"))
	assert.Equal(t, "Users2", plural.label("Users"))
}

func TestPropertyName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"created_at": "createdAt",
		"email":      "email",
		"id":         "id",
		"$":          "property",
	}

	for in, want := range tests {
		assert.Equal(t, want, PropertyName(in), "PropertyName(%q)", in)
	}
}

func TestPropertyType(t *testing.T) {
	t.Parallel()

	tests := map[string]graph.PropertyType{
		"integer":                  graph.Integer,
		"int(11) unsigned":         graph.Integer,
		"BIGSERIAL":                graph.Integer,
		"interval":                 graph.String,
		"double precision":         graph.Float,
		"numeric(10,2)":            graph.Float,
		"money":                    graph.Float,
		"boolean":                  graph.Boolean,
		"tinyint(1)":               graph.Boolean,
		"bit":                      graph.Boolean,
		"date":                     graph.Date,
		"timestamp with time zone": graph.DateTime,
		"datetime":                 graph.DateTime,
		"time":                     graph.DateTime,
		"jsonb":                    graph.Map,
		"text[]":                   graph.List,
		"ARRAY":                    graph.List,
		"character varying(200)":   graph.String,
		"uuid":                     graph.String,
	}

	for in, want := range tests {
		assert.Equal(t, want, PropertyType(in), "PropertyType(%q)", in)
	}
}
