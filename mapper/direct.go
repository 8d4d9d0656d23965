package mapper

import (
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/rlch/relgraph/conceptual"
	"github.com/rlch/relgraph/graph"
	"github.com/rlch/relgraph/schema"
)

// mapDirect maps every table to a label and every foreign key to a
// relationship type. Unreferenced two-key junction tables become a single
// many-to-many relationship type instead of a label.
func (m *Mapper) mapDirect(b *builder) {
	var junctions []*schema.Table

	for i := range m.schema.Tables {
		t := &m.schema.Tables[i]

		if m.collapses(t) {
			junctions = append(junctions, t)
			continue
		}

		b.addNode(t.Name, tableNode(t))
	}

	for i := range m.schema.Tables {
		t := &m.schema.Tables[i]
		if m.collapses(t) {
			continue
		}

		for _, fk := range t.ForeignKeys {
			card := conceptual.OneToMany
			if fk.Unique && !fk.Nullable {
				card = conceptual.OneToOne
			}

			b.addRelationship(fk.ReferencedTable, t.Name, &graph.RelationshipType{
				Name:        "FK_" + upperName(t.Name) + "_" + upperName(fk.ReferencedTable),
				Cardinality: card,
				Semantics:   conceptual.Association,
				SourceTable: t.Name,
				Columns:     fk.Columns,
			})
		}
	}

	for _, t := range junctions {
		first, second := t.ForeignKeys[0], t.ForeignKeys[1]

		b.addRelationship(first.ReferencedTable, second.ReferencedTable, &graph.RelationshipType{
			Name:        upperName(t.Name),
			Properties:  properties(t.Name, t.NonKeyColumns()),
			Cardinality: conceptual.ManyToMany,
			Semantics:   conceptual.Association,
			SourceTable: t.Name,
			Columns:     append(append([]string{}, first.Columns...), second.Columns...),
			Junction:    t.Name,
		})
	}
}

func (m *Mapper) collapses(t *schema.Table) bool {
	return t.IsJunction() && len(m.schema.ReferencedBy(t.Name)) == 0
}

// tableNode maps a table's columns, leaving out foreign-key columns that
// are not part of the primary key.
func tableNode(t *schema.Table) *graph.NodeLabel {
	n := &graph.NodeLabel{Entity: t.Name, JoinTables: []string{t.Name}}

	var cols []schema.Column

	for _, c := range t.Columns {
		if t.IsForeignKeyColumn(c.Name) && !t.IsPrimaryKey(c.Name) {
			continue
		}

		cols = append(cols, c)

		if t.IsIndexed(c.Name) || t.IsUniqueSet([]string{c.Name}) {
			n.IndexedProperties = append(n.IndexedProperties, PropertyName(c.Name))
		}
	}

	n.Properties = properties(t.Name, cols)

	for _, k := range t.PrimaryKey {
		n.KeyProperties = append(n.KeyProperties, PropertyName(k))
	}

	return n
}

func properties(table string, cols []schema.Column) []graph.Property {
	props := make([]graph.Property, 0, len(cols))

	for _, c := range cols {
		props = append(props, graph.Property{
			Name:         PropertyName(c.Name),
			Type:         PropertyType(c.Type),
			Required:     !c.Nullable,
			SourceTable:  table,
			SourceColumn: c.Name,
		})
	}

	return props
}

func upperName(s string) string {
	return strings.ToUpper(inflect.Underscore(s))
}
