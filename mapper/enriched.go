package mapper

import (
	"go.uber.org/zap"

	"github.com/rlch/relgraph/conceptual"
	"github.com/rlch/relgraph/graph"
)

// mapEnriched maps every entity to a label. Subclasses carry their
// ancestors' labels and properties. Inheritance relationships are expressed
// by those labels and are not mapped.
func (m *Mapper) mapEnriched(b *builder) {
	for _, e := range m.model.Entities {
		b.addNode(e.Name, &graph.NodeLabel{Entity: e.Name})
	}

	for i, e := range m.model.Entities {
		m.fillEntityNode(b, b.nodes[i], e)
	}

	for _, r := range m.model.Relationships {
		if r.IsInheritance() {
			continue
		}

		props := make([]graph.Property, 0, len(r.Attributes))
		for _, a := range r.Attributes {
			props = append(props, attributeProperty(r.Table, a))
		}

		b.addRelationship(r.Source, r.Target, &graph.RelationshipType{
			Name:        r.Name,
			Properties:  props,
			Cardinality: r.Cardinality,
			Semantics:   r.Semantics,
			SourceTable: r.Table,
			Columns:     r.Columns,
			Junction:    r.Junction,
		})
	}
}

func (m *Mapper) fillEntityNode(b *builder, n *graph.NodeLabel, e *conceptual.Entity) {
	lineage := append(m.model.Ancestors(e.Name), e.Name)

	seen := make(map[string]bool)

	for _, name := range lineage {
		owner, ok := m.model.Entity(name)
		if !ok {
			continue
		}

		n.JoinTables = append(n.JoinTables, owner.Table)

		if name != e.Name {
			n.Labels = append(n.Labels, b.endpoint(name))
		}

		for _, a := range owner.Attributes {
			p := attributeProperty(owner.Table, a)
			if seen[p.Name] {
				continue
			}

			seen[p.Name] = true
			n.Properties = append(n.Properties, p)

			if a.Indexed || a.Unique {
				n.IndexedProperties = append(n.IndexedProperties, p.Name)
			}
		}
	}

	for _, k := range e.PrimaryKey {
		n.KeyProperties = append(n.KeyProperties, PropertyName(k))
	}

	if len(n.Labels) > 0 {
		b.log.Debug("subclass labels",
			zap.String("label", n.Name),
			zap.Strings("inherits", n.Labels))
	}
}

func attributeProperty(table string, a conceptual.Attribute) graph.Property {
	return graph.Property{
		Name:         PropertyName(a.Name),
		Type:         PropertyType(a.Type),
		Required:     !a.Nullable,
		SourceTable:  table,
		SourceColumn: a.Name,
	}
}
