// Package graph describes a property-graph schema: node labels with typed
// properties, relationship types and the constraints that back them.
//
// A Schema is produced by the mapper and validated once by NewSchema.
package graph

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rlch/relgraph/conceptual"
)

// Validation errors returned by NewSchema.
var (
	ErrDanglingEndpoint      = errors.New("graph: relationship endpoint has no node label")
	ErrDuplicateRelationship = errors.New("graph: duplicate relationship type")
	ErrDuplicateLabel        = errors.New("graph: duplicate node label")
)

// PropertyType is the graph-side type of a property.
type PropertyType string

// Property types.
const (
	String   PropertyType = "STRING"
	Integer  PropertyType = "INTEGER"
	Float    PropertyType = "FLOAT"
	Boolean  PropertyType = "BOOLEAN"
	Date     PropertyType = "DATE"
	DateTime PropertyType = "DATETIME"
	List     PropertyType = "LIST"
	Map      PropertyType = "MAP"
)

// PropertyTypes lists every property type.
var PropertyTypes = []PropertyType{String, Integer, Float, Boolean, Date, DateTime, List, Map}

// Direction of a relationship type. Only Outgoing is produced.
type Direction string

// Outgoing relationships read from Source to Target.
const Outgoing Direction = "OUTGOING"

// Property is a node or relationship property.
type Property struct {
	Name     string       `yaml:"name" json:"name"`
	Type     PropertyType `yaml:"type" json:"type"`
	Required bool         `yaml:"required,omitempty" json:"required,omitempty"`

	SourceTable  string `yaml:"source_table,omitempty" json:"sourceTable,omitempty"`
	SourceColumn string `yaml:"source_column,omitempty" json:"sourceColumn,omitempty"`
}

// NodeLabel is a node type.
type NodeLabel struct {
	Name string `yaml:"name" json:"name"`
	// Entity is the conceptual entity, or the table in direct mode.
	Entity string `yaml:"entity" json:"entity"`
	// Labels are the additional labels carried by every node, most general
	// first.
	Labels     []string   `yaml:"labels,omitempty" json:"labels,omitempty"`
	Properties []Property `yaml:"properties" json:"properties"`
	// KeyProperties identify a node. Together they form its unique
	// constraint.
	KeyProperties     []string `yaml:"key_properties,omitempty" json:"keyProperties,omitempty"`
	IndexedProperties []string `yaml:"indexed_properties,omitempty" json:"indexedProperties,omitempty"`
	// JoinTables are the tables joined on their shared primary key to load
	// one node, most general first.
	JoinTables []string `yaml:"join_tables,omitempty" json:"joinTables,omitempty"`
}

// Property returns the named property.
func (n *NodeLabel) Property(name string) (*Property, bool) {
	for i := range n.Properties {
		if n.Properties[i].Name == name {
			return &n.Properties[i], true
		}
	}

	return nil, false
}

// AllLabels returns the additional labels followed by Name.
func (n *NodeLabel) AllLabels() []string {
	return append(slices.Clone(n.Labels), n.Name)
}

// HasLabel reports whether nodes of n carry label.
func (n *NodeLabel) HasLabel(label string) bool {
	return n.Name == label || slices.Contains(n.Labels, label)
}

// RelationshipType is a directed relationship type between two labels.
type RelationshipType struct {
	Name        string                 `yaml:"name" json:"name"`
	Source      string                 `yaml:"source" json:"source"`
	Target      string                 `yaml:"target" json:"target"`
	Direction   Direction              `yaml:"direction" json:"direction"`
	Properties  []Property             `yaml:"properties,omitempty" json:"properties,omitempty"`
	Cardinality conceptual.Cardinality `yaml:"cardinality" json:"cardinality"`
	Semantics   conceptual.Semantics   `yaml:"semantics" json:"semantics"`

	SourceTable string   `yaml:"source_table,omitempty" json:"sourceTable,omitempty"`
	Columns     []string `yaml:"columns,omitempty" json:"columns,omitempty"`
	Junction    string   `yaml:"junction,omitempty" json:"junction,omitempty"`
}

// Key returns the (name, source, target) triple that identifies t.
func (t *RelationshipType) Key() string {
	return t.Name + "|" + t.Source + "|" + t.Target
}

// Schema is a property-graph schema.
type Schema struct {
	Name          string              `yaml:"name,omitempty" json:"name,omitempty"`
	Nodes         []*NodeLabel        `yaml:"nodes" json:"nodes"`
	Relationships []*RelationshipType `yaml:"relationships" json:"relationships"`

	index map[string]*NodeLabel
}

// NewSchema copies nodes and relationships into a schema and validates it.
// Every relationship endpoint must name a node label and every (name,
// source, target) triple must be unique.
func NewSchema(name string, nodes []*NodeLabel, relationships []*RelationshipType) (*Schema, error) {
	s := &Schema{
		Name:          name,
		Nodes:         make([]*NodeLabel, len(nodes)),
		Relationships: make([]*RelationshipType, len(relationships)),
		index:         make(map[string]*NodeLabel, len(nodes)),
	}

	var errs []error

	for i, n := range nodes {
		c := *n
		c.Labels = slices.Clone(n.Labels)
		c.Properties = slices.Clone(n.Properties)
		c.KeyProperties = slices.Clone(n.KeyProperties)
		c.IndexedProperties = slices.Clone(n.IndexedProperties)
		c.JoinTables = slices.Clone(n.JoinTables)
		s.Nodes[i] = &c

		if _, dup := s.index[c.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateLabel, c.Name))
			continue
		}

		s.index[c.Name] = &c
	}

	seen := make(map[string]bool, len(relationships))

	for i, r := range relationships {
		c := *r
		c.Properties = slices.Clone(r.Properties)
		c.Columns = slices.Clone(r.Columns)

		if c.Direction == "" {
			c.Direction = Outgoing
		}

		s.Relationships[i] = &c

		for _, end := range []string{c.Source, c.Target} {
			if _, ok := s.index[end]; !ok {
				errs = append(errs, fmt.Errorf("%w: %s references %q", ErrDanglingEndpoint, c.Name, end))
			}
		}

		if seen[c.Key()] {
			errs = append(errs, fmt.Errorf("%w: %s from %s to %s", ErrDuplicateRelationship, c.Name, c.Source, c.Target))
		}

		seen[c.Key()] = true
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return s, nil
}

// Node returns the node label with the given name.
func (s *Schema) Node(name string) (*NodeLabel, bool) {
	n, ok := s.index[name]
	return n, ok
}

// NodeForEntity returns the node label mapped from an entity or table.
func (s *Schema) NodeForEntity(entity string) (*NodeLabel, bool) {
	for _, n := range s.Nodes {
		if n.Entity == entity {
			return n, true
		}
	}

	return nil, false
}

// Labels returns the node label names in order.
func (s *Schema) Labels() []string {
	names := make([]string, len(s.Nodes))
	for i, n := range s.Nodes {
		names[i] = n.Name
	}

	return names
}

// RelationshipsOf returns the relationship types that start or end at
// label.
func (s *Schema) RelationshipsOf(label string) []*RelationshipType {
	var out []*RelationshipType

	for _, r := range s.Relationships {
		if r.Source == label || r.Target == label {
			out = append(out, r)
		}
	}

	return out
}
