// Package conceptual holds the enriched intermediate representation built by
// the inference engine: classified entities, typed relationships and
// inheritance hierarchies.
//
// A Model is validated once by NewModel and is read-only afterwards.
package conceptual

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidModel is returned by NewModel when a model breaks one of its
// structural invariants.
var ErrInvalidModel = errors.New("conceptual: invalid model")

// EntityType classifies an entity.
type EntityType string

// Entity types.
const (
	Strong      EntityType = "STRONG"
	Weak        EntityType = "WEAK"
	Superclass  EntityType = "SUPERCLASS"
	Subclass    EntityType = "SUBCLASS"
	Associative EntityType = "ASSOCIATIVE"
)

// EntityTypes lists every entity type in report order.
var EntityTypes = []EntityType{Strong, Weak, Superclass, Subclass, Associative}

// Cardinality of a relationship, read from source to target.
type Cardinality string

// Cardinalities.
const (
	OneToOne   Cardinality = "ONE_TO_ONE"
	OneToMany  Cardinality = "ONE_TO_MANY"
	ManyToOne  Cardinality = "MANY_TO_ONE"
	ManyToMany Cardinality = "MANY_TO_MANY"
)

// Cardinalities lists every cardinality in report order.
var Cardinalities = []Cardinality{OneToOne, OneToMany, ManyToOne, ManyToMany}

// Semantics describes the ownership meaning of a relationship.
type Semantics string

// Relationship semantics.
const (
	Association Semantics = "ASSOCIATION"
	Aggregation Semantics = "AGGREGATION"
	Composition Semantics = "COMPOSITION"
	Inheritance Semantics = "INHERITANCE"
	Dependency  Semantics = "DEPENDENCY"
)

// AllSemantics lists every semantics value in report order.
var AllSemantics = []Semantics{Association, Aggregation, Composition, Inheritance, Dependency}

// Attribute is a column of an entity or a property of a relationship.
type Attribute struct {
	Name     string  `yaml:"name" json:"name"`
	Type     string  `yaml:"type" json:"type"`
	Nullable bool    `yaml:"nullable,omitempty" json:"nullable,omitempty"`
	Key      bool    `yaml:"key,omitempty" json:"key,omitempty"`
	Unique   bool    `yaml:"unique,omitempty" json:"unique,omitempty"`
	Indexed  bool    `yaml:"indexed,omitempty" json:"indexed,omitempty"`
	Default  *string `yaml:"default,omitempty" json:"default,omitempty"`
}

// Entity is a classified table.
type Entity struct {
	Name       string      `yaml:"name" json:"name"`
	Table      string      `yaml:"table" json:"table"`
	Type       EntityType  `yaml:"type" json:"type"`
	Attributes []Attribute `yaml:"attributes" json:"attributes"`
	PrimaryKey []string    `yaml:"primary_key,omitempty" json:"primaryKey,omitempty"`

	// Owner is set iff Type is Weak.
	Owner string `yaml:"owner,omitempty" json:"owner,omitempty"`
	// Superclass is set iff Type is Subclass.
	Superclass string `yaml:"superclass,omitempty" json:"superclass,omitempty"`
	// Subclasses are the direct children, filled in by NewModel.
	Subclasses []string `yaml:"subclasses,omitempty" json:"subclasses,omitempty"`
}

// Attribute returns the named attribute.
func (e *Entity) Attribute(name string) (*Attribute, bool) {
	for i := range e.Attributes {
		if e.Attributes[i].Name == name {
			return &e.Attributes[i], true
		}
	}

	return nil, false
}

// Relationship is a typed, directed relationship between two entities.
// Foreign-key relationships are stored parent to child: Source is the
// referenced entity and Target the referencing one.
type Relationship struct {
	// Name reads from Source to Target.
	Name string `yaml:"name" json:"name"`
	// ReverseName reads from Target to Source.
	ReverseName string      `yaml:"reverse_name,omitempty" json:"reverseName,omitempty"`
	Source      string      `yaml:"source" json:"source"`
	Target      string      `yaml:"target" json:"target"`
	Cardinality Cardinality `yaml:"cardinality" json:"cardinality"`
	Semantics   Semantics   `yaml:"semantics" json:"semantics"`
	Attributes  []Attribute `yaml:"attributes,omitempty" json:"attributes,omitempty"`

	// Table and Columns identify the foreign key the relationship came from.
	Table   string   `yaml:"table" json:"table"`
	Columns []string `yaml:"columns,omitempty" json:"columns,omitempty"`
	// Junction is the collapsed junction table of a many-to-many relationship.
	Junction string `yaml:"junction,omitempty" json:"junction,omitempty"`
	// Mandatory reports whether the child side must reference a parent.
	Mandatory bool `yaml:"mandatory,omitempty" json:"mandatory,omitempty"`
}

// IsInheritance reports whether r is an inheritance edge.
func (r *Relationship) IsInheritance() bool { return r.Semantics == Inheritance }

// IsAggregation reports whether r is an aggregation.
func (r *Relationship) IsAggregation() bool { return r.Semantics == Aggregation }

// IsComposition reports whether r is a composition.
func (r *Relationship) IsComposition() bool { return r.Semantics == Composition }

// Reverse returns the relationship read from Target to Source.
func (r *Relationship) Reverse() Relationship {
	rev := *r
	rev.Source, rev.Target = r.Target, r.Source
	rev.Name, rev.ReverseName = r.ReverseName, r.Name

	switch r.Cardinality {
	case OneToMany:
		rev.Cardinality = ManyToOne
	case ManyToOne:
		rev.Cardinality = OneToMany
	}

	return rev
}

// Hierarchy is an inheritance chain, most general entity first.
type Hierarchy []string

// Root returns the most general entity.
func (h Hierarchy) Root() string { return h[0] }

// Leaf returns the most specific entity.
func (h Hierarchy) Leaf() string { return h[len(h)-1] }

// WeakGroup is an owner with the weak entities that depend on it.
type WeakGroup struct {
	Owner    string   `yaml:"owner" json:"owner"`
	Entities []string `yaml:"entities" json:"entities"`
}

// Model is the conceptual model of a relational schema.
type Model struct {
	Name          string          `yaml:"name,omitempty" json:"name,omitempty"`
	Entities      []*Entity       `yaml:"entities" json:"entities"`
	Relationships []*Relationship `yaml:"relationships" json:"relationships"`
	Hierarchies   []Hierarchy     `yaml:"hierarchies,omitempty" json:"hierarchies,omitempty"`

	index map[string]*Entity
}

// NewModel copies entities, relationships and hierarchies into a model,
// fills in each entity's Subclasses and validates the result. Errors wrap
// ErrInvalidModel.
func NewModel(name string, entities []*Entity, relationships []*Relationship, hierarchies []Hierarchy) (*Model, error) {
	m := &Model{
		Name:          name,
		Entities:      make([]*Entity, len(entities)),
		Relationships: make([]*Relationship, len(relationships)),
		index:         make(map[string]*Entity, len(entities)),
	}

	var errs []error

	for i, e := range entities {
		c := *e
		c.Attributes = slices.Clone(e.Attributes)
		c.PrimaryKey = slices.Clone(e.PrimaryKey)
		c.Subclasses = nil
		m.Entities[i] = &c

		if _, dup := m.index[c.Name]; dup {
			errs = append(errs, fmt.Errorf("%w: duplicate entity %q", ErrInvalidModel, c.Name))
			continue
		}

		m.index[c.Name] = &c
	}

	for i, r := range relationships {
		c := *r
		c.Attributes = slices.Clone(r.Attributes)
		c.Columns = slices.Clone(r.Columns)
		m.Relationships[i] = &c
	}

	for _, h := range hierarchies {
		m.Hierarchies = append(m.Hierarchies, slices.Clone(h))
	}

	for _, e := range m.Entities {
		if e.Superclass == "" {
			continue
		}

		if parent, ok := m.index[e.Superclass]; ok {
			parent.Subclasses = append(parent.Subclasses, e.Name)
		}
	}

	errs = append(errs, m.validate()...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return m, nil
}

func (m *Model) validate() []error {
	var errs []error

	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalidModel}, args...)...))
	}

	for _, e := range m.Entities {
		if e.Name == "" {
			invalid("entity for table %q has no name", e.Table)
		}

		if !slices.Contains(EntityTypes, e.Type) {
			invalid("entity %q: unknown type %q", e.Name, e.Type)
		}

		switch {
		case e.Type == Weak && e.Owner == "":
			invalid("weak entity %q has no owner", e.Name)
		case e.Type != Weak && e.Owner != "":
			invalid("%s entity %q has an owner", e.Type, e.Name)
		case e.Owner != "" && m.index[e.Owner] == nil:
			invalid("entity %q: unknown owner %q", e.Name, e.Owner)
		}

		switch {
		case e.Type == Subclass && e.Superclass == "":
			invalid("subclass entity %q has no superclass", e.Name)
		case e.Type != Subclass && e.Superclass != "":
			invalid("%s entity %q has a superclass", e.Type, e.Name)
		case e.Superclass != "":
			parent := m.index[e.Superclass]
			if parent == nil {
				invalid("entity %q: unknown superclass %q", e.Name, e.Superclass)
			} else if parent.Type != Superclass && parent.Type != Subclass {
				invalid("entity %q: superclass %q is %s", e.Name, e.Superclass, parent.Type)
			}
		}

		if e.Type == Superclass && len(e.Subclasses) == 0 {
			invalid("superclass entity %q has no subclasses", e.Name)
		}
	}

	for _, e := range m.Entities {
		if m.superclassCycle(e) {
			invalid("entity %q: superclass chain does not terminate", e.Name)
		}
	}

	for i, r := range m.Relationships {
		if r.Name == "" {
			invalid("relationship %d (%s -> %s) has no name", i, r.Source, r.Target)
		}

		if m.index[r.Source] == nil {
			invalid("relationship %q: unknown source %q", r.Name, r.Source)
		}

		if m.index[r.Target] == nil {
			invalid("relationship %q: unknown target %q", r.Name, r.Target)
		}

		if !slices.Contains(Cardinalities, r.Cardinality) {
			invalid("relationship %q: unknown cardinality %q", r.Name, r.Cardinality)
		}

		if !slices.Contains(AllSemantics, r.Semantics) {
			invalid("relationship %q: unknown semantics %q", r.Name, r.Semantics)
		}
	}

	for _, h := range m.Hierarchies {
		if len(h) < 2 {
			invalid("hierarchy %v is shorter than two entities", h)
			continue
		}

		seen := make(map[string]bool, len(h))

		for i, name := range h {
			if seen[name] {
				invalid("hierarchy %v repeats %q", h, name)
				break
			}

			seen[name] = true

			e := m.index[name]
			if e == nil {
				invalid("hierarchy %v: unknown entity %q", h, name)
				break
			}

			if i > 0 && e.Superclass != h[i-1] {
				invalid("hierarchy %v: %q is not a subclass of %q", h, name, h[i-1])
				break
			}
		}
	}

	return errs
}

func (m *Model) superclassCycle(e *Entity) bool {
	seen := map[string]bool{e.Name: true}

	for cur := e; cur.Superclass != ""; {
		next := m.index[cur.Superclass]
		if next == nil {
			return false
		}

		if seen[next.Name] {
			return true
		}

		seen[next.Name] = true
		cur = next
	}

	return false
}

// Entity returns the named entity.
func (m *Model) Entity(name string) (*Entity, bool) {
	e, ok := m.index[name]
	return e, ok
}

// EntityForTable returns the entity built from table.
func (m *Model) EntityForTable(table string) (*Entity, bool) {
	for _, e := range m.Entities {
		if e.Table == table {
			return e, true
		}
	}

	return nil, false
}

// EntityNames returns entity names in model order.
func (m *Model) EntityNames() []string {
	names := make([]string, len(m.Entities))
	for i, e := range m.Entities {
		names[i] = e.Name
	}

	return names
}

// EntitiesOfType returns the entities of type t in model order.
func (m *Model) EntitiesOfType(t EntityType) []*Entity {
	var out []*Entity

	for _, e := range m.Entities {
		if e.Type == t {
			out = append(out, e)
		}
	}

	return out
}

// RelationshipsOf returns the relationships with name as either endpoint.
func (m *Model) RelationshipsOf(name string) []*Relationship {
	var out []*Relationship

	for _, r := range m.Relationships {
		if r.Source == name || r.Target == name {
			out = append(out, r)
		}
	}

	return out
}

// Ancestors returns the superclass chain of name, most general first. It
// does not include name itself.
func (m *Model) Ancestors(name string) []string {
	var chain []string

	e, ok := m.index[name]
	for ok && e.Superclass != "" {
		chain = append(chain, e.Superclass)
		e, ok = m.index[e.Superclass]
	}

	slices.Reverse(chain)

	return chain
}

// WeakEntityGroups groups weak entities by owner. Groups are ordered by the
// first weak entity of each owner.
func (m *Model) WeakEntityGroups() []WeakGroup {
	var groups []WeakGroup

	for _, e := range m.Entities {
		if e.Type != Weak {
			continue
		}

		i := slices.IndexFunc(groups, func(g WeakGroup) bool { return g.Owner == e.Owner })
		if i < 0 {
			groups = append(groups, WeakGroup{Owner: e.Owner})
			i = len(groups) - 1
		}

		groups[i].Entities = append(groups[i].Entities, e.Name)
	}

	return groups
}
