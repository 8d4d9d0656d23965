package migrate

import (
	"errors"
	"fmt"
	"slices"

	"github.com/rlch/relgraph"
	"github.com/rlch/relgraph/graph"
	"github.com/rlch/relgraph/mapper"
	"github.com/rlch/relgraph/schema"
)

var (
	// ErrUnknownTable is returned when a graph schema names a table the
	// relational schema does not have.
	ErrUnknownTable = errors.New("migrate: unknown table")
	// ErrNoJoin is returned when no foreign key links a subclass table to
	// its parent table.
	ErrNoJoin = errors.New("migrate: no key join between tables")
)

// NodePlan loads one node label from its tables.
type NodePlan struct {
	// Label is the node label being loaded.
	Label string
	// Merge is the most general label of the node. Nodes are merged on
	// Merge and Key, so a subclass row lands on its superclass node.
	Merge  string
	Labels []string
	Key    []string
	// Properties are the property names of Select's columns, in order.
	Properties []string
	Select     relgraph.Selection
}

// RelationshipPlan loads one relationship type. Select returns the From key
// values, then the To key values, then Properties.
type RelationshipPlan struct {
	Type       string
	From       relgraph.Endpoint
	To         relgraph.Endpoint
	Properties []string
	Select     relgraph.Selection
}

// Name returns the relationship's (type, from, to) triple.
func (p *RelationshipPlan) Name() string {
	return p.From.Label + "-" + p.Type + "->" + p.To.Label
}

// Skip records a relationship type that cannot be loaded.
type Skip struct {
	Name   string `json:"name" yaml:"name"`
	Reason string `json:"reason" yaml:"reason"`
}

// Plan is the ordered set of reads and writes that copies a relational
// database into a graph. Nodes load before relationships.
type Plan struct {
	Nodes         []NodePlan
	Relationships []RelationshipPlan
	Skipped       []Skip
}

// NewPlan derives the loading plan of gs from the tables it was mapped
// from. Node labels join their JoinTables on the foreign keys that link each
// subclass table to its parent. Relationship types are read from the
// foreign key or junction table they were mapped from.
func NewPlan(s *schema.Schema, gs *graph.Schema) (*Plan, error) {
	p := &planner{schema: s.Derive(), graph: gs, byTable: make(map[string]*graph.NodeLabel)}

	plan := &Plan{}

	for _, n := range gs.Nodes {
		np, err := p.node(n)
		if err != nil {
			return nil, err
		}

		plan.Nodes = append(plan.Nodes, np)
	}

	for _, r := range gs.Relationships {
		rp, reason, err := p.relationship(r)
		if err != nil {
			return nil, err
		}

		if reason != "" {
			plan.Skipped = append(plan.Skipped, Skip{Name: r.Source + "-" + r.Name + "->" + r.Target, Reason: reason})
			continue
		}

		plan.Relationships = append(plan.Relationships, rp)
	}

	return plan, nil
}

type planner struct {
	schema *schema.Schema
	graph  *graph.Schema
	// byTable maps a node's own table to the node.
	byTable map[string]*graph.NodeLabel
}

func (p *planner) table(name string) (*schema.Table, error) {
	t, ok := p.schema.Table(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}

	return t, nil
}

func tableRef(t *schema.Table) relgraph.TableRef {
	return relgraph.TableRef{Schema: t.Schema, Name: t.Name}
}

func (p *planner) node(n *graph.NodeLabel) (NodePlan, error) {
	tables := n.JoinTables
	if len(tables) == 0 {
		tables = []string{n.Entity}
	}

	own, err := p.table(tables[len(tables)-1])
	if err != nil {
		return NodePlan{}, err
	}

	p.byTable[own.Name] = n

	np := NodePlan{
		Label:  n.Name,
		Merge:  n.Name,
		Key:    n.KeyProperties,
		Select: relgraph.Selection{From: tableRef(own)},
	}

	if len(n.Labels) > 0 {
		np.Merge = n.Labels[0]
		np.Labels = n.AllLabels()[1:]

		if root, ok := p.graph.Node(np.Merge); ok && len(root.KeyProperties) > 0 {
			np.Key = root.KeyProperties
		}
	}

	for i := len(tables) - 2; i >= 0; i-- {
		child, err := p.table(tables[i+1])
		if err != nil {
			return NodePlan{}, err
		}

		parent, err := p.table(tables[i])
		if err != nil {
			return NodePlan{}, err
		}

		join, ok := parentJoin(child, parent)
		if !ok {
			return NodePlan{}, fmt.Errorf("%w: %s to %s", ErrNoJoin, child.Name, parent.Name)
		}

		np.Select.Joins = append(np.Select.Joins, join)
	}

	for _, prop := range n.Properties {
		if prop.SourceColumn == "" {
			continue
		}

		table := prop.SourceTable
		if table == "" {
			table = own.Name
		}

		np.Properties = append(np.Properties, prop.Name)
		np.Select.Columns = append(np.Select.Columns, relgraph.ColumnRef{Table: table, Column: prop.SourceColumn})
	}

	for _, k := range own.PrimaryKey {
		np.Select.OrderBy = append(np.Select.OrderBy, relgraph.ColumnRef{Table: own.Name, Column: k})
	}

	return np, nil
}

// parentJoin joins parent to child on the foreign key of child that lies in
// its primary key and references parent.
func parentJoin(child, parent *schema.Table) (relgraph.Join, bool) {
	for _, fk := range child.ForeignKeys {
		if fk.ReferencedTable != parent.Name || !child.IsSubsetOfKey(fk.Columns) ||
			len(fk.Columns) != len(fk.ReferencedColumns) {
			continue
		}

		join := relgraph.Join{Table: tableRef(parent)}
		for i, c := range fk.Columns {
			join.On = append(join.On, relgraph.JoinColumn{
				Column: fk.ReferencedColumns[i],
				Equals: relgraph.ColumnRef{Table: child.Name, Column: c},
			})
		}

		return join, true
	}

	return relgraph.Join{}, false
}

// relationship plans r. A non-empty reason means r cannot be loaded.
func (p *planner) relationship(r *graph.RelationshipType) (RelationshipPlan, string, error) {
	if r.Junction != "" {
		return p.junction(r)
	}

	child, err := p.table(r.SourceTable)
	if err != nil {
		return RelationshipPlan{}, "", err
	}

	fk, ok := foreignKey(child, r.Columns)
	if !ok {
		return RelationshipPlan{}, "no foreign key on " + child.Name + " matches its columns", nil
	}

	parentNode, ok := p.byTable[fk.ReferencedTable]
	if !ok {
		return RelationshipPlan{}, "referenced table " + fk.ReferencedTable + " has no node label", nil
	}

	childNode, ok := p.byTable[child.Name]
	if !ok {
		return RelationshipPlan{}, "table " + child.Name + " has no node label", nil
	}

	if len(child.PrimaryKey) == 0 {
		return RelationshipPlan{}, "table " + child.Name + " has no primary key", nil
	}

	parent := endPoint{node: parentNode}
	for i, c := range fk.Columns {
		parent.add(fk.ReferencedColumns[i], relgraph.ColumnRef{Table: child.Name, Column: c})
	}

	childEnd := endPoint{node: childNode}
	for _, k := range child.PrimaryKey {
		childEnd.add(k, relgraph.ColumnRef{Table: child.Name, Column: k})
	}

	for _, e := range []endPoint{parent, childEnd} {
		if missing := e.missing(); missing != "" {
			return RelationshipPlan{}, e.node.Name + " has no property " + missing, nil
		}
	}

	from, to := childEnd, parent
	if r.Source == parentNode.Name {
		from, to = parent, childEnd
	}

	rp := relationshipPlan(r, child, from, to)

	for _, c := range fk.Columns {
		rp.Select.NotNull = append(rp.Select.NotNull, relgraph.ColumnRef{Table: child.Name, Column: c})
	}

	return rp, "", nil
}

func (p *planner) junction(r *graph.RelationshipType) (RelationshipPlan, string, error) {
	jt, err := p.table(r.Junction)
	if err != nil {
		return RelationshipPlan{}, "", err
	}

	var (
		ends []endPoint
		fks  []schema.ForeignKey
		used = make(map[int]bool)
	)

	for _, label := range []string{r.Source, r.Target} {
		for i, fk := range jt.ForeignKeys {
			n, ok := p.byTable[fk.ReferencedTable]
			if !ok || n.Name != label || used[i] || len(fk.Columns) != len(fk.ReferencedColumns) {
				continue
			}

			used[i] = true

			e := endPoint{node: n}
			for i, c := range fk.Columns {
				e.add(fk.ReferencedColumns[i], relgraph.ColumnRef{Table: jt.Name, Column: c})
			}

			ends = append(ends, e)
			fks = append(fks, fk)

			break
		}
	}

	if len(ends) != 2 {
		return RelationshipPlan{}, "junction " + jt.Name + " does not reference both ends", nil
	}

	for _, e := range ends {
		if missing := e.missing(); missing != "" {
			return RelationshipPlan{}, e.node.Name + " has no property " + missing, nil
		}
	}

	rp := relationshipPlan(r, jt, ends[0], ends[1])

	for _, fk := range fks {
		for _, c := range fk.Columns {
			rp.Select.NotNull = append(rp.Select.NotNull, relgraph.ColumnRef{Table: jt.Name, Column: c})
		}
	}

	return rp, "", nil
}

// relationshipPlan selects the key values of from and to, then the
// properties of r read from table.
func relationshipPlan(r *graph.RelationshipType, table *schema.Table, from, to endPoint) RelationshipPlan {
	rp := RelationshipPlan{
		Type:   r.Name,
		From:   relgraph.Endpoint{Label: from.node.Name, Key: from.keys},
		To:     relgraph.Endpoint{Label: to.node.Name, Key: to.keys},
		Select: relgraph.Selection{From: tableRef(table)},
	}

	rp.Select.Columns = append(append(rp.Select.Columns, from.cols...), to.cols...)

	for _, prop := range r.Properties {
		if prop.SourceColumn == "" || (prop.SourceTable != "" && prop.SourceTable != table.Name) {
			continue
		}

		rp.Properties = append(rp.Properties, prop.Name)
		rp.Select.Columns = append(rp.Select.Columns, relgraph.ColumnRef{Table: table.Name, Column: prop.SourceColumn})
	}

	return rp
}

func foreignKey(t *schema.Table, cols []string) (schema.ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if slices.Equal(fk.Columns, cols) && len(fk.Columns) == len(fk.ReferencedColumns) {
			return fk, true
		}
	}

	return schema.ForeignKey{}, false
}

// endPoint collects the key properties that identify one end of a
// relationship and the columns holding their values.
type endPoint struct {
	node *graph.NodeLabel
	keys []string
	cols []relgraph.ColumnRef
}

func (e *endPoint) add(column string, value relgraph.ColumnRef) {
	e.keys = append(e.keys, mapper.PropertyName(column))
	e.cols = append(e.cols, value)
}

// missing returns the first key the node does not carry.
func (e *endPoint) missing() string {
	for _, k := range e.keys {
		if _, ok := e.node.Property(k); !ok {
			return k
		}
	}

	return ""
}
