package inference

import (
	"slices"

	"go.uber.org/zap"

	"github.com/rlch/relgraph/conceptual"
	"github.com/rlch/relgraph/schema"
)

// Pass is one whole-schema inference step. Passes run in list order and each
// sees every classification made by the passes before it.
type Pass struct {
	// Name is a short identifier used in logs.
	Name string

	// Doc is a brief description of what the pass decides.
	Doc string

	// Run reads and extends the accumulator.
	Run func(st *State)
}

// DefaultPasses returns the built-in passes in execution order.
func DefaultPasses() []*Pass {
	return []*Pass{
		inheritancePass,
		ownershipPass,
		cardinalityPass,
		namingPass,
	}
}

// tableInfo is the classification of one table.
type tableInfo struct {
	table *schema.Table
	index int

	kind       conceptual.EntityType
	owner      string
	superclass string
	children   []string
	// collapsed junctions become a many-to-many relationship, not an entity.
	collapsed bool
}

// fkInfo is the classification of one foreign key.
type fkInfo struct {
	table *tableInfo
	fk    *schema.ForeignKey

	inheritance bool
	semantics   conceptual.Semantics
	cardinality conceptual.Cardinality
}

// State is the accumulator handed from pass to pass.
type State struct {
	schema *schema.Schema
	engine *Engine
	log    *zap.Logger
	report *Report

	tables      []*tableInfo
	byName      map[string]*tableInfo
	fks         []*fkInfo
	hierarchies []conceptual.Hierarchy

	relationships []*conceptual.Relationship
}

func newState(s *schema.Schema, e *Engine) *State {
	st := &State{
		schema: s,
		engine: e,
		log:    e.opts.logger.With(zap.String("schema", s.Name)),
		report: &Report{},
		byName: make(map[string]*tableInfo, len(s.Tables)),
	}

	for i := range s.Tables {
		t := &s.Tables[i]
		ti := &tableInfo{table: t, index: i, kind: conceptual.Strong}
		st.tables = append(st.tables, ti)
		st.byName[t.Name] = ti

		if len(t.PrimaryKey) == 0 {
			st.report.add(UnclassifiableConstruct, SeverityInfo, t.Name, nil,
				"table has no primary key; classified as %s", conceptual.Strong)
		}
	}

	for _, ti := range st.tables {
		for j := range ti.table.ForeignKeys {
			st.fks = append(st.fks, &fkInfo{
				table:       ti,
				fk:          &ti.table.ForeignKeys[j],
				semantics:   conceptual.Association,
				cardinality: conceptual.OneToMany,
			})
		}
	}

	return st
}

// ----------------------------------------------------------------------------
// Pass: inheritance
// ----------------------------------------------------------------------------

var inheritancePass = &Pass{
	Name: "inheritance",
	Doc:  "Detects class-table inheritance: a table whose key references another table's whole key.",
	Run:  detectInheritance,
}

func detectInheritance(st *State) {
	if !st.engine.opts.preserveInheritance {
		return
	}

	for _, f := range st.fks {
		t := f.table.table
		if !st.inheritanceCandidate(t, f.fk) {
			continue
		}

		sub, super := f.table, st.byName[f.fk.ReferencedTable]

		switch {
		case sub == super:
			st.report.add(CycleRejected, SeverityWarning, t.Name, f.fk.Columns,
				"table references its own key; kept as a plain relationship")

			continue
		case sub.superclass == super.table.Name:
			continue
		case sub.superclass != "":
			st.report.add(InheritanceAmbiguity, SeverityWarning, t.Name, f.fk.Columns,
				"also qualifies as a subclass of %s; keeping %s", super.table.Name, sub.superclass)

			continue
		case st.isAncestor(sub.table.Name, super):
			st.report.add(CycleRejected, SeverityWarning, t.Name, f.fk.Columns,
				"inheriting from %s would close a cycle; kept as a plain relationship", super.table.Name)

			continue
		}

		f.inheritance = true
		f.semantics = conceptual.Inheritance
		f.cardinality = conceptual.OneToOne
		sub.superclass = super.table.Name
		super.children = append(super.children, sub.table.Name)

		st.log.Debug("detected inheritance",
			zap.String("subclass", sub.table.Name),
			zap.String("superclass", super.table.Name))
	}

	for _, ti := range st.tables {
		switch {
		case ti.superclass != "":
			ti.kind = conceptual.Subclass
		case len(ti.children) > 0:
			ti.kind = conceptual.Superclass
		}

		slices.SortFunc(ti.children, func(a, b string) int {
			return st.byName[a].index - st.byName[b].index
		})
	}

	st.hierarchies = st.chains()
}

func (st *State) inheritanceCandidate(t *schema.Table, fk *schema.ForeignKey) bool {
	if len(t.PrimaryKey) == 0 || !t.IsSubsetOfKey(fk.Columns) || t.IsKeyedByForeignKeys() {
		return false
	}

	ref, ok := st.schema.Table(fk.ReferencedTable)
	if !ok || len(ref.PrimaryKey) == 0 || !sameColumns(fk.ReferencedColumns, ref.PrimaryKey) {
		return false
	}

	return true
}

// isAncestor reports whether name is ti or one of ti's superclasses.
func (st *State) isAncestor(name string, ti *tableInfo) bool {
	for cur := ti; cur != nil; cur = st.byName[cur.superclass] {
		if cur.table.Name == name {
			return true
		}
	}

	return false
}

// chains decomposes the hierarchy forest into root-to-leaf chains. Roots and
// children are visited in schema order.
func (st *State) chains() []conceptual.Hierarchy {
	const (
		unvisited = iota
		inProgress
		done
	)

	mark := make(map[string]int, len(st.tables))

	var (
		out   []conceptual.Hierarchy
		visit func(name string, path []string)
	)

	visit = func(name string, path []string) {
		if mark[name] != unvisited {
			return
		}

		mark[name] = inProgress
		path = append(path, name)

		children := st.byName[name].children
		if len(children) == 0 {
			out = append(out, slices.Clone(conceptual.Hierarchy(path)))
		}

		for _, child := range children {
			visit(child, path)
		}

		mark[name] = done
	}

	for _, ti := range st.tables {
		if ti.superclass == "" && len(ti.children) > 0 {
			visit(ti.table.Name, nil)
		}
	}

	return out
}

// ----------------------------------------------------------------------------
// Pass: ownership
// ----------------------------------------------------------------------------

var ownershipPass = &Pass{
	Name: "ownership",
	Doc:  "Detects weak entities and grades each foreign key as composition, aggregation, association or dependency.",
	Run:  detectOwnership,
}

func detectOwnership(st *State) {
	for _, ti := range st.tables {
		t := ti.table
		if ti.kind != conceptual.Strong || !t.HasCompositeKey() || t.IsKeyedByForeignKeys() {
			continue
		}

		for i := range t.ForeignKeys {
			fk := &t.ForeignKeys[i]
			if fk.Nullable || fk.Self(t.Name) || !t.OverlapsKey(fk.Columns) {
				continue
			}

			ti.kind = conceptual.Weak
			ti.owner = fk.ReferencedTable

			st.log.Debug("detected weak entity",
				zap.String("table", t.Name),
				zap.String("owner", ti.owner))

			break
		}
	}

	for _, f := range st.fks {
		if f.inheritance {
			continue
		}

		f.semantics = ownershipSemantics(f.table.table, f.fk)
	}
}

func ownershipSemantics(t *schema.Table, fk *schema.ForeignKey) conceptual.Semantics {
	switch {
	case fk.Self(t.Name):
		return conceptual.Dependency
	case !fk.Nullable && fk.CascadeDelete:
		return conceptual.Composition
	case !fk.Nullable, fk.CascadeDelete, t.OverlapsKey(fk.Columns):
		return conceptual.Aggregation
	default:
		return conceptual.Association
	}
}

// ----------------------------------------------------------------------------
// Pass: cardinality
// ----------------------------------------------------------------------------

var cardinalityPass = &Pass{
	Name: "cardinality",
	Doc:  "Infers cardinality, collapses plain junction tables into many-to-many relationships and builds the relationship list.",
	Run:  inferCardinality,
}

func inferCardinality(st *State) {
	infer := st.engine.opts.inferCardinality

	for _, ti := range st.tables {
		t := ti.table
		if ti.kind != conceptual.Strong || !t.IsKeyedByForeignKeys() {
			continue
		}

		if infer && t.IsJunction() && len(t.NonKeyColumns()) == 0 && len(st.schema.ReferencedBy(t.Name)) == 0 {
			ti.collapsed = true

			st.log.Debug("collapsed junction table", zap.String("table", t.Name))

			continue
		}

		ti.kind = conceptual.Associative
	}

	for _, f := range st.fks {
		if f.inheritance {
			continue
		}

		switch {
		case !infer:
			f.cardinality = conceptual.OneToMany
			f.semantics = conceptual.Association
		case f.fk.Unique && !f.fk.Nullable:
			f.cardinality = conceptual.OneToOne
		default:
			f.cardinality = conceptual.OneToMany
		}
	}

	st.relationships = nil

	for _, ti := range st.tables {
		if ti.collapsed {
			st.relationships = append(st.relationships, junctionRelationship(ti.table))
			continue
		}

		for _, f := range st.fks {
			if f.table == ti {
				st.relationships = append(st.relationships, fkRelationship(f))
			}
		}
	}
}

func fkRelationship(f *fkInfo) *conceptual.Relationship {
	r := &conceptual.Relationship{
		Source:      f.fk.ReferencedTable,
		Target:      f.table.table.Name,
		Cardinality: f.cardinality,
		Semantics:   f.semantics,
		Table:       f.table.table.Name,
		Columns:     slices.Clone(f.fk.Columns),
		Mandatory:   !f.fk.Nullable,
	}

	// Inheritance reads from the subclass to its superclass.
	if f.inheritance {
		r.Source, r.Target = r.Target, r.Source
	}

	return r
}

func junctionRelationship(t *schema.Table) *conceptual.Relationship {
	first, second := t.ForeignKeys[0], t.ForeignKeys[1]

	return &conceptual.Relationship{
		Source:      first.ReferencedTable,
		Target:      second.ReferencedTable,
		Cardinality: conceptual.ManyToMany,
		Semantics:   conceptual.Association,
		Table:       t.Name,
		Columns:     append(slices.Clone(first.Columns), second.Columns...),
		Junction:    t.Name,
	}
}

// ----------------------------------------------------------------------------
// Pass: naming
// ----------------------------------------------------------------------------

var namingPass = &Pass{
	Name: "naming",
	Doc:  "Names every relationship from the first matching naming rule and suffixes collisions.",
	Run:  nameRelationships,
}

func nameRelationships(st *State) {
	for _, r := range st.relationships {
		r.Name, r.ReverseName = st.name(r)
	}

	resolveCollisions(st.relationships, st.report)
}

// ----------------------------------------------------------------------------
// Model assembly
// ----------------------------------------------------------------------------

func (st *State) model() (*conceptual.Model, error) {
	var entities []*conceptual.Entity

	for _, ti := range st.tables {
		if ti.collapsed {
			continue
		}

		entities = append(entities, &conceptual.Entity{
			Name:       ti.table.Name,
			Table:      ti.table.Name,
			Type:       ti.kind,
			Attributes: attributes(ti.table),
			PrimaryKey: slices.Clone(ti.table.PrimaryKey),
			Owner:      ti.owner,
			Superclass: ti.superclass,
		})
	}

	return conceptual.NewModel(st.schema.Name, entities, st.relationships, st.hierarchies)
}

// attributes lists every column except foreign-key columns outside the key.
func attributes(t *schema.Table) []conceptual.Attribute {
	var attrs []conceptual.Attribute

	for _, c := range t.Columns {
		key := t.IsPrimaryKey(c.Name)
		if !key && t.IsForeignKeyColumn(c.Name) {
			continue
		}

		attrs = append(attrs, conceptual.Attribute{
			Name:     c.Name,
			Type:     c.Type,
			Nullable: c.Nullable,
			Key:      key,
			Unique:   c.Unique || t.IsUniqueSet([]string{c.Name}),
			Indexed:  t.IsIndexed(c.Name),
			Default:  c.Default,
		})
	}

	return attrs
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for _, c := range a {
		if !slices.Contains(b, c) {
			return false
		}
	}

	return true
}
