package ddl

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rlch/relgraph/schema"
)

// builder resolves parsed statements into tables. Identifiers are matched
// case-insensitively and canonicalised to their declared spelling.
type builder struct {
	tables []*schema.Table
}

func build(name string, f *file) (*schema.Schema, error) {
	b := &builder{}

	for _, stmt := range f.Statements {
		var err error

		switch {
		case stmt.CreateTable != nil:
			err = b.createTable(stmt.CreateTable)
		case stmt.CreateIndex != nil:
			err = b.createIndex(stmt.CreateIndex)
		case stmt.AlterTable != nil:
			err = b.alterTable(stmt.AlterTable)
		}

		if err != nil {
			return nil, err
		}
	}

	s := &schema.Schema{Name: name, Tables: make([]schema.Table, len(b.tables))}

	for i, t := range b.tables {
		b.resolveReferences(t)
		s.Tables[i] = *t
	}

	return s.Derive(), nil
}

func (b *builder) table(name string) *schema.Table {
	for _, t := range b.tables {
		if strings.EqualFold(t.Name, name) {
			return t
		}
	}

	return nil
}

func (b *builder) createTable(ct *createTable) error {
	t := &schema.Table{Name: ct.Name.Name(), Schema: ct.Name.Namespace()}

	if b.table(t.Name) != nil {
		return fmt.Errorf("%s: ddl: table %q declared twice", ct.Pos, t.Name)
	}

	var constraints []*tableConstraint

	for _, el := range ct.Elements {
		if el.Constraint != nil {
			constraints = append(constraints, el.Constraint)
			continue
		}

		addColumn(t, el.Column)
	}

	for _, c := range constraints {
		applyConstraint(t, c)
	}

	b.tables = append(b.tables, t)

	return nil
}

func addColumn(t *schema.Table, def *columnDef) {
	col := schema.Column{
		Name:     def.Name,
		Type:     def.Type.String(),
		Nullable: true,
	}

	if strings.HasSuffix(col.Type, "serial") {
		col.AutoIncrement = true
		col.Nullable = false
	}

	for _, c := range def.Constraints {
		switch {
		case c.NotNull:
			col.Nullable = false
		case c.Null:
			col.Nullable = true
		case c.PrimaryKey:
			col.Nullable = false
			if !slices.Contains(t.PrimaryKey, col.Name) {
				t.PrimaryKey = append(t.PrimaryKey, col.Name)
			}
		case c.Unique:
			col.Unique = true
		case c.AutoIncrement:
			col.AutoIncrement = true
		case c.Identity != nil:
			col.AutoIncrement = true
		case c.Generated != nil && c.Generated.Identity:
			col.AutoIncrement = true
			col.Nullable = false
		case c.Default != nil:
			v := c.Default.String()
			col.Default = &v
		case c.References != nil:
			t.ForeignKeys = append(t.ForeignKeys, foreignKey(c.Name, []string{col.Name}, c.References))
		}
	}

	t.Columns = append(t.Columns, col)
}

func applyConstraint(t *schema.Table, c *tableConstraint) {
	switch {
	case c.PrimaryKey != nil:
		t.PrimaryKey = canonical(t, c.PrimaryKey.Names())
		for _, name := range t.PrimaryKey {
			if col, ok := t.Column(name); ok {
				col.Nullable = false
			}
		}
	case c.ForeignKey != nil:
		name := c.Name
		if name == "" {
			name = c.ForeignKey.Name
		}

		cols := canonical(t, c.ForeignKey.Columns.Names())
		t.ForeignKeys = append(t.ForeignKeys, foreignKey(name, cols, c.ForeignKey.References))
	case c.Unique != nil:
		addIndex(t, indexName(c.Name, c.Unique.Name), c.Unique.Columns, true)
	case c.Index != nil:
		addIndex(t, indexName(c.Name, c.Index.Name), c.Index.Columns, false)
	}
}

func indexName(constraint, clause string) string {
	if constraint != "" {
		return constraint
	}

	return clause
}

// addIndex records an index unless it covers an expression rather than
// plain columns.
func addIndex(t *schema.Table, name string, cols *keyColumns, unique bool) {
	names := make([]string, 0, len(cols.Columns))

	for _, kc := range cols.Columns {
		col, ok := columnFold(t, kc.Name)
		if !ok || (kc.Args != nil && !isPrefixLength(kc.Args)) {
			return
		}

		names = append(names, col)
	}

	t.Indexes = append(t.Indexes, schema.Index{Name: name, Columns: names, Unique: unique})
}

func isPrefixLength(p *parens) bool {
	return len(p.Items) == 1 && p.Items[0].Nested == nil && p.Items[0].Token != "" &&
		strings.Trim(p.Items[0].Token, "0123456789") == ""
}

func foreignKey(name string, cols []string, ref *referencesClause) schema.ForeignKey {
	fk := schema.ForeignKey{
		Name:              name,
		Columns:           cols,
		ReferencedTable:   ref.Table.Name(),
		ReferencedColumns: ref.Columns,
	}

	for _, a := range ref.Actions {
		action := schema.NormalizeAction(a.Action)

		switch strings.ToUpper(a.Event) {
		case "DELETE":
			fk.OnDelete = action
		case "UPDATE":
			fk.OnUpdate = action
		}
	}

	return fk
}

// resolveReferences canonicalises referenced table and column spellings.
// Unknown references are left as written for Validate to report.
func (b *builder) resolveReferences(t *schema.Table) {
	for i := range t.ForeignKeys {
		fk := &t.ForeignKeys[i]

		ref := b.table(fk.ReferencedTable)
		if ref == nil {
			continue
		}

		fk.ReferencedTable = ref.Name
		fk.ReferencedColumns = canonical(ref, fk.ReferencedColumns)
	}
}

func canonical(t *schema.Table, cols []string) []string {
	if len(cols) == 0 {
		return nil
	}

	out := make([]string, len(cols))

	for i, c := range cols {
		if name, ok := columnFold(t, c); ok {
			out[i] = name
		} else {
			out[i] = c
		}
	}

	return out
}

func columnFold(t *schema.Table, name string) (string, bool) {
	for _, c := range t.Columns {
		if strings.EqualFold(c.Name, name) {
			return c.Name, true
		}
	}

	return "", false
}

func (b *builder) createIndex(ci *createIndex) error {
	t := b.table(ci.Table.Name())
	if t == nil {
		return fmt.Errorf("%s: %w: %s", ci.Pos, ErrUnknownTable, ci.Table.Name())
	}

	addIndex(t, ci.Name.Name(), ci.Columns, ci.Unique)

	return nil
}

func (b *builder) alterTable(at *alterTable) error {
	if len(at.Add) == 0 {
		return nil
	}

	t := b.table(at.Table.Name())
	if t == nil {
		return fmt.Errorf("%s: %w: %s", at.Pos, ErrUnknownTable, at.Table.Name())
	}

	for _, c := range at.Add {
		applyConstraint(t, c)
	}

	return nil
}
