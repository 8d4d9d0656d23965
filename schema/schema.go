// Package schema defines the relational schema representation consumed by the
// inference engine and the graph mapper.
//
// A Schema is treated as immutable once built: helpers such as Derive and
// FilterTables return new values and never modify their receiver.
package schema

import (
	"slices"
	"strings"
)

// Referential actions as reported by information_schema.
const (
	ActionCascade    = "CASCADE"
	ActionSetNull    = "SET NULL"
	ActionSetDefault = "SET DEFAULT"
	ActionRestrict   = "RESTRICT"
	ActionNoAction   = "NO ACTION"
)

// Schema is a snapshot of a relational schema.
type Schema struct {
	// Name identifies the source (database or file name).
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
	// Tables in source order.
	Tables []Table `yaml:"tables" json:"tables"`
}

// Table is a relational table with its keys and indexes.
type Table struct {
	Name string `yaml:"name" json:"name"`
	// Schema is the namespace containing the table (e.g. "public").
	Schema      string       `yaml:"schema,omitempty" json:"schema,omitempty"`
	Columns     []Column     `yaml:"columns" json:"columns"`
	PrimaryKey  []string     `yaml:"primary_key,omitempty" json:"primaryKey,omitempty"`
	ForeignKeys []ForeignKey `yaml:"foreign_keys,omitempty" json:"foreignKeys,omitempty"`
	Indexes     []Index      `yaml:"indexes,omitempty" json:"indexes,omitempty"`
}

// Column is a single table column.
type Column struct {
	Name          string  `yaml:"name" json:"name"`
	Type          string  `yaml:"type" json:"type"`
	Nullable      bool    `yaml:"nullable,omitempty" json:"nullable,omitempty"`
	Unique        bool    `yaml:"unique,omitempty" json:"unique,omitempty"`
	Default       *string `yaml:"default,omitempty" json:"default,omitempty"`
	AutoIncrement bool    `yaml:"auto_increment,omitempty" json:"autoIncrement,omitempty"`
}

// ForeignKey is a reference from a set of columns to another table.
type ForeignKey struct {
	Name              string   `yaml:"name,omitempty" json:"name,omitempty"`
	Columns           []string `yaml:"columns" json:"columns"`
	ReferencedTable   string   `yaml:"references" json:"references"`
	ReferencedColumns []string `yaml:"referenced_columns,omitempty" json:"referencedColumns,omitempty"`

	// Nullable, Unique and CascadeDelete may be set explicitly or computed
	// by Derive from the owning table.
	Nullable      bool `yaml:"nullable,omitempty" json:"nullable,omitempty"`
	Unique        bool `yaml:"unique,omitempty" json:"unique,omitempty"`
	CascadeDelete bool `yaml:"cascade_delete,omitempty" json:"cascadeDelete,omitempty"`

	OnDelete string `yaml:"on_delete,omitempty" json:"onDelete,omitempty"`
	OnUpdate string `yaml:"on_update,omitempty" json:"onUpdate,omitempty"`
}

// Index is a secondary index. Primary keys are not listed as indexes.
type Index struct {
	Name    string   `yaml:"name,omitempty" json:"name,omitempty"`
	Columns []string `yaml:"columns" json:"columns"`
	Unique  bool     `yaml:"unique,omitempty" json:"unique,omitempty"`
}

// Table returns the table with the given name.
func (s *Schema) Table(name string) (*Table, bool) {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i], true
		}
	}

	return nil, false
}

// TableNames returns table names in source order.
func (s *Schema) TableNames() []string {
	names := make([]string, len(s.Tables))
	for i, t := range s.Tables {
		names[i] = t.Name
	}

	return names
}

// ReferencedBy returns every foreign key in the schema that targets table,
// paired with the name of the table declaring it.
func (s *Schema) ReferencedBy(table string) []TableForeignKey {
	var refs []TableForeignKey

	for _, t := range s.Tables {
		for _, fk := range t.ForeignKeys {
			if fk.ReferencedTable == table {
				refs = append(refs, TableForeignKey{Table: t.Name, ForeignKey: fk})
			}
		}
	}

	return refs
}

// TableForeignKey pairs a foreign key with its declaring table.
type TableForeignKey struct {
	Table      string
	ForeignKey ForeignKey
}

// Column returns the column with the given name.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}

	return nil, false
}

// HasColumn reports whether the table declares the column.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.Column(name)
	return ok
}

// IsPrimaryKey reports whether column is part of the primary key.
func (t *Table) IsPrimaryKey(column string) bool {
	return slices.Contains(t.PrimaryKey, column)
}

// HasCompositeKey reports whether the primary key spans more than one column.
func (t *Table) HasCompositeKey() bool {
	return len(t.PrimaryKey) > 1
}

// IsForeignKeyColumn reports whether column participates in any foreign key.
func (t *Table) IsForeignKeyColumn(column string) bool {
	for _, fk := range t.ForeignKeys {
		if slices.Contains(fk.Columns, column) {
			return true
		}
	}

	return false
}

// ForeignKeyColumns returns the distinct foreign-key columns in declaration order.
func (t *Table) ForeignKeyColumns() []string {
	var cols []string

	for _, fk := range t.ForeignKeys {
		for _, c := range fk.Columns {
			if !slices.Contains(cols, c) {
				cols = append(cols, c)
			}
		}
	}

	return cols
}

// IsIndexed reports whether column is the leading column of some index.
func (t *Table) IsIndexed(column string) bool {
	for _, idx := range t.Indexes {
		if len(idx.Columns) > 0 && idx.Columns[0] == column {
			return true
		}
	}

	return false
}

// IsUniqueSet reports whether cols exactly match the primary key or a unique
// index, ignoring order.
func (t *Table) IsUniqueSet(cols []string) bool {
	if len(cols) == 0 {
		return false
	}

	if sameSet(cols, t.PrimaryKey) {
		return true
	}

	for _, idx := range t.Indexes {
		if idx.Unique && sameSet(cols, idx.Columns) {
			return true
		}
	}

	if len(cols) == 1 {
		if c, ok := t.Column(cols[0]); ok && c.Unique {
			return true
		}
	}

	return false
}

// IsSubsetOfKey reports whether every column in cols belongs to the primary key.
func (t *Table) IsSubsetOfKey(cols []string) bool {
	if len(cols) == 0 || len(t.PrimaryKey) == 0 {
		return false
	}

	for _, c := range cols {
		if !t.IsPrimaryKey(c) {
			return false
		}
	}

	return true
}

// OverlapsKey reports whether any column in cols belongs to the primary key.
func (t *Table) OverlapsKey(cols []string) bool {
	return slices.ContainsFunc(cols, t.IsPrimaryKey)
}

// NonKeyColumns returns columns that are neither primary-key nor foreign-key
// columns, in declaration order.
func (t *Table) NonKeyColumns() []Column {
	var cols []Column

	for _, c := range t.Columns {
		if t.IsPrimaryKey(c.Name) || t.IsForeignKeyColumn(c.Name) {
			continue
		}

		cols = append(cols, c)
	}

	return cols
}

// QualifiedName returns schema.name when a namespace is set.
func (t *Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}

	return t.Schema + "." + t.Name
}

// Self reports whether the foreign key references its own table.
func (fk *ForeignKey) Self(table string) bool {
	return fk.ReferencedTable == table
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	out := &Schema{Name: s.Name, Tables: make([]Table, len(s.Tables))}

	for i, t := range s.Tables {
		out.Tables[i] = t.clone()
	}

	return out
}

func (t Table) clone() Table {
	c := t
	c.Columns = slices.Clone(t.Columns)
	c.PrimaryKey = slices.Clone(t.PrimaryKey)

	c.ForeignKeys = make([]ForeignKey, len(t.ForeignKeys))
	for i, fk := range t.ForeignKeys {
		fk.Columns = slices.Clone(fk.Columns)
		fk.ReferencedColumns = slices.Clone(fk.ReferencedColumns)
		c.ForeignKeys[i] = fk
	}

	c.Indexes = make([]Index, len(t.Indexes))
	for i, idx := range t.Indexes {
		idx.Columns = slices.Clone(idx.Columns)
		c.Indexes[i] = idx
	}

	if len(t.ForeignKeys) == 0 {
		c.ForeignKeys = nil
	}

	if len(t.Indexes) == 0 {
		c.Indexes = nil
	}

	return c
}

// Derive returns a copy of the schema with foreign-key flags computed from
// table structure. Flags that are already set are kept.
func (s *Schema) Derive() *Schema {
	out := s.Clone()

	for ti := range out.Tables {
		t := &out.Tables[ti]

		for fi := range t.ForeignKeys {
			fk := &t.ForeignKeys[fi]

			for _, name := range fk.Columns {
				if c, ok := t.Column(name); ok && c.Nullable {
					fk.Nullable = true
				}
			}

			if t.IsUniqueSet(fk.Columns) {
				fk.Unique = true
			}

			fk.OnDelete = NormalizeAction(fk.OnDelete)
			fk.OnUpdate = NormalizeAction(fk.OnUpdate)

			if fk.OnDelete == ActionCascade {
				fk.CascadeDelete = true
			}

			if len(fk.ReferencedColumns) == 0 {
				if ref, ok := out.Table(fk.ReferencedTable); ok {
					fk.ReferencedColumns = slices.Clone(ref.PrimaryKey)
				}
			}
		}
	}

	return out
}

// NormalizeAction upper-cases a referential action and restores the spaces
// some parsers drop or spell as underscores ("SETNULL" and "SET_NULL" ->
// "SET NULL").
func NormalizeAction(action string) string {
	a := strings.ToUpper(strings.Join(strings.Fields(strings.ReplaceAll(action, "_", " ")), " "))

	switch a {
	case "SETNULL":
		return ActionSetNull
	case "SETDEFAULT":
		return ActionSetDefault
	case "NOACTION":
		return ActionNoAction
	default:
		return a
	}
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) || len(a) == 0 {
		return false
	}

	for _, x := range a {
		if !slices.Contains(b, x) {
			return false
		}
	}

	return true
}
