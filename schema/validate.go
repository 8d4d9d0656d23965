package schema

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSchemaIntegrity is matched by every error returned from Validate.
var ErrSchemaIntegrity = errors.New("schema: integrity violation")

// IntegrityError describes one structural problem in a schema.
type IntegrityError struct {
	Table string
	// Column is the offending column, when the problem is column-scoped.
	Column string
	// Reference is the referenced table or table.column, for foreign keys.
	Reference string
	Reason    string
}

func (e *IntegrityError) Error() string {
	var b strings.Builder

	b.WriteString("schema: ")
	b.WriteString(e.Table)

	if e.Column != "" {
		b.WriteString(".")
		b.WriteString(e.Column)
	}

	b.WriteString(": ")
	b.WriteString(e.Reason)

	if e.Reference != "" {
		b.WriteString(" (")
		b.WriteString(e.Reference)
		b.WriteString(")")
	}

	return b.String()
}

// Is makes every IntegrityError match ErrSchemaIntegrity.
func (e *IntegrityError) Is(target error) bool {
	return target == ErrSchemaIntegrity
}

// Validate checks referential and structural integrity. All problems are
// reported together; the result is nil when the schema is well formed.
func (s *Schema) Validate() error {
	var errs []error

	add := func(table, column, ref, reason string) {
		errs = append(errs, &IntegrityError{Table: table, Column: column, Reference: ref, Reason: reason})
	}

	seenTables := make(map[string]bool, len(s.Tables))

	for _, t := range s.Tables {
		if t.Name == "" {
			add("<unnamed>", "", "", "table has no name")
			continue
		}

		if seenTables[t.Name] {
			add(t.Name, "", "", "duplicate table")
		}

		seenTables[t.Name] = true

		seenCols := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			if seenCols[c.Name] {
				add(t.Name, c.Name, "", "duplicate column")
			}

			seenCols[c.Name] = true
		}

		for _, pk := range t.PrimaryKey {
			if !seenCols[pk] {
				add(t.Name, pk, "", "primary key column does not exist")
			}
		}

		for _, idx := range t.Indexes {
			for _, c := range idx.Columns {
				if !seenCols[c] {
					add(t.Name, c, idx.Name, "index column does not exist")
				}
			}
		}

		for _, fk := range t.ForeignKeys {
			errs = append(errs, s.validateForeignKey(&t, &fk, seenCols)...)
		}
	}

	return errors.Join(errs...)
}

func (s *Schema) validateForeignKey(t *Table, fk *ForeignKey, columns map[string]bool) []error {
	var errs []error

	add := func(column, ref, reason string) {
		errs = append(errs, &IntegrityError{Table: t.Name, Column: column, Reference: ref, Reason: reason})
	}

	if len(fk.Columns) == 0 {
		add("", fk.ReferencedTable, "foreign key has no columns")
	}

	for _, c := range fk.Columns {
		if !columns[c] {
			add(c, fk.ReferencedTable, "foreign key column does not exist")
		}
	}

	ref, ok := s.Table(fk.ReferencedTable)
	if !ok {
		add(strings.Join(fk.Columns, ","), fk.ReferencedTable, "foreign key references unknown table")
		return errs
	}

	target := fk.ReferencedColumns
	if len(target) == 0 {
		if len(ref.PrimaryKey) == 0 {
			add(strings.Join(fk.Columns, ","), ref.Name, "referenced table has no primary key")
			return errs
		}

		target = ref.PrimaryKey
	}

	for _, c := range target {
		if !ref.HasColumn(c) {
			add(strings.Join(fk.Columns, ","), ref.Name+"."+c, "foreign key references unknown column")
		}
	}

	if len(fk.Columns) > 0 && len(target) != len(fk.Columns) {
		add(strings.Join(fk.Columns, ","), ref.Name,
			fmt.Sprintf("foreign key has %d columns but references %d", len(fk.Columns), len(target)))
	}

	return errs
}

// IntegrityErrors unpacks the individual problems from a Validate error.
func IntegrityErrors(err error) []*IntegrityError {
	var out []*IntegrityError

	var walk func(error)

	walk = func(e error) {
		if e == nil {
			return
		}

		if ie, ok := e.(*IntegrityError); ok {
			out = append(out, ie)
			return
		}

		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				walk(inner)
			}

			return
		}

		if inner := errors.Unwrap(e); inner != nil {
			walk(inner)
		}
	}

	walk(err)

	return out
}
