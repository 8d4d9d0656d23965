package schema

import "slices"

// FilterTables returns a new schema restricted to include (all tables when
// empty) minus exclude. Foreign keys that point at removed tables are dropped
// so the result still validates. The original is not modified.
func FilterTables(s *Schema, include, exclude []string) *Schema {
	keep := func(name string) bool {
		if len(include) > 0 && !slices.Contains(include, name) {
			return false
		}

		return !slices.Contains(exclude, name)
	}

	out := &Schema{Name: s.Name}

	for _, t := range s.Tables {
		if !keep(t.Name) {
			continue
		}

		c := t.clone()
		c.ForeignKeys = slices.DeleteFunc(c.ForeignKeys, func(fk ForeignKey) bool {
			return !keep(fk.ReferencedTable)
		})

		if len(c.ForeignKeys) == 0 {
			c.ForeignKeys = nil
		}

		out.Tables = append(out.Tables, c)
	}

	return out
}

// Merge concatenates the tables of several schemas in argument order.
// Duplicate table names are kept so that Validate reports them.
func Merge(name string, schemas ...*Schema) *Schema {
	out := &Schema{Name: name}

	for _, s := range schemas {
		if s == nil {
			continue
		}

		for _, t := range s.Tables {
			out.Tables = append(out.Tables, t.clone())
		}
	}

	return out
}
