package schema

// Stats summarizes a schema's shape.
type Stats struct {
	Tables        int `yaml:"tables" json:"tables"`
	Columns       int `yaml:"columns" json:"columns"`
	ForeignKeys   int `yaml:"foreign_keys" json:"foreignKeys"`
	Indexes       int `yaml:"indexes" json:"indexes"`
	CompositeKeys int `yaml:"composite_keys" json:"compositeKeys"`
	// Junctions counts tables whose composite key is exactly two foreign keys.
	Junctions int `yaml:"junctions" json:"junctions"`
	// Keyless counts tables without a primary key.
	Keyless int `yaml:"keyless" json:"keyless"`
}

// Stats computes summary counts.
func (s *Schema) Stats() Stats {
	var st Stats

	st.Tables = len(s.Tables)

	for i := range s.Tables {
		t := &s.Tables[i]

		st.Columns += len(t.Columns)
		st.ForeignKeys += len(t.ForeignKeys)
		st.Indexes += len(t.Indexes)

		if t.HasCompositeKey() {
			st.CompositeKeys++
		}

		if len(t.PrimaryKey) == 0 {
			st.Keyless++
		}

		if t.IsJunction() {
			st.Junctions++
		}
	}

	return st
}

// IsJunction reports whether the table has the classic many-to-many shape:
// exactly two foreign keys whose columns together form the whole composite
// primary key.
func (t *Table) IsJunction() bool {
	if len(t.ForeignKeys) != 2 || !t.HasCompositeKey() {
		return false
	}

	for _, fk := range t.ForeignKeys {
		if !t.IsSubsetOfKey(fk.Columns) {
			return false
		}
	}

	return sameSet(t.ForeignKeyColumns(), t.PrimaryKey)
}

// IsKeyedByForeignKeys reports whether the composite primary key is made up
// entirely of columns from two or more foreign keys.
func (t *Table) IsKeyedByForeignKeys() bool {
	if len(t.ForeignKeys) < 2 || !t.HasCompositeKey() {
		return false
	}

	for _, fk := range t.ForeignKeys {
		if !t.IsSubsetOfKey(fk.Columns) {
			return false
		}
	}

	return sameSet(t.ForeignKeyColumns(), t.PrimaryKey)
}
