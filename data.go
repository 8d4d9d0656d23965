package relgraph

import (
	"context"
	"errors"
)

// ErrNoRows is returned when data migration is requested from a source that
// cannot stream table rows (a DDL script or a YAML file).
var ErrNoRows = errors.New("relgraph: source cannot stream rows")

// ErrNoLoader is returned when data migration is requested against a target
// that cannot receive data.
var ErrNoLoader = errors.New("relgraph: target cannot load data")

// TableRef names a table, optionally qualified by its namespace.
type TableRef struct {
	Schema string
	Name   string
}

// ColumnRef names a column of one of the tables in a Selection.
type ColumnRef struct {
	Table  string
	Column string
}

// JoinColumn pairs a column of a joined table with the column it must equal.
type JoinColumn struct {
	Column string
	Equals ColumnRef
}

// Join inner-joins Table into a Selection.
type Join struct {
	Table TableRef
	On    []JoinColumn
}

// Selection describes the rows to read from a relational source: one base
// table, inner joins by key, the columns to return and the columns that must
// not be NULL. Table names are unique within a selection.
type Selection struct {
	From    TableRef
	Joins   []Join
	Columns []ColumnRef
	NotNull []ColumnRef
	OrderBy []ColumnRef
}

// Row holds the values of a Selection's Columns, in order. Text and binary
// values are returned as strings.
type Row []any

// RowSource is a Source that can also stream table data.
type RowSource interface {
	Source

	// Rows streams the selected rows in batches of at most size rows.
	Rows(ctx context.Context, sel *Selection, size int, fn func(batch []Row) error) error

	// Count returns the number of rows the selection yields.
	Count(ctx context.Context, sel *Selection) (int64, error)
}

// NodeBatch writes or merges nodes. With Key set, nodes are merged on Label
// and the key properties; otherwise they are created.
type NodeBatch struct {
	Label  string
	Labels []string
	Key    []string
	Rows   []map[string]any
}

// Endpoint identifies the nodes at one end of a relationship by label and
// key properties.
type Endpoint struct {
	Label string
	Key   []string
}

// RelationshipRow is one relationship to write. From and To hold the key
// property values of the two ends.
type RelationshipRow struct {
	From       map[string]any
	To         map[string]any
	Properties map[string]any
}

// RelationshipBatch writes relationships of one type between two labels.
type RelationshipBatch struct {
	Type string
	From Endpoint
	To   Endpoint
	Rows []RelationshipRow
}

// Loader is a Target that can also receive data.
type Loader interface {
	Target

	// LoadNodes writes a batch and returns the number of nodes written.
	LoadNodes(ctx context.Context, b *NodeBatch) (int, error)

	// LoadRelationships writes a batch and returns the number of
	// relationships whose endpoints were found and written.
	LoadRelationships(ctx context.Context, b *RelationshipBatch) (int, error)

	// CountNodes returns the number of nodes carrying label.
	CountNodes(ctx context.Context, label string) (int64, error)

	// CountRelationships returns the number of relationships of relType
	// from a from node to a to node.
	CountRelationships(ctx context.Context, relType, from, to string) (int64, error)
}
