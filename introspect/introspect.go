// Package introspect reads a relational schema from a live PostgreSQL, MySQL
// or SQL Server database through its catalog, and streams table rows for
// data migration.
//
// Basic usage:
//
//	db, _ := sql.Open("postgres", uri)
//	s, err := introspect.Postgres(db,
//	    introspect.WithSchemas("public", "billing"),
//	    introspect.WithExcludeTables("schema_migrations"),
//	).Load(ctx)
package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"slices"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rlch/relgraph/schema"
)

// DefaultConcurrency bounds the number of tables whose metadata is fetched
// at once.
const DefaultConcurrency = 4

type options struct {
	name        string
	schemas     []string
	include     []string
	exclude     []string
	concurrency int
	log         *zap.Logger
}

// Option configures an Introspector.
type Option func(*options)

// WithName sets the name of the resulting schema. It defaults to the first
// introspected namespace.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithSchemas restricts introspection to the given namespaces. PostgreSQL
// defaults to "public" and MySQL to the connection's current database.
func WithSchemas(schemas ...string) Option {
	return func(o *options) { o.schemas = schemas }
}

// WithTables restricts introspection to the named tables.
func WithTables(tables ...string) Option {
	return func(o *options) { o.include = tables }
}

// WithExcludeTables skips the named tables.
func WithExcludeTables(tables ...string) Option {
	return func(o *options) { o.exclude = tables }
}

// WithConcurrency bounds parallel metadata queries. Values below one mean
// DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// dialect runs the metadata queries of one database engine.
type dialect interface {
	name() string
	quote(ident string) string
	defaultSchemas(ctx context.Context, db *sql.DB) ([]string, error)
	tables(ctx context.Context, db *sql.DB, namespace string) ([]string, error)
	columns(ctx context.Context, db *sql.DB, namespace, table string) ([]schema.Column, error)
	primaryKey(ctx context.Context, db *sql.DB, namespace, table string) ([]string, error)
	foreignKeys(ctx context.Context, db *sql.DB, namespace, table string) ([]schema.ForeignKey, error)
	indexes(ctx context.Context, db *sql.DB, namespace, table string) ([]schema.Index, error)
}

// Introspector loads a schema from a database connection.
type Introspector struct {
	db      *sql.DB
	dialect dialect
	opts    options
}

func newIntrospector(db *sql.DB, d dialect, opts []Option) *Introspector {
	o := options{concurrency: DefaultConcurrency, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.concurrency < 1 {
		o.concurrency = DefaultConcurrency
	}

	return &Introspector{db: db, dialect: d, opts: o}
}

// Dialect returns "postgres", "mysql" or "sqlserver".
func (i *Introspector) Dialect() string {
	return i.dialect.name()
}

// Load reads every selected table with its columns, keys and indexes. Tables
// are returned in namespace order, then by name. The result is derived (see
// schema.Derive) and foreign keys to tables that were filtered out are
// dropped.
func (i *Introspector) Load(ctx context.Context) (*schema.Schema, error) {
	namespaces := i.opts.schemas
	if len(namespaces) == 0 {
		var err error

		namespaces, err = i.dialect.defaultSchemas(ctx, i.db)
		if err != nil {
			return nil, fmt.Errorf("introspect: resolving default schema: %w", err)
		}
	}

	var tables []schema.Table

	for _, ns := range namespaces {
		names, err := i.dialect.tables(ctx, i.db, ns)
		if err != nil {
			return nil, fmt.Errorf("introspect: listing tables in %s: %w", ns, err)
		}

		for _, name := range names {
			if i.keep(name) {
				tables = append(tables, schema.Table{Name: name, Schema: ns})
			}
		}
	}

	i.opts.log.Debug("introspecting tables",
		zap.String("dialect", i.dialect.name()),
		zap.Strings("schemas", namespaces),
		zap.Int("tables", len(tables)))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(i.opts.concurrency)

	for idx := range tables {
		t := &tables[idx]

		g.Go(func() error {
			if err := i.loadTable(ctx, t); err != nil {
				return fmt.Errorf("introspect: %s: %w", t.QualifiedName(), err)
			}

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	name := i.opts.name
	if name == "" && len(namespaces) > 0 {
		name = namespaces[0]
	}

	s := schema.FilterTables(&schema.Schema{Name: name, Tables: tables}, i.opts.include, i.opts.exclude)

	i.opts.log.Info("introspection finished",
		zap.String("schema", s.Name),
		zap.Int("tables", len(s.Tables)))

	return s.Derive(), nil
}

func (i *Introspector) keep(table string) bool {
	if len(i.opts.include) > 0 && !slices.Contains(i.opts.include, table) {
		return false
	}

	return !slices.Contains(i.opts.exclude, table)
}

func (i *Introspector) loadTable(ctx context.Context, t *schema.Table) error {
	var err error

	if t.Columns, err = i.dialect.columns(ctx, i.db, t.Schema, t.Name); err != nil {
		return fmt.Errorf("columns: %w", err)
	}

	if t.PrimaryKey, err = i.dialect.primaryKey(ctx, i.db, t.Schema, t.Name); err != nil {
		return fmt.Errorf("primary key: %w", err)
	}

	if t.ForeignKeys, err = i.dialect.foreignKeys(ctx, i.db, t.Schema, t.Name); err != nil {
		return fmt.Errorf("foreign keys: %w", err)
	}

	if t.Indexes, err = i.dialect.indexes(ctx, i.db, t.Schema, t.Name); err != nil {
		return fmt.Errorf("indexes: %w", err)
	}

	i.opts.log.Debug("table loaded",
		zap.String("table", t.QualifiedName()),
		zap.Int("columns", len(t.Columns)),
		zap.Int("foreign_keys", len(t.ForeignKeys)))

	return nil
}

// queryStrings runs a query returning a single string column.
func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []string

	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}

		out = append(out, s)
	}

	return out, rows.Err()
}

// queryForeignKeys runs a query returning one row per foreign-key column:
// constraint name, column, referenced table, referenced column, delete rule
// and update rule, ordered by constraint and position.
func queryForeignKeys(ctx context.Context, db *sql.DB, query string, args ...any) ([]schema.ForeignKey, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var (
		fks   []schema.ForeignKey
		index = make(map[string]int)
	)

	for rows.Next() {
		var name, column, refTable, refColumn, onDelete, onUpdate string
		if err := rows.Scan(&name, &column, &refTable, &refColumn, &onDelete, &onUpdate); err != nil {
			return nil, err
		}

		i, ok := index[name]
		if !ok {
			i = len(fks)
			index[name] = i
			fks = append(fks, schema.ForeignKey{
				Name:            name,
				ReferencedTable: refTable,
				OnDelete:        schema.NormalizeAction(onDelete),
				OnUpdate:        schema.NormalizeAction(onUpdate),
			})
		}

		fks[i].Columns = append(fks[i].Columns, column)
		fks[i].ReferencedColumns = append(fks[i].ReferencedColumns, refColumn)
	}

	return fks, rows.Err()
}

// queryIndexes runs a query returning one row per index column: index name,
// column and uniqueness, ordered by index and position.
func queryIndexes(ctx context.Context, db *sql.DB, query string, args ...any) ([]schema.Index, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var (
		indexes []schema.Index
		index   = make(map[string]int)
	)

	for rows.Next() {
		var (
			name, column string
			unique       bool
		)

		if err := rows.Scan(&name, &column, &unique); err != nil {
			return nil, err
		}

		i, ok := index[name]
		if !ok {
			i = len(indexes)
			index[name] = i
			indexes = append(indexes, schema.Index{Name: name, Unique: unique})
		}

		indexes[i].Columns = append(indexes[i].Columns, column)
	}

	return indexes, rows.Err()
}
