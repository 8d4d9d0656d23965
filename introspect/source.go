package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rlch/relgraph"
	"github.com/rlch/relgraph/schema"
)

//nolint:gochecknoinits // Source self-registration pattern
func init() {
	relgraph.RegisterSource(relgraph.SourcePostgres, func(cfg *relgraph.SourceConfig) (relgraph.Source, error) {
		return Open(relgraph.SourcePostgres, cfg)
	})
	relgraph.RegisterSource(relgraph.SourceMySQL, func(cfg *relgraph.SourceConfig) (relgraph.Source, error) {
		return Open(relgraph.SourceMySQL, cfg)
	})
	relgraph.RegisterSource(relgraph.SourceSQLServer, func(cfg *relgraph.SourceConfig) (relgraph.Source, error) {
		return Open(relgraph.SourceSQLServer, cfg)
	})
}

// Source introspects a database named by a connection URI and streams its
// rows.
type Source struct {
	kind  string
	db    *sql.DB
	intro *Introspector
}

// Open creates a source for a "postgres", "mysql" or "sqlserver"
// connection. The connection is not used until Load or Rows.
func Open(kind string, cfg *relgraph.SourceConfig) (*Source, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("%w: %s source needs a uri", relgraph.ErrNoSource, kind)
	}

	var (
		driver, dsn, name string
		build             func(*sql.DB, ...Option) *Introspector
	)

	switch kind {
	case relgraph.SourcePostgres:
		driver, dsn, build = "postgres", cfg.URI, Postgres

		if u, err := url.Parse(cfg.URI); err == nil {
			name = strings.TrimPrefix(u.Path, "/")
		}
	case relgraph.SourceMySQL:
		var err error

		driver, build = "mysql", MySQL

		dsn, err = MySQLDSN(cfg.URI)
		if err != nil {
			return nil, err
		}

		parsed, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("introspect: %w", err)
		}

		name = parsed.DBName
	case relgraph.SourceSQLServer:
		driver, dsn, build = "sqlserver", cfg.URI, SQLServer

		if u, err := url.Parse(cfg.URI); err == nil {
			name = u.Query().Get("database")
		}
	default:
		return nil, fmt.Errorf("%w: %s", relgraph.ErrUnknownSource, kind)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("introspect: opening %s: %w", kind, err)
	}

	intro := build(db,
		WithName(name),
		WithSchemas(cfg.Schemas...),
		WithTables(cfg.IncludeTables...),
		WithExcludeTables(cfg.ExcludeTables...),
		WithConcurrency(cfg.Concurrency),
	)

	return &Source{kind: kind, db: db, intro: intro}, nil
}

// Name returns the source type.
func (s *Source) Name() string {
	return s.kind
}

// Load checks the connection and introspects the schema.
func (s *Source) Load(ctx context.Context) (*schema.Schema, error) {
	if err := s.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("introspect: connecting to %s: %w", s.kind, err)
	}

	return s.intro.Load(ctx)
}

// Rows streams table rows for data migration.
func (s *Source) Rows(ctx context.Context, sel *relgraph.Selection, size int, fn func([]relgraph.Row) error) error {
	return s.intro.Rows(ctx, sel, size, fn)
}

// Count returns the number of rows sel yields.
func (s *Source) Count(ctx context.Context, sel *relgraph.Selection) (int64, error) {
	return s.intro.Count(ctx, sel)
}

// Close closes the database handle.
func (s *Source) Close() error {
	return s.db.Close()
}

var _ relgraph.RowSource = (*Source)(nil)
