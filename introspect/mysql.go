package introspect

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/rlch/relgraph/schema"
)

// ErrNoDatabase is returned when a MySQL connection has no current database
// and no schema was given.
var ErrNoDatabase = errors.New("introspect: no database selected")

// MySQL returns an introspector for a MySQL or MariaDB connection.
func MySQL(db *sql.DB, opts ...Option) *Introspector {
	return newIntrospector(db, mysqlDialect{}, opts)
}

// MySQLDSN converts a mysql:// URI into a go-sql-driver DSN. A value that
// is already a DSN is returned unchanged.
func MySQLDSN(uri string) (string, error) {
	rest, ok := strings.CutPrefix(uri, "mysql://")
	if !ok {
		return uri, nil
	}

	cfg := mysql.NewConfig()

	userinfo, hostpath, found := strings.Cut(rest, "@")
	if !found {
		hostpath, userinfo = userinfo, ""
	}

	if userinfo != "" {
		cfg.User, cfg.Passwd, _ = strings.Cut(userinfo, ":")
	}

	host, dbname, _ := strings.Cut(hostpath, "/")
	dbname, _, _ = strings.Cut(dbname, "?")

	if host != "" {
		cfg.Net = "tcp"
		cfg.Addr = host
	}

	cfg.DBName = dbname

	return cfg.FormatDSN(), nil
}

type mysqlDialect struct{}

func (mysqlDialect) name() string { return "mysql" }

func (mysqlDialect) quote(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

func (mysqlDialect) defaultSchemas(ctx context.Context, db *sql.DB) ([]string, error) {
	var name sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT DATABASE()").Scan(&name); err != nil {
		return nil, err
	}

	if !name.Valid || name.String == "" {
		return nil, ErrNoDatabase
	}

	return []string{name.String}, nil
}

const myTablesQuery = `
	SELECT TABLE_NAME
	FROM information_schema.TABLES
	WHERE TABLE_SCHEMA = ? AND TABLE_TYPE = 'BASE TABLE'
	ORDER BY TABLE_NAME`

func (mysqlDialect) tables(ctx context.Context, db *sql.DB, namespace string) ([]string, error) {
	return queryStrings(ctx, db, myTablesQuery, namespace)
}

const myColumnsQuery = `
	SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_DEFAULT, EXTRA
	FROM information_schema.COLUMNS
	WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
	ORDER BY ORDINAL_POSITION`

func (mysqlDialect) columns(ctx context.Context, db *sql.DB, namespace, table string) ([]schema.Column, error) {
	rows, err := db.QueryContext(ctx, myColumnsQuery, namespace, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var cols []schema.Column

	for rows.Next() {
		var (
			col             schema.Column
			nullable, extra string
			def             sql.NullString
		)

		if err := rows.Scan(&col.Name, &col.Type, &nullable, &def, &extra); err != nil {
			return nil, err
		}

		col.Nullable = nullable == "YES"
		col.AutoIncrement = strings.Contains(strings.ToLower(extra), "auto_increment")

		if def.Valid {
			col.Default = &def.String
		}

		cols = append(cols, col)
	}

	return cols, rows.Err()
}

const myPrimaryKeyQuery = `
	SELECT COLUMN_NAME
	FROM information_schema.KEY_COLUMN_USAGE
	WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND CONSTRAINT_NAME = 'PRIMARY'
	ORDER BY ORDINAL_POSITION`

func (mysqlDialect) primaryKey(ctx context.Context, db *sql.DB, namespace, table string) ([]string, error) {
	return queryStrings(ctx, db, myPrimaryKeyQuery, namespace, table)
}

const myForeignKeysQuery = `
	SELECT
		k.CONSTRAINT_NAME,
		k.COLUMN_NAME,
		k.REFERENCED_TABLE_NAME,
		k.REFERENCED_COLUMN_NAME,
		rc.DELETE_RULE,
		rc.UPDATE_RULE
	FROM information_schema.KEY_COLUMN_USAGE k
	JOIN information_schema.REFERENTIAL_CONSTRAINTS rc
		ON rc.CONSTRAINT_SCHEMA = k.CONSTRAINT_SCHEMA
		AND rc.CONSTRAINT_NAME = k.CONSTRAINT_NAME
	WHERE k.TABLE_SCHEMA = ? AND k.TABLE_NAME = ? AND k.REFERENCED_TABLE_NAME IS NOT NULL
	ORDER BY k.CONSTRAINT_NAME, k.ORDINAL_POSITION`

func (mysqlDialect) foreignKeys(ctx context.Context, db *sql.DB, namespace, table string) ([]schema.ForeignKey, error) {
	return queryForeignKeys(ctx, db, myForeignKeysQuery, namespace, table)
}

const myIndexesQuery = `
	SELECT INDEX_NAME, COLUMN_NAME, NON_UNIQUE = 0
	FROM information_schema.STATISTICS
	WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ? AND INDEX_NAME <> 'PRIMARY' AND COLUMN_NAME IS NOT NULL
	ORDER BY INDEX_NAME, SEQ_IN_INDEX`

func (mysqlDialect) indexes(ctx context.Context, db *sql.DB, namespace, table string) ([]schema.Index, error) {
	return queryIndexes(ctx, db, myIndexesQuery, namespace, table)
}
