package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"

	"github.com/rlch/relgraph/schema"
)

// Postgres returns an introspector for a PostgreSQL connection.
func Postgres(db *sql.DB, opts ...Option) *Introspector {
	return newIntrospector(db, postgres{}, opts)
}

type postgres struct{}

func (postgres) name() string { return "postgres" }

func (postgres) quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func (postgres) defaultSchemas(context.Context, *sql.DB) ([]string, error) {
	return []string{"public"}, nil
}

const pgTablesQuery = `
	SELECT table_name
	FROM information_schema.tables
	WHERE table_schema = $1 AND table_type = 'BASE TABLE'
	ORDER BY table_name`

func (postgres) tables(ctx context.Context, db *sql.DB, namespace string) ([]string, error) {
	return queryStrings(ctx, db, pgTablesQuery, namespace)
}

const pgColumnsQuery = `
	SELECT
		c.column_name,
		c.data_type,
		c.udt_name,
		c.character_maximum_length,
		c.numeric_precision,
		c.numeric_scale,
		c.is_nullable,
		c.column_default,
		c.is_identity
	FROM information_schema.columns c
	WHERE c.table_schema = $1 AND c.table_name = $2
	ORDER BY c.ordinal_position`

func (postgres) columns(ctx context.Context, db *sql.DB, namespace, table string) ([]schema.Column, error) {
	rows, err := db.QueryContext(ctx, pgColumnsQuery, namespace, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var cols []schema.Column

	for rows.Next() {
		var (
			col                      schema.Column
			dataType, udtName        string
			length, precision, scale sql.NullInt64
			nullable, identity       string
			def                      sql.NullString
		)

		if err := rows.Scan(&col.Name, &dataType, &udtName, &length, &precision, &scale, &nullable, &def, &identity); err != nil {
			return nil, err
		}

		col.Type = pgType(dataType, udtName, length, precision, scale)
		col.Nullable = nullable == "YES"
		col.AutoIncrement = identity == "YES"

		if def.Valid {
			if strings.HasPrefix(def.String, "nextval(") {
				col.AutoIncrement = true
			} else {
				col.Default = &def.String
			}
		}

		cols = append(cols, col)
	}

	return cols, rows.Err()
}

// pgType spells a column type the way CREATE TABLE would.
func pgType(dataType, udtName string, length, precision, scale sql.NullInt64) string {
	switch dataType {
	case "ARRAY":
		return strings.TrimPrefix(udtName, "_") + "[]"
	case "USER-DEFINED":
		return udtName
	case "character varying", "character", "bit", "bit varying":
		if length.Valid {
			return fmt.Sprintf("%s(%d)", dataType, length.Int64)
		}
	case "numeric":
		if precision.Valid && scale.Valid {
			return fmt.Sprintf("numeric(%d,%d)", precision.Int64, scale.Int64)
		}
	}

	return dataType
}

const pgPrimaryKeyQuery = `
	SELECT kcu.column_name
	FROM information_schema.table_constraints tc
	JOIN information_schema.key_column_usage kcu
		ON kcu.constraint_name = tc.constraint_name
		AND kcu.table_schema = tc.table_schema
		AND kcu.table_name = tc.table_name
	WHERE tc.constraint_type = 'PRIMARY KEY'
		AND tc.table_schema = $1
		AND tc.table_name = $2
	ORDER BY kcu.ordinal_position`

func (postgres) primaryKey(ctx context.Context, db *sql.DB, namespace, table string) ([]string, error) {
	return queryStrings(ctx, db, pgPrimaryKeyQuery, namespace, table)
}

const pgForeignKeysQuery = `
	SELECT
		kcu.constraint_name,
		kcu.column_name,
		ref.table_name,
		ref.column_name,
		rc.delete_rule,
		rc.update_rule
	FROM information_schema.referential_constraints rc
	JOIN information_schema.key_column_usage kcu
		ON kcu.constraint_name = rc.constraint_name
		AND kcu.constraint_schema = rc.constraint_schema
	JOIN information_schema.key_column_usage ref
		ON ref.constraint_name = rc.unique_constraint_name
		AND ref.constraint_schema = rc.unique_constraint_schema
		AND ref.ordinal_position = kcu.position_in_unique_constraint
	WHERE kcu.table_schema = $1 AND kcu.table_name = $2
	ORDER BY kcu.constraint_name, kcu.ordinal_position`

func (postgres) foreignKeys(ctx context.Context, db *sql.DB, namespace, table string) ([]schema.ForeignKey, error) {
	return queryForeignKeys(ctx, db, pgForeignKeysQuery, namespace, table)
}

// Expression indexes have no pg_attribute row and are left out.
const pgIndexesQuery = `
	SELECT ic.relname, a.attname, ix.indisunique
	FROM pg_index ix
	JOIN pg_class c ON c.oid = ix.indrelid
	JOIN pg_namespace n ON n.oid = c.relnamespace
	JOIN pg_class ic ON ic.oid = ix.indexrelid
	JOIN LATERAL unnest(ix.indkey) WITH ORDINALITY AS k(attnum, ord) ON true
	JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum = k.attnum
	WHERE n.nspname = $1 AND c.relname = $2 AND NOT ix.indisprimary
	ORDER BY ic.relname, k.ord`

func (postgres) indexes(ctx context.Context, db *sql.DB, namespace, table string) ([]schema.Index, error) {
	return queryIndexes(ctx, db, pgIndexesQuery, namespace, table)
}
