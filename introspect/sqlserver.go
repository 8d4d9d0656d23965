package introspect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Registers the "sqlserver" database/sql driver.
	_ "github.com/microsoft/go-mssqldb"

	"github.com/rlch/relgraph/schema"
)

// SQLServer returns an introspector for a Microsoft SQL Server connection.
func SQLServer(db *sql.DB, opts ...Option) *Introspector {
	return newIntrospector(db, sqlserver{}, opts)
}

type sqlserver struct{}

func (sqlserver) name() string { return "sqlserver" }

func (sqlserver) quote(ident string) string {
	return "[" + strings.ReplaceAll(ident, "]", "]]") + "]"
}

func (sqlserver) defaultSchemas(ctx context.Context, db *sql.DB) ([]string, error) {
	var name sql.NullString
	if err := db.QueryRowContext(ctx, "SELECT SCHEMA_NAME()").Scan(&name); err != nil {
		return nil, err
	}

	if !name.Valid || name.String == "" {
		return []string{"dbo"}, nil
	}

	return []string{name.String}, nil
}

const msTablesQuery = `
	SELECT TABLE_NAME
	FROM INFORMATION_SCHEMA.TABLES
	WHERE TABLE_SCHEMA = @p1 AND TABLE_TYPE = 'BASE TABLE'
	ORDER BY TABLE_NAME`

func (sqlserver) tables(ctx context.Context, db *sql.DB, namespace string) ([]string, error) {
	return queryStrings(ctx, db, msTablesQuery, namespace)
}

const msColumnsQuery = `
	SELECT
		c.COLUMN_NAME,
		c.DATA_TYPE,
		c.CHARACTER_MAXIMUM_LENGTH,
		c.NUMERIC_PRECISION,
		c.NUMERIC_SCALE,
		c.IS_NULLABLE,
		c.COLUMN_DEFAULT,
		COLUMNPROPERTY(OBJECT_ID(QUOTENAME(c.TABLE_SCHEMA) + '.' + QUOTENAME(c.TABLE_NAME)), c.COLUMN_NAME, 'IsIdentity')
	FROM INFORMATION_SCHEMA.COLUMNS c
	WHERE c.TABLE_SCHEMA = @p1 AND c.TABLE_NAME = @p2
	ORDER BY c.ORDINAL_POSITION`

func (sqlserver) columns(ctx context.Context, db *sql.DB, namespace, table string) ([]schema.Column, error) {
	rows, err := db.QueryContext(ctx, msColumnsQuery, namespace, table)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var cols []schema.Column

	for rows.Next() {
		var (
			col                      schema.Column
			dataType, nullable       string
			length, precision, scale sql.NullInt64
			def                      sql.NullString
			identity                 sql.NullInt64
		)

		if err := rows.Scan(&col.Name, &dataType, &length, &precision, &scale, &nullable, &def, &identity); err != nil {
			return nil, err
		}

		col.Type = msType(dataType, length, precision, scale)
		col.Nullable = nullable == "YES"
		col.AutoIncrement = identity.Valid && identity.Int64 == 1

		if def.Valid {
			col.Default = &def.String
		}

		cols = append(cols, col)
	}

	return cols, rows.Err()
}

// msType spells a column type the way CREATE TABLE would. A character
// length of -1 is (max).
func msType(dataType string, length, precision, scale sql.NullInt64) string {
	switch dataType {
	case "char", "varchar", "nchar", "nvarchar", "binary", "varbinary":
		switch {
		case !length.Valid:
		case length.Int64 < 0:
			return dataType + "(max)"
		default:
			return fmt.Sprintf("%s(%d)", dataType, length.Int64)
		}
	case "decimal", "numeric":
		if precision.Valid && scale.Valid {
			return fmt.Sprintf("%s(%d,%d)", dataType, precision.Int64, scale.Int64)
		}
	}

	return dataType
}

const msPrimaryKeyQuery = `
	SELECT kcu.COLUMN_NAME
	FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
	JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
		ON kcu.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA
		AND kcu.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
	WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		AND tc.TABLE_SCHEMA = @p1
		AND tc.TABLE_NAME = @p2
	ORDER BY kcu.ORDINAL_POSITION`

func (sqlserver) primaryKey(ctx context.Context, db *sql.DB, namespace, table string) ([]string, error) {
	return queryStrings(ctx, db, msPrimaryKeyQuery, namespace, table)
}

const msForeignKeysQuery = `
	SELECT
		fk.name,
		pc.name,
		rt.name,
		rc.name,
		fk.delete_referential_action_desc,
		fk.update_referential_action_desc
	FROM sys.foreign_keys fk
	JOIN sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
	JOIN sys.columns pc ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
	JOIN sys.tables rt ON rt.object_id = fkc.referenced_object_id
	JOIN sys.columns rc ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
	WHERE fk.parent_object_id = OBJECT_ID(QUOTENAME(@p1) + '.' + QUOTENAME(@p2))
	ORDER BY fk.name, fkc.constraint_column_id`

func (sqlserver) foreignKeys(ctx context.Context, db *sql.DB, namespace, table string) ([]schema.ForeignKey, error) {
	return queryForeignKeys(ctx, db, msForeignKeysQuery, namespace, table)
}

const msIndexesQuery = `
	SELECT i.name, c.name, i.is_unique
	FROM sys.indexes i
	JOIN sys.index_columns ic ON ic.object_id = i.object_id AND ic.index_id = i.index_id
	JOIN sys.columns c ON c.object_id = ic.object_id AND c.column_id = ic.column_id
	WHERE i.object_id = OBJECT_ID(QUOTENAME(@p1) + '.' + QUOTENAME(@p2))
		AND i.is_primary_key = 0
		AND ic.is_included_column = 0
		AND i.name IS NOT NULL
	ORDER BY i.name, ic.key_ordinal`

func (sqlserver) indexes(ctx context.Context, db *sql.DB, namespace, table string) ([]schema.Index, error) {
	return queryIndexes(ctx, db, msIndexesQuery, namespace, table)
}
