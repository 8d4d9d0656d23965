// Package ddl reads SQL DDL scripts (CREATE TABLE, CREATE INDEX and
// ALTER TABLE ... ADD) into a schema.Schema.
//
// The grammar covers the subset of PostgreSQL, MySQL and SQLite DDL that
// describes tables, keys and indexes. Statements outside that subset are
// skipped.
package ddl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
	"golang.org/x/sync/errgroup"

	"github.com/rlch/relgraph/schema"
)

// ErrUnknownTable is returned when an ALTER TABLE or CREATE INDEX statement
// names a table no CREATE TABLE has declared.
var ErrUnknownTable = errors.New("ddl: unknown table")

var ddlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `--[^\n]*|#[^\n]*|/\*(?s:.*?)\*/`},
	{Name: "Whitespace", Pattern: `\s+`},
	{Name: "DollarString", Pattern: `\$[A-Za-z_]*\$(?s:.*?)\$[A-Za-z_]*\$`},
	{Name: "String", Pattern: `[EeNn]?'(?:[^']|'')*'`},
	{Name: "QuotedIdent", Pattern: "`[^`]+`|\"(?:[^\"]|\"\")+\"|\\[[^\\]]+\\]"},
	{Name: "Number", Pattern: `\d+(?:\.\d+)?(?:[eE][-+]?\d+)?`},
	{Name: "Ident", Pattern: `[A-Za-z_][A-Za-z0-9_$]*`},
	{Name: "Semi", Pattern: `;`},
	{Name: "Punct", Pattern: `[(),.=\[\]]`},
	{Name: "Op", Pattern: `[<>!|&+\-*/%^~?@#:$]+`},
	{Name: "Char", Pattern: `.`},
})

var parser = participle.MustBuild[file](
	participle.Lexer(ddlLexer),
	participle.Map(unquoteIdent, "QuotedIdent"),
	participle.CaseInsensitive("Ident"),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(4),
)

func unquoteIdent(t lexer.Token) (lexer.Token, error) {
	v := t.Value
	if len(v) >= 2 {
		quote := v[0]
		v = v[1 : len(v)-1]

		if quote == '"' {
			v = strings.ReplaceAll(v, `""`, `"`)
		}
	}

	t.Value = v

	return t, nil
}

// Parse reads a DDL script. name is used for error positions and as the
// schema name.
func Parse(name string, r io.Reader) (*schema.Schema, error) {
	f, err := parser.Parse(name, r)
	if err != nil {
		return nil, fmt.Errorf("ddl: %w", err)
	}

	return build(schemaName(name), f)
}

// ParseString parses DDL held in memory.
func ParseString(name, src string) (*schema.Schema, error) {
	return Parse(name, strings.NewReader(src))
}

// ParseFile parses a single DDL file.
func ParseFile(path string) (*schema.Schema, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return Parse(path, f)
}

// ParseFiles parses files concurrently and concatenates their statements
// in argument order, then resolves the combined script as one schema so
// that ALTER TABLE statements may refer to tables from earlier files.
func ParseFiles(ctx context.Context, name string, paths []string, limit int) (*schema.Schema, error) {
	files := make([]*file, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			data, err := os.ReadFile(filepath.Clean(path))
			if err != nil {
				return err
			}

			f, err := parser.ParseBytes(path, data)
			if err != nil {
				return fmt.Errorf("ddl: %w", err)
			}

			files[i] = f

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	combined := &file{}
	for _, f := range files {
		combined.Statements = append(combined.Statements, f.Statements...)
	}

	return build(name, combined)
}

func schemaName(name string) string {
	base := filepath.Base(name)

	return strings.TrimSuffix(base, filepath.Ext(base))
}
