package introspect

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rlch/relgraph"
)

// ErrEmptySelection is returned when a selection names no columns.
var ErrEmptySelection = errors.New("introspect: selection has no columns")

// Rows streams the rows of sel in batches of at most size rows. A size below
// one means relgraph.DefaultBatchSize. The rows are read through a single
// query, so a batch reflects the state of the database when Rows started.
func (i *Introspector) Rows(ctx context.Context, sel *relgraph.Selection, size int, fn func([]relgraph.Row) error) error {
	if len(sel.Columns) == 0 {
		return ErrEmptySelection
	}

	if size < 1 {
		size = relgraph.DefaultBatchSize
	}

	query := selectQuery(i.dialect.quote, sel)

	i.opts.log.Debug("streaming rows",
		zap.String("table", sel.From.Name),
		zap.String("query", query),
		zap.Int("batch_size", size))

	rows, err := i.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("introspect: reading %s: %w", sel.From.Name, err)
	}
	defer func() { _ = rows.Close() }()

	var (
		batch = make([]relgraph.Row, 0, size)
		total int
	)

	for rows.Next() {
		row := make(relgraph.Row, len(sel.Columns))

		dest := make([]any, len(row))
		for j := range row {
			dest[j] = &row[j]
		}

		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("introspect: reading %s: %w", sel.From.Name, err)
		}

		for j, v := range row {
			if b, ok := v.([]byte); ok {
				row[j] = string(b)
			}
		}

		batch = append(batch, row)

		if len(batch) == size {
			total += len(batch)

			if err := fn(batch); err != nil {
				return err
			}

			batch = make([]relgraph.Row, 0, size)
		}
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("introspect: reading %s: %w", sel.From.Name, err)
	}

	if len(batch) > 0 {
		total += len(batch)

		if err := fn(batch); err != nil {
			return err
		}
	}

	i.opts.log.Debug("rows streamed", zap.String("table", sel.From.Name), zap.Int("rows", total))

	return nil
}

// Count returns the number of rows sel yields.
func (i *Introspector) Count(ctx context.Context, sel *relgraph.Selection) (int64, error) {
	var n int64

	if err := i.db.QueryRowContext(ctx, countQuery(i.dialect.quote, sel)).Scan(&n); err != nil {
		return 0, fmt.Errorf("introspect: counting %s: %w", sel.From.Name, err)
	}

	return n, nil
}

// selectQuery renders sel as a SELECT statement, quoting identifiers with
// quote.
func selectQuery(quote func(string) string, sel *relgraph.Selection) string {
	var b strings.Builder

	b.WriteString("SELECT ")
	writeColumns(&b, quote, sel.Columns)
	writeFrom(&b, quote, sel)

	if len(sel.OrderBy) > 0 {
		b.WriteString(" ORDER BY ")
		writeColumns(&b, quote, sel.OrderBy)
	}

	return b.String()
}

// countQuery renders the row count of sel.
func countQuery(quote func(string) string, sel *relgraph.Selection) string {
	var b strings.Builder

	b.WriteString("SELECT COUNT(*)")
	writeFrom(&b, quote, sel)

	return b.String()
}

func writeFrom(b *strings.Builder, quote func(string) string, sel *relgraph.Selection) {
	b.WriteString(" FROM ")
	b.WriteString(tableSQL(quote, sel.From))

	for _, j := range sel.Joins {
		b.WriteString(" JOIN ")
		b.WriteString(tableSQL(quote, j.Table))
		b.WriteString(" ON ")

		for k, on := range j.On {
			if k > 0 {
				b.WriteString(" AND ")
			}

			b.WriteString(columnSQL(quote, relgraph.ColumnRef{Table: j.Table.Name, Column: on.Column}))
			b.WriteString(" = ")
			b.WriteString(columnSQL(quote, on.Equals))
		}
	}

	for k, c := range sel.NotNull {
		if k == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}

		b.WriteString(columnSQL(quote, c))
		b.WriteString(" IS NOT NULL")
	}
}

func writeColumns(b *strings.Builder, quote func(string) string, cols []relgraph.ColumnRef) {
	for k, c := range cols {
		if k > 0 {
			b.WriteString(", ")
		}

		b.WriteString(columnSQL(quote, c))
	}
}

func tableSQL(quote func(string) string, t relgraph.TableRef) string {
	if t.Schema == "" {
		return quote(t.Name)
	}

	return quote(t.Schema) + "." + quote(t.Name)
}

func columnSQL(quote func(string) string, c relgraph.ColumnRef) string {
	return quote(c.Table) + "." + quote(c.Column)
}
