// Package migrate copies the rows of a relational database into a graph
// whose schema was mapped from it.
//
// Basic usage:
//
//	plan, err := migrate.NewPlan(s, gs)
//	report, err := migrate.New(src, dst,
//	    migrate.WithBatchSize(5000),
//	    migrate.WithVerify(true),
//	).Run(ctx, plan)
package migrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rlch/relgraph"
)

// ErrCountMismatch is returned when verification finds a label or
// relationship type whose graph count differs from its source row count.
var ErrCountMismatch = errors.New("migrate: graph counts differ from source")

// DefaultConcurrency bounds the number of count queries run at once during
// verification.
const DefaultConcurrency = 4

type options struct {
	batchSize   int
	verify      bool
	dryRun      bool
	concurrency int
	log         *zap.Logger
}

// Option configures a Migrator.
type Option func(*options)

// WithBatchSize sets the number of rows read and written per batch. Values
// below one mean relgraph.DefaultBatchSize.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithVerify compares source row counts with graph counts after loading.
func WithVerify(on bool) Option {
	return func(o *options) { o.verify = on }
}

// WithDryRun counts source rows without writing anything.
func WithDryRun(on bool) Option {
	return func(o *options) { o.dryRun = on }
}

// WithConcurrency bounds parallel count queries.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(o *options) { o.log = log }
}

// Count is the outcome of loading one label or relationship type.
type Count struct {
	Name string `json:"name" yaml:"name"`
	// Read is the number of source rows streamed.
	Read int `json:"read" yaml:"read"`
	// Written is the number of nodes or relationships the target reported.
	Written int `json:"written" yaml:"written"`
	// Source and Target are the verification counts. Target is -1 when
	// the graph was not counted.
	Source int64 `json:"source" yaml:"source"`
	Target int64 `json:"target" yaml:"target"`
}

// Matches reports whether the graph holds as many items as the source.
func (c Count) Matches() bool {
	return c.Target < 0 || c.Source == c.Target
}

// Report summarises a migration.
type Report struct {
	Nodes         []Count `json:"nodes" yaml:"nodes"`
	Relationships []Count `json:"relationships" yaml:"relationships"`
	Skipped       []Skip  `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	DryRun        bool    `json:"dryRun,omitempty" yaml:"dry_run,omitempty"`
	Verified      bool    `json:"verified,omitempty" yaml:"verified,omitempty"`
}

// NodesWritten returns the total number of nodes written.
func (r *Report) NodesWritten() int {
	return written(r.Nodes)
}

// RelationshipsWritten returns the total number of relationships written.
func (r *Report) RelationshipsWritten() int {
	return written(r.Relationships)
}

func written(counts []Count) int {
	n := 0
	for _, c := range counts {
		n += c.Written
	}

	return n
}

// Mismatches returns the counts whose graph total differs from the source.
func (r *Report) Mismatches() []Count {
	var out []Count

	for _, counts := range [][]Count{r.Nodes, r.Relationships} {
		for _, c := range counts {
			if !c.Matches() {
				out = append(out, c)
			}
		}
	}

	return out
}

// Migrator streams rows from a source into a loader.
type Migrator struct {
	src  relgraph.RowSource
	dst  relgraph.Loader
	opts options
}

// New creates a migrator. dst may be nil for a dry run.
func New(src relgraph.RowSource, dst relgraph.Loader, opts ...Option) *Migrator {
	o := options{batchSize: relgraph.DefaultBatchSize, concurrency: DefaultConcurrency, log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	if o.batchSize < 1 {
		o.batchSize = relgraph.DefaultBatchSize
	}

	if o.concurrency < 1 {
		o.concurrency = DefaultConcurrency
	}

	return &Migrator{src: src, dst: dst, opts: o}
}

// Run loads every node label, then every relationship type. A dry run only
// counts source rows. With verification on, Run counts both sides once
// loading ends and returns ErrCountMismatch along with the report when they
// differ.
func (m *Migrator) Run(ctx context.Context, plan *Plan) (*Report, error) {
	if !m.opts.dryRun && m.dst == nil {
		return nil, relgraph.ErrNoLoader
	}

	rep := &Report{
		Nodes:         make([]Count, len(plan.Nodes)),
		Relationships: make([]Count, len(plan.Relationships)),
		Skipped:       plan.Skipped,
		DryRun:        m.opts.dryRun,
	}

	for _, s := range plan.Skipped {
		m.opts.log.Warn("relationship not migrated", zap.String("relationship", s.Name), zap.String("reason", s.Reason))
	}

	if m.opts.dryRun {
		return rep, m.dryRun(ctx, plan, rep)
	}

	for i := range plan.Nodes {
		np := &plan.Nodes[i]
		rep.Nodes[i] = Count{Name: np.Label, Target: -1}

		if err := m.loadNodes(ctx, np, &rep.Nodes[i]); err != nil {
			return rep, err
		}
	}

	for i := range plan.Relationships {
		rp := &plan.Relationships[i]
		rep.Relationships[i] = Count{Name: rp.Name(), Target: -1}

		if err := m.loadRelationships(ctx, rp, &rep.Relationships[i]); err != nil {
			return rep, err
		}
	}

	if !m.opts.verify {
		return rep, nil
	}

	if err := m.verify(ctx, plan, rep); err != nil {
		return rep, err
	}

	if bad := rep.Mismatches(); len(bad) > 0 {
		names := make([]string, len(bad))
		for i, c := range bad {
			names[i] = fmt.Sprintf("%s (source %d, graph %d)", c.Name, c.Source, c.Target)
		}

		return rep, fmt.Errorf("%w: %s", ErrCountMismatch, strings.Join(names, ", "))
	}

	return rep, nil
}

func (m *Migrator) loadNodes(ctx context.Context, np *NodePlan, c *Count) error {
	log := m.opts.log.With(zap.String("label", np.Label))

	err := m.src.Rows(ctx, &np.Select, m.opts.batchSize, func(batch []relgraph.Row) error {
		b := &relgraph.NodeBatch{Label: np.Merge, Labels: np.Labels, Key: np.Key, Rows: make([]map[string]any, len(batch))}
		for i, row := range batch {
			b.Rows[i] = record(np.Properties, row)
		}

		n, err := m.dst.LoadNodes(ctx, b)
		if err != nil {
			return err
		}

		c.Read += len(batch)
		c.Written += n

		log.Debug("node batch written", zap.Int("rows", len(batch)), zap.Int("written", n))

		return nil
	})
	if err != nil {
		return fmt.Errorf("migrate: loading %s: %w", np.Label, err)
	}

	log.Info("nodes migrated", zap.Int("read", c.Read), zap.Int("written", c.Written))

	return nil
}

func (m *Migrator) loadRelationships(ctx context.Context, rp *RelationshipPlan, c *Count) error {
	log := m.opts.log.With(zap.String("relationship", rp.Name()))

	nFrom, nTo := len(rp.From.Key), len(rp.To.Key)

	err := m.src.Rows(ctx, &rp.Select, m.opts.batchSize, func(batch []relgraph.Row) error {
		b := &relgraph.RelationshipBatch{Type: rp.Type, From: rp.From, To: rp.To, Rows: make([]relgraph.RelationshipRow, len(batch))}
		for i, row := range batch {
			b.Rows[i] = relgraph.RelationshipRow{
				From:       record(rp.From.Key, row[:nFrom]),
				To:         record(rp.To.Key, row[nFrom:nFrom+nTo]),
				Properties: record(rp.Properties, row[nFrom+nTo:]),
			}
		}

		n, err := m.dst.LoadRelationships(ctx, b)
		if err != nil {
			return err
		}

		c.Read += len(batch)
		c.Written += n

		if n < len(batch) {
			log.Debug("relationship endpoints missing", zap.Int("rows", len(batch)), zap.Int("written", n))
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("migrate: loading %s: %w", rp.Name(), err)
	}

	log.Info("relationships migrated", zap.Int("read", c.Read), zap.Int("written", c.Written))

	return nil
}

// record pairs names with row values.
func record(names []string, row relgraph.Row) map[string]any {
	out := make(map[string]any, len(names))
	for i, name := range names {
		out[name] = row[i]
	}

	return out
}

func (m *Migrator) dryRun(ctx context.Context, plan *Plan, rep *Report) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.concurrency)

	for i := range plan.Nodes {
		np := &plan.Nodes[i]
		rep.Nodes[i] = Count{Name: np.Label, Target: -1}

		g.Go(func() error {
			n, err := m.src.Count(ctx, &np.Select)
			if err != nil {
				return fmt.Errorf("migrate: counting %s: %w", np.Label, err)
			}

			rep.Nodes[i].Source = n

			return nil
		})
	}

	for i := range plan.Relationships {
		rp := &plan.Relationships[i]
		rep.Relationships[i] = Count{Name: rp.Name(), Target: -1}

		g.Go(func() error {
			n, err := m.src.Count(ctx, &rp.Select)
			if err != nil {
				return fmt.Errorf("migrate: counting %s: %w", rp.Name(), err)
			}

			rep.Relationships[i].Source = n

			return nil
		})
	}

	return g.Wait()
}

// verify fills the Source and Target counts of rep.
func (m *Migrator) verify(ctx context.Context, plan *Plan, rep *Report) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.opts.concurrency)

	for i := range plan.Nodes {
		np := &plan.Nodes[i]

		g.Go(func() error {
			src, err := m.src.Count(ctx, &np.Select)
			if err != nil {
				return fmt.Errorf("migrate: counting %s rows: %w", np.Label, err)
			}

			dst, err := m.dst.CountNodes(ctx, np.Label)
			if err != nil {
				return fmt.Errorf("migrate: counting %s nodes: %w", np.Label, err)
			}

			rep.Nodes[i].Source, rep.Nodes[i].Target = src, dst

			return nil
		})
	}

	for i := range plan.Relationships {
		rp := &plan.Relationships[i]

		g.Go(func() error {
			src, err := m.src.Count(ctx, &rp.Select)
			if err != nil {
				return fmt.Errorf("migrate: counting %s rows: %w", rp.Name(), err)
			}

			dst, err := m.dst.CountRelationships(ctx, rp.Type, rp.From.Label, rp.To.Label)
			if err != nil {
				return fmt.Errorf("migrate: counting %s relationships: %w", rp.Name(), err)
			}

			rep.Relationships[i].Source, rep.Relationships[i].Target = src, dst

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	rep.Verified = true

	m.opts.log.Info("migration verified", zap.Int("mismatches", len(rep.Mismatches())))

	return nil
}
