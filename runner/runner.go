package runner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rlch/relgraph"
	"github.com/rlch/relgraph/inference"
	"github.com/rlch/relgraph/mapper"
	"github.com/rlch/relgraph/migrate"
	"github.com/rlch/relgraph/schema"
)

// Runner executes the relgraph pipeline.
type Runner struct {
	handler Handler
	log     *zap.Logger
	target  relgraph.Target
	dryRun  bool
	strict  bool
	migrate bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithHandler sets the event handler.
func WithHandler(h Handler) Option {
	return func(r *Runner) {
		r.handler = h
	}
}

// WithLogger sets the logger passed on to inference and mapping.
func WithLogger(log *zap.Logger) Option {
	return func(r *Runner) {
		r.log = log
	}
}

// WithTarget enables the apply stage against t.
func WithTarget(t relgraph.Target) Option {
	return func(r *Runner) {
		r.target = t
	}
}

// WithDryRun makes the apply stage report statements without running them.
func WithDryRun(enabled bool) Option {
	return func(r *Runner) {
		r.dryRun = enabled
	}
}

// WithStrict fails the infer stage on the first warning advisory.
func WithStrict(enabled bool) Option {
	return func(r *Runner) {
		r.strict = enabled
	}
}

// WithMigrate enables the migrate stage, which copies table rows into the
// target once the schema is applied. Batch size and verification come from
// the migration configuration.
func WithMigrate(enabled bool) Option {
	return func(r *Runner) {
		r.migrate = enabled
	}
}

// New creates a Runner with the given options.
func New(opts ...Option) *Runner {
	r := &Runner{log: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run loads a schema from source and drives it through every stage. A nil
// cfg means relgraph.DefaultConfig. The returned Result is never nil and
// holds whatever the stages produced before an error.
func (r *Runner) Run(ctx context.Context, source relgraph.Source, cfg *relgraph.Config) (*Result, error) {
	result := NewResult()
	defer result.Finish()

	if source == nil {
		return result, ErrNoSource
	}

	if cfg == nil {
		cfg = relgraph.DefaultConfig()
	}

	handlers := []Handler{NewResultHandler()}
	if r.handler != nil {
		handlers = append(handlers, r.handler)
	}

	if r.strict {
		handlers = append(handlers, NewStrictHandler())
	}

	p := &pipeline{Runner: r, source: source, handler: NewMultiHandler(handlers...), result: result, cfg: cfg}

	for _, step := range []func(context.Context) error{p.load, p.validate, p.infer, p.mapGraph, p.apply, p.migrateData} {
		if err := step(ctx); err != nil {
			return result, err
		}
	}

	return result, nil
}

// InferenceOptions translates the mapping configuration into engine options.
func InferenceOptions(m relgraph.MappingConfig) []inference.Option {
	opts := []inference.Option{
		inference.WithPreserveInheritance(m.PreserveInheritance),
		inference.WithInferCardinality(m.InferCardinality),
		inference.WithSemanticNames(m.GenerateSemanticNames),
	}

	if len(m.Verbs) > 0 {
		verbs := make(map[string]inference.Verb, len(m.Verbs))
		for token, v := range m.Verbs {
			verbs[token] = inference.Verb{Name: v.Name, Reverse: v.Reverse}
		}

		opts = append(opts, inference.WithVerbs(verbs))
	}

	if len(m.DomainNames) > 0 {
		rules := make([]inference.DomainRule, len(m.DomainNames))
		for i, d := range m.DomainNames {
			rules[i] = inference.DomainRule{
				Parent:  d.Parent,
				Child:   d.Child,
				When:    d.When,
				Name:    d.Name,
				Reverse: d.Reverse,
			}
		}

		opts = append(opts, inference.WithDomainRules(rules...))
	}

	return opts
}

type pipeline struct {
	*Runner

	source  relgraph.Source
	handler Handler
	result  *Result
	cfg     *relgraph.Config
}

func (p *pipeline) load(ctx context.Context) error {
	return p.stage(ctx, StageLoad, func(ctx context.Context) (string, error) {
		s, err := p.sourceSchema(ctx)
		if err != nil {
			return "", err
		}

		p.result.Schema = s

		return fmt.Sprintf("%d tables from %s", len(s.Tables), s.Name), nil
	})
}

func (p *pipeline) sourceSchema(ctx context.Context) (*schema.Schema, error) {
	s, err := p.source.Load(ctx)
	if err != nil {
		return nil, err
	}

	src := p.cfg.Source
	if len(src.IncludeTables) > 0 || len(src.ExcludeTables) > 0 {
		s = schema.FilterTables(s, src.IncludeTables, src.ExcludeTables)
	}

	return s, nil
}

func (p *pipeline) validate(ctx context.Context) error {
	return p.stage(ctx, StageValidate, func(context.Context) (string, error) {
		if err := p.result.Schema.Validate(); err != nil {
			return "", err
		}

		st := p.result.Schema.Stats()

		return fmt.Sprintf("%d columns, %d foreign keys", st.Columns, st.ForeignKeys), nil
	})
}

func (p *pipeline) infer(ctx context.Context) error {
	if !p.cfg.Mapping.SemanticEnrichment {
		return p.skip(ctx, StageInfer, "semantic enrichment disabled")
	}

	return p.stage(ctx, StageInfer, func(ctx context.Context) (string, error) {
		engine, err := inference.New(append(InferenceOptions(p.cfg.Mapping), inference.WithLogger(p.log))...)
		if err != nil {
			return "", err
		}

		model, report, err := engine.Infer(p.result.Schema)
		if err != nil {
			return "", err
		}

		p.result.Model, p.result.Report = model, report

		for i := range report.Advisories {
			err := p.handler.Event(ctx, Event{
				Time:     time.Now(),
				Action:   ActionAdvisory,
				Stage:    StageInfer,
				Advisory: &report.Advisories[i],
			}, p.result)
			if err != nil {
				return "", err
			}
		}

		return fmt.Sprintf("%d entities, %d relationships", len(model.Entities), len(model.Relationships)), nil
	})
}

func (p *pipeline) mapGraph(ctx context.Context) error {
	return p.stage(ctx, StageMap, func(context.Context) (string, error) {
		m := mapper.New(p.result.Schema, p.result.Model,
			mapper.WithLogger(p.log),
			mapper.WithSingularLabels(p.cfg.Mapping.SingularLabels),
		)

		gs, err := m.Map()
		if err != nil {
			return "", err
		}

		p.result.Graph = gs
		st := gs.Stats()

		return fmt.Sprintf("%d labels, %d relationship types (%s)", st.Nodes, st.Relationships, m.Mode()), nil
	})
}

func (p *pipeline) apply(ctx context.Context) error {
	if p.target == nil {
		return p.skip(ctx, StageApply, "no target")
	}

	return p.stage(ctx, StageApply, func(ctx context.Context) (string, error) {
		res, err := p.target.ApplySchema(ctx, p.result.Graph, p.dryRun)
		if err != nil {
			return "", err
		}

		p.result.Apply = res

		if res.DryRun {
			return fmt.Sprintf("%d statements for %s (dry run)", len(res.Statements), p.target.Name()), nil
		}

		return fmt.Sprintf("%d statements applied to %s", res.Applied, p.target.Name()), nil
	})
}

func (p *pipeline) migrateData(ctx context.Context) error {
	if !p.migrate {
		return p.skip(ctx, StageMigrate, "migration disabled")
	}

	return p.stage(ctx, StageMigrate, func(ctx context.Context) (string, error) {
		rows, ok := p.source.(relgraph.RowSource)
		if !ok {
			return "", fmt.Errorf("%w: %s", relgraph.ErrNoRows, p.source.Name())
		}

		var loader relgraph.Loader

		if !p.dryRun {
			if loader, ok = p.target.(relgraph.Loader); !ok {
				return "", noLoader(p.target)
			}
		}

		plan, err := migrate.NewPlan(p.result.Schema, p.result.Graph)
		if err != nil {
			return "", err
		}

		m := migrate.New(rows, loader,
			migrate.WithBatchSize(p.cfg.Migration.BatchSize),
			migrate.WithVerify(p.cfg.Migration.Verify),
			migrate.WithDryRun(p.dryRun),
			migrate.WithLogger(p.log),
		)

		rep, err := m.Run(ctx, plan)
		p.result.Migration = rep

		if err != nil {
			return "", err
		}

		if rep.DryRun {
			return fmt.Sprintf("%d labels, %d relationship types to migrate (dry run)",
				len(rep.Nodes), len(rep.Relationships)), nil
		}

		detail := fmt.Sprintf("%d nodes, %d relationships", rep.NodesWritten(), rep.RelationshipsWritten())
		if rep.Verified {
			detail += " (verified)"
		}

		return detail, nil
	})
}

func noLoader(t relgraph.Target) error {
	if t == nil {
		return fmt.Errorf("%w: no target", relgraph.ErrNoLoader)
	}

	return fmt.Errorf("%w: %s", relgraph.ErrNoLoader, t.Name())
}

// stage runs fn between run and done/failed events. A failing stage is
// returned as "<stage>: <cause>".
func (p *pipeline) stage(ctx context.Context, s Stage, fn func(context.Context) (string, error)) error {
	start := time.Now()

	err := p.handler.Event(ctx, Event{Time: start, Action: ActionRun, Stage: s}, p.result)
	if err != nil {
		return err
	}

	p.log.Debug("stage started", zap.String("stage", string(s)))

	detail, err := "", ctx.Err()
	if err == nil {
		detail, err = fn(ctx)
	}

	elapsed := time.Since(start)

	if err != nil {
		p.log.Debug("stage failed", zap.String("stage", string(s)), zap.Error(err))

		_ = p.handler.Event(ctx, Event{
			Time:    time.Now(),
			Action:  ActionFail,
			Stage:   s,
			Elapsed: elapsed,
			Error:   err,
		}, p.result)

		return fmt.Errorf("%s: %w", s, err)
	}

	return p.handler.Event(ctx, Event{
		Time:    time.Now(),
		Action:  ActionDone,
		Stage:   s,
		Elapsed: elapsed,
		Detail:  detail,
	}, p.result)
}

func (p *pipeline) skip(ctx context.Context, s Stage, reason string) error {
	p.log.Debug("stage skipped", zap.String("stage", string(s)), zap.String("reason", reason))

	return p.handler.Event(ctx, Event{
		Time:   time.Now(),
		Action: ActionSkip,
		Stage:  s,
		Detail: reason,
	}, p.result)
}
