// Package inference classifies the tables and foreign keys of a relational
// schema and builds a conceptual.Model from them.
//
// Inference runs as an ordered list of whole-schema passes (see
// DefaultPasses). Each pass reads and extends an accumulator; the input
// schema is never modified, and the same schema always yields the same model.
package inference

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/rlch/relgraph/conceptual"
	"github.com/rlch/relgraph/schema"
)

// ErrInvalidRule is returned by New when a domain naming rule is malformed.
var ErrInvalidRule = errors.New("inference: invalid naming rule")

// Verb names a relationship found through a foreign-key column token.
type Verb struct {
	// Name reads from the referenced table to the referencing one.
	Name string
	// Reverse reads from the referencing table to the referenced one.
	Reverse string
}

// DomainRule names relationships between a specific pair of tables.
type DomainRule struct {
	Parent string
	Child  string
	// When is an optional boolean expression over DomainEnv.
	When    string
	Name    string
	Reverse string
}

type options struct {
	logger              *zap.Logger
	preserveInheritance bool
	inferCardinality    bool
	semanticNames       bool
	verbs               map[string]Verb
	domainRules         []DomainRule
	passes              []*Pass
	namingRules         []*NamingRule
}

// Option configures an Engine.
type Option func(*options)

// WithLogger sets the logger. The default discards all output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithPreserveInheritance toggles subclass detection.
func WithPreserveInheritance(enabled bool) Option {
	return func(o *options) {
		o.preserveInheritance = enabled
	}
}

// WithInferCardinality toggles cardinality and junction inference.
func WithInferCardinality(enabled bool) Option {
	return func(o *options) {
		o.inferCardinality = enabled
	}
}

// WithSemanticNames toggles semantic relationship naming.
func WithSemanticNames(enabled bool) Option {
	return func(o *options) {
		o.semanticNames = enabled
	}
}

// WithVerbs adds column tokens to the verb lexicon. Entries replace the
// built-in verb for the same token.
func WithVerbs(verbs map[string]Verb) Option {
	return func(o *options) {
		for token, v := range verbs {
			o.verbs[strings.ToLower(token)] = v
		}
	}
}

// WithDomainRules appends table-pair naming rules, tried in order.
func WithDomainRules(rules ...DomainRule) Option {
	return func(o *options) {
		o.domainRules = append(o.domainRules, rules...)
	}
}

// WithPasses replaces the pass list.
func WithPasses(passes ...*Pass) Option {
	return func(o *options) {
		o.passes = passes
	}
}

// WithNamingRules replaces the naming rule list.
func WithNamingRules(rules ...*NamingRule) Option {
	return func(o *options) {
		o.namingRules = rules
	}
}

// Engine infers conceptual models. It is safe for concurrent use.
type Engine struct {
	opts   options
	domain []*compiledDomainRule
}

// New creates an engine. Every stage is enabled by default.
func New(opts ...Option) (*Engine, error) {
	o := options{
		logger:              zap.NewNop(),
		preserveInheritance: true,
		inferCardinality:    true,
		semanticNames:       true,
		verbs:               defaultVerbs(),
		passes:              DefaultPasses(),
		namingRules:         DefaultNamingRules(),
	}

	for _, opt := range opts {
		opt(&o)
	}

	domain, err := compileDomainRules(o.domainRules)
	if err != nil {
		return nil, err
	}

	return &Engine{opts: o, domain: domain}, nil
}

// Infer validates s and builds its conceptual model from a derived copy, so
// foreign-key flags left unset are computed rather than read as false.
// Integrity problems in s are returned as errors matching
// schema.ErrSchemaIntegrity; a model that fails its own invariants matches
// conceptual.ErrInvalidModel.
func (e *Engine) Infer(s *schema.Schema) (*conceptual.Model, *Report, error) {
	if err := s.Validate(); err != nil {
		return nil, nil, fmt.Errorf("inference: %w", err)
	}

	s = s.Derive()
	st := newState(s, e)

	for _, p := range e.opts.passes {
		st.log.Debug("running pass", zap.String("pass", p.Name))
		p.Run(st)
	}

	model, err := st.model()
	if err != nil {
		return nil, nil, fmt.Errorf("inference: %w", err)
	}

	st.log.Info("inferred conceptual model",
		zap.String("schema", s.Name),
		zap.Int("entities", len(model.Entities)),
		zap.Int("relationships", len(model.Relationships)),
		zap.Int("hierarchies", len(model.Hierarchies)),
		zap.Int("advisories", len(st.report.Advisories)),
	)

	return model, st.report, nil
}
