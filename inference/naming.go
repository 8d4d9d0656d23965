package inference

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/go-openapi/inflect"
	"go.uber.org/zap"

	"github.com/rlch/relgraph/conceptual"
	"github.com/rlch/relgraph/schema"
)

// Generic relationship names.
const (
	NameIsA            = "IS_A"
	NameHasSubtype     = "HAS_SUBTYPE"
	NameHas            = "HAS"
	NameBelongsTo      = "BELONGS_TO"
	NameAssociatedWith = "ASSOCIATED_WITH"
)

// NamingRule proposes a name for a relationship. Rules are tried in order
// and the first match wins.
type NamingRule struct {
	// Name is a short identifier for the rule.
	Name string

	// Doc is a brief description of what the rule matches.
	Doc string

	// Match returns the forward and reverse names, or ok=false.
	Match func(n *Namer, r *conceptual.Relationship) (name, reverse string, ok bool)
}

// DefaultNamingRules returns the built-in naming rules in match order.
func DefaultNamingRules() []*NamingRule {
	return []*NamingRule{
		inheritanceNameRule,
		columnVerbRule,
		domainMappingRule,
		junctionNameRule,
		cardinalityFallbackRule,
	}
}

// Namer holds what naming rules may consult: the schema, the verb lexicon
// and the compiled domain rules.
type Namer struct {
	schema *schema.Schema
	verbs  map[string]Verb
	domain []*compiledDomainRule
}

// Verb looks up a column token in the lexicon.
func (n *Namer) Verb(token string) (Verb, bool) {
	v, ok := n.verbs[token]
	return v, ok
}

func (st *State) name(r *conceptual.Relationship) (string, string) {
	o := st.engine.opts
	if !o.semanticNames {
		return genericName(r)
	}

	n := &Namer{schema: st.schema, verbs: o.verbs, domain: st.engine.domain}

	for _, rule := range o.namingRules {
		if name, reverse, ok := rule.Match(n, r); ok {
			st.log.Debug("named relationship",
				zap.String("rule", rule.Name),
				zap.String("name", name),
				zap.String("source", r.Source),
				zap.String("target", r.Target))

			return name, reverse
		}
	}

	return genericName(r)
}

// genericName is used when semantic naming is disabled.
func genericName(r *conceptual.Relationship) (string, string) {
	switch {
	case r.IsInheritance():
		return NameIsA, NameHasSubtype
	case r.Junction != "":
		return upperName(r.Junction), upperName(r.Junction)
	default:
		return "FK_" + upperName(r.Target) + "_" + upperName(r.Source), ""
	}
}

func upperName(s string) string {
	return strings.ToUpper(inflect.Underscore(s))
}

// ----------------------------------------------------------------------------
// Rule: inheritance
// ----------------------------------------------------------------------------

var inheritanceNameRule = &NamingRule{
	Name: "inheritance",
	Doc:  "Names inheritance edges IS_A.",
	Match: func(_ *Namer, r *conceptual.Relationship) (string, string, bool) {
		if !r.IsInheritance() {
			return "", "", false
		}

		return NameIsA, NameHasSubtype, true
	},
}

// ----------------------------------------------------------------------------
// Rule: column-verb
// ----------------------------------------------------------------------------

var columnVerbRule = &NamingRule{
	Name: "column-verb",
	Doc:  "Looks up the first foreign-key column, without its identifier suffix, in the verb lexicon.",
	Match: func(n *Namer, r *conceptual.Relationship) (string, string, bool) {
		if r.Junction != "" || len(r.Columns) == 0 {
			return "", "", false
		}

		token := ColumnToken(r.Columns[0])
		if token == "" {
			return "", "", false
		}

		if v, ok := n.Verb(token); ok {
			return v.Name, v.Reverse, true
		}

		if i := strings.LastIndexByte(token, '_'); i >= 0 {
			if v, ok := n.Verb(token[i+1:]); ok {
				return v.Name, v.Reverse, true
			}
		}

		return "", "", false
	},
}

var identifierSuffixes = []string{"_id", "_fk", "_key", "_uuid", "_ref"}

// ColumnToken lower-cases and underscores a column name and strips a trailing
// identifier suffix: "manager_id" and "ManagerID" both give "manager". A bare
// "id" is a suffix only after an underscore or a camel-case boundary, so
// "guid" and "paid" are kept whole.
func ColumnToken(column string) string {
	if head, ok := strings.CutSuffix(column, "ID"); ok && head != "" {
		if last := head[len(head)-1]; unicode.IsLower(rune(last)) || unicode.IsDigit(rune(last)) {
			column = head + "Id"
		}
	}

	token := strings.ToLower(inflect.Underscore(column))

	for _, suffix := range identifierSuffixes {
		if stripped, ok := strings.CutSuffix(token, suffix); ok && stripped != "" {
			return strings.TrimRight(stripped, "_")
		}
	}

	return token
}

func defaultVerbs() map[string]Verb {
	return map[string]Verb{
		"manager":    {Name: "MANAGES", Reverse: "MANAGED_BY"},
		"supervisor": {Name: "SUPERVISES", Reverse: "SUPERVISED_BY"},
		"owner":      {Name: "OWNS", Reverse: "OWNED_BY"},
		"creator":    {Name: "CREATED", Reverse: "CREATED_BY"},
		"author":     {Name: "AUTHORED", Reverse: "AUTHORED_BY"},
		"customer":   {Name: "PLACED", Reverse: "PLACED_BY"},
		"department": {Name: "EMPLOYS", Reverse: "WORKS_IN"},
		"company":    {Name: "EMPLOYS", Reverse: "WORKS_FOR"},
		"category":   {Name: "CATEGORIZES", Reverse: "BELONGS_TO"},
		"parent":     {Name: "PARENT_OF", Reverse: "CHILD_OF"},
		"project":    {Name: "INCLUDES", Reverse: "ASSIGNED_TO"},
	}
}

// ----------------------------------------------------------------------------
// Rule: domain-mapping
// ----------------------------------------------------------------------------

var domainMappingRule = &NamingRule{
	Name: "domain-mapping",
	Doc:  "Applies configured table-pair names, optionally guarded by an expression.",
	Match: func(n *Namer, r *conceptual.Relationship) (string, string, bool) {
		for _, d := range n.domain {
			if d.matches(n, r) {
				return d.Name, d.Reverse, true
			}
		}

		return "", "", false
	},
}

// DomainEnv is the environment of a domain rule's When expression.
type DomainEnv struct {
	Parent      string   `expr:"parent"`
	Child       string   `expr:"child"`
	Columns     []string `expr:"columns"`
	Cardinality string   `expr:"cardinality"`
	Semantics   string   `expr:"semantics"`
	Mandatory   bool     `expr:"mandatory"`
	Junction    string   `expr:"junction"`
	// ChildColumns lists the columns of the relationship's table.
	ChildColumns []string `expr:"child_columns"`
}

type compiledDomainRule struct {
	DomainRule
	program *vm.Program
}

func compileDomainRules(rules []DomainRule) ([]*compiledDomainRule, error) {
	out := make([]*compiledDomainRule, 0, len(rules))

	for i, r := range rules {
		if r.Parent == "" || r.Child == "" || r.Name == "" {
			return nil, fmt.Errorf("%w %d: parent, child and name are required", ErrInvalidRule, i)
		}

		c := &compiledDomainRule{DomainRule: r}

		if r.When != "" {
			program, err := expr.Compile(r.When, expr.Env(DomainEnv{}), expr.AsBool())
			if err != nil {
				return nil, fmt.Errorf("%w %d (%s -> %s): %w", ErrInvalidRule, i, r.Parent, r.Child, err)
			}

			c.program = program
		}

		out = append(out, c)
	}

	return out, nil
}

func (d *compiledDomainRule) matches(n *Namer, r *conceptual.Relationship) bool {
	if !strings.EqualFold(d.Parent, r.Source) || !strings.EqualFold(d.Child, r.Target) {
		return false
	}

	if d.program == nil {
		return true
	}

	env := DomainEnv{
		Parent:      r.Source,
		Child:       r.Target,
		Columns:     r.Columns,
		Cardinality: string(r.Cardinality),
		Semantics:   string(r.Semantics),
		Mandatory:   r.Mandatory,
		Junction:    r.Junction,
	}

	if t, ok := n.schema.Table(r.Table); ok {
		for _, c := range t.Columns {
			env.ChildColumns = append(env.ChildColumns, c.Name)
		}
	}

	out, err := expr.Run(d.program, env)
	if err != nil {
		return false
	}

	ok, _ := out.(bool)

	return ok
}

// ----------------------------------------------------------------------------
// Rule: junction-name
// ----------------------------------------------------------------------------

var junctionNameRule = &NamingRule{
	Name: "junction-name",
	Doc:  "Names many-to-many relationships after their junction table unless it only joins the two endpoint names.",
	Match: func(_ *Namer, r *conceptual.Relationship) (string, string, bool) {
		if r.Cardinality != conceptual.ManyToMany || r.Junction == "" {
			return "", "", false
		}

		if joinsEndpoints(r.Junction, r.Source, r.Target) {
			return "", "", false
		}

		name := upperName(r.Junction)

		return name, name, true
	},
}

// joinsEndpoints reports whether junction is just the two endpoint names
// concatenated, in either order and singular or plural.
func joinsEndpoints(junction, a, b string) bool {
	j := singularWords(junction)

	return j == singularWords(a)+singularWords(b) || j == singularWords(b)+singularWords(a)
}

func singularWords(name string) string {
	var b strings.Builder

	for _, w := range strings.Split(strings.ToLower(inflect.Underscore(name)), "_") {
		b.WriteString(inflect.Singularize(w))
	}

	return b.String()
}

// ----------------------------------------------------------------------------
// Rule: cardinality-fallback
// ----------------------------------------------------------------------------

var cardinalityFallbackRule = &NamingRule{
	Name: "cardinality-fallback",
	Doc:  "Falls back to HAS / BELONGS_TO, or ASSOCIATED_WITH for many-to-many.",
	Match: func(_ *Namer, r *conceptual.Relationship) (string, string, bool) {
		if r.Cardinality == conceptual.ManyToMany {
			return NameAssociatedWith, NameAssociatedWith, true
		}

		return NameHas, NameBelongsTo, true
	},
}

// ----------------------------------------------------------------------------
// Collisions
// ----------------------------------------------------------------------------

type nameKey struct {
	name, source, target string
}

// resolveCollisions suffixes _2, _3, ... onto relationships whose (name,
// source, target) was already used by an earlier relationship.
func resolveCollisions(rels []*conceptual.Relationship, report *Report) {
	used := make(map[nameKey]bool, len(rels))

	for _, r := range rels {
		key := nameKey{r.Name, r.Source, r.Target}
		if !used[key] {
			used[key] = true
			continue
		}

		base, baseReverse := r.Name, r.ReverseName

		for n := 2; ; n++ {
			suffix := "_" + strconv.Itoa(n)

			key = nameKey{base + suffix, r.Source, r.Target}
			if used[key] {
				continue
			}

			used[key] = true
			r.Name = base + suffix

			if baseReverse != "" {
				r.ReverseName = baseReverse + suffix
			}

			break
		}

		report.add(NamingCollision, SeverityWarning, r.Table, r.Columns,
			"%s already names a relationship from %s to %s; renamed to %s", base, r.Source, r.Target, r.Name)
	}
}
