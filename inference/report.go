package inference

import (
	"fmt"
	"strings"
)

// Kind identifies a class of advisory.
type Kind string

// Advisory kinds.
const (
	// InheritanceAmbiguity: a table qualifies as a subclass of more than one
	// superclass. The first is kept and the rest become plain relationships.
	InheritanceAmbiguity Kind = "InheritanceAmbiguity"
	// CycleRejected: an inheritance edge would close a cycle. The edge is
	// demoted to a plain relationship.
	CycleRejected Kind = "CycleRejected"
	// NamingCollision: two relationships between the same ordered pair
	// resolved to the same name and one was suffixed.
	NamingCollision Kind = "NamingCollision"
	// UnclassifiableConstruct: no heuristic applied and a default was used.
	UnclassifiableConstruct Kind = "UnclassifiableConstruct"
)

// Severity of an advisory.
type Severity string

// Severities.
const (
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Advisory is a non-fatal finding recorded while inferring a model.
type Advisory struct {
	Kind     Kind     `yaml:"kind" json:"kind"`
	Severity Severity `yaml:"severity" json:"severity"`
	Table    string   `yaml:"table" json:"table"`
	Columns  []string `yaml:"columns,omitempty" json:"columns,omitempty"`
	Message  string   `yaml:"message" json:"message"`
}

func (a Advisory) String() string {
	loc := a.Table
	if len(a.Columns) > 0 {
		loc += "(" + strings.Join(a.Columns, ", ") + ")"
	}

	return fmt.Sprintf("%s: %s: %s", a.Kind, loc, a.Message)
}

// Report collects advisories in the order they were raised.
type Report struct {
	Advisories []Advisory `yaml:"advisories" json:"advisories"`
}

func (r *Report) add(kind Kind, sev Severity, table string, cols []string, format string, args ...any) {
	r.Advisories = append(r.Advisories, Advisory{
		Kind:     kind,
		Severity: sev,
		Table:    table,
		Columns:  cols,
		Message:  fmt.Sprintf(format, args...),
	})
}

// Of returns the advisories of the given kind.
func (r *Report) Of(kind Kind) []Advisory {
	var out []Advisory

	for _, a := range r.Advisories {
		if a.Kind == kind {
			out = append(out, a)
		}
	}

	return out
}

// Warnings returns the warning-severity advisories.
func (r *Report) Warnings() []Advisory {
	var out []Advisory

	for _, a := range r.Advisories {
		if a.Severity == SeverityWarning {
			out = append(out, a)
		}
	}

	return out
}

// HasWarnings reports whether any warning was raised.
func (r *Report) HasWarnings() bool {
	return len(r.Warnings()) > 0
}
