package graph

import (
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"
)

var plainIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Quote escapes a Cypher identifier with backticks when it is not a plain
// identifier.
func Quote(ident string) string {
	if plainIdent.MatchString(ident) {
		return ident
	}

	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}

// Statements returns the Cypher schema statements: one unique constraint per
// label with key properties and one index per indexed, non-key property.
// Every statement is idempotent (IF NOT EXISTS).
func (s *Schema) Statements() []string {
	var stmts []string

	for _, n := range s.Nodes {
		if stmt, ok := UniqueConstraint(n); ok {
			stmts = append(stmts, stmt)
		}
	}

	for _, n := range s.Nodes {
		stmts = append(stmts, Indexes(n)...)
	}

	return stmts
}

// UniqueConstraint returns the unique constraint over n's key properties.
// Composite keys use the tuple form.
func UniqueConstraint(n *NodeLabel) (string, bool) {
	if len(n.KeyProperties) == 0 {
		return "", false
	}

	name := constraintName(n.Name, n.KeyProperties, "unique")

	if len(n.KeyProperties) == 1 {
		return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE n.%s IS UNIQUE",
			name, Quote(n.Name), Quote(n.KeyProperties[0])), true
	}

	props := make([]string, len(n.KeyProperties))
	for i, p := range n.KeyProperties {
		props[i] = "n." + Quote(p)
	}

	return fmt.Sprintf("CREATE CONSTRAINT %s IF NOT EXISTS FOR (n:%s) REQUIRE (%s) IS UNIQUE",
		name, Quote(n.Name), strings.Join(props, ", ")), true
}

// Indexes returns one index per indexed property of n that is not a key
// property.
func Indexes(n *NodeLabel) []string {
	var stmts []string

	for _, p := range n.IndexedProperties {
		if slices.Contains(n.KeyProperties, p) {
			continue
		}

		stmts = append(stmts, fmt.Sprintf("CREATE INDEX %s IF NOT EXISTS FOR (n:%s) ON (n.%s)",
			constraintName(n.Name, []string{p}, "index"), Quote(n.Name), Quote(p)))
	}

	return stmts
}

func constraintName(label string, props []string, kind string) string {
	parts := append([]string{strings.ToLower(label)}, props...)
	parts = append(parts, kind)

	return Quote(strings.Join(parts, "_"))
}

// WriteCypher writes Statements as a script, one statement per line.
func (s *Schema) WriteCypher(w io.Writer) error {
	for _, stmt := range s.Statements() {
		if _, err := fmt.Fprintf(w, "%s;\n", stmt); err != nil {
			return err
		}
	}

	return nil
}
