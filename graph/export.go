package graph

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// Stats counts labels, relationship types and constraint statements.
type Stats struct {
	Nodes         int `yaml:"nodes" json:"nodes"`
	Relationships int `yaml:"relationships" json:"relationships"`
	Properties    int `yaml:"properties" json:"properties"`
	Constraints   int `yaml:"constraints" json:"constraints"`
	Indexes       int `yaml:"indexes" json:"indexes"`
}

// Stats computes summary counts.
func (s *Schema) Stats() Stats {
	st := Stats{Nodes: len(s.Nodes), Relationships: len(s.Relationships)}

	for _, n := range s.Nodes {
		st.Properties += len(n.Properties)
		st.Indexes += len(Indexes(n))

		if _, ok := UniqueConstraint(n); ok {
			st.Constraints++
		}
	}

	for _, r := range s.Relationships {
		st.Properties += len(r.Properties)
	}

	return st
}

// ToMap returns the schema as plain nested maps and slices, with constraint
// hints under "constraints".
func (s *Schema) ToMap() map[string]any {
	nodes := make([]any, len(s.Nodes))
	for i, n := range s.Nodes {
		nodes[i] = map[string]any{
			"name":               n.Name,
			"entity":             n.Entity,
			"labels":             stringsAny(n.AllLabels()),
			"properties":         propertiesAny(n.Properties),
			"key_properties":     stringsAny(n.KeyProperties),
			"indexed_properties": stringsAny(n.IndexedProperties),
			"join_tables":        stringsAny(n.JoinTables),
		}
	}

	relationships := make([]any, len(s.Relationships))
	for i, r := range s.Relationships {
		m := map[string]any{
			"name":         r.Name,
			"source":       r.Source,
			"target":       r.Target,
			"direction":    string(r.Direction),
			"properties":   propertiesAny(r.Properties),
			"cardinality":  string(r.Cardinality),
			"semantics":    string(r.Semantics),
			"source_table": r.SourceTable,
			"columns":      stringsAny(r.Columns),
		}

		if r.Junction != "" {
			m["junction"] = r.Junction
		}

		relationships[i] = m
	}

	return map[string]any{
		"name":          s.Name,
		"nodes":         nodes,
		"relationships": relationships,
		"constraints":   stringsAny(s.Statements()),
	}
}

func propertiesAny(props []Property) []any {
	out := make([]any, len(props))
	for i, p := range props {
		out[i] = map[string]any{
			"name":          p.Name,
			"type":          string(p.Type),
			"required":      p.Required,
			"source_table":  p.SourceTable,
			"source_column": p.SourceColumn,
		}
	}

	return out
}

func stringsAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}

	return out
}

// WriteYAML encodes the schema as YAML.
func (s *Schema) WriteYAML(w io.Writer) (err error) {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	defer func() {
		if closeErr := enc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return enc.Encode(s)
}

// WriteJSON encodes the schema as indented JSON.
func (s *Schema) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(s)
}
