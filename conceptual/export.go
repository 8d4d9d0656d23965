package conceptual

import (
	"encoding/json"
	"io"

	"gopkg.in/yaml.v3"
)

// Stats counts entities and relationships by classification. Every known
// value has an entry, including zero counts.
type Stats struct {
	Entities      int                 `yaml:"entities" json:"entities"`
	Relationships int                 `yaml:"relationships" json:"relationships"`
	Hierarchies   int                 `yaml:"hierarchies" json:"hierarchies"`
	ByType        map[EntityType]int  `yaml:"by_type" json:"byType"`
	BySemantics   map[Semantics]int   `yaml:"by_semantics" json:"bySemantics"`
	ByCardinality map[Cardinality]int `yaml:"by_cardinality" json:"byCardinality"`
}

// Stats computes summary counts.
func (m *Model) Stats() Stats {
	st := Stats{
		Entities:      len(m.Entities),
		Relationships: len(m.Relationships),
		Hierarchies:   len(m.Hierarchies),
		ByType:        make(map[EntityType]int, len(EntityTypes)),
		BySemantics:   make(map[Semantics]int, len(AllSemantics)),
		ByCardinality: make(map[Cardinality]int, len(Cardinalities)),
	}

	for _, t := range EntityTypes {
		st.ByType[t] = 0
	}

	for _, s := range AllSemantics {
		st.BySemantics[s] = 0
	}

	for _, c := range Cardinalities {
		st.ByCardinality[c] = 0
	}

	for _, e := range m.Entities {
		st.ByType[e.Type]++
	}

	for _, r := range m.Relationships {
		st.BySemantics[r.Semantics]++
		st.ByCardinality[r.Cardinality]++
	}

	return st
}

// ToMap returns the model as plain nested maps and slices, for export to
// formats that do not know the model types.
func (m *Model) ToMap() map[string]any {
	entities := make([]any, len(m.Entities))
	for i, e := range m.Entities {
		entities[i] = entityMap(e)
	}

	relationships := make([]any, len(m.Relationships))
	for i, r := range m.Relationships {
		relationships[i] = relationshipMap(r)
	}

	hierarchies := make([]any, len(m.Hierarchies))
	for i, h := range m.Hierarchies {
		hierarchies[i] = stringsAny(h)
	}

	return map[string]any{
		"name":          m.Name,
		"entities":      entities,
		"relationships": relationships,
		"hierarchies":   hierarchies,
	}
}

func entityMap(e *Entity) map[string]any {
	out := map[string]any{
		"name":        e.Name,
		"table":       e.Table,
		"type":        string(e.Type),
		"attributes":  attributesAny(e.Attributes),
		"primary_key": stringsAny(e.PrimaryKey),
	}

	if e.Owner != "" {
		out["owner"] = e.Owner
	}

	if e.Superclass != "" {
		out["superclass"] = e.Superclass
	}

	if len(e.Subclasses) > 0 {
		out["subclasses"] = stringsAny(e.Subclasses)
	}

	return out
}

func relationshipMap(r *Relationship) map[string]any {
	out := map[string]any{
		"name":           r.Name,
		"reverse_name":   r.ReverseName,
		"source":         r.Source,
		"target":         r.Target,
		"cardinality":    string(r.Cardinality),
		"semantics":      string(r.Semantics),
		"attributes":     attributesAny(r.Attributes),
		"table":          r.Table,
		"columns":        stringsAny(r.Columns),
		"mandatory":      r.Mandatory,
		"is_inheritance": r.IsInheritance(),
		"is_aggregation": r.IsAggregation(),
		"is_composition": r.IsComposition(),
	}

	if r.Junction != "" {
		out["junction"] = r.Junction
	}

	return out
}

func attributesAny(attrs []Attribute) []any {
	out := make([]any, len(attrs))

	for i, a := range attrs {
		m := map[string]any{
			"name":     a.Name,
			"type":     a.Type,
			"nullable": a.Nullable,
			"key":      a.Key,
			"unique":   a.Unique,
			"indexed":  a.Indexed,
		}

		if a.Default != nil {
			m["default"] = *a.Default
		}

		out[i] = m
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

// WriteYAML encodes the model as YAML.
func (m *Model) WriteYAML(w io.Writer) (err error) {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	defer func() {
		if closeErr := enc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return enc.Encode(m)
}

// WriteJSON encodes the model as indented JSON.
func (m *Model) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(m)
}
