package mapper

import (
	"strconv"
	"strings"
	"unicode"

	"github.com/go-openapi/inflect"

	"github.com/rlch/relgraph/graph"
)

const (
	defaultLabel    = "Node"
	defaultProperty = "property"
)

// Label converts a table name into a PascalCase node label, singularized
// when singular is set. Names that do not start with a letter get an "N"
// prefix.
func Label(table string, singular bool) string {
	base := inflect.Underscore(table)
	if singular {
		base = inflect.Singularize(base)
	}

	label := identifier(inflect.Camelize(base))
	if label == "" {
		return defaultLabel
	}

	if first := []rune(label)[0]; !unicode.IsLetter(first) {
		label = "N" + label
	}

	return label
}

// PropertyName converts a column name into a camelCase property name.
func PropertyName(column string) string {
	name := identifier(inflect.CamelizeDownFirst(column))
	if name == "" {
		return defaultProperty
	}

	return name
}

func identifier(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			return r
		}

		return -1
	}, s)
}

// labeler hands out unique labels. A label that is already taken falls back
// to the unsingularized form, then to a numeric suffix.
type labeler struct {
	singular bool
	used     map[string]bool
}

func newLabeler(singular bool) *labeler {
	return &labeler{singular: singular, used: make(map[string]bool)}
}

func (l *labeler) label(table string) string {
	candidates := []string{Label(table, l.singular)}
	if l.singular {
		candidates = append(candidates, Label(table, false))
	}

	for _, c := range candidates {
		if !l.used[c] {
			l.used[c] = true
			return c
		}
	}

	base := candidates[0]
	for n := 2; ; n++ {
		c := base + strconv.Itoa(n)
		if !l.used[c] {
			l.used[c] = true
			return c
		}
	}
}

var typeNames = map[string]graph.PropertyType{
	"int": graph.Integer, "integer": graph.Integer, "smallint": graph.Integer, "bigint": graph.Integer,
	"mediumint": graph.Integer, "tinyint": graph.Integer, "int2": graph.Integer, "int4": graph.Integer,
	"int8": graph.Integer, "serial": graph.Integer, "smallserial": graph.Integer, "bigserial": graph.Integer,
	"serial2": graph.Integer, "serial4": graph.Integer, "serial8": graph.Integer,

	"float": graph.Float, "float4": graph.Float, "float8": graph.Float, "double": graph.Float,
	"real": graph.Float, "decimal": graph.Float, "dec": graph.Float, "numeric": graph.Float,
	"money": graph.Float, "smallmoney": graph.Float,

	"bool": graph.Boolean, "boolean": graph.Boolean, "bit": graph.Boolean,

	"date": graph.Date,

	"time": graph.DateTime, "timetz": graph.DateTime, "timestamp": graph.DateTime,
	"timestamptz": graph.DateTime, "datetime": graph.DateTime, "datetime2": graph.DateTime,
	"smalldatetime": graph.DateTime,

	"json": graph.Map, "jsonb": graph.Map,
}

// PropertyType maps a SQL column type to a graph property type. Unknown
// types map to STRING.
func PropertyType(sqlType string) graph.PropertyType {
	t := strings.ToLower(strings.TrimSpace(sqlType))

	if strings.HasSuffix(t, "[]") || strings.HasPrefix(t, "array") || strings.HasSuffix(t, " array") {
		return graph.List
	}

	// MySQL spells BOOLEAN as TINYINT(1).
	if strings.HasPrefix(t, "tinyint(1)") {
		return graph.Boolean
	}

	base, _, _ := strings.Cut(t, "(")
	base, _, _ = strings.Cut(base, " ")

	if pt, ok := typeNames[base]; ok {
		return pt
	}

	return graph.String
}
