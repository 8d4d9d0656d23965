package relgraph

import (
	"path/filepath"
	"strings"
)

// Source types.
const (
	SourcePostgres  = "postgres"
	SourceMySQL     = "mysql"
	SourceSQLServer = "sqlserver"
	SourceDDL       = "ddl"
	SourceYAML      = "yaml"
)

// Target names.
const (
	TargetNeo4j = "neo4j"
)

// Output formats.
const (
	FormatText   = "text"
	FormatYAML   = "yaml"
	FormatJSON   = "json"
	FormatCypher = "cypher"
)

// Log formats.
const (
	LogConsole = "console"
	LogJSON    = "json"
)

// DDLExtensions are the file extensions read by the ddl source.
var DDLExtensions = []string{"sql", "ddl"}

// DetectSourceType guesses the source type from a connection URI or a file
// path. It returns "" when neither is recognised.
func DetectSourceType(uri, path string) string {
	switch {
	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		return SourcePostgres
	case strings.HasPrefix(uri, "mysql://"), strings.Contains(uri, "@tcp("):
		return SourceMySQL
	case strings.HasPrefix(uri, "sqlserver://"):
		return SourceSQLServer
	case uri != "":
		return ""
	}

	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")) {
	case "yaml", "yml":
		return SourceYAML
	case "":
		if path != "" {
			// Directories are scanned for DDL files.
			return SourceDDL
		}

		return ""
	default:
		return SourceDDL
	}
}
