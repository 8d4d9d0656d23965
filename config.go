package relgraph

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Config represents the .relgraph.yaml configuration file.
type Config struct {
	Source    SourceConfig    `yaml:"source"`
	Target    TargetConfig    `yaml:"target,omitempty"`
	Mapping   MappingConfig   `yaml:"mapping"`
	Migration MigrationConfig `yaml:"migration,omitempty"`
	Logging   LoggingConfig   `yaml:"logging,omitempty"`
}

// SourceConfig describes where the relational schema comes from.
type SourceConfig struct {
	// Type is one of postgres, mysql, sqlserver, ddl or yaml. When empty it is
	// detected from URI or Path.
	Type string `yaml:"type,omitempty"`
	// URI is a database connection string for introspection sources.
	URI string `yaml:"uri,omitempty"`
	// Path is a DDL file, a directory of DDL files, or a YAML schema file.
	Path string `yaml:"path,omitempty"`
	// Schemas restricts introspection to these namespaces.
	Schemas       []string `yaml:"schemas,omitempty"`
	IncludeTables []string `yaml:"include_tables,omitempty"`
	ExcludeTables []string `yaml:"exclude_tables,omitempty"`
	// Concurrency bounds parallel metadata queries and file parsing.
	Concurrency int `yaml:"concurrency,omitempty"`
}

// ResolvedType returns Type, or the type detected from URI and Path.
func (c *SourceConfig) ResolvedType() string {
	if c.Type != "" {
		return c.Type
	}

	return DetectSourceType(c.URI, c.Path)
}

// TargetConfig holds graph database targets.
type TargetConfig struct {
	Neo4j *Neo4jConfig `yaml:"neo4j,omitempty"`
}

// Neo4jConfig holds Neo4j connection settings.
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username,omitempty"`
	Password string `yaml:"password,omitempty"`
	Database string `yaml:"database,omitempty"`
}

// MappingConfig controls inference and graph mapping.
type MappingConfig struct {
	// SemanticEnrichment enables the inference engine. When false the
	// graph mapper works directly from the relational schema.
	SemanticEnrichment bool `yaml:"semantic_enrichment"`
	// PreserveInheritance enables subclass detection and multi-labeling.
	PreserveInheritance bool `yaml:"preserve_inheritance"`
	// InferCardinality enables cardinality and junction-table inference.
	InferCardinality bool `yaml:"infer_cardinality"`
	// GenerateSemanticNames enables verb and domain relationship naming.
	GenerateSemanticNames bool `yaml:"generate_semantic_names"`
	// SingularLabels singularizes table names when deriving node labels.
	SingularLabels bool `yaml:"singular_labels"`

	// Verbs extends the built-in column-token lexicon.
	Verbs map[string]VerbConfig `yaml:"verbs,omitempty"`
	// DomainNames are table-pair naming rules, tried in order.
	DomainNames []DomainNameConfig `yaml:"domain_names,omitempty"`
}

// VerbConfig names the relationship for a foreign-key column token.
type VerbConfig struct {
	// Name reads from the referenced (parent) table to the referencing one.
	Name string `yaml:"name"`
	// Reverse reads from the referencing (child) table to the parent.
	Reverse string `yaml:"reverse,omitempty"`
}

// DomainNameConfig names relationships between a specific pair of tables.
type DomainNameConfig struct {
	Parent string `yaml:"parent"`
	Child  string `yaml:"child"`
	// When is an optional boolean expression evaluated against the
	// relationship (see inference.DomainEnv).
	When    string `yaml:"when,omitempty"`
	Name    string `yaml:"name"`
	Reverse string `yaml:"reverse,omitempty"`
}

// DefaultBatchSize is the number of rows read and written per batch when
// migrating data.
const DefaultBatchSize = 1000

// MigrationConfig controls data migration into the graph.
type MigrationConfig struct {
	// BatchSize is the number of rows per extraction and write batch.
	BatchSize int `yaml:"batch_size,omitempty"`
	// Verify compares source row counts with graph counts after loading.
	Verify bool `yaml:"verify"`
}

// LoggingConfig controls CLI logging.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// DefaultConfig returns a configuration with every inference stage enabled.
func DefaultConfig() *Config {
	return &Config{
		Mapping: MappingConfig{
			SemanticEnrichment:    true,
			PreserveInheritance:   true,
			InferCardinality:      true,
			GenerateSemanticNames: true,
			SingularLabels:        true,
		},
		Migration: MigrationConfig{BatchSize: DefaultBatchSize, Verify: true},
		Logging:   LoggingConfig{Level: "info", Format: LogConsole},
	}
}

// Validate checks configuration values that would otherwise fail late.
func (c *Config) Validate() error {
	var errs []error

	if t := c.Source.Type; t != "" && !slices.Contains([]string{SourcePostgres, SourceMySQL, SourceSQLServer, SourceDDL, SourceYAML}, t) {
		errs = append(errs, fmt.Errorf("%w: source.type %q", ErrInvalidConfig, t))
	}

	if c.Migration.BatchSize < 0 {
		errs = append(errs, fmt.Errorf("%w: migration.batch_size must not be negative", ErrInvalidConfig))
	}

	if c.Source.Concurrency < 0 {
		errs = append(errs, fmt.Errorf("%w: source.concurrency must not be negative", ErrInvalidConfig))
	}

	for token, v := range c.Mapping.Verbs {
		if v.Name == "" {
			errs = append(errs, fmt.Errorf("%w: mapping.verbs.%s: name is required", ErrInvalidConfig, token))
		}
	}

	for i, d := range c.Mapping.DomainNames {
		if d.Parent == "" || d.Child == "" || d.Name == "" {
			errs = append(errs, fmt.Errorf("%w: mapping.domain_names[%d]: parent, child and name are required", ErrInvalidConfig, i))
		}
	}

	if f := c.Logging.Format; f != "" && f != LogConsole && f != LogJSON {
		errs = append(errs, fmt.Errorf("%w: logging.format %q", ErrInvalidConfig, f))
	}

	if n := c.Target.Neo4j; n != nil && n.URI == "" {
		errs = append(errs, fmt.Errorf("%w: target.neo4j.uri is required", ErrInvalidConfig))
	}

	return errors.Join(errs...)
}

// DefaultConfigNames are the filenames we search for.
var DefaultConfigNames = []string{".relgraph.yaml", ".relgraph.yml", "relgraph.yaml", "relgraph.yml"}

// LoadConfig finds and loads the nearest .relgraph.yaml walking up from dir.
func LoadConfig(dir string) (*Config, error) {
	path, err := FindConfig(dir)
	if err != nil {
		return nil, err
	}

	return LoadConfigFile(path)
}

// FindConfig searches for a config file starting from dir and walking up.
func FindConfig(dir string) (string, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for dir := absDir; ; {
		for _, name := range DefaultConfigNames {
			path := filepath.Join(dir, name)

			_, err := os.Stat(path)
			if err == nil {
				return path, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrConfigNotFound
		}

		dir = parent
	}
}

// LoadConfigFile loads a config from a specific path. Values not present in
// the file keep their DefaultConfig value, and ${VAR} references are
// expanded from the environment.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, err
	}

	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if cfg.Source.Path != "" && !filepath.IsAbs(cfg.Source.Path) {
		cfg.Source.Path = filepath.Join(filepath.Dir(path), cfg.Source.Path)
	}

	return cfg, nil
}

// ParseConfig decodes configuration YAML over DefaultConfig.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()

	err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg)
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// WriteConfig encodes cfg as YAML.
func WriteConfig(w io.Writer, cfg *Config) (err error) {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	defer func() {
		if closeErr := enc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return enc.Encode(cfg)
}
