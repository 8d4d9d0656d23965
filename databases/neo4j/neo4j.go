// Package neo4j applies graph schemas to a Neo4j database.
package neo4j

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
	"go.uber.org/zap"

	"github.com/rlch/relgraph"
	"github.com/rlch/relgraph/graph"
)

// ErrInvalidConfig is returned when an invalid configuration is provided.
var ErrInvalidConfig = errors.New("neo4j: expected *relgraph.Neo4jConfig")

//nolint:gochecknoinits // Target self-registration pattern
func init() {
	relgraph.RegisterTarget(relgraph.TargetNeo4j, func(cfg any) (relgraph.Target, error) {
		neo4jCfg, ok := cfg.(*relgraph.Neo4jConfig)
		if !ok {
			return nil, fmt.Errorf("%w, got %T", ErrInvalidConfig, cfg)
		}

		return New(neo4jCfg)
	})
}

// Option configures a Database.
type Option func(*Database)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(d *Database) { d.log = log }
}

// Database is a Neo4j connection implementing relgraph.Target.
type Database struct {
	driver neo4j.DriverWithContext
	db     string
	log    *zap.Logger
}

// New creates a driver from the configuration and verifies connectivity.
func New(cfg *relgraph.Neo4jConfig, opts ...Option) (*Database, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("neo4j: failed to create driver: %w", err)
	}

	d := &Database{driver: driver, db: cfg.Database, log: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}

	ctx := context.Background()

	err = driver.VerifyConnectivity(ctx)
	if err != nil {
		_ = driver.Close(ctx)

		return nil, fmt.Errorf("neo4j: failed to connect: %w", err)
	}

	return d, nil
}

// Name returns the target identifier.
func (d *Database) Name() string {
	return relgraph.TargetNeo4j
}

func (d *Database) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	cfg := neo4j.SessionConfig{AccessMode: mode}
	if d.db != "" {
		cfg.DatabaseName = d.db
	}

	return d.driver.NewSession(ctx, cfg)
}

// ApplySchema runs every constraint and index statement of gs in a single
// write transaction. All statements use IF NOT EXISTS, so applying the same
// schema twice is harmless. With dryRun set nothing is sent to the server.
func (d *Database) ApplySchema(ctx context.Context, gs *graph.Schema, dryRun bool) (*relgraph.ApplyResult, error) {
	res := &relgraph.ApplyResult{Statements: gs.Statements(), DryRun: dryRun}
	if dryRun || len(res.Statements) == 0 {
		return res, nil
	}

	session := d.session(ctx, neo4j.AccessModeWrite)
	defer func() { _ = session.Close(ctx) }()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, stmt := range res.Statements {
			result, err := tx.Run(ctx, stmt, nil)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", stmt, err)
			}

			if _, err := result.Consume(ctx); err != nil {
				return nil, fmt.Errorf("%s: %w", stmt, err)
			}

			d.log.Debug("statement applied", zap.String("statement", stmt))
		}

		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: applying schema: %w", err)
	}

	res.Applied = len(res.Statements)

	return res, nil
}

// Constraints returns the names of the constraints defined in the database.
func (d *Database) Constraints(ctx context.Context) ([]string, error) {
	session := d.session(ctx, neo4j.AccessModeRead)
	defer func() { _ = session.Close(ctx) }()

	names, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, "SHOW CONSTRAINTS YIELD name", nil)
		if err != nil {
			return nil, err
		}

		records, err := result.Collect(ctx)
		if err != nil {
			return nil, err
		}

		out := make([]string, 0, len(records))

		for _, record := range records {
			if name, ok := record.Values[0].(string); ok {
				out = append(out, name)
			}
		}

		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("neo4j: listing constraints: %w", err)
	}

	return names.([]string), nil //nolint:forcetypeassert
}

// Execute runs a Cypher query and returns its records. Nodes and
// relationships are flattened so their properties appear as
// "alias.property" keys.
func (d *Database) Execute(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := d.session(ctx, neo4j.AccessModeWrite)
	defer func() { _ = session.Close(ctx) }()

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, fmt.Errorf("neo4j: query execution failed: %w", err)
	}

	records, err := result.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("neo4j: failed to collect results: %w", err)
	}

	rows := make([]map[string]any, len(records))
	for i, record := range records {
		rows[i] = flattenRecord(record.Keys, record.Values)
	}

	return rows, nil
}

// Close releases the driver.
func (d *Database) Close() error {
	if d.driver == nil {
		return nil
	}

	if err := d.driver.Close(context.Background()); err != nil {
		return fmt.Errorf("neo4j: failed to close driver: %w", err)
	}

	return nil
}

// flattenRecord converts a record into a flat map keyed by alias, with
// entity properties expanded as "alias.property".
func flattenRecord(keys []string, values []any) map[string]any {
	out := make(map[string]any, len(keys))

	for i, key := range keys {
		switch v := values[i].(type) {
		case dbtype.Node:
			expand(out, key, v.Props)
			out[key+".labels"] = v.Labels
			out[key+".elementId"] = v.ElementId
		case dbtype.Relationship:
			expand(out, key, v.Props)
			out[key+".type"] = v.Type
			out[key+".elementId"] = v.ElementId
		case dbtype.Path:
			out[key+".nodes"] = v.Nodes
			out[key+".relationships"] = v.Relationships
			out[key+".length"] = len(v.Relationships)
		case map[string]any:
			expand(out, key, v)
		default:
			out[key] = v
		}
	}

	return out
}

func expand(out map[string]any, prefix string, props map[string]any) {
	for k, v := range props {
		out[prefix+"."+k] = v
	}
}

var _ relgraph.Target = (*Database)(nil)
