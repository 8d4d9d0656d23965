// Command relgraph infers a conceptual model from a relational schema and
// maps it to a property-graph schema.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rlch/relgraph"
	"github.com/rlch/relgraph/schema"

	// Register sources and targets.
	_ "github.com/rlch/relgraph/databases/neo4j"
	_ "github.com/rlch/relgraph/ddl"
	_ "github.com/rlch/relgraph/introspect"
)

// Exit codes.
const (
	exitFailure   = 1
	exitUsage     = 2
	exitIntegrity = 3
)

var version = "dev"

func main() {
	a := &app{stdout: os.Stdout, stderr: os.Stderr}

	if err := a.command().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(exitFailure)
	}
}

// app holds what every command shares once setup has run.
type app struct {
	stdout io.Writer
	stderr io.Writer

	cfg *relgraph.Config
	log *zap.Logger
}

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:    "relgraph",
		Usage:   "Map relational schemas to property-graph schemas",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "config file (default: nearest .relgraph.yaml)",
				Sources: cli.EnvVars("RELGRAPH_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "debug, info, warn or error",
				Sources: cli.EnvVars("RELGRAPH_LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "console or json",
				Sources: cli.EnvVars("RELGRAPH_LOG_FORMAT"),
			},
		},
		Commands: []*cli.Command{
			a.analyzeCommand(),
			a.inferCommand(),
			a.mapCommand(),
			a.applyCommand(),
			a.migrateCommand(),
			a.initCommand(),
		},
	}
}

// setup loads the configuration and builds the logger. Flags override the
// config file. A missing config file means the defaults.
func (a *app) setup(cmd *cli.Command) error {
	cfg, err := loadConfig(cmd.String("config"))
	if err != nil {
		return exitError(err)
	}

	if level := cmd.String("log-level"); level != "" {
		cfg.Logging.Level = level
	}

	if format := cmd.String("log-format"); format != "" {
		cfg.Logging.Format = format
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	a.cfg, a.log = cfg, log

	return nil
}

func (a *app) sync() {
	if a.log != nil {
		_ = a.log.Sync()
	}
}

func loadConfig(path string) (*relgraph.Config, error) {
	if path != "" {
		return relgraph.LoadConfigFile(path)
	}

	cfg, err := relgraph.LoadConfig(".")
	if errors.Is(err, relgraph.ErrConfigNotFound) {
		return relgraph.DefaultConfig(), nil
	}

	return cfg, err
}

// newLogger builds a zap logger writing to stderr.
func newLogger(c relgraph.LoggingConfig) (*zap.Logger, error) {
	var config zap.Config

	switch c.Format {
	case relgraph.LogJSON:
		config = zap.NewProductionConfig()
	case "", relgraph.LogConsole:
		config = zap.NewDevelopmentConfig()
	default:
		return nil, fmt.Errorf("%w: log format %q", relgraph.ErrInvalidConfig, c.Format)
	}

	level := zapcore.InfoLevel

	if c.Level != "" {
		parsed, err := zapcore.ParseLevel(c.Level)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", relgraph.ErrInvalidConfig, err)
		}

		level = parsed
	}

	config.OutputPaths = []string{"stderr"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.Level = zap.NewAtomicLevelAt(level)

	return config.Build()
}

// exitError attaches an exit code to err. Configuration problems exit with
// exitUsage, schema integrity violations with exitIntegrity.
func exitError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, schema.ErrSchemaIntegrity):
		return cli.Exit(err.Error(), exitIntegrity)
	case errors.Is(err, relgraph.ErrInvalidConfig),
		errors.Is(err, relgraph.ErrNoSource),
		errors.Is(err, relgraph.ErrUnknownSource),
		errors.Is(err, relgraph.ErrUnknownTarget),
		errors.Is(err, relgraph.ErrNoRows),
		errors.Is(err, relgraph.ErrNoLoader):
		return cli.Exit(err.Error(), exitUsage)
	default:
		return cli.Exit(err.Error(), exitFailure)
	}
}
