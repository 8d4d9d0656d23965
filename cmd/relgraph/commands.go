package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rlch/relgraph"
	"github.com/rlch/relgraph/runner"
	"github.com/rlch/relgraph/schema"
)

// Command errors.
var (
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrConfigExists      = errors.New("config file already exists (use --force)")
	ErrNoTarget          = errors.New("no target configured (set target.neo4j in .relgraph.yaml or --neo4j-uri)")
)

const progressNone = "none"

func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "source",
			Usage: "source type: postgres, mysql, ddl or yaml (default: detected)",
		},
		&cli.StringFlag{
			Name:    "uri",
			Usage:   "database connection URI to introspect",
			Sources: cli.EnvVars("RELGRAPH_SOURCE_URI"),
		},
	}
}

func pipelineFlags(defaultFormat string) []cli.Flag {
	return append(sourceFlags(),
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "output format",
			Value:   defaultFormat,
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "write output to a file instead of stdout",
		},
		&cli.StringFlag{
			Name:  "progress",
			Usage: "stage progress on stderr: text, verbose, json or none",
			Value: runner.FormatText,
		},
		&cli.BoolFlag{
			Name:  "strict",
			Usage: "fail when inference raises a warning",
		},
	)
}

// -----------------------------------------------------------------------------
// analyze
// -----------------------------------------------------------------------------

func (a *app) analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:      "analyze",
		Usage:     "Load and validate a relational schema and print its statistics",
		ArgsUsage: "[path or uri]",
		Flags: append(sourceFlags(), &cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Usage:   "output format: text, yaml or json",
			Value:   relgraph.FormatText,
		}),
		Action: a.runAnalyze,
	}
}

func (a *app) runAnalyze(ctx context.Context, cmd *cli.Command) error {
	if err := a.setup(cmd); err != nil {
		return err
	}
	defer a.sync()

	src, err := a.openSource(cmd)
	if err != nil {
		return exitError(err)
	}
	defer func() { _ = src.Close() }()

	s, err := src.Load(ctx)
	if err != nil {
		return exitError(err)
	}

	if inc, exc := a.cfg.Source.IncludeTables, a.cfg.Source.ExcludeTables; len(inc) > 0 || len(exc) > 0 {
		s = schema.FilterTables(s, inc, exc)
	}

	if err := s.Validate(); err != nil {
		for _, ie := range schema.IntegrityErrors(err) {
			fmt.Fprintf(a.stderr, "error: %s\n", ie)
		}

		return cli.Exit("schema has integrity violations", exitIntegrity)
	}

	stats := s.Stats()

	switch format := cmd.String("format"); format {
	case relgraph.FormatText:
		return writeStatsText(a.stdout, s, stats)
	case relgraph.FormatYAML:
		return writeYAML(a.stdout, stats)
	case relgraph.FormatJSON:
		return writeJSON(a.stdout, stats)
	default:
		return cli.Exit(fmt.Sprintf("%v: %s", ErrUnsupportedFormat, format), exitUsage)
	}
}

func writeStatsText(w io.Writer, s *schema.Schema, st schema.Stats) error {
	rows := []struct {
		label string
		n     int
	}{
		{"tables", st.Tables},
		{"columns", st.Columns},
		{"foreign keys", st.ForeignKeys},
		{"indexes", st.Indexes},
		{"composite keys", st.CompositeKeys},
		{"junctions", st.Junctions},
		{"keyless", st.Keyless},
	}

	if _, err := fmt.Fprintf(w, "%s\n", s.Name); err != nil {
		return err
	}

	for _, r := range rows {
		if _, err := fmt.Fprintf(w, "  %-15s %d\n", r.label, r.n); err != nil {
			return err
		}
	}

	return nil
}

// -----------------------------------------------------------------------------
// infer
// -----------------------------------------------------------------------------

func (a *app) inferCommand() *cli.Command {
	return &cli.Command{
		Name:      "infer",
		Usage:     "Infer the conceptual model of a relational schema",
		ArgsUsage: "[path or uri]",
		Flags:     pipelineFlags(relgraph.FormatYAML),
		Action:    a.runInfer,
	}
}

func (a *app) runInfer(ctx context.Context, cmd *cli.Command) error {
	if err := a.setup(cmd); err != nil {
		return err
	}
	defer a.sync()

	format := cmd.String("format")
	if format != relgraph.FormatYAML && format != relgraph.FormatJSON {
		return cli.Exit(fmt.Sprintf("%v: %s", ErrUnsupportedFormat, format), exitUsage)
	}

	cfg := *a.cfg
	cfg.Mapping.SemanticEnrichment = true

	result, err := a.runPipeline(ctx, cmd, &cfg)
	if err != nil {
		return err
	}

	return a.output(cmd.String("output"), func(w io.Writer) error {
		if format == relgraph.FormatJSON {
			return result.Model.WriteJSON(w)
		}

		return result.Model.WriteYAML(w)
	})
}

// -----------------------------------------------------------------------------
// map
// -----------------------------------------------------------------------------

func (a *app) mapCommand() *cli.Command {
	return &cli.Command{
		Name:      "map",
		Usage:     "Map a relational schema to a graph schema (yaml, json or cypher)",
		ArgsUsage: "[path or uri]",
		Flags:     pipelineFlags(relgraph.FormatYAML),
		Action:    a.runMap,
	}
}

func (a *app) runMap(ctx context.Context, cmd *cli.Command) error {
	if err := a.setup(cmd); err != nil {
		return err
	}
	defer a.sync()

	format := cmd.String("format")
	switch format {
	case relgraph.FormatYAML, relgraph.FormatJSON, relgraph.FormatCypher:
	default:
		return cli.Exit(fmt.Sprintf("%v: %s", ErrUnsupportedFormat, format), exitUsage)
	}

	result, err := a.runPipeline(ctx, cmd, a.cfg)
	if err != nil {
		return err
	}

	return a.output(cmd.String("output"), func(w io.Writer) error {
		switch format {
		case relgraph.FormatJSON:
			return result.Graph.WriteJSON(w)
		case relgraph.FormatCypher:
			return result.Graph.WriteCypher(w)
		default:
			return result.Graph.WriteYAML(w)
		}
	})
}

// -----------------------------------------------------------------------------
// apply
// -----------------------------------------------------------------------------

func (a *app) applyCommand() *cli.Command {
	return &cli.Command{
		Name:      "apply",
		Usage:     "Create the graph schema's constraints and indexes in Neo4j",
		ArgsUsage: "[path or uri]",
		Flags: append(append(pipelineFlags(relgraph.FormatCypher),
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "print the statements without running them",
			}),
			neo4jFlags()...,
		),
		Action: a.runApply,
	}
}

func neo4jFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "neo4j-uri",
			Usage:   "Neo4j connection URI (overrides config)",
			Sources: cli.EnvVars("RELGRAPH_NEO4J_URI"),
		},
		&cli.StringFlag{
			Name:    "neo4j-user",
			Usage:   "Neo4j username",
			Sources: cli.EnvVars("RELGRAPH_NEO4J_USER"),
		},
		&cli.StringFlag{
			Name:    "neo4j-pass",
			Usage:   "Neo4j password",
			Sources: cli.EnvVars("RELGRAPH_NEO4J_PASS"),
		},
		&cli.StringFlag{
			Name:  "neo4j-database",
			Usage: "Neo4j database name",
		},
	}
}

func (a *app) runApply(ctx context.Context, cmd *cli.Command) error {
	if err := a.setup(cmd); err != nil {
		return err
	}
	defer a.sync()

	n4 := neo4jConfig(a.cfg.Target.Neo4j, cmd)
	if n4.URI == "" {
		return cli.Exit(ErrNoTarget.Error(), exitUsage)
	}

	target, err := relgraph.NewTarget(relgraph.TargetNeo4j, n4)
	if err != nil {
		return exitError(err)
	}
	defer func() { _ = target.Close() }()

	dryRun := cmd.Bool("dry-run")

	result, err := a.runPipeline(ctx, cmd, a.cfg, runner.WithTarget(target), runner.WithDryRun(dryRun))
	if err != nil {
		return err
	}

	if !dryRun {
		return nil
	}

	return a.output(cmd.String("output"), result.Graph.WriteCypher)
}

func neo4jConfig(base *relgraph.Neo4jConfig, cmd *cli.Command) *relgraph.Neo4jConfig {
	cfg := &relgraph.Neo4jConfig{}
	if base != nil {
		*cfg = *base
	}

	if v := cmd.String("neo4j-uri"); v != "" {
		cfg.URI = v
	}

	if v := cmd.String("neo4j-user"); v != "" {
		cfg.Username = v
	}

	if v := cmd.String("neo4j-pass"); v != "" {
		cfg.Password = v
	}

	if v := cmd.String("neo4j-database"); v != "" {
		cfg.Database = v
	}

	return cfg
}

// -----------------------------------------------------------------------------
// migrate
// -----------------------------------------------------------------------------

func (a *app) migrateCommand() *cli.Command {
	return &cli.Command{
		Name:      "migrate",
		Usage:     "Apply the graph schema and copy table rows into Neo4j",
		ArgsUsage: "[uri]",
		Flags: append(append(pipelineFlags(relgraph.FormatYAML),
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "count the rows to migrate without writing",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "rows read and written per batch (overrides config)",
			},
			&cli.BoolFlag{
				Name:  "no-verify",
				Usage: "skip comparing source and graph counts after loading",
			}),
			neo4jFlags()...,
		),
		Action: a.runMigrate,
	}
}

func (a *app) runMigrate(ctx context.Context, cmd *cli.Command) error {
	if err := a.setup(cmd); err != nil {
		return err
	}
	defer a.sync()

	format := cmd.String("format")
	if format != relgraph.FormatYAML && format != relgraph.FormatJSON {
		return cli.Exit(fmt.Sprintf("%v: %s", ErrUnsupportedFormat, format), exitUsage)
	}

	cfg := *a.cfg
	if cmd.IsSet("batch-size") {
		cfg.Migration.BatchSize = cmd.Int("batch-size")
	}

	if cmd.Bool("no-verify") {
		cfg.Migration.Verify = false
	}

	if err := cfg.Validate(); err != nil {
		return exitError(err)
	}

	dryRun := cmd.Bool("dry-run")
	opts := []runner.Option{runner.WithMigrate(true), runner.WithDryRun(dryRun)}

	n4 := neo4jConfig(a.cfg.Target.Neo4j, cmd)

	switch {
	case n4.URI != "":
		target, err := relgraph.NewTarget(relgraph.TargetNeo4j, n4)
		if err != nil {
			return exitError(err)
		}
		defer func() { _ = target.Close() }()

		opts = append(opts, runner.WithTarget(target))
	case !dryRun:
		return cli.Exit(ErrNoTarget.Error(), exitUsage)
	}

	result, err := a.runPipeline(ctx, cmd, &cfg, opts...)
	if err != nil {
		return err
	}

	return a.output(cmd.String("output"), func(w io.Writer) error {
		if format == relgraph.FormatJSON {
			return writeJSON(w, result.Migration)
		}

		return writeYAML(w, result.Migration)
	})
}

// -----------------------------------------------------------------------------
// init
// -----------------------------------------------------------------------------

func (a *app) initCommand() *cli.Command {
	return &cli.Command{
		Name:      "init",
		Usage:     "Write a default .relgraph.yaml",
		ArgsUsage: "[path or uri]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "config file to write",
				Value:   relgraph.DefaultConfigNames[0],
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "overwrite an existing file",
			},
		},
		Action: a.runInit,
	}
}

func (a *app) runInit(_ context.Context, cmd *cli.Command) error {
	cfg := relgraph.DefaultConfig()
	setSourceArg(&cfg.Source, cmd.Args().First())

	path := filepath.Clean(cmd.String("output"))

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if cmd.Bool("force") {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644) //nolint:gosec // config is not secret by default
	if errors.Is(err, os.ErrExist) {
		return cli.Exit(fmt.Sprintf("%s: %v", path, ErrConfigExists), exitUsage)
	}

	if err != nil {
		return err
	}

	if err := relgraph.WriteConfig(f, cfg); err != nil {
		_ = f.Close()

		return err
	}

	if err := f.Close(); err != nil {
		return err
	}

	_, err = fmt.Fprintf(a.stdout, "wrote %s\n", path)

	return err
}

// -----------------------------------------------------------------------------
// helpers
// -----------------------------------------------------------------------------

// openSource resolves the source from the positional argument, the --uri
// and --source flags and the config, in that order of precedence.
func (a *app) openSource(cmd *cli.Command) (relgraph.Source, error) { //nolint:ireturn
	sc := &a.cfg.Source

	setSourceArg(sc, cmd.Args().First())

	if uri := cmd.String("uri"); uri != "" {
		sc.Type, sc.URI, sc.Path = "", uri, ""
	}

	if t := cmd.String("source"); t != "" {
		sc.Type = t
	}

	a.log.Debug("opening source", zap.String("type", sc.ResolvedType()))

	return relgraph.NewSource(sc)
}

func setSourceArg(sc *relgraph.SourceConfig, arg string) {
	if arg == "" {
		return
	}

	sc.Type = ""

	if isURI(arg) {
		sc.URI, sc.Path = arg, ""
	} else {
		sc.URI, sc.Path = "", arg
	}
}

func isURI(s string) bool {
	return strings.Contains(s, "://") || strings.Contains(s, "@tcp(")
}

func (a *app) runPipeline(
	ctx context.Context,
	cmd *cli.Command,
	cfg *relgraph.Config,
	opts ...runner.Option,
) (*runner.Result, error) {
	src, err := a.openSource(cmd)
	if err != nil {
		return nil, exitError(err)
	}
	defer func() { _ = src.Close() }()

	var fh *runner.FormatHandler

	if progress := cmd.String("progress"); progress != progressNone {
		fh = runner.NewFormatHandler(runner.NewFormatter(progress, a.stderr), a.stderr)
		opts = append(opts, runner.WithHandler(fh))
	}

	opts = append(opts, runner.WithLogger(a.log), runner.WithStrict(cmd.Bool("strict")))

	result, err := runner.New(opts...).Run(ctx, src, cfg)

	if fh != nil {
		_ = fh.Summary(result)
	}

	if err != nil {
		return result, exitError(err)
	}

	return result, nil
}

func (a *app) output(path string, write func(io.Writer) error) (err error) {
	if path == "" || path == "-" {
		return write(a.stdout)
	}

	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return write(f)
}

func writeYAML(w io.Writer, v any) (err error) {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	defer func() {
		if closeErr := enc.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return enc.Encode(v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
