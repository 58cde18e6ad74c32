package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/research-office/research-registry/internal/config"
	"github.com/research-office/research-registry/internal/db"
	"github.com/research-office/research-registry/internal/entity"
	"github.com/research-office/research-registry/internal/importer"
	"github.com/research-office/research-registry/internal/repository"
	"github.com/research-office/research-registry/internal/schema"
)

type importOptions struct {
	kind           string
	file           string
	actor          string
	schemaOverride string
	maxErrors      int
	asJSON         bool
	dryRun         bool
}

func newImportCmd(kind, short string) *cobra.Command {
	opts := importOptions{kind: kind}

	cmd := &cobra.Command{
		Use:   kind + " --file <path.csv|path.zip>",
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(opts.file) == "" {
				return withCode(exitUsage, errors.New("--file is required"))
			}
			if !cmd.Flags().Changed("max-errors") {
				opts.maxErrors = -1
			}
			return runImport(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "CSV file or zip archive of CSV files (required)")
	cmd.Flags().StringVar(&opts.actor, "actor", "", "Identity recorded on coordinator changes (default IMPORT_ACTOR)")
	cmd.Flags().StringVar(&opts.schemaOverride, "schema-override", "", "JSON schema overrides keyed by kind (default IMPORT_SCHEMA_OVERRIDE_PATH)")
	cmd.Flags().IntVar(&opts.maxErrors, "max-errors", 0, "Error lines to print, 0 for all (default IMPORT_ERROR_DISPLAY_LIMIT)")
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "Print the full report as JSON")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Run against an in-memory store; nothing is written to the database")
	return cmd
}

func runImport(ctx context.Context, stdout, stderr io.Writer, opts importOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return withCode(exitUsage, err)
	}

	ext := strings.ToLower(filepath.Ext(opts.file))
	if ext != ".csv" && ext != ".zip" {
		return withCode(exitUsage, fmt.Errorf("--file must be a .csv or .zip, got %q", opts.file))
	}

	actor := strings.TrimSpace(opts.actor)
	if actor == "" {
		actor = cfg.Import.Actor
	}
	overridePath := opts.schemaOverride
	if overridePath == "" {
		overridePath = cfg.Import.SchemaOverridePath
	}
	maxErrors := opts.maxErrors
	if maxErrors < 0 {
		maxErrors = cfg.Import.ErrorDisplayLimit
	}

	overrides, err := schema.LoadOverrides(overridePath)
	if err != nil {
		return withCode(exitUsage, err)
	}
	rows, err := importer.HandlerFor(opts.kind, entity.NewHandlers(cfg.Import.ChangeReason))
	if err != nil {
		return withCode(exitUsage, err)
	}
	resolved, err := overrides.Apply(opts.kind, rows.Schema())
	if err != nil {
		return withCode(exitUsage, err)
	}

	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})).
		With("service", "importer", "dry_run", opts.dryRun)

	store, closeStore, err := openStore(ctx, cfg, opts.dryRun)
	if err != nil {
		return err
	}
	defer closeStore()

	proc := importer.New(store, rows,
		importer.WithLogger(logger),
		importer.WithActor(actor),
		importer.WithSchema(resolved),
	)

	var (
		result    any
		summary   string
		hasErrors bool
		failed    int
	)
	if ext == ".zip" {
		bulk, err := proc.ProcessArchive(ctx, opts.file)
		if err != nil {
			return runError(err)
		}
		result, summary, hasErrors, failed = bulk, bulk.SummaryN(maxErrors), bulk.HasErrors(), bulk.ErrorCount
	} else {
		report, err := proc.ProcessFile(ctx, opts.file)
		if err != nil {
			return runError(err)
		}
		result, summary, hasErrors, failed = report, report.SummaryN(maxErrors), report.HasErrors(), report.ErrorCount
	}

	if opts.asJSON {
		if err := writeJSON(stdout, result); err != nil {
			return err
		}
	} else {
		fmt.Fprint(stdout, summary)
	}

	if hasErrors {
		return withCode(exitRowErrors, fmt.Errorf("import finished with %d failed rows", failed))
	}
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, dryRun bool) (repository.Store, func(), error) {
	if dryRun {
		return repository.NewMemoryStore(), func() {}, nil
	}
	pool, err := db.ConnectWithRetry(ctx, cfg.Database)
	if err != nil {
		return nil, nil, withCode(exitDB, fmt.Errorf("connect: %w", err))
	}
	return repository.NewPostgresStore(pool), pool.Close, nil
}

func runError(err error) error {
	switch {
	case importer.IsFatal(err):
		return withCode(exitSource, err)
	case errors.Is(err, context.Canceled):
		return withCode(exitFailure, fmt.Errorf("import interrupted: %w", err))
	default:
		return withCode(exitFailure, err)
	}
}
