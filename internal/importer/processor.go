// Package importer runs CSV exports through validation and entity
// resolution, one transaction per row, and reports what happened to each
// row.
package importer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/research-office/research-registry/internal/entity"
	"github.com/research-office/research-registry/internal/ingest"
	"github.com/research-office/research-registry/internal/models"
	"github.com/research-office/research-registry/internal/repository"
	"github.com/research-office/research-registry/internal/schema"
)

// DefaultActor is recorded on history entries when no actor is configured.
const DefaultActor = "csv-import"

// RowInput is one parsed row plus the run settings handlers need.
type RowInput struct {
	ingest.Row
	Actor  string
	Schema *schema.Schema
}

// RowHandler turns a validated row into entities. Handle runs inside the
// row transaction; returning an error rolls the row back.
type RowHandler interface {
	Kind() string
	Schema() *schema.Schema
	Handle(ctx context.Context, tx repository.Tx, cache *entity.Cache, row RowInput) (Outcome, error)
}

// Observer is notified about rows and runs, typically to export metrics.
type Observer interface {
	RowProcessed(kind string, outcome Outcome)
	RunFinished(kind string, report *Report, err error)
}

type nopObserver struct{}

func (nopObserver) RowProcessed(string, Outcome)        {}
func (nopObserver) RunFinished(string, *Report, error) {}

// Processor imports sources of one kind.
type Processor struct {
	store    repository.Store
	handler  RowHandler
	schema   *schema.Schema
	logger   *slog.Logger
	observer Observer
	actor    string
	source   string
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithObserver sets the row and run observer.
func WithObserver(o Observer) Option {
	return func(p *Processor) {
		if o != nil {
			p.observer = o
		}
	}
}

// WithActor sets who history entries are attributed to.
func WithActor(actor string) Option {
	return func(p *Processor) {
		if actor = strings.TrimSpace(actor); actor != "" {
			p.actor = actor
		}
	}
}

// WithSchema replaces the handler's schema, e.g. with a resolved override.
func WithSchema(s *schema.Schema) Option {
	return func(p *Processor) {
		if s != nil {
			p.schema = s
		}
	}
}

// WithSource names sources passed to ProcessSource without a name.
func WithSource(name string) Option {
	return func(p *Processor) {
		p.source = name
	}
}

// New returns a processor importing rows with handler.
func New(store repository.Store, handler RowHandler, opts ...Option) *Processor {
	p := &Processor{
		store:    store,
		handler:  handler,
		schema:   handler.Schema(),
		logger:   slog.Default(),
		observer: nopObserver{},
		actor:    DefaultActor,
		source:   "stdin",
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "importer", "kind", handler.Kind())
	return p
}

// Kind returns the kind of rows the processor imports.
func (p *Processor) Kind() string {
	return p.handler.Kind()
}

// ProcessFile imports a CSV file from disk.
func (p *Processor) ProcessFile(ctx context.Context, path string) (*Report, error) {
	reader, closeFn, err := ingest.OpenFile(path, ingest.WithAliases(p.schema.Aliases))
	if err != nil {
		return nil, p.sourceFailed(sourceError("open "+path, err))
	}
	defer closeFn()
	return p.run(ctx, filepath.Base(path), reader)
}

// ProcessSource imports CSV data read from r. A source that cannot be read
// returns a KindSourceRead error and no report.
func (p *Processor) ProcessSource(ctx context.Context, name string, r io.Reader) (*Report, error) {
	if name == "" {
		name = p.source
	}
	reader, err := ingest.NewReader(r, ingest.WithAliases(p.schema.Aliases))
	if err != nil {
		return nil, p.sourceFailed(sourceError("read "+name, err))
	}
	return p.run(ctx, name, reader)
}

func (p *Processor) sourceFailed(err *ImportError) error {
	p.logger.Error("source unreadable", "error", err)
	p.observer.RunFinished(p.handler.Kind(), nil, err)
	return err
}

func (p *Processor) run(ctx context.Context, source string, reader *ingest.Reader) (report *Report, err error) {
	logger := p.logger.With("source", source)
	report = NewReport(p.handler.Kind(), source)
	report.Encoding = reader.Encoding()
	defer func() {
		report.FinishedAt = time.Now()
		p.observer.RunFinished(p.handler.Kind(), report, err)
	}()

	warnings, headerErrs := schema.ValidateHeaders(reader.Headers(), p.schema)
	report.Warnings = append(report.Warnings, headerErrs...)
	report.Warnings = append(report.Warnings, warnings...)
	for _, w := range headerErrs {
		logger.Warn("header check failed", "detail", w)
	}

	logger.Info("import started", "encoding", reader.Encoding(), "columns", len(reader.Headers()))

	cache := entity.NewCache()
	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		row, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}

		var rowErr *ingest.RowError
		var outcome Outcome
		switch {
		case errors.As(err, &rowErr):
			outcome = p.reject(ctx, logger, source, rowErr.Number, malformedRaw(rowErr),
				&ImportError{Kind: KindRowValidation, Row: rowErr.Number, Op: "parse", Err: rowErr.Err})
		case err != nil:
			logger.Error("source read failed", "error", err, "rows_read", report.TotalRows)
			return report, sourceError("read "+source, err)
		default:
			outcome = p.processRow(ctx, logger, source, cache, row)
		}

		report.Record(outcome)
		p.observer.RowProcessed(p.handler.Kind(), outcome)
	}

	logger.Info("import finished",
		"total_rows", report.TotalRows,
		"success_count", report.SuccessCount,
		"skip_count", report.SkipCount,
		"error_count", report.ErrorCount,
		"cached_entities", cache.Len(),
	)
	return report, nil
}

// ProcessRow validates and imports a single row. It never returns an error:
// failures are reported as Invalid or Failed outcomes and recorded as failed
// imports.
func (p *Processor) ProcessRow(ctx context.Context, cache *entity.Cache, row ingest.Row) Outcome {
	return p.processRow(ctx, p.logger.With("source", p.source), p.source, cache, row)
}

func (p *Processor) processRow(ctx context.Context, logger *slog.Logger, source string, cache *entity.Cache, row ingest.Row) Outcome {
	logger = logger.With("row", row.Number)

	if v := schema.ValidateRow(row, p.schema); !v.Valid {
		err := &ImportError{
			Kind: KindRowValidation,
			Row:  row.Number,
			Op:   "validate",
			Err:  errors.New(strings.Join(v.Errors, "; ")),
		}
		return p.reject(ctx, logger, source, row.Number, row.Raw(), err)
	}

	in := RowInput{Row: row, Actor: p.actor, Schema: p.schema}
	var outcome Outcome
	err := p.store.InTx(ctx, func(tx repository.Tx) error {
		var err error
		outcome, err = p.handler.Handle(ctx, tx, cache, in)
		return err
	})
	if err != nil {
		cache.Discard()
		return p.reject(ctx, logger, source, row.Number, row.Raw(), rowError(row.Number, "import", err))
	}

	cache.Commit()
	outcome.Row = row.Number
	logger.Debug("row processed", "status", outcome.Status.String(), "message", outcome.Message)
	return outcome
}

// RawTextKey holds the source text of a record that could not be parsed in
// the raw data of its failed import.
const RawTextKey = "_raw_text"

func malformedRaw(e *ingest.RowError) map[string]string {
	raw := make(map[string]string, len(e.Fields)+1)
	for k, v := range e.Fields {
		raw[k] = v
	}
	raw[RawTextKey] = e.Text
	return raw
}

// reject logs a row error and stores it for triage.
func (p *Processor) reject(ctx context.Context, logger *slog.Logger, source string, rowNumber int, raw map[string]string, ierr *ImportError) Outcome {
	status := Failed
	if ierr.Kind == KindRowValidation {
		status = Invalid
	}
	message := ierr.Err.Error()

	if ierr.Kind == KindUnexpected {
		logger.Error("row failed", "kind", ierr.Kind.String(), "error", ierr)
	} else {
		logger.Warn("row rejected", "kind", ierr.Kind.String(), "error", message)
	}

	rawJSON := json.RawMessage(`{}`)
	if raw != nil {
		if b, err := json.Marshal(raw); err == nil {
			rawJSON = b
		}
	}
	record := &models.FailedImportRecord{
		Kind:      p.handler.Kind(),
		Source:    source,
		RowNumber: rowNumber,
		Reason:    fmt.Sprintf("%s: %s", ierr.Kind, message),
		RawData:   rawJSON,
	}
	// ctx may already be cancelled; the record must still be written.
	if err := p.store.RecordFailedImport(context.WithoutCancel(ctx), record); err != nil {
		logger.Error("failed to record failed import", "error", err)
	}

	return Outcome{Status: status, Row: rowNumber, Message: message, Err: ierr}
}
