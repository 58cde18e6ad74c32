package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/research-office/research-registry/internal/models"
)

// ImportRunRepository handles data access for import run records
type ImportRunRepository struct {
	pool *pgxpool.Pool
}

// NewImportRunRepository creates a new import run repository
func NewImportRunRepository(pool *pgxpool.Pool) *ImportRunRepository {
	return &ImportRunRepository{pool: pool}
}

// importRunColumns is the canonical column list for import runs, used across all queries.
const importRunColumns = `id, kind, filename, content_hash, status, total_rows,
	success_count, skip_count, error_count, report, idempotency_key, actor,
	created_at, completed_at`

// scanImportRun scans a row into an ImportRun struct using the canonical column order.
func scanImportRun(row pgx.Row, run *models.ImportRun) error {
	return row.Scan(
		&run.ID,
		&run.Kind,
		&run.Filename,
		&run.ContentHash,
		&run.Status,
		&run.TotalRows,
		&run.SuccessCount,
		&run.SkipCount,
		&run.ErrorCount,
		&run.Report,
		&run.IdempotencyKey,
		&run.Actor,
		&run.CreatedAt,
		&run.CompletedAt,
	)
}

// Create inserts a new import run in the running state
func (r *ImportRunRepository) Create(ctx context.Context, run *models.ImportRun) error {
	if run == nil {
		return errors.New("import run cannot be nil")
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = models.RunStatusRunning
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO import_runs (
			id, kind, filename, content_hash, status, total_rows,
			success_count, skip_count, error_count, report, idempotency_key, actor,
			created_at, completed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
		RETURNING ` + importRunColumns

	return scanImportRun(r.pool.QueryRow(
		ctx, query,
		run.ID, run.Kind, run.Filename, run.ContentHash, run.Status, run.TotalRows,
		run.SuccessCount, run.SkipCount, run.ErrorCount, run.Report, run.IdempotencyKey, run.Actor,
		run.CreatedAt, run.CompletedAt,
	), run)
}

// GetByID retrieves an import run by ID
func (r *ImportRunRepository) GetByID(ctx context.Context, runID uuid.UUID) (*models.ImportRun, error) {
	query := `SELECT ` + importRunColumns + ` FROM import_runs WHERE id = $1`
	run := &models.ImportRun{}
	err := scanImportRun(r.pool.QueryRow(ctx, query, runID), run)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return run, nil
}

// Complete stores the final counts and report of a run
func (r *ImportRunRepository) Complete(ctx context.Context, run *models.ImportRun) error {
	if run == nil {
		return errors.New("import run cannot be nil")
	}
	now := time.Now().UTC()
	run.CompletedAt = &now

	query := `
		UPDATE import_runs
		SET status = $2, total_rows = $3, success_count = $4, skip_count = $5,
		    error_count = $6, report = $7, completed_at = $8
		WHERE id = $1
		RETURNING ` + importRunColumns

	err := scanImportRun(r.pool.QueryRow(
		ctx, query,
		run.ID, run.Status, run.TotalRows, run.SuccessCount, run.SkipCount,
		run.ErrorCount, run.Report, run.CompletedAt,
	), run)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.New("import run not found")
		}
		return err
	}
	return nil
}
