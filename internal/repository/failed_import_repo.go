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

// FailedImportRepository serves the triage side of failed import records.
// Records are written by the pipeline through Store.RecordFailedImport.
type FailedImportRepository struct {
	pool *pgxpool.Pool
}

// NewFailedImportRepository creates a new failed import repository
func NewFailedImportRepository(pool *pgxpool.Pool) *FailedImportRepository {
	return &FailedImportRepository{pool: pool}
}

const failedImportColumns = `id, kind, source, row_number, reason, raw_data, resolved,
	resolution_notes, created_at, resolved_at`

func scanFailedImport(row pgx.Row, rec *models.FailedImportRecord) error {
	return row.Scan(
		&rec.ID,
		&rec.Kind,
		&rec.Source,
		&rec.RowNumber,
		&rec.Reason,
		&rec.RawData,
		&rec.Resolved,
		&rec.ResolutionNotes,
		&rec.CreatedAt,
		&rec.ResolvedAt,
	)
}

// FailedImportFilter narrows List results.
type FailedImportFilter struct {
	Resolved *bool
	Kind     string
	Limit    int
	Offset   int
}

// List returns failed import records, newest first
func (r *FailedImportRepository) List(ctx context.Context, filter FailedImportFilter) ([]models.FailedImportRecord, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := `
		SELECT ` + failedImportColumns + `
		FROM failed_import_records
		WHERE ($1::boolean IS NULL OR resolved = $1)
		  AND ($2 = '' OR kind = $2)
		ORDER BY created_at DESC, row_number ASC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.pool.Query(ctx, query, filter.Resolved, filter.Kind, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]models.FailedImportRecord, 0)
	for rows.Next() {
		var rec models.FailedImportRecord
		if err := scanFailedImport(rows, &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetByID retrieves a failed import record by ID
func (r *FailedImportRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.FailedImportRecord, error) {
	query := `SELECT ` + failedImportColumns + ` FROM failed_import_records WHERE id = $1`
	rec := &models.FailedImportRecord{}
	err := scanFailedImport(r.pool.QueryRow(ctx, query, id), rec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// MarkResolved flips the resolved flag and stores the operator notes.
// It is the only mutation a failed import record accepts.
func (r *FailedImportRepository) MarkResolved(ctx context.Context, id uuid.UUID, notes string) (*models.FailedImportRecord, error) {
	query := `
		UPDATE failed_import_records
		SET resolved = TRUE, resolution_notes = $2, resolved_at = $3
		WHERE id = $1
		RETURNING ` + failedImportColumns

	rec := &models.FailedImportRecord{}
	err := scanFailedImport(r.pool.QueryRow(ctx, query, id, notes, time.Now().UTC()), rec)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}
