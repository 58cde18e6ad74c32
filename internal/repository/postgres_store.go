package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/research-office/research-registry/internal/models"
)

// PostgresStore runs each row in its own pgx transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a store over the given pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// InTx runs fn in a new transaction. ALWAYS creates a new transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		if rErr := tx.Rollback(ctx); rErr != nil {
			return errors.Join(err, rErr)
		}
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPgError(err)
	}
	return nil
}

// RecordFailedImport inserts a failed row using the pool directly, so it is
// never part of the rolled-back row transaction.
func (s *PostgresStore) RecordFailedImport(ctx context.Context, record *models.FailedImportRecord) error {
	if record == nil {
		return errors.New("failed import record cannot be nil")
	}
	stampFailedImport(record)

	query := `
		INSERT INTO failed_import_records (
			id, kind, source, row_number, reason, raw_data, resolved, resolution_notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, FALSE, '', $7)
	`
	_, err := s.pool.Exec(ctx, query,
		record.ID, record.Kind, record.Source, record.RowNumber,
		record.Reason, record.RawData, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert failed import record: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Savepoint(ctx context.Context, fn func(tx Tx) error) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(&pgTx{tx: sp}); err != nil {
		if rErr := sp.Rollback(ctx); rErr != nil {
			return errors.Join(err, rErr)
		}
		return err
	}
	return sp.Commit(ctx)
}

// insert runs a statement inside a savepoint so that a unique violation
// leaves the row transaction usable for the follow-up read.
func (t *pgTx) insert(ctx context.Context, query string, args ...any) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if _, err := sp.Exec(ctx, query, args...); err != nil {
		_ = sp.Rollback(ctx)
		return mapPgError(err)
	}
	return sp.Commit(ctx)
}

// link inserts a join row, reporting whether it was new.
func (t *pgTx) link(ctx context.Context, query string, args ...any) (bool, error) {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return false, mapPgError(err)
	}
	return tag.RowsAffected() > 0, nil
}

// exec runs an update that must touch exactly one row.
func (t *pgTx) exec(ctx context.Context, query string, args ...any) error {
	tag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return mapPgError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Tx    = (*pgTx)(nil)
)
