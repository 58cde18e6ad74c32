package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ImportKey binds an Idempotency-Key sent by an actor to the import run it
// started and the hash of the uploaded file.
type ImportKey struct {
	Actor       string
	Key         string
	RunID       uuid.UUID
	ContentHash string
}

// KeyClaim is the binding a Claim found or created.
type KeyClaim struct {
	// Existing is true when the key was already bound to a run.
	Existing    bool
	RunID       uuid.UUID
	ContentHash string
	ClaimedAt   time.Time
}

// IdempotencyRepository stores import keys.
type IdempotencyRepository struct {
	pool *pgxpool.Pool
}

// NewIdempotencyRepository creates a new idempotency repository.
func NewIdempotencyRepository(pool *pgxpool.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

// Claim binds k.Key to k.RunID unless a live binding for the same actor and
// key exists, in which case that binding is returned with Existing set.
// Expired bindings are taken over.
func (r *IdempotencyRepository) Claim(ctx context.Context, k ImportKey) (*KeyClaim, error) {
	if k.Key == "" {
		return nil, errors.New("idempotency key cannot be empty")
	}

	query := `
		WITH claimed AS (
			INSERT INTO import_keys (actor, key, run_id, content_hash)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (actor, key) DO UPDATE
			   SET run_id = EXCLUDED.run_id,
			       content_hash = EXCLUDED.content_hash,
			       claimed_at = NOW(),
			       expires_at = NOW() + INTERVAL '24 hours'
			 WHERE import_keys.expires_at < NOW()
			RETURNING run_id, content_hash, claimed_at, FALSE AS existing
		)
		SELECT run_id, content_hash, claimed_at, existing FROM claimed
		UNION ALL
		SELECT run_id, content_hash, claimed_at, TRUE
		FROM import_keys
		WHERE actor = $1 AND key = $2
		  AND NOT EXISTS (SELECT 1 FROM claimed)
	`

	var claim KeyClaim
	err := r.pool.QueryRow(ctx, query, k.Actor, k.Key, k.RunID, k.ContentHash).Scan(
		&claim.RunID,
		&claim.ContentHash,
		&claim.ClaimedAt,
		&claim.Existing,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("unexpected empty result from import key claim")
		}
		return nil, err
	}
	return &claim, nil
}

// Release drops the binding of key to runID. A key rebound to another run
// in the meantime is left alone.
func (r *IdempotencyRepository) Release(ctx context.Context, actor, key string, runID uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM import_keys WHERE actor = $1 AND key = $2 AND run_id = $3`,
		actor, key, runID)
	return err
}

// CleanExpired removes expired keys. The server calls it on startup.
func (r *IdempotencyRepository) CleanExpired(ctx context.Context) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM import_keys WHERE expires_at < NOW()`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
