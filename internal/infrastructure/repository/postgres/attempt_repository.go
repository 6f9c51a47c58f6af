package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kirillkom/kontext-processor/internal/core/domain"
)

// AttemptRepository persists per-event attempt counters in Postgres.
type AttemptRepository struct {
	db *sql.DB
}

func NewAttemptRepository(db *sql.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *AttemptRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2025030101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS processing_attempts (
	event_id TEXT PRIMARY KEY,
	attempts INTEGER NOT NULL DEFAULT 0,
	first_seen_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_processing_attempts_updated_at ON processing_attempts(updated_at);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *AttemptRepository) IncrementAttempt(ctx context.Context, eventID string) (int, error) {
	now := time.Now().UTC()
	row := r.db.QueryRowContext(ctx, `
INSERT INTO processing_attempts (event_id, attempts, first_seen_at, updated_at)
VALUES ($1, 1, $2, $2)
ON CONFLICT (event_id) DO UPDATE
SET attempts = processing_attempts.attempts + 1, updated_at = EXCLUDED.updated_at
RETURNING attempts
`, eventID, now)

	var attempts int
	if err := row.Scan(&attempts); err != nil {
		return 0, domain.WrapError(domain.ErrTemporary, "increment attempt", err)
	}
	return attempts, nil
}

func (r *AttemptRepository) AttemptCount(ctx context.Context, eventID string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT attempts FROM processing_attempts WHERE event_id = $1
`, eventID)

	var attempts int
	if err := row.Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, domain.WrapError(domain.ErrTemporary, "attempt count", err)
	}
	return attempts, nil
}

// Prune removes counters not touched since before.
func (r *AttemptRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
DELETE FROM processing_attempts WHERE updated_at < $1
`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune attempts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune attempts rows affected: %w", err)
	}
	return n, nil
}
