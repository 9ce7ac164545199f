package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/docchat-ai/retrieval/internal/core/domain"
)

// Registry persists per-source ingest bookkeeping in Postgres. It backs the
// status endpoint and source deletion.
type Registry struct {
	db *sql.DB
}

func New(db *sql.DB) *Registry {
	return &Registry{db: db}
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

func (r *Registry) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across replica startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS sources (
	id TEXT PRIMARY KEY,
	chunk_count INTEGER NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sources_updated_at ON sources(updated_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *Registry) RecordIngest(ctx context.Context, sourceID string, chunkCount int) error {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, `
INSERT INTO sources (id, chunk_count, created_at, updated_at)
VALUES ($1, $2, $3, $3)
ON CONFLICT (id) DO UPDATE
SET chunk_count = sources.chunk_count + EXCLUDED.chunk_count,
    updated_at = EXCLUDED.updated_at
`, sourceID, chunkCount, now)
	if err != nil {
		return fmt.Errorf("record ingest: %w", err)
	}
	return nil
}

func (r *Registry) DeleteSource(ctx context.Context, sourceID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sources WHERE id = $1`, sourceID)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	return nil
}

func (r *Registry) Clear(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM sources`)
	if err != nil {
		return fmt.Errorf("clear sources: %w", err)
	}
	return nil
}

func (r *Registry) Counts(ctx context.Context) (domain.CorpusCounts, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT COUNT(*), COALESCE(SUM(chunk_count), 0) FROM sources
`)
	var counts domain.CorpusCounts
	if err := row.Scan(&counts.DocumentCount, &counts.VectorCount); err != nil {
		return domain.CorpusCounts{}, fmt.Errorf("scan corpus counts: %w", err)
	}
	return counts, nil
}
