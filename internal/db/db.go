package db

import (
	"context"
	"database/sql"
	"fmt"
)

// DB wraps a database/sql connection pool for PostgreSQL.
type DB struct {
	Pool *sql.DB
}

// New creates a new database connection.
// The caller must import a PostgreSQL driver (e.g., _ "github.com/lib/pq").
func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	pool.SetMaxOpenConns(25)
	pool.SetMaxIdleConns(5)

	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.Pool.Close()
}

// Migrate runs the database schema migrations.
func (d *DB) Migrate(ctx context.Context) error {
	_, err := d.Pool.ExecContext(ctx, migrationSQL)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

const migrationSQL = `
CREATE TABLE IF NOT EXISTS document_types (
    id          TEXT PRIMARY KEY,
    name        TEXT UNIQUE NOT NULL,
    prompt      TEXT NOT NULL DEFAULT '',
    schema      JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS batches (
    id             TEXT PRIMARY KEY,
    name           TEXT NOT NULL,
    document_count INTEGER NOT NULL DEFAULT 0,
    status         TEXT NOT NULL DEFAULT 'processing',
    stage          TEXT NOT NULL DEFAULT 'input',
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    completed_at   TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS documents (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    original_name TEXT NOT NULL,
    type_id       TEXT NOT NULL REFERENCES document_types(id),
    batch_id      TEXT NOT NULL REFERENCES batches(id),
    size          BIGINT NOT NULL DEFAULT 0,
    file_type     TEXT NOT NULL DEFAULT '',
    metadata      JSONB NOT NULL DEFAULT '{}',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_documents_batch_id ON documents(batch_id);

CREATE TABLE IF NOT EXISTS pipeline_status (
    document_id   TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    stage         TEXT NOT NULL,
    status        TEXT NOT NULL,
    error_message TEXT,
    batch_id      TEXT NOT NULL DEFAULT '',
    type_id       TEXT NOT NULL DEFAULT '',
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (document_id, stage)
);

CREATE INDEX IF NOT EXISTS idx_pipeline_status_stage ON pipeline_status(stage, status);

CREATE TABLE IF NOT EXISTS cleaning_rules (
    id          BIGSERIAL PRIMARY KEY,
    type_id     TEXT NOT NULL DEFAULT '',
    pattern     TEXT NOT NULL,
    replacement TEXT NOT NULL DEFAULT '',
    kind        TEXT NOT NULL DEFAULT 'regex',
    priority    INTEGER NOT NULL DEFAULT 100,
    context     TEXT NOT NULL DEFAULT 'all',
    condition   TEXT NOT NULL DEFAULT '',
    active      BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS pipeline_settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS document_sections (
    id             BIGSERIAL PRIMARY KEY,
    document_id    TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
    position       INTEGER NOT NULL,
    kind           TEXT NOT NULL,
    level          INTEGER NOT NULL DEFAULT 0,
    category       TEXT NOT NULL DEFAULT '',
    cleaned_length INTEGER NOT NULL DEFAULT 0,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_document_sections_doc ON document_sections(document_id);

CREATE TABLE IF NOT EXISTS processed_documents (
    document_id TEXT PRIMARY KEY REFERENCES documents(id) ON DELETE CASCADE,
    data        JSONB NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
