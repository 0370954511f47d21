package store

import (
	"context"
	"fmt"

	"github.com/csvflow/importer/internal/importer"
)

// schemaStatements create the pipeline tables plus the demo domain tables
// the shipped row importers write to. Statements are idempotent so startup
// can run them unconditionally.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS imports (
		id UUID PRIMARY KEY,
		import_type TEXT NOT NULL,
		file_ref TEXT NOT NULL,
		error_ref TEXT,
		number_of_records INT NOT NULL DEFAULT 0,
		number_of_records_with_errors INT NOT NULL DEFAULT 0,
		records_remaining INT NOT NULL DEFAULT 0,
		status TEXT NOT NULL DEFAULT 'queued',
		imported_by TEXT NOT NULL DEFAULT '',
		imported_for TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS imported_records (
		id UUID PRIMARY KEY,
		import_id UUID NOT NULL REFERENCES imports(id) ON DELETE CASCADE,
		record_type TEXT NOT NULL,
		record_id TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'created',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (import_id, record_type, record_id)
	)`,

	`CREATE INDEX IF NOT EXISTS imported_records_import_id_idx
		ON imported_records (import_id, state)`,

	`CREATE TABLE IF NOT EXISTS jobs (
		id UUID PRIMARY KEY,
		kind TEXT NOT NULL,
		payload JSONB NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued',
		attempts INT NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE INDEX IF NOT EXISTS jobs_status_created_idx
		ON jobs (status, created_at)`,

	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		phone TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE TABLE IF NOT EXISTS donations (
		id UUID PRIMARY KEY,
		donor_email TEXT NOT NULL,
		amount NUMERIC(12,2) NOT NULL,
		received_on DATE NOT NULL,
		note TEXT NOT NULL DEFAULT ''
	)`,
}

// Init creates all tables and indexes if they do not exist.
func Init(ctx context.Context, db importer.DBTX) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
