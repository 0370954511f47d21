// Package store provides the PostgreSQL persistence layer for imports,
// imported-record tracking rows, and the demo domain tables.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/csvflow/importer/internal/importer"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Imports is the pgx-backed importer.ImportStore.
type Imports struct {
	db importer.DBTX
}

// NewImports creates an import store on the given pool or transaction.
func NewImports(db importer.DBTX) *Imports {
	return &Imports{db: db}
}

// Create inserts a new import in the queued state.
func (s *Imports) Create(ctx context.Context, imp *importer.Import) error {
	if imp.ID == uuid.Nil {
		imp.ID = uuid.New()
	}
	if imp.Status == "" {
		imp.Status = importer.StatusQueued
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO imports (id, import_type, file_ref, status, imported_by, imported_for)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		imp.ID, imp.ImportType, imp.FileRef, imp.Status, imp.ImportedBy, imp.ImportedFor,
	)
	if err != nil {
		return fmt.Errorf("insert import: %w", err)
	}
	return nil
}

func (s *Imports) Get(ctx context.Context, id uuid.UUID) (*importer.Import, error) {
	var imp importer.Import
	err := s.db.QueryRow(ctx, `
		SELECT id, import_type, file_ref, COALESCE(error_ref, ''),
		       number_of_records, number_of_records_with_errors, records_remaining,
		       status, imported_by, imported_for, created_at, updated_at
		FROM imports WHERE id = $1`, id,
	).Scan(
		&imp.ID, &imp.ImportType, &imp.FileRef, &imp.ErrorRef,
		&imp.Records, &imp.RecordsWithErrors, &imp.Remaining,
		&imp.Status, &imp.ImportedBy, &imp.ImportedFor, &imp.CreatedAt, &imp.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &importer.NotFoundError{Kind: "import", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("get import %s: %w", id, err)
	}
	return &imp, nil
}

// List returns imports ordered most recently updated first.
func (s *Imports) List(ctx context.Context, limit int) ([]*importer.Import, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(ctx, `
		SELECT id, import_type, file_ref, COALESCE(error_ref, ''),
		       number_of_records, number_of_records_with_errors, records_remaining,
		       status, imported_by, imported_for, created_at, updated_at
		FROM imports ORDER BY updated_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list imports: %w", err)
	}
	defer rows.Close()

	var imports []*importer.Import
	for rows.Next() {
		var imp importer.Import
		if err := rows.Scan(
			&imp.ID, &imp.ImportType, &imp.FileRef, &imp.ErrorRef,
			&imp.Records, &imp.RecordsWithErrors, &imp.Remaining,
			&imp.Status, &imp.ImportedBy, &imp.ImportedFor, &imp.CreatedAt, &imp.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan import row: %w", err)
		}
		imports = append(imports, &imp)
	}
	return imports, rows.Err()
}

// SetStatus performs the guarded from -> to transition. The WHERE clause on
// the current status makes the transition atomic: concurrent callers race on
// the row and only one observes an update.
func (s *Imports) SetStatus(ctx context.Context, id uuid.UUID, from, to importer.Status) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE imports SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, from, to,
	)
	if err != nil {
		return false, fmt.Errorf("set import %s status %s: %w", id, to, err)
	}
	return tag.RowsAffected() > 0, nil
}

// FinishRun stores the per-run counters and completes the import. Counters
// are set, never incremented: a resumed run overwrites them with its own
// totals while the error report stays cumulative.
func (s *Imports) FinishRun(ctx context.Context, id uuid.UUID, records, recordsWithErrors int) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE imports
		SET number_of_records = $2,
		    number_of_records_with_errors = $3,
		    status = $4,
		    updated_at = now()
		WHERE id = $1 AND status = $5`,
		id, records, recordsWithErrors, importer.StatusComplete, importer.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("finish import %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("import %s is not processing", id)
	}
	return nil
}

func (s *Imports) SetErrorRef(ctx context.Context, id uuid.UUID, ref string) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE imports SET error_ref = $2, updated_at = now() WHERE id = $1`,
		id, ref,
	); err != nil {
		return fmt.Errorf("set import %s error ref: %w", id, err)
	}
	return nil
}

func (s *Imports) SetRemaining(ctx context.Context, id uuid.UUID, n int) error {
	if _, err := s.db.Exec(ctx, `
		UPDATE imports SET records_remaining = $2, updated_at = now() WHERE id = $1`,
		id, n,
	); err != nil {
		return fmt.Errorf("set import %s remaining: %w", id, err)
	}
	return nil
}

// DecrementRemaining subtracts n from the remaining-record count in a single
// UPDATE and returns the new value, so concurrent deletion batches each see
// a distinct count and exactly one observes zero.
func (s *Imports) DecrementRemaining(ctx context.Context, id uuid.UUID, n int) (int, error) {
	var remaining int
	err := s.db.QueryRow(ctx, `
		UPDATE imports
		SET records_remaining = records_remaining - $2, updated_at = now()
		WHERE id = $1
		RETURNING records_remaining`,
		id, n,
	).Scan(&remaining)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, &importer.NotFoundError{Kind: "import", ID: id.String()}
	}
	if err != nil {
		return 0, fmt.Errorf("decrement import %s remaining: %w", id, err)
	}
	return remaining, nil
}
