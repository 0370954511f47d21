package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/csvflow/importer/internal/importer"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Records is the pgx-backed importer.ImportedRecordStore.
type Records struct {
	db importer.DBTX
}

// NewRecords creates an imported-record store on the given pool or transaction.
func NewRecords(db importer.DBTX) *Records {
	return &Records{db: db}
}

// Create inserts a tracking row. The unique key on
// (import_id, record_type, record_id) makes re-runs of overlapping rows a
// no-op instead of a duplicate.
func (s *Records) Create(ctx context.Context, rec *importer.ImportedRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.State == "" {
		rec.State = importer.RecordCreated
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO imported_records (id, import_id, record_type, record_id, state)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (import_id, record_type, record_id) DO NOTHING`,
		rec.ID, rec.ImportID, rec.RecordType, rec.RecordID, rec.State,
	)
	if err != nil {
		return fmt.Errorf("insert imported record: %w", err)
	}
	return nil
}

func (s *Records) Get(ctx context.Context, id uuid.UUID) (*importer.ImportedRecord, error) {
	var rec importer.ImportedRecord
	err := s.db.QueryRow(ctx, `
		SELECT id, import_id, record_type, record_id, state, created_at
		FROM imported_records WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.ImportID, &rec.RecordType, &rec.RecordID, &rec.State, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &importer.NotFoundError{Kind: "imported record", ID: id.String()}
	}
	if err != nil {
		return nil, fmt.Errorf("get imported record %s: %w", id, err)
	}
	return &rec, nil
}

func (s *Records) Destroy(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM imported_records WHERE id = $1`, id); err != nil {
		return fmt.Errorf("destroy imported record %s: %w", id, err)
	}
	return nil
}

// LiveIDs returns, in creation order, the ids of tracking rows whose domain
// record still exists.
func (s *Records) LiveIDs(ctx context.Context, importID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id FROM imported_records
		WHERE import_id = $1 AND state = $2
		ORDER BY created_at, id`,
		importID, importer.RecordCreated,
	)
	if err != nil {
		return nil, fmt.Errorf("list live records for import %s: %w", importID, err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
