package importer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
)

// ErrNotDeletable is returned when deletion is initiated on an import that
// is not complete, or that produced no live records.
var ErrNotDeletable = errors.New("import cannot be deleted")

// Deleter orchestrates batched deletion of everything an Import produced.
// Batches are caller-partitioned and may run concurrently on different
// workers; each record-level deletion is idempotent, and finalization uses
// atomic remaining-count accounting so exactly one batch flips the import
// to deleted.
type Deleter struct {
	db       DBTX
	imports  ImportStore
	records  ImportedRecordStore
	notifier Notifier
}

// NewDeleter creates a Deleter. db is handed to RowImporters for
// domain-record deletes.
func NewDeleter(db DBTX, imports ImportStore, records ImportedRecordStore, notifier Notifier) *Deleter {
	return &Deleter{
		db:       db,
		imports:  imports,
		records:  records,
		notifier: notifier,
	}
}

// Initiate moves a complete import to deleting and partitions its live
// tracked records into batches of batchSize for the caller to enqueue.
// The transition happens at most once per import; a second call fails.
func (d *Deleter) Initiate(ctx context.Context, importID uuid.UUID, batchSize int) ([][]uuid.UUID, error) {
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}

	imp, err := d.imports.Get(ctx, importID)
	if err != nil {
		return nil, err
	}
	if imp.Status != StatusComplete {
		return nil, fmt.Errorf("%w: status is %s, want %s", ErrNotDeletable, imp.Status, StatusComplete)
	}

	ids, err := d.records.LiveIDs(ctx, importID)
	if err != nil {
		return nil, fmt.Errorf("list live records: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no records to delete", ErrNotDeletable)
	}

	claimed, err := d.imports.SetStatus(ctx, importID, StatusComplete, StatusDeleting)
	if err != nil {
		return nil, fmt.Errorf("mark import deleting: %w", err)
	}
	if !claimed {
		return nil, fmt.Errorf("%w: deletion already initiated", ErrNotDeletable)
	}

	if err := d.imports.SetRemaining(ctx, importID, len(ids)); err != nil {
		return nil, fmt.Errorf("set remaining count: %w", err)
	}

	batches := make([][]uuid.UUID, 0, (len(ids)+batchSize-1)/batchSize)
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[start:end])
	}

	slog.Info("import deletion initiated",
		"import_id", importID,
		"records", len(ids),
		"batches", len(batches),
	)
	return batches, nil
}

// DeleteBatch deletes the eligible records of one batch. Records already
// gone are skipped without error; records whose domain record was removed
// by other means are settled without touching the domain. Both paths keep
// overlapping and retried batches safe.
//
// The batch whose atomic decrement brings the import's remaining count to
// zero finalizes the import: deleting -> deleted plus a single deletion
// notification.
func (d *Deleter) DeleteBatch(ctx context.Context, importID uuid.UUID, recordIDs []uuid.UUID) error {
	imp, err := d.imports.Get(ctx, importID)
	if err != nil {
		return err
	}

	settled := 0
	var batchErr error

	for _, id := range recordIDs {
		rec, err := d.records.Get(ctx, id)
		if err != nil {
			var nf *NotFoundError
			if errors.As(err, &nf) {
				continue // already deleted by a concurrent or retried batch
			}
			batchErr = fmt.Errorf("look up record %s: %w", id, err)
			break
		}
		if rec.State != RecordCreated {
			// Still present in the batch, so it was counted at initiation;
			// settle it or the remaining count never reaches zero.
			if err := d.records.Destroy(ctx, rec.ID); err != nil {
				batchErr = fmt.Errorf("destroy tracking record %s: %w", rec.ID, err)
				break
			}
			settled++
			continue
		}

		ri, ok := Lookup(rec.RecordType)
		if !ok {
			batchErr = &ConfigurationError{ImportType: rec.RecordType}
			break
		}

		if err := ri.DeleteRecord(ctx, d.db, rec.RecordID); err != nil {
			batchErr = fmt.Errorf("delete %s record %s: %w", rec.RecordType, rec.RecordID, err)
			break
		}
		if err := d.records.Destroy(ctx, rec.ID); err != nil {
			batchErr = fmt.Errorf("destroy tracking record %s: %w", rec.ID, err)
			break
		}
		settled++
	}

	// Progress made before a failure still counts toward finalization,
	// otherwise a retried batch could strand the import in deleting.
	remaining := -1
	if settled > 0 {
		remaining, err = d.imports.DecrementRemaining(ctx, importID, settled)
		if err != nil {
			if batchErr != nil {
				return fmt.Errorf("%v; decrement remaining also failed: %w", batchErr, err)
			}
			return fmt.Errorf("decrement remaining: %w", err)
		}
	}
	if batchErr != nil {
		return batchErr
	}

	if remaining == 0 {
		finalized, err := d.imports.SetStatus(ctx, importID, StatusDeleting, StatusDeleted)
		if err != nil {
			return fmt.Errorf("mark import deleted: %w", err)
		}
		if finalized {
			d.notifier.ImportDeleted(ctx, DeletedNotice{
				ImportID:   importID,
				ImportType: imp.ImportType,
				Recipient:  imp.ImportedBy,
			})
			slog.Info("import deletion finished", "import_id", importID)
		}
	}

	slog.Debug("delete batch processed",
		"import_id", importID,
		"batch_size", len(recordIDs),
		"settled", settled,
	)
	return nil
}
