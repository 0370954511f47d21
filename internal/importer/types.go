// Package importer provides the core import/deletion pipeline: the Import
// lifecycle state machine, row-level record tracking, per-row error capture
// with a downloadable report, the resumable row-processing run, and batched
// idempotent deletion of everything an import produced.
//
// This package has no HTTP or queue dependencies and can be driven by any
// job dispatcher.
package importer

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Status is the lifecycle state of an Import.
//
// Statuses only ever move forward: queued -> processing -> complete,
// and for deletion, complete -> deleting -> deleted. The processing state
// may be re-entered by a resumed run, never by a backward transition.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusDeleting   Status = "deleting"
	StatusDeleted    Status = "deleted"
)

// statusRank orders statuses for forward-only checks.
var statusRank = map[Status]int{
	StatusQueued:     0,
	StatusProcessing: 1,
	StatusComplete:   2,
	StatusDeleting:   3,
	StatusDeleted:    4,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanTransition reports whether moving from s to next is a legal
// single-step forward transition.
func (s Status) CanTransition(next Status) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	return to == from+1
}

// Finished reports whether processing is over for this import.
// A finished import must never be reprocessed.
func (s Status) Finished() bool {
	return statusRank[s] >= statusRank[StatusComplete]
}

// Import is one user-initiated request to ingest a file into domain records.
type Import struct {
	ID                uuid.UUID
	ImportType        string
	FileRef           string // source blob reference
	ErrorRef          string // error report blob reference, empty if no errors yet
	Records           int    // rows processed by the most recent run
	RecordsWithErrors int    // failures captured by the most recent run
	Remaining         int    // live tracked records left to delete, set at deletion initiation
	Status            Status
	ImportedBy        string // submitting actor, notification recipient
	ImportedFor       string // actor the import was performed on behalf of
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// RecordState marks whether the domain record behind an ImportedRecord
// still exists.
type RecordState string

const (
	RecordCreated   RecordState = "created"
	RecordDestroyed RecordState = "destroyed"
)

// ImportedRecord links an Import to one domain record it created,
// enabling later bulk deletion.
type ImportedRecord struct {
	ID         uuid.UUID
	ImportID   uuid.UUID
	RecordType string // importer type that created the domain record
	RecordID   string // opaque domain record identifier
	State      RecordState
	CreatedAt  time.Time
}

// HeaderIndex maps lowercased column names to their position in a row.
type HeaderIndex map[string]int

// MakeHeaderIndex builds a HeaderIndex from a header row.
// Duplicate columns keep the first occurrence.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, name := range header {
		key := strings.ToLower(cleanCell(name))
		if _, exists := idx[key]; !exists {
			idx[key] = i
		}
	}
	return idx
}

// Row is one parsed data row handed to a RowImporter.
type Row struct {
	Line   int // 1-indexed line number in the source file, header included
	Header HeaderIndex
	Values []string
}

// Get returns the cleaned cell value for a column, or "" if the column
// is absent from the header or the row is short.
func (r Row) Get(column string) string {
	pos, ok := r.Header[strings.ToLower(column)]
	if !ok || pos >= len(r.Values) {
		return ""
	}
	return cleanCell(r.Values[pos])
}

// RowImporter converts one parsed row into a domain record of a single
// type, and knows how to delete a record it created. Variants form a
// closed set registered at startup; see Register.
type RowImporter struct {
	// Type is the unique import-type tag, e.g. "user".
	Type string

	// Label is a human-readable name for listings.
	Label string

	// RequiredColumns must all be present in the file header.
	RequiredColumns []string

	// ImportRow creates or updates the domain record for one row and
	// returns its identifier. A returned error is captured as a row
	// failure and never aborts the run.
	ImportRow func(ctx context.Context, db DBTX, row Row) (string, error)

	// DeleteRecord removes the domain record. Must tolerate the record
	// being already gone.
	DeleteRecord func(ctx context.Context, db DBTX, recordID string) error
}

// ImportStore persists Imports.
type ImportStore interface {
	Get(ctx context.Context, id uuid.UUID) (*Import, error)

	// SetStatus performs the guarded transition from -> to and reports
	// whether a row was actually updated. A false return means the import
	// was not in the expected state.
	SetStatus(ctx context.Context, id uuid.UUID, from, to Status) (bool, error)

	// FinishRun records the per-run counters and moves the import from
	// processing to complete.
	FinishRun(ctx context.Context, id uuid.UUID, records, recordsWithErrors int) error

	SetErrorRef(ctx context.Context, id uuid.UUID, ref string) error

	// SetRemaining snapshots the count of live tracked records at
	// deletion initiation.
	SetRemaining(ctx context.Context, id uuid.UUID, n int) error

	// DecrementRemaining atomically subtracts n and returns the new
	// remaining count. The batch that reaches zero is the sole finalizer.
	DecrementRemaining(ctx context.Context, id uuid.UUID, n int) (int, error)
}

// ImportedRecordStore persists the tracking rows for created domain records.
type ImportedRecordStore interface {
	// Create inserts a tracking row. Inserting the same
	// (import, record type, record id) twice is a no-op, which keeps
	// resumed runs from duplicating tracking rows.
	Create(ctx context.Context, rec *ImportedRecord) error

	Get(ctx context.Context, id uuid.UUID) (*ImportedRecord, error)

	// Destroy removes the tracking row.
	Destroy(ctx context.Context, id uuid.UUID) error

	// LiveIDs returns ids of records still marked created, in creation order.
	LiveIDs(ctx context.Context, importID uuid.UUID) ([]uuid.UUID, error)
}

// BlobStore reads the source file and writes the error report.
type BlobStore interface {
	Put(ctx context.Context, ref string, data []byte) error
	Get(ctx context.Context, ref string) ([]byte, error)
}

// FinishedNotice is the payload of an "import processing finished"
// notification.
type FinishedNotice struct {
	ImportID          uuid.UUID
	ImportType        string
	Recipient         string
	Records           int
	RecordsWithErrors int
	ErrorRef          string // empty when the run produced no errors
}

// DeletedNotice is the payload of an "import deletion finished" notification.
type DeletedNotice struct {
	ImportID   uuid.UUID
	ImportType string
	Recipient  string
}

// Notifier delivers completion notifications. Delivery is fire-and-forget:
// implementations log failures and never block the pipeline.
type Notifier interface {
	ImportFinished(ctx context.Context, n FinishedNotice)
	ImportDeleted(ctx context.Context, n DeletedNotice)
}
