// Package jobs provides the asynchronous dispatch layer: a Postgres-backed
// job queue and a worker pool that drives the import processor and the
// batch deleter.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/csvflow/importer/internal/importer"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Kind identifies what a job does.
type Kind string

const (
	KindProcessImport Kind = "process_import"
	KindDeleteBatch   Kind = "delete_batch"
)

// Job is one unit of queued background work.
type Job struct {
	ID        uuid.UUID
	Kind      Kind
	Payload   []byte
	Attempts  int
	CreatedAt time.Time
}

// ProcessPayload is the payload of a process_import job.
type ProcessPayload struct {
	ImportID uuid.UUID `json:"import_id"`
	StartRow int       `json:"start_row"`
}

// DeletePayload is the payload of a delete_batch job.
type DeletePayload struct {
	ImportID  uuid.UUID   `json:"import_id"`
	RecordIDs []uuid.UUID `json:"record_ids"`
}

// claimLease is how long a running job may sit without progress before
// another worker may reclaim it. Covers workers that died mid-job; must
// exceed the worker's job timeout so live jobs are never stolen.
const claimLease = 15 * time.Minute

// Queue is a Postgres-backed job queue. Claims use FOR UPDATE SKIP LOCKED
// so any number of workers can poll the same table without contention.
type Queue struct {
	db importer.DBTX
}

// NewQueue creates a queue on the given pool.
func NewQueue(db importer.DBTX) *Queue {
	return &Queue{db: db}
}

// Enqueue adds a job and returns its id.
func (q *Queue) Enqueue(ctx context.Context, kind Kind, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal %s payload: %w", kind, err)
	}

	id := uuid.New()
	if _, err := q.db.Exec(ctx, `
		INSERT INTO jobs (id, kind, payload) VALUES ($1, $2, $3)`,
		id, kind, data,
	); err != nil {
		return uuid.Nil, fmt.Errorf("enqueue %s job: %w", kind, err)
	}
	return id, nil
}

// ClaimNext atomically claims the oldest claimable job, or returns nil
// when there is none. A job counts as claimable when it is queued, or when
// it has been running longer than the claim lease and its worker is
// presumed dead.
func (q *Queue) ClaimNext(ctx context.Context) (*Job, error) {
	var job Job
	err := q.db.QueryRow(ctx, `
		UPDATE jobs SET status = 'running', attempts = attempts + 1, updated_at = now()
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'queued'
			   OR (status = 'running' AND updated_at < now() - $1::interval)
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, kind, payload, attempts, created_at`,
		claimLease,
	).Scan(&job.ID, &job.Kind, &job.Payload, &job.Attempts, &job.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}
	return &job, nil
}

// Complete marks a job done.
func (q *Queue) Complete(ctx context.Context, id uuid.UUID) error {
	if _, err := q.db.Exec(ctx, `
		UPDATE jobs SET status = 'done', last_error = NULL, updated_at = now()
		WHERE id = $1`, id,
	); err != nil {
		return fmt.Errorf("complete job %s: %w", id, err)
	}
	return nil
}

// Fail records a job failure. Jobs under the attempt cap go back to queued
// for another worker; the rest stay failed for operator attention.
func (q *Queue) Fail(ctx context.Context, id uuid.UUID, reason string, maxAttempts int) error {
	if _, err := q.db.Exec(ctx, `
		UPDATE jobs
		SET status = CASE WHEN attempts < $3 THEN 'queued' ELSE 'failed' END,
		    last_error = $2,
		    updated_at = now()
		WHERE id = $1`,
		id, truncateReason(reason), maxAttempts,
	); err != nil {
		return fmt.Errorf("fail job %s: %w", id, err)
	}
	return nil
}

func truncateReason(reason string) string {
	const maxLen = 1000
	if len(reason) <= maxLen {
		return reason
	}
	return reason[:maxLen]
}
