package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// jobSource is the queue surface the worker needs. Satisfied by *Queue;
// narrowed to an interface so tests can drive the loop with a fake.
type jobSource interface {
	ClaimNext(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, reason string, maxAttempts int) error
}

// ImportRunner runs one processing run for an import.
type ImportRunner interface {
	Process(ctx context.Context, importID uuid.UUID, startRow int) error
}

// BatchDeleter deletes one batch of an import's records.
type BatchDeleter interface {
	DeleteBatch(ctx context.Context, importID uuid.UUID, recordIDs []uuid.UUID) error
}

// WorkerConfig tunes the worker pool.
type WorkerConfig struct {
	Workers      int
	PollInterval time.Duration
	MaxAttempts  int
	JobTimeout   time.Duration
}

// Worker polls the queue and dispatches jobs to the processor and deleter.
type Worker struct {
	queue     jobSource
	processor ImportRunner
	deleter   BatchDeleter
	cfg       WorkerConfig

	once sync.Once
	wg   sync.WaitGroup
}

// NewWorker creates a worker pool. Zero config values get defaults.
func NewWorker(queue jobSource, processor ImportRunner, deleter BatchDeleter, cfg WorkerConfig) *Worker {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 10 * time.Minute
	}

	return &Worker{
		queue:     queue,
		processor: processor,
		deleter:   deleter,
		cfg:       cfg,
	}
}

// Start launches the worker goroutines. Safe to call once; the loops exit
// when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.once.Do(func() {
		for i := 0; i < w.cfg.Workers; i++ {
			w.wg.Add(1)
			go func() {
				defer w.wg.Done()
				w.loop(ctx)
			}()
		}
	})
}

// Wait blocks until all worker goroutines have exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

func (w *Worker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.queue.ClaimNext(ctx)
		if err != nil {
			slog.Error("claim next job failed", "error", err)
			if !sleepWithContext(ctx, w.cfg.PollInterval) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepWithContext(ctx, w.cfg.PollInterval) {
				return
			}
			continue
		}

		w.run(ctx, job)
	}
}

// run dispatches one claimed job and records its outcome on the queue.
func (w *Worker) run(ctx context.Context, job *Job) {
	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in job",
				"job_id", job.ID,
				"kind", job.Kind,
				"panic", r,
			)
			if err := w.queue.Fail(ctx, job.ID, fmt.Sprintf("panic: %v", r), w.cfg.MaxAttempts); err != nil {
				slog.Error("mark job failed", "job_id", job.ID, "error", err)
			}
		}
	}()

	err := w.dispatch(jobCtx, job)
	if err != nil {
		slog.Error("job failed",
			"job_id", job.ID,
			"kind", job.Kind,
			"attempt", job.Attempts,
			"error", err,
		)
		if failErr := w.queue.Fail(ctx, job.ID, err.Error(), w.cfg.MaxAttempts); failErr != nil {
			slog.Error("mark job failed", "job_id", job.ID, "error", failErr)
		}
		return
	}

	if err := w.queue.Complete(ctx, job.ID); err != nil {
		slog.Error("mark job complete", "job_id", job.ID, "error", err)
	}
}

func (w *Worker) dispatch(ctx context.Context, job *Job) error {
	switch job.Kind {
	case KindProcessImport:
		var p ProcessPayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode process payload: %w", err)
		}
		return w.processor.Process(ctx, p.ImportID, p.StartRow)

	case KindDeleteBatch:
		var p DeletePayload
		if err := json.Unmarshal(job.Payload, &p); err != nil {
			return fmt.Errorf("decode delete payload: %w", err)
		}
		return w.deleter.DeleteBatch(ctx, p.ImportID, p.RecordIDs)

	default:
		return fmt.Errorf("unknown job kind %q", job.Kind)
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
