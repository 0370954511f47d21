package importer

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
)

// newDeleterFixture wires a Deleter over fakes with a complete member
// import tracking n created records.
func newDeleterFixture(t *testing.T, n int) (*Deleter, *Import, *fakeImports, *fakeRecords, *fakeNotifier, map[string]int) {
	t.Helper()
	deletes := registerMemberImporter(t)

	imp := &Import{
		ID:         uuid.New(),
		ImportType: "member",
		Status:     StatusComplete,
		Records:    n,
		ImportedBy: "admin@example.org",
	}

	imports := newFakeImports(imp)
	records := newFakeRecords()
	notifier := &fakeNotifier{}
	for i := 0; i < n; i++ {
		rec := &ImportedRecord{
			ID:         uuid.New(),
			ImportID:   imp.ID,
			RecordType: "member",
			RecordID:   string(rune('a'+i)) + "@example.org",
			State:      RecordCreated,
		}
		if err := records.Create(context.Background(), rec); err != nil {
			t.Fatalf("seed record: %v", err)
		}
	}

	return NewDeleter(nil, imports, records, notifier), imp, imports, records, notifier, deletes
}

func TestInitiatePartitionsBatches(t *testing.T) {
	tests := []struct {
		name      string
		records   int
		batchSize int
		want      []int // batch lengths
	}{
		{name: "exact multiple", records: 4, batchSize: 2, want: []int{2, 2}},
		{name: "uneven tail", records: 5, batchSize: 2, want: []int{2, 2, 1}},
		{name: "single batch", records: 3, batchSize: 10, want: []int{3}},
		{name: "batch of one", records: 2, batchSize: 1, want: []int{1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, imp, imports, _, _, _ := newDeleterFixture(t, tt.records)

			batches, err := d.Initiate(context.Background(), imp.ID, tt.batchSize)
			if err != nil {
				t.Fatalf("Initiate() error = %v", err)
			}
			if len(batches) != len(tt.want) {
				t.Fatalf("batches = %d, want %d", len(batches), len(tt.want))
			}
			total := 0
			for i, b := range batches {
				if len(b) != tt.want[i] {
					t.Errorf("batch %d size = %d, want %d", i, len(b), tt.want[i])
				}
				total += len(b)
			}
			if total != tt.records {
				t.Errorf("partition covers %d records, want %d", total, tt.records)
			}

			got := imports.imports[imp.ID]
			if got.Status != StatusDeleting {
				t.Errorf("status = %s, want %s", got.Status, StatusDeleting)
			}
			if got.Remaining != tt.records {
				t.Errorf("remaining = %d, want %d", got.Remaining, tt.records)
			}
		})
	}
}

func TestInitiateRejections(t *testing.T) {
	t.Run("not complete", func(t *testing.T) {
		d, imp, imports, _, _, _ := newDeleterFixture(t, 3)
		imports.imports[imp.ID].Status = StatusProcessing

		_, err := d.Initiate(context.Background(), imp.ID, 2)
		if !errors.Is(err, ErrNotDeletable) {
			t.Fatalf("Initiate() error = %v, want ErrNotDeletable", err)
		}
	})

	t.Run("no live records", func(t *testing.T) {
		d, imp, _, _, _, _ := newDeleterFixture(t, 0)

		_, err := d.Initiate(context.Background(), imp.ID, 2)
		if !errors.Is(err, ErrNotDeletable) {
			t.Fatalf("Initiate() error = %v, want ErrNotDeletable", err)
		}
	})

	t.Run("second initiation", func(t *testing.T) {
		d, imp, _, _, _, _ := newDeleterFixture(t, 3)
		ctx := context.Background()

		if _, err := d.Initiate(ctx, imp.ID, 2); err != nil {
			t.Fatalf("first Initiate() error = %v", err)
		}
		_, err := d.Initiate(ctx, imp.ID, 2)
		if !errors.Is(err, ErrNotDeletable) {
			t.Fatalf("second Initiate() error = %v, want ErrNotDeletable", err)
		}
	})

	t.Run("bad batch size", func(t *testing.T) {
		d, imp, _, _, _, _ := newDeleterFixture(t, 3)

		if _, err := d.Initiate(context.Background(), imp.ID, 0); err == nil {
			t.Fatal("Initiate() with batch size 0 succeeded")
		}
	})

	t.Run("unknown import", func(t *testing.T) {
		d, _, _, _, _, _ := newDeleterFixture(t, 1)

		_, err := d.Initiate(context.Background(), uuid.New(), 2)
		var nf *NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("Initiate() error = %v, want NotFoundError", err)
		}
	})
}

func TestDeleteBatchFinalBatchFinalizes(t *testing.T) {
	d, imp, imports, records, notifier, deletes := newDeleterFixture(t, 3)
	ctx := context.Background()

	batches, err := d.Initiate(ctx, imp.ID, 2)
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("batches = %d, want 2", len(batches))
	}

	if err := d.DeleteBatch(ctx, imp.ID, batches[0]); err != nil {
		t.Fatalf("first batch error = %v", err)
	}
	got := imports.imports[imp.ID]
	if got.Status != StatusDeleting {
		t.Errorf("status after first batch = %s, want %s", got.Status, StatusDeleting)
	}
	if got.Remaining != 1 {
		t.Errorf("remaining after first batch = %d, want 1", got.Remaining)
	}
	if len(notifier.deleted) != 0 {
		t.Errorf("deletion notifications after first batch = %d, want 0", len(notifier.deleted))
	}

	if err := d.DeleteBatch(ctx, imp.ID, batches[1]); err != nil {
		t.Fatalf("final batch error = %v", err)
	}
	got = imports.imports[imp.ID]
	if got.Status != StatusDeleted {
		t.Errorf("status after final batch = %s, want %s", got.Status, StatusDeleted)
	}
	if got.Remaining != 0 {
		t.Errorf("remaining after final batch = %d, want 0", got.Remaining)
	}
	if len(notifier.deleted) != 1 {
		t.Fatalf("deletion notifications = %d, want exactly 1", len(notifier.deleted))
	}
	if n := notifier.deleted[0]; n.ImportID != imp.ID || n.Recipient != "admin@example.org" {
		t.Errorf("unexpected notification payload: %+v", n)
	}

	if len(deletes) != 3 {
		t.Errorf("domain deletes = %d, want 3", len(deletes))
	}
	if live := records.all(); len(live) != 0 {
		t.Errorf("live tracked records = %d, want 0", len(live))
	}
}

func TestDeleteBatchRetryIsIdempotent(t *testing.T) {
	d, imp, imports, _, notifier, deletes := newDeleterFixture(t, 3)
	ctx := context.Background()

	batches, err := d.Initiate(ctx, imp.ID, 2)
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}

	if err := d.DeleteBatch(ctx, imp.ID, batches[0]); err != nil {
		t.Fatalf("first batch error = %v", err)
	}
	// Redelivery of the same batch: every record is already gone, so the
	// retry must not decrement remaining or touch the domain again.
	if err := d.DeleteBatch(ctx, imp.ID, batches[0]); err != nil {
		t.Fatalf("retried batch error = %v", err)
	}

	got := imports.imports[imp.ID]
	if got.Remaining != 1 {
		t.Errorf("remaining after retry = %d, want 1", got.Remaining)
	}
	if got.Status != StatusDeleting {
		t.Errorf("status after retry = %s, want %s", got.Status, StatusDeleting)
	}
	for id, n := range deletes {
		if n != 1 {
			t.Errorf("record %s deleted %d times, want 1", id, n)
		}
	}

	if err := d.DeleteBatch(ctx, imp.ID, batches[1]); err != nil {
		t.Fatalf("final batch error = %v", err)
	}
	if len(notifier.deleted) != 1 {
		t.Errorf("deletion notifications = %d, want exactly 1", len(notifier.deleted))
	}
}

func TestDeleteBatchSettlesDestroyedRecords(t *testing.T) {
	d, imp, imports, records, notifier, deletes := newDeleterFixture(t, 2)
	ctx := context.Background()

	batches, err := d.Initiate(ctx, imp.ID, 10)
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	// One record was destroyed outside the batch flow after initiation.
	records.byID[batches[0][0]].State = RecordDestroyed

	if err := d.DeleteBatch(ctx, imp.ID, batches[0]); err != nil {
		t.Fatalf("DeleteBatch() error = %v", err)
	}
	if len(deletes) != 1 {
		t.Errorf("domain deletes = %d, want 1 (destroyed record left alone)", len(deletes))
	}

	// The destroyed record still counts toward the remaining total, so the
	// batch finalizes instead of stranding the import in deleting.
	got := imports.imports[imp.ID]
	if got.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", got.Remaining)
	}
	if got.Status != StatusDeleted {
		t.Errorf("status = %s, want %s", got.Status, StatusDeleted)
	}
	if len(notifier.deleted) != 1 {
		t.Errorf("deletion notifications = %d, want 1", len(notifier.deleted))
	}
}

func TestDeleteBatchPartialFailureStillCountsProgress(t *testing.T) {
	d, imp, imports, records, _, _ := newDeleterFixture(t, 3)
	ctx := context.Background()

	batches, err := d.Initiate(ctx, imp.ID, 3)
	if err != nil {
		t.Fatalf("Initiate() error = %v", err)
	}
	// Second record's type lost its importer, so the batch fails there.
	records.byID[batches[0][1]].RecordType = "ghost"

	err = d.DeleteBatch(ctx, imp.ID, batches[0])
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("DeleteBatch() error = %v, want ConfigurationError", err)
	}

	// The record deleted before the failure must already be accounted for,
	// otherwise the retry could never bring remaining to zero.
	if got := imports.imports[imp.ID].Remaining; got != 2 {
		t.Errorf("remaining = %d, want 2", got)
	}
}

func TestDeleteBatchUnknownImport(t *testing.T) {
	d, _, _, _, _, _ := newDeleterFixture(t, 1)

	err := d.DeleteBatch(context.Background(), uuid.New(), []uuid.UUID{uuid.New()})
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("DeleteBatch() error = %v, want NotFoundError", err)
	}
}
