package importer

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// fakeImports is an in-memory ImportStore.
type fakeImports struct {
	imports    map[uuid.UUID]*Import
	failFinish bool
}

func newFakeImports(imps ...*Import) *fakeImports {
	f := &fakeImports{imports: make(map[uuid.UUID]*Import)}
	for _, imp := range imps {
		f.imports[imp.ID] = imp
	}
	return f
}

func (f *fakeImports) Get(_ context.Context, id uuid.UUID) (*Import, error) {
	imp, ok := f.imports[id]
	if !ok {
		return nil, &NotFoundError{Kind: "import", ID: id.String()}
	}
	cp := *imp
	return &cp, nil
}

func (f *fakeImports) SetStatus(_ context.Context, id uuid.UUID, from, to Status) (bool, error) {
	imp, ok := f.imports[id]
	if !ok {
		return false, &NotFoundError{Kind: "import", ID: id.String()}
	}
	if imp.Status != from {
		return false, nil
	}
	imp.Status = to
	return true, nil
}

func (f *fakeImports) FinishRun(_ context.Context, id uuid.UUID, records, recordsWithErrors int) error {
	if f.failFinish {
		return fmt.Errorf("finish refused")
	}
	imp, ok := f.imports[id]
	if !ok {
		return &NotFoundError{Kind: "import", ID: id.String()}
	}
	if imp.Status != StatusProcessing {
		return fmt.Errorf("import %s is not processing", id)
	}
	imp.Records = records
	imp.RecordsWithErrors = recordsWithErrors
	imp.Status = StatusComplete
	return nil
}

func (f *fakeImports) SetErrorRef(_ context.Context, id uuid.UUID, ref string) error {
	imp, ok := f.imports[id]
	if !ok {
		return &NotFoundError{Kind: "import", ID: id.String()}
	}
	imp.ErrorRef = ref
	return nil
}

func (f *fakeImports) SetRemaining(_ context.Context, id uuid.UUID, n int) error {
	imp, ok := f.imports[id]
	if !ok {
		return &NotFoundError{Kind: "import", ID: id.String()}
	}
	imp.Remaining = n
	return nil
}

func (f *fakeImports) DecrementRemaining(_ context.Context, id uuid.UUID, n int) (int, error) {
	imp, ok := f.imports[id]
	if !ok {
		return 0, &NotFoundError{Kind: "import", ID: id.String()}
	}
	imp.Remaining -= n
	return imp.Remaining, nil
}

// fakeRecords is an in-memory ImportedRecordStore preserving creation order.
type fakeRecords struct {
	byID  map[uuid.UUID]*ImportedRecord
	order []uuid.UUID
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{byID: make(map[uuid.UUID]*ImportedRecord)}
}

func (f *fakeRecords) Create(_ context.Context, rec *ImportedRecord) error {
	for _, existing := range f.byID {
		if existing.ImportID == rec.ImportID &&
			existing.RecordType == rec.RecordType &&
			existing.RecordID == rec.RecordID {
			return nil // unique key: silently keep the first
		}
	}
	cp := *rec
	f.byID[cp.ID] = &cp
	f.order = append(f.order, cp.ID)
	return nil
}

func (f *fakeRecords) Get(_ context.Context, id uuid.UUID) (*ImportedRecord, error) {
	rec, ok := f.byID[id]
	if !ok {
		return nil, &NotFoundError{Kind: "imported record", ID: id.String()}
	}
	cp := *rec
	return &cp, nil
}

func (f *fakeRecords) Destroy(_ context.Context, id uuid.UUID) error {
	delete(f.byID, id)
	return nil
}

func (f *fakeRecords) LiveIDs(_ context.Context, importID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, id := range f.order {
		rec, ok := f.byID[id]
		if ok && rec.ImportID == importID && rec.State == RecordCreated {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// all returns live records in creation order.
func (f *fakeRecords) all() []*ImportedRecord {
	var recs []*ImportedRecord
	for _, id := range f.order {
		if rec, ok := f.byID[id]; ok {
			recs = append(recs, rec)
		}
	}
	return recs
}

// fakeBlobs is an in-memory BlobStore.
type fakeBlobs struct {
	data     map[string][]byte
	failPuts bool
}

func newFakeBlobs() *fakeBlobs {
	return &fakeBlobs{data: make(map[string][]byte)}
}

func (f *fakeBlobs) Put(_ context.Context, ref string, data []byte) error {
	if f.failPuts {
		return fmt.Errorf("blob store unavailable")
	}
	f.data[ref] = append([]byte(nil), data...)
	return nil
}

func (f *fakeBlobs) Get(_ context.Context, ref string) ([]byte, error) {
	data, ok := f.data[ref]
	if !ok {
		return nil, fmt.Errorf("blob not found: %s", ref)
	}
	return data, nil
}

// fakeNotifier records notifications.
type fakeNotifier struct {
	finished []FinishedNotice
	deleted  []DeletedNotice
}

func (f *fakeNotifier) ImportFinished(_ context.Context, n FinishedNotice) {
	f.finished = append(f.finished, n)
}

func (f *fakeNotifier) ImportDeleted(_ context.Context, n DeletedNotice) {
	f.deleted = append(f.deleted, n)
}

// registerMemberImporter registers a test RowImporter for type "member":
// rows import by email, rows whose email lacks an "@" fail, and domain
// deletes are counted per record id. ClearRegistry is deferred to cleanup.
func registerMemberImporter(t interface {
	Cleanup(func())
	Helper()
}) (deletes map[string]int) {
	t.Helper()
	deletes = make(map[string]int)

	Register(RowImporter{
		Type:            "member",
		Label:           "Members",
		RequiredColumns: []string{"first_name", "email"},
		ImportRow: func(_ context.Context, _ DBTX, row Row) (string, error) {
			email := row.Get("email")
			if email == "" || !containsAt(email) {
				return "", fmt.Errorf("email %q is not a valid email address", email)
			}
			return email, nil
		},
		DeleteRecord: func(_ context.Context, _ DBTX, recordID string) error {
			deletes[recordID]++
			return nil
		},
	})
	t.Cleanup(ClearRegistry)
	return deletes
}

func containsAt(s string) bool {
	for _, r := range s {
		if r == '@' {
			return true
		}
	}
	return false
}
