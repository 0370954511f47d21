package importer

import (
	"context"
	"testing"
)

func stubImporter(importType string) RowImporter {
	return RowImporter{
		Type:            importType,
		Label:           importType,
		RequiredColumns: []string{"name"},
		ImportRow: func(_ context.Context, _ DBTX, _ Row) (string, error) {
			return "", nil
		},
		DeleteRecord: func(_ context.Context, _ DBTX, _ string) error {
			return nil
		},
	}
}

func TestRegisterAndLookup(t *testing.T) {
	t.Cleanup(ClearRegistry)

	Register(stubImporter("contact"))

	ri, ok := Lookup("contact")
	if !ok {
		t.Fatal("Lookup(contact) not found after Register")
	}
	if ri.Type != "contact" || len(ri.RequiredColumns) != 1 {
		t.Errorf("unexpected importer returned: %+v", ri)
	}

	if _, ok := Lookup("pledge"); ok {
		t.Error("Lookup(pledge) found an importer that was never registered")
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	t.Cleanup(ClearRegistry)

	Register(stubImporter("contact"))

	defer func() {
		if recover() == nil {
			t.Error("registering a duplicate type did not panic")
		}
	}()
	Register(stubImporter("contact"))
}

func TestRegisterEmptyTypePanics(t *testing.T) {
	t.Cleanup(ClearRegistry)

	defer func() {
		if recover() == nil {
			t.Error("registering an empty type did not panic")
		}
	}()
	Register(stubImporter(""))
}

func TestTypesSorted(t *testing.T) {
	t.Cleanup(ClearRegistry)

	Register(stubImporter("pledge"))
	Register(stubImporter("contact"))
	Register(stubImporter("event"))

	got := Types()
	want := []string{"contact", "event", "pledge"}
	if len(got) != len(want) {
		t.Fatalf("Types() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Types() = %v, want %v", got, want)
		}
	}
}
