package importer

import "fmt"

// NotFoundError indicates that a referenced Import or ImportedRecord does
// not exist. Fatal for a processing run; treated as already-deleted by the
// deleter's per-record lookups.
type NotFoundError struct {
	Kind string // "import" or "imported record"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

// ConfigurationError indicates that no RowImporter is registered for an
// import type. Surfaced immediately, never retried silently.
type ConfigurationError struct {
	ImportType string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no row importer registered for import type %q", e.ImportType)
}

// FileStructureError indicates the source file is unreadable, empty, or its
// header does not satisfy the required-column contract. Fatal to a run: the
// import stays in processing for operator resubmission.
type FileStructureError struct {
	Reason string
	Err    error // underlying cause, may be nil
}

func (e *FileStructureError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("file structure: %s: %v", e.Reason, e.Err)
	}
	return "file structure: " + e.Reason
}

func (e *FileStructureError) Unwrap() error { return e.Err }

// FormatMismatchError indicates an error-report merge encountered an
// existing report whose header does not match the new one. Fatal to the
// report upload only; counters and status are unaffected.
type FormatMismatchError struct {
	Existing []string
	Latest   []string
}

func (e *FormatMismatchError) Error() string {
	return fmt.Sprintf("error report header mismatch: existing %v, new %v", e.Existing, e.Latest)
}
