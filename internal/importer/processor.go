package importer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

// Processor orchestrates one run of row ingestion for an Import: status
// transitions, row iteration with an optional start offset, delegation to
// the registered RowImporter, error aggregation, per-run counters, and the
// completion notification.
type Processor struct {
	db       DBTX
	imports  ImportStore
	records  ImportedRecordStore
	blobs    BlobStore
	notifier Notifier
}

// NewProcessor creates a Processor. db is handed to RowImporters for
// domain-record writes.
func NewProcessor(db DBTX, imports ImportStore, records ImportedRecordStore, blobs BlobStore, notifier Notifier) *Processor {
	return &Processor{
		db:       db,
		imports:  imports,
		records:  records,
		blobs:    blobs,
		notifier: notifier,
	}
}

// Process runs row ingestion for an import, starting at the zero-based
// data-row index startRow (header excluded).
//
// A single row's failure is captured in the error report and never aborts
// the run. File-level failures are fatal: the import stays in processing
// and the error is surfaced to the caller for operator retry. Calling
// Process on an import that is already complete is a no-op.
func (p *Processor) Process(ctx context.Context, importID uuid.UUID, startRow int) error {
	imp, err := p.imports.Get(ctx, importID)
	if err != nil {
		return err
	}

	if imp.Status.Finished() {
		slog.Info("import already processed, skipping",
			"import_id", importID,
			"status", imp.Status,
		)
		return nil
	}

	if imp.Status == StatusQueued {
		if _, err := p.imports.SetStatus(ctx, importID, StatusQueued, StatusProcessing); err != nil {
			return fmt.Errorf("mark import processing: %w", err)
		}
	}

	ri, ok := Lookup(imp.ImportType)
	if !ok {
		return &ConfigurationError{ImportType: imp.ImportType}
	}

	data, err := p.blobs.Get(ctx, imp.FileRef)
	if err != nil {
		return &FileStructureError{Reason: "read source file " + imp.FileRef, Err: err}
	}

	rows, err := parseFile(sanitizeUTF8(data))
	if err != nil {
		return &FileStructureError{Reason: "parse source file", Err: err}
	}
	if len(rows) == 0 {
		return &FileStructureError{Reason: "file is empty"}
	}

	header := cleanHeader(rows[0])
	headerIdx := MakeHeaderIndex(header)
	if missing := missingColumns(ri.RequiredColumns, headerIdx); len(missing) > 0 {
		return &FileStructureError{
			Reason: "missing required columns: " + strings.Join(missing, ", "),
		}
	}

	dataRows := rows[1:]
	if startRow < 0 {
		startRow = 0
	}
	if startRow > len(dataRows) {
		startRow = len(dataRows)
	}

	report := NewReportBuilder(header)
	processed := 0

	for i, row := range dataRows[startRow:] {
		line := startRow + i + 2 // 1-indexed, after header

		if isEmptyRow(row) {
			continue
		}
		processed++

		recordID, err := ri.ImportRow(ctx, p.db, Row{
			Line:   line,
			Header: headerIdx,
			Values: row,
		})
		if err != nil {
			report.Add(row, err.Error())
			continue
		}

		rec := &ImportedRecord{
			ID:         uuid.New(),
			ImportID:   importID,
			RecordType: ri.Type,
			RecordID:   recordID,
			State:      RecordCreated,
		}
		if err := p.records.Create(ctx, rec); err != nil {
			report.Add(row, fmt.Sprintf("track imported record: %v", err))
		}
	}

	// Counters and status commit first; a report upload failure must not
	// undo them.
	if err := p.imports.FinishRun(ctx, importID, processed, report.Len()); err != nil {
		return fmt.Errorf("finish import run: %w", err)
	}

	errorRef := imp.ErrorRef
	if report.Len() > 0 {
		ref, err := p.uploadReport(ctx, imp, report)
		if err != nil {
			slog.Error("error report upload failed, counters are still accurate",
				"import_id", importID,
				"error", err,
			)
		} else {
			errorRef = ref
		}
	}

	p.notifier.ImportFinished(ctx, FinishedNotice{
		ImportID:          importID,
		ImportType:        imp.ImportType,
		Recipient:         imp.ImportedBy,
		Records:           processed,
		RecordsWithErrors: report.Len(),
		ErrorRef:          errorRef,
	})

	slog.Info("import run finished",
		"import_id", importID,
		"import_type", imp.ImportType,
		"start_row", startRow,
		"records", processed,
		"records_with_errors", report.Len(),
	)
	return nil
}

// uploadReport serializes the run's error report, appends it to any report
// stored by a prior run of the same import, uploads the result, and records
// the blob reference on the import.
func (p *Processor) uploadReport(ctx context.Context, imp *Import, report *ReportBuilder) (string, error) {
	data, err := report.Serialize()
	if err != nil {
		return "", err
	}

	if imp.ErrorRef != "" {
		existing, err := p.blobs.Get(ctx, imp.ErrorRef)
		if err != nil {
			return "", fmt.Errorf("read stored report %s: %w", imp.ErrorRef, err)
		}
		if data, err = MergeReports(existing, data); err != nil {
			return "", err
		}
	}

	ref := imp.ErrorRef
	if ref == "" {
		ref = fmt.Sprintf("reports/%s.tsv", imp.ID)
	}
	if err := p.blobs.Put(ctx, ref, data); err != nil {
		return "", fmt.Errorf("upload report %s: %w", ref, err)
	}
	if err := p.imports.SetErrorRef(ctx, imp.ID, ref); err != nil {
		return "", fmt.Errorf("record report reference: %w", err)
	}
	return ref, nil
}
