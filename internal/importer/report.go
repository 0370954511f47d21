package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// errorColumn is the trailing column appended to the original headers in
// an error report.
const errorColumn = "errors"

// ReportBuilder accumulates failed rows during a run and serializes them
// into a tab-separated report: one row per failed input row, original cells
// first, the failure message last.
type ReportBuilder struct {
	header []string
	rows   [][]string
}

// NewReportBuilder creates a builder for a file with the given header row.
func NewReportBuilder(header []string) *ReportBuilder {
	return &ReportBuilder{header: cleanHeader(header)}
}

// Add records one failed row with its failure message. The row is padded
// to the header width so every report row has the same shape.
func (b *ReportBuilder) Add(row []string, message string) {
	out := make([]string, len(b.header)+1)
	for i := range b.header {
		if i < len(row) {
			out[i] = row[i]
		}
	}
	out[len(b.header)] = message
	b.rows = append(b.rows, out)
}

// Len returns the number of failed rows collected so far.
func (b *ReportBuilder) Len() int {
	return len(b.rows)
}

// Serialize produces the tab-separated report bytes: a header row naming
// the original columns plus the error column, then one row per failure in
// the order encountered.
func (b *ReportBuilder) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = '\t'

	if err := w.Write(append(append([]string{}, b.header...), errorColumn)); err != nil {
		return nil, fmt.Errorf("write report header: %w", err)
	}
	for _, row := range b.rows {
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write report row: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush report: %w", err)
	}
	return buf.Bytes(), nil
}

// MergeReports combines a previously stored report with a new run's report
// into a single report with one header: existing rows first, new rows
// second, nothing dropped or reordered. The headers must match exactly;
// a mismatch returns a FormatMismatchError.
func MergeReports(existing, latest []byte) ([]byte, error) {
	oldRecords, err := parseReport(existing)
	if err != nil {
		return nil, fmt.Errorf("parse existing report: %w", err)
	}
	newRecords, err := parseReport(latest)
	if err != nil {
		return nil, fmt.Errorf("parse new report: %w", err)
	}

	if len(oldRecords) == 0 {
		return latest, nil
	}
	if len(newRecords) == 0 {
		return existing, nil
	}

	if !equalHeader(oldRecords[0], newRecords[0]) {
		return nil, &FormatMismatchError{Existing: oldRecords[0], Latest: newRecords[0]}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = '\t'

	if err := w.WriteAll(oldRecords); err != nil {
		return nil, fmt.Errorf("write existing rows: %w", err)
	}
	if err := w.WriteAll(newRecords[1:]); err != nil {
		return nil, fmt.Errorf("write new rows: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush merged report: %w", err)
	}
	return buf.Bytes(), nil
}

func parseReport(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

func equalHeader(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if cleanCell(a[i]) != cleanCell(b[i]) {
			return false
		}
	}
	return true
}
