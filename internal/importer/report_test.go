package importer

import (
	"errors"
	"strings"
	"testing"
)

func TestReportBuilderSerialize(t *testing.T) {
	b := NewReportBuilder([]string{"first_name", "email"})
	b.Add([]string{"Ann", "nope"}, "email \"nope\" is not valid")
	b.Add([]string{"Ben"}, "email is missing") // short row, padded

	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", b.Len())
	}

	data, err := b.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	records, err := parseReport(data)
	if err != nil {
		t.Fatalf("parse report: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("report rows = %d, want 3", len(records))
	}
	if !equalStrings(records[0], []string{"first_name", "email", "errors"}) {
		t.Errorf("header = %v", records[0])
	}
	if !equalStrings(records[1], []string{"Ann", "nope", `email "nope" is not valid`}) {
		t.Errorf("row 1 = %v", records[1])
	}
	if !equalStrings(records[2], []string{"Ben", "", "email is missing"}) {
		t.Errorf("row 2 = %v (short rows must pad to header width)", records[2])
	}

	// Tab-separated, one tab between the two header cells.
	line, _, _ := strings.Cut(string(data), "\n")
	if line != "first_name\temail\terrors" {
		t.Errorf("serialized header line = %q", line)
	}
}

func TestReportBuilderTruncatesLongRows(t *testing.T) {
	b := NewReportBuilder([]string{"name"})
	b.Add([]string{"Ann", "extra", "cells"}, "boom")

	data, err := b.Serialize()
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	records, err := parseReport(data)
	if err != nil {
		t.Fatalf("parse report: %v", err)
	}
	if !equalStrings(records[1], []string{"Ann", "boom"}) {
		t.Errorf("row = %v, want extra cells dropped", records[1])
	}
}

func serializeReport(t *testing.T, header []string, rows ...[]string) []byte {
	t.Helper()
	b := NewReportBuilder(header)
	for _, row := range rows {
		b.Add(row[:len(row)-1], row[len(row)-1])
	}
	data, err := b.Serialize()
	if err != nil {
		t.Fatalf("serialize report: %v", err)
	}
	return data
}

func TestMergeReportsAppendsInOrder(t *testing.T) {
	existing := serializeReport(t, []string{"first_name", "email"},
		[]string{"Ann", "nope", "bad email"},
	)
	latest := serializeReport(t, []string{"first_name", "email"},
		[]string{"Ben", "also-nope", "bad email"},
		[]string{"Cal", "", "email is missing"},
	)

	merged, err := MergeReports(existing, latest)
	if err != nil {
		t.Fatalf("MergeReports() error = %v", err)
	}

	records, err := parseReport(merged)
	if err != nil {
		t.Fatalf("parse merged report: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("merged rows = %d, want 4 (one header, three failures)", len(records))
	}
	if records[0][2] != "errors" {
		t.Errorf("merged header = %v", records[0])
	}
	names := []string{records[1][0], records[2][0], records[3][0]}
	if names[0] != "Ann" || names[1] != "Ben" || names[2] != "Cal" {
		t.Errorf("merged row order = %v, want existing rows first", names)
	}
}

func TestMergeReportsEmptySides(t *testing.T) {
	report := serializeReport(t, []string{"name"}, []string{"Ann", "boom"})

	merged, err := MergeReports(nil, report)
	if err != nil {
		t.Fatalf("MergeReports(nil, report) error = %v", err)
	}
	if string(merged) != string(report) {
		t.Error("merging into an empty report changed the report")
	}

	merged, err = MergeReports(report, nil)
	if err != nil {
		t.Fatalf("MergeReports(report, nil) error = %v", err)
	}
	if string(merged) != string(report) {
		t.Error("merging an empty report changed the existing report")
	}
}

func TestMergeReportsHeaderMismatch(t *testing.T) {
	existing := serializeReport(t, []string{"first_name", "email"},
		[]string{"Ann", "nope", "bad email"},
	)
	latest := serializeReport(t, []string{"full_name", "email"},
		[]string{"Ben Smith", "nope", "bad email"},
	)

	_, err := MergeReports(existing, latest)
	var fme *FormatMismatchError
	if !errors.As(err, &fme) {
		t.Fatalf("MergeReports() error = %v, want FormatMismatchError", err)
	}
	if len(fme.Existing) != 3 || fme.Existing[0] != "first_name" {
		t.Errorf("mismatch error existing header = %v", fme.Existing)
	}
	if len(fme.Latest) != 3 || fme.Latest[0] != "full_name" {
		t.Errorf("mismatch error latest header = %v", fme.Latest)
	}
}

func TestMergeReportsHeaderWhitespaceTolerant(t *testing.T) {
	existing := []byte("name\terrors\nAnn\tboom\n")
	latest := []byte(" name \terrors\nBen\tboom\n")

	merged, err := MergeReports(existing, latest)
	if err != nil {
		t.Fatalf("MergeReports() error = %v", err)
	}
	records, err := parseReport(merged)
	if err != nil {
		t.Fatalf("parse merged report: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("merged rows = %d, want 3", len(records))
	}
}
