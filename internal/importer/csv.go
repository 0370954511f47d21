package importer

import (
	"bytes"
	"encoding/csv"
	"strings"
	"unicode/utf8"
)

// parseFile parses delimiter-separated file bytes into records.
// Rows may have varying field counts; short rows are handled per cell.
func parseFile(data []byte) ([][]string, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return r.ReadAll()
}

// sanitizeUTF8 replaces invalid UTF-8 sequences with the Unicode
// replacement character. Windows exports frequently contain stray
// Latin-1 bytes that would otherwise break downstream consumers.
func sanitizeUTF8(data []byte) []byte {
	if utf8.Valid(data) {
		return data
	}

	var buf bytes.Buffer
	buf.Grow(len(data))

	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		if r == utf8.RuneError && size == 1 {
			buf.WriteRune('�')
			data = data[1:]
		} else {
			buf.WriteRune(r)
			data = data[size:]
		}
	}

	return buf.Bytes()
}

// cleanCell trims whitespace and a UTF-8 BOM from a cell value.
func cleanCell(s string) string {
	s = strings.TrimPrefix(s, "\uFEFF")
	return strings.TrimSpace(s)
}

// cleanHeader returns a copy of the header row with every cell cleaned.
func cleanHeader(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		out[i] = cleanCell(h)
	}
	return out
}

// missingColumns returns the required columns absent from the header index.
func missingColumns(required []string, idx HeaderIndex) []string {
	var missing []string
	for _, col := range required {
		if _, ok := idx[strings.ToLower(col)]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
