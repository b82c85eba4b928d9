// Package ingest normalizes the raw ledger extracts into typed records: the
// PROVCA invoice extract and the CLANTI advance extract, both
// semicolon-separated CSV keyed by the ledger's field codes.
package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// readTable reads a semicolon-separated extract into header plus rows. The
// extracts arrive either UTF-8 (sometimes with a BOM) or Windows-1252; the
// fallback decode keeps the accented client names intact.
func readTable(r io.Reader) ([]string, [][]string, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: read extract: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte{0xEF, 0xBB, 0xBF})
	if !utf8.Valid(raw) {
		decoded, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), raw)
		if err != nil {
			return nil, nil, fmt.Errorf("ingest: decode extract: %w", err)
		}
		raw = decoded
	}

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("ingest: parse extract: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("ingest: extract is empty")
	}

	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = strings.ToUpper(strings.TrimSpace(cell))
	}
	return header, rows[1:], nil
}

// columnIndex maps field codes to their position. Codes absent from the
// header map to -1.
func columnIndex(header []string, codes ...string) map[string]int {
	idx := make(map[string]int, len(codes))
	for _, code := range codes {
		idx[code] = -1
	}
	for pos, cell := range header {
		if _, wanted := idx[cell]; wanted && idx[cell] == -1 {
			idx[cell] = pos
		}
	}
	return idx
}

func cell(row []string, pos int) string {
	if pos < 0 || pos >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[pos])
}
