package bom

import (
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"partsmatch/internal"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readDelimited reads CSV-like text. A zero delimiter is sniffed from the
// first KiB: tab, then semicolon, then comma.
func readDelimited(content []byte, delimiter rune) ([]internal.Record, []string, string, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if delimiter == 0 {
		delimiter = sniffDelimiter(content)
	}

	r := csv.NewReader(bytes.NewReader(content))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil, string(delimiter), nil
	}
	if err != nil {
		return nil, nil, string(delimiter), err
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, header, string(delimiter), err
		}
		rows = append(rows, row)
	}
	return rowsToRecords(header, rows), header, string(delimiter), nil
}

func sniffDelimiter(content []byte) rune {
	sample := content
	if len(sample) > 1024 {
		sample = sample[:1024]
	}
	switch {
	case bytes.ContainsRune(sample, '\t'):
		return '\t'
	case bytes.ContainsRune(sample, ';'):
		return ';'
	default:
		return ','
	}
}
