// Package bom reads bills of materials from the file formats engineers send
// and turns each row into a header-keyed record for the matcher.
package bom

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"partsmatch/internal"
	"partsmatch/internal/util"
)

var ErrUnsupportedFormat = errors.New("unsupported BOM format")

type Format string

const (
	FormatKiCad   Format = "kicad"
	FormatAltium  Format = "altium"
	FormatGeneric Format = "generic"
	FormatUnknown Format = "unknown"
)

type Info struct {
	FileType  string   `json:"file_type"`
	Format    Format   `json:"detected_format"`
	Headers   []string `json:"header_fields"`
	Delimiter string   `json:"delimiter,omitempty"`
}

var (
	referenceKeys = []string{"reference", "references", "ref", "designator", "designators", "refdes"}
	quantityKeys  = []string{"quantity", "qty", "count", "qnty"}

	// knownColumns are header names that mark a row as the table header.
	knownColumns = map[string]struct{}{}

	reSpaces = regexp.MustCompile(`\s+`)
)

func init() {
	for _, k := range []string{
		"mpn", "part number", "manufacturer part number", "mfr part number", "mfr part #",
		"value", "comment", "footprint", "package", "case",
		"manufacturer", "mfr", "mfg", "description", "desc",
	} {
		knownColumns[k] = struct{}{}
	}
	for _, k := range referenceKeys {
		knownColumns[k] = struct{}{}
	}
	for _, k := range quantityKeys {
		knownColumns[k] = struct{}{}
	}
}

// ReadFile reads path according to its extension. Unknown extensions are
// tried as delimited text.
func ReadFile(path string) ([]internal.BOMLine, Info, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, Info{}, err
	}
	return Read(filepath.Base(path), content)
}

func Read(name string, content []byte) ([]internal.BOMLine, Info, error) {
	ext := strings.ToLower(filepath.Ext(name))
	info := Info{FileType: ext, Format: FormatUnknown}

	var (
		records []internal.Record
		headers []string
		source  internal.ItemSource
		err     error
	)
	switch ext {
	case ".csv", ".txt", "":
		records, headers, info.Delimiter, err = readDelimited(content, 0)
		source = internal.SourceCSV
	case ".tsv":
		records, headers, info.Delimiter, err = readDelimited(content, '\t')
		source = internal.SourceCSV
	case ".json":
		records, headers, err = readJSON(content)
		source = internal.SourceJSON
	case ".xml":
		records, headers, err = readXML(content)
		source = internal.SourceXML
	case ".xlsx", ".xlsm":
		records, headers, err = readXLSX(content)
		source = internal.SourceXLSX
	case ".html", ".htm":
		records, headers, err = readHTML(string(content))
		source = internal.SourceHTMLTable
	case ".pdf":
		records, headers, err = readPDF(content)
		source = internal.SourcePDF
	case ".eml":
		return readEmail(content)
	case ".xls", ".ods", ".doc", ".docx", ".zip":
		return nil, info, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	default:
		records, headers, info.Delimiter, err = readDelimited(content, 0)
		source = internal.SourceCSV
	}
	if err != nil {
		return nil, info, fmt.Errorf("read %s: %w", name, err)
	}

	info.Headers = headers
	info.Format = DetectFormat(headers)
	return toLines(records, source), info, nil
}

// DetectFormat names the EDA tool a header row most likely came from.
func DetectFormat(headers []string) Format {
	lower := map[string]struct{}{}
	for _, h := range headers {
		lower[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	has := func(k string) bool {
		_, ok := lower[k]
		return ok
	}
	switch {
	case has("reference") && has("value"):
		return FormatKiCad
	case has("designator"):
		return FormatAltium
	case has("part number") || has("mpn"):
		return FormatGeneric
	default:
		return FormatUnknown
	}
}

func Records(lines []internal.BOMLine) []internal.Record {
	out := make([]internal.Record, 0, len(lines))
	for _, l := range lines {
		out = append(out, l.Record)
	}
	return out
}

func toLines(records []internal.Record, source internal.ItemSource) []internal.BOMLine {
	out := make([]internal.BOMLine, 0, len(records))
	for i, rec := range records {
		line := internal.BOMLine{LineNo: i + 1, Source: source, Record: rec}
		if ref, ok := lookup(rec, referenceKeys); ok {
			line.Reference = util.StringPtr(ref)
		}
		if qty, ok := lookup(rec, quantityKeys); ok {
			line.Qty = util.ParseQty(qty).Qty
		}
		out = append(out, line)
	}
	return out
}

// lookup finds the first of keys in rec, ignoring case and surrounding space
// in the record's own header spelling.
func lookup(rec internal.Record, keys []string) (string, bool) {
	byLower := make(map[string]string, len(rec))
	for k := range rec {
		byLower[strings.ToLower(strings.TrimSpace(k))] = k
	}
	for _, k := range keys {
		if orig, ok := byLower[k]; ok {
			if s, ok := rec.Text(orig); ok {
				return s, true
			}
		}
	}
	return "", false
}

// rowsToRecords pairs each row with the header, dropping blank cells and
// rows left empty.
func rowsToRecords(header []string, rows [][]string) []internal.Record {
	out := make([]internal.Record, 0, len(rows))
	for _, row := range rows {
		rec := internal.Record{}
		for i, cell := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			rec[header[i]] = cell
		}
		if len(rec) > 0 {
			out = append(out, rec)
		}
	}
	return out
}

func isKnownColumn(h string) bool {
	_, ok := knownColumns[strings.ToLower(normalizeSpaces(h))]
	return ok
}

// headerScore counts cells that are recognised column names.
func headerScore(cells []string) int {
	n := 0
	for _, c := range cells {
		if isKnownColumn(c) {
			n++
		}
	}
	return n
}

func normalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		out = append(out, normalizeSpaces(c))
	}
	return out
}

func headerKeys(records []internal.Record) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, rec := range records {
		for k := range rec {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}
