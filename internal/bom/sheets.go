package bom

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"partsmatch/internal"
)

const headerSearchRows = 10

var reColumnGap = regexp.MustCompile(`\s{2,}|\t+`)

// findHeader returns the index of the first row among the leading rows with
// at least two recognised column names, or -1.
func findHeader(rows [][]string) int {
	for i, row := range rows {
		if i >= headerSearchRows {
			break
		}
		if headerScore(normalizeCells(row)) >= 2 {
			return i
		}
	}
	return -1
}

// readXLSX uses the first sheet that has a header row.
func readXLSX(content []byte) ([]internal.Record, []string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil || len(rows) == 0 {
			continue
		}
		h := findHeader(rows)
		if h < 0 {
			continue
		}
		header := normalizeCells(rows[h])
		return rowsToRecords(header, rows[h+1:]), header, nil
	}
	return nil, nil, nil
}

// readHTML uses the first table whose first row is a header row, as in
// KiCad's HTML BOM export or a table pasted into an e-mail.
func readHTML(html string) ([]internal.Record, []string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil, err
	}

	var (
		records []internal.Record
		header  []string
		found   bool
	)
	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		var rows [][]string
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			var cells []string
			row.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, normalizeSpaces(cell.Text()))
			})
			if len(cells) > 0 {
				rows = append(rows, cells)
			}
		})
		if len(rows) < 2 || headerScore(rows[0]) < 2 {
			return true
		}
		header = rows[0]
		records = rowsToRecords(header, rows[1:])
		found = true
		return false
	})
	if !found {
		return nil, nil, nil
	}
	return records, header, nil
}

// readPDF recovers a table from page text. Columns are separated by runs of
// two or more spaces, so cells containing such runs split wrongly.
func readPDF(content []byte) ([]internal.Record, []string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, nil, err
	}

	var lines []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		lines = append(lines, splitLines(text)...)
	}
	records, header := tableFromLines(lines)
	return records, header, nil
}

func tableFromLines(lines []string) ([]internal.Record, []string) {
	var header []string
	var rows [][]string
	for _, line := range lines {
		cells := reColumnGap.Split(strings.TrimSpace(line), -1)
		if header == nil {
			if headerScore(normalizeCells(cells)) >= 2 {
				header = normalizeCells(cells)
			}
			continue
		}
		if len(cells) < 2 {
			continue
		}
		rows = append(rows, cells)
	}
	if header == nil {
		return nil, nil
	}
	return rowsToRecords(header, rows), header
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}
