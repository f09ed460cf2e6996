package internal

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Record is a BOM line or catalog part keyed by whatever column names its
// source used.
type Record map[string]any

// Text returns the trimmed string form of key, false when the key is absent,
// nil or blank.
func (r Record) Text(key string) (string, bool) {
	v, ok := r[key]
	if !ok || v == nil {
		return "", false
	}
	s := strings.TrimSpace(stringify(v))
	return s, s != ""
}

func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

type ItemSource string

const (
	SourceCSV       ItemSource = "csv"
	SourceJSON      ItemSource = "json"
	SourceXML       ItemSource = "xml"
	SourceXLSX      ItemSource = "xlsx"
	SourceHTMLTable ItemSource = "html_table"
	SourcePDF       ItemSource = "pdf"
	SourceEmail     ItemSource = "email"
)

type BOMLine struct {
	LineNo    int
	Source    ItemSource
	Reference *string
	Qty       *float64
	Record    Record
}

type PartRecord struct {
	SKU          string
	MPN          *string
	Manufacturer *string
	Description  *string
	Value        *string
	Footprint    *string
	RawJSON      string
	Record       Record
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}

type JobRow struct {
	ID        string
	EmailID   *int
	Source    string
	Boards    int
	Status    string
	CreatedAt string
}

type MatchExportRow struct {
	LineNo         int
	Source         string
	Reference      *string
	Qty            *float64
	BOMMPN         *string
	BOMValue       *string
	ParsedValue    *string
	BOMFootprint   *string
	Canonical      *string
	Classification string
	Confidence     float64
	ScoreMPN       *float64
	ScoreValue     *float64
	ScoreFootprint *float64
	ScoreMfr       *float64
	ScoreDesc      *float64
	PartSKU        *string
	PartMPN        *string
	PartMfr        *string
	Warnings       string
	UnitPrice      *string
	ExtendedPrice  *string
}
