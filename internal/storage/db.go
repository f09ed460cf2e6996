package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"partsmatch/internal"
	"partsmatch/internal/footprint"
	"partsmatch/internal/matcher"
	"partsmatch/internal/util"
	"partsmatch/internal/value"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS parts (
  sku TEXT PRIMARY KEY,
  mpn TEXT,
  manufacturer TEXT,
  description TEXT,
  value TEXT,
  footprint TEXT,
  raw_json TEXT NOT NULL,
  lastSeenAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_parts_mpn ON parts(mpn);

CREATE TABLE IF NOT EXISTS search_cache (
  queryKey TEXT PRIMARY KEY,
  responseJson TEXT NOT NULL,
  fetchedAt INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS bom_jobs (
  id TEXT PRIMARY KEY,
  emailId INTEGER,
  source TEXT NOT NULL,
  boards INTEGER NOT NULL DEFAULT 1,
  status TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(emailId) REFERENCES emails(id)
);
CREATE INDEX IF NOT EXISTS idx_bom_jobs_email ON bom_jobs(emailId);

CREATE TABLE IF NOT EXISTS bom_lines (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  jobId TEXT NOT NULL,
  lineNo INTEGER NOT NULL,
  source TEXT NOT NULL,
  reference TEXT,
  qty REAL,
  recordJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(jobId, lineNo, source),
  FOREIGN KEY(jobId) REFERENCES bom_jobs(id)
);

CREATE TABLE IF NOT EXISTS matches (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  lineId INTEGER NOT NULL UNIQUE,
  classification TEXT NOT NULL,
  confidence REAL NOT NULL,
  partSku TEXT,
  partMpn TEXT,
  partManufacturer TEXT,
  detailsJson TEXT NOT NULL,
  warningsJson TEXT NOT NULL,
  unitPrice TEXT,
  extendedPrice TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(lineId) REFERENCES bom_lines(id)
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  jobId TEXT,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertParts(parts []internal.PartRecord) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO parts (sku, mpn, manufacturer, description, value, footprint, raw_json, lastSeenAt)
VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(sku) DO UPDATE SET
  mpn=excluded.mpn,
  manufacturer=excluded.manufacturer,
  description=excluded.description,
  value=excluded.value,
  footprint=excluded.footprint,
  raw_json=excluded.raw_json,
  lastSeenAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range parts {
		if _, err := stmt.Exec(p.SKU, p.MPN, p.Manufacturer, p.Description, p.Value, p.Footprint, p.RawJSON); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) ListParts() ([]internal.PartRecord, error) {
	rows, err := d.conn.Query(`
SELECT sku, mpn, manufacturer, description, value, footprint, raw_json
FROM parts ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.PartRecord
	for rows.Next() {
		p, err := scanPart(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) GetPart(sku string) (*internal.PartRecord, error) {
	row := d.conn.QueryRow(`
SELECT sku, mpn, manufacturer, description, value, footprint, raw_json
FROM parts WHERE sku = ?`, sku)
	p, err := scanPart(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPart(s scanner) (internal.PartRecord, error) {
	var p internal.PartRecord
	if err := s.Scan(&p.SKU, &p.MPN, &p.Manufacturer, &p.Description, &p.Value, &p.Footprint, &p.RawJSON); err != nil {
		return internal.PartRecord{}, err
	}
	p.Record = internal.Record{}
	_ = json.Unmarshal([]byte(p.RawJSON), &p.Record)
	return p, nil
}

// GetCachedSearch returns the stored payload for key when it was written
// within maxAge of now.
func (d *DB) GetCachedSearch(key string, maxAge time.Duration, now time.Time) ([]byte, bool, error) {
	var payload string
	err := d.conn.QueryRow(
		`SELECT responseJson FROM search_cache WHERE queryKey = ? AND fetchedAt >= ?`,
		key, now.Add(-maxAge).Unix(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(payload), true, nil
}

func (d *DB) PutCachedSearch(key string, payload []byte, now time.Time) error {
	_, err := d.conn.Exec(`
INSERT INTO search_cache (queryKey, responseJson, fetchedAt) VALUES (?, ?, ?)
ON CONFLICT(queryKey) DO UPDATE SET responseJson = excluded.responseJson, fetchedAt = excluded.fetchedAt
`, key, string(payload), now.Unix())
	return err
}

func (d *DB) PurgeSearchCache(olderThan time.Time) (int64, error) {
	res, err := d.conn.Exec(`DELETE FROM search_cache WHERE fetchedAt < ?`, olderThan.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

const emailColumns = `id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef`

func scanEmail(s scanner) (internal.EmailRow, error) {
	var row internal.EmailRow
	err := s.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef)
	return row, err
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE provider = ? AND messageId = ?`, provider, messageID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) GetEmailByID(id int) (*internal.EmailRow, error) {
	row, err := scanEmail(d.conn.QueryRow(`SELECT `+emailColumns+` FROM emails WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`SELECT `+emailColumns+` FROM emails WHERE status = ? ORDER BY receivedAt ASC LIMIT ?`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		row, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

func (d *DB) MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email not found: provider=%s messageId=%s", provider, messageID)
	}
	return *row, nil
}

func (d *DB) CreateJob(job internal.JobRow) error {
	_, err := d.conn.Exec(`INSERT INTO bom_jobs (id, emailId, source, boards, status) VALUES (?, ?, ?, ?, ?)`,
		job.ID, job.EmailID, job.Source, job.Boards, job.Status)
	return err
}

func (d *DB) UpdateJobStatus(jobID, status string) error {
	_, err := d.conn.Exec(`UPDATE bom_jobs SET status = ? WHERE id = ?`, status, jobID)
	return err
}

func (d *DB) GetJob(jobID string) (*internal.JobRow, error) {
	var job internal.JobRow
	err := d.conn.QueryRow(`SELECT id, emailId, source, boards, status, createdAt FROM bom_jobs WHERE id = ?`, jobID).
		Scan(&job.ID, &job.EmailID, &job.Source, &job.Boards, &job.Status, &job.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (d *DB) ListJobsByEmail(emailID int) ([]internal.JobRow, error) {
	rows, err := d.conn.Query(`SELECT id, emailId, source, boards, status, createdAt FROM bom_jobs WHERE emailId = ? ORDER BY createdAt, id`, emailID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.JobRow
	for rows.Next() {
		var job internal.JobRow
		if err := rows.Scan(&job.ID, &job.EmailID, &job.Source, &job.Boards, &job.Status, &job.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// ClearEmailJobs removes every job, line and match produced from emailID so
// the message can be processed again.
func (d *DB) ClearEmailJobs(emailID int) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.Query(`SELECT id FROM bom_jobs WHERE emailId = ?`, emailID)
	if err != nil {
		return err
	}
	var jobIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return err
		}
		jobIDs = append(jobIDs, id)
	}
	_ = rows.Close()

	for _, id := range jobIDs {
		if _, err := tx.Exec(`DELETE FROM matches WHERE lineId IN (SELECT id FROM bom_lines WHERE jobId = ?)`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM bom_lines WHERE jobId = ?`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(`DELETE FROM bom_jobs WHERE id = ?`, id); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) InsertBOMLine(jobID string, line internal.BOMLine) (int64, error) {
	recordJSON, err := json.Marshal(line.Record)
	if err != nil {
		return 0, err
	}
	result, err := d.conn.Exec(`
INSERT INTO bom_lines (jobId, lineNo, source, reference, qty, recordJson)
VALUES (?, ?, ?, ?, ?, ?)
`, jobID, line.LineNo, string(line.Source), line.Reference, line.Qty, string(recordJSON))
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (d *DB) InsertMatch(lineID int64, result matcher.MatchResult, unitPrice, extendedPrice *string) error {
	detailsJSON, _ := json.Marshal(result.Details)
	warnings := result.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	warningsJSON, _ := json.Marshal(warnings)

	var sku, mpn, mfr *string
	if result.Part != nil {
		if s, ok := result.Part.Text("sku"); ok {
			sku = &s
		}
		if s, ok := matcher.FieldValue(result.Part, matcher.FactorMPN); ok {
			mpn = &s
		}
		if s, ok := matcher.FieldValue(result.Part, matcher.FactorManufacturer); ok {
			mfr = &s
		}
	}

	_, err := d.conn.Exec(`
INSERT INTO matches (lineId, classification, confidence, partSku, partMpn, partManufacturer, detailsJson, warningsJson, unitPrice, extendedPrice)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, lineID, string(result.Classification()), result.Confidence, sku, mpn, mfr, string(detailsJSON), string(warningsJSON), unitPrice, extendedPrice)
	return err
}

func (d *DB) InsertRun(traceID, jobID string, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, jobId, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, jobID, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// GetExportRows returns one row per BOM line of jobID, best matches first.
func (d *DB) GetExportRows(jobID string) ([]internal.MatchExportRow, error) {
	rows, err := d.conn.Query(`
SELECT
  l.lineNo,
  l.source,
  l.reference,
  l.qty,
  l.recordJson,
  m.classification,
  m.confidence,
  m.partSku,
  m.partMpn,
  m.partManufacturer,
  m.detailsJson,
  m.warningsJson,
  m.unitPrice,
  m.extendedPrice
FROM bom_lines l
JOIN matches m ON m.lineId = l.id
WHERE l.jobId = ?
ORDER BY
  CASE m.classification WHEN 'high' THEN 1 WHEN 'medium' THEN 2 WHEN 'low' THEN 3 ELSE 4 END,
  l.lineNo ASC
`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.MatchExportRow
	for rows.Next() {
		var row internal.MatchExportRow
		var recordJSON, detailsJSON, warningsJSON string
		if err := rows.Scan(
			&row.LineNo,
			&row.Source,
			&row.Reference,
			&row.Qty,
			&recordJSON,
			&row.Classification,
			&row.Confidence,
			&row.PartSKU,
			&row.PartMPN,
			&row.PartMfr,
			&detailsJSON,
			&warningsJSON,
			&row.UnitPrice,
			&row.ExtendedPrice,
		); err != nil {
			return nil, err
		}

		var rec internal.Record
		_ = json.Unmarshal([]byte(recordJSON), &rec)
		fillBOMColumns(&row, rec)

		var details map[matcher.Factor]float64
		_ = json.Unmarshal([]byte(detailsJSON), &details)
		row.ScoreMPN = score(details, matcher.FactorMPN)
		row.ScoreValue = score(details, matcher.FactorValue)
		row.ScoreFootprint = score(details, matcher.FactorFootprint)
		row.ScoreMfr = score(details, matcher.FactorManufacturer)
		row.ScoreDesc = score(details, matcher.FactorDescription)

		var warnings []string
		_ = json.Unmarshal([]byte(warningsJSON), &warnings)
		row.Warnings = strings.Join(warnings, "; ")

		out = append(out, row)
	}

	return out, rows.Err()
}

func fillBOMColumns(row *internal.MatchExportRow, rec internal.Record) {
	if s, ok := matcher.FieldValue(rec, matcher.FactorMPN); ok {
		row.BOMMPN = util.StringPtr(s)
	}
	if s, ok := matcher.FieldValue(rec, matcher.FactorValue); ok {
		row.BOMValue = util.StringPtr(s)
		if p := value.Parse(s); p.HasNumeric() {
			row.ParsedValue = util.StringPtr(p.Formatted)
		}
	}
	if s, ok := matcher.FieldValue(rec, matcher.FactorFootprint); ok {
		row.BOMFootprint = util.StringPtr(s)
		row.Canonical = util.NonEmpty(footprint.Normalize(s))
	}
}

func score(details map[matcher.Factor]float64, f matcher.Factor) *float64 {
	s, ok := details[f]
	if !ok {
		return nil
	}
	return util.FloatPtr(s)
}
