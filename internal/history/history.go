// Package history provides SQLite-based persistence for the save attempt
// log. Every save run is recorded when submitted and resolved once it
// reaches a terminal state; rows are never deleted.
package history

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/kilupskalvis/accmove/internal/models"
	_ "modernc.org/sqlite"
)

// Log represents the SQLite history database.
type Log struct {
	db *sql.DB
}

// Open creates a new history log connection.
func Open(dbPath string) (*Log, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	l := &Log{db: db}
	return l, nil
}

// Close closes the database connection.
func (l *Log) Close() error {
	return l.db.Close()
}

// Initialize creates the database schema.
func (l *Log) Initialize() error {
	schema := `
	-- Save attempts (append-only)
	CREATE TABLE IF NOT EXISTS save_jobs (
		id TEXT PRIMARY KEY,
		workitem_id TEXT,
		project_id TEXT NOT NULL,
		item_id TEXT NOT NULL,
		change_count INTEGER NOT NULL,
		status TEXT NOT NULL,
		result_version TEXT,
		report TEXT,
		submitted_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		resolved_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_save_jobs_submitted ON save_jobs(submitted_at);
	CREATE INDEX IF NOT EXISTS idx_save_jobs_status ON save_jobs(status);
	`

	_, err := l.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Begin records a newly submitted save attempt.
func (l *Log) Begin(rec *models.SaveRecord) error {
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = time.Now()
	}
	if rec.Status == "" {
		rec.Status = models.SaveStatusRunning
	}

	_, err := l.db.Exec(
		`INSERT INTO save_jobs (id, workitem_id, project_id, item_id, change_count, status, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.WorkItemID, rec.ProjectID, rec.ItemID, rec.ChangeCount, rec.Status,
		rec.SubmittedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert save record: %w", err)
	}
	return nil
}

// SetWorkItem attaches the worker's job id to a running save attempt.
func (l *Log) SetWorkItem(id, workItemID string) error {
	_, err := l.db.Exec("UPDATE save_jobs SET workitem_id = ? WHERE id = ?", workItemID, id)
	if err != nil {
		return fmt.Errorf("update save record: %w", err)
	}
	return nil
}

// Resolve marks a save attempt as finished with its terminal status.
func (l *Log) Resolve(id, status, resultVersion, report string) error {
	_, err := l.db.Exec(
		`UPDATE save_jobs SET status = ?, result_version = ?, report = ?, resolved_at = ? WHERE id = ?`,
		status, resultVersion, report, time.Now().UTC().Format(time.RFC3339Nano), id,
	)
	if err != nil {
		return fmt.Errorf("resolve save record: %w", err)
	}
	return nil
}

// Recent returns the most recent save attempts, newest first.
func (l *Log) Recent(limit int) ([]*models.SaveRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.Query(
		`SELECT id, workitem_id, project_id, item_id, change_count, status,
		        COALESCE(result_version, ''), COALESCE(report, ''),
		        submitted_at, COALESCE(resolved_at, '')
		 FROM save_jobs ORDER BY submitted_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query save records: %w", err)
	}
	defer rows.Close()

	var records []*models.SaveRecord
	for rows.Next() {
		var rec models.SaveRecord
		var workItemID sql.NullString
		var submittedAt, resolvedAt string

		if err := rows.Scan(&rec.ID, &workItemID, &rec.ProjectID, &rec.ItemID,
			&rec.ChangeCount, &rec.Status, &rec.ResultVersion, &rec.Report,
			&submittedAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("scan save record: %w", err)
		}

		rec.WorkItemID = workItemID.String
		rec.SubmittedAt = parseTimestamp(submittedAt)
		if resolvedAt != "" {
			rec.ResolvedAt = parseTimestamp(resolvedAt)
		}

		records = append(records, &rec)
	}

	return records, rows.Err()
}

// Get returns a single save attempt. Returns (nil, nil) if not found.
func (l *Log) Get(id string) (*models.SaveRecord, error) {
	row := l.db.QueryRow(
		`SELECT id, workitem_id, project_id, item_id, change_count, status,
		        COALESCE(result_version, ''), COALESCE(report, ''),
		        submitted_at, COALESCE(resolved_at, '')
		 FROM save_jobs WHERE id = ?`, id,
	)

	var rec models.SaveRecord
	var workItemID sql.NullString
	var submittedAt, resolvedAt string

	err := row.Scan(&rec.ID, &workItemID, &rec.ProjectID, &rec.ItemID,
		&rec.ChangeCount, &rec.Status, &rec.ResultVersion, &rec.Report,
		&submittedAt, &resolvedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan save record: %w", err)
	}

	rec.WorkItemID = workItemID.String
	rec.SubmittedAt = parseTimestamp(submittedAt)
	if resolvedAt != "" {
		rec.ResolvedAt = parseTimestamp(resolvedAt)
	}

	return &rec, nil
}

// parseTimestamp parses a timestamp string from SQLite in various formats.
func parseTimestamp(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999-07:00",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
