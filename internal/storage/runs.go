package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// timeLayout has fixed-width fractions so stored timestamps sort lexically.
// Reads use RFC3339Nano since the driver may hand DATETIME columns back as
// time.Time.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = `id, started_at, finished_at, version, provider, model, scopes,
	documents, prompts, failed, pairs, records_path, finetune_path, status, error`

// SaveRun inserts a new run. An empty status is stored as running.
func (s *Store) SaveRun(r Run) error {
	if r.Status == "" {
		r.Status = StatusRunning
	}
	_, err := s.db.Exec(`INSERT INTO runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, formatTime(r.StartedAt), nullTime(r.FinishedAt), r.Version, r.Provider, r.Model, r.Scopes,
		r.Documents, r.Prompts, r.Failed, r.Pairs, r.RecordsPath, r.FinetunePath, r.Status, r.Error,
	)
	return err
}

// FinishRun stores the final counters and status of a run.
func (s *Store) FinishRun(r Run) error {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	res, err := s.db.Exec(`UPDATE runs SET finished_at = ?, documents = ?, prompts = ?, failed = ?, pairs = ?,
		records_path = ?, finetune_path = ?, status = ?, error = ? WHERE id = ?`,
		formatTime(r.FinishedAt), r.Documents, r.Prompts, r.Failed, r.Pairs,
		r.RecordsPath, r.FinetunePath, r.Status, r.Error, r.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) GetRun(id string) (Run, error) {
	r, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return Run{}, ErrNotFound
	}
	return r, err
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// RecordFailure notes a skipped document or failed prompt against a run.
func (s *Store) RecordFailure(f Failure) error {
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}
	_, err := s.db.Exec(`INSERT INTO run_failures (run_id, stage, subject, message, created_at) VALUES (?, ?, ?, ?, ?)`,
		f.RunID, f.Stage, f.Subject, f.Message, formatTime(f.CreatedAt))
	return err
}

// Failures returns the failures of a run in the order they were recorded.
func (s *Store) Failures(runID string) ([]Failure, error) {
	rows, err := s.db.Query(`SELECT run_id, stage, subject, message, created_at
		FROM run_failures WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		var createdAt string
		if err := rows.Scan(&f.RunID, &f.Stage, &f.Subject, &f.Message, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		f.CreatedAt = t
		out = append(out, f)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var r Run
	var startedAt string
	var finishedAt sql.NullString
	if err := row.Scan(&r.ID, &startedAt, &finishedAt, &r.Version, &r.Provider, &r.Model, &r.Scopes,
		&r.Documents, &r.Prompts, &r.Failed, &r.Pairs, &r.RecordsPath, &r.FinetunePath, &r.Status, &r.Error); err != nil {
		return Run{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Run{}, fmt.Errorf("parsing started_at: %w", err)
	}
	r.StartedAt = t
	if finishedAt.Valid && finishedAt.String != "" {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return Run{}, fmt.Errorf("parsing finished_at: %w", err)
		}
		r.FinishedAt = t
	}
	return r, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return formatTime(t)
}
