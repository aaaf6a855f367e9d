package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteJobStore is a single-file durable JobStore, for a background dag
// dispatch path that needs status to survive a process restart.
//
// Uses WAL mode with a single pooled connection, so reads and writes
// from this process are serialized on that connection.
type SQLiteJobStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteJobStore opens (creating if absent) a SQLite database at path and
// ensures its schema exists.
func NewSQLiteJobStore(path string) (*SQLiteJobStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite connection: %w", err)
	}
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	s := &SQLiteJobStore{db: db}
	if err := s.createTable(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteJobStore) createTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS job_status (
			job_id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			result TEXT,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create job_status table: %w", err)
	}
	return nil
}

func (s *SQLiteJobStore) SetStatus(ctx context.Context, jobID, status string) error {
	if s.isClosed() {
		return fmt.Errorf("store is closed")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_status (job_id, status) VALUES (?, ?)
		ON CONFLICT(job_id) DO UPDATE SET status = excluded.status, updated_at = CURRENT_TIMESTAMP
	`, jobID, status)
	if err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}

func (s *SQLiteJobStore) SetResult(ctx context.Context, jobID, status string, result any) error {
	if s.isClosed() {
		return fmt.Errorf("store is closed")
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_status (job_id, status, result) VALUES (?, ?, ?)
		ON CONFLICT(job_id) DO UPDATE SET status = excluded.status, result = excluded.result, updated_at = CURRENT_TIMESTAMP
	`, jobID, status, string(resultJSON))
	if err != nil {
		return fmt.Errorf("set job result: %w", err)
	}
	return nil
}

func (s *SQLiteJobStore) Get(ctx context.Context, jobID string) (JobRecord, error) {
	if s.isClosed() {
		return JobRecord{}, fmt.Errorf("store is closed")
	}
	var status string
	var resultJSON sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT status, result FROM job_status WHERE job_id = ?`, jobID).Scan(&status, &resultJSON)
	if err == sql.ErrNoRows {
		return JobRecord{}, ErrNotFound
	}
	if err != nil {
		return JobRecord{}, fmt.Errorf("get job status: %w", err)
	}

	rec := JobRecord{JobID: jobID, Status: status}
	if resultJSON.Valid && resultJSON.String != "" {
		var raw map[string]any
		if err := json.Unmarshal([]byte(resultJSON.String), &raw); err == nil {
			rec.Result = raw
		}
	}
	return rec, nil
}

// Close closes the underlying database connection.
func (s *SQLiteJobStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *SQLiteJobStore) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
