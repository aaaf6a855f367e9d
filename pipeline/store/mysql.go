package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLJobStore is a shared, multi-process durable JobStore, for deployments
// that run several dispatcher instances behind a load balancer and need a
// single source of truth for job status.
type MySQLJobStore struct {
	db *sql.DB
}

// NewMySQLJobStore opens a MySQL connection using dsn (e.g.
// "user:pass@tcp(127.0.0.1:3306)/docpipe?parseTime=true") and ensures its
// schema exists.
func NewMySQLJobStore(dsn string) (*MySQLJobStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("open mysql connection: %w", err)
	}

	s := &MySQLJobStore{db: db}
	if err := s.createTable(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *MySQLJobStore) createTable(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS job_status (
			job_id VARCHAR(128) PRIMARY KEY,
			status VARCHAR(32) NOT NULL,
			result JSON,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create job_status table: %w", err)
	}
	return nil
}

func (s *MySQLJobStore) SetStatus(ctx context.Context, jobID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO job_status (job_id, status) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status)
	`, jobID, status)
	if err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}

func (s *MySQLJobStore) SetResult(ctx context.Context, jobID, status string, result any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal job result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO job_status (job_id, status, result) VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE status = VALUES(status), result = VALUES(result)
	`, jobID, status, string(resultJSON))
	if err != nil {
		return fmt.Errorf("set job result: %w", err)
	}
	return nil
}

func (s *MySQLJobStore) Get(ctx context.Context, jobID string) (JobRecord, error) {
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

// Close closes the underlying database connection pool.
func (s *MySQLJobStore) Close() error {
	return s.db.Close()
}
