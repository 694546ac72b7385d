package scheduler

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore keeps jobs in a single-file sqlite database. One
// connection, WAL journal; the connection is not shared with any
// other store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open scheduler db: %w", err)
	}
	// sqlite is single-writer; more connections just contend.
	db.SetMaxOpenConns(1)
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Init(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	prompt     TEXT NOT NULL,
	trigger_json TEXT NOT NULL,
	next_run   INTEGER NOT NULL DEFAULT 0,
	last_run   INTEGER NOT NULL DEFAULT 0,
	active     INTEGER NOT NULL DEFAULT 1,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_due ON jobs(active, next_run);`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	// Older databases predate use_tools; probe and add it.
	if _, err := s.db.ExecContext(ctx, `ALTER TABLE jobs ADD COLUMN use_tools INTEGER NOT NULL DEFAULT 0`); err != nil {
		if !strings.Contains(err.Error(), "duplicate column") {
			return fmt.Errorf("add use_tools column: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.CreatedAt == 0 {
		job.CreatedAt = time.Now().Unix()
	}
	trigger, err := json.Marshal(job.Trigger)
	if err != nil {
		return fmt.Errorf("encode trigger: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO jobs (id, name, prompt, trigger_json, next_run, last_run, active, use_tools, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Name, job.Prompt, string(trigger),
		job.NextRun, job.LastRun, boolToInt(job.Active), boolToInt(job.UseTools), job.CreatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: %s", ErrDuplicateName, job.Name)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, name, prompt, trigger_json, next_run, last_run, active, use_tools, created_at`

func (s *SQLiteStore) GetAll(ctx context.Context, activeOnly bool) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *SQLiteStore) GetByName(ctx context.Context, name string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE name = ?`, name)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

func (s *SQLiteStore) GetDue(ctx context.Context, now int64) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE active = 1 AND next_run > 0 AND next_run <= ?
		 ORDER BY next_run`, now)
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}
	defer rows.Close()
	return scanJobs(rows)
}

func (s *SQLiteStore) UpdateAfterRun(ctx context.Context, id string, nextRun, lastRun int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET next_run = ?, last_run = ?, active = ? WHERE id = ?`,
		nextRun, lastRun, boolToInt(nextRun > 0), id)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) SetNextRun(ctx context.Context, id string, nextRun int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET next_run = ?, active = ? WHERE id = ?`,
		nextRun, boolToInt(nextRun > 0), id)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var trigger string
	var active, useTools int
	if err := row.Scan(&job.ID, &job.Name, &job.Prompt, &trigger,
		&job.NextRun, &job.LastRun, &active, &useTools, &job.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(trigger), &job.Trigger); err != nil {
		return nil, fmt.Errorf("decode trigger for job %s: %w", job.ID, err)
	}
	job.Active = active != 0
	job.UseTools = useTools != 0
	return &job, nil
}

func scanJobs(rows *sql.Rows) ([]Job, error) {
	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}
