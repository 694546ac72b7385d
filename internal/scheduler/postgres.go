package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps jobs in Postgres, for setups where ~/.arc lives
// on a shared or ephemeral filesystem.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects using a pgx DSN.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect scheduler db: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Init(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	name         TEXT NOT NULL UNIQUE,
	prompt       TEXT NOT NULL,
	trigger_json TEXT NOT NULL,
	next_run     BIGINT NOT NULL DEFAULT 0,
	last_run     BIGINT NOT NULL DEFAULT 0,
	active       BOOLEAN NOT NULL DEFAULT TRUE,
	created_at   BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_due ON jobs(active, next_run);
ALTER TABLE jobs ADD COLUMN IF NOT EXISTS use_tools BOOLEAN NOT NULL DEFAULT FALSE;`
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, job *Job) error {
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
	_, err = s.pool.Exec(ctx, `
INSERT INTO jobs (id, name, prompt, trigger_json, next_run, last_run, active, use_tools, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		job.ID, job.Name, job.Prompt, string(trigger),
		job.NextRun, job.LastRun, job.Active, job.UseTools, job.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: %s", ErrDuplicateName, job.Name)
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAll(ctx context.Context, activeOnly bool) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs`
	if activeOnly {
		query += ` WHERE active`
	}
	query += ` ORDER BY created_at`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()
	return scanPgJobs(rows)
}

func (s *PostgresStore) GetByName(ctx context.Context, name string) (*Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE name = $1`, name)
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	defer rows.Close()
	jobs, err := scanPgJobs(rows)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return &jobs[0], nil
}

func (s *PostgresStore) GetDue(ctx context.Context, now int64) ([]Job, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs
		 WHERE active AND next_run > 0 AND next_run <= $1
		 ORDER BY next_run`, now)
	if err != nil {
		return nil, fmt.Errorf("query due jobs: %w", err)
	}
	defer rows.Close()
	return scanPgJobs(rows)
}

func (s *PostgresStore) UpdateAfterRun(ctx context.Context, id string, nextRun, lastRun int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET next_run = $1, last_run = $2, active = $3 WHERE id = $4`,
		nextRun, lastRun, nextRun > 0, id)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	return requirePgRow(tag, id)
}

func (s *PostgresStore) SetNextRun(ctx context.Context, id string, nextRun int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET next_run = $1, active = $2 WHERE id = $3`,
		nextRun, nextRun > 0, id)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	return requirePgRow(tag, id)
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return requirePgRow(tag, id)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func requirePgRow(tag pgconn.CommandTag, id string) error {
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func scanPgJobs(rows pgx.Rows) ([]Job, error) {
	var jobs []Job
	for rows.Next() {
		var job Job
		var trigger string
		if err := rows.Scan(&job.ID, &job.Name, &job.Prompt, &trigger,
			&job.NextRun, &job.LastRun, &job.Active, &job.UseTools, &job.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(trigger), &job.Trigger); err != nil {
			return nil, fmt.Errorf("decode trigger for job %s: %w", job.ID, err)
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
