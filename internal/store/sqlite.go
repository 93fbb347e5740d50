package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/reviewd/reviewd/internal/models"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id             TEXT PRIMARY KEY,
	status         TEXT NOT NULL,
	repo_ref       TEXT NOT NULL,
	change_id      INTEGER NOT NULL,
	credential     TEXT NOT NULL DEFAULT '',
	submitted_at   TIMESTAMP NOT NULL,
	started_at     TIMESTAMP,
	completed_at   TIMESTAMP,
	report         TEXT,
	failure_reason TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
`

// SQLite is a job store backed by a local SQLite database, giving jobs
// durability across process restarts.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if necessary) the database at path
func NewSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	// WAL mode for concurrent readers alongside the single writer
	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open job database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &SQLite{db: db}, nil
}

// Create allocates a fresh job in status PENDING
func (s *SQLite) Create(ctx context.Context, input models.JobInput) (*models.Job, error) {
	job := &models.Job{
		ID:          uuid.NewString(),
		Status:      models.StatusPending,
		Input:       input,
		SubmittedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, status, repo_ref, change_id, credential, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, string(job.Status), input.RepoRef, input.ChangeID, input.Credential, job.SubmittedAt)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// Get returns the job, or ErrNotFound
func (s *SQLite) Get(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, repo_ref, change_id, credential, submitted_at,
		        started_at, completed_at, report, failure_reason
		 FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// Apply performs a compare-and-set transition. The status guard lives in
// the UPDATE's WHERE clause; zero rows affected means the expected status
// no longer holds.
func (s *SQLite) Apply(ctx context.Context, id string, t Transition) (*models.Job, error) {
	now := time.Now().UTC()

	var res sql.Result
	var err error
	switch {
	case t.To == models.StatusRunning:
		res, err = s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, started_at = ? WHERE id = ? AND status = ?`,
			string(t.To), now, id, string(t.From))
	case t.To.Terminal():
		var report any
		if t.Report != nil {
			data, merr := json.Marshal(t.Report)
			if merr != nil {
				return nil, fmt.Errorf("marshal report: %w", merr)
			}
			report = string(data)
		}
		res, err = s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, completed_at = ?, report = ?, failure_reason = ?
			 WHERE id = ? AND status = ?`,
			string(t.To), now, report, t.FailureReason, id, string(t.From))
	default:
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		// Distinguish a lost race from an unknown handle
		if _, gerr := s.Get(ctx, id); gerr != nil {
			return nil, gerr
		}
		return nil, ErrInvalidTransition
	}

	return s.Get(ctx, id)
}

// Running returns all jobs currently in status RUNNING
func (s *SQLite) Running(ctx context.Context) ([]*models.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status, repo_ref, change_id, credential, submitted_at,
		        started_at, completed_at, report, failure_reason
		 FROM jobs WHERE status = ?`, string(models.StatusRunning))
	if err != nil {
		return nil, fmt.Errorf("query running jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Close closes the underlying database
func (s *SQLite) Close() error { return s.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var status string
	var startedAt, completedAt sql.NullTime
	var report sql.NullString

	err := row.Scan(&job.ID, &status, &job.Input.RepoRef, &job.Input.ChangeID,
		&job.Input.Credential, &job.SubmittedAt, &startedAt, &completedAt,
		&report, &job.FailureReason)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.Status = models.JobStatus(status)
	if startedAt.Valid {
		t := startedAt.Time.UTC()
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		job.CompletedAt = &t
	}
	if report.Valid && report.String != "" {
		var r models.Report
		if err := json.Unmarshal([]byte(report.String), &r); err != nil {
			return nil, fmt.Errorf("decode stored report: %w", err)
		}
		job.Report = &r
	}
	return &job, nil
}
