package primary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tagforge/internal/models"
	"tagforge/internal/store"
)

// Schema is applied by Migrate.
const Schema = `
CREATE TABLE IF NOT EXISTS reports (
	id         UUID PRIMARY KEY,
	owner      TEXT NOT NULL,
	repo       TEXT NOT NULL,
	success    BOOLEAN NOT NULL,
	final_tags TEXT[] NOT NULL DEFAULT '{}',
	report     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_reports_repo ON reports (owner, repo, created_at DESC);
CREATE TABLE IF NOT EXISTS background_jobs (
	job_id     UUID PRIMARY KEY,
	task_type  TEXT NOT NULL,
	queue      TEXT NOT NULL,
	status     TEXT NOT NULL,
	owner      TEXT NOT NULL,
	repo       TEXT NOT NULL,
	report_id  UUID,
	error      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
`

// StoreImpl implements the store.Store interface using PostgreSQL.
type StoreImpl struct {
	db *pgxpool.Pool
}

var _ store.Store = (*StoreImpl)(nil)

// NewPrimaryStore creates a new PostgreSQL primary store implementation.
func NewPrimaryStore(ctx context.Context, dsn string) (*StoreImpl, error) {
	if dsn == "" {
		return nil, errors.New("database DSN cannot be empty")
	}
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database DSN: %w", err)
	}

	dbpool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := dbpool.Ping(ctx); err != nil {
		dbpool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &StoreImpl{db: dbpool}, nil
}

// Migrate creates the tables if they do not exist.
func (s *StoreImpl) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *StoreImpl) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection pool.
func (s *StoreImpl) Close() error {
	s.db.Close()
	return nil
}

// --- Reports ---

func (s *StoreImpl) SaveReport(ctx context.Context, r *models.StoredReport) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	tags := r.FinalTags
	if tags == nil {
		tags = []string{}
	}
	_, err := s.db.Exec(ctx,
		`INSERT INTO reports (id, owner, repo, success, final_tags, report, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.Owner, r.Repo, r.Success, tags, r.Report, r.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("save report %s: %w", r.ID, store.ErrDuplicate)
		}
		return fmt.Errorf("save report %s: %w", r.ID, err)
	}
	return nil
}

func (s *StoreImpl) GetReport(ctx context.Context, id uuid.UUID) (*models.StoredReport, error) {
	row := s.db.QueryRow(ctx,
		`SELECT id, owner, repo, success, final_tags, report, created_at FROM reports WHERE id = $1`, id)
	r, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get report %s: %w", id, err)
	}
	return r, nil
}

func (s *StoreImpl) ListReports(ctx context.Context, f store.ReportFilter) ([]*models.StoredReport, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx,
		`SELECT id, owner, repo, success, final_tags, report, created_at FROM reports
		 WHERE ($1 = '' OR owner = $1) AND ($2 = '' OR repo = $2)
		 ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		f.Owner, f.Repo, limit, f.Offset)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var out []*models.StoredReport
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate report rows: %w", err)
	}
	return out, nil
}

// scanReport scans a single row into a models.StoredReport. Column order must
// match the report SELECT statements above.
func scanReport(row pgx.Row) (*models.StoredReport, error) {
	var r models.StoredReport
	if err := row.Scan(&r.ID, &r.Owner, &r.Repo, &r.Success, &r.FinalTags, &r.Report, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// --- Jobs ---

// RecordJobEnqueue inserts a record into the background_jobs table.
func (s *StoreImpl) RecordJobEnqueue(ctx context.Context, p store.JobRecordParams) error {
	now := time.Now()
	_, err := s.db.Exec(ctx,
		`INSERT INTO background_jobs (job_id, task_type, queue, status, owner, repo, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (job_id) DO NOTHING`,
		p.JobID, p.TaskType, p.Queue, p.Status, p.Owner, p.Repo, now, now)
	if err != nil {
		return fmt.Errorf("failed to record job enqueue event for JobID %s: %w", p.JobID, err)
	}
	return nil
}

// UpdateJobStatus updates the status of a job given its task UUID.
func (s *StoreImpl) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status string, reportID *uuid.UUID, jobErr string) error {
	cmdTag, err := s.db.Exec(ctx,
		`UPDATE background_jobs SET status = $1, report_id = COALESCE($2, report_id), error = $3, updated_at = $4 WHERE job_id = $5`,
		status, reportID, jobErr, time.Now(), jobID)
	if err != nil {
		return fmt.Errorf("failed to update job status for job %s: %w", jobID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *StoreImpl) GetJob(ctx context.Context, jobID uuid.UUID) (*models.BackgroundJob, error) {
	var j models.BackgroundJob
	err := s.db.QueryRow(ctx,
		`SELECT job_id, task_type, queue, status, owner, repo, report_id, error, created_at, updated_at
		 FROM background_jobs WHERE job_id = $1`, jobID).
		Scan(&j.JobID, &j.TaskType, &j.Queue, &j.Status, &j.Owner, &j.Repo, &j.ReportID, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return &j, nil
}
