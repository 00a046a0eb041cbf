// Package sqlite is the local, single-file report and job store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	log "github.com/sirupsen/logrus"

	"tagforge/internal/models"
	"tagforge/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS reports (
	id         TEXT PRIMARY KEY,
	owner      TEXT NOT NULL,
	repo       TEXT NOT NULL,
	success    INTEGER NOT NULL,
	final_tags TEXT NOT NULL,
	report     BLOB NOT NULL,
	created_at DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_reports_repo ON reports (owner, repo, created_at);
CREATE TABLE IF NOT EXISTS background_jobs (
	job_id     TEXT PRIMARY KEY,
	task_type  TEXT NOT NULL,
	queue      TEXT NOT NULL,
	status     TEXT NOT NULL,
	owner      TEXT NOT NULL,
	repo       TEXT NOT NULL,
	report_id  TEXT,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);
`

// StoreImpl implements store.Store on a SQLite database file.
type StoreImpl struct {
	db *sql.DB
}

var _ store.Store = (*StoreImpl)(nil)

// NewStore opens (creating if needed) the database at path and applies the schema.
func NewStore(ctx context.Context, path string) (*StoreImpl, error) {
	if path == "" {
		return nil, errors.New("sqlite database path cannot be empty")
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	log.Debugf("Opened SQLite report store at %s", path)
	return &StoreImpl{db: db}, nil
}

func (s *StoreImpl) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *StoreImpl) Close() error { return s.db.Close() }

// --- Reports ---

func (s *StoreImpl) SaveReport(ctx context.Context, r *models.StoredReport) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	tags, err := json.Marshal(nonNil(r.FinalTags))
	if err != nil {
		return fmt.Errorf("encode final tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO reports (id, owner, repo, success, final_tags, report, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), r.Owner, r.Repo, r.Success, string(tags), r.Report, r.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("save report %s: %w", r.ID, store.ErrDuplicate)
		}
		return fmt.Errorf("save report %s: %w", r.ID, err)
	}
	return nil
}

func (s *StoreImpl) GetReport(ctx context.Context, id uuid.UUID) (*models.StoredReport, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner, repo, success, final_tags, report, created_at FROM reports WHERE id = ?`, id.String())
	r, err := scanReport(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	query := `SELECT id, owner, repo, success, final_tags, report, created_at FROM reports WHERE 1=1`
	var args []interface{}
	if f.Owner != "" {
		query += ` AND owner = ?`
		args = append(args, f.Owner)
	}
	if f.Repo != "" {
		query += ` AND repo = ?`
		args = append(args, f.Repo)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
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
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row scanner) (*models.StoredReport, error) {
	var (
		r    models.StoredReport
		id   string
		tags string
	)
	if err := row.Scan(&id, &r.Owner, &r.Repo, &r.Success, &tags, &r.Report, &r.CreatedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse report id %q: %w", id, err)
	}
	r.ID = parsed
	if err := json.Unmarshal([]byte(tags), &r.FinalTags); err != nil {
		return nil, fmt.Errorf("decode final tags: %w", err)
	}
	return &r, nil
}

// --- Jobs ---

func (s *StoreImpl) RecordJobEnqueue(ctx context.Context, p store.JobRecordParams) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO background_jobs (job_id, task_type, queue, status, owner, repo, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?) ON CONFLICT (job_id) DO NOTHING`,
		p.JobID.String(), p.TaskType, p.Queue, p.Status, p.Owner, p.Repo, now, now)
	if err != nil {
		return fmt.Errorf("failed to record job enqueue event for JobID %s: %w", p.JobID, err)
	}
	return nil
}

func (s *StoreImpl) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status string, reportID *uuid.UUID, jobErr string) error {
	var rid sql.NullString
	if reportID != nil {
		rid = sql.NullString{String: reportID.String(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE background_jobs SET status = ?, report_id = COALESCE(?, report_id), error = ?, updated_at = ? WHERE job_id = ?`,
		status, rid, jobErr, time.Now().UTC(), jobID.String())
	if err != nil {
		return fmt.Errorf("failed to update job status for job %s: %w", jobID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *StoreImpl) GetJob(ctx context.Context, jobID uuid.UUID) (*models.BackgroundJob, error) {
	var (
		j   models.BackgroundJob
		id  string
		rid sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT job_id, task_type, queue, status, owner, repo, report_id, error, created_at, updated_at
		 FROM background_jobs WHERE job_id = ?`, jobID.String()).
		Scan(&id, &j.TaskType, &j.Queue, &j.Status, &j.Owner, &j.Repo, &rid, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	j.JobID = jobID
	if rid.Valid {
		if parsed, err := uuid.Parse(rid.String); err == nil {
			j.ReportID = &parsed
		}
	}
	return &j, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
