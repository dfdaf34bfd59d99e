package jobstore

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

	_ "github.com/mattn/go-sqlite3"

	"github.com/c360studio/ucc/clause"
	"github.com/c360studio/ucc/retry"
)

const schema = `
CREATE TABLE IF NOT EXISTS jobs (
	job_id               TEXT PRIMARY KEY,
	doc_id_a             TEXT NOT NULL,
	doc_id_b             TEXT NOT NULL,
	file_name_a          TEXT DEFAULT '',
	file_name_b          TEXT DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'PENDING',
	current_segment      INTEGER DEFAULT 0,
	current_segment_name TEXT DEFAULT '',
	progress_pct         REAL DEFAULT 0.0,
	error_message        TEXT DEFAULT '',
	retries              INTEGER DEFAULT 0,
	result_data          TEXT,
	created_at           TEXT NOT NULL,
	started_at           TEXT,
	completed_at         TEXT,
	updated_at           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at DESC);
`

// SQLiteStore persists jobs in a local SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the job database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open job db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate job db: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, job *Job) error {
	now := time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now
	if job.Status == "" {
		job.Status = StatusPending
	}
	job.TotalSegments = TotalSegments
	if job.CurrentSegmentName == "" {
		job.CurrentSegmentName = SegmentNames[job.CurrentSegment]
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (job_id, doc_id_a, doc_id_b, file_name_a, file_name_b,
			status, current_segment, current_segment_name, progress_pct,
			error_message, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.JobID, job.DocIDA, job.DocIDB, job.FileNameA, job.FileNameB,
		string(job.Status), job.CurrentSegment, job.CurrentSegmentName,
		job.ProgressPct, job.ErrorMessage,
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return ErrExists
		}
		return retry.Transient(fmt.Errorf("insert job: %w", err))
	}
	return nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, jobID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT job_id, doc_id_a, doc_id_b, file_name_a, file_name_b, status,
			current_segment, current_segment_name, progress_pct, error_message,
			retries, result_data IS NOT NULL, created_at, started_at, completed_at, updated_at
		 FROM jobs WHERE job_id = ?`, jobID)
	return scanJob(row)
}

// Update implements Store. The write runs in a transaction so the transition
// check and the row update are atomic against other workers.
func (s *SQLiteStore) Update(ctx context.Context, jobID string, update Update) (*Job, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("begin update: %w", err))
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT job_id, doc_id_a, doc_id_b, file_name_a, file_name_b, status,
			current_segment, current_segment_name, progress_pct, error_message,
			retries, result_data IS NOT NULL, created_at, started_at, completed_at, updated_at
		 FROM jobs WHERE job_id = ?`, jobID)
	job, err := scanJob(row)
	if err != nil {
		return nil, err
	}

	if update.Status != nil && *update.Status != job.Status {
		if job.Status.Terminal() {
			return nil, ErrTerminal
		}
		if !job.Status.CanTransition(*update.Status) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrBadChange, job.Status, *update.Status)
		}
		job.Status = *update.Status
	}
	applyUpdate(job, update)
	job.UpdatedAt = time.Now().UTC()

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status=?, current_segment=?, current_segment_name=?,
			progress_pct=?, error_message=?, retries=?, started_at=?, completed_at=?, updated_at=?
		 WHERE job_id = ?`,
		string(job.Status), job.CurrentSegment, job.CurrentSegmentName,
		job.ProgressPct, job.ErrorMessage, job.Retries,
		formatTimePtr(job.StartedAt), formatTimePtr(job.CompletedAt),
		formatTime(job.UpdatedAt), jobID)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("update job: %w", err))
	}
	if err := tx.Commit(); err != nil {
		return nil, retry.Transient(fmt.Errorf("commit update: %w", err))
	}
	return job, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, filter Filter) ([]*Job, error) {
	query := `SELECT job_id, doc_id_a, doc_id_b, file_name_a, file_name_b, status,
		current_segment, current_segment_name, progress_pct, error_message,
		retries, result_data IS NOT NULL, created_at, started_at, completed_at, updated_at
	 FROM jobs`
	var args []any
	if filter.Status != "" {
		query += " WHERE status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at DESC, job_id LIMIT ? OFFSET ?"
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("list jobs: %w", err))
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// SetResult implements Store.
func (s *SQLiteStore) SetResult(ctx context.Context, jobID string, result *clause.ComparisonResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET result_data = ?, updated_at = ? WHERE job_id = ?`,
		string(data), formatTime(time.Now().UTC()), jobID)
	if err != nil {
		return retry.Transient(fmt.Errorf("store result: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetResult implements Store.
func (s *SQLiteStore) GetResult(ctx context.Context, jobID string) (*clause.ComparisonResult, error) {
	var data sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT result_data FROM jobs WHERE job_id = ?`, jobID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("load result: %w", err))
	}
	if !data.Valid || data.String == "" {
		return nil, ErrNoResult
	}
	var result clause.ComparisonResult
	if err := json.Unmarshal([]byte(data.String), &result); err != nil {
		return nil, fmt.Errorf("decode result: %w", err)
	}
	return &result, nil
}

// Delete implements Store.
func (s *SQLiteStore) Delete(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return retry.Transient(fmt.Errorf("delete job: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListExpired implements Store.
func (s *SQLiteStore) ListExpired(ctx context.Context, ttl time.Duration, now time.Time) ([]*Job, error) {
	cutoff := formatTime(now.Add(-ttl).UTC())
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, doc_id_a, doc_id_b, file_name_a, file_name_b, status,
			current_segment, current_segment_name, progress_pct, error_message,
			retries, result_data IS NOT NULL, created_at, started_at, completed_at, updated_at
		 FROM jobs
		 WHERE status IN ('COMPLETED','FAILED','CANCELLED')
		   AND completed_at IS NOT NULL AND completed_at < ?`, cutoff)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("list expired jobs: %w", err))
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func applyUpdate(job *Job, update Update) {
	if update.CurrentSegment != nil {
		job.CurrentSegment = *update.CurrentSegment
		job.CurrentSegmentName = SegmentNames[*update.CurrentSegment]
		job.ProgressPct = ProgressPct(*update.CurrentSegment)
	}
	if update.CurrentSegmentName != nil {
		job.CurrentSegmentName = *update.CurrentSegmentName
	}
	if update.ProgressPct != nil {
		job.ProgressPct = *update.ProgressPct
	}
	if update.ErrorMessage != nil {
		job.ErrorMessage = *update.ErrorMessage
	}
	if update.Retries != nil {
		job.Retries = *update.Retries
	}
	if update.StartedAt != nil {
		job.StartedAt = update.StartedAt
	}
	if update.CompletedAt != nil {
		job.CompletedAt = update.CompletedAt
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var status string
	var createdAt, updatedAt string
	var startedAt, completedAt sql.NullString
	err := row.Scan(&job.JobID, &job.DocIDA, &job.DocIDB, &job.FileNameA,
		&job.FileNameB, &status, &job.CurrentSegment, &job.CurrentSegmentName,
		&job.ProgressPct, &job.ErrorMessage, &job.Retries, &job.HasResult,
		&createdAt, &startedAt, &completedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("scan job: %w", err))
	}
	job.Status = JobStatus(status)
	job.TotalSegments = TotalSegments
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	if startedAt.Valid {
		t := parseTime(startedAt.String)
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		job.CompletedAt = &t
	}
	return &job, nil
}

// timeLayout keeps a fixed-width fraction so lexicographic order in SQL
// matches chronological order (RFC3339Nano trims trailing zeros).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func formatTimePtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}
