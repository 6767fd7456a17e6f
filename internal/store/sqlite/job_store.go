// Package sqlite provides an embedded linkcheck.JobStore backed by SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	// registers the sqlite3 driver
	_ "github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
)

// JobStore keeps jobs in a single SQLite table. Times are unix nanoseconds.
type JobStore struct {
	db *sql.DB
}

// NewJobStore opens or creates the database at path and initializes the schema.
func NewJobStore(ctx context.Context, path string) (*JobStore, error) {
	if path == "" {
		return nil, fmt.Errorf("store.sqlite.path is required")
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// one writer keeps SQLITE_BUSY out of concurrent workers
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	store := &JobStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *JobStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS analysis_jobs (
		id                TEXT PRIMARY KEY,
		owner_id          TEXT NOT NULL DEFAULT '',
		target_url        TEXT NOT NULL,
		include_external  INTEGER NOT NULL,
		status            TEXT NOT NULL,
		progress          INTEGER NOT NULL DEFAULT 0,
		pages_analyzed    INTEGER NOT NULL DEFAULT 0,
		links_found       INTEGER NOT NULL DEFAULT 0,
		broken_link_count INTEGER NOT NULL DEFAULT 0,
		started_at        INTEGER NOT NULL,
		completed_at      INTEGER,
		error             TEXT NOT NULL DEFAULT '',
		result            BLOB
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_owner_started ON analysis_jobs(owner_id, started_at DESC);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database.
func (s *JobStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// Create inserts a job; a duplicate id fails with ErrJobExists.
func (s *JobStore) Create(ctx context.Context, job linkcheck.Job) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_jobs (
			id, owner_id, target_url, include_external, status,
			progress, pages_analyzed, links_found, broken_link_count,
			started_at, completed_at, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		job.ID, job.OwnerID, job.TargetURL, job.IncludeExternal, string(job.Status),
		job.Progress, job.PagesAnalyzed, job.LinksFound, job.BrokenLinkCount,
		job.StartedAt.UnixNano(), nanos(job.CompletedAt), job.Error,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", linkcheck.ErrJobExists, job.ID)
	}
	return nil
}

const jobColumns = `id, owner_id, target_url, include_external, status,
	progress, pages_analyzed, links_found, broken_link_count,
	started_at, completed_at, error`

type scanner interface {
	Scan(dest ...any) error
}

// Get retrieves a job by id.
func (s *JobStore) Get(ctx context.Context, jobID string) (linkcheck.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM analysis_jobs WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return linkcheck.Job{}, linkcheck.ErrJobNotFound
	}
	if err != nil {
		return linkcheck.Job{}, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// UpdateStatus changes the status only from a legal source state.
func (s *JobStore) UpdateStatus(
	ctx context.Context,
	jobID string,
	status linkcheck.Status,
	patch linkcheck.StatusPatch,
) error {
	sources := linkcheck.SourceStatuses(status)
	args := []any{string(status), patch.Error, patch.Error, nanos(patch.CompletedAt), jobID}
	placeholders := make([]string, 0, len(sources))
	for _, from := range sources {
		placeholders = append(placeholders, "?")
		args = append(args, string(from))
	}
	if len(placeholders) == 0 {
		placeholders = append(placeholders, "NULL")
	}
	query := `
		UPDATE analysis_jobs SET
			status = ?,
			error = CASE WHEN ? = '' THEN error ELSE ? END,
			completed_at = COALESCE(?, completed_at)
		WHERE id = ? AND status IN (` + strings.Join(placeholders, ", ") + `)`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	current, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", linkcheck.ErrInvalidTransition, current.Status, status)
}

// UpdateProgress merges counters monotonically.
func (s *JobStore) UpdateProgress(ctx context.Context, jobID string, progress linkcheck.Progress) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analysis_jobs SET
			progress = MAX(progress, MIN(?, 100)),
			pages_analyzed = MAX(pages_analyzed, ?),
			links_found = MAX(links_found, ?),
			broken_link_count = MAX(broken_link_count, ?)
		WHERE id = ?
	`, progress.Percent, progress.PagesAnalyzed, progress.LinksFound, progress.BrokenLinkCount, jobID)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return linkcheck.ErrJobNotFound
	}
	return nil
}

// SaveResult stores the result JSON once.
func (s *JobStore) SaveResult(ctx context.Context, jobID string, result linkcheck.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE analysis_jobs SET result = ? WHERE id = ? AND result IS NULL AND status = ?`,
		data, jobID, string(linkcheck.StatusRunning))
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != linkcheck.StatusRunning {
		return fmt.Errorf("%w: %s", linkcheck.ErrJobNotRunning, job.Status)
	}
	return linkcheck.ErrResultExists
}

// GetResult loads a saved result.
func (s *JobStore) GetResult(ctx context.Context, jobID string) (linkcheck.Result, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT result FROM analysis_jobs WHERE id = ?`, jobID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return linkcheck.Result{}, linkcheck.ErrJobNotFound
	}
	if err != nil {
		return linkcheck.Result{}, fmt.Errorf("select result: %w", err)
	}
	if len(data) == 0 {
		return linkcheck.Result{}, linkcheck.ErrResultNotFound
	}
	var result linkcheck.Result
	if err := json.Unmarshal(data, &result); err != nil {
		return linkcheck.Result{}, fmt.Errorf("unmarshal result: %w", err)
	}
	return result, nil
}

// ListHistory returns a newest-first page of jobs and the total match count.
func (s *JobStore) ListHistory(ctx context.Context, ownerID string, page, limit int) ([]linkcheck.Job, int, error) {
	offset, limit := linkcheck.PageBounds(page, limit)

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analysis_jobs WHERE (? = '' OR owner_id = ?)`, ownerID, ownerID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM analysis_jobs
		WHERE (? = '' OR owner_id = ?)
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, ownerID, ownerID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]linkcheck.Job, 0, limit)
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate jobs: %w", err)
	}
	return jobs, total, nil
}

func scanJob(row scanner) (linkcheck.Job, error) {
	var (
		job       linkcheck.Job
		status    string
		started   int64
		completed sql.NullInt64
	)
	err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.TargetURL,
		&job.IncludeExternal,
		&status,
		&job.Progress,
		&job.PagesAnalyzed,
		&job.LinksFound,
		&job.BrokenLinkCount,
		&started,
		&completed,
		&job.Error,
	)
	if err != nil {
		return linkcheck.Job{}, err
	}
	job.Status = linkcheck.Status(status)
	job.StartedAt = time.Unix(0, started).UTC()
	if completed.Valid {
		t := time.Unix(0, completed.Int64).UTC()
		job.CompletedAt = &t
	}
	return job, nil
}

func nanos(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
