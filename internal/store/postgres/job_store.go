// Package postgres provides a Postgres-backed linkcheck.JobStore.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

const defaultTable = "analysis_jobs"

// Config controls the Postgres connection pool used for job rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	Migrate         bool
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// JobStore persists jobs and results in a single table; results are JSONB.
type JobStore struct {
	pool  pool
	table string
}

// NewJobStore connects to Postgres and optionally creates the table.
func NewJobStore(ctx context.Context, cfg Config) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewJobStoreWithPool(p, cfg.Table)
	if err != nil {
		p.Close()
		return nil, err
	}
	if cfg.Migrate {
		if err := store.EnsureSchema(ctx); err != nil {
			p.Close()
			return nil, err
		}
	}
	return store, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(p pool, table string) (*JobStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &JobStore{pool: p, table: table}, nil
}

// EnsureSchema creates the jobs table when missing.
func (s *JobStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	id                TEXT PRIMARY KEY,
	owner_id          TEXT NOT NULL DEFAULT '',
	target_url        TEXT NOT NULL,
	include_external  BOOLEAN NOT NULL,
	status            TEXT NOT NULL,
	progress          INTEGER NOT NULL DEFAULT 0,
	pages_analyzed    INTEGER NOT NULL DEFAULT 0,
	links_found       INTEGER NOT NULL DEFAULT 0,
	broken_link_count INTEGER NOT NULL DEFAULT 0,
	started_at        TIMESTAMPTZ NOT NULL,
	completed_at      TIMESTAMPTZ,
	error             TEXT NOT NULL DEFAULT '',
	result            JSONB
);
CREATE INDEX IF NOT EXISTS %[1]s_owner_started_idx ON %[1]s (owner_id, started_at DESC)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create jobs table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Create inserts a job row; the primary key rejects duplicates.
func (s *JobStore) Create(ctx context.Context, job linkcheck.Job) error {
	query := fmt.Sprintf(`
INSERT INTO %s (
	id, owner_id, target_url, include_external, status,
	progress, pages_analyzed, links_found, broken_link_count,
	started_at, completed_at, error
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
ON CONFLICT (id) DO NOTHING`, s.table)
	tag, err := s.pool.Exec(ctx, query,
		job.ID,
		job.OwnerID,
		job.TargetURL,
		job.IncludeExternal,
		string(job.Status),
		job.Progress,
		job.PagesAnalyzed,
		job.LinksFound,
		job.BrokenLinkCount,
		job.StartedAt,
		job.CompletedAt,
		job.Error,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", linkcheck.ErrJobExists, job.ID)
	}
	return nil
}

const jobColumns = `id, owner_id, target_url, include_external, status,
	progress, pages_analyzed, links_found, broken_link_count,
	started_at, completed_at, error`

// Get fetches a job by ID.
func (s *JobStore) Get(ctx context.Context, jobID string) (linkcheck.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, jobColumns, s.table)
	job, err := scanJob(s.pool.QueryRow(ctx, query, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return linkcheck.Job{}, linkcheck.ErrJobNotFound
	}
	if err != nil {
		return linkcheck.Job{}, fmt.Errorf("select job: %w", err)
	}
	return job, nil
}

// UpdateStatus applies the transition atomically: the row only changes when
// its current status is a legal source for status.
func (s *JobStore) UpdateStatus(
	ctx context.Context,
	jobID string,
	status linkcheck.Status,
	patch linkcheck.StatusPatch,
) error {
	sources := make([]string, 0, 2)
	for _, from := range linkcheck.SourceStatuses(status) {
		sources = append(sources, string(from))
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	error = CASE WHEN $3 = '' THEN error ELSE $3 END,
	completed_at = COALESCE($4, completed_at)
WHERE id = $1 AND status = ANY($5)`, s.table)
	tag, err := s.pool.Exec(ctx, query, jobID, string(status), patch.Error, patch.CompletedAt, sources)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	current, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s -> %s", linkcheck.ErrInvalidTransition, current.Status, status)
}

// UpdateProgress merges counters with GREATEST so they never decrease.
func (s *JobStore) UpdateProgress(ctx context.Context, jobID string, progress linkcheck.Progress) error {
	query := fmt.Sprintf(`
UPDATE %s SET
	progress = GREATEST(progress, LEAST($2, 100)),
	pages_analyzed = GREATEST(pages_analyzed, $3),
	links_found = GREATEST(links_found, $4),
	broken_link_count = GREATEST(broken_link_count, $5)
WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query,
		jobID, progress.Percent, progress.PagesAnalyzed, progress.LinksFound, progress.BrokenLinkCount)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return linkcheck.ErrJobNotFound
	}
	return nil
}

// SaveResult stores the result once; later calls fail with ErrResultExists.
func (s *JobStore) SaveResult(ctx context.Context, jobID string, result linkcheck.Result) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	query := fmt.Sprintf(`UPDATE %s SET result = $2 WHERE id = $1 AND result IS NULL AND status = $3`, s.table)
	tag, err := s.pool.Exec(ctx, query, jobID, data, string(linkcheck.StatusRunning))
	if err != nil {
		return fmt.Errorf("save result: %w", err)
	}
	if tag.RowsAffected() > 0 {
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

// GetResult loads the saved result.
func (s *JobStore) GetResult(ctx context.Context, jobID string) (linkcheck.Result, error) {
	query := fmt.Sprintf(`SELECT result FROM %s WHERE id = $1`, s.table)
	var data []byte
	err := s.pool.QueryRow(ctx, query, jobID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
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
	countQuery := fmt.Sprintf(`SELECT count(*) FROM %s WHERE ($1 = '' OR owner_id = $1)`, s.table)
	if err := s.pool.QueryRow(ctx, countQuery, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count jobs: %w", err)
	}

	query := fmt.Sprintf(`
SELECT %s FROM %s
WHERE ($1 = '' OR owner_id = $1)
ORDER BY started_at DESC, id DESC
LIMIT $2 OFFSET $3`, jobColumns, s.table)
	rows, err := s.pool.Query(ctx, query, ownerID, limit, offset)
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

func scanJob(row pgx.Row) (linkcheck.Job, error) {
	var (
		job    linkcheck.Job
		status string
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
		&job.StartedAt,
		&job.CompletedAt,
		&job.Error,
	)
	if err != nil {
		return linkcheck.Job{}, err
	}
	job.Status = linkcheck.Status(status)
	job.StartedAt = job.StartedAt.UTC()
	return job, nil
}
