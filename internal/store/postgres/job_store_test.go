package postgres

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/broken-link-analyzer/internal/linkcheck"
)

var started = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

var jobCols = []string{
	"id", "owner_id", "target_url", "include_external", "status",
	"progress", "pages_analyzed", "links_found", "broken_link_count",
	"started_at", "completed_at", "error",
}

func newMockStore(t *testing.T) (*JobStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewJobStoreWithPool(mock, "")
	require.NoError(t, err)
	return store, mock
}

func TestNewJobStoreWithPoolValidatesTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewJobStoreWithPool(mock, "jobs; DROP TABLE x")
	require.Error(t, err)
	_, err = NewJobStoreWithPool(nil, "jobs")
	require.Error(t, err)
	_, err = NewJobStore(context.Background(), Config{})
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS analysis_jobs").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInsertsRow(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	job := linkcheck.Job{
		ID:              "job-1",
		OwnerID:         "owner",
		TargetURL:       "https://example.com/",
		IncludeExternal: true,
		Status:          linkcheck.StatusPending,
		StartedAt:       started,
	}

	mock.ExpectExec("INSERT INTO analysis_jobs").
		WithArgs("job-1", "owner", "https://example.com/", true, "pending",
			0, 0, 0, 0, started, pgxmock.AnyArg(), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO analysis_jobs").
		WithArgs("job-1", "owner", "https://example.com/", true, "pending",
			0, 0, 0, 0, started, pgxmock.AnyArg(), "").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, store.Create(context.Background(), job))
	require.ErrorIs(t, store.Create(context.Background(), job), linkcheck.ErrJobExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMapsRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	done := started.Add(time.Minute)
	mock.ExpectQuery("SELECT id, owner_id").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(jobCols).AddRow(
			"job-1", "owner", "https://example.com/", false, "completed",
			100, 1, 4, 1, started, &done, "",
		))
	mock.ExpectQuery("SELECT id, owner_id").
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	job, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, linkcheck.StatusCompleted, job.Status)
	require.Equal(t, 100, job.Progress)
	require.Equal(t, 4, job.LinksFound)
	require.NotNil(t, job.CompletedAt)

	_, err = store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, linkcheck.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusGuardsTransitions(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec("UPDATE analysis_jobs SET").
		WithArgs("job-1", "cancelled", "", pgxmock.AnyArg(), []string{"pending", "running"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.UpdateStatus(ctx, "job-1", linkcheck.StatusCancelled, linkcheck.StatusPatch{}))

	mock.ExpectExec("UPDATE analysis_jobs SET").
		WithArgs("job-1", "completed", "", pgxmock.AnyArg(), []string{"running"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT id, owner_id").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(jobCols).AddRow(
			"job-1", "", "https://example.com/", true, "cancelled",
			0, 0, 0, 0, started, nil, "",
		))
	err := store.UpdateStatus(ctx, "job-1", linkcheck.StatusCompleted, linkcheck.StatusPatch{})
	require.ErrorIs(t, err, linkcheck.ErrInvalidTransition)

	mock.ExpectExec("UPDATE analysis_jobs SET").
		WithArgs("ghost", "running", "", pgxmock.AnyArg(), []string{"pending"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT id, owner_id").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)
	err = store.UpdateStatus(ctx, "ghost", linkcheck.StatusRunning, linkcheck.StatusPatch{})
	require.ErrorIs(t, err, linkcheck.ErrJobNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateProgress(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("GREATEST").
		WithArgs("job-1", 40, 1, 10, 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("GREATEST").
		WithArgs("ghost", 5, 0, 0, 0).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	require.NoError(t, store.UpdateProgress(context.Background(), "job-1",
		linkcheck.Progress{Percent: 40, PagesAnalyzed: 1, LinksFound: 10, BrokenLinkCount: 2}))
	require.ErrorIs(t, store.UpdateProgress(context.Background(), "ghost",
		linkcheck.Progress{Percent: 5}), linkcheck.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAndGetResult(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	ctx := context.Background()
	result := linkcheck.BuildResult("job-1", "https://example.com/", 1, []linkcheck.CheckedLink{
		{URL: "https://example.com/x", Classification: linkcheck.Internal, StatusCode: 404, ErrorType: "Not Found"},
	}, time.Second)
	data, err := json.Marshal(result)
	require.NoError(t, err)

	mock.ExpectExec("UPDATE analysis_jobs SET result").
		WithArgs("job-1", data, "running").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, store.SaveResult(ctx, "job-1", result))

	mock.ExpectExec("UPDATE analysis_jobs SET result").
		WithArgs("job-1", data, "running").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT id, owner_id").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows(jobCols).AddRow(
			"job-1", "", "https://example.com/", true, "running",
			95, 1, 1, 1, started, nil, "",
		))
	require.ErrorIs(t, store.SaveResult(ctx, "job-1", result), linkcheck.ErrResultExists)

	mock.ExpectExec("UPDATE analysis_jobs SET result").
		WithArgs("job-2", data, "running").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT id, owner_id").
		WithArgs("job-2").
		WillReturnRows(pgxmock.NewRows(jobCols).AddRow(
			"job-2", "", "https://example.com/", true, "cancelled",
			40, 1, 1, 0, started, nil, "",
		))
	require.ErrorIs(t, store.SaveResult(ctx, "job-2", result), linkcheck.ErrJobNotRunning)

	mock.ExpectQuery("SELECT result FROM analysis_jobs").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{"result"}).AddRow(data))
	got, err := store.GetResult(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, result, got)

	mock.ExpectQuery("SELECT result FROM analysis_jobs").
		WithArgs("job-2").
		WillReturnRows(pgxmock.NewRows([]string{"result"}).AddRow([]byte(nil)))
	_, err = store.GetResult(ctx, "job-2")
	require.ErrorIs(t, err, linkcheck.ErrResultNotFound)

	mock.ExpectQuery("SELECT result FROM analysis_jobs").
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)
	_, err = store.GetResult(ctx, "ghost")
	require.ErrorIs(t, err, linkcheck.ErrJobNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListHistory(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT count").
		WithArgs("owner").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery("ORDER BY started_at DESC").
		WithArgs("owner", 2, 2).
		WillReturnRows(pgxmock.NewRows(jobCols).AddRow(
			"job-1", "owner", "https://example.com/", true, "completed",
			100, 1, 3, 0, started, nil, "",
		))

	jobs, total, err := store.ListHistory(context.Background(), "owner", 2, 2)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, jobs, 1)
	require.Equal(t, "job-1", jobs[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}
