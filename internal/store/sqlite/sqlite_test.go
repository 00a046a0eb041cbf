package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagforge/internal/models"
	"tagforge/internal/store"
)

func newTestStore(t *testing.T) *StoreImpl {
	t.Helper()
	s, err := NewStore(context.Background(), filepath.Join(t.TempDir(), "tagforge.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewStore_EmptyPath(t *testing.T) {
	_, err := NewStore(context.Background(), "")
	require.Error(t, err)
}

func TestReports_SaveGetList(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Ping(ctx))

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	older := &models.StoredReport{Owner: "acme", Repo: "widget", Success: true, FinalTags: []string{"go", "cli"}, Report: []byte(`{"a":1}`), CreatedAt: base}
	newer := &models.StoredReport{Owner: "acme", Repo: "widget", Success: false, Report: []byte(`{}`), CreatedAt: base.Add(time.Hour)}
	other := &models.StoredReport{Owner: "other", Repo: "thing", Success: true, FinalTags: []string{"rust"}, Report: []byte(`{}`), CreatedAt: base}
	for _, r := range []*models.StoredReport{older, newer, other} {
		require.NoError(t, s.SaveReport(ctx, r))
		assert.NotEqual(t, uuid.Nil, r.ID)
	}

	got, err := s.GetReport(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, "acme", got.Owner)
	assert.True(t, got.Success)
	assert.Equal(t, []string{"go", "cli"}, got.FinalTags)
	assert.JSONEq(t, `{"a":1}`, string(got.Report))
	assert.True(t, base.Equal(got.CreatedAt))

	list, err := s.ListReports(ctx, store.ReportFilter{Owner: "acme", Repo: "widget"})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].ID, "newest first")
	assert.Equal(t, []string{}, list[0].FinalTags)

	all, err := s.ListReports(ctx, store.ReportFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestReports_NotFoundAndDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.GetReport(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)

	r := &models.StoredReport{Owner: "a", Repo: "b", Report: []byte(`{}`)}
	require.NoError(t, s.SaveReport(ctx, r))
	dup := *r
	assert.ErrorIs(t, s.SaveReport(ctx, &dup), store.ErrDuplicate)
}

func TestJobs_Lifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	jobID := uuid.New()

	require.NoError(t, s.RecordJobEnqueue(ctx, store.JobRecordParams{
		JobID: jobID, TaskType: "analysis:run", Queue: "analyses", Status: models.JobStatusEnqueued, Owner: "acme", Repo: "widget",
	}))
	// Recording twice is harmless.
	require.NoError(t, s.RecordJobEnqueue(ctx, store.JobRecordParams{
		JobID: jobID, TaskType: "analysis:run", Queue: "analyses", Status: models.JobStatusEnqueued, Owner: "acme", Repo: "widget",
	}))

	job, err := s.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusEnqueued, job.Status)
	assert.Nil(t, job.ReportID)

	require.NoError(t, s.UpdateJobStatus(ctx, jobID, models.JobStatusRunning, nil, ""))
	reportID := uuid.New()
	require.NoError(t, s.UpdateJobStatus(ctx, jobID, models.JobStatusCompleted, &reportID, ""))

	job, err = s.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCompleted, job.Status)
	require.NotNil(t, job.ReportID)
	assert.Equal(t, reportID, *job.ReportID)

	assert.ErrorIs(t, s.UpdateJobStatus(ctx, uuid.New(), models.JobStatusFailed, nil, "x"), store.ErrNotFound)
	_, err = s.GetJob(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
