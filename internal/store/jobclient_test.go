package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tagforge/internal/models"
	"tagforge/internal/tasks"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	info := &asynq.TaskInfo{Type: task.Type(), Payload: task.Payload(), Queue: "default"}
	for _, o := range opts {
		switch o.Type() {
		case asynq.QueueOpt:
			info.Queue = o.Value().(string)
		case asynq.TaskIDOpt:
			info.ID = o.Value().(string)
		}
	}
	return info, nil
}

func (f *fakeEnqueuer) Close() error { return nil }

type mockJobStore struct {
	mock.Mock
}

func (m *mockJobStore) RecordJobEnqueue(ctx context.Context, p JobRecordParams) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockJobStore) UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status string, reportID *uuid.UUID, jobErr string) error {
	return m.Called(ctx, jobID, status, reportID, jobErr).Error(0)
}

func (m *mockJobStore) GetJob(ctx context.Context, jobID uuid.UUID) (*models.BackgroundJob, error) {
	args := m.Called(ctx, jobID)
	job, _ := args.Get(0).(*models.BackgroundJob)
	return job, args.Error(1)
}

func TestEnqueueAnalysis_RecordsJob(t *testing.T) {
	enq := &fakeEnqueuer{}
	js := &mockJobStore{}
	js.On("RecordJobEnqueue", mock.Anything, mock.MatchedBy(func(p JobRecordParams) bool {
		return p.Owner == "acme" && p.Repo == "widget" && p.Status == models.JobStatusEnqueued &&
			p.Queue == tasks.QueueAnalyses && p.TaskType == tasks.TypeAnalysisJob && p.JobID != uuid.Nil
	})).Return(nil).Once()

	jc := &AsynqJobClient{client: enq, jobStore: js}
	info, err := jc.EnqueueAnalysis(context.Background(), "acme", "widget")
	require.NoError(t, err)
	assert.Equal(t, tasks.QueueAnalyses, info.Queue)
	_, err = uuid.Parse(info.ID)
	assert.NoError(t, err)

	require.Len(t, enq.tasks, 1)
	payload, err := tasks.ParseAnalysisPayload(enq.tasks[0].Payload())
	require.NoError(t, err)
	assert.Equal(t, tasks.AnalysisPayload{Owner: "acme", Repo: "widget", JobID: info.ID}, payload)
	js.AssertExpectations(t)
}

func TestEnqueueAnalysis_RecordFailureIsNotFatal(t *testing.T) {
	js := &mockJobStore{}
	js.On("RecordJobEnqueue", mock.Anything, mock.Anything).Return(errors.New("db down"))
	jc := &AsynqJobClient{client: &fakeEnqueuer{}, jobStore: js}

	_, err := jc.EnqueueAnalysis(context.Background(), "acme", "widget")
	assert.NoError(t, err)
}

func TestEnqueueAnalysis_Errors(t *testing.T) {
	jc := &AsynqJobClient{client: &fakeEnqueuer{}}
	_, err := jc.EnqueueAnalysis(context.Background(), " ", "widget")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)

	boom := errors.New("redis unavailable")
	jc = &AsynqJobClient{client: &fakeEnqueuer{err: boom}}
	_, err = jc.EnqueueAnalysis(context.Background(), "acme", "widget")
	assert.ErrorIs(t, err, boom)
}

func TestProviderStatusString(t *testing.T) {
	assert.Equal(t, "active", ProviderStatusActive.String())
	assert.Equal(t, "disabled", ProviderStatusDisabled.String())
	assert.Equal(t, "unknown", ProviderStatus(42).String())
}
