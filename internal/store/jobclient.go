package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"tagforge/internal/models"
	"tagforge/internal/tasks"
)

// asynqEnqueuer is the part of *asynq.Client the job client uses.
type asynqEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// AsynqJobClient is a concrete JobClient.
// It enqueues analysis tasks and records them to the JobStore.
type AsynqJobClient struct {
	client   asynqEnqueuer
	jobStore JobStore
}

var _ JobClient = (*AsynqJobClient)(nil)

// NewAsynqJobClient connects to Redis. js may be nil, in which case enqueues
// are not recorded.
func NewAsynqJobClient(redis asynq.RedisClientOpt, js JobStore) *AsynqJobClient {
	return &AsynqJobClient{client: asynq.NewClient(redis), jobStore: js}
}

func (jc *AsynqJobClient) Close() error {
	return jc.client.Close()
}

// EnqueueAnalysis queues an analysis of owner/repo. The task ID is a UUID so
// the job record and the task share one identifier.
func (jc *AsynqJobClient) EnqueueAnalysis(ctx context.Context, owner, repo string, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	jobID := uuid.New()
	payload, err := tasks.NewAnalysisPayload(owner, repo, jobID.String())
	if err != nil {
		return nil, fmt.Errorf("enqueue analysis: %w: %w", models.ErrInvalidArgument, err)
	}

	opts = append([]asynq.Option{asynq.Queue(tasks.QueueAnalyses), asynq.TaskID(jobID.String())}, opts...)
	task := asynq.NewTask(tasks.TypeAnalysisJob, payload)

	info, err := jc.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		log.Errorf("Failed to enqueue task type '%s' for %s/%s: %v", task.Type(), owner, repo, err)
		return nil, fmt.Errorf("enqueue analysis of %s/%s: %w", owner, repo, err)
	}
	log.Debugf("Enqueued task type '%s', id %s, queue %s", task.Type(), info.ID, info.Queue)

	if jc.jobStore != nil {
		params := JobRecordParams{
			JobID:    jobID,
			TaskType: task.Type(),
			Queue:    info.Queue,
			Status:   models.JobStatusEnqueued,
			Owner:    owner,
			Repo:     repo,
		}
		// The task is already queued; a bookkeeping failure must not fail the call.
		if err := jc.jobStore.RecordJobEnqueue(ctx, params); err != nil {
			log.Errorf("Failed to record job enqueue event for task %s: %v", info.ID, err)
		}
	}
	return info, nil
}
