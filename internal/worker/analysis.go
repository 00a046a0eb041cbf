// Package worker holds the asynq task handlers run by `tagforge worker`.
package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	log "github.com/sirupsen/logrus"

	"tagforge/internal/models"
	"tagforge/internal/pipeline"
	"tagforge/internal/store"
	"tagforge/internal/tasks"
)

// Analyzer runs the pipeline for one repository.
type Analyzer interface {
	Run(ctx context.Context, owner, repo string) pipeline.AnalysisReport
}

// AnalysisDeps holds dependencies for the analysis job handler. Jobs may be
// nil when job bookkeeping is not configured.
type AnalysisDeps struct {
	Analyzer Analyzer
	Reports  store.ReportStore
	Jobs     store.JobStore
}

// RegisterHandlers registers every task handler on mux.
func RegisterHandlers(mux *asynq.ServeMux, deps AnalysisDeps) {
	log.Infof("Registering %s handler", tasks.TypeAnalysisJob)
	mux.HandleFunc(tasks.TypeAnalysisJob, HandleAnalysisJob(deps))
}

// HandleAnalysisJob runs one analysis, stores its report and keeps the job
// record in step. A pipeline failure is final: the report is still stored
// and the task is not retried. Storage errors are returned for a retry.
func HandleAnalysisJob(deps AnalysisDeps) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, t *asynq.Task) error {
		payload, err := tasks.ParseAnalysisPayload(t.Payload())
		jobID, hasJob := jobIDFor(ctx, payload)
		if err != nil {
			log.Errorf("Rejecting analysis task: %v", err)
			deps.markJob(ctx, jobID, hasJob, models.JobStatusFailed, nil, err.Error())
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		deps.markJob(ctx, jobID, hasJob, models.JobStatusRunning, nil, "")
		log.Infof("Processing analysis job for %s/%s", payload.Owner, payload.Repo)

		report := deps.Analyzer.Run(ctx, payload.Owner, payload.Repo)
		if errors.Is(ctx.Err(), context.Canceled) {
			deps.markJob(context.WithoutCancel(ctx), jobID, hasJob, models.JobStatusCancelled, nil, report.Error)
			return ctx.Err()
		}

		stored, err := report.Stored()
		if err != nil {
			return err
		}
		if err := deps.Reports.SaveReport(ctx, &stored); err != nil {
			log.Errorf("Failed to save report %s for %s/%s: %v", stored.ID, payload.Owner, payload.Repo, err)
			return fmt.Errorf("save report: %w", err)
		}

		if !report.Success {
			deps.markJob(ctx, jobID, hasJob, models.JobStatusFailed, &stored.ID, report.Error)
			log.Warnf("Analysis of %s/%s failed at %s: %s", payload.Owner, payload.Repo, report.FailedAtStep, report.Error)
			return fmt.Errorf("%w: %w", report.Err(), asynq.SkipRetry)
		}

		deps.markJob(ctx, jobID, hasJob, models.JobStatusCompleted, &stored.ID, "")
		log.Infof("Analysis of %s/%s completed with %d final tags (report %s)",
			payload.Owner, payload.Repo, len(report.FinalTags), stored.ID)
		return nil
	}
}

// jobIDFor prefers the job ID carried in the payload and falls back to the
// asynq task ID.
func jobIDFor(ctx context.Context, payload tasks.AnalysisPayload) (uuid.UUID, bool) {
	raw := payload.JobID
	if raw == "" {
		var ok bool
		if raw, ok = asynq.GetTaskID(ctx); !ok {
			return uuid.Nil, false
		}
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		log.Debugf("Task ID %q is not a job UUID; job status will not be tracked", raw)
		return uuid.Nil, false
	}
	return id, true
}

func (d AnalysisDeps) markJob(ctx context.Context, jobID uuid.UUID, ok bool, status string, reportID *uuid.UUID, jobErr string) {
	if d.Jobs == nil || !ok {
		return
	}
	if err := d.Jobs.UpdateJobStatus(ctx, jobID, status, reportID, jobErr); err != nil {
		log.Errorf("Failed to update job %s to %s: %v", jobID, status, err)
	}
}
