package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"tagforge/internal/models"
)

// --- Provider Status (Defined here so services and handlers share it) ---

type ProviderStatus int

const (
	ProviderStatusUnknown  ProviderStatus = iota // Default zero value
	ProviderStatusActive                         // Provider is operational
	ProviderStatusInactive                       // Provider is temporarily unavailable (e.g., network, rate limit)
	ProviderStatusDisabled                       // Provider is not configured or explicitly disabled
)

func (s ProviderStatus) String() string {
	switch s {
	case ProviderStatusActive:
		return "active"
	case ProviderStatusInactive:
		return "inactive"
	case ProviderStatusDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

// --- Job Client ---

type JobClient interface {
	EnqueueAnalysis(ctx context.Context, owner, repo string, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// --- Report Store ---

// ReportFilter narrows a report listing. Empty fields match everything.
type ReportFilter struct {
	Owner  string
	Repo   string
	Limit  int
	Offset int
}

type ReportStore interface {
	SaveReport(ctx context.Context, report *models.StoredReport) error
	GetReport(ctx context.Context, id uuid.UUID) (*models.StoredReport, error)
	ListReports(ctx context.Context, filter ReportFilter) ([]*models.StoredReport, error)
}

// --- Job Store ---

// JobRecordParams holds parameters for recording a job event.
type JobRecordParams struct {
	JobID    uuid.UUID
	TaskType string
	Queue    string
	Status   string
	Owner    string
	Repo     string
}

type JobStore interface {
	RecordJobEnqueue(ctx context.Context, params JobRecordParams) error
	UpdateJobStatus(ctx context.Context, jobID uuid.UUID, status string, reportID *uuid.UUID, jobErr string) error
	GetJob(ctx context.Context, jobID uuid.UUID) (*models.BackgroundJob, error)
}

// Store is a database holding both analysis reports and job records.
type Store interface {
	ReportStore
	JobStore
	Ping(ctx context.Context) error
	Close() error
}

// --- Embedding Cache ---

// EmbeddingCache stores vectors keyed by model and exact text.
type EmbeddingCache interface {
	GetEmbeddings(ctx context.Context, model string, texts []string) (map[string]models.Vector, error)
	PutEmbeddings(ctx context.Context, model string, vectors map[string]models.Vector) error
}
