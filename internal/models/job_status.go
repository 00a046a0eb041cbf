package models

/*
Job and task status constants for background analysis runs.
*/

// Job status constants
const (
	JobStatusEnqueued  = "enqueued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// Usage service types recorded by the cost tracker.
const (
	ServiceTypeEmbedding  = "embedding"
	ServiceTypeGeneration = "generation"
	ServiceTypeEvaluation = "evaluation"
	ServiceTypeRevision   = "revision"
)
