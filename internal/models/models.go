package models

import (
	"time"

	"github.com/google/uuid"
)

// Vector is an embedding as returned by an embedding provider. All vectors
// compared with each other must share a dimension.
type Vector []float32

// TextChunk is one bounded, possibly overlapping segment of source text.
type TextChunk struct {
	Text    string `json:"text"`
	Ordinal int    `json:"ordinal"`
}

// ChunkVector pairs a chunk of text with its embedding.
type ChunkVector struct {
	Text   string `json:"text"`
	Vector Vector `json:"-"`
}

// TagCandidate is an unvalidated tag together with its embedding. Priority is
// only consulted by priority-ordered deduplication.
type TagCandidate struct {
	Tag      string  `json:"tag"`
	Vector   Vector  `json:"-"`
	Priority float64 `json:"priority,omitempty"`
}

// RankedTag is a tag scored by its best-matching chunk.
type RankedTag struct {
	Tag   string  `json:"tag"`
	Score float64 `json:"score"`
}

// TagEvaluation holds the rubric scores for one tag on a 0-100 scale.
type TagEvaluation struct {
	Tag             string  `json:"tag"`
	Relevance       float64 `json:"relevance"`
	Clarity         float64 `json:"clarity"`
	Quality         float64 `json:"quality"`
	Specificity     float64 `json:"specificity"`
	Coverage        float64 `json:"coverage"`
	Distinctiveness float64 `json:"distinctiveness"`
	Score           float64 `json:"score"`
}

// Revision proposes a replacement for a failing tag. A nil Original means the
// revision is an insertion.
type Revision struct {
	Original *string `json:"original"`
	Revised  string  `json:"revised"`
	Reason   *string `json:"reason,omitempty"`
}

// IterationLog is the audit record of one critique round.
type IterationLog struct {
	Iteration    int             `json:"iteration"`
	Evaluations  []TagEvaluation `json:"evaluations"`
	FailingCount int             `json:"failing_count"`
	PassingCount int             `json:"passing_count"`
	Note         string          `json:"note,omitempty"`
}

// Elimination records why a tag was removed from a working set.
type Elimination struct {
	Tag    string `json:"tag"`
	Reason string `json:"reason"`
}

// AIUsageLog represents a record of AI API usage for cost tracking.
type AIUsageLog struct {
	ID           int64      `db:"id" json:"id"`
	Timestamp    time.Time  `db:"timestamp" json:"timestamp"`
	ProviderName string     `db:"provider_name" json:"provider_name"`
	ServiceType  string     `db:"service_type" json:"service_type"` // e.g., "embedding", "evaluation"
	ModelName    string     `db:"model_name" json:"model_name"`
	InputTokens  int        `db:"input_tokens" json:"input_tokens"`
	OutputTokens int        `db:"output_tokens" json:"output_tokens"`
	Cost         float64    `db:"cost" json:"cost"`
	AnalysisID   *uuid.UUID `db:"analysis_id" json:"analysis_id,omitempty"`
}

// StoredReport is a persisted analysis run.
type StoredReport struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Owner     string    `db:"owner" json:"owner"`
	Repo      string    `db:"repo" json:"repo"`
	Success   bool      `db:"success" json:"success"`
	FinalTags []string  `db:"final_tags" json:"final_tags"`
	Report    []byte    `db:"report" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// EmbeddingEntry is a cached embedding for a piece of text under one model.
type EmbeddingEntry struct {
	ID        uuid.UUID `db:"id"`
	Model     string    `db:"model"`
	Text      string    `db:"text"`
	Vector    Vector    `db:"vector"`
	CreatedAt time.Time `db:"created_at"`
}

// Repository is the collected source material for one analysis run.
type Repository struct {
	Owner        string   `json:"owner"`
	Repo         string   `json:"repo"`
	Readme       string   `json:"readme"`
	Technologies []string `json:"technologies"`
	Topics       []string `json:"topics"`
}

// BackgroundJob is the bookkeeping record of a queued analysis.
type BackgroundJob struct {
	JobID     uuid.UUID  `db:"job_id" json:"job_id"`
	TaskType  string     `db:"task_type" json:"task_type"`
	Queue     string     `db:"queue" json:"queue"`
	Status    string     `db:"status" json:"status"`
	Owner     string     `db:"owner" json:"owner"`
	Repo      string     `db:"repo" json:"repo"`
	ReportID  *uuid.UUID `db:"report_id" json:"report_id,omitempty"`
	Error     string     `db:"error" json:"error,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}
