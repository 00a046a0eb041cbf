package tasks

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Defines constants for task types used in Asynq.

const (
	// TypeAnalysisJob is the task type for running one repository analysis.
	TypeAnalysisJob = "analysis:run"

	// QueueAnalyses is the queue analysis tasks are placed on.
	QueueAnalyses = "analyses"
)

// AnalysisPayload identifies the repository a task analyzes. JobID is the
// job record the worker reports progress to.
type AnalysisPayload struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
	JobID string `json:"job_id,omitempty"`
}

// NewAnalysisPayload encodes the payload for an analysis task.
func NewAnalysisPayload(owner, repo, jobID string) ([]byte, error) {
	owner, repo = strings.TrimSpace(owner), strings.TrimSpace(repo)
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}
	return json.Marshal(AnalysisPayload{Owner: owner, Repo: repo, JobID: jobID})
}

// ParseAnalysisPayload decodes and checks an analysis task payload.
func ParseAnalysisPayload(b []byte) (AnalysisPayload, error) {
	var p AnalysisPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return p, fmt.Errorf("decode analysis payload: %w", err)
	}
	if p.Owner == "" || p.Repo == "" {
		return p, fmt.Errorf("analysis payload missing owner or repo")
	}
	return p, nil
}
