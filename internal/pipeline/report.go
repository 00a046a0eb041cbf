package pipeline

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"tagforge/internal/candidates"
	"tagforge/internal/critic"
	"tagforge/internal/models"
	"tagforge/internal/rules"
)

const readmePreviewChars = 500

// AnalysisReport is the result of one run. Exactly one of Success or
// Error/FailedAtStep is set.
type AnalysisReport struct {
	ID             uuid.UUID `json:"id"`
	Success        bool      `json:"success"`
	Owner          string    `json:"owner"`
	Repo           string    `json:"repo"`
	StepsCompleted []string  `json:"steps_completed"`

	ReadmeLength  int      `json:"readme_length,omitempty"`
	ReadmePreview string   `json:"readme_preview,omitempty"`
	Technologies  []string `json:"technologies,omitempty"`
	Topics        []string `json:"topics,omitempty"`

	CandidateTags      *candidates.Set    `json:"candidate_tags,omitempty"`
	SimilarityAnalysis *SimilarityResult  `json:"similarity_analysis,omitempty"`
	TagRule            *rules.Result      `json:"tag_rule,omitempty"`
	TagCritic          *critic.SafeResult `json:"tag_critic,omitempty"`

	RecommendedTags []string             `json:"recommended_tags,omitempty"`
	FinalTags       []string             `json:"final_tags,omitempty"`
	Overflow        []models.Elimination `json:"overflow,omitempty"`
	Note            string               `json:"note,omitempty"`
	Notes           []string             `json:"notes,omitempty"`

	Error        string `json:"error,omitempty"`
	FailedAtStep string `json:"failed_at_step,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
}

// Err returns nil for a successful report and an ErrPipelineFailure wrapped
// error otherwise.
func (r AnalysisReport) Err() error {
	if r.Success {
		return nil
	}
	return fmt.Errorf("%s/%s failed at %s: %s: %w", r.Owner, r.Repo, r.FailedAtStep, r.Error, models.ErrPipelineFailure)
}

func overflowElimination(tag string, limit int) models.Elimination {
	return models.Elimination{Tag: tag, Reason: fmt.Sprintf("max_%d", limit)}
}

func preview(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "..."
}

// Stored converts the report into its persisted form.
func (r AnalysisReport) Stored() (models.StoredReport, error) {
	body, err := json.Marshal(r)
	if err != nil {
		return models.StoredReport{}, fmt.Errorf("encode report %s: %w", r.ID, err)
	}
	created := r.StartedAt
	if created.IsZero() {
		created = time.Now()
	}
	return models.StoredReport{
		ID:        r.ID,
		Owner:     r.Owner,
		Repo:      r.Repo,
		Success:   r.Success,
		FinalTags: r.FinalTags,
		Report:    body,
		CreatedAt: created.UTC(),
	}, nil
}
