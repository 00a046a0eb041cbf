package critic

import (
	"context"
	"fmt"
	"math"

	"tagforge/internal/models"
)

// Evaluator scores a tag set against a rubric.
type Evaluator interface {
	Evaluate(ctx context.Context, tags []string, repoContext string) (EvaluationOutcome, error)
}

// Reviser proposes replacements for failing tags.
type Reviser interface {
	Revise(ctx context.Context, failing []models.TagEvaluation, repoContext string) (RevisionOutcome, error)
}

// ParseFailure describes a capability response that could not be decoded.
type ParseFailure struct {
	Raw    string
	Reason string
}

func (p *ParseFailure) Error() string {
	return fmt.Sprintf("%s: %s", models.ErrParse, p.Reason)
}

func (p *ParseFailure) Unwrap() error { return models.ErrParse }

// EvaluationOutcome is either a list of evaluations or a parse failure.
type EvaluationOutcome struct {
	Evaluations  []models.TagEvaluation
	ParseFailure *ParseFailure
}

// RevisionOutcome is either a list of revisions or a parse failure.
type RevisionOutcome struct {
	Revisions    []models.Revision
	ParseFailure *ParseFailure
}

// RawEvaluation is an evaluation as decoded from a capability. Score is nil
// when the capability did not supply an overall score.
type RawEvaluation struct {
	Tag             string   `json:"tag"`
	Relevance       float64  `json:"relevance"`
	Clarity         float64  `json:"clarity"`
	Quality         float64  `json:"quality"`
	Specificity     float64  `json:"specificity"`
	Coverage        float64  `json:"coverage"`
	Distinctiveness float64  `json:"distinctiveness"`
	Score           *float64 `json:"score"`
}

// Complete clamps every score to [0, 100] and fills in the overall score as
// the mean of the six rubric dimensions when none was supplied.
func Complete(raw RawEvaluation) models.TagEvaluation {
	e := models.TagEvaluation{
		Tag:             raw.Tag,
		Relevance:       clamp(raw.Relevance),
		Clarity:         clamp(raw.Clarity),
		Quality:         clamp(raw.Quality),
		Specificity:     clamp(raw.Specificity),
		Coverage:        clamp(raw.Coverage),
		Distinctiveness: clamp(raw.Distinctiveness),
	}
	if raw.Score != nil {
		e.Score = clamp(*raw.Score)
	} else {
		e.Score = (e.Relevance + e.Clarity + e.Quality + e.Specificity + e.Coverage + e.Distinctiveness) / 6
	}
	return e
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}
