package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"tagforge/internal/candidates"
	"tagforge/internal/collector"
	"tagforge/internal/critic"
	"tagforge/internal/models"
	"tagforge/internal/pipeline"
)

// PreviewChars bounds the README excerpt sent to the candidate generator.
const PreviewChars = 3000

// LLMGenerator implements pipeline.Generator with a chat completion.
type LLMGenerator struct {
	completer      CompletionService
	promptTemplate string
}

var _ pipeline.Generator = (*LLMGenerator)(nil)

func NewLLMGenerator(completer CompletionService, prompt string) *LLMGenerator {
	return &LLMGenerator{completer: completer, promptTemplate: prompt}
}

func (g *LLMGenerator) Generate(ctx context.Context, req pipeline.GenerationRequest) (candidates.Set, error) {
	prompt := strings.NewReplacer(
		"{{METADATA}}", metadataBlock(req),
		"{{CONTENT_PREVIEW}}", collector.Preview(req.Content, PreviewChars),
	).Replace(g.promptTemplate)

	ctx = WithOperation(ctx, models.ServiceTypeGeneration)
	content, err := g.completer.GenerateChatCompletion(ctx, []ChatMessage{{Role: ChatMessageRoleUser, Content: prompt}})
	if err != nil {
		return candidates.Set{}, fmt.Errorf("candidate generation failed: %w", err)
	}

	set, err := candidates.Parse([]byte(content))
	if err != nil {
		log.Debugf("Unparseable candidate response: %s", content)
		return candidates.Set{}, fmt.Errorf("failed to parse LLM candidate response: %w", err)
	}
	log.Debugf("Generated %d candidates (%s) for %s/%s", len(set.Flatten()), set.Kind(), req.Owner, req.Repo)
	return set, nil
}

func metadataBlock(req pipeline.GenerationRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s/%s\n", req.Owner, req.Repo)
	if len(req.Technologies) > 0 {
		fmt.Fprintf(&b, "Languages: %s\n", strings.Join(req.Technologies, ", "))
	}
	if len(req.Topics) > 0 {
		fmt.Fprintf(&b, "Topics: %s\n", strings.Join(req.Topics, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

// LLMEvaluator implements critic.Evaluator with a chat completion.
type LLMEvaluator struct {
	completer      CompletionService
	promptTemplate string
}

var _ critic.Evaluator = (*LLMEvaluator)(nil)

func NewLLMEvaluator(completer CompletionService, prompt string) *LLMEvaluator {
	return &LLMEvaluator{completer: completer, promptTemplate: prompt}
}

// Evaluate returns an error only when the provider call fails. A response
// that cannot be decoded is reported through the outcome's ParseFailure.
func (e *LLMEvaluator) Evaluate(ctx context.Context, tags []string, repoContext string) (critic.EvaluationOutcome, error) {
	prompt := strings.NewReplacer(
		"{{CONTEXT}}", repoContext,
		"{{TAGS}}", strings.Join(tags, ", "),
	).Replace(e.promptTemplate)

	ctx = WithOperation(ctx, models.ServiceTypeEvaluation)
	content, err := e.completer.GenerateChatCompletion(ctx, []ChatMessage{{Role: ChatMessageRoleUser, Content: prompt}})
	if err != nil {
		return critic.EvaluationOutcome{}, fmt.Errorf("tag evaluation failed: %w", err)
	}

	raws, err := decodeEvaluations(content)
	if err != nil {
		return critic.EvaluationOutcome{ParseFailure: &critic.ParseFailure{Raw: content, Reason: err.Error()}}, nil
	}
	out := make([]models.TagEvaluation, 0, len(raws))
	for _, r := range raws {
		if strings.TrimSpace(r.Tag) == "" {
			continue
		}
		out = append(out, critic.Complete(r))
	}
	return critic.EvaluationOutcome{Evaluations: out}, nil
}

// decodeEvaluations accepts a bare array or an object wrapping one under
// "evaluations".
func decodeEvaluations(content string) ([]critic.RawEvaluation, error) {
	body := candidates.StripCodeFence(content)
	var raws []critic.RawEvaluation
	if err := json.Unmarshal([]byte(body), &raws); err == nil {
		return raws, nil
	}
	var wrapped struct {
		Evaluations []critic.RawEvaluation `json:"evaluations"`
	}
	if err := json.Unmarshal([]byte(body), &wrapped); err != nil {
		return nil, fmt.Errorf("response is not a JSON evaluation list: %v", err)
	}
	if wrapped.Evaluations == nil {
		return nil, fmt.Errorf("response has no evaluations")
	}
	return wrapped.Evaluations, nil
}

// LLMReviser implements critic.Reviser with a chat completion.
type LLMReviser struct {
	completer      CompletionService
	promptTemplate string
}

var _ critic.Reviser = (*LLMReviser)(nil)

func NewLLMReviser(completer CompletionService, prompt string) *LLMReviser {
	return &LLMReviser{completer: completer, promptTemplate: prompt}
}

func (r *LLMReviser) Revise(ctx context.Context, failing []models.TagEvaluation, repoContext string) (critic.RevisionOutcome, error) {
	lines := make([]string, 0, len(failing))
	for _, f := range failing {
		lines = append(lines, fmt.Sprintf("%s (score: %s)", f.Tag, strconv.FormatFloat(f.Score, 'f', 1, 64)))
	}
	prompt := strings.NewReplacer(
		"{{CONTEXT}}", repoContext,
		"{{FAILING_TAGS}}", strings.Join(lines, "\n"),
	).Replace(r.promptTemplate)

	ctx = WithOperation(ctx, models.ServiceTypeRevision)
	content, err := r.completer.GenerateChatCompletion(ctx, []ChatMessage{{Role: ChatMessageRoleUser, Content: prompt}})
	if err != nil {
		return critic.RevisionOutcome{}, fmt.Errorf("tag revision failed: %w", err)
	}

	var revisions []models.Revision
	if err := json.Unmarshal([]byte(candidates.StripCodeFence(content)), &revisions); err != nil {
		return critic.RevisionOutcome{ParseFailure: &critic.ParseFailure{
			Raw:    content,
			Reason: fmt.Sprintf("response is not a JSON revision list: %v", err),
		}}, nil
	}
	out := revisions[:0]
	for _, rev := range revisions {
		if strings.TrimSpace(rev.Revised) == "" {
			continue
		}
		out = append(out, rev)
	}
	return critic.RevisionOutcome{Revisions: out}, nil
}
