// Package critic runs the rubric scoring and revision loop over a tag set.
package critic

import (
	"context"
	"fmt"
	"sort"
	"strings"

	log "github.com/sirupsen/logrus"

	"tagforge/internal/models"
)

const (
	DefaultThreshold     = 70.0
	DefaultMaxIterations = 3
	DefaultMaxFinalTags  = 10
)

// Config holds the loop parameters. A zero Threshold lets every tag pass; a
// negative one, and non-positive MaxIterations or MaxFinalTags, fall back to
// defaults.
type Config struct {
	Threshold     float64 `mapstructure:"threshold"`
	MaxIterations int     `mapstructure:"max_iterations"`
	MaxFinalTags  int     `mapstructure:"max_final_tags"`
}

// Result is the outcome of a critique run. Overflow lists passing tags cut by
// MaxFinalTags with reason "max_<N>".
type Result struct {
	OriginalTags    []string               `json:"original_tags"`
	FinalTags       []string               `json:"final_tags"`
	Threshold       float64                `json:"threshold"`
	Iterations      int                    `json:"iterations"`
	IterationLogs   []models.IterationLog  `json:"iteration_logs"`
	LastEvaluations []models.TagEvaluation `json:"last_evaluations"`
	Overflow        []models.Elimination   `json:"overflow,omitempty"`
}

// SafeResult is returned by Critic.Safe. Error is empty on success.
type SafeResult struct {
	FinalTags []string `json:"final_tags"`
	Result    *Result  `json:"result,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Critic scores tags with an Evaluator and asks a Reviser to rework the ones
// that score below the threshold, for a bounded number of rounds.
type Critic struct {
	evaluator Evaluator
	reviser   Reviser
	cfg       Config
}

// DefaultConfig returns the loop parameters used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Threshold:     DefaultThreshold,
		MaxIterations: DefaultMaxIterations,
		MaxFinalTags:  DefaultMaxFinalTags,
	}
}

// NewCritic creates a Critic. A nil reviser disables revision rounds.
func NewCritic(evaluator Evaluator, reviser Reviser, cfg Config) *Critic {
	if cfg.Threshold < 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.MaxFinalTags <= 0 {
		cfg.MaxFinalTags = DefaultMaxFinalTags
	}
	return &Critic{evaluator: evaluator, reviser: reviser, cfg: cfg}
}

// Config returns the effective loop parameters.
func (c *Critic) Config() Config { return c.cfg }

// Critique runs the loop. Evaluator and Reviser failures never abort the run:
// the round simply has no evaluations or no revisions. The only error returned
// is the context's, together with whatever was gathered before cancellation.
func (c *Critic) Critique(ctx context.Context, tags []string, repoContext string) (Result, error) {
	res := Result{
		OriginalTags:    tags,
		FinalTags:       []string{},
		Threshold:       c.cfg.Threshold,
		IterationLogs:   []models.IterationLog{},
		LastEvaluations: []models.TagEvaluation{},
	}
	if res.OriginalTags == nil {
		res.OriginalTags = []string{}
	}

	current := dedupe(tags)
	var ctxErr error
	for iteration := 1; iteration <= c.cfg.MaxIterations; iteration++ {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}

		entry := models.IterationLog{Iteration: iteration}
		evaluations, note := c.evaluate(ctx, current, repoContext)
		entry.Evaluations = evaluations
		entry.Note = note

		var failing []models.TagEvaluation
		for _, e := range evaluations {
			if e.Score < c.cfg.Threshold {
				failing = append(failing, e)
			}
		}
		entry.FailingCount = len(failing)
		entry.PassingCount = len(evaluations) - len(failing)
		res.IterationLogs = append(res.IterationLogs, entry)
		res.LastEvaluations = evaluations

		log.Debugf("Critique round %d: %d passing, %d failing", iteration, entry.PassingCount, entry.FailingCount)

		if len(failing) == 0 || iteration == c.cfg.MaxIterations {
			break
		}
		if err := ctx.Err(); err != nil {
			ctxErr = err
			break
		}
		if c.reviser == nil {
			continue
		}
		revisions := c.revise(ctx, failing, repoContext, &res.IterationLogs[len(res.IterationLogs)-1])
		current = applyRevisions(current, revisions)
	}

	res.Iterations = len(res.IterationLogs)
	res.FinalTags, res.Overflow = c.selectFinal(res.LastEvaluations, current)
	return res, ctxErr
}

// Safe runs Critique and never panics. On failure FinalTags holds the best
// result available, or the trimmed input tags.
func (c *Critic) Safe(ctx context.Context, tags []string, repoContext string) (out SafeResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Tag critic panicked: %v", r)
			out = SafeResult{FinalTags: dedupe(tags), Error: fmt.Sprintf("tag critic panicked: %v", r)}
		}
	}()

	res, err := c.Critique(ctx, tags, repoContext)
	out = SafeResult{FinalTags: res.FinalTags, Result: &res}
	if err != nil {
		out.Error = err.Error()
		if len(out.FinalTags) == 0 {
			out.FinalTags = dedupe(tags)
		}
	}
	return out
}

func (c *Critic) evaluate(ctx context.Context, tags []string, repoContext string) ([]models.TagEvaluation, string) {
	if len(tags) == 0 {
		return []models.TagEvaluation{}, "no tags to evaluate"
	}
	outcome, err := c.evaluator.Evaluate(ctx, tags, repoContext)
	if err != nil {
		log.Warnf("Tag evaluation failed, treating round as empty: %v", err)
		return []models.TagEvaluation{}, fmt.Sprintf("evaluation failed: %v", err)
	}
	if outcome.ParseFailure != nil {
		log.Warnf("Tag evaluation unparseable, treating round as empty: %s", outcome.ParseFailure.Reason)
		return []models.TagEvaluation{}, outcome.ParseFailure.Error()
	}
	if outcome.Evaluations == nil {
		return []models.TagEvaluation{}, ""
	}
	return outcome.Evaluations, ""
}

func (c *Critic) revise(ctx context.Context, failing []models.TagEvaluation, repoContext string, entry *models.IterationLog) []models.Revision {
	outcome, err := c.reviser.Revise(ctx, failing, repoContext)
	if err != nil {
		log.Warnf("Tag revision failed, keeping current tags: %v", err)
		entry.Note = appendNote(entry.Note, fmt.Sprintf("revision failed: %v", err))
		return nil
	}
	if outcome.ParseFailure != nil {
		log.Warnf("Tag revision unparseable, keeping current tags: %s", outcome.ParseFailure.Reason)
		entry.Note = appendNote(entry.Note, outcome.ParseFailure.Error())
		return nil
	}
	return outcome.Revisions
}

// selectFinal keeps the passing tags of the last round ordered by score. When
// the last round produced no evaluations the current tags are used as-is.
// Tags beyond MaxFinalTags are returned as overflow.
func (c *Critic) selectFinal(evaluations []models.TagEvaluation, current []string) ([]string, []models.Elimination) {
	if len(evaluations) == 0 {
		return c.capFinal(current)
	}
	passing := make([]models.TagEvaluation, 0, len(evaluations))
	for _, e := range evaluations {
		if e.Score >= c.cfg.Threshold {
			passing = append(passing, e)
		}
	}
	sort.SliceStable(passing, func(i, j int) bool {
		return passing[i].Score > passing[j].Score
	})

	final := []string{}
	seen := make(map[string]struct{}, len(passing))
	for _, e := range passing {
		key := Key(e.Tag)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		final = append(final, strings.TrimSpace(e.Tag))
	}
	return c.capFinal(final)
}

func (c *Critic) capFinal(tags []string) ([]string, []models.Elimination) {
	limit := c.cfg.MaxFinalTags
	if len(tags) <= limit {
		return append([]string{}, tags...), nil
	}
	reason := fmt.Sprintf("max_%d", limit)
	overflow := make([]models.Elimination, 0, len(tags)-limit)
	for _, t := range tags[limit:] {
		overflow = append(overflow, models.Elimination{Tag: t, Reason: reason})
	}
	log.Debugf("Critic kept %d tags, cut %d over the limit", limit, len(overflow))
	return append([]string{}, tags[:limit]...), overflow
}

// applyRevisions substitutes revised tags in place and appends insertions.
func applyRevisions(current []string, revisions []models.Revision) []string {
	if len(revisions) == 0 {
		return current
	}
	substitutions := make(map[string]string, len(revisions))
	var insertions []string
	for _, r := range revisions {
		revised := strings.TrimSpace(r.Revised)
		if revised == "" {
			continue
		}
		if r.Original == nil || strings.TrimSpace(*r.Original) == "" {
			insertions = append(insertions, revised)
			continue
		}
		substitutions[Key(*r.Original)] = revised
	}

	next := make([]string, 0, len(current)+len(insertions))
	for _, t := range current {
		if revised, ok := substitutions[Key(t)]; ok {
			next = append(next, revised)
			continue
		}
		next = append(next, t)
	}
	next = append(next, insertions...)
	return dedupe(next)
}

// Key is the identity of a tag within a working set.
func Key(tag string) string {
	return strings.ToLower(strings.TrimSpace(tag))
}

// dedupe trims tags and drops empty and case-insensitive repeats, keeping
// the first spelling seen.
func dedupe(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		key := Key(t)
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(t))
	}
	return out
}

func appendNote(note, extra string) string {
	if note == "" {
		return extra
	}
	return note + "; " + extra
}
