// Package pipeline runs the tag analysis stages for one repository.
package pipeline

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"tagforge/internal/chunking"
	"tagforge/internal/critic"
	"tagforge/internal/dedup"
	"tagforge/internal/rules"
)

// Refinement orders.
const (
	OrderCriticFirst = "critic_first"
	OrderRuleFirst   = "rule_first"
)

// Config tunes the stages. NewOrchestrator fills non-positive sizes and limits
// from DefaultConfig. Overlap and dedup threshold fall back only when negative;
// MinSimilarity is used as given.
type Config struct {
	ChunkSize      int           `mapstructure:"chunk_size"`
	ChunkOverlap   int           `mapstructure:"chunk_overlap"`
	DedupThreshold float64       `mapstructure:"dedup_threshold"`
	MinSimilarity  float64       `mapstructure:"min_similarity"`
	Order          string        `mapstructure:"order"`
	MaxFinalTags   int           `mapstructure:"max_final_tags"`
	ContextChars   int           `mapstructure:"context_chars"`
	Rules          rules.Options `mapstructure:"rules"`
}

// DefaultMinSimilarity is the cosine score a tag must beat to survive ranking.
const DefaultMinSimilarity = 0.5

// DefaultConfig returns the stage settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		ChunkSize:      chunking.DefaultChunkSize,
		ChunkOverlap:   chunking.DefaultOverlap,
		DedupThreshold: dedup.DefaultThreshold,
		MinSimilarity:  DefaultMinSimilarity,
		Order:          OrderCriticFirst,
		MaxFinalTags:   10,
		ContextChars:   2000,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = d.ChunkOverlap
	}
	if c.DedupThreshold < 0 {
		c.DedupThreshold = d.DedupThreshold
	}
	if c.Order == "" {
		c.Order = d.Order
	}
	if c.MaxFinalTags <= 0 {
		c.MaxFinalTags = d.MaxFinalTags
	}
	if c.ContextChars <= 0 {
		c.ContextChars = d.ContextChars
	}
	return c
}

// Stage is one named step of a run. A returned error halts the run.
type Stage struct {
	Name string
	Run  func(ctx context.Context, s *State) error
}

// Orchestrator wires the collaborators into an ordered list of stages.
type Orchestrator struct {
	collector Collector
	generator Generator
	embedder  Embedder
	critic    *critic.Critic
	cfg       Config
}

// NewOrchestrator creates an Orchestrator. A nil embedder makes similarity
// always degrade and a nil critic skips the critique stage.
func NewOrchestrator(collector Collector, generator Generator, embedder Embedder, c *critic.Critic, cfg Config) (*Orchestrator, error) {
	if collector == nil {
		return nil, fmt.Errorf("pipeline requires a collector")
	}
	if generator == nil {
		return nil, fmt.Errorf("pipeline requires a generator")
	}
	cfg = cfg.withDefaults()
	if cfg.Order != OrderCriticFirst && cfg.Order != OrderRuleFirst {
		return nil, fmt.Errorf("unknown refinement order %q", cfg.Order)
	}
	return &Orchestrator{collector: collector, generator: generator, embedder: embedder, critic: c, cfg: cfg}, nil
}

// Stages returns the stages in execution order.
func (o *Orchestrator) Stages() []Stage {
	stages := []Stage{
		{Name: StageDataCollector, Run: o.collect},
		{Name: StageTagCandidate, Run: o.generateCandidates},
		{Name: StageSimilarity, Run: o.scoreSimilarity},
	}
	rule := Stage{Name: StageTagRule, Run: o.applyRules}
	crit := Stage{Name: StageTagCritic, Run: o.critique}
	if o.cfg.Order == OrderRuleFirst {
		return append(stages, rule, crit)
	}
	return append(stages, crit, rule)
}

// Run analyses one repository. It always returns a report: either a
// successful one or one naming the error and the step it happened at.
func (o *Orchestrator) Run(ctx context.Context, owner, repo string) AnalysisReport {
	started := time.Now()
	state := newState(owner, repo)
	log.Infof("Starting analysis of %s/%s", owner, repo)

	var cancelled error
	var pending string
	for _, stage := range o.Stages() {
		if err := ctx.Err(); err != nil {
			cancelled = err
			pending = stage.Name
			break
		}
		o.runStage(ctx, stage, state)
		if state.Error != "" {
			break
		}
	}

	report := o.buildReport(state, started)
	switch {
	case state.Error != "":
		runsTotal.WithLabelValues("failed").Inc()
		log.Errorf("Analysis of %s/%s failed at %s: %s", owner, repo, report.FailedAtStep, report.Error)
	case cancelled != nil:
		report.Success = false
		report.Error = fmt.Sprintf("analysis cancelled: %v", cancelled)
		report.FailedAtStep = pending
		report.RecommendedTags = nil
		report.FinalTags = nil
		report.Overflow = nil
		runsTotal.WithLabelValues("cancelled").Inc()
		log.Warnf("Analysis of %s/%s cancelled before %s", owner, repo, pending)
	default:
		runsTotal.WithLabelValues("succeeded").Inc()
		finalTagCount.Observe(float64(len(report.FinalTags)))
		log.Infof("Analysis of %s/%s finished with %d tags in %s", owner, repo, len(report.FinalTags), time.Since(started).Round(time.Millisecond))
	}
	return report
}

func (o *Orchestrator) runStage(ctx context.Context, stage Stage, state *State) {
	state.CurrentStep = stage.Name
	start := time.Now()
	log.Debugf("Entering stage %s", stage.Name)

	outcome := "ok"
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Errorf("Stage %s panicked: %v\n%s", stage.Name, r, debug.Stack())
				outcome = "panic"
				err = fmt.Errorf("stage %s panicked: %v", stage.Name, r)
			}
		}()
		return stage.Run(ctx, state)
	}()
	stageDuration.WithLabelValues(stage.Name).Observe(time.Since(start).Seconds())

	if err != nil {
		if outcome == "ok" {
			outcome = "failed"
		}
		stageOutcomes.WithLabelValues(stage.Name, outcome).Inc()
		state.fail(err.Error())
		return
	}
	if stage.Name == StageSimilarity && state.SimilarityAnalysis != nil && !state.SimilarityAnalysis.Success {
		outcome = noteDegraded
	}
	stageOutcomes.WithLabelValues(stage.Name, outcome).Inc()
	state.CurrentStep = stage.Name + completeSuffix
	state.StepsCompleted = append(state.StepsCompleted, stage.Name)
}

// buildReport assembles the report from the fields the completed stages
// wrote.
func (o *Orchestrator) buildReport(state *State, started time.Time) AnalysisReport {
	r := AnalysisReport{
		ID:             uuid.New(),
		Owner:          state.Owner,
		Repo:           state.Repo,
		StepsCompleted: state.StepsCompleted,
		StartedAt:      started.UTC(),
		DurationMS:     time.Since(started).Milliseconds(),
	}
	if state.Error != "" {
		r.Error = state.Error
		r.FailedAtStep = state.CurrentStep
		return r
	}

	r.Success = true
	r.ReadmeLength = len([]rune(state.ReadmeContent))
	r.ReadmePreview = preview(state.ReadmeContent, readmePreviewChars)
	r.Technologies = state.Technologies
	r.Topics = state.Topics
	r.CandidateTags = state.CandidateTags
	r.SimilarityAnalysis = state.SimilarityAnalysis
	r.TagRule = state.TagRule
	r.TagCritic = state.TagCritic

	if sim := state.SimilarityAnalysis; sim != nil && sim.Success && sim.Analysis != nil {
		r.RecommendedTags = sim.Recommended
	} else if state.CandidateTags != nil {
		r.RecommendedTags = head(state.CandidateTags.Flatten(), o.cfg.MaxFinalTags)
		r.Note = "Similarity scoring unavailable; recommended tags are unranked candidates"
	}

	if tc := state.TagCritic; tc != nil && tc.Result != nil {
		r.Overflow = append(r.Overflow, tc.Result.Overflow...)
	}
	r.FinalTags = head(state.working, o.cfg.MaxFinalTags)
	if len(state.working) > o.cfg.MaxFinalTags {
		for _, t := range state.working[o.cfg.MaxFinalTags:] {
			r.Overflow = append(r.Overflow, overflowElimination(t, o.cfg.MaxFinalTags))
		}
	}
	r.Notes = state.Notes
	return r
}

func head(tags []string, n int) []string {
	if len(tags) <= n {
		return append([]string{}, tags...)
	}
	return append([]string{}, tags[:n]...)
}
