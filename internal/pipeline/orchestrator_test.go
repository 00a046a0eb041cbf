package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagforge/internal/candidates"
	"tagforge/internal/critic"
	"tagforge/internal/models"
)

type fakeCollector struct {
	repo models.Repository
	err  error
}

func (f *fakeCollector) Collect(_ context.Context, owner, repo string) (models.Repository, error) {
	if f.err != nil {
		return models.Repository{}, f.err
	}
	r := f.repo
	r.Owner, r.Repo = owner, repo
	return r, nil
}

type fakeGenerator struct {
	set   candidates.Set
	err   error
	calls int
	hook  func()
}

func (f *fakeGenerator) Generate(context.Context, GenerationRequest) (candidates.Set, error) {
	f.calls++
	if f.hook != nil {
		f.hook()
	}
	return f.set, f.err
}

// bagOfWords embeds text as occurrence counts over a fixed vocabulary.
type bagOfWords struct {
	vocab []string
	err   error
}

func (b *bagOfWords) Embed(_ context.Context, texts []string) ([]models.Vector, error) {
	if b.err != nil {
		return nil, b.err
	}
	out := make([]models.Vector, len(texts))
	for i, t := range texts {
		v := make(models.Vector, len(b.vocab))
		lower := strings.ToLower(t)
		for j, w := range b.vocab {
			v[j] = float32(strings.Count(lower, w))
		}
		out[i] = v
	}
	return out, nil
}

type constEvaluator float64

func (c constEvaluator) Evaluate(_ context.Context, tags []string, _ string) (critic.EvaluationOutcome, error) {
	evals := make([]models.TagEvaluation, len(tags))
	for i, t := range tags {
		evals[i] = models.TagEvaluation{Tag: t, Score: float64(c)}
	}
	return critic.EvaluationOutcome{Evaluations: evals}, nil
}

const readme = "Written in golang. Ships a cli. Stores data in postgres."

// testConfig is DefaultConfig with chunks small enough for the test README.
func testConfig(edit ...func(*Config)) Config {
	cfg := DefaultConfig()
	cfg.ChunkSize = 20
	cfg.ChunkOverlap = 2
	for _, e := range edit {
		e(&cfg)
	}
	return cfg
}

func newTestOrchestrator(t *testing.T, gen Generator, emb Embedder, c *critic.Critic, cfg Config) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(&fakeCollector{repo: models.Repository{
		Readme:       readme,
		Technologies: []string{"Go"},
		Topics:       []string{"cli", "database"},
	}}, gen, emb, c, cfg)
	require.NoError(t, err)
	return o
}

func vocab() *bagOfWords {
	return &bagOfWords{vocab: []string{"golang", "cli", "postgres", "cooking"}}
}

func TestRun_DataCollectionFailureHalts(t *testing.T) {
	gen := &fakeGenerator{}
	o, err := NewOrchestrator(&fakeCollector{err: fmt.Errorf("github: %w", models.ErrNotFound)}, gen, vocab(), nil, Config{})
	require.NoError(t, err)

	report := o.Run(context.Background(), "acme", "widgets")

	assert.False(t, report.Success)
	assert.Equal(t, StageDataCollector, report.FailedAtStep)
	assert.Equal(t, "Repository or README not found", report.Error)
	assert.Empty(t, report.StepsCompleted)
	assert.Nil(t, report.CandidateTags)
	assert.Nil(t, report.SimilarityAnalysis)
	assert.Nil(t, report.TagRule)
	assert.Nil(t, report.TagCritic)
	assert.Empty(t, report.FinalTags)
	assert.Equal(t, 0, gen.calls)
	assert.ErrorIs(t, report.Err(), models.ErrPipelineFailure)
}

func TestRun_EmptyReadmeIsFatal(t *testing.T) {
	o, err := NewOrchestrator(&fakeCollector{repo: models.Repository{Readme: "  "}}, &fakeGenerator{}, nil, nil, Config{})
	require.NoError(t, err)
	report := o.Run(context.Background(), "acme", "empty")
	assert.False(t, report.Success)
	assert.Equal(t, StageDataCollector, report.FailedAtStep)
}

func TestRun_HappyPath(t *testing.T) {
	gen := &fakeGenerator{set: candidates.Flat([]string{"golang", "cli", "postgres", "cooking"})}
	c := critic.NewCritic(constEvaluator(90), nil, critic.DefaultConfig())
	o := newTestOrchestrator(t, gen, vocab(), c, testConfig())

	report := o.Run(context.Background(), "acme", "widgets")

	require.True(t, report.Success, report.Error)
	assert.Empty(t, report.Error)
	assert.Empty(t, report.FailedAtStep)
	assert.Equal(t, []string{StageDataCollector, StageTagCandidate, StageSimilarity, StageTagCritic, StageTagRule}, report.StepsCompleted)

	sim := report.SimilarityAnalysis
	require.NotNil(t, sim)
	assert.True(t, sim.Success)
	assert.Equal(t, []string{"golang", "cli", "postgres"}, sim.Recommended)
	assert.Equal(t, "cooking", sim.Ranked[len(sim.Ranked)-1].Tag)
	assert.Equal(t, []string{"golang", "cli", "postgres"}, sim.Deduplicated)

	assert.Equal(t, []string{"golang", "cli", "postgres"}, report.RecommendedTags)
	assert.Equal(t, []string{"golang", "cli", "postgres"}, report.FinalTags)
	require.NotNil(t, report.TagCritic)
	assert.Equal(t, 1, report.TagCritic.Result.Iterations)
	require.NotNil(t, report.TagRule)
	assert.Equal(t, report.FinalTags, report.TagRule.ValidTags)
	assert.Equal(t, len([]rune(readme)), report.ReadmeLength)
	assert.NoError(t, report.Err())

	_, err := json.Marshal(report)
	require.NoError(t, err)
}

func TestRun_RuleFirstOrder(t *testing.T) {
	gen := &fakeGenerator{set: candidates.Flat([]string{"golang", "cli"})}
	c := critic.NewCritic(constEvaluator(90), nil, critic.DefaultConfig())
	o := newTestOrchestrator(t, gen, vocab(), c, testConfig(func(cfg *Config) { cfg.Order = OrderRuleFirst }))

	report := o.Run(context.Background(), "acme", "widgets")
	require.True(t, report.Success)
	assert.Equal(t, []string{StageDataCollector, StageTagCandidate, StageSimilarity, StageTagRule, StageTagCritic}, report.StepsCompleted)
	assert.Equal(t, []string{"golang", "cli"}, report.FinalTags)
}

func TestRun_DegradedSimilarityContinues(t *testing.T) {
	gen := &fakeGenerator{set: candidates.Flat([]string{"Golang", "cli", "postgres"})}
	emb := &bagOfWords{err: fmt.Errorf("quota exceeded: %w", models.ErrProvider)}
	o := newTestOrchestrator(t, gen, emb, nil, testConfig())

	report := o.Run(context.Background(), "acme", "widgets")

	require.True(t, report.Success)
	require.NotNil(t, report.SimilarityAnalysis)
	assert.False(t, report.SimilarityAnalysis.Success)
	assert.Equal(t, "degraded", report.SimilarityAnalysis.Note)
	assert.Contains(t, report.SimilarityAnalysis.Error, "quota exceeded")
	assert.Equal(t, []string{"Golang", "cli", "postgres"}, report.RecommendedTags)
	assert.Equal(t, []string{"golang", "cli", "postgres"}, report.FinalTags)
	assert.NotEmpty(t, report.Note)
	assert.Contains(t, report.StepsCompleted, StageSimilarity)
}

func TestRun_GroupedCandidatesWithoutFlatList(t *testing.T) {
	gen := &fakeGenerator{set: candidates.Grouped(map[string][]string{
		"technology": {"postgres"},
		"primary":    {"golang"},
		"domain":     {},
	}, nil)}
	o := newTestOrchestrator(t, gen, nil, nil, testConfig())

	report := o.Run(context.Background(), "acme", "widgets")
	require.True(t, report.Success)
	assert.Equal(t, []string{"golang", "postgres"}, report.FinalTags)
}

func TestRun_GeneratorFailureFallsBackToTopics(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("llm unavailable")}
	o := newTestOrchestrator(t, gen, nil, nil, testConfig())

	report := o.Run(context.Background(), "acme", "widgets")
	require.True(t, report.Success)
	assert.Equal(t, []string{"cli", "database", "go"}, report.CandidateTags.Flatten())
	// "go" is too short for the rule filter.
	assert.Equal(t, []string{"cli", "database"}, report.FinalTags)
	assert.NotEmpty(t, report.Notes)
}

func TestRun_StagePanicIsRecovered(t *testing.T) {
	gen := &fakeGenerator{hook: func() { panic("generator exploded") }}
	o := newTestOrchestrator(t, gen, nil, nil, testConfig())

	report := o.Run(context.Background(), "acme", "widgets")
	assert.False(t, report.Success)
	assert.Equal(t, StageTagCandidate, report.FailedAtStep)
	assert.Contains(t, report.Error, "generator exploded")
	assert.Equal(t, []string{StageDataCollector}, report.StepsCompleted)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	gen := &fakeGenerator{}
	o := newTestOrchestrator(t, gen, nil, nil, testConfig())

	report := o.Run(ctx, "acme", "widgets")
	assert.False(t, report.Success)
	assert.Equal(t, StageDataCollector, report.FailedAtStep)
	assert.Contains(t, report.Error, "cancelled")
	assert.Equal(t, 0, gen.calls)
}

func TestRun_CancelledBetweenStages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &fakeGenerator{set: candidates.Flat([]string{"golang"}), hook: cancel}
	o := newTestOrchestrator(t, gen, vocab(), nil, testConfig())

	report := o.Run(ctx, "acme", "widgets")
	assert.False(t, report.Success)
	assert.Equal(t, StageSimilarity, report.FailedAtStep)
	assert.Equal(t, []string{StageDataCollector, StageTagCandidate}, report.StepsCompleted)
	require.NotNil(t, report.CandidateTags)
	assert.Nil(t, report.SimilarityAnalysis)
	assert.Empty(t, report.FinalTags)
}

func TestRun_FinalCapRecordsOverflow(t *testing.T) {
	gen := &fakeGenerator{set: candidates.Flat([]string{"golang", "python", "haskell", "erlang-otp", "clojure"})}
	o := newTestOrchestrator(t, gen, nil, nil, testConfig(func(cfg *Config) { cfg.MaxFinalTags = 3 }))

	report := o.Run(context.Background(), "acme", "widgets")
	require.True(t, report.Success)
	assert.Equal(t, []string{"golang", "python", "haskell"}, report.FinalTags)
	assert.Equal(t, []models.Elimination{
		{Tag: "erlang-otp", Reason: "max_3"},
		{Tag: "clojure", Reason: "max_3"},
	}, report.Overflow)
}

func TestRun_CriticCapRecordsOverflow(t *testing.T) {
	tags := []string{
		"gopher", "python", "haskell", "clojure", "erlang",
		"elixir", "kotlin", "fortran", "ocaml", "julia",
		"cobol", "pascal", "prolog", "scheme", "racket",
	}
	gen := &fakeGenerator{set: candidates.Flat(tags)}
	c := critic.NewCritic(constEvaluator(100), nil, critic.DefaultConfig())
	o := newTestOrchestrator(t, gen, nil, c, testConfig())

	report := o.Run(context.Background(), "acme", "widgets")
	require.True(t, report.Success, report.Error)
	assert.Equal(t, tags[:10], report.FinalTags)

	want := make([]models.Elimination, 0, 5)
	for _, tag := range tags[10:] {
		want = append(want, models.Elimination{Tag: tag, Reason: "max_10"})
	}
	require.NotNil(t, report.TagCritic.Result)
	assert.Equal(t, want, report.TagCritic.Result.Overflow)
	assert.Equal(t, want, report.Overflow)
	assert.Len(t, report.FinalTags, len(tags)-len(report.Overflow))
}

// switchingEmbedder answers its first call in one vector space and any later
// call in another, like a fallback service that changed provider.
type switchingEmbedder struct {
	inner *bagOfWords
	calls int
}

func (s *switchingEmbedder) Embed(ctx context.Context, texts []string) ([]models.Vector, error) {
	s.calls++
	out, err := s.inner.Embed(ctx, texts)
	if err != nil || s.calls == 1 {
		return out, err
	}
	for i := range out {
		out[i] = append(out[i], 0, 0)
	}
	return out, nil
}

func TestRun_ChunksAndTagsShareOneEmbedCall(t *testing.T) {
	gen := &fakeGenerator{set: candidates.Flat([]string{"golang", "cli", "postgres", "cooking"})}
	emb := &switchingEmbedder{inner: vocab()}
	o := newTestOrchestrator(t, gen, emb, nil, testConfig())

	report := o.Run(context.Background(), "acme", "widgets")
	require.True(t, report.Success, report.Error)
	require.NotNil(t, report.SimilarityAnalysis)
	assert.True(t, report.SimilarityAnalysis.Success, report.SimilarityAnalysis.Error)
	assert.Equal(t, 1, emb.calls)
	assert.Equal(t, []string{"golang", "cli", "postgres"}, report.SimilarityAnalysis.Recommended)
}

func TestRun_ZeroOverlapIsKept(t *testing.T) {
	gen := &fakeGenerator{set: candidates.Flat([]string{"golang", "cli", "postgres"})}
	o := newTestOrchestrator(t, gen, vocab(), nil, testConfig(func(cfg *Config) { cfg.ChunkOverlap = 0 }))
	assert.Equal(t, 0, o.cfg.ChunkOverlap)

	report := o.Run(context.Background(), "acme", "widgets")
	require.True(t, report.Success, report.Error)
	require.NotNil(t, report.SimilarityAnalysis)
	assert.True(t, report.SimilarityAnalysis.Success, report.SimilarityAnalysis.Error)
	assert.NotEqual(t, noteDegraded, report.SimilarityAnalysis.Note)
}

func TestNewOrchestrator_ZeroThresholdsAreKept(t *testing.T) {
	o, err := NewOrchestrator(&fakeCollector{}, &fakeGenerator{}, nil, nil, Config{})
	require.NoError(t, err)
	assert.Equal(t, 0, o.cfg.ChunkOverlap)
	assert.Equal(t, 0.0, o.cfg.DedupThreshold)
	assert.Equal(t, 0.0, o.cfg.MinSimilarity)
	assert.Equal(t, DefaultConfig().ChunkSize, o.cfg.ChunkSize)
	assert.Equal(t, OrderCriticFirst, o.cfg.Order)

	o, err = NewOrchestrator(&fakeCollector{}, &fakeGenerator{}, nil, nil, Config{ChunkOverlap: -1, DedupThreshold: -1, MinSimilarity: -0.2})
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().ChunkOverlap, o.cfg.ChunkOverlap)
	assert.Equal(t, DefaultConfig().DedupThreshold, o.cfg.DedupThreshold)
	assert.Equal(t, -0.2, o.cfg.MinSimilarity)
}

func TestNewOrchestrator_Validation(t *testing.T) {
	_, err := NewOrchestrator(nil, &fakeGenerator{}, nil, nil, Config{})
	assert.Error(t, err)
	_, err = NewOrchestrator(&fakeCollector{}, nil, nil, nil, Config{})
	assert.Error(t, err)
	_, err = NewOrchestrator(&fakeCollector{}, &fakeGenerator{}, nil, nil, Config{Order: "sideways"})
	assert.Error(t, err)
}
