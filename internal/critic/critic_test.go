package critic

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"tagforge/internal/models"
)

// fixedEvaluator scores every tag with the same value.
type fixedEvaluator struct {
	score float64
	calls int
}

func (f *fixedEvaluator) Evaluate(_ context.Context, tags []string, _ string) (EvaluationOutcome, error) {
	f.calls++
	evals := make([]models.TagEvaluation, len(tags))
	for i, t := range tags {
		evals[i] = models.TagEvaluation{Tag: t, Score: f.score}
	}
	return EvaluationOutcome{Evaluations: evals}, nil
}

// tableEvaluator scores tags from a lookup table; unknown tags score 0.
type tableEvaluator struct {
	scores map[string]float64
	seen   [][]string
}

func (e *tableEvaluator) Evaluate(_ context.Context, tags []string, _ string) (EvaluationOutcome, error) {
	e.seen = append(e.seen, append([]string{}, tags...))
	evals := make([]models.TagEvaluation, len(tags))
	for i, t := range tags {
		evals[i] = models.TagEvaluation{Tag: t, Score: e.scores[t]}
	}
	return EvaluationOutcome{Evaluations: evals}, nil
}

type mockReviser struct {
	mock.Mock
}

func (m *mockReviser) Revise(ctx context.Context, failing []models.TagEvaluation, repoContext string) (RevisionOutcome, error) {
	args := m.Called(ctx, failing, repoContext)
	return args.Get(0).(RevisionOutcome), args.Error(1)
}

type funcEvaluator func(ctx context.Context, tags []string) (EvaluationOutcome, error)

func (f funcEvaluator) Evaluate(ctx context.Context, tags []string, _ string) (EvaluationOutcome, error) {
	return f(ctx, tags)
}

func strPtr(s string) *string { return &s }

func TestCritique_AllPassingConvergesInOneRound(t *testing.T) {
	eval := &fixedEvaluator{score: 100}
	rev := new(mockReviser)
	c := NewCritic(eval, rev, DefaultConfig())

	res, err := c.Critique(context.Background(), []string{"golang", " CLI ", "Golang", "testing"}, "a Go CLI")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, []string{"golang", "CLI", "testing"}, res.FinalTags)
	assert.Equal(t, 1, eval.calls)
	require.Len(t, res.IterationLogs, 1)
	assert.Equal(t, 3, res.IterationLogs[0].PassingCount)
	assert.Equal(t, 0, res.IterationLogs[0].FailingCount)
	rev.AssertNotCalled(t, "Revise", mock.Anything, mock.Anything, mock.Anything)
}

func TestCritique_AllFailingStopsAtMaxIterations(t *testing.T) {
	eval := &fixedEvaluator{score: 0}
	rev := new(mockReviser)
	rev.On("Revise", mock.Anything, mock.Anything, "ctx").Return(RevisionOutcome{}, nil)
	c := NewCritic(eval, rev, Config{Threshold: 70, MaxIterations: 3})

	res, err := c.Critique(context.Background(), []string{"misc", "stuff"}, "ctx")
	require.NoError(t, err)

	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 3, eval.calls)
	assert.Empty(t, res.FinalTags)
	assert.Len(t, res.LastEvaluations, 2)
	// No revision after the final round.
	rev.AssertNumberOfCalls(t, "Revise", 2)
}

func TestCritique_RevisionsSubstituteAndInsert(t *testing.T) {
	eval := &tableEvaluator{scores: map[string]float64{
		"golang":     95,
		"tool":       20,
		"cli-tool":   88,
		"automation": 75,
	}}
	rev := new(mockReviser)
	rev.On("Revise", mock.Anything, []models.TagEvaluation{{Tag: "tool", Score: 20}}, "").
		Return(RevisionOutcome{Revisions: []models.Revision{
			{Original: strPtr(" Tool "), Revised: "cli-tool", Reason: strPtr("too vague")},
			{Original: nil, Revised: "automation"},
			{Original: nil, Revised: "GOLANG"},
			{Original: strPtr("x"), Revised: "   "},
		}}, nil).Once()

	c := NewCritic(eval, rev, DefaultConfig())
	res, err := c.Critique(context.Background(), []string{"golang", "tool"}, "")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Iterations)
	assert.Equal(t, [][]string{{"golang", "tool"}, {"golang", "cli-tool", "automation"}}, eval.seen)
	assert.Equal(t, []string{"golang", "cli-tool", "automation"}, res.FinalTags)
	rev.AssertExpectations(t)
}

func TestCritique_RevisionMatchesOriginalIgnoringCase(t *testing.T) {
	eval := &tableEvaluator{scores: map[string]float64{
		"Docker":     30,
		"containers": 90,
	}}
	rev := new(mockReviser)
	rev.On("Revise", mock.Anything, []models.TagEvaluation{{Tag: "Docker", Score: 30}}, "").
		Return(RevisionOutcome{Revisions: []models.Revision{
			{Original: strPtr("DOCKER"), Revised: "containers"},
		}}, nil).Once()

	c := NewCritic(eval, rev, DefaultConfig())
	res, err := c.Critique(context.Background(), []string{"Docker"}, "")
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"Docker"}, {"containers"}}, eval.seen)
	assert.Equal(t, []string{"containers"}, res.FinalTags)
	rev.AssertExpectations(t)
}

func TestNewCritic_ZeroThresholdIsKept(t *testing.T) {
	c := NewCritic(&fixedEvaluator{score: 0}, nil, Config{Threshold: 0})
	assert.Equal(t, 0.0, c.Config().Threshold)
	assert.Equal(t, DefaultMaxIterations, c.Config().MaxIterations)
	assert.Equal(t, DefaultMaxFinalTags, c.Config().MaxFinalTags)

	res, err := c.Critique(context.Background(), []string{"misc"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"misc"}, res.FinalTags)

	assert.Equal(t, DefaultThreshold, NewCritic(&fixedEvaluator{}, nil, Config{Threshold: -1}).Config().Threshold)
}

func TestCritique_FinalSortedByScoreAndCapped(t *testing.T) {
	scores := map[string]float64{}
	var tags []string
	for i := 0; i < 15; i++ {
		tag := string(rune('a'+i)) + "-tag"
		tags = append(tags, tag)
		scores[tag] = float64(70 + i)
	}
	scores["a-tag"] = 69.9
	c := NewCritic(&tableEvaluator{scores: scores}, nil, Config{Threshold: DefaultThreshold, MaxIterations: 1})

	res, err := c.Critique(context.Background(), tags, "")
	require.NoError(t, err)
	require.Len(t, res.FinalTags, 10)
	assert.Equal(t, "o-tag", res.FinalTags[0])
	assert.NotContains(t, res.FinalTags, "a-tag")
	// Passing tags past the cap are recorded, failing ones are not.
	assert.Equal(t, []models.Elimination{
		{Tag: "e-tag", Reason: "max_10"},
		{Tag: "d-tag", Reason: "max_10"},
		{Tag: "c-tag", Reason: "max_10"},
		{Tag: "b-tag", Reason: "max_10"},
	}, res.Overflow)
}

func TestCritique_UnscoredRoundRecordsOverflow(t *testing.T) {
	eval := funcEvaluator(func(context.Context, []string) (EvaluationOutcome, error) {
		return EvaluationOutcome{}, errors.New("unavailable")
	})
	c := NewCritic(eval, nil, Config{MaxFinalTags: 2})

	res, err := c.Critique(context.Background(), []string{"alpha", "beta", "gamma"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, res.FinalTags)
	assert.Equal(t, []models.Elimination{{Tag: "gamma", Reason: "max_2"}}, res.Overflow)
}

func TestCritique_NoOverflowUnderCap(t *testing.T) {
	res, err := NewCritic(&fixedEvaluator{score: 90}, nil, DefaultConfig()).Critique(context.Background(), []string{"one", "two"}, "")
	require.NoError(t, err)
	assert.Nil(t, res.Overflow)
}

func TestCritique_ParseFailureIsAnEmptyRound(t *testing.T) {
	eval := funcEvaluator(func(context.Context, []string) (EvaluationOutcome, error) {
		return EvaluationOutcome{ParseFailure: &ParseFailure{Raw: "not json", Reason: "invalid character"}}, nil
	})
	c := NewCritic(eval, nil, DefaultConfig())

	tags := []string{"t01", "t02", "t03", "t04", "t05", "t06", "t07", "t08", "t09", "t10", "t11"}
	res, err := c.Critique(context.Background(), tags, "")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Iterations)
	assert.Empty(t, res.LastEvaluations)
	assert.Equal(t, tags[:10], res.FinalTags)
	assert.Contains(t, res.IterationLogs[0].Note, "invalid character")
}

func TestCritique_ProviderErrorDegrades(t *testing.T) {
	eval := funcEvaluator(func(context.Context, []string) (EvaluationOutcome, error) {
		return EvaluationOutcome{}, errors.New("503 from provider")
	})
	c := NewCritic(eval, nil, DefaultConfig())

	res, err := c.Critique(context.Background(), []string{"golang"}, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"golang"}, res.FinalTags)
	assert.Contains(t, res.IterationLogs[0].Note, "503")
}

func TestCritique_ReviserFailureKeepsTags(t *testing.T) {
	eval := &fixedEvaluator{score: 10}
	rev := new(mockReviser)
	rev.On("Revise", mock.Anything, mock.Anything, mock.Anything).
		Return(RevisionOutcome{ParseFailure: &ParseFailure{Reason: "bad"}}, nil)
	c := NewCritic(eval, rev, Config{Threshold: DefaultThreshold, MaxIterations: 2})

	res, err := c.Critique(context.Background(), []string{"one", "two"}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Iterations)
	assert.Contains(t, res.IterationLogs[0].Note, "bad")
}

func TestCritique_CancelledBetweenRounds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eval := funcEvaluator(func(context.Context, []string) (EvaluationOutcome, error) {
		cancel()
		return EvaluationOutcome{Evaluations: []models.TagEvaluation{{Tag: "x-tag", Score: 10}}}, nil
	})
	rev := new(mockReviser)
	c := NewCritic(eval, rev, DefaultConfig())

	res, err := c.Critique(ctx, []string{"x-tag"}, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Iterations)
	rev.AssertNotCalled(t, "Revise", mock.Anything, mock.Anything, mock.Anything)
}

func TestCritique_EmptyInput(t *testing.T) {
	eval := &fixedEvaluator{score: 100}
	res, err := NewCritic(eval, nil, DefaultConfig()).Critique(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Empty(t, res.FinalTags)
	assert.Equal(t, 0, eval.calls)
	assert.NotNil(t, res.OriginalTags)
}

func TestSafe_RecoversFromPanic(t *testing.T) {
	eval := funcEvaluator(func(context.Context, []string) (EvaluationOutcome, error) {
		panic("boom")
	})
	out := NewCritic(eval, nil, DefaultConfig()).Safe(context.Background(), []string{" a ", "A", "b"}, "")
	assert.Equal(t, []string{"a", "b"}, out.FinalTags)
	assert.Contains(t, out.Error, "boom")
	assert.Nil(t, out.Result)
}

func TestSafe_Success(t *testing.T) {
	out := NewCritic(&fixedEvaluator{score: 90}, nil, DefaultConfig()).Safe(context.Background(), []string{"go"}, "")
	assert.Empty(t, out.Error)
	assert.Equal(t, []string{"go"}, out.FinalTags)
	require.NotNil(t, out.Result)
	assert.Equal(t, 1, out.Result.Iterations)
}

func TestComplete(t *testing.T) {
	e := Complete(RawEvaluation{Tag: "go", Relevance: 60, Clarity: 60, Quality: 60, Specificity: 60, Coverage: 60, Distinctiveness: 120})
	assert.Equal(t, 100.0, e.Distinctiveness)
	assert.InDelta(t, 66.666, e.Score, 0.01)

	supplied := 140.0
	e = Complete(RawEvaluation{Tag: "go", Score: &supplied})
	assert.Equal(t, 100.0, e.Score)

	negative := -3.0
	e = Complete(RawEvaluation{Tag: "go", Relevance: 90, Score: &negative})
	assert.Equal(t, 0.0, e.Score)
}

func TestParseFailure_IsErrParse(t *testing.T) {
	var err error = &ParseFailure{Reason: "x"}
	assert.ErrorIs(t, err, models.ErrParse)
}
