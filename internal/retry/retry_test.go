package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagforge/internal/models"
)

type attempts int

func (a attempts) NextBackoff(attempt int) int64 {
	if attempt >= int(a) {
		return -1
	}
	return 0
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), attempts(3), "flaky", func() error {
		calls++
		if calls < 3 {
			return fmt.Errorf("503: %w", models.ErrProvider)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsWhenStrategyGivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), attempts(2), "down", func() error {
		calls++
		return models.ErrProvider
	})
	assert.ErrorIs(t, err, models.ErrProvider)
	assert.Equal(t, 3, calls)
}

func TestDo_NilStrategyTriesOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), nil, "once", func() error {
		calls++
		return models.ErrProvider
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_FinalErrorsAreNotRetried(t *testing.T) {
	for _, final := range []error{
		models.ErrNotFound,
		fmt.Errorf("decode: %w", models.ErrParse),
		models.ErrInvalidArgument,
		Permanent(errors.New("401 unauthorized")),
	} {
		calls := 0
		err := Do(context.Background(), attempts(5), "final", func() error {
			calls++
			return final
		})
		assert.ErrorIs(t, err, final)
		assert.Equal(t, 1, calls, "%v", final)
	}
}

func TestDo_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := &fixedDelay{ms: 10000}
	calls := 0
	err := Do(ctx, slow, "slow", func() error {
		calls++
		cancel()
		return models.ErrProvider
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

type fixedDelay struct{ ms int64 }

func (f *fixedDelay) NextBackoff(int) int64 { return f.ms }

func TestRetryable(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.False(t, Retryable(context.Canceled))
	assert.False(t, Retryable(fmt.Errorf("wrapped: %w", Permanent(models.ErrProvider))))
	assert.True(t, Retryable(models.ErrProvider))
	assert.True(t, Retryable(errors.New("connection reset")))
	assert.Nil(t, Permanent(nil))
}
