package vector

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagforge/internal/models"
)

func TestTextHash(t *testing.T) {
	assert.Equal(t, TextHash("golang"), TextHash("golang"))
	assert.NotEqual(t, TextHash("golang"), TextHash("Golang"))
	assert.Len(t, TextHash(""), 64)
}

// Runs against a real database when TAGFORGE_TEST_VECTOR_DSN is set.
func TestEmbeddingCache_RoundTrip(t *testing.T) {
	dsn := os.Getenv("TAGFORGE_TEST_VECTOR_DSN")
	if dsn == "" {
		t.Skip("TAGFORGE_TEST_VECTOR_DSN not set")
	}
	ctx := context.Background()
	vs, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	defer vs.Close()
	require.NoError(t, vs.Migrate(ctx))

	model := "test-model-" + TextHash(t.Name())[:8]
	require.NoError(t, vs.PutEmbeddings(ctx, model, map[string]models.Vector{
		"golang": {1, 0, 0},
		"cli":    {0, 1, 0},
	}))

	got, err := vs.GetEmbeddings(ctx, model, []string{"golang", "cli", "missing"})
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, models.Vector{1, 0, 0}, got["golang"])
	assert.NotContains(t, got, "missing")
}
