package candidates

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tagforge/internal/models"
)

func TestFlat_Flatten(t *testing.T) {
	s := Flat([]string{" Go ", "go", "", "cli"})
	assert.Equal(t, KindFlat, s.Kind())
	assert.Equal(t, []string{"Go", "cli"}, s.Flatten())
	assert.False(t, s.Empty())
}

func TestGrouped_FlattenCanonicalOrder(t *testing.T) {
	s := Grouped(map[string][]string{
		"feature":    {"caching"},
		"zeta":       {"misc"},
		"primary":    {"golang"},
		"alpha":      {"extra"},
		"technology": {"redis", "Golang"},
		"domain":     {},
	}, nil)

	assert.Equal(t, KindGrouped, s.Kind())
	assert.Equal(t, []string{"primary", "technology", "feature", "alpha", "zeta"}, s.Categories())
	assert.Equal(t, []string{"golang", "redis", "caching", "extra", "misc"}, s.Flatten())
}

func TestGrouped_PrefersCombinedList(t *testing.T) {
	s := Grouped(map[string][]string{"primary": {"a-tag"}}, []string{"b-tag", "c-tag"})
	assert.Equal(t, []string{"b-tag", "c-tag"}, s.Flatten())

	blank := Grouped(map[string][]string{"primary": {"a-tag"}}, []string{" "})
	assert.Equal(t, []string{"a-tag"}, blank.Flatten())
}

func TestZeroSetIsEmpty(t *testing.T) {
	var s Set
	assert.True(t, s.Empty())
	assert.Empty(t, s.Flatten())
	assert.True(t, Grouped(map[string][]string{"primary": {}}, nil).Empty())
}

func TestParse_Shapes(t *testing.T) {
	s, err := Parse([]byte(`["go", 3, "cli"]`))
	require.NoError(t, err)
	assert.Equal(t, KindFlat, s.Kind())
	assert.Equal(t, []string{"go", "cli"}, s.Flatten())

	s, err = Parse([]byte(`{"tags": ["web"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"web"}, s.Flatten())

	s, err = Parse([]byte("```json\n{\"primary_tags\": [\"golang\"], \"technology_tags\": [\"postgres\"], \"domain_tags\": [], \"feature_tags\": [\"search\"]}\n```"))
	require.NoError(t, err)
	assert.Equal(t, KindGrouped, s.Kind())
	assert.Equal(t, []string{"golang", "postgres", "search"}, s.Flatten())

	s, err = Parse([]byte(`{"primary_tags": ["golang"], "all_candidates": ["golang", "grpc"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"golang", "grpc"}, s.Flatten())

	s, err = Parse([]byte(`{"all_candidates": ["x-tag"], "note": "hi"}`))
	require.NoError(t, err)
	assert.Equal(t, KindFlat, s.Kind())
}

func TestParse_Failures(t *testing.T) {
	for _, raw := range []string{"", "not json", `{"note": "nothing"}`, `"just a string"`} {
		_, err := Parse([]byte(raw))
		assert.ErrorIs(t, err, models.ErrParse, raw)
	}
}

func TestMarshalJSON(t *testing.T) {
	b, err := json.Marshal(Grouped(map[string][]string{"primary": {"go"}}, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"grouped","groups":{"primary":["go"]},"all_candidates":["go"]}`, string(b))

	b, err = json.Marshal(Flat([]string{"go"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"flat","all_candidates":["go"]}`, string(b))
}
