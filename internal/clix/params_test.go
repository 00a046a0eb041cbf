package clix

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePagination(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Int("limit", 0, "")
	fs.Int("offset", 0, "")
	require.NoError(t, fs.Parse([]string{"--offset", "-3"}))

	p, err := ParsePagination(fs)
	require.NoError(t, err)
	assert.Equal(t, PaginationParams{Limit: 20, Offset: 0}, p)
}

func TestParseTags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("tags", "", "")
	require.NoError(t, fs.Parse([]string{"--tags", " go, ,cli ,"}))

	tags, err := ParseTags(fs)
	require.NoError(t, err)
	assert.Equal(t, []string{"go", "cli"}, tags)
	assert.Nil(t, SplitList(""))
}

func TestParseRepo(t *testing.T) {
	tests := []struct {
		args        []string
		owner, repo string
		wantErr     bool
	}{
		{args: []string{"acme/widget"}, owner: "acme", repo: "widget"},
		{args: []string{"/acme/widget/"}, owner: "acme", repo: "widget"},
		{args: []string{"acme", "widget"}, owner: "acme", repo: "widget"},
		{args: []string{"acme"}, wantErr: true},
		{args: []string{"a/b/c"}, wantErr: true},
		{args: []string{"acme", " "}, wantErr: true},
		{args: nil, wantErr: true},
	}
	for _, tt := range tests {
		owner, repo, err := ParseRepo(tt.args)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.args)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.owner, owner)
		assert.Equal(t, tt.repo, repo)
	}
}
