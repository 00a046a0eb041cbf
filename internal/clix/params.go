// Package clix holds small helpers shared by the cobra commands.
package clix

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

type PaginationParams struct {
	Limit  int
	Offset int
}

func ParsePagination(flags *pflag.FlagSet) (PaginationParams, error) {
	limit, _ := flags.GetInt("limit")
	offset, _ := flags.GetInt("offset")
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return PaginationParams{Limit: limit, Offset: offset}, nil
}

// ParseTags splits the comma-separated --tags flag.
func ParseTags(flags *pflag.FlagSet) ([]string, error) {
	tagsStr, _ := flags.GetString("tags")
	return SplitList(tagsStr), nil
}

// SplitList splits s on commas, trimming space and dropping empty entries.
func SplitList(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(t); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// ParseRepo accepts either "owner/repo" or "owner repo" as positional args.
func ParseRepo(args []string) (owner, repo string, err error) {
	switch len(args) {
	case 1:
		parts := strings.Split(strings.Trim(args[0], "/"), "/")
		if len(parts) == 2 {
			owner, repo = parts[0], parts[1]
		}
	case 2:
		owner, repo = args[0], args[1]
	}
	owner, repo = strings.TrimSpace(owner), strings.TrimSpace(repo)
	if owner == "" || repo == "" {
		return "", "", fmt.Errorf("expected <owner>/<repo> or <owner> <repo>, got %q", strings.Join(args, " "))
	}
	return owner, repo, nil
}
