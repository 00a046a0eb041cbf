// Package collector gathers a repository's README, languages and topics from
// the GitHub REST API.
package collector

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"tagforge/internal/models"
	"tagforge/internal/pipeline"
	"tagforge/internal/retry"
)

const (
	DefaultBaseURL = "https://api.github.com"

	acceptJSON   = "application/vnd.github.v3+json"
	acceptTopics = "application/vnd.github.mercy-preview+json"
)

// GitHubClient implements pipeline.Collector.
type GitHubClient struct {
	baseURL string
	token   string
	http    *http.Client
	retry   retry.Strategy
}

var _ pipeline.Collector = (*GitHubClient)(nil)

// NewGitHubClient returns a client for baseURL (DefaultBaseURL when empty).
// token may be empty for unauthenticated access.
func NewGitHubClient(baseURL, token string, timeout time.Duration) *GitHubClient {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GitHubClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// WithRetry makes the client retry 5xx, 429 and network failures per s.
func (c *GitHubClient) WithRetry(s retry.Strategy) *GitHubClient {
	c.retry = s
	return c
}

type readmeResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
}

type topicsResponse struct {
	Names []string `json:"names"`
}

// Collect fetches the README (required) plus languages and topics (best
// effort). A missing repository or README yields models.ErrNotFound.
func (c *GitHubClient) Collect(ctx context.Context, owner, repo string) (models.Repository, error) {
	out := models.Repository{Owner: owner, Repo: repo}
	if strings.TrimSpace(owner) == "" || strings.TrimSpace(repo) == "" {
		return out, fmt.Errorf("owner and repo are required: %w", models.ErrInvalidArgument)
	}

	var readme readmeResponse
	if err := c.getJSON(ctx, c.repoPath(owner, repo, "readme"), acceptJSON, &readme); err != nil {
		return out, fmt.Errorf("fetch README for %s/%s: %w", owner, repo, err)
	}
	raw, err := decodeContent(readme)
	if err != nil {
		return out, fmt.Errorf("decode README for %s/%s: %w", owner, repo, err)
	}
	out.Readme = PlainText(CleanBytes(raw, owner+"/"+repo+" README"))

	var languages map[string]int64
	if err := c.getJSON(ctx, c.repoPath(owner, repo, "languages"), acceptJSON, &languages); err != nil {
		log.Warnf("Could not fetch languages for %s/%s: %v", owner, repo, err)
	} else {
		out.Technologies = byteOrder(languages)
	}

	var topics topicsResponse
	if err := c.getJSON(ctx, c.repoPath(owner, repo, "topics"), acceptTopics, &topics); err != nil {
		log.Warnf("Could not fetch topics for %s/%s: %v", owner, repo, err)
	} else {
		out.Topics = topics.Names
	}

	log.Debugf("Collected %s/%s: %d README chars, %d languages, %d topics",
		owner, repo, len(out.Readme), len(out.Technologies), len(out.Topics))
	return out, nil
}

func (c *GitHubClient) repoPath(owner, repo, resource string) string {
	return fmt.Sprintf("%s/repos/%s/%s/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(repo), resource)
}

func (c *GitHubClient) getJSON(ctx context.Context, endpoint, accept string, dst interface{}) error {
	return retry.Do(ctx, c.retry, "GET "+endpoint, func() error {
		return c.fetchJSON(ctx, endpoint, accept, dst)
	})
}

func (c *GitHubClient) fetchJSON(ctx context.Context, endpoint, accept string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return retry.Permanent(err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", "tagforge")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w: %w", models.ErrProvider, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return models.ErrNotFound
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("GitHub API returned %s: %s: %w", resp.Status, strings.TrimSpace(string(body)), models.ErrProvider)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return err
		}
		return retry.Permanent(err)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode GitHub response: %w: %w", models.ErrParse, err)
	}
	return nil
}

func decodeContent(r readmeResponse) ([]byte, error) {
	if r.Encoding != "" && r.Encoding != "base64" {
		return []byte(r.Content), nil
	}
	// GitHub wraps base64 content at 60 columns.
	clean := strings.NewReplacer("\n", "", "\r", "").Replace(r.Content)
	b, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrParse, err)
	}
	return b, nil
}

// byteOrder lists languages by bytes of code, largest first.
func byteOrder(languages map[string]int64) []string {
	names := make([]string, 0, len(languages))
	for name := range languages {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if languages[names[i]] != languages[names[j]] {
			return languages[names[i]] > languages[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}
