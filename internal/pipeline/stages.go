package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"

	"tagforge/internal/candidates"
	"tagforge/internal/chunking"
	"tagforge/internal/dedup"
	"tagforge/internal/models"
	"tagforge/internal/ranking"
)

// collect is the only stage whose failure halts the run.
func (o *Orchestrator) collect(ctx context.Context, s *State) error {
	repo, err := o.collector.Collect(ctx, s.Owner, s.Repo)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return errors.New("Repository or README not found")
		}
		return fmt.Errorf("failed to collect repository data: %w", err)
	}
	if strings.TrimSpace(repo.Readme) == "" {
		return errors.New("no README content available")
	}
	s.ReadmeContent = repo.Readme
	s.Technologies = repo.Technologies
	s.Topics = repo.Topics
	log.Infof("Collected %d characters of README for %s/%s", len(repo.Readme), s.Owner, s.Repo)
	return nil
}

func (o *Orchestrator) generateCandidates(ctx context.Context, s *State) error {
	set, err := o.generator.Generate(ctx, GenerationRequest{
		Owner:        s.Owner,
		Repo:         s.Repo,
		Content:      s.ReadmeContent,
		Technologies: s.Technologies,
		Topics:       s.Topics,
	})
	if err != nil {
		log.Warnf("Candidate generation failed for %s/%s: %v", s.Owner, s.Repo, err)
		s.note(fmt.Sprintf("candidate generation failed: %v", err))
		set = candidates.Set{}
	}
	if set.Empty() {
		fallback := append(append([]string{}, s.Topics...), s.Technologies...)
		for i, t := range fallback {
			fallback[i] = strings.ToLower(t)
		}
		set = candidates.Flat(fallback)
		if !set.Empty() {
			s.note("no generated candidates; using repository topics and languages")
		} else {
			s.note("no candidate tags available")
		}
	}
	s.CandidateTags = &set
	s.working = set.Flatten()
	log.Infof("Resolved %d candidate tags (%s)", len(s.working), set.Kind())
	return nil
}

// scoreSimilarity ranks the candidates against the README and collapses
// near-duplicates. Any failure degrades to the unranked candidate list.
func (o *Orchestrator) scoreSimilarity(ctx context.Context, s *State) error {
	tags := s.working
	if len(tags) == 0 {
		s.SimilarityAnalysis = &SimilarityResult{Success: false, Note: noteDegraded, Error: "no candidate tags to score"}
		return nil
	}

	result, survivors, err := o.rankAndDedup(ctx, s.ReadmeContent, tags)
	if err != nil {
		log.Warnf("Similarity scoring degraded for %s/%s: %v", s.Owner, s.Repo, err)
		s.SimilarityAnalysis = &SimilarityResult{Success: false, Note: noteDegraded, Error: err.Error()}
		return nil
	}
	s.SimilarityAnalysis = result
	s.working = survivors
	return nil
}

func (o *Orchestrator) rankAndDedup(ctx context.Context, content string, tags []string) (*SimilarityResult, []string, error) {
	if o.embedder == nil {
		return nil, nil, fmt.Errorf("no embedder configured: %w", models.ErrProvider)
	}
	chunks, err := chunking.Chunk(content, o.cfg.ChunkSize, o.cfg.ChunkOverlap)
	if err != nil {
		return nil, nil, err
	}
	if len(chunks) == 0 {
		return nil, nil, fmt.Errorf("README produced no chunks: %w", models.ErrInvalidArgument)
	}

	// One batch: chunk and tag vectors must come from the same provider.
	texts := make([]string, 0, len(chunks)+len(tags))
	for _, c := range chunks {
		texts = append(texts, c.Text)
	}
	texts = append(texts, tags...)
	vecs, err := o.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, nil, fmt.Errorf("embed chunks and tags: %w", err)
	}
	if len(vecs) != len(texts) {
		return nil, nil, fmt.Errorf("embedder returned %d vectors for %d texts: %w", len(vecs), len(texts), models.ErrProvider)
	}
	chunkVecs, tagVecs := vecs[:len(chunks)], vecs[len(chunks):]

	chunkInputs := make([]models.ChunkVector, len(chunks))
	for i, c := range chunks {
		chunkInputs[i] = models.ChunkVector{Text: c.Text, Vector: chunkVecs[i]}
	}
	tagInputs := make([]models.TagCandidate, len(tags))
	vectors := make(map[string]models.Vector, len(tags))
	for i, t := range tags {
		tagInputs[i] = models.TagCandidate{Tag: t, Vector: tagVecs[i]}
		vectors[t] = tagVecs[i]
	}

	ranked, err := ranking.Rank(ctx, tagInputs, chunkInputs)
	if err != nil {
		return nil, nil, err
	}
	analysis := ranking.Analyze(ranked)

	var pool []models.TagCandidate
	for _, r := range ranked {
		if r.Score > o.cfg.MinSimilarity {
			pool = append(pool, models.TagCandidate{Tag: r.Tag, Vector: vectors[r.Tag], Priority: r.Score})
		}
	}
	if len(pool) == 0 {
		for _, r := range ranked {
			pool = append(pool, models.TagCandidate{Tag: r.Tag, Vector: vectors[r.Tag], Priority: r.Score})
		}
	}
	survivors, err := dedup.DeduplicateByPriority(pool, o.cfg.DedupThreshold)
	if err != nil {
		return nil, nil, err
	}
	clusters, err := dedup.Clusters(pool, o.cfg.DedupThreshold)
	if err != nil {
		return nil, nil, err
	}

	log.Infof("Similarity kept %d of %d tags after deduplication", len(survivors), len(tags))
	return &SimilarityResult{
		Success:      true,
		Analysis:     &analysis,
		Ranked:       ranked,
		Deduplicated: survivors,
		Clusters:     clusters,
	}, survivors, nil
}

func (o *Orchestrator) applyRules(_ context.Context, s *State) error {
	res := o.cfg.Rules.Filter(s.working)
	s.TagRule = &res
	s.working = res.ValidTags
	return nil
}

func (o *Orchestrator) critique(ctx context.Context, s *State) error {
	if o.critic == nil {
		s.note("tag critic not configured; skipped")
		return nil
	}
	out := o.critic.Safe(ctx, s.working, o.critiqueContext(s))
	if out.Error != "" {
		s.note(fmt.Sprintf("tag critic: %s", out.Error))
	}
	s.TagCritic = &out
	s.working = out.FinalTags
	return nil
}

func (o *Orchestrator) critiqueContext(s *State) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s/%s\n", s.Owner, s.Repo)
	if len(s.Topics) > 0 {
		fmt.Fprintf(&b, "Topics: %s\n", strings.Join(s.Topics, ", "))
	}
	if len(s.Technologies) > 0 {
		fmt.Fprintf(&b, "Languages: %s\n", strings.Join(s.Technologies, ", "))
	}
	b.WriteString("\n")
	b.WriteString(preview(s.ReadmeContent, o.cfg.ContextChars))
	return b.String()
}
