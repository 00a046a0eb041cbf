// Package ranking scores candidate tags against the chunks of a document.
package ranking

import (
	"context"
	"fmt"
	"runtime"
	"sort"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tagforge/internal/models"
	"tagforge/internal/vectormath"
)

// InvalidScore is assigned to a tag when none of its chunk comparisons
// produced a finite similarity. It sorts below every real score.
const InvalidScore = -1.0

// Rank scores every tag by its best cosine similarity over all chunks and
// returns the tags sorted by descending score. Tags with equal scores keep
// their input order.
func Rank(ctx context.Context, tags []models.TagCandidate, chunks []models.ChunkVector) ([]models.RankedTag, error) {
	if len(tags) == 0 {
		return nil, fmt.Errorf("no tag candidates to rank: %w", models.ErrInvalidArgument)
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("no chunks to rank against: %w", models.ErrInvalidArgument)
	}

	dim := len(tags[0].Vector)
	for _, t := range tags {
		if len(t.Vector) != dim {
			return nil, fmt.Errorf("tag %q has dimension %d, expected %d: %w", t.Tag, len(t.Vector), dim, models.ErrDimensionMismatch)
		}
	}
	for i, c := range chunks {
		if len(c.Vector) != dim {
			return nil, fmt.Errorf("chunk %d has dimension %d, expected %d: %w", i, len(c.Vector), dim, models.ErrDimensionMismatch)
		}
	}

	scores := make([]float64, len(tags))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range tags {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			best, err := maxSimilarity(tags[i].Vector, chunks)
			if err != nil {
				return err
			}
			scores[i] = best
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := make([]models.RankedTag, len(tags))
	for i, t := range tags {
		ranked[i] = models.RankedTag{Tag: t.Tag, Score: scores[i]}
	}
	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Score > ranked[b].Score
	})

	log.Debugf("Ranked %d tags against %d chunks", len(tags), len(chunks))
	return ranked, nil
}

func maxSimilarity(tag models.Vector, chunks []models.ChunkVector) (float64, error) {
	best := InvalidScore
	found := false
	for _, c := range chunks {
		sim, err := vectormath.Cosine(tag, c.Vector)
		if err != nil {
			return 0, err
		}
		if !vectormath.IsValid(sim) {
			continue
		}
		if !found || sim > best {
			best = sim
			found = true
		}
	}
	return best, nil
}
