// Package dedup collapses semantically equivalent tag candidates.
//
// Clustering is greedy and seeded: each unassigned candidate opens a cluster
// and absorbs every later unassigned candidate whose similarity to the seed
// reaches the threshold. Absorbed members never absorb others, so the
// grouping is not transitive. A chain a~b, b~c with a!~c leaves c in its own
// cluster.
package dedup

import (
	"fmt"
	"runtime"
	"sort"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"tagforge/internal/models"
	"tagforge/internal/vectormath"
)

// DefaultThreshold is the similarity at or above which two tags are merged.
const DefaultThreshold = 0.95

// Deduplicate returns one tag per cluster, in first-seen order.
func Deduplicate(cands []models.TagCandidate, threshold float64) ([]string, error) {
	clusters, err := cluster(cands, threshold)
	if err != nil {
		return nil, err
	}
	return seeds(clusters), nil
}

// DeduplicateByPriority orders candidates by descending Priority before
// clustering so the highest-priority member of each cluster survives.
func DeduplicateByPriority(cands []models.TagCandidate, threshold float64) ([]string, error) {
	if err := validate(cands, threshold); err != nil {
		return nil, err
	}
	ordered := make([]models.TagCandidate, len(cands))
	copy(ordered, cands)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority > ordered[j].Priority
	})
	return Deduplicate(ordered, threshold)
}

// Clusters returns every cluster with all of its members, seed first.
func Clusters(cands []models.TagCandidate, threshold float64) ([][]string, error) {
	return cluster(cands, threshold)
}

func validate(cands []models.TagCandidate, threshold float64) error {
	if threshold < 0 || threshold > 1 || !vectormath.IsValid(threshold) {
		return fmt.Errorf("threshold %v outside [0, 1]: %w", threshold, models.ErrInvalidArgument)
	}
	for i, c := range cands {
		if c.Tag == "" {
			return fmt.Errorf("candidate %d has no tag: %w", i, models.ErrInvalidArgument)
		}
		if c.Vector == nil {
			return fmt.Errorf("candidate %q has no vector: %w", c.Tag, models.ErrInvalidArgument)
		}
	}
	return nil
}

func cluster(cands []models.TagCandidate, threshold float64) ([][]string, error) {
	if err := validate(cands, threshold); err != nil {
		return nil, err
	}

	n := len(cands)
	assigned := make([]bool, n)
	var clusters [][]string
	for i := 0; i < n; i++ {
		if assigned[i] {
			continue
		}
		assigned[i] = true
		members := []string{cands[i].Tag}

		dup := similarToSeed(cands, i, assigned, threshold)
		for j := i + 1; j < n; j++ {
			if dup[j] {
				assigned[j] = true
				members = append(members, cands[j].Tag)
			}
		}
		clusters = append(clusters, members)
	}

	log.Debugf("Deduplicated %d candidates into %d clusters (threshold=%.2f)", n, len(clusters), threshold)
	return clusters, nil
}

// similarToSeed compares the seed at index i with every later unassigned
// candidate. Comparisons run concurrently; the caller applies the result in
// index order.
func similarToSeed(cands []models.TagCandidate, i int, assigned []bool, threshold float64) []bool {
	dup := make([]bool, len(cands))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	seed := cands[i].Vector
	for j := i + 1; j < len(cands); j++ {
		if assigned[j] {
			continue
		}
		g.Go(func() error {
			sim, err := vectormath.Cosine(seed, cands[j].Vector)
			if err != nil || !vectormath.IsValid(sim) {
				// Incomparable pairs are never duplicates.
				return nil
			}
			dup[j] = sim >= threshold
			return nil
		})
	}
	_ = g.Wait()
	return dup
}

func seeds(clusters [][]string) []string {
	out := make([]string, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, c[0])
	}
	return out
}
