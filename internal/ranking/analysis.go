package ranking

import "tagforge/internal/models"

// Relevance buckets.
const (
	RelevanceHigh   = "high"
	RelevanceMedium = "medium"
	RelevanceLow    = "low"
)

const (
	highThreshold     = 0.7
	mediumThreshold   = 0.5
	maxRecommendation = 10
)

// Categorize maps a similarity score to its relevance bucket.
func Categorize(score float64) string {
	switch {
	case score > highThreshold:
		return RelevanceHigh
	case score > mediumThreshold:
		return RelevanceMedium
	default:
		return RelevanceLow
	}
}

// Categorized groups ranked tags by relevance.
type Categorized struct {
	High   []models.RankedTag `json:"high_relevance"`
	Medium []models.RankedTag `json:"medium_relevance"`
	Low    []models.RankedTag `json:"low_relevance"`
}

// Statistics summarizes the score distribution of a ranking.
type Statistics struct {
	TotalTags   int     `json:"total_tags"`
	Average     float64 `json:"average_similarity"`
	Max         float64 `json:"max_similarity"`
	Min         float64 `json:"min_similarity"`
	HighCount   int     `json:"high_relevance_count"`
	MediumCount int     `json:"medium_relevance_count"`
	LowCount    int     `json:"low_relevance_count"`
}

// Analysis is the reported view of a ranking.
type Analysis struct {
	TagSimilarities []models.RankedTag `json:"tag_similarities"`
	Categorized     Categorized        `json:"categorized_tags"`
	Statistics      Statistics         `json:"statistics"`
	Recommended     []string           `json:"recommended_tags"`
}

// Analyze builds the reported view from an already sorted ranking. Only tags
// scoring above 0.5 are listed in TagSimilarities, and the first ten high
// relevance tags are recommended.
func Analyze(ranked []models.RankedTag) Analysis {
	a := Analysis{
		TagSimilarities: []models.RankedTag{},
		Categorized: Categorized{
			High:   []models.RankedTag{},
			Medium: []models.RankedTag{},
			Low:    []models.RankedTag{},
		},
		Recommended: []string{},
	}
	if len(ranked) == 0 {
		return a
	}

	var sum float64
	a.Statistics.Max = ranked[0].Score
	a.Statistics.Min = ranked[0].Score
	for _, r := range ranked {
		sum += r.Score
		if r.Score > a.Statistics.Max {
			a.Statistics.Max = r.Score
		}
		if r.Score < a.Statistics.Min {
			a.Statistics.Min = r.Score
		}
		if r.Score > mediumThreshold {
			a.TagSimilarities = append(a.TagSimilarities, r)
		}
		switch Categorize(r.Score) {
		case RelevanceHigh:
			a.Categorized.High = append(a.Categorized.High, r)
		case RelevanceMedium:
			a.Categorized.Medium = append(a.Categorized.Medium, r)
		default:
			a.Categorized.Low = append(a.Categorized.Low, r)
		}
	}

	a.Statistics.TotalTags = len(ranked)
	a.Statistics.Average = sum / float64(len(ranked))
	a.Statistics.HighCount = len(a.Categorized.High)
	a.Statistics.MediumCount = len(a.Categorized.Medium)
	a.Statistics.LowCount = len(a.Categorized.Low)

	for i, r := range a.Categorized.High {
		if i == maxRecommendation {
			break
		}
		a.Recommended = append(a.Recommended, r.Tag)
	}
	return a
}
