package pipeline

import (
	"tagforge/internal/candidates"
	"tagforge/internal/critic"
	"tagforge/internal/models"
	"tagforge/internal/ranking"
	"tagforge/internal/rules"
)

// Stage names.
const (
	StageDataCollector = "data_collector"
	StageTagCandidate  = "tag_candidate"
	StageSimilarity    = "similarity"
	StageTagRule       = "tag_rule"
	StageTagCritic     = "tag_critic"
)

const (
	stepStart      = "start"
	completeSuffix = "_complete"
	noteDegraded   = "degraded"
)

// SimilarityResult is the output of the similarity stage. When Success is
// false the stage ran in degraded mode and later stages use the unranked
// candidate list.
type SimilarityResult struct {
	Success bool   `json:"success"`
	Note    string `json:"note,omitempty"`
	Error   string `json:"error,omitempty"`
	*ranking.Analysis
	Ranked       []models.RankedTag `json:"ranked,omitempty"`
	Deduplicated []string           `json:"deduplicated,omitempty"`
	Clusters     [][]string         `json:"clusters,omitempty"`
}

// State is the record threaded through the stages of one run. Each stage
// writes only its own fields. Error is written at most once.
type State struct {
	Owner         string
	Repo          string
	ReadmeContent string
	Technologies  []string
	Topics        []string

	CandidateTags      *candidates.Set
	SimilarityAnalysis *SimilarityResult
	TagRule            *rules.Result
	TagCritic          *critic.SafeResult

	Error          string
	CurrentStep    string
	StepsCompleted []string
	Notes          []string

	// working is the tag list handed from one refinement stage to the next.
	working []string
}

func newState(owner, repo string) *State {
	return &State{Owner: owner, Repo: repo, CurrentStep: stepStart, StepsCompleted: []string{}}
}

func (s *State) fail(msg string) {
	if s.Error == "" {
		s.Error = msg
	}
}

func (s *State) note(msg string) {
	s.Notes = append(s.Notes, msg)
}
