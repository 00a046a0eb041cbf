package pipeline

import (
	"context"

	"tagforge/internal/candidates"
	"tagforge/internal/models"
)

// Collector fetches the source material for a repository.
type Collector interface {
	Collect(ctx context.Context, owner, repo string) (models.Repository, error)
}

// GenerationRequest is the input to a Generator.
type GenerationRequest struct {
	Owner        string
	Repo         string
	Content      string
	Technologies []string
	Topics       []string
}

// Generator proposes candidate tags. On failure it returns an empty set and
// the error.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (candidates.Set, error)
}

// Embedder turns texts into vectors, one per text in input order. It fails
// as a unit.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([]models.Vector, error)
}
