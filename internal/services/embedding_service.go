package services

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	log "github.com/sirupsen/logrus"

	"tagforge/internal/models"
	"tagforge/internal/pipeline"
	"tagforge/internal/retry"
	"tagforge/internal/store"
)

var _ pipeline.Embedder = (*FallbackEmbeddingService)(nil)

// NewFallbackEmbeddingService creates a new fallback service.
func NewFallbackEmbeddingService(providers []EmbeddingProvider, strategy RetryStrategy) (*FallbackEmbeddingService, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one embedding provider is required")
	}
	if strategy == nil {
		strategy = &SimpleRetryStrategy{MaxAttempts: 3, BaseDelayMs: 100}
	}
	// Vectors from different providers are compared with each other, so the
	// dimensions have to agree.
	if len(providers) > 1 {
		dim := providers[0].Dimension()
		for i := 1; i < len(providers); i++ {
			if providers[i].Dimension() != dim {
				return nil, fmt.Errorf("all embedding providers must have the same dimension (provider %s has %d, expected %d)",
					providers[i].Name(), providers[i].Dimension(), dim)
			}
		}
	}

	return &FallbackEmbeddingService{
		Providers:      providers,
		ActiveProvider: 0,
		RetryStrategy:  strategy,
	}, nil
}

// Dimension returns the dimension of the currently active provider.
func (s *FallbackEmbeddingService) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.Providers) == 0 {
		return 0
	}
	return s.Providers[s.ActiveProvider].Dimension()
}

// GenerateEmbedding embeds a single text.
func (s *FallbackEmbeddingService) GenerateEmbedding(ctx context.Context, text string) (pgvector.Vector, error) {
	vecs, err := s.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return pgvector.Vector{}, err
	}
	return vecs[0], nil
}

// GenerateEmbeddings tries each provider at most once per call, starting from
// the active one, and retries a provider while the strategy allows. A provider
// that exhausts its retries is demoted and the next one becomes active.
func (s *FallbackEmbeddingService) GenerateEmbeddings(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	s.mu.RLock()
	numProviders := len(s.Providers)
	s.mu.RUnlock()
	if numProviders == 0 {
		return nil, fmt.Errorf("no embedding providers configured: %w", models.ErrProvider)
	}
	if len(texts) == 0 {
		return []pgvector.Vector{}, nil
	}

	var lastErr error
	for tried := 0; tried < numProviders; tried++ {
		s.mu.RLock()
		index := s.ActiveProvider
		provider := s.Providers[index]
		s.mu.RUnlock()

		if provider.Status() == store.ProviderStatusDisabled {
			lastErr = fmt.Errorf("provider %s is disabled", provider.Name())
			s.advanceFrom(index)
			continue
		}

		vecs, err := s.tryProvider(ctx, provider, texts)
		if err == nil {
			return vecs, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("embedding generation cancelled: %w", ctx.Err())
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err
		s.advanceFrom(index)
	}

	log.Errorf("All %d embedding providers failed: %v", numProviders, lastErr)
	return nil, fmt.Errorf("all embedding providers failed: %w: last error: %w", models.ErrProvider, lastErr)
}

func (s *FallbackEmbeddingService) tryProvider(ctx context.Context, provider EmbeddingProvider, texts []string) ([]pgvector.Vector, error) {
	var vecs []pgvector.Vector
	label := fmt.Sprintf("embedding with %s (%s)", provider.Name(), provider.ModelName())
	err := retry.Do(ctx, s.RetryStrategy, label, func() error {
		log.Debugf("Embedding %d texts with %s (%s)", len(texts), provider.Name(), provider.ModelName())
		var err error
		vecs, err = provider.GenerateEmbeddings(ctx, texts)
		if err == nil && len(vecs) != len(texts) {
			err = fmt.Errorf("returned %d vectors for %d texts", len(vecs), len(texts))
		}
		if err != nil {
			return fmt.Errorf("provider %s failed: %w", provider.Name(), err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vecs, nil
}

// advanceFrom makes the provider after index active, unless another call has
// already moved on.
func (s *FallbackEmbeddingService) advanceFrom(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ActiveProvider != index {
		return
	}
	s.ActiveProvider = (index + 1) % len(s.Providers)
	log.Infof("Switching active embedding provider to %s", s.Providers[s.ActiveProvider].Name())
}

// Embed implements pipeline.Embedder. Cached vectors are reused and only the
// misses reach a provider; a cache failure degrades to a full embed.
func (s *FallbackEmbeddingService) Embed(ctx context.Context, texts []string) ([]models.Vector, error) {
	out := make([]models.Vector, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	model := s.ModelName()
	var cached map[string]models.Vector
	if s.Cache != nil {
		var err error
		cached, err = s.Cache.GetEmbeddings(ctx, model, texts)
		if err != nil {
			log.Warnf("Embedding cache lookup failed: %v", err)
			cached = nil
		}
	}

	var (
		missing    []string
		missingIdx []int
	)
	for i, t := range texts {
		if v, ok := cached[t]; ok {
			out[i] = v
			continue
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	vecs, err := s.GenerateEmbeddings(ctx, missing)
	if err != nil {
		return nil, err
	}
	if current := s.ModelName(); current != model && len(missing) < len(texts) {
		// Cached vectors belong to the previous model's space; embed everything
		// with the provider that is active now.
		log.Infof("Embedding model changed from %s to %s; ignoring cached vectors", model, current)
		missing = texts
		missingIdx = missingIdx[:0]
		for i := range texts {
			missingIdx = append(missingIdx, i)
		}
		if vecs, err = s.GenerateEmbeddings(ctx, missing); err != nil {
			return nil, err
		}
	}
	fresh := make(map[string]models.Vector, len(missing))
	for j, v := range vecs {
		mv := models.Vector(v.Slice())
		out[missingIdx[j]] = mv
		fresh[missing[j]] = mv
	}

	if s.Cache != nil {
		if err := s.Cache.PutEmbeddings(ctx, s.ModelName(), fresh); err != nil {
			log.Warnf("Embedding cache write failed: %v", err)
		}
	}
	return out, nil
}
