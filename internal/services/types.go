package services

import (
	"context"
	"sync"

	"github.com/pgvector/pgvector-go"

	"tagforge/internal/retry"
	"tagforge/internal/store"
)

// ProviderStatus is defined in internal/store/interfaces.go

type EmbeddingProvider interface {
	Name() string
	ModelName() string
	Status() store.ProviderStatus
	GenerateEmbedding(ctx context.Context, text string) (pgvector.Vector, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([]pgvector.Vector, error)
	Dimension() int
}

// RetryStrategy decides the backoff between attempts of a provider call.
type RetryStrategy = retry.Strategy

// FallbackEmbeddingService tries its providers in order, retrying each
// according to RetryStrategy. Cache is optional.
type FallbackEmbeddingService struct {
	Providers      []EmbeddingProvider
	ActiveProvider int
	RetryStrategy  RetryStrategy
	Cache          store.EmbeddingCache
	mu             sync.RWMutex
}

// ModelName returns the model name of the currently active provider.
// Returns empty string if no providers or active provider cannot be determined.
func (s *FallbackEmbeddingService) ModelName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.Providers) == 0 || s.ActiveProvider < 0 || s.ActiveProvider >= len(s.Providers) {
		return ""
	}
	return s.Providers[s.ActiveProvider].ModelName()
}

// Name returns the name of the currently active provider.
// Returns empty string if no providers or active provider cannot be determined.
func (s *FallbackEmbeddingService) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.Providers) == 0 || s.ActiveProvider < 0 || s.ActiveProvider >= len(s.Providers) {
		return ""
	}
	return s.Providers[s.ActiveProvider].Name()
}

// Status returns the status of the currently active provider.
func (s *FallbackEmbeddingService) Status() store.ProviderStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.Providers) == 0 || s.ActiveProvider < 0 || s.ActiveProvider >= len(s.Providers) {
		return store.ProviderStatusDisabled
	}
	return s.Providers[s.ActiveProvider].Status()
}

// SimpleRetryStrategy provides basic exponential backoff.
type SimpleRetryStrategy struct {
	MaxAttempts int
	BaseDelayMs int64
}

// NextBackoff calculates the next backoff duration in milliseconds, or -1 to stop.
func (s *SimpleRetryStrategy) NextBackoff(attempt int) int64 {
	if s.MaxAttempts <= 0 {
		return -1
	}
	if attempt >= s.MaxAttempts {
		return -1
	}
	backoff := s.BaseDelayMs * (1 << attempt)
	maxDelay := int64(30000)
	if backoff > maxDelay {
		backoff = maxDelay
	}
	return backoff
}

// IsRetryable reports whether calling a provider again could succeed.
func IsRetryable(err error) bool {
	return retry.Retryable(err)
}
