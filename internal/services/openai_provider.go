package services

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"tagforge/internal/config"
	"tagforge/internal/costtracker"
	"tagforge/internal/models"
	"tagforge/internal/store"
)

// embeddingsCreator is the part of *openai.Client the provider needs.
type embeddingsCreator interface {
	CreateEmbeddings(ctx context.Context, conv openai.EmbeddingRequestConverter) (openai.EmbeddingResponse, error)
}

// OpenAIProvider implements EmbeddingProvider using the OpenAI API.
type OpenAIProvider struct {
	client embeddingsCreator
	model  openai.EmbeddingModel
	dim    int
	usage  usageRecorder
}

var _ EmbeddingProvider = (*OpenAIProvider)(nil)

// NewOpenAIProvider creates a new OpenAI embedding provider. Without an API key
// the provider is returned disabled.
func NewOpenAIProvider(apiKey, modelID string, tracker costtracker.CostTracker, pricing map[string]config.PricingInfo) *OpenAIProvider {
	if apiKey == "" {
		log.Warn("OpenAI API key not provided. OpenAI embedding provider will be disabled.")
		return &OpenAIProvider{model: openai.EmbeddingModel(modelID), dim: openAIDimension(modelID)}
	}
	return NewOpenAIProviderWithClient(openai.NewClient(apiKey), modelID, tracker, pricing)
}

// NewOpenAIProviderWithClient wires an existing client, e.g. one built with
// openai.NewClientWithConfig for a compatible endpoint.
func NewOpenAIProviderWithClient(client embeddingsCreator, modelID string, tracker costtracker.CostTracker, pricing map[string]config.PricingInfo) *OpenAIProvider {
	dim := openAIDimension(modelID)
	log.Infof("OpenAI provider initialized with model %s (dimension %d)", modelID, dim)
	return &OpenAIProvider{
		client: client,
		model:  openai.EmbeddingModel(modelID),
		dim:    dim,
		usage:  usageRecorder{tracker: tracker, pricing: pricing},
	}
}

func openAIDimension(modelID string) int {
	switch modelID {
	case string(openai.AdaEmbeddingV2), string(openai.SmallEmbedding3):
		return 1536
	case string(openai.LargeEmbedding3):
		return 3072
	default:
		log.Warnf("Unknown OpenAI embedding model '%s', defaulting dimension to 1536.", modelID)
		return 1536
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string { return "openai" }

// ModelName returns the specific model identifier.
func (p *OpenAIProvider) ModelName() string { return string(p.model) }

// Dimension returns the expected embedding dimension for the configured model.
func (p *OpenAIProvider) Dimension() int { return p.dim }

// Status returns the operational status of the provider.
func (p *OpenAIProvider) Status() store.ProviderStatus {
	if p.client == nil {
		return store.ProviderStatusDisabled
	}
	return store.ProviderStatusActive
}

func (p *OpenAIProvider) GenerateEmbedding(ctx context.Context, text string) (pgvector.Vector, error) {
	vecs, err := p.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return pgvector.Vector{}, err
	}
	return vecs[0], nil
}

// GenerateEmbeddings embeds texts in one request. Empty texts get a zero
// vector without being sent.
func (p *OpenAIProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if p.client == nil {
		return nil, fmt.Errorf("OpenAI provider is not initialized (missing API key): %w", models.ErrProvider)
	}
	if len(texts) == 0 {
		return []pgvector.Vector{}, nil
	}

	results := make([]pgvector.Vector, len(texts))
	validTexts := make([]string, 0, len(texts))
	originalIndices := make([]int, 0, len(texts))
	for i, t := range texts {
		if t == "" {
			results[i] = pgvector.NewVector(make([]float32, p.dim))
			continue
		}
		originalIndices = append(originalIndices, i)
		validTexts = append(validTexts, t)
	}
	if len(validTexts) == 0 {
		return results, nil
	}

	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: validTexts,
		Model: p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error generating embeddings: %w: %w", models.ErrProvider, err)
	}
	if len(resp.Data) != len(validTexts) {
		return nil, fmt.Errorf("OpenAI API returned %d embeddings, expected %d: %w", len(resp.Data), len(validTexts), models.ErrProvider)
	}

	p.usage.record(ctx, models.AIUsageLog{
		ProviderName: p.Name(),
		ServiceType:  models.ServiceTypeEmbedding,
		ModelName:    p.ModelName(),
		InputTokens:  resp.Usage.TotalTokens,
	})

	for i, data := range resp.Data {
		if len(data.Embedding) != p.dim {
			return nil, fmt.Errorf("OpenAI API returned unexpected embedding dimension: got %d, want %d: %w", len(data.Embedding), p.dim, models.ErrProvider)
		}
		// Data carries its own index; fall back to position when it is out of range.
		pos := data.Index
		if pos < 0 || pos >= len(validTexts) {
			pos = i
		}
		results[originalIndices[pos]] = pgvector.NewVector(data.Embedding)
	}
	return results, nil
}
