package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/pgvector/pgvector-go"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"tagforge/internal/config"
	"tagforge/internal/costtracker"
	"tagforge/internal/models"
	"tagforge/internal/retry"
	"tagforge/internal/store"
)

// GeminiProvider implements both EmbeddingProvider and CompletionService using the Google Gemini API.
type GeminiProvider struct {
	client          *genai.Client
	embeddingModel  string // e.g., "models/text-embedding-004"
	completionModel string // e.g., "gemini-2.0-flash"
	temperature     *float32
	dim             int
	retry           RetryStrategy
	usage           usageRecorder
}

var (
	_ EmbeddingProvider = (*GeminiProvider)(nil)
	_ CompletionService = (*GeminiProvider)(nil)
)

// GeminiOptions configures a GeminiProvider. Empty model names disable the
// corresponding capability.
type GeminiOptions struct {
	APIKey          string
	EmbeddingModel  string
	CompletionModel string
	Temperature     *float32
	Retry           RetryStrategy
	Tracker         costtracker.CostTracker
	Pricing         map[string]config.PricingInfo
}

// NewGeminiProvider creates a Gemini provider. Without an API key the
// provider is returned disabled.
func NewGeminiProvider(ctx context.Context, opts GeminiOptions) (*GeminiProvider, error) {
	p := &GeminiProvider{
		embeddingModel:  opts.EmbeddingModel,
		completionModel: opts.CompletionModel,
		temperature:     opts.Temperature,
		retry:           opts.Retry,
		dim:             geminiDimension(opts.EmbeddingModel),
		usage:           usageRecorder{tracker: opts.Tracker, pricing: opts.Pricing},
	}
	if opts.APIKey == "" {
		log.Warn("Gemini API key not provided. Gemini provider will be disabled.")
		return p, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(opts.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	p.client = client
	log.Infof("Gemini provider initialized (embedding model %q, dimension %d, completion model %q)", p.embeddingModel, p.dim, p.completionModel)
	return p, nil
}

func geminiDimension(modelName string) int {
	switch modelName {
	case "", "models/embedding-001", "models/text-embedding-004":
		return 768
	default:
		log.Warnf("Unknown Gemini embedding model '%s', defaulting dimension to 768.", modelName)
		return 768
	}
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string { return "gemini" }

// ModelName returns the embedding model when one is configured, otherwise the completion model.
func (p *GeminiProvider) ModelName() string {
	if p.embeddingModel != "" {
		return p.embeddingModel
	}
	return p.completionModel
}

// Dimension returns the expected embedding dimension for the configured model.
func (p *GeminiProvider) Dimension() int { return p.dim }

// Status returns the operational status of the provider.
func (p *GeminiProvider) Status() store.ProviderStatus {
	if p.client == nil {
		return store.ProviderStatusDisabled
	}
	return store.ProviderStatusActive
}

// Close cleans up the Gemini client resources.
func (p *GeminiProvider) Close() error {
	if p.client != nil {
		return p.client.Close()
	}
	return nil
}

// GenerateEmbedding generates an embedding for a single text.
func (p *GeminiProvider) GenerateEmbedding(ctx context.Context, text string) (pgvector.Vector, error) {
	vecs, err := p.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return pgvector.Vector{}, err
	}
	return vecs[0], nil
}

// GenerateEmbeddings embeds texts in a single batch request.
func (p *GeminiProvider) GenerateEmbeddings(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if p.client == nil || p.embeddingModel == "" {
		return nil, fmt.Errorf("Gemini provider is not configured for embeddings: %w", models.ErrProvider)
	}
	if len(texts) == 0 {
		return []pgvector.Vector{}, nil
	}

	results := make([]pgvector.Vector, len(texts))
	em := p.client.EmbeddingModel(p.embeddingModel)
	batch := em.NewBatch()
	var indices []int
	for i, text := range texts {
		if text == "" {
			results[i] = pgvector.NewVector(make([]float32, p.dim))
			continue
		}
		batch.AddContent(genai.Text(text))
		indices = append(indices, i)
	}
	if len(indices) == 0 {
		return results, nil
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("Gemini API error generating embeddings: %w: %w", models.ErrProvider, err)
	}
	if res == nil || len(res.Embeddings) != len(indices) {
		return nil, fmt.Errorf("Gemini API returned an incomplete embedding batch: %w", models.ErrProvider)
	}
	for j, e := range res.Embeddings {
		if e == nil || len(e.Values) != p.dim {
			return nil, fmt.Errorf("Gemini API returned unexpected embedding at index %d: %w", indices[j], models.ErrProvider)
		}
		results[indices[j]] = pgvector.NewVector(e.Values)
	}
	return results, nil
}

// GenerateChatCompletion sends the conversation to the completion model.
// System messages become the system instruction; the rest are sent in order.
func (p *GeminiProvider) GenerateChatCompletion(ctx context.Context, messages []ChatMessage) (string, error) {
	if p.client == nil {
		return "", fmt.Errorf("Gemini provider is not initialized (missing API key): %w", models.ErrProvider)
	}
	if p.completionModel == "" {
		return "", fmt.Errorf("Gemini provider is not configured for chat completion: %w", models.ErrProvider)
	}

	model := p.client.GenerativeModel(p.completionModel)
	if p.temperature != nil {
		model.SetTemperature(*p.temperature)
	}
	var system []string
	var parts []genai.Part
	for _, m := range messages {
		if m.Role == ChatMessageRoleSystem {
			system = append(system, m.Content)
			continue
		}
		parts = append(parts, genai.Text(m.Content))
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))}}
	}
	if len(parts) == 0 {
		return "", fmt.Errorf("chat completion needs at least one non-system message: %w", models.ErrInvalidArgument)
	}

	var resp *genai.GenerateContentResponse
	err := retry.Do(ctx, p.retry, "gemini chat completion", func() error {
		var err error
		resp, err = model.GenerateContent(ctx, parts...)
		if err != nil {
			return fmt.Errorf("gemini chat completion failed: %w: %w", models.ErrProvider, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if resp.UsageMetadata != nil {
		p.usage.record(ctx, models.AIUsageLog{
			ProviderName: p.Name(),
			ServiceType:  operationFrom(ctx, models.ServiceTypeGeneration),
			ModelName:    p.completionModel,
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		})
	}
	return geminiText(resp)
}

// geminiText concatenates the text parts of the first candidate.
func geminiText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates returned from Gemini: %w", models.ErrProvider)
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("Gemini candidate contained no text: %w", models.ErrProvider)
	}
	return b.String(), nil
}
