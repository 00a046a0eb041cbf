package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"tagforge/internal/config"
	"tagforge/internal/costtracker"
	"tagforge/internal/models"
	"tagforge/internal/retry"
	"tagforge/internal/store"
)

// ChatMessageRole defines the role of the message sender (system, user, assistant).
type ChatMessageRole string

const (
	ChatMessageRoleSystem    ChatMessageRole = "system"
	ChatMessageRoleUser      ChatMessageRole = "user"
	ChatMessageRoleAssistant ChatMessageRole = "assistant"
)

// ChatMessage represents a single message in a chat conversation.
type ChatMessage struct {
	Role    ChatMessageRole
	Content string
}

// CompletionService defines the interface for generating chat responses.
type CompletionService interface {
	GenerateChatCompletion(ctx context.Context, messages []ChatMessage) (string, error)
	Status() store.ProviderStatus
	Name() string
	ModelName() string
}

// ChatCompletionCreator is the minimal interface for OpenAI chat completions.
type ChatCompletionCreator interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIChat implements CompletionService with the OpenAI chat API.
type OpenAIChat struct {
	client      ChatCompletionCreator
	model       string
	temperature float32
	retry       RetryStrategy
	usage       usageRecorder
}

var _ CompletionService = (*OpenAIChat)(nil)

// NewOpenAIChat wraps client for model. A nil client yields a disabled service.
func NewOpenAIChat(client ChatCompletionCreator, model string, temperature float32, tracker costtracker.CostTracker, pricing map[string]config.PricingInfo) *OpenAIChat {
	return &OpenAIChat{
		client:      client,
		model:       model,
		temperature: temperature,
		usage:       usageRecorder{tracker: tracker, pricing: pricing},
	}
}

// WithTemperature returns a copy sampling at t.
func (c *OpenAIChat) WithTemperature(t float32) *OpenAIChat {
	cp := *c
	cp.temperature = t
	return &cp
}

// WithRetry returns a copy that retries transient API failures per s.
func (c *OpenAIChat) WithRetry(s RetryStrategy) *OpenAIChat {
	cp := *c
	cp.retry = s
	return &cp
}

func (c *OpenAIChat) Name() string      { return "openai" }
func (c *OpenAIChat) ModelName() string { return c.model }

func (c *OpenAIChat) Status() store.ProviderStatus {
	if c.client == nil {
		return store.ProviderStatusDisabled
	}
	return store.ProviderStatusActive
}

func (c *OpenAIChat) GenerateChatCompletion(ctx context.Context, messages []ChatMessage) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("OpenAI chat is not initialized (missing API key): %w", models.ErrProvider)
	}
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}

	var resp openai.ChatCompletionResponse
	err := retry.Do(ctx, c.retry, "openai chat completion", func() error {
		var err error
		resp, err = c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			err = fmt.Errorf("openai chat completion failed: %w: %w", models.ErrProvider, err)
			if !retryableStatus(openAIStatus(err)) {
				return retry.Permanent(err)
			}
		}
		return err
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices returned from OpenAI: %w", models.ErrProvider)
	}

	c.usage.record(ctx, models.AIUsageLog{
		ProviderName: c.Name(),
		ServiceType:  operationFrom(ctx, models.ServiceTypeGeneration),
		ModelName:    c.model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	})
	return resp.Choices[0].Message.Content, nil
}

// openAIStatus extracts the HTTP status from a go-openai error, or 0.
func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}

// retryableStatus reports whether a response status is worth retrying.
// Unknown (0) statuses are network failures.
func retryableStatus(code int) bool {
	return code == 0 || code == http.StatusTooManyRequests || code >= 500
}
