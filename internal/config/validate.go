package config

import (
	"errors"
	"fmt"

	"tagforge/internal/pipeline"
)

// Validate checks the values a run depends on. Storage and queue settings are
// checked by the commands that open them.
func (c *Config) Validate() error {
	if len(c.Embedding.Providers) == 0 {
		return errors.New("embedding.providers must list at least one provider")
	}
	for _, p := range c.Embedding.Providers {
		switch p {
		case "openai":
			if c.Embedding.Model == "" {
				return errors.New("embedding.model is required when the openai embedding provider is enabled")
			}
		case "gemini":
			if c.Embedding.GeminiModelName == "" {
				return errors.New("embedding.gemini_model_name is required when the gemini embedding provider is enabled")
			}
		default:
			return fmt.Errorf("embedding.providers contains unknown provider '%s'", p)
		}
	}
	if c.Embedding.RetryAttempts < 0 {
		return errors.New("embedding.retry_attempts must not be negative")
	}

	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return fmt.Errorf("llm.provider must be 'openai' or 'gemini', got '%s'", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return errors.New("llm.model is required")
	}

	p := c.Pipeline
	if p.ChunkSize <= 0 {
		return errors.New("pipeline.chunk_size must be positive")
	}
	if p.ChunkOverlap < 0 || p.ChunkOverlap >= p.ChunkSize {
		return fmt.Errorf("pipeline.chunk_overlap (%d) must be non-negative and less than chunk_size (%d)", p.ChunkOverlap, p.ChunkSize)
	}
	if p.DedupThreshold < 0 || p.DedupThreshold > 1 {
		return fmt.Errorf("pipeline.dedup_threshold (%v) must be within [0, 1]", p.DedupThreshold)
	}
	if p.MinSimilarity < -1 || p.MinSimilarity > 1 {
		return fmt.Errorf("pipeline.min_similarity (%v) must be within [-1, 1]", p.MinSimilarity)
	}
	if p.Order != pipeline.OrderCriticFirst && p.Order != pipeline.OrderRuleFirst {
		return fmt.Errorf("pipeline.order must be '%s' or '%s', got '%s'", pipeline.OrderCriticFirst, pipeline.OrderRuleFirst, p.Order)
	}
	if p.MaxFinalTags <= 0 {
		return errors.New("pipeline.max_final_tags must be positive")
	}
	if p.Rules.MinLength <= 0 || p.Rules.MaxLength < p.Rules.MinLength {
		return fmt.Errorf("pipeline.rules length bounds [%d, %d] are invalid", p.Rules.MinLength, p.Rules.MaxLength)
	}

	if c.Critic.Threshold < 0 || c.Critic.Threshold > 100 {
		return fmt.Errorf("critic.threshold (%v) must be within [0, 100]", c.Critic.Threshold)
	}
	if c.Critic.MaxIterations <= 0 {
		return errors.New("critic.max_iterations must be positive")
	}

	switch c.Database.Reports.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.reports.driver must be 'sqlite' or 'postgres', got '%s'", c.Database.Reports.Driver)
	}

	for provider, models := range c.Pricing {
		for model, price := range models {
			if price.InputPerToken < 0 || price.OutputPerToken < 0 {
				return fmt.Errorf("pricing for provider '%s', model '%s' has negative token cost", provider, model)
			}
		}
	}
	return nil
}

// ValidateWorker checks the settings needed to run or feed the job queue.
func (c *Config) ValidateWorker() error {
	if c.Redis.Address == "" {
		return errors.New("redis.address is required")
	}
	if c.Worker.Concurrency <= 0 {
		return errors.New("worker.concurrency must be a positive integer")
	}
	if len(c.Worker.Queues) == 0 {
		return errors.New("worker.queues must define at least one queue")
	}
	for name, priority := range c.Worker.Queues {
		if name == "" {
			return errors.New("worker.queues contains an empty queue name")
		}
		if priority <= 0 {
			return fmt.Errorf("worker.queues priority for queue '%s' must be positive", name)
		}
	}
	return nil
}
