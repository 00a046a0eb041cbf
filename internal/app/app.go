package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"tagforge/internal/collector"
	"tagforge/internal/config"
	"tagforge/internal/costtracker"
	"tagforge/internal/critic"
	"tagforge/internal/pipeline"
	"tagforge/internal/services"
	"tagforge/internal/store"
	"tagforge/internal/store/primary"
	"tagforge/internal/store/sqlite"
	"tagforge/internal/store/vector"
)

type App struct {
	Config *config.Config

	Store       store.Store
	JobClient   store.JobClient
	CostTracker costtracker.CostTracker

	EmbeddingService *services.FallbackEmbeddingService
	Completion       services.CompletionService // candidate generation
	CriticCompletion services.CompletionService // evaluation and revision

	Collector    *collector.GitHubClient
	Critic       *critic.Critic
	Orchestrator *pipeline.Orchestrator

	closers []func() error
}

func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg, CostTracker: costtracker.New()}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"report store", app.initStore},
		{"job client", app.initJobClient},
		{"embedding service", app.initEmbeddingService},
		{"completion service", app.initCompletionService},
		{"pipeline", app.initPipeline},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("init %s: %w", step.name, err)
		}
	}

	log.Debug("Application initialization complete.")
	return app, nil
}

// --- Private Helper Methods ---

func (a *App) initStore(ctx context.Context) error {
	db := a.Config.Database.Reports
	switch strings.ToLower(db.Driver) {
	case "", "sqlite":
		s, err := sqlite.NewStore(ctx, db.DSN)
		if err != nil {
			return err
		}
		a.Store = s
	case "postgres":
		s, err := primary.NewPrimaryStore(ctx, db.DSN)
		if err != nil {
			return err
		}
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return err
		}
		a.Store = s
	default:
		return fmt.Errorf("unsupported report store driver %q", db.Driver)
	}
	a.closers = append(a.closers, a.Store.Close)
	return nil
}

// initJobClient creates the Redis-backed client. asynq connects lazily, so
// commands that never enqueue do not need Redis to be up.
func (a *App) initJobClient(context.Context) error {
	jc := store.NewAsynqJobClient(a.RedisOpt(), a.Store)
	a.JobClient = jc
	a.closers = append(a.closers, jc.Close)
	return nil
}

// RedisOpt returns the asynq connection options from config.
func (a *App) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     a.Config.Redis.Address,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	}
}

func (a *App) initEmbeddingService(ctx context.Context) error {
	cfg := a.Config
	var providers []services.EmbeddingProvider
	for _, name := range cfg.Embedding.Providers {
		switch strings.ToLower(name) {
		case "openai":
			p := services.NewOpenAIProvider(cfg.Embedding.OpenaiApiKey, cfg.Embedding.Model, a.CostTracker, cfg.PricingFor("openai"))
			log.Debugf("Configured OpenAI embedding provider (model %s, status %s)", p.ModelName(), p.Status())
			providers = append(providers, p)
		case "gemini":
			p, err := services.NewGeminiProvider(ctx, services.GeminiOptions{
				APIKey:         cfg.Embedding.GoogleApiKey,
				EmbeddingModel: cfg.Embedding.GeminiModelName,
				Tracker:        a.CostTracker,
				Pricing:        cfg.PricingFor("gemini"),
			})
			if err != nil {
				log.Warnf("Failed to initialize Gemini embedding provider: %v", err)
				continue
			}
			a.closers = append(a.closers, p.Close)
			providers = append(providers, p)
		default:
			return fmt.Errorf("unknown embedding provider %q", name)
		}
	}
	if len(providers) == 0 {
		return fmt.Errorf("no embedding providers configured")
	}

	svc, err := services.NewFallbackEmbeddingService(providers, a.retryStrategy())
	if err != nil {
		return err
	}

	if cfg.Embedding.Cache && cfg.Database.Vector.DSN != "" {
		cache, err := vector.NewStore(ctx, cfg.Database.Vector.DSN)
		if err == nil {
			err = cache.Migrate(ctx)
			if err != nil {
				cache.Close()
			}
		}
		if err != nil {
			log.Warnf("Embedding cache unavailable, continuing without it: %v", err)
		} else {
			svc.Cache = cache
			a.closers = append(a.closers, cache.Close)
		}
	}
	a.EmbeddingService = svc
	return nil
}

func (a *App) initCompletionService(ctx context.Context) error {
	cfg := a.Config
	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		var client services.ChatCompletionCreator
		if cfg.Embedding.OpenaiApiKey != "" {
			client = openai.NewClient(cfg.Embedding.OpenaiApiKey)
		} else {
			log.Warn("OpenAI API key not provided. Candidate generation and critique will fail.")
		}
		chat := services.NewOpenAIChat(client, cfg.LLM.Model, cfg.LLM.GenerationTemperature, a.CostTracker, cfg.PricingFor("openai")).
			WithRetry(a.retryStrategy())
		a.Completion = chat
		a.CriticCompletion = chat.WithTemperature(cfg.LLM.CriticTemperature)
	case "gemini":
		gen, err := a.geminiChat(ctx, cfg.LLM.GenerationTemperature)
		if err != nil {
			return err
		}
		crit, err := a.geminiChat(ctx, cfg.LLM.CriticTemperature)
		if err != nil {
			return err
		}
		a.Completion, a.CriticCompletion = gen, crit
	default:
		return fmt.Errorf("unsupported LLM provider %q", cfg.LLM.Provider)
	}
	return nil
}

func (a *App) geminiChat(ctx context.Context, temperature float32) (*services.GeminiProvider, error) {
	p, err := services.NewGeminiProvider(ctx, services.GeminiOptions{
		APIKey:          a.Config.Embedding.GoogleApiKey,
		CompletionModel: a.Config.LLM.Model,
		Temperature:     &temperature,
		Retry:           a.retryStrategy(),
		Tracker:         a.CostTracker,
		Pricing:         a.Config.PricingFor("gemini"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini completion provider: %w", err)
	}
	a.closers = append(a.closers, p.Close)
	return p, nil
}

// retryStrategy is shared by every remote call: embeddings, chat and GitHub.
func (a *App) retryStrategy() *services.SimpleRetryStrategy {
	return &services.SimpleRetryStrategy{
		MaxAttempts: a.Config.Embedding.RetryAttempts,
		BaseDelayMs: a.Config.Embedding.RetryBaseDelayMs,
	}
}

func (a *App) initPipeline(context.Context) error {
	cfg := a.Config
	prompts := cfg.LLM.Prompts

	candidatePrompt, err := config.LoadPromptContent(prompts.Candidate, config.CandidatePromptFile)
	if err != nil {
		return err
	}
	evaluatePrompt, err := config.LoadPromptContent(prompts.Evaluate, config.EvaluatePromptFile)
	if err != nil {
		return err
	}
	revisePrompt, err := config.LoadPromptContent(prompts.Revise, config.RevisePromptFile)
	if err != nil {
		return err
	}

	a.Collector = collector.NewGitHubClient(cfg.GitHub.BaseURL, cfg.GitHub.Token, cfg.GitHub.Timeout).
		WithRetry(a.retryStrategy())
	a.Critic = critic.NewCritic(
		services.NewLLMEvaluator(a.CriticCompletion, evaluatePrompt),
		services.NewLLMReviser(a.CriticCompletion, revisePrompt),
		cfg.Critic,
	)
	a.Orchestrator, err = pipeline.NewOrchestrator(
		a.Collector,
		services.NewLLMGenerator(a.Completion, candidatePrompt),
		a.EmbeddingService,
		a.Critic,
		cfg.Pipeline,
	)
	return err
}

// Close releases every resource opened during initialization, newest first.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Warnf("Error during shutdown: %v", err)
		}
	}
	a.closers = nil
}
