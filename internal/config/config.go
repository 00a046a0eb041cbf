package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"tagforge/internal/critic"
	"tagforge/internal/pipeline"
)

// PricingInfo holds cost details per token for a specific model.
type PricingInfo struct {
	InputPerToken  float64 `mapstructure:"input_per_token"`
	OutputPerToken float64 `mapstructure:"output_per_token"`
}

type Config struct {
	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // "text" or "json"
	} `mapstructure:"log"`

	Embedding struct {
		Providers        []string `mapstructure:"providers"` // tried in order: "openai", "gemini"
		Model            string   `mapstructure:"model"`
		OpenaiApiKey     string   `mapstructure:"openai_api_key"`
		GoogleApiKey     string   `mapstructure:"google_api_key"`
		GeminiModelName  string   `mapstructure:"gemini_model_name"`
		RetryAttempts    int      `mapstructure:"retry_attempts"`
		RetryBaseDelayMs int64    `mapstructure:"retry_base_delay_ms"`
		Cache            bool     `mapstructure:"cache"`
	} `mapstructure:"embedding"`

	LLM struct {
		Provider              string  `mapstructure:"provider"` // "openai" or "gemini"
		Model                 string  `mapstructure:"model"`
		GenerationTemperature float32 `mapstructure:"generation_temperature"`
		CriticTemperature     float32 `mapstructure:"critic_temperature"`
		Prompts               struct {
			Candidate string `mapstructure:"candidate"`
			Evaluate  string `mapstructure:"evaluate"`
			Revise    string `mapstructure:"revise"`
		} `mapstructure:"prompts"`
	} `mapstructure:"llm"`

	Pipeline pipeline.Config `mapstructure:"pipeline"`
	Critic   critic.Config   `mapstructure:"critic"`

	GitHub struct {
		Token   string        `mapstructure:"token"`
		BaseURL string        `mapstructure:"base_url"`
		Timeout time.Duration `mapstructure:"timeout"`
	} `mapstructure:"github"`

	Database struct {
		Reports struct {
			Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
			DSN    string `mapstructure:"dsn"`
		} `mapstructure:"reports"`
		Vector struct {
			DSN string `mapstructure:"dsn"` // Postgres with pgvector, used for the embedding cache
		} `mapstructure:"vector"`
	} `mapstructure:"database"`

	Redis struct {
		Address  string `mapstructure:"address"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Worker struct {
		Concurrency int            `mapstructure:"concurrency"`
		Queues      map[string]int `mapstructure:"queues"`
	} `mapstructure:"worker"`

	Server struct {
		Address string `mapstructure:"address"`
	} `mapstructure:"server"`

	// Pricing: map[provider][model] = struct{input_per_token, output_per_token}
	Pricing map[string]map[string]PricingInfo `mapstructure:"pricing"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("embedding.providers", []string{"openai"})
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.gemini_model_name", "models/text-embedding-004")
	v.SetDefault("embedding.retry_attempts", 3)
	v.SetDefault("embedding.retry_base_delay_ms", 200)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.generation_temperature", 0.7)
	v.SetDefault("llm.critic_temperature", 0.4)

	v.SetDefault("pipeline.chunk_size", 1000)
	v.SetDefault("pipeline.chunk_overlap", 200)
	v.SetDefault("pipeline.dedup_threshold", 0.95)
	v.SetDefault("pipeline.min_similarity", 0.5)
	v.SetDefault("pipeline.order", pipeline.OrderCriticFirst)
	v.SetDefault("pipeline.max_final_tags", 10)
	v.SetDefault("pipeline.context_chars", 2000)
	v.SetDefault("pipeline.rules.min_length", 3)
	v.SetDefault("pipeline.rules.max_length", 30)
	v.SetDefault("pipeline.rules.max_tags", 20)

	v.SetDefault("critic.threshold", critic.DefaultThreshold)
	v.SetDefault("critic.max_iterations", critic.DefaultMaxIterations)
	v.SetDefault("critic.max_final_tags", critic.DefaultMaxFinalTags)

	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.timeout", 30*time.Second)

	v.SetDefault("database.reports.driver", "sqlite")
	v.SetDefault("database.reports.dsn", "tagforge.db")

	v.SetDefault("redis.address", "127.0.0.1:6379")
	v.SetDefault("worker.concurrency", 4)
	v.SetDefault("worker.queues", map[string]int{"analyses": 1})
	v.SetDefault("server.address", ":8080")
}

// LoadConfig reads config.yaml (from path, or the working directory when path
// is empty), a .env file if present, and the environment.
func LoadConfig(path string) (*Config, error) {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("TAGFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Well-known provider variables work without the prefix.
	_ = v.BindEnv("embedding.openai_api_key", "TAGFORGE_EMBEDDING_OPENAI_API_KEY", "OPENAI_API_KEY")
	_ = v.BindEnv("embedding.google_api_key", "TAGFORGE_EMBEDDING_GOOGLE_API_KEY", "GOOGLE_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("github.token", "TAGFORGE_GITHUB_TOKEN", "GITHUB_TOKEN")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error decoding config: %w", err)
	}
	return &config, nil
}

// PricingFor flattens the pricing table for one provider.
func (c *Config) PricingFor(provider string) map[string]PricingInfo {
	if p, ok := c.Pricing[provider]; ok {
		return p
	}
	return map[string]PricingInfo{}
}
