package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"tagforge/internal/app"
	"tagforge/internal/config"
	"tagforge/internal/logging"
)

// skipAppAnnotation marks commands that only need configuration.
const skipAppAnnotation = "tagforge/skip-app"

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "tagforge",
	Short: "Refine tags for GitHub repositories",
	Long: `tagforge collects a repository's README, languages and topics, asks an LLM
for candidate tags, ranks them by embedding similarity to the README,
removes near-duplicates, applies lexical rules and lets a rubric critic
revise the rest.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
	// PersistentPreRunE runs before any subcommand's RunE
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" {
			return nil
		}

		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if err := logging.Setup(cfg.Log.Level, cfg.Log.Format); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		ctx := context.WithValue(cmd.Context(), configKey, cfg)
		if cmd.Annotations[skipAppAnnotation] != "true" {
			appInstance, err := app.NewApp(ctx, cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize app: %w", err)
			}
			ctx = context.WithValue(ctx, appKey, appInstance)
		}
		cmd.SetContext(ctx)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appInstance, err := GetAppFromContext(cmd.Context()); err == nil {
			appInstance.Close()
		}
	},
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		os.Exit(1)
	}
}

// Define a custom type for the context key to avoid collisions.
type contextKey string

const (
	appKey    contextKey = "app"
	configKey contextKey = "config"
)

// GetAppFromContext retrieves the app instance stored by PersistentPreRunE.
func GetAppFromContext(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		return nil, fmt.Errorf("application instance not found in context")
	}
	return appInstance, nil
}

// GetConfigFromContext retrieves the loaded configuration.
func GetConfigFromContext(ctx context.Context) (*config.Config, error) {
	cfg, ok := ctx.Value(configKey).(*config.Config)
	if !ok || cfg == nil {
		return nil, fmt.Errorf("configuration not found in context")
	}
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check database connectivity and provider configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		appInstance, err := GetAppFromContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to get app instance: %w", err)
		}

		ok := color.GreenString("ok")
		fmt.Println("Checking report store connectivity...")
		if err := appInstance.Store.Ping(ctx); err != nil {
			return fmt.Errorf("database ping failed: %w", err)
		}
		fmt.Printf("  report store (%s): %s\n", appInstance.Config.Database.Reports.Driver, ok)

		emb := appInstance.EmbeddingService
		fmt.Printf("  embeddings: %s/%s (dimension %d): %s\n", emb.Name(), emb.ModelName(), emb.Dimension(), statusString(emb.Status().String()))
		if emb.Cache != nil {
			fmt.Printf("  embedding cache: %s\n", ok)
		}
		llm := appInstance.Completion
		fmt.Printf("  completions: %s/%s: %s\n", llm.Name(), llm.ModelName(), statusString(llm.Status().String()))

		if appInstance.Config.GitHub.Token == "" {
			fmt.Printf("  github: %s\n", color.YellowString("no token, unauthenticated rate limits apply"))
		} else {
			fmt.Printf("  github: %s\n", ok)
		}
		return nil
	},
}

func statusString(s string) string {
	switch s {
	case "active":
		return color.GreenString(s)
	case "disabled":
		return color.RedString(s)
	default:
		return color.YellowString(s)
	}
}
