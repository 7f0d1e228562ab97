// mc-translator — batch AI translation of Minecraft mod language assets
// into a ready-to-use resource pack.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/chrysoljq/mc-translator/config"
	"github.com/chrysoljq/mc-translator/logging"
	"github.com/chrysoljq/mc-translator/openai"
	"github.com/chrysoljq/mc-translator/pipeline"
)

// Version information (set via -ldflags during build)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "mc-translator",
		Short: "AI translation of Minecraft mod language files",
		Long: `mc-translator — batch AI translation of Minecraft mod language assets.

Scans JARs, loose lang files (en_us.json, en_us.lang), and SNBT quest
files, translates them through an OpenAI-compatible API in concurrent
batches, and assembles the results into a resource pack.

Commands:
  translate   Translate an input file or directory (full or incremental)
  models      List models available at the configured endpoint
  init        Write a default configuration file
  version     Show version information`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "mc-translator.yaml", "Configuration file path")

	root.AddCommand(
		newTranslateCmd(),
		newModelsCmd(),
		newInitCmd(),
		newVersionCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// ---------------------------------------------------------------------------
// translate
// ---------------------------------------------------------------------------

func newTranslateCmd() *cobra.Command {
	var (
		update    bool
		output    string
		apiKey    string
		model     string
		baseURL   string
		batchSize int
		logLevel  string
	)

	cmd := &cobra.Command{
		Use:   "translate <input>",
		Short: "Translate a file or directory of mod language assets",
		Long: `Translate a file or directory of mod language assets.

Full mode translates everything (optionally skipping artifacts whose
output already exists). With --update, each artifact is diffed against
its existing output and any translation bundled with the source; only
genuinely new entries consume API calls.

Examples:
  # Full translation of a mods directory
  mc-translator translate ./mods

  # Incremental update after a modpack upgrade
  mc-translator translate ./mods --update`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if apiKey != "" {
				cfg.APIKey = apiKey
			}
			if model != "" {
				cfg.Model = model
			}
			if baseURL != "" {
				cfg.BaseURL = baseURL
			}
			if output != "" {
				cfg.OutputPath = output
			}
			if batchSize > 0 {
				cfg.BatchSize = batchSize
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			if cfg.APIKey == "" {
				cfg.APIKey = os.Getenv("MC_TRANSLATOR_API_KEY")
			}
			return runTranslate(cfg, args[0], update)
		},
	}

	cmd.Flags().BoolVar(&update, "update", false, "Incremental mode: only translate entries missing from existing output")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output directory (overrides config)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "API key (or MC_TRANSLATOR_API_KEY env var)")
	cmd.Flags().StringVar(&model, "model", "", "Model name (overrides config)")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "API base URL (overrides config)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Strings per API request (overrides config)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")

	return cmd
}

func runTranslate(cfg config.Config, input string, update bool) error {
	log := logging.New(logging.Options{Level: cfg.LogLevel})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Warn().Msg("interrupted, finishing in-flight batches")
		cancel()
	}()

	client := openai.New(cfg, logging.Named(log, "openai"))

	// Cheap credential/connectivity check before any work is dispatched.
	log.Info().Str("base_url", cfg.BaseURL).Msg("validating API connection")
	if _, err := client.FetchModels(ctx); err != nil {
		return fmt.Errorf("API connection check failed: %w", err)
	}
	log.Info().Msg("API connection verified")

	p := pipeline.New(cfg, client, update, log)
	summary, err := p.Run(ctx, input)
	if err != nil {
		return err
	}

	ev := log.Info().
		Int("persisted", summary.Persisted).
		Int("skipped", summary.Skipped).
		Int("unchanged", summary.NoOp).
		Int("errors", summary.Errors).
		Int("dropped_batches", summary.DroppedBatches)
	switch {
	case summary.Cancelled:
		ev.Msg("run cancelled")
		return errors.New("cancelled")
	case summary.Errors > 0 || summary.DroppedBatches > 0:
		ev.Msg("run completed with failures; re-run to retry dropped entries")
	default:
		ev.Msg("run completed")
	}
	return nil
}

// ---------------------------------------------------------------------------
// models
// ---------------------------------------------------------------------------

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List models available at the configured endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if cfg.APIKey == "" {
				cfg.APIKey = os.Getenv("MC_TRANSLATOR_API_KEY")
			}

			client := openai.New(cfg, logging.New(logging.Options{Level: cfg.LogLevel}))
			models, err := client.FetchModels(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range models {
				fmt.Println(m)
			}
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// init
// ---------------------------------------------------------------------------

func newInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", configPath)
			}
			if err := config.Save(configPath, config.Default()); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", configPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing configuration file")
	return cmd
}

// ---------------------------------------------------------------------------
// version
// ---------------------------------------------------------------------------

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mc-translator version %s\n", version)
			fmt.Printf("  commit:    %s\n", commit)
			fmt.Printf("  built:     %s\n", date)
		},
	}
}
