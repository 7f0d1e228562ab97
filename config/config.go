// Package config — mc-translator.yaml configuration file support.
//
// The config file carries API credentials, language tags, and the
// concurrency/retry knobs shared by every run. Missing fields fall back
// to defaults; an absent file yields the full default configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPrompt is the system prompt sent with every translation batch.
// {MOD_ID} is replaced with the artifact's mod identifier. The contract it
// states — same order, same length, plain JSON array — is what the batch
// scheduler validates on the way back.
const DefaultPrompt = `You are a Minecraft mod localization expert. Current mod ID: {MOD_ID}.
You will receive a JSON array of English source strings.
Translate every element to Simplified Chinese and return a JSON array of strings.
Rules:
1. Keep the output order identical to the input order.
2. The output array length must exactly match the input length.
3. Preserve formatting codes verbatim (such as ` + "§" + `a, %s, {0}, \n).
4. Return only the raw JSON array, with no Markdown code fences.`

// Config holds every tunable of a translation run.
type Config struct {
	// APIKey authenticates against the OpenAI-compatible endpoint.
	APIKey string `yaml:"api_key"`
	// BaseURL is the API root, e.g. https://api.openai.com/v1.
	BaseURL string `yaml:"base_url"`
	// Model is the chat model identifier.
	Model string `yaml:"model"`
	// Prompt is the system prompt template ({MOD_ID} placeholder).
	Prompt string `yaml:"prompt"`

	// SourceLang and TargetLang are the language tags used for file name
	// derivation (en_us -> zh_cn).
	SourceLang string `yaml:"source_lang"`
	TargetLang string `yaml:"target_lang"`

	// OutputPath is the resource pack output root.
	OutputPath string `yaml:"output_path"`

	// BatchSize is how many strings go into one API call (0 = default 20).
	BatchSize int `yaml:"batch_size"`
	// SkipExisting skips artifacts whose output file already exists (full mode).
	SkipExisting bool `yaml:"skip_existing"`
	// SkipQuests excludes SNBT quest files from processing.
	SkipQuests bool `yaml:"skip_quests"`

	// MaxRetries bounds retry attempts for transient API failures.
	MaxRetries int `yaml:"max_retries"`
	// RetryDelaySeconds is the base backoff delay.
	RetryDelaySeconds int `yaml:"retry_delay"`
	// TimeoutSeconds is the per-request HTTP timeout.
	TimeoutSeconds int `yaml:"timeout"`

	// FileWorkers bounds how many artifacts are processed concurrently.
	FileWorkers int `yaml:"file_workers"`
	// NetworkWorkers bounds in-flight API calls process-wide.
	NetworkWorkers int `yaml:"network_workers"`

	// LogLevel controls log verbosity (trace/debug/info/warn/error).
	LogLevel string `yaml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		BaseURL:           "https://api.openai.com/v1",
		Model:             "gpt-4o-mini",
		Prompt:            DefaultPrompt,
		SourceLang:        "en_us",
		TargetLang:        "zh_cn",
		OutputPath:        "./output_cn",
		BatchSize:         200,
		SkipExisting:      true,
		SkipQuests:        true,
		MaxRetries:        5,
		RetryDelaySeconds: 10,
		TimeoutSeconds:    120,
		FileWorkers:       5,
		NetworkWorkers:    10,
		LogLevel:          "info",
	}
}

// RetryDelay returns the base backoff as a duration.
func (c Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// Timeout returns the HTTP timeout as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Load reads a config file, layering it over defaults. A missing file is
// not an error: the defaults are returned unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	cfg.clamp()
	return cfg, nil
}

// Save writes the configuration to path, creating parent directories.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// clamp repairs out-of-range values instead of rejecting the file.
func (c *Config) clamp() {
	if c.BatchSize < 0 {
		c.BatchSize = 0
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryDelaySeconds < 1 {
		c.RetryDelaySeconds = 1
	}
	if c.TimeoutSeconds < 1 {
		c.TimeoutSeconds = 120
	}
	if c.FileWorkers < 1 {
		c.FileWorkers = 1
	}
	if c.NetworkWorkers < 1 {
		c.NetworkWorkers = 1
	}
	if c.SourceLang == "" {
		c.SourceLang = "en_us"
	}
	if c.TargetLang == "" {
		c.TargetLang = "zh_cn"
	}
	if c.Prompt == "" {
		c.Prompt = DefaultPrompt
	}
}
