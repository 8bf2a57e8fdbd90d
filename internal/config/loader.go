package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidLLMProviderNames lists the provider names the built-in registry knows.
// Used by [Validate] to warn about unrecognised names.
var ValidLLMProviderNames = []string{
	"openai", "anthropic", "gemini", "ollama", "deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies defaults, and
// validates the result. Useful in tests where configs are constructed from
// string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with the documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8080"
	}
	if cfg.Redis.QueueKey == "" {
		cfg.Redis.QueueKey = "koushi:score:jobs"
	}
	if cfg.Redis.Workers == 0 {
		cfg.Redis.Workers = 4
	}
	if cfg.ASR.ConnectRetries == 0 {
		cfg.ASR.ConnectRetries = 3
	}
	if cfg.ASR.RetryInterval == 0 {
		cfg.ASR.RetryInterval = Duration(2 * time.Second)
	}
	if cfg.Media.Root == "" {
		cfg.Media.Root = "media"
	}
	if cfg.Media.FFmpegPath == "" {
		cfg.Media.FFmpegPath = "ffmpeg"
	}
	if cfg.Media.MuxTimeout == 0 {
		cfg.Media.MuxTimeout = Duration(2 * time.Minute)
	}
	if cfg.Interview.PlannerDeadline == 0 {
		cfg.Interview.PlannerDeadline = Duration(5 * time.Second)
	}
	if cfg.Interview.Silence.Policy == "" {
		cfg.Interview.Silence.Policy = SilenceManual
	}
	if cfg.Interview.Silence.Timeout == 0 {
		cfg.Interview.Silence.Timeout = Duration(60 * time.Second)
	}
	if cfg.Interview.CodingProblems == 0 {
		cfg.Interview.CodingProblems = 3
	}
	if cfg.Proctor.MinConfidence == 0 {
		cfg.Proctor.MinConfidence = 0.5
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	if cfg.Postgres.DSN == "" {
		errs = append(errs, errors.New("postgres.dsn is required"))
	}

	if !cfg.Interview.Silence.Policy.IsValid() {
		errs = append(errs, fmt.Errorf("interview.silence.policy %q is invalid; valid values: manual, auto", cfg.Interview.Silence.Policy))
	}
	if cfg.Interview.Silence.Policy == SilenceAuto && cfg.Interview.Silence.Timeout.Std() < time.Second {
		errs = append(errs, fmt.Errorf("interview.silence.timeout %s is too short for the auto policy", cfg.Interview.Silence.Timeout.Std()))
	}
	if cfg.Interview.CodingProblems < 0 {
		errs = append(errs, fmt.Errorf("interview.coding_problems must not be negative, got %d", cfg.Interview.CodingProblems))
	}

	if cfg.Redis.Workers < 1 {
		errs = append(errs, fmt.Errorf("redis.workers must be at least 1, got %d", cfg.Redis.Workers))
	}

	validateLLMEntry(&errs, "llm.primary", cfg.LLM.Primary)
	validateLLMEntry(&errs, "llm.fallback", cfg.LLM.Fallback)

	// Soft warnings: the server runs with these unset, in reduced form.
	if cfg.LLM.Primary.Name == "" {
		slog.Warn("llm.primary is not configured; question planning, scoring and report comments will use deterministic fallbacks")
	}
	if cfg.ASR.AppID == "" {
		slog.Warn("asr.app_id is empty; sessions will run without live transcription")
	}
	if cfg.Proctor.Enabled && cfg.Proctor.DetectorURL == "" {
		slog.Warn("proctor.enabled is set but proctor.detector_url is empty; proctoring will be disabled")
	}
	if len(cfg.Auth.Tokens) == 0 {
		slog.Warn("auth.tokens is empty; the HTTP surface accepts unauthenticated requests")
	}

	return errors.Join(errs...)
}

// validateLLMEntry appends an error when a non-empty entry lacks a model or
// warns when the provider name is unknown.
func validateLLMEntry(errs *[]error, prefix string, entry ProviderEntry) {
	if entry.Name == "" {
		return
	}
	if entry.Model == "" {
		*errs = append(*errs, fmt.Errorf("%s.model is required when %s.name is set", prefix, prefix))
	}
	if !slices.Contains(ValidLLMProviderNames, entry.Name) {
		slog.Warn("unknown LLM provider name — may be a typo or third-party provider",
			"entry", prefix,
			"name", entry.Name,
			"known", ValidLLMProviderNames,
		)
	}
}
