// Package config resolves the runtime configuration for the curator commands.
//
// Values are layered: built-in defaults, then an optional YAML file, then
// CURATOR_* environment variables. Command-line flags are applied last by the
// commands themselves.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultEndpointURL is the chat completions endpoint of a local LM Studio server.
const DefaultEndpointURL = "http://localhost:1234/v1/chat/completions"

// DefaultModel is sent as the "model" field; most local servers ignore it.
const DefaultModel = "local-model"

// Config holds every tunable used by the pipelines.
type Config struct {
	EndpointURL        string   `yaml:"endpoint_url"`
	Model              string   `yaml:"model"`
	APIKey             string   `yaml:"api_key"`
	TimeoutSeconds     int      `yaml:"timeout_seconds"`
	MaxRetries         int      `yaml:"max_retries"`
	RetryBackoffMillis int      `yaml:"retry_backoff_ms"`
	WorkerCount        int      `yaml:"worker_count"`
	DryRun             bool     `yaml:"dry_run"`
	Extensions         []string `yaml:"extensions"`
	ProgressIntervalMs int      `yaml:"progress_interval_ms"`
	IncludeMetadata    bool     `yaml:"include_metadata"`
	JSONMode           bool     `yaml:"json_mode"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		EndpointURL:        DefaultEndpointURL,
		Model:              DefaultModel,
		TimeoutSeconds:     60,
		MaxRetries:         2,
		RetryBackoffMillis: 500,
		WorkerCount:        5,
		ProgressIntervalMs: 1000,
	}
}

// Load reads a YAML file on top of the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overlays CURATOR_* environment variables. Unparseable numeric
// values are reported rather than silently ignored.
func (c Config) ApplyEnv() (Config, error) {
	if v := os.Getenv("CURATOR_ENDPOINT_URL"); v != "" {
		c.EndpointURL = v
	}
	if v := os.Getenv("CURATOR_MODEL"); v != "" {
		c.Model = v
	}
	if v := os.Getenv("CURATOR_API_KEY"); v != "" {
		c.APIKey = v
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"CURATOR_TIMEOUT_SECONDS", &c.TimeoutSeconds},
		{"CURATOR_MAX_RETRIES", &c.MaxRetries},
		{"CURATOR_WORKERS", &c.WorkerCount},
	}
	for _, e := range ints {
		v := os.Getenv(e.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return c, fmt.Errorf("invalid %s=%q: %w", e.env, v, err)
		}
		*e.dst = n
	}
	return c, nil
}

// Validate checks the invariants the pipeline relies on.
func (c Config) Validate() error {
	var errs []error

	if c.WorkerCount < 1 {
		errs = append(errs, fmt.Errorf("worker_count must be >= 1, got %d", c.WorkerCount))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must be >= 0, got %d", c.MaxRetries))
	}
	if c.TimeoutSeconds <= 0 {
		errs = append(errs, fmt.Errorf("timeout_seconds must be > 0, got %d", c.TimeoutSeconds))
	}
	if c.RetryBackoffMillis <= 0 {
		errs = append(errs, fmt.Errorf("retry_backoff_ms must be > 0, got %d", c.RetryBackoffMillis))
	}
	if c.ProgressIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("progress_interval_ms must be > 0, got %d", c.ProgressIntervalMs))
	}

	if c.EndpointURL == "" {
		errs = append(errs, errors.New("endpoint_url is required"))
	} else if u, err := url.Parse(c.EndpointURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("endpoint_url must be an absolute http(s) URL, got %q", c.EndpointURL))
	}

	return errors.Join(errs...)
}

// Timeout is the per-attempt HTTP deadline.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// RetryBackoff is the pause between attempts on the same item.
func (c Config) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMillis) * time.Millisecond
}

// ProgressInterval is how often the progress line is redrawn.
func (c Config) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMs) * time.Millisecond
}

// ExtensionsOr returns the configured extensions, or fallback when none are set.
// Entries are lower-cased and given a leading dot.
func (c Config) ExtensionsOr(fallback []string) []string {
	src := c.Extensions
	if len(src) == 0 {
		src = fallback
	}
	out := make([]string, 0, len(src))
	for _, ext := range src {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		out = append(out, ext)
	}
	return out
}
