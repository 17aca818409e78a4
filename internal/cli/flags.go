package cli

import (
	"fmt"

	"github.com/fpang/photo-curator/internal/config"
	"github.com/spf13/cobra"
)

// CommonFlags are the flags shared by every pipeline command. Only flags the
// user actually set override the config file and environment.
type CommonFlags struct {
	ConfigPath   string
	Endpoint     string
	Model        string
	APIKey       string
	Timeout      int
	MaxRetries   int
	Workers      int
	LogLevel     string
	ReportPath   string
	SkipProbe    bool
	WithMetadata bool
	JSONMode     bool
}

// Bind registers the flags on cmd.
func (f *CommonFlags) Bind(cmd *cobra.Command) {
	def := config.Default()
	fs := cmd.Flags()
	fs.StringVarP(&f.ConfigPath, "config", "c", "", "YAML config file")
	fs.StringVar(&f.Endpoint, "endpoint", def.EndpointURL, "OpenAI-compatible chat completions URL")
	fs.StringVarP(&f.Model, "model", "m", def.Model, "Model name sent with each request")
	fs.StringVar(&f.APIKey, "api-key", "", "Bearer token for the endpoint (prefer CURATOR_API_KEY)")
	fs.IntVar(&f.Timeout, "timeout", def.TimeoutSeconds, "Per-request timeout in seconds")
	fs.IntVar(&f.MaxRetries, "max-retries", def.MaxRetries, "Retries per image after a transient failure")
	fs.IntVarP(&f.Workers, "workers", "w", def.WorkerCount, "Number of concurrent workers")
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level: debug, info, warn, error (default from CURATOR_LOG_LEVEL or info)")
	fs.StringVar(&f.ReportPath, "report", "", "Write per-image results to this JSON file (.zst to compress)")
	fs.BoolVar(&f.SkipProbe, "skip-probe", false, "Do not check the endpoint before starting")
	fs.BoolVar(&f.WithMetadata, "with-metadata", false, "Add EXIF date, location and camera to the prompt")
	fs.BoolVar(&f.JSONMode, "json-mode", false, "Ask the endpoint for a JSON object where structured output is expected")
}

// Resolve layers defaults, the config file, the environment and the flags
// the user set, in that order, and validates the result.
func (f *CommonFlags) Resolve(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return cfg, err
	}
	if cfg, err = cfg.ApplyEnv(); err != nil {
		return cfg, err
	}

	changed := cmd.Flags().Changed
	if changed("endpoint") {
		cfg.EndpointURL = f.Endpoint
	}
	if changed("model") {
		cfg.Model = f.Model
	}
	if changed("api-key") {
		cfg.APIKey = f.APIKey
	}
	if changed("timeout") {
		cfg.TimeoutSeconds = f.Timeout
	}
	if changed("max-retries") {
		cfg.MaxRetries = f.MaxRetries
	}
	if changed("workers") {
		cfg.WorkerCount = f.Workers
	}
	if changed("with-metadata") {
		cfg.IncludeMetadata = f.WithMetadata
	}
	if changed("json-mode") {
		cfg.JSONMode = f.JSONMode
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
