package config

import (
	"strings"
	"time"

	"github.com/faultlens/faultlens/internal/ailink"
)

// Config represents the complete application configuration.
//
// Values are layered: built-in defaults, the user config file, environment
// variables and finally runtime overrides.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	AILink   ailink.Config  `mapstructure:"ailink"`
	Analysis AnalysisConfig `mapstructure:"analysis"`
	Runner   RunnerConfig   `mapstructure:"runner"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Health   HealthConfig   `mapstructure:"health"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// StoreConfig contains database configuration for libsql/Turso
type StoreConfig struct {
	Driver    string `mapstructure:"driver"`
	Path      string `mapstructure:"path"`
	URL       string `mapstructure:"url"`
	AuthToken string `mapstructure:"auth_token"`
}

// AnalysisConfig controls the analyzer and the usage limiter.
//
// Provider credentials and routing live under `ailink.*`.
type AnalysisConfig struct {
	UsageLimit       int           `mapstructure:"usage_limit"`
	UsageWindow      time.Duration `mapstructure:"usage_window"`
	ExplanationWords int           `mapstructure:"explanation_words"`

	LogHeadLines        int `mapstructure:"log_head_lines"`
	LogSnippetChars     int `mapstructure:"log_snippet_chars"`
	MaxSubsequentErrors int `mapstructure:"max_subsequent_errors"`
	SourcePreviewChars  int `mapstructure:"source_preview_chars"`

	PromptSlug     string        `mapstructure:"prompt_slug"`
	Role           string        `mapstructure:"role"`
	Model          string        `mapstructure:"model"`
	ServiceTimeout time.Duration `mapstructure:"service_timeout"`
}

// RunnerConfig controls execution of target files. Commands are keyed by
// extension without the leading dot ("py", "js").
type RunnerConfig struct {
	Enabled        bool                `mapstructure:"enabled"`
	Timeout        time.Duration       `mapstructure:"timeout"`
	MaxOutputBytes int                 `mapstructure:"max_output_bytes"`
	Commands       map[string][]string `mapstructure:"commands"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// CommandTable returns Commands keyed by ".ext", or nil when none are set.
func (r RunnerConfig) CommandTable() map[string][]string {
	if len(r.Commands) == 0 {
		return nil
	}
	table := make(map[string][]string, len(r.Commands))
	for ext, command := range r.Commands {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || len(command) == 0 {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		table[ext] = command
	}
	return table
}
