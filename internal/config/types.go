// Package config provides configuration loading for blueprintd.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Duration wraps time.Duration for text-based config parsing.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	if parsed < 0 {
		return fmt.Errorf("duration cannot be negative: %s", text)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Duration().String())
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Secret wraps strings that should be redacted in logs and serialization.
type Secret string

// String implements fmt.Stringer, always returning a redacted value.
func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}

// MarshalJSON implements json.Marshaler, never serializing the raw value.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Value returns the raw secret value.
func (s Secret) Value() string {
	return string(s)
}

// Config is the root blueprintd configuration.
type Config struct {
	GenAI     GenAIConfig     `koanf:"genai"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Logging   LoggingConfig   `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

// TelemetryConfig mirrors the telemetry package's settings. It lives here so
// the whole file parses in one pass; the CLI converts it when initializing
// providers.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"`
	ServiceName    string   `koanf:"service_name"`
	ServiceVersion string   `koanf:"service_version"`
	Insecure       bool     `koanf:"insecure"`
	SampleRate     float64  `koanf:"sample_rate"`
	MetricInterval Duration `koanf:"metric_interval"`
	ShutdownGrace  Duration `koanf:"shutdown_grace"`
}

// GenAIConfig configures the generative backend client.
type GenAIConfig struct {
	// Endpoint is the full generateContent URL of the backend.
	Endpoint string `koanf:"endpoint"`

	// APIKey is sent via the x-goog-api-key header.
	APIKey Secret `koanf:"api_key"`

	// Model name recorded in the token ledger.
	Model string `koanf:"model"`

	// Timeout applies per HTTP call.
	Timeout Duration `koanf:"timeout"`

	// MaxAttempts caps retries for transient failures within one call.
	MaxAttempts int `koanf:"max_attempts"`

	// RequestsPerMinute paces outbound calls. 0 disables pacing.
	RequestsPerMinute int `koanf:"requests_per_minute"`
}

// PipelineConfig configures the generation pipeline.
type PipelineConfig struct {
	// MaxAttempts caps quality-gated generation attempts per stage.
	MaxAttempts int `koanf:"max_attempts"`

	// Deadline bounds a whole pipeline run. 0 means no overall deadline.
	Deadline Duration `koanf:"deadline"`

	// Concurrent runs the diagram branch and the backlog stage in parallel.
	Concurrent bool `koanf:"concurrent"`
}

// LoggingConfig configures the logger. Parsed into logging.Config by the CLI.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.GenAI.Endpoint == "" {
		return fmt.Errorf("genai.endpoint is required")
	}
	if c.GenAI.APIKey == "" {
		return fmt.Errorf("genai.api_key is required")
	}
	if c.GenAI.Timeout.Duration() <= 0 {
		return fmt.Errorf("genai.timeout must be > 0")
	}
	if c.GenAI.MaxAttempts < 1 {
		return fmt.Errorf("genai.max_attempts must be >= 1")
	}
	if c.GenAI.RequestsPerMinute < 0 {
		return fmt.Errorf("genai.requests_per_minute cannot be negative")
	}
	if c.Pipeline.MaxAttempts < 1 {
		return fmt.Errorf("pipeline.max_attempts must be >= 1")
	}
	return nil
}
