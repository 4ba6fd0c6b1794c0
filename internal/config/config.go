// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidCredentialMode is returned when RELAY_CREDENTIAL_MODE is neither server nor client.
	ErrInvalidCredentialMode = errors.New("config: RELAY_CREDENTIAL_MODE must be \"server\" or \"client\"")
	// ErrInvalidPollInterval is returned when POLL_INTERVAL is not positive.
	ErrInvalidPollInterval = errors.New("config: POLL_INTERVAL must be positive")
	// ErrInvalidEditConcurrency is returned when EDIT_CONCURRENCY is below one.
	ErrInvalidEditConcurrency = errors.New("config: EDIT_CONCURRENCY must be at least 1")
	// ErrRelayURLRequired is returned when RELAY_URL is empty.
	ErrRelayURLRequired = errors.New("config: RELAY_URL is required")
)

// Credential modes accepted in RELAY_CREDENTIAL_MODE.
const (
	ModeServer = "server"
	ModeClient = "client"
)

// Logging holds settings shared by every binary.
type Logging struct {
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// Config holds all configuration for the relay server.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`
	RateLimitRPS   float64  `env:"RATE_LIMIT_RPS, default=0" json:"rate_limit_rps"`
	RateLimitBurst int      `env:"RATE_LIMIT_BURST, default=10" json:"rate_limit_burst"`

	// Only enable behind a proxy that overwrites X-Forwarded-For.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS, default=false" json:"trust_proxy_headers"`

	// Credential settings
	CredentialMode string `env:"RELAY_CREDENTIAL_MODE, default=server" json:"credential_mode"`
	GeminiAPIKey   string `env:"GEMINI_API_KEY" json:"-"` // Masked in JSON

	// Remote service settings
	GeminiBaseURL string `env:"GEMINI_BASE_URL" json:"gemini_base_url,omitempty"`
	ProbeModel    string `env:"PROBE_MODEL, default=gemini-2.5-flash" json:"probe_model"`

	Logging
}

// Load reads relay configuration from environment variables using go-envconfig.
// A missing GEMINI_API_KEY is not an error here: the relay starts and reports
// itself unconfigured on every request.
func Load() (*Config, error) {
	return LoadWith(context.Background(), envconfig.OsLookuper())
}

// LoadWith reads relay configuration from the given lookuper.
func LoadWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	return validateMode(c.CredentialMode)
}

// ServerKeyConfigured reports whether a server-held credential is available.
func (c *Config) ServerKeyConfigured() bool {
	return c.CredentialMode == ModeServer && c.GeminiAPIKey != ""
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, CredentialMode: %s, GeminiAPIKey: %s, GeminiBaseURL: %s, ProbeModel: %s, AllowedOrigins: %v, RateLimitRPS: %g, RateLimitBurst: %d, TrustProxyHeaders: %t, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.CredentialMode,
		mask(c.GeminiAPIKey),
		c.GeminiBaseURL,
		c.ProbeModel,
		c.AllowedOrigins,
		c.RateLimitRPS,
		c.RateLimitBurst,
		c.TrustProxyHeaders,
		c.LogFormat,
		c.LogLevel,
	)
}

// StudioConfig holds all configuration for the studio client.
type StudioConfig struct {
	RelayURL       string        `env:"RELAY_URL, default=http://localhost:8080/api/relay" json:"relay_url"`
	CredentialMode string        `env:"RELAY_CREDENTIAL_MODE, default=server" json:"credential_mode"`
	CredentialFile string        `env:"STUDIO_CREDENTIAL_FILE" json:"credential_file,omitempty"`
	PollInterval   time.Duration `env:"POLL_INTERVAL, default=10s" json:"poll_interval"`

	// Output settings
	OutputDir       string `env:"OUTPUT_DIR, default=." json:"output_dir"`
	EditConcurrency int    `env:"EDIT_CONCURRENCY, default=2" json:"edit_concurrency"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	Logging
}

// LoadStudio reads studio configuration from environment variables.
func LoadStudio() (*StudioConfig, error) {
	return LoadStudioWith(context.Background(), envconfig.OsLookuper())
}

// LoadStudioWith reads studio configuration from the given lookuper.
func LoadStudioWith(ctx context.Context, lookuper envconfig.Lookuper) (*StudioConfig, error) {
	cfg := &StudioConfig{}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the studio configuration is usable.
func (c *StudioConfig) Validate() error {
	if err := validateMode(c.CredentialMode); err != nil {
		return err
	}
	if strings.TrimSpace(c.RelayURL) == "" {
		return ErrRelayURLRequired
	}
	if c.PollInterval <= 0 {
		return ErrInvalidPollInterval
	}
	if c.EditConcurrency < 1 {
		return ErrInvalidEditConcurrency
	}
	return nil
}

// S3Enabled returns true if S3 configuration is provided.
func (c *StudioConfig) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// String returns a string representation of the config with sensitive values masked.
func (c *StudioConfig) String() string {
	return fmt.Sprintf(
		"StudioConfig{RelayURL: %s, CredentialMode: %s, CredentialFile: %s, PollInterval: %s, OutputDir: %s, EditConcurrency: %d, S3Bucket: %s, S3Region: %s, S3Endpoint: %s, LogFormat: %s, LogLevel: %s}",
		c.RelayURL,
		c.CredentialMode,
		c.CredentialFile,
		c.PollInterval,
		c.OutputDir,
		c.EditConcurrency,
		c.S3Bucket,
		c.S3Region,
		c.S3Endpoint,
		c.LogFormat,
		c.LogLevel,
	)
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (l Logging) NewLogger() *slog.Logger {
	return l.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger with an explicit destination.
func (l Logging) NewLoggerTo(w io.Writer) *slog.Logger {
	level := parseLogLevel(l.LogLevel)

	var handler slog.Handler
	if strings.ToLower(l.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

func validateMode(mode string) error {
	switch mode {
	case ModeServer, ModeClient:
		return nil
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidCredentialMode, mode)
	}
}

// mask hides all but the last four characters of a secret.
func mask(secret string) string {
	if secret == "" {
		return "<unset>"
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
