// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
// A .env file in the working directory is read first when present.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Provider names accepted by PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderMock   = "mock"
)

// Tracing exporters accepted by TRACING_EXPORTER.
const (
	TracingNone   = "none"
	TracingStdout = "stdout"
	TracingOTLP   = "otlp"
)

// minProductionSecretLen is the minimum SECRET_KEY length outside development.
const minProductionSecretLen = 32

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`
	Debug   bool   `env:"DEBUG" envDefault:"false"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL       string `env:"REDIS_URL,required"`
	RedisPoolSize  int    `env:"REDIS_POOL_SIZE" envDefault:"10"`
	RedisKeyPrefix string `env:"REDIS_KEY_PREFIX" envDefault:"studycompanion:"`

	// Usage stream consumer. An empty name is generated per process.
	UsageConsumer  string `env:"USAGE_CONSUMER"`
	UsageBatchSize int    `env:"USAGE_BATCH_SIZE" envDefault:"200"`

	// Sessions
	SecretKey  string        `env:"SECRET_KEY,required"`
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// Chat-completion provider
	Provider         string        `env:"PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com"`
	OpenAIModel      string        `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`
	OpenAITimeout    time.Duration `env:"OPENAI_TIMEOUT" envDefault:"60s"`
	OpenAIMaxRetries int           `env:"OPENAI_MAX_RETRIES" envDefault:"3"`

	// Summarization
	SummaryCacheTTL    time.Duration `env:"SUMMARY_CACHE_TTL" envDefault:"24h"`
	MaxTextLength      int           `env:"MAX_TEXT_LENGTH" envDefault:"100000"`
	SummaryConcurrency int           `env:"SUMMARY_CONCURRENCY" envDefault:"4"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts. Provider calls are slow, so writes get a generous limit.
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting of AI endpoints
	RateLimitEnabled     bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitAIPerMinute int  `env:"RATE_LIMIT_AI_PER_MINUTE" envDefault:"20"`
	RateLimitAIBurst     int  `env:"RATE_LIMIT_AI_BURST" envDefault:"5"`

	// CORS configuration
	// Comma-separated list of allowed origins (e.g., "https://example.com,https://app.example.com")
	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS" envDefault:""`

	// Proxies (IPs or CIDRs) whose X-Forwarded-For / X-Real-IP headers are believed.
	// Empty means the TCP peer address is always the client.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	// Tracing
	TracingExporter    string  `env:"TRACING_EXPORTER" envDefault:"none"`
	OTLPEndpoint       string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	OTLPInsecure       bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"false"`
	TracingSampleRatio float64 `env:"OTEL_SAMPLER_RATIO" envDefault:"1"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// GetCORSAllowedOrigins parses the comma-separated origins string into a slice.
func (c *Config) GetCORSAllowedOrigins() []string {
	if c.CORSAllowedOrigins == "" {
		return nil
	}

	origins := strings.Split(c.CORSAllowedOrigins, ",")
	result := make([]string, 0, len(origins))

	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

// TrustedProxyPrefixes parses TRUSTED_PROXIES. Bare addresses become
// single-host prefixes.
func (c *Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, raw := range c.TrustedProxies {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "/") {
			p, err := netip.ParsePrefix(raw)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: invalid CIDR %q", raw)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(raw)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: invalid address %q", raw)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

// EffectiveLogLevel returns the configured log level, forced to debug when DEBUG is set.
func (c *Config) EffectiveLogLevel() string {
	if c.Debug {
		return "debug"
	}
	return c.LogLevel
}

// Validate checks cross-field rules that struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error

	switch c.Provider {
	case ProviderOpenAI:
		if strings.TrimSpace(c.OpenAIAPIKey) == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required when PROVIDER=openai"))
		}
	case ProviderMock:
		if c.IsProduction() {
			errs = append(errs, errors.New("PROVIDER=mock is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("PROVIDER must be %q or %q, got %q", ProviderOpenAI, ProviderMock, c.Provider))
	}

	if c.IsProduction() && len(c.SecretKey) < minProductionSecretLen {
		errs = append(errs, fmt.Errorf("SECRET_KEY must be at least %d bytes in production", minProductionSecretLen))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("SESSION_TTL must be positive"))
	}
	if c.OpenAIMaxRetries < 0 {
		errs = append(errs, errors.New("OPENAI_MAX_RETRIES must not be negative"))
	}
	if c.MaxTextLength <= 0 {
		errs = append(errs, errors.New("MAX_TEXT_LENGTH must be positive"))
	}
	if c.SummaryConcurrency <= 0 {
		errs = append(errs, errors.New("SUMMARY_CONCURRENCY must be positive"))
	}
	if c.RateLimitEnabled && (c.RateLimitAIPerMinute <= 0 || c.RateLimitAIBurst <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_AI_PER_MINUTE and RATE_LIMIT_AI_BURST must be positive"))
	}

	if _, err := c.TrustedProxyPrefixes(); err != nil {
		errs = append(errs, err)
	}

	if c.TracingSampleRatio < 0 || c.TracingSampleRatio > 1 {
		errs = append(errs, errors.New("OTEL_SAMPLER_RATIO must be between 0 and 1"))
	}

	switch c.TracingExporter {
	case TracingNone, TracingStdout:
	case TracingOTLP:
		if c.OTLPEndpoint == "" {
			errs = append(errs, errors.New("OTEL_EXPORTER_OTLP_ENDPOINT is required when TRACING_EXPORTER=otlp"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown TRACING_EXPORTER %q", c.TracingExporter))
	}

	return errors.Join(errs...)
}

// Load reads an optional .env file, parses environment variables and validates the result.
// Returns an error if required variables are missing or inconsistent.
func Load() (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ToolConfig is the subset of configuration studyctl needs. Nothing is
// required up front; each command checks what it uses.
type ToolConfig struct {
	DatabaseURL string `env:"DATABASE_URL"`

	Provider         string        `env:"PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com"`
	OpenAIModel      string        `env:"OPENAI_MODEL" envDefault:"gpt-3.5-turbo"`
	OpenAITimeout    time.Duration `env:"OPENAI_TIMEOUT" envDefault:"60s"`
	OpenAIMaxRetries int           `env:"OPENAI_MAX_RETRIES" envDefault:"3"`

	MaxTextLength      int `env:"MAX_TEXT_LENGTH" envDefault:"100000"`
	SummaryConcurrency int `env:"SUMMARY_CONCURRENCY" envDefault:"4"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadTool reads an optional .env file and parses ToolConfig.
func LoadTool() (*ToolConfig, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	cfg := &ToolConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads path into the environment without overriding variables already set.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}
