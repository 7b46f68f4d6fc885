package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

const (
	ProviderBedrock   = "bedrock"
	ProviderAnthropic = "anthropic"
)

const (
	defaultProviderName       = ProviderBedrock
	defaultBedrockModel       = "us.anthropic.claude-sonnet-4-20250514-v1:0"
	defaultAnthropicModel     = "claude-sonnet-4-20250514"
	defaultAnthropicVersion   = "2023-06-01"
	defaultRetryMaxRetries    = 3
	defaultRetryBaseDelay     = "300ms"
	defaultRetryMaxDelay      = "5s"
	defaultAgentMaxTurns      = 50
	defaultLogLevel           = "info"
	defaultConfigRelativePath = ".config/converse/config.toml"

	envProviderDefault     = "CONVERSE_PROVIDER_DEFAULT"
	envAWSRegion           = "AWS_REGION"
	envAWSDefaultRegion    = "AWS_DEFAULT_REGION"
	envAWSAccessKeyID      = "AWS_ACCESS_KEY_ID"
	envAWSSecretAccessKey  = "AWS_SECRET_ACCESS_KEY"
	envAWSSessionToken     = "AWS_SESSION_TOKEN"
	envBedrockModel        = "CONVERSE_BEDROCK_MODEL"
	envBedrockEndpoint     = "CONVERSE_BEDROCK_ENDPOINT"
	envBedrockTimeout      = "CONVERSE_BEDROCK_TIMEOUT"
	envBedrockMaxRetries   = "CONVERSE_BEDROCK_RETRY_MAX_RETRIES"
	envAnthropicAPIKey     = "ANTHROPIC_API_KEY"
	envAnthropicModel      = "CONVERSE_ANTHROPIC_MODEL"
	envAnthropicBaseURL    = "CONVERSE_ANTHROPIC_BASE_URL"
	envAnthropicVersion    = "CONVERSE_ANTHROPIC_VERSION"
	envAnthropicMaxRetries = "CONVERSE_ANTHROPIC_RETRY_MAX_RETRIES"
	envLogLevel            = "CONVERSE_LOG_LEVEL"
	envMetricsAddr         = "CONVERSE_METRICS_ADDR"
)

var (
	// ErrInvalidConfig indicates malformed configuration input.
	ErrInvalidConfig = errors.New("invalid config")
)

// Config is the application configuration root.
type Config struct {
	Provider ProviderConfig `toml:"provider"`
	Agent    AgentConfig    `toml:"agent"`
	Log      LogConfig      `toml:"log"`
	Metrics  MetricsConfig  `toml:"metrics"`
}

// ProviderConfig configures model providers.
type ProviderConfig struct {
	Default   string                  `toml:"default"`
	Bedrock   BedrockProviderConfig   `toml:"bedrock"`
	Anthropic AnthropicProviderConfig `toml:"anthropic"`
}

// BedrockProviderConfig configures the Converse provider. Unset sampling
// values fall back to the payload builder defaults.
type BedrockProviderConfig struct {
	Region          string      `toml:"region"`
	AccessKeyID     string      `toml:"access_key_id"`
	SecretAccessKey string      `toml:"secret_access_key"`
	SessionToken    string      `toml:"session_token"`
	Model           string      `toml:"model"`
	Endpoint        string      `toml:"endpoint"`
	MaxTokens       int         `toml:"max_tokens"`
	Temperature     *float64    `toml:"temperature"`
	TopP            *float64    `toml:"top_p"`
	Stream          *bool       `toml:"stream"`
	Timeout         string      `toml:"timeout"`
	Retry           RetryConfig `toml:"retry"`
}

// AnthropicProviderConfig configures Anthropic-specific runtime values.
type AnthropicProviderConfig struct {
	APIKey  string      `toml:"api_key"`
	Model   string      `toml:"model"`
	BaseURL string      `toml:"base_url"`
	Version string      `toml:"version"`
	Retry   RetryConfig `toml:"retry"`
}

// RetryConfig stores retry policy as config-friendly values.
type RetryConfig struct {
	MaxRetries int    `toml:"max_retries"`
	BaseDelay  string `toml:"base_delay"`
	MaxDelay   string `toml:"max_delay"`
}

// AgentConfig configures the tool loop.
type AgentConfig struct {
	MaxTurns  int    `toml:"max_turns"`
	Workspace string `toml:"workspace"`
	ReadOnly  bool   `toml:"read_only"`
}

// LogConfig configures the slog handler installed by the CLI.
type LogConfig struct {
	Level string `toml:"level"`
}

// MetricsConfig configures the Prometheus listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `toml:"addr"`
}

// LoadOptions controls config loading behavior.
type LoadOptions struct {
	Path string
}

// BedrockSettings is a validated Converse runtime settings snapshot.
type BedrockSettings struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Model           string
	Endpoint        string
	MaxTokens       int
	Temperature     *float64
	TopP            *float64
	Stream          *bool
	Timeout         time.Duration
	Retry           RetrySettings
}

// AnthropicSettings is a validated Anthropic runtime settings snapshot.
type AnthropicSettings struct {
	APIKey  string
	Model   string
	BaseURL string
	Version string
	Retry   RetrySettings
}

// RetrySettings is the parsed retry policy.
type RetrySettings struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

func defaultRetry() RetryConfig {
	return RetryConfig{
		MaxRetries: defaultRetryMaxRetries,
		BaseDelay:  defaultRetryBaseDelay,
		MaxDelay:   defaultRetryMaxDelay,
	}
}

// Default returns application defaults.
func Default() Config {
	return Config{
		Provider: ProviderConfig{
			Default: defaultProviderName,
			Bedrock: BedrockProviderConfig{
				Model: defaultBedrockModel,
				Retry: defaultRetry(),
			},
			Anthropic: AnthropicProviderConfig{
				Model:   defaultAnthropicModel,
				Version: defaultAnthropicVersion,
				Retry:   defaultRetry(),
			},
		},
		Agent: AgentConfig{
			MaxTurns: defaultAgentMaxTurns,
		},
		Log: LogConfig{
			Level: defaultLogLevel,
		},
	}
}

// Load reads config file then applies environment variable overrides.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()

	path := strings.TrimSpace(opts.Path)
	if path == "" {
		path = defaultConfigPath()
	}

	if err := mergeConfigFile(&cfg, path); err != nil {
		return Config{}, err
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// BedrockSettings returns parsed settings suitable for runtime wiring.
// Credentials are checked for presence by the provider, not here.
func (c Config) BedrockSettings() (BedrockSettings, error) {
	b := c.Provider.Bedrock
	retry, err := parseRetry("bedrock", b.Retry)
	if err != nil {
		return BedrockSettings{}, err
	}
	var timeout time.Duration
	if raw := strings.TrimSpace(b.Timeout); raw != "" {
		timeout, err = time.ParseDuration(raw)
		if err != nil {
			return BedrockSettings{}, fmt.Errorf("%w: parse bedrock timeout: %v", ErrInvalidConfig, err)
		}
	}
	if b.MaxTokens < 0 {
		return BedrockSettings{}, fmt.Errorf("%w: bedrock max_tokens must be >= 0", ErrInvalidConfig)
	}

	return BedrockSettings{
		Region:          strings.TrimSpace(b.Region),
		AccessKeyID:     strings.TrimSpace(b.AccessKeyID),
		SecretAccessKey: strings.TrimSpace(b.SecretAccessKey),
		SessionToken:    strings.TrimSpace(b.SessionToken),
		Model:           strings.TrimSpace(b.Model),
		Endpoint:        strings.TrimSpace(b.Endpoint),
		MaxTokens:       b.MaxTokens,
		Temperature:     b.Temperature,
		TopP:            b.TopP,
		Stream:          b.Stream,
		Timeout:         timeout,
		Retry:           retry,
	}, nil
}

// AnthropicSettings returns validated settings suitable for runtime wiring.
func (c Config) AnthropicSettings() (AnthropicSettings, error) {
	retry, err := parseRetry("anthropic", c.Provider.Anthropic.Retry)
	if err != nil {
		return AnthropicSettings{}, err
	}

	return AnthropicSettings{
		APIKey:  strings.TrimSpace(c.Provider.Anthropic.APIKey),
		Model:   strings.TrimSpace(c.Provider.Anthropic.Model),
		BaseURL: strings.TrimSpace(c.Provider.Anthropic.BaseURL),
		Version: strings.TrimSpace(c.Provider.Anthropic.Version),
		Retry:   retry,
	}, nil
}

// LogLevel parses the configured slog level name.
func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return 0, fmt.Errorf("%w: log.level: %v", ErrInvalidConfig, err)
	}
	return level, nil
}

func parseRetry(provider string, cfg RetryConfig) (RetrySettings, error) {
	baseDelay, err := time.ParseDuration(strings.TrimSpace(cfg.BaseDelay))
	if err != nil {
		return RetrySettings{}, fmt.Errorf("%w: parse %s retry base_delay: %v", ErrInvalidConfig, provider, err)
	}
	maxDelay, err := time.ParseDuration(strings.TrimSpace(cfg.MaxDelay))
	if err != nil {
		return RetrySettings{}, fmt.Errorf("%w: parse %s retry max_delay: %v", ErrInvalidConfig, provider, err)
	}
	if cfg.MaxRetries < 0 {
		return RetrySettings{}, fmt.Errorf("%w: %s retry max_retries must be >= 0", ErrInvalidConfig, provider)
	}
	return RetrySettings{MaxRetries: cfg.MaxRetries, BaseDelay: baseDelay, MaxDelay: maxDelay}, nil
}

func mergeConfigFile(cfg *Config, path string) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.Provider.Default, envProviderDefault)

	setString(&cfg.Provider.Bedrock.Region, envAWSDefaultRegion)
	setString(&cfg.Provider.Bedrock.Region, envAWSRegion)
	setString(&cfg.Provider.Bedrock.AccessKeyID, envAWSAccessKeyID)
	setString(&cfg.Provider.Bedrock.SecretAccessKey, envAWSSecretAccessKey)
	setString(&cfg.Provider.Bedrock.SessionToken, envAWSSessionToken)
	setString(&cfg.Provider.Bedrock.Model, envBedrockModel)
	setString(&cfg.Provider.Bedrock.Endpoint, envBedrockEndpoint)
	setString(&cfg.Provider.Bedrock.Timeout, envBedrockTimeout)
	if err := setInt(&cfg.Provider.Bedrock.Retry.MaxRetries, envBedrockMaxRetries); err != nil {
		return err
	}

	if value, ok := os.LookupEnv(envAnthropicAPIKey); ok {
		cfg.Provider.Anthropic.APIKey = value
	}
	setString(&cfg.Provider.Anthropic.Model, envAnthropicModel)
	setString(&cfg.Provider.Anthropic.BaseURL, envAnthropicBaseURL)
	setString(&cfg.Provider.Anthropic.Version, envAnthropicVersion)
	if err := setInt(&cfg.Provider.Anthropic.Retry.MaxRetries, envAnthropicMaxRetries); err != nil {
		return err
	}

	setString(&cfg.Log.Level, envLogLevel)
	setString(&cfg.Metrics.Addr, envMetricsAddr)
	return nil
}

// setString overwrites dst with a non-blank env value.
func setString(dst *string, env string) {
	if value, ok := os.LookupEnv(env); ok && strings.TrimSpace(value) != "" {
		*dst = strings.TrimSpace(value)
	}
}

func setInt(dst *int, env string) error {
	value, ok := os.LookupEnv(env)
	if !ok || strings.TrimSpace(value) == "" {
		return nil
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("%w: parse %s: %v", ErrInvalidConfig, env, err)
	}
	*dst = parsed
	return nil
}

func validate(cfg Config) error {
	switch strings.TrimSpace(cfg.Provider.Default) {
	case ProviderBedrock:
		if strings.TrimSpace(cfg.Provider.Bedrock.Model) == "" {
			return fmt.Errorf("%w: provider.bedrock.model is required", ErrInvalidConfig)
		}
	case ProviderAnthropic:
		if strings.TrimSpace(cfg.Provider.Anthropic.Model) == "" {
			return fmt.Errorf("%w: provider.anthropic.model is required", ErrInvalidConfig)
		}
	case "":
		return fmt.Errorf("%w: provider.default is required", ErrInvalidConfig)
	default:
		return fmt.Errorf("%w: unknown provider.default %q", ErrInvalidConfig, cfg.Provider.Default)
	}
	if _, err := cfg.BedrockSettings(); err != nil {
		return err
	}
	if _, err := cfg.AnthropicSettings(); err != nil {
		return err
	}
	if _, err := cfg.LogLevel(); err != nil {
		return err
	}
	return nil
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, defaultConfigRelativePath)
}
