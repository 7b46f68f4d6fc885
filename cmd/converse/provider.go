package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"

	"converse/internal/config"
	"converse/internal/llm"
	"converse/internal/metrics"
)

var errUnsupportedProvider = errors.New("unsupported provider")

func buildProviderFromConfig(cfg config.Config, logger *slog.Logger, m *metrics.Metrics) (llm.Provider, string, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider.Default)) {
	case "", config.ProviderBedrock:
		settings, err := cfg.BedrockSettings()
		if err != nil {
			return nil, "", fmt.Errorf("resolve bedrock settings: %w", err)
		}
		provider, err := llm.NewBedrockProvider(llm.BedrockConfig{
			Credentials: llm.BedrockCredentials{
				Region:          settings.Region,
				AccessKeyID:     settings.AccessKeyID,
				SecretAccessKey: settings.SecretAccessKey,
				SessionToken:    settings.SessionToken,
			},
			Endpoint: settings.Endpoint,
			Retry: llm.RetryPolicy{
				MaxRetries: settings.Retry.MaxRetries,
				BaseDelay:  settings.Retry.BaseDelay,
				MaxDelay:   settings.Retry.MaxDelay,
			},
			Logger:  logger,
			Metrics: m,
		})
		if err != nil {
			return nil, "", err
		}
		return provider, settings.Model, nil

	case config.ProviderAnthropic:
		settings, err := cfg.AnthropicSettings()
		if err != nil {
			return nil, "", fmt.Errorf("resolve anthropic settings: %w", err)
		}
		if strings.TrimSpace(settings.APIKey) == "" {
			return nil, "", llm.ErrMissingAPIKey
		}

		provider := llm.NewAnthropicProvider(llm.AnthropicConfig{
			APIKey:  settings.APIKey,
			BaseURL: settings.BaseURL,
			Version: settings.Version,
			Retry: llm.RetryPolicy{
				MaxRetries: settings.Retry.MaxRetries,
				BaseDelay:  settings.Retry.BaseDelay,
				MaxDelay:   settings.Retry.MaxDelay,
			},
			Logger:  logger,
			Metrics: m,
		})
		return provider, settings.Model, nil

	default:
		return nil, "", fmt.Errorf("%w: %s", errUnsupportedProvider, cfg.Provider.Default)
	}
}

// applySampling copies the Converse inference settings onto the run. The
// Anthropic provider uses its own defaults.
func applySampling(opts *runOptions, cfg config.Config) error {
	if strings.ToLower(strings.TrimSpace(cfg.Provider.Default)) != config.ProviderBedrock {
		return nil
	}
	settings, err := cfg.BedrockSettings()
	if err != nil {
		return fmt.Errorf("resolve bedrock settings: %w", err)
	}
	opts.MaxTokens = settings.MaxTokens
	opts.Temperature = settings.Temperature
	opts.TopP = settings.TopP
	opts.Timeout = settings.Timeout
	if settings.Stream != nil && !*settings.Stream {
		opts.NoStream = true
	}
	return nil
}

func printModels(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, model := range llm.BedrockModels() {
		if _, err := fmt.Fprintf(w, "%s\t%s\n", model.ID, model.Name); err != nil {
			return err
		}
	}
	return w.Flush()
}
