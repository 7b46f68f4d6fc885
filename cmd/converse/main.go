package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"converse/internal/config"
	"converse/internal/metrics"
	"converse/internal/tools"
)

func main() {
	if err := execute(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "converse: %v\n", err)
		os.Exit(1)
	}
}

func execute() error {
	return newRootCmd().Execute()
}

type rootFlags struct {
	configPath  string
	system      string
	noStream    bool
	images      []string
	logLevel    string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	var flags rootFlags

	cmd := &cobra.Command{
		Use:           "converse [prompt]",
		Short:         "converse streams one model conversation with tool use",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(args, cmd.InOrStdin())
			if err != nil {
				return err
			}

			cfg, err := config.Load(config.LoadOptions{Path: strings.TrimSpace(flags.configPath)})
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if flags.logLevel != "" {
				cfg.Log.Level = flags.logLevel
			}
			if flags.metricsAddr != "" {
				cfg.Metrics.Addr = flags.metricsAddr
			}

			level, err := cfg.LogLevel()
			if err != nil {
				return err
			}
			logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			m := metrics.New()
			if addr := strings.TrimSpace(cfg.Metrics.Addr); addr != "" {
				shutdown := serveMetrics(addr, m, logger)
				defer shutdown()
			}

			provider, model, err := buildProviderFromConfig(cfg, logger, m)
			if err != nil {
				return fmt.Errorf("build provider: %w", err)
			}

			workspace := strings.TrimSpace(cfg.Agent.Workspace)
			if workspace == "" {
				if workspace, err = os.Getwd(); err != nil {
					return fmt.Errorf("resolve cwd: %w", err)
				}
			}

			opts := runOptions{
				Prompt:   prompt,
				System:   flags.system,
				Images:   flags.images,
				NoStream: flags.noStream,
				Model:    model,
				MaxTurns: cfg.Agent.MaxTurns,
				Registry: tools.Builtins(workspace, cfg.Agent.ReadOnly),
				Logger:   logger,
			}
			if err := applySampling(&opts, cfg); err != nil {
				return err
			}

			return run(ctx, provider, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", "", "Path to config file")
	cmd.Flags().StringVar(&flags.system, "system", "", "System prompt")
	cmd.Flags().BoolVar(&flags.noStream, "no-stream", false, "Use the non-streaming API")
	cmd.Flags().StringArrayVar(&flags.images, "image", nil, "Attach an image file or data: URI (repeatable)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&flags.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	cmd.AddCommand(newModelsCmd())
	return cmd
}

func newModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List known Bedrock model ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return printModels(cmd.OutOrStdout())
		},
	}
}

var errEmptyPrompt = errors.New("prompt is required")

// readPrompt takes the prompt argument, or stdin when none is given.
func readPrompt(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 {
		if prompt := strings.TrimSpace(args[0]); prompt != "" {
			return prompt, nil
		}
		return "", errEmptyPrompt
	}
	raw, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read prompt: %w", err)
	}
	prompt := strings.TrimSpace(string(raw))
	if prompt == "" {
		return "", errEmptyPrompt
	}
	return prompt, nil
}
