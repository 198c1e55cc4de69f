package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"clinical-annotation-eval/harness/internal/config"
	"clinical-annotation-eval/harness/internal/jobmanagement"
)

type options struct {
	configPath string
	logLevel   string
	adapter    string
	failFast   bool
	noProgress bool
	jsonReport bool
	archive    string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		slog.Error("annoteval failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "annoteval",
		Short:         "Evaluate a clinical concept annotation API against a reference corpus",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluation(cmd, opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to a YAML config file (defaults to ANNOTEVAL_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")
	root.PersistentFlags().StringVar(&opts.adapter, "adapter", "", "annotation adapter: http, mock or mock-error")
	root.PersistentFlags().BoolVar(&opts.noProgress, "no-progress", false, "disable progress bars")
	root.PersistentFlags().BoolVar(&opts.jsonReport, "json", false, "print the report and per-document scores as JSON")

	addRunFlags := func(cmd *cobra.Command) {
		cmd.Flags().BoolVar(&opts.failFast, "fail-fast", false, "abort the batch on the first failing document")
	}
	addRunFlags(root)

	run := &cobra.Command{
		Use:   "run",
		Short: "Annotate the dataset, write the output archive and print the report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluation(cmd, opts)
		},
	}
	addRunFlags(run)

	smoke := &cobra.Command{
		Use:   "smoke",
		Short: "Annotate the sample text and compare it with the reference response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			svc, err := jobmanagement.NewJobService(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			_, err = svc.RunSmoke(cmd.Context())
			return err
		},
	}

	score := &cobra.Command{
		Use:   "score",
		Short: "Score an existing output archive without calling the API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			svc, err := jobmanagement.NewJobService(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			_, err = svc.Rescore(cmd.Context(), opts.archive)
			return err
		},
	}
	score.Flags().StringVar(&opts.archive, "archive", "", "output archive to score (defaults to the configured output)")

	root.AddCommand(run, smoke, score)
	return root
}

func runEvaluation(cmd *cobra.Command, opts *options) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	svc, err := jobmanagement.NewJobService(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	_, err = svc.RunEvaluation(cmd.Context())
	return err
}

// loadConfig reads the config, applies flag overrides, validates the result
// and installs the logger.
func loadConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	cfg, err := config.LoadUnvalidated(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}

	if opts.adapter != "" {
		cfg.Annotator.Adapter = opts.adapter
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if cmd.Flags().Changed("fail-fast") {
		cfg.FailFast = opts.failFast
	}
	if opts.noProgress {
		cfg.ShowProgress = false
	}
	if opts.jsonReport {
		cfg.Output.ReportFormat = config.ReportJSON
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogger(cmd, cfg.LogLevel)
	return cfg, nil
}

func setupLogger(cmd *cobra.Command, level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: lvl})))
}
