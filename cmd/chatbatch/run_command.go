package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"chatbatch/internal/config"
	"chatbatch/internal/dataset"
	"chatbatch/internal/logging"
	"chatbatch/internal/metrics"
	"chatbatch/internal/pipeline"
	"chatbatch/internal/preflight"
	"chatbatch/internal/progress"
	"chatbatch/internal/runlock"
	"chatbatch/internal/services/llm"
	"chatbatch/internal/verify"
)

type runOptions struct {
	limit      int
	parallel   int
	output     string
	preflight  bool
	quiet      bool
	noProgress bool
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send every dataset row to the chat API and collect the replies",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if err := opts.apply(cfg); err != nil {
				return err
			}
			logger, err := ctx.newLogger(cmd, opts.quiet)
			if err != nil {
				return err
			}
			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runBatch(runCtx, cmd, cfg, opts, logger)
		},
	}

	cmd.Flags().IntVar(&opts.limit, "limit", 0, "Only process the first N rows (overrides data.limit)")
	cmd.Flags().IntVarP(&opts.parallel, "parallel", "j", 0, "Dispatch worker count (overrides processes.parallel)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Output path (overrides output.path)")
	cmd.Flags().BoolVar(&opts.preflight, "preflight", false, "Run readiness checks before loading the dataset")
	cmd.Flags().BoolVarP(&opts.quiet, "quiet", "q", false, "Only log warnings and errors")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "Disable the progress bar")
	return cmd
}

// apply folds flag overrides into cfg and revalidates it.
func (o runOptions) apply(cfg *config.Config) error {
	if o.limit < 0 || o.parallel < 0 {
		return errors.New("--limit and --parallel must not be negative")
	}
	if o.limit > 0 {
		cfg.Data.Limit = o.limit
	}
	if o.parallel > 0 {
		cfg.Processes.Parallel = o.parallel
	}
	if o.output != "" {
		path, err := config.ExpandPath(o.output)
		if err != nil {
			return fmt.Errorf("resolve output path: %w", err)
		}
		cfg.Output.Path = path
	}
	return cfg.Validate()
}

func runBatch(ctx context.Context, cmd *cobra.Command, cfg *config.Config, opts runOptions, logger *slog.Logger) error {
	if opts.preflight {
		results := preflight.RunAll(ctx, cfg, preflight.Options{})
		if failed := preflight.Failed(results); len(failed) > 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), renderCheckTable(results, false))
			return fmt.Errorf("preflight: %d check(s) failed", len(failed))
		}
	}

	outputPath := ""
	if cfg.PersistenceEnabled() {
		outputPath = dataset.OutputPath(cfg.Output)
		lock, err := runlock.Acquire(dataset.LockPath(outputPath))
		if err != nil {
			return err
		}
		defer func() {
			if err := lock.Release(); err != nil {
				logging.WarnWithContext(logger, "failed to release run lock", "run_lock_release_failed",
					logging.Error(err),
					logging.String("path", lock.Path()),
				)
			}
		}()
	}

	loader := dataset.NewLoader(dataset.WithLogger(logger))
	items, err := loader.Load(ctx, cfg.Data, cfg.Model)
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(items) == 0 {
		fmt.Fprintln(out, "No requests to process")
		return nil
	}

	client := llm.NewClientFrom(cfg.LLM())
	verifier, err := verify.New(cfg, logger)
	if err != nil {
		return err
	}

	recorder := metrics.NewRecorder()
	recorder.SetTotal(len(items))
	if cfg.Metrics.ListenAddr != "" {
		srv, err := metrics.Start(cfg.Metrics.ListenAddr, recorder.Registry(), logger)
		if err != nil {
			return fmt.Errorf("start metrics endpoint: %w", err)
		}
		defer func() { _ = srv.Shutdown(context.Background()) }()
	}
	reporter := progress.New(len(items), cmd.ErrOrStderr(), !opts.noProgress && !opts.quiet, logger)

	pipeOpts := pipeline.Options{
		Workers:       cfg.Processes.Parallel,
		VerifyWorkers: cfg.Verification.Workers,
		Verifier:      verifier,
		MaxAttempts:   cfg.Processes.MaxAttempts,
		Observer:      pipeline.Observers(recorder, reporter),
		Logger:        logger,
	}
	if outputPath != "" {
		pipeOpts.Writer = dataset.NewWriter(cfg.Output)
		pipeOpts.OutputPath = outputPath
		pipeOpts.AbandonedPath = dataset.AbandonedPath(outputPath)
		if cfg.Output.CheckpointInterval > 0 {
			pipeOpts.CheckpointInterval = cfg.Output.CheckpointInterval
			pipeOpts.CheckpointPath = dataset.CheckpointPath(outputPath)
		}
	}
	p, err := pipeline.New(newChatCaller(client), pipeOpts)
	if err != nil {
		return err
	}

	result, runErr := p.Run(ctx, items)
	reporter.Finish()
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logging.WarnWithContext(logger, "run interrupted", "run_interrupted",
				logging.Int("completed", len(result.Items)),
				logging.Int("total", len(items)),
				logging.String(logging.FieldErrorHint, "the last checkpoint, if any, holds the completed replies"),
			)
		}
		return runErr
	}
	logger.Info("All requests completed",
		logging.Int("completed", len(result.Items)),
		logging.Int("abandoned", len(result.Abandoned)),
		logging.Duration("elapsed", result.Elapsed),
	)

	fmt.Fprintln(out, renderSummary("Run summary", runSummaryFields(len(items), result, outputPath)))
	if result.PersistErr != nil {
		return fmt.Errorf("write output: %w", result.PersistErr)
	}
	return nil
}

func runSummaryFields(total int, result pipeline.Result, outputPath string) [][2]string {
	fields := [][2]string{
		{"Requests", humanize.Comma(int64(total))},
		{"Completed", humanize.Comma(int64(len(result.Items)))},
		{"Abandoned", humanize.Comma(int64(len(result.Abandoned)))},
		{"Attempts", humanize.Comma(result.Attempts)},
		{"Requeued", humanize.Comma(result.Requeues)},
		{"Checkpoints", humanize.Comma(result.Checkpoints)},
		{"Elapsed", result.Elapsed.Round(10 * time.Millisecond).String()},
	}
	if result.Elapsed > 0 && len(result.Items) > 0 {
		rate := float64(len(result.Items)) / result.Elapsed.Minutes()
		fields = append(fields, [2]string{"Throughput", humanize.FormatFloat("#,###.#", rate) + " req/min"})
	}
	if outputPath != "" {
		written := "written"
		if result.PersistErr != nil {
			written = "FAILED"
		}
		fields = append(fields, [2]string{"Output", fmt.Sprintf("%s (%s)", filepath.Base(outputPath), written)})
	}
	return fields
}
