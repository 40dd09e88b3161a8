package pipeline

import (
	"context"
	"log/slog"

	"chatbatch/internal/logging"
)

// collectLoop drains the output queue until every item is accounted for,
// persists the result set once, and stops the batch.
func (b *batch) collectLoop(ctx context.Context, _ int) error {
	logger := b.logger.With(logging.Stage(StageCollect))
	for {
		// Grab the abandon broadcast before checking so an abandon that
		// lands between the check and the wait still wakes us.
		abandonedChanged := b.abandonedCount.Changed()

		for {
			item, ok := b.output.TryDequeue()
			if !ok {
				break
			}
			if b.results.Append(item) {
				logging.ErrorWithContext(logger, "duplicate item reached the collector",
					"duplicate_result",
					logging.ItemID(item.ID),
					logging.String(logging.FieldErrorHint, "report this; each request should be accepted once"),
				)
			}
		}

		expected := b.expected()
		if b.completed.Get() >= expected && b.results.Len() == expected {
			b.finish(ctx, logger)
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-b.output.Ready():
		case <-abandonedChanged:
		}
	}
}

// finish performs the single final write and cancels the remaining stages.
func (b *batch) finish(ctx context.Context, logger *slog.Logger) {
	defer b.stop()
	b.finished.Store(true)

	items := b.results.Snapshot()
	logger.Info("all requests completed",
		logging.Int("completed", len(items)),
		logging.Int("abandoned", b.abandonedCount.Get()),
	)

	if b.opts.OutputPath != "" {
		if err := b.opts.Writer.Write(ctx, b.opts.OutputPath, items); err != nil {
			b.persistErr = err
			logging.ErrorWithContext(logger, "failed to save output",
				"output_write_failed",
				logging.Error(err),
				logging.String("path", b.opts.OutputPath),
				logging.String(logging.FieldErrorHint, "check the output path and free disk space"),
			)
		} else {
			logger.Info("saved output",
				logging.Int("count", len(items)),
				logging.String("path", b.opts.OutputPath),
			)
		}
	}
	b.writeAbandoned(ctx, logger)
}

func (b *batch) writeAbandoned(ctx context.Context, logger *slog.Logger) {
	abandoned := b.abandoned.Snapshot()
	if len(abandoned) == 0 || b.opts.AbandonedPath == "" || b.opts.Writer == nil {
		return
	}
	if err := b.opts.Writer.Write(ctx, b.opts.AbandonedPath, abandoned); err != nil {
		logging.WarnWithContext(logger, "failed to save abandoned requests",
			"abandoned_write_failed",
			logging.Error(err),
			logging.String("path", b.opts.AbandonedPath),
			logging.String(logging.FieldImpact, "abandoned requests are only listed in the log"),
		)
	}
}
