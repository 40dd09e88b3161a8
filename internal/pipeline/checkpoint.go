package pipeline

import (
	"context"

	"chatbatch/internal/logging"
)

// checkpointLoop snapshots the accumulator every CheckpointInterval accepted
// items. Each snapshot overwrites the previous one. Failures are logged and
// the next interval tries again. Once every expected item is accepted the
// final write supersedes any checkpoint, so none is taken.
func (b *batch) checkpointLoop(ctx context.Context, _ int) error {
	logger := b.logger.With(
		logging.Stage(StageCheckpoint),
		logging.String("path", b.opts.CheckpointPath),
	)
	interval := b.opts.CheckpointInterval
	lastSaved := 0
	for {
		changed := b.completed.Changed()
		abandonedChanged := b.abandonedCount.Changed()

		completed := b.completed.Get()
		if completed >= b.expected() {
			return nil
		}
		if completed-lastSaved >= interval && b.results.Len() > 0 {
			snapshot := b.results.Snapshot()
			err := b.opts.Writer.Write(ctx, b.opts.CheckpointPath, snapshot)
			b.observer.Checkpointed(len(snapshot), err)
			if err != nil {
				logging.WarnWithContext(logger, "checkpoint write failed",
					"checkpoint_failed",
					logging.Error(err),
					logging.Int("items", len(snapshot)),
					logging.String(logging.FieldErrorHint, "check the output directory is writable"),
					logging.String(logging.FieldImpact, "progress since the previous checkpoint is not saved yet"),
				)
			} else {
				b.checkpoints.Add(1)
				lastSaved = completed
				logger.Info("checkpoint saved",
					logging.String(logging.FieldEventType, "checkpoint_saved"),
					logging.Int("items", len(snapshot)),
					logging.Int("completed", completed),
				)
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-changed:
		case <-abandonedChanged:
		}
	}
}
