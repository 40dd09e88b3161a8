package pipeline

import (
	"context"
	"time"

	"chatbatch/internal/logging"
	"chatbatch/internal/services"
)

// verifyLoop evaluates completed items. Accepted results are counted and
// passed to the collector; rejected ones send the pre-reply original back to
// the input queue for a fresh dispatch.
func (b *batch) verifyLoop(ctx context.Context, worker int) error {
	logger := b.logger.With(
		logging.Stage(StageVerify),
		logging.Int("worker", worker),
	)
	for {
		completion, err := b.verify.Dequeue(ctx)
		if err != nil {
			return nil
		}

		vctx := services.WithStage(services.WithItemID(ctx, completion.Result.ID), StageVerify)
		itemLogger := logging.WithContext(vctx, logger)

		start := time.Now()
		accepted, err := b.verifier.Verify(vctx, completion.Result)
		b.observer.AttemptFinished(StageVerify, err, time.Since(start))

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			logging.WarnWithContext(itemLogger, "verification failed; treating as rejection",
				"verification_error",
				logging.Error(err),
				logging.Attempt(completion.Original.Attempts),
				logging.String(logging.FieldErrorHint, "check the verification method settings"),
				logging.String(logging.FieldImpact, "request will be dispatched again"),
			)
			b.retry(itemLogger, completion.Original, StageVerify, "verification_error")
		case !accepted:
			itemLogger.Info("verification rejected result; re-enqueueing request",
				logging.String(logging.FieldEventType, "verification_rejected"),
				logging.Attempt(completion.Original.Attempts),
			)
			b.retry(itemLogger, completion.Original, StageVerify, "rejected")
		default:
			b.accept(completion.Result)
		}
	}
}
