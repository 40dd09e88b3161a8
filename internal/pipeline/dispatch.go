package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"chatbatch/internal/logging"
	"chatbatch/internal/services"
	"chatbatch/internal/workitem"
)

// dispatchStage returns the worker loop for the dispatch pool. With
// verification enabled successful results go to the verification queue;
// otherwise they are accepted directly.
func dispatchStage(verify bool) func(b *batch, ctx context.Context, worker int) error {
	return func(b *batch, ctx context.Context, worker int) error {
		logger := b.logger.With(
			logging.Stage(StageDispatch),
			logging.Int("worker", worker),
		)
		for {
			item, err := b.input.Dequeue(ctx)
			if err != nil {
				return nil
			}
			original, result, ok := b.dispatch(ctx, logger, item)
			if !ok {
				continue
			}
			if verify {
				b.verify.Enqueue(Completion{Original: original, Result: result})
				continue
			}
			b.accept(result)
		}
	}
}

// dispatch performs one attempt. On failure the original item is routed back
// to the input queue and ok is false.
func (b *batch) dispatch(ctx context.Context, logger *slog.Logger, item workitem.Item) (workitem.Item, workitem.Item, bool) {
	item.Attempts++
	b.attempts.Add(1)

	reqCtx := services.WithItemID(ctx, item.ID)
	reqCtx = services.WithStage(reqCtx, StageDispatch)
	reqCtx = services.WithRequestID(reqCtx, uuid.NewString())
	reqLogger := logging.WithContext(reqCtx, logger)

	start := time.Now()
	reply, err := b.caller.Complete(reqCtx, item)
	elapsed := time.Since(start)
	b.observer.AttemptFinished(StageDispatch, err, elapsed)

	if err != nil {
		if ctx.Err() != nil {
			return item, workitem.Item{}, false
		}
		logging.WarnWithContext(reqLogger, "chat completion failed; re-enqueueing request",
			"dispatch_failed",
			logging.Error(err),
			logging.Attempt(item.Attempts),
			logging.Duration("elapsed", elapsed),
			logging.String(logging.FieldErrorHint, "check API reachability, credentials and model name"),
			logging.String(logging.FieldImpact, "request will be retried"),
		)
		b.retry(reqLogger, item, StageDispatch, "dispatch_error")
		return item, workitem.Item{}, false
	}

	if reply.Role == "" {
		reply.Role = workitem.RoleAssistant
	}
	reqLogger.Debug("chat completion succeeded",
		logging.Attempt(item.Attempts),
		logging.Duration("elapsed", elapsed),
		logging.Int("reply_chars", len(reply.Content)),
	)
	return item, item.WithReply(reply), true
}
