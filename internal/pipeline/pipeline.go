package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"chatbatch/internal/logging"
	"chatbatch/internal/services"
	"chatbatch/internal/workitem"
)

// Caller performs the chat completion for one item and returns the assistant
// reply. Any error is treated as retryable.
type Caller interface {
	Complete(ctx context.Context, item workitem.Item) (workitem.Message, error)
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, item workitem.Item) (workitem.Message, error)

// Complete calls f.
func (f CallerFunc) Complete(ctx context.Context, item workitem.Item) (workitem.Message, error) {
	return f(ctx, item)
}

// Verifier accepts or rejects a completed item. An error counts as a reject.
type Verifier interface {
	Verify(ctx context.Context, item workitem.Item) (bool, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, item workitem.Item) (bool, error)

// Verify calls f.
func (f VerifierFunc) Verify(ctx context.Context, item workitem.Item) (bool, error) {
	return f(ctx, item)
}

// Writer persists an item list to path, replacing whatever was there.
type Writer interface {
	Write(ctx context.Context, path string, items []workitem.Item) error
}

// Completion pairs a dispatched item with the result awaiting verification.
type Completion struct {
	Original workitem.Item
	Result   workitem.Item
}

// Options configures a Pipeline.
type Options struct {
	// Workers is the number of dispatch workers.
	Workers int
	// VerifyWorkers defaults to Workers when zero.
	VerifyWorkers int
	// Verifier enables the verification stage when non-nil.
	Verifier Verifier
	// MaxAttempts abandons an item after that many failed attempts. Zero
	// retries forever, which never terminates if an item always fails.
	MaxAttempts int

	// CheckpointInterval is the number of accepted items between
	// checkpoints. Zero disables checkpointing.
	CheckpointInterval int
	CheckpointPath     string
	// OutputPath receives the final result set once. Empty skips it.
	OutputPath string
	// AbandonedPath receives abandoned items, if any.
	AbandonedPath string
	Writer        Writer

	Observer Observer
	Logger   *slog.Logger
}

// Result summarizes a finished batch.
type Result struct {
	Items       []workitem.Item
	Abandoned   []workitem.Item
	Attempts    int64
	Requeues    int64
	Checkpoints int64
	Elapsed     time.Duration
	// PersistErr records a failed final write. The batch itself still
	// completed.
	PersistErr error
}

// Pipeline moves a batch of items through dispatch, optional verification,
// collection, and optional checkpointing.
type Pipeline struct {
	caller   Caller
	opts     Options
	logger   *slog.Logger
	observer Observer
	topology []stageSpec
}

// New validates opts and builds the stage topology.
func New(caller Caller, opts Options) (*Pipeline, error) {
	if caller == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "caller is required", nil)
	}
	if opts.Workers < 1 {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", fmt.Sprintf("workers must be positive, got %d", opts.Workers), nil)
	}
	if opts.VerifyWorkers < 0 || opts.MaxAttempts < 0 || opts.CheckpointInterval < 0 {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "worker counts, attempt limits and intervals must not be negative", nil)
	}
	if opts.VerifyWorkers == 0 {
		opts.VerifyWorkers = opts.Workers
	}
	opts.CheckpointPath = strings.TrimSpace(opts.CheckpointPath)
	opts.OutputPath = strings.TrimSpace(opts.OutputPath)
	if opts.CheckpointInterval > 0 && (opts.CheckpointPath == "" || opts.Writer == nil) {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "checkpointing requires a path and a writer", nil)
	}
	if opts.OutputPath != "" && opts.Writer == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new", "output path requires a writer", nil)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	observer := opts.Observer
	if observer == nil {
		observer = NopObserver{}
	}

	return &Pipeline{
		caller:   caller,
		opts:     opts,
		logger:   logger,
		observer: observer,
		topology: buildTopology(opts),
	}, nil
}

// Run executes the batch. It returns once every item has been accepted or
// abandoned, or when ctx is cancelled. On cancellation the partial result is
// returned together with the context error and no final write happens.
func (p *Pipeline) Run(ctx context.Context, items []workitem.Item) (Result, error) {
	start := time.Now()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	b := newBatch(p, len(items), cancel)
	for _, item := range items {
		b.input.Enqueue(item)
	}
	p.logger.Info("queued requests",
		logging.Int("count", len(items)),
		logging.String("topology", describeTopology(p.topology)),
	)

	g, gctx := errgroup.WithContext(runCtx)
	for _, st := range p.topology {
		for worker := 1; worker <= st.workers; worker++ {
			g.Go(func() error { return st.run(b, gctx, worker) })
		}
	}
	err := g.Wait()

	result := Result{
		Items:       b.results.Snapshot(),
		Abandoned:   b.abandoned.Snapshot(),
		Attempts:    b.attempts.Load(),
		Requeues:    b.requeues.Load(),
		Checkpoints: b.checkpoints.Load(),
		Elapsed:     time.Since(start),
		PersistErr:  b.persistErr,
	}
	if err != nil {
		return result, err
	}
	if !b.finished.Load() {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return result, ctxErr
		}
		return result, errors.New("pipeline stopped before completion")
	}
	return result, nil
}

// batch owns the primitives for one Run. Stages receive it at start and share
// nothing else.
type batch struct {
	caller   Caller
	verifier Verifier
	opts     Options
	logger   *slog.Logger
	observer Observer
	total    int
	stop     context.CancelFunc

	input  *Queue[workitem.Item]
	verify *Queue[Completion]
	output *Queue[workitem.Item]

	completed      *Counter
	abandonedCount *Counter
	results        *Accumulator
	abandoned      *Accumulator

	attempts    atomic.Int64
	requeues    atomic.Int64
	checkpoints atomic.Int64
	finished    atomic.Bool
	persistErr  error
}

func newBatch(p *Pipeline, total int, stop context.CancelFunc) *batch {
	return &batch{
		caller:         p.caller,
		verifier:       p.opts.Verifier,
		opts:           p.opts,
		logger:         p.logger,
		observer:       p.observer,
		total:          total,
		stop:           stop,
		input:          NewQueue[workitem.Item](),
		verify:         NewQueue[Completion](),
		output:         NewQueue[workitem.Item](),
		completed:      NewCounter(),
		abandonedCount: NewCounter(),
		results:        newAccumulator(total),
		abandoned:      newAccumulator(0),
	}
}

// expected is the number of items the collector still has to see in total.
func (b *batch) expected() int {
	return b.total - b.abandonedCount.Get()
}

// accept is the only path that increments the completion counter. The
// increment happens before the item becomes visible on the output queue.
func (b *batch) accept(item workitem.Item) {
	n := b.completed.Increment()
	b.output.Enqueue(item)
	b.observer.Accepted(n, b.total)
}

// retry re-enqueues the original item, or abandons it once the attempt cap
// is reached.
func (b *batch) retry(logger *slog.Logger, item workitem.Item, stage, reason string) {
	if b.opts.MaxAttempts > 0 && item.Attempts >= b.opts.MaxAttempts {
		b.abandon(logger, item, reason)
		return
	}
	b.requeues.Add(1)
	b.observer.Requeued(stage, reason)
	b.input.Enqueue(item)
}

func (b *batch) abandon(logger *slog.Logger, item workitem.Item, reason string) {
	b.abandoned.Append(item)
	b.abandonedCount.Increment()
	b.observer.Abandoned(item)
	logging.ErrorWithContext(logger, "item abandoned after reaching attempt limit",
		"item_abandoned",
		logging.ItemID(item.ID),
		logging.Int("attempts", item.Attempts),
		logging.String("reason", reason),
		logging.String(logging.FieldErrorHint, "inspect the abandoned output or raise processes.max_attempts"),
	)
}
