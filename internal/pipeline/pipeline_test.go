package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"chatbatch/internal/services"
	"chatbatch/internal/workitem"
)

func testItem(id int64) workitem.Item {
	return workitem.Item{
		ID: id,
		Messages: []workitem.Message{
			{Role: workitem.RoleUser, Content: fmt.Sprintf("question %d", id)},
		},
	}
}

func testItems(n int) []workitem.Item {
	items := make([]workitem.Item, n)
	for i := range items {
		items[i] = testItem(int64(i))
	}
	return items
}

func echoCaller() Caller {
	return CallerFunc(func(_ context.Context, item workitem.Item) (workitem.Message, error) {
		return workitem.Message{Role: workitem.RoleAssistant, Content: fmt.Sprintf("answer %d", item.ID)}, nil
	})
}

type recordingWriter struct {
	mu     sync.Mutex
	writes map[string][]int
	fail   error
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{writes: make(map[string][]int)}
}

func (w *recordingWriter) Write(_ context.Context, path string, items []workitem.Item) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.writes[path] = append(w.writes[path], len(items))
	return w.fail
}

func (w *recordingWriter) sizes(path string) []int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]int(nil), w.writes[path]...)
}

type callLog struct {
	mu    sync.Mutex
	calls map[int64]int
}

func (c *callLog) record(id int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = make(map[int64]int)
	}
	c.calls[id]++
	return c.calls[id]
}

func (c *callLog) count(id int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[id]
}

func runPipeline(t *testing.T, caller Caller, opts Options, items []workitem.Item, timeout time.Duration) (Result, error) {
	t.Helper()
	p, err := New(caller, opts)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return p.Run(ctx, items)
}

func assertUniqueIDs(t *testing.T, items []workitem.Item) {
	t.Helper()
	seen := make(map[int64]struct{}, len(items))
	for _, item := range items {
		if _, ok := seen[item.ID]; ok {
			t.Fatalf("item %d appears more than once", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
}

func TestRunFiveItemsSingleWorker(t *testing.T) {
	writer := newRecordingWriter()
	result, err := runPipeline(t, echoCaller(), Options{
		Workers:    1,
		OutputPath: "out.jsonl",
		Writer:     writer,
	}, testItems(5), 5*time.Second)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(result.Items))
	}
	assertUniqueIDs(t, result.Items)
	for _, item := range result.Items {
		reply, ok := item.LastReply()
		if !ok {
			t.Fatalf("item %d has no assistant reply", item.ID)
		}
		if reply.Content != fmt.Sprintf("answer %d", item.ID) {
			t.Fatalf("item %d has unexpected reply %q", item.ID, reply.Content)
		}
		if len(item.Messages) != 2 {
			t.Fatalf("item %d expected 2 messages, got %d", item.ID, len(item.Messages))
		}
	}
	if result.Attempts != 5 || result.Requeues != 0 {
		t.Fatalf("expected 5 attempts and no requeues, got %d/%d", result.Attempts, result.Requeues)
	}
	if got := writer.sizes("out.jsonl"); len(got) != 1 || got[0] != 5 {
		t.Fatalf("expected one final write of 5 items, got %v", got)
	}
}

func TestRunManyWorkersNoVerification(t *testing.T) {
	const total = 200
	result, err := runPipeline(t, echoCaller(), Options{Workers: 16}, testItems(total), 10*time.Second)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Items) != total {
		t.Fatalf("expected %d items, got %d", total, len(result.Items))
	}
	assertUniqueIDs(t, result.Items)
}

func TestRunEmptyBatchCompletesImmediately(t *testing.T) {
	result, err := runPipeline(t, echoCaller(), Options{Workers: 2}, nil, time.Second)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Items) != 0 {
		t.Fatalf("expected no items, got %d", len(result.Items))
	}
}

func TestRunRetriesFailedDispatchOnce(t *testing.T) {
	var calls callLog
	caller := CallerFunc(func(ctx context.Context, item workitem.Item) (workitem.Message, error) {
		if calls.record(item.ID) == 1 && item.ID == 3 {
			return workitem.Message{}, errors.New("http 502")
		}
		return workitem.Message{Role: workitem.RoleAssistant, Content: "ok"}, nil
	})

	result, err := runPipeline(t, caller, Options{Workers: 3}, testItems(6), 5*time.Second)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Items) != 6 {
		t.Fatalf("expected 6 items, got %d", len(result.Items))
	}
	assertUniqueIDs(t, result.Items)
	if calls.count(3) != 2 {
		t.Fatalf("expected item 3 to be dispatched twice, got %d", calls.count(3))
	}
	if result.Requeues != 1 {
		t.Fatalf("expected exactly one requeue, got %d", result.Requeues)
	}
	for _, item := range result.Items {
		want := 1
		if item.ID == 3 {
			want = 2
		}
		if item.Attempts != want {
			t.Fatalf("item %d: expected %d attempts, got %d", item.ID, want, item.Attempts)
		}
		if len(item.Messages) != 2 {
			t.Fatalf("item %d: retry must start from the original messages, got %d", item.ID, len(item.Messages))
		}
	}
}

func TestRunVerificationRejectsOnce(t *testing.T) {
	var dispatches callLog
	caller := CallerFunc(func(_ context.Context, item workitem.Item) (workitem.Message, error) {
		n := dispatches.record(item.ID)
		return workitem.Message{Role: workitem.RoleAssistant, Content: fmt.Sprintf("draft %d", n)}, nil
	})
	var rejected sync.Once
	verifier := VerifierFunc(func(_ context.Context, item workitem.Item) (bool, error) {
		if item.ID != 1 {
			return true, nil
		}
		accept := true
		rejected.Do(func() { accept = false })
		return accept, nil
	})

	result, err := runPipeline(t, caller, Options{Workers: 2, Verifier: verifier}, testItems(3), 5*time.Second)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(result.Items))
	}
	assertUniqueIDs(t, result.Items)
	for _, item := range result.Items {
		if item.ID == 1 {
			if item.Attempts != 2 {
				t.Fatalf("expected item 1 to show 2 attempts, got %d", item.Attempts)
			}
			reply, _ := item.LastReply()
			if reply.Content != "draft 2" {
				t.Fatalf("expected the second draft to be kept, got %q", reply.Content)
			}
			if len(item.Messages) != 2 {
				t.Fatalf("rejected reply leaked into the retry: %d messages", len(item.Messages))
			}
			continue
		}
		if item.Attempts != 1 {
			t.Fatalf("item %d: expected 1 attempt, got %d", item.ID, item.Attempts)
		}
	}
}

func TestRunVerifierErrorCountsAsRejection(t *testing.T) {
	var once sync.Once
	verifier := VerifierFunc(func(_ context.Context, item workitem.Item) (bool, error) {
		var err error
		once.Do(func() { err = errors.New("judge unavailable") })
		if err != nil {
			return false, err
		}
		return true, nil
	})
	result, err := runPipeline(t, echoCaller(), Options{Workers: 1, VerifyWorkers: 1, Verifier: verifier}, testItems(2), 5*time.Second)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Items) != 2 || result.Requeues != 1 || result.Attempts != 3 {
		t.Fatalf("unexpected result: items=%d requeues=%d attempts=%d", len(result.Items), result.Requeues, result.Attempts)
	}
}

func TestRunAlwaysRejectNeverTerminates(t *testing.T) {
	// Unbounded retry keeps a batch alive when the verifier never accepts.
	// The watchdog deadline is the only way out.
	verifier := VerifierFunc(func(context.Context, workitem.Item) (bool, error) { return false, nil })
	result, err := runPipeline(t, echoCaller(), Options{Workers: 2, Verifier: verifier}, testItems(2), 200*time.Millisecond)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected the watchdog to fire, got %v", err)
	}
	if len(result.Items) != 0 {
		t.Fatalf("expected no accepted items, got %d", len(result.Items))
	}
	if result.Attempts <= 2 {
		t.Fatalf("expected repeated dispatch attempts, got %d", result.Attempts)
	}
}

func TestRunMaxAttemptsAbandonsPermanentFailure(t *testing.T) {
	caller := CallerFunc(func(_ context.Context, item workitem.Item) (workitem.Message, error) {
		if item.ID == 0 {
			return workitem.Message{}, errors.New("http 400: context too long")
		}
		return workitem.Message{Role: workitem.RoleAssistant, Content: "ok"}, nil
	})
	writer := newRecordingWriter()
	result, err := runPipeline(t, caller, Options{
		Workers:       2,
		MaxAttempts:   3,
		OutputPath:    "out.jsonl",
		AbandonedPath: "out.jsonl.abandoned",
		Writer:        writer,
	}, testItems(4), 5*time.Second)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Items) != 3 {
		t.Fatalf("expected 3 completed items, got %d", len(result.Items))
	}
	if len(result.Abandoned) != 1 || result.Abandoned[0].ID != 0 {
		t.Fatalf("expected item 0 to be abandoned, got %+v", result.Abandoned)
	}
	if result.Abandoned[0].Attempts != 3 {
		t.Fatalf("expected 3 attempts on abandoned item, got %d", result.Abandoned[0].Attempts)
	}
	if got := writer.sizes("out.jsonl.abandoned"); len(got) != 1 || got[0] != 1 {
		t.Fatalf("expected abandoned write of 1 item, got %v", got)
	}
	if got := writer.sizes("out.jsonl"); len(got) != 1 || got[0] != 3 {
		t.Fatalf("expected final write of 3 items, got %v", got)
	}
}

func TestRunMaxAttemptsAppliesToRejections(t *testing.T) {
	verifier := VerifierFunc(func(context.Context, workitem.Item) (bool, error) { return false, nil })
	result, err := runPipeline(t, echoCaller(), Options{Workers: 1, Verifier: verifier, MaxAttempts: 2}, testItems(2), 5*time.Second)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Items) != 0 || len(result.Abandoned) != 2 {
		t.Fatalf("expected everything abandoned, got %d done / %d abandoned", len(result.Items), len(result.Abandoned))
	}
	for _, item := range result.Abandoned {
		if len(item.Messages) != 1 {
			t.Fatalf("abandoned item %d should be the original request", item.ID)
		}
	}
}

func TestRunAcceptsEmptyReplyWithoutVerifier(t *testing.T) {
	var calls callLog
	caller := CallerFunc(func(_ context.Context, item workitem.Item) (workitem.Message, error) {
		calls.record(item.ID)
		return workitem.Message{Role: workitem.RoleAssistant, Content: "", Reasoning: "ran out of tokens"}, nil
	})
	result, err := runPipeline(t, caller, Options{Workers: 2}, testItems(3), 5*time.Second)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Items) != 3 || result.Requeues != 0 {
		t.Fatalf("expected 3 items with no requeues, got %d items / %d requeues", len(result.Items), result.Requeues)
	}
	for _, item := range result.Items {
		if calls.count(item.ID) != 1 {
			t.Fatalf("item %d dispatched %d times", item.ID, calls.count(item.ID))
		}
		msg, ok := item.LastReply()
		if !ok || msg.Content != "" || msg.Reasoning != "ran out of tokens" {
			t.Fatalf("item %d: unexpected reply %+v", item.ID, msg)
		}
	}
}

func TestRunVerifierRejectsEmptyReply(t *testing.T) {
	caller := CallerFunc(func(_ context.Context, item workitem.Item) (workitem.Message, error) {
		if item.ID == 1 {
			return workitem.Message{Role: workitem.RoleAssistant}, nil
		}
		return workitem.Message{Role: workitem.RoleAssistant, Content: "ok"}, nil
	})
	verifier := VerifierFunc(func(_ context.Context, item workitem.Item) (bool, error) {
		msg, _ := item.LastReply()
		return strings.TrimSpace(msg.Content) != "", nil
	})
	result, err := runPipeline(t, caller, Options{Workers: 1, Verifier: verifier, MaxAttempts: 2}, testItems(3), 5*time.Second)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 accepted items, got %d", len(result.Items))
	}
	if len(result.Abandoned) != 1 || result.Abandoned[0].ID != 1 {
		t.Fatalf("expected item 1 to be abandoned, got %+v", result.Abandoned)
	}
}

func TestRunCheckpointsAreMonotonic(t *testing.T) {
	const total = 8
	caller := CallerFunc(func(ctx context.Context, item workitem.Item) (workitem.Message, error) {
		select {
		case <-ctx.Done():
			return workitem.Message{}, ctx.Err()
		case <-time.After(5 * time.Millisecond):
		}
		return workitem.Message{Role: workitem.RoleAssistant, Content: "ok"}, nil
	})
	writer := newRecordingWriter()
	result, err := runPipeline(t, caller, Options{
		Workers:            1,
		CheckpointInterval: 2,
		CheckpointPath:     "out.jsonl.checkpoint",
		Writer:             writer,
	}, testItems(total), 5*time.Second)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	sizes := writer.sizes("out.jsonl.checkpoint")
	if len(sizes) == 0 {
		t.Fatal("expected at least one checkpoint")
	}
	for i := 1; i < len(sizes); i++ {
		if sizes[i] < sizes[i-1] {
			t.Fatalf("checkpoint sizes decreased: %v", sizes)
		}
	}
	if last := sizes[len(sizes)-1]; last > total {
		t.Fatalf("checkpoint holds %d items, more than the batch", last)
	}
	if result.Checkpoints != int64(len(sizes)) {
		t.Fatalf("expected %d checkpoints counted, got %d", len(sizes), result.Checkpoints)
	}
}

func TestRunSkipsCheckpointAtCompletion(t *testing.T) {
	writer := newRecordingWriter()
	result, err := runPipeline(t, echoCaller(), Options{
		Workers:            1,
		CheckpointInterval: 5,
		CheckpointPath:     "out.jsonl.checkpoint",
		OutputPath:         "out.jsonl",
		Writer:             writer,
	}, testItems(5), 5*time.Second)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := writer.sizes("out.jsonl.checkpoint"); len(got) != 0 {
		t.Fatalf("expected no checkpoint once the batch completed, got %v", got)
	}
	if result.Checkpoints != 0 {
		t.Fatalf("expected 0 checkpoints, got %d", result.Checkpoints)
	}
	if got := writer.sizes("out.jsonl"); len(got) != 1 || got[0] != 5 {
		t.Fatalf("expected final write of 5 items, got %v", got)
	}
}

func TestRunCheckpointFailureIsNotFatal(t *testing.T) {
	writer := newRecordingWriter()
	writer.fail = errors.New("disk full")
	result, err := runPipeline(t, echoCaller(), Options{
		Workers:            2,
		CheckpointInterval: 1,
		CheckpointPath:     "cp",
		OutputPath:         "out",
		Writer:             writer,
	}, testItems(5), 5*time.Second)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(result.Items) != 5 {
		t.Fatalf("expected 5 items, got %d", len(result.Items))
	}
	if result.PersistErr == nil || !strings.Contains(result.PersistErr.Error(), "disk full") {
		t.Fatalf("expected final write failure to be reported, got %v", result.PersistErr)
	}
}

func TestRunCancellationStopsWithoutFinalWrite(t *testing.T) {
	started := make(chan struct{}, 1)
	caller := CallerFunc(func(ctx context.Context, item workitem.Item) (workitem.Message, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return workitem.Message{}, ctx.Err()
	})
	writer := newRecordingWriter()
	p, err := New(caller, Options{Workers: 2, OutputPath: "out", Writer: writer})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()
	_, err = p.Run(ctx, testItems(3))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := writer.sizes("out"); len(got) != 0 {
		t.Fatalf("expected no final write, got %v", got)
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"no workers", Options{}},
		{"negative verify workers", Options{Workers: 1, VerifyWorkers: -1}},
		{"checkpoint without writer", Options{Workers: 1, CheckpointInterval: 5, CheckpointPath: "cp"}},
		{"checkpoint without path", Options{Workers: 1, CheckpointInterval: 5, Writer: newRecordingWriter()}},
		{"output without writer", Options{Workers: 1, OutputPath: "out"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(echoCaller(), tt.opts)
			if !errors.Is(err, services.ErrConfiguration) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
	if _, err := New(nil, Options{Workers: 1}); err == nil {
		t.Fatal("expected error for nil caller")
	}
}

func TestTopologyListsEnabledStagesInOrder(t *testing.T) {
	verifier := VerifierFunc(func(context.Context, workitem.Item) (bool, error) { return true, nil })
	p, err := New(echoCaller(), Options{
		Workers:            4,
		Verifier:           verifier,
		CheckpointInterval: 10,
		CheckpointPath:     "cp",
		Writer:             newRecordingWriter(),
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	want := []StageInfo{
		{Name: StageDispatch, Workers: 4},
		{Name: StageVerify, Workers: 4},
		{Name: StageCollect, Workers: 1},
		{Name: StageCheckpoint, Workers: 1},
	}
	got := p.Topology()
	if len(got) != len(want) {
		t.Fatalf("expected %d stages, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("stage %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}

	minimal, err := New(echoCaller(), Options{Workers: 2})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if stages := minimal.Topology(); len(stages) != 2 || stages[0].Name != StageDispatch || stages[1].Name != StageCollect {
		t.Fatalf("unexpected minimal topology %v", stages)
	}
}

type countingObserver struct {
	NopObserver
	mu       sync.Mutex
	accepted []int
	requeued int
}

func (o *countingObserver) Accepted(completed, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.accepted = append(o.accepted, completed)
}

func (o *countingObserver) Requeued(string, string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requeued++
}

func TestObserverSeesEveryAcceptance(t *testing.T) {
	obs := &countingObserver{}
	_, err := runPipeline(t, echoCaller(), Options{Workers: 4, Observer: Observers(nil, obs)}, testItems(10), 5*time.Second)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.accepted) != 10 {
		t.Fatalf("expected 10 acceptances, got %d", len(obs.accepted))
	}
	seen := make(map[int]bool)
	for _, n := range obs.accepted {
		if n < 1 || n > 10 || seen[n] {
			t.Fatalf("unexpected counter values %v", obs.accepted)
		}
		seen[n] = true
	}
}
