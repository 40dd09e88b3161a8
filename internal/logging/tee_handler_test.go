package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"
)

func TestTeeHandlerCollapsesTrivialInputs(t *testing.T) {
	if _, ok := TeeHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	var buf bytes.Buffer
	inner := slog.NewJSONHandler(&buf, nil)
	if h := TeeHandler(nil, inner, nil); h != inner {
		t.Fatal("expected the single non-nil handler to be returned unwrapped")
	}
}

func TestTeeHandlerRoutesByLevel(t *testing.T) {
	var console, file bytes.Buffer
	h := TeeHandler(
		slog.NewJSONHandler(&console, &slog.HandlerOptions{Level: slog.LevelWarn}),
		slog.NewJSONHandler(&file, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	if !h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("expected tee to be enabled when any handler accepts debug")
	}
	logger := slog.New(h)
	logger.Debug("debug detail")
	logger.Warn("requeued")

	if bytes.Contains(console.Bytes(), []byte("debug detail")) {
		t.Fatal("warn-level handler received a debug record")
	}
	if !bytes.Contains(console.Bytes(), []byte("requeued")) {
		t.Fatal("warn-level handler missed a warning")
	}
	if !bytes.Contains(file.Bytes(), []byte("debug detail")) || !bytes.Contains(file.Bytes(), []byte("requeued")) {
		t.Fatalf("debug handler missed records: %s", file.String())
	}
}

func TestTeeHandlerPropagatesAttrsAndGroups(t *testing.T) {
	var a, b bytes.Buffer
	h := TeeHandler(slog.NewJSONHandler(&a, nil), slog.NewJSONHandler(&b, nil))
	logger := slog.New(h).With(slog.String(FieldStage, "dispatch")).WithGroup("reply")
	logger.Info("accepted", slog.Int("chars", 12))

	for name, buf := range map[string]*bytes.Buffer{"first": &a, "second": &b} {
		out := buf.Bytes()
		if !bytes.Contains(out, []byte(`"stage":"dispatch"`)) {
			t.Fatalf("%s handler missing stage attr: %s", name, out)
		}
		if !bytes.Contains(out, []byte(`"reply":{"chars":12}`)) {
			t.Fatalf("%s handler missing grouped attr: %s", name, out)
		}
	}
}

type failingHandler struct{ err error }

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h failingHandler) Handle(context.Context, slog.Record) error { return h.err }

func (h failingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h failingHandler) WithGroup(string) slog.Handler { return h }

func TestTeeHandlerKeepsWritingAfterFailure(t *testing.T) {
	var console bytes.Buffer
	diskFull := errors.New("disk full")
	h := TeeHandler(failingHandler{err: diskFull}, slog.NewJSONHandler(&console, nil))
	record := slog.NewRecord(time.Now(), slog.LevelWarn, "checkpoint write failed", 0)
	err := h.Handle(context.Background(), record)
	if !errors.Is(err, diskFull) {
		t.Fatalf("expected joined disk error, got %v", err)
	}
	if !bytes.Contains(console.Bytes(), []byte("checkpoint write failed")) {
		t.Fatal("console handler skipped after the file handler failed")
	}
}
