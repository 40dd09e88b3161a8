package logging

import (
	"context"
	"log/slog"
)

// levelFloor drops records below min before they reach next. The wrapped
// handler keeps its own level, so a floor can only make output quieter.
type levelFloor struct {
	next slog.Handler
	min  slog.Level
}

func (h levelFloor) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.min && h.next.Enabled(ctx, level)
}

func (h levelFloor) Handle(ctx context.Context, record slog.Record) error {
	if record.Level < h.min {
		return nil
	}
	return h.next.Handle(ctx, record)
}

func (h levelFloor) WithAttrs(attrs []slog.Attr) slog.Handler {
	return levelFloor{next: h.next.WithAttrs(attrs), min: h.min}
}

func (h levelFloor) WithGroup(name string) slog.Handler {
	return levelFloor{next: h.next.WithGroup(name), min: h.min}
}

// WithLevelOverride returns a logger that drops records below level. It backs
// --quiet, where only warnings about requeues and abandoned items remain.
// Applying it to a logger that already has a floor replaces that floor.
func WithLevelOverride(logger *slog.Logger, level slog.Level) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	next := logger.Handler()
	if floor, ok := next.(levelFloor); ok {
		next = floor.next
	}
	return slog.New(levelFloor{next: next, min: level})
}
