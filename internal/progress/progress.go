// Package progress reports how many items have been accepted. On a terminal
// it draws a progress bar; otherwise it logs sampled progress lines.
package progress

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"chatbatch/internal/logging"
	"chatbatch/internal/pipeline"
)

const description = "Processing requests"

// Reporter implements pipeline.Observer for acceptance events only.
type Reporter struct {
	pipeline.NopObserver

	mu      sync.Mutex
	bar     *progressbar.ProgressBar
	sampler *logging.ProgressSampler
	logger  *slog.Logger
	total   int
	shown   int
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// New returns a reporter for total items. A bar is drawn on w when w is a
// terminal and bar is true.
func New(total int, w io.Writer, bar bool, logger *slog.Logger) *Reporter {
	return newReporter(total, w, bar && IsTerminal(w), logger)
}

func newReporter(total int, w io.Writer, bar bool, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Reporter{
		logger: logging.NewComponentLogger(logger, "progress"),
		total:  total,
	}
	if bar {
		r.bar = newBar(total, w)
	} else {
		r.sampler = logging.NewProgressSampler(10)
	}
	return r
}

func newBar(total int, w io.Writer) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetWidth(30),
		progressbar.OptionOnCompletion(func() { _, _ = io.WriteString(w, "\n") }),
	)
}

// Accepted advances the display. Counter values can arrive out of order from
// concurrent workers, so only forward movement is shown.
func (r *Reporter) Accepted(completed, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if completed <= r.shown {
		return
	}
	r.shown = completed
	if total > 0 {
		r.total = total
	}
	if r.bar != nil {
		_ = r.bar.Set(completed)
		return
	}
	percent := -1.0
	if r.total > 0 {
		percent = float64(completed) * 100 / float64(r.total)
	}
	if !r.sampler.ShouldLog(percent, description, "") {
		return
	}
	r.logger.Info(description,
		logging.Int("completed", completed),
		logging.Int("total", r.total),
		logging.String("percent", formatPercent(percent)),
	)
}

// Finish closes the bar, if any. The bar is filled only when every item was
// accepted; an interrupted or partly abandoned run leaves it where it stopped.
func (r *Reporter) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar == nil || r.bar.IsFinished() {
		return
	}
	if r.shown >= r.total {
		_ = r.bar.Finish()
		return
	}
	_ = r.bar.Exit()
}

// Shown returns the highest completion count displayed so far.
func (r *Reporter) Shown() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.shown
}

func formatPercent(percent float64) string {
	if percent < 0 {
		return "unknown"
	}
	return strconv.FormatFloat(percent, 'f', 0, 64) + "%"
}
