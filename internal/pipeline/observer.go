package pipeline

import (
	"time"

	"chatbatch/internal/workitem"
)

// Observer receives pipeline events. Methods are called from worker
// goroutines and must be safe for concurrent use.
type Observer interface {
	// AttemptFinished reports one dispatch call or verification.
	AttemptFinished(stage string, err error, elapsed time.Duration)
	// Requeued reports an item sent back to the input queue.
	Requeued(stage, reason string)
	// Accepted reports the completion counter after an increment.
	Accepted(completed, total int)
	Abandoned(item workitem.Item)
	Checkpointed(items int, err error)
}

// NopObserver ignores all events.
type NopObserver struct{}

func (NopObserver) AttemptFinished(string, error, time.Duration) {}
func (NopObserver) Requeued(string, string)                      {}
func (NopObserver) Accepted(int, int)                            {}
func (NopObserver) Abandoned(workitem.Item)                      {}
func (NopObserver) Checkpointed(int, error)                      {}

type multiObserver []Observer

// Observers fans events out to every non-nil observer.
func Observers(observers ...Observer) Observer {
	filtered := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	switch len(filtered) {
	case 0:
		return NopObserver{}
	case 1:
		return filtered[0]
	default:
		return filtered
	}
}

func (m multiObserver) AttemptFinished(stage string, err error, elapsed time.Duration) {
	for _, o := range m {
		o.AttemptFinished(stage, err, elapsed)
	}
}

func (m multiObserver) Requeued(stage, reason string) {
	for _, o := range m {
		o.Requeued(stage, reason)
	}
}

func (m multiObserver) Accepted(completed, total int) {
	for _, o := range m {
		o.Accepted(completed, total)
	}
}

func (m multiObserver) Abandoned(item workitem.Item) {
	for _, o := range m {
		o.Abandoned(item)
	}
}

func (m multiObserver) Checkpointed(items int, err error) {
	for _, o := range m {
		o.Checkpointed(items, err)
	}
}
