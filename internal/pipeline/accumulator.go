package pipeline

import (
	"sync"

	"chatbatch/internal/workitem"
)

// Accumulator collects accepted items. The collector appends while the
// checkpointer takes snapshots concurrently.
type Accumulator struct {
	mu    sync.Mutex
	items []workitem.Item
	seen  map[int64]struct{}
}

func newAccumulator(capacity int) *Accumulator {
	return &Accumulator{
		items: make([]workitem.Item, 0, capacity),
		seen:  make(map[int64]struct{}, capacity),
	}
}

// Append adds item and reports whether its ID was already present.
func (a *Accumulator) Append(item workitem.Item) (duplicate bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, duplicate = a.seen[item.ID]
	a.seen[item.ID] = struct{}{}
	a.items = append(a.items, item)
	return duplicate
}

// Len returns the number of accumulated items.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}

// Snapshot returns a copy of the accumulated items.
func (a *Accumulator) Snapshot() []workitem.Item {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]workitem.Item, len(a.items))
	copy(out, a.items)
	return out
}
