package pipeline

import "sync"

// Counter is the shared completion count. Every read-modify-write runs as a
// single critical section, and each change wakes all current waiters.
type Counter struct {
	mu      sync.Mutex
	value   int
	changed chan struct{}
}

// NewCounter returns a counter starting at zero.
func NewCounter() *Counter {
	return &Counter{changed: make(chan struct{})}
}

// Get returns the current value.
func (c *Counter) Get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value
}

// Set replaces the value.
func (c *Counter) Set(value int) {
	c.Update(func(int) int { return value })
}

// Increment adds one and returns the new value.
func (c *Counter) Increment() int {
	return c.Update(func(v int) int { return v + 1 })
}

// Update applies fn to the current value under the lock and stores the
// result. fn must not call back into the counter.
func (c *Counter) Update(fn func(int) int) int {
	c.mu.Lock()
	c.value = fn(c.value)
	value := c.value
	done := c.changed
	c.changed = make(chan struct{})
	c.mu.Unlock()
	close(done)
	return value
}

// Changed returns a channel closed on the next mutation.
func (c *Counter) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}
