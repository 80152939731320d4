// Package progress holds the byte counter shared by the workers of one download.
//
// Workers call Add after each piece is durably written. Observers either poll
// Current or wait on Changed, which is closed on the next update, so completion
// can be awaited without a sampling loop.
package progress

import (
	"context"
	"sync"
)

type Counter struct {
	total int64 // immutable

	mu      sync.RWMutex
	current int64
	changed chan struct{}
}

func NewCounter(total int64) *Counter {
	return &Counter{
		total:   total,
		changed: make(chan struct{}),
	}
}

// Add records n written bytes. Non-positive values are ignored so the
// counter never goes backwards.
func (c *Counter) Add(n int64) {
	if n <= 0 {
		return
	}
	c.mu.Lock()
	c.current += n
	notify := c.changed
	c.changed = make(chan struct{})
	c.mu.Unlock()
	close(notify)
}

func (c *Counter) Current() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

func (c *Counter) Total() int64 {
	return c.total
}

// Complete reports whether every byte has been counted. It says nothing about
// whether the download succeeded; that is the job's result.
func (c *Counter) Complete() bool {
	return c.Current() >= c.total
}

// Changed returns a channel closed by the next Add.
func (c *Counter) Changed() <-chan struct{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.changed
}

// Snapshot returns the current value together with the channel that signals
// the next change, read under one lock so no update is missed between them.
func (c *Counter) Snapshot() (int64, <-chan struct{}) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.changed
}

// WaitFor blocks until at least target bytes are counted or ctx is done.
func (c *Counter) WaitFor(ctx context.Context, target int64) error {
	for {
		current, changed := c.Snapshot()
		if current >= target {
			return nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
