package async

import "sync/atomic"

// atomicCounter issues monotonically increasing ids starting at 1.
type atomicCounter struct{ v atomic.Uint64 }

func (c *atomicCounter) next() uint64 { return c.v.Add(1) }

// CancellationToken is a one-shot, idempotent cancellation flag shared
// between a task's spawner and its Poll implementation.
type CancellationToken struct {
	cancelled atomic.Bool
	reason    atomic.Value // string
}

// NewCancellationToken creates an un-cancelled token.
func NewCancellationToken() *CancellationToken { return &CancellationToken{} }

// Cancel marks the token cancelled, recording reason on the first call;
// subsequent calls are no-ops.
func (c *CancellationToken) Cancel(reason string) {
	if c.cancelled.CompareAndSwap(false, true) {
		c.reason.Store(reason)
	}
}

// Cancelled reports whether Cancel has been called.
func (c *CancellationToken) Cancelled() bool { return c.cancelled.Load() }

// Reason returns the reason passed to the first Cancel call, or "" if not
// cancelled.
func (c *CancellationToken) Reason() string {
	if r, ok := c.reason.Load().(string); ok {
		return r
	}
	return ""
}
