package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// canceller owns the cancellation signals of one batch: the batch context
// and one revocable context per in-flight item.
type canceller struct {
	batch       context.Context
	cancelBatch context.CancelCauseFunc

	mu    sync.Mutex
	armed map[*Item]context.CancelCauseFunc

	timeout time.Duration
	forced  atomic.Bool
}

func newCanceller(parent context.Context, timeout time.Duration) *canceller {
	ctx, cancel := context.WithCancelCause(parent)
	return &canceller{
		batch:       ctx,
		cancelBatch: cancel,
		armed:       make(map[*Item]context.CancelCauseFunc),
		timeout:     timeout,
	}
}

// stopped reports whether workers should stop taking new items.
func (c *canceller) stopped() bool {
	return c.forced.Load() || c.batch.Err() != nil
}

// cause explains why the batch stopped, or nil if it has not.
func (c *canceller) cause() error {
	if c.forced.Load() {
		return ErrForceCancelled
	}
	if c.batch.Err() == nil {
		return nil
	}
	return context.Cause(c.batch)
}

// arm creates the per-item context for it, derived from the batch context
// and bounded by the per-item timeout when one is configured. release must
// be called once the item's work is over. An item marked by cancelItem is
// cancelled as soon as it is armed.
func (c *canceller) arm(it *Item) (ctx context.Context, release func()) {
	ctx, cancel := context.WithCancelCause(c.batch)
	var stopTimer context.CancelFunc = func() {}
	if c.timeout > 0 {
		ctx, stopTimer = context.WithTimeoutCause(ctx, c.timeout, ErrItemTimeout)
	}

	c.mu.Lock()
	c.armed[it] = cancel
	doomed := it.doomed.Load()
	c.mu.Unlock()

	if doomed {
		cancel(ErrItemCancelled)
	}
	// A force cancel that raced with arming must still reach this item.
	if c.forced.Load() {
		cancel(ErrForceCancelled)
	}

	return ctx, func() {
		c.mu.Lock()
		delete(c.armed, it)
		it.settled.Store(true)
		c.mu.Unlock()
		stopTimer()
		cancel(nil)
	}
}

// cancel stops the batch: no new items start and in-flight reads unblock
// through the batch context.
func (c *canceller) cancel() {
	c.cancelBatch(ErrBatchCancelled)
}

// cancelItem cancels one item. An armed item has its context cancelled; an
// item not armed yet, whether still Ready or between dequeue and arming, is
// marked so arm cancels it. It reports whether the item was still
// cancellable. Marking and arming share c.mu, so no request is lost.
func (c *canceller) cancelItem(it *Item) bool {
	c.mu.Lock()
	cancel, armed := c.armed[it]
	if !armed {
		if it.settled.Load() || it.State().Terminal() {
			c.mu.Unlock()
			return false
		}
		it.doomed.Store(true)
	}
	c.mu.Unlock()

	if armed {
		cancel(ErrItemCancelled)
	}
	return true
}

// forceCancel cancels every armed item context directly instead of relying
// on propagation from the batch context, then stops the batch. It returns
// the number of in-flight items it signalled.
func (c *canceller) forceCancel() int {
	c.forced.Store(true)

	c.mu.Lock()
	cancels := make([]context.CancelCauseFunc, 0, len(c.armed))
	for _, cancel := range c.armed {
		cancels = append(cancels, cancel)
	}
	c.mu.Unlock()

	for _, cancel := range cancels {
		cancel(ErrForceCancelled)
	}
	c.cancelBatch(ErrForceCancelled)
	return len(cancels)
}

// inflight returns the number of armed items.
func (c *canceller) inflight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.armed)
}

// close releases the batch context once the run is over.
func (c *canceller) close() {
	c.cancelBatch(nil)
}

// cancelStatus renders the status text for an item stopped by cause.
func cancelStatus(cause error) string {
	switch {
	case errors.Is(cause, ErrItemTimeout):
		return "cancelled: timed out"
	case errors.Is(cause, ErrForceCancelled):
		return "cancelled: force cancelled"
	case errors.Is(cause, ErrItemCancelled):
		return "cancelled: by request"
	case cause == nil, errors.Is(cause, ErrBatchCancelled):
		return "cancelled: batch cancelled"
	default:
		return "cancelled: " + cause.Error()
	}
}
