package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCancellerBatchCancel(t *testing.T) {
	c := newCanceller(context.Background(), 0)
	defer c.close()

	ctx, release := c.arm(NewItem("a", 1, SHA256))
	defer release()

	assert.False(t, c.stopped())
	assert.NoError(t, c.cause())

	c.cancel()
	assert.True(t, c.stopped())
	assert.ErrorIs(t, c.cause(), ErrBatchCancelled)
	<-ctx.Done()
	assert.ErrorIs(t, context.Cause(ctx), ErrBatchCancelled)
}

func TestCancellerParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	c := newCanceller(parent, 0)
	defer c.close()

	cancel()
	assert.True(t, c.stopped())
	assert.ErrorIs(t, c.cause(), context.Canceled)
}

func TestCancellerTimeoutIsPerItem(t *testing.T) {
	c := newCanceller(context.Background(), 10*time.Millisecond)
	defer c.close()

	ctx, release := c.arm(NewItem("a", 1, SHA256))
	defer release()

	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("item did not time out")
	}
	assert.ErrorIs(t, context.Cause(ctx), ErrItemTimeout)
	assert.False(t, c.stopped(), "a timeout must not stop the batch")
}

func TestCancellerReleaseDisarms(t *testing.T) {
	c := newCanceller(context.Background(), 0)
	defer c.close()

	it := NewItem("a", 1, SHA256)
	ctx, release := c.arm(it)
	assert.Equal(t, 1, c.inflight())

	release()
	assert.Equal(t, 0, c.inflight())
	assert.Error(t, ctx.Err())
}

func TestCancellerCancelItemInflight(t *testing.T) {
	c := newCanceller(context.Background(), 0)
	defer c.close()

	a, b := NewItem("a", 1, SHA256), NewItem("b", 1, SHA256)
	ctxA, releaseA := c.arm(a)
	defer releaseA()
	ctxB, releaseB := c.arm(b)
	defer releaseB()

	assert.True(t, c.cancelItem(a))
	assert.ErrorIs(t, context.Cause(ctxA), ErrItemCancelled)
	assert.NoError(t, ctxB.Err())
	assert.False(t, c.stopped())
}

func TestCancellerCancelItemReady(t *testing.T) {
	c := newCanceller(context.Background(), 0)
	defer c.close()

	it := NewItem("a", 1, SHA256)
	assert.True(t, c.cancelItem(it))
	assert.True(t, it.doomed.Load())
}

func TestCancellerCancelItemFinished(t *testing.T) {
	c := newCanceller(context.Background(), 0)
	defer c.close()

	it := NewItem("a", 1, SHA256)
	require.NoError(t, it.transition(Ready, Processing))
	require.NoError(t, it.finish(Success, "ok", nil, 0))
	assert.False(t, c.cancelItem(it))
}

func TestCancellerCancelItemBeforeArm(t *testing.T) {
	c := newCanceller(context.Background(), 0)
	defer c.close()

	// Dequeued by a worker that has not armed it yet.
	it := NewItem("a", 1, SHA256)
	require.NoError(t, it.transition(Ready, Processing))
	assert.True(t, c.cancelItem(it))

	ctx, release := c.arm(it)
	defer release()
	assert.ErrorIs(t, context.Cause(ctx), ErrItemCancelled)
}

func TestCancellerCancelItemAfterRelease(t *testing.T) {
	c := newCanceller(context.Background(), 0)
	defer c.close()

	it := NewItem("a", 1, SHA256)
	require.NoError(t, it.transition(Ready, Processing))
	_, release := c.arm(it)
	release()

	assert.False(t, c.cancelItem(it), "work is over, only the state store remains")
	assert.False(t, it.doomed.Load())

	it.Reset()
	assert.True(t, c.cancelItem(it), "a reset item is cancellable again")
}

func TestCancellerForceCancel(t *testing.T) {
	c := newCanceller(context.Background(), 0)
	defer c.close()

	var ctxs []context.Context
	for _, name := range []string{"a", "b", "c"} {
		ctx, release := c.arm(NewItem(name, 1, SHA256))
		defer release()
		ctxs = append(ctxs, ctx)
	}

	assert.Equal(t, 3, c.forceCancel())
	assert.True(t, c.stopped())
	assert.ErrorIs(t, c.cause(), ErrForceCancelled)
	for _, ctx := range ctxs {
		assert.ErrorIs(t, context.Cause(ctx), ErrForceCancelled)
	}

	// Items armed after the force are cancelled immediately.
	late, release := c.arm(NewItem("late", 1, SHA256))
	defer release()
	assert.Error(t, late.Err())
}

func TestCancelStatus(t *testing.T) {
	tests := []struct {
		cause error
		want  string
	}{
		{cause: ErrItemTimeout, want: "cancelled: timed out"},
		{cause: ErrForceCancelled, want: "cancelled: force cancelled"},
		{cause: ErrItemCancelled, want: "cancelled: by request"},
		{cause: ErrBatchCancelled, want: "cancelled: batch cancelled"},
		{cause: nil, want: "cancelled: batch cancelled"},
		{cause: &ItemError{Kind: KindCancelled, Err: ErrItemTimeout}, want: "cancelled: timed out"},
		{cause: errors.New("shutdown"), want: "cancelled: shutdown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cancelStatus(tt.cause))
	}
}
