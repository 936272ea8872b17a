package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/bamsammich/beamsum/internal/event"
)

// executor runs one stream: exactly Concurrency workers sharing the
// stream's queue.
type executor struct {
	b *Batch
	s *Stream
}

func newExecutor(b *Batch, s *Stream) *executor {
	return &executor{b: b, s: s}
}

// run blocks until every worker has exited. Workers exit when the queue is
// drained or the batch is stopped; items they never claimed stay Ready for
// finalize.
func (e *executor) run() {
	var wg sync.WaitGroup
	for id := range e.s.Concurrency {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.work(id)
		}()
	}
	wg.Wait()
}

func (e *executor) work(id int) {
	for !e.b.canc.stopped() {
		it := e.s.pop()
		if it == nil {
			return
		}
		e.process(id, it)
	}
}

// outcome is the terminal result of processing one item.
type outcome struct {
	err    error
	digest string
	status string
	state  State
}

func (e *executor) process(workerID int, it *Item) {
	if err := it.transition(Ready, Processing); err != nil {
		e.b.log.Error("dequeue", "error", err)
		return
	}
	ctx, release := e.b.canc.arm(it)
	e.b.emitItem(event.ItemStarted, it, e.s, workerID)
	start := time.Now()

	var out outcome
	if it.doomed.Load() {
		out = cancelledOutcome(it, ErrItemCancelled)
	} else {
		out = e.hash(ctx, it)
	}
	release()

	it.Digest = out.digest
	if err := it.finish(out.state, out.status, out.err, time.Since(start)); err != nil {
		e.b.log.Error("finish", "error", err)
		return
	}
	e.b.complete(it, e.s, workerID)
}

func (e *executor) hash(ctx context.Context, it *Item) outcome {
	mode := e.b.cfg.Mode
	if mode == Verify && strings.TrimSpace(it.Expected) == "" {
		ie := &ItemError{Kind: KindMissingDigest, Path: it.Path}
		if it.sidecarErr != nil && !errors.Is(it.sidecarErr, ErrNoSidecar) {
			ie.Err = it.sidecarErr
		}
		return outcome{state: Failure, status: statusFor(ie), err: ie}
	}

	digest, err := e.b.cfg.Hasher.Compute(ctx, HashRequest{
		Path:       it.Path,
		Algorithm:  it.Algorithm,
		BufferSize: e.s.BufferSize,
		OnRead:     e.b.collector.AddBytesRead,
	})
	if err != nil {
		if ctx.Err() != nil {
			return cancelledOutcome(it, context.Cause(ctx))
		}
		if KindOf(err) == KindCancelled {
			return cancelledOutcome(it, err)
		}
		ie := newItemError("hash", it.Path, err)
		return outcome{state: Failure, status: statusFor(ie), err: ie}
	}

	if mode == Verify {
		if ie := checkDigest(it, digest); ie != nil {
			return outcome{state: Failure, digest: digest, status: statusFor(ie), err: ie}
		}
		return outcome{state: Success, digest: digest, status: "verified"}
	}

	if e.b.cfg.WriteSidecars {
		n, err := writeSidecar(e.b.tmp, it.Path, it.Algorithm, digest)
		if err != nil {
			ie := newItemError("sidecar", it.Path, err)
			return outcome{state: Failure, digest: digest, status: statusFor(ie), err: ie}
		}
		e.b.collector.AddBytesWritten(n)
	}
	return outcome{state: Success, digest: digest, status: "ok"}
}

func cancelledOutcome(it *Item, cause error) outcome {
	var ie *ItemError
	if errors.As(cause, &ie) && ie.Err != nil {
		cause = ie.Err
	}
	return outcome{
		state:  Cancelled,
		status: cancelStatus(cause),
		err:    &ItemError{Kind: KindCancelled, Op: "hash", Path: it.Path, Err: cause},
	}
}

// complete publishes an item that has just reached a terminal state: the
// counters first, then the journal, then the event.
func (b *Batch) complete(it *Item, s *Stream, workerID int) {
	var typ event.Type
	switch it.State() {
	case Success:
		b.collector.AddSuccess(1)
		typ = event.ItemHashed
		if b.cfg.Mode == Verify {
			typ = event.ItemVerified
		}
	case Failure:
		b.collector.AddFailure(1)
		typ = event.ItemFailed
	case Cancelled:
		b.collector.AddCancelled(1)
		typ = event.ItemCancelled
	default:
		return
	}

	if b.cfg.Journal != nil {
		if err := b.cfg.Journal.Record(b.runID, b.cfg.Mode, it); err != nil {
			b.log.Warn("journal record failed", "path", it.Path, "error", err)
		}
	}
	b.emitItem(typ, it, s, workerID)
}
