package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/bamsammich/beamsum/internal/event"
	"github.com/bamsammich/beamsum/internal/platform"
	"github.com/bamsammich/beamsum/internal/stats"
)

// SizeLimit excludes items larger than MaxBytes before partitioning.
type SizeLimit struct {
	Enabled  bool
	MaxBytes int64
}

// Timeout bounds the processing time of each item.
type Timeout struct {
	Enabled  bool
	Duration time.Duration
}

// Policy holds the user-facing limits of a batch.
type Policy struct {
	SizeLimit        SizeLimit
	Timeout          Timeout
	SampleThroughput bool
}

// Sink receives progress while a batch runs and the summary once it ends.
// Progress is called from the sampling goroutine only.
type Sink interface {
	Progress(stats.Snapshot)
	Complete(Summary)
}

// Config describes a batch.
type Config struct {
	Hasher       HashComputer // defaults to a FileHasher
	Sink         Sink
	Logger       *slog.Logger
	Events       chan<- event.Event
	Journal      *Journal
	Classes      ClassPolicy
	Policy       Policy
	Mode         Mode
	Parallelism  int // processor ceiling; defaults to platform.Parallelism
	TickInterval time.Duration
	// WriteSidecars writes <path>.<alg> next to every file hashed in Create mode.
	WriteSidecars bool
}

// Outcome tells a finished run apart from a cancelled one.
type Outcome int

const (
	OutcomeResult Outcome = iota
	OutcomeCancelled
)

func (o Outcome) String() string {
	if o == OutcomeCancelled {
		return "cancelled"
	}
	return "completed"
}

// Summary is the final report of a batch.
type Summary struct {
	RunID     string
	Mode      Mode
	Outcome   Outcome
	Total     int64
	Success   int64
	Failure   int64
	Cancelled int64
	Excluded  int64
	BytesRead int64
	Duration  time.Duration
}

// Processed is the number of items that reached a terminal state.
func (s Summary) Processed() int64 { return s.Success + s.Failure + s.Cancelled }

// Batch is a running hash or verify operation over a fixed set of items.
type Batch struct {
	cfg       Config
	log       *slog.Logger
	canc      *canceller
	collector *stats.Collector
	tmp       *tmpRegistry
	done      chan struct{}
	runID     string
	items     []*Item
	excluded  []*Item
	streams   []*Stream
	started   time.Time
	summary   Summary
}

// Run starts a batch and blocks until it is over.
func Run(ctx context.Context, cfg Config, items []*Item) Summary {
	return Start(ctx, cfg, items).Wait()
}

// Start admits items, partitions them into streams and begins processing in
// the background. Items are reset to Ready first, so the same items may be
// run again by a later batch once this one is over.
func Start(ctx context.Context, cfg Config, items []*Item) *Batch {
	if cfg.Hasher == nil {
		cfg.Hasher = NewFileHasher(0)
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = platform.Parallelism()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = stats.DefaultInterval
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}

	var timeout time.Duration
	if cfg.Policy.Timeout.Enabled {
		timeout = cfg.Policy.Timeout.Duration
	}

	b := &Batch{
		cfg:       cfg,
		runID:     uuid.NewString(),
		canc:      newCanceller(ctx, timeout),
		collector: stats.NewCollector(),
		tmp:       &tmpRegistry{},
		done:      make(chan struct{}),
		started:   time.Now(),
	}
	b.log = log.With("run", b.runID, "mode", cfg.Mode.String())
	b.collector.EnableThroughput(cfg.Policy.SampleThroughput)

	b.admit(items)
	if cfg.Mode == Verify {
		b.loadSidecars()
	}
	b.streams = Partition(b.items, cfg.Parallelism, cfg.Classes)

	var totalBytes int64
	for _, it := range b.items {
		totalBytes += it.Size
	}
	b.collector.SetTotals(int64(len(b.items)), totalBytes)

	for _, s := range b.streams {
		b.log.Debug("stream",
			"class", s.Class.String(),
			"items", s.Len(),
			"concurrency", s.Concurrency,
			"buffer", s.BufferSize,
		)
	}
	b.log.Info("batch started",
		"items", len(b.items),
		"excluded", len(b.excluded),
		"streams", len(b.streams),
		"parallelism", cfg.Parallelism,
	)
	b.emit(event.Event{Type: event.BatchStarted, Size: int64(len(b.items))})

	go b.run()
	return b
}

// admit resets every item and sets aside those over the size limit.
func (b *Batch) admit(items []*Item) {
	limit := b.cfg.Policy.SizeLimit
	b.items = make([]*Item, 0, len(items))
	for _, it := range items {
		it.Reset()
		if it.Algorithm == "" {
			it.Algorithm = DefaultAlgorithm
		}
		if limit.Enabled && it.Size > limit.MaxBytes {
			it.Err = &ItemError{
				Kind: KindSizeLimitExceeded,
				Path: it.Path,
				Err:  fmt.Errorf("%d bytes over the %d byte limit", it.Size, limit.MaxBytes),
			}
			it.Status = "excluded: size limit exceeded"
			b.excluded = append(b.excluded, it)
			b.collector.AddExcluded(1)
			b.emitItem(event.ItemExcluded, it, nil, 0)
			continue
		}
		b.items = append(b.items, it)
		b.emitItem(event.ItemAdded, it, nil, 0)
	}
}

// loadSidecars fills the expected digest of items that have none. An inline
// expected digest always wins over a sidecar.
func (b *Batch) loadSidecars() {
	for _, it := range b.items {
		it.sidecarErr = nil
		if it.Expected != "" {
			continue
		}
		digest, err := ReadSidecar(it.Path, it.Algorithm)
		if err != nil {
			if !errors.Is(err, ErrNoSidecar) {
				b.log.Warn("sidecar unreadable", "path", it.Path, "error", err)
			}
			it.sidecarErr = err
			continue
		}
		it.Expected = digest
	}
}

func (b *Batch) run() {
	defer close(b.done)

	progressCtx, stopProgress := context.WithCancel(context.Background())
	progressDone := make(chan struct{})
	go func() {
		defer close(progressDone)
		if b.cfg.Sink != nil {
			b.collector.Run(progressCtx, b.cfg.TickInterval, b.cfg.Sink.Progress)
		}
	}()

	var g errgroup.Group
	// Streams start in order, so a serialized batch runs Large first.
	g.SetLimit(max(Lanes(b.streams, b.cfg.Parallelism), 1))
	for _, s := range b.streams {
		g.Go(func() error {
			newExecutor(b, s).run()
			return nil
		})
	}
	_ = g.Wait() // streams never fail; item errors live on the items

	b.finalize()

	stopProgress()
	<-progressDone
	final := b.collector.Sample()
	if b.cfg.Sink != nil {
		b.cfg.Sink.Progress(final)
	}

	if n := b.tmp.cleanup(); n > 0 {
		b.log.Warn("removed leftover sidecar temp files", "count", n)
	}
	if b.cfg.Journal != nil {
		if err := b.cfg.Journal.Flush(); err != nil {
			b.log.Error("journal flush failed", "error", err)
		}
	}

	b.summary = Summary{
		RunID:     b.runID,
		Mode:      b.cfg.Mode,
		Total:     final.Total,
		Success:   final.Success,
		Failure:   final.Failure,
		Cancelled: final.Cancelled,
		Excluded:  b.collector.Excluded(),
		BytesRead: final.BytesRead,
		Duration:  time.Since(b.started),
	}
	typ := event.BatchCompleted
	if b.summary.Cancelled > 0 {
		b.summary.Outcome = OutcomeCancelled
		typ = event.BatchCancelled
	}
	b.canc.close()

	b.log.Info("batch "+b.summary.Outcome.String(),
		"success", b.summary.Success,
		"failure", b.summary.Failure,
		"cancelled", b.summary.Cancelled,
		"excluded", b.summary.Excluded,
		"duration", b.summary.Duration,
	)
	b.emit(event.Event{Type: typ, Size: b.summary.Total, Duration: b.summary.Duration})

	if b.cfg.Sink != nil {
		b.cfg.Sink.Complete(b.summary)
	}
}

// finalize cancels every item still Ready once all workers have exited.
// After it returns no item of the batch is Ready or Processing.
func (b *Batch) finalize() {
	status := cancelStatus(b.canc.cause())
	for _, it := range b.items {
		if it.State() != Ready {
			continue
		}
		it.Status = status
		it.Err = &ItemError{Kind: KindCancelled, Path: it.Path, Err: b.finalCause(it)}
		if err := it.transition(Ready, Cancelled); err != nil {
			b.log.Error("finalize", "error", err)
			continue
		}
		b.complete(it, nil, 0)
	}
}

func (b *Batch) finalCause(it *Item) error {
	if it.doomed.Load() {
		return ErrItemCancelled
	}
	if cause := b.canc.cause(); cause != nil {
		return cause
	}
	return ErrBatchCancelled
}

// Wait blocks until the batch is over and returns its summary.
func (b *Batch) Wait() Summary {
	<-b.done
	return b.summary
}

// Done is closed once the batch is over.
func (b *Batch) Done() <-chan struct{} { return b.done }

// Cancel stops the batch cooperatively: no new item starts, in-flight items
// observe cancellation at their next read, and Ready items end Cancelled.
func (b *Batch) Cancel() {
	b.log.Info("cancel requested")
	b.canc.cancel()
}

// ForceCancel cancels every in-flight item directly and stops the batch. It
// returns the number of in-flight items signalled.
func (b *Batch) ForceCancel() int {
	n := b.canc.forceCancel()
	b.log.Warn("force cancel", "inflight", n)
	return n
}

// CancelItem cancels a single item of the batch without touching its
// siblings. It reports false if the item already finished.
func (b *Batch) CancelItem(it *Item) bool {
	return b.canc.cancelItem(it)
}

// RunID identifies the batch in logs, events and the journal.
func (b *Batch) RunID() string { return b.runID }

// Items returns the admitted items in input order.
func (b *Batch) Items() []*Item { return b.items }

// Excluded returns the items kept out by the size limit.
func (b *Batch) Excluded() []*Item { return b.excluded }

// Streams returns the batch's streams, large first.
func (b *Batch) Streams() []*Stream { return b.streams }

// Stats returns a current progress snapshot.
func (b *Batch) Stats() stats.Snapshot { return b.collector.Snapshot() }

func (b *Batch) emit(e event.Event) {
	e.RunID = b.runID
	emitEvent(b.cfg.Events, e)
}

func (b *Batch) emitItem(typ event.Type, it *Item, s *Stream, workerID int) {
	e := event.Event{
		Type:      typ,
		Path:      it.Path,
		Algorithm: it.Algorithm.String(),
		Size:      it.Size,
		Status:    it.Status,
		Error:     it.Err,
		Duration:  it.Duration,
		WorkerID:  workerID,
	}
	if s != nil {
		e.Stream = s.Class.String()
	}
	if typ == event.ItemHashed || typ == event.ItemVerified {
		e.Digest = it.Digest
	}
	b.emit(e)
}

// emitEvent never blocks: a full or missing channel drops the event.
func emitEvent(ch chan<- event.Event, e event.Event) {
	if ch == nil {
		return
	}
	e.Timestamp = time.Now()
	select {
	case ch <- e:
	default:
	}
}
