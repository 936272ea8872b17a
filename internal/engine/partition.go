package engine

import "sync/atomic"

// Stream is one execution lane of a batch: every item of one size class,
// processed by Concurrency workers that share the queue.
type Stream struct {
	queue       []*Item
	cursor      atomic.Int64
	Class       SizeClass
	Concurrency int
	BufferSize  int
}

// Len returns the number of items partitioned into the stream.
func (s *Stream) Len() int { return len(s.queue) }

// Items returns the stream's queue in order. The slice must not be modified.
func (s *Stream) Items() []*Item { return s.queue }

// pop hands out the next unclaimed item, or nil when the queue is drained.
// Safe for concurrent callers; each item is returned at most once.
func (s *Stream) pop() *Item {
	i := s.cursor.Add(1) - 1
	if i >= int64(len(s.queue)) {
		return nil
	}
	return s.queue[i]
}

// remaining returns the items no worker has claimed. Only meaningful once
// all workers have exited.
func (s *Stream) remaining() []*Item {
	i := s.cursor.Load()
	if i >= int64(len(s.queue)) {
		return nil
	}
	return s.queue[i:]
}

// Partition splits items into at most one stream per size class present,
// preserving input order within each stream. parallelism is the processor
// ceiling P; concurrency per stream is
//
//	all large:  max(1, min(P, 2))
//	none large: P
//	mixed:      max(1, P/2)
//
// Run concurrently, the streams together never exceed P workers, except
// for a mixed batch at P=1; Lanes serializes the streams in that case.
func Partition(items []*Item, parallelism int, policy ClassPolicy) []*Stream {
	if len(items) == 0 {
		return nil
	}
	if parallelism < 1 {
		parallelism = 1
	}

	var large int
	for _, it := range items {
		if policy.IsLarge(it.Size) {
			large++
		}
	}
	mixed := large > 0 && large < len(items)

	var concurrency int
	switch {
	case large == len(items):
		concurrency = max(1, min(parallelism, 2))
	case large == 0:
		concurrency = parallelism
	default:
		concurrency = max(1, parallelism/2)
	}

	byClass := make(map[SizeClass]*Stream, 2)
	for _, it := range items {
		c := policy.Classify(it.Size, mixed)
		s, ok := byClass[c.Class]
		if !ok {
			s = &Stream{Class: c.Class, Concurrency: concurrency, BufferSize: c.BufferSize}
			byClass[c.Class] = s
		}
		s.queue = append(s.queue, it)
	}

	// Large files first so their long reads start as early as possible.
	streams := make([]*Stream, 0, len(byClass))
	for _, class := range []SizeClass{Large, Medium, Small} {
		if s, ok := byClass[class]; ok {
			streams = append(streams, s)
		}
	}
	return streams
}

// Lanes returns how many streams may run at once so that the workers of the
// running streams never exceed parallelism. It is len(streams) when their
// concurrency budgets fit the ceiling, otherwise 1: every single stream
// fits on its own.
func Lanes(streams []*Stream, parallelism int) int {
	parallelism = max(parallelism, 1)
	total := 0
	for _, s := range streams {
		total += s.Concurrency
	}
	if total <= parallelism {
		return len(streams)
	}
	return 1
}
