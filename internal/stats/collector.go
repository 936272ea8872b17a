package stats

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const ringSize = 60

// DefaultInterval is the sampling tick used when none is configured.
const DefaultInterval = 250 * time.Millisecond

// Collector aggregates batch progress from every worker. Workers only touch
// the atomic counters; the ring buffer is written by the sampling tick.
type Collector struct {
	success      atomic.Int64
	failure      atomic.Int64
	cancelled    atomic.Int64
	excluded     atomic.Int64
	bytesRead    atomic.Int64
	bytesWritten atomic.Int64
	filesTotal   atomic.Int64
	bytesTotal   atomic.Int64
	throughput   atomic.Bool
	startTime    time.Time
	now          func() time.Time

	// Ring buffer: written only by Tick, never by workers.
	mu          sync.Mutex
	readRates   [ringSize]float64 // bytes/sec per tick
	writeRates  [ringSize]float64
	ringIdx     int
	ringCount   int // samples written, capped at ringSize
	lastRead    int64
	lastWritten int64
	lastTick    time.Time
}

// NewCollector creates a Collector with startTime set to now.
func NewCollector() *Collector {
	return NewCollectorWithNow(time.Now)
}

// NewCollectorWithNow creates a Collector with a custom time source (for tests).
func NewCollectorWithNow(now func() time.Time) *Collector {
	if now == nil {
		now = time.Now
	}
	start := now()
	return &Collector{startTime: start, lastTick: start, now: now}
}

// SetTotals records the batch size once the batch has been partitioned.
func (c *Collector) SetTotals(files, bytes int64) {
	c.filesTotal.Store(files)
	c.bytesTotal.Store(bytes)
}

// EnableThroughput turns byte-rate sampling on or off. When off, Tick skips
// the byte counters entirely and snapshots carry no rates.
func (c *Collector) EnableThroughput(on bool) { c.throughput.Store(on) }

func (c *Collector) AddSuccess(n int64)      { c.success.Add(n) }
func (c *Collector) AddFailure(n int64)      { c.failure.Add(n) }
func (c *Collector) AddCancelled(n int64)    { c.cancelled.Add(n) }
func (c *Collector) AddExcluded(n int64)     { c.excluded.Add(n) }
func (c *Collector) AddBytesRead(n int64)    { c.bytesRead.Add(n) }
func (c *Collector) AddBytesWritten(n int64) { c.bytesWritten.Add(n) }

// Excluded returns the number of items kept out of the batch.
func (c *Collector) Excluded() int64 { return c.excluded.Load() }

// Snapshot is a point-in-time view of batch progress. Nil pointers mean
// "unknown".
type Snapshot struct {
	ETA          *time.Duration
	ReadRate     *float64 // bytes/sec since the previous tick
	WriteRate    *float64
	Processed    int64
	Total        int64
	Success      int64
	Failure      int64
	Cancelled    int64
	BytesRead    int64
	BytesWritten int64
	BytesTotal   int64
	Elapsed      time.Duration
}

// Snapshot returns the current counters. Processed is derived from the
// three outcome counters, so it always equals their sum.
func (c *Collector) Snapshot() Snapshot {
	s := Snapshot{
		Success:      c.success.Load(),
		Failure:      c.failure.Load(),
		Cancelled:    c.cancelled.Load(),
		Total:        c.filesTotal.Load(),
		BytesTotal:   c.bytesTotal.Load(),
		BytesRead:    c.bytesRead.Load(),
		BytesWritten: c.bytesWritten.Load(),
		Elapsed:      c.Elapsed(),
	}
	s.Processed = s.Success + s.Failure + s.Cancelled
	s.ETA = estimate(s.Processed, s.Total, s.Elapsed)

	if c.throughput.Load() {
		c.mu.Lock()
		if c.ringCount > 0 {
			last := (c.ringIdx - 1 + ringSize) % ringSize
			read, write := c.readRates[last], c.writeRates[last]
			s.ReadRate, s.WriteRate = &read, &write
		}
		c.mu.Unlock()
	}
	return s
}

// estimate projects the remaining time from the average item rate so far.
func estimate(processed, total int64, elapsed time.Duration) *time.Duration {
	if processed <= 0 || processed >= total || elapsed <= 0 {
		return nil
	}
	rate := float64(processed) / elapsed.Seconds()
	eta := time.Duration(float64(total-processed) / rate * float64(time.Second))
	return &eta
}

// Tick samples byte deltas since the previous tick into the ring buffer.
// It is a no-op while throughput sampling is disabled.
func (c *Collector) Tick() {
	if !c.throughput.Load() {
		return
	}
	currentRead := c.bytesRead.Load()
	currentWritten := c.bytesWritten.Load()
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	dt := now.Sub(c.lastTick).Seconds()
	if dt <= 0 {
		return
	}
	c.readRates[c.ringIdx] = float64(currentRead-c.lastRead) / dt
	c.writeRates[c.ringIdx] = float64(currentWritten-c.lastWritten) / dt
	c.lastRead = currentRead
	c.lastWritten = currentWritten
	c.lastTick = now

	c.ringIdx = (c.ringIdx + 1) % ringSize
	if c.ringCount < ringSize {
		c.ringCount++
	}
}

// Sample ticks and returns the resulting snapshot.
func (c *Collector) Sample() Snapshot {
	c.Tick()
	return c.Snapshot()
}

// Run samples every interval and hands each snapshot to publish until ctx
// is done. It does not publish a final snapshot; callers do that once the
// counters have settled.
func (c *Collector) Run(ctx context.Context, interval time.Duration, publish func(Snapshot)) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publish(c.Sample())
		}
	}
}

// RollingReadRate returns the average read bytes/sec over the last n ticks.
func (c *Collector) RollingReadRate(n int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.readRates[:], n)
}

// RollingWriteRate returns the average write bytes/sec over the last n ticks.
func (c *Collector) RollingWriteRate(n int) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rollingAvg(c.writeRates[:], n)
}

func (c *Collector) rollingAvg(buf []float64, n int) float64 {
	count := min(n, c.ringCount)
	if count <= 0 {
		return 0
	}
	var sum float64
	for i := range count {
		idx := (c.ringIdx - 1 - i + ringSize) % ringSize
		sum += buf[idx]
	}
	return sum / float64(count)
}

// Elapsed returns time since collector creation.
func (c *Collector) Elapsed() time.Duration {
	return c.now().Sub(c.startTime)
}

func (s Snapshot) String() string {
	return fmt.Sprintf(
		"processed=%d/%d success=%d failure=%d cancelled=%d read=%d written=%d",
		s.Processed, s.Total, s.Success, s.Failure, s.Cancelled,
		s.BytesRead, s.BytesWritten,
	)
}
