package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func TestCollectorConcurrent(t *testing.T) {
	c := NewCollector()
	const goroutines = 100
	const opsPerGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			for range opsPerGoroutine {
				c.AddSuccess(1)
				c.AddFailure(1)
				c.AddCancelled(1)
				c.AddBytesRead(256)
				c.AddBytesWritten(64)
			}
		}()
	}
	wg.Wait()

	s := c.Snapshot()
	expected := int64(goroutines * opsPerGoroutine)
	assert.Equal(t, expected, s.Success)
	assert.Equal(t, expected, s.Failure)
	assert.Equal(t, expected, s.Cancelled)
	assert.Equal(t, 3*expected, s.Processed)
	assert.Equal(t, expected*256, s.BytesRead)
	assert.Equal(t, expected*64, s.BytesWritten)
}

func TestSnapshotProcessedIsSumWhileWriting(t *testing.T) {
	c := NewCollector()
	c.SetTotals(30000, 0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := range 30000 {
			switch i % 3 {
			case 0:
				c.AddSuccess(1)
			case 1:
				c.AddFailure(1)
			default:
				c.AddCancelled(1)
			}
		}
	}()

	for {
		s := c.Snapshot()
		require.Equal(t, s.Success+s.Failure+s.Cancelled, s.Processed)
		require.LessOrEqual(t, s.Processed, s.Total)
		select {
		case <-done:
			return
		default:
		}
	}
}

func TestSnapshotString(t *testing.T) {
	s := Snapshot{
		Processed:    10,
		Total:        12,
		Success:      8,
		Failure:      1,
		Cancelled:    1,
		BytesRead:    4096,
		BytesWritten: 70,
	}
	expected := "processed=10/12 success=8 failure=1 cancelled=1 read=4096 written=70"
	assert.Equal(t, expected, s.String())
}

func TestNewCollector(t *testing.T) {
	c := NewCollector()
	assert.False(t, c.startTime.IsZero())
	assert.InDelta(t, 0, c.Elapsed().Seconds(), 1)
}

func TestSetTotals(t *testing.T) {
	c := NewCollector()
	c.SetTotals(100, 1024*1024)
	s := c.Snapshot()
	assert.Equal(t, int64(100), s.Total)
	assert.Equal(t, int64(1024*1024), s.BytesTotal)
}

func TestETA(t *testing.T) {
	clock := newFakeClock()
	c := NewCollectorWithNow(clock.Now)
	c.SetTotals(100, 0)

	// 25 items in 5s is 5 items/sec; 75 remain.
	c.AddSuccess(25)
	clock.Advance(5 * time.Second)

	s := c.Snapshot()
	require.NotNil(t, s.ETA)
	assert.InDelta(t, 15.0, s.ETA.Seconds(), 0.001)
	assert.Equal(t, 5*time.Second, s.Elapsed)
}

func TestETAUnknown(t *testing.T) {
	tests := []struct {
		name      string
		processed int64
		total     int64
	}{
		{name: "nothing processed", processed: 0, total: 10},
		{name: "complete", processed: 10, total: 10},
		{name: "empty batch", processed: 0, total: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			c := NewCollectorWithNow(clock.Now)
			c.SetTotals(tt.total, 0)
			c.AddFailure(tt.processed)
			clock.Advance(time.Second)

			assert.Nil(t, c.Snapshot().ETA)
		})
	}
}

func TestThroughputDisabledByDefault(t *testing.T) {
	clock := newFakeClock()
	c := NewCollectorWithNow(clock.Now)

	c.AddBytesRead(1000)
	clock.Advance(time.Second)
	s := c.Sample()

	assert.Nil(t, s.ReadRate)
	assert.Nil(t, s.WriteRate)
	assert.Equal(t, 0.0, c.RollingReadRate(5))
}

func TestTickThroughput(t *testing.T) {
	clock := newFakeClock()
	c := NewCollectorWithNow(clock.Now)
	c.EnableThroughput(true)

	// Before any tick there is no rate to report.
	assert.Nil(t, c.Snapshot().ReadRate)

	c.AddBytesRead(1000)
	c.AddBytesWritten(100)
	clock.Advance(500 * time.Millisecond)
	s := c.Sample()

	require.NotNil(t, s.ReadRate)
	require.NotNil(t, s.WriteRate)
	assert.InDelta(t, 2000.0, *s.ReadRate, 0.01)
	assert.InDelta(t, 200.0, *s.WriteRate, 0.01)

	// Rate is per tick, not cumulative.
	c.AddBytesRead(250)
	clock.Advance(250 * time.Millisecond)
	s = c.Sample()
	require.NotNil(t, s.ReadRate)
	assert.InDelta(t, 1000.0, *s.ReadRate, 0.01)
	assert.InDelta(t, 0.0, *s.WriteRate, 0.01)
}

func TestTickSameInstantIgnored(t *testing.T) {
	clock := newFakeClock()
	c := NewCollectorWithNow(clock.Now)
	c.EnableThroughput(true)

	c.AddBytesRead(10)
	c.Tick()
	assert.Nil(t, c.Snapshot().ReadRate)
}

func TestRollingReadRate(t *testing.T) {
	clock := newFakeClock()
	c := NewCollectorWithNow(clock.Now)
	c.EnableThroughput(true)

	for i := range 5 {
		c.AddBytesRead(int64((i + 1) * 100))
		clock.Advance(time.Second)
		c.Tick()
	}

	// Last two ticks: 400 and 500 bytes/sec.
	assert.InDelta(t, 450.0, c.RollingReadRate(2), 0.01)
	// Asking for more than recorded averages what there is.
	assert.InDelta(t, 300.0, c.RollingReadRate(10), 0.01)
	assert.InDelta(t, 0.0, c.RollingWriteRate(5), 0.01)
}

func TestRingWraparound(t *testing.T) {
	clock := newFakeClock()
	c := NewCollectorWithNow(clock.Now)
	c.EnableThroughput(true)

	for range ringSize + 10 {
		c.AddBytesRead(100)
		clock.Advance(time.Second)
		c.Tick()
	}

	assert.Equal(t, ringSize, c.ringCount)
	assert.InDelta(t, 100.0, c.RollingReadRate(ringSize), 0.01)
}

func TestRunPublishesUntilCancelled(t *testing.T) {
	c := NewCollector()
	c.SetTotals(3, 0)

	ctx, cancel := context.WithCancel(context.Background())
	published := make(chan Snapshot, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Run(ctx, 5*time.Millisecond, func(s Snapshot) {
			select {
			case published <- s:
			default:
			}
		})
	}()

	c.AddSuccess(1)
	select {
	case s := <-published:
		assert.Equal(t, int64(3), s.Total)
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot published")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestExcludedCounter(t *testing.T) {
	c := NewCollector()
	c.AddExcluded(2)
	assert.Equal(t, int64(2), c.Excluded())
	assert.Equal(t, int64(0), c.Snapshot().Processed)
}
