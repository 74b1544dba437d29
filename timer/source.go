package timer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

/*
 * The timer source is the free-running counter used to timestamp context switches.
 * It is read only: nothing in the accounting path ever writes to it.
 */

// Source is a monotonic free-running counter.
type Source interface {
	Now() uint64
}

// ClockSource counts units of its resolution since it was created.
type ClockSource struct {
	clock      clockwork.Clock
	start      time.Time
	resolution time.Duration
}

// NewClockSource returns a source counting in steps of resolution. A nil clock uses the real clock.
func NewClockSource(clock clockwork.Clock, resolution time.Duration) *ClockSource {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if resolution <= 0 {
		resolution = time.Microsecond
	}
	return &ClockSource{clock: clock, start: clock.Now(), resolution: resolution}
}

func (c *ClockSource) Now() uint64 {
	d := c.clock.Since(c.start)
	if d < 0 {
		return 0
	}
	return uint64(d / c.resolution)
}

// Counts converts a duration into source units, rounding down.
func (c *ClockSource) Counts(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / c.resolution)
}

// Widen32 extends a wrapping 32-bit hardware counter to 64 bits.
// A wrap is detected when a read is smaller than the previous one, so the
// counter must be read at least once per wrap period.
type Widen32 struct {
	read func() uint32

	mu    sync.Mutex
	last  uint32
	wraps uint64
}

func NewWiden32(read func() uint32) *Widen32 {
	return &Widen32{read: read}
}

func (w *Widen32) Now() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	v := w.read()
	if v < w.last {
		w.wraps++
	}
	w.last = v
	return w.wraps<<32 | uint64(v)
}

// Truncated32 keeps only the low 32 bits of src and widens them again, the way a
// free running 32-bit hardware counter is read.
func Truncated32(src Source) *Widen32 {
	return NewWiden32(func() uint32 { return uint32(src.Now()) })
}

// Manual is a source that only moves when told to.
type Manual struct {
	now atomic.Uint64
}

func (m *Manual) Now() uint64 { return m.now.Load() }

func (m *Manual) Set(v uint64) { m.now.Store(v) }

func (m *Manual) Advance(d uint64) uint64 { return m.now.Add(d) }
