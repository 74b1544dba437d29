package timer

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockSourceCounts(t *testing.T) {
	fc := clockwork.NewFakeClock()
	src := NewClockSource(fc, 10*time.Microsecond)

	require.Equal(t, uint64(0), src.Now())
	fc.Advance(time.Millisecond)
	assert.Equal(t, uint64(100), src.Now())
	fc.Advance(15 * time.Microsecond)
	assert.Equal(t, uint64(101), src.Now())
	assert.Equal(t, uint64(500), src.Counts(5*time.Millisecond))
	assert.Equal(t, uint64(0), src.Counts(-time.Second))
}

func TestWiden32DetectsWrap(t *testing.T) {
	raw := []uint32{10, 0xFFFFFFF0, 5, 6, 2}
	i := 0
	w := NewWiden32(func() uint32 {
		v := raw[i]
		i++
		return v
	})

	assert.Equal(t, uint64(10), w.Now())
	assert.Equal(t, uint64(0xFFFFFFF0), w.Now())
	assert.Equal(t, uint64(1<<32|5), w.Now())
	assert.Equal(t, uint64(1<<32|6), w.Now())
	assert.Equal(t, uint64(2<<32|2), w.Now())
}

func TestWiden32DeltaAcrossWrap(t *testing.T) {
	var hw uint32 = 0xFFFFFF00
	w := NewWiden32(func() uint32 { return hw })

	in := w.Now()
	hw += 0x200 // wraps
	out := w.Now()
	assert.Equal(t, uint64(0x200), out-in)
}

func TestTruncated32FollowsSourceAcrossWrap(t *testing.T) {
	var m Manual
	m.Set(1<<32 - 10)
	w := Truncated32(&m)

	in := w.Now()
	assert.Equal(t, uint64(1<<32-10), in)
	m.Advance(25)
	assert.Equal(t, uint64(25), w.Now()-in)
	m.Advance(1 << 32)
	// a whole wrap between reads is invisible
	assert.Equal(t, uint64(25), w.Now()-in)
}

func TestManual(t *testing.T) {
	var m Manual
	m.Set(7)
	assert.Equal(t, uint64(12), m.Advance(5))
	assert.Equal(t, uint64(12), m.Now())
}
