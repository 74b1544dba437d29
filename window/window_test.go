package window

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdd(t *testing.T) {
	w := New(10)

	w.Add(1)

	a, mn, mx := w.Summary()
	assert.Equal(t, Average(1), a)
	assert.Equal(t, Minimum(1), mn)
	assert.Equal(t, Maximum(1), mx)

	w.Add(10)

	a, mn, mx = w.Summary()
	assert.Equal(t, Average(1.9), a)
	assert.Equal(t, Minimum(1), mn)
	assert.Equal(t, Maximum(10), mx)
	assert.Equal(t, 10.0, w.Last())

	for _, v := range []float64{30, 8, 5, 9, 4.1, 5, 155, 88, 17, 9} {
		w.Add(v)
	}

	_, mn, _ = w.Summary()
	assert.Equal(t, Minimum(4.1), mn)

	a, mn, mx = w.SummaryLast(2)
	assert.Equal(t, Average(13), a)
	assert.Equal(t, Minimum(9), mn)
	assert.Equal(t, Maximum(17), mx)
}

func TestSummaryLast(t *testing.T) {
	w := New(10)

	for _, v := range []float64{4, 4, 4, 4, 4, 2, 2, 2, 2, 2} {
		w.Add(v)
	}

	a, _, _ := w.SummaryLast(2)
	assert.Equal(t, Average(2), a)
	a, _, _ = w.SummaryLast(6)
	assert.Equal(t, Average(2.3333333333333335), a)

	for i := 0; i < 4; i++ {
		w.Add(2)
	}

	a, _, _ = w.SummaryLast(9)
	assert.Equal(t, Average(2), a)
	a, _, _ = w.SummaryLast(10)
	assert.Equal(t, Average(2.2), a)

	// clamped to the ring size
	a, _, _ = w.SummaryLast(50)
	assert.Equal(t, Average(2.2), a)
}

func TestOverloadIsNotClamped(t *testing.T) {
	w := New(3)
	w.Add(120)
	w.Add(80)

	a, mn, mx := w.Summary()
	assert.InDelta(t, 106.67, float64(a), 0.01)
	assert.Equal(t, Minimum(80), mn)
	assert.Equal(t, Maximum(120), mx)
}

func TestZeroSize(t *testing.T) {
	w := New(0)
	w.Add(3)
	assert.Equal(t, 1, w.Size())
	assert.Equal(t, 3.0, w.Last())
}
