package window

import (
	"math"
	"sync"
)

type Average float64
type Minimum float64
type Maximum float64

// Window is a fixed ring of recent load samples. The first sample fills the whole
// ring so the summary is meaningful from the first report.
type Window struct {
	position int
	size     int
	data     []float64
	lock     sync.Mutex
	first    bool
}

func New(size int) *Window {
	if size <= 0 {
		size = 1
	}
	return &Window{
		size:  size,
		data:  make([]float64, size),
		first: true,
	}
}

func (w *Window) Add(val float64) {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.first {
		for i := range w.data {
			w.data[i] = val
		}
		w.first = false
	}
	w.data[w.position] = val
	w.position++
	if w.position == w.size {
		w.position = 0
	}
}

// Summary returns average, minimum and maximum over the whole ring.
func (w *Window) Summary() (Average, Minimum, Maximum) {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.summaryLast(w.size)
}

// SummaryLast is Summary over the n most recent samples.
func (w *Window) SummaryLast(n int) (Average, Minimum, Maximum) {
	w.lock.Lock()
	defer w.lock.Unlock()
	if n > w.size {
		n = w.size
	}
	return w.summaryLast(n)
}

func (w *Window) summaryLast(n int) (Average, Minimum, Maximum) {
	if n <= 0 {
		return 0, 0, 0
	}
	index := w.position - n
	if index < 0 {
		// reverse wrap
		index += w.size
	}
	min := math.MaxFloat64
	max := -math.MaxFloat64
	sum := 0.0
	for i := 0; i < n; i++ {
		x := w.data[index]
		sum += x
		min = math.Min(min, x)
		max = math.Max(max, x)
		index++
		if index == w.size {
			index = 0
		}
	}
	return Average(sum / float64(n)), Minimum(min), Maximum(max)
}

func (w *Window) Last() float64 {
	w.lock.Lock()
	defer w.lock.Unlock()
	index := w.position - 1
	if index < 0 {
		index += w.size
	}
	return w.data[index]
}

func (w *Window) Size() int {
	return w.size
}
