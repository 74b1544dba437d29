package activity

import (
	"github.com/gr-butler/loadmon/kernel"
	"github.com/gr-butler/loadmon/timer"
)

// Spin keeps the processor busy until t has run for d units of src. It is a
// preemption point: time spent switched out does not count towards d.
func Spin(t *kernel.Task, src timer.Source, d uint64) {
	var spent uint64
	last := src.Now()
	for spent < d {
		now := src.Now()
		spent += now - last
		last = now
		if t.Check() {
			last = src.Now()
		}
	}
}

// Load burns a fixed amount of processor time each time it runs.
type Load struct {
	src  timer.Source
	busy uint64
}

func NewLoad(src timer.Source, busy uint64) *Load {
	return &Load{src: src, busy: busy}
}

func (l *Load) Run(t *kernel.Task) { Spin(t, l.src, l.busy) }

func (l *Load) Busy() uint64 { return l.busy }
