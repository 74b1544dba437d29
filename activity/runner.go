package activity

import (
	"github.com/gr-butler/loadmon/kernel"
	"github.com/gr-butler/loadmon/line"
)

// Counter is the part of a metrics counter the activities need.
type Counter interface {
	Inc()
}

// RunPeriodic runs work once per period ticks, released on the grid start + k*period
// where start is the tick on entry. After every sleep the idle line is driven low.
// A late iteration does not shift later releases; an overrun skips the sleep.
func RunPeriodic(t *kernel.Task, period uint64, idle *line.Line, work func()) {
	anchor := t.Kernel().TickCount()
	for {
		work()
		t.SleepUntil(&anchor, period)
		idle.Low()
	}
}

// send puts msg on the mailbox and counts a failure without retrying.
func send(t *kernel.Task, q *kernel.Queue, msg []byte, timeout uint64, failures Counter) bool {
	if q.Send(t, msg, timeout) {
		return true
	}
	if failures != nil {
		failures.Inc()
	}
	return false
}
