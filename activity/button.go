package activity

import (
	"fmt"

	"github.com/gr-butler/loadmon/kernel"
	"github.com/gr-butler/loadmon/line"
	logger "github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
)

// Button watches one input line and posts a message on every level change.
// The line idles high; low to high reports a press, high to low a release.
type Button struct {
	ID       int
	in       *line.Line
	out      *kernel.Queue
	timeout  uint64
	failures Counter

	last     gpio.Level
	pressed  []byte
	released []byte
}

func NewButton(id int, in *line.Line, out *kernel.Queue, timeout uint64, failures Counter) *Button {
	return &Button{
		ID:       id,
		in:       in,
		out:      out,
		timeout:  timeout,
		failures: failures,
		last:     gpio.High,
		pressed:  []byte(fmt.Sprintf("PB %d Pressed.\n", id)),
		released: []byte(fmt.Sprintf("PB %d Release.\n", id)),
	}
}

// Poll samples the line once and reports an edge if the level changed since the
// previous sample. A message that cannot be queued within the timeout is dropped.
func (b *Button) Poll(t *kernel.Task) {
	if !b.in.Attached() {
		return
	}
	level := b.in.Read()
	if level == b.last {
		return
	}
	b.last = level
	msg := b.released
	if level == gpio.High {
		msg = b.pressed
	}
	if !send(t, b.out, msg, b.timeout, b.failures) {
		logger.Debugf("Button %d message dropped, mailbox full", b.ID)
	}
}
