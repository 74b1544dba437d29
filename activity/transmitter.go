package activity

import (
	"github.com/gr-butler/loadmon/kernel"
	logger "github.com/sirupsen/logrus"
)

// Transmitter posts a fixed message every time it runs.
type Transmitter struct {
	msg      []byte
	out      *kernel.Queue
	timeout  uint64
	failures Counter
}

func NewTransmitter(msg string, out *kernel.Queue, timeout uint64, failures Counter) *Transmitter {
	return &Transmitter{msg: []byte(msg), out: out, timeout: timeout, failures: failures}
}

func (p *Transmitter) Send(t *kernel.Task) {
	if !send(t, p.out, p.msg, p.timeout, p.failures) {
		logger.Debugf("Periodic message dropped, mailbox full")
	}
}
