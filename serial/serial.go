package serial

import (
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
)

// DefaultAttempts bounds WriteRetry so a dead port cannot hold the processor forever.
const DefaultAttempts = 100

// Port accepts a whole buffer or nothing. A false return means the transmitter was
// busy and the caller may try again.
type Port interface {
	WriteString(buf []byte) bool
}

// Writer is a Port on top of an io.Writer: a UART device node, a pipe or stdout.
type Writer struct {
	lock     sync.Mutex
	w        io.Writer
	rejected atomic.Uint64
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Open opens the serial device at path for writing. "-" selects stdout.
func Open(path string) (*Writer, io.Closer, error) {
	if path == "" || path == "-" {
		return NewWriter(os.Stdout), io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open serial port %v", path)
	}
	return NewWriter(f), f, nil
}

// WriteString writes buf up to the first NUL, which ends fixed-size messages.
func (s *Writer) WriteString(buf []byte) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if _, err := s.w.Write(Trim(buf)); err != nil {
		s.rejected.Add(1)
		logger.Debugf("Serial write rejected [%v]", err)
		return false
	}
	return true
}

// Rejected returns the number of writes the underlying writer refused.
func (s *Writer) Rejected() uint64 { return s.rejected.Load() }

// WriteRetry offers buf to p until it is accepted or attempts run out.
func WriteRetry(p Port, buf []byte, attempts int) bool {
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	for i := 0; i < attempts; i++ {
		if p.WriteString(buf) {
			return true
		}
	}
	return false
}

// Trim cuts buf at the first NUL byte.
func Trim(buf []byte) []byte {
	for i, b := range buf {
		if b == 0 {
			return buf[:i]
		}
	}
	return buf
}
