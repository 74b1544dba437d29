package activity

import (
	"fmt"
	"sync/atomic"

	"github.com/gr-butler/loadmon/accounting"
	"github.com/gr-butler/loadmon/kernel"
	"github.com/gr-butler/loadmon/serial"
	"github.com/gr-butler/loadmon/window"
)

const (
	DefaultStatsSize  = 240
	DefaultStatsEvery = 50
	DefaultHistory    = 60
)

// Sink receives every statistics report.
type Sink interface {
	Observe(snap accounting.Snapshot, stats []accounting.Stat)
}

type ReporterConfig struct {
	// StatsEvery is the number of iterations between statistics reports.
	StatsEvery int
	// StatsSize bounds the formatted report; longer text is cut off.
	StatsSize int
	// Attempts bounds the retries of one serial write.
	Attempts int
	// History is the number of reports the load window keeps.
	History int
}

// Reporter forwards mailbox messages to the serial port and periodically writes the
// execution-time statistics. It runs as an ordinary accounted activity, so its own
// serial output shows up in the busy time it reports.
type Reporter struct {
	acct  *accounting.Accountant
	in    *kernel.Queue
	port  serial.Port
	cfg   ReporterConfig
	hist  *window.Window
	sinks []Sink

	msg   []byte
	stats []byte
	iter  int
	lost  atomic.Uint64
}

func NewReporter(acct *accounting.Accountant, in *kernel.Queue, port serial.Port, cfg ReporterConfig, sinks ...Sink) *Reporter {
	if cfg.StatsEvery <= 0 {
		cfg.StatsEvery = DefaultStatsEvery
	}
	if cfg.StatsSize <= 0 {
		cfg.StatsSize = DefaultStatsSize
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = serial.DefaultAttempts
	}
	if cfg.History <= 0 {
		cfg.History = DefaultHistory
	}
	return &Reporter{
		acct:  acct,
		in:    in,
		port:  port,
		cfg:   cfg,
		hist:  window.New(cfg.History),
		sinks: sinks,
		msg:   make([]byte, in.MessageSize()),
		stats: make([]byte, cfg.StatsSize),
	}
}

// Step is one period of the reporter: drain the mailbox without waiting, then
// write the statistics when they are due.
func (r *Reporter) Step(t *kernel.Task) {
	for r.in.Receive(t, r.msg, 0) {
		r.write(r.msg)
		t.Check()
	}
	r.iter++
	if r.iter < r.cfg.StatsEvery {
		return
	}
	r.iter = 0
	r.Report()
}

// Report writes the statistics now and hands them to the sinks.
func (r *Reporter) Report() {
	snap := r.acct.Snapshot()
	stats := r.acct.Stats()
	r.hist.Add(snap.LoadPercent)
	n := r.Format(r.stats, snap, stats)
	r.write([]byte{'\n'})
	r.write(r.stats[:n])
	for _, s := range r.sinks {
		s.Observe(snap, stats)
	}
}

// Format renders one line per activity (name, busy time, share of elapsed time)
// followed by the overall load into buf. Text that does not fit is cut off.
// It returns the number of bytes written.
func (r *Reporter) Format(buf []byte, snap accounting.Snapshot, stats []accounting.Stat) int {
	w := bounded{buf: buf}
	for _, s := range stats {
		fmt.Fprintf(&w, "%s\t\t%d\t\t%s\n", s.Name, s.Total, share(s.Total, snap.Elapsed))
	}
	avg, min, max := r.hist.Summary()
	fmt.Fprintf(&w, "Load %.2f%% avg %.2f min %.2f max %.2f\n", snap.LoadPercent, avg, min, max)
	return w.n
}

// History returns the window of reported load values.
func (r *Reporter) History() *window.Window { return r.hist }

// Lost returns the number of writes the serial port never accepted.
func (r *Reporter) Lost() uint64 { return r.lost.Load() }

func (r *Reporter) write(buf []byte) {
	if !serial.WriteRetry(r.port, buf, r.cfg.Attempts) {
		r.lost.Add(1)
	}
}

func share(busy, elapsed uint64) string {
	if elapsed == 0 {
		return "0%"
	}
	pct := busy * 100 / elapsed
	if pct == 0 && busy > 0 {
		return "<1%"
	}
	return fmt.Sprintf("%d%%", pct)
}

// bounded is a writer over a fixed buffer that silently drops what does not fit.
type bounded struct {
	buf []byte
	n   int
}

func (b *bounded) Write(p []byte) (int, error) {
	b.n += copy(b.buf[b.n:], p)
	return len(p), nil
}
