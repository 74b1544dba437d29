package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gr-butler/loadmon/env"
	"github.com/gr-butler/loadmon/kernel"
	"github.com/gr-butler/loadmon/line"
	"github.com/gr-butler/loadmon/serial"
	"github.com/gr-butler/loadmon/timer"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

type stepSource struct{ n atomic.Uint64 }

func (s *stepSource) Now() uint64 { return s.n.Add(1) }

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testBoard struct {
	*board
	pins map[string]*gpiotest.Pin
	out  *syncBuffer
}

func newTestBoard(t *testing.T, cfg *env.Config) *testBoard {
	t.Helper()
	tb := &testBoard{pins: map[string]*gpiotest.Pin{}, out: &syncBuffer{}}
	b, err := newBoard(cfg, boardOptions{
		source: &stepSource{},
		counts: timer.NewClockSource(nil, time.Microsecond).Counts,
		port:   serial.NewWriter(tb.out),
		lookup: func(name, pin string) *line.Line {
			p, ok := tb.pins[pin]
			if !ok {
				p = &gpiotest.Pin{N: pin}
				tb.pins[pin] = p
			}
			return line.New(name, p)
		},
	})
	require.NoError(t, err)
	t.Cleanup(b.k.Stop)
	tb.board = b
	return tb
}

func (tb *testBoard) run(t *testing.T, ticks int) {
	t.Helper()
	for i := 0; i < ticks; i++ {
		tb.k.Tick()
		require.Eventually(t, tb.k.Quiescent, time.Second, time.Millisecond)
	}
}

func TestBoardDeclaresActivities(t *testing.T) {
	tb := newTestBoard(t, env.Default())

	var names []string
	for _, task := range tb.k.Tasks() {
		names = append(names, task.Name())
	}
	assert.Equal(t, []string{"Button 1", "Button 2", "Periodic", "UART", "Load 1", "Load 2"}, names)
	assert.Equal(t, kernel.Tag(env.TagIdle), tb.k.Idle().Tag())
	assert.Len(t, tb.acct.Stats(), 6)
	assert.Equal(t, gpio.High, tb.pins[env.Button1In].Read())
	assert.Equal(t, kernel.FixedPriority, tb.k.Policy())
}

func TestBoardRejectsBadConfig(t *testing.T) {
	cfg := env.Default()
	cfg.Policy = "lottery"
	_, err := newBoard(cfg, boardOptions{source: &stepSource{}, port: serial.NewWriter(&bytes.Buffer{})})
	assert.Error(t, err)

	cfg = env.Default()
	cfg.Activities[1].Tag = cfg.Activities[0].Tag
	_, err = newBoard(cfg, boardOptions{
		source: &stepSource{},
		port:   serial.NewWriter(&bytes.Buffer{}),
		lookup: func(name, pin string) *line.Line { return line.New(name, nil) },
	})
	assert.Error(t, err)
}

func TestBoardRuns(t *testing.T) {
	cfg := env.Default()
	cfg.StatsEvery = 5
	tb := newTestBoard(t, cfg)
	require.NoError(t, tb.k.Start())
	require.Eventually(t, tb.k.Quiescent, time.Second, time.Millisecond)

	assert.Equal(t, gpio.High, tb.pins[env.AliveLed].Read())
	assert.Equal(t, gpio.High, tb.pins[env.IdleLine].Read())
	for _, pin := range []string{env.GPIO02, env.GPIO03, env.GPIO05, env.GPIO06, env.GPIO07, env.GPIO08} {
		assert.Equal(t, gpio.Low, tb.pins[pin].Read(), pin)
	}

	require.NoError(t, tb.pins[env.Button1In].Out(gpio.Low))
	tb.run(t, 120)

	out := tb.out.String()
	assert.Equal(t, 2, strings.Count(out, "Periodic str.\n"))
	assert.Equal(t, 1, strings.Count(out, "PB 1 Release.\n"))
	assert.Contains(t, out, "Load 2\t\t")
	assert.Contains(t, out, "\nLoad ")
	assert.Equal(t, gpio.Low, tb.pins[env.TickLine].Read())

	s, ok := tb.acct.Stat(env.TagLoad1)
	require.True(t, ok)
	assert.Equal(t, uint64(13), s.Runs)
	assert.GreaterOrEqual(t, s.Total, 13*uint64(env.Load1Busy/time.Microsecond))
	assert.Greater(t, tb.acct.Snapshot().LoadPercent, 0.0)
	assert.Greater(t, tb.reporter.History().Last(), 0.0)
}

func TestShutdownErrors(t *testing.T) {
	assert.True(t, shutdown(nil))
	assert.True(t, shutdown(context.Canceled))
	assert.True(t, shutdown(errors.Wrap(context.DeadlineExceeded, "run")))
	assert.False(t, shutdown(kernel.ErrInvalidTask))
}
