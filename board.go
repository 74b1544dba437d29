package main

import (
	"time"

	"github.com/gr-butler/loadmon/accounting"
	"github.com/gr-butler/loadmon/activity"
	"github.com/gr-butler/loadmon/env"
	"github.com/gr-butler/loadmon/kernel"
	"github.com/gr-butler/loadmon/line"
	"github.com/gr-butler/loadmon/metrics"
	"github.com/gr-butler/loadmon/serial"
	"github.com/gr-butler/loadmon/timer"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
)

type boardOptions struct {
	clock   clockwork.Clock
	source  timer.Source
	counts  func(time.Duration) uint64
	port    serial.Port
	lookup  func(name, pin string) *line.Line
	sinks   []activity.Sink
	onFault func(task string, v any)
}

// board is the kernel with every declared activity created and instrumented,
// ready to start.
type board struct {
	cfg      *env.Config
	k        *kernel.Kernel
	reg      *accounting.Registry
	acct     *accounting.Accountant
	queue    *kernel.Queue
	reporter *activity.Reporter

	lookup func(name, pin string) *line.Line
	idle   *line.Line
	tick   *line.Line
	alive  *line.Line
	awake  bool
}

func newBoard(cfg *env.Config, o boardOptions) (*board, error) {
	policy, err := kernel.ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	if o.lookup == nil {
		o.lookup = line.Lookup
	}
	if o.counts == nil {
		o.counts = timer.NewClockSource(o.clock, env.TimerResolution).Counts
	}

	b := &board{cfg: cfg, lookup: o.lookup}
	b.k = kernel.New(kernel.Options{
		Policy:     policy,
		Priorities: env.Priorities,
		TickPeriod: cfg.Tick,
		Clock:      o.clock,
		OnFault:    o.onFault,
	})
	b.reg = accounting.NewRegistry()
	b.acct = accounting.NewAccountant(o.source, b.reg)

	b.idle = b.output("IDLE", cfg.IdleLine)
	b.tick = b.output("Tick", cfg.TickLine)
	b.alive = b.output("Alive", cfg.AliveLine)
	if err := b.reg.Register(accounting.Tag(cfg.IdleTag), "IDLE", b.idle, false); err != nil {
		return nil, errors.Wrap(err, "register idle activity")
	}

	b.queue, err = b.k.NewQueue(cfg.QueueLength, cfg.MessageSize)
	if err != nil {
		return nil, errors.Wrap(err, "create mailbox")
	}
	sinks := append([]activity.Sink{&metrics.Publisher{Mailbox: b.queue}}, o.sinks...)
	b.reporter = activity.NewReporter(b.acct, b.queue, o.port, activity.ReporterConfig{
		StatsEvery: cfg.StatsEvery,
		StatsSize:  cfg.StatsSize,
		History:    cfg.History,
	}, sinks...)

	for _, a := range cfg.Activities {
		if err := b.add(a, o); err != nil {
			return nil, errors.Wrapf(err, "activity %q", a.Name)
		}
		logger.Infof("Declared %v", a)
	}
	b.reg.Seal()

	b.k.SetTag(b.k.Idle(), kernel.Tag(cfg.IdleTag))
	b.k.SetSwitchHooks(
		func(tag kernel.Tag) { b.acct.SwitchIn(accounting.Tag(tag)) },
		func(tag kernel.Tag) { b.acct.SwitchOut(accounting.Tag(tag)) },
	)
	b.k.SetTickHook(b.tick.Pulse)
	b.k.SetIdleHook(b.idleReached)
	return b, nil
}

func (b *board) output(name, pin string) *line.Line {
	if pin == "" {
		return nil
	}
	l := b.lookup(name, pin)
	if err := l.Output(); err != nil {
		logger.Errorf("Failed to configure %v line [%v]", name, err)
	}
	return l
}

func (b *board) add(a env.Activity, o boardOptions) error {
	var trace *line.Line
	if a.Trace != "" {
		trace = b.lookup(a.Name, a.Trace)
		if err := trace.Output(); err != nil {
			return errors.Wrap(err, "trace line")
		}
	}
	if err := b.reg.Register(accounting.Tag(a.Tag), a.Name, trace, true); err != nil {
		return err
	}

	var entry func(*kernel.Task)
	switch a.Kind {
	case env.KindButton:
		in := b.lookup(a.Name, a.Input)
		if err := in.Input(); err != nil {
			return errors.Wrap(err, "input line")
		}
		button := activity.NewButton(a.Button, in, b.queue, b.cfg.SendTimeout, metrics.SendFailures(a.Name))
		entry = func(t *kernel.Task) {
			activity.RunPeriodic(t, a.Period, b.idle, func() { button.Poll(t) })
		}
	case env.KindTransmitter:
		tx := activity.NewTransmitter(a.Message, b.queue, b.cfg.SendTimeout, metrics.SendFailures(a.Name))
		entry = func(t *kernel.Task) {
			activity.RunPeriodic(t, a.Period, b.idle, func() { tx.Send(t) })
		}
	case env.KindLoad:
		load := activity.NewLoad(o.source, o.counts(a.Busy))
		entry = func(t *kernel.Task) {
			activity.RunPeriodic(t, a.Period, b.idle, func() { load.Run(t) })
		}
	case env.KindReporter:
		entry = func(t *kernel.Task) {
			activity.RunPeriodic(t, a.Period, b.idle, func() { b.reporter.Step(t) })
		}
	default:
		return errors.Errorf("unknown kind %q", a.Kind)
	}

	stack := a.Stack
	if stack <= 0 {
		stack = env.StackSize
	}
	task, err := b.k.CreatePeriodic(entry, a.Name, stack, a.Priority, a.Period)
	if err != nil {
		return err
	}
	b.k.SetTag(task, kernel.Tag(a.Tag))
	return nil
}

// idleReached raises the alive line the first time the processor goes idle,
// showing every activity got through its first release.
func (b *board) idleReached() {
	if b.awake {
		return
	}
	b.awake = true
	b.alive.High()
}
