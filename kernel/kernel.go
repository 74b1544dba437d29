package kernel

import (
	"context"
	"math"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	logger "github.com/sirupsen/logrus"
)

/*
 * A small tick-driven kernel. Every task is a goroutine, but only the task holding
 * the processor runs; the rest wait on their run channel. The processor changes hands
 * at suspension points (sleep, blocking queue operations, yield) and at preemption
 * points: when a tick or a queue operation readies a task that outranks the running
 * one, a preemption is left pending and the running task gives the processor up at
 * its next Task.Check. Every hand over fires the switch-out hook of the old task and
 * the switch-in hook of the new one with the kernel lock held.
 */

const (
	DefaultMaxTasks   = 16
	DefaultPriorities = 4
	DefaultTickPeriod = time.Millisecond
	IdlePriority      = 0
)

// Tag is the application-defined identity of a task. Zero means untagged.
type Tag uint8

// Policy selects which ready task gets the processor next.
type Policy uint8

const (
	// FixedPriority runs the highest priority ready task, first come first served among equals.
	FixedPriority Policy = iota
	// EarliestDeadline runs the ready task whose current job has the nearest absolute deadline.
	EarliestDeadline
)

func (p Policy) String() string {
	switch p {
	case FixedPriority:
		return "fixed-priority"
	case EarliestDeadline:
		return "edf"
	default:
		return "unknown"
	}
}

// ParsePolicy is the inverse of Policy.String.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "fixed-priority":
		return FixedPriority, nil
	case "edf":
		return EarliestDeadline, nil
	default:
		return 0, errors.Errorf("kernel: unknown policy %q", s)
	}
}

var (
	ErrTaskLimit    = errors.New("kernel: task limit reached")
	ErrStarted      = errors.New("kernel: scheduler already started")
	ErrInvalidTask  = errors.New("kernel: invalid task parameters")
	ErrInvalidQueue = errors.New("kernel: invalid queue parameters")
)

// Options configure a Kernel. Zero values select the defaults.
type Options struct {
	Policy     Policy
	MaxTasks   int
	Priorities int
	TickPeriod time.Duration
	Clock      clockwork.Clock
	// OnFault is called when a task body returns or panics. Without it the panic propagates.
	OnFault func(task string, v any)
}

type Kernel struct {
	mu   sync.Mutex
	opts Options

	tick     uint64
	seq      uint64
	tasks    []*Task
	idle     *Task
	current  *Task
	ready    []*Task
	sleepers []*Task

	started  bool
	stopped  bool
	done     chan struct{}
	stopOnce sync.Once
	running  sync.WaitGroup

	// set when a ready task outranks the running one
	preempt atomic.Bool

	switchIn  func(Tag)
	switchOut func(Tag)
	tickHook  func()
	idleHook  func()
}

func New(opts Options) *Kernel {
	if opts.MaxTasks <= 0 {
		opts.MaxTasks = DefaultMaxTasks
	}
	if opts.Priorities <= 0 {
		opts.Priorities = DefaultPriorities
	}
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = DefaultTickPeriod
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	k := &Kernel{opts: opts, done: make(chan struct{})}
	k.idle = &Task{k: k, name: "IDLE", priority: IdlePriority, deadline: math.MaxUint64}
	return k
}

// Create adds a task. Tasks can only be created before Start.
func (k *Kernel) Create(entry func(*Task), name string, stackSize int, priority int) (*Task, error) {
	return k.CreatePeriodic(entry, name, stackSize, priority, 0)
}

// CreatePeriodic adds a task with a declared period, used by the EarliestDeadline policy
// to derive job deadlines.
func (k *Kernel) CreatePeriodic(entry func(*Task), name string, stackSize int, priority int, period uint64) (*Task, error) {
	if entry == nil || stackSize <= 0 || priority < 0 || priority >= k.opts.Priorities {
		return nil, ErrInvalidTask
	}

	k.mu.Lock()
	defer k.mu.Unlock()
	if k.started {
		return nil, ErrStarted
	}
	if len(k.tasks) >= k.opts.MaxTasks {
		return nil, ErrTaskLimit
	}
	t := &Task{
		k:         k,
		name:      name,
		entry:     entry,
		stackSize: stackSize,
		priority:  priority,
		period:    period,
		deadline:  math.MaxUint64,
		run:       make(chan struct{}, 1),
	}
	if period > 0 {
		t.deadline = period
	}
	k.tasks = append(k.tasks, t)
	logger.Debugf("Created task [%v] priority [%v] period [%v]", name, priority, period)
	return t, nil
}

// Idle returns the idle task. It has no body: the kernel switches it in whenever no
// other task is ready.
func (k *Kernel) Idle() *Task { return k.idle }

// SetTag assigns the application tag of t.
func (k *Kernel) SetTag(t *Task, tag Tag) {
	k.mu.Lock()
	defer k.mu.Unlock()
	t.tag = tag
}

// SetSwitchHooks installs the context switch notifications. They run with the kernel
// lock held and must not block or call back into the kernel.
func (k *Kernel) SetSwitchHooks(in, out func(Tag)) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.switchIn = in
	k.switchOut = out
}

// SetTickHook installs a function called on every tick, under the same rules as the switch hooks.
func (k *Kernel) SetTickHook(fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.tickHook = fn
}

// SetIdleHook installs a function called each time the idle task is switched in.
func (k *Kernel) SetIdleHook(fn func()) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.idleHook = fn
}

// TickCount returns the current tick.
func (k *Kernel) TickCount() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.tick
}

func (k *Kernel) Policy() Policy { return k.opts.Policy }

// Tasks returns the created tasks in creation order.
func (k *Kernel) Tasks() []*Task {
	k.mu.Lock()
	defer k.mu.Unlock()
	out := make([]*Task, len(k.tasks))
	copy(out, k.tasks)
	return out
}

// Quiescent reports whether the idle task holds the processor.
func (k *Kernel) Quiescent() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current == k.idle
}

// Start launches every task. It does not drive the tick; see Run.
func (k *Kernel) Start() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.started {
		return ErrStarted
	}
	k.started = true
	logger.Infof("Starting scheduler [%v] with %d tasks", k.opts.Policy, len(k.tasks))
	for _, t := range k.tasks {
		k.running.Add(1)
		go k.trampoline(t)
		k.readyLocked(t)
	}
	k.scheduleLocked()
	return nil
}

// Run starts the scheduler if needed and advances the tick from the clock until ctx is done.
// On return every task has been released.
func (k *Kernel) Run(ctx context.Context) error {
	if err := k.Start(); err != nil && !errors.Is(err, ErrStarted) {
		return err
	}
	ticker := k.opts.Clock.NewTicker(k.opts.TickPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			k.Stop()
			k.Wait()
			return ctx.Err()
		case <-ticker.Chan():
			k.Tick()
		}
	}
}

// Stop releases all task goroutines at their next suspension point.
func (k *Kernel) Stop() {
	k.stopOnce.Do(func() {
		k.mu.Lock()
		k.stopped = true
		k.mu.Unlock()
		close(k.done)
	})
}

// Wait blocks until every task goroutine has exited. Only meaningful after Stop.
func (k *Kernel) Wait() {
	k.running.Wait()
}

// Tick advances the tick count by one and wakes tasks whose sleep or timeout expired.
func (k *Kernel) Tick() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.tick++
	if k.tickHook != nil {
		k.tickHook()
	}

	remaining := k.sleepers[:0]
	var expired []*Task
	for _, t := range k.sleepers {
		if t.wakeAt <= k.tick {
			expired = append(expired, t)
			continue
		}
		remaining = append(remaining, t)
	}
	k.sleepers = remaining
	for _, t := range expired {
		t.wakeAt = 0
		if t.waiting != nil {
			t.waiting.remove(t)
			t.waiting = nil
			t.timedOut = true
		}
		k.readyLocked(t)
	}
	k.scheduleLocked()
}

func (k *Kernel) trampoline(t *Task) {
	defer k.running.Done()
	returned := false
	defer func() {
		v := recover()
		if v == nil && !returned {
			// released by Stop
			return
		}
		if v == nil {
			v = "task returned"
		}
		logger.Errorf("Task [%v] faulted [%v]", t.name, v)
		k.mu.Lock()
		t.state = stateDead
		if k.current == t {
			k.switchOutLocked()
			k.scheduleLocked()
		}
		k.mu.Unlock()
		if k.opts.OnFault == nil {
			panic(v)
		}
		k.opts.OnFault(t.name, v)
	}()
	k.wait(t)
	t.entry(t)
	returned = true
}

// wait blocks the calling task goroutine until the kernel hands it the processor.
// After Stop the goroutine exits instead.
func (k *Kernel) wait(t *Task) {
	select {
	case <-t.run:
	case <-k.done:
		runtime.Goexit()
	}
	select {
	case <-k.done:
		runtime.Goexit()
	default:
	}
}

func (k *Kernel) readyLocked(t *Task) {
	t.state = stateReady
	k.seq++
	t.seq = k.seq
	k.ready = append(k.ready, t)
}

func (k *Kernel) before(a, b *Task) bool {
	if k.opts.Policy == EarliestDeadline && a.deadline != b.deadline {
		return a.deadline < b.deadline
	}
	if a.priority != b.priority {
		return a.priority > b.priority
	}
	return a.seq < b.seq
}

// preempts reports whether a must take the processor from the running task b.
// Equals never preempt each other.
func (k *Kernel) preempts(a, b *Task) bool {
	if k.opts.Policy == EarliestDeadline && a.deadline != b.deadline {
		return a.deadline < b.deadline
	}
	return a.priority > b.priority
}

func (k *Kernel) outrankedLocked(t *Task) bool {
	for _, r := range k.ready {
		if k.preempts(r, t) {
			return true
		}
	}
	return false
}

// scheduleLocked hands the processor to the best ready task when it is free. A running
// task is not displaced here; if a ready task outranks it a preemption is left pending.
func (k *Kernel) scheduleLocked() {
	if !k.started || k.stopped {
		return
	}
	if k.current != nil && k.current != k.idle {
		if k.outrankedLocked(k.current) {
			k.preempt.Store(true)
		}
		return
	}
	best := -1
	for i, t := range k.ready {
		if best < 0 || k.before(t, k.ready[best]) {
			best = i
		}
	}
	if best < 0 {
		if k.current != k.idle {
			k.switchInLocked(k.idle)
			if k.idleHook != nil {
				k.idleHook()
			}
		}
		return
	}
	next := k.ready[best]
	k.ready = append(k.ready[:best], k.ready[best+1:]...)
	if k.current == k.idle {
		k.switchOutLocked()
	}
	k.switchInLocked(next)
	next.state = stateRunning
	next.run <- struct{}{}
}

func (k *Kernel) switchInLocked(t *Task) {
	k.current = t
	if k.switchIn != nil {
		k.switchIn(t.tag)
	}
}

func (k *Kernel) switchOutLocked() {
	t := k.current
	k.current = nil
	if t != nil && k.switchOut != nil {
		k.switchOut(t.tag)
	}
}

// suspendLocked gives up the processor held by t.
func (k *Kernel) suspendLocked(t *Task) {
	if k.current == t {
		k.switchOutLocked()
	}
	t.state = stateBlocked
	k.scheduleLocked()
}

// after returns the tick n ticks from now, saturating at MaxUint64.
func (k *Kernel) after(n uint64) uint64 {
	if n > math.MaxUint64-k.tick {
		return math.MaxUint64
	}
	return k.tick + n
}

func (k *Kernel) sleepLocked(t *Task, wakeAt uint64) {
	t.wakeAt = wakeAt
	k.sleepers = append(k.sleepers, t)
}

func (k *Kernel) unsleepLocked(t *Task) {
	if t.wakeAt == 0 {
		return
	}
	t.wakeAt = 0
	for i, s := range k.sleepers {
		if s == t {
			k.sleepers = append(k.sleepers[:i], k.sleepers[i+1:]...)
			return
		}
	}
}
