package kernel

import "math"

type taskState uint8

const (
	stateDormant taskState = iota
	stateReady
	stateRunning
	stateBlocked
	stateDead
)

// Task is a schedulable activity. The fields are guarded by the kernel lock.
type Task struct {
	k         *Kernel
	name      string
	entry     func(*Task)
	stackSize int
	priority  int
	period    uint64
	tag       Tag

	state    taskState
	seq      uint64
	deadline uint64
	wakeAt   uint64
	waiting  *waitQueue
	timedOut bool
	run      chan struct{}
}

func (t *Task) Name() string    { return t.name }
func (t *Task) Kernel() *Kernel { return t.k }

func (t *Task) Tag() Tag {
	t.k.mu.Lock()
	defer t.k.mu.Unlock()
	return t.tag
}

// SleepUntil blocks until the tick reaches *anchor + period and moves *anchor to that
// deadline. The anchor always advances by exactly one period, whatever the actual wake
// time, so the release times stay on the grid anchor0 + k*period. When the deadline has
// already passed it returns false without giving up the processor.
func (t *Task) SleepUntil(anchor *uint64, period uint64) bool {
	k := t.k
	k.mu.Lock()
	deadline := *anchor + period
	*anchor = deadline
	if t.period > 0 {
		t.deadline = deadline + t.period
	} else {
		t.deadline = math.MaxUint64
	}
	if deadline <= k.tick {
		k.mu.Unlock()
		return false
	}
	k.sleepLocked(t, deadline)
	k.suspendLocked(t)
	k.mu.Unlock()
	k.wait(t)
	return true
}

// Yield puts t at the back of the ready tasks and lets the scheduler pick again.
func (t *Task) Yield() {
	k := t.k
	k.mu.Lock()
	if k.current != t {
		k.mu.Unlock()
		return
	}
	k.switchOutLocked()
	k.readyLocked(t)
	k.scheduleLocked()
	k.mu.Unlock()
	k.wait(t)
}

// Check is a preemption point for long-running work. When a task that outranks t has
// been readied since t got the processor, t is switched out, put back among the ready
// tasks and Check returns true once t runs again. Otherwise it returns false at the
// cost of one atomic load. A nil task never yields.
func (t *Task) Check() bool {
	if t == nil || !t.k.preempt.Load() {
		return false
	}
	k := t.k
	k.mu.Lock()
	k.preempt.Store(false)
	if k.current != t || !k.outrankedLocked(t) {
		k.mu.Unlock()
		return false
	}
	k.switchOutLocked()
	k.readyLocked(t)
	k.scheduleLocked()
	k.mu.Unlock()
	k.wait(t)
	return true
}

// block parks t on wq until woken by a peer or until the tick reaches deadline.
// It reports false on timeout. Called with the kernel lock held; returns with it held.
func (t *Task) block(wq *waitQueue, deadline uint64) bool {
	k := t.k
	t.timedOut = false
	t.waiting = wq
	wq.add(t)
	k.sleepLocked(t, deadline)
	k.suspendLocked(t)
	k.mu.Unlock()
	k.wait(t)
	k.mu.Lock()
	return !t.timedOut
}
