package accounting

import (
	"math"
	"sync/atomic"

	"github.com/gr-butler/loadmon/timer"
)

// Record holds the accounting state of one tag. Fields are written only by the
// switch hooks and read by the reporter without locks.
type Record struct {
	inTime  atomic.Uint64
	outTime atomic.Uint64
	total   atomic.Uint64
	runs    atomic.Uint64
	pending atomic.Bool
}

// Stat is a copy of a Record for reporting.
type Stat struct {
	Tag     Tag
	Name    string
	InTime  uint64
	OutTime uint64
	Total   uint64
	Runs    uint64
}

// Accountant turns switch-in/switch-out notifications into busy time.
// A single Accountant is built at start-up and handed to both the kernel hooks
// and the reporting activity.
type Accountant struct {
	src     timer.Source
	reg     *Registry
	records [MaxTags]Record

	elapsed atomic.Uint64
	busy    atomic.Uint64
	load    atomic.Uint64 // float64 bits
}

func NewAccountant(src timer.Source, reg *Registry) *Accountant {
	return &Accountant{src: src, reg: reg}
}

// SwitchIn is called when the activity tagged tag is about to run.
func (a *Accountant) SwitchIn(tag Tag) {
	e := a.reg.lookup(tag)
	if e == nil {
		return
	}
	e.line.High()
	if !e.accounted {
		return
	}
	r := &a.records[tag]
	r.inTime.Store(a.src.Now())
	r.runs.Add(1)
	r.pending.Store(true)
}

// SwitchOut is called when the activity tagged tag stops running. It credits the
// time since the matching SwitchIn and then refreshes the load snapshot.
func (a *Accountant) SwitchOut(tag Tag) {
	e := a.reg.lookup(tag)
	if e == nil {
		return
	}
	e.line.Low()
	if !e.accounted {
		return
	}
	if a.Update(tag, a.src.Now()) {
		a.Recompute()
	}
}

// Update closes the open busy window of tag at out. It reports false, changing
// nothing, when no switch-in is pending for tag.
func (a *Accountant) Update(tag Tag, out uint64) bool {
	if int(tag) >= MaxTags {
		return false
	}
	r := &a.records[tag]
	if !r.pending.CompareAndSwap(true, false) {
		return false
	}
	in := r.inTime.Load()
	r.outTime.Store(out)
	if out > in {
		r.total.Add(out - in)
	}
	return true
}

// Recompute rebuilds the load snapshot from all records.
func (a *Accountant) Recompute() Snapshot {
	var busy uint64
	for i := range a.records {
		busy += a.records[i].total.Load()
	}
	s := Snapshot{Elapsed: a.src.Now(), Busy: busy}
	s.LoadPercent = LoadPercent(s.Busy, s.Elapsed)

	a.elapsed.Store(s.Elapsed)
	a.busy.Store(s.Busy)
	a.load.Store(math.Float64bits(s.LoadPercent))
	return s
}

// Snapshot returns the most recent load estimate. Fields are loaded one by one,
// so a concurrent recompute may be observed half applied.
func (a *Accountant) Snapshot() Snapshot {
	return Snapshot{
		Elapsed:     a.elapsed.Load(),
		Busy:        a.busy.Load(),
		LoadPercent: math.Float64frombits(a.load.Load()),
	}
}

// Stat returns the record of tag and whether tag is an accounted activity.
func (a *Accountant) Stat(tag Tag) (Stat, bool) {
	e := a.reg.lookup(tag)
	if e == nil || !e.accounted {
		return Stat{}, false
	}
	r := &a.records[tag]
	return Stat{
		Tag:     tag,
		Name:    e.name,
		InTime:  r.inTime.Load(),
		OutTime: r.outTime.Load(),
		Total:   r.total.Load(),
		Runs:    r.runs.Load(),
	}, true
}

// Stats returns every accounted record in tag order.
func (a *Accountant) Stats() []Stat {
	tags := a.reg.Accounted()
	stats := make([]Stat, 0, len(tags))
	for _, tag := range tags {
		if s, ok := a.Stat(tag); ok {
			stats = append(stats, s)
		}
	}
	return stats
}

// Now reads the timer source used for accounting.
func (a *Accountant) Now() uint64 {
	return a.src.Now()
}
