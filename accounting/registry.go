package accounting

import (
	"github.com/gr-butler/loadmon/line"
	"github.com/pkg/errors"
)

// MaxTags bounds the tag space. Tags index a fixed table so the switch hooks never allocate.
const MaxTags = 32

// Tag identifies a schedulable activity.
type Tag uint8

type entry struct {
	used      bool
	name      string
	line      *line.Line
	accounted bool
}

// Registry maps tags to activities. It is filled at start-up and then sealed;
// after Seal it is read only and safe to share with the switch hooks.
type Registry struct {
	entries [MaxTags]entry
	sealed  bool
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register declares an activity. Accounted activities contribute busy time to the load;
// the others (the idle activity) only drive their instrumentation line.
func (r *Registry) Register(tag Tag, name string, l *line.Line, accounted bool) error {
	switch {
	case r.sealed:
		return errors.Errorf("accounting: registry sealed, cannot add %q", name)
	case int(tag) >= MaxTags:
		return errors.Errorf("accounting: tag %d out of range for %q", tag, name)
	case r.entries[tag].used:
		return errors.Errorf("accounting: tag %d already used by %q", tag, r.entries[tag].name)
	}
	r.entries[tag] = entry{used: true, name: name, line: l, accounted: accounted}
	return nil
}

func (r *Registry) Seal() { r.sealed = true }

func (r *Registry) lookup(tag Tag) *entry {
	if int(tag) >= MaxTags {
		return nil
	}
	e := &r.entries[tag]
	if !e.used {
		return nil
	}
	return e
}

// Name returns the activity name for tag, or "" when unknown.
func (r *Registry) Name(tag Tag) string {
	if e := r.lookup(tag); e != nil {
		return e.name
	}
	return ""
}

// Accounted returns the accounted tags in ascending order.
func (r *Registry) Accounted() []Tag {
	var tags []Tag
	for i := range r.entries {
		if r.entries[i].used && r.entries[i].accounted {
			tags = append(tags, Tag(i))
		}
	}
	return tags
}
