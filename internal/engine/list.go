package engine

import (
	"slices"

	"github.com/roach88/pmsync/internal/convert"
	"github.com/roach88/pmsync/internal/gc"
	"github.com/roach88/pmsync/internal/pm"
	"github.com/roach88/pmsync/internal/schema"
)

// ListChange describes one splice applied to a list.
type ListChange struct {
	List string
	From int
	To   int

	Removed  []any
	Inserted []any

	// Remote is true when the splice was replayed from the other side.
	Remote bool
}

// List is an ordered list property.
//
// Every mutating call is reduced to exactly one contiguous splice
// (from, to, values): the elements in [from, to) are replaced by values.
// The splice is applied locally and announced to the other side as one
// LIST_SPLICE record, atomically with respect to other edits of this side.
//
// Elements are held in wire form; bean elements as their model id.
type List struct {
	inst      *Instance
	decl      schema.Property
	conv      convert.Converter
	items     []pm.Value // guarded by inst.e.mu
	listeners listenerSet[ListChange]
}

// Name returns the list property name.
func (l *List) Name() string { return l.decl.Name }

// Len returns the number of elements.
func (l *List) Len() int {
	e := l.inst.e
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(l.items)
}

// Get returns the native element at index i.
func (l *List) Get(i int) (any, error) {
	e := l.inst.e
	var out any
	err := e.locked(func() error {
		if i < 0 || i >= len(l.items) {
			return pm.NewIndexOutOfRangeError(l.inst.id, l.decl.Name, i, i+1, len(l.items))
		}
		out = e.native(l.decl, l.conv, l.items[i])
		return nil
	})
	return out, err
}

// Values returns a snapshot of all elements in native form.
func (l *List) Values() []any {
	e := l.inst.e
	var out []any
	_ = e.locked(func() error {
		out = l.nativesLocked(l.items)
		return nil
	})
	return out
}

// WireValues returns a snapshot of all elements in wire form.
func (l *List) WireValues() []pm.Value {
	e := l.inst.e
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Clone(l.items)
}

// Add appends one element.
func (l *List) Add(v any) error {
	return l.AddAll(v)
}

// AddAll appends the given elements as one splice.
func (l *List) AddAll(vs ...any) error {
	return l.inst.e.locked(func() error {
		n := len(l.items)
		return l.spliceLocked(n, n, vs)
	})
}

// Insert inserts the given elements before index i as one splice.
func (l *List) Insert(i int, vs ...any) error {
	return l.inst.e.locked(func() error {
		return l.spliceLocked(i, i, vs)
	})
}

// Set replaces the element at index i.
func (l *List) Set(i int, v any) error {
	return l.inst.e.locked(func() error {
		return l.spliceLocked(i, i+1, []any{v})
	})
}

// Remove removes the element at index i and returns it.
func (l *List) Remove(i int) (any, error) {
	e := l.inst.e
	var removed any
	err := e.locked(func() error {
		if i < 0 || i >= len(l.items) {
			return pm.NewIndexOutOfRangeError(l.inst.id, l.decl.Name, i, i+1, len(l.items))
		}
		removed = e.native(l.decl, l.conv, l.items[i])
		return l.spliceLocked(i, i+1, nil)
	})
	return removed, err
}

// RemoveRange removes the elements in [from, to).
func (l *List) RemoveRange(from, to int) error {
	return l.inst.e.locked(func() error {
		return l.spliceLocked(from, to, nil)
	})
}

// Clear removes all elements.
func (l *List) Clear() error {
	return l.inst.e.locked(func() error {
		return l.spliceLocked(0, len(l.items), nil)
	})
}

// Splice replaces the elements in [from, to) by vs.
func (l *List) Splice(from, to int, vs ...any) error {
	return l.inst.e.locked(func() error {
		return l.spliceLocked(from, to, vs)
	})
}

// OnChange registers fn for local and remote splices of this list.
func (l *List) OnChange(fn func(ListChange)) *Subscription {
	return l.listeners.add(fn)
}

// spliceLocked is the single local mutation path of a list.
// Must be called with e.mu held.
func (l *List) spliceLocked(from, to int, vs []any) error {
	e := l.inst.e
	if !l.inst.managed {
		return pm.NewBeanDefinitionError("bean %s is no longer managed", l.inst.id)
	}
	if from < 0 || to < from || to > len(l.items) {
		return pm.NewIndexOutOfRangeError(l.inst.id, l.decl.Name, from, to, len(l.items))
	}

	wires := make([]pm.Value, len(vs))
	for i, v := range vs {
		w, err := e.toWire(l.inst.id, l.decl, l.conv, v)
		if err != nil {
			return err
		}
		wires[i] = w
	}
	if to-from == len(wires) && slices.EqualFunc(l.items[from:to], wires, pm.Equal) {
		return nil
	}

	rec := spliceRecord{
		ID:        e.ids.Generate(),
		Source:    l.inst.id,
		Attribute: l.decl.Name,
		From:      from,
		To:        to,
		Values:    wires,
	}
	if err := e.dispatch.publishSplice(rec); err != nil {
		return err
	}
	if l.replaceLocked(from, to, wires, false) {
		e.collectLocked()
	}
	return nil
}

// replaceLocked replaces [from, to) by wires, keeps reference edges in step
// and notifies listeners. The range must already be valid. Reports whether
// any bean reference was dropped.
// Must be called with e.mu held.
func (l *List) replaceLocked(from, to int, wires []pm.Value, remote bool) bool {
	e := l.inst.e
	removed := slices.Clone(l.items[from:to])
	change := ListChange{
		List:     l.decl.Name,
		From:     from,
		To:       to,
		Removed:  l.nativesLocked(removed),
		Inserted: l.nativesLocked(wires),
		Remote:   remote,
	}

	l.items = slices.Replace(l.items, from, to, wires...)

	dropped := false
	if l.decl.IsReference() {
		origin := gc.List(l.decl.Name)
		for _, w := range removed {
			if id, ok := w.(pm.String); ok && e.tracker.Unregister(l.inst.id, string(id), origin) {
				dropped = true
			}
		}
		for _, w := range wires {
			if id, ok := w.(pm.String); ok {
				e.tracker.Register(l.inst.id, string(id), origin)
			}
		}
	}

	e.logger.Debug("list spliced",
		"id", l.inst.id,
		"list", l.decl.Name,
		"from", from,
		"to", to,
		"count", len(wires),
		"remote", remote,
	)
	emit(e, &l.listeners, change)
	return dropped
}

// checkSplice validates an inbound splice against the current list without
// changing anything. Must be called with e.mu held.
func (l *List) checkSplice(rec spliceRecord) error {
	e := l.inst.e
	if rec.From < 0 || rec.To < rec.From || rec.To > len(l.items) {
		return pm.NewIndexOutOfRangeError(l.inst.id, l.decl.Name, rec.From, rec.To, len(l.items))
	}
	for _, w := range rec.Values {
		if err := e.validateWire(l.inst.id, l.decl, l.conv, w); err != nil {
			return err
		}
	}
	return nil
}

func (l *List) nativesLocked(wires []pm.Value) []any {
	out := make([]any, len(wires))
	for i, w := range wires {
		out[i] = l.inst.e.native(l.decl, l.conv, w)
	}
	return out
}
