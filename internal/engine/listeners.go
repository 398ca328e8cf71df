package engine

import "sync"

// Subscription is the handle returned by OnChange.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe stops further notifications. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

// listenerSet holds change callbacks in registration order.
type listenerSet[T any] struct {
	mu   sync.Mutex
	next uint64
	ids  []uint64
	fns  []func(T)
}

func (l *listenerSet[T]) add(fn func(T)) *Subscription {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	id := l.next
	l.ids = append(l.ids, id)
	l.fns = append(l.fns, fn)
	return &Subscription{cancel: func() { l.remove(id) }}
}

func (l *listenerSet[T]) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, other := range l.ids {
		if other == id {
			l.ids = append(l.ids[:i:i], l.ids[i+1:]...)
			l.fns = append(l.fns[:i:i], l.fns[i+1:]...)
			return
		}
	}
}

func (l *listenerSet[T]) snapshot() []func(T) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.fns) == 0 {
		return nil
	}
	out := make([]func(T), len(l.fns))
	copy(out, l.fns)
	return out
}

// emit queues delivery of v to the current listeners.
// Must be called with the engine's domain lock held.
func emit[T any](e *Engine, l *listenerSet[T], v T) {
	fns := l.snapshot()
	if len(fns) == 0 {
		return
	}
	e.notify(func() {
		for _, fn := range fns {
			fn(v)
		}
	})
}
