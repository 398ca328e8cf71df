package store

import (
	"sync"

	"github.com/roach88/pmsync/internal/pm"
)

// EventKind distinguishes store events.
type EventKind int

const (
	// ModelCreated is raised after a model has been added.
	ModelCreated EventKind = iota + 1
	// ModelDeleted is raised after a model has been removed.
	ModelDeleted
	// ValueChanged is raised after an attribute value has changed.
	ValueChanged
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case ModelCreated:
		return "model-created"
	case ModelDeleted:
		return "model-deleted"
	case ValueChanged:
		return "value-changed"
	default:
		return "unknown"
	}
}

// Event describes one store mutation.
type Event struct {
	Kind      EventKind
	ModelID   string
	ModelType string

	// Model is the affected model. For ModelDeleted it is no longer in the store.
	Model *pm.PresentationModel

	// Property, Old and New are set for ValueChanged.
	Property string
	Old      pm.Value
	New      pm.Value
}

// Listener receives store events.
type Listener func(Event)

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	owner *subscribers
	id    uint64
	once  sync.Once
}

// Unsubscribe stops delivery to the listener. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.owner.remove(s.id)
	})
}

type subscriber struct {
	id uint64
	l  Listener
}

// subscribers is a copy-on-write listener list.
type subscribers struct {
	mu     sync.Mutex
	nextID uint64
	list   []subscriber
}

func (s *subscribers) add(l Listener) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	next := make([]subscriber, len(s.list), len(s.list)+1)
	copy(next, s.list)
	s.list = append(next, subscriber{id: s.nextID, l: l})
	return &Subscription{owner: s, id: s.nextID}
}

func (s *subscribers) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := make([]subscriber, 0, len(s.list))
	for _, sub := range s.list {
		if sub.id != id {
			next = append(next, sub)
		}
	}
	s.list = next
}

func (s *subscribers) publish(e Event) {
	s.mu.Lock()
	list := s.list
	s.mu.Unlock()
	for _, sub := range list {
		sub.l(e)
	}
}
