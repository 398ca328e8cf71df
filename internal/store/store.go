package store

import (
	"sort"
	"sync"

	"github.com/roach88/pmsync/internal/pm"
)

// Store maps model ids to presentation models.
//
// Thread-safety: all methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	models  map[string]*entry
	byType  map[string][]*entry
	nextSeq int64

	subs subscribers
}

// entry remembers insertion order so listings are stable.
type entry struct {
	model *pm.PresentationModel
	seq   int64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		models: make(map[string]*entry),
		byType: make(map[string][]*entry),
	}
}

// Create adds a model with the given attributes.
//
// Fails with a DuplicateIDError if id is already present, or if two
// attributes share a name.
func (s *Store) Create(id, typ string, attrs []pm.Attribute) (*pm.PresentationModel, error) {
	if id == "" {
		return nil, pm.NewNullArgumentError("id")
	}
	if typ == "" {
		return nil, pm.NewNullArgumentError("type")
	}

	m, dup := pm.NewPresentationModel(id, typ, attrs)
	if dup != "" {
		return nil, &pm.Error{
			Code:     pm.ErrCodeDuplicateID,
			Message:  "duplicate attribute name",
			ModelID:  id,
			Property: dup,
		}
	}

	s.mu.Lock()
	if _, exists := s.models[id]; exists {
		s.mu.Unlock()
		return nil, pm.NewDuplicateIDError(id)
	}
	s.nextSeq++
	e := &entry{model: m, seq: s.nextSeq}
	s.models[id] = e
	s.byType[typ] = append(s.byType[typ], e)
	s.mu.Unlock()

	s.subs.publish(Event{Kind: ModelCreated, ModelID: id, ModelType: typ, Model: m})
	return m, nil
}

// FindByID returns the model with the given id.
func (s *Store) FindByID(id string) (*pm.PresentationModel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.models[id]
	if !ok {
		return nil, false
	}
	return e.model, true
}

// FindAllByType returns a snapshot of all models of the given type, in
// insertion order.
func (s *Store) FindAllByType(typ string) []*pm.PresentationModel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.byType[typ]
	out := make([]*pm.PresentationModel, len(entries))
	for i, e := range entries {
		out[i] = e.model
	}
	return out
}

// ListAll returns a snapshot of all models in insertion order.
func (s *Store) ListAll() []*pm.PresentationModel {
	s.mu.RLock()
	entries := make([]*entry, 0, len(s.models))
	for _, e := range s.models {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]*pm.PresentationModel, len(entries))
	for i, e := range entries {
		out[i] = e.model
	}
	return out
}

// Len returns the number of models in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.models)
}

// Delete removes a model and notifies subscribers.
func (s *Store) Delete(m *pm.PresentationModel) error {
	if m == nil {
		return pm.NewNullArgumentError("model")
	}
	return s.DeleteByID(m.ID())
}

// DeleteByID removes the model with the given id and notifies subscribers.
func (s *Store) DeleteByID(id string) error {
	s.mu.Lock()
	e, ok := s.models[id]
	if !ok {
		s.mu.Unlock()
		return pm.NewUnknownModelError(id)
	}
	delete(s.models, id)
	typ := e.model.Type()
	list := s.byType[typ]
	for i, other := range list {
		if other == e {
			s.byType[typ] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(s.byType[typ]) == 0 {
		delete(s.byType, typ)
	}
	s.mu.Unlock()

	s.subs.publish(Event{Kind: ModelDeleted, ModelID: id, ModelType: typ, Model: e.model})
	return nil
}

// SetValue assigns an attribute value and notifies subscribers.
// Assigning a value equal to the current one is a no-op and raises no event.
func (s *Store) SetValue(id, property string, v pm.Value) error {
	m, ok := s.FindByID(id)
	if !ok {
		return pm.NewUnknownModelError(id)
	}
	v = pm.OrNull(v)

	cur, ok := m.Value(property)
	if !ok {
		return pm.NewUnknownPropertyError(id, property)
	}
	if pm.Equal(cur, v) {
		return nil
	}
	old, _ := m.Put(property, v)

	s.subs.publish(Event{
		Kind:      ValueChanged,
		ModelID:   id,
		ModelType: m.Type(),
		Model:     m,
		Property:  property,
		Old:       old,
		New:       v,
	})
	return nil
}

// ValueOf returns the current value of a model attribute.
func (s *Store) ValueOf(id, property string) (pm.Value, error) {
	m, ok := s.FindByID(id)
	if !ok {
		return nil, pm.NewUnknownModelError(id)
	}
	v, ok := m.Value(property)
	if !ok {
		return nil, pm.NewUnknownPropertyError(id, property)
	}
	return v, nil
}

// Subscribe registers l for all future events of this store.
func (s *Store) Subscribe(l Listener) *Subscription {
	return s.subs.add(l)
}
