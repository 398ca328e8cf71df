package pm

import (
	"strconv"
	"strings"
	"sync"
)

// Side identifies which process of a session produced a model.
type Side string

const (
	// SideClient is the client process.
	SideClient Side = "CLIENT"
	// SideServer is the server process.
	SideServer Side = "SERVER"
)

// Opposite returns the other side of the session.
func (s Side) Opposite() Side {
	if s == SideClient {
		return SideServer
	}
	return SideClient
}

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideClient || s == SideServer
}

// Reserved model types.
const (
	// TypeClassDescriptor is the type of the per-bean-type descriptor model.
	TypeClassDescriptor = "@@@ CLASS_DESCRIPTOR @@@"

	// TypeListSplice is the type of a transient list edit record.
	TypeListSplice = "LIST_SPLICE"
)

// Reserved attribute names.
//
// Bean property names must be identifiers, so none of these can collide
// with a declared property.
const (
	AttrSourceSystem = "source-system"

	SpliceSource    = "source"
	SpliceAttribute = "attribute"
	SpliceFrom      = "from"
	SpliceTo        = "to"
	SpliceCount     = "count"
)

// SpliceElement returns the attribute name of the i-th inserted element of a
// splice record.
func SpliceElement(i int) string {
	return strconv.Itoa(i)
}

const classDescriptorPrefix = "@class:"

// ClassDescriptorID returns the model id of the class descriptor for beanType.
func ClassDescriptorID(beanType string) string {
	return classDescriptorPrefix + beanType
}

// DescribedType returns the bean type a class descriptor id stands for.
func DescribedType(id string) (string, bool) {
	return strings.CutPrefix(id, classDescriptorPrefix)
}

// Attribute is one named slot of a presentation model.
//
// Qualifier, when set, groups attributes that belong to one atomic tuple
// (all attributes of a splice record share the record id as qualifier).
type Attribute struct {
	Name      string `json:"name"`
	Value     Value  `json:"value"`
	Qualifier string `json:"qualifier,omitempty"`
}

// NewAttribute creates an attribute with the given name and value.
func NewAttribute(name string, value Value) Attribute {
	return Attribute{Name: name, Value: OrNull(value)}
}

// PresentationModel is the wire/state representation of a bean or of a
// transient change command.
//
// Attribute order is fixed at creation. Values are mutable; use
// Store.SetValue so that subscribers are notified.
//
// Thread-safety: attribute values are guarded by an internal RWMutex.
type PresentationModel struct {
	id    string
	typ   string
	names []string

	mu    sync.RWMutex
	attrs map[string]*Attribute
}

// NewPresentationModel builds a model from an attribute list.
// Returns the first duplicated attribute name, if any, as dup.
func NewPresentationModel(id, typ string, attrs []Attribute) (m *PresentationModel, dup string) {
	m = &PresentationModel{
		id:    id,
		typ:   typ,
		names: make([]string, 0, len(attrs)),
		attrs: make(map[string]*Attribute, len(attrs)),
	}
	for _, a := range attrs {
		if _, exists := m.attrs[a.Name]; exists {
			return nil, a.Name
		}
		a.Value = OrNull(a.Value)
		attr := a
		m.names = append(m.names, a.Name)
		m.attrs[a.Name] = &attr
	}
	return m, ""
}

// ID returns the globally unique model id.
func (m *PresentationModel) ID() string { return m.id }

// Type returns the model type.
func (m *PresentationModel) Type() string { return m.typ }

// Has reports whether the model declares an attribute with the given name.
func (m *PresentationModel) Has(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.attrs[name]
	return ok
}

// Value returns the current value of the named attribute.
// The second result is false if no such attribute exists.
func (m *PresentationModel) Value(name string) (Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attrs[name]
	if !ok {
		return nil, false
	}
	return a.Value, true
}

// Attribute returns a copy of the named attribute.
func (m *PresentationModel) Attribute(name string) (Attribute, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attrs[name]
	if !ok {
		return Attribute{}, false
	}
	return *a, true
}

// Attributes returns a snapshot of all attributes in declaration order.
func (m *PresentationModel) Attributes() []Attribute {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Attribute, 0, len(m.names))
	for _, n := range m.names {
		out = append(out, *m.attrs[n])
	}
	return out
}

// SourceSystem returns the side recorded in the source-system attribute,
// or "" if the model has none.
func (m *PresentationModel) SourceSystem() Side {
	v, ok := m.Value(AttrSourceSystem)
	if !ok {
		return ""
	}
	s, _ := v.(String)
	return Side(s)
}

// Put replaces the value of an existing attribute and returns the previous
// value. It does not notify anyone; Store.SetValue is the public entry point.
func (m *PresentationModel) Put(name string, v Value) (old Value, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attrs[name]
	if !ok {
		return nil, false
	}
	old = a.Value
	a.Value = OrNull(v)
	return old, true
}

// Snapshot returns a detached copy of the model.
func (m *PresentationModel) Snapshot() Snapshot {
	return Snapshot{ID: m.id, Type: m.typ, Attributes: m.Attributes()}
}

// Snapshot is a value copy of a presentation model, as exchanged over the
// transport and handed to subscribers.
type Snapshot struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Attributes []Attribute `json:"attributes"`
}

// Value returns the value of the named attribute in the snapshot.
func (s Snapshot) Value(name string) (Value, bool) {
	for _, a := range s.Attributes {
		if a.Name == name {
			return a.Value, true
		}
	}
	return nil, false
}
