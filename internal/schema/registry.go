package schema

import (
	"fmt"
	"sort"
	"sync"

	"github.com/roach88/pmsync/internal/convert"
	"github.com/roach88/pmsync/internal/pm"
)

// Registry holds the bean types known to one process.
//
// Registration resolves every property's converter immediately, so an
// unsupported value type fails at startup rather than on first use.
//
// Thread-safety: safe for concurrent use. Registration fails once frozen.
type Registry struct {
	mu         sync.RWMutex
	converters *convert.Registry
	types      map[string]*BeanType
	tags       map[string]map[string]convert.FieldType
	frozen     bool
}

// NewRegistry creates an empty registry resolving value types through conv.
// A nil conv uses convert.Default().
func NewRegistry(conv *convert.Registry) *Registry {
	if conv == nil {
		conv = convert.Default()
	}
	return &Registry{
		converters: conv,
		types:      make(map[string]*BeanType),
		tags:       make(map[string]map[string]convert.FieldType),
	}
}

// Converters returns the converter registry used by this schema registry.
func (r *Registry) Converters() *convert.Registry {
	return r.converters
}

// Register adds a bean type.
//
// Fails with an UnsupportedTypeError if any property's value type has no
// converter, and with a BeanDefinitionError if the name is taken.
func (r *Registry) Register(bt *BeanType) error {
	if bt == nil {
		return pm.NewNullArgumentError("beanType")
	}
	if ReservedTypeName(bt.name) {
		return pm.NewBeanDefinitionError("bean type name %q is reserved", bt.name)
	}

	tags := make(map[string]convert.FieldType, len(bt.properties))
	for _, p := range bt.properties {
		c, err := r.converters.Resolve(p.Type)
		if err != nil {
			return fmt.Errorf("register %s.%s: %w", bt.name, p.Name, err)
		}
		tags[p.Name] = c.Tag()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register %s: schema registry is frozen", bt.name)
	}
	if _, exists := r.types[bt.name]; exists {
		return pm.NewBeanDefinitionError("bean type %q is already registered", bt.name)
	}
	r.types[bt.name] = bt
	r.tags[bt.name] = tags
	return nil
}

// MustRegister registers each type and panics on the first error.
func (r *Registry) MustRegister(types ...*BeanType) *Registry {
	for _, bt := range types {
		if err := r.Register(bt); err != nil {
			panic(err)
		}
	}
	return r
}

// Freeze checks that every reference target is registered, then makes the
// registry (and its converter registry) read-only. Freeze is idempotent.
func (r *Registry) Freeze() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return nil
	}
	for _, name := range r.sortedNamesLocked() {
		for _, p := range r.types[name].properties {
			if p.Target == "" {
				continue
			}
			if _, ok := r.types[p.Target]; !ok {
				return pm.NewBeanDefinitionError("%s.%s references unregistered bean type %q", name, p.Name, p.Target)
			}
		}
	}
	r.frozen = true
	r.converters.Freeze()
	return nil
}

// Lookup returns the named bean type or a BeanDefinitionError.
func (r *Registry) Lookup(name string) (*BeanType, error) {
	if name == "" {
		return nil, pm.NewBeanDefinitionError("bean type must not be empty")
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	bt, ok := r.types[name]
	if !ok {
		return nil, pm.NewBeanDefinitionError("%q is not a registered bean type", name)
	}
	return bt, nil
}

// Has reports whether name is a registered bean type.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[name]
	return ok
}

// Tag returns the field-type tag of a registered property.
func (r *Registry) Tag(beanType, property string) (convert.FieldType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags, ok := r.tags[beanType]
	if !ok {
		return convert.TagUnknown, false
	}
	tag, ok := tags[property]
	return tag, ok
}

// Converter resolves the converter of a registered property.
func (r *Registry) Converter(bt *BeanType, property string) (convert.Converter, error) {
	p, ok := bt.Property(property)
	if !ok {
		return nil, pm.NewUnknownPropertyError("", property)
	}
	return r.converters.Resolve(p.Type)
}

// Names returns the registered bean type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedNamesLocked()
}

func (r *Registry) sortedNamesLocked() []string {
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
