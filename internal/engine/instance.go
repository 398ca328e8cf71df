package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/pmsync/internal/convert"
	"github.com/roach88/pmsync/internal/gc"
	"github.com/roach88/pmsync/internal/pm"
	"github.com/roach88/pmsync/internal/schema"
)

// Instance is a bean on one side, backed by one presentation model.
//
// Instances are created by the Repository (locally) or by the dispatcher
// (when the other side announces a bean). An Instance that has been deleted
// stays valid as a Go value but rejects mutation.
type Instance struct {
	e     *Engine
	id    string
	bt    *schema.BeanType
	owner pm.Side

	managed bool // guarded by e.mu

	props map[string]*Property
	lists map[string]*List
}

func newInstance(e *Engine, id string, bt *schema.BeanType, owner pm.Side) (*Instance, error) {
	inst := &Instance{
		e:     e,
		id:    id,
		bt:    bt,
		owner: owner,
		props: make(map[string]*Property),
		lists: make(map[string]*List),
	}
	for _, decl := range bt.Properties() {
		c, err := e.conv.Resolve(decl.Type)
		if err != nil {
			return nil, fmt.Errorf("bean %s.%s: %w", bt.Name(), decl.Name, err)
		}
		if decl.IsList() {
			inst.lists[decl.Name] = &List{inst: inst, decl: decl, conv: c}
		} else {
			inst.props[decl.Name] = &Property{inst: inst, decl: decl, conv: c}
		}
	}
	return inst, nil
}

// ModelID returns the id of the backing presentation model.
func (i *Instance) ModelID() string { return i.id }

// Type returns the bean type name.
func (i *Instance) Type() string { return i.bt.Name() }

// Owner returns the side that created the bean.
func (i *Instance) Owner() pm.Side { return i.owner }

// Managed reports whether the bean is still managed by its repository.
func (i *Instance) Managed() bool {
	i.e.mu.Lock()
	defer i.e.mu.Unlock()
	return i.managed
}

// Property returns the named single-valued property.
func (i *Instance) Property(name string) (*Property, error) {
	p, ok := i.props[name]
	if !ok {
		return nil, pm.NewUnknownPropertyError(i.id, name)
	}
	return p, nil
}

// List returns the named list property.
func (i *Instance) List(name string) (*List, error) {
	l, ok := i.lists[name]
	if !ok {
		return nil, pm.NewUnknownPropertyError(i.id, name)
	}
	return l, nil
}

func (i *Instance) String() string {
	return fmt.Sprintf("%s(%s)", i.bt.Name(), i.id)
}

// PropertyChange describes one property value change.
type PropertyChange struct {
	Property string
	Old      any
	New      any

	// Remote is true when the change was applied from the other side.
	Remote bool
}

// Property is a single-valued bean property. Its value lives in the
// presentation model attribute of the same name.
type Property struct {
	inst      *Instance
	decl      schema.Property
	conv      convert.Converter
	listeners listenerSet[PropertyChange]
}

// Name returns the property name.
func (p *Property) Name() string { return p.decl.Name }

// Value returns the current wire value.
func (p *Property) Value() pm.Value {
	v, err := p.inst.e.store.ValueOf(p.inst.id, p.decl.Name)
	if err != nil {
		return pm.Null{}
	}
	return v
}

// Get returns the current native value: the converter's native type for
// scalars, *Instance for bean references, or nil.
func (p *Property) Get() any {
	e := p.inst.e
	var out any
	_ = e.locked(func() error {
		out = e.native(p.decl, p.conv, p.Value())
		return nil
	})
	return out
}

// Set assigns a new value. Bean references accept *Instance or
// convert.Reference. Setting the current value again does nothing.
func (p *Property) Set(v any) error {
	e := p.inst.e
	return e.locked(func() error {
		if !p.inst.managed {
			return pm.NewBeanDefinitionError("bean %s is no longer managed", p.inst.id)
		}
		wire, err := e.toWire(p.inst.id, p.decl, p.conv, v)
		if err != nil {
			return err
		}
		old := p.Value()
		if pm.Equal(old, wire) {
			return nil
		}
		return e.setValueLocked(p, old, wire, false)
	})
}

// OnChange registers fn for local and remote changes of this property.
func (p *Property) OnChange(fn func(PropertyChange)) *Subscription {
	return p.listeners.add(fn)
}

// setValueLocked writes a new value, keeps reference edges in step, notifies
// listeners and collects beans the old value may have orphaned.
// Must be called with e.mu held.
func (e *Engine) setValueLocked(p *Property, old, wire pm.Value, remote bool) error {
	change := PropertyChange{
		Property: p.decl.Name,
		Old:      e.native(p.decl, p.conv, old),
		New:      e.native(p.decl, p.conv, wire),
		Remote:   remote,
	}

	if err := e.store.SetValue(p.inst.id, p.decl.Name, wire); err != nil {
		return err
	}

	dropped := false
	if p.decl.IsReference() {
		origin := gc.Property(p.decl.Name)
		if id, ok := old.(pm.String); ok {
			dropped = e.tracker.Unregister(p.inst.id, string(id), origin)
		}
		if id, ok := wire.(pm.String); ok {
			e.tracker.Register(p.inst.id, string(id), origin)
		}
	}

	e.logger.Debug("property changed",
		"id", p.inst.id,
		"property", p.decl.Name,
		"old", pm.FormatValue(old),
		"new", pm.FormatValue(wire),
		"remote", remote,
	)
	emit(e, &p.listeners, change)

	if dropped {
		e.collectLocked()
	}
	return nil
}

// toWire converts a native value for the given property or list element.
// Bean references must point at a bean managed by this engine.
// Must be called with e.mu held.
func (e *Engine) toWire(modelID string, decl schema.Property, c convert.Converter, v any) (pm.Value, error) {
	if !decl.IsReference() {
		wire, err := c.ToWire(v)
		if err != nil {
			return nil, annotate(err, modelID, decl.Name)
		}
		return wire, nil
	}

	if inst, ok := v.(*Instance); ok && inst != nil {
		if inst.e != e || !inst.managed {
			return nil, pm.NewBeanDefinitionError("bean %s is not managed by the %s repository", inst.id, e.side)
		}
		if err := checkTarget(modelID, decl, inst); err != nil {
			return nil, err
		}
		return pm.String(inst.id), nil
	}

	wire, err := c.ToWire(v)
	if err != nil {
		return nil, annotate(err, modelID, decl.Name)
	}
	if _, err := e.resolve(modelID, decl, wire); err != nil {
		return nil, err
	}
	return wire, nil
}

// resolve maps a wire bean reference to the managed instance it names.
// Null resolves to nil. Must be called with e.mu held.
func (e *Engine) resolve(modelID string, decl schema.Property, wire pm.Value) (*Instance, error) {
	switch v := pm.OrNull(wire).(type) {
	case pm.Null:
		return nil, nil
	case pm.String:
		inst, ok := e.instances[string(v)]
		if !ok {
			return nil, pm.NewReferenceResolutionError(modelID, decl.Name, string(v))
		}
		if err := checkTarget(modelID, decl, inst); err != nil {
			return nil, err
		}
		return inst, nil
	default:
		return nil, annotate(pm.NewTypeMismatchError(decl.Name, "bean id", wire), modelID, decl.Name)
	}
}

// validateWire checks that an inbound wire value fits the declared type.
// Must be called with e.mu held.
func (e *Engine) validateWire(modelID string, decl schema.Property, c convert.Converter, wire pm.Value) error {
	if decl.IsReference() {
		_, err := e.resolve(modelID, decl, wire)
		return err
	}
	if _, err := c.FromWire(wire); err != nil {
		return annotate(err, modelID, decl.Name)
	}
	return nil
}

// native converts a wire value back to its application form. Values that
// do not decode (a dangling bean id, for instance) read as nil.
// Must be called with e.mu held.
func (e *Engine) native(decl schema.Property, c convert.Converter, wire pm.Value) any {
	if decl.IsReference() {
		id, ok := wire.(pm.String)
		if !ok {
			return nil
		}
		inst, ok := e.instances[string(id)]
		if !ok {
			return nil
		}
		return inst
	}
	v, err := c.FromWire(wire)
	if err != nil {
		return nil
	}
	return v
}

func checkTarget(modelID string, decl schema.Property, inst *Instance) error {
	if decl.Target == "" || decl.Target == inst.Type() {
		return nil
	}
	return &pm.Error{
		Code:     pm.ErrCodeTypeMismatch,
		Message:  fmt.Sprintf("expected bean of type %s, got %s", decl.Target, inst.Type()),
		ModelID:  modelID,
		Property: decl.Name,
	}
}

// annotate fills in the model and property of a converter error.
func annotate(err error, modelID, property string) error {
	var pe *pm.Error
	if !errors.As(err, &pe) {
		return &pm.Error{
			Code:     pm.ErrCodeTypeMismatch,
			Message:  err.Error(),
			ModelID:  modelID,
			Property: property,
		}
	}
	out := *pe
	if out.ModelID == "" {
		out.ModelID = modelID
	}
	if out.Property == "" {
		out.Property = property
	}
	return &out
}
