package engine

import (
	"github.com/roach88/pmsync/internal/pm"
	"github.com/roach88/pmsync/internal/schema"
)

// Repository maps beans of one side to their presentation models.
type Repository struct {
	e *Engine
}

// Create instantiates a bean of the given type.
//
// The bean starts out unreferenced and is kept alive until some other bean
// references it; from then on it is collected once it is no longer
// reachable. Use CreateRoot for beans that must live until deleted.
//
// The first bean of each type also creates the type's class descriptor.
func (r *Repository) Create(beanType string) (*Instance, error) {
	return r.create(beanType, false)
}

// CreateRoot instantiates a bean that stays alive until Delete.
func (r *Repository) CreateRoot(beanType string) (*Instance, error) {
	return r.create(beanType, true)
}

func (r *Repository) create(beanType string, root bool) (*Instance, error) {
	e := r.e
	var inst *Instance
	err := e.locked(func() error {
		bt, err := e.schema.Lookup(beanType)
		if err != nil {
			return err
		}
		if err := e.ensureClassDescriptorLocked(bt); err != nil {
			return err
		}

		id := e.ids.Generate()
		created, err := newInstance(e, id, bt, e.side)
		if err != nil {
			return err
		}
		if _, err := e.store.Create(id, bt.Name(), beanAttributes(bt, e.side)); err != nil {
			return err
		}
		e.adoptLocked(created, root)
		inst = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.logger.Info("bean created", "id", inst.id, "type", inst.Type(), "root", root)
	return inst, nil
}

// Delete removes a managed bean. Beans it referenced are collected if they
// are no longer reachable. The class descriptor is never removed.
func (r *Repository) Delete(bean any) error {
	inst, err := r.asInstance(bean)
	if err != nil {
		return err
	}
	e := r.e
	return e.locked(func() error {
		if inst.e != e || !inst.managed {
			return pm.NewBeanDefinitionError("bean %s is not managed by the %s repository", inst.id, e.side)
		}
		e.removeLocked(inst, "deleted")
		e.collectLocked()
		return nil
	})
}

// IsManaged reports whether bean is a live bean of this repository.
func (r *Repository) IsManaged(bean any) bool {
	inst, err := r.asInstance(bean)
	if err != nil {
		return false
	}
	e := r.e
	e.mu.Lock()
	defer e.mu.Unlock()
	return inst.e == e && inst.managed
}

// FindAll returns the managed beans of exactly the given type, in creation order.
func (r *Repository) FindAll(beanType string) []*Instance {
	e := r.e
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*Instance
	for _, m := range e.store.FindAllByType(beanType) {
		if inst, ok := e.instances[m.ID()]; ok {
			out = append(out, inst)
		}
	}
	return out
}

// Find returns the managed bean with the given model id.
func (r *Repository) Find(id string) (*Instance, bool) {
	e := r.e
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.instance(id)
}

// SetRoot pins or unpins a bean. An unpinned bean that nothing references
// is collected by the next Collect.
func (r *Repository) SetRoot(bean *Instance, root bool) error {
	inst, err := r.asInstance(bean)
	if err != nil {
		return err
	}
	e := r.e
	return e.locked(func() error {
		if inst.e != e || !inst.managed {
			return pm.NewBeanDefinitionError("bean %s is not managed by the %s repository", inst.id, e.side)
		}
		e.tracker.SetRoot(inst.id, root)
		return nil
	})
}

// Len returns the number of managed beans.
func (r *Repository) Len() int {
	e := r.e
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.instances)
}

func (r *Repository) asInstance(bean any) (*Instance, error) {
	if bean == nil {
		return nil, pm.NewNullArgumentError("bean")
	}
	inst, ok := bean.(*Instance)
	if !ok {
		return nil, pm.NewBeanDefinitionError("%T is not a bean", bean)
	}
	if inst == nil {
		return nil, pm.NewNullArgumentError("bean")
	}
	return inst, nil
}

// beanAttributes returns the initial attributes of a new bean model: one
// null attribute per declared property, then the source-system marker.
func beanAttributes(bt *schema.BeanType, side pm.Side) []pm.Attribute {
	props := bt.Properties()
	attrs := make([]pm.Attribute, 0, len(props)+1)
	for _, p := range props {
		attrs = append(attrs, pm.NewAttribute(p.Name, pm.Null{}))
	}
	return append(attrs, pm.NewAttribute(pm.AttrSourceSystem, pm.String(side)))
}

// ensureClassDescriptorLocked creates the class descriptor of bt once.
// Must be called with e.mu held.
func (e *Engine) ensureClassDescriptorLocked(bt *schema.BeanType) error {
	id := pm.ClassDescriptorID(bt.Name())
	if _, ok := e.store.FindByID(id); ok {
		return nil
	}
	props := bt.Properties()
	attrs := make([]pm.Attribute, 0, len(props)+1)
	for _, p := range props {
		tag, _ := e.schema.Tag(bt.Name(), p.Name)
		attrs = append(attrs, pm.NewAttribute(p.Name, pm.Int(tag)))
	}
	attrs = append(attrs, pm.NewAttribute(pm.AttrSourceSystem, pm.String(e.side)))
	if _, err := e.store.Create(id, pm.TypeClassDescriptor, attrs); err != nil {
		return err
	}
	e.logger.Debug("class descriptor created", "type", bt.Name())
	return nil
}

// adoptLocked makes inst a managed bean of this side.
// Must be called with e.mu held.
func (e *Engine) adoptLocked(inst *Instance, root bool) {
	inst.managed = true
	e.instances[inst.id] = inst
	e.tracker.Track(inst.id, root)
	e.metrics.setManaged(e.side, len(e.instances))
}

// removeLocked deletes a bean's model and releases its references.
// Must be called with e.mu held.
func (e *Engine) removeLocked(inst *Instance, reason string) {
	inst.managed = false
	delete(e.instances, inst.id)
	e.tracker.Untrack(inst.id)
	if err := e.store.DeleteByID(inst.id); err != nil {
		e.logger.Warn("bean model already gone", "id", inst.id, "error", err)
	}
	e.metrics.setManaged(e.side, len(e.instances))
	e.logger.Info("bean removed", "id", inst.id, "type", inst.Type(), "reason", reason)
}
