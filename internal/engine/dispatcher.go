package engine

import (
	"fmt"
	"sync"

	"github.com/roach88/pmsync/internal/gc"
	"github.com/roach88/pmsync/internal/pm"
	"github.com/roach88/pmsync/internal/store"
)

// dispatcher turns store events into outbound commands and applies inbound
// commands to local state.
//
// Echo suppression: while a remote command for model X is being applied,
// store events for X are not sent back. The guard is keyed by model id and
// lasts for one apply call only, so side effects on other models (beans
// collected as a consequence of the apply) are still announced.
type dispatcher struct {
	e     *Engine
	guard echoGuard

	// consumed holds ids of inbound splices applied successfully. A record
	// delivered again after that is ignored. Guarded by e.mu.
	consumed map[string]bool
}

func newDispatcher(e *Engine) *dispatcher {
	return &dispatcher{
		e:        e,
		guard:    echoGuard{active: make(map[string]int)},
		consumed: make(map[string]bool),
	}
}

// echoGuard is a reentrant set of model ids currently being applied.
type echoGuard struct {
	mu     sync.Mutex
	active map[string]int
}

func (g *echoGuard) enter(id string) func() {
	g.mu.Lock()
	g.active[id]++
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.active[id] <= 1 {
			delete(g.active, id)
		} else {
			g.active[id]--
		}
	}
}

func (g *echoGuard) suppressed(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active[id] > 0
}

// onStoreEvent is the outbound path. Store events fire under the domain lock.
func (d *dispatcher) onStoreEvent(ev store.Event) {
	if d.guard.suppressed(ev.ModelID) {
		d.e.logger.Debug("echo suppressed", "kind", ev.Kind.String(), "id", ev.ModelID)
		return
	}

	var cmd pm.Command
	switch ev.Kind {
	case store.ModelCreated:
		cmd = pm.CreateCommand(ev.Model.Snapshot())
	case store.ValueChanged:
		cmd = pm.ChangeCommand(ev.ModelID, ev.Property, ev.Old, ev.New)
	case store.ModelDeleted:
		// Splice records are transient on both sides; the receiver deletes
		// its own copy once applied.
		if ev.ModelType == pm.TypeListSplice {
			return
		}
		cmd = pm.DeleteCommand(ev.ModelID, ev.ModelType)
	default:
		return
	}
	d.send(cmd)
}

func (d *dispatcher) send(cmd pm.Command) {
	e := d.e
	if e.outbox == nil {
		e.logger.Debug("no outbox, command dropped", "command", cmd.String())
		return
	}
	if err := e.outbox.Send(cmd); err != nil {
		e.logger.Error("send failed",
			"command", cmd.String(),
			"error", err,
		)
		return
	}
	e.metrics.sent(e.side, cmd.Kind)
	e.logger.Debug("command sent", "command", cmd.String())
}

// publishSplice materializes a local splice as a LIST_SPLICE model, which the
// outbound path sends, and deletes it again.
// Must be called with e.mu held.
func (d *dispatcher) publishSplice(rec spliceRecord) error {
	e := d.e
	if _, err := e.store.Create(rec.ID, pm.TypeListSplice, rec.attributes()); err != nil {
		return fmt.Errorf("publish splice: %w", err)
	}
	e.metrics.splice(e.side, "outbound")
	return e.store.DeleteByID(rec.ID)
}

// apply is the inbound path. Must be called with e.mu held.
func (d *dispatcher) apply(cmd pm.Command) error {
	e := d.e
	if err := cmd.Validate(); err != nil {
		return err
	}

	release := d.guard.enter(cmd.ModelID)
	defer release()

	var err error
	switch cmd.Kind {
	case pm.CommandCreate:
		err = d.applyCreate(cmd)
	case pm.CommandChange:
		err = d.applyChange(cmd)
	case pm.CommandDelete:
		err = d.applyDelete(cmd)
	}
	if err != nil {
		e.metrics.failed(e.side, err)
		e.logger.Warn("apply failed",
			"command", cmd.String(),
			"error", err,
		)
		return err
	}

	e.metrics.applied(e.side, cmd.Kind)
	e.logger.Debug("command applied", "command", cmd.String())
	return nil
}

func (d *dispatcher) applyCreate(cmd pm.Command) error {
	switch cmd.ModelType {
	case pm.TypeClassDescriptor:
		return d.applyClassDescriptor(cmd)
	case pm.TypeListSplice:
		return d.applySplice(cmd)
	default:
		return d.applyBeanCreate(cmd)
	}
}

// applyClassDescriptor checks the other side's converter tags against ours.
// Both sides create the descriptor of a type lazily, so a descriptor that
// is already present is verified and otherwise ignored.
func (d *dispatcher) applyClassDescriptor(cmd pm.Command) error {
	e := d.e
	name, ok := pm.DescribedType(cmd.ModelID)
	if !ok {
		return pm.NewSchemaMismatchError(cmd.ModelID, "malformed class descriptor id")
	}
	if !e.schema.Has(name) {
		return pm.NewSchemaMismatchError(name, "bean type is not registered on this side")
	}

	snap := cmd.Snapshot()
	declared := 0
	for _, a := range snap.Attributes {
		if a.Name == pm.AttrSourceSystem {
			continue
		}
		declared++
		tag, ok := e.schema.Tag(name, a.Name)
		if !ok {
			return pm.NewSchemaMismatchError(name, fmt.Sprintf("property %q is not declared on this side", a.Name))
		}
		if !pm.Equal(a.Value, pm.Int(tag)) {
			return pm.NewSchemaMismatchError(name,
				fmt.Sprintf("property %q has tag %s, expected %d", a.Name, pm.FormatValue(a.Value), int(tag)))
		}
	}
	bt, _ := e.schema.Lookup(name)
	if want := len(bt.Properties()); declared != want {
		return pm.NewSchemaMismatchError(name, fmt.Sprintf("descriptor declares %d properties, expected %d", declared, want))
	}

	if _, exists := e.store.FindByID(cmd.ModelID); exists {
		e.logger.Debug("class descriptor verified", "type", name)
		return nil
	}
	_, err := e.store.Create(cmd.ModelID, cmd.ModelType, cmd.Attributes)
	return err
}

func (d *dispatcher) applyBeanCreate(cmd pm.Command) error {
	e := d.e
	if _, exists := e.store.FindByID(cmd.ModelID); exists {
		return pm.NewDuplicateIDError(cmd.ModelID)
	}
	bt, err := e.schema.Lookup(cmd.ModelType)
	if err != nil {
		return err
	}

	snap := cmd.Snapshot()
	owner := e.side.Opposite()
	if v, ok := snap.Value(pm.AttrSourceSystem); ok {
		if s, ok := v.(pm.String); ok && pm.Side(s).Valid() {
			owner = pm.Side(s)
		}
	}

	inst, err := newInstance(e, cmd.ModelID, bt, owner)
	if err != nil {
		return err
	}
	seen := make(map[string]bool, len(snap.Attributes))
	for _, a := range snap.Attributes {
		if a.Name == pm.AttrSourceSystem {
			continue
		}
		decl, ok := bt.Property(a.Name)
		if !ok {
			return pm.NewSchemaMismatchError(bt.Name(), fmt.Sprintf("property %q is not declared on this side", a.Name))
		}
		seen[a.Name] = true
		if p, ok := inst.props[a.Name]; ok {
			if err := e.validateWire(cmd.ModelID, decl, p.conv, a.Value); err != nil {
				return err
			}
		}
	}
	for _, decl := range bt.Properties() {
		if !seen[decl.Name] {
			return pm.NewSchemaMismatchError(bt.Name(), fmt.Sprintf("property %q is missing", decl.Name))
		}
	}

	if _, err := e.store.Create(cmd.ModelID, cmd.ModelType, cmd.Attributes); err != nil {
		return err
	}
	e.adoptLocked(inst, owner != e.side)

	for name, p := range inst.props {
		if !p.decl.IsReference() {
			continue
		}
		if id, ok := p.Value().(pm.String); ok {
			e.tracker.Register(inst.id, string(id), gc.Property(name))
		}
	}
	return nil
}

func (d *dispatcher) applyChange(cmd pm.Command) error {
	e := d.e
	m, ok := e.store.FindByID(cmd.ModelID)
	if !ok {
		return pm.NewUnknownModelError(cmd.ModelID)
	}
	inst, isBean := e.instance(cmd.ModelID)
	if !isBean {
		return e.store.SetValue(cmd.ModelID, cmd.Property, cmd.New)
	}
	p, ok := inst.props[cmd.Property]
	if !ok {
		if _, isList := inst.lists[cmd.Property]; isList {
			return &pm.Error{
				Code:     pm.ErrCodeTypeMismatch,
				Message:  "list properties change through splices only",
				ModelID:  cmd.ModelID,
				Property: cmd.Property,
			}
		}
		return e.store.SetValue(cmd.ModelID, cmd.Property, cmd.New)
	}

	wire := pm.OrNull(cmd.New)
	if err := e.validateWire(cmd.ModelID, p.decl, p.conv, wire); err != nil {
		return err
	}
	old, _ := m.Value(cmd.Property)
	if pm.Equal(old, wire) {
		return nil
	}
	return e.setValueLocked(p, old, wire, true)
}

func (d *dispatcher) applyDelete(cmd pm.Command) error {
	e := d.e
	inst, ok := e.instance(cmd.ModelID)
	if !ok {
		if _, exists := e.store.FindByID(cmd.ModelID); exists {
			return e.store.DeleteByID(cmd.ModelID)
		}
		e.logger.Debug("delete of unknown model ignored", "id", cmd.ModelID)
		return nil
	}
	e.removeLocked(inst, "remote delete")
	e.collectLocked()
	return nil
}

// applySplice replays an inbound LIST_SPLICE record.
//
// The record is stored first, then validated in full, then replayed and
// deleted. On failure it stays in the store and a later delivery of the same
// record retries it.
func (d *dispatcher) applySplice(cmd pm.Command) error {
	e := d.e
	if d.consumed[cmd.ModelID] {
		e.logger.Debug("splice already consumed", "id", cmd.ModelID)
		return nil
	}

	m, pending := e.store.FindByID(cmd.ModelID)
	if pending {
		e.logger.Info("retrying pending splice", "id", cmd.ModelID)
	} else {
		var err error
		if m, err = e.store.Create(cmd.ModelID, cmd.ModelType, cmd.Attributes); err != nil {
			return err
		}
	}

	rec, err := parseSplice(m)
	if err != nil {
		return err
	}
	inst, ok := e.instance(rec.Source)
	if !ok {
		return pm.NewUnknownModelError(rec.Source)
	}
	list, ok := inst.lists[rec.Attribute]
	if !ok {
		return pm.NewUnknownPropertyError(rec.Source, rec.Attribute)
	}
	if err := list.checkSplice(rec); err != nil {
		return err
	}

	dropped := list.replaceLocked(rec.From, rec.To, rec.Values, true)
	if err := e.store.DeleteByID(rec.ID); err != nil {
		return err
	}
	d.consumed[rec.ID] = true
	e.metrics.splice(e.side, "inbound")

	if dropped {
		e.collectLocked()
	}
	return nil
}

// Pending returns the ids of inbound splice records whose apply failed and
// that are still waiting for a retry.
func (e *Engine) Pending() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var ids []string
	for _, m := range e.store.FindAllByType(pm.TypeListSplice) {
		ids = append(ids, m.ID())
	}
	return ids
}
