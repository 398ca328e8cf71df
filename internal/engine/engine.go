package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/pmsync/internal/convert"
	"github.com/roach88/pmsync/internal/gc"
	"github.com/roach88/pmsync/internal/pm"
	"github.com/roach88/pmsync/internal/schema"
	"github.com/roach88/pmsync/internal/store"
)

// Engine is one side (client or server) of a synchronization session.
//
// It owns the side's presentation model store, bean repository, reference
// tracker and event dispatcher. Local mutations become commands handed to the
// outbox; commands from the other side enter through Apply.
//
// Thread-safety model:
//   - All public methods are safe from any goroutine.
//   - Every mutation of this side runs under one domain lock, so list splices
//     and the commands they produce are serialized in a single order.
//   - Change listeners run after the domain lock is released.
//   - The outbox is called with the domain lock held and must not call back
//     into this engine synchronously.
type Engine struct {
	side    pm.Side
	schema  *schema.Registry
	conv    *convert.Registry
	store   *store.Store
	tracker *gc.Tracker
	ids     IDGenerator
	logger  *slog.Logger
	metrics *Metrics
	outbox  Outbox

	mu        sync.Mutex
	instances map[string]*Instance
	notes     []func()

	dispatch *dispatcher
	repo     *Repository
	sub      *store.Subscription
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithIDGenerator sets the model id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) EngineOption {
	return func(e *Engine) {
		if g != nil {
			e.ids = g
		}
	}
}

// WithOutbox sets where outbound commands go. Without an outbox, commands
// are dropped after being logged.
func WithOutbox(o Outbox) EngineOption {
	return func(e *Engine) {
		e.outbox = o
	}
}

// WithMetrics records engine activity in m. Both sides may share one Metrics.
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithStore uses s instead of a fresh store. The store must be empty.
func WithStore(s *store.Store) EngineOption {
	return func(e *Engine) {
		if s != nil {
			e.store = s
		}
	}
}

// New creates the engine for one side.
//
// The schema registry is frozen: bean types must all be registered before
// the first engine is built.
func New(side pm.Side, reg *schema.Registry, opts ...EngineOption) (*Engine, error) {
	if !side.Valid() {
		return nil, fmt.Errorf("invalid side %q", side)
	}
	if reg == nil {
		return nil, pm.NewNullArgumentError("registry")
	}
	if err := reg.Freeze(); err != nil {
		return nil, fmt.Errorf("freeze schema: %w", err)
	}

	e := &Engine{
		side:      side,
		schema:    reg,
		conv:      reg.Converters(),
		tracker:   gc.NewTracker(),
		ids:       UUIDv7Generator{},
		logger:    slog.Default(),
		instances: make(map[string]*Instance),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.store == nil {
		e.store = store.New()
	}
	if e.store.Len() != 0 {
		return nil, fmt.Errorf("engine %s: store must be empty", side)
	}

	e.logger = e.logger.With("side", string(side))
	e.dispatch = newDispatcher(e)
	e.repo = &Repository{e: e}
	e.sub = e.store.Subscribe(e.dispatch.onStoreEvent)
	return e, nil
}

// Side returns which side of the session this engine is.
func (e *Engine) Side() pm.Side { return e.side }

// Store returns the engine's presentation model store.
// Callers must treat it as read-only; mutate through the repository.
func (e *Engine) Store() *store.Store { return e.store }

// Repository returns the bean repository of this side.
func (e *Engine) Repository() *Repository { return e.repo }

// Schema returns the bean type registry.
func (e *Engine) Schema() *schema.Registry { return e.schema }

// SetOutbox replaces the outbox. Used by transports that are wired after
// both engines exist.
func (e *Engine) SetOutbox(o Outbox) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.outbox = o
}

// Close detaches the engine from its store. Later store events are ignored.
func (e *Engine) Close() {
	e.sub.Unsubscribe()
}

// Apply applies one command received from the other side.
//
// The whole command is applied or an error is returned. A failed list splice
// record stays in the store and is retried if the same record is delivered
// again.
func (e *Engine) Apply(cmd pm.Command) error {
	return e.locked(func() error {
		return e.dispatch.apply(cmd)
	})
}

// Collect deletes every locally owned bean that is no longer reachable and
// returns their ids. Collection also runs automatically after every change
// that can drop a reference; calling it directly is only needed after
// SetRoot(false).
func (e *Engine) Collect() []string {
	var ids []string
	_ = e.locked(func() error {
		ids = e.collectLocked()
		return nil
	})
	return ids
}

// locked runs fn under the domain lock, then delivers any change
// notifications fn queued.
func (e *Engine) locked(fn func() error) error {
	e.mu.Lock()
	err := fn()
	notes := e.notes
	e.notes = nil
	e.mu.Unlock()

	for _, n := range notes {
		n()
	}
	return err
}

// notify queues a listener call for after the domain lock is released.
// Must be called with e.mu held.
func (e *Engine) notify(fn func()) {
	e.notes = append(e.notes, fn)
}

// instance returns the managed instance with the given model id.
// Must be called with e.mu held.
func (e *Engine) instance(id string) (*Instance, bool) {
	inst, ok := e.instances[id]
	return inst, ok
}
