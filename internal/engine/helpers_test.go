package engine

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/pmsync/internal/convert"
	"github.com/roach88/pmsync/internal/pm"
	"github.com/roach88/pmsync/internal/schema"
	"github.com/roach88/pmsync/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// testRegistry declares the bean types used across the engine tests.
func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg := schema.NewRegistry(convert.NewRegistry())
	reg.MustRegister(
		schema.NewBuilder("SimpleTestModel").
			Value("text", convert.String).
			MustBuild(),
		schema.NewBuilder("Item").
			Value("name", convert.String).
			MustBuild(),
		schema.NewBuilder("ListModel").
			List("longs", convert.Long).
			List("texts", convert.String).
			ReferenceList("beans", "Item").
			MustBuild(),
		schema.NewBuilder("Measure").
			Value("value", convert.Double).
			List("samples", convert.Double).
			MustBuild(),
		schema.NewBuilder("Node").
			Value("label", convert.String).
			Reference("ref", "Node").
			ReferenceList("children", "Node").
			MustBuild(),
	)
	return reg
}

// recorder is an outbox that keeps every command for later delivery.
type recorder struct {
	mu   sync.Mutex
	cmds []pm.Command
}

func (r *recorder) Send(cmd pm.Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, cmd)
	return nil
}

func (r *recorder) take() []pm.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.cmds
	r.cmds = nil
	return out
}

func (r *recorder) peek() []pm.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]pm.Command, len(r.cmds))
	copy(out, r.cmds)
	return out
}

// pair is a client and a server engine joined by two recorders.
type pair struct {
	client, server     *Engine
	toServer, toClient *recorder
}

func newPair(t *testing.T, opts ...EngineOption) *pair {
	t.Helper()
	p := &pair{toServer: &recorder{}, toClient: &recorder{}}

	var err error
	p.client, err = New(pm.SideClient, testRegistry(t), append([]EngineOption{
		WithLogger(quietLogger()),
		WithIDGenerator(testutil.NewSequenceGenerator("c")),
		WithOutbox(p.toServer),
	}, opts...)...)
	require.NoError(t, err)

	p.server, err = New(pm.SideServer, testRegistry(t), append([]EngineOption{
		WithLogger(quietLogger()),
		WithIDGenerator(testutil.NewSequenceGenerator("s")),
		WithOutbox(p.toClient),
	}, opts...)...)
	require.NoError(t, err)
	return p
}

// deliver applies cmds to dst through the canonical wire encoding.
func deliver(t *testing.T, dst *Engine, cmds []pm.Command) {
	t.Helper()
	for _, cmd := range cmds {
		data, err := pm.EncodeCommand(cmd)
		require.NoError(t, err)
		decoded, err := pm.DecodeCommand(data)
		require.NoError(t, err)
		require.NoError(t, dst.Apply(decoded), "apply %s on %s", cmd, dst.Side())
	}
}

// flush delivers in both directions until no commands are left.
func (p *pair) flush(t *testing.T) {
	t.Helper()
	for {
		up := p.toServer.take()
		deliver(t, p.server, up)
		down := p.toClient.take()
		deliver(t, p.client, down)
		if len(up) == 0 && len(down) == 0 {
			return
		}
	}
}

func splices(cmds []pm.Command) []pm.Command {
	var out []pm.Command
	for _, c := range cmds {
		if c.Kind == pm.CommandCreate && c.ModelType == pm.TypeListSplice {
			out = append(out, c)
		}
	}
	return out
}

// spliceFields flattens a splice create command into name -> value.
func spliceFields(cmd pm.Command) map[string]pm.Value {
	out := make(map[string]pm.Value, len(cmd.Attributes))
	for _, a := range cmd.Attributes {
		out[a.Name] = a.Value
	}
	return out
}

func mustCreate(t *testing.T, e *Engine, beanType string) *Instance {
	t.Helper()
	inst, err := e.Repository().Create(beanType)
	require.NoError(t, err)
	return inst
}

func mustRoot(t *testing.T, e *Engine, beanType string) *Instance {
	t.Helper()
	inst, err := e.Repository().CreateRoot(beanType)
	require.NoError(t, err)
	return inst
}

func mustList(t *testing.T, inst *Instance, name string) *List {
	t.Helper()
	l, err := inst.List(name)
	require.NoError(t, err)
	return l
}

func mustProperty(t *testing.T, inst *Instance, name string) *Property {
	t.Helper()
	p, err := inst.Property(name)
	require.NoError(t, err)
	return p
}

// mirror returns the other side's instance of the same bean.
func mirror(t *testing.T, other *Engine, inst *Instance) *Instance {
	t.Helper()
	m, ok := other.Repository().Find(inst.ModelID())
	require.True(t, ok, "%s has no mirror of %s", other.Side(), inst)
	return m
}

func ids(values []any) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if inst, ok := v.(*Instance); ok && inst != nil {
			out[i] = inst.ModelID()
		}
	}
	return out
}
