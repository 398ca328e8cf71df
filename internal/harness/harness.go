package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/pmsync/internal/convert"
	"github.com/roach88/pmsync/internal/engine"
	"github.com/roach88/pmsync/internal/journal"
	"github.com/roach88/pmsync/internal/pm"
	"github.com/roach88/pmsync/internal/schema"
	"github.com/roach88/pmsync/internal/testutil"
	"github.com/roach88/pmsync/internal/transport"
)

// Harness is the scenario execution context: a connected engine pair, the
// session journal and the scenario's bean aliases.
type Harness struct {
	session *transport.Session
	journal *journal.Journal
	aliases map[string]string // alias -> model id
	logger  *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario gets fresh engines and a fresh in-memory journal. An error
// is returned only when the scenario cannot run at all; step and assertion
// failures are reported in the result.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario, nil)
}

// RunContext is Run with a context and an optional logger for the engines.
func RunContext(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Result, error) {
	j, err := journal.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory journal: %w", err)
	}
	defer j.Close()
	return RunJournal(ctx, scenario, j, logger)
}

// RunOption configures RunJournal.
type RunOption func(*runConfig)

type runConfig struct {
	metrics *engine.Metrics
}

// WithMetrics records both engines' activity in m.
func WithMetrics(m *engine.Metrics) RunOption {
	return func(c *runConfig) {
		c.metrics = m
	}
}

// RunJournal is RunContext recording into j instead of a private in-memory
// journal. The trace is everything j holds afterwards, so j must be empty.
func RunJournal(ctx context.Context, scenario *Scenario, j *journal.Journal, logger *slog.Logger, opts ...RunOption) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	last, err := j.LastSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	if last != 0 {
		return nil, fmt.Errorf("journal already holds %d commands", last)
	}
	doc, err := schema.LoadFile(scenario.Schema)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	client, err := newEngine(pm.SideClient, doc, logger, cfg.metrics)
	if err != nil {
		return nil, err
	}
	server, err := newEngine(pm.SideServer, doc, logger, cfg.metrics)
	if err != nil {
		return nil, err
	}
	session, err := transport.Connect(client, server,
		transport.WithSessionJournal(j),
		transport.WithSessionLogger(logger))
	if err != nil {
		return nil, err
	}

	h := &Harness{
		session: session,
		journal: j,
		aliases: make(map[string]string),
		logger:  logger,
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		err := h.execute(ctx, step)
		if msg := checkStep(i, step, err); msg != "" {
			result.AddError(msg)
		}
	}

	entries, err := j.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	if result.Trace, err = traceFromJournal(entries); err != nil {
		return nil, fmt.Errorf("read journal: %w", err)
	}

	for _, msg := range h.evaluate(result.Trace, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func newEngine(side pm.Side, doc *schema.Document, logger *slog.Logger, metrics *engine.Metrics) (*engine.Engine, error) {
	reg := schema.NewRegistry(convert.NewRegistry())
	if err := doc.Apply(reg); err != nil {
		return nil, fmt.Errorf("%s schema: %w", side, err)
	}
	prefix := "c"
	if side == pm.SideServer {
		prefix = "s"
	}
	return engine.New(side, reg,
		engine.WithLogger(logger),
		engine.WithIDGenerator(testutil.NewSequenceGenerator(prefix)),
		engine.WithMetrics(metrics))
}

// checkStep compares a step's outcome with its expected error code.
func checkStep(i int, step Step, err error) string {
	got := pm.CodeOf(err)
	switch {
	case step.Error == "" && err != nil:
		return fmt.Sprintf("step %d (%s): %v", i, step.Op, err)
	case step.Error != "" && err == nil:
		return fmt.Sprintf("step %d (%s): expected error %s, got success", i, step.Op, step.Error)
	case step.Error != "" && got != step.Error:
		return fmt.Sprintf("step %d (%s): expected error %s, got %v", i, step.Op, step.Error, err)
	}
	return ""
}

func (h *Harness) engine(side pm.Side) *engine.Engine {
	if side == pm.SideServer {
		return h.session.Server()
	}
	return h.session.Client()
}

// bean resolves an alias on one side.
func (h *Harness) bean(side pm.Side, alias string) (*engine.Instance, error) {
	id, ok := h.aliases[alias]
	if !ok {
		return nil, fmt.Errorf("unknown bean alias %q", alias)
	}
	inst, ok := h.engine(side).Repository().Find(id)
	if !ok {
		return nil, pm.NewUnknownModelError(id)
	}
	return inst, nil
}

// native turns a YAML value into something the engine accepts: "@alias"
// becomes the bean on side.
func (h *Harness) native(side pm.Side, v any) (any, error) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "@") {
		return v, nil
	}
	return h.bean(side, strings.TrimPrefix(s, "@"))
}

func (h *Harness) natives(side pm.Side, vs []any) ([]any, error) {
	out := make([]any, len(vs))
	for i, v := range vs {
		n, err := h.native(side, v)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// wire turns a YAML value into the wire value assertions compare against.
func (h *Harness) wire(v any) (pm.Value, error) {
	if s, ok := v.(string); ok && strings.HasPrefix(s, "@") {
		id, ok := h.aliases[strings.TrimPrefix(s, "@")]
		if !ok {
			return nil, fmt.Errorf("unknown bean alias %q", s)
		}
		return pm.String(id), nil
	}
	return pm.ValueOf(v)
}

func (h *Harness) execute(ctx context.Context, step Step) error {
	side := step.side()
	e := h.engine(side)

	switch step.Op {
	case OpCreate:
		if _, dup := h.aliases[step.Bean]; dup {
			return fmt.Errorf("bean alias %q already bound", step.Bean)
		}
		create := e.Repository().Create
		if step.Root {
			create = e.Repository().CreateRoot
		}
		inst, err := create(step.Type)
		if err != nil {
			return err
		}
		h.aliases[step.Bean] = inst.ModelID()
		return nil

	case OpSet:
		inst, err := h.bean(side, step.Bean)
		if err != nil {
			return err
		}
		p, err := inst.Property(step.Property)
		if err != nil {
			return err
		}
		v, err := h.native(side, step.Value)
		if err != nil {
			return err
		}
		return p.Set(v)

	case OpAdd, OpInsert, OpRemove, OpSplice, OpClear:
		inst, err := h.bean(side, step.Bean)
		if err != nil {
			return err
		}
		l, err := inst.List(step.List)
		if err != nil {
			return err
		}
		vs, err := h.natives(side, step.Values)
		if err != nil {
			return err
		}
		switch step.Op {
		case OpAdd:
			return l.AddAll(vs...)
		case OpInsert:
			return l.Insert(step.Index, vs...)
		case OpRemove:
			_, err := l.Remove(step.Index)
			return err
		case OpSplice:
			return l.Splice(step.From, step.To, vs...)
		default:
			return l.Clear()
		}

	case OpDelete:
		inst, err := h.bean(side, step.Bean)
		if err != nil {
			return err
		}
		return e.Repository().Delete(inst)

	case OpUnroot:
		inst, err := h.bean(side, step.Bean)
		if err != nil {
			return err
		}
		return e.Repository().SetRoot(inst, false)

	case OpCollect:
		ids := e.Collect()
		h.logger.Info("collect step", "side", string(side), "collected", len(ids))
		return nil

	case OpFlush:
		res, err := h.session.Flush(ctx)
		if err != nil {
			return err
		}
		return res.Err()
	}
	return fmt.Errorf("unknown op %q", step.Op)
}
