package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/pmsync/internal/engine"
	"github.com/roach88/pmsync/internal/pm"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// evaluate checks every assertion and returns the failure messages.
func (h *Harness) evaluate(trace []TraceEvent, assertions []Assertion) []string {
	var errors []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertValue:
			err = h.assertValue(a)
		case AssertList:
			err = h.assertList(a)
		case AssertManaged:
			err = h.assertManaged(a)
		case AssertCount:
			err = h.assertCount(a)
		case AssertPending:
			err = h.assertPending(a)
		case AssertSent:
			err = assertSent(trace, a)
		case AssertInSync:
			err = h.assertInSync()
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errors = append(errors, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errors
}

func (h *Harness) assertValue(a Assertion) error {
	inst, err := h.bean(a.side(), a.Bean)
	if err != nil {
		return err
	}
	p, err := inst.Property(a.Property)
	if err != nil {
		return err
	}
	want, err := h.wire(a.Equals)
	if err != nil {
		return err
	}
	if got := p.Value(); !pm.Equal(got, want) {
		return &AssertionError{
			Type:     AssertValue,
			Expected: fmt.Sprintf("%s.%s = %s", a.Bean, a.Property, pm.FormatValue(want)),
			Actual:   pm.FormatValue(got),
		}
	}
	return nil
}

func (h *Harness) assertList(a Assertion) error {
	inst, err := h.bean(a.side(), a.Bean)
	if err != nil {
		return err
	}
	l, err := inst.List(a.List)
	if err != nil {
		return err
	}
	expected, _ := a.Equals.([]any)
	want := make([]pm.Value, len(expected))
	for i, v := range expected {
		if want[i], err = h.wire(v); err != nil {
			return err
		}
	}
	if got := l.WireValues(); !slices.EqualFunc(got, want, pm.Equal) {
		return &AssertionError{
			Type:     AssertList,
			Expected: fmt.Sprintf("%s.%s = %s", a.Bean, a.List, formatValues(want)),
			Actual:   formatValues(got),
		}
	}
	return nil
}

func (h *Harness) assertManaged(a Assertion) error {
	id, ok := h.aliases[a.Bean]
	if !ok {
		return fmt.Errorf("unknown bean alias %q", a.Bean)
	}
	_, got := h.engine(a.side()).Repository().Find(id)
	if got != *a.Managed {
		return &AssertionError{
			Type:     AssertManaged,
			Expected: fmt.Sprintf("%s managed=%t on %s", a.Bean, *a.Managed, a.side()),
			Actual:   fmt.Sprintf("managed=%t", got),
		}
	}
	return nil
}

func (h *Harness) assertCount(a Assertion) error {
	repo := h.engine(a.side()).Repository()
	got := repo.Len()
	if a.BeanType != "" {
		got = len(repo.FindAll(a.BeanType))
	}
	if got != *a.Count {
		return &AssertionError{
			Type:     AssertCount,
			Expected: fmt.Sprintf("%d beans %s on %s", *a.Count, a.BeanType, a.side()),
			Actual:   fmt.Sprint(got),
		}
	}
	return nil
}

func (h *Harness) assertPending(a Assertion) error {
	got := len(h.engine(a.side()).Pending())
	if got != *a.Count {
		return &AssertionError{
			Type:     AssertPending,
			Expected: fmt.Sprintf("%d pending splices on %s", *a.Count, a.side()),
			Actual:   fmt.Sprint(got),
		}
	}
	return nil
}

func assertSent(trace []TraceEvent, a Assertion) error {
	got := 0
	for _, ev := range trace {
		if ev.From != a.side() {
			continue
		}
		if a.Kind != "" && ev.Command.Kind != a.Kind {
			continue
		}
		if a.BeanType != "" && ev.Command.ModelType != a.BeanType {
			continue
		}
		got++
	}
	if got != *a.Count {
		return &AssertionError{
			Type:     AssertSent,
			Expected: fmt.Sprintf("%d %s commands of type %q from %s", *a.Count, a.Kind, a.BeanType, a.side()),
			Actual:   fmt.Sprint(got),
		}
	}
	return nil
}

// assertInSync checks that both repositories hold the same beans with the
// same property and list values.
func (h *Harness) assertInSync() error {
	client, server := h.session.Client(), h.session.Server()
	if err := mirrored(client, server); err != nil {
		return err
	}
	return mirrored(server, client)
}

func mirrored(from, to *engine.Engine) error {
	for _, name := range from.Schema().Names() {
		bt, err := from.Schema().Lookup(name)
		if err != nil {
			return err
		}
		for _, inst := range from.Repository().FindAll(name) {
			other, ok := to.Repository().Find(inst.ModelID())
			if !ok {
				return &AssertionError{
					Type:     AssertInSync,
					Expected: fmt.Sprintf("%s on %s", inst, to.Side()),
					Actual:   "missing",
				}
			}
			for _, decl := range bt.Properties() {
				var a, b []pm.Value
				if decl.IsList() {
					la, _ := inst.List(decl.Name)
					lb, _ := other.List(decl.Name)
					a, b = la.WireValues(), lb.WireValues()
				} else {
					pa, _ := inst.Property(decl.Name)
					pb, _ := other.Property(decl.Name)
					a, b = []pm.Value{pa.Value()}, []pm.Value{pb.Value()}
				}
				if !slices.EqualFunc(a, b, pm.Equal) {
					return &AssertionError{
						Type:     AssertInSync,
						Expected: fmt.Sprintf("%s.%s = %s on %s", inst, decl.Name, formatValues(a), to.Side()),
						Actual:   formatValues(b),
					}
				}
			}
		}
	}
	return nil
}

func formatValues(vs []pm.Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = pm.FormatValue(v)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
