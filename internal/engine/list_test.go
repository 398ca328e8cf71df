package engine

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pmsync/internal/pm"
)

func longs(vs ...int64) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func TestList_InsertBeanAtStart(t *testing.T) {
	p := newPair(t)
	owner := mustRoot(t, p.client, "ListModel")
	items := []*Instance{
		mustCreate(t, p.client, "Item"),
		mustCreate(t, p.client, "Item"),
		mustCreate(t, p.client, "Item"),
	}
	beans := mustList(t, owner, "beans")
	require.NoError(t, beans.AddAll(items[0], items[1], items[2]))
	p.flush(t)

	x := mustCreate(t, p.client, "Item")
	require.NoError(t, beans.Insert(0, x))

	sent := splices(p.toServer.peek())
	require.Len(t, sent, 1)
	f := spliceFields(sent[0])
	assert.Equal(t, pm.String(owner.ModelID()), f[pm.SpliceSource])
	assert.Equal(t, pm.String("beans"), f[pm.SpliceAttribute])
	assert.Equal(t, pm.Int(0), f[pm.SpliceFrom])
	assert.Equal(t, pm.Int(0), f[pm.SpliceTo])
	assert.Equal(t, pm.Int(1), f[pm.SpliceCount])
	assert.Equal(t, pm.String(x.ModelID()), f["0"])
	for _, a := range sent[0].Attributes {
		assert.Equal(t, sent[0].ModelID, a.Qualifier, "attribute %s", a.Name)
	}

	p.flush(t)
	remote := mustList(t, mirror(t, p.server, owner), "beans")
	assert.Equal(t,
		[]string{x.ModelID(), items[0].ModelID(), items[1].ModelID(), items[2].ModelID()},
		ids(remote.Values()))
	assert.Empty(t, p.server.Pending())
	assert.Empty(t, p.server.Store().FindAllByType(pm.TypeListSplice), "splice consumed")
	assert.Empty(t, p.client.Store().FindAllByType(pm.TypeListSplice), "splice is transient on the sender")
}

func TestList_SetScalar(t *testing.T) {
	p := newPair(t)
	owner := mustRoot(t, p.client, "ListModel")
	l := mustList(t, owner, "longs")
	require.NoError(t, l.AddAll(1, 2, 3))
	p.flush(t)

	require.NoError(t, l.Set(1, 42))

	sent := splices(p.toServer.peek())
	require.Len(t, sent, 1)
	f := spliceFields(sent[0])
	assert.Equal(t, pm.Int(1), f[pm.SpliceFrom])
	assert.Equal(t, pm.Int(2), f[pm.SpliceTo])
	assert.Equal(t, pm.Int(1), f[pm.SpliceCount])
	assert.Equal(t, pm.Int(42), f["0"])

	p.flush(t)
	assert.Equal(t, longs(1, 42, 3), mustList(t, mirror(t, p.server, owner), "longs").Values())
}

func TestList_RemoveFirst(t *testing.T) {
	p := newPair(t)
	owner := mustRoot(t, p.client, "ListModel")
	l := mustList(t, owner, "longs")
	require.NoError(t, l.AddAll(1, 2, 3))
	p.flush(t)

	removed, err := l.Remove(0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	sent := splices(p.toServer.peek())
	require.Len(t, sent, 1)
	f := spliceFields(sent[0])
	assert.Equal(t, pm.Int(0), f[pm.SpliceFrom])
	assert.Equal(t, pm.Int(1), f[pm.SpliceTo])
	assert.Equal(t, pm.Int(0), f[pm.SpliceCount])
	_, hasElement := f["0"]
	assert.False(t, hasElement)

	p.flush(t)
	assert.Equal(t, longs(2, 3), mustList(t, mirror(t, p.server, owner), "longs").Values())
}

func TestList_AppendUsesOriginalSize(t *testing.T) {
	p := newPair(t)
	l := mustList(t, mustRoot(t, p.client, "ListModel"), "texts")
	require.NoError(t, l.AddAll("a", "b"))
	p.toServer.take()

	require.NoError(t, l.Add("c"))
	f := spliceFields(splices(p.toServer.peek())[0])
	assert.Equal(t, pm.Int(2), f[pm.SpliceFrom])
	assert.Equal(t, pm.Int(2), f[pm.SpliceTo])
}

// TestList_SpliceIdentity checks that replaying the splice of every basic
// edit reproduces the sender's list exactly.
func TestList_SpliceIdentity(t *testing.T) {
	initial := []any{"a", "b", "c", "d", "e", "f"}

	type edit struct {
		name string
		do   func(l *List, vals []any) error
		want func(vals []any) []any
	}
	with := func(head []any, vals []any, tail []any) []any {
		return slices.Concat(head, vals, tail)
	}
	edits := []edit{
		{"insert at start",
			func(l *List, vals []any) error { return l.Insert(0, vals...) },
			func(vals []any) []any { return with(nil, vals, initial) }},
		{"insert in middle",
			func(l *List, vals []any) error { return l.Insert(3, vals...) },
			func(vals []any) []any { return with(initial[:3], vals, initial[3:]) }},
		{"insert at end",
			func(l *List, vals []any) error { return l.AddAll(vals...) },
			func(vals []any) []any { return with(initial, vals, nil) }},
		{"remove at start",
			func(l *List, vals []any) error { return l.RemoveRange(0, len(vals)) },
			func(vals []any) []any { return slices.Clone(initial[len(vals):]) }},
		{"remove in middle",
			func(l *List, vals []any) error { return l.RemoveRange(2, 2+len(vals)) },
			func(vals []any) []any { return with(initial[:2], nil, initial[2+len(vals):]) }},
		{"remove at end",
			func(l *List, vals []any) error { return l.RemoveRange(len(initial)-len(vals), len(initial)) },
			func(vals []any) []any { return slices.Clone(initial[:len(initial)-len(vals)]) }},
		{"full replace",
			func(l *List, vals []any) error { return l.Splice(0, len(initial), vals...) },
			func(vals []any) []any { return slices.Clone(vals) }},
	}

	for _, ed := range edits {
		for _, n := range []int{1, 3} {
			t.Run(fmt.Sprintf("%s/%d", ed.name, n), func(t *testing.T) {
				p := newPair(t)
				owner := mustRoot(t, p.client, "ListModel")
				l := mustList(t, owner, "texts")
				require.NoError(t, l.AddAll(initial...))
				p.flush(t)

				vals := make([]any, n)
				for i := range vals {
					vals[i] = fmt.Sprintf("new%d", i)
				}
				require.NoError(t, ed.do(l, vals))
				assert.Len(t, splices(p.toServer.peek()), 1, "one edit, one splice")

				p.flush(t)
				want := ed.want(vals)
				assert.Equal(t, want, l.Values())
				assert.Equal(t, want, mustList(t, mirror(t, p.server, owner), "texts").Values())
			})
		}
	}
}

func TestList_ServerToClient(t *testing.T) {
	p := newPair(t)
	owner := mustRoot(t, p.server, "ListModel")
	l := mustList(t, owner, "longs")
	require.NoError(t, l.AddAll(5, 6, 7))
	require.NoError(t, l.RemoveRange(0, 1))
	require.NoError(t, l.Insert(1, 9))
	p.flush(t)

	assert.Equal(t, longs(6, 9, 7), mustList(t, mirror(t, p.client, owner), "longs").Values())
}

func TestList_NullElements(t *testing.T) {
	p := newPair(t)
	owner := mustRoot(t, p.client, "ListModel")
	l := mustList(t, owner, "texts")
	require.NoError(t, l.AddAll("a", nil, ""))

	f := spliceFields(splices(p.toServer.peek())[0])
	assert.Equal(t, pm.Null{}, f["1"], "explicit null element")
	assert.Equal(t, pm.String(""), f["2"], "empty string is not null")

	p.flush(t)
	remote := mustList(t, mirror(t, p.server, owner), "texts")
	assert.Equal(t, []any{"a", nil, ""}, remote.Values())
	assert.Equal(t, []pm.Value{pm.String("a"), pm.Null{}, pm.String("")}, remote.WireValues())

	require.NoError(t, l.Set(0, nil))
	p.flush(t)
	v, err := remote.Get(0)
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestList_NoOpEditsAreSilent(t *testing.T) {
	p := newPair(t)
	l := mustList(t, mustRoot(t, p.client, "ListModel"), "longs")
	require.NoError(t, l.AddAll(1, 2))
	p.toServer.take()

	require.NoError(t, l.Splice(1, 1))
	require.NoError(t, l.Set(0, 1))
	require.NoError(t, mustList(t, mustRoot(t, p.client, "ListModel"), "longs").Clear())
	assert.Empty(t, splices(p.toServer.peek()))
}

func TestList_InboundNoOpSpliceIsConsumed(t *testing.T) {
	p := newPair(t)
	owner := mustRoot(t, p.client, "ListModel")
	p.flush(t)

	rec := spliceRecord{ID: "noop", Source: owner.ModelID(), Attribute: "longs"}
	cmd := pm.CreateCommand(pm.Snapshot{ID: rec.ID, Type: pm.TypeListSplice, Attributes: rec.attributes()})
	require.NoError(t, p.server.Apply(cmd))

	_, ok := p.server.Store().FindByID("noop")
	assert.False(t, ok)
	assert.Empty(t, p.server.Pending())
	assert.Empty(t, p.toClient.peek(), "nothing echoed")
}

func TestList_IndexErrors(t *testing.T) {
	p := newPair(t)
	l := mustList(t, mustRoot(t, p.client, "ListModel"), "longs")
	require.NoError(t, l.AddAll(1, 2))

	codes := []error{
		l.Insert(3, 9),
		l.Insert(-1, 9),
		l.Set(2, 9),
		l.RemoveRange(1, 3),
		l.RemoveRange(2, 1),
	}
	for i, err := range codes {
		assert.Equal(t, pm.ErrCodeIndexOutOfRange, pm.CodeOf(err), "case %d", i)
	}
	_, err := l.Get(2)
	assert.Equal(t, pm.ErrCodeIndexOutOfRange, pm.CodeOf(err))
	_, err = l.Remove(5)
	assert.Equal(t, pm.ErrCodeIndexOutOfRange, pm.CodeOf(err))

	assert.Equal(t, longs(1, 2), l.Values(), "failed edits change nothing")
}

func TestList_ElementTypeMismatch(t *testing.T) {
	p := newPair(t)
	l := mustList(t, mustRoot(t, p.client, "ListModel"), "longs")

	err := l.AddAll(1, "two", 3)
	assert.Equal(t, pm.ErrCodeTypeMismatch, pm.CodeOf(err))
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, splices(p.toServer.peek()))
}

func TestList_Clear(t *testing.T) {
	p := newPair(t)
	owner := mustRoot(t, p.client, "ListModel")
	l := mustList(t, owner, "texts")
	require.NoError(t, l.AddAll("x", "y"))
	require.NoError(t, l.Clear())
	p.flush(t)

	assert.Equal(t, 0, mustList(t, mirror(t, p.server, owner), "texts").Len())
}

func TestList_OnChange(t *testing.T) {
	p := newPair(t)
	owner := mustRoot(t, p.client, "ListModel")
	p.flush(t)

	var local, remote []ListChange
	mustList(t, owner, "longs").OnChange(func(c ListChange) { local = append(local, c) })
	mustList(t, mirror(t, p.server, owner), "longs").OnChange(func(c ListChange) { remote = append(remote, c) })

	require.NoError(t, mustList(t, owner, "longs").AddAll(1, 2))
	require.NoError(t, mustList(t, owner, "longs").Set(0, 7))
	p.flush(t)

	want := []ListChange{
		{List: "longs", From: 0, To: 0, Removed: []any{}, Inserted: longs(1, 2)},
		{List: "longs", From: 0, To: 1, Removed: longs(1), Inserted: longs(7)},
	}
	assert.Equal(t, want, local)
	for i := range want {
		want[i].Remote = true
	}
	assert.Equal(t, want, remote)
}
