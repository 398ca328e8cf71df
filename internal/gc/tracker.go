package gc

import (
	"fmt"
	"sort"
)

// OriginKind says whether an edge comes from a property or a list.
type OriginKind int

const (
	// FromProperty is an edge held by a bean-reference property.
	FromProperty OriginKind = iota + 1
	// FromList is an edge held by one element of a bean list.
	FromList
)

// String returns "property" or "list".
func (k OriginKind) String() string {
	switch k {
	case FromProperty:
		return "property"
	case FromList:
		return "list"
	default:
		return "unknown"
	}
}

// Origin names the property or list holding an edge.
type Origin struct {
	Kind OriginKind
	Name string
}

// Property returns the origin of a bean-reference property.
func Property(name string) Origin { return Origin{Kind: FromProperty, Name: name} }

// List returns the origin of a bean list.
func List(name string) Origin { return Origin{Kind: FromList, Name: name} }

func (o Origin) String() string { return fmt.Sprintf("%s:%s", o.Kind, o.Name) }

type edge struct {
	parent string
	child  string
	origin Origin
}

type node struct {
	seq      int64
	root     bool
	floating bool
}

// Tracker is the reference graph of one side.
//
// Edges are reference-counted per (parent, child, origin): a child listed
// twice in the same list needs two Unregister calls before the edge is gone.
//
// Not safe for concurrent use. The engine calls it under its domain lock.
type Tracker struct {
	nodes   map[string]*node
	nextSeq int64

	edges    map[edge]int
	children map[string]map[string]int // parent -> child -> total multiplicity
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		nodes:    make(map[string]*node),
		edges:    make(map[edge]int),
		children: make(map[string]map[string]int),
	}
}

// Track adds a bean. A root stays reachable until Untrack or SetRoot(id, false).
// A non-root starts out floating and becomes collectable once it has been
// referenced for the first time.
func (t *Tracker) Track(id string, root bool) {
	if n, ok := t.nodes[id]; ok {
		n.root = root
		return
	}
	t.nextSeq++
	t.nodes[id] = &node{seq: t.nextSeq, root: root, floating: !root}
}

// Tracked reports whether id is tracked.
func (t *Tracker) Tracked(id string) bool {
	_, ok := t.nodes[id]
	return ok
}

// IsRoot reports whether id is tracked as a root.
func (t *Tracker) IsRoot(id string) bool {
	n, ok := t.nodes[id]
	return ok && n.root
}

// SetRoot changes the root flag of a tracked bean.
func (t *Tracker) SetRoot(id string, root bool) {
	if n, ok := t.nodes[id]; ok {
		n.root = root
	}
}

// Untrack removes a bean together with every edge into or out of it.
func (t *Tracker) Untrack(id string) {
	delete(t.nodes, id)
	delete(t.children, id)
	for parent, kids := range t.children {
		delete(kids, id)
		if len(kids) == 0 {
			delete(t.children, parent)
		}
	}
	for e := range t.edges {
		if e.parent == id || e.child == id {
			delete(t.edges, e)
		}
	}
}

// Register records one reference from parent to child.
// The first reference to a floating child anchors it to the graph.
func (t *Tracker) Register(parent, child string, origin Origin) {
	if parent == "" || child == "" {
		return
	}
	t.edges[edge{parent, child, origin}]++
	kids := t.children[parent]
	if kids == nil {
		kids = make(map[string]int)
		t.children[parent] = kids
	}
	kids[child]++
	if n, ok := t.nodes[child]; ok {
		n.floating = false
	}
}

// Unregister drops one reference from parent to child.
// Returns false if no such reference was registered.
func (t *Tracker) Unregister(parent, child string, origin Origin) bool {
	e := edge{parent, child, origin}
	count, ok := t.edges[e]
	if !ok {
		return false
	}
	if count <= 1 {
		delete(t.edges, e)
	} else {
		t.edges[e] = count - 1
	}

	kids := t.children[parent]
	kids[child]--
	if kids[child] <= 0 {
		delete(kids, child)
	}
	if len(kids) == 0 {
		delete(t.children, parent)
	}
	return true
}

// References returns how many times parent references child through origin.
func (t *Tracker) References(parent, child string, origin Origin) int {
	return t.edges[edge{parent, child, origin}]
}

// Reachable returns the set of tracked ids reachable from the roots.
func (t *Tracker) Reachable() map[string]bool {
	seen := make(map[string]bool, len(t.nodes))
	queue := make([]string, 0, len(t.nodes))
	for id, n := range t.nodes {
		if n.root || n.floating {
			seen[id] = true
			queue = append(queue, id)
		}
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for child := range t.children[id] {
			if seen[child] {
				continue
			}
			if _, tracked := t.nodes[child]; !tracked {
				continue
			}
			seen[child] = true
			queue = append(queue, child)
		}
	}
	return seen
}

// IsReachable reports whether id is currently reachable.
func (t *Tracker) IsReachable(id string) bool {
	return t.Reachable()[id]
}

// Collect returns the tracked ids that are not reachable, oldest first.
// It does not modify the tracker; the caller deletes the beans and then
// calls Untrack for each.
func (t *Tracker) Collect() []string {
	reachable := t.Reachable()
	var garbage []string
	for id := range t.nodes {
		if !reachable[id] {
			garbage = append(garbage, id)
		}
	}
	sort.Slice(garbage, func(i, j int) bool {
		return t.nodes[garbage[i]].seq < t.nodes[garbage[j]].seq
	})
	return garbage
}

// Len returns the number of tracked beans.
func (t *Tracker) Len() int {
	return len(t.nodes)
}
