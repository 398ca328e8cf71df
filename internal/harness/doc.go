// Package harness runs synchronization scenarios against a real client and
// server engine pair.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: remove_collects
//	description: "Removing the only reference collects the bean"
//	schema: beans.cue
//	steps:
//	  - op: create
//	    bean: owner
//	    type: Basket
//	    root: true
//	  - op: create
//	    bean: apple
//	    type: Item
//	  - op: add
//	    bean: owner
//	    list: items
//	    values: ["@apple"]
//	  - op: flush
//	  - op: remove
//	    bean: owner
//	    list: items
//	    index: 0
//	  - op: flush
//	assertions:
//	  - type: managed
//	    side: SERVER
//	    bean: apple
//	    managed: false
//
// Beans are named by scenario-local aliases. A value "@alias" stands for
// that bean as seen from the step's side. Steps act on the client unless they
// name a side. A step with "error: CODE" must fail with that error code.
//
// Operations: create, set, add, insert, remove, splice, clear, delete,
// unroot, collect, flush.
//
// # Assertion Types
//
//   - value: a property's wire value on one side
//   - list: a list's wire values on one side
//   - managed: whether a bean is live on one side
//   - count: how many beans of a type a side manages
//   - pending: how many inbound splices a side keeps for retry
//   - sent: how many commands of a kind a side sent
//   - in_sync: every bean has an identical mirror on the other side
//
// # Deterministic Testing
//
// Model ids come from per-side sequence generators ("c-1", "s-1", ...), the
// session clock numbers commands, and the journal is an in-memory SQLite
// database. Identical scenarios produce identical traces, which RunWithGolden
// compares against testdata/golden.
package harness
