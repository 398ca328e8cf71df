// Package gc tracks references between beans and decides which ones are
// no longer reachable.
//
// The tracker works on model ids only. It knows nothing about stores or
// repositories: the engine reports edges as properties and lists change,
// asks Collect for the unreachable set, deletes those beans and then calls
// Untrack for each of them.
//
// A bean is reachable iff it is a root, it is floating (created but never
// yet referenced), or a path of edges leads to it from a reachable bean.
package gc
