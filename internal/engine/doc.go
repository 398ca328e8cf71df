// Package engine implements one side of a presentation-model
// synchronization session.
//
// ARCHITECTURE:
//
// Each side (client or server) runs its own Engine over its own store.
// Application code creates beans through the Repository and mutates them
// through Property and List. Every mutation becomes a store event; the
// dispatcher turns store events into pm.Command values for the outbox.
// Commands from the other side enter through Engine.Apply.
//
// Property changes travel as plain attribute changes. List changes travel as
// LIST_SPLICE records: one record per contiguous edit, created and deleted
// in the same breath on the sending side, applied and then deleted on the
// receiving side.
//
// CONCURRENCY:
//
// A side is a single mutation domain. One coarse lock serializes all
// repository, property, list and apply operations, so two concurrent edits
// of the same list always produce two well-formed splices in a single order.
// Listener callbacks run after the lock is released.
//
// ECHO SUPPRESSION:
//
// While a command for model X is applied, store events for X are not sent.
// The guard is per model id and per apply call. Splice record deletions are
// never sent.
//
// GARBAGE COLLECTION:
//
// The gc.Tracker mirrors bean references held by properties and lists.
// After every change that drops a reference, locally owned beans that are no
// longer reachable from a root are deleted, and the deletion is sent to the
// other side. Beans owned by the other side are roots here.
package engine
