// Package store provides the in-memory presentation model store.
//
// One store exists per side of a session. Stores never share memory; all
// cross-store effects travel as pm.Command values over the transport.
//
// Every create, delete and attribute value change raises an Event that is
// delivered synchronously to subscribers, in subscription order, after the
// store's own lock has been released. Subscribers may therefore call back
// into the store. Serializing mutations across one side (so that events are
// observed in the order they happened) is the owner's job; the engine does
// this with a single per-side lock.
package store
