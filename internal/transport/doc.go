// Package transport carries commands between a client and a server engine.
//
// A Link is one direction. It is the sending engine's Outbox: Send encodes
// the command to its canonical wire form, stamps it with a sequence number
// and queues it without blocking. The receiving side drains the queue with
// Flush (synchronous, for tests and tools) or Run (a goroutine loop that
// stops on context cancellation).
//
// A Session joins two engines with a pair of links sharing one Clock, so the
// sequence numbers form a single total order of everything sent in either
// direction. Every delivered command can be recorded in a journal.
package transport
