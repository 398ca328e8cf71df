// Package journal keeps a durable log of the commands exchanged between the
// client and the server engines.
//
// Every command that crosses a transport link is appended with the sequence
// number the link stamped on it, the sending side and the outcome of applying
// it on the receiving side. The log is what "pmsync trace" prints, and Replay
// rebuilds a side's state from it.
//
// Storage is SQLite in WAL mode. Payloads are the canonical JSON encoding of
// pm.Command, so a replayed log decodes to exactly the commands that were sent.
package journal
