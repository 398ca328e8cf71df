package engine

import "github.com/roach88/pmsync/internal/pm"

// Outbox receives the commands one side emits, in emission order.
//
// Send is called with the engine's domain lock held. Implementations must
// queue the command rather than deliver it into the other engine
// synchronously.
type Outbox interface {
	Send(cmd pm.Command) error
}

// OutboxFunc adapts a function to the Outbox interface.
type OutboxFunc func(cmd pm.Command) error

// Send calls f(cmd).
func (f OutboxFunc) Send(cmd pm.Command) error { return f(cmd) }
