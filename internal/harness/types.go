package harness

import (
	"github.com/roach88/pmsync/internal/journal"
	"github.com/roach88/pmsync/internal/pm"
)

// TraceEvent is one command that crossed the session, in seq order.
type TraceEvent struct {
	Seq       int64        `json:"seq"`
	From      pm.Side      `json:"from"`
	Command   pm.Command   `json:"-"`
	ErrorCode pm.ErrorCode `json:"error_code,omitempty"`
}

// traceFromJournal decodes journal entries into trace events.
func traceFromJournal(entries []journal.Entry) ([]TraceEvent, error) {
	trace := make([]TraceEvent, 0, len(entries))
	for _, e := range entries {
		cmd, err := e.Command()
		if err != nil {
			return nil, err
		}
		trace = append(trace, TraceEvent{
			Seq:       e.Seq,
			From:      e.Side,
			Command:   cmd,
			ErrorCode: e.ErrorCode,
		})
	}
	return trace, nil
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every step behaved as expected and every assertion held.
	Pass bool `json:"pass"`

	// Trace contains every command delivered during the run.
	Trace []TraceEvent `json:"-"`

	// Errors contains step and assertion failures.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
