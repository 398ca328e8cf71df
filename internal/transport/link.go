package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/pmsync/internal/journal"
	"github.com/roach88/pmsync/internal/pm"
)

// ErrClosed is returned by Send after the link was closed.
var ErrClosed = errors.New("transport: link closed")

// Applier is the receiving end of a link. *engine.Engine satisfies it.
type Applier = journal.Applier

// Failure is one command the receiver rejected.
type Failure struct {
	Seq     int64
	Command pm.Command
	Err     error
}

// Result summarizes one drain of a link.
type Result struct {
	Delivered int
	Failures  []Failure
}

func (r *Result) add(o Result) {
	r.Delivered += o.Delivered
	r.Failures = append(r.Failures, o.Failures...)
}

// Err joins the failures, or returns nil.
func (r Result) Err() error {
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = fmt.Errorf("seq %d %s: %w", f.Seq, f.Command, f.Err)
	}
	return errors.Join(errs...)
}

// Link carries commands from one side to the other.
type Link struct {
	from    pm.Side
	q       *queue
	clock   *Clock
	journal *journal.Journal
	logger  *slog.Logger
}

// LinkOption configures a Link.
type LinkOption func(*Link)

// WithClock stamps envelopes from c. Default: a fresh clock per link.
func WithClock(c *Clock) LinkOption {
	return func(l *Link) {
		if c != nil {
			l.clock = c
		}
	}
}

// WithJournal records every delivered command in j.
func WithJournal(j *journal.Journal) LinkOption {
	return func(l *Link) {
		l.journal = j
	}
}

// WithLogger sets the structured logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) LinkOption {
	return func(l *Link) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLink creates a link carrying commands sent by from.
func NewLink(from pm.Side, opts ...LinkOption) *Link {
	l := &Link{
		from:   from,
		q:      newQueue(),
		clock:  NewClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("link", string(from)+"->"+string(from.Opposite()))
	return l
}

// From returns the sending side.
func (l *Link) From() pm.Side { return l.from }

// Send encodes cmd and queues it. It never blocks.
func (l *Link) Send(cmd pm.Command) error {
	data, err := pm.EncodeCommand(cmd)
	if err != nil {
		return fmt.Errorf("encode %s: %w", cmd, err)
	}
	env := Envelope{Seq: l.clock.Next(), From: l.from, Data: data}
	if !l.q.Enqueue(env) {
		return ErrClosed
	}
	return nil
}

// Len returns the number of queued commands.
func (l *Link) Len() int {
	return l.q.Len()
}

// Close stops the link. Queued commands can still be drained by Flush;
// Run returns once the queue is empty.
func (l *Link) Close() {
	l.q.Close()
}

// Flush delivers every queued command to dst and returns when the queue is
// empty. Commands dst rejects are reported in the result; the returned error
// is for transport or journal failures only.
func (l *Link) Flush(ctx context.Context, dst Applier) (Result, error) {
	var res Result
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		env, ok := l.q.TryDequeue()
		if !ok {
			return res, nil
		}
		if err := l.deliver(ctx, env, dst, &res); err != nil {
			return res, err
		}
	}
}

// Run delivers commands to dst as they arrive until ctx is cancelled or the
// link is closed and drained. Rejected commands are logged and skipped.
func (l *Link) Run(ctx context.Context, dst Applier) error {
	l.logger.Info("link starting")
	for {
		env, ok := l.q.TryDequeue()
		if ok {
			var res Result
			if err := l.deliver(ctx, env, dst, &res); err != nil {
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Info("link stopping: context cancelled")
			return ctx.Err()
		case <-l.q.Wait():
			if l.q.Closed() && l.q.Len() == 0 {
				l.logger.Info("link stopping: closed")
				return nil
			}
		}
	}
}

func (l *Link) deliver(ctx context.Context, env Envelope, dst Applier, res *Result) error {
	cmd, err := pm.DecodeCommand(env.Data)
	if err != nil {
		return fmt.Errorf("decode seq %d: %w", env.Seq, err)
	}

	applyErr := dst.Apply(cmd)
	if applyErr != nil {
		res.Failures = append(res.Failures, Failure{Seq: env.Seq, Command: cmd, Err: applyErr})
		l.logger.Warn("delivery rejected",
			"seq", env.Seq,
			"command", cmd.String(),
			"error", applyErr,
		)
	} else {
		res.Delivered++
	}

	if l.journal != nil {
		entry, err := journal.NewEntry(env.Seq, env.From, cmd, applyErr)
		if err != nil {
			return err
		}
		if err := l.journal.Append(ctx, entry); err != nil {
			return fmt.Errorf("journal seq %d: %w", env.Seq, err)
		}
	}
	return nil
}
