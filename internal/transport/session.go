package transport

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/pmsync/internal/engine"
	"github.com/roach88/pmsync/internal/journal"
	"github.com/roach88/pmsync/internal/pm"
)

// Session joins a client and a server engine.
type Session struct {
	client, server *engine.Engine
	up, down       *Link // up: client -> server
	clock          *Clock
}

// SessionOption configures a Session.
type SessionOption func(*sessionConfig)

type sessionConfig struct {
	clock   *Clock
	journal *journal.Journal
	logger  *slog.Logger
}

// WithSessionClock numbers both directions from c.
func WithSessionClock(c *Clock) SessionOption {
	return func(cfg *sessionConfig) { cfg.clock = c }
}

// WithSessionJournal records both directions in j.
func WithSessionJournal(j *journal.Journal) SessionOption {
	return func(cfg *sessionConfig) { cfg.journal = j }
}

// WithSessionLogger sets the links' logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(cfg *sessionConfig) { cfg.logger = l }
}

// Connect wires client and server together and installs the links as
// their outboxes.
func Connect(client, server *engine.Engine, opts ...SessionOption) (*Session, error) {
	if client == nil || server == nil {
		return nil, pm.NewNullArgumentError("engine")
	}
	if client.Side() != pm.SideClient || server.Side() != pm.SideServer {
		return nil, errors.New("transport: connect needs a client and a server engine")
	}

	cfg := sessionConfig{clock: NewClock(), logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}
	linkOpts := []LinkOption{WithClock(cfg.clock), WithJournal(cfg.journal), WithLogger(cfg.logger)}

	s := &Session{
		client: client,
		server: server,
		up:     NewLink(pm.SideClient, linkOpts...),
		down:   NewLink(pm.SideServer, linkOpts...),
		clock:  cfg.clock,
	}
	client.SetOutbox(s.up)
	server.SetOutbox(s.down)
	return s, nil
}

// Client returns the client engine.
func (s *Session) Client() *engine.Engine { return s.client }

// Server returns the server engine.
func (s *Session) Server() *engine.Engine { return s.server }

// Seq returns the last sequence number stamped in this session.
func (s *Session) Seq() int64 { return s.clock.Current() }

// InFlight returns the number of queued commands in both directions.
func (s *Session) InFlight() int { return s.up.Len() + s.down.Len() }

// Flush delivers in both directions until nothing is left in flight.
func (s *Session) Flush(ctx context.Context) (Result, error) {
	var total Result
	for {
		up, err := s.up.Flush(ctx, s.server)
		total.add(up)
		if err != nil {
			return total, err
		}
		down, err := s.down.Flush(ctx, s.client)
		total.add(down)
		if err != nil {
			return total, err
		}
		if up.Delivered+len(up.Failures)+down.Delivered+len(down.Failures) == 0 {
			return total, nil
		}
	}
}

// Run delivers in both directions concurrently until ctx is cancelled or
// the session is closed.
func (s *Session) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.up.Run(ctx, s.server) })
	g.Go(func() error { return s.down.Run(ctx, s.client) })
	return g.Wait()
}

// Close stops both links. Commands sent afterwards are rejected.
func (s *Session) Close() {
	s.up.Close()
	s.down.Close()
}
