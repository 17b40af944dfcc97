package client

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/teammate/pkg/conversation"
	"github.com/go-go-golems/teammate/pkg/engine"
	"github.com/go-go-golems/teammate/pkg/events"
	"github.com/go-go-golems/teammate/pkg/session"
	"github.com/go-go-golems/teammate/pkg/transport"
)

// Snapshot is a consistent read-only view of the session, published after
// every processed event or command.
type Snapshot struct {
	SessionID      string
	Phase          engine.Phase
	History        conversation.History
	HistoryVersion int64
	QueueLength    int
}

type command func(ctx context.Context, e *engine.Engine)

// Client runs an engine against a transport. One goroutine owns the engine
// and processes transport events and caller commands in arrival order.
type Client struct {
	engine    *engine.Engine
	transport transport.Transport
	log       zerolog.Logger

	commands  chan command
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
	snapshot  atomic.Pointer[Snapshot]
	changedMu sync.Mutex
	changed   chan struct{}
}

type Option func(*clientOptions)

type clientOptions struct {
	engineOptions []engine.Option
	logger        *zerolog.Logger
}

// WithEventSink forwards engine events (history, phase, outbound) to sink.
func WithEventSink(sink events.EventSink) Option {
	return func(o *clientOptions) {
		o.engineOptions = append(o.engineOptions, engine.WithEventSink(sink))
	}
}

func WithEngineOptions(options ...engine.Option) Option {
	return func(o *clientOptions) {
		o.engineOptions = append(o.engineOptions, options...)
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = &logger
	}
}

func New(t transport.Transport, store session.Store, options ...Option) *Client {
	opts := &clientOptions{}
	for _, option := range options {
		option(opts)
	}

	logger := log.With().Str("component", "client").Logger()
	if opts.logger != nil {
		logger = *opts.logger
		opts.engineOptions = append([]engine.Option{engine.WithLogger(logger)}, opts.engineOptions...)
	}

	c := &Client{
		engine:    engine.New(t, store, opts.engineOptions...),
		transport: t,
		log:       logger,
		commands:  make(chan command),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		changed:   make(chan struct{}),
	}
	c.publishSnapshot()
	return c
}

// Run starts the transport and the event loop. It returns when ctx is done
// or Close is called.
func (c *Client) Run(ctx context.Context) error {
	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return c.transport.Start(ctx)
	})
	eg.Go(func() error {
		return c.loop(ctx)
	})
	return eg.Wait()
}

// Close publishes connectionClosed (if the session is initialized) and stops
// the client.
func (c *Client) Close() error {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	return nil
}

// Done is closed once the event loop exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// SendText appends a user entry to the history and publishes it. It blocks
// until the event loop processed the request.
func (c *Client) SendText(ctx context.Context, id, text string) error {
	reply := make(chan error, 1)
	cmd := func(ctx context.Context, e *engine.Engine) {
		reply <- e.SendText(ctx, id, text)
	}

	select {
	case c.commands <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return engine.ErrClosed
	}

	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) Snapshot() Snapshot {
	return *c.snapshot.Load()
}

func (c *Client) SessionID() string {
	return c.snapshot.Load().SessionID
}

// History returns the latest published history. Callers must not modify it.
func (c *Client) History() conversation.History {
	return c.snapshot.Load().History
}

func (c *Client) Phase() engine.Phase {
	return c.snapshot.Load().Phase
}

// Changed returns a channel that is closed on the next snapshot change.
func (c *Client) Changed() <-chan struct{} {
	c.changedMu.Lock()
	defer c.changedMu.Unlock()
	return c.changed
}

// WaitFor blocks until cond holds for the current snapshot.
func (c *Client) WaitFor(ctx context.Context, cond func(Snapshot) bool) (Snapshot, error) {
	for {
		changed := c.Changed()
		s := c.Snapshot()
		if cond(s) {
			return s, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return s, ctx.Err()
		}
	}
}

func (c *Client) loop(ctx context.Context) error {
	defer close(c.done)

	evs := c.transport.Events()
	for {
		select {
		case <-ctx.Done():
			c.shutdown(context.Background())
			return nil

		case <-c.stop:
			c.shutdown(ctx)
			return nil

		case ev, ok := <-evs:
			if !ok {
				c.log.Debug().Msg("transport stopped delivering events")
				evs = nil
				continue
			}
			c.handle(ctx, ev)

		case cmd := <-c.commands:
			cmd(ctx, c.engine)
		}
		c.publishSnapshot()
	}
}

func (c *Client) handle(ctx context.Context, ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnected:
		c.engine.HandleTransportConnected(ctx)
	case transport.EventDisconnected:
		if ev.Err != nil {
			c.log.Debug().Err(ev.Err).Msg("transport disconnected")
		}
		c.engine.HandleTransportLost(ctx)
	case transport.EventMessage:
		c.engine.HandleInbound(ctx, ev.Message)
	default:
		c.log.Warn().Str("kind", ev.Kind.String()).Msg("unknown transport event")
	}
}

func (c *Client) shutdown(ctx context.Context) {
	c.log.Debug().Str("session_id", c.engine.SessionID()).Msg("shutting down session")
	c.engine.Close(ctx)
	if err := c.transport.Close(); err != nil {
		c.log.Warn().Err(err).Msg("could not close transport")
	}
	c.publishSnapshot()
}

func (c *Client) publishSnapshot() {
	s := &Snapshot{
		SessionID:      c.engine.SessionID(),
		Phase:          c.engine.Phase(),
		History:        c.engine.History(),
		HistoryVersion: c.engine.HistoryVersion(),
		QueueLength:    len(c.engine.Publisher().Queue()),
	}
	prev := c.snapshot.Load()
	c.snapshot.Store(s)
	if prev != nil && prev.SessionID == s.SessionID && prev.Phase == s.Phase &&
		prev.HistoryVersion == s.HistoryVersion && prev.QueueLength == s.QueueLength {
		return
	}

	c.changedMu.Lock()
	close(c.changed)
	c.changed = make(chan struct{})
	c.changedMu.Unlock()
}
