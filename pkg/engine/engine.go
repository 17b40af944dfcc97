package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/teammate/pkg/conversation"
	"github.com/go-go-golems/teammate/pkg/events"
	"github.com/go-go-golems/teammate/pkg/protocol"
	"github.com/go-go-golems/teammate/pkg/session"
)

var (
	ErrClosed  = errors.New("engine is closed")
	ErrEmptyID = errors.New("message id is empty")
)

// Engine is the protocol context of one session: connection state, outbound
// gating, inbound handling and the chat history.
//
// Engine is not safe for concurrent use. All calls must come from a single
// goroutine (see pkg/client).
type Engine struct {
	state     *ConnectionState
	publisher *Publisher
	history   *conversation.State
	store     session.Store
	sessionID string

	sink  events.EventSink
	now   func() time.Time
	newID func() string
	log   zerolog.Logger
}

type Option func(*Engine)

// WithEventSink receives history, phase and outbound events.
func WithEventSink(sink events.EventSink) Option {
	return func(e *Engine) {
		e.sink = sink
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithIDGenerator overrides how a new session id is generated.
func WithIDGenerator(newID func() string) Option {
	return func(e *Engine) {
		e.newID = newID
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(e *Engine) {
		e.log = logger
	}
}

func New(emitter Emitter, store session.Store, options ...Option) *Engine {
	e := &Engine{
		state:   &ConnectionState{},
		history: conversation.NewState(),
		store:   store,
		now:     time.Now,
		newID:   session.NewID,
		log:     log.With().Str("component", "engine").Logger(),
	}
	for _, option := range options {
		option(e)
	}

	e.publisher = NewPublisher(emitter, e.state, e.log)
	e.publisher.notify = e.publishOutboundEvent
	return e
}

func (e *Engine) SessionID() string {
	return e.sessionID
}

// History returns a copy of the chat history.
func (e *Engine) History() conversation.History {
	return e.history.Snapshot()
}

func (e *Engine) HistoryVersion() int64 {
	return e.history.Version
}

func (e *Engine) Phase() Phase {
	return e.state.Phase()
}

func (e *Engine) Connected() bool {
	return e.state.Connected()
}

func (e *Engine) Initialized() bool {
	return e.state.Initialized()
}

func (e *Engine) Publisher() *Publisher {
	return e.publisher
}

func (e *Engine) Closed() bool {
	return e.state.Phase() == PhaseClosed
}

// Publish runs msg through the outbound gate.
func (e *Engine) Publish(msg protocol.Outbound) Outcome {
	if e.Closed() {
		return OutcomeDropped
	}
	return e.publisher.Publish(msg)
}

// MergeMessage folds an entry into the history with merge semantics.
func (e *Engine) MergeMessage(entry conversation.Entry) {
	if e.Closed() {
		return
	}
	e.applyHistory(conversation.MutateMerge(entry))
}

// SendText appends a local user entry and publishes it. The caller supplies a
// unique id. The entry shows up in the history immediately even if the
// message itself has to wait in the queue.
func (e *Engine) SendText(ctx context.Context, id, text string) error {
	if e.Closed() {
		return ErrClosed
	}
	if id == "" {
		return ErrEmptyID
	}
	if err := e.history.Apply(conversation.MutateAppend(conversation.NewUserEntry(id, text, e.now()))); err != nil {
		return err
	}
	e.publishHistoryEvent()

	sessionID := e.ensureSessionID(ctx)
	e.publisher.Publish(protocol.TextMessage{
		SessionID: sessionID,
		ID:        id,
		Message:   text,
	})
	return nil
}

// HandleTransportConnected starts the transport handshake.
func (e *Engine) HandleTransportConnected(_ context.Context) {
	if e.Closed() {
		return
	}
	e.transition(e.state.transportUp())
	e.publisher.Publish(protocol.ConnectionInit{})
}

// HandleTransportLost resets the epoch. Queue and last sent message survive.
func (e *Engine) HandleTransportLost(_ context.Context) {
	if e.Closed() {
		return
	}
	e.transition(e.state.transportLost())
}

// HandleInbound dispatches a server event to its handler.
func (e *Engine) HandleInbound(ctx context.Context, ev protocol.Inbound) {
	if e.Closed() || ev == nil {
		return
	}
	e.log.Debug().Str("kind", string(ev.Kind())).Str("phase", e.state.Phase().String()).Msg("handling inbound event")
	ev.Dispatch(consumer{ctx: ctx, e: e})
}

// Close publishes a best-effort connectionClosed and stops processing. The
// queue and the last sent message are discarded.
func (e *Engine) Close(ctx context.Context) {
	if e.Closed() {
		return
	}
	if e.sessionID != "" {
		e.publisher.Publish(protocol.ConnectionClosed{SessionID: e.sessionID})
	}
	e.publisher.Reset()
	e.transition(e.state.close())
}

func (e *Engine) ensureSessionID(ctx context.Context) string {
	if e.sessionID != "" {
		return e.sessionID
	}

	id, created, err := session.LoadOrCreateID(ctx, e.store, e.newID)
	if err != nil {
		if id == "" {
			id = e.newID()
		}
		e.log.Error().Err(err).Str("session_id", id).Msg("session id is not persisted, continuing with an in-memory id")
		e.publishError(err)
	} else if created {
		e.log.Info().Str("session_id", id).Msg("created new session")
	} else {
		e.log.Debug().Str("session_id", id).Msg("resumed session")
	}
	e.sessionID = id
	return id
}

func (e *Engine) applyHistory(m conversation.Mutation) {
	if err := e.history.Apply(m); err != nil {
		e.log.Warn().Err(err).Msg("could not update history")
		return
	}
	e.publishHistoryEvent()
}

func (e *Engine) transition(from Phase, changed bool) {
	if !changed {
		return
	}
	to := e.state.Phase()
	e.log.Debug().Str("from", from.String()).Str("to", to.String()).Msg("connection phase changed")
	if e.sink == nil {
		return
	}
	_ = e.sink.PublishEvent(events.NewPhaseChangedEvent(
		events.NewEventMetadata(e.sessionID),
		from.String(), to.String(),
		e.state.Connected(), e.state.Initialized(),
	))
}

func (e *Engine) publishHistoryEvent() {
	if e.sink == nil {
		return
	}
	_ = e.sink.PublishEvent(events.NewHistoryUpdatedEvent(
		events.NewEventMetadata(e.sessionID),
		e.history.Snapshot(),
		e.history.Version,
	))
}

func (e *Engine) publishOutboundEvent(msg protocol.Outbound, outcome Outcome) {
	if e.sink == nil {
		return
	}
	messageID := ""
	if tm, ok := msg.(protocol.TextMessage); ok {
		messageID = tm.ID
	}
	_ = e.sink.PublishEvent(events.NewOutboundEvent(
		events.NewEventMetadata(e.sessionID),
		string(msg.Kind()), string(outcome), messageID,
	))
}

func (e *Engine) publishError(err error) {
	if e.sink == nil {
		return
	}
	_ = e.sink.PublishEvent(events.NewErrorEvent(events.NewEventMetadata(e.sessionID), err))
}
