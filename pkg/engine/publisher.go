package engine

import (
	"github.com/rs/zerolog"

	"github.com/go-go-golems/teammate/pkg/protocol"
)

// Emitter hands a message to the transport.
type Emitter interface {
	Emit(msg protocol.Outbound) error
}

type EmitterFunc func(msg protocol.Outbound) error

func (f EmitterFunc) Emit(msg protocol.Outbound) error {
	return f(msg)
}

// Outcome is what Publish did with a message.
type Outcome string

const (
	OutcomeSent    Outcome = "sent"
	OutcomeQueued  Outcome = "queued"
	OutcomeDropped Outcome = "dropped"
	// OutcomeFailed means the transport refused the message. Payload messages
	// are put back on the queue.
	OutcomeFailed Outcome = "failed"
)

// Publisher gates outbound messages on the connection state.
//
// Handshake messages are sent or dropped, never queued. Payload messages are
// sent while initialized and queued otherwise; the last payload actually sent
// is remembered for replay after a reconnect.
type Publisher struct {
	emitter  Emitter
	state    StateReader
	queue    []protocol.Outbound
	lastSent protocol.Outbound
	notify   func(msg protocol.Outbound, outcome Outcome)
	log      zerolog.Logger
}

func NewPublisher(emitter Emitter, state StateReader, logger zerolog.Logger) *Publisher {
	return &Publisher{
		emitter: emitter,
		state:   state,
		log:     logger,
	}
}

func (p *Publisher) Publish(msg protocol.Outbound) Outcome {
	outcome := p.publish(msg)
	if p.notify != nil && msg != nil {
		p.notify(msg, outcome)
	}
	return outcome
}

func (p *Publisher) publish(msg protocol.Outbound) Outcome {
	if msg == nil {
		return OutcomeDropped
	}
	if err := msg.Validate(); err != nil {
		p.log.Warn().Err(err).Str("kind", string(msg.Kind())).Msg("dropping invalid outbound message")
		return OutcomeDropped
	}

	switch msg.(type) {
	case protocol.ConnectionInit:
		return p.emit(msg)

	case protocol.SessionInit, protocol.ReconnectRequest:
		if p.state.Connected() && !p.state.Initialized() {
			return p.emit(msg)
		}
		p.log.Debug().
			Str("kind", string(msg.Kind())).
			Bool("connected", p.state.Connected()).
			Bool("initialized", p.state.Initialized()).
			Msg("dropping handshake message")
		return OutcomeDropped

	case protocol.TextMessage, protocol.ConnectionClosed:
		if p.state.Initialized() {
			// earlier messages the transport refused go first
			p.FlushQueue()
			if len(p.queue) == 0 {
				return p.emit(msg)
			}
		}
		p.queue = append(p.queue, msg)
		p.log.Debug().
			Str("kind", string(msg.Kind())).
			Int("queue_length", len(p.queue)).
			Msg("queued outbound message")
		return OutcomeQueued

	default:
		p.log.Warn().Str("kind", string(msg.Kind())).Msg("dropping unknown outbound message")
		return OutcomeDropped
	}
}

func (p *Publisher) emit(msg protocol.Outbound) Outcome {
	payload := protocol.IsPayload(msg)
	if err := p.emitter.Emit(msg); err != nil {
		ev := p.log.Warn().Err(err).Str("kind", string(msg.Kind()))
		if payload {
			p.queue = append(p.queue, msg)
			ev = ev.Int("queue_length", len(p.queue))
		}
		ev.Msg("transport refused outbound message")
		return OutcomeFailed
	}
	if payload {
		p.lastSent = msg
	}
	p.log.Trace().Str("kind", string(msg.Kind())).Msg("sent outbound message")
	return OutcomeSent
}

// FlushQueue republishes every queued message in FIFO order. It stops at the
// first message the transport refuses; that message and the rest stay queued
// in their original order.
func (p *Publisher) FlushQueue() {
	if len(p.queue) == 0 {
		return
	}
	pending := p.queue
	p.queue = nil
	p.log.Debug().Int("count", len(pending)).Msg("flushing outbound queue")
	for i, msg := range pending {
		if p.Publish(msg) == OutcomeFailed {
			p.queue = append(p.queue, pending[i+1:]...)
			p.log.Debug().Int("queue_length", len(p.queue)).Msg("flush interrupted by transport error")
			return
		}
	}
}

// ResendLastMessage republishes the last payload message sent while
// initialized, if any.
func (p *Publisher) ResendLastMessage() {
	if p.lastSent == nil {
		return
	}
	p.log.Debug().Str("kind", string(p.lastSent.Kind())).Msg("replaying last sent message")
	p.Publish(p.lastSent)
}

// Queue returns a copy of the pending messages.
func (p *Publisher) Queue() []protocol.Outbound {
	return append([]protocol.Outbound(nil), p.queue...)
}

func (p *Publisher) LastSent() (protocol.Outbound, bool) {
	return p.lastSent, p.lastSent != nil
}

// Reset forgets the queue and the last sent message.
func (p *Publisher) Reset() {
	p.queue = nil
	p.lastSent = nil
}
