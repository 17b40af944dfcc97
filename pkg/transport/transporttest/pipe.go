// Package transporttest provides an in-memory transport for tests.
package transporttest

import (
	"context"
	"sync"

	"github.com/go-go-golems/teammate/pkg/protocol"
	"github.com/go-go-golems/teammate/pkg/transport"
)

// Pipe is a Transport whose connection is driven by the test: Connect, Drop
// and Deliver inject events, Sent returns what the client emitted.
type Pipe struct {
	events chan transport.Event

	mu        sync.Mutex
	connected bool
	sent      []protocol.Outbound
	closed    bool
	done      chan struct{}
}

var _ transport.Transport = (*Pipe)(nil)

func NewPipe() *Pipe {
	return &Pipe{
		events: make(chan transport.Event, 64),
		done:   make(chan struct{}),
	}
}

func (p *Pipe) Start(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-p.done:
	}
	return nil
}

func (p *Pipe) Events() <-chan transport.Event {
	return p.events
}

func (p *Pipe) Emit(msg protocol.Outbound) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.connected {
		return transport.ErrNotConnected
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		p.connected = false
		close(p.done)
	}
	return nil
}

func (p *Pipe) Connect() {
	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	p.events <- transport.Event{Kind: transport.EventConnected}
}

func (p *Pipe) Drop() {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.events <- transport.Event{Kind: transport.EventDisconnected}
}

func (p *Pipe) Deliver(ev protocol.Inbound) {
	p.events <- transport.Event{Kind: transport.EventMessage, Message: ev}
}

func (p *Pipe) Sent() []protocol.Outbound {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]protocol.Outbound(nil), p.sent...)
}

// SentKinds returns the kinds of the emitted messages in order.
func (p *Pipe) SentKinds() []protocol.Kind {
	var ret []protocol.Kind
	for _, msg := range p.Sent() {
		ret = append(ret, msg.Kind())
	}
	return ret
}
