package transport

import (
	"context"
	"errors"

	"github.com/go-go-golems/teammate/pkg/protocol"
)

var (
	ErrNotConnected   = errors.New("transport is not connected")
	ErrSendBufferFull = errors.New("transport send buffer is full")
)

type EventKind int

const (
	// EventConnected is delivered once per established raw connection,
	// before any message from it.
	EventConnected EventKind = iota
	// EventDisconnected is delivered when a raw connection ends.
	EventDisconnected
	EventMessage
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventMessage:
		return "message"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind    EventKind
	Message protocol.Inbound
	// Err is why the connection ended, for EventDisconnected.
	Err error
}

// Transport owns the raw connection, including reconnecting after a loss.
// Events are delivered in order on a single channel.
type Transport interface {
	// Start runs until ctx is done or Close is called.
	Start(ctx context.Context) error
	Events() <-chan Event
	// Emit hands a message to the current connection without blocking.
	Emit(msg protocol.Outbound) error
	Close() error
}
