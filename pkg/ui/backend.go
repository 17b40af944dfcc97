package ui

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"

	"github.com/go-go-golems/teammate/pkg/events"
)

// MessageSender is the part of tea.Program the forwarder needs.
type MessageSender interface {
	Send(msg tea.Msg)
}

// Forwarder turns session events into program messages.
type Forwarder struct {
	p MessageSender
}

var _ events.SessionEventHandler = (*Forwarder)(nil)

func NewForwarder(p MessageSender) *Forwarder {
	return &Forwarder{p: p}
}

func (f *Forwarder) HandleHistoryUpdated(_ context.Context, e *events.EventHistoryUpdated) error {
	f.p.Send(HistoryMsg{Entries: e.Entries, Version: e.Version})
	return nil
}

func (f *Forwarder) HandlePhaseChanged(_ context.Context, e *events.EventPhaseChanged) error {
	f.p.Send(PhaseMsg{Phase: e.To, Connected: e.Connected, Initialized: e.Initialized})
	return nil
}

func (f *Forwarder) HandleOutbound(_ context.Context, e *events.EventOutbound) error {
	f.p.Send(OutboundMsg{Kind: e.Kind, Outcome: e.Outcome, MessageID: e.MessageID})
	return nil
}

func (f *Forwarder) HandleError(_ context.Context, e *events.EventError) error {
	f.p.Send(ErrorMsg{Err: errors.New(e.ErrorString)})
	return nil
}

// ForwardFunc is a router handler that forwards every session event on the
// topic to p.
func ForwardFunc(p MessageSender) func(msg *message.Message) error {
	dispatch := events.NewDispatchHandler(NewForwarder(p))
	return func(msg *message.Message) error {
		msg.Ack()
		return dispatch(msg)
	}
}
