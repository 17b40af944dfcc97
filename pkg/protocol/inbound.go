package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Inbound is a server to client event.
type Inbound interface {
	Kind() Kind
	Validate() error
	// Dispatch calls the Handler method matching the concrete event.
	Dispatch(h Handler)
}

// Handler has one method per inbound kind, so adding a kind breaks every
// consumer at compile time until it is handled.
type Handler interface {
	HandleConnectionAck(ev ConnectionAck)
	HandleConnectionInterrupted(ev ConnectionInterrupted)
	HandleSessionSnapshot(ev SessionSnapshot)
	HandleReconnectResponse(ev ReconnectResponse)
	HandleTextResponse(ev TextResponse)
}

type ConnectionAck struct{}

type ConnectionInterrupted struct{}

// SessionSnapshot is the server's `sessionInit` reply carrying the full history.
type SessionSnapshot struct {
	SessionID   string          `json:"sessionId,omitempty"`
	ChatHistory []SnapshotEntry `json:"chatHistory"`
}

type ReconnectResponse struct {
	ChatHistory []SnapshotEntry `json:"chatHistory"`
}

// TextResponse is one streamed fragment of a remote reply.
type TextResponse struct {
	ID           string `json:"id"`
	TextResponse string `json:"textResponse"`
	IsComplete   bool   `json:"isComplete,omitempty"`
}

// SnapshotEntry is one history entry as delivered in a snapshot. Message is
// the canonical text field; a `textResponse` field is accepted in its place.
type SnapshotEntry struct {
	ID            string    `json:"id"`
	Timestamp     Timestamp `json:"timestamp,omitempty"`
	Message       string    `json:"message,omitempty"`
	IsUserMessage bool      `json:"isUserMessage,omitempty"`
	IsComplete    bool      `json:"isComplete,omitempty"`
}

var (
	_ Inbound = ConnectionAck{}
	_ Inbound = ConnectionInterrupted{}
	_ Inbound = SessionSnapshot{}
	_ Inbound = ReconnectResponse{}
	_ Inbound = TextResponse{}
)

func (ConnectionAck) Kind() Kind         { return KindConnectionAck }
func (ConnectionInterrupted) Kind() Kind { return KindConnectionInterrupted }
func (SessionSnapshot) Kind() Kind       { return KindSessionInit }
func (ReconnectResponse) Kind() Kind     { return KindReconnectResponse }
func (TextResponse) Kind() Kind          { return KindTextResponse }

func (e ConnectionAck) Dispatch(h Handler)         { h.HandleConnectionAck(e) }
func (e ConnectionInterrupted) Dispatch(h Handler) { h.HandleConnectionInterrupted(e) }
func (e SessionSnapshot) Dispatch(h Handler)       { h.HandleSessionSnapshot(e) }
func (e ReconnectResponse) Dispatch(h Handler)     { h.HandleReconnectResponse(e) }
func (e TextResponse) Dispatch(h Handler)          { h.HandleTextResponse(e) }

func (ConnectionAck) Validate() error         { return nil }
func (ConnectionInterrupted) Validate() error { return nil }

func (e SessionSnapshot) Validate() error {
	return validateEntries(e.Kind(), e.ChatHistory)
}

func (e ReconnectResponse) Validate() error {
	return validateEntries(e.Kind(), e.ChatHistory)
}

func (e TextResponse) Validate() error {
	return requireField(e.Kind(), "id", e.ID)
}

func validateEntries(kind Kind, entries []SnapshotEntry) error {
	for i, entry := range entries {
		if entry.ID == "" {
			return errors.Wrapf(ErrInvalidMessage, "%s: chatHistory[%d]: missing id", kind, i)
		}
	}
	return nil
}

func (e *SnapshotEntry) UnmarshalJSON(b []byte) error {
	type fields SnapshotEntry
	var raw struct {
		fields
		TextResponse *string `json:"textResponse"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*e = SnapshotEntry(raw.fields)
	if e.Message == "" && raw.TextResponse != nil {
		e.Message = *raw.TextResponse
	}
	return nil
}

// MarshalInbound encodes a server event as a flat JSON object with a `type`
// field. It is used by the server side (see pkg/devserver).
func MarshalInbound(ev Inbound) ([]byte, error) {
	if ev == nil {
		return nil, errors.Wrap(ErrInvalidMessage, "nil event")
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	var body interface{}
	switch e := ev.(type) {
	case ConnectionAck, ConnectionInterrupted:
		body = struct {
			Type Kind `json:"type"`
		}{ev.Kind()}
	case SessionSnapshot:
		type fields SessionSnapshot
		body = struct {
			Type Kind `json:"type"`
			fields
		}{e.Kind(), fields(e)}
	case ReconnectResponse:
		type fields ReconnectResponse
		body = struct {
			Type Kind `json:"type"`
			fields
		}{e.Kind(), fields(e)}
	case TextResponse:
		type fields TextResponse
		body = struct {
			Type Kind `json:"type"`
			fields
		}{e.Kind(), fields(e)}
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "%T", ev)
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrapf(err, "could not encode %s", ev.Kind())
	}
	return b, nil
}
