package protocol

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Outbound is a client to server message. The set of implementations is
// closed: every type lives in this file.
type Outbound interface {
	Kind() Kind
	Validate() error
	isOutbound()
}

type ConnectionInit struct{}

type SessionInit struct {
	SessionID string `json:"sessionId"`
}

type ReconnectRequest struct {
	SessionID string `json:"sessionId"`
}

type ConnectionClosed struct {
	SessionID string `json:"sessionId"`
}

type TextMessage struct {
	SessionID string `json:"sessionId"`
	ID        string `json:"id"`
	Message   string `json:"message"`
}

var (
	_ Outbound = ConnectionInit{}
	_ Outbound = SessionInit{}
	_ Outbound = ReconnectRequest{}
	_ Outbound = ConnectionClosed{}
	_ Outbound = TextMessage{}
)

func (ConnectionInit) Kind() Kind   { return KindConnectionInit }
func (SessionInit) Kind() Kind      { return KindSessionInit }
func (ReconnectRequest) Kind() Kind { return KindReconnectRequest }
func (ConnectionClosed) Kind() Kind { return KindConnectionClosed }
func (TextMessage) Kind() Kind      { return KindTextMessage }

func (ConnectionInit) isOutbound()   {}
func (SessionInit) isOutbound()      {}
func (ReconnectRequest) isOutbound() {}
func (ConnectionClosed) isOutbound() {}
func (TextMessage) isOutbound()      {}

func (ConnectionInit) Validate() error { return nil }

func (m SessionInit) Validate() error {
	return requireField(m.Kind(), "sessionId", m.SessionID)
}

func (m ReconnectRequest) Validate() error {
	return requireField(m.Kind(), "sessionId", m.SessionID)
}

func (m ConnectionClosed) Validate() error {
	return requireField(m.Kind(), "sessionId", m.SessionID)
}

func (m TextMessage) Validate() error {
	if err := requireField(m.Kind(), "sessionId", m.SessionID); err != nil {
		return err
	}
	return requireField(m.Kind(), "id", m.ID)
}

// IsPayload reports whether msg carries conversation content and is subject
// to queueing and replay. Handshake messages are never payloads.
func IsPayload(msg Outbound) bool {
	switch msg.(type) {
	case TextMessage, ConnectionClosed:
		return true
	case ConnectionInit, SessionInit, ReconnectRequest:
		return false
	default:
		return false
	}
}

// MarshalOutbound validates msg and encodes it as a flat JSON object with a
// `type` field.
func MarshalOutbound(msg Outbound) ([]byte, error) {
	if msg == nil {
		return nil, errors.Wrap(ErrInvalidMessage, "nil message")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	var body interface{}
	switch m := msg.(type) {
	case ConnectionInit:
		body = struct {
			Type Kind `json:"type"`
		}{m.Kind()}
	case SessionInit:
		type fields SessionInit
		body = struct {
			Type Kind `json:"type"`
			fields
		}{m.Kind(), fields(m)}
	case ReconnectRequest:
		type fields ReconnectRequest
		body = struct {
			Type Kind `json:"type"`
			fields
		}{m.Kind(), fields(m)}
	case ConnectionClosed:
		type fields ConnectionClosed
		body = struct {
			Type Kind `json:"type"`
			fields
		}{m.Kind(), fields(m)}
	case TextMessage:
		type fields TextMessage
		body = struct {
			Type Kind `json:"type"`
			fields
		}{m.Kind(), fields(m)}
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "%T", msg)
	}

	b, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrapf(err, "could not encode %s", msg.Kind())
	}
	return b, nil
}

// UnmarshalOutbound decodes a client frame. It is used by the server side
// (see pkg/devserver).
func UnmarshalOutbound(b []byte) (Outbound, error) {
	kind, err := readKind(b)
	if err != nil {
		return nil, err
	}

	var msg Outbound
	switch kind {
	case KindConnectionInit:
		msg = ConnectionInit{}
	case KindSessionInit:
		var m SessionInit
		err = json.Unmarshal(b, &m)
		msg = m
	case KindReconnectRequest:
		var m ReconnectRequest
		err = json.Unmarshal(b, &m)
		msg = m
	case KindConnectionClosed:
		var m ConnectionClosed
		err = json.Unmarshal(b, &m)
		msg = m
	case KindTextMessage:
		var m TextMessage
		err = json.Unmarshal(b, &m)
		msg = m
	default:
		return nil, errors.Wrapf(ErrUnknownKind, "outbound %q", kind)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode %s", kind)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return msg, nil
}

func requireField(kind Kind, name, value string) error {
	if value == "" {
		return errors.Wrapf(ErrInvalidMessage, "%s: missing %s", kind, name)
	}
	return nil
}

func readKind(b []byte) (Kind, error) {
	var hdr struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(b, &hdr); err != nil {
		return "", errors.Wrap(err, "could not read frame header")
	}
	kind := NormalizeKind(hdr.Type)
	if kind == "" {
		return "", errors.Wrap(ErrInvalidMessage, "missing type")
	}
	return kind, nil
}
