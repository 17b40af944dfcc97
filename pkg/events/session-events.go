package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/go-go-golems/teammate/pkg/conversation"
)

type EventType string

const (
	// EventTypeHistoryUpdated carries the full history after every change.
	EventTypeHistoryUpdated EventType = "history-updated"
	EventTypePhaseChanged   EventType = "phase-changed"
	// EventTypeOutbound reports the gating decision for one outbound message.
	EventTypeOutbound EventType = "outbound"
	EventTypeError    EventType = "error"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

type EventMetadata struct {
	ID        uuid.UUID `json:"message_id" yaml:"message_id" mapstructure:"message_id"`
	SessionID string    `json:"session_id,omitempty" yaml:"session_id,omitempty" mapstructure:"session_id"`
	Time      time.Time `json:"time" yaml:"time" mapstructure:"time"`
}

func NewEventMetadata(sessionID string) EventMetadata {
	return EventMetadata{
		ID:        uuid.New(),
		SessionID: sessionID,
		Time:      time.Now(),
	}
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("message_id", em.ID.String())
	if em.SessionID != "" {
		e.Str("session_id", em.SessionID)
	}
	e.Time("time", em.Time)
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta,omitempty"`

	// raw JSON when the event was decoded by NewEventFromJson
	payload []byte
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

func (e *EventImpl) SetPayload(b []byte) {
	e.payload = b
}

var _ Event = &EventImpl{}

type EventHistoryUpdated struct {
	EventImpl
	Entries conversation.History `json:"entries"`
	Version int64                `json:"version"`
}

func NewHistoryUpdatedEvent(metadata EventMetadata, entries conversation.History, version int64) *EventHistoryUpdated {
	return &EventHistoryUpdated{
		EventImpl: EventImpl{
			Type_:     EventTypeHistoryUpdated,
			Metadata_: metadata,
		},
		Entries: entries,
		Version: version,
	}
}

var _ Event = &EventHistoryUpdated{}

type EventPhaseChanged struct {
	EventImpl
	From        string `json:"from"`
	To          string `json:"to"`
	Connected   bool   `json:"connected"`
	Initialized bool   `json:"initialized"`
}

func NewPhaseChangedEvent(metadata EventMetadata, from, to string, connected, initialized bool) *EventPhaseChanged {
	return &EventPhaseChanged{
		EventImpl: EventImpl{
			Type_:     EventTypePhaseChanged,
			Metadata_: metadata,
		},
		From:        from,
		To:          to,
		Connected:   connected,
		Initialized: initialized,
	}
}

var _ Event = &EventPhaseChanged{}

type EventOutbound struct {
	EventImpl
	Kind    string `json:"kind"`
	Outcome string `json:"outcome"`
	// MessageID is set for text messages.
	MessageID string `json:"message_id,omitempty"`
}

func NewOutboundEvent(metadata EventMetadata, kind, outcome, messageID string) *EventOutbound {
	return &EventOutbound{
		EventImpl: EventImpl{
			Type_:     EventTypeOutbound,
			Metadata_: metadata,
		},
		Kind:      kind,
		Outcome:   outcome,
		MessageID: messageID,
	}
}

var _ Event = &EventOutbound{}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	return &EventError{
		EventImpl: EventImpl{
			Type_:     EventTypeError,
			Metadata_: metadata,
		},
		ErrorString: err.Error(),
	}
}

var _ Event = &EventError{}

func NewEventFromJson(b []byte) (Event, error) {
	var e *EventImpl
	err := json.Unmarshal(b, &e)
	if err != nil {
		return nil, err
	}
	if e == nil {
		return nil, fmt.Errorf("empty event")
	}

	var ret Event
	switch e.Type_ {
	case EventTypeHistoryUpdated:
		ret, err = toTypedEvent[EventHistoryUpdated](b)
	case EventTypePhaseChanged:
		ret, err = toTypedEvent[EventPhaseChanged](b)
	case EventTypeOutbound:
		ret, err = toTypedEvent[EventOutbound](b)
	case EventTypeError:
		ret, err = toTypedEvent[EventError](b)
	default:
		return nil, fmt.Errorf("unknown event type: %s", e.Type_)
	}
	if err != nil {
		return nil, fmt.Errorf("could not decode %s event: %w", e.Type_, err)
	}
	return ret, nil
}

type payloadSetter interface {
	Event
	SetPayload([]byte)
}

func toTypedEvent[T any, PT interface {
	*T
	payloadSetter
}](b []byte) (Event, error) {
	var ret T
	if err := json.Unmarshal(b, &ret); err != nil {
		return nil, err
	}
	p := PT(&ret)
	p.SetPayload(b)
	return p, nil
}
