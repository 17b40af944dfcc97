package events

import (
	"encoding/json"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/teammate/pkg/helpers"
)

// EventSink receives events as they are produced.
type EventSink interface {
	PublishEvent(event Event) error
}

// WatermillSink publishes events as JSON to a watermill Publisher. Every
// message carries a monotonically increasing sequence_number metadata field.
type WatermillSink struct {
	publisher message.Publisher
	topic     string

	mu             sync.Mutex
	sequenceNumber uint64
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
}

func (w *WatermillSink) PublishEvent(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal event to JSON")
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	msg := message.NewMessage(watermill.NewUUID(), payload)
	if sessionID := event.Metadata().SessionID; sessionID != "" {
		msg.SetContext(helpers.ContextWithCorrelationID(msg.Context(), sessionID))
	}
	msg.Metadata.Set("sequence_number", strconv.FormatUint(w.sequenceNumber, 10))
	w.sequenceNumber++

	err = w.publisher.Publish(w.topic, msg)
	if err != nil {
		log.Error().Err(err).Str("topic", w.topic).Msg("Failed to publish event to watermill")
		return err
	}

	log.Trace().Str("topic", w.topic).Str("event_type", string(event.Type())).Msg("Published event to watermill")
	return nil
}

var _ EventSink = (*WatermillSink)(nil)

// MultiSink fans events out to several sinks, ignoring individual failures.
type MultiSink []EventSink

func (m MultiSink) PublishEvent(event Event) error {
	for _, sink := range m {
		if sink == nil {
			continue
		}
		_ = sink.PublishEvent(event)
	}
	return nil
}

var _ EventSink = MultiSink(nil)
