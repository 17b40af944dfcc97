package events

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/go-go-golems/teammate/pkg/helpers"
)

// TopicSession is the topic session events are published on.
const TopicSession = "session"

// SessionEventHandler receives decoded session events.
type SessionEventHandler interface {
	HandleHistoryUpdated(ctx context.Context, e *EventHistoryUpdated) error
	HandlePhaseChanged(ctx context.Context, e *EventPhaseChanged) error
	HandleOutbound(ctx context.Context, e *EventOutbound) error
	HandleError(ctx context.Context, e *EventError) error
}

type EventRouter struct {
	logger     watermill.LoggerAdapter
	Publisher  message.Publisher
	Subscriber message.Subscriber
	router     *message.Router
	verbose    bool
	dumpWriter io.Writer
}

type EventRouterOption func(*EventRouter)

func WithLogger(logger watermill.LoggerAdapter) EventRouterOption {
	return func(r *EventRouter) {
		r.logger = logger
	}
}

func WithPublisher(publisher message.Publisher) EventRouterOption {
	return func(r *EventRouter) {
		r.Publisher = publisher
	}
}

func WithSubscriber(subscriber message.Subscriber) EventRouterOption {
	return func(r *EventRouter) {
		r.Subscriber = subscriber
	}
}

func WithVerbose(verbose bool) EventRouterOption {
	return func(r *EventRouter) {
		r.verbose = verbose
		r.logger = helpers.NewWatermill(log.Logger)
	}
}

// WithDumpWriter sets where DumpRawEvents writes to. Defaults to stdout.
func WithDumpWriter(w io.Writer) EventRouterOption {
	return func(r *EventRouter) {
		r.dumpWriter = w
	}
}

func NewEventRouter(options ...EventRouterOption) (*EventRouter, error) {
	ret := &EventRouter{
		logger:     watermill.NopLogger{},
		dumpWriter: os.Stdout,
	}

	for _, o := range options {
		o(ret)
	}

	if ret.Publisher == nil || ret.Subscriber == nil {
		goPubSub := gochannel.NewGoChannel(gochannel.Config{
			BlockPublishUntilSubscriberAck: true,
		}, ret.logger)
		if ret.Publisher == nil {
			ret.Publisher = helpers.CorrelationPublisherDecorator{Publisher: goPubSub}
		}
		if ret.Subscriber == nil {
			ret.Subscriber = goPubSub
		}
	}

	router, err := message.NewRouter(message.RouterConfig{}, ret.logger)
	if err != nil {
		return nil, err
	}

	ret.router = router

	return ret, nil
}

func (e *EventRouter) Close() error {
	log.Debug().Msg("Closing publisher")
	err := e.Publisher.Close()
	if err != nil {
		log.Error().Err(err).Msg("Failed to close pubsub")
	}
	log.Debug().Msg("Publisher closed")

	log.Debug().Msg("Closing router")
	err = e.router.Close()
	if err != nil {
		log.Error().Err(err).Msg("Failed to close router")
	}
	log.Debug().Msg("Router closed")

	return nil
}

// NewDispatchHandler creates a watermill handler that parses session events
// and dispatches them to the matching method of handler.
func NewDispatchHandler(handler SessionEventHandler) message.NoPublishHandlerFunc {
	return func(msg *message.Message) error {
		logFields := watermill.LogFields{"message_id": msg.UUID}

		e, err := NewEventFromJson(msg.Payload)
		if err != nil {
			logFields["payload"] = string(msg.Payload)
			log.Error().Interface("logFields", logFields).Err(err).Msg("Failed to parse session event from message payload")
			// one bad message should not stop the handler
			return nil
		}

		logFields["event_type"] = string(e.Type())
		log.Trace().Interface("logFields", logFields).Msg("Parsed session event")

		msgCtx := msg.Context()
		var handlerErr error
		switch ev := e.(type) {
		case *EventHistoryUpdated:
			handlerErr = handler.HandleHistoryUpdated(msgCtx, ev)
		case *EventPhaseChanged:
			handlerErr = handler.HandlePhaseChanged(msgCtx, ev)
		case *EventOutbound:
			handlerErr = handler.HandleOutbound(msgCtx, ev)
		case *EventError:
			handlerErr = handler.HandleError(msgCtx, ev)
		default:
			log.Warn().Interface("logFields", logFields).Msg("Unhandled session event type")
		}

		if handlerErr != nil {
			log.Error().Interface("logFields", logFields).Err(handlerErr).Msg("Error processing session event")
			return handlerErr
		}

		return nil
	}
}

func (e *EventRouter) AddHandler(name string, topic string, f func(msg *message.Message) error) {
	e.router.AddNoPublisherHandler(name, topic, e.Subscriber, f)
}

// DumpRawEvents prints every event as YAML. Unless verbose, the metadata
// block is reduced to the event id.
func (e *EventRouter) DumpRawEvents(msg *message.Message) error {
	defer msg.Ack()

	var s map[string]interface{}
	err := json.Unmarshal(msg.Payload, &s)
	if err != nil {
		return err
	}
	if !e.verbose {
		if meta, ok := s["meta"].(map[string]interface{}); ok {
			s["id"] = meta["message_id"]
		}
		delete(s, "meta")
	}
	s_, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.dumpWriter, "---\n%s", s_)
	return err
}

func (e *EventRouter) Running() chan struct{} {
	return e.router.Running()
}

func (e *EventRouter) IsRunning() bool {
	return e.router.IsRunning()
}

func (e *EventRouter) Run(ctx context.Context) error {
	return e.router.Run(ctx)
}

func (e *EventRouter) RunHandlers(ctx context.Context) error {
	return e.router.RunHandlers(ctx)
}
