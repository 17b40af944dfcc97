package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-go-golems/teammate/pkg/conversation"
	"github.com/go-go-golems/teammate/pkg/events"
	"github.com/go-go-golems/teammate/pkg/protocol"
	"github.com/go-go-golems/teammate/pkg/session"
)

var t0 = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type recordingEmitter struct {
	sent []protocol.Outbound
	err  error
}

func (r *recordingEmitter) Emit(msg protocol.Outbound) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, msg)
	return nil
}

func (r *recordingEmitter) reset() {
	r.sent = nil
}

type recordingSink struct {
	events []events.Event
}

func (r *recordingSink) PublishEvent(e events.Event) error {
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) phases() []string {
	var ret []string
	for _, e := range r.events {
		if pc, ok := e.(*events.EventPhaseChanged); ok {
			ret = append(ret, pc.To)
		}
	}
	return ret
}

type fixture struct {
	ctx     context.Context
	emitter *recordingEmitter
	store   *session.InMemoryStore
	sink    *recordingSink
	engine  *Engine
}

func newFixture(t *testing.T, options ...Option) *fixture {
	t.Helper()
	f := &fixture{
		ctx:     context.Background(),
		emitter: &recordingEmitter{},
		store:   session.NewInMemoryStore(),
		sink:    &recordingSink{},
	}
	options = append([]Option{
		WithEventSink(f.sink),
		WithClock(func() time.Time { return t0 }),
		WithIDGenerator(func() string { return "generated-session" }),
		WithLogger(zerolog.Nop()),
	}, options...)
	f.engine = New(f.emitter, f.store, options...)
	return f
}

// initialize drives the engine through both handshakes with an empty snapshot.
func (f *fixture) initialize(t *testing.T) {
	t.Helper()
	f.engine.HandleTransportConnected(f.ctx)
	f.engine.HandleInbound(f.ctx, protocol.ConnectionAck{})
	f.engine.HandleInbound(f.ctx, protocol.SessionSnapshot{})
	require.True(t, f.engine.Initialized())
}

func kinds(msgs []protocol.Outbound) []protocol.Kind {
	var ret []protocol.Kind
	for _, m := range msgs {
		ret = append(ret, m.Kind())
	}
	return ret
}

func textIDs(msgs []protocol.Outbound) []string {
	var ret []string
	for _, m := range msgs {
		if tm, ok := m.(protocol.TextMessage); ok {
			ret = append(ret, tm.ID)
		}
	}
	return ret
}

func TestFreshSession(t *testing.T) {
	f := newFixture(t)

	f.engine.HandleTransportConnected(f.ctx)
	assert.Equal(t, PhaseConnecting, f.engine.Phase())
	assert.Equal(t, []protocol.Outbound{protocol.ConnectionInit{}}, f.emitter.sent)

	f.engine.HandleInbound(f.ctx, protocol.ConnectionAck{})
	assert.True(t, f.engine.Connected())
	assert.False(t, f.engine.Initialized())
	assert.Equal(t, "generated-session", f.engine.SessionID())

	stored, ok, err := f.store.Get(f.ctx, session.KeySessionID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "generated-session", stored)
	assert.Equal(t, protocol.SessionInit{SessionID: "generated-session"}, f.emitter.sent[1])

	f.engine.HandleInbound(f.ctx, protocol.SessionSnapshot{SessionID: "generated-session"})
	assert.True(t, f.engine.Initialized())
	assert.Empty(t, f.engine.History())

	require.NoError(t, f.engine.SendText(f.ctx, "m1", "hi"))
	require.Len(t, f.engine.History(), 1)
	assert.Equal(t, conversation.NewUserEntry("m1", "hi", t0), f.engine.History()[0])
	assert.Equal(t, protocol.TextMessage{SessionID: "generated-session", ID: "m1", Message: "hi"}, f.emitter.sent[2])

	last, ok := f.engine.Publisher().LastSent()
	require.True(t, ok)
	assert.Equal(t, f.emitter.sent[2], last)

	assert.Equal(t, []string{"connecting", "connected", "initialized"}, f.sink.phases())
}

func TestResumesPersistedSession(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Set(f.ctx, session.KeySessionID, "existing"))

	f.initialize(t)
	assert.Equal(t, "existing", f.engine.SessionID())
	assert.Equal(t, protocol.SessionInit{SessionID: "existing"}, f.emitter.sent[1])
}

type brokenStore struct {
	session.Store
}

func (brokenStore) Get(context.Context, string) (string, bool, error) {
	return "", false, errors.New("disk on fire")
}

func TestStoreFailureFallsBackToGeneratedID(t *testing.T) {
	f := newFixture(t)
	f.engine.store = brokenStore{}

	f.initialize(t)
	assert.Equal(t, "generated-session", f.engine.SessionID())

	var sawError bool
	for _, e := range f.sink.events {
		if e.Type() == events.EventTypeError {
			sawError = true
		}
	}
	assert.True(t, sawError)
}

func TestStreamingResponse(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	f.engine.HandleInbound(f.ctx, protocol.TextResponse{ID: "r1", TextResponse: "Hel"})
	f.engine.HandleInbound(f.ctx, protocol.TextResponse{ID: "r1", TextResponse: "lo"})
	h := f.engine.History()
	require.Len(t, h, 1)
	assert.Equal(t, "Hello", h[0].Text)
	assert.False(t, h[0].Complete)
	assert.Equal(t, conversation.DirectionRemote, h[0].Direction)

	f.engine.HandleInbound(f.ctx, protocol.TextResponse{ID: "r1", TextResponse: "!", IsComplete: true})
	h = f.engine.History()
	require.Len(t, h, 1)
	assert.Equal(t, "Hello!", h[0].Text)
	assert.True(t, h[0].Complete)
}

func TestReconnectReplaysLastMessage(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	require.NoError(t, f.engine.SendText(f.ctx, "m1", "hi"))
	sessionID := f.engine.SessionID()
	f.emitter.reset()

	f.engine.HandleInbound(f.ctx, protocol.ConnectionInterrupted{})
	assert.Equal(t, PhaseInterrupted, f.engine.Phase())
	assert.True(t, f.engine.Connected())
	assert.Equal(t, []protocol.Outbound{protocol.ReconnectRequest{SessionID: sessionID}}, f.emitter.sent)

	f.engine.HandleInbound(f.ctx, protocol.ReconnectResponse{ChatHistory: []protocol.SnapshotEntry{
		{ID: "m1", Message: "hi", IsUserMessage: true, IsComplete: true},
	}})
	assert.True(t, f.engine.Initialized())
	assert.Equal(t, sessionID, f.engine.SessionID())
	require.Len(t, f.emitter.sent, 2)
	assert.Equal(t, protocol.TextMessage{SessionID: sessionID, ID: "m1", Message: "hi"}, f.emitter.sent[1])

	h := f.engine.History()
	require.Len(t, h, 1)
	assert.Equal(t, conversation.DirectionUser, h[0].Direction)
	assert.Equal(t, t0, h[0].Timestamp)
}

func TestSendsDuringInterruptionFlushAfterReplay(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	require.NoError(t, f.engine.SendText(f.ctx, "m1", "first"))
	f.engine.HandleInbound(f.ctx, protocol.ConnectionInterrupted{})

	require.NoError(t, f.engine.SendText(f.ctx, "m2", "second"))
	assert.Len(t, f.engine.Publisher().Queue(), 1)
	f.emitter.reset()

	f.engine.HandleInbound(f.ctx, protocol.ReconnectResponse{})
	assert.Equal(t, []string{"m1", "m2"}, textIDs(f.emitter.sent))
	assert.Empty(t, f.engine.Publisher().Queue())

	last, _ := f.engine.Publisher().LastSent()
	assert.Equal(t, "m2", last.(protocol.TextMessage).ID)
}

func TestQueuedUntilInitialized(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.SendText(f.ctx, "m1", "one"))
	require.NoError(t, f.engine.SendText(f.ctx, "m2", "two"))
	assert.Empty(t, f.emitter.sent)
	assert.Len(t, f.engine.Publisher().Queue(), 2)
	assert.Len(t, f.engine.History(), 2)

	f.engine.HandleTransportConnected(f.ctx)
	f.engine.HandleInbound(f.ctx, protocol.ConnectionAck{})
	assert.Empty(t, textIDs(f.emitter.sent))

	f.engine.HandleInbound(f.ctx, protocol.SessionSnapshot{})
	assert.Equal(t, []protocol.Kind{
		protocol.KindConnectionInit,
		protocol.KindSessionInit,
		protocol.KindTextMessage,
		protocol.KindTextMessage,
	}, kinds(f.emitter.sent))
	assert.Equal(t, []string{"m1", "m2"}, textIDs(f.emitter.sent))
	assert.Empty(t, f.engine.Publisher().Queue())

	// the session id was resolved by the first send and reused by the handshake
	for _, msg := range f.emitter.sent[1:] {
		switch m := msg.(type) {
		case protocol.SessionInit:
			assert.Equal(t, "generated-session", m.SessionID)
		case protocol.TextMessage:
			assert.Equal(t, "generated-session", m.SessionID)
		}
	}
}

func TestSnapshotReplacesHistory(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.SendText(f.ctx, "local", "pending"))

	f.engine.HandleTransportConnected(f.ctx)
	f.engine.HandleInbound(f.ctx, protocol.ConnectionAck{})
	f.engine.HandleInbound(f.ctx, protocol.SessionSnapshot{ChatHistory: []protocol.SnapshotEntry{
		{ID: "a", Message: "old question", IsUserMessage: true, IsComplete: true, Timestamp: protocol.NewTimestamp(t0.Add(-time.Hour))},
		{ID: "b", Message: "old answer", IsComplete: true},
		{ID: "a", Message: "old question, edited", IsUserMessage: true, IsComplete: true},
	}})

	h := f.engine.History()
	require.Len(t, h, 2)
	assert.Equal(t, "old question, edited", h[0].Text)
	assert.Equal(t, "old answer", h[1].Text)
	assert.Equal(t, conversation.DirectionRemote, h[1].Direction)
	assert.Equal(t, t0, h[1].Timestamp)
}

func TestHandshakeMessagesAreNeverQueued(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, OutcomeDropped, f.engine.Publish(protocol.SessionInit{SessionID: "s"}))
	assert.Equal(t, OutcomeDropped, f.engine.Publish(protocol.ReconnectRequest{SessionID: "s"}))
	assert.Empty(t, f.engine.Publisher().Queue())
	assert.Empty(t, f.emitter.sent)

	f.initialize(t)
	f.emitter.reset()
	assert.Equal(t, OutcomeDropped, f.engine.Publish(protocol.SessionInit{SessionID: "s"}))
	assert.Equal(t, OutcomeDropped, f.engine.Publish(protocol.ReconnectRequest{SessionID: "s"}))
	assert.Empty(t, f.engine.Publisher().Queue())
	assert.Empty(t, f.emitter.sent)

	// connectionInit is always sent and never becomes the replay candidate
	assert.Equal(t, OutcomeSent, f.engine.Publish(protocol.ConnectionInit{}))
	_, ok := f.engine.Publisher().LastSent()
	assert.False(t, ok)
}

func TestInterruptBeforeAckSendsNothing(t *testing.T) {
	f := newFixture(t)
	f.engine.HandleTransportConnected(f.ctx)
	f.emitter.reset()

	f.engine.HandleInbound(f.ctx, protocol.ConnectionInterrupted{})
	assert.Empty(t, f.emitter.sent)
	assert.Equal(t, PhaseConnecting, f.engine.Phase())
}

func TestTransportLossResetsEpoch(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	require.NoError(t, f.engine.SendText(f.ctx, "m1", "hi"))

	f.engine.HandleTransportLost(f.ctx)
	assert.Equal(t, PhaseDisconnected, f.engine.Phase())
	assert.False(t, f.engine.Connected())
	assert.False(t, f.engine.Initialized())

	require.NoError(t, f.engine.SendText(f.ctx, "m2", "while offline"))
	assert.Len(t, f.engine.Publisher().Queue(), 1)
	f.emitter.reset()

	f.initialize(t)
	assert.Equal(t, []string{"m2"}, textIDs(f.emitter.sent))
	assert.Equal(t, "generated-session", f.engine.SessionID())
}

func TestEmitFailureRequeuesPayload(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)

	f.emitter.err = errors.New("connection gone")
	require.NoError(t, f.engine.SendText(f.ctx, "m1", "hi"))
	assert.Len(t, f.engine.Publisher().Queue(), 1)
	_, ok := f.engine.Publisher().LastSent()
	assert.False(t, ok)

	f.emitter.err = nil
	f.engine.HandleTransportLost(f.ctx)
	f.emitter.reset()
	f.initialize(t)
	assert.Equal(t, []string{"m1"}, textIDs(f.emitter.sent))
}

// flakyEmitter refuses the first attempt to send each listed text message.
type flakyEmitter struct {
	recordingEmitter
	failOnce map[string]bool
}

func (f *flakyEmitter) Emit(msg protocol.Outbound) error {
	if tm, ok := msg.(protocol.TextMessage); ok && f.failOnce[tm.ID] {
		delete(f.failOnce, tm.ID)
		return errors.New("send buffer full")
	}
	return f.recordingEmitter.Emit(msg)
}

func TestRefusedFlushKeepsOrder(t *testing.T) {
	emitter := &flakyEmitter{failOnce: map[string]bool{"m1": true}}
	e := New(emitter, session.NewInMemoryStore(),
		WithClock(func() time.Time { return t0 }),
		WithLogger(zerolog.Nop()),
	)
	ctx := context.Background()

	require.NoError(t, e.SendText(ctx, "m1", "one"))
	require.NoError(t, e.SendText(ctx, "m2", "two"))

	e.HandleTransportConnected(ctx)
	e.HandleInbound(ctx, protocol.ConnectionAck{})
	e.HandleInbound(ctx, protocol.SessionSnapshot{})
	require.True(t, e.Initialized())
	assert.Empty(t, textIDs(emitter.sent))
	assert.Equal(t, []string{"m1", "m2"}, textIDs(e.Publisher().Queue()))

	require.NoError(t, e.SendText(ctx, "m3", "three"))
	assert.Equal(t, []string{"m1", "m2", "m3"}, textIDs(emitter.sent))
	assert.Empty(t, e.Publisher().Queue())
}

func TestRefusedSendIsNotOvertaken(t *testing.T) {
	emitter := &flakyEmitter{failOnce: map[string]bool{"m1": true}}
	e := New(emitter, session.NewInMemoryStore(),
		WithClock(func() time.Time { return t0 }),
		WithLogger(zerolog.Nop()),
	)
	ctx := context.Background()
	e.HandleTransportConnected(ctx)
	e.HandleInbound(ctx, protocol.ConnectionAck{})
	e.HandleInbound(ctx, protocol.SessionSnapshot{})

	require.NoError(t, e.SendText(ctx, "m1", "one"))
	assert.Equal(t, []string{"m1"}, textIDs(e.Publisher().Queue()))

	require.NoError(t, e.SendText(ctx, "m2", "two"))
	assert.Equal(t, []string{"m1", "m2"}, textIDs(emitter.sent))
	assert.Empty(t, e.Publisher().Queue())
	last, ok := e.Publisher().LastSent()
	require.True(t, ok)
	assert.Equal(t, "m2", last.(protocol.TextMessage).ID)
}

func TestUnparseableSnapshotTimestampStillInitializes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.SendText(f.ctx, "m1", "one"))

	f.engine.HandleTransportConnected(f.ctx)
	f.engine.HandleInbound(f.ctx, protocol.ConnectionAck{})

	ev, err := protocol.UnmarshalInbound([]byte(`{"type":"sessionInit","sessionId":"generated-session",` +
		`"chatHistory":[{"id":"a","timestamp":"yesterday-ish","message":"earlier","isUserMessage":true,"isComplete":true}]}`))
	require.NoError(t, err)
	f.engine.HandleInbound(f.ctx, ev)

	assert.True(t, f.engine.Initialized())
	assert.Equal(t, []string{"m1"}, textIDs(f.emitter.sent))
	assert.Empty(t, f.engine.Publisher().Queue())

	history := f.engine.History()
	require.Len(t, history, 1)
	assert.Equal(t, "a", history[0].ID)
	assert.Equal(t, t0, history[0].Timestamp)
}

func TestDuplicateSendIsRejected(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	require.NoError(t, f.engine.SendText(f.ctx, "m1", "hi"))
	f.emitter.reset()

	err := f.engine.SendText(f.ctx, "m1", "again")
	assert.True(t, errors.Is(err, conversation.ErrDuplicateID))
	assert.Empty(t, f.emitter.sent)
	assert.Len(t, f.engine.History(), 1)

	assert.Equal(t, ErrEmptyID, f.engine.SendText(f.ctx, "", "x"))
}

func TestMergeMessage(t *testing.T) {
	f := newFixture(t)
	f.engine.MergeMessage(conversation.NewFragment("r1", "a", false, t0))
	f.engine.MergeMessage(conversation.NewFragment("r1", "b", true, t0))
	h := f.engine.History()
	require.Len(t, h, 1)
	assert.Equal(t, "ab", h[0].Text)
	assert.Equal(t, int64(2), f.engine.HistoryVersion())
}

func TestCloseSendsConnectionClosedAndStops(t *testing.T) {
	f := newFixture(t)
	f.initialize(t)
	f.emitter.reset()

	f.engine.Close(f.ctx)
	assert.Equal(t, []protocol.Outbound{protocol.ConnectionClosed{SessionID: "generated-session"}}, f.emitter.sent)
	assert.Equal(t, PhaseClosed, f.engine.Phase())
	_, ok := f.engine.Publisher().LastSent()
	assert.False(t, ok)

	f.emitter.reset()
	assert.Equal(t, ErrClosed, f.engine.SendText(f.ctx, "m1", "hi"))
	f.engine.HandleTransportConnected(f.ctx)
	f.engine.HandleInbound(f.ctx, protocol.TextResponse{ID: "r1", TextResponse: "late"})
	assert.Empty(t, f.emitter.sent)
	assert.Empty(t, f.engine.History())
	assert.Equal(t, PhaseClosed, f.engine.Phase())
}

func TestOutboundEventsReportOutcomes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.SendText(f.ctx, "m1", "hi"))

	var outcomes []string
	for _, e := range f.sink.events {
		if o, ok := e.(*events.EventOutbound); ok {
			outcomes = append(outcomes, fmt.Sprintf("%s:%s:%s", o.Kind, o.Outcome, o.MessageID))
		}
	}
	assert.Equal(t, []string{"textMessage:queued:m1"}, outcomes)
}

// Random interleavings of sends and connection events: every sent text goes
// out exactly once, in send order, and handshake messages never queue.
func TestRandomInterleavingsDeliverInOrder(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			f := newFixture(t)
			var sentIDs []string

			for step := 0; step < 200; step++ {
				switch rng.Intn(5) {
				case 0:
					id := fmt.Sprintf("m%d", step)
					require.NoError(t, f.engine.SendText(f.ctx, id, "x"))
					sentIDs = append(sentIDs, id)
				case 1:
					if f.engine.Phase() == PhaseDisconnected {
						f.engine.HandleTransportConnected(f.ctx)
					}
				case 2:
					if f.engine.Phase() == PhaseConnecting {
						f.engine.HandleInbound(f.ctx, protocol.ConnectionAck{})
					}
				case 3:
					if f.engine.Phase() == PhaseConnected {
						f.engine.HandleInbound(f.ctx, protocol.SessionSnapshot{})
					}
				case 4:
					f.engine.HandleTransportLost(f.ctx)
				}

				for _, queued := range f.engine.Publisher().Queue() {
					require.True(t, protocol.IsPayload(queued))
				}
				if !f.engine.Initialized() {
					continue
				}
				require.Empty(t, f.engine.Publisher().Queue())
			}

			if !f.engine.Initialized() {
				f.engine.HandleTransportLost(f.ctx)
				f.initialize(t)
			}
			assert.Equal(t, sentIDs, textIDs(f.emitter.sent))
		})
	}
}
