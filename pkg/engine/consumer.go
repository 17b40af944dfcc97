package engine

import (
	"context"
	"time"

	"github.com/go-go-golems/teammate/pkg/conversation"
	"github.com/go-go-golems/teammate/pkg/protocol"
)

// consumer is the only writer of the connection state.
type consumer struct {
	ctx context.Context
	e   *Engine
}

var _ protocol.Handler = consumer{}

func (c consumer) HandleConnectionAck(protocol.ConnectionAck) {
	sessionID := c.e.ensureSessionID(c.ctx)
	c.e.transition(c.e.state.acknowledge())
	c.e.publisher.Publish(protocol.SessionInit{SessionID: sessionID})
}

func (c consumer) HandleConnectionInterrupted(protocol.ConnectionInterrupted) {
	c.e.transition(c.e.state.interrupt())
	c.e.publisher.Publish(protocol.ReconnectRequest{SessionID: c.e.sessionID})
}

func (c consumer) HandleSessionSnapshot(ev protocol.SessionSnapshot) {
	if ev.SessionID != "" && c.e.sessionID != "" && ev.SessionID != c.e.sessionID {
		c.e.log.Warn().
			Str("session_id", c.e.sessionID).
			Str("snapshot_session_id", ev.SessionID).
			Msg("snapshot is for a different session, keeping local session id")
	}
	c.e.applyHistory(conversation.MutateReplace(snapshotEntries(ev.ChatHistory, c.e.now())))

	from, changed := c.e.state.initialize()
	c.e.transition(from, changed)
	if changed {
		c.e.publisher.FlushQueue()
	}
}

func (c consumer) HandleReconnectResponse(ev protocol.ReconnectResponse) {
	c.e.applyHistory(conversation.MutateReplace(snapshotEntries(ev.ChatHistory, c.e.now())))

	c.e.transition(c.e.state.initialize())
	c.e.publisher.ResendLastMessage()
	c.e.publisher.FlushQueue()
}

func (c consumer) HandleTextResponse(ev protocol.TextResponse) {
	c.e.applyHistory(conversation.MutateMerge(
		conversation.NewFragment(ev.ID, ev.TextResponse, ev.IsComplete, c.e.now()),
	))
}

func snapshotEntries(entries []protocol.SnapshotEntry, now time.Time) []conversation.Entry {
	ret := make([]conversation.Entry, 0, len(entries))
	for _, entry := range entries {
		direction := conversation.DirectionRemote
		if entry.IsUserMessage {
			direction = conversation.DirectionUser
		}
		ts := entry.Timestamp.Time
		if ts.IsZero() {
			ts = now
		}
		ret = append(ret, conversation.Entry{
			ID:        entry.ID,
			Timestamp: ts,
			Text:      entry.Message,
			Direction: direction,
			Complete:  entry.IsComplete,
		})
	}
	return ret
}
