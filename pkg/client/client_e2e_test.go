package client

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/go-go-golems/teammate/pkg/devserver"
	"github.com/go-go-golems/teammate/pkg/engine"
	"github.com/go-go-golems/teammate/pkg/events"
	"github.com/go-go-golems/teammate/pkg/session"
	"github.com/go-go-golems/teammate/pkg/transport"
)

type phaseRecorder struct {
	mu     sync.Mutex
	phases []string
}

func (r *phaseRecorder) PublishEvent(e events.Event) error {
	if pc, ok := e.(*events.EventPhaseChanged); ok {
		r.mu.Lock()
		r.phases = append(r.phases, pc.To)
		r.mu.Unlock()
	}
	return nil
}

func (r *phaseRecorder) count(phase engine.Phase) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, p := range r.phases {
		if p == phase.String() {
			n++
		}
	}
	return n
}

func TestClientAgainstDevServer(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	server := devserver.NewServer(devserver.WithLogger(zerolog.Nop()))
	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	cfg := transport.DefaultConfig()
	cfg.URL = "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	cfg.PingInterval = 0
	cfg.Backoff = transport.BackoffConfig{InitialDelay: 10 * time.Millisecond, MaxDelay: 50 * time.Millisecond, Multiplier: 2}
	tr, err := transport.NewWebSocketTransport(cfg, transport.WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	store := session.NewInMemoryStore()
	recorder := &phaseRecorder{}
	c := New(tr, store, WithLogger(zerolog.Nop()), WithEventSink(recorder))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- c.Run(ctx) }()

	_, err = c.WaitFor(ctx, func(s Snapshot) bool { return s.Phase == engine.PhaseInitialized })
	require.NoError(t, err)
	sessionID := c.SessionID()
	require.NotEmpty(t, sessionID)

	require.NoError(t, c.SendText(ctx, "m-1", "hello there"))
	s, err := c.WaitFor(ctx, func(s Snapshot) bool {
		return len(s.History) == 2 && s.History[1].Complete
	})
	require.NoError(t, err)
	assert.Equal(t, "echo: hello there", s.History[1].Text)

	// the server interrupts, the client asks to resume and gets its history back
	require.NoError(t, server.Interrupt(sessionID))
	require.Eventually(t, func() bool {
		return recorder.count(engine.PhaseInterrupted) == 1 && recorder.count(engine.PhaseInitialized) == 2
	}, 5*time.Second, 5*time.Millisecond)
	assert.Len(t, c.History(), 2)

	// a dropped connection is re-established with the same session
	server.CloseConnections()
	require.Eventually(t, func() bool {
		return recorder.count(engine.PhaseDisconnected) == 1 && recorder.count(engine.PhaseInitialized) == 3
	}, 5*time.Second, 5*time.Millisecond)
	require.NoError(t, c.SendText(ctx, "m-2", "after drop"))
	s, err = c.WaitFor(ctx, func(s Snapshot) bool {
		return s.Phase == engine.PhaseInitialized && len(s.History) == 4 && s.History[3].Complete
	})
	require.NoError(t, err)
	assert.Equal(t, sessionID, s.SessionID)
	assert.Equal(t, "echo: after drop", s.History[3].Text)
	assert.Len(t, server.History(sessionID), 4)

	require.NoError(t, c.Close())
	require.NoError(t, <-errc)
}
