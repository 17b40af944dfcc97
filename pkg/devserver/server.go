// Package devserver is a local implementation of the server side of the
// session protocol. It keeps one history per session id and answers text
// messages with a streamed reply.
package devserver

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/teammate/pkg/protocol"
)

var ErrUnknownSession = errors.New("no connection for session")

// Responder turns a user message into the fragments of the reply.
type Responder func(text string) []string

// EchoResponder replies with the message, one word per fragment.
func EchoResponder(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return []string{"(empty)"}
	}
	ret := []string{"echo:"}
	for _, w := range words {
		ret = append(ret, " "+w)
	}
	return ret
}

type sessionState struct {
	history []protocol.SnapshotEntry
	conn    *serverConn
}

type Server struct {
	upgrader      websocket.Upgrader
	responder     Responder
	fragmentDelay time.Duration
	now           func() time.Time
	log           zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionState
	conns    map[*serverConn]struct{}
}

type Option func(*Server)

func WithResponder(r Responder) Option {
	return func(s *Server) {
		s.responder = r
	}
}

// WithFragmentDelay pauses between streamed reply fragments.
func WithFragmentDelay(d time.Duration) Option {
	return func(s *Server) {
		s.fragmentDelay = d
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Server) {
		s.log = logger
	}
}

func NewServer(options ...Option) *Server {
	s := &Server{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		responder: EchoResponder,
		now:       time.Now,
		log:       log.With().Str("component", "devserver").Logger(),
		sessions:  map[string]*sessionState{},
		conns:     map[*serverConn]struct{}{},
	}
	for _, option := range options {
		option(s)
	}
	return s
}

// Handler serves the protocol on /ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/ws", s)
	return mux
}

// ListenAndServe runs the server until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		s.log.Info().Str("addr", addr).Msg("dev server listening")
		err := srv.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	eg.Go(func() error {
		<-ctx.Done()
		s.CloseConnections()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return eg.Wait()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("could not upgrade connection")
		return
	}

	c := &serverConn{ws: ws, log: s.log.With().Str("remote", r.RemoteAddr).Logger()}
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.detach(c)
		_ = ws.Close()
	}()

	c.log.Debug().Msg("client connected")
	for {
		_, b, err := ws.ReadMessage()
		if err != nil {
			c.log.Debug().Err(err).Msg("client disconnected")
			return
		}
		msg, err := protocol.UnmarshalOutbound(b)
		if err != nil {
			c.log.Warn().Err(err).Str("raw", string(b)).Msg("dropping invalid message")
			continue
		}
		if err := s.handle(c, msg); err != nil {
			c.log.Debug().Err(err).Msg("could not answer client")
			return
		}
	}
}

func (s *Server) handle(c *serverConn, msg protocol.Outbound) error {
	c.log.Debug().Str("kind", string(msg.Kind())).Msg("received")

	switch m := msg.(type) {
	case protocol.ConnectionInit:
		return c.send(protocol.ConnectionAck{})

	case protocol.SessionInit:
		history := s.attach(c, m.SessionID)
		return c.send(protocol.SessionSnapshot{SessionID: m.SessionID, ChatHistory: history})

	case protocol.ReconnectRequest:
		history := s.attach(c, m.SessionID)
		return c.send(protocol.ReconnectResponse{ChatHistory: history})

	case protocol.TextMessage:
		return s.reply(c, m)

	case protocol.ConnectionClosed:
		c.log.Info().Str("session_id", m.SessionID).Msg("client closed session")
		s.detach(c)
		return nil
	}
	return nil
}

func (s *Server) reply(c *serverConn, m protocol.TextMessage) error {
	s.mu.Lock()
	st := s.session(m.SessionID)
	for _, e := range st.history {
		if e.ID == m.ID {
			s.mu.Unlock()
			c.log.Debug().Str("id", m.ID).Msg("ignoring resent message")
			return nil
		}
	}
	st.history = append(st.history, protocol.SnapshotEntry{
		ID:            m.ID,
		Timestamp:     protocol.NewTimestamp(s.now()),
		Message:       m.Message,
		IsUserMessage: true,
		IsComplete:    true,
	})
	s.mu.Unlock()

	replyID := uuid.NewString()
	fragments := s.responder(m.Message)
	for i, f := range fragments {
		if i > 0 && s.fragmentDelay > 0 {
			time.Sleep(s.fragmentDelay)
		}
		err := c.send(protocol.TextResponse{
			ID:           replyID,
			TextResponse: f,
			IsComplete:   i == len(fragments)-1,
		})
		if err != nil {
			return err
		}
	}

	s.mu.Lock()
	st.history = append(st.history, protocol.SnapshotEntry{
		ID:         replyID,
		Timestamp:  protocol.NewTimestamp(s.now()),
		Message:    strings.Join(fragments, ""),
		IsComplete: true,
	})
	s.mu.Unlock()
	return nil
}

// Interrupt sends connectionInterrupted to the connection of sessionID.
func (s *Server) Interrupt(sessionID string) error {
	s.mu.Lock()
	st, ok := s.sessions[sessionID]
	var c *serverConn
	if ok {
		c = st.conn
	}
	s.mu.Unlock()
	if c == nil {
		return errors.Wrap(ErrUnknownSession, sessionID)
	}
	return c.send(protocol.ConnectionInterrupted{})
}

// History returns a copy of the server-side history of sessionID.
func (s *Server) History(sessionID string) []protocol.SnapshotEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	return append([]protocol.SnapshotEntry(nil), st.history...)
}

// CloseConnections drops every open connection.
func (s *Server) CloseConnections() {
	s.mu.Lock()
	conns := make([]*serverConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.ws.Close()
	}
}

func (s *Server) session(id string) *sessionState {
	st, ok := s.sessions[id]
	if !ok {
		st = &sessionState{}
		s.sessions[id] = st
	}
	return st
}

func (s *Server) attach(c *serverConn, sessionID string) []protocol.SnapshotEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.session(sessionID)
	st.conn = c
	c.log = c.log.With().Str("session_id", sessionID).Logger()
	return append([]protocol.SnapshotEntry{}, st.history...)
}

func (s *Server) detach(c *serverConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
	for _, st := range s.sessions {
		if st.conn == c {
			st.conn = nil
		}
	}
}

type serverConn struct {
	ws  *websocket.Conn
	log zerolog.Logger

	mu sync.Mutex
}

func (c *serverConn) send(ev protocol.Inbound) error {
	b, err := protocol.MarshalInbound(ev)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, b)
}
