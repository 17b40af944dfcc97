package transport

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/teammate/pkg/protocol"
)

type Config struct {
	URL              string        `yaml:"url" mapstructure:"url"`
	HandshakeTimeout time.Duration `yaml:"handshake-timeout" mapstructure:"handshake-timeout"`
	WriteTimeout     time.Duration `yaml:"write-timeout" mapstructure:"write-timeout"`
	// PingInterval of 0 disables keepalive pings. The connection is dropped
	// when no pong arrives within two intervals.
	PingInterval   time.Duration `yaml:"ping-interval" mapstructure:"ping-interval"`
	SendBuffer     int           `yaml:"send-buffer" mapstructure:"send-buffer"`
	MaxMessageSize int64         `yaml:"max-message-size" mapstructure:"max-message-size"`
	Backoff        BackoffConfig `yaml:"backoff" mapstructure:"backoff"`
	Header         http.Header   `yaml:"-" mapstructure:"-"`
}

func DefaultConfig() Config {
	return Config{
		URL:              "ws://localhost:6789/ws",
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		PingInterval:     30 * time.Second,
		SendBuffer:       256,
		MaxMessageSize:   1 << 20,
		Backoff:          DefaultBackoffConfig(),
	}
}

// WebSocketTransport speaks the JSON frame protocol over a gorilla/websocket
// connection and redials with exponential backoff when it is lost.
type WebSocketTransport struct {
	cfg     Config
	decoder *protocol.Decoder
	dialer  websocket.Dialer
	log     zerolog.Logger
	rng     *rand.Rand

	events    chan Event
	closing   chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	conn *connection
}

var _ Transport = (*WebSocketTransport)(nil)

type connection struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *connection) shutdown() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

type WebSocketOption func(*WebSocketTransport)

func WithDecoder(decoder *protocol.Decoder) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.decoder = decoder
	}
}

func WithLogger(logger zerolog.Logger) WebSocketOption {
	return func(t *WebSocketTransport) {
		t.log = logger
	}
}

func NewWebSocketTransport(cfg Config, options ...WebSocketOption) (*WebSocketTransport, error) {
	if cfg.URL == "" {
		return nil, errors.New("websocket transport: url is required")
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultConfig().SendBuffer
	}

	t := &WebSocketTransport{
		cfg:     cfg,
		decoder: protocol.NewDecoder(),
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		log:     log.With().Str("component", "websocket").Logger(),
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		events:  make(chan Event, 64),
		closing: make(chan struct{}),
	}
	for _, option := range options {
		option(t)
	}
	return t, nil
}

func (t *WebSocketTransport) Events() <-chan Event {
	return t.events
}

func (t *WebSocketTransport) Start(ctx context.Context) error {
	defer close(t.events)

	attempt := 0
	for {
		if t.stopped(ctx) {
			return nil
		}

		conn, err := t.dial(ctx)
		if err != nil {
			if t.stopped(ctx) {
				return nil
			}
			attempt++
			delay := NextBackoffDelay(t.cfg.Backoff, attempt, t.rng)
			t.log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("could not connect")
			if !t.sleep(ctx, delay) {
				return nil
			}
			continue
		}

		attempt = 0
		t.log.Info().Str("url", t.cfg.URL).Msg("connected")
		t.setConn(conn)
		if !t.deliver(ctx, Event{Kind: EventConnected}) {
			conn.shutdown()
			t.setConn(nil)
			return nil
		}

		err = t.serve(ctx, conn)
		t.setConn(nil)
		if t.stopped(ctx) {
			return nil
		}

		t.log.Warn().Err(err).Msg("connection lost")
		if !t.deliver(ctx, Event{Kind: EventDisconnected, Err: err}) {
			return nil
		}

		attempt++
		if !t.sleep(ctx, NextBackoffDelay(t.cfg.Backoff, attempt, t.rng)) {
			return nil
		}
	}
}

// Emit encodes msg and queues it on the current connection.
func (t *WebSocketTransport) Emit(msg protocol.Outbound) error {
	b, err := protocol.MarshalOutbound(msg)
	if err != nil {
		return err
	}

	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	select {
	case <-conn.done:
		return ErrNotConnected
	default:
	}

	select {
	case conn.send <- b:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close flushes pending frames, sends a close frame and stops reconnecting.
func (t *WebSocketTransport) Close() error {
	t.closeOnce.Do(func() {
		close(t.closing)
	})
	return nil
}

func (t *WebSocketTransport) dial(ctx context.Context) (*connection, error) {
	ws, _, err := t.dialer.DialContext(ctx, t.cfg.URL, t.cfg.Header)
	if err != nil {
		return nil, errors.Wrapf(err, "dial %s", t.cfg.URL)
	}
	if t.cfg.MaxMessageSize > 0 {
		ws.SetReadLimit(t.cfg.MaxMessageSize)
	}
	return &connection{
		ws:   ws,
		send: make(chan []byte, t.cfg.SendBuffer),
		done: make(chan struct{}),
	}, nil
}

func (t *WebSocketTransport) serve(ctx context.Context, conn *connection) error {
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		t.writePump(ctx, conn)
	}()

	err := t.readLoop(ctx, conn)
	conn.shutdown()
	<-pumpDone
	return err
}

func (t *WebSocketTransport) readLoop(ctx context.Context, conn *connection) error {
	if t.cfg.PingInterval > 0 {
		pongWait := 2 * t.cfg.PingInterval
		_ = conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		conn.ws.SetPongHandler(func(string) error {
			return conn.ws.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	for {
		messageType, data, err := conn.ws.ReadMessage()
		if err != nil {
			return err
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		ev, err := t.decoder.Decode(data)
		if err != nil {
			t.log.Warn().Err(err).Str("frame", truncate(data, 256)).Msg("dropping invalid frame")
			continue
		}
		if !t.deliver(ctx, Event{Kind: EventMessage, Message: ev}) {
			return nil
		}
	}
}

func (t *WebSocketTransport) writePump(ctx context.Context, conn *connection) {
	var ping <-chan time.Time
	if t.cfg.PingInterval > 0 {
		ticker := time.NewTicker(t.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case b := <-conn.send:
			if err := t.write(conn, b); err != nil {
				t.log.Warn().Err(err).Msg("write failed")
				conn.shutdown()
				return
			}

		case <-ping:
			deadline := time.Now().Add(t.writeTimeout())
			if err := conn.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				t.log.Debug().Err(err).Msg("ping failed")
				conn.shutdown()
				return
			}

		case <-t.closing:
			t.drainAndClose(conn)
			return

		case <-ctx.Done():
			t.drainAndClose(conn)
			return

		case <-conn.done:
			return
		}
	}
}

func (t *WebSocketTransport) drainAndClose(conn *connection) {
	// the pump is the only receiver, so a non-empty channel never blocks
	for len(conn.send) > 0 {
		if err := t.write(conn, <-conn.send); err != nil {
			conn.shutdown()
			return
		}
	}

	deadline := time.Now().Add(t.writeTimeout())
	_ = conn.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	conn.shutdown()
}

func (t *WebSocketTransport) write(conn *connection, b []byte) error {
	_ = conn.ws.SetWriteDeadline(time.Now().Add(t.writeTimeout()))
	return conn.ws.WriteMessage(websocket.TextMessage, b)
}

func (t *WebSocketTransport) writeTimeout() time.Duration {
	if t.cfg.WriteTimeout > 0 {
		return t.cfg.WriteTimeout
	}
	return 10 * time.Second
}

func (t *WebSocketTransport) setConn(conn *connection) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conn = conn
}

func (t *WebSocketTransport) deliver(ctx context.Context, ev Event) bool {
	select {
	case t.events <- ev:
		return true
	case <-ctx.Done():
		return false
	case <-t.closing:
		return false
	}
}

func (t *WebSocketTransport) stopped(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-t.closing:
		return true
	default:
		return false
	}
}

func (t *WebSocketTransport) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return !t.stopped(ctx)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-t.closing:
		return false
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
