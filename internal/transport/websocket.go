package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/nexus-chat-client/internal/logging"
)

const (
	stateConnecting int32 = iota
	stateOpen
	stateClosed
)

// WSDialer opens WebSocket sockets.
type WSDialer struct {
	opts Options
	log  logging.Logger
}

// NewWSDialer creates a Dialer that connects with gorilla/websocket.
func NewWSDialer(opts Options, log logging.Logger) *WSDialer {
	return &WSDialer{opts: opts.sanitized(), log: log}
}

// Dial starts a connection attempt in the background and returns at once.
func (d *WSDialer) Dial(url string, h Handler) Socket {
	ctx, cancel := context.WithCancel(context.Background())
	s := &wsSocket{
		url:     url,
		opts:    d.opts,
		log:     d.log.With("url", url),
		handler: h,
		ctx:     ctx,
		cancel:  cancel,
		send:    make(chan []byte, d.opts.SendBuffer),
		stop:    make(chan struct{}),
	}
	go s.run()
	return s
}

// wsSocket is one WebSocket connection attempt and, once open, its read and
// write pumps. The read pump is the only goroutine that calls handler after
// the attempt resolves.
type wsSocket struct {
	url     string
	opts    Options
	log     logging.Logger
	handler Handler

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	conn        *websocket.Conn
	closedLocal bool
	state       atomic.Int32

	send      chan []byte
	stop      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
}

func (s *wsSocket) IsOpen() bool {
	return s.state.Load() == stateOpen
}

func (s *wsSocket) Send(frame []byte) error {
	if !s.IsOpen() {
		s.log.Warn(s.ctx, "cannot send, socket is not open")
		return ErrNotOpen
	}
	select {
	case <-s.stop:
		return ErrNotOpen
	default:
	}
	select {
	case s.send <- frame:
		return nil
	default:
		s.log.Warn(s.ctx, "send buffer full, dropping frame", "capacity", cap(s.send))
		return ErrSendBufferFull
	}
}

func (s *wsSocket) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closedLocal = true
		conn := s.conn
		s.mu.Unlock()

		s.cancel()
		if conn == nil {
			return
		}

		deadline := time.Now().Add(s.opts.WriteTimeout)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil && !isExpectedCloseError(err) {
			s.log.Debug(s.ctx, "error writing close message", "err", err)
		}
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			s.log.Warn(s.ctx, "error closing connection", "err", err)
		}
	})
	return nil
}

func (s *wsSocket) run() {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: s.opts.DialTimeout,
	}
	header := http.Header{}
	if origin, ok := normalizeOrigin(s.opts.Origin); ok {
		header.Set("Origin", origin)
	}

	conn, resp, err := dialer.DialContext(s.ctx, s.url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		s.state.Store(stateClosed)
		s.stopPumps()
		s.log.Warn(s.ctx, "connection attempt failed", "err", err)
		s.handler(Event{Kind: EventError, Err: fmt.Errorf("dial %s: %w", s.url, err)})
		return
	}

	s.mu.Lock()
	if s.closedLocal {
		s.mu.Unlock()
		_ = conn.Close()
		s.state.Store(stateClosed)
		s.stopPumps()
		s.handler(Event{Kind: EventError, Err: ErrClosed})
		return
	}
	s.conn = conn
	s.state.Store(stateOpen)
	s.mu.Unlock()

	conn.SetReadLimit(s.opts.MaxMessageSize)
	s.log.Debug(s.ctx, "connection established")
	s.handler(Event{Kind: EventOpen})

	go s.writePump(conn)
	cause := s.readPump(conn)

	s.state.Store(stateClosed)
	s.stopPumps()
	if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
		s.log.Warn(s.ctx, "error closing connection in read pump", "err", err)
	}
	s.handler(Event{Kind: EventClose, Err: cause})
}

func (s *wsSocket) stopPumps() {
	s.stopOnce.Do(func() { close(s.stop) })
}

// setupReadConnection configures the read deadline and pong handler.
func (s *wsSocket) setupReadConnection(conn *websocket.Conn) {
	if err := conn.SetReadDeadline(time.Now().Add(s.opts.PongWait)); err != nil {
		s.log.Warn(s.ctx, "error setting initial read deadline", "err", err)
	}
	conn.SetPongHandler(func(string) error {
		if err := conn.SetReadDeadline(time.Now().Add(s.opts.PongWait)); err != nil {
			s.log.Warn(s.ctx, "error setting read deadline in pong handler", "err", err)
		}
		return nil
	})
}

// readPump forwards every inbound data frame to the handler until the
// connection ends. It returns nil for orderly shutdowns and the read error
// otherwise.
func (s *wsSocket) readPump(conn *websocket.Conn) error {
	s.setupReadConnection(conn)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return s.classifyReadError(err)
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		s.handler(Event{Kind: EventMessage, Data: data})
	}
}

// classifyReadError logs the reason the read loop stopped and returns the
// error to report with EventClose, or nil for an orderly close.
func (s *wsSocket) classifyReadError(err error) error {
	s.mu.Lock()
	local := s.closedLocal
	s.mu.Unlock()
	if local {
		s.log.Debug(s.ctx, "connection closed locally")
		return nil
	}

	if errors.Is(err, websocket.ErrReadLimit) {
		s.log.Warn(s.ctx, "inbound frame exceeded maximum size", "limit", s.opts.MaxMessageSize)
		return err
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.log.Info(s.ctx, "server closed the connection", "err", err)
		return nil
	}

	if errors.Is(err, io.EOF) || isExpectedCloseError(err) {
		s.log.Info(s.ctx, "connection closed", "err", err)
		return err
	}

	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.log.Warn(s.ctx, "unexpected websocket close", "err", err)
		return err
	}

	s.log.Warn(s.ctx, "websocket read error", "err", err)
	return err
}

func (s *wsSocket) writePump(conn *websocket.Conn) {
	ticker := time.NewTicker(s.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case frame := <-s.send:
			if !s.write(conn, websocket.TextMessage, frame) {
				_ = conn.Close()
				return
			}
		case <-ticker.C:
			if !s.write(conn, websocket.PingMessage, nil) {
				_ = conn.Close()
				return
			}
		}
	}
}

// write sends one message with a write deadline and returns false when the
// pump should stop.
func (s *wsSocket) write(conn *websocket.Conn, kind int, data []byte) bool {
	if err := conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout)); err != nil {
		s.log.Warn(s.ctx, "error setting write deadline", "err", err)
		return false
	}
	if err := conn.WriteMessage(kind, data); err != nil {
		if !isExpectedCloseError(err) {
			s.log.Warn(s.ctx, "error writing message", "err", err)
		}
		return false
	}
	return true
}
