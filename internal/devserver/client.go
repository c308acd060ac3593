package devserver

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/nexus-chat-client/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
	sendBuffer = 256
)

// Client is one WebSocket connection to the development server. Username is
// empty until the connection authenticates and is only touched by the hub.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	addr     string
	closed   bool
	username string
	limiter  *rate.Limiter
	log      logging.Logger
}

// NewClient wraps conn for hub. The read limit and frame rate come from the
// hub's configuration.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := hub.cfg
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	every := cfg.RateLimit.RefillInterval / time.Duration(cfg.RateLimit.Burst)

	return &Client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		hub:     hub,
		addr:    addr,
		limiter: rate.NewLimiter(rate.Every(every), cfg.RateLimit.Burst),
		log:     hub.log.With("remote", addr),
	}
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn(context.Background(), "error setting initial read deadline", "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn(context.Background(), "error setting read deadline in pong handler", "err", err)
		}
		return nil
	})
}

// handleReadError logs why the read loop stopped.
func (c *Client) handleReadError(err error) {
	ctx := context.Background()

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn(ctx, "frame exceeded maximum size", "limit", c.hub.cfg.MaxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		c.log.Info(ctx, "client disconnected", "err", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info(ctx, "client connection closed", "err", err)
	default:
		c.log.Warn(ctx, "websocket read error", "err", err)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregisterClient(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn(context.Background(), "error closing connection in read pump", "err", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if !c.limiter.Allow() {
			c.log.Warn(context.Background(), "rate limit exceeded; discarding frame",
				"burst", c.hub.cfg.RateLimit.Burst, "interval", c.hub.cfg.RateLimit.RefillInterval)
			continue
		}

		if !c.hub.deliver(inbound{client: c, raw: raw}) {
			return
		}
	}
}

// writePump writes one frame per WebSocket message; clients decode every
// message as a single JSON object.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn(context.Background(), "error closing connection in write pump", "err", err)
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.write(message, ok) {
				return
			}
		case <-ticker.C:
			if !c.ping() {
				return
			}
		case <-c.hub.ctx.Done():
			return
		}
	}
}

func (c *Client) write(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn(context.Background(), "error setting write deadline", "err", err)
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.log.Warn(context.Background(), "error writing close message", "err", err)
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.log.Warn(context.Background(), "error writing message", "err", err)
		return false
	}
	return true
}

func (c *Client) ping() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn(context.Background(), "error setting write deadline for ping", "err", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn(context.Background(), "error writing ping", "err", err)
		return false
	}
	return true
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
