package transport

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotOpen is returned by Send when the socket is connecting or closed.
	ErrNotOpen = errors.New("socket is not open")
	// ErrSendBufferFull is returned by Send when the outbound queue is full.
	ErrSendBufferFull = errors.New("send buffer full")
	// ErrClosed is reported as the EventError cause when Close wins over a
	// connection attempt still in flight.
	ErrClosed = errors.New("socket closed")
)

// EventKind enumerates socket lifecycle events.
type EventKind int

const (
	EventOpen EventKind = iota
	EventMessage
	EventError
	EventClose
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventMessage:
		return "message"
	case EventError:
		return "error"
	case EventClose:
		return "close"
	default:
		return "unknown"
	}
}

// Event is delivered to a Handler. Data is set for EventMessage, Err for
// EventError and for abnormal EventClose.
type Event struct {
	Kind EventKind
	Data []byte
	Err  error
}

// Handler receives the events of one socket.
type Handler func(Event)

// Socket is one connection attempt to one endpoint.
type Socket interface {
	// Send queues one frame. It returns ErrNotOpen unless the socket is open.
	Send(frame []byte) error
	// Close tears the socket down. It is idempotent.
	Close() error
	// IsOpen reports whether frames can currently be sent.
	IsOpen() bool
}

// Dialer starts connection attempts. Dial returns immediately; the outcome
// is reported through h.
type Dialer interface {
	Dial(url string, h Handler) Socket
}

// Options tunes the WebSocket implementation.
type Options struct {
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendBuffer     int
	Origin         string
}

// DefaultOptions returns the keep-alive and size settings used by the client.
func DefaultOptions() Options {
	return Options{
		DialTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		PongWait:       60 * time.Second,
		PingPeriod:     54 * time.Second,
		MaxMessageSize: 64 * 1024,
		SendBuffer:     256,
	}
}

func (o Options) sanitized() Options {
	d := DefaultOptions()
	if o.DialTimeout <= 0 {
		o.DialTimeout = d.DialTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	return o
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
