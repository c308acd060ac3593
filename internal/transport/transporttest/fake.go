// Package transporttest provides in-memory sockets and a manual dispatcher
// for tests of code built on package transport.
package transporttest

import (
	"encoding/json"
	"sync"

	"github.com/Tyrowin/nexus-chat-client/internal/transport"
)

// Dialer records every socket it hands out. Sockets never change state on
// their own; tests drive them with Open, Receive, Fail and Drop.
type Dialer struct {
	mu      sync.Mutex
	sockets []*Socket
}

func (d *Dialer) Dial(url string, h transport.Handler) transport.Socket {
	s := &Socket{URL: url, handler: h}
	d.mu.Lock()
	d.sockets = append(d.sockets, s)
	d.mu.Unlock()
	return s
}

// Sockets returns all dialed sockets, oldest first.
func (d *Dialer) Sockets() []*Socket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Socket(nil), d.sockets...)
}

// Last returns the most recently dialed socket, or nil.
func (d *Dialer) Last() *Socket {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sockets) == 0 {
		return nil
	}
	return d.sockets[len(d.sockets)-1]
}

// Count returns how many sockets were dialed.
func (d *Dialer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sockets)
}

// Socket is a scripted transport.Socket.
type Socket struct {
	URL string

	mu      sync.Mutex
	handler transport.Handler
	open    bool
	closed  bool
	done    bool
	sent    [][]byte
}

func (s *Socket) Send(frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return transport.ErrNotOpen
	}
	s.sent = append(s.sent, append([]byte(nil), frame...))
	return nil
}

// Close mirrors the WebSocket implementation: an open socket reports
// EventClose, one still connecting reports EventError.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	wasOpen := s.open
	s.open = false
	finished := s.done
	s.done = true
	s.mu.Unlock()

	if finished {
		return nil
	}
	if wasOpen {
		s.handler(transport.Event{Kind: transport.EventClose})
	} else {
		s.handler(transport.Event{Kind: transport.EventError, Err: transport.ErrClosed})
	}
	return nil
}

func (s *Socket) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// Closed reports whether Close was called.
func (s *Socket) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Open completes the connection attempt.
func (s *Socket) Open() {
	s.mu.Lock()
	if s.closed || s.done {
		s.mu.Unlock()
		return
	}
	s.open = true
	s.mu.Unlock()
	s.handler(transport.Event{Kind: transport.EventOpen})
}

// Receive delivers one inbound frame.
func (s *Socket) Receive(frame string) {
	s.handler(transport.Event{Kind: transport.EventMessage, Data: []byte(frame)})
}

// ReceiveJSON marshals v and delivers it as one inbound frame.
func (s *Socket) ReceiveJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	s.handler(transport.Event{Kind: transport.EventMessage, Data: data})
}

// Fail reports a failed connection attempt.
func (s *Socket) Fail(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.mu.Unlock()
	s.handler(transport.Event{Kind: transport.EventError, Err: err})
}

// Drop closes the socket from the peer side.
func (s *Socket) Drop(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.open = false
	s.mu.Unlock()
	s.handler(transport.Event{Kind: transport.EventClose, Err: err})
}

// Sent returns copies of every frame passed to Send.
func (s *Socket) Sent() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.sent))
	for i, f := range s.sent {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// SentMaps decodes every sent frame into a generic map.
func (s *Socket) SentMaps() []map[string]any {
	var out []map[string]any
	for _, f := range s.Sent() {
		m := map[string]any{}
		if err := json.Unmarshal(f, &m); err != nil {
			panic(err)
		}
		out = append(out, m)
	}
	return out
}

// Queue is a manual stand-in for the client event loop: Post enqueues and
// Drain runs queued closures, including ones they post, until none remain.
type Queue struct {
	mu  sync.Mutex
	fns []func()
}

func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.fns = append(q.fns, fn)
	q.mu.Unlock()
}

// Drain runs every pending closure and returns how many ran.
func (q *Queue) Drain() int {
	n := 0
	for {
		q.mu.Lock()
		if len(q.fns) == 0 {
			q.mu.Unlock()
			return n
		}
		fn := q.fns[0]
		q.fns = q.fns[1:]
		q.mu.Unlock()
		fn()
		n++
	}
}

// Pending returns the number of queued closures.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.fns)
}
