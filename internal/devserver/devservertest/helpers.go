// Package devservertest starts development chat servers for tests and
// provides raw WebSocket helpers for talking to them.
package devservertest

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/nexus-chat-client/internal/devserver"
	"github.com/Tyrowin/nexus-chat-client/internal/logging"
	"github.com/Tyrowin/nexus-chat-client/internal/protocol"
)

// Server is a running development server.
type Server struct {
	*devserver.Server
	HTTP *httptest.Server
	// URL is the ws:// address of the chat endpoint.
	URL string
	// Addr is host:port.
	Addr string
}

// Host returns the host part of Addr.
func (s *Server) Host() string {
	host, _, _ := net.SplitHostPort(s.Addr)
	return host
}

// Port returns the port part of Addr.
func (s *Server) Port() string {
	_, port, _ := net.SplitHostPort(s.Addr)
	return port
}

// Start runs a development server with the cheapest bcrypt cost and
// registers cleanup on t. Pass nil for the default configuration.
func Start(t *testing.T, cfg *devserver.Config) *Server {
	t.Helper()

	c := devserver.NewConfig()
	if cfg != nil {
		c = *cfg
	}
	c.BcryptCost = bcrypt.MinCost

	srv := devserver.New(c, logging.Discard())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Hub().Shutdown(2 * time.Second)
	})

	addr := strings.TrimPrefix(ts.URL, "http://")
	return &Server{Server: srv, HTTP: ts, URL: "ws://" + addr + "/ws", Addr: addr}
}

// Dial opens a raw WebSocket to the server.
func Dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.Dial(url, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", url, err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Send encodes and writes one frame.
func Send(t *testing.T, conn *websocket.Conn, f protocol.Frame) {
	t.Helper()

	raw, err := protocol.Encode(f)
	if err != nil {
		t.Fatalf("Failed to encode %s: %v", f.FrameType(), err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
		t.Fatalf("Failed to send %s: %v", f.FrameType(), err)
	}
}

// Receive reads and decodes one frame, failing after two seconds.
func Receive(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	f, err := protocol.Decode(raw)
	if err != nil {
		t.Fatalf("Failed to decode %q: %v", raw, err)
	}
	return f
}

// ExpectNoFrame fails if a frame arrives within wait. The connection is not
// usable for reads afterwards.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	if _, raw, err := conn.ReadMessage(); err == nil {
		t.Fatalf("Expected no frame, got %s", raw)
	}
}

// Login registers username and authenticates a fresh connection as it,
// returning the connection and the auth response.
func Login(t *testing.T, s *Server, username, password string) (*websocket.Conn, *protocol.AuthResponse) {
	t.Helper()

	if err := s.Hub().AddUser(username, password); err != nil && !errors.Is(err, devserver.ErrUserExists) {
		t.Fatalf("Failed to add user %s: %v", username, err)
	}
	conn := Dial(t, s.URL, nil)
	Send(t, conn, &protocol.Auth{Username: username, Password: password})

	resp, ok := Receive(t, conn).(*protocol.AuthResponse)
	if !ok || !resp.Success {
		t.Fatalf("Login as %s failed: %+v", username, resp)
	}
	return conn, resp
}
