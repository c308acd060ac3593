package devserver

import (
	"context"
	"sync"
	"time"

	"github.com/Tyrowin/nexus-chat-client/internal/logging"
	"github.com/Tyrowin/nexus-chat-client/internal/protocol"
)

type inbound struct {
	client *Client
	raw    []byte
}

// Hub owns every connection, the account table, presence, and channel
// history. Frames from all connections are handled one at a time on the
// goroutine running Run.
type Hub struct {
	cfg Config
	log logging.Logger

	clients    map[*Client]bool
	online     map[string]int
	inbound    chan inbound
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	users   *userDB
	history *channelHistory
	now     func() time.Time
}

// NewHub creates a Hub ready to Run.
func NewHub(cfg Config, log logging.Logger) *Hub {
	cfg = sanitizeConfig(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:        cfg,
		log:        log,
		clients:    make(map[*Client]bool),
		online:     make(map[string]int),
		inbound:    make(chan inbound),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		users:      newUserDB(cfg.BcryptCost),
		history:    newChannelHistory(cfg.HistoryLimit),
		now:        time.Now,
	}
}

// Config returns the sanitized configuration.
func (h *Hub) Config() Config {
	return h.cfg
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// AddUser registers an account outside the protocol, e.g. to seed a server.
func (h *Hub) AddUser(username, password string) error {
	return h.users.Register(username, password)
}

func (h *Hub) registerClient(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
	}
}

func (h *Hub) deliver(in inbound) bool {
	select {
	case h.inbound <- in:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// Run handles registration, unregistration, and inbound frames until
// Shutdown is called. Run it on its own goroutine.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn(h.ctx, "received nil client registration; skipping")
				continue
			}

			h.mutex.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.log.Info(h.ctx, "client registered", "remote", client.addr, "clients", clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.removeClient(client)

		case in := <-h.inbound:
			h.mutex.RLock()
			live := h.clients[in.client]
			h.mutex.RUnlock()
			if live {
				h.handleFrame(in.client, in.raw)
			}
		}
	}
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	close(client.send)
	h.log.Info(h.ctx, "client unregistered", "remote", client.addr, "clients", clientCount)

	if client.username == "" {
		return
	}
	h.online[client.username]--
	if h.online[client.username] > 0 {
		return
	}
	delete(h.online, client.username)
	h.broadcast(nil, &protocol.UserStatus{Username: client.username, Status: protocol.PresenceOffline})
}

// sendTo queues f for one client. A client whose buffer is full is dropped.
func (h *Hub) sendTo(client *Client, f protocol.Frame) {
	payload, err := protocol.Encode(f)
	if err != nil {
		h.log.Error(h.ctx, "encode frame", "err", err)
		return
	}
	if !h.safeSend(client, payload) {
		h.log.Warn(h.ctx, "client removed due to full send buffer", "remote", client.addr)
		h.removeClient(client)
	}
}

func (h *Hub) safeSend(client *Client, payload []byte) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return true
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// broadcast sends f to every authenticated client except sender.
func (h *Hub) broadcast(sender *Client, f protocol.Frame) {
	targets := h.authenticatedSnapshot()
	delivered := 0
	for _, client := range targets {
		if client == sender {
			continue
		}
		h.sendTo(client, f)
		delivered++
	}
	h.log.Debug(h.ctx, "broadcast", "type", f.FrameType(), "clients", delivered)
}

func (h *Hub) authenticatedSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.username != "" {
			clients = append(clients, client)
		}
	}
	return clients
}

func (h *Hub) shutdownClients() {
	h.mutex.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn(h.ctx, "error closing client connection", "remote", client.addr, "err", err)
		}
	}

	h.log.Info(h.ctx, "closed client connections", "count", len(clients))
}

// Shutdown stops Run, closes every connection, and waits for the pumps to
// exit or the timeout to pass.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info(context.Background(), "hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn(context.Background(), "hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
