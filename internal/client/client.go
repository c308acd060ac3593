// Package client wires the connection registry to its environment: a single
// event loop, the configured store and WebSocket dialer, and a channel of UI
// events. Every Client method is safe for concurrent use.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Tyrowin/nexus-chat-client/internal/config"
	"github.com/Tyrowin/nexus-chat-client/internal/logging"
	"github.com/Tyrowin/nexus-chat-client/internal/registry"
	"github.com/Tyrowin/nexus-chat-client/internal/session"
	"github.com/Tyrowin/nexus-chat-client/internal/store"
	"github.com/Tyrowin/nexus-chat-client/internal/transport"
)

// ErrMissingCredentials is returned by AddServer without a username or password.
var ErrMissingCredentials = errors.New("username and password are required")

const (
	defaultEventBuffer = 64
	shutdownTimeout    = 5 * time.Second
)

// ServerDetails is what the UI supplies to add a server.
type ServerDetails struct {
	Host     string
	Port     string
	Username string
	Password string
	Register bool
}

// Options overrides parts of the environment, mainly for tests. Nil fields
// are built from the configuration.
type Options struct {
	Logger      logging.Logger
	Dialer      transport.Dialer
	Store       store.Store
	EventBuffer int
}

// Client is the command facade used by user interfaces.
type Client struct {
	cfg    *config.Config
	log    logging.Logger
	store  store.Store
	loop   *Loop
	reg    *registry.Registry
	events chan registry.Event

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New opens the store, starts the event loop, and reconnects every
// persisted server.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}

	st := opts.Store
	if st == nil {
		var err error
		st, err = store.Open(ctx, cfg.StoreKind, cfg.StorePath, log.With("component", "store"))
		if err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = transport.NewWSDialer(transport.Options{
			DialTimeout:    cfg.DialTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			PongWait:       cfg.PongWait,
			PingPeriod:     cfg.PingPeriod,
			MaxMessageSize: cfg.MaxMessageSize,
			SendBuffer:     cfg.SendBuffer,
			Origin:         cfg.Origin,
		}, log.With("component", "transport"))
	}

	buffer := opts.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}

	cctx, cancel := context.WithCancel(ctx)
	c := &Client{
		cfg:    cfg,
		log:    log,
		store:  st,
		loop:   NewLoop(log.With("component", "loop")),
		events: make(chan registry.Event, buffer),
		ctx:    cctx,
		cancel: cancel,
	}
	c.reg = registry.New(registry.Options{
		Dialer:           dialer,
		Store:            st,
		Logger:           log,
		Post:             c.loop.Post,
		Emit:             c.emit,
		DefaultChannel:   cfg.DefaultChannel,
		HandshakeTimeout: cfg.HandshakeTimeout,
		RateLimit: session.RateLimit{
			Burst:    cfg.RateLimit.Burst,
			Interval: cfg.RateLimit.RefillInterval,
		},
	})

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.loop.Run(cctx)
	}()
	c.loop.Post(func() { c.reg.Init(cctx) })

	if js, ok := st.(*store.JSONStore); ok && cfg.WatchStore {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			if err := js.Watch(cctx, c.RefreshServers); err != nil {
				log.Warn(cctx, "store watcher stopped", "err", err)
			}
		}()
	}

	log.Info(ctx, "client started", "store", cfg.StoreKind, "path", cfg.StorePath)
	return c, nil
}

// emit runs on the loop. It blocks while the UI is behind rather than
// dropping events.
func (c *Client) emit(ev registry.Event) {
	select {
	case c.events <- ev:
	case <-c.ctx.Done():
	}
}

// Events delivers every UI event. It is closed by Close.
func (c *Client) Events() <-chan registry.Event {
	return c.events
}

// AddServer validates d and connects to the server it names. The outcome
// arrives as events.
func (c *Client) AddServer(d ServerDetails) error {
	id, err := session.NewIdentity(d.Host, d.Port)
	if err != nil {
		return err
	}
	if d.Username == "" || d.Password == "" {
		return ErrMissingCredentials
	}

	mode := session.ModeAuthenticate
	if d.Register {
		mode = session.ModeRegister
	}
	creds := session.NewCredentials(d.Username, d.Password, mode)
	return c.handOff(creds, func(creds *session.Credentials) { c.reg.AddServer(id, creds) })
}

// handOff runs fn with creds on the loop. If the loop never runs fn, the
// secret is destroyed here and the loop error returned.
func (c *Client) handOff(creds *session.Credentials, fn func(*session.Credentials)) error {
	var claimed atomic.Bool
	err := c.loop.Do(c.ctx, func() {
		if claimed.CompareAndSwap(false, true) {
			fn(creds)
		}
	})
	if err != nil && claimed.CompareAndSwap(false, true) {
		creds.Secret.Destroy()
		return err
	}
	return nil
}

// SendMessage sends content to channel on the active server; an empty
// channel means the session's current one.
func (c *Client) SendMessage(content, channel string) error {
	return c.call(func() error { return c.reg.SendMessage(content, channel) })
}

// SwitchServer makes the server named "host:port" active.
func (c *Client) SwitchServer(hostPort string) error {
	id, err := session.ParseIdentity(hostPort)
	if err != nil {
		return err
	}
	c.loop.Post(func() { c.reg.Switch(id) })
	return nil
}

// SwitchChannel changes the current channel of the active server.
func (c *Client) SwitchChannel(name string) error {
	return c.call(func() error { return c.reg.SwitchChannel(name) })
}

// RequestChannelHistory asks the active server for a channel's history.
func (c *Client) RequestChannelHistory(channel string) error {
	return c.call(func() error { return c.reg.RequestHistory(channel) })
}

// RefreshServers rebuilds every session from the store.
func (c *Client) RefreshServers() {
	c.loop.Post(c.reg.Refresh)
}

// Statuses returns a snapshot of every session.
func (c *Client) Statuses() []session.Status {
	var out []session.Status
	if err := c.loop.Do(c.ctx, func() { out = c.reg.Statuses() }); err != nil {
		return nil
	}
	return out
}

// Active returns the active server, if any.
func (c *Client) Active() (session.Identity, bool) {
	var (
		id session.Identity
		ok bool
	)
	if err := c.loop.Do(c.ctx, func() { id, ok = c.reg.Active() }); err != nil {
		return session.Identity{}, false
	}
	return id, ok
}

// Servers lists the persisted servers.
func (c *Client) Servers(ctx context.Context) ([]store.ServerEntry, error) {
	return c.store.Servers(ctx)
}

// Settings returns the persisted UI settings.
func (c *Client) Settings(ctx context.Context) (store.Settings, error) {
	return c.store.Settings(ctx)
}

// SaveSettings persists UI settings.
func (c *Client) SaveSettings(ctx context.Context, s store.Settings) error {
	return c.store.SaveSettings(ctx, s)
}

func (c *Client) call(fn func() error) error {
	var err error
	if lerr := c.loop.Do(c.ctx, func() { err = fn() }); lerr != nil {
		return lerr
	}
	return err
}

// Close tears down every session, stops the loop, and closes the store.
// Events is closed once nothing can emit any more.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if derr := c.loop.Do(ctx, c.reg.Teardown); derr != nil {
			c.log.Warn(ctx, "registry teardown did not complete", "err", derr)
		}
		c.cancel()
		lerr := c.loop.Shutdown(shutdownTimeout)
		c.wg.Wait()
		close(c.events)

		err = errors.Join(lerr, c.store.Close())
		c.log.Info(ctx, "client stopped")
	})
	return err
}
