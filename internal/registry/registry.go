// Package registry owns the live server sessions of the client and routes
// their outcomes to the UI boundary as Events.
//
// A Registry is driven from a single goroutine: every exported method and
// every session callback must run on the loop that executes Options.Post.
// Store I/O runs elsewhere and posts its results back.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Tyrowin/nexus-chat-client/internal/logging"
	"github.com/Tyrowin/nexus-chat-client/internal/protocol"
	"github.com/Tyrowin/nexus-chat-client/internal/session"
	"github.com/Tyrowin/nexus-chat-client/internal/store"
	"github.com/Tyrowin/nexus-chat-client/internal/transport"
)

var (
	// ErrUnknownServer is returned for an identity without a session.
	ErrUnknownServer = errors.New("unknown server")
	// ErrNoActiveServer is returned by the active-session commands when no
	// server has been selected.
	ErrNoActiveServer = errors.New("no active server")
)

// ServerStore is the part of store.Store the registry needs.
type ServerStore interface {
	Servers(ctx context.Context) ([]store.ServerEntry, error)
	AddServer(ctx context.Context, e store.ServerEntry) (bool, error)
	FindServer(ctx context.Context, ip string, port int, username string) (store.ServerEntry, bool, error)
}

// Options configures a Registry.
type Options struct {
	Dialer transport.Dialer
	Store  ServerStore
	Logger logging.Logger
	// Post schedules fn on the registry goroutine.
	Post func(fn func())
	// Async runs blocking store calls. It defaults to a new goroutine.
	Async func(fn func())
	// Emit receives every UI event, on the registry goroutine.
	Emit func(Event)

	DefaultChannel   string
	HandshakeTimeout time.Duration
	RateLimit        session.RateLimit
}

// Registry enforces at most one live session per server identity.
type Registry struct {
	opts Options
	log  logging.Logger
	ctx  context.Context

	sessions   map[session.Identity]*session.Session
	announced  map[session.Identity]struct{}
	active     session.Identity
	refreshGen uint64
}

func New(opts Options) *Registry {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Post == nil {
		opts.Post = func(fn func()) { fn() }
	}
	if opts.Async == nil {
		opts.Async = func(fn func()) { go fn() }
	}
	if opts.Emit == nil {
		opts.Emit = func(Event) {}
	}
	return &Registry{
		opts:      opts,
		log:       opts.Logger.With("component", "registry"),
		ctx:       context.Background(),
		sessions:  make(map[session.Identity]*session.Session),
		announced: make(map[session.Identity]struct{}),
	}
}

// Init reconnects every persisted server. ctx bounds store calls for the
// lifetime of the registry.
func (r *Registry) Init(ctx context.Context) {
	r.ctx = ctx
	r.log.Info(ctx, "starting registry")
	r.Refresh()
}

// Teardown closes every session.
func (r *Registry) Teardown() {
	r.log.Info(r.ctx, "tearing down registry", "sessions", len(r.sessions))
	r.RemoveAll()
}

// AddServer connects to id. An authenticated, open session for id is kept
// and its status re-emitted; anything else for id is replaced.
func (r *Registry) AddServer(id session.Identity, creds *session.Credentials) {
	if cur, ok := r.sessions[id]; ok && cur.Authenticated() && cur.IsOpen() {
		if creds != nil {
			creds.Secret.Destroy()
		}
		r.log.Debug(r.ctx, "server already authenticated, re-announcing", "server", id.String())
		r.active = id
		r.opts.Emit(statusOf(cur))
		return
	}

	r.discard(id)
	s := r.newSession(id, creds)
	r.sessions[id] = s
	r.active = id
	s.Connect()
}

// Remove closes and forgets the session for id.
func (r *Registry) Remove(id session.Identity) {
	r.discard(id)
	if r.active == id {
		r.active = session.Identity{}
	}
}

// RemoveAll closes every session and cancels any pending refresh.
func (r *Registry) RemoveAll() {
	r.refreshGen++
	r.closeAll()
}

// Refresh rebuilds the session set from the store. Entries sharing an
// identity resolve to the last one; only the newest refresh applies.
func (r *Registry) Refresh() {
	r.closeAll()
	r.refreshGen++
	gen := r.refreshGen
	ctx := r.ctx

	r.opts.Async(func() {
		entries, err := r.opts.Store.Servers(ctx)
		r.opts.Post(func() { r.applyRefresh(gen, entries, err) })
	})
}

func (r *Registry) applyRefresh(gen uint64, entries []store.ServerEntry, err error) {
	if gen != r.refreshGen {
		r.log.Debug(r.ctx, "discarding superseded refresh")
		return
	}
	if err != nil {
		r.log.Error(r.ctx, "cannot load servers", "err", err)
		return
	}

	last := make(map[session.Identity]int, len(entries))
	for i, e := range entries {
		last[session.Identity{Host: e.IP, Port: e.Port}] = i
	}

	for i, e := range entries {
		id := session.Identity{Host: e.IP, Port: e.Port}
		if last[id] != i {
			continue
		}
		if _, exists := r.sessions[id]; exists {
			// Added by the user while the store was being read.
			continue
		}
		s := r.newSession(id, session.NewCredentials(e.Username, e.Password, session.ModeAuthenticate))
		r.sessions[id] = s
		if r.active.IsZero() {
			r.active = id
		}
		s.Connect()
	}
	r.log.Info(r.ctx, "servers refreshed", "sessions", len(r.sessions))
}

// DispatchSend forwards f to the session for id.
func (r *Registry) DispatchSend(id session.Identity, f protocol.Frame) error {
	s, ok := r.sessions[id]
	if !ok {
		r.log.Warn(r.ctx, "dropping frame for unknown server", "server", id.String(), "type", f.FrameType())
		return fmt.Errorf("%w: %s", ErrUnknownServer, id)
	}
	return s.Send(f)
}

// Switch makes id the active server. A session whose transport is down is
// reconnected with the stored credentials first; one still dialing is left
// to finish its attempt.
func (r *Registry) Switch(id session.Identity) {
	s, ok := r.sessions[id]
	if !ok {
		r.log.Warn(r.ctx, "switch to unknown server", "server", id.String())
		r.opts.Emit(ConnectionStatus{Identity: id, Error: ErrUnknownServer.Error()})
		return
	}
	r.active = id

	if s.IsOpen() || s.Dialing() {
		r.opts.Emit(statusOf(s))
		return
	}

	username := s.LoginName()
	ctx := r.ctx
	r.opts.Async(func() {
		e, found, err := r.opts.Store.FindServer(ctx, id.Host, id.Port, username)
		r.opts.Post(func() { r.finishSwitch(s, e, found, err) })
	})
}

func (r *Registry) finishSwitch(s *session.Session, e store.ServerEntry, found bool, err error) {
	id := s.Identity()
	if r.sessions[id] != s {
		return
	}
	if s.IsOpen() || s.Dialing() {
		r.opts.Emit(statusOf(s))
		return
	}
	if err != nil {
		r.log.Error(r.ctx, "cannot look up stored credentials", "server", id.String(), "err", err)
	}

	if found {
		r.log.Info(r.ctx, "reconnecting", "server", id.String(), "username", e.Username)
		s.Reconnect(session.NewCredentials(e.Username, e.Password, session.ModeAuthenticate))
		return
	}

	r.log.Warn(r.ctx, "no stored credentials, reconnecting without handshake", "server", id.String())
	s.Reconnect(nil)
	st := statusOf(s)
	st.Success = false
	st.Error = "no stored credentials for " + id.String()
	r.opts.Emit(st)
}

// SwitchChannel changes the current channel of the active session.
func (r *Registry) SwitchChannel(name string) error {
	s, err := r.activeSession()
	if err != nil {
		return err
	}
	s.SwitchChannel(name)
	return nil
}

// RequestHistory asks the active server for channel history.
func (r *Registry) RequestHistory(channel string) error {
	s, err := r.activeSession()
	if err != nil {
		return err
	}
	return s.RequestHistory(channel)
}

// SendMessage sends a chat message through the active session.
func (r *Registry) SendMessage(content, channel string) error {
	s, err := r.activeSession()
	if err != nil {
		return err
	}
	return s.SendMessage(content, channel)
}

// Active returns the identity targeted by the active-session commands.
func (r *Registry) Active() (session.Identity, bool) {
	_, ok := r.sessions[r.active]
	return r.active, ok
}

// Statuses returns a snapshot of every session ordered by identity.
func (r *Registry) Statuses() []session.Status {
	out := make([]session.Status, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Status())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity.String() < out[j].Identity.String() })
	return out
}

// Len returns the number of live sessions.
func (r *Registry) Len() int { return len(r.sessions) }

func (r *Registry) activeSession() (*session.Session, error) {
	s, ok := r.sessions[r.active]
	if !ok {
		r.log.Warn(r.ctx, "no active server")
		return nil, ErrNoActiveServer
	}
	return s, nil
}

func (r *Registry) newSession(id session.Identity, creds *session.Credentials) *session.Session {
	return session.New(id, creds, session.Options{
		Dialer:           r.opts.Dialer,
		Post:             r.opts.Post,
		Listener:         listener{r: r},
		Logger:           r.opts.Logger,
		DefaultChannel:   r.opts.DefaultChannel,
		HandshakeTimeout: r.opts.HandshakeTimeout,
		RateLimit:        r.opts.RateLimit,
	})
}

func (r *Registry) discard(id session.Identity) {
	s, ok := r.sessions[id]
	if !ok {
		return
	}
	delete(r.sessions, id)
	s.Close()
}

func (r *Registry) closeAll() {
	for id, s := range r.sessions {
		delete(r.sessions, id)
		s.Close()
	}
	r.active = session.Identity{}
}

// current reports whether s is the registered session for its identity.
func (r *Registry) current(s *session.Session) bool {
	return r.sessions[s.Identity()] == s
}

// persist stores the credentials of a freshly authenticated session. The
// write is fire-and-forget; failures are logged only.
func (r *Registry) persist(s *session.Session) {
	entry := store.ServerEntry{
		IP:       s.Identity().Host,
		Port:     s.Identity().Port,
		Username: s.LoginName(),
		Password: s.Secret(),
	}
	ctx := r.ctx
	log := r.log
	r.opts.Async(func() {
		added, err := r.opts.Store.AddServer(ctx, entry)
		if err != nil {
			log.Error(ctx, "cannot persist server", "server", fmt.Sprintf("%s:%d", entry.IP, entry.Port), "err", err)
			return
		}
		log.Debug(ctx, "server persisted", "server", fmt.Sprintf("%s:%d", entry.IP, entry.Port), "added", added)
	})
}

// listener adapts session callbacks to registry events.
type listener struct {
	r *Registry
}

func (l listener) SessionEstablished(s *session.Session) {
	r := l.r
	if !r.current(s) {
		return
	}
	st := statusOf(s)
	r.opts.Emit(st)

	id := s.Identity()
	if _, seen := r.announced[id]; seen {
		return
	}
	r.announced[id] = struct{}{}
	r.persist(s)
	r.opts.Emit(ServerAdded{Identity: id, Username: st.Username})
}

func (l listener) SessionFailed(s *session.Session, reason string) {
	if !l.r.current(s) {
		return
	}
	if s.Mode() == session.ModeRegister {
		l.r.opts.Emit(RegistrationStatus{Identity: s.Identity(), Error: reason})
		return
	}
	st := statusOf(s)
	st.Error = reason
	l.r.opts.Emit(st)
}

func (l listener) SessionRegistered(s *session.Session, ok bool, reason string) {
	if !l.r.current(s) {
		return
	}
	l.r.opts.Emit(RegistrationStatus{Identity: s.Identity(), Success: ok, Error: reason})
}

func (l listener) SessionMessage(s *session.Session, m *protocol.Message) {
	if !l.r.current(s) {
		return
	}
	l.r.opts.Emit(ChatMessage{Identity: s.Identity(), Message: *m})
}

func (l listener) SessionHistory(s *session.Session, h *protocol.ChannelHistory) {
	if !l.r.current(s) {
		return
	}
	l.r.opts.Emit(ChannelHistory{Identity: s.Identity(), Channel: h.Channel, Messages: h.Messages})
}

func (l listener) SessionPresence(s *session.Session, u *protocol.UserStatus) {
	if !l.r.current(s) {
		return
	}
	l.r.opts.Emit(UserStatus{Identity: s.Identity(), Username: u.Username, Status: u.Status})
}

func (l listener) SessionDisconnected(s *session.Session, err error) {
	if !l.r.current(s) {
		return
	}
	st := statusOf(s)
	if err != nil {
		st.Error = err.Error()
	} else {
		st.Error = "disconnected"
	}
	l.r.opts.Emit(st)
}
