// Package session drives one server connection through its handshake and
// message exchange.
//
// A Session is not safe for concurrent use. Every method, and every
// Listener callback, runs on the goroutine that executes the closures
// handed to Options.Post. Transport events and handshake timers never touch
// session state directly; they post.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/Tyrowin/nexus-chat-client/internal/logging"
	"github.com/Tyrowin/nexus-chat-client/internal/protocol"
	"github.com/Tyrowin/nexus-chat-client/internal/transport"
)

var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("session closed")
	// ErrRateLimited is returned by Send when chat messages exceed the
	// configured outbound rate.
	ErrRateLimited = errors.New("outbound message rate exceeded")
)

const (
	// DefaultChannel is the channel a new session targets.
	DefaultChannel = "general"

	reasonAuthFailed     = "Authentication failed"
	reasonRegisterFailed = "Registration failed"
	reasonTimeout        = "handshake timed out"
	reasonClosed         = "connection closed"
)

// Listener receives the outcomes of a session. Callbacks run on the event
// loop.
type Listener interface {
	// SessionEstablished fires once per successful auth handshake, before
	// the credentials are erased.
	SessionEstablished(s *Session)
	// SessionFailed fires when the handshake is rejected, times out, or the
	// transport goes away before authentication.
	SessionFailed(s *Session, reason string)
	SessionRegistered(s *Session, ok bool, reason string)
	SessionMessage(s *Session, m *protocol.Message)
	SessionHistory(s *Session, h *protocol.ChannelHistory)
	SessionPresence(s *Session, u *protocol.UserStatus)
	// SessionDisconnected fires when an authenticated session loses its
	// transport. The session stays usable for a reconnect.
	SessionDisconnected(s *Session, err error)
}

// RateLimit is a token bucket for outbound chat messages. Burst <= 0
// disables limiting.
type RateLimit struct {
	Burst    int
	Interval time.Duration
}

// DefaultRateLimit allows five messages per second.
func DefaultRateLimit() RateLimit {
	return RateLimit{Burst: 5, Interval: 200 * time.Millisecond}
}

// Options wires a session to its environment.
type Options struct {
	Dialer   transport.Dialer
	Post     func(func())
	Listener Listener
	Logger   logging.Logger

	DefaultChannel string
	// HandshakeTimeout bounds AwaitingHandshake. Zero waits forever.
	HandshakeTimeout time.Duration
	RateLimit        RateLimit
}

// Status is a snapshot of a session for status events.
type Status struct {
	Identity     Identity
	State        AuthState
	Open         bool
	Username     string
	Channel      string
	Channels     []string
	OnlineUsers  []string
	OfflineUsers []string
	Error        string
}

// Session is one logical connection to one server.
type Session struct {
	id       string
	identity Identity
	opts     Options
	log      logging.Logger
	ctx      context.Context

	socket  transport.Socket
	gen     uint64
	open    bool
	closed  bool
	timer   *time.Timer
	limiter *rate.Limiter

	state     AuthState
	creds     *Credentials
	mode      Mode
	loginName string
	pending   protocol.Type
	lastError string

	username       string
	channel        string
	channels       []string
	roster         *Roster
	historyChannel string
}

// New creates a session in StateConnecting. Nothing is dialed until Connect.
// creds may be nil for a connection without a handshake.
func New(id Identity, creds *Credentials, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Post == nil {
		opts.Post = func(fn func()) { fn() }
	}
	if opts.Listener == nil {
		opts.Listener = nopListener{}
	}
	channel := strings.TrimSpace(opts.DefaultChannel)
	if channel == "" {
		channel = DefaultChannel
	}

	sid := uuid.NewString()
	s := &Session{
		id:       sid,
		identity: id,
		opts:     opts,
		log:      opts.Logger.With("session_id", sid, "server", id.String()),
		ctx:      context.Background(),
		channel:  channel,
		roster:   NewRoster(nil, nil),
	}
	if opts.RateLimit.Burst > 0 && opts.RateLimit.Interval > 0 {
		s.limiter = rate.NewLimiter(rate.Every(opts.RateLimit.Interval), opts.RateLimit.Burst)
	}
	s.setCredentials(creds)
	return s
}

func (s *Session) ID() string           { return s.id }
func (s *Session) Identity() Identity   { return s.identity }
func (s *Session) State() AuthState     { return s.state }
func (s *Session) Mode() Mode           { return s.mode }
func (s *Session) Channel() string      { return s.channel }
func (s *Session) Roster() *Roster      { return s.roster }
func (s *Session) LastError() string    { return s.lastError }
func (s *Session) Closed() bool         { return s.closed }
func (s *Session) Channels() []string   { return append([]string(nil), s.channels...) }
func (s *Session) Authenticated() bool  { return s.state == StateAuthenticated }
func (s *Session) HasCredentials() bool { return s.creds != nil }

// Username is the server-confirmed name, or the name used for the
// handshake before one is confirmed.
func (s *Session) Username() string {
	if s.username != "" {
		return s.username
	}
	return s.loginName
}

// LoginName is the username the last handshake was attempted with.
func (s *Session) LoginName() string { return s.loginName }

// IsOpen reports whether the current transport is open.
func (s *Session) IsOpen() bool {
	return s.open && s.socket != nil && s.socket.IsOpen()
}

// Dialing reports whether a transport attempt is still in flight.
func (s *Session) Dialing() bool {
	return !s.closed && s.state == StateConnecting && s.socket != nil && !s.open
}

// Secret returns the handshake password while credentials are held and ""
// once they have been erased.
func (s *Session) Secret() string {
	if s.creds == nil {
		return ""
	}
	return s.creds.Secret.String()
}

// HasSecret reports whether a readable password is still held.
func (s *Session) HasSecret() bool {
	return s.creds != nil && !s.creds.Secret.IsEmpty()
}

func (s *Session) Status() Status {
	return Status{
		Identity:     s.identity,
		State:        s.state,
		Open:         s.IsOpen(),
		Username:     s.Username(),
		Channel:      s.channel,
		Channels:     s.Channels(),
		OnlineUsers:  s.roster.Online(),
		OfflineUsers: s.roster.Offline(),
		Error:        s.lastError,
	}
}

// Connect starts a fresh transport attempt, dropping any previous one.
func (s *Session) Connect() {
	if s.closed {
		return
	}
	s.gen++
	gen := s.gen
	s.dropSocket()

	s.state = StateConnecting
	s.pending = ""
	s.lastError = ""

	s.log.Info(s.ctx, "connecting", "url", s.identity.URL(), "handshake", s.handshakeName())
	s.socket = s.opts.Dialer.Dial(s.identity.URL(), s.handlerFor(gen))
}

// Reconnect replaces the held credentials and connects again. A nil creds
// reconnects without a handshake.
func (s *Session) Reconnect(creds *Credentials) {
	if s.closed {
		creds.erase()
		return
	}
	s.eraseCredentials()
	s.setCredentials(creds)
	s.Connect()
}

// Close tears the session down for good. It is idempotent.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.gen++
	s.eraseCredentials()
	s.dropSocket()
	s.log.Debug(s.ctx, "session closed")
}

// SwitchChannel changes the default target channel. It sends nothing.
func (s *Session) SwitchChannel(name string) {
	name = strings.TrimSpace(name)
	if name == "" {
		return
	}
	s.channel = name
}

// SendMessage sends a chat message to channel, or to the current channel
// when channel is empty.
func (s *Session) SendMessage(content, channel string) error {
	return s.Send(&protocol.Message{Content: content, Channel: channel})
}

// RequestHistory asks for the history of channel, or of the current channel
// when channel is empty.
func (s *Session) RequestHistory(channel string) error {
	return s.Send(&protocol.GetChannelHistory{Channel: channel})
}

// Send enriches and transmits one frame. Chat messages are stamped with the
// session username and a channel; history requests get a channel.
func (s *Session) Send(f protocol.Frame) error {
	if s.closed {
		return ErrClosed
	}

	switch fr := f.(type) {
	case *protocol.Message:
		out := *fr
		out.Username = s.Username()
		out.Channel = s.targetChannel(fr.Channel)
		if s.limiter != nil && !s.limiter.Allow() {
			s.log.Warn(s.ctx, "dropping chat message, rate limit exceeded", "channel", out.Channel)
			return ErrRateLimited
		}
		f = &out
	case *protocol.GetChannelHistory:
		out := *fr
		out.Channel = s.targetChannel(fr.Channel)
		s.historyChannel = out.Channel
		f = &out
	}

	if s.socket == nil {
		s.log.Warn(s.ctx, "cannot send, session never connected", "type", f.FrameType())
		return transport.ErrNotOpen
	}
	data, err := protocol.Encode(f)
	if err != nil {
		return err
	}
	if err := s.socket.Send(data); err != nil {
		return fmt.Errorf("send %s to %s: %w", f.FrameType(), s.identity, err)
	}
	return nil
}

func (s *Session) targetChannel(explicit string) string {
	if c := strings.TrimSpace(explicit); c != "" {
		return c
	}
	return s.channel
}

func (s *Session) handshakeName() string {
	if s.creds == nil {
		return "none"
	}
	return s.creds.Mode.String()
}

func (s *Session) setCredentials(creds *Credentials) {
	s.creds = creds
	if creds != nil {
		s.mode = creds.Mode
		s.loginName = creds.Username
		s.username = ""
	}
}

func (s *Session) eraseCredentials() {
	if s.creds == nil {
		return
	}
	s.creds.erase()
	s.creds = nil
}

func (s *Session) dropSocket() {
	s.stopTimer()
	s.open = false
	if s.socket == nil {
		return
	}
	old := s.socket
	s.socket = nil
	if err := old.Close(); err != nil {
		s.log.Warn(s.ctx, "error closing socket", "err", err)
	}
}

// handlerFor returns the transport handler for attempt gen. Events from an
// attempt other than the current one are ignored on arrival.
func (s *Session) handlerFor(gen uint64) transport.Handler {
	return func(ev transport.Event) {
		s.opts.Post(func() { s.handle(gen, ev) })
	}
}

func (s *Session) handle(gen uint64, ev transport.Event) {
	if s.closed || gen != s.gen {
		s.log.Debug(s.ctx, "ignoring event from stale socket", "event", ev.Kind.String())
		return
	}

	switch ev.Kind {
	case transport.EventOpen:
		s.onOpen(gen)
	case transport.EventMessage:
		s.onFrame(ev.Data)
	case transport.EventError, transport.EventClose:
		s.onTransportDown(ev.Err)
	}
}

func (s *Session) onOpen(gen uint64) {
	s.open = true
	s.log.Info(s.ctx, "connected")

	if s.creds == nil {
		return
	}

	var hs protocol.Frame
	switch s.creds.Mode {
	case ModeRegister:
		hs = &protocol.Register{Username: s.creds.Username, Password: s.creds.Secret.String()}
	default:
		hs = &protocol.Auth{Username: s.creds.Username, Password: s.creds.Secret.String()}
	}
	data, err := protocol.Encode(hs)
	if err != nil {
		s.fail(err.Error())
		return
	}

	s.state = StateAwaitingHandshake
	s.pending = hs.FrameType()
	if err := s.socket.Send(data); err != nil {
		s.fail(fmt.Sprintf("send %s: %v", hs.FrameType(), err))
		return
	}
	s.log.Debug(s.ctx, "handshake sent", "type", hs.FrameType(), "username", s.creds.Username)
	s.startTimer(gen)
}

func (s *Session) onFrame(data []byte) {
	f, err := protocol.Decode(data)
	if err != nil {
		s.log.Warn(s.ctx, "dropping malformed frame", "err", err)
		return
	}

	switch fr := f.(type) {
	case *protocol.AuthResponse:
		s.onAuthResponse(fr)
	case *protocol.RegisterResponse:
		s.onRegisterResponse(fr)
	case *protocol.Message:
		s.opts.Listener.SessionMessage(s, fr)
	case *protocol.ChannelHistory:
		if fr.Channel == "" {
			fr.Channel = s.historyChannel
		}
		if fr.Channel == "" {
			fr.Channel = s.channel
		}
		s.opts.Listener.SessionHistory(s, fr)
	case *protocol.UserStatus:
		s.onPresence(fr)
	case *protocol.Unknown:
		s.log.Warn(s.ctx, "unhandled frame type", "type", fr.Type)
	default:
		s.log.Warn(s.ctx, "unexpected client frame from server", "type", f.FrameType())
	}
}

func (s *Session) onAuthResponse(r *protocol.AuthResponse) {
	if s.pending != protocol.TypeAuth {
		s.log.Warn(s.ctx, "dropping unsolicited auth_response", "state", s.state.String())
		return
	}
	s.pending = ""
	s.stopTimer()

	if !r.Success {
		reason := r.Error
		if reason == "" {
			reason = reasonAuthFailed
		}
		s.fail(reason)
		return
	}

	s.state = StateAuthenticated
	s.lastError = ""
	s.username = r.Username
	if s.username == "" {
		s.username = s.loginName
	}
	s.channels = append([]string(nil), r.Channels...)
	s.roster = NewRoster(r.OnlineUsers, r.OfflineUsers)
	s.log.Info(s.ctx, "authenticated", "username", s.username, "channels", len(s.channels))

	s.opts.Listener.SessionEstablished(s)
	s.eraseCredentials()
}

func (s *Session) onRegisterResponse(r *protocol.RegisterResponse) {
	if s.pending != protocol.TypeRegister {
		s.log.Warn(s.ctx, "dropping unsolicited register_response", "state", s.state.String())
		return
	}
	s.pending = ""
	s.stopTimer()
	s.eraseCredentials()

	reason := ""
	if r.Success {
		s.state = StateRegistered
		s.lastError = ""
		s.log.Info(s.ctx, "registered", "username", s.loginName)
	} else {
		reason = r.Error
		if reason == "" {
			reason = reasonRegisterFailed
		}
		s.state = StateFailed
		s.lastError = reason
		s.log.Warn(s.ctx, "registration rejected", "username", s.loginName, "reason", reason)
	}
	s.opts.Listener.SessionRegistered(s, r.Success, reason)
}

func (s *Session) onPresence(u *protocol.UserStatus) {
	if u.Username == "" {
		s.log.Warn(s.ctx, "dropping user_status without username")
		return
	}
	switch u.Status {
	case protocol.PresenceOnline:
		s.roster.SetOnline(u.Username)
	case protocol.PresenceOffline:
		s.roster.SetOffline(u.Username)
	default:
		s.log.Warn(s.ctx, "dropping user_status with unknown status", "status", u.Status)
		return
	}
	s.opts.Listener.SessionPresence(s, u)
}

func (s *Session) onTransportDown(err error) {
	s.open = false
	s.stopTimer()

	reason := reasonClosed
	if err != nil {
		reason = err.Error()
	}

	switch s.state {
	case StateAuthenticated:
		s.lastError = reason
		s.log.Warn(s.ctx, "disconnected", "err", err)
		s.opts.Listener.SessionDisconnected(s, err)
	case StateConnecting, StateAwaitingHandshake:
		s.fail(reason)
	default:
		s.log.Debug(s.ctx, "transport closed", "state", s.state.String(), "err", err)
	}
}

func (s *Session) fail(reason string) {
	s.stopTimer()
	s.state = StateFailed
	s.pending = ""
	s.lastError = reason
	s.eraseCredentials()
	s.log.Warn(s.ctx, "session failed", "reason", reason)
	s.opts.Listener.SessionFailed(s, reason)
}

func (s *Session) startTimer(gen uint64) {
	if s.opts.HandshakeTimeout <= 0 {
		return
	}
	s.timer = time.AfterFunc(s.opts.HandshakeTimeout, func() {
		s.opts.Post(func() { s.onHandshakeTimeout(gen) })
	})
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) onHandshakeTimeout(gen uint64) {
	if s.closed || gen != s.gen || s.state != StateAwaitingHandshake {
		return
	}
	s.timer = nil
	s.fail(reasonTimeout)
	if s.socket != nil {
		_ = s.socket.Close()
	}
}

type nopListener struct{}

func (nopListener) SessionEstablished(*Session)                       {}
func (nopListener) SessionFailed(*Session, string)                    {}
func (nopListener) SessionRegistered(*Session, bool, string)          {}
func (nopListener) SessionMessage(*Session, *protocol.Message)        {}
func (nopListener) SessionHistory(*Session, *protocol.ChannelHistory) {}
func (nopListener) SessionPresence(*Session, *protocol.UserStatus)    {}
func (nopListener) SessionDisconnected(*Session, error)               {}
