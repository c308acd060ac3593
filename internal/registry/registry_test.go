package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/nexus-chat-client/internal/logging"
	"github.com/Tyrowin/nexus-chat-client/internal/protocol"
	"github.com/Tyrowin/nexus-chat-client/internal/session"
	"github.com/Tyrowin/nexus-chat-client/internal/store"
	"github.com/Tyrowin/nexus-chat-client/internal/transport/transporttest"
)

type memStore struct {
	mu      sync.Mutex
	entries []store.ServerEntry
	addErr  error
	adds    int
}

func (m *memStore) Servers(context.Context) ([]store.ServerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]store.ServerEntry(nil), m.entries...), nil
}

func (m *memStore) AddServer(_ context.Context, e store.ServerEntry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adds++
	if m.addErr != nil {
		return false, m.addErr
	}
	for _, existing := range m.entries {
		if existing.SameServer(e) {
			return false, nil
		}
	}
	m.entries = append(m.entries, e)
	return true, nil
}

func (m *memStore) FindServer(_ context.Context, ip string, port int, username string) (store.ServerEntry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.IP == ip && e.Port == port && (username == "" || e.Username == username) {
			return e, true, nil
		}
	}
	return store.ServerEntry{}, false, nil
}

type fixture struct {
	q          *transporttest.Queue
	dialer     *transporttest.Dialer
	store      *memStore
	events     []Event
	async      []func()
	deferAsync bool
	r          *Registry
}

var (
	alpha = session.Identity{Host: "127.0.0.1", Port: 9000}
	beta  = session.Identity{Host: "127.0.0.1", Port: 9001}
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		q:      &transporttest.Queue{},
		dialer: &transporttest.Dialer{},
		store:  &memStore{},
	}
	f.r = New(Options{
		Dialer: f.dialer,
		Store:  f.store,
		Logger: logging.Discard(),
		Post:   f.q.Post,
		Async: func(fn func()) {
			if f.deferAsync {
				f.async = append(f.async, fn)
				return
			}
			fn()
		},
		Emit: func(ev Event) { f.events = append(f.events, ev) },
	})
	return f
}

func (f *fixture) takeEvents() []Event {
	out := f.events
	f.events = nil
	return out
}

// login adds id and completes a successful handshake.
func (f *fixture) login(t *testing.T, id session.Identity, user, pass string, resp string) *transporttest.Socket {
	t.Helper()
	f.r.AddServer(id, session.NewCredentials(user, pass, session.ModeAuthenticate))
	sock := f.dialer.Last()
	sock.Open()
	f.q.Drain()
	sock.Receive(resp)
	f.q.Drain()
	return sock
}

func statusEvents(evs []Event) []ConnectionStatus {
	var out []ConnectionStatus
	for _, ev := range evs {
		if st, ok := ev.(ConnectionStatus); ok {
			out = append(out, st)
		}
	}
	return out
}

func countAdded(evs []Event) int {
	n := 0
	for _, ev := range evs {
		if _, ok := ev.(ServerAdded); ok {
			n++
		}
	}
	return n
}

func TestRegistry_AddServerAuthenticates(t *testing.T) {
	f := newFixture(t)

	sock := f.login(t, alpha, "alice", "x", `{"type":"auth_response","success":true,"channels":["general"]}`)

	assert.Equal(t, "ws://127.0.0.1:9000", sock.URL)
	sent := sock.SentMaps()
	require.Len(t, sent, 1)
	assert.Equal(t, map[string]any{"type": "auth", "username": "alice", "password": "x"}, sent[0])

	evs := f.takeEvents()
	require.Len(t, evs, 2)
	st, ok := evs[0].(ConnectionStatus)
	require.True(t, ok)
	assert.True(t, st.Success)
	assert.Equal(t, alpha, st.Identity)
	assert.Equal(t, "alice", st.Username)
	assert.Equal(t, []string{"general"}, st.Channels)
	assert.Empty(t, st.Error)
	assert.Equal(t, ServerAdded{Identity: alpha, Username: "alice"}, evs[1])

	assert.Equal(t, []store.ServerEntry{{IP: "127.0.0.1", Port: 9000, Username: "alice", Password: "x"}}, f.store.entries)
	active, ok := f.r.Active()
	assert.True(t, ok)
	assert.Equal(t, alpha, active)
}

func TestRegistry_IdempotentReAdd(t *testing.T) {
	f := newFixture(t)
	sock := f.login(t, alpha, "alice", "x", `{"type":"auth_response","success":true,"channels":["general"],"online_users":["alice"]}`)
	first := statusEvents(f.takeEvents())
	require.Len(t, first, 1)

	f.r.AddServer(alpha, session.NewCredentials("alice", "x", session.ModeAuthenticate))
	f.q.Drain()

	assert.Equal(t, 1, f.dialer.Count(), "no new connection")
	assert.Len(t, sock.Sent(), 1, "no new handshake")
	evs := f.takeEvents()
	require.Len(t, evs, 1)
	assert.Equal(t, first[0], evs[0])
	assert.Equal(t, 1, f.r.Len())
}

func TestRegistry_ReAddBeforeCompletionReplaces(t *testing.T) {
	f := newFixture(t)

	f.r.AddServer(alpha, session.NewCredentials("alice", "x", session.ModeAuthenticate))
	first := f.dialer.Last()
	first.Open()
	f.q.Drain()

	f.r.AddServer(alpha, session.NewCredentials("alice", "y", session.ModeAuthenticate))
	second := f.dialer.Last()
	require.NotSame(t, first, second)
	assert.True(t, first.Closed(), "in-flight session is closed")

	second.Open()
	first.Receive(`{"type":"auth_response","success":true}`)
	f.q.Drain()

	assert.Len(t, first.Sent(), 1)
	sent := second.SentMaps()
	require.Len(t, sent, 1)
	assert.Equal(t, "y", sent[0]["password"])
	assert.Equal(t, 1, f.r.Len())
	assert.Empty(t, f.takeEvents(), "events of the replaced session are not routed")

	second.Receive(`{"type":"auth_response","success":true}`)
	f.q.Drain()
	assert.Len(t, statusEvents(f.takeEvents()), 1)
}

func TestRegistry_IdentityUniqueness(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.r.AddServer(alpha, session.NewCredentials("alice", "x", session.ModeAuthenticate))
	}
	f.r.AddServer(beta, session.NewCredentials("alice", "x", session.ModeAuthenticate))
	f.q.Drain()

	assert.Equal(t, 2, f.r.Len())
	open := 0
	for _, s := range f.dialer.Sockets() {
		if !s.Closed() {
			open++
		}
	}
	assert.Equal(t, 2, open)
}

func TestRegistry_PersistsOnlyOnFirstAuth(t *testing.T) {
	f := newFixture(t)
	sock := f.login(t, alpha, "alice", "x", `{"type":"auth_response","success":true}`)
	f.takeEvents()

	sock.Drop(errors.New("reset"))
	f.q.Drain()
	f.r.Switch(alpha)
	f.q.Drain()
	again := f.dialer.Last()
	require.NotSame(t, sock, again)
	again.Open()
	f.q.Drain()
	again.Receive(`{"type":"auth_response","success":true}`)
	f.q.Drain()

	evs := f.takeEvents()
	assert.Equal(t, 0, countAdded(evs))
	assert.Equal(t, 1, f.store.adds)
	assert.Len(t, f.store.entries, 1)
}

func TestRegistry_PersistFailureIsNotSurfaced(t *testing.T) {
	f := newFixture(t)
	f.store.addErr = errors.New("disk full")

	f.login(t, alpha, "alice", "x", `{"type":"auth_response","success":true}`)

	evs := f.takeEvents()
	require.Len(t, evs, 2)
	assert.True(t, evs[0].(ConnectionStatus).Success)
	assert.IsType(t, ServerAdded{}, evs[1])
	assert.Equal(t, 1, f.store.adds, "never retried")
}

func TestRegistry_AuthFailure(t *testing.T) {
	f := newFixture(t)
	f.login(t, alpha, "alice", "bad", `{"type":"auth_response","success":false,"error":"Invalid credentials"}`)

	evs := f.takeEvents()
	require.Len(t, evs, 1)
	st := evs[0].(ConnectionStatus)
	assert.False(t, st.Success)
	assert.Equal(t, "Invalid credentials", st.Error)
	assert.Zero(t, f.store.adds)
}

func TestRegistry_Register(t *testing.T) {
	f := newFixture(t)
	f.r.AddServer(alpha, session.NewCredentials("bob", "pw", session.ModeRegister))
	sock := f.dialer.Last()
	sock.Open()
	f.q.Drain()
	assert.Equal(t, "register", sock.SentMaps()[0]["type"])

	sock.Receive(`{"type":"register_response","success":true}`)
	f.q.Drain()

	assert.Equal(t, []Event{RegistrationStatus{Identity: alpha, Success: true}}, f.takeEvents())
	assert.Zero(t, f.store.adds)
}

func TestRegistry_RegisterTransportFailure(t *testing.T) {
	f := newFixture(t)
	f.r.AddServer(alpha, session.NewCredentials("bob", "pw", session.ModeRegister))
	f.dialer.Last().Fail(errors.New("refused"))
	f.q.Drain()

	assert.Equal(t, []Event{RegistrationStatus{Identity: alpha, Error: "refused"}}, f.takeEvents())
}

func TestRegistry_RoutesInboundFrames(t *testing.T) {
	f := newFixture(t)
	sock := f.login(t, alpha, "alice", "x", `{"type":"auth_response","success":true}`)
	f.takeEvents()

	sock.Receive(`{"type":"message","channel":"general","content":"hi","username":"bob"}`)
	sock.Receive(`{"type":"channel_history","channel":"general","messages":[{"username":"bob","content":"old","timestamp":"t"}]}`)
	sock.Receive(`{"type":"user_status","username":"bob","status":"online"}`)
	f.q.Drain()

	assert.Equal(t, []Event{
		ChatMessage{Identity: alpha, Message: protocol.Message{Channel: "general", Content: "hi", Username: "bob"}},
		ChannelHistory{Identity: alpha, Channel: "general", Messages: []protocol.HistoryEntry{{Username: "bob", Content: "old", Timestamp: "t"}}},
		UserStatus{Identity: alpha, Username: "bob", Status: protocol.PresenceOnline},
	}, f.takeEvents())
}

func TestRegistry_DisconnectReportsStatus(t *testing.T) {
	f := newFixture(t)
	sock := f.login(t, alpha, "alice", "x", `{"type":"auth_response","success":true}`)
	f.takeEvents()

	sock.Drop(errors.New("reset by peer"))
	f.q.Drain()

	evs := statusEvents(f.takeEvents())
	require.Len(t, evs, 1)
	assert.False(t, evs[0].Success)
	assert.Equal(t, "reset by peer", evs[0].Error)
	assert.Equal(t, 1, f.r.Len(), "session is kept for reconnect")
}

func TestRegistry_Refresh(t *testing.T) {
	f := newFixture(t)
	old := f.login(t, beta, "zed", "z", `{"type":"auth_response","success":true}`)
	f.store.entries = []store.ServerEntry{
		{IP: "127.0.0.1", Port: 9000, Username: "a", Password: "pw1"},
		{IP: "127.0.0.1", Port: 9000, Username: "b", Password: "pw2"},
		{IP: "10.0.0.2", Port: 7000, Username: "c", Password: "pw3"},
	}

	f.r.Refresh()
	f.q.Drain()

	assert.True(t, old.Closed())
	assert.Equal(t, 2, f.r.Len())
	for _, s := range f.dialer.Sockets()[1:] {
		s.Open()
	}
	f.q.Drain()

	handshakes := map[string]map[string]any{}
	for _, s := range f.dialer.Sockets()[1:] {
		sent := s.SentMaps()
		require.Len(t, sent, 1)
		handshakes[s.URL] = sent[0]
	}
	assert.Equal(t, map[string]any{"type": "auth", "username": "b", "password": "pw2"}, handshakes["ws://127.0.0.1:9000"], "last entry wins")
	assert.Equal(t, "c", handshakes["ws://10.0.0.2:7000"]["username"])

	active, ok := f.r.Active()
	assert.True(t, ok)
	assert.Equal(t, alpha, active)
}

func TestRegistry_OnlyLatestRefreshApplies(t *testing.T) {
	f := newFixture(t)
	f.deferAsync = true

	f.r.Refresh()
	f.r.Refresh()
	require.Len(t, f.async, 2)

	f.store.entries = []store.ServerEntry{{IP: "h", Port: 1, Username: "a", Password: "p"}}
	f.async[1]()
	f.store.entries = append(f.store.entries, store.ServerEntry{IP: "h", Port: 2, Username: "a", Password: "p"})
	f.async[0]()
	f.q.Drain()

	assert.Equal(t, 1, f.r.Len())
	assert.Equal(t, 1, f.dialer.Count())
}

func TestRegistry_RemoveAllCancelsPendingRefresh(t *testing.T) {
	f := newFixture(t)
	f.store.entries = []store.ServerEntry{{IP: "h", Port: 1, Username: "a", Password: "p"}}
	f.deferAsync = true

	f.r.Init(context.Background())
	f.r.Teardown()
	f.async[0]()
	f.q.Drain()

	assert.Zero(t, f.r.Len())
	assert.Zero(t, f.dialer.Count())
}

func TestRegistry_RefreshKeepsServersAddedMeanwhile(t *testing.T) {
	f := newFixture(t)
	f.store.entries = []store.ServerEntry{{IP: "127.0.0.1", Port: 9000, Username: "old", Password: "p"}}
	f.deferAsync = true

	f.r.Refresh()
	f.r.AddServer(alpha, session.NewCredentials("new", "q", session.ModeAuthenticate))
	f.async[0]()
	f.q.Drain()

	assert.Equal(t, 1, f.r.Len())
	assert.Equal(t, 1, f.dialer.Count())
	f.dialer.Last().Open()
	f.q.Drain()
	assert.Equal(t, "new", f.dialer.Last().SentMaps()[0]["username"])
}

func TestRegistry_RemoveAll(t *testing.T) {
	f := newFixture(t)
	a := f.login(t, alpha, "alice", "x", `{"type":"auth_response","success":true}`)
	b := f.login(t, beta, "alice", "x", `{"type":"auth_response","success":true}`)
	f.takeEvents()

	f.r.RemoveAll()
	f.q.Drain()

	assert.Zero(t, f.r.Len())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
	assert.Empty(t, f.takeEvents())
	_, ok := f.r.Active()
	assert.False(t, ok)
}

func TestRegistry_Remove(t *testing.T) {
	f := newFixture(t)
	a := f.login(t, alpha, "alice", "x", `{"type":"auth_response","success":true}`)

	f.r.Remove(alpha)
	f.r.Remove(alpha)

	assert.True(t, a.Closed())
	assert.Zero(t, f.r.Len())
	assert.ErrorIs(t, f.r.SendMessage("hi", ""), ErrNoActiveServer)
}

func TestRegistry_DispatchSend(t *testing.T) {
	f := newFixture(t)
	sock := f.login(t, alpha, "alice", "x", `{"type":"auth_response","success":true}`)

	require.NoError(t, f.r.DispatchSend(alpha, &protocol.Message{Content: "hi"}))
	assert.Equal(t, map[string]any{"type": "message", "channel": "general", "content": "hi", "username": "alice"}, sock.SentMaps()[1])

	err := f.r.DispatchSend(beta, &protocol.Message{Content: "hi"})
	assert.ErrorIs(t, err, ErrUnknownServer)
}

func TestRegistry_SwitchChannelThenSend(t *testing.T) {
	f := newFixture(t)
	sock := f.login(t, alpha, "alice", "x", `{"type":"auth_response","success":true}`)

	require.NoError(t, f.r.SwitchChannel("random"))
	require.NoError(t, f.r.SendMessage("hi", ""))
	require.NoError(t, f.r.RequestHistory(""))

	sent := sock.SentMaps()
	require.Len(t, sent, 3)
	assert.Equal(t, "random", sent[1]["channel"])
	assert.Equal(t, "hi", sent[1]["content"])
	assert.Equal(t, map[string]any{"type": "get_channel_history", "channel": "random"}, sent[2])
}

func TestRegistry_ActiveCommandsWithoutServer(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.r.SwitchChannel("x"), ErrNoActiveServer)
	assert.ErrorIs(t, f.r.RequestHistory(""), ErrNoActiveServer)
	assert.ErrorIs(t, f.r.SendMessage("hi", ""), ErrNoActiveServer)
}

func TestRegistry_SwitchUnknown(t *testing.T) {
	f := newFixture(t)
	f.r.Switch(beta)

	assert.Equal(t, []Event{ConnectionStatus{Identity: beta, Error: "unknown server"}}, f.takeEvents())
}

func TestRegistry_SwitchOpenReportsStatus(t *testing.T) {
	f := newFixture(t)
	f.login(t, alpha, "alice", "x", `{"type":"auth_response","success":true,"channels":["general"]}`)
	f.login(t, beta, "alice", "x", `{"type":"auth_response","success":true,"channels":["lobby"]}`)
	f.takeEvents()

	f.r.Switch(alpha)

	evs := statusEvents(f.takeEvents())
	require.Len(t, evs, 1)
	assert.True(t, evs[0].Success)
	assert.Equal(t, []string{"general"}, evs[0].Channels)
	active, _ := f.r.Active()
	assert.Equal(t, alpha, active)
	assert.Equal(t, 2, f.dialer.Count())
}

func TestRegistry_SwitchReconnectsWithStoredCredentials(t *testing.T) {
	f := newFixture(t)
	sock := f.login(t, alpha, "alice", "x", `{"type":"auth_response","success":true}`)
	sock.Drop(nil)
	f.q.Drain()
	f.takeEvents()

	f.r.Switch(alpha)
	f.q.Drain()

	again := f.dialer.Last()
	require.NotSame(t, sock, again)
	assert.Empty(t, f.takeEvents(), "status waits for the handshake")

	again.Open()
	f.q.Drain()
	assert.Equal(t, map[string]any{"type": "auth", "username": "alice", "password": "x"}, again.SentMaps()[0])

	again.Receive(`{"type":"auth_response","success":true}`)
	f.q.Drain()
	evs := statusEvents(f.takeEvents())
	require.Len(t, evs, 1)
	assert.True(t, evs[0].Success)
}

func TestRegistry_SwitchWithoutStoredCredentials(t *testing.T) {
	f := newFixture(t)
	f.store.addErr = errors.New("read-only")
	sock := f.login(t, alpha, "alice", "x", `{"type":"auth_response","success":true}`)
	sock.Drop(nil)
	f.q.Drain()
	f.takeEvents()

	f.r.Switch(alpha)
	f.q.Drain()

	evs := statusEvents(f.takeEvents())
	require.Len(t, evs, 1)
	assert.False(t, evs[0].Success)
	assert.Equal(t, "no stored credentials for 127.0.0.1:9000", evs[0].Error)

	again := f.dialer.Last()
	require.NotSame(t, sock, again)
	again.Open()
	f.q.Drain()
	assert.Empty(t, again.Sent(), "no handshake without credentials")
}

func TestRegistry_SwitchWhileDialingKeepsHandshake(t *testing.T) {
	for _, mode := range []session.Mode{session.ModeAuthenticate, session.ModeRegister} {
		t.Run(mode.String(), func(t *testing.T) {
			f := newFixture(t)
			f.r.AddServer(alpha, session.NewCredentials("alice", "x", mode))
			first := f.dialer.Last()

			f.r.Switch(alpha)
			f.q.Drain()

			assert.Equal(t, 1, f.dialer.Count(), "no second dial")
			assert.False(t, first.Closed())
			evs := statusEvents(f.takeEvents())
			require.Len(t, evs, 1)
			assert.False(t, evs[0].Success)
			assert.Empty(t, evs[0].Error)

			first.Open()
			f.q.Drain()
			sent := first.SentMaps()
			require.Len(t, sent, 1)
			assert.Equal(t, map[string]any{"type": mode.String(), "username": "alice", "password": "x"}, sent[0])
		})
	}
}

func TestRegistry_SwitchLookupAfterRedialKeepsAttempt(t *testing.T) {
	f := newFixture(t)
	sock := f.login(t, alpha, "alice", "x", `{"type":"auth_response","success":true}`)
	sock.Drop(nil)
	f.q.Drain()
	f.takeEvents()

	f.deferAsync = true
	f.r.Switch(alpha)
	f.r.Switch(alpha)
	require.Len(t, f.async, 2)

	f.async[0]()
	f.q.Drain()
	redial := f.dialer.Last()
	require.NotSame(t, sock, redial)

	f.async[1]()
	f.q.Drain()
	assert.Equal(t, 2, f.dialer.Count(), "second lookup does not redial")
	assert.False(t, redial.Closed())

	redial.Open()
	f.q.Drain()
	assert.Equal(t, map[string]any{"type": "auth", "username": "alice", "password": "x"}, redial.SentMaps()[0])
}

func TestRegistry_Statuses(t *testing.T) {
	f := newFixture(t)
	f.login(t, beta, "bob", "x", `{"type":"auth_response","success":true}`)
	f.r.AddServer(alpha, session.NewCredentials("alice", "x", session.ModeAuthenticate))

	sts := f.r.Statuses()
	require.Len(t, sts, 2)
	assert.Equal(t, alpha, sts[0].Identity)
	assert.Equal(t, session.StateConnecting, sts[0].State)
	assert.Equal(t, beta, sts[1].Identity)
	assert.Equal(t, session.StateAuthenticated, sts[1].State)
}
