package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/nexus-chat-client/internal/client"
	"github.com/Tyrowin/nexus-chat-client/internal/protocol"
	"github.com/Tyrowin/nexus-chat-client/internal/registry"
	"github.com/Tyrowin/nexus-chat-client/internal/session"
	"github.com/Tyrowin/nexus-chat-client/internal/store"
)

type fakeClient struct {
	calls    []string
	added    []client.ServerDetails
	sendErr  error
	statuses []session.Status
	active   session.Identity
}

func (f *fakeClient) AddServer(d client.ServerDetails) error {
	f.calls = append(f.calls, "add")
	f.added = append(f.added, d)
	return nil
}

func (f *fakeClient) SendMessage(content, channel string) error {
	f.calls = append(f.calls, "send:"+content)
	return f.sendErr
}

func (f *fakeClient) SwitchServer(hostPort string) error {
	f.calls = append(f.calls, "switch:"+hostPort)
	return nil
}

func (f *fakeClient) SwitchChannel(name string) error {
	f.calls = append(f.calls, "channel:"+name)
	return nil
}

func (f *fakeClient) RequestChannelHistory(channel string) error {
	f.calls = append(f.calls, "history:"+channel)
	return nil
}

func (f *fakeClient) RefreshServers() { f.calls = append(f.calls, "refresh") }

func (f *fakeClient) Statuses() []session.Status { return f.statuses }

func (f *fakeClient) Active() (session.Identity, bool) { return f.active, !f.active.IsZero() }

func (f *fakeClient) Servers(context.Context) ([]store.ServerEntry, error) {
	return []store.ServerEntry{{IP: "127.0.0.1", Port: 9000, Username: "alice"}}, nil
}

func (f *fakeClient) Settings(context.Context) (store.Settings, error) {
	return store.DefaultSettings(), nil
}

func stubPasswords(t *testing.T, answers ...string) {
	t.Helper()
	orig := readPassword
	readPassword = func(int) ([]byte, error) {
		if len(answers) == 0 {
			return nil, errors.New("no more input")
		}
		pw := answers[0]
		answers = answers[1:]
		return []byte(pw), nil
	}
	t.Cleanup(func() { readPassword = orig })
}

func runLines(t *testing.T, c chatClient, lines ...string) string {
	t.Helper()
	var out bytes.Buffer
	app := NewApp(c, strings.NewReader(strings.Join(lines, "\n")), &out)
	events := make(chan registry.Event)
	close(events)
	app.Run(context.Background(), events)
	return out.String()
}

func TestREPL_CommandRouting(t *testing.T) {
	stubPasswords(t, "pw")
	fc := &fakeClient{}

	out := runLines(t, fc,
		"help",
		"login 127.0.0.1:9000 alice",
		"switch 127.0.0.1:9000",
		"join chat",
		"history",
		"history help",
		"refresh",
		"hello there",
		"quit",
		"never reached",
	)

	assert.Equal(t, []string{
		"add",
		"switch:127.0.0.1:9000",
		"channel:chat",
		"history:chat",
		"history:",
		"history:help",
		"refresh",
		"send:hello there",
	}, fc.calls)
	require.Len(t, fc.added, 1)
	assert.Equal(t, client.ServerDetails{Host: "127.0.0.1", Port: "9000", Username: "alice", Password: "pw"}, fc.added[0])
	assert.Contains(t, out, "Commands:")
	assert.Contains(t, out, "Bye!")
}

func TestREPL_RegisterAsksTwice(t *testing.T) {
	stubPasswords(t, "pw", "pw", "one", "two")
	fc := &fakeClient{}

	out := runLines(t, fc,
		"register [::1]:9000 bob",
		"register [::1]:9000 bob",
	)

	require.Len(t, fc.added, 1)
	assert.Equal(t, client.ServerDetails{Host: "::1", Port: "9000", Username: "bob", Password: "pw", Register: true}, fc.added[0])
	assert.Contains(t, out, ErrPasswordMismatch.Error())
}

func TestREPL_UsageAndErrors(t *testing.T) {
	fc := &fakeClient{sendErr: registry.ErrNoActiveServer}

	out := runLines(t, fc,
		"login",
		"login nohostport alice",
		"switch",
		"join",
		"orphan message",
	)

	assert.Contains(t, out, "usage: login <host:port> <user>")
	assert.Contains(t, out, "missing port")
	assert.Contains(t, out, "usage: switch <host:port>")
	assert.Contains(t, out, "usage: join <channel>")
	assert.Contains(t, out, registry.ErrNoActiveServer.Error())
	assert.Empty(t, fc.added)
}

func TestREPL_ServersAndSettings(t *testing.T) {
	alpha := session.Identity{Host: "127.0.0.1", Port: 9000}
	fc := &fakeClient{
		active: alpha,
		statuses: []session.Status{
			{Identity: alpha, State: session.StateAuthenticated, Open: true, Username: "alice", Channel: "general"},
			{Identity: session.Identity{Host: "127.0.0.1", Port: 9001}, State: session.StateFailed},
		},
	}

	out := runLines(t, fc, "servers", "settings")

	assert.Contains(t, out, "* 127.0.0.1:9000  authenticated  user=alice  channel=general  open=true")
	assert.Contains(t, out, "  127.0.0.1:9001  failed  user=-")
	assert.Contains(t, out, "1 saved server(s)")
	assert.Contains(t, out, "theme=dark fontSize=14")
}

func TestFormatEvent(t *testing.T) {
	id := session.Identity{Host: "h", Port: 1}
	tests := []struct {
		ev   registry.Event
		want string
	}{
		{registry.ConnectionStatus{Identity: id, Success: true, Username: "alice", Channels: []string{"general"}}, "[h:1] connected as alice; channels: general; online: -"},
		{registry.ConnectionStatus{Identity: id, Error: "Authentication failed"}, "[h:1] connection failed: Authentication failed"},
		{registry.ServerAdded{Identity: id, Username: "alice"}, "[h:1] saved server for alice"},
		{registry.RegistrationStatus{Identity: id, Success: true}, "[h:1] registration succeeded; use login to connect"},
		{registry.RegistrationStatus{Identity: id, Error: "Username already exists"}, "[h:1] registration failed: Username already exists"},
		{registry.ChatMessage{Identity: id, Message: protocol.Message{Channel: "chat", Username: "bob", Content: "hi"}}, "[h:1] #chat <bob> hi"},
		{registry.UserStatus{Identity: id, Username: "bob", Status: protocol.PresenceOffline}, "[h:1] bob is offline"},
		{registry.ChannelHistory{Identity: id, Channel: "help", Messages: []protocol.HistoryEntry{{Username: "a", Content: "x", Timestamp: "t"}}}, "[h:1] history of #help (1 messages)\n  t <a> x"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatEvent(tt.ev))
	}
}

func TestRender_PrintsUntilClosed(t *testing.T) {
	var out bytes.Buffer
	app := NewApp(&fakeClient{}, strings.NewReader(""), &out)

	events := make(chan registry.Event, 1)
	events <- registry.UserStatus{Identity: session.Identity{Host: "h", Port: 1}, Username: "bob", Status: protocol.PresenceOnline}
	close(events)

	app.render(context.Background(), events)
	assert.Equal(t, "[h:1] bob is online\n", out.String())
}

func TestApp_RunStopsOnCancelWithoutInput(t *testing.T) {
	in, w := io.Pipe()
	t.Cleanup(func() { _ = w.Close() })

	var out bytes.Buffer
	app := NewApp(&fakeClient{}, in, &out)
	events := make(chan registry.Event)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		app.Run(ctx, events)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run still waiting for a line after cancel")
	}
}
