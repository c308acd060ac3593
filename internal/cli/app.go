package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/Tyrowin/nexus-chat-client/internal/client"
	"github.com/Tyrowin/nexus-chat-client/internal/registry"
	"github.com/Tyrowin/nexus-chat-client/internal/session"
	"github.com/Tyrowin/nexus-chat-client/internal/store"
)

// chatClient is the command surface the terminal needs. *client.Client
// satisfies it; tests provide a stub.
type chatClient interface {
	AddServer(d client.ServerDetails) error
	SendMessage(content, channel string) error
	SwitchServer(hostPort string) error
	SwitchChannel(name string) error
	RequestChannelHistory(channel string) error
	RefreshServers()
	Statuses() []session.Status
	Active() (session.Identity, bool)
	Servers(ctx context.Context) ([]store.ServerEntry, error)
	Settings(ctx context.Context) (store.Settings, error)
}

// App is the terminal front end.
type App struct {
	client chatClient
	in     io.Reader
	out    *syncWriter
	fd     int
}

// NewApp creates an App reading commands from in and printing to out.
// Passwords are read from the terminal behind os.Stdin.
func NewApp(c chatClient, in io.Reader, out io.Writer) *App {
	return &App{
		client: c,
		in:     in,
		out:    &syncWriter{w: out},
		fd:     int(os.Stdin.Fd()),
	}
}

// Run runs the REPL until EOF, quit, or ctx is done, printing events from
// the client meanwhile.
func (a *App) Run(ctx context.Context, events <-chan registry.Event) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.render(ctx, events)
	}()

	a.println("Nexus chat. Type 'help' for commands.")
	runREPL(ctx, a, bufio.NewScanner(a.in))
	cancel()
	wg.Wait()
}

func (a *App) println(args ...any) {
	_, _ = fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(a.out, format, args...)
}

// syncWriter serializes writes from the REPL and the renderer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
