package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/Tyrowin/nexus-chat-client/internal/registry"
)

func (a *App) render(ctx context.Context, events <-chan registry.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.println(formatEvent(ev))
		}
	}
}

func formatEvent(ev registry.Event) string {
	server := ev.Server().String()

	switch ev := ev.(type) {
	case registry.ConnectionStatus:
		if !ev.Success {
			return fmt.Sprintf("[%s] connection failed: %s", server, ev.Error)
		}
		return fmt.Sprintf("[%s] connected as %s; channels: %s; online: %s",
			server, ev.Username, joinOrDash(ev.Channels), joinOrDash(ev.OnlineUsers))
	case registry.ServerAdded:
		return fmt.Sprintf("[%s] saved server for %s", server, ev.Username)
	case registry.RegistrationStatus:
		if !ev.Success {
			return fmt.Sprintf("[%s] registration failed: %s", server, ev.Error)
		}
		return fmt.Sprintf("[%s] registration succeeded; use login to connect", server)
	case registry.ChatMessage:
		return fmt.Sprintf("[%s] #%s <%s> %s", server, ev.Message.Channel, ev.Message.Username, ev.Message.Content)
	case registry.ChannelHistory:
		var b strings.Builder
		fmt.Fprintf(&b, "[%s] history of #%s (%d messages)", server, ev.Channel, len(ev.Messages))
		for _, m := range ev.Messages {
			fmt.Fprintf(&b, "\n  %s <%s> %s", m.Timestamp, m.Username, m.Content)
		}
		return b.String()
	case registry.UserStatus:
		return fmt.Sprintf("[%s] %s is %s", server, ev.Username, ev.Status)
	default:
		return fmt.Sprintf("[%s] %T", server, ev)
	}
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}

func (a *App) printServers(ctx context.Context) {
	active, hasActive := a.client.Active()
	statuses := a.client.Statuses()
	if len(statuses) == 0 {
		a.println("No sessions.")
	}
	for _, st := range statuses {
		marker := " "
		if hasActive && st.Identity == active {
			marker = "*"
		}
		a.printf("%s %s  %s  user=%s  channel=%s  open=%t\n",
			marker, st.Identity, st.State, orDash(st.Username), st.Channel, st.Open)
	}

	saved, err := a.client.Servers(ctx)
	if err != nil {
		a.println("error:", err)
		return
	}
	a.printf("%d saved server(s)\n", len(saved))
}

func (a *App) printSettings(ctx context.Context) error {
	s, err := a.client.Settings(ctx)
	if err != nil {
		return err
	}
	a.printf("theme=%s fontSize=%d reduceMotion=%t highContrast=%t\n",
		s.Theme, s.FontSize, s.ReduceMotion, s.HighContrast)
	a.printf("notifications: enabled=%t messages=%t statusChanges=%t\n",
		s.Notifications.Enabled, s.Notifications.Messages, s.Notifications.StatusChanges)
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
