package devserver

import (
	"errors"
	"sort"
	"strings"

	"github.com/Tyrowin/nexus-chat-client/internal/protocol"
)

// TimestampLayout is the ISO-8601 layout stamped on messages.
const TimestampLayout = "2006-01-02T15:04:05.000000"

func (h *Hub) handleFrame(c *Client, raw []byte) {
	f, err := protocol.Decode(raw)
	if err != nil {
		h.log.Warn(h.ctx, "invalid frame", "remote", c.addr, "err", err)
		return
	}

	switch f := f.(type) {
	case *protocol.Auth:
		h.handleAuth(c, f)
	case *protocol.Register:
		h.handleRegister(c, f)
	case *protocol.Message:
		h.handleMessage(c, f)
	case *protocol.GetChannelHistory:
		h.handleHistory(c, f)
	default:
		h.log.Warn(h.ctx, "unhandled frame type", "remote", c.addr, "type", f.FrameType())
	}
}

func (h *Hub) handleAuth(c *Client, f *protocol.Auth) {
	if c.username != "" {
		h.sendTo(c, &protocol.AuthResponse{Success: false, Error: "Already authenticated"})
		return
	}
	if err := h.users.Authenticate(f.Username, f.Password); err != nil {
		h.log.Info(h.ctx, "authentication failed", "remote", c.addr, "username", f.Username)
		h.sendTo(c, &protocol.AuthResponse{Success: false, Error: "Invalid username or password"})
		return
	}

	c.username = strings.TrimSpace(f.Username)
	h.online[c.username]++
	firstSession := h.online[c.username] == 1
	h.log.Info(h.ctx, "user authenticated", "remote", c.addr, "username", c.username)

	online, offline := h.roster()
	h.sendTo(c, &protocol.AuthResponse{
		Success:      true,
		Username:     c.username,
		Channels:     append([]string(nil), h.cfg.Channels...),
		OnlineUsers:  online,
		OfflineUsers: offline,
	})

	if firstSession {
		h.broadcast(c, &protocol.UserStatus{Username: c.username, Status: protocol.PresenceOnline})
	}
}

func (h *Hub) handleRegister(c *Client, f *protocol.Register) {
	err := h.users.Register(f.Username, f.Password)
	switch {
	case err == nil:
		h.log.Info(h.ctx, "user registered", "remote", c.addr, "username", f.Username)
		h.sendTo(c, &protocol.RegisterResponse{Success: true})
	case errors.Is(err, ErrUserExists):
		h.sendTo(c, &protocol.RegisterResponse{Success: false, Error: "Username already exists"})
	case errors.Is(err, ErrMissingCredentials):
		h.sendTo(c, &protocol.RegisterResponse{Success: false, Error: "Username and password are required"})
	default:
		h.log.Error(h.ctx, "register user", "remote", c.addr, "err", err)
		h.sendTo(c, &protocol.RegisterResponse{Success: false, Error: "Registration failed"})
	}
}

func (h *Hub) handleMessage(c *Client, f *protocol.Message) {
	if c.username == "" {
		h.log.Warn(h.ctx, "dropping message from unauthenticated client", "remote", c.addr)
		return
	}

	msg := &protocol.Message{
		Channel:   channelOrDefault(f.Channel),
		Content:   f.Content,
		Username:  c.username,
		Timestamp: h.now().Format(TimestampLayout),
	}
	h.history.Append(msg.Channel, protocol.HistoryEntry{
		Username:  msg.Username,
		Content:   msg.Content,
		Timestamp: msg.Timestamp,
	})
	h.broadcast(c, msg)
}

func (h *Hub) handleHistory(c *Client, f *protocol.GetChannelHistory) {
	if c.username == "" {
		h.log.Warn(h.ctx, "dropping history request from unauthenticated client", "remote", c.addr)
		return
	}

	channel := channelOrDefault(f.Channel)
	h.sendTo(c, &protocol.ChannelHistory{Channel: channel, Messages: h.history.Get(channel)})
}

// roster partitions registered users by presence, both sorted.
func (h *Hub) roster() (online, offline []string) {
	online = make([]string, 0, len(h.online))
	offline = []string{}
	for _, name := range h.users.Usernames() {
		if h.online[name] > 0 {
			online = append(online, name)
		} else {
			offline = append(offline, name)
		}
	}
	sort.Strings(online)
	return online, offline
}

func channelOrDefault(channel string) string {
	if channel = strings.TrimSpace(channel); channel != "" {
		return channel
	}
	return DefaultChannels[0]
}
