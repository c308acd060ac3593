package devserver

import "github.com/Tyrowin/nexus-chat-client/internal/protocol"

// channelHistory keeps the most recent messages of every channel, oldest
// first. It is only touched from the hub goroutine.
type channelHistory struct {
	limit    int
	messages map[string][]protocol.HistoryEntry
}

func newChannelHistory(limit int) *channelHistory {
	return &channelHistory{limit: limit, messages: make(map[string][]protocol.HistoryEntry)}
}

func (h *channelHistory) Append(channel string, e protocol.HistoryEntry) {
	msgs := append(h.messages[channel], e)
	if len(msgs) > h.limit {
		msgs = append([]protocol.HistoryEntry(nil), msgs[len(msgs)-h.limit:]...)
	}
	h.messages[channel] = msgs
}

// Get returns a copy of the channel's history; never nil.
func (h *channelHistory) Get(channel string) []protocol.HistoryEntry {
	out := make([]protocol.HistoryEntry, len(h.messages[channel]))
	copy(out, h.messages[channel])
	return out
}
