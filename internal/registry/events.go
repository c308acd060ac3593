package registry

import (
	"github.com/Tyrowin/nexus-chat-client/internal/protocol"
	"github.com/Tyrowin/nexus-chat-client/internal/session"
)

// Event is emitted to the UI boundary. The concrete types below are the
// only implementations.
type Event interface {
	Server() session.Identity
	event()
}

// ConnectionStatus reports the outcome of a connect, switch or re-add.
type ConnectionStatus struct {
	Identity     session.Identity
	Success      bool
	Username     string
	Channels     []string
	OnlineUsers  []string
	OfflineUsers []string
	Error        string
}

// ServerAdded is emitted the first time an identity authenticates.
type ServerAdded struct {
	Identity session.Identity
	Username string
}

type ChatMessage struct {
	Identity session.Identity
	Message  protocol.Message
}

type RegistrationStatus struct {
	Identity session.Identity
	Success  bool
	Error    string
}

type ChannelHistory struct {
	Identity session.Identity
	Channel  string
	Messages []protocol.HistoryEntry
}

type UserStatus struct {
	Identity session.Identity
	Username string
	Status   protocol.Presence
}

func (e ConnectionStatus) Server() session.Identity   { return e.Identity }
func (e ServerAdded) Server() session.Identity        { return e.Identity }
func (e ChatMessage) Server() session.Identity        { return e.Identity }
func (e RegistrationStatus) Server() session.Identity { return e.Identity }
func (e ChannelHistory) Server() session.Identity     { return e.Identity }
func (e UserStatus) Server() session.Identity         { return e.Identity }

func (ConnectionStatus) event()   {}
func (ServerAdded) event()        {}
func (ChatMessage) event()        {}
func (RegistrationStatus) event() {}
func (ChannelHistory) event()     {}
func (UserStatus) event()         {}

func statusOf(s *session.Session) ConnectionStatus {
	st := s.Status()
	return ConnectionStatus{
		Identity:     st.Identity,
		Success:      st.State == session.StateAuthenticated && st.Open,
		Username:     st.Username,
		Channels:     st.Channels,
		OnlineUsers:  st.OnlineUsers,
		OfflineUsers: st.OfflineUsers,
		Error:        st.Error,
	}
}
