package protocol

// Type is the value of a frame's "type" field.
type Type string

const (
	TypeAuth              Type = "auth"
	TypeRegister          Type = "register"
	TypeAuthResponse      Type = "auth_response"
	TypeRegisterResponse  Type = "register_response"
	TypeMessage           Type = "message"
	TypeGetChannelHistory Type = "get_channel_history"
	TypeChannelHistory    Type = "channel_history"
	TypeUserStatus        Type = "user_status"
)

// Presence is the status carried by a user_status frame.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceOffline Presence = "offline"
)

// Frame is implemented by every frame variant in this package.
type Frame interface {
	FrameType() Type
	frame()
}

// Auth asks the server to authenticate an existing account.
type Auth struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register asks the server to create an account.
type Register struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse answers Auth. On success the server includes the channel
// list and a roster snapshot.
type AuthResponse struct {
	Success      bool     `json:"success"`
	Username     string   `json:"username,omitempty"`
	Channels     []string `json:"channels,omitempty"`
	OnlineUsers  []string `json:"online_users,omitempty"`
	OfflineUsers []string `json:"offline_users,omitempty"`
	Error        string   `json:"error,omitempty"`
}

// RegisterResponse answers Register.
type RegisterResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Message is a chat message. Timestamp is only set by servers.
type Message struct {
	Channel   string `json:"channel"`
	Content   string `json:"content"`
	Username  string `json:"username"`
	Timestamp string `json:"timestamp,omitempty"`
}

// GetChannelHistory requests the recent history of one channel.
type GetChannelHistory struct {
	Channel string `json:"channel"`
}

// HistoryEntry is one element of ChannelHistory.Messages, oldest first.
type HistoryEntry struct {
	Username  string `json:"username"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// ChannelHistory answers GetChannelHistory.
type ChannelHistory struct {
	Channel  string         `json:"channel,omitempty"`
	Messages []HistoryEntry `json:"messages"`
}

// UserStatus announces a presence change.
type UserStatus struct {
	Username string   `json:"username"`
	Status   Presence `json:"status"`
}

// Unknown carries a well-formed frame whose type this package does not model.
type Unknown struct {
	Type Type
	Raw  []byte
}

func (*Auth) FrameType() Type              { return TypeAuth }
func (*Register) FrameType() Type          { return TypeRegister }
func (*AuthResponse) FrameType() Type      { return TypeAuthResponse }
func (*RegisterResponse) FrameType() Type  { return TypeRegisterResponse }
func (*Message) FrameType() Type           { return TypeMessage }
func (*GetChannelHistory) FrameType() Type { return TypeGetChannelHistory }
func (*ChannelHistory) FrameType() Type    { return TypeChannelHistory }
func (*UserStatus) FrameType() Type        { return TypeUserStatus }
func (u *Unknown) FrameType() Type         { return u.Type }

func (*Auth) frame()              {}
func (*Register) frame()          {}
func (*AuthResponse) frame()      {}
func (*RegisterResponse) frame()  {}
func (*Message) frame()           {}
func (*GetChannelHistory) frame() {}
func (*ChannelHistory) frame()    {}
func (*UserStatus) frame()        {}
func (*Unknown) frame()           {}
