package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode_KnownTypes(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Frame
	}{
		{
			name: "auth response success",
			raw:  `{"type":"auth_response","success":true,"username":"alice","channels":["general","chat"],"online_users":["bob"],"offline_users":["carol"]}`,
			want: &AuthResponse{Success: true, Username: "alice", Channels: []string{"general", "chat"}, OnlineUsers: []string{"bob"}, OfflineUsers: []string{"carol"}},
		},
		{
			name: "auth response failure",
			raw:  `{"type":"auth_response","success":false,"error":"bad password"}`,
			want: &AuthResponse{Success: false, Error: "bad password"},
		},
		{
			name: "register response",
			raw:  `{"type":"register_response","success":true}`,
			want: &RegisterResponse{Success: true},
		},
		{
			name: "chat message",
			raw:  `{"type":"message","channel":"general","content":"hi","username":"bob","timestamp":"2024-01-01T00:00:00"}`,
			want: &Message{Channel: "general", Content: "hi", Username: "bob", Timestamp: "2024-01-01T00:00:00"},
		},
		{
			name: "channel history",
			raw:  `{"type":"channel_history","channel":"help","messages":[{"username":"a","content":"1","timestamp":"t1"},{"username":"b","content":"2","timestamp":"t2"}]}`,
			want: &ChannelHistory{Channel: "help", Messages: []HistoryEntry{{Username: "a", Content: "1", Timestamp: "t1"}, {Username: "b", Content: "2", Timestamp: "t2"}}},
		},
		{
			name: "user status",
			raw:  `{"type":"user_status","username":"bob","status":"offline"}`,
			want: &UserStatus{Username: "bob", Status: PresenceOffline},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode_UnknownTypeIsNotAnError(t *testing.T) {
	raw := []byte(`{"type":"typing","username":"bob"}`)

	f, err := Decode(raw)
	require.NoError(t, err)

	u, ok := f.(*Unknown)
	require.True(t, ok, "expected *Unknown, got %T", f)
	assert.Equal(t, Type("typing"), u.FrameType())
	assert.Equal(t, raw, u.Raw)
}

func TestDecode_Malformed(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":          `{this is not json`,
		"array":             `[1,2,3]`,
		"missing type":      `{"content":"hi"}`,
		"numeric type":      `{"type":7}`,
		"empty type":        `{"type":""}`,
		"wrong field shape": `{"type":"auth_response","success":"yes"}`,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(raw))
			assert.ErrorIs(t, err, ErrMalformedFrame)
		})
	}
}

func TestEncode_StampsType(t *testing.T) {
	raw, err := Encode(&Auth{Username: "alice", Password: "x"})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, map[string]any{"type": "auth", "username": "alice", "password": "x"}, got)
}

func TestEncode_MessageOmitsEmptyTimestamp(t *testing.T) {
	raw, err := Encode(&Message{Channel: "random", Content: "hi", Username: "alice"})
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	assert.Equal(t, "message", got["type"])
	assert.Equal(t, "random", got["channel"])
	assert.NotContains(t, got, "timestamp")
}

func TestEncode_UnknownPassesThrough(t *testing.T) {
	raw := []byte(`{"type":"typing"}`)
	out, err := Encode(&Unknown{Type: "typing", Raw: raw})
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}
