package devserver

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Tyrowin/nexus-chat-client/internal/protocol"
)

func TestUserDB(t *testing.T) {
	db := newUserDB(bcrypt.MinCost)

	require.NoError(t, db.Register("alice", "pw"))
	assert.ErrorIs(t, db.Register("alice", "other"), ErrUserExists)
	assert.ErrorIs(t, db.Register("", "pw"), ErrMissingCredentials)
	assert.ErrorIs(t, db.Register("bob", ""), ErrMissingCredentials)

	assert.NoError(t, db.Authenticate("alice", "pw"))
	assert.ErrorIs(t, db.Authenticate("alice", "wrong"), ErrBadCredentials)
	assert.ErrorIs(t, db.Authenticate("nobody", "pw"), ErrBadCredentials)

	require.NoError(t, db.Register("aaron", "pw"))
	assert.Equal(t, []string{"aaron", "alice"}, db.Usernames())
}

func TestChannelHistory_KeepsMostRecent(t *testing.T) {
	h := newChannelHistory(3)
	for i := 0; i < 5; i++ {
		h.Append("general", protocol.HistoryEntry{Username: "u", Content: fmt.Sprint(i)})
	}

	got := h.Get("general")
	require.Len(t, got, 3)
	assert.Equal(t, "2", got[0].Content)
	assert.Equal(t, "4", got[2].Content)

	got[0].Content = "mutated"
	assert.Equal(t, "2", h.Get("general")[0].Content)

	empty := h.Get("help")
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
