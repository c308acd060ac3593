package session

import "github.com/Tyrowin/nexus-chat-client/internal/secret"

// Mode selects the handshake a session performs once its transport opens.
type Mode int

const (
	ModeAuthenticate Mode = iota
	ModeRegister
)

func (m Mode) String() string {
	if m == ModeRegister {
		return "register"
	}
	return "auth"
}

// Credentials are held by a session only until the handshake resolves.
type Credentials struct {
	Username string
	Secret   *secret.Secret
	Mode     Mode
}

// NewCredentials copies password into protected memory.
func NewCredentials(username, password string, mode Mode) *Credentials {
	return &Credentials{Username: username, Secret: secret.New(password), Mode: mode}
}

func (c *Credentials) erase() {
	if c == nil {
		return
	}
	c.Secret.Destroy()
}
