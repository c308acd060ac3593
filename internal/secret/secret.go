// Package secret keeps credential secrets in memguard locked buffers so a
// password lives in protected memory only for the duration of a handshake.
package secret

import (
	"github.com/awnumar/memguard"
)

// Secret is a destroyable secret value. The zero value and nil are empty.
type Secret struct {
	buf *memguard.LockedBuffer
}

// New copies plaintext into a locked buffer.
func New(plaintext string) *Secret {
	if plaintext == "" {
		return &Secret{}
	}
	return &Secret{buf: memguard.NewBufferFromBytes([]byte(plaintext))}
}

// FromBytes moves b into a locked buffer; memguard wipes b.
func FromBytes(b []byte) *Secret {
	if len(b) == 0 {
		return &Secret{}
	}
	return &Secret{buf: memguard.NewBufferFromBytes(b)}
}

// String returns a copy of the plaintext, or "" once destroyed.
func (s *Secret) String() string {
	if s.IsEmpty() {
		return ""
	}
	return string(s.buf.Bytes())
}

// IsEmpty reports whether there is no readable secret.
func (s *Secret) IsEmpty() bool {
	return s == nil || s.buf == nil || !s.buf.IsAlive() || s.buf.Size() == 0
}

// Destroy wipes the secret. It is safe to call more than once.
func (s *Secret) Destroy() {
	if s == nil || s.buf == nil {
		return
	}
	s.buf.Destroy()
	s.buf = nil
}

// Purge wipes every live locked buffer in the process; call on shutdown.
func Purge() {
	memguard.Purge()
}
