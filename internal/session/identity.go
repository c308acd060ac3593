package session

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrInvalidIdentity is returned by ParseIdentity for unusable input.
var ErrInvalidIdentity = errors.New("invalid server identity")

// Identity names one server connection. It is the registry key.
type Identity struct {
	Host string
	Port int
}

func (i Identity) String() string {
	return net.JoinHostPort(i.Host, strconv.Itoa(i.Port))
}

// URL returns the WebSocket endpoint of the server.
func (i Identity) URL() string {
	return "ws://" + i.String()
}

// IsZero reports whether i is the zero identity.
func (i Identity) IsZero() bool {
	return i.Host == "" && i.Port == 0
}

// ParseIdentity parses "host:port".
func ParseIdentity(s string) (Identity, error) {
	host, portStr, err := net.SplitHostPort(strings.TrimSpace(s))
	if err != nil {
		return Identity{}, fmt.Errorf("%w %q: %v", ErrInvalidIdentity, s, err)
	}
	return NewIdentity(host, portStr)
}

// NewIdentity validates a host and a textual port.
func NewIdentity(host, port string) (Identity, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return Identity{}, fmt.Errorf("%w: empty host", ErrInvalidIdentity)
	}
	p, err := strconv.Atoi(strings.TrimSpace(port))
	if err != nil || p <= 0 || p > 65535 {
		return Identity{}, fmt.Errorf("%w: bad port %q", ErrInvalidIdentity, port)
	}
	return Identity{Host: host, Port: p}, nil
}
